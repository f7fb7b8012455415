package plan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

// Compiler produces and commits slide plans. A committed plan is canonical
// JSON; its SHA-256 is the fingerprint every rendered artifact is stamped
// with.
type Compiler struct {
	store  *store.Store
	gen    domain.Generator
	logger *observability.Logger
}

// NewCompiler creates a plan compiler.
func NewCompiler(st *store.Store, gen domain.Generator, logger *observability.Logger) *Compiler {
	return &Compiler{
		store:  st,
		gen:    gen,
		logger: logger.WithOperation("plan"),
	}
}

func planKey(doc domain.DocumentID) store.Key {
	return store.Key{Doc: doc, Stage: domain.StagePlan, Unit: 0}
}

// Compile returns the committed plan for the document, generating one if
// none exists. force discards any committed plan and regenerates. A plan
// that fails validation is never committed.
func (c *Compiler) Compile(ctx context.Context, doc *domain.Document, userPrompt string, force bool) (*domain.SlidePlan, string, error) {
	if !force {
		if p, fp, err := c.Committed(doc.ID); err == nil {
			c.logger.Info().
				Str("document", string(doc.ID)).
				Int("slides", p.SlideCount()).
				Msg("Reusing committed plan")
			return p, fp, nil
		}
	}

	pdf, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, "", domain.IOError("failed to read source document", err)
	}

	c.logger.Info().Str("document", string(doc.ID)).Msg("Generating slide plan")
	raw, err := c.gen.GeneratePlan(ctx, pdf, BuildPlanPrompt(userPrompt))
	if err != nil {
		return nil, "", err
	}

	p, err := Parse(raw)
	if err != nil {
		return nil, "", err
	}

	canonical, fp, err := Canonicalize(p)
	if err != nil {
		return nil, "", err
	}

	if err := c.store.Write(planKey(doc.ID), canonical, fp); err != nil {
		return nil, "", err
	}

	c.logger.Info().
		Str("document", string(doc.ID)).
		Str("fingerprint", fp[:12]).
		Int("slides", p.SlideCount()).
		Int("transitions", len(p.Transitions)).
		Msg("Plan committed")
	return p, fp, nil
}

// Committed loads the committed plan and its fingerprint. Returns
// store.ErrNotFound when no plan has been committed.
func (c *Compiler) Committed(doc domain.DocumentID) (*domain.SlidePlan, string, error) {
	data, err := c.store.Read(planKey(doc))
	if err != nil {
		return nil, "", err
	}

	var p domain.SlidePlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, "", domain.PlanError("committed plan is not valid JSON", err)
	}
	if err := p.Validate(); err != nil {
		return nil, "", err
	}

	m, err := c.store.Marker(planKey(doc))
	if err != nil {
		return nil, "", err
	}
	return &p, m.PlanFingerprint, nil
}

// Parse decodes model output into a validated, normalized plan.
func Parse(raw string) (*domain.SlidePlan, error) {
	text := ExtractJSON(raw)

	var p domain.SlidePlan
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, domain.PlanError("model output is not valid JSON", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// Canonicalize serializes a normalized plan to its canonical JSON form and
// returns the bytes with their SHA-256 fingerprint.
func Canonicalize(p *domain.SlidePlan) ([]byte, string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, "", domain.PlanError("failed to serialize plan", err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}
