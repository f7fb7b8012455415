package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

// Assembler packs rendered slide images into a presentation file. Assembly
// never blocks on missing slides; absent images become labeled placeholders
// and are reported so a later run can fill them in.
type Assembler struct {
	store   *store.Store
	encoder PresentationEncoder
	logger  *observability.Logger
}

// NewAssembler creates a presentation assembler.
func NewAssembler(st *store.Store, encoder PresentationEncoder, logger *observability.Logger) *Assembler {
	return &Assembler{
		store:   st,
		encoder: encoder,
		logger:  logger.WithStage(string(domain.StagePresentation)),
	}
}

func presentationKey(doc domain.DocumentID) store.Key {
	return store.Key{Doc: doc, Stage: domain.StagePresentation, Unit: 0}
}

// DeckFingerprint derives the presentation's completion fingerprint from the
// plan fingerprint plus the set of slides that were available at assembly
// time. A slide appearing later changes the fingerprint, so a partial deck
// goes stale and is rebuilt, while a complete deck stays reusable.
func DeckFingerprint(planFingerprint string, available []int) string {
	h := sha256.New()
	h.Write([]byte(planFingerprint))
	for _, i := range available {
		fmt.Fprintf(h, ":%d", i)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Assemble builds the deck from every slide image committed for the current
// plan. The stage has a single unit: the deck itself.
func (a *Assembler) Assemble(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, planFingerprint string) (*domain.StageReport, error) {
	start := time.Now()
	report := domain.NewStageReport(domain.StagePresentation, 1)

	images := make([]SlideImage, 0, p.SlideCount())
	available := make([]int, 0, p.SlideCount())
	for _, s := range p.Slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img := SlideImage{Index: s.Index, Title: s.Title}
		if a.store.ExistsFor(slideKey(doc, s.Index), planFingerprint) {
			data, err := a.store.Read(slideKey(doc, s.Index))
			if err == nil {
				img.PNG = data
				available = append(available, s.Index)
			}
		}
		if img.PNG == nil {
			report.Missing = append(report.Missing, s.Index)
		}
		images = append(images, img)
	}

	fp := DeckFingerprint(planFingerprint, available)
	key := presentationKey(doc)
	if a.store.ExistsFor(key, fp) {
		report.Reused = append(report.Reused, 0)
		report.Duration = time.Since(start)
		a.logger.Info().Str("document", string(doc)).Msg("Reusing assembled presentation")
		return report, nil
	}

	data, err := a.encoder.Encode(images)
	if err != nil {
		report.Failed = append(report.Failed, 0)
		report.Duration = time.Since(start)
		return report, err
	}

	if err := a.store.Write(key, data, fp); err != nil {
		report.Failed = append(report.Failed, 0)
		report.Duration = time.Since(start)
		return report, err
	}

	report.Produced = append(report.Produced, 0)
	report.Duration = time.Since(start)
	a.logger.Info().
		Str("document", string(doc)).
		Int("slides", len(images)).
		Int("placeholders", len(report.Missing)).
		Msg("Presentation assembled")
	return report, nil
}
