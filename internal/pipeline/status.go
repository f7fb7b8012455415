package pipeline

import (
	"errors"
	"os"
	"sort"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/render"
	"github.com/nanoslide/nanoslide/internal/store"
)

// StageStatus describes the durable state of one stage's units against the
// current plan. Stale units have bytes on disk but were produced from a
// superseded plan.
type StageStatus struct {
	Stage    domain.Stage `json:"stage"`
	Expected int          `json:"expected"`
	Done     []int        `json:"done,omitempty"`
	Stale    []int        `json:"stale,omitempty"`
	Missing  []int        `json:"missing,omitempty"`
}

// Complete reports whether every expected unit is durably current.
func (s StageStatus) Complete() bool {
	return len(s.Done) == s.Expected
}

// DocumentStatus is the full resumability picture for one document.
type DocumentStatus struct {
	Document        domain.DocumentID `json:"document"`
	HasPlan         bool              `json:"has_plan"`
	PlanFingerprint string            `json:"plan_fingerprint,omitempty"`
	SlideCount      int               `json:"slide_count,omitempty"`
	Stages          []StageStatus     `json:"stages"`
}

// Status inspects the store and reports, per stage, which units are current,
// stale, or missing. It performs no generation and needs no API key.
func (o *Orchestrator) Status(doc domain.DocumentID) (*DocumentStatus, error) {
	status := &DocumentStatus{Document: doc}

	p, fp, err := o.committedPlan(doc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return status, nil
		}
		return nil, err
	}
	status.HasPlan = true
	status.PlanFingerprint = fp
	status.SlideCount = p.SlideCount()

	unitStatus := func(stage domain.Stage, unit int, want string) (done, stale bool) {
		k := store.Key{Doc: doc, Stage: stage, Unit: unit}
		if o.store.ExistsFor(k, want) {
			return true, false
		}
		return false, o.store.Exists(k)
	}

	perUnit := func(stage domain.Stage, units int, want string) StageStatus {
		s := StageStatus{Stage: stage, Expected: units}
		for i := 0; i < units; i++ {
			done, stale := unitStatus(stage, i, want)
			switch {
			case done:
				s.Done = append(s.Done, i)
			case stale:
				s.Stale = append(s.Stale, i)
			default:
				s.Missing = append(s.Missing, i)
			}
		}
		return s
	}

	status.Stages = append(status.Stages, StageStatus{
		Stage: domain.StagePlan, Expected: 1, Done: []int{0},
	})

	slides := perUnit(domain.StageSlides, p.SlideCount(), fp)
	status.Stages = append(status.Stages, slides)

	// The deck's fingerprint covers the slide set it was built from, so a
	// deck assembled before a late slide arrived shows as stale.
	deck := StageStatus{Stage: domain.StagePresentation, Expected: 1}
	deckFP := render.DeckFingerprint(fp, slides.Done)
	if done, stale := unitStatus(domain.StagePresentation, 0, deckFP); done {
		deck.Done = []int{0}
	} else if stale {
		deck.Stale = []int{0}
	} else {
		deck.Missing = []int{0}
	}
	status.Stages = append(status.Stages, deck)

	status.Stages = append(status.Stages, perUnit(domain.StageVideo, p.SegmentCount(), fp))

	fused := StageStatus{Stage: domain.StageFused, Expected: 0}
	if p.SegmentCount() > 0 {
		fused.Expected = 1
		if done, stale := unitStatus(domain.StageFused, 0, fp); done {
			fused.Done = []int{0}
		} else if stale {
			fused.Stale = []int{0}
		} else {
			fused.Missing = []int{0}
		}
	}
	status.Stages = append(status.Stages, fused)

	return status, nil
}

// Documents lists every document with artifacts under the output directory.
func (o *Orchestrator) Documents() ([]domain.DocumentID, error) {
	entries, err := os.ReadDir(o.store.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.IOError("failed to list output directory", err)
	}

	var docs []domain.DocumentID
	for _, e := range entries {
		if e.IsDir() {
			docs = append(docs, domain.DocumentID(e.Name()))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	return docs, nil
}
