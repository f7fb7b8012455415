package domain

import (
	"fmt"
	"sort"
	"time"
)

// DocumentID is the stable key that namespaces all artifacts for one source
// document. It is derived from the document's file name and content hash, so
// two different documents with the same name never collide.
type DocumentID string

// Document represents the source PDF being processed.
type Document struct {
	ID     DocumentID
	Path   string
	SHA256 string
	Pages  int
}

// Stage identifies one phase of the pipeline. Stage names are part of the
// persisted artifact layout and must stay stable.
type Stage string

const (
	StagePlan         Stage = "plan"
	StageSlides       Stage = "slides"
	StagePresentation Stage = "presentation"
	StageVideo        Stage = "video"
	StageFused        Stage = "fused"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StagePlan, StageSlides, StagePresentation, StageVideo, StageFused}
}

// PlanVersion is the slide plan wire-format version this build reads and writes.
const PlanVersion = 1

// SlideSpec describes one slide of the plan. Index is the sole ordering key;
// storage iteration order is never trusted.
type SlideSpec struct {
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Style   string `json:"style,omitempty"`
}

// TransitionSpec carries the collaborator-authored prompt for the transition
// between slides Index and Index+1.
type TransitionSpec struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
}

// SlidePlan is the intermediate representation every downstream stage consumes.
// A committed plan is immutable; regeneration commits a new plan artifact with
// a new fingerprint.
type SlidePlan struct {
	Version     int              `json:"version"`
	Style       string           `json:"style"`
	Slides      []SlideSpec      `json:"slides"`
	Transitions []TransitionSpec `json:"transitions,omitempty"`
}

// SlideCount returns the number of slides in the plan.
func (p *SlidePlan) SlideCount() int {
	return len(p.Slides)
}

// SegmentCount returns the number of transition segments the plan implies:
// max(N-1, 0) for N slides.
func (p *SlidePlan) SegmentCount() int {
	if len(p.Slides) < 2 {
		return 0
	}
	return len(p.Slides) - 1
}

// Slide returns the spec at the given index.
func (p *SlidePlan) Slide(index int) (SlideSpec, bool) {
	for _, s := range p.Slides {
		if s.Index == index {
			return s, true
		}
	}
	return SlideSpec{}, false
}

// Transition returns the transition spec for segment (index, index+1), if the
// plan carries one.
func (p *SlidePlan) Transition(index int) (TransitionSpec, bool) {
	for _, t := range p.Transitions {
		if t.Index == index {
			return t, true
		}
	}
	return TransitionSpec{}, false
}

// Validate checks the structural invariants of a plan: a supported version,
// at least one slide, slide indices exactly 0..N-1 with no gaps or duplicates,
// non-empty content, and transition indices within 0..N-2 with no duplicates.
// Consumers must reject any plan that fails validation.
func (p *SlidePlan) Validate() error {
	if p.Version != PlanVersion {
		return ValidationError(fmt.Sprintf("unsupported plan version %d", p.Version), nil)
	}
	if len(p.Slides) == 0 {
		return ValidationError("plan has no slides", nil)
	}

	seen := make(map[int]bool, len(p.Slides))
	for _, s := range p.Slides {
		if s.Index < 0 || s.Index >= len(p.Slides) {
			return ValidationError(fmt.Sprintf("slide index %d out of range [0,%d)", s.Index, len(p.Slides)), nil)
		}
		if seen[s.Index] {
			return ValidationError(fmt.Sprintf("duplicate slide index %d", s.Index), nil)
		}
		if s.Content == "" {
			return ValidationError(fmt.Sprintf("slide %d has empty content", s.Index), nil)
		}
		seen[s.Index] = true
	}

	segments := p.SegmentCount()
	seenT := make(map[int]bool, len(p.Transitions))
	for _, t := range p.Transitions {
		if t.Index < 0 || t.Index >= segments {
			return ValidationError(fmt.Sprintf("transition index %d out of range [0,%d)", t.Index, segments), nil)
		}
		if seenT[t.Index] {
			return ValidationError(fmt.Sprintf("duplicate transition index %d", t.Index), nil)
		}
		seenT[t.Index] = true
	}

	return nil
}

// Normalize sorts slides and transitions by index so the committed plan bytes
// are canonical regardless of the order the collaborator emitted them in.
func (p *SlidePlan) Normalize() {
	sort.Slice(p.Slides, func(i, j int) bool { return p.Slides[i].Index < p.Slides[j].Index })
	sort.Slice(p.Transitions, func(i, j int) bool { return p.Transitions[i].Index < p.Transitions[j].Index })
}

// StageReport summarizes one stage invocation. Every CLI run prints the
// reused/produced/failed unit counts from this report.
type StageReport struct {
	Stage    Stage         `json:"stage"`
	Expected int           `json:"expected"`
	Reused   []int         `json:"reused,omitempty"`
	Produced []int         `json:"produced,omitempty"`
	Failed   []int         `json:"failed,omitempty"`
	Missing  []int         `json:"missing,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewStageReport creates an empty report for a stage expecting the given
// number of units.
func NewStageReport(stage Stage, expected int) *StageReport {
	return &StageReport{Stage: stage, Expected: expected}
}

// Completed returns the number of units that are durably present after the
// stage ran, whether reused or newly produced.
func (r *StageReport) Completed() int {
	return len(r.Reused) + len(r.Produced)
}

// ShortCircuits reports whether the composite pipeline must stop after this
// stage: at least one unit was expected and none completed.
func (r *StageReport) ShortCircuits() bool {
	return r.Expected > 0 && r.Completed() == 0
}

func (r *StageReport) String() string {
	return fmt.Sprintf("%s: %d reused, %d produced, %d failed (of %d)",
		r.Stage, len(r.Reused), len(r.Produced), len(r.Failed), r.Expected)
}
