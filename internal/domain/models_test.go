package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planWithSlides(n int) *SlidePlan {
	p := &SlidePlan{Version: PlanVersion, Style: "clean"}
	for i := 0; i < n; i++ {
		p.Slides = append(p.Slides, SlideSpec{Index: i, Content: "content"})
	}
	return p
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	p := planWithSlides(3)
	p.Transitions = []TransitionSpec{{Index: 0, Prompt: "zoom"}, {Index: 1, Prompt: "pan"}}

	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.SlideCount())
	assert.Equal(t, 2, p.SegmentCount())
}

func TestValidateRejectsMalformedPlans(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SlidePlan)
	}{
		{"wrong version", func(p *SlidePlan) { p.Version = 2 }},
		{"no slides", func(p *SlidePlan) { p.Slides = nil }},
		{"index gap", func(p *SlidePlan) { p.Slides[2].Index = 5 }},
		{"negative index", func(p *SlidePlan) { p.Slides[0].Index = -1 }},
		{"duplicate index", func(p *SlidePlan) { p.Slides[1].Index = 0 }},
		{"empty content", func(p *SlidePlan) { p.Slides[1].Content = "" }},
		{"transition out of range", func(p *SlidePlan) {
			p.Transitions = []TransitionSpec{{Index: 2, Prompt: "x"}}
		}},
		{"duplicate transition", func(p *SlidePlan) {
			p.Transitions = []TransitionSpec{{Index: 0, Prompt: "x"}, {Index: 0, Prompt: "y"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := planWithSlides(3)
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, IsType(err, ErrorTypeValidation))
		})
	}
}

func TestNormalizeSortsByIndex(t *testing.T) {
	p := &SlidePlan{
		Version: PlanVersion,
		Slides: []SlideSpec{
			{Index: 2, Content: "c"},
			{Index: 0, Content: "a"},
			{Index: 1, Content: "b"},
		},
		Transitions: []TransitionSpec{
			{Index: 1, Prompt: "second"},
			{Index: 0, Prompt: "first"},
		},
	}

	p.Normalize()

	assert.Equal(t, []int{0, 1, 2}, []int{p.Slides[0].Index, p.Slides[1].Index, p.Slides[2].Index})
	assert.Equal(t, "first", p.Transitions[0].Prompt)
}

func TestSegmentCountSingleSlide(t *testing.T) {
	assert.Equal(t, 0, planWithSlides(1).SegmentCount())
	assert.Equal(t, 0, (&SlidePlan{}).SegmentCount())
}

func TestSlideAndTransitionLookup(t *testing.T) {
	p := planWithSlides(2)
	p.Transitions = []TransitionSpec{{Index: 0, Prompt: "dissolve"}}

	s, ok := p.Slide(1)
	require.True(t, ok)
	assert.Equal(t, 1, s.Index)

	_, ok = p.Slide(9)
	assert.False(t, ok)

	tr, ok := p.Transition(0)
	require.True(t, ok)
	assert.Equal(t, "dissolve", tr.Prompt)

	_, ok = p.Transition(1)
	assert.False(t, ok)
}

func TestStageReportShortCircuits(t *testing.T) {
	r := NewStageReport(StageSlides, 3)
	assert.True(t, r.ShortCircuits())

	r.Reused = []int{0}
	assert.False(t, r.ShortCircuits())
	assert.Equal(t, 1, r.Completed())

	r.Produced = []int{1, 2}
	assert.Equal(t, 3, r.Completed())

	empty := NewStageReport(StageVideo, 0)
	assert.False(t, empty.ShortCircuits())
}

func TestDomainErrorTypes(t *testing.T) {
	err := RenderError("slide failed", assert.AnError)
	assert.True(t, IsType(err, ErrorTypeRender))
	assert.False(t, IsType(err, ErrorTypeAPI))
	assert.ErrorIs(t, err, assert.AnError)

	dep := &MissingDependencyError{Segment: 2, MissingSlides: []int{3, 2}}
	assert.Contains(t, dep.Error(), "segment 2")
	assert.Contains(t, dep.Error(), "[2,3]")

	seg := &IncompleteSegmentsError{Expected: 4, Missing: []int{1}}
	assert.Contains(t, seg.Error(), "missing [1]")
}
