package render

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

func commitSlides(t *testing.T, st *store.Store, fp string, indices ...int) {
	t.Helper()
	for _, i := range indices {
		k := store.Key{Doc: docID, Stage: domain.StageSlides, Unit: i}
		require.NoError(t, st.Write(k, []byte(fmt.Sprintf("png-%d", i)), fp))
	}
}

func TestVideoRendersAllSegments(t *testing.T) {
	st := store.New(t.TempDir())
	commitSlides(t, st, "fp-1", 0, 1, 2, 3)
	r := NewVideoRenderer(st, &fakeGenerator{}, renderCfg(), observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(4), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Expected, "4 slides imply 3 segments")
	assert.Equal(t, []int{0, 1, 2}, report.Produced)
	assert.Empty(t, report.Failed)

	data, err := st.Read(store.Key{Doc: docID, Stage: domain.StageVideo, Unit: 1})
	require.NoError(t, err)
	assert.Equal(t, "mp4-1", string(data))
}

func TestVideoSingleSlideNoSegments(t *testing.T) {
	st := store.New(t.TempDir())
	r := NewVideoRenderer(st, &fakeGenerator{}, renderCfg(), observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(1), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expected)
	assert.Empty(t, report.Produced)
	assert.Empty(t, report.Failed)
}

func TestVideoMissingEndpointFailsOnlyAffectedSegments(t *testing.T) {
	st := store.New(t.TempDir())
	// Slide 2 never rendered, so segments 1 and 2 have a missing endpoint.
	commitSlides(t, st, "fp-1", 0, 1, 3)
	gen := &fakeGenerator{}
	r := NewVideoRenderer(st, gen, renderCfg(), observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(4), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Produced)
	assert.Equal(t, []int{1, 2}, report.Failed)
}

func TestVideoMissingEndpointErrorNamesSlides(t *testing.T) {
	st := store.New(t.TempDir())
	commitSlides(t, st, "fp-1", 0)
	r := NewVideoRenderer(st, &fakeGenerator{}, renderCfg(), observability.Nop())

	err := r.renderOne(context.Background(), docID, testPlan(2), 0, "fp-1")
	require.Error(t, err)
	var dep *domain.MissingDependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, 0, dep.Segment)
	assert.Equal(t, []int{1}, dep.MissingSlides)
}

func TestVideoStaleSlideCountsAsMissing(t *testing.T) {
	st := store.New(t.TempDir())
	// Slides committed for a superseded plan must not satisfy the dependency.
	commitSlides(t, st, "fp-old", 0, 1)
	r := NewVideoRenderer(st, &fakeGenerator{}, renderCfg(), observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(2), "fp-new")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Failed)
}

func TestVideoRerunFillsOnlyFailedSegment(t *testing.T) {
	st := store.New(t.TempDir())
	commitSlides(t, st, "fp-1", 0, 1, 2)
	gen := &fakeGenerator{failVideo: map[int]int{1: 10}}
	r := NewVideoRenderer(st, gen, renderCfg(), observability.Nop())
	p := testPlan(3)

	report, err := r.Render(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Produced)
	assert.Equal(t, []int{1}, report.Failed)

	gen.failVideo = nil
	calls := gen.videoCalls
	report, err = r.Render(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Reused)
	assert.Equal(t, []int{1}, report.Produced)
	assert.Equal(t, calls+1, gen.videoCalls)
}
