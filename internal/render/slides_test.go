package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

// fakeGenerator scripts per-unit failures and counts calls.
type fakeGenerator struct {
	mu         sync.Mutex
	imageCalls int
	videoCalls int
	failImage  map[int]int // prompt-derived unit -> remaining failures
	failVideo  map[int]int
}

func (f *fakeGenerator) GeneratePlan(ctx context.Context, pdf []byte, prompt string) (string, error) {
	return "", errors.New("not implemented")
}

// unitFromPrompt relies on the scene content carrying "scene <n>". For
// transition prompts the first occurrence is the starting slide, which is
// also the segment unit.
func unitFromPrompt(prompt string) int {
	rest := prompt
	for {
		idx := strings.Index(rest, "scene ")
		if idx < 0 {
			return -1
		}
		var unit int
		if n, _ := fmt.Sscanf(rest[idx:], "scene %d", &unit); n == 1 {
			return unit
		}
		rest = rest[idx+len("scene "):]
	}
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	unit := unitFromPrompt(prompt)
	if f.failImage[unit] > 0 {
		f.failImage[unit]--
		return nil, errors.New("image model unavailable")
	}
	return []byte(fmt.Sprintf("png-%d", unit)), nil
}

func (f *fakeGenerator) GenerateVideo(ctx context.Context, prompt string, first, last []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	unit := unitFromPrompt(prompt)
	if f.failVideo[unit] > 0 {
		f.failVideo[unit]--
		return nil, errors.New("video model unavailable")
	}
	return []byte(fmt.Sprintf("mp4-%d", unit)), nil
}

func testPlan(n int) *domain.SlidePlan {
	p := &domain.SlidePlan{Version: domain.PlanVersion, Style: "test style"}
	for i := 0; i < n; i++ {
		p.Slides = append(p.Slides, domain.SlideSpec{
			Index:   i,
			Title:   fmt.Sprintf("Slide %d", i),
			Content: fmt.Sprintf("scene %d", i),
		})
	}
	return p
}

const docID = domain.DocumentID("paper-deadbeef")

func renderCfg() config.RenderConfig {
	return config.RenderConfig{Workers: 2, MaxAttempts: 1, UseStyleReference: false}
}

func TestSlidesRenderAll(t *testing.T) {
	st := store.New(t.TempDir())
	gen := &fakeGenerator{}
	r := NewSlideRenderer(st, gen, renderCfg(), observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(4), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, report.Produced)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 4, report.Expected)

	for i := 0; i < 4; i++ {
		data, err := st.Read(store.Key{Doc: docID, Stage: domain.StageSlides, Unit: i})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("png-%d", i), string(data))
	}
}

func TestSlidesFailedUnitDoesNotAbortSiblings(t *testing.T) {
	st := store.New(t.TempDir())
	gen := &fakeGenerator{failImage: map[int]int{2: 10}}
	r := NewSlideRenderer(st, gen, renderCfg(), observability.Nop())
	p := testPlan(5)

	report, err := r.Render(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 4}, report.Produced)
	assert.Equal(t, []int{2}, report.Failed)

	// Rerun fills only the failed unit.
	gen.failImage = nil
	calls := gen.imageCalls
	report, err = r.Render(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 4}, report.Reused)
	assert.Equal(t, []int{2}, report.Produced)
	assert.Empty(t, report.Failed)
	assert.Equal(t, calls+1, gen.imageCalls, "only the failed slide is regenerated")
}

func TestSlidesStaleFingerprintRerenders(t *testing.T) {
	st := store.New(t.TempDir())
	gen := &fakeGenerator{}
	r := NewSlideRenderer(st, gen, renderCfg(), observability.Nop())
	p := testPlan(2)

	_, err := r.Render(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)

	report, err := r.Render(context.Background(), docID, p, "fp-2")
	require.NoError(t, err)
	assert.Empty(t, report.Reused, "artifacts of a superseded plan are never reused")
	assert.Equal(t, []int{0, 1}, report.Produced)
}

func TestSlidesRetriesPerUnit(t *testing.T) {
	st := store.New(t.TempDir())
	gen := &fakeGenerator{failImage: map[int]int{1: 1}}
	cfg := renderCfg()
	cfg.Workers = 1
	cfg.MaxAttempts = 2
	r := NewSlideRenderer(st, gen, cfg, observability.Nop())

	report, err := r.Render(context.Background(), docID, testPlan(2), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, report.Produced, "second attempt recovers the unit")
	assert.Empty(t, report.Failed)
}

func TestSlidesStyleReferenceIsBestEffort(t *testing.T) {
	st := store.New(t.TempDir())
	gen := &fakeGenerator{}
	cfg := renderCfg()
	cfg.Workers = 1
	cfg.UseStyleReference = true
	r := NewSlideRenderer(st, gen, cfg, observability.Nop())

	// Slide 0 committed up front, so slide 1 picks it up as reference.
	require.NoError(t, st.Write(store.Key{Doc: docID, Stage: domain.StageSlides, Unit: 0}, []byte("png-0"), "fp-1"))

	report, err := r.Render(context.Background(), docID, testPlan(2), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Reused)
	assert.Equal(t, []int{1}, report.Produced)
}

func TestSlidesProgressCallback(t *testing.T) {
	st := store.New(t.TempDir())
	r := NewSlideRenderer(st, &fakeGenerator{}, renderCfg(), observability.Nop())

	var mu sync.Mutex
	var seen []int
	r.Progress = func(unit int) {
		mu.Lock()
		seen = append(seen, unit)
		mu.Unlock()
	}

	_, err := r.Render(context.Background(), docID, testPlan(3), "fp-1")
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}
