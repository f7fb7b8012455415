package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

type fakeGenerator struct {
	planText  string
	planErr   error
	planCalls int
}

func (f *fakeGenerator) GeneratePlan(ctx context.Context, pdf []byte, prompt string) (string, error) {
	f.planCalls++
	return f.planText, f.planErr
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGenerator) GenerateVideo(ctx context.Context, prompt string, first, last []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}

const validPlanJSON = `{
  "version": 1,
  "style": "watercolor storybook",
  "slides": [
    {"index": 1, "title": "Two", "content": "second scene"},
    {"index": 0, "title": "One", "content": "first scene"},
    {"index": 2, "title": "Three", "content": "third scene"}
  ],
  "transitions": [
    {"index": 0, "prompt": "the page turns"}
  ]
}`

func testDoc(t *testing.T) *domain.Document {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))
	return &domain.Document{ID: "paper-deadbeef", Path: path, SHA256: "deadbeef", Pages: 3}
}

func newTestCompiler(t *testing.T, gen *fakeGenerator) (*Compiler, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	return NewCompiler(st, gen, observability.Nop()), st
}

func TestCompileCommitsNormalizedPlan(t *testing.T) {
	gen := &fakeGenerator{planText: validPlanJSON}
	c, st := newTestCompiler(t, gen)
	doc := testDoc(t)

	p, fp, err := c.Compile(context.Background(), doc, "storybook style", false)
	require.NoError(t, err)
	require.Len(t, p.Slides, 3)
	assert.Equal(t, "One", p.Slides[0].Title, "slides sorted by index")
	assert.Len(t, fp, 64)

	// Committed bytes hash to the reported fingerprint.
	data, err := st.Read(store.Key{Doc: doc.ID, Stage: domain.StagePlan})
	require.NoError(t, err)
	_, fp2, err := Canonicalize(p)
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)
	assert.Contains(t, string(data), "watercolor storybook")
}

func TestCompileReusesCommittedPlan(t *testing.T) {
	gen := &fakeGenerator{planText: validPlanJSON}
	c, _ := newTestCompiler(t, gen)
	doc := testDoc(t)

	_, fp1, err := c.Compile(context.Background(), doc, "p", false)
	require.NoError(t, err)

	p2, fp2, err := c.Compile(context.Background(), doc, "p", false)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.planCalls, "second compile must not call the model")
	assert.Equal(t, fp1, fp2)
	assert.Equal(t, 3, p2.SlideCount())
}

func TestCompileForceRegenerates(t *testing.T) {
	gen := &fakeGenerator{planText: validPlanJSON}
	c, _ := newTestCompiler(t, gen)
	doc := testDoc(t)

	_, _, err := c.Compile(context.Background(), doc, "p", false)
	require.NoError(t, err)

	gen.planText = `{"version":1,"slides":[{"index":0,"title":"New","content":"different scene"}]}`
	p, fp, err := c.Compile(context.Background(), doc, "p", true)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.planCalls)
	assert.Equal(t, 1, p.SlideCount())

	// The regenerated plan replaces the committed one.
	p2, fp2, err := c.Committed(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)
	assert.Equal(t, "New", p2.Slides[0].Title)
}

func TestCompileInvalidOutputCommitsNothing(t *testing.T) {
	gen := &fakeGenerator{planText: "I had some trouble with that document, sorry."}
	c, st := newTestCompiler(t, gen)
	doc := testDoc(t)

	_, _, err := c.Compile(context.Background(), doc, "p", false)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypePlan))
	assert.False(t, st.Exists(store.Key{Doc: doc.ID, Stage: domain.StagePlan}))
}

func TestCompileGapInIndicesRejected(t *testing.T) {
	gen := &fakeGenerator{planText: `{"version":1,"slides":[
		{"index":0,"content":"a"},{"index":2,"content":"c"}]}`}
	c, st := newTestCompiler(t, gen)
	doc := testDoc(t)

	_, _, err := c.Compile(context.Background(), doc, "p", false)
	require.Error(t, err)
	assert.False(t, st.Exists(store.Key{Doc: doc.ID, Stage: domain.StagePlan}))
}

func TestParseStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validPlanJSON + "\n```"
	p, err := Parse(fenced)
	require.NoError(t, err)
	assert.Equal(t, 3, p.SlideCount())
}

func TestParseRecoversFromLeadingProse(t *testing.T) {
	p, err := Parse("Here is your plan:\n" + validPlanJSON)
	require.NoError(t, err)
	assert.Equal(t, 3, p.SlideCount())
}

func TestCommittedMissingPlan(t *testing.T) {
	c, _ := newTestCompiler(t, &fakeGenerator{})
	_, _, err := c.Committed("nope-00000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildPlanPromptEmbedsUserPromptVerbatim(t *testing.T) {
	weird := `{"not":"validated"} <<>> 蜡笔小新`
	prompt := BuildPlanPrompt(weird)
	assert.Contains(t, prompt, weird)
	assert.Contains(t, prompt, `"version": 1`)
}

func TestBuildSlidePrompt(t *testing.T) {
	slide := domain.SlideSpec{Index: 1, Title: "Ocean", Content: "waves crash on the shore"}

	p := BuildSlidePrompt(slide, "ukiyo-e woodblock", false)
	assert.Contains(t, p, "ukiyo-e woodblock")
	assert.Contains(t, p, "waves crash")
	assert.NotContains(t, p, "reference image")

	p = BuildSlidePrompt(slide, "ukiyo-e woodblock", true)
	assert.Contains(t, p, "reference image")

	slide.Style = "per-slide override"
	p = BuildSlidePrompt(slide, "ukiyo-e woodblock", false)
	assert.Contains(t, p, "per-slide override")
	assert.NotContains(t, p, "ukiyo-e woodblock")
}

func TestBuildTransitionPromptPrefersAuthored(t *testing.T) {
	p := &domain.SlidePlan{
		Version: domain.PlanVersion,
		Slides: []domain.SlideSpec{
			{Index: 0, Content: "a quiet library"},
			{Index: 1, Content: "a roaring storm"},
		},
		Transitions: []domain.TransitionSpec{{Index: 0, Prompt: "books fly into the wind"}},
	}

	got := BuildTransitionPrompt(p, 0)
	assert.Contains(t, got, "books fly into the wind")
	assert.NotContains(t, got, "STARTING SCENE")
}

func TestBuildTransitionPromptFallsBackToSlides(t *testing.T) {
	p := &domain.SlidePlan{
		Version: domain.PlanVersion,
		Slides: []domain.SlideSpec{
			{Index: 0, Content: "a quiet library"},
			{Index: 1, Content: "a roaring storm"},
		},
	}

	got := BuildTransitionPrompt(p, 0)
	assert.Contains(t, got, "a quiet library")
	assert.Contains(t, got, "a roaring storm")
}
