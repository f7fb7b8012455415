package fuse

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

const docID = domain.DocumentID("paper-deadbeef")

// fakeConcat joins segment payloads with '|' so order is observable.
type fakeConcat struct {
	calls  int
	inputs []string
}

func (f *fakeConcat) Concat(ctx context.Context, segments []string, output string) error {
	f.calls++
	f.inputs = segments
	var parts []string
	for _, s := range segments {
		data, err := os.ReadFile(s)
		if err != nil {
			return err
		}
		parts = append(parts, string(data))
	}
	return os.WriteFile(output, []byte(strings.Join(parts, "|")), 0o644)
}

func testPlan(n int) *domain.SlidePlan {
	p := &domain.SlidePlan{Version: domain.PlanVersion}
	for i := 0; i < n; i++ {
		p.Slides = append(p.Slides, domain.SlideSpec{Index: i, Content: fmt.Sprintf("scene %d", i)})
	}
	return p
}

func commitSegments(t *testing.T, st *store.Store, fp string, indices ...int) {
	t.Helper()
	for _, i := range indices {
		k := store.Key{Doc: docID, Stage: domain.StageVideo, Unit: i}
		require.NoError(t, st.Write(k, []byte(fmt.Sprintf("mp4-%d", i)), fp))
	}
}

func TestFuseConcatenatesInOrder(t *testing.T) {
	st := store.New(t.TempDir())
	commitSegments(t, st, "fp-1", 0, 1, 2)
	fc := &fakeConcat{}
	f := NewFuser(st, fc, observability.Nop())

	report, err := f.Fuse(context.Background(), docID, testPlan(4), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Produced)
	assert.Len(t, fc.inputs, 3)

	data, err := st.Read(store.Key{Doc: docID, Stage: domain.StageFused})
	require.NoError(t, err)
	assert.Equal(t, "mp4-0|mp4-1|mp4-2", string(data))
}

func TestFuseGapFailsAndNamesMissing(t *testing.T) {
	st := store.New(t.TempDir())
	commitSegments(t, st, "fp-1", 0, 2)
	fc := &fakeConcat{}
	f := NewFuser(st, fc, observability.Nop())

	report, err := f.Fuse(context.Background(), docID, testPlan(4), "fp-1")
	require.Error(t, err)
	var inc *domain.IncompleteSegmentsError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, 3, inc.Expected)
	assert.Equal(t, []int{1}, inc.Missing)
	assert.Equal(t, []int{0}, report.Failed)
	assert.Equal(t, 0, fc.calls, "no partial fusion")
	assert.False(t, st.Exists(store.Key{Doc: docID, Stage: domain.StageFused}))
}

func TestFuseStaleSegmentCountsAsMissing(t *testing.T) {
	st := store.New(t.TempDir())
	commitSegments(t, st, "fp-old", 0, 1)
	f := NewFuser(st, &fakeConcat{}, observability.Nop())

	_, err := f.Fuse(context.Background(), docID, testPlan(3), "fp-new")
	require.Error(t, err)
	var inc *domain.IncompleteSegmentsError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []int{0, 1}, inc.Missing)
}

func TestFuseIdempotent(t *testing.T) {
	st := store.New(t.TempDir())
	commitSegments(t, st, "fp-1", 0, 1)
	fc := &fakeConcat{}
	f := NewFuser(st, fc, observability.Nop())
	p := testPlan(3)

	_, err := f.Fuse(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)

	report, err := f.Fuse(context.Background(), docID, p, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, report.Reused)
	assert.Equal(t, 1, fc.calls, "second fuse must not run the concatenator")
}

func TestFuseSingleSlideNoOp(t *testing.T) {
	st := store.New(t.TempDir())
	fc := &fakeConcat{}
	f := NewFuser(st, fc, observability.Nop())

	report, err := f.Fuse(context.Background(), docID, testPlan(1), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expected)
	assert.Equal(t, 0, fc.calls)
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	list, err := writeConcatList(dir, []string{"/tmp/it's.mp4", "/tmp/b.mp4"})
	require.NoError(t, err)
	defer os.Remove(list)

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Contains(t, string(data), `file '/tmp/it'\''s.mp4'`)
	assert.Contains(t, string(data), "file '/tmp/b.mp4'\n")
}

func TestFFmpegMissingBinary(t *testing.T) {
	dir := t.TempDir()
	seg := dir + "/seg.mp4"
	require.NoError(t, os.WriteFile(seg, []byte("x"), 0o644))

	ff := NewFFmpeg(dir+"/no-such-ffmpeg", observability.Nop())
	err := ff.Concat(context.Background(), []string{seg}, dir+"/out.mp4")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
