package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
)

func openTestLineage(t *testing.T) *Lineage {
	t.Helper()
	l, err := OpenLineage(filepath.Join(t.TempDir(), "lineage.db"), observability.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLineageRunLifecycle(t *testing.T) {
	l := openTestLineage(t)
	ctx := context.Background()

	runID, err := l.BeginRun(ctx, "paper-deadbeef", "fp-1")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	report := domain.NewStageReport(domain.StageSlides, 3)
	report.Reused = []int{0}
	report.Produced = []int{1}
	report.Failed = []int{2}
	report.Duration = 1500 * time.Millisecond
	require.NoError(t, l.RecordStage(ctx, runID, report))

	require.NoError(t, l.CompleteRun(ctx, runID, RunStatusPartial))

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "paper-deadbeef", runs[0].Document)
	assert.Equal(t, "fp-1", runs[0].PlanFingerprint)
	assert.Equal(t, RunStatusPartial, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)

	stages, err := l.StageRuns(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "slides", stages[0].Stage)
	assert.Equal(t, 3, stages[0].Expected)
	assert.Equal(t, []int{0}, stages[0].Reused)
	assert.Equal(t, []int{1}, stages[0].Produced)
	assert.Equal(t, []int{2}, stages[0].Failed)
	assert.Equal(t, int64(1500), stages[0].DurationMS)
}

func TestLineageEmptyUnitListsRoundTrip(t *testing.T) {
	l := openTestLineage(t)
	ctx := context.Background()

	runID, err := l.BeginRun(ctx, "doc-1", "fp")
	require.NoError(t, err)
	require.NoError(t, l.RecordStage(ctx, runID, domain.NewStageReport(domain.StageFused, 0)))

	stages, err := l.StageRuns(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Empty(t, stages[0].Reused)
	assert.Empty(t, stages[0].Produced)
}

func TestLineageRunsOrderedMostRecentFirst(t *testing.T) {
	l := openTestLineage(t)
	ctx := context.Background()

	_, err := l.BeginRun(ctx, "doc-1", "fp-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := l.BeginRun(ctx, "doc-1", "fp-2")
	require.NoError(t, err)

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
}

func TestLineageReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lineage.db")

	l, err := OpenLineage(path, observability.Nop())
	require.NoError(t, err)
	_, err = l.BeginRun(context.Background(), "doc-1", "fp")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := OpenLineage(path, observability.Nop())
	require.NoError(t, err)
	defer l2.Close()
	runs, err := l2.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
