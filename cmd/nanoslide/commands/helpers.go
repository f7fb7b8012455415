package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/pipeline"
	"github.com/nanoslide/nanoslide/internal/store"
)

// fusedStoreKey addresses the final fused video artifact.
func fusedStoreKey(doc domain.DocumentID) store.Key {
	return store.Key{Doc: doc, Stage: domain.StageFused, Unit: 0}
}

// setup loads configuration, builds the logger and orchestrator, and
// initializes the terminal UI.
func setup() (*config.Config, *pipeline.Orchestrator, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ui.Init(noColor, verbose)
	return cfg, pipeline.New(cfg, newLogger(cfg)), nil
}

func newLogger(cfg *config.Config) *observability.Logger {
	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "nanoslide",
	})
}

// resolveDocument validates the PDF and derives its artifact identity.
func resolveDocument(ctx context.Context, orch *pipeline.Orchestrator, path string) (*domain.Document, error) {
	doc, err := orch.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	ui.Verbose("Document %s (%d pages, sha256 %s...)", doc.ID, doc.Pages, doc.SHA256[:12])
	return doc, nil
}

// printReport renders one stage report line, with failed units called out.
func printReport(r *domain.StageReport) {
	if r == nil {
		return
	}
	line := r.String()
	switch {
	case len(r.Failed) > 0:
		ui.Warning("%s, failed units: %s", line, joinInts(r.Failed))
	case r.Expected == 0:
		ui.Info("%s", line)
	default:
		ui.Success("%s", line)
	}
	if len(r.Missing) > 0 {
		ui.Verbose("  missing inputs: %s", joinInts(r.Missing))
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

// stageError wraps an error with the stage it came from so the exit message
// names where the pipeline stopped.
func stageError(stage domain.Stage, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s stage: %w", stage, err)
}

// failedUnitsError turns the first report carrying failed units into a
// stage-naming error, so commands exit non-zero on partial stage outcomes.
func failedUnitsError(reports ...*domain.StageReport) error {
	for _, r := range reports {
		if r != nil && len(r.Failed) > 0 {
			return stageError(r.Stage, fmt.Errorf("%d of %d units failed: %s", len(r.Failed), r.Expected, joinInts(r.Failed)))
		}
	}
	return nil
}
