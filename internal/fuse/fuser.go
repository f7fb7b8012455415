package fuse

import (
	"context"
	"time"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/store"
)

// Fuser produces the final fused video from the complete set of transition
// segments. Fusion is all-or-nothing: a single missing segment fails the
// stage with an error naming every gap.
type Fuser struct {
	store  *store.Store
	concat Concatenator
	logger *observability.Logger
}

// NewFuser creates a fuser.
func NewFuser(st *store.Store, concat Concatenator, logger *observability.Logger) *Fuser {
	return &Fuser{
		store:  st,
		concat: concat,
		logger: logger.WithStage(string(domain.StageFused)),
	}
}

func fusedKey(doc domain.DocumentID) store.Key {
	return store.Key{Doc: doc, Stage: domain.StageFused, Unit: 0}
}

// Fuse concatenates the plan's segments in order. A plan with fewer than two
// slides has no segments and nothing to fuse; the stage reports zero expected
// units and succeeds.
func (f *Fuser) Fuse(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, fingerprint string) (*domain.StageReport, error) {
	start := time.Now()
	segments := p.SegmentCount()
	report := domain.NewStageReport(domain.StageFused, 1)
	if segments == 0 {
		report.Expected = 0
		report.Duration = time.Since(start)
		f.logger.Info().Str("document", string(doc)).Msg("No segments to fuse")
		return report, nil
	}

	key := fusedKey(doc)
	if f.store.ExistsFor(key, fingerprint) {
		report.Reused = append(report.Reused, 0)
		report.Duration = time.Since(start)
		f.logger.Info().Str("document", string(doc)).Msg("Reusing fused video")
		return report, nil
	}

	var missing []int
	inputs := make([]string, 0, segments)
	for i := 0; i < segments; i++ {
		k := store.Key{Doc: doc, Stage: domain.StageVideo, Unit: i}
		if !f.store.ExistsFor(k, fingerprint) {
			missing = append(missing, i)
			continue
		}
		inputs = append(inputs, f.store.Path(k))
	}
	if len(missing) > 0 {
		report.Failed = append(report.Failed, 0)
		report.Missing = missing
		report.Duration = time.Since(start)
		return report, &domain.IncompleteSegmentsError{Expected: segments, Missing: missing}
	}

	staging := f.store.StagingPath(key)
	if err := f.concat.Concat(ctx, inputs, staging); err != nil {
		report.Failed = append(report.Failed, 0)
		report.Duration = time.Since(start)
		return report, err
	}

	if err := f.store.Publish(key, staging, fingerprint); err != nil {
		report.Failed = append(report.Failed, 0)
		report.Duration = time.Since(start)
		return report, err
	}

	report.Produced = append(report.Produced, 0)
	report.Duration = time.Since(start)
	f.logger.Info().
		Str("document", string(doc)).
		Int("segments", segments).
		Msg("Fused video written")
	return report, nil
}
