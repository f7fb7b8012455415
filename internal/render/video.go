package render

import (
	"context"
	"sync"
	"time"

	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/plan"
	"github.com/nanoslide/nanoslide/internal/store"
)

// VideoRenderer produces one transition clip per consecutive slide pair.
// Segment i interpolates between slides i and i+1 and is stored as unit i.
type VideoRenderer struct {
	store  *store.Store
	gen    domain.Generator
	cfg    config.RenderConfig
	logger *observability.Logger

	// Progress, when set, is called once per segment as it resolves.
	Progress func(unit int)
}

// NewVideoRenderer creates a transition video renderer.
func NewVideoRenderer(st *store.Store, gen domain.Generator, cfg config.RenderConfig, logger *observability.Logger) *VideoRenderer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &VideoRenderer{
		store:  st,
		gen:    gen,
		cfg:    cfg,
		logger: logger.WithStage(string(domain.StageVideo)),
	}
}

func segmentKey(doc domain.DocumentID, unit int) store.Key {
	return store.Key{Doc: doc, Stage: domain.StageVideo, Unit: unit}
}

// Render produces every transition segment the plan implies. A segment whose
// endpoint slides are not committed for the current plan fails with a
// dependency error naming the missing slides; other segments proceed.
func (r *VideoRenderer) Render(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, fingerprint string) (*domain.StageReport, error) {
	start := time.Now()
	segments := p.SegmentCount()
	report := domain.NewStageReport(domain.StageVideo, segments)
	if segments == 0 {
		report.Duration = time.Since(start)
		r.logger.Info().Str("document", string(doc)).Msg("Single-slide plan, no transitions to render")
		return report, nil
	}

	type outcome struct {
		unit     int
		reused   bool
		produced bool
	}

	workChan := make(chan int, segments)
	outcomes := make([]outcome, 0, segments)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < segments; i++ {
		workChan <- i
	}
	close(workChan)

	workers := r.cfg.Workers
	if workers > segments {
		workers = segments
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range workChan {
				o := outcome{unit: unit}
				if r.store.ExistsFor(segmentKey(doc, unit), fingerprint) {
					o.reused = true
				} else if err := r.renderOne(ctx, doc, p, unit, fingerprint); err == nil {
					o.produced = true
				} else {
					r.logger.Error().Err(err).Int("segment", unit).Msg("Segment failed")
				}

				mu.Lock()
				outcomes = append(outcomes, o)
				mu.Unlock()

				if r.Progress != nil {
					r.Progress(unit)
				}
			}
		}()
	}
	wg.Wait()

	for _, o := range outcomes {
		switch {
		case o.reused:
			report.Reused = append(report.Reused, o.unit)
		case o.produced:
			report.Produced = append(report.Produced, o.unit)
		default:
			report.Failed = append(report.Failed, o.unit)
		}
	}
	sortReport(report)
	report.Duration = time.Since(start)

	r.logger.Info().
		Str("document", string(doc)).
		Int("reused", len(report.Reused)).
		Int("produced", len(report.Produced)).
		Int("failed", len(report.Failed)).
		Msg("Video stage finished")
	return report, nil
}

// renderOne generates segment unit with bounded retries. Both endpoint
// slides must already be committed for the current plan.
func (r *VideoRenderer) renderOne(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, unit int, fingerprint string) error {
	var missing []int
	for _, idx := range []int{unit, unit + 1} {
		if !r.store.ExistsFor(slideKey(doc, idx), fingerprint) {
			missing = append(missing, idx)
		}
	}
	if len(missing) > 0 {
		return &domain.MissingDependencyError{Segment: unit, MissingSlides: missing}
	}

	first, err := r.store.Read(slideKey(doc, unit))
	if err != nil {
		return err
	}
	last, err := r.store.Read(slideKey(doc, unit+1))
	if err != nil {
		return err
	}

	prompt := plan.BuildTransitionPrompt(p, unit)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := r.gen.GenerateVideo(ctx, prompt, first, last)
		if err == nil {
			return r.store.Write(segmentKey(doc, unit), data, fingerprint)
		}
		lastErr = err
		r.logger.Warn().
			Err(err).
			Int("segment", unit).
			Int("attempt", attempt).
			Msg("Segment attempt failed")
	}
	return domain.RenderError("video generation exhausted attempts", lastErr)
}
