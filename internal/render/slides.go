// Package render executes the per-unit generation stages: slide images,
// the assembled presentation, and transition video segments. Units are
// independent; one failed unit never aborts its siblings.
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

// SlideRenderer renders one PNG per plan slide through the image model.
type SlideRenderer struct {
	store  *store.Store
	gen    domain.Generator
	cfg    config.RenderConfig
	logger *observability.Logger

	// Progress, when set, is called once per unit as it resolves.
	Progress func(unit int)
}

// NewSlideRenderer creates a slide renderer.
func NewSlideRenderer(st *store.Store, gen domain.Generator, cfg config.RenderConfig, logger *observability.Logger) *SlideRenderer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &SlideRenderer{
		store:  st,
		gen:    gen,
		cfg:    cfg,
		logger: logger.WithStage(string(domain.StageSlides)),
	}
}

func slideKey(doc domain.DocumentID, unit int) store.Key {
	return store.Key{Doc: doc, Stage: domain.StageSlides, Unit: unit}
}

// Render produces every slide image the plan names, reusing artifacts whose
// completion markers carry the current plan fingerprint. Units run on a
// bounded worker pool and fail independently; the error return is reserved
// for setup problems, not unit failures.
func (r *SlideRenderer) Render(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, fingerprint string) (*domain.StageReport, error) {
	start := time.Now()
	report := domain.NewStageReport(domain.StageSlides, p.SlideCount())

	type outcome struct {
		unit     int
		reused   bool
		produced bool
	}

	type workItem struct {
		slide domain.SlideSpec
	}

	workChan := make(chan workItem, p.SlideCount())
	outcomes := make([]outcome, 0, p.SlideCount())
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, s := range p.Slides {
		workChan <- workItem{slide: s}
	}
	close(workChan)

	workers := r.cfg.Workers
	if workers > p.SlideCount() {
		workers = p.SlideCount()
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				o := outcome{unit: item.slide.Index}
				if r.store.ExistsFor(slideKey(doc, item.slide.Index), fingerprint) {
					o.reused = true
				} else if err := r.renderOne(ctx, doc, p, item.slide, fingerprint); err == nil {
					o.produced = true
				} else {
					r.logger.Error().Err(err).Int("slide", item.slide.Index).Msg("Slide failed")
				}

				mu.Lock()
				outcomes = append(outcomes, o)
				mu.Unlock()

				if r.Progress != nil {
					r.Progress(item.slide.Index)
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
		Msg("Slide stage finished")
	return report, nil
}

// renderOne generates a single slide with bounded retries. The previous
// slide, when already on disk for the current plan, rides along as a style
// reference; its absence is never an error.
func (r *SlideRenderer) renderOne(ctx context.Context, doc domain.DocumentID, p *domain.SlidePlan, slide domain.SlideSpec, fingerprint string) error {
	var reference []byte
	if r.cfg.UseStyleReference && slide.Index > 0 {
		prev := slideKey(doc, slide.Index-1)
		if r.store.ExistsFor(prev, fingerprint) {
			if data, err := r.store.Read(prev); err == nil {
				reference = data
			}
		}
	}

	prompt := plan.BuildSlidePrompt(slide, p.Style, reference != nil)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := r.gen.GenerateImage(ctx, prompt, reference)
		if err == nil {
			return r.store.Write(slideKey(doc, slide.Index), data, fingerprint)
		}
		lastErr = err
		r.logger.Warn().
			Err(err).
			Int("slide", slide.Index).
			Int("attempt", attempt).
			Msg("Slide attempt failed")
	}
	return domain.RenderError("slide generation exhausted attempts", lastErr)
}
