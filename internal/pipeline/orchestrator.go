// Package pipeline wires the stages together and drives them per document:
// plan, slides, presentation, video, fused. Every stage checks the artifact
// store before doing work, so any stage can be rerun at any time.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/nanoslide/nanoslide/internal/config"
	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/fuse"
	"github.com/nanoslide/nanoslide/internal/llm"
	"github.com/nanoslide/nanoslide/internal/monitoring"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/pdf"
	"github.com/nanoslide/nanoslide/internal/plan"
	"github.com/nanoslide/nanoslide/internal/render"
	"github.com/nanoslide/nanoslide/internal/store"
)

// Orchestrator owns the stage executors for one configured output tree.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	inspector domain.Inspector
	logger    *observability.Logger

	// gen is nil until a stage that talks to the collaborator runs.
	gen      domain.Generator
	progress func(stage domain.Stage, unit int)

	compiler  *plan.Compiler
	slides    *render.SlideRenderer
	assembler *render.Assembler
	video     *render.VideoRenderer
	fuser     *fuse.Fuser
}

// New creates an orchestrator. The generative client is built lazily so
// stages that only touch local artifacts never need an API key.
func New(cfg *config.Config, logger *observability.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     store.New(cfg.OutputDir),
		inspector: pdf.NewInspector(logger),
		logger:    logger,
	}
	o.fuser = fuse.NewFuser(o.store, fuse.NewFFmpeg(cfg.Fusion.FFmpegPath, logger), logger)
	return o
}

// NewWithGenerator creates an orchestrator with an explicit generator,
// bypassing the API key requirement.
func NewWithGenerator(cfg *config.Config, gen domain.Generator, logger *observability.Logger) *Orchestrator {
	o := New(cfg, logger)
	o.gen = gen
	o.buildGenerative()
	return o
}

// Store exposes the artifact store for read-only inspection.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// UseConcatenator swaps the fusion backend.
func (o *Orchestrator) UseConcatenator(c fuse.Concatenator) {
	o.fuser = fuse.NewFuser(o.store, c, o.logger)
}

// OnProgress installs a per-unit progress callback for the rendering stages.
// Must be called before any generative stage runs.
func (o *Orchestrator) OnProgress(fn func(stage domain.Stage, unit int)) {
	o.progress = fn
	if o.slides != nil {
		o.slides.Progress = func(unit int) { fn(domain.StageSlides, unit) }
	}
	if o.video != nil {
		o.video.Progress = func(unit int) { fn(domain.StageVideo, unit) }
	}
}

// requireGenerator builds the generative stack on first use. Absence of the
// API key is surfaced here, by the first stage that needs it, never at
// startup.
func (o *Orchestrator) requireGenerator() error {
	if o.gen != nil {
		return nil
	}

	key := o.cfg.APIKey()
	if key == "" {
		return domain.ConfigError(
			"generative API key not set; export "+o.cfg.Generation.APIKeyEnv, nil)
	}

	o.gen = llm.NewClient(key, llm.Options{
		BaseURL:      o.cfg.Generation.BaseURL,
		PlanModel:    o.cfg.Generation.PlanModel,
		ImageModel:   o.cfg.Generation.ImageModel,
		VideoModel:   o.cfg.Generation.VideoModel,
		Timeout:      o.cfg.Generation.RequestTimeout,
		PollInterval: o.cfg.Generation.VideoPollInterval,
		VideoTimeout: o.cfg.Generation.VideoTimeout,
		Logger:       o.logger,
	})
	o.buildGenerative()
	return nil
}

func (o *Orchestrator) buildGenerative() {
	o.compiler = plan.NewCompiler(o.store, o.gen, o.logger)
	o.slides = render.NewSlideRenderer(o.store, o.gen, o.cfg.Render, o.logger)
	o.assembler = render.NewAssembler(o.store, render.NewPPTXEncoder(), o.logger)
	o.video = render.NewVideoRenderer(o.store, o.gen, o.cfg.Render, o.logger)
	if o.progress != nil {
		o.OnProgress(o.progress)
	}
}

// Resolve validates the source PDF and derives its document identity.
func (o *Orchestrator) Resolve(ctx context.Context, path string) (*domain.Document, error) {
	return o.inspector.Inspect(ctx, path)
}

// PlanResult bundles the outcome of the plan stage.
type PlanResult struct {
	Plan        *domain.SlidePlan
	Fingerprint string
	Report      *domain.StageReport
}

// Plan compiles (or reloads) the document's slide plan.
func (o *Orchestrator) Plan(ctx context.Context, doc *domain.Document, prompt string, force bool) (*PlanResult, error) {
	if err := o.requireGenerator(); err != nil {
		// A committed plan is still readable without a generator.
		if !force {
			if p, fp, cerr := o.committedPlan(doc.ID); cerr == nil {
				report := domain.NewStageReport(domain.StagePlan, 1)
				report.Reused = []int{0}
				return &PlanResult{Plan: p, Fingerprint: fp, Report: report}, nil
			}
		}
		return nil, err
	}

	start := time.Now()
	report := domain.NewStageReport(domain.StagePlan, 1)

	before := o.store.Exists(store.Key{Doc: doc.ID, Stage: domain.StagePlan})
	p, fp, err := o.compiler.Compile(ctx, doc, prompt, force)
	if err != nil {
		report.Failed = []int{0}
		report.Duration = time.Since(start)
		return &PlanResult{Report: report}, err
	}

	if before && !force {
		report.Reused = []int{0}
	} else {
		report.Produced = []int{0}
	}
	report.Duration = time.Since(start)
	return &PlanResult{Plan: p, Fingerprint: fp, Report: report}, nil
}

// committedPlan loads the plan without constructing the generative stack.
func (o *Orchestrator) committedPlan(doc domain.DocumentID) (*domain.SlidePlan, string, error) {
	c := plan.NewCompiler(o.store, nil, o.logger)
	return c.Committed(doc)
}

// loadPlan fetches the committed plan that downstream stages render from.
func (o *Orchestrator) loadPlan(doc domain.DocumentID) (*domain.SlidePlan, string, error) {
	p, fp, err := o.committedPlan(doc)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", domain.PlanError("no committed plan for document; run the plan stage first", err)
	}
	return p, fp, err
}

// RenderSlides runs the slide stage and then assembles the presentation from
// whatever slides are durably present.
func (o *Orchestrator) RenderSlides(ctx context.Context, doc *domain.Document) ([]*domain.StageReport, error) {
	p, fp, err := o.loadPlan(doc.ID)
	if err != nil {
		return nil, err
	}
	if err := o.requireGenerator(); err != nil {
		return nil, err
	}

	slideReport, err := o.slides.Render(ctx, doc.ID, p, fp)
	if err != nil {
		return nil, err
	}

	deckReport, err := o.assembler.Assemble(ctx, doc.ID, p, fp)
	if err != nil {
		// The deck is derived output; slide artifacts are already durable.
		o.logger.Error().Err(err).Str("document", string(doc.ID)).Msg("Presentation assembly failed")
		if deckReport == nil {
			deckReport = domain.NewStageReport(domain.StagePresentation, 1)
			deckReport.Failed = []int{0}
		}
	}
	return []*domain.StageReport{slideReport, deckReport}, nil
}

// RenderVideo runs the transition segment stage.
func (o *Orchestrator) RenderVideo(ctx context.Context, doc *domain.Document) (*domain.StageReport, error) {
	p, fp, err := o.loadPlan(doc.ID)
	if err != nil {
		return nil, err
	}
	if err := o.requireGenerator(); err != nil {
		return nil, err
	}
	return o.video.Render(ctx, doc.ID, p, fp)
}

// Fuse concatenates the complete segment set into the final video. Fusion
// needs no generator.
func (o *Orchestrator) Fuse(ctx context.Context, doc *domain.Document) (*domain.StageReport, error) {
	p, fp, err := o.loadPlan(doc.ID)
	if err != nil {
		return nil, err
	}
	return o.fuser.Fuse(ctx, doc.ID, p, fp)
}

// RunResult is the outcome of a composite pipeline run.
type RunResult struct {
	RunID   string
	Reports []*domain.StageReport
	Status  monitoring.RunStatus
	Err     error
}

// Run executes the full pipeline: plan, slides, presentation, video, fused.
// A stage that completes zero of its expected units stops the run; partial
// stages proceed so later reruns can fill the gaps. Every stage outcome is
// recorded in the document's lineage database.
func (o *Orchestrator) Run(ctx context.Context, doc *domain.Document, prompt string, force bool) (*RunResult, error) {
	planRes, err := o.Plan(ctx, doc, prompt, force)
	if err != nil {
		return nil, err
	}

	lineage := o.openLineage(doc.ID)
	if lineage != nil {
		defer lineage.Close()
	}

	result := &RunResult{Status: monitoring.RunStatusCompleted}
	if lineage != nil {
		if id, lerr := lineage.BeginRun(ctx, doc.ID, planRes.Fingerprint); lerr == nil {
			result.RunID = id
		} else {
			o.logger.Warn().Err(lerr).Msg("Lineage recording unavailable")
			lineage = nil
		}
	}

	record := func(r *domain.StageReport) {
		result.Reports = append(result.Reports, r)
		if lineage != nil {
			if lerr := lineage.RecordStage(ctx, result.RunID, r); lerr != nil {
				o.logger.Warn().Err(lerr).Str("stage", string(r.Stage)).Msg("Failed to record stage lineage")
			}
		}
		if len(r.Failed) > 0 {
			result.Status = monitoring.RunStatusPartial
		}
	}

	finish := func(status monitoring.RunStatus) {
		result.Status = status
		if lineage != nil {
			if lerr := lineage.CompleteRun(ctx, result.RunID, status); lerr != nil {
				o.logger.Warn().Err(lerr).Msg("Failed to record run completion")
			}
		}
	}

	record(planRes.Report)

	reports, err := o.RenderSlides(ctx, doc)
	if err != nil {
		finish(monitoring.RunStatusFailed)
		return result, err
	}
	slideReport := reports[0]
	record(slideReport)
	record(reports[1])
	if slideReport.ShortCircuits() {
		finish(monitoring.RunStatusFailed)
		result.Err = domain.RenderError("no slides completed; stopping before video", nil)
		return result, result.Err
	}

	videoReport, err := o.RenderVideo(ctx, doc)
	if err != nil {
		finish(monitoring.RunStatusFailed)
		return result, err
	}
	record(videoReport)
	if videoReport.ShortCircuits() {
		finish(monitoring.RunStatusFailed)
		result.Err = domain.RenderError("no segments completed; stopping before fusion", nil)
		return result, result.Err
	}

	fuseReport, err := o.Fuse(ctx, doc)
	if fuseReport != nil {
		record(fuseReport)
	}
	if err != nil {
		var incomplete *domain.IncompleteSegmentsError
		if errors.As(err, &incomplete) {
			finish(monitoring.RunStatusPartial)
			result.Err = err
			return result, err
		}
		finish(monitoring.RunStatusFailed)
		return result, err
	}

	finish(result.Status)
	return result, nil
}

// openLineage opens the per-document lineage database, or returns nil when
// lineage is disabled or unavailable.
func (o *Orchestrator) openLineage(doc domain.DocumentID) *monitoring.Lineage {
	if !o.cfg.Lineage.Enabled {
		return nil
	}
	root := o.store.DocumentRoot(doc)
	if err := os.MkdirAll(root, 0755); err != nil {
		o.logger.Warn().Err(err).Str("document", string(doc)).Msg("Lineage directory unavailable")
		return nil
	}
	path := filepath.Join(root, o.cfg.Lineage.FileName)
	l, err := monitoring.OpenLineage(path, o.logger)
	if err != nil {
		o.logger.Warn().Err(err).Str("document", string(doc)).Msg("Lineage database unavailable")
		return nil
	}
	return l
}

// Lineage opens the document's lineage database for reading.
func (o *Orchestrator) Lineage(doc domain.DocumentID) (*monitoring.Lineage, error) {
	path := filepath.Join(o.store.DocumentRoot(doc), o.cfg.Lineage.FileName)
	return monitoring.OpenLineage(path, o.logger)
}
