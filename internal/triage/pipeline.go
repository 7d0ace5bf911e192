package triage

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/gradcam"
	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// Stage is a step of the per-request state machine.
type Stage int

const (
	StageStart Stage = iota
	StagePreprocessed
	StageRouted
	StageAggregated
	StageSelected
	StageExplained
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StagePreprocessed:
		return "preprocessed"
	case StageRouted:
		return "routed"
	case StageAggregated:
		return "aggregated"
	case StageSelected:
		return "selected"
	case StageExplained:
		return "explained"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// VisualizationStore persists a rendered heatmap and returns a reference to it.
type VisualizationStore interface {
	Store(ctx context.Context, img image.Image) (string, error)
}

// Recorder observes pipeline progress. Stage is the state being entered.
type Recorder interface {
	ObserveStage(stage Stage, elapsed time.Duration, err error)
	ObserveResult(res ProcessResult)
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithStore(store VisualizationStore) Option {
	return func(p *Pipeline) { p.store = store }
}

func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithMaxPixels bounds the decoded size of an input image. Zero keeps
// DefaultMaxPixels.
func WithMaxPixels(n int64) Option {
	return func(p *Pipeline) { p.maxPixels = n }
}

// Pipeline runs one request from raw image to ProcessResult. It holds no
// per-request state and may be shared between goroutines.
type Pipeline struct {
	registry   *Registry
	router     *Router
	aggregator *Aggregator
	engine     *gradcam.Engine
	store      VisualizationStore
	recorder   Recorder
	logger     *zap.Logger
	maxPixels  int64
}

func NewPipeline(registry *Registry, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	p := &Pipeline{registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	scan, err := registry.Get(ScanTypeClassifier)
	if err != nil {
		return nil, err
	}
	p.router = NewRouter(scan, p.logger)
	p.aggregator = NewAggregator(registry, p.logger)
	p.engine = gradcam.NewEngine(p.logger)
	return p, nil
}

// ProcessFile opens path and runs Process on it.
func (p *Pipeline) ProcessFile(ctx context.Context, path, requested string) ProcessResult {
	f, err := os.Open(path)
	if err != nil {
		p.logger.Warn("open image failed", zap.String("path", path), zap.Error(err))
		res := Degraded(ScanUnknown)
		p.observeResult(res)
		return res
	}
	defer f.Close()
	return p.Process(ctx, f, requested)
}

// Process classifies one image. It never fails: problems are reported via
// the degraded sentinel values of the result.
func (p *Pipeline) Process(ctx context.Context, r io.Reader, requested string) (res ProcessResult) {
	if requested == "" {
		requested = RequestDefault
	}
	log := p.logger.With(zap.String("requested", requested))

	stage := StageStart
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panic", zap.Stringer("stage", stage), zap.Any("panic", rec))
			res = Degraded(ScanUnknown)
		}
		p.observeResult(res)
	}()

	// START -> PREPROCESSED
	start := time.Now()
	original, err := DecodeImage(r, p.maxPixels)
	var input *tensor.Tensor
	if err == nil {
		input, err = Preprocess(original)
	}
	p.observeStage(StagePreprocessed, start, err)
	if err != nil {
		log.Warn("preprocessing failed", zap.Stringer("stage", stage), zap.Error(err))
		return Degraded(ScanUnknown)
	}
	stage = StagePreprocessed

	// PREPROCESSED -> ROUTED
	start = time.Now()
	scan, err := p.router.Detect(ctx, input)
	p.observeStage(StageRouted, start, err)
	if scan == ScanUnknown {
		log.Warn("scan type unknown", zap.Stringer("stage", stage), zap.Error(err))
		return Degraded(ScanUnknown)
	}
	stage = StageRouted
	log = log.With(zap.String("scan_type", string(scan)))
	log.Debug("scan routed")

	// ROUTED -> AGGREGATED
	start = time.Now()
	set, err := p.aggregator.Aggregate(ctx, scan, input)
	p.observeStage(StageAggregated, start, err)
	if len(set) == 0 {
		log.Warn("aggregation failed", zap.Stringer("stage", stage), zap.Error(err))
		return Degraded(scan)
	}
	stage = StageAggregated

	// AGGREGATED -> SELECTED
	sel, ok := Select(scan, set, requested)
	if !ok {
		log.Warn("no selectable prediction", zap.Stringer("stage", stage))
		return Degraded(scan)
	}
	stage = StageSelected
	log = log.With(zap.String("model_used", string(sel.Model)))
	log.Debug("model selected", zap.String("disease", sel.Record.Disease), zap.Float64("confidence", sel.Record.Confidence))

	res = ProcessResult{
		ScanType:       scan,
		Disease:        sel.Record.Disease,
		Confidence:     sel.Record.Confidence,
		ModelUsed:      string(sel.Model),
		AllPredictions: set,
	}

	// SELECTED -> EXPLAINED, best effort
	if ref, ok := p.explain(ctx, log, sel.Model, original, input); ok {
		res.Visualization = &ref
		stage = StageExplained
	}

	stage = StageDone
	log.Debug("request done", zap.Stringer("stage", stage))
	return res
}

// explain is best effort: any failure, panics included, only drops the
// visualization.
func (p *Pipeline) explain(ctx context.Context, log *zap.Logger, id ModelID, original image.Image, input *tensor.Tensor) (ref string, ok bool) {
	if p.store == nil {
		log.Debug("no visualization store configured")
		return "", false
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("heatmap stage panic", zap.Any("panic", rec))
			ref, ok = "", false
		}
	}()

	start := time.Now()
	vis, err := p.render(ctx, id, original, input)
	p.observeStage(StageExplained, start, err)
	if err != nil {
		log.Warn("heatmap generation failed", zap.Error(err))
		return "", false
	}

	ref, err = p.store.Store(ctx, vis)
	if err != nil {
		log.Warn("heatmap store failed", zap.Error(err))
		return "", false
	}
	log.Debug("heatmap stored", zap.String("ref", ref))
	return ref, true
}

func (p *Pipeline) render(ctx context.Context, id ModelID, original image.Image, input *tensor.Tensor) (image.Image, error) {
	layer := id.FeatureLayer()
	m, err := p.registry.Get(id)
	if err != nil {
		return nil, &gradcam.HeatmapError{Layer: layer, Err: err}
	}
	d, ok := m.(gradcam.Differentiable)
	if !ok {
		return nil, &gradcam.HeatmapError{Layer: layer, Err: fmt.Errorf("%s cannot expose layer activations", id)}
	}
	vis, err := p.engine.Explain(ctx, d, layer, original, input)
	if err != nil {
		return nil, err
	}
	return vis, nil
}

func (p *Pipeline) observeStage(stage Stage, start time.Time, err error) {
	if p.recorder != nil {
		p.recorder.ObserveStage(stage, time.Since(start), err)
	}
}

func (p *Pipeline) observeResult(res ProcessResult) {
	if p.recorder != nil {
		p.recorder.ObserveResult(res)
	}
}
