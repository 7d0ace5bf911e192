package gradcam

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// Engine produces Grad-CAM visualizations for a single model.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Explain renders the heatmap of the model's own top class for input and
// composites it over original at original's native resolution.
//
// The class is re-derived from the probe's predictions, so the explanation
// always refers to this model's argmax, independent of any cross-model
// selection made by the caller.
func (e *Engine) Explain(ctx context.Context, model Differentiable, layer string, original image.Image, input *tensor.Tensor) (vis *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			vis, err = nil, &HeatmapError{Layer: layer, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	heat, err := e.Heatmap(ctx, model, layer, input)
	if err != nil {
		return nil, err
	}

	b := original.Bounds()
	scaled, err := heat.Resize(b.Dx(), b.Dy())
	if err != nil {
		return nil, &HeatmapError{Layer: layer, Err: err}
	}

	vis, err = Overlay(original, scaled, BlendAlpha)
	if err != nil {
		return nil, &HeatmapError{Layer: layer, Err: err}
	}
	return vis, nil
}

// Heatmap runs the probe and returns the normalized low-resolution map.
func (e *Engine) Heatmap(ctx context.Context, model Differentiable, layer string, input *tensor.Tensor) (*Heatmap, error) {
	if model == nil {
		return nil, &HeatmapError{Layer: layer, Err: fmt.Errorf("model does not expose layer activations")}
	}

	trace, err := model.Probe(ctx, input, layer)
	if err != nil {
		return nil, &HeatmapError{Layer: layer, Err: err}
	}
	if trace == nil || trace.Gradient == nil {
		return nil, &HeatmapError{Layer: layer, Err: ErrNoPrediction}
	}

	class := tensor.Argmax(trace.Predictions)
	if class < 0 {
		return nil, &HeatmapError{Layer: layer, Err: ErrNoPrediction}
	}

	grads, err := trace.Gradient(class)
	if err != nil {
		return nil, &HeatmapError{Layer: layer, Err: err}
	}

	heat, err := Compute(trace.Features, grads)
	if err != nil {
		return nil, &HeatmapError{Layer: layer, Err: err}
	}

	e.logger.Debug("heatmap computed",
		zap.String("layer", layer),
		zap.Int("class", class),
		zap.Int("width", heat.Width),
		zap.Int("height", heat.Height),
		zap.Bool("degenerate", heat.Degenerate()),
	)
	return heat, nil
}
