package gradcam

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

var (
	ErrLayerNotFound = errors.New("feature layer not found")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrNoPrediction  = errors.New("probe returned no usable prediction")
)

// HeatmapError is returned for any failure while building a visualization.
type HeatmapError struct {
	Layer string
	Err   error
}

func (e *HeatmapError) Error() string {
	return fmt.Sprintf("heatmap for layer %q: %v", e.Layer, e.Err)
}

func (e *HeatmapError) Unwrap() error {
	return e.Err
}

// Differentiable is a model that can expose one of its intermediate layers
// together with the gradients of its outputs with respect to that layer.
type Differentiable interface {
	Probe(ctx context.Context, input *tensor.Tensor, layer string) (*Trace, error)
}

// Trace is the result of one recorded forward pass through a probe.
type Trace struct {
	// Features is the layer activation, shape (1,H,W,C).
	Features *tensor.Tensor
	// Predictions is the model's final output for the same pass.
	Predictions []float32
	// Gradient returns d Predictions[class] / d Features, shape (1,H,W,C).
	Gradient func(class int) (*tensor.Tensor, error)
}
