package triage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// scanThreshold splits the scan-type classifier output: below is CT.
const scanThreshold = 0.5

// Router decides whether a scan is CT or X-ray.
type Router struct {
	model  Classifier
	logger *zap.Logger
}

func NewRouter(model Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{model: model, logger: logger}
}

// Detect returns ScanUnknown together with the cause when the classifier
// cannot produce a usable score.
func (r *Router) Detect(ctx context.Context, input *tensor.Tensor) (ScanType, error) {
	out, err := invoke(ctx, ScanTypeClassifier, r.model, input)
	if err != nil {
		return ScanUnknown, err
	}
	if len(out) == 0 {
		return ScanUnknown, &InferenceError{Model: ScanTypeClassifier, Err: errors.New("empty output")}
	}

	score := out[0]
	r.logger.Debug("scan type score", zap.Float32("score", score))
	if score < scanThreshold {
		return ScanCT, nil
	}
	return ScanXRay, nil
}

// invoke runs one model and turns panics and scores that are not
// probabilities into InferenceError.
func invoke(ctx context.Context, id ModelID, m Classifier, input *tensor.Tensor) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &InferenceError{Model: id, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if m == nil {
		return nil, &InferenceError{Model: id, Err: ErrUnknownModel}
	}
	out, err = m.Predict(ctx, input)
	if err != nil {
		return nil, &InferenceError{Model: id, Err: err}
	}
	for i, v := range out {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &InferenceError{Model: id, Err: fmt.Errorf("non-finite output at index %d", i)}
		}
		if f < 0 || f > 1 {
			return nil, &InferenceError{Model: id, Err: fmt.Errorf("output %v at index %d outside [0,1]", v, i)}
		}
	}
	return out, nil
}
