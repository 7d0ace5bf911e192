package triage

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// binaryThreshold: a sigmoid output strictly above it is the positive label.
const binaryThreshold = 0.5

// Aggregator runs every disease model of a modality over the same input.
type Aggregator struct {
	registry *Registry
	logger   *zap.Logger
}

func NewAggregator(registry *Registry, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{registry: registry, logger: logger}
}

// Aggregate returns one record per model that succeeded. A failing model is
// left out of the set and its InferenceError is returned alongside the
// partial set. When no model succeeds the error wraps ErrAggregationFailed
// and the set is nil.
func (a *Aggregator) Aggregate(ctx context.Context, scan ScanType, input *tensor.Tensor) (PredictionSet, error) {
	ids := ModelsFor(scan)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no models for scan type %q", ErrAggregationFailed, scan)
	}

	set := make(PredictionSet, len(ids))
	var errs error
	for _, id := range ids {
		rec, err := a.predict(ctx, id, input)
		if err != nil {
			a.logger.Warn("model skipped", zap.String("model", string(id)), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		set[id.ResultKey()] = rec
	}

	if len(set) == 0 {
		return nil, multierr.Append(fmt.Errorf("%w for %s", ErrAggregationFailed, scan), errs)
	}
	return set, errs
}

func (a *Aggregator) predict(ctx context.Context, id ModelID, input *tensor.Tensor) (PredictionRecord, error) {
	m, err := a.registry.Get(id)
	if err != nil {
		return PredictionRecord{}, &InferenceError{Model: id, Err: err}
	}
	out, err := invoke(ctx, id, m, input)
	if err != nil {
		return PredictionRecord{}, err
	}
	return decode(id, out)
}

// decode converts raw model output into the label and the probability of
// that label.
func decode(id ModelID, out []float32) (PredictionRecord, error) {
	for _, v := range out {
		if v < 0 || v > 1 {
			return PredictionRecord{}, &InferenceError{Model: id, Err: fmt.Errorf("output %v outside [0,1]", v)}
		}
	}

	switch id.Modality() {
	case ScanCT:
		if len(out) != len(CTClasses) {
			return PredictionRecord{}, &InferenceError{Model: id, Err: fmt.Errorf("expected %d class scores, got %d", len(CTClasses), len(out))}
		}
		idx := tensor.Argmax(out)
		return PredictionRecord{Disease: CTClasses[idx], Confidence: float64(out[idx])}, nil

	case ScanXRay:
		if len(out) != 1 {
			return PredictionRecord{}, &InferenceError{Model: id, Err: fmt.Errorf("expected a single score, got %d", len(out))}
		}
		p := float64(out[0])
		if p > binaryThreshold {
			return PredictionRecord{Disease: LabelPneumonia, Confidence: p}, nil
		}
		return PredictionRecord{Disease: LabelNormal, Confidence: 1 - p}, nil
	}

	return PredictionRecord{}, &InferenceError{Model: id, Err: fmt.Errorf("%s is not a disease model", id)}
}
