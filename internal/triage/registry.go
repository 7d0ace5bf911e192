package triage

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// Classifier runs a model on a (1,224,224,3) input and returns its output
// vector. Implementations must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, input *tensor.Tensor) ([]float32, error)
}

// Registry is the immutable set of loaded models.
type Registry struct {
	models map[ModelID]Classifier
}

// NewRegistry copies models and checks that every model in AllModels is
// present.
func NewRegistry(models map[ModelID]Classifier) (*Registry, error) {
	r := &Registry{models: make(map[ModelID]Classifier, len(models))}
	for _, id := range AllModels() {
		m, ok := models[id]
		if !ok || m == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
		r.models[id] = m
	}
	return r, nil
}

func (r *Registry) Get(id ModelID) (Classifier, error) {
	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return m, nil
}
