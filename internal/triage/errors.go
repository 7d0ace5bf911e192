package triage

import (
	"errors"
	"fmt"
)

var (
	ErrImageDecode       = errors.New("image could not be decoded")
	ErrImageEmpty        = errors.New("image has zero width or height")
	ErrAggregationFailed = errors.New("no model produced a prediction")
	ErrUnknownModel      = errors.New("model not registered")
)

// InferenceError reports a failure of a single model.
type InferenceError struct {
	Model ModelID
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %s: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
