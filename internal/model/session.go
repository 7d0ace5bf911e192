package model

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/Brownie44l1/scan-triage/internal/gradcam"
	"github.com/Brownie44l1/scan-triage/internal/tensor"
	"github.com/Brownie44l1/scan-triage/internal/triage"
)

const (
	probeFeatures    = "features"
	probePredictions = "predictions"
	probeGradients   = "gradients"
)

// Session serves one exported model. Tensors are allocated per call, so a
// Session can be used from many goroutines at once.
type Session struct {
	ID       triage.ModelID
	Metadata Metadata

	session *ort.DynamicAdvancedSession
	probe   *ort.DynamicAdvancedSession
}

func NewSession(id triage.ModelID, modelPath, probePath string, meta Metadata, opts *ort.SessionOptions) (*Session, error) {
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", id, err)
	}

	s := &Session{ID: id, Metadata: meta, session: session}
	if meta.Probe == nil || probePath == "" {
		return s, nil
	}

	probe, err := ort.NewDynamicAdvancedSession(probePath,
		[]string{meta.InputName}, []string{probeFeatures, probePredictions, probeGradients}, opts)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("failed to create probe session for %s: %w", id, err)
	}
	s.probe = probe
	return s, nil
}

func (s *Session) Predict(ctx context.Context, input *tensor.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := s.inputTensor(input)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), out.GetData()...), nil
}

// Probe runs the Grad-CAM graph. Only the layer the probe was exported for
// is available.
func (s *Session) Probe(ctx context.Context, input *tensor.Tensor, layer string) (*gradcam.Trace, error) {
	if s.probe == nil {
		return nil, fmt.Errorf("%w: %s has no probe graph", gradcam.ErrLayerNotFound, s.ID)
	}
	if layer != s.Metadata.Probe.Layer {
		return nil, fmt.Errorf("%w: %s exposes %q, not %q", gradcam.ErrLayerNotFound, s.ID, s.Metadata.Probe.Layer, layer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := s.inputTensor(input)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	p := s.Metadata.Probe
	features, err := ort.NewEmptyTensor[float32](ort.NewShape(p.FeatureShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create feature tensor: %w", err)
	}
	defer features.Destroy()
	preds, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction tensor: %w", err)
	}
	defer preds.Destroy()
	grads, err := ort.NewEmptyTensor[float32](ort.NewShape(p.GradientShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create gradient tensor: %w", err)
	}
	defer grads.Destroy()

	outputs := []ort.ArbitraryTensor{features, preds, grads}
	if err := s.probe.Run([]ort.ArbitraryTensor{in}, outputs); err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}

	featureMap, err := tensor.FromData(toInts(p.FeatureShape), append([]float32(nil), features.GetData()...))
	if err != nil {
		return nil, err
	}
	gradData := append([]float32(nil), grads.GetData()...)
	gradShape := p.GradientShape

	return &gradcam.Trace{
		Features:    featureMap,
		Predictions: append([]float32(nil), preds.GetData()...),
		Gradient: func(class int) (*tensor.Tensor, error) {
			return classGradient(gradData, gradShape, class)
		},
	}, nil
}

func (s *Session) inputTensor(input *tensor.Tensor) (*ort.Tensor[float32], error) {
	if input == nil || len(input.Shape) != len(s.Metadata.InputShape) {
		return nil, fmt.Errorf("input shape %v, model expects %v", shapeOf(input), s.Metadata.InputShape)
	}
	for i, d := range input.Shape64() {
		if d != s.Metadata.InputShape[i] {
			return nil, fmt.Errorf("input shape %v, model expects %v", input.Shape, s.Metadata.InputShape)
		}
	}
	t, err := ort.NewTensor(ort.NewShape(input.Shape64()...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return t, nil
}

func (s *Session) Close() error {
	var err error
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
	}
	if s.probe != nil {
		err = multierr.Append(err, s.probe.Destroy())
	}
	return err
}

// classGradient slices the (1,H,W,C) gradient of one class out of a
// (K,H,W,C) block.
func classGradient(data []float32, shape []int64, class int) (*tensor.Tensor, error) {
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: gradient shape %v", gradcam.ErrShapeMismatch, shape)
	}
	if class < 0 || int64(class) >= shape[0] {
		return nil, fmt.Errorf("%w: class %d outside %d gradients", gradcam.ErrShapeMismatch, class, shape[0])
	}
	per := int(shape[1] * shape[2] * shape[3])
	if len(data) != per*int(shape[0]) {
		return nil, fmt.Errorf("%w: %d gradient values for shape %v", gradcam.ErrShapeMismatch, len(data), shape)
	}
	return tensor.FromData(
		[]int{1, int(shape[1]), int(shape[2]), int(shape[3])},
		data[class*per:(class+1)*per],
	)
}

func toInts(shape []int64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}

func shapeOf(t *tensor.Tensor) []int {
	if t == nil {
		return nil
	}
	return t.Shape
}
