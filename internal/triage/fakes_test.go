package triage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/scan-triage/internal/gradcam"
	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

type fakeModel struct {
	out    []float32
	err    error
	panics bool

	mu    sync.Mutex
	calls int
}

func (f *fakeModel) Predict(_ context.Context, input *tensor.Tensor) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if input == nil || input.Len() != InputSize*InputSize*3 {
		return nil, errors.New("bad input shape")
	}
	return append([]float32(nil), f.out...), nil
}

// explainableModel also answers Grad-CAM probes for one layer.
type explainableModel struct {
	fakeModel
	layer    string
	probeErr error
}

func (f *explainableModel) Probe(ctx context.Context, input *tensor.Tensor, layer string) (*gradcam.Trace, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if layer != f.layer {
		return nil, fmt.Errorf("%w: %s", gradcam.ErrLayerNotFound, layer)
	}
	preds, err := f.Predict(ctx, input)
	if err != nil {
		return nil, err
	}
	features := tensor.New(1, 3, 3, 2)
	for i := range features.Data {
		features.Data[i] = float32(i%5) / 4
	}
	return &gradcam.Trace{
		Features:    features,
		Predictions: preds,
		Gradient: func(class int) (*tensor.Tensor, error) {
			g := tensor.New(1, 3, 3, 2)
			for i := range g.Data {
				g.Data[i] = float32(class + 1)
			}
			return g, nil
		},
	}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	n      int
	err    error
	panics bool
	images []image.Image
}

func (s *fakeStore) Store(_ context.Context, img image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return "", s.err
	}
	s.n++
	s.images = append(s.images, img)
	return fmt.Sprintf("/static/heatmaps/heatmap_%d.jpg", s.n), nil
}

type stageEvent struct {
	stage Stage
	err   error
}

type fakeRecorder struct {
	stages  []stageEvent
	results []ProcessResult
}

func (r *fakeRecorder) ObserveStage(stage Stage, _ time.Duration, err error) {
	r.stages = append(r.stages, stageEvent{stage: stage, err: err})
}

func (r *fakeRecorder) ObserveResult(res ProcessResult) {
	r.results = append(r.results, res)
}

type testModels struct {
	scan      *fakeModel
	effnet    *explainableModel
	resnet    *explainableModel
	mobilenet *explainableModel
	vgg       *explainableModel
}

// newTestModels returns a CT-routed set of models with distinct outputs.
func newTestModels() *testModels {
	return &testModels{
		scan:      &fakeModel{out: []float32{0.2}},
		effnet:    &explainableModel{fakeModel: fakeModel{out: []float32{0.1, 0.6, 0.2, 0.1}}, layer: "top_conv"},
		resnet:    &explainableModel{fakeModel: fakeModel{out: []float32{0.7, 0.1, 0.1, 0.1}}, layer: "conv5_block3_out"},
		mobilenet: &explainableModel{fakeModel: fakeModel{out: []float32{0.2}}, layer: "block_16_project_BN"},
		vgg:       &explainableModel{fakeModel: fakeModel{out: []float32{0.9}}, layer: "block5_conv3"},
	}
}

func (m *testModels) registry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(map[ModelID]Classifier{
		ScanTypeClassifier: m.scan,
		CTEfficientNetV2S:  m.effnet,
		CTResNet50:         m.resnet,
		XRayMobileNetV2:    m.mobilenet,
		XRayVGG16:          m.vgg,
	})
	require.NoError(t, err)
	return r
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*7 + y*3) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func inputTensor() *tensor.Tensor {
	return tensor.New(1, InputSize, InputSize, 3)
}
