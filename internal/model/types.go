package model

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// Metadata is the JSON sidecar stored next to each exported model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Probe       *Probe   `json:"probe,omitempty"`
}

// Probe describes the Grad-CAM graph exported alongside a disease model.
// It shares the model's input and emits three outputs: the layer
// activation, the predictions, and the gradient of every prediction with
// respect to the activation.
type Probe struct {
	File          string  `json:"file"`
	Layer         string  `json:"layer"`
	FeatureShape  []int64 `json:"feature_shape"`
	GradientShape []int64 `json:"gradient_shape"`
}

func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.InputName == "" {
		meta.InputName = defaultInputName
	}
	if meta.OutputName == "" {
		meta.OutputName = defaultOutputName
	}
	if err := meta.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return meta, nil
}

func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.InputShape[3] != 3 {
		return fmt.Errorf("input_shape must be (1,H,W,3), got %v", m.InputShape)
	}
	if m.ImageSize != 0 && (m.InputShape[1] != int64(m.ImageSize) || m.InputShape[2] != int64(m.ImageSize)) {
		return fmt.Errorf("input_shape %v does not match image_size %d", m.InputShape, m.ImageSize)
	}
	if len(m.OutputShape) == 0 || volume(m.OutputShape) <= 0 {
		return fmt.Errorf("output_shape must be non-empty, got %v", m.OutputShape)
	}
	if len(m.Classes) > 0 && int64(len(m.Classes)) != volume(m.OutputShape) && volume(m.OutputShape) != 1 {
		return fmt.Errorf("%d classes for output_shape %v", len(m.Classes), m.OutputShape)
	}
	if m.Probe == nil {
		return nil
	}

	p := m.Probe
	if p.File == "" || p.Layer == "" {
		return fmt.Errorf("probe needs file and layer")
	}
	if len(p.FeatureShape) != 4 || p.FeatureShape[0] != 1 {
		return fmt.Errorf("probe feature_shape must be (1,H,W,C), got %v", p.FeatureShape)
	}
	if len(p.GradientShape) != 4 {
		return fmt.Errorf("probe gradient_shape must be (K,H,W,C), got %v", p.GradientShape)
	}
	for i := 1; i < 4; i++ {
		if p.GradientShape[i] != p.FeatureShape[i] {
			return fmt.Errorf("probe gradient_shape %v does not match feature_shape %v", p.GradientShape, p.FeatureShape)
		}
	}
	if p.GradientShape[0] != volume(m.OutputShape) {
		return fmt.Errorf("probe has %d gradients for %d outputs", p.GradientShape[0], volume(m.OutputShape))
	}
	return nil
}

func volume(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
