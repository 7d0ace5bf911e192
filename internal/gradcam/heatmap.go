package gradcam

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// Heatmap is a single-channel map with values in [0,1], stored row-major.
type Heatmap struct {
	Width  int
	Height int
	Pix    []float64
}

func (h *Heatmap) At(x, y int) float64 {
	return h.Pix[y*h.Width+x]
}

// Degenerate reports whether the map carries no activation at all.
func (h *Heatmap) Degenerate() bool {
	for _, v := range h.Pix {
		if v > 0 {
			return false
		}
	}
	return true
}

// Compute builds the class activation map from a feature map and the
// gradient of the selected class score with respect to it.
//
// Channel weights are the gradients averaged over height and width. The map
// is the channel mean of the weighted activations, clipped at zero and
// divided by its maximum. An all-zero map is returned as is.
func Compute(features, grads *tensor.Tensor) (*Heatmap, error) {
	h, w, c, err := features.HWC()
	if err != nil {
		return nil, fmt.Errorf("%w: features: %v", ErrShapeMismatch, err)
	}
	if !features.SameShape(grads) {
		return nil, fmt.Errorf("%w: features %v vs gradients %v", ErrShapeMismatch, features.Shape, shapeOf(grads))
	}
	if h == 0 || w == 0 || c == 0 {
		return nil, fmt.Errorf("%w: empty feature map %v", ErrShapeMismatch, features.Shape)
	}

	weights := make([]float64, c)
	for i, g := range grads.Data {
		weights[i%c] += float64(g)
	}
	area := float64(h * w)
	for k := range weights {
		weights[k] /= area
	}

	out := &Heatmap{Width: w, Height: h, Pix: make([]float64, h*w)}
	maxVal := 0.0
	for p := 0; p < h*w; p++ {
		row := features.Data[p*c : (p+1)*c]
		sum := 0.0
		for k, a := range row {
			sum += weights[k] * float64(a)
		}
		v := sum / float64(c)
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		out.Pix[p] = v
		if v > maxVal {
			maxVal = v
		}
	}

	if math.IsInf(maxVal, 1) {
		return nil, errors.New("non-finite activation")
	}
	if maxVal == 0 {
		return out, nil
	}
	for p := range out.Pix {
		out.Pix[p] /= maxVal
	}
	return out, nil
}

// Resize upsamples the heatmap with bilinear interpolation.
func (h *Heatmap) Resize(width, height int) (*Heatmap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", ErrShapeMismatch, width, height)
	}

	src := image.NewGray16(image.Rect(0, 0, h.Width, h.Height))
	for y := 0; y < h.Height; y++ {
		for x := 0; x < h.Width; x++ {
			src.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(clamp01(h.At(x, y)) * 0xffff))})
		}
	}

	scaled := resize.Resize(uint(width), uint(height), src, resize.Bilinear)
	b := scaled.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("%w: resized to %dx%d, want %dx%d", ErrShapeMismatch, b.Dx(), b.Dy(), width, height)
	}

	out := &Heatmap{Width: width, Height: height, Pix: make([]float64, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(scaled.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			out.Pix[y*width+x] = float64(g.Y) / 0xffff
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func shapeOf(t *tensor.Tensor) []int {
	if t == nil {
		return nil
	}
	return t.Shape
}
