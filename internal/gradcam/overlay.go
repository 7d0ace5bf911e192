package gradcam

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// BlendAlpha is the weight of the colour-mapped heatmap in the composite.
const BlendAlpha = 0.4

// Jet maps v in [0,1] onto the JET ramp: blue, cyan, yellow, red.
func Jet(v float64) color.RGBA {
	v = clamp01(v)
	return color.RGBA{
		R: ramp(1.5 - math.Abs(4*v-3)),
		G: ramp(1.5 - math.Abs(4*v-2)),
		B: ramp(1.5 - math.Abs(4*v-1)),
		A: 0xff,
	}
}

func ramp(x float64) uint8 {
	return uint8(math.Round(clamp01(x) * 255))
}

// Overlay colour-maps heat and adds it onto original:
// out = clip(jet(heat) * alpha + original, 0, 255).
// heat must already have the original image's dimensions.
func Overlay(original image.Image, heat *Heatmap, alpha float64) (*image.RGBA, error) {
	b := original.Bounds()
	if heat.Width != b.Dx() || heat.Height != b.Dy() {
		return nil, fmt.Errorf("%w: heatmap %dx%d vs image %dx%d",
			ErrShapeMismatch, heat.Width, heat.Height, b.Dx(), b.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// quantize first so the ramp sees the same 256 levels an 8-bit LUT would
			level := uint8(clamp01(heat.At(x, y)) * 255)
			c := Jet(float64(level) / 255)

			px := color.NRGBAModel.Convert(original.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.SetRGBA(x, y, color.RGBA{
				R: blend(c.R, px.R, alpha),
				G: blend(c.G, px.G, alpha),
				B: blend(c.B, px.B, alpha),
				A: 0xff,
			})
		}
	}
	return out, nil
}

func blend(heat, base uint8, alpha float64) uint8 {
	v := float64(heat)*alpha + float64(base)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
