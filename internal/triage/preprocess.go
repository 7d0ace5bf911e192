package triage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/scan-triage/internal/tensor"
)

// InputSize is the square side every model expects.
const InputSize = 224

// DefaultMaxPixels bounds the decoded size of an upload. A small compressed
// file can expand to gigabytes of pixels.
const DefaultMaxPixels = 178956970

// DecodeImage decodes a PNG or JPEG at its native resolution. The header is
// checked first so images above maxPixels are refused before any pixel
// buffer is allocated. maxPixels <= 0 means DefaultMaxPixels.
func DecodeImage(r io.Reader, maxPixels int64) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, ErrImageEmpty
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrImageEmpty
	}
	return img, nil
}

// Preprocess resizes img to InputSize x InputSize and returns a (1,224,224,3)
// tensor of RGB values scaled to [0,1]. Alpha is discarded.
func Preprocess(img image.Image) (*tensor.Tensor, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrImageEmpty
	}

	resized := resize.Resize(InputSize, InputSize, img, resize.Bilinear)
	rb := resized.Bounds()
	if rb.Dx() != InputSize || rb.Dy() != InputSize {
		return nil, fmt.Errorf("resized to %dx%d, want %dx%d", rb.Dx(), rb.Dy(), InputSize, InputSize)
	}

	out := tensor.New(1, InputSize, InputSize, 3)
	i := 0
	for y := rb.Min.Y; y < rb.Max.Y; y++ {
		for x := rb.Min.X; x < rb.Max.X; x++ {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			out.Data[i] = float32(c.R) / 255
			out.Data[i+1] = float32(c.G) / 255
			out.Data[i+2] = float32(c.B) / 255
			i += 3
		}
	}
	return out, nil
}
