package triage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage(strings.NewReader("definitely not a png"), 0)
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestDecodeImageKeepsNativeResolution(t *testing.T) {
	img, err := DecodeImage(bytes.NewReader(pngBytes(t, 37, 19)), 0)
	require.NoError(t, err)
	assert.Equal(t, 37, img.Bounds().Dx())
	assert.Equal(t, 19, img.Bounds().Dy())
}

func TestPreprocessShapeAndScale(t *testing.T) {
	img, err := DecodeImage(bytes.NewReader(pngBytes(t, 300, 120)), 0)
	require.NoError(t, err)

	in, err := Preprocess(img)
	require.NoError(t, err)
	assert.Equal(t, []int{1, InputSize, InputSize, 3}, in.Shape)
	for _, v := range in.Data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessChannelOrder(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	decoded, err := DecodeImage(&buf, 0)
	require.NoError(t, err)

	in, err := Preprocess(decoded)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, in.Data[0], 0.01)
	assert.InDelta(t, 0.0, in.Data[1], 0.01)
	assert.InDelta(t, 0.2, in.Data[2], 0.01)
}

func TestPreprocessEmptyImage(t *testing.T) {
	_, err := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 5)))
	assert.ErrorIs(t, err, ErrImageEmpty)
}

// pngHeader returns a PNG signature and IHDR chunk for an 8-bit grayscale
// image of the given size, without pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeImageRejectsOversizedHeader(t *testing.T) {
	// 40000x40000 grayscale would need 1.6 GB once decoded.
	_, err := DecodeImage(bytes.NewReader(pngHeader(40000, 40000)), 0)
	assert.ErrorIs(t, err, ErrImageDecode)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDecodeImagePixelLimit(t *testing.T) {
	data := pngBytes(t, 100, 100)

	_, err := DecodeImage(bytes.NewReader(data), 9999)
	assert.ErrorIs(t, err, ErrImageDecode)

	img, err := DecodeImage(bytes.NewReader(data), 10000)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestDecodeImageLargeZeroFilled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3000, 3000))))
	require.Less(t, buf.Len(), 1<<20, "zero-filled png compresses well")

	_, err := DecodeImage(bytes.NewReader(buf.Bytes()), 4_000_000)
	assert.ErrorIs(t, err, ErrImageDecode)
}
