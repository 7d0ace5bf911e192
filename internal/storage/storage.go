package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
)

const jpegQuality = 90

// Filename builds heatmap_<YYYYmmdd_HHMMSS>_<8 hex>.jpg.
func Filename(now time.Time) string {
	id := uuid.New().String()[:8]
	return fmt.Sprintf("heatmap_%s_%s.jpg", now.Format("20060102_150405"), id)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode heatmap: %w", err)
	}
	return buf.Bytes(), nil
}
