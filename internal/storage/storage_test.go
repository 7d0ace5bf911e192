package storage

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var filenamePattern = regexp.MustCompile(`^heatmap_\d{8}_\d{6}_[0-9a-f]{8}\.jpg$`)

func TestFilename(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	name := Filename(now)
	assert.Regexp(t, filenamePattern, name)
	assert.True(t, strings.HasPrefix(name, "heatmap_20260304_050607_"))
	assert.NotEqual(t, name, Filename(now))
}

func TestLocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static", "heatmaps")
	store, err := NewLocal(dir, "static/heatmaps/")
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 12, 9))
	img.SetRGBA(3, 3, color.RGBA{R: 200, A: 255})

	ref, err := store.Store(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/static/heatmaps/heatmap_"), ref)

	f, err := os.Open(filepath.Join(dir, filepath.Base(ref)))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestLocalStoreCancelled(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/static/heatmaps")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Store(ctx, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	assert.ErrorIs(t, err, context.Canceled)
}
