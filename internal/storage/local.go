package storage

import (
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Local writes heatmaps into a directory served under URLPrefix.
type Local struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

func NewLocal(dir, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create heatmap dir: %w", err)
	}
	return &Local{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) URLPrefix() string {
	return l.urlPrefix
}

func (l *Local) Store(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodeJPEG(img)
	if err != nil {
		return "", err
	}

	name := Filename(l.now())
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write heatmap: %w", err)
	}
	return path.Join(l.urlPrefix, name), nil
}
