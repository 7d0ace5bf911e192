package model

import (
	"fmt"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/triage"
)

type Options struct {
	// Dir holds <id>.onnx, <id>.json and the probe graphs named in metadata.
	Dir string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default.
	LibraryPath    string
	IntraOpThreads int
}

// Bundle owns the ONNX environment and every loaded session.
type Bundle struct {
	sessions map[triage.ModelID]*Session
	logger   *zap.Logger
}

// Load initializes onnxruntime and opens every model in triage.AllModels.
func Load(opts Options, logger *zap.Logger) (*Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	b := &Bundle{sessions: make(map[triage.ModelID]*Session), logger: logger}
	for _, id := range triage.AllModels() {
		s, err := b.open(opts.Dir, id, sessOpts)
		if err != nil {
			return nil, multierr.Append(err, b.Close())
		}
		b.sessions[id] = s
	}
	return b, nil
}

func (b *Bundle) open(dir string, id triage.ModelID, opts *ort.SessionOptions) (*Session, error) {
	modelPath := filepath.Join(dir, string(id)+".onnx")
	meta, err := LoadMetadata(filepath.Join(dir, string(id)+".json"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	var probePath string
	if meta.Probe != nil {
		probePath = filepath.Join(dir, meta.Probe.File)
		if _, err := os.Stat(probePath); err != nil {
			b.logger.Warn("probe graph missing, heatmaps disabled for model",
				zap.String("model", string(id)), zap.String("path", probePath))
			probePath = ""
		} else if want := id.FeatureLayer(); meta.Probe.Layer != want {
			b.logger.Warn("probe layer differs from the model's designated layer",
				zap.String("model", string(id)),
				zap.String("probe_layer", meta.Probe.Layer),
				zap.String("designated_layer", want))
		}
	}

	s, err := NewSession(id, modelPath, probePath, meta, opts)
	if err != nil {
		return nil, err
	}
	b.logger.Info("model loaded",
		zap.String("model", string(id)),
		zap.String("path", modelPath),
		zap.Strings("classes", meta.Classes),
		zap.Bool("explainable", probePath != ""),
	)
	return s, nil
}

// Registry exposes the loaded sessions to the pipeline.
func (b *Bundle) Registry() (*triage.Registry, error) {
	models := make(map[triage.ModelID]triage.Classifier, len(b.sessions))
	for id, s := range b.sessions {
		models[id] = s
	}
	return triage.NewRegistry(models)
}

func (b *Bundle) Close() error {
	var err error
	for _, s := range b.sessions {
		err = multierr.Append(err, s.Close())
	}
	b.sessions = nil
	return multierr.Append(err, ort.DestroyEnvironment())
}
