package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/metrics"
	"github.com/Brownie44l1/scan-triage/internal/triage"
)

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

var cancerSubtypes = map[string]bool{
	"Adenocarcinoma":          true,
	"Large Cell Carcinoma":    true,
	"Squamous Cell Carcinoma": true,
}

// Processor is the part of the pipeline the HTTP layer needs.
type Processor interface {
	Process(ctx context.Context, r io.Reader, requested string) triage.ProcessResult
}

type Handler struct {
	processor Processor
	cache     *lru.Cache[string, triage.ProcessResult]
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler caches up to cacheSize results; 0 disables caching.
func NewHandler(processor Processor, maxUpload int64, cacheSize int, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{processor: processor, maxUpload: maxUpload, logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, triage.ProcessResult](cacheSize)
		if err != nil {
			return nil, err
		}
		h.cache = cache
	}
	return h, nil
}

type PredictResponse struct {
	Status             string               `json:"status"`
	ImageType          triage.ScanType      `json:"image_type"`
	DiseaseType        string               `json:"disease_type"`
	DiseaseProbability float64              `json:"disease_probability"`
	ModelUsed          string               `json:"model_used"`
	Visualization      *string              `json:"visualization"`
	AllPredictions     triage.PredictionSet `json:"all_predictions"`
	PneumoniaSeverity  string               `json:"pneumonia_severity,omitempty"`
	CancerSubtype      string               `json:"cancer_subtype,omitempty"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeError(w, http.StatusBadRequest, "File type not allowed")
		return
	}

	// scan_mode is accepted for compatibility; routing is always automatic
	modelType := r.FormValue("model_type")
	if modelType == "" {
		modelType = triage.RequestDefault
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	log := h.logger.With(
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("model_type", modelType),
	)
	log.Info("received file")

	result := h.process(r.Context(), data, modelType)
	log.Info("image processed",
		zap.String("scan_type", string(result.ScanType)),
		zap.String("disease", result.Disease),
		zap.Float64("confidence", result.Confidence),
		zap.String("model_used", result.ModelUsed),
	)

	writeJSON(w, http.StatusOK, newPredictResponse(result))
}

func (h *Handler) process(ctx context.Context, data []byte, modelType string) triage.ProcessResult {
	if h.cache == nil {
		return h.processor.Process(ctx, bytes.NewReader(data), modelType)
	}

	key := cacheKey(data, modelType)
	if res, ok := h.cache.Get(key); ok {
		metrics.CacheHit()
		return res
	}
	metrics.CacheMiss()

	res := h.processor.Process(ctx, bytes.NewReader(data), modelType)
	if !res.Failed() {
		h.cache.Add(key, res)
	}
	return res
}

func cacheKey(data []byte, modelType string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + "|" + modelType
}

func newPredictResponse(res triage.ProcessResult) PredictResponse {
	resp := PredictResponse{
		Status:             "success",
		ImageType:          res.ScanType,
		DiseaseType:        res.Disease,
		DiseaseProbability: res.Confidence,
		ModelUsed:          res.ModelUsed,
		Visualization:      res.Visualization,
		AllPredictions:     res.AllPredictions,
	}
	if resp.AllPredictions == nil {
		resp.AllPredictions = triage.PredictionSet{}
	}

	switch {
	case res.Disease == triage.LabelPneumonia:
		// severity grading is not modelled yet
		resp.PneumoniaSeverity = "moderate"
	case cancerSubtypes[res.Disease]:
		resp.CancerSubtype = res.Disease
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: msg})
}
