package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/metrics"
)

type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy keys the rate limiter on X-Forwarded-For.
	TrustProxy bool
	// HeatmapDir and HeatmapPrefix serve locally stored heatmaps. Leave
	// HeatmapDir empty when heatmaps live in object storage.
	HeatmapDir    string
	HeatmapPrefix string
	Logger        *zap.Logger
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(NewIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, opts.TrustProxy).Middleware)
		}
		r.Post("/predict", h.Predict)
	})

	if opts.HeatmapDir != "" {
		prefix := "/" + strings.Trim(opts.HeatmapPrefix, "/")
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(opts.HeatmapDir)))
		r.Get(prefix+"/{file}", func(w http.ResponseWriter, req *http.Request) {
			logger.Debug("serving heatmap", zap.String("file", chi.URLParam(req, "file")))
			files.ServeHTTP(w, req)
		})
	}

	return r
}
