package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Brownie44l1/scan-triage/internal/triage"
)

func TestRecorderCountsFailuresAndResults(t *testing.T) {
	before := testutil.ToFloat64(stageFailures.WithLabelValues("routed"))
	Recorder{}.ObserveStage(triage.StageRouted, 5*time.Millisecond, errors.New("shape mismatch"))
	Recorder{}.ObserveStage(triage.StageRouted, 5*time.Millisecond, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(stageFailures.WithLabelValues("routed")))

	res := triage.Degraded(triage.ScanUnknown)
	before = testutil.ToFloat64(resultsTotal.WithLabelValues("unknown", "error", "absent"))
	Recorder{}.ObserveResult(res)
	assert.Equal(t, before+1, testutil.ToFloat64(resultsTotal.WithLabelValues("unknown", "error", "absent")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/static/heatmaps/{file}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/static/heatmaps/{file}", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/heatmaps/a.jpg", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/static/heatmaps/{file}", "404")))
}
