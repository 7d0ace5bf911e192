package triage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRouterDetect(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeModel
		want    ScanType
		wantErr bool
	}{
		{name: "low score is ct", model: &fakeModel{out: []float32{0.1}}, want: ScanCT},
		{name: "just below threshold is ct", model: &fakeModel{out: []float32{0.4999}}, want: ScanCT},
		{name: "threshold is xray", model: &fakeModel{out: []float32{0.5}}, want: ScanXRay},
		{name: "high score is xray", model: &fakeModel{out: []float32{0.93}}, want: ScanXRay},
		{name: "model error", model: &fakeModel{err: errors.New("shape mismatch")}, want: ScanUnknown, wantErr: true},
		{name: "model panic", model: &fakeModel{panics: true}, want: ScanUnknown, wantErr: true},
		{name: "empty output", model: &fakeModel{out: []float32{}}, want: ScanUnknown, wantErr: true},
		{name: "nan output", model: &fakeModel{out: []float32{float32(math.NaN())}}, want: ScanUnknown, wantErr: true},
		{name: "score above one", model: &fakeModel{out: []float32{1.7}}, want: ScanUnknown, wantErr: true},
		{name: "negative score", model: &fakeModel{out: []float32{-0.3}}, want: ScanUnknown, wantErr: true},
		{name: "exactly one is xray", model: &fakeModel{out: []float32{1}}, want: ScanXRay},
		{name: "exactly zero is ct", model: &fakeModel{out: []float32{0}}, want: ScanCT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.model, zaptest.NewLogger(t))
			got, err := r.Detect(context.Background(), inputTensor())
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				var ierr *InferenceError
				assert.ErrorAs(t, err, &ierr)
				assert.Equal(t, ScanTypeClassifier, ierr.Model)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
