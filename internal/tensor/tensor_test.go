package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	nan := float32(math.NaN())

	tests := []struct {
		name string
		in   []float32
		want int
	}{
		{name: "empty", in: nil, want: -1},
		{name: "single", in: []float32{0.3}, want: 0},
		{name: "clear winner", in: []float32{0.1, 0.7, 0.2}, want: 1},
		{name: "tie picks lowest index", in: []float32{0.4, 0.1, 0.4, 0.1}, want: 0},
		{name: "nan skipped", in: []float32{nan, 0.2, 0.1}, want: 1},
		{name: "all nan", in: []float32{nan, nan}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Argmax(tt.in))
		})
	}
}

func TestFromDataValidatesLength(t *testing.T) {
	_, err := FromData([]int{1, 2, 2, 3}, make([]float32, 11))
	require.Error(t, err)

	tt, err := FromData([]int{1, 2, 2, 3}, make([]float32, 12))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 2, 3}, tt.Shape64())

	h, w, c, err := tt.HWC()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, []int{h, w, c})
}

func TestSameShape(t *testing.T) {
	a := New(1, 7, 7, 3)
	assert.True(t, a.SameShape(New(1, 7, 7, 3)))
	assert.False(t, a.SameShape(New(1, 7, 7, 4)))
	assert.False(t, a.SameShape(New(7, 7, 3)))
	assert.False(t, a.SameShape(nil))
}

func TestHWCRejectsBatches(t *testing.T) {
	_, _, _, err := New(2, 4, 4, 1).HWC()
	assert.Error(t, err)
}
