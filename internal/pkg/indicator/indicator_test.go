package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Zero(t, StdDev([]float64{1}))
	assert.Zero(t, StdDev(nil))
	assert.Zero(t, StdDev([]float64{0.1, 0.1, 0.1, 0.1, 0.1}))
	assert.Zero(t, StdDev([]float64{101.37, 101.37, 101.37}))
}

func TestZScore(t *testing.T) {
	window := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, ZScore(window, 9), 1e-9)
	assert.InDelta(t, -1.5, ZScore(window, 2), 1e-9)
	assert.Zero(t, ZScore([]float64{0.02, 0.02, 0.02}, 0.5))
	assert.Zero(t, ZScore(nil, 3))
}

func TestMeanAndSMA(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
	assert.InDelta(t, 2.5, SMA([]float64{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, 7.0, SMA([]float64{7}), 1e-12)
}

func TestReturnsAndVolatility(t *testing.T) {
	assert.Nil(t, Returns([]float64{100}))
	assert.InDeltaSlice(t, []float64{0.1, -1, -0.5}, Returns([]float64{100, 110, 0, 50, 25}), 1e-12)
	assert.Zero(t, Volatility([]float64{100, 101, 102.01, 103.0301}))
	assert.InDelta(t, 0.01, Volatility([]float64{100, 101, 100, 101, 100}), 1e-3)
}

func TestEMAAndATR(t *testing.T) {
	assert.Equal(t, 3.0, EMA([]float64{1, 2, 3}, 5))
	assert.Zero(t, EMA(nil, 5))
	assert.InDelta(t, 4.0, EMA([]float64{2, 4, 6}, 3), 1e-9)

	assert.Zero(t, ATR([]float64{1}))
	assert.Equal(t, 2.0, ATR([]float64{10, 12}))
	assert.InDelta(t, 1.0, ATR([]float64{10, 11, 10, 11, 10}), 1e-9)
}
