package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/signal"
)

func seed(f *Filter, symbol string, prices []float64, volume float64) {
	for i, p := range prices {
		f.Observe(signal.PriceTick{
			Symbol:    symbol,
			Price:     decimal.NewFromFloat(p),
			Volume:    decimal.NewFromFloat(volume),
			Timestamp: int64(i),
		})
	}
}

func flat(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo
		if i%2 == 1 {
			out[i] = hi
		}
	}
	return out
}

func buy(conf float64) signal.Signal {
	return signal.Signal{Symbol: "BTCUSDT", Type: signal.Buy, Confidence: conf, Price: decimal.NewFromInt(100)}
}

func TestFilterSignal_PassesHealthyMarket(t *testing.T) {
	f := New(Config{})
	seed(f, "BTCUSDT", flat(30, 99.9, 100.1), 10)

	res := f.FilterSignal(buy(0.8), MarketData{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(20)})
	assert.True(t, res.IsValid, res.Reasons)
	assert.Empty(t, res.Reasons)
	assert.Greater(t, res.VolumeRatio, 1.5)
	// volume boost is capped at 1.2x
	assert.InDelta(t, 0.8*1.2, res.AdjustedConfidence, 1e-9)
}

func TestFilterSignal_ReportsEveryFailure(t *testing.T) {
	f := New(Config{})
	seed(f, "BTCUSDT", flat(30, 95, 105), 10)

	res := f.FilterSignal(buy(0.5), MarketData{
		Price:       decimal.NewFromInt(120),
		Volume:      decimal.NewFromInt(5),
		Correlation: 0.9,
	})
	assert.False(t, res.IsValid)
	assert.Len(t, res.Reasons, 5)
	assert.Greater(t, res.ZScore, 2.0)
	assert.Greater(t, res.Volatility, 0.03)
	assert.GreaterOrEqual(t, res.AdjustedConfidence, 0.0)
	assert.Less(t, res.AdjustedConfidence, 0.5)
}

func TestFilterSignal_IsIdempotent(t *testing.T) {
	f := New(Config{})
	seed(f, "BTCUSDT", flat(30, 95, 105), 10)
	md := MarketData{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Correlation: -0.8}

	first := f.FilterSignal(buy(0.4), md)
	second := f.FilterSignal(buy(0.4), md)
	require.False(t, first.IsValid)
	assert.Equal(t, first, second)
}

func TestFilterSignal_AdjustedConfidenceClamped(t *testing.T) {
	f := New(Config{})
	seed(f, "BTCUSDT", flat(30, 99.9, 100.1), 1)

	res := f.FilterSignal(buy(1), MarketData{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1000)})
	assert.Equal(t, 1.0, res.AdjustedConfidence)

	res = f.FilterSignal(buy(-3), MarketData{Price: decimal.NewFromInt(100000), Correlation: 50})
	assert.Equal(t, 0.0, res.AdjustedConfidence)
}

func TestFilterSignal_MinConfidenceOverride(t *testing.T) {
	f := New(Config{})
	seed(f, "BTCUSDT", flat(30, 99.9, 100.1), 10)
	md := MarketData{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(20), MinConfidence: 0.9}

	res := f.FilterSignal(buy(0.8), md)
	require.Len(t, res.Reasons, 1)
	assert.Contains(t, res.Reasons[0], "Low confidence")
}

func TestObserve_HistoryBounded(t *testing.T) {
	f := New(Config{HistorySize: 10})
	seed(f, "ETHUSDT", flat(25, 1, 2), 1)
	assert.Equal(t, 10, f.HistoryLen("ETHUSDT"))
	assert.Zero(t, f.HistoryLen("BTCUSDT"))
}
