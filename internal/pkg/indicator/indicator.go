// Package indicator computes window statistics over price series (oldest
// first). Each function returns the latest value; talib output is sanitised
// and short inputs fall back to plain arithmetic so callers never see NaN.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// flatTolerance is the relative spread below which a window counts as flat.
const flatTolerance = 1e-9

func lastFinite(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}

// Mean is the arithmetic mean; empty input is zero.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStd(values []float64) float64 {
	m := Mean(values)
	acc := 0.0
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// SMA of the whole window.
func SMA(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return Mean(values)
	}
	if v := lastFinite(talib.Sma(values, n)); v != 0 {
		return v
	}
	return Mean(values)
}

// StdDev is the population standard deviation of the whole window.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	v := lastFinite(talib.StdDev(values, n, 1))
	if v <= flatTolerance*scale(values) {
		// single-pass variance loses everything below the rounding noise
		v = populationStd(values)
	}
	if v <= flatTolerance*scale(values) {
		return 0
	}
	return v
}

func scale(values []float64) float64 {
	return math.Max(1, math.Abs(Mean(values)))
}

// ZScore of x against the window; a flat window gives zero.
func ZScore(values []float64, x float64) float64 {
	sd := StdDev(values)
	if sd == 0 {
		return 0
	}
	return (x - SMA(values)) / sd
}

// EMA over period, seeded with the SMA of the first period values.
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 1 || n < period {
		if n == 0 {
			return 0
		}
		return prices[n-1]
	}
	return lastFinite(talib.Ema(prices, period))
}

// ATR treats each price as a degenerate bar (high=low=close), so the true
// range is the absolute tick-to-tick change.
func ATR(prices []float64) float64 {
	n := len(prices)
	if n < 2 {
		return 0
	}
	if n < 3 {
		return math.Abs(prices[1] - prices[0])
	}
	if v := lastFinite(talib.Atr(prices, prices, prices, n-1)); v > 0 {
		return v
	}
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	return sum / float64(n-1)
}

// Returns converts prices into fractional tick-to-tick returns, skipping
// zero prices.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

// Volatility is the population stddev of window returns.
func Volatility(prices []float64) float64 {
	return StdDev(Returns(prices))
}
