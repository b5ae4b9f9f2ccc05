package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/signal"
)

func tick(symbol string, price float64, ts int64) signal.PriceTick {
	return signal.PriceTick{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Volume:    decimal.NewFromInt(1),
		Timestamp: ts,
	}
}

func feed(ev Evaluator, symbol string, prices []float64) *signal.Signal {
	var last *signal.Signal
	for i, p := range prices {
		last = ev.Analyze(tick(symbol, p, int64(i+1)*1000))
	}
	return last
}

func oscillating(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = lo
		} else {
			out[i] = hi
		}
	}
	return out
}

func TestMeanReversion_SellsOutlierAboveBand(t *testing.T) {
	ev := NewMeanReversion("MeanReversion", MeanReversionParams{})
	prices := append(oscillating(19, 98.5, 101.5), 106)

	sig := feed(ev, "BTCUSDT", prices)
	require.NotNil(t, sig)
	assert.Equal(t, signal.Sell, sig.Type)
	assert.Equal(t, "MeanReversion", sig.Strategy)
	assert.InDelta(t, 2.93, sig.Meta(signal.MetaZScore), 0.02)
	assert.InDelta(t, 2.93/3, sig.Confidence, 0.01)
	assert.Less(t, sig.Meta(signal.MetaVolatility), 0.05)

	require.NotNil(t, sig.Targets)
	assert.True(t, sig.Targets.StopLoss.GreaterThan(sig.Price), "short stop sits above entry")
	assert.True(t, sig.Targets.TakeProfit.LessThan(sig.Price))
	assert.InDelta(t, 2.0, sig.Targets.RiskRewardRatio, 1e-9)
	require.NotNil(t, sig.Performance)
}

func TestMeanReversion_BuysOutlierBelowBand(t *testing.T) {
	ev := NewMeanReversion("mr", MeanReversionParams{})
	prices := append(oscillating(19, 98.5, 101.5), 94)
	sig := feed(ev, "ETHUSDT", prices)
	require.NotNil(t, sig)
	assert.Equal(t, signal.Buy, sig.Type)
	assert.Less(t, sig.Meta(signal.MetaZScore), -2.0)
}

func TestMeanReversion_QuietWhileWindowFilling(t *testing.T) {
	ev := NewMeanReversion("mr", MeanReversionParams{})
	prices := append(oscillating(10, 98.5, 101.5), 130)
	assert.Nil(t, feed(ev, "BTCUSDT", prices))
	assert.Equal(t, 11, ev.WindowLen("BTCUSDT"))
}

func TestMeanReversion_RegimeDisabledWhenTooVolatile(t *testing.T) {
	ev := NewMeanReversion("mr", MeanReversionParams{})
	// ±10% swings put return volatility far above the 5% ceiling
	prices := append(oscillating(19, 90, 110), 140)
	assert.Nil(t, feed(ev, "BTCUSDT", prices))
}

func TestEvaluators_WindowNeverExceedsLookback(t *testing.T) {
	evs := []Evaluator{
		NewMeanReversion("mr", MeanReversionParams{}),
		NewTrendFollowing("tf", TrendParams{}),
		NewBreakout("bo", BreakoutParams{}),
	}
	for _, ev := range evs {
		for i := 0; i < 120; i++ {
			ev.Analyze(tick("SOLUSDT", 100+float64(i%7), int64(i)))
			assert.LessOrEqual(t, ev.WindowLen("SOLUSDT"), lookbackOf(ev), ev.Name())
		}
		assert.Equal(t, lookbackOf(ev), ev.WindowLen("SOLUSDT"))
		assert.Zero(t, ev.WindowLen("OTHER"))
	}
}

func lookbackOf(ev Evaluator) int {
	switch e := ev.(type) {
	case *MeanReversion:
		return e.params.Lookback
	case *TrendFollowing:
		return e.params.Lookback
	case *Breakout:
		return e.params.Lookback
	}
	return 0
}

func TestEvaluators_WindowKeepsMostRecentPrices(t *testing.T) {
	ev := NewMeanReversion("mr", MeanReversionParams{CommonParams: CommonParams{Lookback: 4}})
	for i := 1; i <= 9; i++ {
		ev.Analyze(tick("BTCUSDT", float64(i), int64(i)))
	}
	st := ev.state("BTCUSDT")
	vals := st.prices.Values()
	require.Len(t, vals, 4)
	for i, want := range []int64{6, 7, 8, 9} {
		assert.True(t, vals[i].Equal(decimal.NewFromInt(want)))
	}
}

func TestTrendFollowing_FollowsRisingMarket(t *testing.T) {
	ev := NewTrendFollowing("TrendFollowing", TrendParams{})
	prices := make([]float64, 30)
	p := 100.0
	for i := range prices {
		if i%2 == 0 {
			p += 3
		} else {
			p -= 1
		}
		prices[i] = p
	}
	sig := feed(ev, "BTCUSDT", prices)
	require.NotNil(t, sig)
	assert.Equal(t, signal.Buy, sig.Type)
	assert.Greater(t, sig.Meta("emaGap"), 0.0)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.True(t, sig.Targets.StopLoss.LessThan(sig.Price))
}

func TestTrendFollowing_RegimeDisabledWhenFlat(t *testing.T) {
	ev := NewTrendFollowing("tf", TrendParams{})
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100
	}
	assert.Nil(t, feed(ev, "BTCUSDT", prices))
}

func TestBreakout_EmitsInDirectionOfMove(t *testing.T) {
	up := NewBreakout("Breakout", BreakoutParams{})
	sig := feed(up, "BTCUSDT", append(oscillating(19, 100, 100.5), 103))
	require.NotNil(t, sig)
	assert.Equal(t, signal.Buy, sig.Type)
	assert.InDelta(t, 0.5, sig.Meta(signal.MetaATR), 0.05)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)

	down := NewBreakout("Breakout", BreakoutParams{})
	sig = feed(down, "BTCUSDT", append(oscillating(19, 100, 100.5), 98))
	require.NotNil(t, sig)
	assert.Equal(t, signal.Sell, sig.Type)
}

func TestBreakout_IgnoresOrdinaryMoves(t *testing.T) {
	ev := NewBreakout("bo", BreakoutParams{})
	assert.Nil(t, feed(ev, "BTCUSDT", append(oscillating(19, 100, 100.5), 101)))
}

func TestEvaluator_PerformanceTracksRealisedReturns(t *testing.T) {
	ev := NewBreakout("bo", BreakoutParams{CommonParams: CommonParams{PerformanceHorizon: 2}})
	sig := feed(ev, "BTCUSDT", append(oscillating(19, 100, 100.5), 103))
	require.NotNil(t, sig)
	assert.Zero(t, ev.Performance().WinRate)

	ev.Analyze(tick("BTCUSDT", 104, 100_000))
	ev.Analyze(tick("BTCUSDT", 105, 101_000))
	perf := ev.Performance()
	assert.Equal(t, 1.0, perf.WinRate)
	assert.Equal(t, maxProfitFactor, perf.ProfitFactor)
}

func TestSummarize(t *testing.T) {
	perf := summarize([]float64{0.02, -0.01, 0.03, -0.01})
	assert.InDelta(t, 0.5, perf.WinRate, 1e-9)
	assert.InDelta(t, 2.5, perf.ProfitFactor, 1e-9)
	assert.Greater(t, perf.Sharpe, 0.0)
	assert.Equal(t, signal.Performance{}, summarize(nil))
}

func TestNew_UnknownKindFailsFast(t *testing.T) {
	_, err := New(Definition{Name: "x", Kind: "martingale"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = New(Definition{Kind: "breakout", Params: map[string]any{"bogus": 1}})
	assert.Error(t, err)

	ev, err := New(Definition{Kind: "trend", Params: map[string]any{"short_period": "8"}})
	require.NoError(t, err)
	assert.Equal(t, KindTrendFollowing, ev.Kind())
	assert.Equal(t, "trend_following", ev.Name())
	assert.Equal(t, 8, ev.(*TrendFollowing).Params().ShortPeriod)
}

func TestBuild_SkipsDisabledAndRejectsDuplicates(t *testing.T) {
	off := false
	evs, err := Build([]Definition{
		{Name: "a", Kind: "breakout"},
		{Name: "b", Kind: "mean_reversion", Enabled: &off},
	})
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	_, err = Build([]Definition{{Name: "a", Kind: "breakout"}, {Name: "a", Kind: "trend"}})
	assert.Error(t, err)

	_, err = Build(nil)
	assert.Error(t, err)
}

func TestParseCatalog(t *testing.T) {
	raw := []byte(`
strategies:
  - name: fast-mr
    kind: mean_reversion
    params:
      lookback: 10
      deviation_threshold: 1.5
  - name: bo
    kind: breakout
`)
	defs, err := ParseCatalog(raw)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	evs, err := Build(defs)
	require.NoError(t, err)
	mr := evs[0].(*MeanReversion)
	assert.Equal(t, 10, mr.Params().Lookback)
	assert.Equal(t, 1.5, mr.Params().DeviationThreshold)
}

func TestParseCatalog_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field": "strategies:\n  - name: a\n    kind: breakout\n    colour: red\n",
		"unknown kind":  "strategies:\n  - name: a\n    kind: grid\n",
		"bad param":     "strategies:\n  - name: a\n    kind: breakout\n    params:\n      volatility_multiplier: -1\n",
		"extra param":   "strategies:\n  - name: a\n    kind: breakout\n    params:\n      deviation_threshold: 2\n",
		"empty":         "strategies: []\n",
	}
	for name, raw := range cases {
		_, err := ParseCatalog([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestLoadCatalog_DefaultsWithoutPath(t *testing.T) {
	defs, err := LoadCatalog("")
	require.NoError(t, err)
	evs, err := Build(defs)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}
