package threshold

import (
	"math"

	"github.com/shopspring/decimal"

	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/indicator"
	"teaka/internal/signal"
)

const (
	recentWindow = 10
	maxZ         = 3.0
	minFactor    = 0.1
)

// volatilityZ scores current volatility against the recorded history,
// clamped to ±maxZ.
func volatilityZ(hist []MarketCondition, current float64) float64 {
	if len(hist) < 2 {
		return 0
	}
	vols := make([]float64, len(hist))
	for i, c := range hist {
		vols[i] = c.Volatility
	}
	return convert.Clamp(indicator.ZScore(vols, current), -maxZ, maxZ)
}

// performanceScore blends win rate, Sharpe and profit factor into [-1,1].
// A nil performance is neutral.
func performanceScore(p *signal.Performance) float64 {
	if p == nil {
		return 0
	}
	win := 2*convert.Clamp(p.WinRate, 0, 1) - 1
	sharpe := math.Tanh(convert.Finite(p.Sharpe, 0))
	pf := 0.0
	if p.ProfitFactor > 0 {
		pf = math.Tanh(p.ProfitFactor - 1)
	}
	return convert.Clamp(0.4*win+0.3*sharpe+0.3*pf, -1, 1)
}

// Regime maps the condition history to [0,1]: 0 mean-reverting, 1 trending.
func Regime(hist []MarketCondition) float64 {
	if len(hist) == 0 {
		return 0.5
	}
	last := hist[len(hist)-1]
	var longSum, recentSum float64
	var recentN int
	for i, c := range hist {
		longSum += c.Volatility
		if i >= len(hist)-recentWindow {
			recentSum += c.Volatility
			recentN++
		}
	}
	volRatio := 1.0
	if longAvg := longSum / float64(len(hist)); longAvg > 0 {
		volRatio = (recentSum / float64(recentN)) / longAvg
	}
	r := 0.5*last.TrendStrength + 0.3*convert.Clamp(volRatio/2, 0, 1) + 0.2*last.Correlation
	return convert.Clamp(r, 0, 1)
}

func adjustment(w Factors, sg signs, volZ, perf, regime float64) float64 {
	volF := math.Exp(sg.vol * w.Volatility * 0.1 * volZ)
	perfF := math.Max(1+sg.perf*w.Performance*0.2*perf, minFactor)
	regimeF := math.Max(1+sg.regime*w.MarketRegime*0.2*(2*regime-1), minFactor)
	return convert.Finite(volF*perfF*regimeF, 1)
}

// BoundTargets keeps a signal's stop and take-profit distances, as fractions
// of entry, within [Min, Value] of the stopLoss and takeProfit thresholds.
// The returned copy keeps the original in Origin.
func BoundTargets(sig signal.Signal, snap *Snapshot) signal.Signal {
	if sig.Targets == nil || !sig.Actionable() || snap == nil {
		return sig
	}
	entry := sig.Targets.Entry
	if !entry.IsPositive() {
		entry = sig.Price
	}
	price := convert.DecToFloat(entry)
	if price <= 0 {
		return sig
	}
	sl, okSL := snap.Get(StopLoss)
	tp, okTP := snap.Get(TakeProfit)
	if !okSL && !okTP {
		return sig
	}
	dir := sig.Type.Direction()
	stopFrac := math.Abs(price-convert.DecToFloat(sig.Targets.StopLoss)) / price
	takeFrac := math.Abs(convert.DecToFloat(sig.Targets.TakeProfit)-price) / price
	if okSL {
		stopFrac = convert.Clamp(stopFrac, sl.Min, math.Max(sl.Value, sl.Min))
	}
	if okTP {
		takeFrac = convert.Clamp(takeFrac, tp.Min, math.Max(tp.Value, tp.Min))
	}
	t := signal.Targets{
		Entry:      entry,
		StopLoss:   decimal.NewFromFloat(price * (1 - dir*stopFrac)).Round(8),
		TakeProfit: decimal.NewFromFloat(price * (1 + dir*takeFrac)).Round(8),
	}
	if stopFrac > 0 {
		t.RiskRewardRatio = takeFrac / stopFrac
	}
	return sig.WithTargets(t)
}
