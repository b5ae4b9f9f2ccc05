package pipeline

import (
	"math"

	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/indicator"
	"teaka/internal/signal"
	"teaka/internal/threshold"
)

type performanceReporter interface {
	Performance() signal.Performance
}

// MarketCondition summarises the filter's price histories across symbols:
// mean volatility, mean Kaufman efficiency ratio as trend strength, and the
// mean absolute pairwise correlation among tracked symbols.
func (p *Pipeline) MarketCondition() threshold.MarketCondition {
	cond := threshold.MarketCondition{Timestamp: p.nowFn().UnixMilli()}
	syms := p.deps.Filter.Symbols()
	var volSum, trendSum float64
	var n int
	for _, s := range syms {
		prices := p.deps.Filter.Prices(s)
		if len(prices) < 3 {
			continue
		}
		volSum += indicator.Volatility(prices)
		trendSum += efficiencyRatio(prices)
		n++
	}
	if n > 0 {
		cond.Volatility = volSum / float64(n)
		cond.TrendStrength = trendSum / float64(n)
	}
	m := p.deps.Gate.Correlation().Matrix()
	var corrSum float64
	var pairs int
	for i := 0; i < len(syms); i++ {
		for j := i + 1; j < len(syms); j++ {
			corrSum += math.Abs(m.Get(syms[i], syms[j]))
			pairs++
		}
	}
	if pairs > 0 {
		cond.Correlation = corrSum / float64(pairs)
	}
	return cond
}

func efficiencyRatio(prices []float64) float64 {
	net := math.Abs(prices[len(prices)-1] - prices[0])
	var path float64
	for i := 1; i < len(prices); i++ {
		path += math.Abs(prices[i] - prices[i-1])
	}
	if path == 0 {
		return 0
	}
	return convert.Clamp(net/path, 0, 1)
}

// Performance averages the evaluators' realised performance. Nil when no
// evaluator reports any.
func (p *Pipeline) Performance() *signal.Performance {
	var sum signal.Performance
	n := 0
	for _, ev := range p.deps.Aggregator.Evaluators() {
		r, ok := ev.(performanceReporter)
		if !ok {
			continue
		}
		perf := r.Performance()
		sum.Sharpe += perf.Sharpe
		sum.WinRate += perf.WinRate
		sum.ProfitFactor += perf.ProfitFactor
		n++
	}
	if n == 0 {
		return nil
	}
	return &signal.Performance{
		Sharpe:       sum.Sharpe / float64(n),
		WinRate:      sum.WinRate / float64(n),
		ProfitFactor: sum.ProfitFactor / float64(n),
	}
}

// RefreshThresholds feeds the current market condition and performance to
// the threshold engine. Returns true when thresholds changed.
func (p *Pipeline) RefreshThresholds() bool {
	return p.deps.Thresholds.UpdateThresholds(p.MarketCondition(), p.Performance())
}
