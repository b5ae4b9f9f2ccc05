package strategy

import (
	"math"
	"sync"

	"teaka/internal/pkg/indicator"
	"teaka/internal/pkg/window"
	"teaka/internal/signal"
)

const (
	maxProfitFactor = 10.0
	sharpeBound     = 5.0
)

// PerformanceTracker keeps an evaluator's realised per-signal returns.
// Shared by all symbol workers of one evaluator, hence the mutex.
type PerformanceTracker struct {
	mu      sync.Mutex
	returns *window.Rolling[float64]
}

func NewPerformanceTracker(limit int) *PerformanceTracker {
	if limit <= 0 {
		limit = 500
	}
	return &PerformanceTracker{returns: window.New[float64](limit)}
}

func (p *PerformanceTracker) Record(ret float64) {
	if math.IsNaN(ret) || math.IsInf(ret, 0) {
		return
	}
	p.mu.Lock()
	p.returns.Push(ret)
	p.mu.Unlock()
}

func (p *PerformanceTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returns.Len()
}

// Snapshot summarises the history. An empty history yields zeros.
func (p *PerformanceTracker) Snapshot() signal.Performance {
	p.mu.Lock()
	rets := p.returns.Values()
	p.mu.Unlock()
	return summarize(rets)
}

func summarize(rets []float64) signal.Performance {
	if len(rets) == 0 {
		return signal.Performance{}
	}
	var wins int
	var gains, losses float64
	for _, r := range rets {
		switch {
		case r > 0:
			wins++
			gains += r
		case r < 0:
			losses -= r
		}
	}
	perf := signal.Performance{WinRate: float64(wins) / float64(len(rets))}
	if std := indicator.StdDev(rets); std > 0 {
		perf.Sharpe = math.Max(-sharpeBound, math.Min(sharpeBound, indicator.Mean(rets)/std))
	}
	switch {
	case losses > 0:
		perf.ProfitFactor = math.Min(gains/losses, maxProfitFactor)
	case gains > 0:
		perf.ProfitFactor = maxProfitFactor
	}
	return perf
}
