package strategy

import (
	"math"

	"teaka/internal/pkg/indicator"
	"teaka/internal/signal"
)

// Breakout fires when the latest tick-to-tick move is a multiple of the
// ATR measured over the preceding ticks.
type Breakout struct {
	base
	params BreakoutParams
}

func NewBreakout(name string, p BreakoutParams) *Breakout {
	p.applyDefaults()
	return &Breakout{base: newBase(name, KindBreakout, p.CommonParams), params: p}
}

func (b *Breakout) Params() BreakoutParams { return b.params }

func (b *Breakout) Analyze(tick signal.PriceTick) *signal.Signal {
	st, prices, ok := b.observe(tick)
	if !ok || len(prices) < 3 {
		return nil
	}
	vol := indicator.Volatility(prices)
	if vol > b.params.MaxVolatility {
		return nil
	}
	n := len(prices)
	atr := indicator.ATR(prices[:n-1])
	if atr <= 0 {
		return nil
	}
	move := prices[n-1] - prices[n-2]
	ratio := math.Abs(move) / atr
	if ratio <= b.params.VolatilityMultiplier {
		return nil
	}
	typ := signal.Buy
	if move < 0 {
		typ = signal.Sell
	}
	meta := b.baseMetadata(prices, vol)
	meta["atrRatio"] = ratio
	return b.emit(st, tick, typ, math.Min(ratio/(2*b.params.VolatilityMultiplier), 1), atr, meta)
}
