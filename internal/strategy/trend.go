package strategy

import (
	"math"

	"teaka/internal/pkg/indicator"
	"teaka/internal/signal"
)

// TrendFollowing follows the direction of the short/long EMA spread. It only
// trades when the market moves enough to carry a trend.
type TrendFollowing struct {
	base
	params TrendParams
}

func NewTrendFollowing(name string, p TrendParams) *TrendFollowing {
	p.applyDefaults()
	return &TrendFollowing{base: newBase(name, KindTrendFollowing, p.CommonParams), params: p}
}

func (t *TrendFollowing) Params() TrendParams { return t.params }

func (t *TrendFollowing) Analyze(tick signal.PriceTick) *signal.Signal {
	st, prices, ok := t.observe(tick)
	if !ok {
		return nil
	}
	vol := indicator.Volatility(prices)
	if vol < t.params.MinVolatility {
		return nil
	}
	short := indicator.EMA(prices, t.params.ShortPeriod)
	long := indicator.EMA(prices, t.params.LongPeriod)
	if long <= 0 {
		return nil
	}
	gap := (short - long) / long
	if math.Abs(gap) < t.params.MinGap {
		return nil
	}
	typ := signal.Buy
	if gap < 0 {
		typ = signal.Sell
	}
	meta := t.baseMetadata(prices, vol)
	meta["emaShort"] = short
	meta["emaLong"] = long
	meta["emaGap"] = gap
	return t.emit(st, tick, typ, math.Min(math.Abs(gap)/t.params.GapScale, 1), indicator.ATR(prices), meta)
}
