package strategy

import (
	"math"

	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/indicator"
	"teaka/internal/signal"
)

// MeanReversion fades moves that stretch more than DeviationThreshold
// standard deviations away from the window mean.
type MeanReversion struct {
	base
	params MeanReversionParams
}

func NewMeanReversion(name string, p MeanReversionParams) *MeanReversion {
	p.applyDefaults()
	return &MeanReversion{base: newBase(name, KindMeanReversion, p.CommonParams), params: p}
}

func (m *MeanReversion) Params() MeanReversionParams { return m.params }

func (m *MeanReversion) Analyze(tick signal.PriceTick) *signal.Signal {
	st, prices, ok := m.observe(tick)
	if !ok {
		return nil
	}
	vol := indicator.Volatility(prices)
	if vol > m.params.MaxVolatility {
		return nil
	}
	sd := indicator.StdDev(prices)
	if sd <= 0 {
		return nil
	}
	price := convert.DecToFloat(tick.Price)
	z := (price - indicator.SMA(prices)) / sd
	var typ signal.Type
	switch {
	case z < -m.params.DeviationThreshold:
		typ = signal.Buy
	case z > m.params.DeviationThreshold:
		typ = signal.Sell
	default:
		return nil
	}
	meta := m.baseMetadata(prices, vol)
	meta[signal.MetaZScore] = z
	return m.emit(st, tick, typ, math.Min(math.Abs(z)/3, 1), indicator.ATR(prices), meta)
}
