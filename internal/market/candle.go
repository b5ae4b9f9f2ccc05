package market

import (
	"time"

	"github.com/shopspring/decimal"

	"teaka/internal/signal"
)

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Tick collapses a closed candle into one observation at its close time.
func (c Candle) Tick(symbol string) signal.PriceTick {
	ts := c.CloseTime
	if ts <= 0 {
		ts = c.OpenTime
	}
	return signal.PriceTick{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(c.Close),
		Volume:    decimal.NewFromFloat(c.Volume),
		Timestamp: ts,
	}
}

// Ticks converts candles in order, skipping bars without a close.
func Ticks(symbol string, candles []Candle) []signal.PriceTick {
	out := make([]signal.PriceTick, 0, len(candles))
	for _, c := range candles {
		if c.Close <= 0 {
			continue
		}
		out = append(out, c.Tick(symbol))
	}
	return out
}

// closeGrace covers exchange clock skew around the bar boundary.
const closeGrace = 10 * time.Second

// ClosedOnly drops the trailing candle when it is still forming at now.
// Kline endpoints return the live bar last.
func ClosedOnly(candles []Candle, interval time.Duration, now time.Time) []Candle {
	n := len(candles)
	if n == 0 || interval <= 0 || candles[n-1].OpenTime <= 0 {
		return candles
	}
	closesAt := time.UnixMilli(candles[n-1].OpenTime).Add(interval + closeGrace)
	if now.Before(closesAt) {
		return candles[:n-1]
	}
	return candles
}
