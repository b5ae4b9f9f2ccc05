package market

import (
	"context"

	"github.com/shopspring/decimal"

	"teaka/internal/signal"
)

// TickEvent 成交流事件（aggTrade）
type TickEvent struct {
	Symbol    string
	Price     float64
	Quantity  float64
	EventTime int64
	TradeTime int64
}

// PriceTick converts the event; trade time wins over event time.
func (e TickEvent) PriceTick() signal.PriceTick {
	ts := e.TradeTime
	if ts <= 0 {
		ts = e.EventTime
	}
	return signal.PriceTick{
		Symbol:    e.Symbol,
		Price:     decimal.NewFromFloat(e.Price),
		Volume:    decimal.NewFromFloat(e.Quantity),
		Timestamp: ts,
	}
}

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int    `json:"reconnects"`
	SubscribeErrors int    `json:"subscribe_errors"`
	LastError       string `json:"last_error,omitempty"`
}

// TickSource is the market data boundary: live trades plus closed-bar history
// for warmup.
type TickSource interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TickEvent, error)

	Stats() SourceStats

	Close() error
}
