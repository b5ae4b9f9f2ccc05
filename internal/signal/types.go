// Package signal holds the value types that flow through the decision pipeline.
package signal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is one market observation. Produced by the tick source and
// broadcast to every evaluator; never mutated.
type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

func (t PriceTick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

type Type string

const (
	Buy  Type = "BUY"
	Sell Type = "SELL"
	Hold Type = "HOLD"
)

// ParseType normalises buy/sell/hold aliases; unknown input maps to Hold.
func ParseType(raw string) Type {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG":
		return Buy
	case "SELL", "SHORT", "OPEN_SHORT":
		return Sell
	default:
		return Hold
	}
}

// Direction is +1 for Buy, -1 for Sell and 0 otherwise.
func (t Type) Direction() float64 {
	switch t {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

type Targets struct {
	Entry           decimal.Decimal `json:"entry"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	RiskRewardRatio float64         `json:"risk_reward_ratio"`
}

type Performance struct {
	Sharpe       float64 `json:"sharpe"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Well-known metadata keys written by evaluators and read by the gate.
const (
	MetaZScore          = "zScore"
	MetaVolatility      = "volatility"
	MetaVolatilityScore = "volatilityScore"
	MetaPriceChange     = "priceChange"
	MetaATR             = "atr"
	MetaCorrelation     = "correlation"
)

// Signal is a directional recommendation. Values are read-only once built;
// the With* helpers return copies whose Origin points at the unmodified
// signal so the evaluator output survives in the audit trail.
type Signal struct {
	Symbol      string             `json:"symbol"`
	Type        Type               `json:"type"`
	Confidence  float64            `json:"confidence"`
	Price       decimal.Decimal    `json:"price"`
	Timestamp   int64              `json:"timestamp"`
	Strategy    string             `json:"strategy"`
	Metadata    map[string]float64 `json:"metadata,omitempty"`
	Targets     *Targets           `json:"targets,omitempty"`
	Performance *Performance       `json:"performance,omitempty"`
	Origin      *Signal            `json:"origin,omitempty"`
}

func (s Signal) Actionable() bool {
	return s.Type == Buy || s.Type == Sell
}

// Meta returns a metadata value, zero when missing.
func (s Signal) Meta(key string) float64 {
	if s.Metadata == nil {
		return 0
	}
	return s.Metadata[key]
}

func (s Signal) clone() Signal {
	cp := s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]float64, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	if s.Targets != nil {
		t := *s.Targets
		cp.Targets = &t
	}
	if s.Performance != nil {
		p := *s.Performance
		cp.Performance = &p
	}
	return cp
}

func (s Signal) origin() *Signal {
	if s.Origin != nil {
		return s.Origin
	}
	orig := s.clone()
	return &orig
}

// WithConfidence returns a copy carrying a replaced confidence.
func (s Signal) WithConfidence(c float64) Signal {
	cp := s.clone()
	cp.Origin = s.origin()
	cp.Confidence = c
	return cp
}

// WithMetadata returns a copy with key set to v.
func (s Signal) WithMetadata(key string, v float64) Signal {
	cp := s.clone()
	cp.Origin = s.origin()
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]float64, 1)
	}
	cp.Metadata[key] = v
	return cp
}

// WithTargets returns a copy with replaced targets.
func (s Signal) WithTargets(t Targets) Signal {
	cp := s.clone()
	cp.Origin = s.origin()
	cp.Targets = &t
	return cp
}

type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionOpen    PositionStatus = "open"
)

// OpenPosition is reserved by the gate and confirmed after the broker fills.
type OpenPosition struct {
	Symbol     string          `json:"symbol"`
	Side       Type            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Timestamp  int64           `json:"timestamp"`
	OrderID    string          `json:"order_id,omitempty"`
	Status     PositionStatus  `json:"status"`
}

// Notional returns size × entry price.
func (p OpenPosition) Notional() decimal.Decimal {
	return p.Size.Mul(p.EntryPrice)
}
