// Package sizing converts an accepted signal into an order notional.
package sizing

import (
	"math"

	"github.com/shopspring/decimal"

	"teaka/internal/pkg/convert"
	"teaka/internal/signal"
)

const (
	baselineVolatility = 0.02
	maxVolatilityBoost = 2.0
	maxConfidenceBoost = 1.5
)

type Config struct {
	BaseSize             float64 `toml:"base_size"`              // fraction of balance
	MaxPositionSize      float64 `toml:"max_position_size"`      // fraction of balance
	MaxPortfolioExposure float64 `toml:"max_portfolio_exposure"` // fraction of balance
	VolatilityScaling    bool    `toml:"volatility_scaling"`
	CorrelationScaling   bool    `toml:"correlation_scaling"`
	ConfidenceScaling    bool    `toml:"confidence_scaling"`
	PerformanceScaling   bool    `toml:"performance_scaling"`
}

func DefaultConfig() Config {
	return Config{
		BaseSize:             0.02,
		MaxPositionSize:      0.1,
		MaxPortfolioExposure: 0.5,
		VolatilityScaling:    true,
		CorrelationScaling:   true,
		ConfidenceScaling:    true,
	}
}

// AccountInfo is the account state a sizing decision sees.
type AccountInfo struct {
	Balance decimal.Decimal
	// CurrentExposure is the committed fraction of balance.
	CurrentExposure float64
	Volatility      float64
	// Correlation with the most correlated open position, in [-1,1].
	Correlation float64
}

// Adjustments records every factor applied, for the audit trail.
type Adjustments struct {
	BaseFraction    float64 `json:"base_fraction"`
	Volatility      float64 `json:"volatility"`
	Correlation     float64 `json:"correlation"`
	Confidence      float64 `json:"confidence"`
	Performance     float64 `json:"performance"`
	MaxSize         float64 `json:"max_size"`
	RemainingBudget float64 `json:"remaining_budget"`
	Clamped         bool    `json:"clamped"`
}

type Result struct {
	Size        decimal.Decimal `json:"size"` // notional in account currency
	Adjustments Adjustments     `json:"adjustments"`
}

// BaseSource supplies a live base fraction, normally the positionSize
// threshold. ok=false keeps the configured BaseSize.
type BaseSource interface {
	BaseFraction() (float64, bool)
}

type Sizer struct {
	cfg  Config
	base BaseSource
}

func New(cfg Config, base BaseSource) *Sizer {
	def := DefaultConfig()
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = def.BaseSize
	}
	if cfg.MaxPositionSize <= 0 {
		cfg.MaxPositionSize = def.MaxPositionSize
	}
	if cfg.MaxPortfolioExposure <= 0 {
		cfg.MaxPortfolioExposure = def.MaxPortfolioExposure
	}
	return &Sizer{cfg: cfg, base: base}
}

func (s *Sizer) Config() Config { return s.cfg }

func (s *Sizer) CalculatePositionSize(sig signal.Signal, acct AccountInfo) Result {
	adj := Adjustments{
		BaseFraction: s.cfg.BaseSize,
		Volatility:   1,
		Correlation:  1,
		Confidence:   1,
		Performance:  1,
	}
	if s.base != nil {
		if v, ok := s.base.BaseFraction(); ok && v > 0 {
			adj.BaseFraction = v
		}
	}
	balance := convert.DecToFloat(acct.Balance)
	if balance <= 0 {
		return Result{Size: decimal.Zero, Adjustments: adj}
	}

	if s.cfg.VolatilityScaling {
		adj.Volatility = VolatilityFactor(acct.Volatility)
	}
	if s.cfg.CorrelationScaling {
		adj.Correlation = CorrelationFactor(acct.Correlation)
	}
	if s.cfg.ConfidenceScaling {
		adj.Confidence = math.Min(0.5+convert.Clamp(sig.Confidence, 0, 1), maxConfidenceBoost)
	}
	if s.cfg.PerformanceScaling && sig.Performance != nil {
		adj.Performance = PerformanceFactor(*sig.Performance)
	}

	size := adj.BaseFraction * balance * adj.Volatility * adj.Correlation * adj.Confidence * adj.Performance
	adj.MaxSize = s.cfg.MaxPositionSize * balance
	adj.RemainingBudget = math.Max((s.cfg.MaxPortfolioExposure-acct.CurrentExposure)*balance, 0)
	if limit := math.Min(adj.MaxSize, adj.RemainingBudget); size > limit {
		size = limit
		adj.Clamped = true
	}
	size = math.Max(convert.Finite(size, 0), 0)
	return Result{Size: convert.DecFromFloat(size).Round(8), Adjustments: adj}
}

// VolatilityFactor scales inversely with volatility around a 2% baseline.
func VolatilityFactor(vol float64) float64 {
	if vol <= 0 || math.IsNaN(vol) {
		return 1
	}
	return math.Min(baselineVolatility/vol, maxVolatilityBoost)
}

func CorrelationFactor(corr float64) float64 {
	switch {
	case corr > 0.7:
		return 0.5
	case corr > 0.5:
		return 0.75
	case corr < -0.5:
		return 1.25
	default:
		return 1
	}
}

// PerformanceFactor is a Kelly-style edge estimate bounded to [0.5, 1.5].
func PerformanceFactor(p signal.Performance) float64 {
	if p.ProfitFactor <= 0 {
		return 1
	}
	edge := p.WinRate - (1-p.WinRate)/p.ProfitFactor
	return convert.Clamp(0.5+edge, 0.5, 1.5)
}

// Units converts a notional into instrument units at price.
func Units(notional, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return notional.DivRound(price, 8)
}
