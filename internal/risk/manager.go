// Package risk validates trades against account solvency, exposure and
// drawdown, and owns the shared open-position book.
package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"teaka/internal/logger"
	"teaka/internal/pkg/convert"
	"teaka/internal/signal"
)

// Check names.
const (
	CheckMinBalance    = "MIN_BALANCE"
	CheckExposure      = "EXPOSURE"
	CheckTotalExposure = "TOTAL_EXPOSURE"
	CheckDrawdown      = "DRAWDOWN"
	CheckDuplicate     = "DUPLICATE_POSITION"
)

// Error codes.
const (
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	CodeInvalidStopLoss       = "INVALID_STOP_LOSS"
	CodeExposureExceeded      = "EXPOSURE_EXCEEDED"
	CodeTotalExposureExceeded = "TOTAL_EXPOSURE_EXCEEDED"
	CodeMaxDrawdownExceeded   = "MAX_DRAWDOWN_EXCEEDED"
	CodeDuplicatePosition     = "DUPLICATE_POSITION"
)

type Config struct {
	MinBalance         float64 `toml:"min_balance"`
	MaxExposure        float64 `toml:"max_exposure"`         // per position, fraction of balance
	TotalExposureLimit float64 `toml:"total_exposure_limit"` // all positions, fraction of balance
	MaxDrawdown        float64 `toml:"max_drawdown"`
	RiskPerTrade       float64 `toml:"risk_per_trade"`
}

func DefaultConfig() Config {
	return Config{
		MinBalance:         100,
		MaxExposure:        1.0,
		TotalExposureLimit: 3.0,
		MaxDrawdown:        0.2,
		RiskPerTrade:       0.01,
	}
}

// AccountInfo is the broker-reported account state.
type AccountInfo struct {
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	PeakEquity decimal.Decimal `json:"peak_equity"`
}

// Drawdown is the fractional decline from peak equity.
func (a AccountInfo) Drawdown() float64 {
	peak := convert.DecToFloat(a.PeakEquity)
	eq := convert.DecToFloat(a.Equity)
	if peak <= 0 || eq <= 0 || eq >= peak {
		return 0
	}
	return (peak - eq) / peak
}

type Check struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
	Message string  `json:"message,omitempty"`
}

type Error struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

// Result keeps every check regardless of outcome.
type Result struct {
	Passed       bool            `json:"passed"`
	Checks       []Check         `json:"checks"`
	Errors       []Error         `json:"errors,omitempty"`
	PositionSize decimal.Decimal `json:"position_size"` // units under the fixed-risk rule
	Exposure     float64         `json:"exposure"`
}

func (r *Result) record(c Check, code string) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Errors = append(r.Errors, Error{Code: code, Message: c.Message, Value: c.Value})
	}
}

// Check returns the named check.
func (r Result) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func (r Result) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Manager 不做短路：每一项检查都会被记录，便于审计。
type Manager struct {
	cfg  Config
	book *Book
}

func NewManager(cfg Config, book *Book) *Manager {
	def := DefaultConfig()
	if cfg.MinBalance < 0 {
		cfg.MinBalance = 0
	}
	if cfg.MaxExposure <= 0 {
		cfg.MaxExposure = def.MaxExposure
	}
	if cfg.TotalExposureLimit <= 0 {
		cfg.TotalExposureLimit = def.TotalExposureLimit
	}
	if cfg.MaxDrawdown <= 0 {
		cfg.MaxDrawdown = def.MaxDrawdown
	}
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = def.RiskPerTrade
	}
	if book == nil {
		book = NewBook()
	}
	return &Manager{cfg: cfg, book: book}
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Book() *Book    { return m.book }

// ValidateTrade runs every check against the account.
func (m *Manager) ValidateTrade(sig signal.Signal, acct AccountInfo) Result {
	var res Result
	balance := convert.DecToFloat(acct.Balance)

	res.record(Check{
		Name:    CheckMinBalance,
		Passed:  balance >= m.cfg.MinBalance,
		Value:   balance,
		Limit:   m.cfg.MinBalance,
		Message: fmt.Sprintf("balance %.2f below minimum %.2f", balance, m.cfg.MinBalance),
	}, CodeInsufficientBalance)

	units, exposure, err := m.fixedRiskExposure(sig, balance)
	res.PositionSize = units
	res.Exposure = exposure
	switch {
	case err != nil:
		res.record(Check{Name: CheckExposure, Passed: false, Limit: m.cfg.MaxExposure, Message: err.Error()}, CodeInvalidStopLoss)
	default:
		res.record(Check{
			Name:    CheckExposure,
			Passed:  exposure <= m.cfg.MaxExposure,
			Value:   exposure,
			Limit:   m.cfg.MaxExposure,
			Message: fmt.Sprintf("position exposure %.2f%% exceeds %.2f%%", exposure*100, m.cfg.MaxExposure*100),
		}, CodeExposureExceeded)
	}

	existing := 0.0
	if balance > 0 {
		existing = convert.DecToFloat(m.book.Notional()) / balance
	}
	total := existing + exposure
	res.record(Check{
		Name:    CheckTotalExposure,
		Passed:  total <= m.cfg.TotalExposureLimit,
		Value:   total,
		Limit:   m.cfg.TotalExposureLimit,
		Message: fmt.Sprintf("total exposure %.2f%% exceeds %.2f%%", total*100, m.cfg.TotalExposureLimit*100),
	}, CodeTotalExposureExceeded)

	dd := acct.Drawdown()
	res.record(Check{
		Name:    CheckDrawdown,
		Passed:  dd <= m.cfg.MaxDrawdown,
		Value:   dd,
		Limit:   m.cfg.MaxDrawdown,
		Message: fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", dd*100, m.cfg.MaxDrawdown*100),
	}, CodeMaxDrawdownExceeded)

	dup := m.book.Has(sig.Symbol)
	dupVal := 0.0
	if dup {
		dupVal = 1
	}
	res.record(Check{
		Name:    CheckDuplicate,
		Passed:  !dup,
		Value:   dupVal,
		Message: fmt.Sprintf("position already open for %s", sig.Symbol),
	}, CodeDuplicatePosition)

	res.Passed = len(res.Errors) == 0
	if !res.Passed {
		logger.Debugf("risk: %s %s rejected errors=%d exposure=%.4f", sig.Symbol, sig.Type, len(res.Errors), exposure)
	}
	return res
}

// fixedRiskExposure sizes the trade so that hitting the stop costs
// RiskPerTrade of balance, and returns the resulting exposure.
func (m *Manager) fixedRiskExposure(sig signal.Signal, balance float64) (decimal.Decimal, float64, error) {
	if sig.Targets == nil || !sig.Targets.StopLoss.IsPositive() {
		return decimal.Zero, 0, fmt.Errorf("signal has no stop loss")
	}
	entry := sig.Targets.Entry
	if !entry.IsPositive() {
		entry = sig.Price
	}
	dist := entry.Sub(sig.Targets.StopLoss).Abs()
	if !dist.IsPositive() {
		return decimal.Zero, 0, fmt.Errorf("stop loss equals entry")
	}
	if balance <= 0 {
		return decimal.Zero, 0, nil
	}
	riskAmount := decimal.NewFromFloat(balance * m.cfg.RiskPerTrade)
	units := riskAmount.DivRound(dist, 8)
	notional := units.Mul(entry)
	exposure := convert.DecToFloat(notional) / balance
	return units, math.Round(exposure*1e8) / 1e8, nil
}

// ClosePosition handles an external close event.
func (m *Manager) ClosePosition(symbol string) (signal.OpenPosition, error) {
	pos, ok := m.book.Remove(symbol)
	if !ok {
		return signal.OpenPosition{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	logger.Infof("risk: position closed symbol=%s size=%s entry=%s", symbol, pos.Size, pos.EntryPrice)
	return pos, nil
}
