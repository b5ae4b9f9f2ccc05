package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"teaka/internal/risk"
	"teaka/internal/signal"
)

type PaperConfig struct {
	Balance     decimal.Decimal
	SlippageBps float64
	Latency     time.Duration
}

// PaperExecutor fills every valid order at the requested price plus
// slippage. It also acts as the account provider in paper mode.
type PaperExecutor struct {
	cfg PaperConfig
	seq atomic.Int64

	mu      sync.Mutex
	balance decimal.Decimal
	peak    decimal.Decimal
	fills   []Fill
}

func NewPaperExecutor(cfg PaperConfig) *PaperExecutor {
	if !cfg.Balance.IsPositive() {
		cfg.Balance = decimal.NewFromInt(10000)
	}
	return &PaperExecutor{cfg: cfg, balance: cfg.Balance, peak: cfg.Balance}
}

func (p *PaperExecutor) Name() string { return "paper" }

func (p *PaperExecutor) Execute(ctx context.Context, order Order) (*Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if !order.Price.IsPositive() {
		return nil, &Error{Code: CodeValidation, Message: "paper fills need a reference price"}
	}
	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	slip := decimal.NewFromFloat(p.cfg.SlippageBps / 10000)
	price := order.Price
	if order.Action == signal.Buy {
		price = price.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	fill := Fill{
		OrderID: fmt.Sprintf("paper-%d", p.seq.Add(1)),
		Symbol:  order.Symbol,
		Units:   order.Size,
		Price:   price.Round(8),
		Comment: order.Comment,
		Venue:   p.Name(),
	}
	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()
	return &fill, nil
}

// Fills returns a copy of every fill so far.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

// SetBalance moves the account balance, tracking the equity peak.
func (p *PaperExecutor) SetBalance(b decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = b
	if b.GreaterThan(p.peak) {
		p.peak = b
	}
}

func (p *PaperExecutor) Account(context.Context) (risk.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return risk.AccountInfo{Balance: p.balance, Equity: p.balance, PeakEquity: p.peak}, nil
}
