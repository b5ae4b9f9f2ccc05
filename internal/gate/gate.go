// Package gate is the last policy check before an order reaches a broker.
// It enforces per-symbol cooldown, the open-position ceiling, anomaly
// rejection and correlation blocking, then reserves the position.
package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"teaka/internal/correlation"
	"teaka/internal/journal"
	"teaka/internal/logger"
	"teaka/internal/risk"
	"teaka/internal/signal"
	"teaka/internal/sizing"
)

const ReasonMaxPositions = "Maximum positions reached"

type Config struct {
	CooldownMinutes        float64 `toml:"cooldown_minutes"`
	MaxPositions           int     `toml:"max_positions"`
	CorrelationThreshold   float64 `toml:"correlation_threshold"`
	AnomalyZScore          float64 `toml:"anomaly_z_score"`
	AnomalyVolatilityScore float64 `toml:"anomaly_volatility_score"`
	AnomalyPriceChange     float64 `toml:"anomaly_price_change"`
}

func DefaultConfig() Config {
	return Config{
		CooldownMinutes:        15,
		MaxPositions:           5,
		CorrelationThreshold:   0.7,
		AnomalyZScore:          4,
		AnomalyVolatilityScore: 3,
		AnomalyPriceChange:     0.1,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.CooldownMinutes < 0 {
		c.CooldownMinutes = 0
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = def.MaxPositions
	}
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
	if c.AnomalyZScore <= 0 {
		c.AnomalyZScore = def.AnomalyZScore
	}
	if c.AnomalyVolatilityScore <= 0 {
		c.AnomalyVolatilityScore = def.AnomalyVolatilityScore
	}
	if c.AnomalyPriceChange <= 0 {
		c.AnomalyPriceChange = def.AnomalyPriceChange
	}
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes * float64(time.Minute))
}

// Reservation is the handle returned with an approved decision. Exactly one
// of Confirm or Rollback must follow.
type Reservation struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	TradeAt   time.Time `json:"trade_at"`
	prevTrade time.Time
	hadPrev   bool
}

type Decision struct {
	Executed    bool                `json:"executed"`
	Reason      string              `json:"reason,omitempty"`
	Size        decimal.Decimal     `json:"size"`  // notional
	Units       decimal.Decimal     `json:"units"` // size / price
	Adjustments *sizing.Adjustments `json:"adjustments,omitempty"`
	Reservation *Reservation        `json:"reservation,omitempty"`
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.nowFn = now }
}

func WithJournal(store journal.EventStore) Option {
	return func(g *Gate) {
		if store != nil {
			g.journal = store
		}
	}
}

// Gate 对同一 symbol 的决策由上游串行化；跨 symbol 的共享状态由 mu 与 Book 保护。
type Gate struct {
	cfg     Config
	sizer   *sizing.Sizer
	book    *risk.Book
	corr    *correlation.Provider
	journal journal.EventStore
	nowFn   func() time.Time

	mu        sync.Mutex
	lastTrade map[string]time.Time
}

func New(cfg Config, sizer *sizing.Sizer, book *risk.Book, corr *correlation.Provider, opts ...Option) *Gate {
	cfg.applyDefaults()
	if book == nil {
		book = risk.NewBook()
	}
	if corr == nil {
		corr = correlation.NewProvider(nil)
	}
	if sizer == nil {
		sizer = sizing.New(sizing.DefaultConfig(), nil)
	}
	g := &Gate{
		cfg:       cfg,
		sizer:     sizer,
		book:      book,
		corr:      corr,
		journal:   journal.Nop{},
		nowFn:     time.Now,
		lastTrade: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Config() Config                     { return g.cfg }
func (g *Gate) Book() *risk.Book                   { return g.book }
func (g *Gate) Correlation() *correlation.Provider { return g.corr }

// ExecuteSignal runs the guards in order and, when all pass, sizes the
// order and reserves the position. No state changes on rejection.
// acct.CurrentExposure is raised to the book's own exposure.
func (g *Gate) ExecuteSignal(sig signal.Signal, acct sizing.AccountInfo) Decision {
	if !sig.Actionable() {
		return reject("Signal is not actionable: %s", sig.Type)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()

	last, hadPrev := g.lastTrade[sig.Symbol]
	if hadPrev {
		if elapsed := now.Sub(last); elapsed < g.cfg.Cooldown() {
			return reject("Symbol %s in cooldown (%s remaining)", sig.Symbol, (g.cfg.Cooldown() - elapsed).Round(time.Second))
		}
	}
	if g.book.Count() >= g.cfg.MaxPositions {
		return Decision{Reason: ReasonMaxPositions}
	}
	if reason := g.anomaly(sig); reason != "" {
		return Decision{Reason: reason}
	}
	open := g.book.Symbols()
	corr, with := g.corr.Matrix().Strongest(sig.Symbol, open)
	if math.Abs(corr) > g.cfg.CorrelationThreshold {
		return reject("High correlation with open position %s (%.2f)", with, corr)
	}

	acct.Correlation = corr
	acct.CurrentExposure = math.Max(acct.CurrentExposure, g.exposure(acct.Balance))
	sized := g.sizer.CalculatePositionSize(sig, acct)
	if !sized.Size.IsPositive() {
		return Decision{Reason: "Position size is zero", Adjustments: &sized.Adjustments}
	}
	units := sizing.Units(sized.Size, sig.Price)
	pos := signal.OpenPosition{
		Symbol:     sig.Symbol,
		Side:       sig.Type,
		Size:       units,
		EntryPrice: sig.Price,
		Timestamp:  now.UnixMilli(),
		Status:     signal.PositionPending,
	}
	if err := g.book.Reserve(pos, g.cfg.MaxPositions); err != nil {
		if errors.Is(err, risk.ErrCapacity) {
			return Decision{Reason: ReasonMaxPositions}
		}
		return reject("Reservation failed: %v", err)
	}
	g.lastTrade[sig.Symbol] = now

	res := &Reservation{ID: uuid.NewString(), Symbol: sig.Symbol, TradeAt: now, prevTrade: last, hadPrev: hadPrev}
	evt := journal.NewEvent(journal.EventReserved, pos)
	evt.ID = res.ID
	evt.TradeAt = now.UnixMilli()
	if hadPrev {
		evt.PrevTrade = last.UnixMilli()
	}
	g.append(evt)

	return Decision{
		Executed:    true,
		Size:        sized.Size,
		Units:       units,
		Adjustments: &sized.Adjustments,
		Reservation: res,
	}
}

// exposure is the booked notional as a fraction of balance. Callers hold
// g.mu, so a decision always sees the reservations made before it.
func (g *Gate) exposure(balance decimal.Decimal) float64 {
	if !balance.IsPositive() {
		return 0
	}
	return g.book.Notional().Div(balance).InexactFloat64()
}

func (g *Gate) anomaly(sig signal.Signal) string {
	if z := sig.Meta(signal.MetaZScore); math.Abs(z) > g.cfg.AnomalyZScore {
		return fmt.Sprintf("Anomaly detected: extreme z-score %.2f", z)
	}
	if v := sig.Meta(signal.MetaVolatilityScore); v > g.cfg.AnomalyVolatilityScore {
		return fmt.Sprintf("Anomaly detected: extreme volatility score %.2f", v)
	}
	if pc := sig.Meta(signal.MetaPriceChange); math.Abs(pc) > g.cfg.AnomalyPriceChange {
		return fmt.Sprintf("Anomaly detected: extreme price change %.2f%%", pc*100)
	}
	return ""
}

// Confirm marks the reserved position open with the broker fill.
func (g *Gate) Confirm(res *Reservation, orderID string, units, price decimal.Decimal) (signal.OpenPosition, error) {
	if res == nil {
		return signal.OpenPosition{}, fmt.Errorf("confirm: nil reservation")
	}
	pos, err := g.book.Confirm(res.Symbol, orderID, units, price)
	if err != nil {
		return signal.OpenPosition{}, err
	}
	g.append(journal.NewEvent(journal.EventConfirmed, pos))
	return pos, nil
}

// Rollback frees the reservation and restores the previous cooldown stamp.
func (g *Gate) Rollback(res *Reservation, reason string) {
	if res == nil {
		return
	}
	g.mu.Lock()
	pos, _ := g.book.Remove(res.Symbol)
	if cur, ok := g.lastTrade[res.Symbol]; ok && cur.Equal(res.TradeAt) {
		if res.hadPrev {
			g.lastTrade[res.Symbol] = res.prevTrade
		} else {
			delete(g.lastTrade, res.Symbol)
		}
	}
	g.mu.Unlock()

	if pos.Symbol == "" {
		pos.Symbol = res.Symbol
	}
	evt := journal.NewEvent(journal.EventRolledBack, pos)
	evt.Reason = reason
	if res.hadPrev {
		evt.PrevTrade = res.prevTrade.UnixMilli()
	}
	g.append(evt)
	logger.Warnf("gate: reservation rolled back symbol=%s reason=%s", res.Symbol, reason)
}

// RecordClose journals a position closed by the risk manager.
func (g *Gate) RecordClose(pos signal.OpenPosition) {
	g.append(journal.NewEvent(journal.EventClosed, pos))
}

// UpdateCorrelationMatrix replaces the correlation snapshot.
func (g *Gate) UpdateCorrelationMatrix(raw map[string]map[string]float64) error {
	m, err := correlation.NewMatrix(raw)
	if err != nil {
		return err
	}
	g.corr.Update(m)
	return nil
}

func (g *Gate) CorrelationMatrix() map[string]map[string]float64 {
	return g.corr.Matrix().Raw()
}

// LastTrade reports the cooldown stamp for symbol.
func (g *Gate) LastTrade(symbol string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastTrade[symbol]
	return t, ok
}

func (g *Gate) append(evt journal.Event) {
	if err := g.journal.Append(context.Background(), evt); err != nil {
		logger.Errorf("gate: journal append failed type=%s symbol=%s: %v", evt.Type, evt.Symbol, err)
	}
}

// Recover replays the journal into the book and cooldown stamps. Pending
// reservations without an outcome are kept so capacity is never overshot.
func (g *Gate) Recover(ctx context.Context) error {
	events, err := g.journal.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("gate recover: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, evt := range events {
		switch evt.Type {
		case journal.EventReserved:
			g.book.Restore(evt.Position)
			if evt.TradeAt > 0 {
				g.lastTrade[evt.Symbol] = time.UnixMilli(evt.TradeAt)
			}
		case journal.EventConfirmed:
			g.book.Restore(evt.Position)
		case journal.EventRolledBack:
			g.book.Remove(evt.Symbol)
			if evt.PrevTrade > 0 {
				g.lastTrade[evt.Symbol] = time.UnixMilli(evt.PrevTrade)
			} else {
				delete(g.lastTrade, evt.Symbol)
			}
		case journal.EventClosed:
			g.book.Remove(evt.Symbol)
		}
	}
	pending := 0
	for _, pos := range g.book.List() {
		if pos.Status == signal.PositionPending {
			pending++
			logger.Warnf("gate: recovered unconfirmed reservation symbol=%s", pos.Symbol)
		}
	}
	logger.Infof("gate: recovered %d events positions=%d pending=%d", len(events), g.book.Count(), pending)
	return nil
}
