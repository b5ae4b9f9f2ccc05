// Package threshold maintains the adaptive stop-loss, take-profit,
// entry-confidence and position-size thresholds.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"teaka/internal/logger"
	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/window"
	"teaka/internal/signal"
)

var (
	ErrNotFound  = errors.New("threshold not found")
	ErrProtected = errors.New("managed threshold cannot be removed")
	ErrInvalid   = errors.New("invalid threshold config")
)

const (
	StopLoss        = "stopLoss"
	TakeProfit      = "takeProfit"
	EntryConfidence = "entryConfidence"
	PositionSize    = "positionSize"
)

// Factors weights the three sub-adjustments; zero disables one.
type Factors struct {
	Volatility   float64 `toml:"volatility" json:"volatility"`
	Performance  float64 `toml:"performance" json:"performance"`
	MarketRegime float64 `toml:"market_regime" json:"market_regime"`
}

// Config is one threshold definition. Min <= Base <= Max.
type Config struct {
	Name    string  `toml:"name" json:"name"`
	Base    float64 `toml:"base" json:"base"`
	Min     float64 `toml:"min" json:"min"`
	Max     float64 `toml:"max" json:"max"`
	Factors Factors `toml:"factors" json:"factors"`
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	for _, v := range []float64{c.Base, c.Min, c.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite bounds", ErrInvalid, c.Name)
		}
	}
	if !(c.Min <= c.Base && c.Base <= c.Max) {
		return fmt.Errorf("%w: %s requires min <= base <= max (%.4f, %.4f, %.4f)", ErrInvalid, c.Name, c.Min, c.Base, c.Max)
	}
	return nil
}

// Threshold is a config plus its current adapted value.
type Threshold struct {
	Config
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketCondition is one regime observation. TrendStrength and Correlation
// are expected in [0,1].
type MarketCondition struct {
	Timestamp     int64   `json:"timestamp"` // unix milliseconds, zero for wall clock
	Volatility    float64 `json:"volatility"`
	TrendStrength float64 `json:"trend_strength"`
	Correlation   float64 `json:"correlation"`
}

// Snapshot is an immutable view published after every change.
type Snapshot struct {
	Version    int64                `json:"version"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Regime     float64              `json:"regime"`
	Thresholds map[string]Threshold `json:"thresholds"`
}

func (s *Snapshot) Value(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	t, ok := s.Thresholds[name]
	return t.Value, ok
}

func (s *Snapshot) Get(name string) (Threshold, bool) {
	if s == nil {
		return Threshold{}, false
	}
	t, ok := s.Thresholds[name]
	return t, ok
}

type EngineConfig struct {
	MinUpdateGap time.Duration `toml:"min_update_gap"`
	HistorySize  int           `toml:"history_size"`
	Thresholds   []Config      `toml:"thresholds"`
}

func DefaultThresholds() []Config {
	return []Config{
		{Name: StopLoss, Base: 0.02, Min: 0.005, Max: 0.05, Factors: Factors{Volatility: 1, Performance: 0.5, MarketRegime: 0.5}},
		{Name: TakeProfit, Base: 0.04, Min: 0.01, Max: 0.1, Factors: Factors{Volatility: 1, Performance: 0.5, MarketRegime: 0.5}},
		{Name: EntryConfidence, Base: 0.7, Min: 0.5, Max: 0.9, Factors: Factors{Volatility: 0.5, Performance: 1, MarketRegime: 0.5}},
		{Name: PositionSize, Base: 0.02, Min: 0.005, Max: 0.05, Factors: Factors{Volatility: 1, Performance: 1, MarketRegime: 0.5}},
	}
}

func isManaged(name string) bool {
	switch name {
	case StopLoss, TakeProfit, EntryConfidence, PositionSize:
		return true
	}
	return false
}

// direction of each sub-adjustment per managed threshold: +1 raises the
// threshold when the input rises, -1 lowers it.
type signs struct{ vol, perf, regime float64 }

var signTable = map[string]signs{
	StopLoss:        {vol: 1, perf: -1, regime: 1},
	TakeProfit:      {vol: 1, perf: 1, regime: 1},
	EntryConfidence: {vol: 1, perf: -1, regime: -1},
	PositionSize:    {vol: -1, perf: 1, regime: 1},
}

var customSigns = signs{vol: 1, perf: 1, regime: 1}

// Engine is single-writer: updates and registrations serialise on mu and
// publish a fresh Snapshot; readers only load the pointer.
type Engine struct {
	gap   time.Duration
	nowFn func() time.Time

	mu         sync.Mutex
	defs       map[string]Config
	history    *window.Rolling[MarketCondition]
	lastUpdate time.Time
	updated    bool

	snap atomic.Pointer[Snapshot]
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.MinUpdateGap <= 0 {
		cfg.MinUpdateGap = 24 * time.Hour
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	defs := make(map[string]Config)
	for _, d := range DefaultThresholds() {
		defs[d.Name] = d
	}
	for _, d := range cfg.Thresholds {
		d.Name = strings.TrimSpace(d.Name)
		if err := d.validate(); err != nil {
			return nil, err
		}
		defs[d.Name] = d
	}
	e := &Engine{
		gap:     cfg.MinUpdateGap,
		nowFn:   time.Now,
		defs:    defs,
		history: window.New[MarketCondition](cfg.HistorySize),
	}
	values := make(map[string]Threshold, len(defs))
	now := e.nowFn()
	for name, d := range defs {
		values[name] = Threshold{Config: d, Value: d.Base, UpdatedAt: now}
	}
	e.snap.Store(&Snapshot{Version: 1, UpdatedAt: now, Regime: 0.5, Thresholds: values})
	return e, nil
}

// Snapshot returns the current published view. Never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

func (e *Engine) Get(name string) (Threshold, error) {
	t, ok := e.Snapshot().Get(name)
	if !ok {
		return Threshold{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

func (e *Engine) Value(name string) (float64, error) {
	t, err := e.Get(name)
	if err != nil {
		return 0, err
	}
	return t.Value, nil
}

// BaseFraction feeds the positionSize threshold to the sizer.
func (e *Engine) BaseFraction() (float64, bool) {
	v, err := e.Value(PositionSize)
	return v, err == nil
}

// Names lists registered thresholds in sorted order.
func (e *Engine) Names() []string {
	snap := e.Snapshot()
	out := make([]string, 0, len(snap.Thresholds))
	for name := range snap.Thresholds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Register adds or replaces a threshold. The value resets to Base.
func (e *Engine) Register(cfg Config) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if err := cfg.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[cfg.Name] = cfg
	e.publish(func(m map[string]Threshold, now time.Time) {
		m[cfg.Name] = Threshold{Config: cfg, Value: cfg.Base, UpdatedAt: now}
	}, nil)
	logger.Infof("threshold registered name=%s base=%.4f range=[%.4f, %.4f]", cfg.Name, cfg.Base, cfg.Min, cfg.Max)
	return nil
}

// Remove deletes a custom threshold.
func (e *Engine) Remove(name string) error {
	name = strings.TrimSpace(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if isManaged(name) {
		return fmt.Errorf("%w: %s", ErrProtected, name)
	}
	delete(e.defs, name)
	e.publish(func(m map[string]Threshold, _ time.Time) { delete(m, name) }, nil)
	return nil
}

// RecordMarketCondition appends to the regime history without recomputing.
func (e *Engine) RecordMarketCondition(cond MarketCondition) {
	e.mu.Lock()
	e.history.Push(sanitize(cond))
	e.mu.Unlock()
}

func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// UpdateThresholds records cond and, unless the previous update is more
// recent than the minimum gap, recomputes every threshold. It reports
// whether a recompute happened.
func (e *Engine) UpdateThresholds(cond MarketCondition, perf *signal.Performance) bool {
	cond = sanitize(cond)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Push(cond)

	at := e.nowFn()
	if cond.Timestamp > 0 {
		at = time.UnixMilli(cond.Timestamp)
	}
	if e.updated && at.Sub(e.lastUpdate) < e.gap {
		return false
	}
	e.updated = true
	e.lastUpdate = at

	hist := e.history.Values()
	volZ := volatilityZ(hist, cond.Volatility)
	perfScore := performanceScore(perf)
	regime := Regime(hist)

	e.publish(func(m map[string]Threshold, now time.Time) {
		for name, def := range e.defs {
			sg, ok := signTable[name]
			if !ok {
				sg = customSigns
			}
			factor := adjustment(def.Factors, sg, volZ, perfScore, regime)
			m[name] = Threshold{
				Config:    def,
				Value:     convert.Clamp(def.Base*factor, def.Min, def.Max),
				UpdatedAt: now,
			}
		}
	}, &regime)
	logger.Infof("thresholds updated regime=%.3f vol_z=%.3f perf=%.3f", regime, volZ, perfScore)
	return true
}

// publish copies the current snapshot, applies mutate and stores the result.
// Caller holds mu.
func (e *Engine) publish(mutate func(map[string]Threshold, time.Time), regime *float64) {
	prev := e.snap.Load()
	next := &Snapshot{
		Version:    prev.Version + 1,
		UpdatedAt:  e.nowFn(),
		Regime:     prev.Regime,
		Thresholds: make(map[string]Threshold, len(prev.Thresholds)+1),
	}
	for k, v := range prev.Thresholds {
		next.Thresholds[k] = v
	}
	if regime != nil {
		next.Regime = *regime
	}
	mutate(next.Thresholds, next.UpdatedAt)
	e.snap.Store(next)
}

func sanitize(c MarketCondition) MarketCondition {
	c.Volatility = math.Max(convert.Finite(c.Volatility, 0), 0)
	c.TrendStrength = convert.Clamp(convert.Finite(c.TrendStrength, 0), 0, 1)
	c.Correlation = convert.Clamp(math.Abs(convert.Finite(c.Correlation, 0)), 0, 1)
	return c
}
