// Package strategy implements the closed set of tick evaluators.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/window"
	"teaka/internal/signal"
)

// ErrUnknownKind is returned for a strategy kind outside the built-in set.
var ErrUnknownKind = errors.New("unknown strategy kind")

type Kind string

const (
	KindMeanReversion  Kind = "mean_reversion"
	KindTrendFollowing Kind = "trend_following"
	KindBreakout       Kind = "breakout"
)

func Kinds() []Kind {
	return []Kind{KindMeanReversion, KindTrendFollowing, KindBreakout}
}

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindMeanReversion, KindTrendFollowing, KindBreakout:
		return k, nil
	case "meanreversion", "mean-reversion":
		return KindMeanReversion, nil
	case "trend", "trendfollowing", "trend-following":
		return KindTrendFollowing, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Definition is the declarative form of one evaluator instance.
type Definition struct {
	Name    string         `yaml:"name" json:"name"`
	Kind    string         `yaml:"kind" json:"kind"`
	Enabled *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Evaluator turns ticks into at most one signal each. Implementations keep a
// rolling window per symbol; calls for the same symbol must be serialised by
// the caller, calls for different symbols may run concurrently.
type Evaluator interface {
	Name() string
	Kind() Kind
	Analyze(tick signal.PriceTick) *signal.Signal
	// Warmup feeds history into the window without emitting.
	Warmup(tick signal.PriceTick)
	// WindowLen reports the current window length for symbol.
	WindowLen(symbol string) int
}

// New builds an evaluator from its definition.
func New(def Definition) (Evaluator, error) {
	kind, err := ParseKind(def.Kind)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = string(kind)
	}
	switch kind {
	case KindMeanReversion:
		var p MeanReversionParams
		if err := decodeParams(def.Params, &p); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		return NewMeanReversion(name, p), nil
	case KindTrendFollowing:
		var p TrendParams
		if err := decodeParams(def.Params, &p); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		return NewTrendFollowing(name, p), nil
	case KindBreakout:
		var p BreakoutParams
		if err := decodeParams(def.Params, &p); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		return NewBreakout(name, p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
}

// Build instantiates all enabled definitions. Duplicate names are rejected.
func Build(defs []Definition) ([]Evaluator, error) {
	seen := make(map[string]bool, len(defs))
	out := make([]Evaluator, 0, len(defs))
	for _, def := range defs {
		if !def.IsEnabled() {
			continue
		}
		ev, err := New(def)
		if err != nil {
			return nil, err
		}
		if seen[ev.Name()] {
			return nil, fmt.Errorf("duplicate strategy name: %s", ev.Name())
		}
		seen[ev.Name()] = true
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no enabled strategies")
	}
	return out, nil
}

type pendingTrade struct {
	dir   float64
	entry float64
	age   int
}

type symbolState struct {
	prices  *window.Rolling[decimal.Decimal]
	pending []pendingTrade
}

// base carries the state every evaluator kind shares.
type base struct {
	name   string
	kind   Kind
	common CommonParams
	perf   *PerformanceTracker

	mu     sync.Mutex
	states map[string]*symbolState
}

func newBase(name string, kind Kind, common CommonParams) base {
	return base{
		name:   name,
		kind:   kind,
		common: common,
		perf:   NewPerformanceTracker(common.HistoryLimit),
		states: make(map[string]*symbolState),
	}
}

func (b *base) Name() string { return b.name }
func (b *base) Kind() Kind   { return b.kind }

// Performance exposes the evaluator's realised-return summary.
func (b *base) Performance() signal.Performance { return b.perf.Snapshot() }

func (b *base) state(symbol string) *symbolState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[symbol]
	if !ok {
		st = &symbolState{prices: window.New[decimal.Decimal](b.common.Lookback)}
		b.states[symbol] = st
	}
	return st
}

func (b *base) WindowLen(symbol string) int {
	b.mu.Lock()
	st, ok := b.states[symbol]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return st.prices.Len()
}

func (b *base) Warmup(tick signal.PriceTick) {
	if !tick.Price.IsPositive() {
		return
	}
	b.state(tick.Symbol).prices.Push(tick.Price)
}

// observe pushes the tick, realises matured pending trades and returns the
// window as floats. ok is false until the window is full.
func (b *base) observe(tick signal.PriceTick) (st *symbolState, prices []float64, ok bool) {
	if tick.Symbol == "" || !tick.Price.IsPositive() {
		return nil, nil, false
	}
	st = b.state(tick.Symbol)
	st.prices.Push(tick.Price)
	price := convert.DecToFloat(tick.Price)
	kept := st.pending[:0]
	for _, p := range st.pending {
		p.age++
		if p.age >= b.common.PerformanceHorizon {
			b.perf.Record(p.dir * (price - p.entry) / p.entry)
			continue
		}
		kept = append(kept, p)
	}
	st.pending = kept
	if !st.prices.Full() {
		return st, nil, false
	}
	return st, convert.DecSlice(st.prices.Values()), true
}

// emit builds the signal with ATR-scaled targets and registers it for
// performance tracking.
func (b *base) emit(st *symbolState, tick signal.PriceTick, typ signal.Type, confidence, atr float64, meta map[string]float64) *signal.Signal {
	price := convert.DecToFloat(tick.Price)
	if atr <= 0 {
		atr = price * 0.001
	}
	dir := typ.Direction()
	stop := price - dir*atr*b.common.StopATRMultiple
	take := price + dir*atr*b.common.TakeProfitATRMultiple
	rr := 0.0
	if risk := math.Abs(price - stop); risk > 0 {
		rr = math.Abs(take-price) / risk
	}
	perf := b.perf.Snapshot()
	if meta == nil {
		meta = make(map[string]float64)
	}
	meta[signal.MetaATR] = atr
	st.pending = append(st.pending, pendingTrade{dir: dir, entry: price})
	return &signal.Signal{
		Symbol:     tick.Symbol,
		Type:       typ,
		Confidence: convert.Clamp(confidence, 0, 1),
		Price:      tick.Price,
		Timestamp:  tick.Timestamp,
		Strategy:   b.name,
		Metadata:   meta,
		Targets: &signal.Targets{
			Entry:           tick.Price,
			StopLoss:        convert.DecFromFloat(stop).Round(8),
			TakeProfit:      convert.DecFromFloat(take).Round(8),
			RiskRewardRatio: rr,
		},
		Performance: &perf,
	}
}

// baseMetadata captures the anomaly inputs the gate inspects.
func (b *base) baseMetadata(prices []float64, volatility float64) map[string]float64 {
	meta := map[string]float64{
		signal.MetaVolatility:      volatility,
		signal.MetaVolatilityScore: volatility / b.common.ReferenceVolatility,
	}
	if n := len(prices); n >= 2 && prices[n-2] != 0 {
		meta[signal.MetaPriceChange] = (prices[n-1] - prices[n-2]) / prices[n-2]
	}
	return meta
}
