// Package consensus resolves the signals of several evaluators into a single
// confidence-weighted vote per symbol.
package consensus

import (
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"teaka/internal/logger"
	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/window"
	"teaka/internal/signal"
	"teaka/internal/strategy"
)

const StrategyName = "Consensus"

// anomalyKeys are carried over from contributors at their largest magnitude so
// downstream sanity checks see the most extreme reading.
var anomalyKeys = []string{
	signal.MetaZScore,
	signal.MetaVolatility,
	signal.MetaVolatilityScore,
	signal.MetaPriceChange,
	signal.MetaATR,
}

type Config struct {
	WindowSize          int     `toml:"window_size"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
}

func (c *Config) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 5
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
}

type symbolVotes struct {
	batches   *window.Rolling[[]signal.Signal]
	sinceEmit int
	emitted   bool
}

// Aggregator fans a tick out to its evaluators and votes over the last
// WindowSize batches. Calls for one symbol must be serialised by the caller.
type Aggregator struct {
	cfg        Config
	evaluators []strategy.Evaluator

	mu      sync.Mutex
	symbols map[string]*symbolVotes
}

func NewAggregator(cfg Config, evaluators ...strategy.Evaluator) *Aggregator {
	cfg.applyDefaults()
	return &Aggregator{
		cfg:        cfg,
		evaluators: evaluators,
		symbols:    make(map[string]*symbolVotes),
	}
}

func (a *Aggregator) Config() Config { return a.cfg }

func (a *Aggregator) Evaluators() []strategy.Evaluator {
	return append([]strategy.Evaluator(nil), a.evaluators...)
}

// Warmup feeds history into every evaluator without voting.
func (a *Aggregator) Warmup(tick signal.PriceTick) {
	for _, ev := range a.evaluators {
		ev.Warmup(tick)
	}
}

// Analyze collects this tick's signals and returns the consensus, or nil when
// no direction clears the confidence threshold. A HOLD consensus is returned
// as-is; callers decide whether it is actionable.
func (a *Aggregator) Analyze(tick signal.PriceTick) *signal.Signal {
	batch := a.collect(tick)
	st := a.state(tick.Symbol)
	st.batches.Push(batch)
	st.sinceEmit++
	if st.emitted && st.sinceEmit < a.cfg.WindowSize {
		return nil
	}
	var flat []signal.Signal
	for _, b := range st.batches.Values() {
		flat = append(flat, b...)
	}
	out := Vote(flat, a.cfg.ConfidenceThreshold)
	if out == nil {
		return nil
	}
	out.Symbol = tick.Symbol
	out.Timestamp = tick.Timestamp
	st.emitted = true
	st.sinceEmit = 0
	return out
}

func (a *Aggregator) state(symbol string) *symbolVotes {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.symbols[symbol]
	if !ok {
		st = &symbolVotes{batches: window.New[[]signal.Signal](a.cfg.WindowSize)}
		a.symbols[symbol] = st
	}
	return st
}

func (a *Aggregator) collect(tick signal.PriceTick) []signal.Signal {
	out := make([]signal.Signal, 0, len(a.evaluators))
	for _, ev := range a.evaluators {
		if sig := safeAnalyze(ev, tick); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

func safeAnalyze(ev strategy.Evaluator, tick signal.PriceTick) (sig *signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("consensus: evaluator %s panic symbol=%s price=%s ts=%d: %v\n%s",
				ev.Name(), tick.Symbol, tick.Price.String(), tick.Timestamp, r, debug.Stack())
			sig = nil
		}
	}()
	return ev.Analyze(tick)
}

type bucket struct {
	weight   float64
	priceW   float64
	best     *signal.Signal
	bestRank float64
}

var voteOrder = []signal.Type{signal.Buy, signal.Sell, signal.Hold}

// Weight is the vote weight of one signal.
func Weight(s signal.Signal) float64 {
	sharpe, winRate := 0.0, 0.0
	if s.Performance != nil {
		sharpe, winRate = s.Performance.Sharpe, s.Performance.WinRate
	}
	w := convert.Finite(s.Confidence*(1+sharpe)*(1+winRate), 0)
	return math.Max(w, 0)
}

// Vote resolves signals (in window order) into a consensus signal. It
// returns nil when the winner's share of total weight is below threshold.
func Vote(signals []signal.Signal, threshold float64) *signal.Signal {
	buckets := map[signal.Type]*bucket{
		signal.Buy: {}, signal.Sell: {}, signal.Hold: {},
	}
	counts := make(map[string]int)
	total := 0.0
	for i := range signals {
		s := &signals[i]
		b, ok := buckets[s.Type]
		if !ok {
			continue
		}
		w := Weight(*s)
		b.weight += w
		b.priceW += w * convert.DecToFloat(s.Price)
		total += w
		counts[s.Strategy]++
		rank := math.Inf(-1)
		if s.Performance != nil {
			rank = s.Performance.Sharpe
		}
		if b.best == nil || rank > b.bestRank {
			b.best, b.bestRank = s, rank
		}
	}
	if total <= 0 {
		return nil
	}
	winner := signal.Hold
	var win *bucket
	for _, typ := range voteOrder {
		if b := buckets[typ]; win == nil || b.weight > win.weight {
			winner, win = typ, b
		}
	}
	confidence := convert.Clamp(win.weight/total, 0, 1)
	if confidence < threshold || win.best == nil {
		return nil
	}

	meta := map[string]float64{
		"votes.buy":   buckets[signal.Buy].weight,
		"votes.sell":  buckets[signal.Sell].weight,
		"votes.hold":  buckets[signal.Hold].weight,
		"votes.total": total,
		"signals":     float64(len(signals)),
	}
	for name, n := range counts {
		meta[fmt.Sprintf("strategy.%s", name)] = float64(n)
	}
	for _, key := range anomalyKeys {
		var pick float64
		found := false
		for i := range signals {
			v, ok := signals[i].Metadata[key]
			if ok && (!found || math.Abs(v) > math.Abs(pick)) {
				pick, found = v, true
			}
		}
		if found {
			meta[key] = pick
		}
	}

	price := win.best.Price
	if win.weight > 0 {
		price = convert.DecFromFloat(win.priceW / win.weight).Round(8)
	}
	out := &signal.Signal{
		Symbol:     win.best.Symbol,
		Type:       winner,
		Confidence: confidence,
		Price:      price,
		Timestamp:  win.best.Timestamp,
		Strategy:   StrategyName,
		Metadata:   meta,
	}
	if win.best.Targets != nil {
		t := *win.best.Targets
		out.Targets = &t
	}
	if win.best.Performance != nil {
		p := *win.best.Performance
		out.Performance = &p
	}
	return out
}
