// Package filter validates consensus signals against market conditions
// observed on a filter-owned price history.
package filter

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"teaka/internal/pkg/convert"
	"teaka/internal/pkg/indicator"
	"teaka/internal/pkg/window"
	"teaka/internal/signal"
)

const maxVolumeBoost = 1.2

type Config struct {
	HistorySize          int     `toml:"history_size"`
	MinConfidence        float64 `toml:"min_confidence"`
	ZScoreThreshold      float64 `toml:"z_score_threshold"`
	VolatilityMax        float64 `toml:"volatility_max"`
	VolumeThreshold      float64 `toml:"volume_threshold"`
	CorrelationThreshold float64 `toml:"correlation_threshold"`
}

func DefaultConfig() Config {
	return Config{
		HistorySize:          50,
		MinConfidence:        0.7,
		ZScoreThreshold:      2.0,
		VolatilityMax:        0.03,
		VolumeThreshold:      1.5,
		CorrelationThreshold: 0.7,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = def.MinConfidence
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = def.ZScoreThreshold
	}
	if c.VolatilityMax <= 0 {
		c.VolatilityMax = def.VolatilityMax
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = def.VolumeThreshold
	}
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
}

// MarketData is the per-decision context the filter cannot derive itself.
type MarketData struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	// Correlation is the strongest correlation between the signal's symbol
	// and any open position.
	Correlation float64
	// MinConfidence overrides the configured floor when positive.
	MinConfidence float64
}

type Result struct {
	IsValid            bool     `json:"is_valid"`
	Reasons            []string `json:"reasons,omitempty"`
	AdjustedConfidence float64  `json:"adjusted_confidence"`
	ZScore             float64  `json:"z_score"`
	Volatility         float64  `json:"volatility"`
	VolumeRatio        float64  `json:"volume_ratio"`
	Correlation        float64  `json:"correlation"`
}

type history struct {
	prices  *window.Rolling[float64]
	volumes *window.Rolling[float64]
}

// Filter is safe for concurrent use across symbols.
type Filter struct {
	cfg Config

	mu      sync.RWMutex
	symbols map[string]*history
}

func New(cfg Config) *Filter {
	cfg.applyDefaults()
	return &Filter{cfg: cfg, symbols: make(map[string]*history)}
}

func (f *Filter) Config() Config { return f.cfg }

// Observe appends a tick to the symbol's history.
func (f *Filter) Observe(tick signal.PriceTick) {
	if tick.Symbol == "" || !tick.Price.IsPositive() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.symbols[tick.Symbol]
	if !ok {
		h = &history{
			prices:  window.New[float64](f.cfg.HistorySize),
			volumes: window.New[float64](f.cfg.HistorySize),
		}
		f.symbols[tick.Symbol] = h
	}
	h.prices.Push(convert.DecToFloat(tick.Price))
	h.volumes.Push(convert.DecToFloat(tick.Volume))
}

func (f *Filter) HistoryLen(symbol string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if h, ok := f.symbols[symbol]; ok {
		return h.prices.Len()
	}
	return 0
}

// Prices returns a copy of the symbol's price history, oldest first.
func (f *Filter) Prices(symbol string) []float64 {
	prices, _ := f.snapshot(symbol)
	return prices
}

// Symbols lists every symbol with history.
func (f *Filter) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *Filter) snapshot(symbol string) (prices, volumes []float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.symbols[symbol]
	if !ok {
		return nil, nil
	}
	return h.prices.Values(), h.volumes.Values()
}

// FilterSignal reports every failed check. It never mutates history, so the
// same signal and market data always yield the same result.
func (f *Filter) FilterSignal(sig signal.Signal, md MarketData) Result {
	prices, volumes := f.snapshot(sig.Symbol)
	price := convert.DecToFloat(md.Price)
	if price <= 0 {
		price = convert.DecToFloat(sig.Price)
	}
	res := Result{
		ZScore:      indicator.ZScore(prices, price),
		Volatility:  volatility(prices),
		VolumeRatio: volumeRatio(volumes, convert.DecToFloat(md.Volume)),
		Correlation: convert.Finite(md.Correlation, 0),
	}
	minConf := f.cfg.MinConfidence
	if md.MinConfidence > 0 {
		minConf = md.MinConfidence
	}
	conf := convert.Clamp(convert.Finite(sig.Confidence, 0), 0, 1)
	adjusted := conf

	if conf < minConf {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Low confidence: %.2f < %.2f", conf, minConf))
		adjusted *= conf / minConf
	}
	if z := math.Abs(res.ZScore); z > f.cfg.ZScoreThreshold {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Price z-score out of range: %.2f > %.2f", z, f.cfg.ZScoreThreshold))
		adjusted *= f.cfg.ZScoreThreshold / z
	}
	if res.Volatility > f.cfg.VolatilityMax {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Volatility too high: %.4f > %.4f", res.Volatility, f.cfg.VolatilityMax))
		adjusted *= f.cfg.VolatilityMax / res.Volatility
	}
	switch {
	case res.VolumeRatio < f.cfg.VolumeThreshold:
		res.Reasons = append(res.Reasons, fmt.Sprintf("Insufficient volume: %.2f < %.2f", res.VolumeRatio, f.cfg.VolumeThreshold))
		adjusted *= res.VolumeRatio / f.cfg.VolumeThreshold
	default:
		adjusted *= math.Min(res.VolumeRatio/f.cfg.VolumeThreshold, maxVolumeBoost)
	}
	if c := math.Abs(res.Correlation); c > f.cfg.CorrelationThreshold {
		res.Reasons = append(res.Reasons, fmt.Sprintf("High correlation with open positions: %.2f > %.2f", c, f.cfg.CorrelationThreshold))
		adjusted *= f.cfg.CorrelationThreshold / c
	}
	res.AdjustedConfidence = convert.Clamp(convert.Finite(adjusted, 0), 0, 1)
	res.IsValid = len(res.Reasons) == 0
	return res
}

// volatility needs at least two returns to mean anything.
func volatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	return indicator.Volatility(prices)
}

// volumeRatio compares the current volume against the history average.
// Without volume history the ratio is zero and the volume check fails.
func volumeRatio(volumes []float64, current float64) float64 {
	avg := indicator.Mean(volumes)
	if avg <= 0 || current < 0 {
		return 0
	}
	return convert.Finite(current/avg, 0)
}
