package strategy

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// CommonParams apply to every evaluator kind.
type CommonParams struct {
	Lookback              int     `mapstructure:"lookback"`
	StopATRMultiple       float64 `mapstructure:"stop_atr_multiple"`
	TakeProfitATRMultiple float64 `mapstructure:"take_profit_atr_multiple"`
	PerformanceHorizon    int     `mapstructure:"performance_horizon"`
	HistoryLimit          int     `mapstructure:"history_limit"`
	ReferenceVolatility   float64 `mapstructure:"reference_volatility"`
}

func (c *CommonParams) applyDefaults(lookback int) {
	if c.Lookback <= 0 {
		c.Lookback = lookback
	}
	if c.StopATRMultiple <= 0 {
		c.StopATRMultiple = 1.5
	}
	if c.TakeProfitATRMultiple <= 0 {
		c.TakeProfitATRMultiple = 3
	}
	if c.PerformanceHorizon <= 0 {
		c.PerformanceHorizon = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 500
	}
	if c.ReferenceVolatility <= 0 {
		c.ReferenceVolatility = 0.02
	}
}

type MeanReversionParams struct {
	CommonParams       `mapstructure:",squash"`
	DeviationThreshold float64 `mapstructure:"deviation_threshold"`
	MaxVolatility      float64 `mapstructure:"max_volatility"`
}

func (p *MeanReversionParams) applyDefaults() {
	p.CommonParams.applyDefaults(20)
	if p.DeviationThreshold <= 0 {
		p.DeviationThreshold = 2
	}
	if p.MaxVolatility <= 0 {
		p.MaxVolatility = 0.05
	}
}

type TrendParams struct {
	CommonParams  `mapstructure:",squash"`
	ShortPeriod   int     `mapstructure:"short_period"`
	LongPeriod    int     `mapstructure:"long_period"`
	MinVolatility float64 `mapstructure:"min_volatility"`
	MinGap        float64 `mapstructure:"min_gap"`
	GapScale      float64 `mapstructure:"gap_scale"`
}

func (p *TrendParams) applyDefaults() {
	if p.ShortPeriod <= 0 {
		p.ShortPeriod = 5
	}
	if p.LongPeriod <= 0 {
		p.LongPeriod = 20
	}
	p.CommonParams.applyDefaults(30)
	if p.Lookback < p.LongPeriod {
		p.Lookback = p.LongPeriod
	}
	if p.MinVolatility <= 0 {
		p.MinVolatility = 0.001
	}
	if p.MinGap <= 0 {
		p.MinGap = 0.001
	}
	if p.GapScale <= 0 {
		p.GapScale = 0.01
	}
}

type BreakoutParams struct {
	CommonParams         `mapstructure:",squash"`
	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier"`
	MaxVolatility        float64 `mapstructure:"max_volatility"`
}

func (p *BreakoutParams) applyDefaults() {
	p.CommonParams.applyDefaults(20)
	if p.VolatilityMultiplier <= 0 {
		p.VolatilityMultiplier = 2.5
	}
	if p.MaxVolatility <= 0 {
		p.MaxVolatility = 0.08
	}
}

func decodeParams(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode strategy params: %w", err)
	}
	return nil
}
