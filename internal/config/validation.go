package config

import (
	"fmt"
	"strings"

	"teaka/internal/logger"
	"teaka/internal/pkg/symbol"
	"teaka/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	checks := []func() error{
		c.App.validate,
		c.Market.validate,
		c.Threshold.validate,
		c.Broker.validate,
		c.Store.validate,
		c.Notify.validate,
		c.validateComponents,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (a *AppConfig) validate() error {
	if _, ok := logger.ParseLevel(a.LogLevel); !ok {
		return fmt.Errorf("app.log_level 无效: %q", a.LogLevel)
	}
	if _, err := logger.ParseFormat(a.LogFormat); err != nil {
		return fmt.Errorf("app.log_format: %w", err)
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch m.Source {
	case "binance", "gate":
		if len(m.Feed.Symbols) == 0 {
			return fmt.Errorf("market.feed.symbols requires at least one symbol when market.source=%s", m.Source)
		}
	case "none":
	default:
		return fmt.Errorf("market.source must be binance, gate or none, got %q", m.Source)
	}
	for _, sym := range m.Feed.Symbols {
		if !symbol.IsValid(sym) {
			return fmt.Errorf("market.feed.symbols contains invalid symbol %q", sym)
		}
	}
	if m.Feed.WarmupInterval != "" {
		if _, ok := scheduler.ParseIntervalDuration(m.Feed.WarmupInterval); !ok {
			return fmt.Errorf("market.feed.warmup_interval invalid: %q", m.Feed.WarmupInterval)
		}
	}
	return nil
}

func (t *ThresholdConfig) validate() error {
	if _, err := scheduler.FromConfig("thresholds", t.Schedule); err != nil {
		return fmt.Errorf("threshold.schedule: %w", err)
	}
	seen := make(map[string]bool, len(t.Engine.Thresholds))
	for _, th := range t.Engine.Thresholds {
		name := strings.TrimSpace(th.Name)
		if name == "" {
			return fmt.Errorf("threshold.engine.thresholds contains entry without name")
		}
		if seen[name] {
			return fmt.Errorf("threshold.engine.thresholds duplicate name %s", name)
		}
		seen[name] = true
		if !(th.Min <= th.Base && th.Base <= th.Max) {
			return fmt.Errorf("threshold %s requires min <= base <= max", name)
		}
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	venues := map[string]bool{
		string(symbol.VenuePaper):   true,
		string(symbol.VenueMT5):     b.MT5.Enabled,
		string(symbol.VenueBinance): b.Binance.Enabled,
	}
	enabled, known := venues[b.DefaultVenue]
	if !known {
		return fmt.Errorf("broker.default_venue unknown: %s", b.DefaultVenue)
	}
	if !enabled {
		return fmt.Errorf("broker.default_venue %s is not enabled", b.DefaultVenue)
	}
	for sym, venue := range b.Overrides {
		if _, ok := venues[strings.ToLower(venue)]; !ok {
			return fmt.Errorf("broker.overrides.%s unknown venue %s", sym, venue)
		}
	}
	if b.Paper.SlippageBps < 0 {
		return fmt.Errorf("broker.paper.slippage_bps must be >= 0")
	}
	if b.MT5.Enabled && strings.TrimSpace(b.MT5.Script) == "" {
		return fmt.Errorf("broker.mt5.script is required when mt5 is enabled")
	}
	if b.Binance.Enabled && (strings.TrimSpace(b.Binance.APIKey) == "" || strings.TrimSpace(b.Binance.SecretKey) == "") {
		return fmt.Errorf("broker.binance requires api_key and secret_key when enabled")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.AuditDB) == "" {
		return fmt.Errorf("store.audit_db cannot be empty")
	}
	switch s.JournalDriver {
	case "file", "sqlite":
	case "none":
		return nil
	default:
		return fmt.Errorf("store.journal_driver must be file, sqlite or none")
	}
	if strings.TrimSpace(s.JournalPath) == "" {
		return fmt.Errorf("store.journal_path cannot be empty")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if tg.Enabled && (strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}

func (c *Config) validateComponents() error {
	if c.Consensus.ConfidenceThreshold < 0 || c.Consensus.ConfidenceThreshold > 1 {
		return fmt.Errorf("consensus.confidence_threshold must be within [0,1]")
	}
	if c.Filter.CorrelationThreshold < 0 || c.Filter.CorrelationThreshold > 1 {
		return fmt.Errorf("filter.correlation_threshold must be within [0,1]")
	}
	if c.Gate.CorrelationThreshold < 0 || c.Gate.CorrelationThreshold > 1 {
		return fmt.Errorf("gate.correlation_threshold must be within [0,1]")
	}
	if c.Sizing.MaxPositionSize < 0 || c.Sizing.MaxPortfolioExposure < 0 || c.Sizing.BaseSize < 0 {
		return fmt.Errorf("sizing fractions must be >= 0")
	}
	if c.Risk.MaxDrawdown < 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("risk.max_drawdown must be within [0,1)")
	}
	if c.Pipeline.QueueSize < 0 || c.Pipeline.SubscriberBuffer < 0 {
		return fmt.Errorf("pipeline queue sizes must be >= 0")
	}
	return nil
}
