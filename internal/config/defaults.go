package config

import (
	"strings"
	"time"

	"teaka/internal/risk"
	"teaka/internal/sizing"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9991"
	defaultMarketSource    = "binance"
	defaultBrokerVenue     = "paper"
	defaultBreakerFailures = 3
	defaultBreakerTimeout  = time.Minute
	defaultPaperBalance    = 10000
	defaultAuditDB         = "data/audit.db"
	defaultAuditBuffer     = 1024
	defaultJournalDriver   = "sqlite"
	defaultJournalPath     = "data/journal.db"
	defaultThresholdEvery  = "1d"
	defaultTelegramTimeout = 30 * time.Second
)

// Default returns a config as if loaded from an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Threshold.applyDefaults(keys)
	applySizingDefaults(&c.Sizing, keys)
	applyRiskDefaults(&c.Risk, keys)
	c.Broker.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
}

func (t *ThresholdConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("threshold.schedule.interval", &t.Schedule.Interval, defaultThresholdEvery),
	)
}

// sizing 的缩放开关默认打开（performance 除外），只有显式写 false 才关闭。
func applySizingDefaults(s *sizing.Config, keys keySet) {
	def := sizing.DefaultConfig()
	applyFieldDefaults(keys,
		boolFieldDefault("sizing.volatility_scaling", &s.VolatilityScaling, def.VolatilityScaling),
		boolFieldDefault("sizing.correlation_scaling", &s.CorrelationScaling, def.CorrelationScaling),
		boolFieldDefault("sizing.confidence_scaling", &s.ConfidenceScaling, def.ConfidenceScaling),
	)
}

func applyRiskDefaults(r *risk.Config, keys keySet) {
	def := risk.DefaultConfig()
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.min_balance",
			need:  func() bool { return r.MinBalance <= 0 },
			apply: func() { r.MinBalance = def.MinBalance },
		},
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.default_venue", &b.DefaultVenue, defaultBrokerVenue),
		fieldDefault{
			key:   "broker.breaker_threshold",
			need:  func() bool { return b.BreakerThreshold <= 0 },
			apply: func() { b.BreakerThreshold = defaultBreakerFailures },
		},
		fieldDefault{
			key:   "broker.breaker_timeout",
			need:  func() bool { return b.BreakerTimeout <= 0 },
			apply: func() { b.BreakerTimeout = defaultBreakerTimeout },
		},
		fieldDefault{
			key:   "broker.paper.balance",
			need:  func() bool { return b.Paper.Balance <= 0 },
			apply: func() { b.Paper.Balance = defaultPaperBalance },
		},
	)
	b.DefaultVenue = strings.ToLower(strings.TrimSpace(b.DefaultVenue))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.audit_db", &s.AuditDB, defaultAuditDB),
		stringFieldDefault("store.journal_driver", &s.JournalDriver, defaultJournalDriver),
		stringFieldDefault("store.journal_path", &s.JournalPath, defaultJournalPath),
		fieldDefault{
			key:   "store.audit_buffer",
			need:  func() bool { return s.AuditBuffer <= 0 },
			apply: func() { s.AuditBuffer = defaultAuditBuffer },
		},
	)
	s.JournalDriver = strings.ToLower(strings.TrimSpace(s.JournalDriver))
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	tg := &n.Telegram
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "notify.telegram.timeout",
			need:  func() bool { return tg.Timeout <= 0 },
			apply: func() { tg.Timeout = defaultTelegramTimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
