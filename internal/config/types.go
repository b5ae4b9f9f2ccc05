package config

import (
	"strings"
	"time"

	"teaka/internal/broker"
	"teaka/internal/consensus"
	"teaka/internal/filter"
	"teaka/internal/gate"
	"teaka/internal/gateway/binance"
	"teaka/internal/gateway/gateio"
	"teaka/internal/market"
	"teaka/internal/pipeline"
	"teaka/internal/risk"
	"teaka/internal/scheduler"
	"teaka/internal/sizing"
	"teaka/internal/threshold"
)

// Config 是 Teaka 的主配置载体。组件自身的配置结构直接嵌入，零值由各组件构造时补齐。
type Config struct {
	App         AppConfig         `toml:"app"`
	Market      MarketConfig      `toml:"market"`
	Strategy    StrategyConfig    `toml:"strategy"`
	Consensus   consensus.Config  `toml:"consensus"`
	Filter      filter.Config     `toml:"filter"`
	Threshold   ThresholdConfig   `toml:"threshold"`
	Sizing      sizing.Config     `toml:"sizing"`
	Gate        gate.Config       `toml:"gate"`
	Risk        risk.Config       `toml:"risk"`
	Pipeline    pipeline.Config   `toml:"pipeline"`
	Broker      BrokerConfig      `toml:"broker"`
	Store       StoreConfig       `toml:"store"`
	Correlation CorrelationConfig `toml:"correlation"`
	Notify      NotifyConfig      `toml:"notify"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
	HTTPAddr     string `toml:"http_addr"`
}

// MarketConfig 选择行情来源；source=none 时只接受 HTTP/测试注入的 tick。
type MarketConfig struct {
	Source  string            `toml:"source"`
	Binance binance.Config    `toml:"binance"`
	Gate    gateio.Config     `toml:"gate"`
	Feed    market.FeedConfig `toml:"feed"`
}

type StrategyConfig struct {
	CatalogPath string `toml:"catalog_path"`
}

type ThresholdConfig struct {
	Engine   threshold.EngineConfig `toml:"engine"`
	Schedule scheduler.Config       `toml:"schedule"`
}

type BrokerConfig struct {
	DefaultVenue     string            `toml:"default_venue"`
	BreakerThreshold int               `toml:"breaker_threshold"`
	BreakerTimeout   time.Duration     `toml:"breaker_timeout"`
	Overrides        map[string]string `toml:"overrides"`
	Paper            PaperConfig       `toml:"paper"`
	MT5              MT5Config         `toml:"mt5"`
	Binance          BinanceConfig     `toml:"binance"`
}

type PaperConfig struct {
	Balance     float64       `toml:"balance"`
	SlippageBps float64       `toml:"slippage_bps"`
	Latency     time.Duration `toml:"latency"`
}

type MT5Config struct {
	Enabled          bool `toml:"enabled"`
	broker.MT5Config `toml:",squash"`
}

type BinanceConfig struct {
	Enabled              bool `toml:"enabled"`
	broker.BinanceConfig `toml:",squash"`
}

// StoreConfig 审计库与持仓日志的位置。
type StoreConfig struct {
	AuditDB       string `toml:"audit_db"`
	AuditBuffer   int    `toml:"audit_buffer"`
	JournalDriver string `toml:"journal_driver"` // file | sqlite
	JournalPath   string `toml:"journal_path"`
}

type CorrelationConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool          `toml:"enabled"`
	BotToken string        `toml:"bot_token"`
	ChatID   string        `toml:"chat_id"`
	BaseURL  string        `toml:"base_url"`
	Timeout  time.Duration `toml:"timeout"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
