package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"teaka/internal/audit"
	"teaka/internal/broker"
	"teaka/internal/config"
	"teaka/internal/consensus"
	"teaka/internal/correlation"
	"teaka/internal/filter"
	"teaka/internal/gate"
	"teaka/internal/gateway/binance"
	"teaka/internal/gateway/gateio"
	"teaka/internal/journal"
	"teaka/internal/logger"
	"teaka/internal/market"
	"teaka/internal/notifier"
	"teaka/internal/pipeline"
	"teaka/internal/pkg/symbol"
	"teaka/internal/risk"
	"teaka/internal/scheduler"
	"teaka/internal/sizing"
	"teaka/internal/store"
	"teaka/internal/store/sqlite"
	"teaka/internal/strategy"
	"teaka/internal/threshold"
	adminhttp "teaka/internal/transport/http/admin"
)

// AppBuilder 组装各组件；外部依赖（行情源、审计库、持仓日志、通知）可替换，便于测试。
type AppBuilder struct {
	cfg *config.Config

	tickSourceFn func(config.MarketConfig) (market.TickSource, error)
	auditStoreFn func(config.StoreConfig) (store.Store, error)
	journalFn    func(config.StoreConfig) (journal.EventStore, error)
	notifierFn   func(config.TelegramConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func WithTickSource(fn func(config.MarketConfig) (market.TickSource, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.tickSourceFn = fn }
}

func WithAuditStore(fn func(config.StoreConfig) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.auditStoreFn = fn }
}

func WithJournal(fn func(config.StoreConfig) (journal.EventStore, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.journalFn = fn }
}

func WithNotifier(fn func(config.TelegramConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		tickSourceFn: buildTickSource,
		auditStoreFn: buildAuditStore,
		journalFn:    buildJournal,
		notifierFn:   buildTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build wires every component. Resources opened before a failure are closed.
func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.closeResources()
		}
	}()

	defs, err := strategy.LoadCatalog(cfg.Strategy.CatalogPath)
	if err != nil {
		return nil, err
	}
	evaluators := make([]strategy.Evaluator, 0, len(defs))
	for _, def := range defs {
		if !def.IsEnabled() {
			continue
		}
		ev, err := strategy.New(def)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", def.Name, err)
		}
		evaluators = append(evaluators, ev)
	}
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("strategy catalog has no enabled strategies")
	}

	engine, err := threshold.NewEngine(cfg.Threshold.Engine)
	if err != nil {
		return nil, err
	}
	app.thresholds = engine
	app.refresh, err = scheduler.FromConfig("thresholds", cfg.Threshold.Schedule)
	if err != nil {
		return nil, err
	}

	corr := correlation.NewProvider(nil)
	if path := strings.TrimSpace(cfg.Correlation.Path); path != "" && !cfg.Correlation.Watch {
		m, err := correlation.LoadFile(path)
		if err != nil {
			return nil, err
		}
		corr.Update(m)
	}

	events, err := b.journalFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	app.closers = append(app.closers, events.Close)

	book := risk.NewBook()
	g := gate.New(cfg.Gate, sizing.New(cfg.Sizing, engine), book, corr, gate.WithJournal(events))
	app.gate = g

	st, err := b.auditStoreFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	app.closers = append(app.closers, st.Close)
	app.recorder = audit.NewRecorder(st, cfg.Store.AuditBuffer)

	router, accounts, err := buildBrokers(cfg.Broker)
	if err != nil {
		return nil, err
	}

	app.pipeline, err = pipeline.New(cfg.Pipeline, pipeline.Deps{
		Aggregator: consensus.NewAggregator(cfg.Consensus, evaluators...),
		Filter:     filter.New(cfg.Filter),
		Thresholds: engine,
		Risk:       risk.NewManager(cfg.Risk, book),
		Gate:       g,
		Broker:     router,
		Accounts:   accounts,
		Audit:      app.recorder,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Market.Source != "none" {
		src, err := b.tickSourceFn(cfg.Market)
		if err != nil {
			return nil, fmt.Errorf("market source: %w", err)
		}
		app.feed = market.NewFeed(cfg.Market.Feed, src, app.pipeline)
	}

	if cfg.Notify.Telegram.Enabled {
		app.forwarder = notifier.NewForwarder(b.notifierFn(cfg.Notify.Telegram), cfg.Notify.Telegram.Timeout)
	}

	if cfg.App.HTTPAddr != "" && cfg.App.HTTPAddr != "off" {
		app.http, err = adminhttp.NewServer(cfg.App.HTTPAddr, adminhttp.Deps{
			Pipeline:    app.pipeline,
			Thresholds:  engine,
			Correlation: g,
			Audit:       app.recorder,
			Venues:      router.Venues,
		})
		if err != nil {
			return nil, err
		}
	}

	app.Summary = newStartupSummary(cfg, defs, router.Venues())
	return app, nil
}

// buildBrokers registers paper always, plus mt5/binance when enabled. The
// account provider follows the default venue.
func buildBrokers(cfg config.BrokerConfig) (*broker.Router, broker.AccountProvider, error) {
	overrides := make(map[string]symbol.Venue, len(cfg.Overrides))
	for sym, venue := range cfg.Overrides {
		overrides[symbol.Canonical(sym)] = symbol.Venue(strings.ToLower(venue))
	}
	router := broker.NewRouter(broker.RouterConfig{
		DefaultVenue:     symbol.Venue(cfg.DefaultVenue),
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
		Overrides:        overrides,
	})

	paper := broker.NewPaperExecutor(broker.PaperConfig{
		Balance:     decimal.NewFromFloat(cfg.Paper.Balance),
		SlippageBps: cfg.Paper.SlippageBps,
		Latency:     cfg.Paper.Latency,
	})
	router.Register(symbol.VenuePaper, paper)
	providers := map[symbol.Venue]broker.AccountProvider{symbol.VenuePaper: paper}

	if cfg.MT5.Enabled {
		mt5 := broker.NewMT5Executor(cfg.MT5.MT5Config)
		router.Register(symbol.VenueMT5, mt5)
		providers[symbol.VenueMT5] = mt5
	}
	if cfg.Binance.Enabled {
		bn := broker.NewBinanceExecutor(cfg.Binance.BinanceConfig)
		router.Register(symbol.VenueBinance, bn)
		providers[symbol.VenueBinance] = bn
	}

	accounts, ok := providers[symbol.Venue(cfg.DefaultVenue)]
	if !ok {
		return nil, nil, fmt.Errorf("broker: default venue %s is not registered", cfg.DefaultVenue)
	}
	return router, accounts, nil
}

func buildTickSource(cfg config.MarketConfig) (market.TickSource, error) {
	switch cfg.Source {
	case "binance":
		return binance.New(cfg.Binance)
	case "gate":
		return gateio.New(cfg.Gate)
	default:
		return nil, fmt.Errorf("unsupported market source %q", cfg.Source)
	}
}

func buildAuditStore(cfg config.StoreConfig) (store.Store, error) {
	return sqlite.NewSqliteStore(cfg.AuditDB)
}

func buildJournal(cfg config.StoreConfig) (journal.EventStore, error) {
	switch cfg.JournalDriver {
	case "file":
		return journal.NewFileEventStore(cfg.JournalPath)
	case "sqlite":
		return journal.NewSQLiteEventStore(cfg.JournalPath)
	case "none":
		return journal.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.JournalDriver)
	}
}

func buildTelegram(cfg config.TelegramConfig) notifier.TextNotifier {
	tg := notifier.NewTelegram(cfg.BotToken, cfg.ChatID)
	if cfg.BaseURL != "" {
		tg.BaseURL = cfg.BaseURL
	}
	logger.Infof("telegram notifier enabled chat=%s", cfg.ChatID)
	return tg
}
