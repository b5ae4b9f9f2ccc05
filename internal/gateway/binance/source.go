package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"teaka/internal/gateway/stream"
	"teaka/internal/logger"
	"teaka/internal/market"
	symbolpkg "teaka/internal/pkg/symbol"
	"teaka/internal/scheduler"
)

const (
	maxHistoryLimit    = 1500
	defaultTradeBuffer = 1024
)

type serveFunc func(symbols []string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// Source 基于 go-binance SDK 的 U 本位合约行情：aggTrade 推送 + K 线预热。
type Source struct {
	cfg    Config
	client *futures.Client
	stats  stream.Recorder

	mu          sync.Mutex
	tradeCancel context.CancelFunc

	serveTrades serveFunc
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	httpClient, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	if ws := final.wsProxy(); ws != "" {
		futures.SetWsProxyUrl(ws)
	}
	return &Source{
		cfg:         final,
		client:      client,
		serveTrades: futures.WsCombinedAggTradeServe,
	}, nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if !cfg.ProxyEnabled || cfg.RESTProxyURL == "" {
		return httpClient, nil
	}
	proxyURL, err := url.Parse(cfg.RESTProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST proxy url: %w", err)
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok || base == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := base.Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	httpClient.Transport = transport
	return httpClient, nil
}

// FetchHistory returns up to limit closed klines, oldest first.
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, maxHistoryLimit)
	pair := symbolpkg.Binance.ToExchange(symbolpkg.Normalize(symbol))
	if pair == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	dur, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}

	kls, err := s.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", pair, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return market.ClosedOnly(out, dur, time.Now()), nil
}

// SubscribeTrades streams aggTrades for symbols over one combined stream and
// reconnects with backoff. A second call replaces the first.
func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	pairs, names := exchangePairs(symbols)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultTradeBuffer
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.tradeCancel != nil {
		s.tradeCancel()
	}
	s.tradeCancel = cancel
	s.mu.Unlock()

	out := make(chan market.TickEvent, buffer)
	go func() {
		defer close(out)
		stream.Run(subCtx, opts, func(ctx context.Context) (bool, error) {
			return s.session(ctx, pairs, names, out, opts)
		})
	}()
	return out, nil
}

func (s *Source) session(ctx context.Context, pairs []string, names map[string]string, out chan<- market.TickEvent, opts market.SubscribeOptions) (bool, error) {
	var (
		errMu   sync.Mutex
		lastErr error
	)
	handler := func(ev *futures.WsAggTradeEvent) {
		te, ok := convertAggTradeEvent(ev)
		if !ok {
			return
		}
		if name, ok := names[te.Symbol]; ok {
			te.Symbol = name
		}
		if !stream.Forward(ctx, out, te) && ctx.Err() == nil {
			logger.Warnf("[binance] aggTrade channel full, drop %s", te.Symbol)
		}
	}
	onErr := func(err error) {
		errMu.Lock()
		lastErr = err
		errMu.Unlock()
	}

	doneC, stopC, err := s.serveTrades(pairs, handler, onErr)
	if err != nil {
		s.stats.SubscribeError(err)
		return false, err
	}
	s.stats.Connected()
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return true, nil
	case <-doneC:
		close(stopC)
	}
	errMu.Lock()
	err = lastErr
	errMu.Unlock()
	s.stats.Reconnect(err)
	return true, err
}

func (s *Source) Stats() market.SourceStats { return s.stats.Snapshot() }

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	return nil
}

// exchangePairs maps BTC/USDT style names to BTCUSDT, remembering the
// internal name for each pair.
func exchangePairs(symbols []string) ([]string, map[string]string) {
	names := make(map[string]string, len(symbols))
	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		if norm == "" {
			continue
		}
		pair := symbolpkg.Binance.ToExchange(norm)
		if _, dup := names[pair]; dup {
			continue
		}
		names[pair] = norm
		pairs = append(pairs, pair)
	}
	return pairs, names
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.TickEvent, bool) {
	if ev == nil {
		return market.TickEvent{}, false
	}
	price := parseFloat(ev.Price)
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if price <= 0 || sym == "" {
		return market.TickEvent{}, false
	}
	return market.TickEvent{
		Symbol:    sym,
		Price:     price,
		Quantity:  parseFloat(ev.Quantity),
		EventTime: ev.Time,
		TradeTime: ev.TradeTime,
	}, true
}
