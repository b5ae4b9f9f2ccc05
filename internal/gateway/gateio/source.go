package gateio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
	gatews "github.com/gateio/gatews/go"
	"github.com/gorilla/websocket"

	"teaka/internal/gateway/stream"
	"teaka/internal/logger"
	"teaka/internal/market"
	symbolpkg "teaka/internal/pkg/symbol"
	"teaka/internal/scheduler"
)

const (
	maxHistoryLimit    = 2000
	defaultGateREST    = "https://api.gateio.ws/api/v4"
	defaultTradeBuffer = 1024

	statusCheckInterval = 5 * time.Second
	maxDownTime         = 30 * time.Second
)

// Source 基于 Gate.io 永续合约接口实现 market.TickSource。
type Source struct {
	cfg  Config
	rest *gateapi.APIClient

	stats stream.Recorder

	mu          sync.Mutex
	tradeCancel context.CancelFunc

	prevWSProxy func(*http.Request) (*url.URL, error)
	wsProxySet  bool
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	conf := gateapi.NewConfiguration()
	conf.BasePath = final.RESTBaseURL
	if conf.BasePath == "" {
		conf.BasePath = defaultGateREST
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return &Source{cfg: final, rest: gateapi.NewAPIClient(conf)}, nil
}

// FetchHistory returns closed candles only; the still-forming bar is dropped.
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	contract := symbolpkg.Gate.ToExchange(symbol)
	if contract == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, s.cfg.Settle, contract, &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit)),
		Interval: optional.NewString(interval),
	})
	if err != nil {
		logger.Errorf("[gate] fetch kline failed %s %s limit=%d: %v", symbol, interval, limit, err)
		return nil, err
	}

	dur, hasDur := scheduler.ParseIntervalDuration(interval)
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		openTime := int64(kl.T * 1000)
		closeTime := openTime
		if hasDur {
			closeTime = openTime + dur.Milliseconds()
		}
		out = append(out, market.Candle{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      parseFloat(kl.O),
			High:      parseFloat(kl.H),
			Low:       parseFloat(kl.L),
			Close:     parseFloat(kl.C),
			Volume:    parseFloat(kl.Sum),
		})
	}
	if hasDur {
		out = market.ClosedOnly(out, dur, time.Now())
	}
	return out, nil
}

// SubscribeTrades streams futures.trades for symbols. A second call replaces
// the first subscription.
func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	contracts, symbolMap := normalizeContracts(symbols)
	if len(contracts) == 0 {
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
			return s.session(ctx, contracts, symbolMap, out, opts)
		})
	}()
	return out, nil
}

// session runs one websocket connection until ctx ends or the client gives up
// reconnecting. connected reports whether the subscribe step succeeded.
func (s *Source) session(ctx context.Context, contracts []string, symbolMap map[string]string, out chan<- market.TickEvent, opts market.SubscribeOptions) (connected bool, err error) {
	wsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws, err := s.newWsService(wsCtx)
	if err != nil {
		s.stats.SubscribeError(err)
		return false, err
	}
	defer func() {
		if conn := ws.GetConnection(); conn != nil {
			_ = conn.Close()
		}
	}()

	ws.SetCallBack(gatews.ChannelFutureTrade, gatews.NewCallBack(func(msg *gatews.UpdateMsg) {
		for _, evt := range convertTradeUpdate(msg, symbolMap) {
			if !stream.Forward(wsCtx, out, evt) {
				if wsCtx.Err() != nil {
					return
				}
				logger.Warnf("[gate] trade channel full, drop %s", evt.Symbol)
			}
		}
	}))

	for _, contract := range contracts {
		if err := ws.Subscribe(gatews.ChannelFutureTrade, []string{contract}); err != nil {
			s.stats.SubscribeError(err)
			return false, err
		}
	}

	s.stats.Connected()
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	logger.Infof("[gate] trade stream connected contracts=%s", strings.Join(contracts, ","))

	if err := s.monitor(wsCtx, ws, opts); err != nil {
		s.stats.Reconnect(err)
		return true, err
	}
	return true, nil
}

// monitor polls the client status. gatews reconnects by itself; a status that
// stays down longer than maxDownTime ends the session.
func (s *Source) monitor(ctx context.Context, ws *gatews.WsService, opts market.SubscribeOptions) error {
	ticker := time.NewTicker(statusCheckInterval)
	defer ticker.Stop()

	lastStatus := ws.Status()
	var downSince time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		status := ws.Status()
		if status != lastStatus {
			if status == "connected" && opts.OnConnect != nil {
				opts.OnConnect()
			}
			if status != "connected" && opts.OnDisconnect != nil {
				opts.OnDisconnect(fmt.Errorf("gate ws status=%s", status))
			}
			lastStatus = status
		}
		if status == "connected" {
			downSince = time.Time{}
			continue
		}
		if downSince.IsZero() {
			downSince = time.Now()
		}
		if time.Since(downSince) > maxDownTime {
			return fmt.Errorf("gate ws reconnect timeout (%s)", status)
		}
	}
}

func (s *Source) newWsService(ctx context.Context) (*gatews.WsService, error) {
	if err := s.ensureWSProxy(); err != nil {
		return nil, err
	}
	conf := gatews.NewConnConfFromOption(&gatews.ConfOptions{
		App: "futures",
		URL: gatews.FuturesUsdtUrl,
	})
	return gatews.NewWsService(ctx, nil, conf)
}

// gatews dials through websocket.DefaultDialer, so the proxy is set there and
// restored on Close.
func (s *Source) ensureWSProxy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsProxySet || !s.cfg.ProxyEnabled {
		return nil
	}
	wsProxy := s.cfg.WSProxyURL
	if wsProxy == "" {
		wsProxy = s.cfg.RESTProxyURL
	}
	if wsProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(wsProxy)
	if err != nil {
		return fmt.Errorf("invalid gate WS proxy url: %w", err)
	}
	s.prevWSProxy = websocket.DefaultDialer.Proxy
	websocket.DefaultDialer.Proxy = http.ProxyURL(proxyURL)
	s.wsProxySet = true
	return nil
}

func (s *Source) Stats() market.SourceStats { return s.stats.Snapshot() }

func (s *Source) Close() error {
	s.mu.Lock()
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	if s.wsProxySet {
		websocket.DefaultDialer.Proxy = s.prevWSProxy
		s.wsProxySet = false
	}
	s.mu.Unlock()
	return nil
}

// normalizeContracts maps internal symbols to Gate contracts, keeping the
// reverse mapping so events report the caller's spelling.
func normalizeContracts(symbols []string) ([]string, map[string]string) {
	symbolMap := make(map[string]string, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		contract := symbolpkg.Gate.ToExchange(norm)
		if contract == "" {
			continue
		}
		if _, ok := symbolMap[contract]; ok {
			continue
		}
		symbolMap[contract] = norm
		out = append(out, contract)
	}
	return out, symbolMap
}

var errEmptyUpdate = errors.New("empty update")

// decodeTrades accepts both the array push and a single trade object.
func decodeTrades(raw json.RawMessage) ([]gatews.FuturesTrade, error) {
	if len(raw) == 0 {
		return nil, errEmptyUpdate
	}
	var batch []gatews.FuturesTrade
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}
	var one gatews.FuturesTrade
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []gatews.FuturesTrade{one}, nil
}

// convertTradeUpdate turns one push into tick events. Size is signed by taker
// side on Gate; only its magnitude is kept.
func convertTradeUpdate(msg *gatews.UpdateMsg, symbolMap map[string]string) []market.TickEvent {
	if msg == nil {
		return nil
	}
	trades, err := decodeTrades(msg.Result)
	if err != nil {
		return nil
	}
	out := make([]market.TickEvent, 0, len(trades))
	for _, trade := range trades {
		contract := strings.ToUpper(strings.TrimSpace(trade.Contract))
		symbol, ok := symbolMap[contract]
		if !ok {
			symbol = symbolpkg.Gate.FromExchange(contract)
		}
		price := parseFloat(trade.Price)
		if symbol == "" || price <= 0 {
			continue
		}
		ts := trade.CreateTimeMs
		if ts == 0 && trade.CreateTime != 0 {
			ts = trade.CreateTime * 1000
		}
		out = append(out, market.TickEvent{
			Symbol:    symbol,
			Price:     price,
			Quantity:  math.Abs(float64(trade.Size)),
			EventTime: ts,
			TradeTime: ts,
		})
	}
	return out
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
