package binance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/market"
)

func marketOpts() market.SubscribeOptions {
	return market.SubscribeOptions{Buffer: 4}
}

func TestConvertAggTradeEvent(t *testing.T) {
	te, ok := convertAggTradeEvent(&futures.WsAggTradeEvent{Symbol: "btcusdt", Price: "100.5", Quantity: "0.2", Time: 10, TradeTime: 9})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", te.Symbol)
	assert.Equal(t, 100.5, te.Price)
	assert.Equal(t, int64(9), te.TradeTime)

	_, ok = convertAggTradeEvent(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "0"})
	assert.False(t, ok)
	_, ok = convertAggTradeEvent(nil)
	assert.False(t, ok)
}

func TestSubscribeTrades_RestoresSymbolsAndReconnects(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)

	calls := 0
	src.serveTrades = func(symbols []string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		calls++
		assert.Equal(t, []string{"BTCUSDT"}, symbols)
		if calls == 1 {
			return nil, nil, errors.New("dial failed")
		}
		doneC := make(chan struct{})
		stopC := make(chan struct{})
		go func() {
			handler(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "101", Quantity: "1", TradeTime: 5})
			<-stopC
			close(doneC)
		}()
		return doneC, stopC, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := src.SubscribeTrades(ctx, []string{"btc/usdt"}, marketOpts())
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "BTC/USDT", ev.Symbol)
		assert.Equal(t, 101.0, ev.Price)
	case <-time.After(5 * time.Second):
		t.Fatal("no trade delivered")
	}
	assert.Equal(t, 1, src.Stats().SubscribeErrors)

	require.NoError(t, src.Close())
	for range events {
	}
}

func TestSubscribeTrades_RequiresSymbols(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.SubscribeTrades(context.Background(), nil, marketOpts())
	assert.Error(t, err)
	_, err = src.SubscribeTrades(context.Background(), []string{"  "}, marketOpts())
	assert.Error(t, err)
}

func TestExchangePairs(t *testing.T) {
	pairs, names := exchangePairs([]string{"btc/usdt", "BTCUSDT", "eth_usdt", "??"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, pairs)
	assert.Equal(t, "ETH/USDT", names["ETHUSDT"])
}

func TestConfigWSProxy(t *testing.T) {
	cfg := (&Config{ProxyEnabled: true, RESTProxyURL: " http://p:1 "}).withDefaults()
	assert.Equal(t, "http://p:1", cfg.wsProxy())
	assert.Equal(t, defaultRESTBaseURL, cfg.RESTBaseURL)
	cfg.ProxyEnabled = false
	assert.Empty(t, cfg.wsProxy())
}
