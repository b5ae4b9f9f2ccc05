package gateio

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gatews "github.com/gateio/gatews/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/market"
)

func TestNormalizeContracts(t *testing.T) {
	contracts, symbolMap := normalizeContracts([]string{"btc/usdt", "BTCUSDT", "ETH_USDT", "nonsense"})
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, contracts)
	assert.Equal(t, "BTC/USDT", symbolMap["BTC_USDT"])
	assert.Equal(t, "ETH/USDT", symbolMap["ETH_USDT"])
}

func TestConvertTradeUpdate_Batch(t *testing.T) {
	_, symbolMap := normalizeContracts([]string{"BTC/USDT"})
	msg := &gatews.UpdateMsg{Result: json.RawMessage(`[
		{"id":1,"contract":"BTC_USDT","size":-3,"price":"64000.5","create_time":1700000000,"create_time_ms":1700000000123},
		{"id":2,"contract":"BTC_USDT","size":2,"price":"0","create_time_ms":1700000000200},
		{"id":3,"contract":"ETH_USDT","size":5,"price":"3200","create_time":1700000001}
	]`)}
	events := convertTradeUpdate(msg, symbolMap)
	require.Len(t, events, 2)

	assert.Equal(t, "BTC/USDT", events[0].Symbol)
	assert.InDelta(t, 64000.5, events[0].Price, 1e-9)
	assert.InDelta(t, 3.0, events[0].Quantity, 1e-9)
	assert.Equal(t, int64(1700000000123), events[0].TradeTime)

	// unmapped contracts still resolve, seconds are promoted to millis
	assert.Equal(t, "ETH/USDT", events[1].Symbol)
	assert.Equal(t, int64(1700000001000), events[1].TradeTime)
}

func TestConvertTradeUpdate_SingleAndGarbage(t *testing.T) {
	events := convertTradeUpdate(&gatews.UpdateMsg{Result: json.RawMessage(`{"contract":"SOL_USDT","size":1,"price":"150","create_time_ms":5}`)}, nil)
	require.Len(t, events, 1)
	assert.Equal(t, "SOL/USDT", events[0].Symbol)

	assert.Empty(t, convertTradeUpdate(&gatews.UpdateMsg{Result: json.RawMessage(`"nope"`)}, nil))
	assert.Empty(t, convertTradeUpdate(&gatews.UpdateMsg{}, nil))
	assert.Empty(t, convertTradeUpdate(nil, nil))
}

func TestSubscribeTradesRejectsEmptySymbols(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.SubscribeTrades(context.Background(), []string{"??"}, market.SubscribeOptions{})
	assert.Error(t, err)
	assert.NoError(t, src.Close())
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{Settle: " USDT "}).withDefaults()
	assert.Equal(t, "usdt", cfg.Settle)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}

func TestFetchHistoryRejectsBadSymbol(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.FetchHistory(context.Background(), "??", "1m", 10)
	assert.Error(t, err)
}
