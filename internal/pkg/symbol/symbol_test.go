package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("btcusdt"))
	assert.Equal(t, Symbol{Base: "EUR", Quote: "USD"}, Parse("EUR_USD"))
	assert.Equal(t, Symbol{Base: "EUR", Quote: "USD"}, Parse("EURUSD"))
	assert.Equal(t, Symbol{Base: "ETH", Quote: "USDT"}, Parse("ETH/USDT:USDT"))
	assert.Equal(t, Symbol{}, Parse("FOOBAR"))
	assert.Equal(t, "BTC/USDT", Normalize("BTCUSDT"))
	assert.Equal(t, []string{"BTC/USDT", "EUR/USD"}, NormalizeList([]string{"BTCUSDT", "btc/usdt", "EURUSD", " "}))
}

func TestVenueFor(t *testing.T) {
	assert.Equal(t, VenueBinance, VenueFor("BTCUSDT", VenuePaper))
	assert.Equal(t, VenueMT5, VenueFor("EURUSD", VenuePaper))
	assert.Equal(t, VenueMT5, VenueFor("XAU/USD", VenuePaper))
	assert.Equal(t, VenuePaper, VenueFor("UNKNOWN", VenuePaper))
	assert.True(t, IsForex("GBPJPY"))
	assert.False(t, IsForex("ETHBTC"))
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc/usdt"))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))
	mt5 := MT5(".m")
	assert.Equal(t, "EURUSD.m", mt5.ToExchange("EUR/USD"))
	assert.Equal(t, "EUR/USD", mt5.FromExchange("EURUSD.m"))
	assert.Equal(t, FormatMT5, mt5.Format())
	assert.Equal(t, "ETH_USDT", Gate.ToExchange("ethusdt"))
	assert.Equal(t, "ETH/USDT", Gate.FromExchange("ETH_USDT"))
	assert.Equal(t, "", Gate.ToExchange("garbage"))
	assert.Equal(t, "", Gate.FromExchange("US30"))

	assert.Equal(t, "US30", mt5.ToExchange("us30"))
	assert.Equal(t, "US30", mt5.FromExchange("US30"))
	assert.Equal(t, "AAPL", Binance.FromExchange("aapl"))
}

func TestCanonical(t *testing.T) {
	for in, want := range map[string]string{
		"btcusdt":  "BTC/USDT",
		"EUR_USD":  "EUR/USD",
		" us30 ":   "US30",
		"AAPL":     "AAPL",
		"EURUSD.m": "EURUSD.M",
		"BTC":      "BTC",
		"   ":      "",
		"xau/usd":  "XAU/USD",
	} {
		assert.Equal(t, want, Canonical(in), in)
	}
	assert.Equal(t, []string{"US30", "BTC/USDT"}, NormalizeList([]string{"us30", "BTCUSDT", "US30", "btc/usdt"}))
}
