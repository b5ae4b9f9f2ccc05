package binance

import (
	"strings"
	"time"
)

const defaultRESTBaseURL = "https://fapi.binance.com"

type Config struct {
	RESTBaseURL string        `toml:"rest_base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`

	ProxyEnabled bool   `toml:"proxy_enabled"`
	RESTProxyURL string `toml:"rest_proxy_url"`
	WSProxyURL   string `toml:"ws_proxy_url"`
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	return out
}

// wsProxy falls back to the REST proxy when no websocket proxy is set.
func (c Config) wsProxy() string {
	if !c.ProxyEnabled {
		return ""
	}
	if c.WSProxyURL != "" {
		return c.WSProxyURL
	}
	return c.RESTProxyURL
}
