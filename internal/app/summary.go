package app

import (
	"fmt"
	"strings"

	"teaka/internal/config"
	"teaka/internal/logger"
	"teaka/internal/strategy"
)

type StartupSummary struct {
	Env        string
	Market     string
	Symbols    []string
	Strategies []string
	Venues     []string
	Default    string
	Journal    string
	AuditDB    string
	HTTPAddr   string
	Telegram   bool
}

func newStartupSummary(cfg *config.Config, defs []strategy.Definition, venues []string) *StartupSummary {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		label := def.Name + "(" + def.Kind + ")"
		if !def.IsEnabled() {
			label += " [off]"
		}
		names = append(names, label)
	}
	return &StartupSummary{
		Env:        cfg.App.Env,
		Market:     cfg.Market.Source,
		Symbols:    cfg.Market.Feed.Symbols,
		Strategies: names,
		Venues:     venues,
		Default:    cfg.Broker.DefaultVenue,
		Journal:    cfg.Store.JournalDriver + ":" + cfg.Store.JournalPath,
		AuditDB:    cfg.Store.AuditDB,
		HTTPAddr:   cfg.App.HTTPAddr,
		Telegram:   cfg.Notify.Telegram.Enabled,
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "  环境: %s\n", s.Env)
	fmt.Fprintf(&b, "  行情源: %s  监控币种: %s\n", s.Market, formatList(s.Symbols))
	fmt.Fprintf(&b, "  策略: %s\n", formatList(s.Strategies))
	fmt.Fprintf(&b, "  执行通道: %s (默认 %s)\n", formatList(s.Venues), s.Default)
	fmt.Fprintf(&b, "  持仓日志: %s  审计库: %s\n", s.Journal, s.AuditDB)
	fmt.Fprintf(&b, "  管理接口: %s  Telegram: %v\n", s.HTTPAddr, s.Telegram)
	fmt.Fprint(&b, line)
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}
