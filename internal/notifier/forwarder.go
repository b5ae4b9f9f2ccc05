package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teaka/internal/logger"
	"teaka/internal/pipeline"
	"teaka/internal/signal"
)

// Forwarder sends one message per executed signal.
type Forwarder struct {
	n       TextNotifier
	timeout time.Duration
}

func NewForwarder(n TextNotifier, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{n: n, timeout: timeout}
}

// Run consumes results until ctx ends or the stream closes. Send failures
// are logged and never stop the loop.
func (f *Forwarder) Run(ctx context.Context, results <-chan pipeline.ExecutionResult) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-results:
			if !ok {
				return nil
			}
			sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
			err := f.n.SendText(sendCtx, FormatExecution(res).Markdown())
			cancel()
			if err != nil {
				logger.Warnf("notifier: send %s %s failed: %v", res.Symbol, res.ExecutionID, err)
			}
		}
	}
}

// FormatExecution renders an executed signal.
func FormatExecution(res pipeline.ExecutionResult) Message {
	sig := res.Signal
	icon := "🟢"
	if sig.Type == signal.Sell {
		icon = "🔴"
	}
	order := Section{Title: "Order", Fields: []Field{
		{"Venue", res.Fill.Venue},
		{"Order", res.Fill.OrderID},
		{"Units", res.Fill.Units.String()},
		{"Fill", res.Fill.Price.String()},
		{"Notional", res.Notional.StringFixed(2)},
	}}
	targets := Section{Title: "Targets"}
	if t := sig.Targets; t != nil {
		targets.Fields = []Field{
			{"Stop", t.StopLoss.String()},
			{"Take profit", t.TakeProfit.String()},
			{"R:R", fmt.Sprintf("%.2f", t.RiskRewardRatio)},
		}
	}
	sigSec := Section{Title: "Signal", Fields: []Field{
		{"Confidence", fmt.Sprintf("%.2f", sig.Confidence)},
		{"Strategy", sig.Strategy},
		{"Votes", voteSummary(sig.Metadata)},
	}}
	return Message{
		Icon:     icon,
		Title:    fmt.Sprintf("%s %s", sig.Type, res.Symbol),
		Sections: []Section{order, targets, sigSec},
		Footer:   "ID " + res.ExecutionID,
		Time:     time.UnixMilli(res.Timestamp),
	}
}

func voteSummary(meta map[string]float64) string {
	var parts []string
	for _, k := range []string{"buy", "sell", "hold"} {
		if v, ok := meta["votes."+k]; ok && v > 0 {
			parts = append(parts, fmt.Sprintf("%s=%.2f", k, v))
		}
	}
	return strings.Join(parts, " ")
}
