// Package audit records every pipeline outcome. Recording never blocks the
// hot path: entries are queued and persisted by a background recorder.
package audit

import (
	"time"

	"github.com/shopspring/decimal"

	"teaka/internal/signal"
)

type Kind string

const (
	KindExecuted         Kind = "executed"
	KindFilterRejected   Kind = "filter_rejected"
	KindValidationFailed Kind = "validation_failed"
	KindGateRejected     Kind = "gate_rejected"
	KindExecutionFailed  Kind = "execution_failed"
	KindPanic            Kind = "panic"
	KindClosed           Kind = "closed"
)

// Execution describes the broker leg of an entry, when there was one.
type Execution struct {
	Venue        string          `json:"venue,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Units        decimal.Decimal `json:"units"`
	Notional     decimal.Decimal `json:"notional"`
	Price        decimal.Decimal `json:"price"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type Entry struct {
	ExecutionID string            `json:"execution_id"`
	Kind        Kind              `json:"kind"`
	Stage       string            `json:"stage"`
	Symbol      string            `json:"symbol"`
	Reason      string            `json:"reason,omitempty"`
	Signal      *signal.Signal    `json:"signal,omitempty"`
	Execution   *Execution        `json:"execution,omitempty"`
	Details     map[string]any    `json:"details,omitempty"`
	Timestamp   int64             `json:"timestamp"`
	Fields      map[string]string `json:"-"`
}

func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Sink accepts entries without blocking.
type Sink interface {
	Record(entry Entry)
}

type nopSink struct{}

func (nopSink) Record(Entry) {}

// Nop discards every entry.
var Nop Sink = nopSink{}
