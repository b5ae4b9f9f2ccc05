package pipeline

import (
	"github.com/shopspring/decimal"

	"teaka/internal/broker"
	"teaka/internal/sizing"
	"teaka/internal/signal"
)

type Status string

const (
	StatusDropped  Status = "dropped"   // invalid, duplicate or out-of-order tick
	StatusNoSignal Status = "no_signal" // nothing actionable this tick
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	StatusExecuted Status = "executed"
)

// Outcome is the result of processing one tick.
type Outcome struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"`
	Status    Status           `json:"status"`
	Stage     Stage            `json:"stage,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Reasons   []string         `json:"reasons,omitempty"`
	Signal    *signal.Signal   `json:"signal,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`
	Err       error            `json:"-"`
}

// ExecutionResult is published on the executed stream.
type ExecutionResult struct {
	ExecutionID string              `json:"execution_id"`
	Symbol      string              `json:"symbol"`
	Signal      signal.Signal       `json:"signal"`
	Fill        broker.Fill         `json:"fill"`
	Notional    decimal.Decimal     `json:"notional"`
	Adjustments *sizing.Adjustments `json:"adjustments,omitempty"`
	Position    signal.OpenPosition `json:"position"`
	Timestamp   int64               `json:"timestamp"`
}
