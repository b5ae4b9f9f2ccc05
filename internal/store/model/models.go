package model

import (
	"time"

	"gorm.io/datatypes"
)

type ExecutionStatus int

const (
	ExecutionStatusUnknown ExecutionStatus = 0
	ExecutionStatusPending ExecutionStatus = 1
	ExecutionStatusFilled  ExecutionStatus = 2
	ExecutionStatusFailed  ExecutionStatus = 3
	ExecutionStatusClosed  ExecutionStatus = 4
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionStatusPending:
		return "pending"
	case ExecutionStatusFilled:
		return "filled"
	case ExecutionStatusFailed:
		return "failed"
	case ExecutionStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DecisionModel maps to 'decisions': one row per pipeline outcome.
type DecisionModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	ExecutionID string         `gorm:"column:execution_id;index"`
	Symbol      string         `gorm:"column:symbol;index:idx_decision_symbol_ts,priority:1"`
	Kind        string         `gorm:"column:kind;index"`
	Stage       string         `gorm:"column:stage"`
	Action      string         `gorm:"column:action"`
	Strategy    string         `gorm:"column:strategy"`
	Confidence  float64        `gorm:"column:confidence"`
	Reason      string         `gorm:"column:reason"`
	SignalJSON  datatypes.JSON `gorm:"column:signal_json;type:TEXT"`
	DetailsJSON datatypes.JSON `gorm:"column:details_json;type:TEXT"`
	Timestamp   int64          `gorm:"column:timestamp;index:idx_decision_symbol_ts,priority:2"`

	CreatedAtUnix int64     `gorm:"column:created_at"`
	CreatedAt     time.Time `gorm:"-"`
}

func (DecisionModel) TableName() string { return "decisions" }

// ExecutionModel maps to 'executions'.
type ExecutionModel struct {
	ID           int64           `gorm:"column:id;primaryKey"`
	ExecutionID  string          `gorm:"column:execution_id;uniqueIndex"`
	Symbol       string          `gorm:"column:symbol"`
	Side         string          `gorm:"column:side"`
	Venue        string          `gorm:"column:venue"`
	OrderID      string          `gorm:"column:order_id"`
	Units        float64         `gorm:"column:units"`
	Notional     float64         `gorm:"column:notional"`
	Price        float64         `gorm:"column:price"`
	StopLoss     float64         `gorm:"column:stop_loss"`
	TakeProfit   float64         `gorm:"column:take_profit"`
	Status       ExecutionStatus `gorm:"column:status"`
	ErrorCode    string          `gorm:"column:error_code"`
	ErrorMessage string          `gorm:"column:error_message"`
	RawJSON      datatypes.JSON  `gorm:"column:raw_json;type:TEXT"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`

	CreatedAt time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (ExecutionModel) TableName() string { return "executions" }
