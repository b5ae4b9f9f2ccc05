// Package journal persists position bookkeeping events so the gate can
// rebuild its state after a restart.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"teaka/internal/signal"
)

type EventType string

const (
	EventReserved   EventType = "RESERVED"
	EventConfirmed  EventType = "CONFIRMED"
	EventRolledBack EventType = "ROLLED_BACK"
	EventClosed     EventType = "CLOSED"
)

// Event is one bookkeeping transition. PrevTrade carries the cooldown stamp
// that was replaced by a reservation, so a replayed rollback can restore it.
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	Symbol    string              `json:"symbol"`
	Position  signal.OpenPosition `json:"position"`
	TradeAt   int64               `json:"trade_at,omitempty"`
	PrevTrade int64               `json:"prev_trade,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewEvent stamps an ID and creation time.
func NewEvent(typ EventType, pos signal.OpenPosition) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Symbol:    pos.Symbol,
		Position:  pos,
		CreatedAt: time.Now().UTC(),
	}
}

type EventStore interface {
	Append(ctx context.Context, evt Event) error
	LoadAll(ctx context.Context) ([]Event, error)
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Append(context.Context, Event) error      { return nil }
func (Nop) LoadAll(context.Context) ([]Event, error) { return nil, nil }
func (Nop) Close() error                             { return nil }
