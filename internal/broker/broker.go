// Package broker defines the order execution capability the pipeline
// depends on and its venue implementations.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"teaka/internal/risk"
	"teaka/internal/signal"
)

var ErrNoExecutor = errors.New("no executor for venue")

// Error codes, shared with the MT5 bridge protocol.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeInvalidJSON = "INVALID_JSON"
	CodeConnection  = "CONNECTION_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeCircuitOpen = "CIRCUIT_OPEN"
	CodeNoExecutor  = "NO_EXECUTOR"
)

// Error carries the broker's code and message verbatim.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Venue   string `json:"venue,omitempty"`
}

func (e *Error) Error() string {
	if e.Venue != "" {
		return fmt.Sprintf("%s: %s: %s", e.Venue, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsError normalises any error into a *Error. Context deadline becomes
// TIMEOUT; other unknown errors become EXECUTION_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Message: err.Error()}
	case errors.Is(err, ErrNoExecutor):
		return &Error{Code: CodeNoExecutor, Message: err.Error()}
	}
	return &Error{Code: CodeExecution, Message: err.Error()}
}

// countsAgainstVenue is false for errors caused by the order itself.
func countsAgainstVenue(err error) bool {
	be := AsError(err)
	return be.Code != CodeValidation && be.Code != CodeInvalidJSON
}

// Order is what the pipeline asks a venue to fill. Size is in units.
type Order struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Action     signal.Type     `json:"action"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Comment    string          `json:"comment,omitempty"`
}

func (o Order) Validate() error {
	switch {
	case o.Symbol == "":
		return &Error{Code: CodeValidation, Message: "missing symbol"}
	case o.Action != signal.Buy && o.Action != signal.Sell:
		return &Error{Code: CodeValidation, Message: fmt.Sprintf("invalid action %q", o.Action)}
	case !o.Size.IsPositive():
		return &Error{Code: CodeValidation, Message: "size must be positive"}
	}
	return nil
}

type Fill struct {
	OrderID string          `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Units   decimal.Decimal `json:"units"`
	Price   decimal.Decimal `json:"price"`
	Comment string          `json:"comment,omitempty"`
	Venue   string          `json:"venue"`
}

type Executor interface {
	Name() string
	Execute(ctx context.Context, order Order) (*Fill, error)
}

// AccountProvider reports broker-side account state for risk checks.
type AccountProvider interface {
	Account(ctx context.Context) (risk.AccountInfo, error)
}
