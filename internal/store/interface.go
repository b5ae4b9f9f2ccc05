package store

import (
	"context"
	"errors"

	"teaka/internal/store/model"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("record not found")

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	// Decisions returns the decision repository within this transaction.
	Decisions() DecisionRepository
	// Executions returns the execution repository within this transaction.
	Executions() ExecutionRepository
}

// Store is the entry point for database access.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// DecisionQuery filters decision listings. Zero values match everything.
type DecisionQuery struct {
	Symbol string
	Kind   string
	Since  int64 // unix ms
	Limit  int
}

// DecisionRepository persists one row per pipeline outcome.
type DecisionRepository interface {
	Insert(ctx context.Context, d *model.DecisionModel) error
	List(ctx context.Context, q DecisionQuery) ([]model.DecisionModel, error)
	CountByKind(ctx context.Context, since int64) (map[string]int64, error)
}

// ExecutionRepository tracks broker submissions keyed by execution ID.
type ExecutionRepository interface {
	Save(ctx context.Context, e *model.ExecutionModel) error
	FindByID(ctx context.Context, executionID string) (*model.ExecutionModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.ExecutionModel, error)
	UpdateStatus(ctx context.Context, executionID string, status model.ExecutionStatus) error
}
