package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/store"
	"teaka/internal/store/model"
)

func openTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	st, err := NewSqliteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDecisionInsertAndList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)
	for i, kind := range []string{"executed", "gate_rejected", "gate_rejected"} {
		require.NoError(t, uow.Decisions().Insert(ctx, &model.DecisionModel{
			Symbol:    "BTC/USDT",
			Kind:      kind,
			Timestamp: int64(1000 + i),
		}))
	}
	require.NoError(t, uow.Decisions().Insert(ctx, &model.DecisionModel{Symbol: "ETH/USDT", Kind: "executed", Timestamp: 5000}))
	require.NoError(t, uow.Commit())

	uow, err = st.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	rows, err := uow.Decisions().List(ctx, store.DecisionQuery{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1002), rows[0].Timestamp)

	rows, err = uow.Decisions().List(ctx, store.DecisionQuery{Kind: "executed", Since: 2000})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ETH/USDT", rows[0].Symbol)

	counts, err := uow.Decisions().CountByKind(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["executed"])
	assert.Equal(t, int64(2), counts["gate_rejected"])
}

func TestExecutionUpsertAndStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	uow, err := st.Begin(ctx)
	require.NoError(t, err)
	repo := uow.Executions()
	require.NoError(t, repo.Save(ctx, &model.ExecutionModel{ExecutionID: "e1", Symbol: "BTC/USDT", Status: model.ExecutionStatusPending}))
	require.NoError(t, repo.Save(ctx, &model.ExecutionModel{ExecutionID: "e1", Symbol: "BTC/USDT", OrderID: "42", Status: model.ExecutionStatusFilled}))
	require.NoError(t, uow.Commit())

	uow, err = st.Begin(ctx)
	require.NoError(t, err)
	repo = uow.Executions()
	got, err := repo.FindByID(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.OrderID)
	assert.Equal(t, model.ExecutionStatusFilled, got.Status)

	require.NoError(t, repo.UpdateStatus(ctx, "e1", model.ExecutionStatusClosed))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", model.ExecutionStatusClosed), store.ErrNotFound)

	missing, err := repo.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ExecutionStatusClosed, list[0].Status)
	require.NoError(t, uow.Commit())
}
