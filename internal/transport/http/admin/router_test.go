package adminhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/audit"
	"teaka/internal/gate"
	"teaka/internal/pipeline"
	"teaka/internal/risk"
	"teaka/internal/signal"
	"teaka/internal/store"
	"teaka/internal/store/model"
	"teaka/internal/threshold"
)

type fakePipeline struct {
	ticks     []signal.PriceTick
	positions map[string]signal.OpenPosition
	refreshed bool
}

func (f *fakePipeline) OnTick(t signal.PriceTick) error {
	if !t.Price.IsPositive() {
		return pipeline.ErrInvalidTick
	}
	f.ticks = append(f.ticks, t)
	return nil
}

func (f *fakePipeline) Stats() pipeline.Stats {
	return pipeline.Stats{Ticks: int64(len(f.ticks)), Actors: 2}
}

func (f *fakePipeline) Positions() []signal.OpenPosition {
	out := make([]signal.OpenPosition, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out
}

func (f *fakePipeline) ClosePosition(sym string) (signal.OpenPosition, error) {
	pos, ok := f.positions[sym]
	if !ok {
		return signal.OpenPosition{}, risk.ErrNoPosition
	}
	delete(f.positions, sym)
	return pos, nil
}

func (f *fakePipeline) MarketCondition() threshold.MarketCondition {
	return threshold.MarketCondition{Volatility: 0.01}
}

func (f *fakePipeline) RefreshThresholds() bool {
	f.refreshed = true
	return true
}

type fakeAudit struct {
	lastQuery store.DecisionQuery
}

func (f *fakeAudit) Stats() audit.Stats { return audit.Stats{Written: 3} }

func (f *fakeAudit) Query(_ context.Context, q store.DecisionQuery) ([]model.DecisionModel, error) {
	f.lastQuery = q
	return []model.DecisionModel{{Symbol: "BTC/USDT", Kind: "executed"}}, nil
}

func (f *fakeAudit) Executions(context.Context, int) ([]model.ExecutionModel, error) {
	return []model.ExecutionModel{{ExecutionID: "e1"}}, nil
}

type fixture struct {
	srv    *Server
	pipe   *fakePipeline
	engine *threshold.Engine
	audit  *fakeAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := threshold.NewEngine(threshold.EngineConfig{})
	require.NoError(t, err)
	pipe := &fakePipeline{positions: map[string]signal.OpenPosition{
		"BTC/USDT": {Symbol: "BTC/USDT", Side: signal.Buy, Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)},
	}}
	fa := &fakeAudit{}
	srv, err := NewServer(":0", Deps{
		Pipeline:    pipe,
		Thresholds:  engine,
		Correlation: gate.New(gate.DefaultConfig(), nil, nil, nil),
		Audit:       fa,
		Venues:      func() []string { return []string{"paper"} },
	})
	require.NoError(t, err)
	return &fixture{srv: srv, pipe: pipe, engine: engine, audit: fa}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer("", Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline")
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"paper"}, body["venues"])

	rec, body = f.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "pipeline")
	assert.Contains(t, body, "audit")
}

func TestTickIngress(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/api/ticks", map[string]any{"symbol": "BTC/USDT", "price": "101.5", "volume": 2, "timestamp": 10})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.pipe.ticks, 1)
	assert.Equal(t, "101.5", f.pipe.ticks[0].Price.String())

	rec, _ = f.do(t, http.MethodPost, "/api/ticks", map[string]any{"symbol": "BTC/USDT", "price": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/ticks", map[string]any{"price": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositions(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/api/positions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = f.do(t, http.MethodPost, "/api/positions/BTC/USDT/close", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.pipe.positions)

	rec, _ = f.do(t, http.MethodPost, "/api/positions/BTC/USDT/close", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThresholdLifecycle(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/api/thresholds", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["thresholds"], threshold.StopLoss)

	custom := threshold.Config{Name: "spreadGuard", Base: 0.2, Min: 0.1, Max: 0.4}
	rec, _ = f.do(t, http.MethodPost, "/api/thresholds", custom)
	assert.Equal(t, http.StatusCreated, rec.Code)
	v, err := f.engine.Value("spreadGuard")
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)

	rec, _ = f.do(t, http.MethodPost, "/api/thresholds", threshold.Config{Name: "bad", Base: 1, Min: 2, Max: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/thresholds/spreadGuard", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/thresholds/spreadGuard", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/thresholds/"+threshold.StopLoss, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/thresholds/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["updated"])
	assert.True(t, f.pipe.refreshed)
}

func TestCorrelationUpdate(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPut, "/api/correlation", map[string]any{
		"correlations": map[string]map[string]float64{"BTC/USDT": {"ETH/USDT": 0.85}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/api/correlation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	corr := body["correlations"].(map[string]any)
	assert.Contains(t, corr, "BTC/USDT")

	rec, _ = f.do(t, http.MethodPut, "/api/correlation", map[string]any{
		"correlations": map[string]map[string]float64{"BTC/USDT": {"ETH/USDT": 1.5}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditQueries(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/api/audit/decisions?symbol=BTC/USDT&kind=executed&since=5&limit=900", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, store.DecisionQuery{Symbol: "BTC/USDT", Kind: "executed", Since: 5, Limit: 500}, f.audit.lastQuery)

	rec, _ = f.do(t, http.MethodGet, "/api/audit/decisions?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/audit/executions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}
