package adminhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"teaka/internal/audit"
	"teaka/internal/logger"
	"teaka/internal/pipeline"
	"teaka/internal/risk"
	"teaka/internal/signal"
	"teaka/internal/store"
	"teaka/internal/store/model"
	"teaka/internal/threshold"
)

// PipelineAPI is the slice of the pipeline the admin surface drives.
type PipelineAPI interface {
	OnTick(tick signal.PriceTick) error
	Stats() pipeline.Stats
	Positions() []signal.OpenPosition
	ClosePosition(sym string) (signal.OpenPosition, error)
	MarketCondition() threshold.MarketCondition
	RefreshThresholds() bool
}

type ThresholdAPI interface {
	Snapshot() *threshold.Snapshot
	Register(cfg threshold.Config) error
	Remove(name string) error
}

type CorrelationAPI interface {
	CorrelationMatrix() map[string]map[string]float64
	UpdateCorrelationMatrix(raw map[string]map[string]float64) error
}

type AuditAPI interface {
	Stats() audit.Stats
	Query(ctx context.Context, q store.DecisionQuery) ([]model.DecisionModel, error)
	Executions(ctx context.Context, limit int) ([]model.ExecutionModel, error)
}

type Deps struct {
	Pipeline    PipelineAPI
	Thresholds  ThresholdAPI
	Correlation CorrelationAPI
	Audit       AuditAPI
	// Venues lists registered broker venues for /api/health.
	Venues func() []string
}

func (d Deps) validate() error {
	var missing []string
	if d.Pipeline == nil {
		missing = append(missing, "pipeline")
	}
	if d.Thresholds == nil {
		missing = append(missing, "thresholds")
	}
	if d.Correlation == nil {
		missing = append(missing, "correlation")
	}
	if d.Audit == nil {
		missing = append(missing, "audit")
	}
	if len(missing) > 0 {
		return fmt.Errorf("admin http missing deps: %s", strings.Join(missing, ","))
	}
	return nil
}

type Router struct {
	deps    Deps
	started time.Time
}

func NewRouter(deps Deps) *Router {
	return &Router{deps: deps, started: time.Now()}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/health", r.handleHealth)
	group.GET("/stats", r.handleStats)
	group.POST("/ticks", r.handleTick)

	group.GET("/positions", r.handlePositions)
	group.POST("/positions/:base/:quote/close", r.handleClosePosition)

	group.GET("/thresholds", r.handleThresholds)
	group.POST("/thresholds", r.handleRegisterThreshold)
	group.DELETE("/thresholds/:name", r.handleRemoveThreshold)
	group.POST("/thresholds/refresh", r.handleRefreshThresholds)

	group.GET("/correlation", r.handleCorrelation)
	group.PUT("/correlation", r.handleUpdateCorrelation)

	group.GET("/audit/decisions", r.handleDecisions)
	group.GET("/audit/executions", r.handleExecutions)
}

func (r *Router) handleHealth(c *gin.Context) {
	var venues []string
	if r.deps.Venues != nil {
		venues = r.deps.Venues()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(r.started).Truncate(time.Second).String(),
		"venues":  venues,
		"actors":  r.deps.Pipeline.Stats().Actors,
		"pending": r.deps.Audit.Stats().Pending,
	})
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pipeline": r.deps.Pipeline.Stats(),
		"audit":    r.deps.Audit.Stats(),
		"market":   r.deps.Pipeline.MarketCondition(),
	})
}

type tickRequest struct {
	Symbol    string          `json:"symbol" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

// handleTick 手动注入行情（离线/回放模式）。
func (r *Router) handleTick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Timestamp <= 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	err := r.deps.Pipeline.OnTick(signal.PriceTick{
		Symbol:    req.Symbol,
		Price:     req.Price,
		Volume:    req.Volume,
		Timestamp: req.Timestamp,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, pipeline.ErrInvalidTick):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func (r *Router) handlePositions(c *gin.Context) {
	positions := r.deps.Pipeline.Positions()
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handleClosePosition(c *gin.Context) {
	sym := c.Param("base") + "/" + c.Param("quote")
	pos, err := r.deps.Pipeline.ClosePosition(sym)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, risk.ErrNoPosition) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] position closed symbol=%s ip=%s", pos.Symbol, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"position": pos})
}

func (r *Router) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, r.deps.Thresholds.Snapshot())
}

func (r *Router) handleRegisterThreshold(c *gin.Context) {
	var cfg threshold.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.deps.Thresholds.Register(cfg); err != nil {
		c.JSON(thresholdStatus(err), gin.H{"error": err.Error()})
		return
	}
	t, _ := r.deps.Thresholds.Snapshot().Get(cfg.Name)
	c.JSON(http.StatusCreated, t)
}

func (r *Router) handleRemoveThreshold(c *gin.Context) {
	if err := r.deps.Thresholds.Remove(c.Param("name")); err != nil {
		c.JSON(thresholdStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleRefreshThresholds(c *gin.Context) {
	updated := r.deps.Pipeline.RefreshThresholds()
	c.JSON(http.StatusOK, gin.H{"updated": updated, "snapshot": r.deps.Thresholds.Snapshot()})
}

func thresholdStatus(err error) int {
	switch {
	case errors.Is(err, threshold.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, threshold.ErrProtected):
		return http.StatusConflict
	case errors.Is(err, threshold.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleCorrelation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"correlations": r.deps.Correlation.CorrelationMatrix()})
}

type correlationRequest struct {
	Correlations map[string]map[string]float64 `json:"correlations" binding:"required"`
}

func (r *Router) handleUpdateCorrelation(c *gin.Context) {
	var req correlationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.deps.Correlation.UpdateCorrelationMatrix(req.Correlations); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlations": r.deps.Correlation.CorrelationMatrix()})
}

func (r *Router) handleDecisions(c *gin.Context) {
	q := store.DecisionQuery{
		Symbol: strings.TrimSpace(c.Query("symbol")),
		Kind:   strings.TrimSpace(c.Query("kind")),
		Limit:  queryLimit(c),
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be unix milliseconds"})
			return
		}
		q.Since = since
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.deps.Audit.Query(ctx, q)
	if err != nil {
		logger.Errorf("[api] audit decisions failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": rows, "count": len(rows)})
}

func (r *Router) handleExecutions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.deps.Audit.Executions(ctx, queryLimit(c))
	if err != nil {
		logger.Errorf("[api] audit executions failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": rows, "count": len(rows)})
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}
