package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"teaka/internal/audit"
	"teaka/internal/config"
	"teaka/internal/correlation"
	"teaka/internal/gate"
	"teaka/internal/logger"
	"teaka/internal/market"
	"teaka/internal/notifier"
	"teaka/internal/pipeline"
	"teaka/internal/scheduler"
	"teaka/internal/threshold"
	adminhttp "teaka/internal/transport/http/admin"
)

// App 负责应用级编排：行情 → 管线 → 执行，外加审计、通知、阈值定时刷新与管理接口。
type App struct {
	cfg *config.Config

	pipeline   *pipeline.Pipeline
	gate       *gate.Gate
	thresholds *threshold.Engine
	recorder   *audit.Recorder
	feed       *market.Feed
	forwarder  *notifier.Forwarder
	refresh    *scheduler.AlignedScheduler
	http       *adminhttp.Server

	closers []func() error
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run blocks until ctx is cancelled or a component fails, then drains the
// pipeline and flushes the audit trail.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.pipeline == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if err := a.gate.Recover(ctx); err != nil {
		a.closeResources()
		return err
	}

	// 审计落库独立于 errgroup 的 ctx：管线关闭后还需要把剩余记录刷盘。
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		_ = a.recorder.Run(context.Background())
	}()
	defer a.shutdown(recDone)

	if a.cfg.Correlation.Watch && a.cfg.Correlation.Path != "" {
		err := correlation.Watch(a.cfg.Correlation.Path, a.gate.Correlation(), func(m *correlation.Matrix) {
			logger.Infof("correlation matrix hot-reloaded symbols=%d", len(m.Symbols()))
		})
		if err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.forwarder != nil {
		results, cancel := a.pipeline.Subscribe()
		group.Go(func() error {
			defer cancel()
			return a.forwarder.Run(ctx, results)
		})
	}

	group.Go(func() error {
		return a.refresh.Run(ctx, func(context.Context) {
			if a.pipeline.RefreshThresholds() {
				logger.Infof("thresholds refreshed version=%d", a.thresholds.Snapshot().Version)
			}
		})
	})

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}

	if a.feed != nil {
		group.Go(func() error {
			if err := a.feed.Warmup(ctx, a.pipeline); err != nil {
				logger.Warnf("warmup incomplete: %v", err)
			}
			return a.feed.Run(ctx)
		})
	}

	return group.Wait()
}

func (a *App) shutdown(recDone <-chan struct{}) {
	a.pipeline.Close()
	a.recorder.Close()
	<-recDone
	st := a.recorder.Stats()
	logger.Infof("shutdown complete audit_written=%d audit_dropped=%d", st.Written, st.Dropped)
	a.closeResources()
}

func (a *App) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}
}
