package market

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"teaka/internal/logger"
	"teaka/internal/signal"
)

// TickHandler receives normalised ticks; errors are counted, never fatal.
type TickHandler interface {
	OnTick(tick signal.PriceTick) error
}

// Warmer seeds per-symbol state from history.
type Warmer interface {
	Warmup(ctx context.Context, symbol string, ticks []signal.PriceTick) error
}

type FeedConfig struct {
	Symbols        []string `toml:"symbols"`
	WarmupInterval string   `toml:"warmup_interval"`
	WarmupLimit    int      `toml:"warmup_limit"`
	Buffer         int      `toml:"buffer"`
}

type FeedStats struct {
	Source    SourceStats `json:"source"`
	Delivered int64       `json:"delivered"`
	Rejected  int64       `json:"rejected"`
}

// Feed pumps a TickSource into a TickHandler.
type Feed struct {
	cfg     FeedConfig
	src     TickSource
	handler TickHandler

	delivered atomic.Int64
	rejected  atomic.Int64
}

func NewFeed(cfg FeedConfig, src TickSource, handler TickHandler) *Feed {
	if cfg.WarmupInterval == "" {
		cfg.WarmupInterval = "1m"
	}
	if cfg.WarmupLimit <= 0 {
		cfg.WarmupLimit = 200
	}
	return &Feed{cfg: cfg, src: src, handler: handler}
}

// Warmup 启动时拉取最近 N 根 K 线预热各 symbol 的窗口；单个 symbol 失败只记录日志。
func (f *Feed) Warmup(ctx context.Context, w Warmer) error {
	var failed []string
	for _, sym := range f.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		candles, err := f.src.FetchHistory(ctx, sym, f.cfg.WarmupInterval, f.cfg.WarmupLimit)
		if err != nil {
			logger.Warnf("[预热] 获取 %s %s 失败: %v", sym, f.cfg.WarmupInterval, err)
			failed = append(failed, sym)
			continue
		}
		ticks := Ticks(sym, candles)
		if err := w.Warmup(ctx, sym, ticks); err != nil {
			logger.Warnf("[预热] 写入 %s 失败: %v", sym, err)
			failed = append(failed, sym)
			continue
		}
		logger.Debugf("[预热] %s %s 条数=%d", sym, f.cfg.WarmupInterval, len(ticks))
	}
	if len(failed) == len(f.cfg.Symbols) && len(failed) > 0 {
		return fmt.Errorf("warmup failed for all symbols: %v", failed)
	}
	return nil
}

// Run subscribes and forwards until ctx ends or the source closes the stream.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.cfg.Symbols) == 0 {
		return errors.New("feed requires symbols")
	}
	events, err := f.src.SubscribeTrades(ctx, f.cfg.Symbols, SubscribeOptions{
		Buffer:       f.cfg.Buffer,
		OnConnect:    func() { logger.Infof("[WS] 成交流已连接 symbols=%v", f.cfg.Symbols) },
		OnDisconnect: func(err error) { logger.Warnf("[WS] 成交流断开: %v", err) },
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := f.src.Close(); err != nil {
			logger.Warnf("[WS] source close error: %v", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.handler.OnTick(evt.PriceTick()); err != nil {
				if n := f.rejected.Add(1); n%1000 == 1 {
					logger.Warnf("[WS] tick %s rejected (total=%d): %v", evt.Symbol, n, err)
				}
				continue
			}
			f.delivered.Add(1)
		}
	}
}

func (f *Feed) Stats() FeedStats {
	return FeedStats{
		Source:    f.src.Stats(),
		Delivered: f.delivered.Load(),
		Rejected:  f.rejected.Load(),
	}
}
