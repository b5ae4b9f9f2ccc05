package scheduler

import (
	"context"
	"fmt"
	"time"

	"teaka/internal/logger"
)

// Config 描述一个按周期对齐的定时任务，例如每日刷新阈值。
type Config struct {
	Interval       string `toml:"interval"`
	Offset         string `toml:"offset"`
	RunImmediately bool   `toml:"run_immediately"`
}

// AlignedScheduler fires task at every Interval boundary (UTC) plus Offset.
type AlignedScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
	runs  int
}

func NewAlignedScheduler(name string, interval, offset time.Duration) *AlignedScheduler {
	return &AlignedScheduler{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// FromConfig parses "1d"/"24h" style durations.
func FromConfig(name string, cfg Config) (*AlignedScheduler, error) {
	interval, ok := parseDuration(cfg.Interval)
	if !ok {
		return nil, fmt.Errorf("scheduler %s: invalid interval %q", name, cfg.Interval)
	}
	var offset time.Duration
	if cfg.Offset != "" {
		if offset, ok = parseDuration(cfg.Offset); !ok {
			return nil, fmt.Errorf("scheduler %s: invalid offset %q", name, cfg.Offset)
		}
	}
	s := NewAlignedScheduler(name, interval, offset)
	s.RunImmediately = cfg.RunImmediately
	return s, nil
}

func parseDuration(raw string) (time.Duration, bool) {
	if d, ok := ParseIntervalDuration(raw); ok {
		return d, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// Run blocks until ctx is done.
func (s *AlignedScheduler) Run(ctx context.Context, task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("scheduler %s: task is nil", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler %s: invalid interval=%s", s.Name, s.Interval)
	}
	if s.Offset < 0 {
		logger.Warnf("AlignedScheduler[%s]: negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("AlignedScheduler[%s]: started interval=%s offset=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		s.fire(ctx, task)
	}

	for {
		now := s.nowFn().UTC()
		boundary, wakeAt, wait := s.nextTimes(now)
		logger.Debugf("AlignedScheduler[%s]: 距离周期边界=%s (边界=%s) 将在=%s 执行 | uptime=%s",
			s.Name,
			boundary.Sub(now).Truncate(time.Second),
			boundary.Format(time.RFC3339),
			wakeAt.Format(time.RFC3339),
			now.Sub(startAt).Truncate(time.Second),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("AlignedScheduler[%s]: ctx done, exit after %d runs", s.Name, s.runs)
			return nil
		case <-timer.C:
		}
		s.fire(ctx, task)
	}
}

func (s *AlignedScheduler) fire(ctx context.Context, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("AlignedScheduler[%s]: task panic: %v", s.Name, r)
		}
	}()
	s.runs++
	task(ctx)
}

// nextTimes returns the next boundary strictly after now and when to wake.
// If offset already passed for the current boundary the following one is used.
func (s *AlignedScheduler) nextTimes(now time.Time) (boundary, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	boundary = now.Truncate(s.Interval)
	wakeAt = boundary.Add(s.Offset)
	if !wakeAt.After(now) {
		boundary = boundary.Add(s.Interval)
		wakeAt = boundary.Add(s.Offset)
	}
	return boundary, wakeAt, wakeAt.Sub(now)
}
