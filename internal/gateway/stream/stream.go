// Package stream holds the reconnect loop and bookkeeping shared by the
// exchange tick sources.
package stream

import (
	"context"
	"sync"
	"time"

	"teaka/internal/market"
)

const (
	minDelay = time.Second
	maxDelay = 30 * time.Second
)

// Session runs one connection until it drops or ctx ends. connected reports
// whether the connection was established, which resets the backoff.
type Session func(ctx context.Context) (connected bool, err error)

// Recorder accumulates market.SourceStats for a source.
type Recorder struct {
	mu    sync.Mutex
	stats market.SourceStats
}

func (r *Recorder) SubscribeError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.stats.SubscribeErrors++
	r.stats.LastError = err.Error()
	r.mu.Unlock()
}

func (r *Recorder) Reconnect(err error) {
	r.mu.Lock()
	r.stats.Reconnects++
	if err != nil {
		r.stats.LastError = err.Error()
	}
	r.mu.Unlock()
}

// Connected clears the last error after a successful (re)subscribe.
func (r *Recorder) Connected() {
	r.mu.Lock()
	r.stats.LastError = ""
	r.mu.Unlock()
}

func (r *Recorder) Snapshot() market.SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run calls session until ctx ends, backing off 1s..30s between attempts.
// Disconnect errors go to opts.OnDisconnect.
func Run(ctx context.Context, opts market.SubscribeOptions, session Session) {
	delay := minDelay
	for ctx.Err() == nil {
		connected, err := session(ctx)
		if ctx.Err() != nil {
			return
		}
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		if connected {
			delay = minDelay
		}
		if !Sleep(ctx, delay) {
			return
		}
		delay = NextDelay(delay)
	}
}

func NextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return minDelay
	}
	if next := current * 2; next < maxDelay {
		return next
	}
	return maxDelay
}

// Sleep waits d and reports false if ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Forward pushes evt without blocking the websocket reader; a full buffer
// drops the event and reports false.
func Forward(ctx context.Context, out chan<- market.TickEvent, evt market.TickEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- evt:
		return true
	default:
		return false
	}
}
