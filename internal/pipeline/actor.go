package pipeline

import (
	"context"

	"teaka/internal/logger"
	"teaka/internal/signal"
)

type jobKind int

const (
	jobTick jobKind = iota
	jobWarmup
)

type job struct {
	kind  jobKind
	ctx   context.Context
	tick  signal.PriceTick
	ticks []signal.PriceTick
	reply chan Outcome
}

// actor owns one symbol. Only its goroutine touches lastTs.
type actor struct {
	symbol string
	jobs   chan job
	lastTs int64
}

func (p *Pipeline) actorFor(sym string) (*actor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if a, ok := p.actors[sym]; ok {
		return a, nil
	}
	a := &actor{symbol: sym, jobs: make(chan job, p.cfg.QueueSize)}
	p.actors[sym] = a
	p.wg.Add(1)
	go p.runActor(a)
	logger.Debugf("pipeline: actor started symbol=%s", sym)
	return a, nil
}

func (p *Pipeline) runActor(a *actor) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-a.jobs:
			out := p.handle(a, j)
			if j.reply != nil {
				j.reply <- out
			}
		}
	}
}

func (p *Pipeline) handle(a *actor, j job) Outcome {
	switch j.kind {
	case jobWarmup:
		return p.warmup(a, j.ticks)
	default:
		ctx := j.ctx
		if ctx == nil {
			ctx = p.ctx
		}
		return p.process(ctx, a, j.tick)
	}
}

func (p *Pipeline) warmup(a *actor, ticks []signal.PriceTick) Outcome {
	seeded := 0
	for _, t := range ticks {
		if a.lastTs != 0 && t.Timestamp <= a.lastTs {
			continue
		}
		err := p.guard(StageConsensus, func() error {
			p.deps.Aggregator.Warmup(t)
			p.deps.Filter.Observe(t)
			return nil
		})
		if err != nil {
			logger.Warnf("pipeline: warmup %s stopped: %v", a.symbol, err)
			break
		}
		a.lastTs = t.Timestamp
		seeded++
	}
	logger.Infof("pipeline: warmup symbol=%s ticks=%d", a.symbol, seeded)
	return Outcome{Symbol: a.symbol, Timestamp: a.lastTs, Status: StatusNoSignal}
}
