package pipeline

import (
	"sync"
	"sync/atomic"
)

type counters struct {
	ticks           atomic.Int64
	invalid         atomic.Int64
	duplicates      atomic.Int64
	queueDrops      atomic.Int64
	signals         atomic.Int64
	executions      atomic.Int64
	failures        atomic.Int64
	panics          atomic.Int64
	closes          atomic.Int64
	subscriberDrops atomic.Int64

	mu         sync.Mutex
	rejections map[Stage]int64
}

func newCounters() counters {
	return counters{rejections: make(map[Stage]int64)}
}

func (c *counters) reject(stage Stage) {
	c.mu.Lock()
	c.rejections[stage]++
	c.mu.Unlock()
}

type Stats struct {
	Ticks           int64           `json:"ticks"`
	Invalid         int64           `json:"invalid"`
	Duplicates      int64           `json:"duplicates"`
	QueueDrops      int64           `json:"queue_drops"`
	Signals         int64           `json:"signals"`
	Rejections      map[Stage]int64 `json:"rejections"`
	Executions      int64           `json:"executions"`
	Failures        int64           `json:"failures"`
	Panics          int64           `json:"panics"`
	Closes          int64           `json:"closes"`
	SubscriberDrops int64           `json:"subscriber_drops"`
	Actors          int             `json:"actors"`
}

func (p *Pipeline) Stats() Stats {
	p.stats.mu.Lock()
	rej := make(map[Stage]int64, len(p.stats.rejections))
	for k, v := range p.stats.rejections {
		rej[k] = v
	}
	p.stats.mu.Unlock()

	p.mu.Lock()
	actors := len(p.actors)
	p.mu.Unlock()

	return Stats{
		Ticks:           p.stats.ticks.Load(),
		Invalid:         p.stats.invalid.Load(),
		Duplicates:      p.stats.duplicates.Load(),
		QueueDrops:      p.stats.queueDrops.Load(),
		Signals:         p.stats.signals.Load(),
		Rejections:      rej,
		Executions:      p.stats.executions.Load(),
		Failures:        p.stats.failures.Load(),
		Panics:          p.stats.panics.Load(),
		Closes:          p.stats.closes.Load(),
		SubscriberDrops: p.stats.subscriberDrops.Load(),
		Actors:          actors,
	}
}
