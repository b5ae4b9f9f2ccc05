// Package pipeline drives ticks through consensus, filtering, risk checks,
// the execution gate and the broker. Each symbol is handled by its own
// actor so ticks for one symbol are processed in order while different
// symbols run in parallel.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teaka/internal/audit"
	"teaka/internal/broker"
	"teaka/internal/consensus"
	"teaka/internal/filter"
	"teaka/internal/gate"
	"teaka/internal/logger"
	"teaka/internal/pkg/symbol"
	"teaka/internal/risk"
	"teaka/internal/signal"
	"teaka/internal/threshold"
)

type Config struct {
	QueueSize        int           `toml:"queue_size"`
	BrokerTimeout    time.Duration `toml:"broker_timeout"`
	SubscriberBuffer int           `toml:"subscriber_buffer"`
	OrderComment     string        `toml:"order_comment"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:        256,
		BrokerTimeout:    10 * time.Second,
		SubscriberBuffer: 64,
		OrderComment:     "Teaka AutoExec",
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.BrokerTimeout <= 0 {
		c.BrokerTimeout = def.BrokerTimeout
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = def.SubscriberBuffer
	}
	if c.OrderComment == "" {
		c.OrderComment = def.OrderComment
	}
}

// Deps are the components a pipeline drives. Audit is optional.
type Deps struct {
	Aggregator *consensus.Aggregator
	Filter     *filter.Filter
	Thresholds *threshold.Engine
	Risk       *risk.Manager
	Gate       *gate.Gate
	Broker     broker.Executor
	Accounts   broker.AccountProvider
	Audit      audit.Sink
}

func (d Deps) validate() error {
	var missing []string
	if d.Aggregator == nil {
		missing = append(missing, "aggregator")
	}
	if d.Filter == nil {
		missing = append(missing, "filter")
	}
	if d.Thresholds == nil {
		missing = append(missing, "thresholds")
	}
	if d.Risk == nil {
		missing = append(missing, "risk")
	}
	if d.Gate == nil {
		missing = append(missing, "gate")
	}
	if d.Broker == nil {
		missing = append(missing, "broker")
	}
	if d.Accounts == nil {
		missing = append(missing, "accounts")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing dependencies %v", missing)
	}
	return nil
}

type Pipeline struct {
	cfg  Config
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	actors map[string]*actor
	closed bool

	subMu   sync.RWMutex
	subs    map[int]chan ExecutionResult
	nextSub int

	execMu   sync.Mutex
	openExec map[string]string // symbol -> execution id

	stats counters
	nowFn func() time.Time
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		actors:   make(map[string]*actor),
		subs:     make(map[int]chan ExecutionResult),
		openExec: make(map[string]string),
		stats:    newCounters(),
		nowFn:    time.Now,
	}, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

func normalizeTick(tick signal.PriceTick) (signal.PriceTick, error) {
	sym := symbol.Canonical(tick.Symbol)
	if sym == "" {
		return tick, fmt.Errorf("%w: empty symbol", ErrInvalidTick)
	}
	if !tick.Price.IsPositive() {
		return tick, fmt.Errorf("%w: %s price %s", ErrInvalidTick, sym, tick.Price)
	}
	tick.Symbol = sym
	return tick, nil
}

// OnTick enqueues a tick without waiting for it to be processed.
func (p *Pipeline) OnTick(tick signal.PriceTick) error {
	tick, err := normalizeTick(tick)
	if err != nil {
		p.stats.invalid.Add(1)
		return err
	}
	a, err := p.actorFor(tick.Symbol)
	if err != nil {
		return err
	}
	select {
	case a.jobs <- job{kind: jobTick, ctx: p.ctx, tick: tick}:
		return nil
	default:
		p.stats.queueDrops.Add(1)
		return fmt.Errorf("%w: %s", ErrQueueFull, tick.Symbol)
	}
}

// Process runs one tick through the pipeline and waits for the outcome.
func (p *Pipeline) Process(ctx context.Context, tick signal.PriceTick) Outcome {
	tick, err := normalizeTick(tick)
	if err != nil {
		p.stats.invalid.Add(1)
		return Outcome{Symbol: tick.Symbol, Timestamp: tick.Timestamp, Status: StatusDropped, Stage: StageIngress, Reason: err.Error(), Err: err}
	}
	reply := make(chan Outcome, 1)
	if err := p.submit(ctx, job{kind: jobTick, ctx: ctx, tick: tick, reply: reply}); err != nil {
		return Outcome{Symbol: tick.Symbol, Timestamp: tick.Timestamp, Status: StatusDropped, Stage: StageIngress, Reason: err.Error(), Err: err}
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return Outcome{Symbol: tick.Symbol, Timestamp: tick.Timestamp, Status: StatusDropped, Stage: StageIngress, Reason: ctx.Err().Error(), Err: ctx.Err()}
	case <-p.ctx.Done():
		return Outcome{Symbol: tick.Symbol, Timestamp: tick.Timestamp, Status: StatusDropped, Stage: StageIngress, Reason: ErrClosed.Error(), Err: ErrClosed}
	}
}

// Warmup seeds evaluator and filter windows for sym from historical ticks
// without producing signals. Ticks must be in time order.
func (p *Pipeline) Warmup(ctx context.Context, sym string, ticks []signal.PriceTick) error {
	norm := symbol.Canonical(sym)
	if norm == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidTick)
	}
	clean := make([]signal.PriceTick, 0, len(ticks))
	for _, t := range ticks {
		t.Symbol = norm
		if t.Price.IsPositive() {
			clean = append(clean, t)
		}
	}
	reply := make(chan Outcome, 1)
	if err := p.submit(ctx, job{kind: jobWarmup, ctx: ctx, tick: signal.PriceTick{Symbol: norm}, ticks: clean, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

func (p *Pipeline) submit(ctx context.Context, j job) error {
	a, err := p.actorFor(j.tick.Symbol)
	if err != nil {
		return err
	}
	select {
	case a.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Close stops every actor and closes subscriber channels. Queued ticks are
// discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.subMu.Lock()
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	p.subMu.Unlock()
	logger.Infof("pipeline: closed")
}

// Subscribe returns a stream of executed signals and a cancel func. Slow
// subscribers miss results rather than blocking the pipeline.
func (p *Pipeline) Subscribe() (<-chan ExecutionResult, func()) {
	ch := make(chan ExecutionResult, p.cfg.SubscriberBuffer)
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			if c, ok := p.subs[id]; ok {
				close(c)
				delete(p.subs, id)
			}
			p.subMu.Unlock()
		})
	}
}

func (p *Pipeline) publish(res ExecutionResult) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.stats.subscriberDrops.Add(1)
		}
	}
}

// Positions lists open and pending positions.
func (p *Pipeline) Positions() []signal.OpenPosition {
	return p.deps.Risk.Book().List()
}

// ClosePosition applies an external close event for sym.
func (p *Pipeline) ClosePosition(sym string) (signal.OpenPosition, error) {
	norm := symbol.Canonical(sym)
	pos, err := p.deps.Risk.ClosePosition(norm)
	if err != nil {
		return signal.OpenPosition{}, err
	}
	p.deps.Gate.RecordClose(pos)

	p.execMu.Lock()
	execID := p.openExec[norm]
	delete(p.openExec, norm)
	p.execMu.Unlock()

	p.deps.Audit.Record(audit.Entry{
		ExecutionID: execID,
		Kind:        audit.KindClosed,
		Stage:       string(StageClose),
		Symbol:      norm,
		Timestamp:   p.nowFn().UnixMilli(),
		Details: map[string]any{
			"order_id":    pos.OrderID,
			"size":        pos.Size.String(),
			"entry_price": pos.EntryPrice.String(),
		},
	})
	p.stats.closes.Add(1)
	return pos, nil
}
