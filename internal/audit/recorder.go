package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"teaka/internal/logger"
	"teaka/internal/store"
	"teaka/internal/store/model"
)

const defaultBuffer = 1024

// Recorder queues entries and drains them to the store from Run.
// Entries that do not fit in the queue are dropped and counted.
type Recorder struct {
	st    store.Store
	queue chan Entry

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func NewRecorder(st store.Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{st: st, queue: make(chan Entry, buffer), done: make(chan struct{})}
}

func (r *Recorder) Record(entry Entry) {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	mirror(entry)
	select {
	case <-r.done:
		r.dropped.Add(1)
	case r.queue <- entry:
	default:
		if r.dropped.Add(1)%100 == 1 {
			logger.Warnf("audit: queue full, dropping %s %s", entry.Kind, entry.Symbol)
		}
	}
}

// Run persists queued entries until ctx ends, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case <-r.done:
			r.flush()
			return nil
		case e := <-r.queue:
			r.persist(context.Background(), e)
		}
	}
}

// Close stops Run after it flushes.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

type Stats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Pending int   `json:"pending"`
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Pending: len(r.queue),
	}
}

// Query reads back persisted decisions.
func (r *Recorder) Query(ctx context.Context, q store.DecisionQuery) ([]model.DecisionModel, error) {
	if r.st == nil {
		return nil, nil
	}
	uow, err := r.st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	return uow.Decisions().List(ctx, q)
}

func (r *Recorder) Executions(ctx context.Context, limit int) ([]model.ExecutionModel, error) {
	if r.st == nil {
		return nil, nil
	}
	uow, err := r.st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	return uow.Executions().ListRecent(ctx, limit)
}

func (r *Recorder) flush() {
	for {
		select {
		case e := <-r.queue:
			r.persist(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, e Entry) {
	if r.st == nil {
		return
	}
	if err := r.write(ctx, e); err != nil {
		r.failed.Add(1)
		logger.Errorf("audit: persist %s %s failed: %v", e.Kind, e.Symbol, err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) write(ctx context.Context, e Entry) error {
	decision, err := toDecision(e)
	if err != nil {
		return err
	}
	uow, err := r.st.Begin(ctx)
	if err != nil {
		return err
	}
	if err := uow.Decisions().Insert(ctx, decision); err != nil {
		_ = uow.Rollback()
		return err
	}
	switch {
	case e.Kind == KindClosed && e.ExecutionID != "":
		err = uow.Executions().UpdateStatus(ctx, e.ExecutionID, model.ExecutionStatusClosed)
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		}
	default:
		if exec := toExecution(e); exec != nil {
			err = uow.Executions().Save(ctx, exec)
		}
	}
	if err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}

func toDecision(e Entry) (*model.DecisionModel, error) {
	d := &model.DecisionModel{
		ExecutionID: e.ExecutionID,
		Symbol:      e.Symbol,
		Kind:        string(e.Kind),
		Stage:       e.Stage,
		Reason:      e.Reason,
		Timestamp:   e.Timestamp,
	}
	if e.Signal != nil {
		d.Action = string(e.Signal.Type)
		d.Strategy = e.Signal.Strategy
		d.Confidence = e.Signal.Confidence
		raw, err := json.Marshal(e.Signal)
		if err != nil {
			return nil, fmt.Errorf("encode signal: %w", err)
		}
		d.SignalJSON = raw
	}
	if len(e.Details) > 0 || e.Execution != nil {
		details := make(map[string]any, len(e.Details)+1)
		for k, v := range e.Details {
			details[k] = v
		}
		if e.Execution != nil {
			details["execution"] = e.Execution
		}
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("encode details: %w", err)
		}
		d.DetailsJSON = raw
	}
	return d, nil
}

func toExecution(e Entry) *model.ExecutionModel {
	if e.ExecutionID == "" || e.Execution == nil {
		return nil
	}
	x := e.Execution
	m := &model.ExecutionModel{
		ExecutionID:  e.ExecutionID,
		Symbol:       e.Symbol,
		Venue:        x.Venue,
		OrderID:      x.OrderID,
		Units:        x.Units.InexactFloat64(),
		Notional:     x.Notional.InexactFloat64(),
		Price:        x.Price.InexactFloat64(),
		StopLoss:     x.StopLoss.InexactFloat64(),
		TakeProfit:   x.TakeProfit.InexactFloat64(),
		ErrorCode:    x.ErrorCode,
		ErrorMessage: x.ErrorMessage,
	}
	if e.Signal != nil {
		m.Side = string(e.Signal.Type)
	}
	switch e.Kind {
	case KindExecuted:
		m.Status = model.ExecutionStatusFilled
	case KindExecutionFailed:
		m.Status = model.ExecutionStatusFailed
	default:
		m.Status = model.ExecutionStatusPending
	}
	if raw, err := json.Marshal(x); err == nil {
		m.RawJSON = raw
	}
	return m
}

// mirror writes the entry to the decision dump log, if one is configured.
func mirror(e Entry) {
	if !logger.AuditEnabled() {
		return
	}
	fields := map[string]string{
		"id":     e.ExecutionID,
		"stage":  e.Stage,
		"reason": e.Reason,
	}
	for k, v := range e.Fields {
		fields[k] = v
	}
	if s := e.Signal; s != nil {
		fields["action"] = string(s.Type)
		fields["strategy"] = s.Strategy
		fields["confidence"] = fmt.Sprintf("%.4f", s.Confidence)
		fields["price"] = s.Price.String()
	}
	if x := e.Execution; x != nil {
		fields["venue"] = x.Venue
		fields["order_id"] = x.OrderID
		fields["units"] = x.Units.String()
		fields["error_code"] = x.ErrorCode
	}
	logger.Audit(string(e.Kind), e.Symbol, fields)
}
