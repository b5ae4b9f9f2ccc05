package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"teaka/internal/audit"
	"teaka/internal/broker"
	"teaka/internal/filter"
	"teaka/internal/gate"
	"teaka/internal/logger"
	"teaka/internal/risk"
	"teaka/internal/signal"
	"teaka/internal/sizing"
	"teaka/internal/threshold"
)

// guard runs fn, converting a panic into a StageError.
func (p *Pipeline) guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			logger.Errorf("pipeline: panic in %s: %v\n%s", stage, r, stack)
			p.stats.panics.Add(1)
			err = &StageError{Stage: stage, Kind: audit.KindPanic, Err: &panicError{value: r, stack: stack}}
		}
	}()
	if e := fn(); e != nil {
		return &StageError{Stage: stage, Err: e}
	}
	return nil
}

// account reads balances under the broker timeout. A provider that ignores
// its context is abandoned at the deadline so the actor keeps moving.
func (p *Pipeline) account(ctx context.Context) (risk.AccountInfo, error) {
	actx, cancel := context.WithTimeout(ctx, p.cfg.BrokerTimeout)
	defer cancel()
	type reply struct {
		acct risk.AccountInfo
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		var r reply
		r.err = p.guard(StageAccount, func() error {
			var e error
			r.acct, e = p.deps.Accounts.Account(actx)
			return e
		})
		done <- r
	}()
	select {
	case r := <-done:
		return r.acct, r.err
	case <-actx.Done():
		return risk.AccountInfo{}, &StageError{Stage: StageAccount, Err: fmt.Errorf("account provider: %w", actx.Err())}
	}
}

func (p *Pipeline) process(ctx context.Context, a *actor, tick signal.PriceTick) Outcome {
	p.stats.ticks.Add(1)
	out := Outcome{Symbol: tick.Symbol, Timestamp: tick.Timestamp}
	if a.lastTs != 0 && tick.Timestamp <= a.lastTs {
		p.stats.duplicates.Add(1)
		out.Status = StatusDropped
		out.Stage = StageIngress
		out.Reason = fmt.Sprintf("stale tick %d <= %d", tick.Timestamp, a.lastTs)
		return out
	}
	a.lastTs = tick.Timestamp

	observed := false
	observe := func() {
		if !observed {
			observed = true
			p.deps.Filter.Observe(tick)
		}
	}
	defer observe()

	var sig *signal.Signal
	if err := p.guard(StageConsensus, func() error {
		sig = p.deps.Aggregator.Analyze(tick)
		return nil
	}); err != nil {
		return p.failed(out, StageConsensus, nil, err)
	}
	if sig == nil || !sig.Actionable() {
		out.Status = StatusNoSignal
		out.Stage = StageConsensus
		out.Signal = sig
		return out
	}
	p.stats.signals.Add(1)

	// filter
	snap := p.deps.Thresholds.Snapshot()
	md := filter.MarketData{
		Price:       tick.Price,
		Volume:      tick.Volume,
		Correlation: p.openCorrelation(sig.Symbol),
	}
	if v, ok := snap.Value(threshold.EntryConfidence); ok {
		md.MinConfidence = v
	}
	var fr filter.Result
	if err := p.guard(StageFilter, func() error {
		fr = p.deps.Filter.FilterSignal(*sig, md)
		return nil
	}); err != nil {
		return p.failed(out, StageFilter, sig, err)
	}
	observe()
	if !fr.IsValid {
		return p.rejected(out, StageFilter, audit.KindFilterRejected, sig, strings.Join(fr.Reasons, "; "), fr.Reasons, map[string]any{"filter": fr})
	}
	cur := sig.WithConfidence(fr.AdjustedConfidence)

	// targets
	if err := p.guard(StageTargets, func() error {
		cur = threshold.BoundTargets(cur, snap)
		return nil
	}); err != nil {
		return p.failed(out, StageTargets, &cur, err)
	}

	// account
	acct, err := p.account(ctx)
	if err != nil {
		return p.failed(out, StageAccount, &cur, err)
	}

	// risk
	var rr risk.Result
	if err := p.guard(StageRisk, func() error {
		rr = p.deps.Risk.ValidateTrade(cur, acct)
		return nil
	}); err != nil {
		return p.failed(out, StageRisk, &cur, err)
	}
	if !rr.Passed {
		codes := make([]string, 0, len(rr.Errors))
		msgs := make([]string, 0, len(rr.Errors))
		for _, e := range rr.Errors {
			codes = append(codes, e.Code)
			msgs = append(msgs, e.Code+": "+e.Message)
		}
		return p.rejected(out, StageRisk, audit.KindValidationFailed, &cur, strings.Join(codes, ","), msgs, map[string]any{"risk": rr})
	}

	// gate
	var dec gate.Decision
	if err := p.guard(StageGate, func() error {
		dec = p.deps.Gate.ExecuteSignal(cur, sizing.AccountInfo{
			Balance:    acct.Balance,
			Volatility: cur.Meta(signal.MetaVolatility),
		})
		return nil
	}); err != nil {
		return p.failed(out, StageGate, &cur, err)
	}
	if !dec.Executed {
		return p.rejected(out, StageGate, audit.KindGateRejected, &cur, dec.Reason, nil, map[string]any{"adjustments": dec.Adjustments})
	}
	res := dec.Reservation

	// broker
	order := broker.Order{
		ID:      res.ID,
		Symbol:  cur.Symbol,
		Action:  cur.Type,
		Size:    dec.Units,
		Price:   cur.Price,
		Comment: p.cfg.OrderComment,
	}
	if cur.Targets != nil {
		order.StopLoss = cur.Targets.StopLoss
		order.TakeProfit = cur.Targets.TakeProfit
	}
	var fill *broker.Fill
	bctx, cancel := context.WithTimeout(ctx, p.cfg.BrokerTimeout)
	err = p.guard(StageBroker, func() error {
		f, e := p.deps.Broker.Execute(bctx, order)
		if e == nil && f == nil {
			e = &broker.Error{Code: broker.CodeExecution, Message: "broker returned no fill"}
		}
		fill = f
		return e
	})
	cancel()
	if err != nil {
		return p.brokerFailed(out, &cur, order, dec, err)
	}

	// confirm
	units := fill.Units
	if !units.IsPositive() {
		units = dec.Units
	}
	price := fill.Price
	if !price.IsPositive() {
		price = cur.Price
	}
	pos, cerr := p.deps.Gate.Confirm(res, fill.OrderID, units, price)
	if cerr != nil {
		// the broker already filled; keep the position visible
		logger.Errorf("pipeline: confirm %s order=%s failed: %v", cur.Symbol, fill.OrderID, cerr)
		pos = signal.OpenPosition{Symbol: cur.Symbol, Side: cur.Type, Size: units, EntryPrice: price, OrderID: fill.OrderID, Timestamp: tick.Timestamp, Status: signal.PositionOpen}
	}

	p.execMu.Lock()
	p.openExec[cur.Symbol] = res.ID
	p.execMu.Unlock()

	result := ExecutionResult{
		ExecutionID: res.ID,
		Symbol:      cur.Symbol,
		Signal:      cur,
		Fill:        *fill,
		Notional:    dec.Size,
		Adjustments: dec.Adjustments,
		Position:    pos,
		Timestamp:   tick.Timestamp,
	}
	p.deps.Audit.Record(audit.Entry{
		ExecutionID: res.ID,
		Kind:        audit.KindExecuted,
		Stage:       string(StageBroker),
		Symbol:      cur.Symbol,
		Signal:      &cur,
		Execution: &audit.Execution{
			Venue:      fill.Venue,
			OrderID:    fill.OrderID,
			Units:      units,
			Notional:   units.Mul(price),
			Price:      price,
			StopLoss:   order.StopLoss,
			TakeProfit: order.TakeProfit,
		},
		Details:   map[string]any{"adjustments": dec.Adjustments},
		Timestamp: tick.Timestamp,
	})
	p.publish(result)
	p.stats.executions.Add(1)
	logger.With("symbol", cur.Symbol, "venue", fill.Venue, "order", fill.OrderID).
		Info("pipeline: executed", "side", string(cur.Type), "units", units.String(), "price", price.String())

	out.Status = StatusExecuted
	out.Stage = StageConfirm
	out.Signal = &cur
	out.Execution = &result
	return out
}

// openCorrelation is the strongest correlation between sym and any open
// position.
func (p *Pipeline) openCorrelation(sym string) float64 {
	corr, _ := p.deps.Gate.Correlation().Matrix().Strongest(sym, p.deps.Risk.Book().Symbols())
	return corr
}

func (p *Pipeline) rejected(out Outcome, stage Stage, kind audit.Kind, sig *signal.Signal, reason string, reasons []string, details map[string]any) Outcome {
	p.stats.reject(stage)
	out.Status = StatusRejected
	out.Stage = stage
	out.Signal = sig
	out.Reason = reason
	out.Reasons = reasons
	p.deps.Audit.Record(audit.Entry{
		Kind:      kind,
		Stage:     string(stage),
		Symbol:    out.Symbol,
		Reason:    reason,
		Signal:    sig,
		Details:   details,
		Timestamp: out.Timestamp,
	})
	logger.Debugf("pipeline: %s rejected at %s: %s", out.Symbol, stage, reason)
	return out
}

func (p *Pipeline) failed(out Outcome, stage Stage, sig *signal.Signal, err error) Outcome {
	p.stats.failures.Add(1)
	kind := audit.KindExecutionFailed
	var se *StageError
	if errors.As(err, &se) && se.Kind != "" {
		kind = se.Kind
	}
	out.Status = StatusFailed
	out.Stage = stage
	out.Signal = sig
	out.Reason = err.Error()
	out.Err = err
	p.deps.Audit.Record(audit.Entry{
		Kind:      kind,
		Stage:     string(stage),
		Symbol:    out.Symbol,
		Reason:    out.Reason,
		Signal:    sig,
		Timestamp: out.Timestamp,
	})
	logger.Warnf("pipeline: %s failed at %s: %v", out.Symbol, stage, err)
	return out
}

func (p *Pipeline) brokerFailed(out Outcome, sig *signal.Signal, order broker.Order, dec gate.Decision, err error) Outcome {
	be := broker.AsError(errors.Unwrap(err))
	kind := audit.KindExecutionFailed
	var se *StageError
	if errors.As(err, &se) && se.Kind == audit.KindPanic {
		kind = audit.KindPanic
		be = &broker.Error{Code: broker.CodeExecution, Message: se.Err.Error()}
	}
	p.deps.Gate.Rollback(dec.Reservation, be.Code)
	p.stats.failures.Add(1)

	out.Status = StatusFailed
	out.Stage = StageBroker
	out.Signal = sig
	out.Reason = be.Error()
	out.Err = be
	p.deps.Audit.Record(audit.Entry{
		ExecutionID: order.ID,
		Kind:        kind,
		Stage:       string(StageBroker),
		Symbol:      out.Symbol,
		Reason:      be.Message,
		Signal:      sig,
		Execution: &audit.Execution{
			Venue:        be.Venue,
			Units:        order.Size,
			Notional:     dec.Size,
			Price:        order.Price,
			StopLoss:     order.StopLoss,
			TakeProfit:   order.TakeProfit,
			ErrorCode:    be.Code,
			ErrorMessage: be.Message,
		},
		Timestamp: out.Timestamp,
	})
	logger.Warnf("pipeline: %s execution failed code=%s: %s", out.Symbol, be.Code, be.Message)
	return out
}
