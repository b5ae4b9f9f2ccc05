package pipeline

import (
	"errors"
	"fmt"

	"teaka/internal/audit"
)

var (
	ErrClosed      = errors.New("pipeline closed")
	ErrQueueFull   = errors.New("symbol queue full")
	ErrInvalidTick = errors.New("invalid tick")
)

// Stage names where a tick can stop.
type Stage string

const (
	StageIngress   Stage = "ingress"
	StageConsensus Stage = "consensus"
	StageFilter    Stage = "filter"
	StageTargets   Stage = "targets"
	StageAccount   Stage = "account"
	StageRisk      Stage = "risk"
	StageGate      Stage = "gate"
	StageBroker    Stage = "broker"
	StageConfirm   Stage = "confirm"
	StageClose     Stage = "close"
)

// StageError 封装某个阶段的失败信息。
type StageError struct {
	Stage Stage
	Kind  audit.Kind
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return string(e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
