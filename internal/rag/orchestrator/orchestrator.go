// Package orchestrator drives an ExecutionPlan step by step, enforcing
// dependency and required/optional semantics, and emits the request's
// event log through a single, strictly-ordered emit path.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"manifold/internal/rag/obs"
	"manifold/internal/rag/protocol"
	"manifold/internal/rag/router"
)

// Orchestrator runs plans built by a DecisionRouter through a StepRunner.
type Orchestrator struct {
	Router     router.DecisionRouter
	StepRunner StepRunner
	Metrics    obs.Metrics
}

// Run executes one request end to end: emits rag.started, builds and
// drives a plan, and always terminates with exactly one rag.done. No
// two calls may share a RequestContext or EventSink concurrently. The
// request's total duration and terminal status are recorded against
// Metrics.
func (o Orchestrator) Run(ctx context.Context, reqCtx *protocol.RequestContext, input protocol.UserInput, sink protocol.EventSink) error {
	var seq int64
	status := "error"
	defer func() {
		if o.Metrics != nil {
			labels := map[string]string{"mode": string(input.Mode), "status": status}
			o.Metrics.ObserveHistogram("rag_request_duration_ms", float64(time.Since(reqCtx.StartedAt).Milliseconds()), labels)
			o.Metrics.IncCounter("rag_requests_total", labels)
		}
	}()

	emit := func(ctx context.Context, eventType string, payload map[string]any) error {
		seq++
		return sink.Emit(ctx, protocol.EventEnvelope{
			Type:            eventType,
			ProtocolVersion: protocol.ProtocolVersion,
			RequestID:       reqCtx.RequestID,
			Seq:             seq,
			Ts:              reqCtx.StartedAt,
			Payload:         payload,
		})
	}

	if err := emit(ctx, protocol.EventStarted, map[string]any{"status": "running"}); err != nil {
		return err
	}

	runErr := o.executePlan(ctx, reqCtx, input, emit)

	switch {
	case runErr == nil:
		status = "ok"
		return emit(ctx, protocol.EventDone, map[string]any{"status": "ok"})
	case errors.Is(runErr, protocol.ErrCancelled):
		status = "cancelled"
		return emit(ctx, protocol.EventDone, map[string]any{"status": "cancelled"})
	default:
		var reqFailed *protocol.RequiredStepFailedError
		if errors.As(runErr, &reqFailed) {
			if err := emit(ctx, protocol.EventError, map[string]any{"message": reqFailed.Error(), "step_id": reqFailed.StepID}); err != nil {
				return err
			}
		} else {
			if err := emit(ctx, protocol.EventError, map[string]any{"message": runErr.Error()}); err != nil {
				return err
			}
		}
		return emit(ctx, protocol.EventDone, map[string]any{"status": "error"})
	}
}

func (o Orchestrator) executePlan(ctx context.Context, reqCtx *protocol.RequestContext, input protocol.UserInput, emit emitFunc) error {
	plan := o.Router.BuildPlan(input)
	state := protocol.NewStepState()

	statuses := make(map[string]protocol.StepStatus, len(plan.Steps))
	required := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		required[s.StepID] = s.Required
	}

	for _, step := range plan.Steps {
		if err := reqCtx.CancelledErr(ctx); err != nil {
			return err
		}
		if !dependenciesSatisfied(step, statuses, required) {
			statuses[step.StepID] = protocol.StatusSkipped
			continue
		}

		status, err := o.StepRunner.RunStep(ctx, reqCtx, step, input, state, emit)
		if err != nil {
			return err
		}
		statuses[step.StepID] = status
		if status == protocol.StatusFailed && step.Required {
			return protocol.NewRequiredStepFailed(step.StepID, "")
		}
	}
	return nil
}

// dependenciesSatisfied implements the dependency rule: every dep must
// have a recorded status, and a failed dep only blocks s if that dep
// was required.
func dependenciesSatisfied(step protocol.PlanStep, statuses map[string]protocol.StepStatus, required map[string]bool) bool {
	for _, dep := range step.DependsOn {
		status, ok := statuses[dep]
		if !ok {
			return false
		}
		if status == protocol.StatusFailed && required[dep] {
			return false
		}
	}
	return true
}
