// Package protocol defines the wire- and state-level data model shared by
// the router, orchestrator, retriever, and evidence packer: request
// context, plans, step state, and the event envelope emitted to clients.
package protocol

import (
	"context"
	"time"
)

// Mode selects the decision router's plan shape for a UserInput.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeRAG    Mode = "rag"
	ModeTool   Mode = "tool"
	ModeHybrid Mode = "hybrid"
)

// StepKind enumerates the step kinds the step runner dispatches on.
type StepKind string

const (
	StepRetrieve    StepKind = "retrieve"
	StepToolCall    StepKind = "tool_call"
	StepAgentRun    StepKind = "agent_run"
	StepValidate    StepKind = "validate"
	StepSynthesize  StepKind = "synthesize"
	StepEmitResults StepKind = "emit_results"
	StepFinalize    StepKind = "finalize"
)

// StepStatus is the terminal status recorded for one step execution.
type StepStatus string

const (
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// UserInput is the client-submitted request payload.
type UserInput struct {
	Text           string
	Mode           Mode
	Metadata       map[string]any
	RetrievalPrefs map[string]any
	Debug          bool
}

// PlanStep is one node of an ExecutionPlan.
type PlanStep struct {
	StepID     string
	Kind       StepKind
	Required   bool
	DependsOn  []string
	Params     map[string]any
}

// ExecutionPlan is the ordered, dependency-annotated step list the
// orchestrator drives for one request.
type ExecutionPlan struct {
	PlanID string
	Steps  []PlanStep
}

// ToolResult is the outcome of one tool_call step.
type ToolResult struct {
	ToolID  string
	Success bool
	Output  any
	Error   string
}

// AgentResult is the outcome of one agent_run step.
type AgentResult struct {
	AgentID string
	Success bool
	Output  any
	Error   string
}

// StepState is per-request scratch space, owned exclusively by the step
// runner executing that request. It is never shared across goroutines.
type StepState struct {
	Bundle         *RetrievalBundle
	ToolResults    []ToolResult
	AgentResults   []AgentResult
	ResultsPayload map[string]any
}

// NewStepState returns a zeroed StepState ready for one request.
func NewStepState() *StepState {
	return &StepState{ResultsPayload: map[string]any{}}
}

// EventEnvelope is the typed, sequenced message addressed to a client.
type EventEnvelope struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	RequestID       string         `json:"request_id"`
	Seq             int64          `json:"seq"`
	Ts              time.Time      `json:"ts"`
	Payload         map[string]any `json:"payload,omitempty"`
}

const ProtocolVersion = "1.0"

// Event type constants, matching the transport contract.
const (
	EventStarted = "rag.started"
	EventSources = "rag.sources"
	EventToken   = "rag.token"
	EventMessage = "rag.message"
	EventResults = "rag.results"
	EventError   = "rag.error"
	EventDone    = "rag.done"
)

// EventSink is the single destination every emitted event passes through.
// Implementations must serialize writes per request (single-writer
// discipline); the orchestrator assumes no reordering once Emit returns.
type EventSink interface {
	Emit(ctx context.Context, envelope EventEnvelope) error
}
