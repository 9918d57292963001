// Package collab defines the orchestrator's tool/agent/validator
// collaborator interfaces, plus deterministic in-memory stub
// implementations suitable for tests and local runs without a live
// tool or agent back-end wired up.
package collab

import (
	"context"

	"manifold/internal/rag/protocol"
)

// ToolRunner invokes a named tool with step params.
type ToolRunner interface {
	Call(ctx context.Context, stepParams map[string]any) (protocol.ToolResult, error)
}

// AgentRunner invokes a named agent with step params.
type AgentRunner interface {
	Run(ctx context.Context, stepParams map[string]any) (protocol.AgentResult, error)
}

// ValidationResult is the validator's verdict.
type ValidationResult struct {
	Success bool
	Details map[string]any
}

// Validator checks a validation step's params.
type Validator interface {
	Validate(ctx context.Context, stepParams map[string]any) (ValidationResult, error)
}

// StubToolRunner always succeeds, echoing the requested tool id.
type StubToolRunner struct{}

func (StubToolRunner) Call(ctx context.Context, stepParams map[string]any) (protocol.ToolResult, error) {
	name, _ := stepParams["tool"].(string)
	if name == "" {
		name = "stub_tool"
	}
	return protocol.ToolResult{
		ToolID:  name,
		Success: true,
		Output:  map[string]any{"echo": true},
	}, nil
}

// StubAgentRunner always succeeds with a placeholder note.
type StubAgentRunner struct{}

func (StubAgentRunner) Run(ctx context.Context, stepParams map[string]any) (protocol.AgentResult, error) {
	return protocol.AgentResult{
		AgentID: "stub_agent",
		Success: true,
		Output:  map[string]any{"note": "agent run placeholder"},
	}, nil
}

// StubValidator always succeeds.
type StubValidator struct{}

func (StubValidator) Validate(ctx context.Context, stepParams map[string]any) (ValidationResult, error) {
	return ValidationResult{Success: true, Details: map[string]any{"note": "validation stub"}}, nil
}
