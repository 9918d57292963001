// Package router implements the decision router: a pure, deterministic
// mapping from a user input's mode to an ExecutionPlan.
package router

import (
	"strings"

	"github.com/google/uuid"

	"manifold/internal/rag/protocol"
)

// DecisionRouter builds execution plans. It holds no state.
type DecisionRouter struct{}

// BuildPlan returns a fresh plan (new plan id per call) for the given
// user input's mode.
func (DecisionRouter) BuildPlan(input protocol.UserInput) protocol.ExecutionPlan {
	mode := strings.ToLower(string(input.Mode))
	if mode == "" {
		mode = string(protocol.ModeChat)
	}

	var steps []protocol.PlanStep
	switch mode {
	case string(protocol.ModeRAG):
		steps = []protocol.PlanStep{
			{
				StepID:   "retrieve",
				Kind:     protocol.StepRetrieve,
				Required: true,
				Params:   map[string]any{"retrieval_prefs": retrievalPrefsParam(input)},
			},
			{
				StepID:    "synthesize",
				Kind:      protocol.StepSynthesize,
				Required:  true,
				DependsOn: []string{"retrieve"},
			},
		}
	case string(protocol.ModeTool):
		steps = []protocol.PlanStep{
			{
				StepID:   "tool_call",
				Kind:     protocol.StepToolCall,
				Required: true,
				Params:   map[string]any{"tool": toolParam(input)},
			},
			{
				StepID:    "synthesize",
				Kind:      protocol.StepSynthesize,
				Required:  true,
				DependsOn: []string{"tool_call"},
			},
		}
	case string(protocol.ModeHybrid):
		steps = []protocol.PlanStep{
			{
				StepID:   "retrieve",
				Kind:     protocol.StepRetrieve,
				Required: false,
				Params:   map[string]any{"retrieval_prefs": retrievalPrefsParam(input)},
			},
			{
				StepID:    "tool_call",
				Kind:      protocol.StepToolCall,
				Required:  false,
				DependsOn: []string{"retrieve"},
				Params:    map[string]any{"tool": toolParam(input)},
			},
			{
				StepID:    "synthesize",
				Kind:      protocol.StepSynthesize,
				Required:  true,
				DependsOn: []string{"retrieve", "tool_call"},
			},
		}
	default: // chat / unknown
		steps = []protocol.PlanStep{
			{StepID: "synthesize", Kind: protocol.StepSynthesize, Required: true},
		}
	}

	return protocol.ExecutionPlan{PlanID: uuid.NewString(), Steps: steps}
}

func retrievalPrefsParam(input protocol.UserInput) map[string]any {
	if input.RetrievalPrefs != nil {
		return input.RetrievalPrefs
	}
	return map[string]any{}
}

func toolParam(input protocol.UserInput) any {
	if input.Metadata == nil {
		return nil
	}
	return input.Metadata["tool"]
}
