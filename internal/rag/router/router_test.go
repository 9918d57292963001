package router

import (
	"testing"

	"manifold/internal/rag/protocol"
)

func stepByID(steps []protocol.PlanStep, id string) (protocol.PlanStep, bool) {
	for _, s := range steps {
		if s.StepID == id {
			return s, true
		}
	}
	return protocol.PlanStep{}, false
}

func TestBuildPlan_RAGMode(t *testing.T) {
	plan := DecisionRouter{}.BuildPlan(protocol.UserInput{Text: "q", Mode: protocol.ModeRAG})
	if plan.PlanID == "" {
		t.Fatalf("expected non-empty plan id")
	}
	retrieve, ok := stepByID(plan.Steps, "retrieve")
	if !ok || !retrieve.Required || retrieve.Kind != protocol.StepRetrieve {
		t.Fatalf("expected required retrieve step, got %+v", retrieve)
	}
	synth, ok := stepByID(plan.Steps, "synthesize")
	if !ok || !synth.Required || len(synth.DependsOn) != 1 || synth.DependsOn[0] != "retrieve" {
		t.Fatalf("expected synthesize depending on retrieve, got %+v", synth)
	}
}

func TestBuildPlan_ToolMode(t *testing.T) {
	plan := DecisionRouter{}.BuildPlan(protocol.UserInput{
		Text: "q", Mode: protocol.ModeTool,
		Metadata: map[string]any{"tool": "search_web"},
	})
	toolCall, ok := stepByID(plan.Steps, "tool_call")
	if !ok || !toolCall.Required {
		t.Fatalf("expected required tool_call step, got %+v", toolCall)
	}
	if toolCall.Params["tool"] != "search_web" {
		t.Fatalf("expected tool id propagated, got %v", toolCall.Params["tool"])
	}
}

func TestBuildPlan_ToolMode_AbsentToolPropagatesNil(t *testing.T) {
	plan := DecisionRouter{}.BuildPlan(protocol.UserInput{Text: "q", Mode: protocol.ModeTool})
	toolCall, _ := stepByID(plan.Steps, "tool_call")
	if toolCall.Params["tool"] != nil {
		t.Fatalf("expected nil tool id, got %v", toolCall.Params["tool"])
	}
}

func TestBuildPlan_HybridMode(t *testing.T) {
	plan := DecisionRouter{}.BuildPlan(protocol.UserInput{Text: "q", Mode: protocol.ModeHybrid})
	retrieve, _ := stepByID(plan.Steps, "retrieve")
	toolCall, _ := stepByID(plan.Steps, "tool_call")
	synth, _ := stepByID(plan.Steps, "synthesize")

	if retrieve.Required || toolCall.Required {
		t.Fatalf("expected retrieve and tool_call to be optional in hybrid mode")
	}
	if !synth.Required {
		t.Fatalf("expected synthesize to be required")
	}
	if len(synth.DependsOn) != 2 {
		t.Fatalf("expected synthesize to depend on both retrieve and tool_call, got %v", synth.DependsOn)
	}
}

func TestBuildPlan_DefaultModeIsChatSynthesizeOnly(t *testing.T) {
	for _, mode := range []protocol.Mode{protocol.ModeChat, "", "unknown"} {
		plan := DecisionRouter{}.BuildPlan(protocol.UserInput{Text: "hello world", Mode: mode})
		if len(plan.Steps) != 1 {
			t.Fatalf("mode=%q: expected single step, got %+v", mode, plan.Steps)
		}
		if plan.Steps[0].Kind != protocol.StepSynthesize || !plan.Steps[0].Required {
			t.Fatalf("mode=%q: expected required synthesize step, got %+v", mode, plan.Steps[0])
		}
		if len(plan.Steps[0].DependsOn) != 0 {
			t.Fatalf("mode=%q: expected no dependencies, got %v", mode, plan.Steps[0].DependsOn)
		}
	}
}

func TestBuildPlan_FreshPlanIDPerCall(t *testing.T) {
	a := DecisionRouter{}.BuildPlan(protocol.UserInput{Mode: protocol.ModeChat})
	b := DecisionRouter{}.BuildPlan(protocol.UserInput{Mode: protocol.ModeChat})
	if a.PlanID == b.PlanID {
		t.Fatalf("expected distinct plan ids per call")
	}
}
