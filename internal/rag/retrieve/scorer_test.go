package retrieve

import (
	"testing"

	"manifold/internal/rag/protocol"
)

func TestHybridScorer_RRF(t *testing.T) {
	text := []laneEntry{{"a", 0.9}, {"b", 0.8}}
	vec := []laneEntry{{"b", 0.95}, {"c", 0.7}}
	prefs := protocol.RetrievalPrefs{
		TopKItems: 3,
		Scoring:   protocol.ScoringPrefs{Blend: protocol.BlendRRF, RRFK: 60},
	}
	out := HybridScorer{}.Fuse(text, vec, prefs)
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	got := []string{out[0].ID, out[1].ID, out[2].ID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestHybridScorer_Linear(t *testing.T) {
	text := []laneEntry{{"a", 0.2}, {"b", 0.1}}
	vec := []laneEntry{{"a", 0.1}, {"b", 0.3}}
	prefs := protocol.RetrievalPrefs{
		TopKItems: 2,
		Scoring: protocol.ScoringPrefs{
			Blend: protocol.BlendLinear, WText: 0.8, WVec: 0.2,
			Normalize: protocol.NormalizeNone,
		},
	}
	out := HybridScorer{}.Fuse(text, vec, prefs)
	if len(out) == 0 || out[0].ID != "a" {
		t.Fatalf("expected top-1 to be a, got %+v", out)
	}
}

func TestHybridScorer_AbsentLaneContributesZero(t *testing.T) {
	text := []laneEntry{{"a", 0.5}}
	var vec []laneEntry
	prefs := protocol.RetrievalPrefs{
		TopKItems: 5,
		Scoring:   protocol.ScoringPrefs{Blend: protocol.BlendRRF, RRFK: 60},
	}
	out := HybridScorer{}.Fuse(text, vec, prefs)
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].RankVec != nil {
		t.Fatalf("expected absent vector rank, got %v", *out[0].RankVec)
	}
}

func TestNormalize_MinMaxCollapsesWhenEqual(t *testing.T) {
	entries := []laneEntry{{"a", 5}, {"b", 5}}
	out := normalize(entries, protocol.NormalizeMinMax)
	if out["a"] != 1.0 || out["b"] != 1.0 {
		t.Fatalf("expected uniform 1.0 when max==min, got %+v", out)
	}
}

func TestNormalize_Sigmoid(t *testing.T) {
	out := normalize([]laneEntry{{"a", 0}}, protocol.NormalizeSigmoid)
	if out["a"] != 0.5 {
		t.Fatalf("sigmoid(0) should be 0.5, got %v", out["a"])
	}
}

func TestFuseRRF_TieBreakIsInsertionOrder(t *testing.T) {
	text := []laneEntry{{"a", 1.0}}
	vec := []laneEntry{{"b", 1.0}}
	prefs := protocol.RetrievalPrefs{TopKItems: 2, Scoring: protocol.ScoringPrefs{Blend: protocol.BlendRRF, RRFK: 60}}
	out := HybridScorer{}.Fuse(text, vec, prefs)
	if out[0].Score != out[1].Score {
		t.Fatalf("expected tied fused scores, got %+v", out)
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected stable insertion-order tie-break (text before vec), got %+v", out)
	}
}
