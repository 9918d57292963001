package orchestrator

import (
	"testing"

	"manifold/internal/rag/protocol"
	"manifold/internal/rag/router"
)

// TestRetrievalPrefsFromParams_DecodesClientMap exercises the path a real
// rag.request actually takes: router.BuildPlan puts the client's raw
// map[string]any (as produced by JSON-unmarshaling the websocket payload)
// into step.Params["retrieval_prefs"], and the step runner must decode it
// rather than silently falling back to defaults.
func TestRetrievalPrefsFromParams_DecodesClientMap(t *testing.T) {
	input := protocol.UserInput{
		Text: "q",
		Mode: protocol.ModeRAG,
		RetrievalPrefs: map[string]any{
			"query_text":         "override query",
			"top_k_items":        float64(7),
			"top_k_chunks":       float64(3),
			"per_item_chunk_cap": float64(2),
			"filter":             map[string]any{"owner": "u1"},
			"fts": map[string]any{
				"mode":         "strict",
				"allow_strict": true,
				"rank_func":    "ts_rank",
			},
			"vector": map[string]any{
				"embed_query": false,
				"distance":    "l2",
			},
			"scoring": map[string]any{
				"blend":  "linear",
				"w_text": 0.7,
				"w_vec":  0.3,
			},
			"chunking": map[string]any{
				"chunker_id": "custom",
			},
			"cache": map[string]any{
				"use_chunk_cache": false,
			},
			"snippet": map[string]any{
				"max_chars": float64(80),
			},
		},
	}

	plan := router.DecisionRouter{}.BuildPlan(input)
	var retrieveStep protocol.PlanStep
	for _, s := range plan.Steps {
		if s.StepID == "retrieve" {
			retrieveStep = s
		}
	}
	if retrieveStep.StepID == "" {
		t.Fatalf("expected a retrieve step in the rag-mode plan, got %+v", plan.Steps)
	}

	prefs := retrievalPrefsFromParams(retrieveStep.Params, input.Text)

	if prefs.QueryText != "override query" {
		t.Fatalf("expected query_text override, got %q", prefs.QueryText)
	}
	if prefs.TopKItems != 7 || prefs.TopKChunks != 3 || prefs.PerItemChunkCap != 2 {
		t.Fatalf("expected caps to be decoded, got %+v", prefs)
	}
	if prefs.Filter["owner"] != "u1" {
		t.Fatalf("expected filter to be decoded, got %+v", prefs.Filter)
	}
	if prefs.Fts.Mode != protocol.FtsStrict || !prefs.Fts.AllowStrict {
		t.Fatalf("expected fts.mode=strict and allow_strict=true, got %+v", prefs.Fts)
	}
	if prefs.Fts.RankFunc != protocol.Rank {
		t.Fatalf("expected rank_func decoded, got %+v", prefs.Fts.RankFunc)
	}
	if prefs.Vector.EmbedQuery != false || prefs.Vector.Distance != protocol.DistanceL2 {
		t.Fatalf("expected vector prefs decoded, got %+v", prefs.Vector)
	}
	if prefs.Scoring.Blend != protocol.BlendLinear || prefs.Scoring.WText != 0.7 || prefs.Scoring.WVec != 0.3 {
		t.Fatalf("expected scoring prefs decoded, got %+v", prefs.Scoring)
	}
	if prefs.Chunking.ChunkerID != "custom" {
		t.Fatalf("expected chunking.chunker_id decoded, got %+v", prefs.Chunking)
	}
	if prefs.Cache.UseChunkCache != false {
		t.Fatalf("expected cache.use_chunk_cache decoded, got %+v", prefs.Cache)
	}
	if prefs.Snippet.MaxChars != 80 {
		t.Fatalf("expected snippet.max_chars decoded, got %+v", prefs.Snippet)
	}
}

// TestRetrievalPrefsFromParams_AbsentFallsBackToDefault ensures a step
// with no retrieval_prefs param still gets usable defaults.
func TestRetrievalPrefsFromParams_AbsentFallsBackToDefault(t *testing.T) {
	prefs := retrievalPrefsFromParams(nil, "fallback text")
	if prefs.QueryText != "fallback text" {
		t.Fatalf("expected fallback query text, got %q", prefs.QueryText)
	}
	if prefs.TopKItems != protocol.DefaultRetrievalPrefs("fallback text").TopKItems {
		t.Fatalf("expected default top_k_items, got %d", prefs.TopKItems)
	}
}

// TestRetrievalPrefsFromParams_EmptyQueryTextFallsBackToInputText ensures
// a client-supplied prefs map that omits query_text still gets the
// user's input text rather than an empty string.
func TestRetrievalPrefsFromParams_EmptyQueryTextFallsBackToInputText(t *testing.T) {
	params := map[string]any{
		"retrieval_prefs": map[string]any{
			"top_k_items": float64(1),
		},
	}
	prefs := retrievalPrefsFromParams(params, "the user's text")
	if prefs.QueryText != "the user's text" {
		t.Fatalf("expected query_text to default to input text, got %q", prefs.QueryText)
	}
	if prefs.TopKItems != 1 {
		t.Fatalf("expected top_k_items decoded, got %d", prefs.TopKItems)
	}
}
