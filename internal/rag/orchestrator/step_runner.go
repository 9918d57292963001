package orchestrator

import (
	"context"
	"time"

	"manifold/internal/rag/collab"
	"manifold/internal/rag/evidence"
	"manifold/internal/rag/obs"
	"manifold/internal/rag/protocol"
	"manifold/internal/rag/retrieve"
	"manifold/internal/rag/runtime"
)

// emitFunc assigns the next sequence number and emits one event. Only
// the orchestrator's run loop constructs one; the step runner never
// manages sequence numbers itself.
type emitFunc func(ctx context.Context, eventType string, payload map[string]any) error

// StepRunner dispatches a single PlanStep to its collaborator and
// reports the resulting status.
type StepRunner struct {
	Retriever   retrieve.Retriever
	Runtime     runtime.Runtime
	ToolRunner  collab.ToolRunner
	AgentRunner collab.AgentRunner
	Validator   collab.Validator
	Metrics     obs.Metrics
}

// RunStep executes one step, mutating state in place, and returns its
// terminal status. Step duration and outcome are recorded against
// Metrics, labeled by step kind, regardless of which path below runs.
func (r StepRunner) RunStep(ctx context.Context, reqCtx *protocol.RequestContext, step protocol.PlanStep, input protocol.UserInput, state *protocol.StepState, emit emitFunc) (protocol.StepStatus, error) {
	started := time.Now()
	status, err := r.runStep(ctx, reqCtx, step, input, state, emit)
	if r.Metrics != nil {
		labels := map[string]string{"kind": string(step.Kind), "status": string(status)}
		r.Metrics.ObserveHistogram("rag_step_duration_ms", float64(time.Since(started).Milliseconds()), labels)
		r.Metrics.IncCounter("rag_steps_total", labels)
	}
	return status, err
}

func (r StepRunner) runStep(ctx context.Context, reqCtx *protocol.RequestContext, step protocol.PlanStep, input protocol.UserInput, state *protocol.StepState, emit emitFunc) (protocol.StepStatus, error) {
	switch step.Kind {
	case protocol.StepRetrieve:
		return r.runRetrieve(ctx, reqCtx, step, input, state, emit)
	case protocol.StepToolCall:
		return r.runToolCall(ctx, step, state)
	case protocol.StepAgentRun:
		return r.runAgentRun(ctx, step, state)
	case protocol.StepValidate:
		return r.runValidate(ctx, step)
	case protocol.StepSynthesize:
		return r.runSynthesize(ctx, reqCtx, input, state, emit)
	case protocol.StepEmitResults:
		if err := emit(ctx, protocol.EventResults, step.Params); err != nil {
			return "", err
		}
		return protocol.StatusCompleted, nil
	case protocol.StepFinalize:
		return protocol.StatusCompleted, nil
	default:
		return protocol.StatusSkipped, nil
	}
}

func (r StepRunner) runRetrieve(ctx context.Context, reqCtx *protocol.RequestContext, step protocol.PlanStep, input protocol.UserInput, state *protocol.StepState, emit emitFunc) (protocol.StepStatus, error) {
	prefs := retrievalPrefsFromParams(step.Params, input.Text)
	bundle, err := r.Retriever.Search(ctx, reqCtx, prefs)
	if err != nil {
		return "", err
	}
	state.Bundle = &bundle
	sources := packSources(bundle)
	if err := emit(ctx, protocol.EventSources, map[string]any{"sources": sources}); err != nil {
		return "", err
	}
	return protocol.StatusCompleted, nil
}

func packSources(bundle protocol.RetrievalBundle) []map[string]any {
	packed := evidence.Pack(bundle.Candidates, bundle.Evidence, evidence.Options{
		OrderBy:             evidence.OrderByScore,
		PreferChunkSnippets: true,
		MaxSnippetChars:     240,
	})
	out := make([]map[string]any, len(packed))
	for i, s := range packed {
		out[i] = map[string]any{
			"source_id":    s.SourceID,
			"kind":         s.Kind,
			"title":        s.Title,
			"url":          s.URL,
			"snippet":      s.Snippet,
			"snippet_from": string(s.SnippetFrom),
			"score":        s.Score,
			"rank":         s.Rank,
		}
	}
	return out
}

func retrievalPrefsFromParams(params map[string]any, fallbackQueryText string) protocol.RetrievalPrefs {
	prefs := protocol.DefaultRetrievalPrefs(fallbackQueryText)
	if params == nil {
		return prefs
	}
	raw, ok := params["retrieval_prefs"]
	if !ok {
		return prefs
	}
	switch v := raw.(type) {
	case protocol.RetrievalPrefs:
		prefs = v
	case map[string]any:
		decodeRetrievalPrefs(v, &prefs)
	}
	if prefs.QueryText == "" {
		prefs.QueryText = fallbackQueryText
	}
	return prefs
}

// decodeRetrievalPrefs overlays the client-supplied retrieval_prefs map
// (the shape a JSON rag.request payload actually carries over the wire)
// onto prefs, which already holds DefaultRetrievalPrefs. Absent or
// mistyped keys leave the default in place.
func decodeRetrievalPrefs(m map[string]any, prefs *protocol.RetrievalPrefs) {
	if s, ok := stringVal(m, "query_text"); ok {
		prefs.QueryText = s
	}
	if f, ok := m["filter"].(map[string]any); ok {
		filter := make(map[string]string, len(f))
		for k, v := range f {
			if s, ok := v.(string); ok {
				filter[k] = s
			}
		}
		prefs.Filter = filter
	}
	if n, ok := intVal(m, "top_k_items"); ok {
		prefs.TopKItems = n
	}
	if n, ok := intVal(m, "top_k_chunks"); ok {
		prefs.TopKChunks = n
	}
	if n, ok := intVal(m, "per_item_chunk_cap"); ok {
		prefs.PerItemChunkCap = n
	}
	if b, ok := m["debug"].(bool); ok {
		prefs.Debug = b
	}

	if fts, ok := m["fts"].(map[string]any); ok {
		if s, ok := stringVal(fts, "mode"); ok {
			prefs.Fts.Mode = protocol.FtsMode(s)
		}
		if s, ok := stringVal(fts, "config"); ok {
			prefs.Fts.Config = s
		}
		if s, ok := stringVal(fts, "rank_func"); ok {
			prefs.Fts.RankFunc = protocol.RankFunc(s)
		}
		if f, ok := floatVal(fts, "min_rank"); ok {
			prefs.Fts.MinRank = &f
		}
		if b, ok := fts["allow_strict"].(bool); ok {
			prefs.Fts.AllowStrict = b
		}
	}

	if vec, ok := m["vector"].(map[string]any); ok {
		if b, ok := vec["embed_query"].(bool); ok {
			prefs.Vector.EmbedQuery = b
		}
		if s, ok := stringVal(vec, "distance"); ok {
			prefs.Vector.Distance = protocol.Distance(s)
		}
		if f, ok := floatVal(vec, "min_score"); ok {
			prefs.Vector.MinScore = &f
		}
	}

	if sc, ok := m["scoring"].(map[string]any); ok {
		if s, ok := stringVal(sc, "blend"); ok {
			prefs.Scoring.Blend = protocol.Blend(s)
		}
		if f, ok := floatVal(sc, "w_text"); ok {
			prefs.Scoring.WText = f
		}
		if f, ok := floatVal(sc, "w_vec"); ok {
			prefs.Scoring.WVec = f
		}
		if s, ok := stringVal(sc, "normalize"); ok {
			prefs.Scoring.Normalize = protocol.Normalize(s)
		}
		if n, ok := intVal(sc, "rrf_k"); ok {
			prefs.Scoring.RRFK = n
		}
	}

	if ch, ok := m["chunking"].(map[string]any); ok {
		if s, ok := stringVal(ch, "strategy"); ok {
			prefs.Chunking.Strategy = s
		}
		if s, ok := stringVal(ch, "chunker_id"); ok {
			prefs.Chunking.ChunkerID = s
		}
		if b, ok := ch["include_headers"].(bool); ok {
			prefs.Chunking.IncludeHeaders = b
		}
		if n, ok := intVal(ch, "max_chunk_tokens"); ok {
			prefs.Chunking.MaxChunkTokens = n
		}
		if n, ok := intVal(ch, "overlap_tokens"); ok {
			prefs.Chunking.OverlapTokens = n
		}
	}

	if c, ok := m["cache"].(map[string]any); ok {
		if b, ok := c["use_chunk_cache"].(bool); ok {
			prefs.Cache.UseChunkCache = b
		}
		if b, ok := c["write_chunk_cache"].(bool); ok {
			prefs.Cache.WriteChunkCache = b
		}
		if n, ok := intVal(c, "ttl_seconds"); ok {
			prefs.Cache.TTLSeconds = n
		}
	}

	if sn, ok := m["snippet"].(map[string]any); ok {
		if n, ok := intVal(sn, "max_chars"); ok {
			prefs.Snippet.MaxChars = n
		}
		if b, ok := sn["prefer_chunk_snippet"].(bool); ok {
			prefs.Snippet.PreferChunkSnippet = b
		}
	}
}

func stringVal(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// intVal accepts float64 (the shape encoding/json produces for bare
// numbers) or int, since retrieval_prefs may arrive pre-decoded from JSON
// or constructed directly in Go.
func intVal(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func floatVal(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func (r StepRunner) runToolCall(ctx context.Context, step protocol.PlanStep, state *protocol.StepState) (protocol.StepStatus, error) {
	result, err := r.ToolRunner.Call(ctx, step.Params)
	if err != nil {
		return "", err
	}
	state.ToolResults = append(state.ToolResults, result)
	if result.Success {
		return protocol.StatusCompleted, nil
	}
	return protocol.StatusFailed, nil
}

func (r StepRunner) runAgentRun(ctx context.Context, step protocol.PlanStep, state *protocol.StepState) (protocol.StepStatus, error) {
	result, err := r.AgentRunner.Run(ctx, step.Params)
	if err != nil {
		return "", err
	}
	state.AgentResults = append(state.AgentResults, result)
	if result.Success {
		return protocol.StatusCompleted, nil
	}
	return protocol.StatusFailed, nil
}

func (r StepRunner) runValidate(ctx context.Context, step protocol.PlanStep) (protocol.StepStatus, error) {
	result, err := r.Validator.Validate(ctx, step.Params)
	if err != nil {
		return "", err
	}
	if result.Success {
		return protocol.StatusCompleted, nil
	}
	return protocol.StatusFailed, nil
}

func (r StepRunner) runSynthesize(ctx context.Context, reqCtx *protocol.RequestContext, input protocol.UserInput, state *protocol.StepState, emit emitFunc) (protocol.StepStatus, error) {
	stream, err := r.Runtime.StreamAnswer(ctx, input, state.Bundle, state.ToolResults)
	if err != nil {
		return "", err
	}
	var tokens []string
	for {
		if err := reqCtx.CancelledErr(ctx); err != nil {
			return "", err
		}
		token, ok, err := stream.Next(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if err := reqCtx.CancelledErr(ctx); err != nil {
			return "", err
		}
		tokens = append(tokens, token)
		if err := emit(ctx, protocol.EventToken, map[string]any{"token": token}); err != nil {
			return "", err
		}
	}
	if len(tokens) > 0 {
		message := ""
		for _, t := range tokens {
			message += t
		}
		if err := emit(ctx, protocol.EventMessage, map[string]any{"message": message}); err != nil {
			return "", err
		}
	}
	return protocol.StatusCompleted, nil
}
