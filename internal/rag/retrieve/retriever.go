package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"manifold/internal/rag/chunker"
	"manifold/internal/rag/embedder"
	"manifold/internal/rag/protocol"
	"manifold/internal/storage"
)

// Retriever is the orchestrator's sole retrieval collaborator.
type Retriever interface {
	Search(ctx context.Context, reqCtx *protocol.RequestContext, prefs protocol.RetrievalPrefs) (protocol.RetrievalBundle, error)
}

// HybridRetriever orchestrates fetch -> fuse -> hydrate -> late-chunk ->
// cache, per the component design. It holds no per-request state; the
// singleflight group deduplicates concurrent late-chunking work for the
// same cache key across requests sharing this instance.
type HybridRetriever struct {
	Items     storage.ItemRepository
	Chunks    storage.ChunkCacheRepository
	Registry  *chunker.Registry
	Embedder  embedder.Embedder
	Scorer    HybridScorer

	sf singleflight.Group
}

// NewHybridRetriever wires a retriever from its collaborators.
func NewHybridRetriever(items storage.ItemRepository, chunks storage.ChunkCacheRepository, registry *chunker.Registry, emb embedder.Embedder) *HybridRetriever {
	return &HybridRetriever{Items: items, Chunks: chunks, Registry: registry, Embedder: emb}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

// Search implements the seven-phase pipeline described in the component
// design. Every loop boundary checks reqCtx for cancellation.
func (r *HybridRetriever) Search(ctx context.Context, reqCtx *protocol.RequestContext, prefs protocol.RetrievalPrefs) (protocol.RetrievalBundle, error) {
	timing := map[string]int64{}
	counts := map[string]int{}

	t0 := time.Now()
	ftsResults, err := r.Items.SearchFTS(ctx, prefs.QueryText, prefs)
	if err != nil {
		return protocol.RetrievalBundle{}, err
	}
	timing["fts_ms"] = ms(time.Since(t0))
	counts["fts"] = len(ftsResults)
	text := toLaneEntries(ftsResults)

	var vec []laneEntry
	var queryVec []float32
	if prefs.Vector.EmbedQuery {
		t0 = time.Now()
		queryVec, err = embedder.EmbedQuery(ctx, r.Embedder, prefs.QueryText)
		if err != nil {
			return protocol.RetrievalBundle{}, err
		}
		vecResults, err := r.Items.SearchVec(ctx, queryVec, prefs)
		if err != nil {
			return protocol.RetrievalBundle{}, err
		}
		timing["vec_ms"] = ms(time.Since(t0))
		counts["vec"] = len(vecResults)
		vec = toLaneEntries(vecResults)
	}

	fused := r.Scorer.Fuse(text, vec, prefs)

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	items, err := r.Items.FetchItemsByIDs(ctx, ids)
	if err != nil {
		return protocol.RetrievalBundle{}, err
	}
	itemByID := make(map[string]protocol.KbItem, len(items))
	for _, it := range items {
		itemByID[it.ID] = it
	}

	candidates := make([]protocol.CandidateItem, 0, len(fused))
	for _, f := range fused {
		if err := reqCtx.CancelledErr(ctx); err != nil {
			return protocol.RetrievalBundle{}, err
		}
		item, ok := itemByID[f.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, protocol.CandidateItem{
			ItemID:    item.ID,
			Kind:      item.Kind,
			Source:    item.Source,
			SourceRef: item.SourceRef,
			Title:     item.Title,
			Summary:   item.Summary,
			Metadata:  item.Metadata,
			Score:     f.Score,
			ScoreText: f.ScoreText,
			ScoreVec:  f.ScoreVec,
			RankText:  f.RankText,
			RankVec:   f.RankVec,
		})
	}

	evidence, err := r.lateChunk(ctx, reqCtx, prefs, candidates, itemByID, queryVec)
	if err != nil {
		return protocol.RetrievalBundle{}, err
	}

	counts["candidates"] = len(candidates)
	counts["evidence"] = len(evidence)
	var params map[string]any
	if prefs.Debug {
		params = map[string]any{
			"fts":      prefs.Fts,
			"vector":   prefs.Vector,
			"chunking": prefs.Chunking,
		}
	}

	return protocol.RetrievalBundle{
		Candidates: candidates,
		Evidence:   evidence,
		Stats: protocol.RetrievalStats{
			TimingMs: timing,
			Counts:   counts,
			Params:   params,
		},
	}, nil
}

func toLaneEntries(ranked []protocol.RankedID) []laneEntry {
	out := make([]laneEntry, len(ranked))
	for i, r := range ranked {
		out[i] = laneEntry{ID: r.ItemID, Score: r.Score}
	}
	return out
}

func cacheKey(itemID, contentHash, chunkerID, embedModelID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", itemID, contentHash, chunkerID, embedModelID)
}

func (r *HybridRetriever) lateChunk(ctx context.Context, reqCtx *protocol.RequestContext, prefs protocol.RetrievalPrefs, candidates []protocol.CandidateItem, itemByID map[string]protocol.KbItem, queryVec []float32) ([]protocol.EvidenceChunk, error) {
	if len(candidates) == 0 {
		return []protocol.EvidenceChunk{}, nil
	}
	chunkerID := prefs.Chunking.ChunkerID
	ch, err := r.Registry.Resolve(chunkerID)
	if err != nil {
		return nil, err
	}
	modelID := embedder.ModelID(r.Embedder)

	var evidence []protocol.EvidenceChunk
	for _, cand := range candidates {
		if err := reqCtx.CancelledErr(ctx); err != nil {
			return nil, err
		}
		item, ok := itemByID[cand.ItemID]
		if !ok || item.ContentText == "" {
			continue
		}

		if prefs.Cache.UseChunkCache {
			cached, err := r.Chunks.GetCachedChunks(ctx, cand.ItemID, item.ContentHash, chunkerID, modelID)
			if err != nil {
				return nil, err
			}
			if len(cached) > 0 {
				for _, c := range cached {
					evidence = append(evidence, chunkRecordToEvidence(c))
				}
				continue
			}
		}

		key := cacheKey(cand.ItemID, item.ContentHash, chunkerID, modelID)
		perItemAny, err, _ := r.sf.Do(key, func() (any, error) {
			return r.chunkAndScore(ctx, ch, item, cand.ItemID, queryVec, prefs)
		})
		if err != nil {
			return nil, err
		}
		perItem := perItemAny.([]protocol.EvidenceChunk)

		if prefs.Cache.WriteChunkCache && len(perItem) > 0 {
			records := make([]protocol.ChunkRecord, len(perItem))
			for i, ev := range perItem {
				idx := i
				records[i] = protocol.ChunkRecord{
					ItemID:       cand.ItemID,
					ContentHash:  item.ContentHash,
					ChunkerID:    chunkerID,
					EmbedModelID: modelID,
					ChunkIndex:   idx,
					Text:         ev.Text,
					StartIdx:     ev.StartIdx,
					EndIdx:       ev.EndIdx,
					TokenCount:   ev.TokenCount,
				}
			}
			if err := r.Chunks.WriteCachedChunks(ctx, cand.ItemID, item.OwnerUserID, item.ContentHash, chunkerID, modelID, records); err != nil {
				return nil, err
			}
		}

		evidence = append(evidence, perItem...)
	}

	sort.SliceStable(evidence, func(i, j int) bool { return evidence[i].Score > evidence[j].Score })
	if prefs.TopKChunks > 0 && len(evidence) > prefs.TopKChunks {
		evidence = evidence[:prefs.TopKChunks]
	}
	return evidence, nil
}

func (r *HybridRetriever) chunkAndScore(ctx context.Context, ch chunker.Chunker, item protocol.KbItem, itemID string, queryVec []float32, prefs protocol.RetrievalPrefs) ([]protocol.EvidenceChunk, error) {
	chunks, err := ch.Chunk(item.ContentText, chunker.Options{
		MaxChunkChars:  prefs.Chunking.MaxChunkTokens * 4,
		MaxChunkTokens: prefs.Chunking.MaxChunkTokens,
		OverlapTokens:  prefs.Chunking.OverlapTokens,
	})
	if err != nil {
		return nil, err
	}

	var chunkVecs [][]float32
	if len(queryVec) > 0 && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		chunkVecs, err = r.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
	}

	perItem := make([]protocol.EvidenceChunk, 0, len(chunks))
	for i, c := range chunks {
		var score float64
		if len(chunkVecs) > i {
			score = cosineSimilarity(queryVec, chunkVecs[i])
		}
		scoreVec := score
		perItem = append(perItem, protocol.EvidenceChunk{
			ItemID:     itemID,
			ChunkID:    fmt.Sprintf("%s:%d", itemID, c.Index),
			Text:       c.Text,
			StartIdx:   c.StartIdx,
			EndIdx:     c.EndIdx,
			TokenCount: c.TokenCount,
			Score:      score,
			ScoreVec:   &scoreVec,
		})
	}
	sort.SliceStable(perItem, func(i, j int) bool { return perItem[i].Score > perItem[j].Score })
	if prefs.PerItemChunkCap > 0 && len(perItem) > prefs.PerItemChunkCap {
		perItem = perItem[:prefs.PerItemChunkCap]
	}
	return perItem, nil
}

func chunkRecordToEvidence(c protocol.ChunkRecord) protocol.EvidenceChunk {
	return protocol.EvidenceChunk{
		ItemID:     c.ItemID,
		ChunkID:    fmt.Sprintf("%s:%d", c.ItemID, c.ChunkIndex),
		Text:       c.Text,
		StartIdx:   c.StartIdx,
		EndIdx:     c.EndIdx,
		TokenCount: c.TokenCount,
		Score:      0.0,
	}
}
