// Package evidence implements the deterministic candidate+chunk packer
// that turns a retrieval bundle into the bounded, snippet-bearing source
// list a retrieve step emits as rag.sources.
package evidence

import (
	"math"
	"sort"

	"manifold/internal/rag/protocol"
)

// OrderBy selects the packer's output ordering.
type OrderBy string

const (
	OrderByInput OrderBy = "input"
	OrderByRank  OrderBy = "rank"
	OrderByScore OrderBy = "score"
)

// Options parametrizes one pack call.
type Options struct {
	MaxSources           int
	OrderBy              OrderBy
	PreferChunkSnippets  bool
	MaxSnippetChars      int
	IncludeMetadataKeys  []string
	ExcludeMetadataKeys  []string
}

// SourceItem is one packed, ordered entry in a retrieve step's rag.sources
// payload.
type SourceItem struct {
	SourceID    string
	Kind        string
	Title       string
	URL         string
	Snippet     string
	SnippetFrom protocol.SnippetFrom
	Score       float64
	Rank        int
	Metadata    map[string]any
}

// Pack is pure and deterministic: repeated calls on the same input are
// structurally equal.
func Pack(candidates []protocol.CandidateItem, chunks []protocol.EvidenceChunk, opt Options) []SourceItem {
	ordered := make([]protocol.CandidateItem, len(candidates))
	copy(ordered, candidates)

	switch opt.OrderBy {
	case OrderByRank:
		sort.SliceStable(ordered, func(i, j int) bool {
			ri, rj := bestRank(ordered[i]), bestRank(ordered[j])
			if ri != rj {
				return ri < rj
			}
			return ordered[i].Score > ordered[j].Score
		})
	case OrderByInput:
		// preserve as-is
	default: // score
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Score > ordered[j].Score
		})
	}

	if opt.MaxSources > 0 && len(ordered) > opt.MaxSources {
		ordered = ordered[:opt.MaxSources]
	}

	chunksByItem := make(map[string][]protocol.EvidenceChunk)
	for _, c := range chunks {
		chunksByItem[c.ItemID] = append(chunksByItem[c.ItemID], c)
	}

	out := make([]SourceItem, 0, len(ordered))
	for i, cand := range ordered {
		snippet, from := selectSnippet(cand, chunksByItem[cand.ItemID], opt)
		out = append(out, SourceItem{
			SourceID:    cand.ItemID,
			Kind:        cand.Kind,
			Title:       cand.Title,
			URL:         cand.SourceRef,
			Snippet:     snippet,
			SnippetFrom: from,
			Score:       cand.Score,
			Rank:        i + 1,
			Metadata:    filterMetadata(cand.Metadata, opt.IncludeMetadataKeys, opt.ExcludeMetadataKeys),
		})
	}
	return out
}

func bestRank(c protocol.CandidateItem) float64 {
	best := math.Inf(1)
	if c.RankText != nil {
		best = math.Min(best, float64(*c.RankText))
	}
	if c.RankVec != nil {
		best = math.Min(best, float64(*c.RankVec))
	}
	return best
}

func selectSnippet(cand protocol.CandidateItem, itemChunks []protocol.EvidenceChunk, opt Options) (string, protocol.SnippetFrom) {
	if opt.PreferChunkSnippets && len(itemChunks) > 0 {
		best := itemChunks[0]
		for _, c := range itemChunks[1:] {
			if c.Score > best.Score {
				best = c
			}
		}
		return truncate(best.Text, opt.MaxSnippetChars), protocol.SnippetFromChunk
	}
	if cand.Summary != "" {
		return truncate(cand.Summary, opt.MaxSnippetChars), protocol.SnippetFromDoc
	}
	if cand.Snippet != "" {
		return truncate(cand.Snippet, opt.MaxSnippetChars), protocol.SnippetFromDoc
	}
	return "", protocol.SnippetFromUnknown
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

func filterMetadata(md map[string]any, include, exclude []string) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	if len(include) > 0 {
		for _, k := range include {
			if v, ok := md[k]; ok {
				out[k] = v
			}
		}
	} else {
		for k, v := range md {
			out[k] = v
		}
	}
	for _, k := range exclude {
		delete(out, k)
	}
	return out
}
