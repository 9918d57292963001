// Package retrieve implements the hybrid scorer and hybrid retriever: the
// two-lane fuse and the fetch->fuse->hydrate->late-chunk->cache pipeline
// that backs the orchestrator's retrieve step.
package retrieve

import (
	"math"
	"sort"

	"manifold/internal/rag/protocol"
)

const defaultRRFK = 60

// laneEntry is one (id, raw score) pair from a single lane, in the
// caller-supplied order (already descending by raw score).
type laneEntry struct {
	ID    string
	Score float64
}

func rank(entries []laneEntry) map[string]int {
	r := make(map[string]int, len(entries))
	for i, e := range entries {
		r[e.ID] = i + 1 // 1-based
	}
	return r
}

func scores(entries []laneEntry) map[string]float64 {
	s := make(map[string]float64, len(entries))
	for _, e := range entries {
		s[e.ID] = e.Score
	}
	return s
}

// Fused is the scorer's output row for one candidate id.
type Fused struct {
	ID        string
	Score     float64
	ScoreText *float64
	ScoreVec  *float64
	RankText  *int
	RankVec   *int
}

// HybridScorer fuses a lexical-lane and a vector-lane ranking into one
// ordering, per RetrievalPrefs.Scoring.
type HybridScorer struct{}

// Fuse fuses text and vec (each already sorted descending by raw score)
// and returns the top prefs.TopKItems rows sorted by descending fused
// score, stable, tie-broken by insertion order.
func (HybridScorer) Fuse(text, vec []laneEntry, prefs protocol.RetrievalPrefs) []Fused {
	switch prefs.Scoring.Blend {
	case protocol.BlendLinear:
		return fuseLinear(text, vec, prefs)
	default:
		return fuseRRF(text, vec, prefs)
	}
}

// union returns every id across text and vec, text-then-vec insertion
// order, each appearing once.
func union(text, vec []laneEntry) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range text {
		if _, ok := seen[e.ID]; !ok {
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	for _, e := range vec {
		if _, ok := seen[e.ID]; !ok {
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func fuseRRF(text, vec []laneEntry, prefs protocol.RetrievalPrefs) []Fused {
	k := prefs.Scoring.RRFK
	if k <= 0 {
		k = defaultRRFK
	}
	textRank := rank(text)
	vecRank := rank(vec)
	textScore := scores(text)
	vecScore := scores(vec)

	ids := union(text, vec)
	out := make([]Fused, 0, len(ids))
	for _, id := range ids {
		var f Fused
		f.ID = id
		if r, ok := textRank[id]; ok {
			rr := r
			f.RankText = &rr
			s := textScore[id]
			f.ScoreText = &s
			f.Score += 1.0 / float64(k+r)
		}
		if r, ok := vecRank[id]; ok {
			rr := r
			f.RankVec = &rr
			s := vecScore[id]
			f.ScoreVec = &s
			f.Score += 1.0 / float64(k+r)
		}
		out = append(out, f)
	}
	return topK(out, prefs.TopKItems)
}

func normalize(entries []laneEntry, mode protocol.Normalize) map[string]float64 {
	out := make(map[string]float64, len(entries))
	if len(entries) == 0 {
		return out
	}
	switch mode {
	case protocol.NormalizeSigmoid:
		for _, e := range entries {
			out[e.ID] = 1.0 / (1.0 + math.Exp(-e.Score))
		}
	case protocol.NormalizeMinMax:
		min, max := entries[0].Score, entries[0].Score
		for _, e := range entries {
			if e.Score < min {
				min = e.Score
			}
			if e.Score > max {
				max = e.Score
			}
		}
		for _, e := range entries {
			if max == min {
				out[e.ID] = 1.0
				continue
			}
			out[e.ID] = (e.Score - min) / (max - min)
		}
	default: // none: identity
		for _, e := range entries {
			out[e.ID] = e.Score
		}
	}
	return out
}

func fuseLinear(text, vec []laneEntry, prefs protocol.RetrievalPrefs) []Fused {
	textRank := rank(text)
	vecRank := rank(vec)
	nText := normalize(text, prefs.Scoring.Normalize)
	nVec := normalize(vec, prefs.Scoring.Normalize)
	textScore := scores(text)
	vecScore := scores(vec)

	ids := union(text, vec)
	out := make([]Fused, 0, len(ids))
	for _, id := range ids {
		var f Fused
		f.ID = id
		if r, ok := textRank[id]; ok {
			rr := r
			f.RankText = &rr
			s := textScore[id]
			f.ScoreText = &s
			f.Score += prefs.Scoring.WText * nText[id]
		}
		if r, ok := vecRank[id]; ok {
			rr := r
			f.RankVec = &rr
			s := vecScore[id]
			f.ScoreVec = &s
			f.Score += prefs.Scoring.WVec * nVec[id]
		}
		out = append(out, f)
	}
	return topK(out, prefs.TopKItems)
}

func topK(fused []Fused, k int) []Fused {
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused
}
