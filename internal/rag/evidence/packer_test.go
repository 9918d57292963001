package evidence

import (
	"reflect"
	"testing"

	"manifold/internal/rag/protocol"
)

func TestPack_Idempotence(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "a", Score: 0.9, Summary: "summary a"},
		{ItemID: "b", Score: 0.5, Summary: "summary b"},
	}
	chunks := []protocol.EvidenceChunk{
		{ItemID: "a", Text: "chunk text a", Score: 0.8},
	}
	opt := Options{MaxSources: 10, OrderBy: OrderByScore, PreferChunkSnippets: true, MaxSnippetChars: 100}

	first := Pack(candidates, chunks, opt)
	second := Pack(candidates, chunks, opt)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected structurally equal repeated packs, got %+v vs %+v", first, second)
	}
}

func TestPack_SnippetPreferenceChunkOverDoc(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "a", Score: 0.9, Summary: "doc summary"},
	}
	chunks := []protocol.EvidenceChunk{
		{ItemID: "a", Text: "best chunk", Score: 0.9},
		{ItemID: "a", Text: "worse chunk", Score: 0.1},
	}
	out := Pack(candidates, chunks, Options{PreferChunkSnippets: true, MaxSnippetChars: 100})
	if out[0].SnippetFrom != protocol.SnippetFromChunk {
		t.Fatalf("expected snippet_from=chunk, got %s", out[0].SnippetFrom)
	}
	if out[0].Snippet != "best chunk" {
		t.Fatalf("expected highest-scored chunk snippet, got %q", out[0].Snippet)
	}
}

func TestPack_SnippetFallsBackToDocThenUnknown(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "a", Score: 0.9, Summary: "doc summary"},
		{ItemID: "b", Score: 0.5},
	}
	out := Pack(candidates, nil, Options{PreferChunkSnippets: true, MaxSnippetChars: 100})
	if out[0].SnippetFrom != protocol.SnippetFromDoc || out[0].Snippet != "doc summary" {
		t.Fatalf("expected doc fallback, got %+v", out[0])
	}
	if out[1].SnippetFrom != protocol.SnippetFromUnknown || out[1].Snippet != "" {
		t.Fatalf("expected unknown fallback, got %+v", out[1])
	}
}

func TestPack_MetadataFilterIncludeThenExclude(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "a", Score: 0.9, Metadata: map[string]any{"k": 1, "l": 2, "m": 3}},
	}
	out := Pack(candidates, nil, Options{IncludeMetadataKeys: []string{"k", "l"}, ExcludeMetadataKeys: []string{"l"}})
	want := map[string]any{"k": 1}
	if !reflect.DeepEqual(out[0].Metadata, want) {
		t.Fatalf("expected metadata %v, got %v", want, out[0].Metadata)
	}
}

func TestPack_OrderByRankAbsentRanksSortLast(t *testing.T) {
	r1 := 1
	candidates := []protocol.CandidateItem{
		{ItemID: "noRank", Score: 0.99},
		{ItemID: "ranked", Score: 0.1, RankText: &r1},
	}
	out := Pack(candidates, nil, Options{OrderBy: OrderByRank})
	if out[0].SourceID != "ranked" || out[1].SourceID != "noRank" {
		t.Fatalf("expected ranked candidate first, got %+v", out)
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Fatalf("expected output rank to be 1-based output position, got %d, %d", out[0].Rank, out[1].Rank)
	}
}

func TestPack_OrderByInputPreservesOrder(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "z", Score: 0.1},
		{ItemID: "a", Score: 0.99},
	}
	out := Pack(candidates, nil, Options{OrderBy: OrderByInput})
	if out[0].SourceID != "z" || out[1].SourceID != "a" {
		t.Fatalf("expected input order preserved, got %+v", out)
	}
}

func TestPack_MaxSourcesBounds(t *testing.T) {
	candidates := []protocol.CandidateItem{
		{ItemID: "a", Score: 0.9}, {ItemID: "b", Score: 0.8}, {ItemID: "c", Score: 0.7},
	}
	out := Pack(candidates, nil, Options{MaxSources: 2, OrderBy: OrderByScore})
	if len(out) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(out))
	}
}
