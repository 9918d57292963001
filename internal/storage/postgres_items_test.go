package storage

import (
	"testing"

	"manifold/internal/rag/protocol"
)

func TestBuildTsqueryFunc_Modes(t *testing.T) {
	cases := []struct {
		mode    protocol.FtsMode
		allow   bool
		wantFn  string
		wantErr bool
	}{
		{protocol.FtsWeb, false, "websearch_to_tsquery", false},
		{"", false, "websearch_to_tsquery", false},
		{protocol.FtsPlain, false, "plainto_tsquery", false},
		{protocol.FtsPhrase, false, "phraseto_tsquery", false},
		{protocol.FtsStrict, false, "", true},
		{protocol.FtsStrict, true, "to_tsquery", false},
	}
	for _, c := range cases {
		prefs := protocol.RetrievalPrefs{Fts: protocol.FtsPrefs{Mode: c.mode, AllowStrict: c.allow}}
		fn, err := buildTsqueryFunc(prefs)
		if c.wantErr {
			if err == nil {
				t.Fatalf("mode=%s allow=%v: expected error", c.mode, c.allow)
			}
			var iae *protocol.InvalidArgumentError
			if !asInvalidArgument(err, &iae) {
				t.Fatalf("mode=%s: expected InvalidArgumentError, got %T", c.mode, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("mode=%s: unexpected error: %v", c.mode, err)
		}
		if fn != c.wantFn {
			t.Fatalf("mode=%s: want fn %s, got %s", c.mode, c.wantFn, fn)
		}
	}
}

func asInvalidArgument(err error, target **protocol.InvalidArgumentError) bool {
	if e, ok := err.(*protocol.InvalidArgumentError); ok {
		*target = e
		return true
	}
	return false
}

func TestRankFuncName(t *testing.T) {
	if got := rankFuncName(protocol.RetrievalPrefs{Fts: protocol.FtsPrefs{RankFunc: protocol.Rank}}); got != "ts_rank" {
		t.Fatalf("want ts_rank, got %s", got)
	}
	if got := rankFuncName(protocol.RetrievalPrefs{Fts: protocol.FtsPrefs{RankFunc: protocol.RankCD}}); got != "ts_rank_cd" {
		t.Fatalf("want ts_rank_cd, got %s", got)
	}
}

func TestIsKnownItemAttr(t *testing.T) {
	for _, k := range []string{"kind", "source", "source_ref", "owner_user_id"} {
		if !isKnownItemAttr(k) {
			t.Fatalf("expected %s to be a known attribute", k)
		}
	}
	if isKnownItemAttr("content_text; DROP TABLE kb_items;") {
		t.Fatalf("unknown attribute must not be treated as known")
	}
}

func TestDeriveChunkCacheRowID_Stable(t *testing.T) {
	a := deriveChunkCacheRowID("item1", "hash1", "simple_char@v1", "model1", 3)
	b := deriveChunkCacheRowID("item1", "hash1", "simple_char@v1", "model1", 3)
	if a != b {
		t.Fatalf("expected stable derived id, got %q vs %q", a, b)
	}
	c := deriveChunkCacheRowID("item1", "hash1", "simple_char@v1", "model1", 4)
	if a == c {
		t.Fatalf("expected different chunk index to produce different id")
	}
}
