package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/rag/protocol"
)

// pgItemRepository implements ItemRepository against the kb_items table.
// The lexical lane is real Postgres full-text search; the vector lane is
// delegated to an optional VectorSearcher (nil means no vector store is
// configured, which must still produce well-formed empty results).
type pgItemRepository struct {
	pool   *pgxpool.Pool
	schema string
	vec    VectorSearcher
}

// VectorSearcher is the narrow capability the item repository needs from
// a vector store to serve SearchVec.
type VectorSearcher interface {
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorHit, error)
}

// VectorHit is one similarity search result.
type VectorHit struct {
	ItemID string
	Score  float64
}

// NewPostgresItemRepository returns an ItemRepository backed by pool,
// using table "<schema>.kb_items". vec may be nil.
func NewPostgresItemRepository(pool *pgxpool.Pool, schema string, vec VectorSearcher) ItemRepository {
	if schema == "" {
		schema = "kb"
	}
	return &pgItemRepository{pool: pool, schema: schema, vec: vec}
}

func (p *pgItemRepository) table(name string) string {
	return fmt.Sprintf("%s.%s", p.schema, name)
}

// buildTsqueryFunc maps an FtsMode to the Postgres predicate-builder
// function name, rejecting strict mode unless explicitly allowed.
func buildTsqueryFunc(prefs protocol.RetrievalPrefs) (string, error) {
	switch prefs.Fts.Mode {
	case protocol.FtsPlain:
		return "plainto_tsquery", nil
	case protocol.FtsPhrase:
		return "phraseto_tsquery", nil
	case protocol.FtsStrict:
		if !prefs.Fts.AllowStrict {
			return "", protocol.NewInvalidArgument("fts.mode=strict requires allow_strict=true")
		}
		return "to_tsquery", nil
	case protocol.FtsWeb, "":
		return "websearch_to_tsquery", nil
	default:
		return "", protocol.NewInvalidArgument("fts: unknown mode %q", prefs.Fts.Mode)
	}
}

func rankFuncName(prefs protocol.RetrievalPrefs) string {
	if prefs.Fts.RankFunc == protocol.Rank {
		return "ts_rank"
	}
	return "ts_rank_cd"
}

func (p *pgItemRepository) SearchFTS(ctx context.Context, queryText string, prefs protocol.RetrievalPrefs) ([]protocol.RankedID, error) {
	q := strings.TrimSpace(queryText)
	if q == "" {
		return []protocol.RankedID{}, nil
	}
	tsFn, err := buildTsqueryFunc(prefs)
	if err != nil {
		return nil, err
	}
	rankFn := rankFuncName(prefs)
	config := prefs.Fts.Config
	if config == "" {
		config = "simple"
	}
	limit := prefs.TopKItems
	if limit <= 0 {
		limit = 20
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id, %s(tsv, %s(to_regconfig($2), $1)) AS rank
FROM %s
WHERE tsv @@ %s(to_regconfig($2), $1)`, rankFn, tsFn, p.table("kb_items"), tsFn)

	args := []any{q, config}
	argN := 3
	for key, val := range prefs.Filter {
		if !isKnownItemAttr(key) {
			continue
		}
		fmt.Fprintf(&b, " AND %s = $%d", key, argN)
		args = append(args, val)
		argN++
	}
	b.WriteString(" ORDER BY rank DESC LIMIT $")
	fmt.Fprintf(&b, "%d", argN)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]protocol.RankedID, 0, limit)
	for rows.Next() {
		var r protocol.RankedID
		if err := rows.Scan(&r.ItemID, &r.Score); err != nil {
			return nil, err
		}
		if prefs.Fts.MinRank != nil && r.Score < *prefs.Fts.MinRank {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isKnownItemAttr restricts equality filters to columns kb_items actually
// carries, so arbitrary filter keys don't turn into SQL injection surface
// or reference non-existent columns.
func isKnownItemAttr(key string) bool {
	switch key {
	case "kind", "source", "source_ref", "owner_user_id":
		return true
	default:
		return false
	}
}

func (p *pgItemRepository) SearchVec(ctx context.Context, queryVec []float32, prefs protocol.RetrievalPrefs) ([]protocol.RankedID, error) {
	if p.vec == nil || len(queryVec) == 0 {
		return []protocol.RankedID{}, nil
	}
	limit := prefs.TopKItems
	if limit <= 0 {
		limit = 20
	}
	hits, err := p.vec.SimilaritySearch(ctx, queryVec, limit, nil)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.RankedID, 0, len(hits))
	for _, h := range hits {
		if prefs.Vector.MinScore != nil && h.Score < *prefs.Vector.MinScore {
			continue
		}
		out = append(out, protocol.RankedID{ItemID: h.ItemID, Score: h.Score})
	}
	return out, nil
}

func (p *pgItemRepository) FetchItemsByIDs(ctx context.Context, ids []string) ([]protocol.KbItem, error) {
	if len(ids) == 0 {
		return []protocol.KbItem{}, nil
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
SELECT id, owner_user_id, kind, source, source_ref, title, summary,
       content_text, content_hash, metadata, created_at, updated_at
FROM %s WHERE id = ANY($1)`, p.table("kb_items")), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]protocol.KbItem, 0, len(ids))
	for rows.Next() {
		var it protocol.KbItem
		var title, summary, sourceRef *string
		if err := rows.Scan(&it.ID, &it.OwnerUserID, &it.Kind, &it.Source, &sourceRef,
			&title, &summary, &it.ContentText, &it.ContentHash, &it.Metadata,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		if title != nil {
			it.Title = *title
		}
		if summary != nil {
			it.Summary = *summary
		}
		if sourceRef != nil {
			it.SourceRef = *sourceRef
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
