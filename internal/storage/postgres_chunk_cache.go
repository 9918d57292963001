package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/rag/protocol"
)

type pgChunkCacheRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresChunkCacheRepository returns a ChunkCacheRepository backed by
// "<schema>.kb_chunk_cache".
func NewPostgresChunkCacheRepository(pool *pgxpool.Pool, schema string) ChunkCacheRepository {
	if schema == "" {
		schema = "kb"
	}
	return &pgChunkCacheRepository{pool: pool, schema: schema}
}

func (c *pgChunkCacheRepository) table() string {
	return fmt.Sprintf("%s.kb_chunk_cache", c.schema)
}

// GetCachedChunks returns every row matching the key prefix (all chunk
// indices for that item+hash+chunker+model). Rows carry no score column;
// callers treat a cache-hit chunk's score as 0.0.
func (c *pgChunkCacheRepository) GetCachedChunks(ctx context.Context, itemID, contentHash, chunkerID, embedModelID string) ([]protocol.ChunkRecord, error) {
	rows, err := c.pool.Query(ctx, fmt.Sprintf(`
SELECT id, item_id, content_hash, chunker_id, embed_model_id, chunk_index,
       chunk_text, start_idx, end_idx, token_count
FROM %s
WHERE item_id = $1 AND content_hash = $2 AND chunker_id = $3
  AND embed_model_id IS NOT DISTINCT FROM $4
ORDER BY chunk_index`, c.table()), itemID, contentHash, chunkerID, nullableString(embedModelID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]protocol.ChunkRecord, 0)
	for rows.Next() {
		var r protocol.ChunkRecord
		var embedModel *string
		if err := rows.Scan(&r.ID, &r.ItemID, &r.ContentHash, &r.ChunkerID, &embedModel,
			&r.ChunkIndex, &r.Text, &r.StartIdx, &r.EndIdx, &r.TokenCount); err != nil {
			return nil, err
		}
		if embedModel != nil {
			r.EmbedModelID = *embedModel
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteCachedChunks writes all rows in one transaction; conflicts on the
// unique composite key do nothing, so a concurrent writer that raced us to
// the same key is the one whose row survives.
func (c *pgChunkCacheRepository) WriteCachedChunks(ctx context.Context, itemID, ownerUserID, contentHash, chunkerID, embedModelID string, chunks []protocol.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
INSERT INTO %s (id, item_id, owner_user_id, content_hash, chunker_id,
                 embed_model_id, chunk_index, chunk_text, start_idx, end_idx, token_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (item_id, content_hash, chunker_id, embed_model_id, chunk_index) DO NOTHING`, c.table())

	batch := &pgx.Batch{}
	for _, ch := range chunks {
		id := ch.ID
		if id == "" {
			id = deriveChunkCacheRowID(itemID, contentHash, chunkerID, embedModelID, ch.ChunkIndex)
		}
		batch.Queue(stmt, id, itemID, ownerUserID, contentHash, chunkerID,
			nullableString(embedModelID), ch.ChunkIndex, ch.Text, ch.StartIdx, ch.EndIdx, ch.TokenCount)
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deriveChunkCacheRowID(itemID, contentHash, chunkerID, embedModelID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", itemID, contentHash, chunkerID, embedModelID, chunkIndex)
}
