// Package storage implements the two narrow repository contracts the core
// depends on: item search (lexical + vector) and chunk cache read/write.
// Everything else — identity, schema migration, connection lifecycle — is
// a thin wrapper the core never reaches into directly.
package storage

import (
	"context"

	"manifold/internal/rag/protocol"
)

// ItemRepository is the lexical/vector candidate search and item-fetch
// contract the hybrid retriever consumes.
type ItemRepository interface {
	// SearchFTS builds a text-search predicate from prefs.Fts and ranks
	// rows by the configured rank function, descending, limited to
	// prefs.TopKItems.
	SearchFTS(ctx context.Context, queryText string, prefs protocol.RetrievalPrefs) ([]protocol.RankedID, error)
	// SearchVec ranks rows by similarity under prefs.Vector.Distance,
	// descending, limited to prefs.TopKItems. A nil/unconfigured vector
	// store returns (nil, nil) rather than an error.
	SearchVec(ctx context.Context, queryVec []float32, prefs protocol.RetrievalPrefs) ([]protocol.RankedID, error)
	// FetchItemsByIDs is unordered; callers rejoin by id.
	FetchItemsByIDs(ctx context.Context, ids []string) ([]protocol.KbItem, error)
}

// ChunkCacheRepository is the derived-chunk cache contract.
type ChunkCacheRepository interface {
	GetCachedChunks(ctx context.Context, itemID, contentHash, chunkerID, embedModelID string) ([]protocol.ChunkRecord, error)
	WriteCachedChunks(ctx context.Context, itemID, ownerUserID, contentHash, chunkerID, embedModelID string, chunks []protocol.ChunkRecord) error
}
