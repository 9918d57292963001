package embedder

import "context"

// EmbedQuery embeds a single query string, the shape the hybrid retriever's
// vector lane consumes. ModelID returns the identifier the chunk cache key
// and late-chunk embedding step record against.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// ModelID is the embedder's identity for cache-key purposes.
func ModelID(e Embedder) string { return e.Name() }
