package storage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original string item id in the point payload,
// since Qdrant only accepts UUID/integer point ids.
const payloadIDField = "_original_id"

// QdrantVectorSearcher implements VectorSearcher against a Qdrant
// collection, chosen as the vector-lane backend because it's the vector
// store already wired elsewhere in this codebase's retrieval stack.
type QdrantVectorSearcher struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantVectorSearcher parses dsn (host[:port], scheme https enables
// TLS, an api_key query parameter is honored), bootstraps the collection
// if absent, and returns a VectorSearcher. distance is one of
// cosine|l2|ip (protocol.Distance).
func NewQdrantVectorSearcher(dsn, collection string, dimension int, distance string) (*QdrantVectorSearcher, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	q := &QdrantVectorSearcher{client: client, collection: collection, dimension: dimension}
	if err := q.ensureCollection(context.Background(), distance); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return q, nil
}

func (q *QdrantVectorSearcher) ensureCollection(ctx context.Context, distance string) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("dimensions must be > 0")
	}
	var dist qdrant.Distance
	switch strings.ToLower(strings.TrimSpace(distance)) {
	case "l2", "euclid", "euclidean":
		dist = qdrant.Distance_Euclid
	case "ip", "dot":
		dist = qdrant.Distance_Dot
	default:
		dist = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: dist,
		}),
	})
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Upsert stores one item's embedding, recording the original id in the
// payload when it had to be remapped to a synthetic UUID.
func (q *QdrantVectorSearcher) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	uuidStr := pointIDFor(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if uuidStr != id {
		payload[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *QdrantVectorSearcher) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorHit, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, VectorHit{ItemID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

func (q *QdrantVectorSearcher) Close() error { return q.client.Close() }
