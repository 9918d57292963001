package protocol

import "time"

// FtsMode selects the text-search predicate builder.
type FtsMode string

const (
	FtsWeb    FtsMode = "web"
	FtsPlain  FtsMode = "plain"
	FtsPhrase FtsMode = "phrase"
	FtsStrict FtsMode = "strict"
)

// RankFunc selects the Postgres rank function applied to the tsvector.
type RankFunc string

const (
	RankCD RankFunc = "ts_rank_cd"
	Rank   RankFunc = "ts_rank"
)

// Distance selects the vector lane's similarity metric.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceIP     Distance = "ip"
	DistanceL2     Distance = "l2"
)

// Blend selects the hybrid scorer's fusion mode.
type Blend string

const (
	BlendRRF    Blend = "rrf"
	BlendLinear Blend = "linear"
)

// Normalize selects the linear blend's per-lane score normalization.
type Normalize string

const (
	NormalizeSigmoid Normalize = "sigmoid"
	NormalizeNone    Normalize = "none"
	NormalizeMinMax  Normalize = "minmax"
)

// SnippetFrom tags the provenance of a packed snippet.
type SnippetFrom string

const (
	SnippetFromChunk   SnippetFrom = "chunk"
	SnippetFromDoc     SnippetFrom = "doc"
	SnippetFromUnknown SnippetFrom = "unknown"
)

// FtsPrefs configures the lexical lane.
type FtsPrefs struct {
	Mode        FtsMode
	Config      string
	RankFunc    RankFunc
	MinRank     *float64
	AllowStrict bool
}

// VectorPrefs configures the vector lane.
type VectorPrefs struct {
	EmbedQuery bool
	Distance   Distance
	MinScore   *float64
}

// ScoringPrefs configures the hybrid scorer.
type ScoringPrefs struct {
	Blend     Blend
	WText     float64
	WVec      float64
	Normalize Normalize
	RRFK      int
}

// ChunkingPrefs configures late chunking.
type ChunkingPrefs struct {
	Strategy        string
	ChunkerID       string
	IncludeHeaders  bool
	MaxChunkTokens  int
	OverlapTokens   int
}

// CachePrefs configures the chunk cache.
type CachePrefs struct {
	UseChunkCache   bool
	WriteChunkCache bool
	TTLSeconds      int
}

// SnippetPrefs configures snippet generation.
type SnippetPrefs struct {
	MaxChars           int
	PreferChunkSnippet bool
}

// RetrievalPrefs is the full, grouped preference set the hybrid retriever
// consumes for one retrieve step.
type RetrievalPrefs struct {
	QueryText       string
	Filter          map[string]string
	TopKItems       int
	TopKChunks      int
	PerItemChunkCap int
	Fts             FtsPrefs
	Vector          VectorPrefs
	Scoring         ScoringPrefs
	Chunking        ChunkingPrefs
	Cache           CachePrefs
	Snippet         SnippetPrefs
	Debug           bool
}

// DefaultRetrievalPrefs returns the zero-configuration defaults used when
// a retrieve step's params carry no retrieval_prefs at all.
func DefaultRetrievalPrefs(queryText string) RetrievalPrefs {
	return RetrievalPrefs{
		QueryText:       queryText,
		TopKItems:       20,
		TopKChunks:      20,
		PerItemChunkCap: 5,
		Fts: FtsPrefs{
			Mode:     FtsWeb,
			RankFunc: RankCD,
		},
		Vector: VectorPrefs{
			EmbedQuery: true,
			Distance:   DistanceCosine,
		},
		Scoring: ScoringPrefs{
			Blend:     BlendRRF,
			WText:     0.5,
			WVec:      0.5,
			Normalize: NormalizeNone,
			RRFK:      60,
		},
		Chunking: ChunkingPrefs{
			Strategy:       "late",
			ChunkerID:      "default",
			MaxChunkTokens: 200,
			OverlapTokens:  0,
		},
		Cache: CachePrefs{
			UseChunkCache:   true,
			WriteChunkCache: true,
		},
		Snippet: SnippetPrefs{
			MaxChars:           240,
			PreferChunkSnippet: true,
		},
	}
}

// CandidateItem is a whole document/item surfaced by retrieval, with a
// fused score and per-lane diagnostics.
type CandidateItem struct {
	ItemID     string
	Kind       string
	Source     string
	SourceRef  string
	Title      string
	Summary    string
	Metadata   map[string]any
	Score      float64
	ScoreText  *float64
	ScoreVec   *float64
	RankText   *int
	RankVec    *int
	Snippet    string
	SnippetFrom SnippetFrom
}

// EvidenceChunk is a text slice of a candidate, scored against the query.
type EvidenceChunk struct {
	ItemID      string
	ChunkID     string
	Text        string
	StartIdx    *int
	EndIdx      *int
	TokenCount  *int
	Score       float64
	ScoreText   *float64
	ScoreVec    *float64
	HeadingPath string
	Anchors     []string
}

// RetrievalStats carries timing, counts, and (debug-only) raw params.
type RetrievalStats struct {
	TimingMs map[string]int64
	Counts   map[string]int
	Params   map[string]any
}

// RetrievalBundle is the hybrid retriever's output.
type RetrievalBundle struct {
	Candidates []CandidateItem
	Evidence   []EvidenceChunk
	Stats      RetrievalStats
}

// RankedID is one (item_id, score) pair from a repository lane search,
// in descending-score order as produced by the lane.
type RankedID struct {
	ItemID string
	Score  float64
}

// KbItem is the read-only persisted item contract the core depends on.
type KbItem struct {
	ID            string
	OwnerUserID   string
	Kind          string
	Source        string
	SourceRef     string
	Title         string
	Summary       string
	ContentText   string
	ContentHash   string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChunkRecord is one cached derived chunk row, shaped to seed an
// EvidenceChunk directly. Cached rows carry no score column.
type ChunkRecord struct {
	ID           string
	ItemID       string
	ContentHash  string
	ChunkerID    string
	EmbedModelID string
	ChunkIndex   int
	Text         string
	StartIdx     *int
	EndIdx       *int
	TokenCount   *int
}
