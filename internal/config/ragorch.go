package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// RagOrchSettings is the streaming RAG orchestrator's runtime
// configuration: storage DSNs/namespace, the embedder backend, and the
// observability knobs cmd/ragorchd wires at startup.
type RagOrchSettings struct {
	ListenAddr string

	PostgresDSN    string
	PostgresSchema string

	QdrantDSN        string
	QdrantCollection string
	QdrantDistance   string
	QdrantDimension  int

	EmbedderBackend string // "deterministic" or "client"
	EmbedderModel   string
	EmbedderDim     int

	OtelMeterName string
	LogLevel      string
}

// LoadRagOrchSettings reads RAGORCH_* environment variables (optionally
// from a .env file), falling back to a hardcoded default per field when
// unset.
func LoadRagOrchSettings() RagOrchSettings {
	_ = godotenv.Overload()

	s := RagOrchSettings{
		ListenAddr:       firstNonEmpty(envRagOrch("LISTEN_ADDR"), ":8089"),
		PostgresDSN:      envRagOrch("POSTGRES_DSN"),
		PostgresSchema:   firstNonEmpty(envRagOrch("POSTGRES_SCHEMA"), "kb"),
		QdrantDSN:        envRagOrch("QDRANT_DSN"),
		QdrantCollection: firstNonEmpty(envRagOrch("QDRANT_COLLECTION"), "kb_items"),
		QdrantDistance:   firstNonEmpty(envRagOrch("QDRANT_DISTANCE"), "cosine"),
		QdrantDimension:  ragOrchIntFromEnv("QDRANT_DIMENSION", 0),
		EmbedderBackend:  firstNonEmpty(envRagOrch("EMBEDDER_BACKEND"), "deterministic"),
		EmbedderModel:    firstNonEmpty(envRagOrch("EMBEDDER_MODEL"), "deterministic-v1"),
		EmbedderDim:      ragOrchIntFromEnv("EMBEDDER_DIM", 64),
		OtelMeterName:    firstNonEmpty(envRagOrch("OTEL_METER_NAME"), "ragorchd"),
		LogLevel:         firstNonEmpty(envRagOrch("LOG_LEVEL"), "info"),
	}
	return s
}

// firstNonEmpty returns the first non-empty string in vals, or "" if all
// are empty.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envRagOrch(suffix string) string {
	return strings.TrimSpace(os.Getenv("RAGORCH_" + suffix))
}

func ragOrchIntFromEnv(suffix string, def int) int {
	if v := envRagOrch(suffix); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
