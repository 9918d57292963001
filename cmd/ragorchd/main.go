// Command ragorchd serves the streaming RAG orchestrator over a
// WebSocket duplex transport.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"manifold/internal/config"
	"manifold/internal/rag/chunker"
	"manifold/internal/rag/collab"
	"manifold/internal/rag/embedder"
	"manifold/internal/rag/obs"
	"manifold/internal/rag/orchestrator"
	"manifold/internal/rag/retrieve"
	"manifold/internal/rag/router"
	"manifold/internal/rag/runtime"
	"manifold/internal/storage"
	"manifold/internal/transport"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ragorchd")
	}
}

func run() error {
	settings := config.LoadRagOrchSettings()
	ctx := context.Background()

	if settings.PostgresDSN == "" {
		return fmt.Errorf("RAGORCH_POSTGRES_DSN is required")
	}

	pool, err := newPgPool(ctx, settings.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}

	var vecSearcher storage.VectorSearcher
	if settings.QdrantDSN != "" {
		qdrant, err := storage.NewQdrantVectorSearcher(settings.QdrantDSN, settings.QdrantCollection, settings.QdrantDimension, settings.QdrantDistance)
		if err != nil {
			return fmt.Errorf("connect qdrant: %w", err)
		}
		defer qdrant.Close()
		vecSearcher = qdrant
	}

	itemRepo := storage.NewPostgresItemRepository(pool, settings.PostgresSchema, vecSearcher)
	chunkCache := storage.NewPostgresChunkCacheRepository(pool, settings.PostgresSchema)

	var emb embedder.Embedder
	if settings.EmbedderBackend == "client" {
		emb = embedder.NewClient(config.EmbeddingConfig{Model: settings.EmbedderModel}, settings.EmbedderDim)
	} else {
		emb = embedder.NewDeterministic(settings.EmbedderDim, true, 0)
	}

	registry := chunker.NewRegistry()
	retriever := retrieve.NewHybridRetriever(itemRepo, chunkCache, registry, emb)
	metrics := obs.NewOtelMetrics(settings.OtelMeterName)

	o := orchestrator.Orchestrator{
		Router: router.DecisionRouter{},
		StepRunner: orchestrator.StepRunner{
			Retriever:   retriever,
			Runtime:     runtime.StubRuntime{},
			ToolRunner:  collab.StubToolRunner{},
			AgentRunner: collab.StubAgentRunner{},
			Validator:   collab.StubValidator{},
			Metrics:     metrics,
		},
		Metrics: metrics,
	}

	server := transport.NewServer(o)
	mux := http.NewServeMux()
	mux.Handle("/ws", server)

	httpServer := &http.Server{Addr: settings.ListenAddr, Handler: mux}

	go func() {
		log.Info().Str("addr", settings.ListenAddr).Msg("ragorchd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ragorchd server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
