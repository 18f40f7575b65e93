package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/Polibase/internal/config"
	"github.com/markdave123-py/Polibase/internal/core"
	db "github.com/markdave123-py/Polibase/internal/core/database"
	"github.com/markdave123-py/Polibase/internal/core/ingestion_engine"
	"github.com/markdave123-py/Polibase/internal/core/llm"
	"github.com/markdave123-py/Polibase/internal/core/llm/llmtest"
	"github.com/markdave123-py/Polibase/internal/core/memstore"
	objectclient "github.com/markdave123-py/Polibase/internal/core/object-client"
	"github.com/markdave123-py/Polibase/internal/core/retrieval"
	"github.com/markdave123-py/Polibase/internal/services"
)

type App struct {
	Store    core.TenantStore
	Ingestor ingestion_engine.Ingestor
	Server   *Server

	workers int
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var (
		store     core.TenantStore
		objClient core.ObjectClient
		embedder  core.EmbeddingProvider
		provider  core.LLMProvider
		err       error
	)
	switch cfg.StoreDriver {
	case "memory":
		// Self-contained mode for local development: no Postgres, no S3,
		// no external embedding calls.
		store = memstore.New(cfg.EmbedDim)
		objClient = objectclient.NewMemoryObjectStore()
		embedder = llmtest.NewFakeEmbedder(cfg.EmbedDim)
		provider = &llmtest.StaticLLM{Answer: "memory mode: answer generation disabled"}
		log.Println("Store driver: memory (development mode)")
	case "postgres":
		store, err = db.NewDatabaseClient(initCtx, cfg)
		if err != nil {
			return nil, err
		}
		log.Println("Database initialized and ready.")

		objClient, err = objectclient.NewS3Client(initCtx, cfg)
		if err != nil {
			return nil, err
		}
		log.Println("Object client initialized and ready.")

		geminiEmbedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
		}
		embedder = geminiEmbedder

		provider, err = llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)

	ingCfg := &ingestion_engine.IngestConfig{
		ChunkSize:     cfg.ChunkSize,
		ChunkOverlap:  cfg.ChunkOverlap,
		BatchSize:     cfg.EmbedBatchSize,
		EmbedTimeout:  cfg.EmbedTimeout,
		SweepInterval: cfg.SweepInterval,
	}
	ingestor := ingestion_engine.NewDocumentIngestor(store, objClient, cfg.BucketName, embedder, extractor, ingCfg)

	docService := services.NewDocumentService(store, objClient, ingestor, cfg.BucketName)
	engine := retrieval.NewEngine(store, embedder, cfg.EmbedTimeout)

	server := NewServer(cfg, store, docService, engine, provider)

	return &App{Store: store, Ingestor: ingestor, Server: server, workers: cfg.IngestWorkers}, nil
}

// Run starts the ingestion workers and the HTTP server, then blocks
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Ingestor.Start(ctx, a.workers)
	go a.Server.Start()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
