package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize:     runes per chunk (default 1000).
// ChunkOverlap:  runes shared between consecutive chunks (default 200).
// BatchSize:     chunks embedded per embedding-service call.
// EmbedTimeout:  upper bound on a single embedding call; a timeout maps
//                to the failed state, never to a hang.
// SweepInterval: how often the scheduler re-scans for pending published
//                documents whose enqueue was lost (e.g. across restarts).
type IngestConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	BatchSize     int
	EmbedTimeout  time.Duration
	SweepInterval time.Duration
}

func (c *IngestConfig) withDefaults() IngestConfig {
	out := IngestConfig{ChunkSize: 1000, ChunkOverlap: 200, BatchSize: 16,
		EmbedTimeout: 30 * time.Second, SweepInterval: 30 * time.Second}
	if c == nil {
		return out
	}
	if c.ChunkSize > 0 {
		out.ChunkSize = c.ChunkSize
	}
	if c.ChunkOverlap >= 0 {
		out.ChunkOverlap = c.ChunkOverlap
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.EmbedTimeout > 0 {
		out.EmbedTimeout = c.EmbedTimeout
	}
	if c.SweepInterval > 0 {
		out.SweepInterval = c.SweepInterval
	}
	return out
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// store:     persistence for documents and chunks.
// obj:       object storage holding the raw uploaded bytes.
// embedder:  embedding provider (Gemini/OpenAI/etc).
// extractor: media-type dispatching text extraction.
// jobs:      in-memory queue of document refs to process (easy to swap
//            with a broker later).
type DocumentIngestor struct {
	store     core.TenantStore
	obj       core.ObjectClient
	bucket    string
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       IngestConfig
	jobs      chan models.DocumentRef
}
