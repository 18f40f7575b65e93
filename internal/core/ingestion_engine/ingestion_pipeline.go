package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(store core.TenantStore, obj core.ObjectClient, bucket string,
	emb core.EmbeddingProvider, extractor core.DocumentExtractor, cfg *IngestConfig) *DocumentIngestor {
	return &DocumentIngestor{
		store: store, obj: obj, bucket: bucket, embedder: emb, extractor: extractor,
		cfg:  cfg.withDefaults(),
		jobs: make(chan models.DocumentRef, 64),
	}
}

// Start launches the worker pool plus a sweep loop that re-queues any
// pending published documents the in-memory queue lost track of. The
// claim transition keeps concurrent workers off the same document, so
// double-enqueueing a ref is harmless.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		w := w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					log.Printf("ingestor: worker %d shutting down", w)
					return nil
				case ref := <-i.jobs:
					if err := i.ProcessOne(gctx, ref); err != nil {
						log.Printf("ingestor: document %s: %v", ref.DocumentID, err)
					}
				}
			}
		})
	}
	g.Go(func() error {
		return i.sweep(gctx)
	})
	go func() { _ = g.Wait() }()
}

// Enqueue schedules a document for ingestion. If the queue is full the
// document is picked up by the next sweep instead of blocking the caller.
func (i *DocumentIngestor) Enqueue(ref models.DocumentRef) {
	select {
	case i.jobs <- ref:
	default:
		log.Printf("ingestor: queue full, %s deferred to sweep", ref.DocumentID)
	}
}

func (i *DocumentIngestor) sweep(ctx context.Context) error {
	t := time.NewTicker(i.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			refs, err := i.store.PendingDocuments(ctx, 64)
			if err != nil {
				log.Printf("ingestor: sweep: %v", err)
				continue
			}
			for _, ref := range refs {
				i.Enqueue(ref)
			}
		}
	}
}

// ProcessOne drives a single document through claim, extract, chunk,
// embed and persist. Only one worker ever holds a given document: the
// pending->processing claim is atomic and losing callers return early.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, ref models.DocumentRef) error {
	claimed, err := i.store.ClaimPending(ctx, ref.OrganizationID, ref.DocumentID)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		// Already claimed, not published, or deleted. Nothing to do.
		return nil
	}

	doc, err := i.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted between claim and load; abort without marking failed.
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	data, err := i.obj.GetFile(ctx, i.bucket, doc.StorageKey)
	if err != nil {
		return i.fail(ctx, ref, fmt.Sprintf("fetch source: %v", err))
	}

	text, err := i.extractor.Extract(ctx, data, doc.MediaType)
	if err != nil {
		return i.fail(ctx, ref, err.Error())
	}

	spans := ChunkText(text, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	vecs, err := i.embedAll(ctx, spans)
	if err != nil {
		return i.fail(ctx, ref, err.Error())
	}

	now := time.Now().UTC()
	chunks := make([]models.Chunk, len(spans))
	for k, span := range spans {
		chunks[k] = models.Chunk{
			ID:             uuid.NewString(),
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			SequenceIndex:  k,
			Text:           span,
			Embedding:      vecs[k],
			CreatedAt:      now,
		}
	}

	// Old chunks are replaced only now, after extraction and embedding
	// both succeeded: a failed rerun leaves the previous run's chunks
	// intact.
	if err := i.store.ReplaceChunks(ctx, ref.OrganizationID, ref.DocumentID, chunks); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Document deleted mid-flight; discard this run's output.
			return nil
		}
		return i.fail(ctx, ref, fmt.Sprintf("persist chunks: %v", err))
	}

	if err := i.store.CompleteProcessing(ctx, ref.OrganizationID, ref.DocumentID, len([]rune(text))); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("complete: %w", err)
	}
	log.Printf("ingestor: document %s completed, %d chunks", ref.DocumentID, len(chunks))
	return nil
}

// embedAll embeds spans in bounded batches, each under its own timeout.
func (i *DocumentIngestor) embedAll(ctx context.Context, spans []string) ([][]float32, error) {
	out := make([][]float32, 0, len(spans))
	for start := 0; start < len(spans); start += i.cfg.BatchSize {
		end := start + i.cfg.BatchSize
		if end > len(spans) {
			end = len(spans)
		}
		ectx, cancel := context.WithTimeout(ctx, i.cfg.EmbedTimeout)
		vecs, err := i.embedder.EmbedTexts(ectx, spans[start:end])
		cancel()
		if err != nil {
			var embErr *core.EmbeddingError
			if errors.As(err, &embErr) {
				return nil, err
			}
			return nil, &core.EmbeddingError{Op: "embed batch", Err: err}
		}
		if len(vecs) != end-start {
			return nil, &core.EmbeddingError{Op: "embed batch",
				Err: fmt.Errorf("got %d vectors for %d texts", len(vecs), end-start)}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (i *DocumentIngestor) fail(ctx context.Context, ref models.DocumentRef, reason string) error {
	if err := i.store.FailProcessing(ctx, ref.OrganizationID, ref.DocumentID, reason); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("mark failed: %w", err)
	}
	return fmt.Errorf("processing failed: %s", reason)
}
