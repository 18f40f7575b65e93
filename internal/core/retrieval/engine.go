// Package retrieval answers "which passages are relevant to this
// question" for exactly one organization at a time.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

// Engine embeds a query and runs a filtered similarity search over one
// organization's chunks. It is read-only and safe for arbitrary
// concurrent use.
type Engine struct {
	store        core.TenantStore
	embedder     core.EmbeddingProvider
	embedTimeout time.Duration
}

func NewEngine(store core.TenantStore, embedder core.EmbeddingProvider, embedTimeout time.Duration) *Engine {
	if embedTimeout <= 0 {
		embedTimeout = 30 * time.Second
	}
	return &Engine{store: store, embedder: embedder, embedTimeout: embedTimeout}
}

// Search returns the top topK chunks of orgID whose similarity to query
// is strictly above threshold, ordered by descending similarity with
// (document_id, sequence_index) breaking ties.
//
// An empty result is a valid answer, distinct from an error: the caller
// decides what "nothing relevant" means. An empty orgID is refused;
// there is no "search everything" mode.
func (e *Engine) Search(ctx context.Context, orgID, query string, threshold float64, topK int) ([]models.ScoredChunk, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}
	if topK <= 0 {
		topK = 5
	}

	ectx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	vecs, err := e.embedder.EmbedTexts(ectx, []string{query})
	if err != nil {
		var embErr *core.EmbeddingError
		if errors.As(err, &embErr) {
			return nil, err
		}
		return nil, &core.EmbeddingError{Op: "embed query", Err: err}
	}
	if len(vecs) != 1 {
		return nil, &core.EmbeddingError{Op: "embed query",
			Err: fmt.Errorf("got %d vectors for 1 text", len(vecs))}
	}

	hits, err := e.store.SearchChunks(ctx, orgID, vecs[0], threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return hits, nil
}

// ContextBlock renders retrieval hits as the plain-text context section
// of an answer-generation prompt.
func ContextBlock(hits []models.ScoredChunk) string {
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(h.Text)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}
