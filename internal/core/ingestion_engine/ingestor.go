package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/Polibase/internal/models"
)

// Ingestor is the surface the API layer uses to hand documents to the
// background pipeline. Enqueue never blocks the upload response on
// embedding-service latency.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ref models.DocumentRef)
	ProcessOne(ctx context.Context, ref models.DocumentRef) error
}
