package core

import "context"

// DocumentExtractor turns raw document bytes into plain text. The media
// type hint selects the parsing strategy; failures come back as
// *ExtractionError so the pipeline can record a precise reason.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}
