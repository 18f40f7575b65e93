package ingestion_engine

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Polibase/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// minExtractedRunes guards against "successful" extractions that carry
// no usable text, e.g. a scanned/image-only PDF.
const minExtractedRunes = 10

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv
// for PDF and Word documents, and a direct decode for plain text.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract dispatches on the media type and returns the document's plain
// text. All failure modes come back as *core.ExtractionError.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	mt := normalizeMediaType(mediaType)

	var (
		text string
		err  error
	)
	switch mt {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		text, err = e.convert(data, mt)
	case "text/plain", "text/markdown", "text/csv":
		text, err = extractPlain(data, mt)
	default:
		return "", &core.ExtractionError{Reason: core.ExtractionUnsupported, MediaType: mt}
	}
	if err != nil {
		return "", err
	}
	if cancelled := ctx.Err(); cancelled != nil {
		return "", cancelled
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minExtractedRunes {
		return "", &core.ExtractionError{Reason: core.ExtractionEmptyOrImageOnly, MediaType: mt}
	}
	return text, nil
}

func (e *DocconvExtractor) convert(data []byte, mediaType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
	if err != nil {
		return "", &core.ExtractionError{Reason: core.ExtractionCorrupt, MediaType: mediaType, Err: err}
	}
	return res.Body, nil
}

func extractPlain(data []byte, mediaType string) (string, error) {
	if !utf8.Valid(data) {
		return "", &core.ExtractionError{Reason: core.ExtractionCorrupt, MediaType: mediaType}
	}
	return string(data), nil
}

// normalizeMediaType lowercases the type and drops parameters such as
// "; charset=utf-8".
func normalizeMediaType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
