package ingestion_engine

// minTailRunes is the smallest trailing span worth keeping on its own.
// A shorter tail is folded into the previous span instead of being
// stored as a degenerate fragment.
const minTailRunes = 20

// ChunkText splits text into spans of size runes; each span after the
// first starts size-overlap runes after the previous one, so consecutive
// spans share overlap runes of context. The function is pure and
// deterministic: the order of the returned spans is the sequence_index
// order persisted with the chunks.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	stride := size - overlap
	var spans []string
	prevStart := 0
	for start := 0; ; start += stride {
		end := start + size
		if end > n {
			end = n
		}
		if start > 0 && n-start < minTailRunes {
			// Degenerate tail: extend the previous span to the end.
			spans[len(spans)-1] = string(runes[prevStart:n])
			break
		}
		spans = append(spans, string(runes[start:end]))
		prevStart = start
		if end == n {
			break
		}
	}
	return spans
}
