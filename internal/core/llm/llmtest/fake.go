// Package llmtest provides deterministic in-process stand-ins for the
// Gemini embedder and LLM, for tests and local development.
package llmtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/markdave123-py/Polibase/internal/core"
)

var (
	_ core.EmbeddingProvider = (*FakeEmbedder)(nil)
	_ core.LLMProvider       = (*StaticLLM)(nil)
)

// FakeEmbedder maps each text to a normalized bag-of-words vector: every
// word hashes to one dimension. Texts sharing words end up with high
// cosine similarity, which is enough for retrieval tests to behave like
// the real service. Identical text always yields an identical vector.
type FakeEmbedder struct {
	Dim int
	// Err, when set, is returned from every call.
	Err error
}

func NewFakeEmbedder(dim int) *FakeEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &FakeEmbedder{Dim: dim}
}

func (f *FakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func (f *FakeEmbedder) embed(text string) []float32 {
	v := make([]float32, f.Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(f.Dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// StaticLLM returns a fixed answer for every prompt.
type StaticLLM struct {
	Answer string
	Err    error
}

func (s *StaticLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}
