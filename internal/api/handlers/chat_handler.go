package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	middleware "github.com/markdave123-py/Polibase/internal/api/middlewares"
	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/core/retrieval"
	"github.com/markdave123-py/Polibase/internal/models"
)

// notFoundAnswer is what the assistant says when nothing in the
// knowledge base clears the similarity threshold. Fabricating an answer
// from nothing is worse than admitting the gap.
const notFoundAnswer = "I couldn't find this in the policy documents."

const answerSystemPrompt = "You are an assistant answering questions about company policies. " +
	"Answer strictly from the provided policy excerpts. If the excerpts do not contain " +
	"the answer, say you could not find it in the policy documents."

type ChatHandler struct {
	engine           *retrieval.Engine
	llm              core.LLMProvider
	defaultThreshold float64
	defaultTopK      int
}

func NewChatHandler(engine *retrieval.Engine, llm core.LLMProvider, defaultThreshold float64, defaultTopK int) *ChatHandler {
	return &ChatHandler{engine: engine, llm: llm, defaultThreshold: defaultThreshold, defaultTopK: defaultTopK}
}

type searchRequest struct {
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type searchResponse struct {
	Results []models.ScoredChunk `json:"results"`
}

// Search runs a raw retrieval query and returns the scored chunks. Zero
// results is a normal 200 with an empty list, not an error.
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	orgID, ok := middleware.OrgID(r.Context())
	if !ok {
		http.Error(w, "organization scope required", http.StatusForbidden)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}

	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}

	hits, err := h.engine.Search(r.Context(), orgID, req.Query, threshold, topK)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusBadGateway)
		return
	}
	if hits == nil {
		hits = []models.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: hits})
}

type askResponse struct {
	Answer  string               `json:"answer"`
	Sources []models.ScoredChunk `json:"sources"`
}

// Ask retrieves relevant passages and generates an answer from them.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	orgID, ok := middleware.OrgID(r.Context())
	if !ok {
		http.Error(w, "organization scope required", http.StatusForbidden)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}

	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}

	hits, err := h.engine.Search(r.Context(), orgID, req.Query, threshold, topK)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusBadGateway)
		return
	}
	if len(hits) == 0 {
		writeJSON(w, http.StatusOK, askResponse{Answer: notFoundAnswer, Sources: []models.ScoredChunk{}})
		return
	}

	userPrompt := fmt.Sprintf("Policy excerpts:\n%s\nQuestion: %s", retrieval.ContextBlock(hits), req.Query)
	answer, err := h.llm.Generate(r.Context(), answerSystemPrompt, userPrompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("answer generation failed: %v", err), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: answer, Sources: hits})
}
