package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Polibase/internal/api/middlewares"
	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
	"github.com/markdave123-py/Polibase/internal/services"
)

const maxUploadBytes = 52 << 20 // 52 MB

type DocumentHandler struct {
	store core.TenantStore
	docs  *services.DocumentService
}

func NewDocumentHandler(store core.TenantStore, docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{store: store, docs: docs}
}

// Upload handles the multipart upload, stores bytes and metadata, and
// returns immediately; ingestion happens in the background.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	doc, err := h.docs.Upload(r.Context(), orgID, services.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		FileName:    header.Filename,
		MediaType:   mediaType,
		Lifecycle:   models.LifecycleStatus(r.FormValue("lifecycle_status")),
		Data:        data,
	})
	if err != nil {
		http.Error(w, "upload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())

	q := r.URL.Query()
	filter := core.DocumentFilter{
		Lifecycle:  models.LifecycleStatus(q.Get("lifecycle_status")),
		Processing: models.ProcessingStatus(q.Get("processing_status")),
		Category:   q.Get("category"),
		TitleQuery: q.Get("q"),
	}

	docs, err := h.store.ListDocuments(r.Context(), orgID, filter)
	if err != nil {
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	doc, err := h.store.GetDocument(r.Context(), orgID, chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type updateMetadataRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (h *DocumentHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	docID := chi.URLParam(r, "documentID")

	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}
	if err := h.store.UpdateDocumentMetadata(r.Context(), orgID, docID, req.Title, req.Description, req.Category); err != nil {
		h.writeStoreError(w, err)
		return
	}
	doc, err := h.store.GetDocument(r.Context(), orgID, docID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Publish(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	if err := h.docs.Publish(r.Context(), orgID, chi.URLParam(r, "documentID")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	if err := h.docs.Archive(r.Context(), orgID, chi.URLParam(r, "documentID")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled flips the retrieval on/off switch without touching
// lifecycle or processing state; no reprocessing is needed either way.
func (h *DocumentHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.store.SetEnabled(r.Context(), orgID, chi.URLParam(r, "documentID"), req.Enabled); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	if err := h.docs.Reprocess(r.Context(), orgID, chi.URLParam(r, "documentID")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	if err := h.docs.Delete(r.Context(), orgID, chi.URLParam(r, "documentID")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidTransition):
		http.Error(w, "document is not in a state that allows this operation", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
