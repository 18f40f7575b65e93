package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/core/ingestion_engine"
	"github.com/markdave123-py/Polibase/internal/models"
)

// DocumentService owns the write-side orchestration around documents:
// blob upload plus metadata insert, lifecycle transitions, reprocess and
// delete. The ingestion pipeline is only ever poked through Enqueue, so
// callers return before any embedding work starts.
type DocumentService struct {
	store    core.TenantStore
	storage  core.ObjectClient
	ingestor ingestion_engine.Ingestor
	bucket   string
}

func NewDocumentService(store core.TenantStore, storage core.ObjectClient, ingestor ingestion_engine.Ingestor, bucket string) *DocumentService {
	return &DocumentService{store: store, storage: storage, ingestor: ingestor, bucket: bucket}
}

// UploadInput carries the upload form fields.
type UploadInput struct {
	Title       string
	Description string
	Category    string
	FileName    string
	MediaType   string
	Lifecycle   models.LifecycleStatus
	Data        []byte
}

// Upload stores the raw bytes, inserts the metadata row in pending, and
// enqueues the document when it is published. Draft and archived
// documents are never handed to the pipeline.
func (s *DocumentService) Upload(ctx context.Context, orgID string, in UploadInput) (*models.Document, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	if in.Lifecycle == "" {
		in.Lifecycle = models.LifecycleDraft
	}
	switch in.Lifecycle {
	case models.LifecycleDraft, models.LifecyclePublished, models.LifecycleArchived:
	default:
		return nil, fmt.Errorf("invalid lifecycle status %q", in.Lifecycle)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.FileName
	}

	docID := uuid.NewString()
	key := objectKey(orgID, docID, in.FileName)

	if _, err := s.storage.UploadFile(ctx, s.bucket, key, in.Data, in.MediaType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:             docID,
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Title:          title,
		Description:    in.Description,
		Category:       in.Category,
		StorageKey:     key,
		MediaType:      in.MediaType,
		ByteSize:       int64(len(in.Data)),
		Lifecycle:      in.Lifecycle,
		Enabled:        true,
		Processing:     models.ProcessingPending,
		Version:        1,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		// Best-effort cleanup of the orphaned blob.
		if derr := s.storage.DeleteFile(ctx, s.bucket, key); derr != nil {
			log.Printf("documents: cleanup of %s after failed insert: %v", key, derr)
		}
		return nil, fmt.Errorf("store metadata: %w", err)
	}

	if doc.Lifecycle == models.LifecyclePublished {
		s.ingestor.Enqueue(models.DocumentRef{OrganizationID: orgID, DocumentID: docID})
	}
	return doc, nil
}

// Publish makes the document eligible for processing and retrieval, and
// enqueues it if it has not been processed yet.
func (s *DocumentService) Publish(ctx context.Context, orgID, docID string) error {
	if err := s.store.SetLifecycle(ctx, orgID, docID, models.LifecyclePublished); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, orgID, docID)
	if err != nil {
		return err
	}
	if doc.Processing == models.ProcessingPending {
		s.ingestor.Enqueue(models.DocumentRef{OrganizationID: orgID, DocumentID: docID})
	}
	return nil
}

// Archive takes the document out of processing and retrieval without
// deleting anything.
func (s *DocumentService) Archive(ctx context.Context, orgID, docID string) error {
	return s.store.SetLifecycle(ctx, orgID, docID, models.LifecycleArchived)
}

// Reprocess resets a completed or failed document to pending and
// re-enters the pipeline. The existing chunks stay in place until the
// new run replaces them.
func (s *DocumentService) Reprocess(ctx context.Context, orgID, docID string) error {
	if err := s.store.ResetForReprocess(ctx, orgID, docID); err != nil {
		return err
	}
	s.ingestor.Enqueue(models.DocumentRef{OrganizationID: orgID, DocumentID: docID})
	return nil
}

// Delete removes the metadata row (chunks cascade) and then the blob.
// A pipeline run holding the document mid-processing notices the missing
// row at its next write and aborts.
func (s *DocumentService) Delete(ctx context.Context, orgID, docID string) error {
	doc, err := s.store.GetDocument(ctx, orgID, docID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, orgID, docID); err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, s.bucket, doc.StorageKey); err != nil && !errors.Is(err, core.ErrNotFound) {
		log.Printf("documents: delete blob %s: %v", doc.StorageKey, err)
	}
	return nil
}

// objectKey namespaces blobs per organization so a guessed key can never
// cross tenants.
func objectKey(orgID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("orgs", orgID, "docs", docID, path.Base(filename))
}
