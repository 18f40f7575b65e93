package core

import (
	"context"

	"github.com/markdave123-py/Polibase/internal/models"
)

// DocumentFilter narrows ListDocuments. Zero values mean "no filter".
type DocumentFilter struct {
	Lifecycle  models.LifecycleStatus
	Processing models.ProcessingStatus
	Category   string
	TitleQuery string
}

// TenantStore is the persistence layer for organizations, memberships,
// documents and chunks.
//
// Tenant isolation is enforced here by construction: every method that
// reads or writes a document or chunk takes the owning organization ID.
// There is deliberately no "query all" variant; the only cross-tenant
// read is PendingDocuments, which returns (org, document) references for
// the ingestion scheduler and never row contents.
type TenantStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, orgID string) (*models.Organization, error)

	UpsertMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, userID, orgID string) (*models.Membership, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error)
	ListDocuments(ctx context.Context, orgID string, f DocumentFilter) ([]models.Document, error)
	UpdateDocumentMetadata(ctx context.Context, orgID, docID, title, description, category string) error
	SetLifecycle(ctx context.Context, orgID, docID string, s models.LifecycleStatus) error
	SetEnabled(ctx context.Context, orgID, docID string, enabled bool) error
	DeleteDocument(ctx context.Context, orgID, docID string) error

	// ClaimPending atomically moves a published document from pending to
	// processing. It reports false when the document is already claimed,
	// not published, or gone; exactly one concurrent caller wins.
	ClaimPending(ctx context.Context, orgID, docID string) (bool, error)
	// CompleteProcessing finishes a processing run. ErrNotFound means the
	// document vanished mid-flight and the run's effects were discarded.
	CompleteProcessing(ctx context.Context, orgID, docID string, extractedLen int) error
	FailProcessing(ctx context.Context, orgID, docID, reason string) error
	// ResetForReprocess moves a completed or failed document back to
	// pending; any other state returns ErrInvalidTransition.
	ResetForReprocess(ctx context.Context, orgID, docID string) error
	// PendingDocuments lists references to published documents awaiting
	// ingestion, oldest first.
	PendingDocuments(ctx context.Context, limit int) ([]models.DocumentRef, error)

	// ReplaceChunks deletes the document's existing chunks and inserts
	// the given ones in a single transaction. ErrNotFound if the parent
	// document no longer exists (delete raced the pipeline).
	ReplaceChunks(ctx context.Context, orgID, docID string, chunks []models.Chunk) error
	GetChunks(ctx context.Context, orgID, docID string) ([]models.Chunk, error)

	// SearchChunks scans the organization's chunks whose parent document
	// is published and enabled, keeps those with similarity strictly
	// above threshold, and returns the top limit ordered by descending
	// similarity with (document_id, sequence_index) as tie-break.
	// An empty orgID is ErrIsolationViolation, never "search everything".
	SearchChunks(ctx context.Context, orgID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage. Keys
// are namespaced per organization by the callers so a guessed key never
// crosses tenants.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
