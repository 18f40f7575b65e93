package models

import (
	"time"
)

// Role is a user's role inside one organization.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the known membership roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// LifecycleStatus governs whether a document participates in processing
// and retrieval at all.
type LifecycleStatus string

const (
	LifecycleDraft     LifecycleStatus = "draft"
	LifecyclePublished LifecycleStatus = "published"
	LifecycleArchived  LifecycleStatus = "archived"
)

// ProcessingStatus tracks the ingestion pipeline's progress for a document.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Organization is the tenant boundary. Every document and chunk belongs
// to exactly one organization, set at creation and never reassigned.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership ties a user to an organization with a role. A (user,
// organization) pair is unique; the same user may belong to several
// organizations with independent roles.
type Membership struct {
	UserID         string    `db:"user_id" json:"user_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Role           Role      `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Document is an uploaded policy file plus its ingestion bookkeeping.
type Document struct {
	ID                  string           `db:"id" json:"id"`
	OrganizationID      string           `db:"organization_id" json:"organization_id"`
	Title               string           `db:"title" json:"title"`
	Description         string           `db:"description" json:"description"`
	Category            string           `db:"category" json:"category"`
	StorageKey          string           `db:"storage_key" json:"storage_key"`
	MediaType           string           `db:"media_type" json:"media_type"`
	ByteSize            int64            `db:"byte_size" json:"byte_size"`
	Lifecycle           LifecycleStatus  `db:"lifecycle_status" json:"lifecycle_status"`
	Enabled             bool             `db:"enabled" json:"enabled"`
	Processing          ProcessingStatus `db:"processing_status" json:"processing_status"`
	ProcessingError     string           `db:"processing_error" json:"processing_error,omitempty"`
	ExtractedTextLength int              `db:"extracted_text_length" json:"extracted_text_length"`
	ProcessedAt         *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	Version             int              `db:"version" json:"version"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// Chunk is one fixed-size slice of a document's extracted text plus its
// embedding. OrganizationID is a denormalized copy of the parent
// document's organization so the retrieval scan can enforce tenant
// isolation on a single table.
type Chunk struct {
	ID             string    `db:"id" json:"id"`
	DocumentID     string    `db:"document_id" json:"document_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	SequenceIndex  int       `db:"sequence_index" json:"sequence_index"`
	Text           string    `db:"text" json:"text"`
	Embedding      []float32 `db:"embedding" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk is a retrieval hit: a chunk plus its similarity to the query.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// DocumentRef identifies a document together with its owning
// organization; used by the ingestion scheduler.
type DocumentRef struct {
	OrganizationID string
	DocumentID     string
}
