package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Polibase/internal/config"
	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

var _ core.TenantStore = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org == nil {
		return errors.New("nil organization")
	}
	const q = `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, now())`
	_, err := c.db.ExecContext(ctx, q, org.ID, org.Name)
	return err
}

func (c *DatabaseClient) GetOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	const q = `SELECT id, name, created_at FROM organizations WHERE id = $1`
	var o models.Organization
	err := c.db.QueryRowContext(ctx, q, orgID).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *DatabaseClient) UpsertMembership(ctx context.Context, m *models.Membership) error {
	if m == nil {
		return errors.New("nil membership")
	}
	if !models.ValidRole(m.Role) {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	const q = `
		INSERT INTO memberships (user_id, organization_id, role, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, organization_id) DO UPDATE SET role = EXCLUDED.role
	`
	_, err := c.db.ExecContext(ctx, q, m.UserID, m.OrganizationID, m.Role)
	return err
}

func (c *DatabaseClient) GetMembership(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	const q = `
		SELECT user_id, organization_id, role, created_at
		FROM memberships WHERE user_id = $1 AND organization_id = $2
	`
	var m models.Membership
	err := c.db.QueryRowContext(ctx, q, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, organization_id, title, description, category, storage_key, media_type,
			 byte_size, lifecycle_status, enabled, processing_status, version, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OrganizationID, doc.Title, doc.Description, doc.Category,
		doc.StorageKey, doc.MediaType, doc.ByteSize, doc.Lifecycle, doc.Enabled,
		doc.Processing, doc.Version)
	return err
}

const documentColumns = `
	id, organization_id, title, description, category, storage_key, media_type,
	byte_size, lifecycle_status, enabled, processing_status,
	COALESCE(processing_error, ''), extracted_text_length, processed_at,
	version, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d           models.Document
		processedAt sql.NullTime
	)
	err := row.Scan(
		&d.ID, &d.OrganizationID, &d.Title, &d.Description, &d.Category,
		&d.StorageKey, &d.MediaType, &d.ByteSize, &d.Lifecycle, &d.Enabled,
		&d.Processing, &d.ProcessingError, &d.ExtractedTextLength, &processedAt,
		&d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND organization_id = $2`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, docID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, orgID string, f core.DocumentFilter) ([]models.Document, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	where := []string{"organization_id = $1"}
	args := []any{orgID}
	if f.Lifecycle != "" {
		args = append(args, f.Lifecycle)
		where = append(where, fmt.Sprintf("lifecycle_status = $%d", len(args)))
	}
	if f.Processing != "" {
		args = append(args, f.Processing)
		where = append(where, fmt.Sprintf("processing_status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.TitleQuery != "" {
		args = append(args, "%"+f.TitleQuery+"%")
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	q := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id ASC`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentMetadata(ctx context.Context, orgID, docID, title, description, category string) error {
	const q = `
		UPDATE documents
		SET title = $3, description = $4, category = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	return c.execScoped(ctx, q, docID, orgID, title, description, category)
}

func (c *DatabaseClient) SetLifecycle(ctx context.Context, orgID, docID string, status models.LifecycleStatus) error {
	const q = `
		UPDATE documents SET lifecycle_status = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	return c.execScoped(ctx, q, docID, orgID, status)
}

func (c *DatabaseClient) SetEnabled(ctx context.Context, orgID, docID string, enabled bool) error {
	const q = `
		UPDATE documents SET enabled = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`
	return c.execScoped(ctx, q, docID, orgID, enabled)
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, orgID, docID string) error {
	// document_chunks cascades on the FK.
	const q = `DELETE FROM documents WHERE id = $1 AND organization_id = $2`
	return c.execScoped(ctx, q, docID, orgID)
}

// execScoped runs an org-scoped statement and maps "no rows touched" to
// ErrNotFound.
func (c *DatabaseClient) execScoped(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (c *DatabaseClient) ClaimPending(ctx context.Context, orgID, docID string) (bool, error) {
	// The conditional update is the per-document lock: of N concurrent
	// claimers exactly one sees rows=1.
	const q = `
		UPDATE documents
		SET processing_status = 'processing', updated_at = now()
		WHERE id = $1 AND organization_id = $2
		  AND processing_status = 'pending'
		  AND lifecycle_status = 'published'
	`
	res, err := c.db.ExecContext(ctx, q, docID, orgID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) CompleteProcessing(ctx context.Context, orgID, docID string, extractedLen int) error {
	const q = `
		UPDATE documents
		SET processing_status = 'completed', processing_error = NULL,
		    extracted_text_length = $3, processed_at = now(), updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND processing_status = 'processing'
	`
	return c.execTransition(ctx, q, orgID, docID, extractedLen)
}

func (c *DatabaseClient) FailProcessing(ctx context.Context, orgID, docID, reason string) error {
	const q = `
		UPDATE documents
		SET processing_status = 'failed', processing_error = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND processing_status = 'processing'
	`
	return c.execTransition(ctx, q, orgID, docID, reason)
}

func (c *DatabaseClient) ResetForReprocess(ctx context.Context, orgID, docID string) error {
	const q = `
		UPDATE documents
		SET processing_status = 'pending', processing_error = NULL,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		  AND processing_status IN ('completed', 'failed')
	`
	return c.execTransition(ctx, q, orgID, docID)
}

// execTransition runs a guarded state change. Zero rows means either the
// document is gone (ErrNotFound) or it is in a state the transition does
// not allow (ErrInvalidTransition).
func (c *DatabaseClient) execTransition(ctx context.Context, q, orgID, docID string, extra ...any) error {
	args := append([]any{docID, orgID}, extra...)
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	err = c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND organization_id = $2)`,
		docID, orgID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return core.ErrInvalidTransition
	}
	return core.ErrNotFound
}

func (c *DatabaseClient) PendingDocuments(ctx context.Context, limit int) ([]models.DocumentRef, error) {
	const q = `
		SELECT organization_id, id
		FROM documents
		WHERE processing_status = 'pending' AND lifecycle_status = 'published'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentRef
	for rows.Next() {
		var ref models.DocumentRef
		if err := rows.Scan(&ref.OrganizationID, &ref.DocumentID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// ReplaceChunks swaps a document's chunks inside one transaction. The
// parent row is locked first so a concurrent delete either waits or has
// already removed the document, in which case the caller gets
// ErrNotFound and discards the run.
func (c *DatabaseClient) ReplaceChunks(ctx context.Context, orgID, docID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lockedOrg string
	err = tx.QueryRowContext(ctx,
		`SELECT organization_id FROM documents WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
		docID, orgID).Scan(&lockedOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1 AND organization_id = $2`,
		docID, orgID); err != nil {
		return err
	}

	const ins = `
		INSERT INTO document_chunks
			(id, document_id, organization_id, sequence_index, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.OrganizationID != lockedOrg {
			return fmt.Errorf("chunk %s organization mismatch: %w", ch.ID, core.ErrIsolationViolation)
		}
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.OrganizationID, ch.SequenceIndex, ch.Text, vec,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunks(ctx context.Context, orgID, docID string) ([]models.Chunk, error) {
	if _, err := c.GetDocument(ctx, orgID, docID); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, document_id, organization_id, sequence_index, text, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1 AND organization_id = $2
		ORDER BY sequence_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, docID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch  models.Chunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.OrganizationID, &ch.SequenceIndex,
			&ch.Text, &emb, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks is the retrieval hot path. The organization filter sits
// on the denormalized chunk column; the documents join only supplies the
// published/enabled gating.
func (c *DatabaseClient) SearchChunks(ctx context.Context, orgID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	const q = `
		SELECT c.id, c.document_id, c.organization_id, c.sequence_index, c.text, c.created_at,
		       1 - (c.embedding <=> $2) AS similarity
		FROM document_chunks c
		JOIN documents d
		  ON d.id = c.document_id AND d.organization_id = c.organization_id
		WHERE c.organization_id = $1
		  AND d.lifecycle_status = 'published'
		  AND d.enabled = TRUE
		  AND 1 - (c.embedding <=> $2) > $3
		ORDER BY similarity DESC, c.document_id ASC, c.sequence_index ASC
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, orgID, vec, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.OrganizationID, &sc.SequenceIndex,
			&sc.Text, &sc.CreatedAt, &sc.Similarity); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
