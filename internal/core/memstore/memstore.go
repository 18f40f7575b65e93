// Package memstore is an in-memory TenantStore used by tests and the
// STORE_DRIVER=memory development mode. It enforces the same
// organization-scoping rules as the Postgres implementation.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

var _ core.TenantStore = (*MemStore)(nil)

type MemStore struct {
	mu  sync.RWMutex
	dim int

	users        map[string]models.User // by id
	usersByEmail map[string]string
	orgs         map[string]models.Organization
	memberships  map[string]models.Membership // userID + "\x00" + orgID
	docs         map[string]models.Document   // by id
	chunks       map[string][]models.Chunk    // by document id
}

// New builds an empty store. dim, when positive, is the embedding
// dimension every stored and queried vector must have.
func New(dim int) *MemStore {
	return &MemStore{
		dim:          dim,
		users:        make(map[string]models.User),
		usersByEmail: make(map[string]string),
		orgs:         make(map[string]models.Organization),
		memberships:  make(map[string]models.Membership),
		docs:         make(map[string]models.Document),
		chunks:       make(map[string][]models.Chunk),
	}
}

func (s *MemStore) Close() error { return nil }

func memberKey(userID, orgID string) string { return userID + "\x00" + orgID }

// docScoped returns the document only when it belongs to orgID. A
// document in another organization is indistinguishable from a missing
// one.
func (s *MemStore) docScoped(orgID, docID string) (models.Document, error) {
	d, ok := s.docs[docID]
	if !ok || d.OrganizationID != orgID {
		return models.Document{}, core.ErrNotFound
	}
	return d, nil
}

func (s *MemStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[user.Email]; exists {
		return fmt.Errorf("user with email %q already exists", user.Email)
	}
	s.users[user.ID] = *user
	s.usersByEmail[user.Email] = user.ID
	return nil
}

func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *MemStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orgs[org.ID]; exists {
		return fmt.Errorf("organization %s already exists", org.ID)
	}
	s.orgs[org.ID] = *org
	return nil
}

func (s *MemStore) GetOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &o, nil
}

func (s *MemStore) UpsertMembership(ctx context.Context, m *models.Membership) error {
	if !models.ValidRole(m.Role) {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[m.OrganizationID]; !ok {
		return core.ErrNotFound
	}
	s.memberships[memberKey(m.UserID, m.OrganizationID)] = *m
	return nil
}

func (s *MemStore) GetMembership(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[memberKey(userID, orgID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &m, nil
}

func (s *MemStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[doc.OrganizationID]; !ok {
		return core.ErrNotFound
	}
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *MemStore) GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MemStore) ListDocuments(ctx context.Context, orgID string, f core.DocumentFilter) ([]models.Document, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.OrganizationID != orgID {
			continue
		}
		if f.Lifecycle != "" && d.Lifecycle != f.Lifecycle {
			continue
		}
		if f.Processing != "" && d.Processing != f.Processing {
			continue
		}
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.TitleQuery != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(f.TitleQuery)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (s *MemStore) UpdateDocumentMetadata(ctx context.Context, orgID, docID, title, description, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	d.Title = title
	d.Description = description
	d.Category = category
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return nil
}

func (s *MemStore) SetLifecycle(ctx context.Context, orgID, docID string, status models.LifecycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	d.Lifecycle = status
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return nil
}

func (s *MemStore) SetEnabled(ctx context.Context, orgID, docID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	d.Enabled = enabled
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return nil
}

func (s *MemStore) DeleteDocument(ctx context.Context, orgID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.docScoped(orgID, docID); err != nil {
		return err
	}
	delete(s.docs, docID)
	delete(s.chunks, docID)
	return nil
}

func (s *MemStore) ClaimPending(ctx context.Context, orgID, docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return false, nil
	}
	if d.Lifecycle != models.LifecyclePublished || d.Processing != models.ProcessingPending {
		return false, nil
	}
	d.Processing = models.ProcessingInProgress
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return true, nil
}

func (s *MemStore) CompleteProcessing(ctx context.Context, orgID, docID string, extractedLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	if d.Processing != models.ProcessingInProgress {
		return core.ErrInvalidTransition
	}
	now := time.Now().UTC()
	d.Processing = models.ProcessingCompleted
	d.ProcessingError = ""
	d.ExtractedTextLength = extractedLen
	d.ProcessedAt = &now
	d.UpdatedAt = now
	s.docs[docID] = d
	return nil
}

func (s *MemStore) FailProcessing(ctx context.Context, orgID, docID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	d.Processing = models.ProcessingFailed
	d.ProcessingError = reason
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return nil
}

func (s *MemStore) ResetForReprocess(ctx context.Context, orgID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	if d.Processing != models.ProcessingCompleted && d.Processing != models.ProcessingFailed {
		return core.ErrInvalidTransition
	}
	d.Processing = models.ProcessingPending
	d.ProcessingError = ""
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	s.docs[docID] = d
	return nil
}

func (s *MemStore) PendingDocuments(ctx context.Context, limit int) ([]models.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type cand struct {
		ref models.DocumentRef
		at  time.Time
	}
	var cands []cand
	for _, d := range s.docs {
		if d.Lifecycle == models.LifecyclePublished && d.Processing == models.ProcessingPending {
			cands = append(cands, cand{models.DocumentRef{OrganizationID: d.OrganizationID, DocumentID: d.ID}, d.CreatedAt})
		}
	}
	sort.Slice(cands, func(a, b int) bool {
		if !cands[a].at.Equal(cands[b].at) {
			return cands[a].at.Before(cands[b].at)
		}
		return cands[a].ref.DocumentID < cands[b].ref.DocumentID
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]models.DocumentRef, len(cands))
	for i, c := range cands {
		out[i] = c.ref
	}
	return out, nil
}

func (s *MemStore) ReplaceChunks(ctx context.Context, orgID, docID string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.docScoped(orgID, docID)
	if err != nil {
		return err
	}
	cp := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		if c.OrganizationID != d.OrganizationID {
			return fmt.Errorf("chunk %s organization mismatch: %w", c.ID, core.ErrIsolationViolation)
		}
		if s.dim > 0 && len(c.Embedding) != s.dim {
			return fmt.Errorf("chunk %s embedding dimension %d, store expects %d", c.ID, len(c.Embedding), s.dim)
		}
		cp[i] = c
	}
	sort.Slice(cp, func(a, b int) bool { return cp[a].SequenceIndex < cp[b].SequenceIndex })
	s.chunks[docID] = cp
	return nil
}

func (s *MemStore) GetChunks(ctx context.Context, orgID, docID string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.docScoped(orgID, docID); err != nil {
		return nil, err
	}
	src := s.chunks[docID]
	out := make([]models.Chunk, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemStore) SearchChunks(ctx context.Context, orgID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	if orgID == "" {
		return nil, core.ErrIsolationViolation
	}
	if s.dim > 0 && len(queryVec) != s.dim {
		return nil, fmt.Errorf("query vector dimension %d, store expects %d", len(queryVec), s.dim)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []models.ScoredChunk
	for docID, cs := range s.chunks {
		d, ok := s.docs[docID]
		if !ok || d.OrganizationID != orgID {
			continue
		}
		if d.Lifecycle != models.LifecyclePublished || !d.Enabled {
			continue
		}
		for _, c := range cs {
			sim := cosineSimilarity(queryVec, c.Embedding)
			if sim <= threshold {
				continue
			}
			hits = append(hits, models.ScoredChunk{Chunk: c, Similarity: sim})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		if hits[a].DocumentID != hits[b].DocumentID {
			return hits[a].DocumentID < hits[b].DocumentID
		}
		return hits[a].SequenceIndex < hits[b].SequenceIndex
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
