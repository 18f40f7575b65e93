package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

const dim = 8

func newOrg(t *testing.T, s *MemStore, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.CreateOrganization(context.Background(),
		&models.Organization{ID: id, Name: name, CreatedAt: time.Now().UTC()}))
	return id
}

func newDoc(t *testing.T, s *MemStore, orgID string, lifecycle models.LifecycleStatus, enabled bool) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, s.CreateDocument(context.Background(), &models.Document{
		ID:             id,
		OrganizationID: orgID,
		Title:          "Handbook",
		StorageKey:     "orgs/" + orgID + "/docs/" + id + "/handbook.txt",
		MediaType:      "text/plain",
		Lifecycle:      lifecycle,
		Enabled:        enabled,
		Processing:     models.ProcessingPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
	return id
}

// unitVec builds a vector pointing mostly along axis, normalized enough
// for cosine comparisons.
func unitVec(axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

func seedChunks(t *testing.T, s *MemStore, orgID, docID string, vecs ...[]float32) {
	t.Helper()
	chunks := make([]models.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = models.Chunk{
			ID:             uuid.NewString(),
			DocumentID:     docID,
			OrganizationID: orgID,
			SequenceIndex:  i,
			Text:           "chunk",
			Embedding:      v,
			CreatedAt:      time.Now().UTC(),
		}
	}
	require.NoError(t, s.ReplaceChunks(context.Background(), orgID, docID, chunks))
}

func TestSearchNeverCrossesOrganizations(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	orgA := newOrg(t, s, "A")
	orgB := newOrg(t, s, "B")

	docA := newDoc(t, s, orgA, models.LifecyclePublished, true)
	docB := newDoc(t, s, orgB, models.LifecyclePublished, true)

	query := unitVec(0)
	// B's chunk is a perfect match for the query; A's is weaker.
	weak := []float32{0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0}
	seedChunks(t, s, orgA, docA, weak)
	seedChunks(t, s, orgB, docB, query)

	hits, err := s.SearchChunks(ctx, orgA, query, 0.1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, orgA, h.OrganizationID)
		assert.NotEqual(t, docB, h.DocumentID)
	}
}

func TestSearchRequiresOrganization(t *testing.T) {
	s := New(dim)
	_, err := s.SearchChunks(context.Background(), "", unitVec(0), 0.1, 10)
	assert.ErrorIs(t, err, core.ErrIsolationViolation)
}

func TestSearchGatesOnLifecycleAndEnabled(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	query := unitVec(0)

	cases := []struct {
		name      string
		lifecycle models.LifecycleStatus
		enabled   bool
		visible   bool
	}{
		{"published enabled", models.LifecyclePublished, true, true},
		{"published disabled", models.LifecyclePublished, false, false},
		{"draft", models.LifecycleDraft, true, false},
		{"archived", models.LifecycleArchived, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docID := newDoc(t, s, org, tc.lifecycle, tc.enabled)
			seedChunks(t, s, org, docID, query)

			hits, err := s.SearchChunks(ctx, org, query, 0.1, 50)
			require.NoError(t, err)

			found := false
			for _, h := range hits {
				if h.DocumentID == docID {
					found = true
				}
			}
			assert.Equal(t, tc.visible, found)
		})
	}
}

// Toggling enabled changes visibility immediately, with no reprocessing.
func TestEnabledToggleIsImmediate(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecyclePublished, true)
	query := unitVec(0)
	seedChunks(t, s, org, docID, query)

	hits, err := s.SearchChunks(ctx, org, query, 0.1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	require.NoError(t, s.SetEnabled(ctx, org, docID, false))
	hits, err = s.SearchChunks(ctx, org, query, 0.1, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.SetEnabled(ctx, org, docID, true))
	hits, err = s.SearchChunks(ctx, org, query, 0.1, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSearchThresholdAndOrdering(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecyclePublished, true)

	query := unitVec(0)
	strong := query                                     // similarity 1.0
	medium := []float32{1, 1, 0, 0, 0, 0, 0, 0}        // ~0.71
	offAxis := []float32{0, 1, 0, 0, 0, 0, 0, 0}       // 0.0
	weak := []float32{1, 2, 2, 0, 0, 0, 0, 0}          // ~0.33
	seedChunks(t, s, org, docID, strong, medium, offAxis, weak)

	hits, err := s.SearchChunks(ctx, org, query, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].SequenceIndex)
	assert.Equal(t, 1, hits[1].SequenceIndex)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	// Lowering the threshold admits the weak chunk too.
	hits, err = s.SearchChunks(ctx, org, query, 0.2, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	// topK truncates after ordering.
	hits, err = s.SearchChunks(ctx, org, query, 0.2, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].SequenceIndex)
}

func TestSearchTieBreakIsDeterministic(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	// Two documents with identical embeddings: order falls back to
	// (document_id, sequence_index).
	doc1 := newDoc(t, s, org, models.LifecyclePublished, true)
	doc2 := newDoc(t, s, org, models.LifecyclePublished, true)
	query := unitVec(0)
	seedChunks(t, s, org, doc1, query, query)
	seedChunks(t, s, org, doc2, query, query)

	first, err := s.SearchChunks(ctx, org, query, 0.1, 10)
	require.NoError(t, err)
	require.Len(t, first, 4)
	for i := 0; i < 5; i++ {
		again, err := s.SearchChunks(ctx, org, query, 0.1, 10)
		require.NoError(t, err)
		require.Len(t, again, 4)
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
	lo := min(first[0].DocumentID, first[2].DocumentID)
	assert.Equal(t, lo, first[0].DocumentID)
	assert.Equal(t, 0, first[0].SequenceIndex)
	assert.Equal(t, 1, first[1].SequenceIndex)
}

func TestClaimPendingExactlyOnce(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecyclePublished, true)

	const claimers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimPending(ctx, org, docID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	doc, err := s.GetDocument(ctx, org, docID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingInProgress, doc.Processing)
}

func TestClaimPendingRefusesDraft(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecycleDraft, true)

	ok, err := s.ClaimPending(ctx, org, docID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrossOrgAccessIsNotFound(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	orgA := newOrg(t, s, "A")
	orgB := newOrg(t, s, "B")
	docID := newDoc(t, s, orgA, models.LifecyclePublished, true)

	// From B's point of view, A's document does not exist.
	_, err := s.GetDocument(ctx, orgB, docID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetChunks(ctx, orgB, docID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteDocument(ctx, orgB, docID), core.ErrNotFound)
	assert.ErrorIs(t, s.SetEnabled(ctx, orgB, docID, false), core.ErrNotFound)
}

func TestReplaceChunksAfterDeleteIsNotFound(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecyclePublished, true)
	require.NoError(t, s.DeleteDocument(ctx, org, docID))

	err := s.ReplaceChunks(ctx, org, docID, []models.Chunk{{
		ID: uuid.NewString(), DocumentID: docID, OrganizationID: org,
		SequenceIndex: 0, Text: "x", Embedding: unitVec(0),
	}})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestResetForReprocessTransitions(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	docID := newDoc(t, s, org, models.LifecyclePublished, true)

	// pending -> reprocess is not a valid transition.
	assert.ErrorIs(t, s.ResetForReprocess(ctx, org, docID), core.ErrInvalidTransition)

	ok, err := s.ClaimPending(ctx, org, docID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.FailProcessing(ctx, org, docID, "extraction failed"))

	doc, err := s.GetDocument(ctx, org, docID)
	require.NoError(t, err)
	require.Equal(t, models.ProcessingFailed, doc.Processing)
	version := doc.Version

	require.NoError(t, s.ResetForReprocess(ctx, org, docID))
	doc, err = s.GetDocument(ctx, org, docID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingPending, doc.Processing)
	assert.Empty(t, doc.ProcessingError)
	assert.Equal(t, version+1, doc.Version)
}

func TestPendingDocumentsOnlyPublished(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	published := newDoc(t, s, org, models.LifecyclePublished, true)
	newDoc(t, s, org, models.LifecycleDraft, true)
	newDoc(t, s, org, models.LifecycleArchived, true)

	refs, err := s.PendingDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, published, refs[0].DocumentID)
	assert.Equal(t, org, refs[0].OrganizationID)
}

func TestListDocumentsFilters(t *testing.T) {
	s := New(dim)
	ctx := context.Background()
	org := newOrg(t, s, "A")
	d1 := newDoc(t, s, org, models.LifecyclePublished, true)
	newDoc(t, s, org, models.LifecycleDraft, true)
	require.NoError(t, s.UpdateDocumentMetadata(ctx, org, d1, "Vacation policy", "", "benefits"))

	all, err := s.ListDocuments(ctx, org, core.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	published, err := s.ListDocuments(ctx, org, core.DocumentFilter{Lifecycle: models.LifecyclePublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, d1, published[0].ID)

	byTitle, err := s.ListDocuments(ctx, org, core.DocumentFilter{TitleQuery: "vacation"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, d1, byTitle[0].ID)

	byCategory, err := s.ListDocuments(ctx, org, core.DocumentFilter{Category: "benefits"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	_, err = s.ListDocuments(ctx, "", core.DocumentFilter{})
	assert.ErrorIs(t, err, core.ErrIsolationViolation)
}
