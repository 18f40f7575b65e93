package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Polibase/internal/core/llm/llmtest"
	"github.com/markdave123-py/Polibase/internal/core/memstore"
	objectclient "github.com/markdave123-py/Polibase/internal/core/object-client"
	"github.com/markdave123-py/Polibase/internal/models"
)

const (
	testBucket = "test-bucket"
	testDim    = 64
)

type pipelineFixture struct {
	store    *memstore.MemStore
	blob     *objectclient.MemoryObjectStore
	embedder *llmtest.FakeEmbedder
	ingestor *DocumentIngestor
	orgID    string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store := memstore.New(testDim)
	blob := objectclient.NewMemoryObjectStore()
	embedder := llmtest.NewFakeEmbedder(testDim)

	cfg := &IngestConfig{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 4,
		EmbedTimeout: 5 * time.Second, SweepInterval: 50 * time.Millisecond}
	ing := NewDocumentIngestor(store, blob, testBucket, embedder, NewDocconvExtractor(false), cfg)

	orgID := uuid.NewString()
	require.NoError(t, store.CreateOrganization(context.Background(),
		&models.Organization{ID: orgID, Name: "Acme", CreatedAt: time.Now().UTC()}))

	return &pipelineFixture{store: store, blob: blob, embedder: embedder, ingestor: ing, orgID: orgID}
}

func (f *pipelineFixture) addDocument(t *testing.T, lifecycle models.LifecycleStatus, mediaType, body string) models.DocumentRef {
	t.Helper()
	ctx := context.Background()
	docID := uuid.NewString()
	key := "orgs/" + f.orgID + "/docs/" + docID + "/policy.txt"

	_, err := f.blob.UploadFile(ctx, testBucket, key, []byte(body), mediaType)
	require.NoError(t, err)

	now := time.Now().UTC()
	doc := &models.Document{
		ID:             docID,
		OrganizationID: f.orgID,
		Title:          "Vacation policy",
		StorageKey:     key,
		MediaType:      mediaType,
		ByteSize:       int64(len(body)),
		Lifecycle:      lifecycle,
		Enabled:        true,
		Processing:     models.ProcessingPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, f.store.CreateDocument(ctx, doc))
	return models.DocumentRef{OrganizationID: f.orgID, DocumentID: docID}
}

func policyText() string {
	return strings.Repeat("Employees receive 15 vacation days per year. ", 30)
}

func TestProcessOneCompletes(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())

	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err := f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingCompleted, doc.Processing)
	assert.Empty(t, doc.ProcessingError)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Greater(t, doc.ExtractedTextLength, 0)

	chunks, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, ref.OrganizationID, c.OrganizationID)
		assert.Len(t, c.Embedding, testDim)
	}
}

func TestProcessOneSkipsDraft(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecycleDraft, "text/plain", policyText())

	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err := f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingPending, doc.Processing)

	chunks, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessOneExtractionFailureIsStable(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	// Unsupported media type fails extraction the same way every run.
	ref := f.addDocument(t, models.LifecyclePublished, "image/png", "not really a png")

	require.Error(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err := f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, doc.Processing)
	assert.NotEmpty(t, doc.ProcessingError)

	// Reprocessing the identical bytes fails again, it never "heals".
	require.NoError(t, f.store.ResetForReprocess(ctx, ref.OrganizationID, ref.DocumentID))
	require.Error(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err = f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, doc.Processing)
	assert.NotEmpty(t, doc.ProcessingError)
}

func TestProcessOneMissingBlob(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())
	doc, err := f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	require.NoError(t, f.blob.DeleteFile(ctx, testBucket, doc.StorageKey))

	require.Error(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err = f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, doc.Processing)
	assert.Contains(t, doc.ProcessingError, "fetch source")
}

func TestFailedRerunKeepsPreviousChunks(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())

	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))
	before, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Embedding service starts failing; the rerun must not destroy the
	// chunks from the successful run.
	f.embedder.Err = errors.New("rate limited")
	require.NoError(t, f.store.ResetForReprocess(ctx, ref.OrganizationID, ref.DocumentID))
	require.Error(t, f.ingestor.ProcessOne(ctx, ref))

	doc, err := f.store.GetDocument(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingFailed, doc.Processing)

	after, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Text, after[i].Text)
	}
}

func TestReprocessIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())

	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))
	first, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)

	require.NoError(t, f.store.ResetForReprocess(ctx, ref.OrganizationID, ref.DocumentID))
	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))
	second, err := f.store.GetChunks(ctx, ref.OrganizationID, ref.DocumentID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].SequenceIndex, second[i].SequenceIndex)
	}
}

func TestProcessOneDeletedDocument(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())
	require.NoError(t, f.store.DeleteDocument(ctx, ref.OrganizationID, ref.DocumentID))

	// Gone before the claim: a no-op, not an error.
	require.NoError(t, f.ingestor.ProcessOne(ctx, ref))
}

func TestStartProcessesEnqueuedDocuments(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())

	f.ingestor.Start(ctx, 2)
	f.ingestor.Enqueue(ref)

	require.Eventually(t, func() bool {
		doc, err := f.store.GetDocument(context.Background(), ref.OrganizationID, ref.DocumentID)
		return err == nil && doc.Processing == models.ProcessingCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweepPicksUpPendingDocuments(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never enqueued explicitly; only the sweep can find it.
	ref := f.addDocument(t, models.LifecyclePublished, "text/plain", policyText())
	f.ingestor.Start(ctx, 1)

	require.Eventually(t, func() bool {
		doc, err := f.store.GetDocument(context.Background(), ref.OrganizationID, ref.DocumentID)
		return err == nil && doc.Processing == models.ProcessingCompleted
	}, 5*time.Second, 10*time.Millisecond)
}
