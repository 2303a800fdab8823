package indexer

import (
	"context"
	"errors"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStore 包装 MemoryStore，按需注入错误。
type faultyStore struct {
	*vectorstore.MemoryStore
	existsErr error
	createErr error
	bulkErr   error
	countErr  error
	deletes   int
	creates   int
}

func (s *faultyStore) IndexExists(ctx context.Context, index string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.MemoryStore.IndexExists(ctx, index)
}

func (s *faultyStore) DeleteIndex(ctx context.Context, index string) error {
	s.deletes++
	return s.MemoryStore.DeleteIndex(ctx, index)
}

func (s *faultyStore) CreateIndex(ctx context.Context, schema model.IndexSchema) error {
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.CreateIndex(ctx, schema)
}

func (s *faultyStore) Bulk(ctx context.Context, index string, docs []model.IndexDocument) ([]vectorstore.BulkItemResult, error) {
	if s.bulkErr != nil {
		return nil, s.bulkErr
	}
	return s.MemoryStore.Bulk(ctx, index, docs)
}

func (s *faultyStore) Count(ctx context.Context, index string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.MemoryStore.Count(ctx, index)
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: vectorstore.NewMemoryStore()}
}

func reviewDoc(id int64, values ...float32) model.IndexDocument {
	rec := model.SourceRecord{EntityID: id, Kind: model.KindReview, ProductModelName: "Echo Dot", Rating: 4, ReviewText: "good"}
	return model.NewIndexDocument(rec, 42, model.EmbeddingVector{Dimension: len(values), Values: values})
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	store := newFaultyStore()
	m := NewManager(store)
	schema := model.ReviewSchema("product_reviews_embeddings", 2)

	require.NoError(t, m.EnsureIndex(context.Background(), schema, false))
	require.NoError(t, m.EnsureIndex(context.Background(), schema, false), "second call is a no-op")
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 0, store.deletes)
}

func TestEnsureIndex_RecreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	m := NewManager(store)
	schema := model.ReviewSchema("product_reviews_embeddings", 2)

	require.NoError(t, m.EnsureIndex(ctx, schema, true))
	_, err := store.Bulk(ctx, schema.Name, []model.IndexDocument{reviewDoc(1, 1, 0)})
	require.NoError(t, err)

	require.NoError(t, m.EnsureIndex(ctx, schema, true))
	require.NoError(t, m.EnsureIndex(ctx, schema, true))

	n, err := store.Count(ctx, schema.Name)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "recreate leaves an empty index")
	assert.Equal(t, 3, store.creates)
	assert.Equal(t, 2, store.deletes)
}

func TestEnsureIndex_FailuresAreFatal(t *testing.T) {
	schema := model.ProductSchema("product_embeddings", 2)

	store := newFaultyStore()
	store.existsErr = errors.New("connection refused")
	err := NewManager(store).EnsureIndex(context.Background(), schema, false)
	assert.ErrorIs(t, err, ErrIndexSetup)
	assert.Contains(t, err.Error(), "connection refused")

	store = newFaultyStore()
	store.createErr = errors.New("mapper_parsing_exception")
	err = NewManager(store).EnsureIndex(context.Background(), schema, true)
	assert.ErrorIs(t, err, ErrIndexSetup)

	err = NewManager(newFaultyStore()).EnsureIndex(context.Background(), model.ProductSchema("", 2), false)
	assert.ErrorIs(t, err, ErrIndexSetup)
}

func setupWriter(t *testing.T, store *faultyStore) *Writer {
	t.Helper()
	require.NoError(t, NewManager(store).EnsureIndex(context.Background(), model.ReviewSchema("reviews", 2), false))
	return NewWriter(store, "reviews")
}

func TestFlush_ReportsPartialFailures(t *testing.T) {
	store := newFaultyStore()
	w := setupWriter(t, store)

	results := []model.BatchResult{
		{
			Index:     0,
			Succeeded: []model.IndexDocument{reviewDoc(1, 1, 0), reviewDoc(2, 0, 1)},
			Failed:    []model.RecordFailure{{EntityID: 3, Reason: "missing product mapping"}},
		},
		{
			Index:     1,
			Succeeded: []model.IndexDocument{reviewDoc(4, 1, 2, 3), reviewDoc(5, 1, 1)},
		},
	}

	report, err := w.Flush(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, 3, report.DocumentsWritten)
	require.Len(t, report.DocumentErrors, 1)
	assert.EqualValues(t, 4, report.DocumentErrors[0].EntityID)
	assert.Equal(t, "review-4", report.DocumentErrors[0].DocumentID)
	require.Len(t, report.RecordErrors, 1)
	assert.EqualValues(t, 3, report.RecordErrors[0].EntityID)
	assert.EqualValues(t, 3, report.IndexCount)
}

func TestFlush_NothingToWrite(t *testing.T) {
	store := newFaultyStore()
	w := setupWriter(t, store)

	report, err := w.Flush(context.Background(), []model.BatchResult{{Failed: []model.RecordFailure{{EntityID: 1, Reason: "x"}}}})
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsWritten)
	assert.Len(t, report.RecordErrors, 1)
	assert.EqualValues(t, 0, report.IndexCount)
}

func TestFlush_TransportFailure(t *testing.T) {
	store := newFaultyStore()
	w := setupWriter(t, store)
	store.bulkErr = errors.New("connection reset by peer")

	report, err := w.Flush(context.Background(), []model.BatchResult{{Succeeded: []model.IndexDocument{reviewDoc(1, 1, 0)}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, report.DocumentsWritten)
}

func TestFlush_CountFailureIsNotFatal(t *testing.T) {
	store := newFaultyStore()
	w := setupWriter(t, store)
	store.countErr = errors.New("timeout")

	report, err := w.Flush(context.Background(), []model.BatchResult{{Succeeded: []model.IndexDocument{reviewDoc(1, 1, 0)}}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentsWritten)
	assert.EqualValues(t, -1, report.IndexCount)
}
