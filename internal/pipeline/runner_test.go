package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"smarthomes-semantic/internal/extractor"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/embedding"
	"smarthomes-semantic/pkg/tasks"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records    []model.SourceRecord
	rejected   []model.RecordFailure
	productMap extractor.ProductMap
	err        error
}

func (s *fakeSource) FetchAll(_ context.Context, kind model.Kind) ([]model.SourceRecord, []model.RecordFailure, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	var out []model.SourceRecord
	for _, r := range s.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, s.rejected, nil
}

func (s *fakeSource) ProductMap(_ context.Context) (extractor.ProductMap, error) {
	return s.productMap, nil
}

// flakyStore 让前 bulkFailures 次 Bulk 调用失败。
type flakyStore struct {
	*vectorstore.MemoryStore
	bulkFailures int
	bulkErr      error
	bulkCalls    int
}

func (s *flakyStore) Bulk(ctx context.Context, index string, docs []model.IndexDocument) ([]vectorstore.BulkItemResult, error) {
	s.bulkCalls++
	if s.bulkCalls <= s.bulkFailures {
		return nil, s.bulkErr
	}
	return s.MemoryStore.Bulk(ctx, index, docs)
}

type recordingUploader struct {
	paths []string
	err   error
}

func (u *recordingUploader) UploadSnapshot(_ context.Context, path string) (string, error) {
	u.paths = append(u.paths, path)
	return "snapshots/" + path, u.err
}

func testRunConfig(t *testing.T) RunConfig {
	return RunConfig{
		ProductIndex:   "product_embeddings",
		ReviewIndex:    "product_reviews_embeddings",
		Dimension:      2,
		BatchSize:      5,
		Concurrency:    2,
		FlushAttempts:  1,
		FlushBaseDelay: time.Millisecond,
		SnapshotDir:    t.TempDir(),
	}
}

func TestIngest_Products(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		records:  products(12),
		rejected: []model.RecordFailure{{EntityID: 99, Reason: "invalid record: product 99: empty product model name"}},
	}
	emb := &fakeEmbedder{failOn: map[string]error{
		"Device xxx ": &embedding.Error{Kind: embedding.Permanent, StatusCode: http.StatusUnprocessableEntity, Err: errors.New("too long")},
	}}
	store := vectorstore.NewMemoryStore()
	uploader := &recordingUploader{}
	r := NewRunner(src, emb, store, testRunConfig(t), WithSnapshotUploader(uploader))

	report, err := r.Ingest(ctx, model.KindProduct, IngestOptions{Recreate: true})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "product_embeddings", report.Index)
	assert.Equal(t, 13, report.RecordsRead)
	assert.Equal(t, 11, report.EmbeddingsSucceeded)
	assert.Equal(t, 1, report.EmbeddingsFailed)
	assert.Equal(t, 11, report.Write.DocumentsWritten)
	assert.EqualValues(t, 11, report.Write.IndexCount)
	assert.Empty(t, report.Write.DocumentErrors)
	require.Len(t, report.Write.RecordErrors, 2)
	assert.EqualValues(t, 99, report.Write.RecordErrors[0].EntityID, "rejected records come first")
	assert.EqualValues(t, 3, report.Write.RecordErrors[1].EntityID)

	require.NotEmpty(t, report.SnapshotPath)
	_, err = os.Stat(report.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, []string{report.SnapshotPath}, uploader.paths)

	// 重建索引后再次运行，文档数不变
	report, err = r.Ingest(ctx, model.KindProduct, IngestOptions{Recreate: true})
	require.NoError(t, err)
	assert.EqualValues(t, 11, report.Write.IndexCount)
}

func TestIngest_ReviewsResolveProducts(t *testing.T) {
	src := &fakeSource{
		records: []model.SourceRecord{
			{EntityID: 1, Kind: model.KindReview, ProductModelName: "Echo Dot", Category: "Speakers", Price: 49.99, Rating: 5, ReviewText: "great"},
			{EntityID: 2, Kind: model.KindReview, ProductModelName: "Ghost", Category: "Misc", Price: 1, Rating: 1, ReviewText: "??"},
		},
		productMap: extractor.ProductMap{"Echo Dot": 4},
	}
	store := vectorstore.NewMemoryStore()
	cfg := testRunConfig(t)
	cfg.SnapshotDir = ""
	r := NewRunner(src, &fakeEmbedder{}, store, cfg)

	report, err := r.Ingest(context.Background(), model.KindReview, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "product_reviews_embeddings", report.Index)
	assert.Empty(t, report.SnapshotPath)
	assert.Equal(t, 1, report.Write.DocumentsWritten)
	assert.Equal(t, []model.RecordFailure{{EntityID: 2, Reason: "missing product mapping"}}, report.Write.RecordErrors)

	hits, err := store.SimilaritySearch(context.Background(), "product_reviews_embeddings", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.EqualValues(t, 4, hits[0].Document.ProductID)
}

func TestIngest_ExtractionFailure(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	r := NewRunner(&fakeSource{err: errors.New("connection refused")}, &fakeEmbedder{}, store, testRunConfig(t))

	report, err := r.Ingest(context.Background(), model.KindProduct, IngestOptions{})
	require.Error(t, err)
	phase, ok := PhaseOf(err)
	require.True(t, ok)
	assert.Equal(t, PhaseExtraction, phase)
	assert.NotNil(t, report)

	exists, _ := store.IndexExists(context.Background(), "product_embeddings")
	assert.False(t, exists, "nothing is touched after extraction fails")
}

func TestIngest_ProviderUnauthorizedWritesNothing(t *testing.T) {
	emb := &fakeEmbedder{failOn: map[string]error{
		"Device": &embedding.Error{Kind: embedding.Permanent, StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")},
	}}
	store := &flakyStore{MemoryStore: vectorstore.NewMemoryStore()}
	cfg := testRunConfig(t)
	r := NewRunner(&fakeSource{records: products(6)}, emb, store, cfg)

	_, err := r.Ingest(context.Background(), model.KindProduct, IngestOptions{})
	require.Error(t, err)
	phase, _ := PhaseOf(err)
	assert.Equal(t, PhaseEmbedding, phase)
	assert.ErrorIs(t, err, ErrProviderUnauthorized)
	assert.Equal(t, 0, store.bulkCalls)

	entries, _ := os.ReadDir(cfg.SnapshotDir)
	assert.Empty(t, entries, "no snapshot for an aborted run")
}

func TestIngest_FlushIsRetried(t *testing.T) {
	store := &flakyStore{MemoryStore: vectorstore.NewMemoryStore(), bulkFailures: 1, bulkErr: errors.New("connection reset")}
	cfg := testRunConfig(t)
	cfg.FlushAttempts = 2
	r := NewRunner(&fakeSource{records: products(3)}, &fakeEmbedder{}, store, cfg)

	report, err := r.Ingest(context.Background(), model.KindProduct, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.bulkCalls)
	assert.Equal(t, 3, report.Write.DocumentsWritten)
}

func TestIngest_FlushFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: vectorstore.NewMemoryStore(), bulkFailures: 10, bulkErr: errors.New("connection reset")}
	cfg := testRunConfig(t)
	cfg.FlushAttempts = 3
	r := NewRunner(&fakeSource{records: products(3)}, &fakeEmbedder{}, store, cfg)

	report, err := r.Ingest(context.Background(), model.KindProduct, IngestOptions{})
	require.Error(t, err)
	phase, _ := PhaseOf(err)
	assert.Equal(t, PhaseBulkWrite, phase)
	assert.Equal(t, 3, store.bulkCalls)
	assert.NotEmpty(t, report.SnapshotPath, "snapshot is written before the bulk write")
}

func TestIngest_StoreUnauthorizedIsNotRetried(t *testing.T) {
	store := &flakyStore{MemoryStore: vectorstore.NewMemoryStore(), bulkFailures: 10, bulkErr: vectorstore.ErrUnauthorized}
	cfg := testRunConfig(t)
	cfg.FlushAttempts = 3
	r := NewRunner(&fakeSource{records: products(3)}, &fakeEmbedder{}, store, cfg)

	_, err := r.Ingest(context.Background(), model.KindProduct, IngestOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrUnauthorized)
	assert.Equal(t, 1, store.bulkCalls)
}

func TestLoadSnapshot_RestoresWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	cfg := testRunConfig(t)
	first := NewRunner(&fakeSource{records: products(4)}, &fakeEmbedder{}, vectorstore.NewMemoryStore(), cfg)
	report, err := first.Ingest(ctx, model.KindProduct, IngestOptions{})
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	store := vectorstore.NewMemoryStore()
	second := NewRunner(&fakeSource{}, emb, store, cfg)
	loaded, err := second.LoadSnapshot(ctx, model.KindProduct, report.SnapshotPath, true)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Write.DocumentsWritten)
	assert.EqualValues(t, 4, loaded.Write.IndexCount)
	assert.EqualValues(t, 0, emb.calls)

	_, err = second.LoadSnapshot(ctx, model.KindProduct, report.SnapshotPath+".missing", false)
	phase, _ := PhaseOf(err)
	assert.Equal(t, PhaseSnapshot, phase)
}

func TestLoadSnapshot_InvalidEntriesBecomeRecordErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	body := `[
  {"productId": 1, "productInfo": {"name": "Lamp", "price": 19.9, "category": "lighting"}, "embedding": [0.1, 0.2]},
  {"productId": 2, "productInfo": {"name": "Plug", "price": 9.9, "category": "power"}, "embedding": [0.1, 0.2, 0.3]},
  {"productId": 3, "embedding": [0.3, 0.4]}
]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	store := vectorstore.NewMemoryStore()
	r := NewRunner(&fakeSource{}, &fakeEmbedder{}, store, testRunConfig(t))
	report, err := r.LoadSnapshot(context.Background(), model.KindProduct, path, true)
	require.NoError(t, err)

	assert.Equal(t, 3, report.RecordsRead)
	assert.Equal(t, 1, report.EmbeddingsSucceeded)
	assert.Equal(t, 2, report.EmbeddingsFailed)
	assert.Equal(t, 1, report.Write.DocumentsWritten)
	require.Len(t, report.Write.RecordErrors, 2)
	assert.EqualValues(t, 2, report.Write.RecordErrors[0].EntityID)
	assert.Contains(t, report.Write.RecordErrors[0].Reason, model.ErrDimensionMismatch.Error())
	assert.EqualValues(t, 3, report.Write.RecordErrors[1].EntityID)
	assert.Contains(t, report.Write.RecordErrors[1].Reason, "missing productInfo")

	n, err := store.Count(context.Background(), "product_embeddings")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestProcessor_RunsIngestTask(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	cfg := testRunConfig(t)
	p := NewProcessor(NewRunner(&fakeSource{records: products(2)}, &fakeEmbedder{}, store, cfg))

	require.NoError(t, p.Process(context.Background(), tasks.NewIngestTask("products", true)))
	n, err := store.Count(context.Background(), "product_embeddings")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.NoError(t, p.Process(context.Background(), tasks.NewIngestTask("orders", false)), "invalid kinds are dropped")

	failing := NewProcessor(NewRunner(&fakeSource{err: errors.New("db down")}, &fakeEmbedder{}, store, cfg))
	assert.Error(t, failing.Process(context.Background(), tasks.NewIngestTask("reviews", false)))
}
