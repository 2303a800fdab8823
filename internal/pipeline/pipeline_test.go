package pipeline

import (
	"context"
	"errors"
	"net/http"
	"smarthomes-semantic/internal/extractor"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/pkg/embedding"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 根据文本生成确定性的二维向量，并统计并发度。
type fakeEmbedder struct {
	mu          sync.Mutex
	calls       int32
	inFlight    int32
	maxInFlight int32
	delay       time.Duration
	// failOn 中的子串出现在文本中时返回对应错误
	failOn map[string]error
	texts  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (model.EmbeddingVector, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, n) {
			break
		}
	}

	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return model.EmbeddingVector{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	for sub, err := range f.failOn {
		if strings.Contains(text, sub) {
			return model.EmbeddingVector{}, err
		}
	}
	return model.EmbeddingVector{Dimension: 2, Values: []float32{float32(len(text)), 1}}, nil
}

func products(n int) []model.SourceRecord {
	records := make([]model.SourceRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, model.SourceRecord{
			EntityID:         int64(i),
			Kind:             model.KindProduct,
			ProductModelName: "Device " + strings.Repeat("x", i),
			Price:            float64(i) * 10,
			Category:         "Lighting",
			Description:      "smart device",
		})
	}
	return records
}

func TestPartition(t *testing.T) {
	batches := partition(products(12), 5)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].records, 5)
	assert.Len(t, batches[1].records, 5)
	assert.Len(t, batches[2].records, 2)

	var ids []int64
	for i, b := range batches {
		assert.Equal(t, i, b.index)
		for _, r := range b.records {
			ids = append(ids, r.EntityID)
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, ids, "batches are contiguous and in order")

	assert.Empty(t, partition(nil, 5))
}

func TestRun_EveryRecordLandsExactlyOnce(t *testing.T) {
	emb := &fakeEmbedder{failOn: map[string]error{
		"Device xxxxxxx ": &embedding.Error{Kind: embedding.Permanent, StatusCode: http.StatusBadRequest, Err: errors.New("bad input")},
	}}
	o := NewOrchestrator(emb)

	results, err := o.Run(context.Background(), products(12), 5, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	seen := map[int64]int{}
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		for _, d := range r.Succeeded {
			seen[d.SourceEntityID]++
			assert.Equal(t, d.SourceEntityID, d.ProductID)
			assert.True(t, d.Embedding.Valid())
		}
		for _, f := range r.Failed {
			seen[f.EntityID]++
		}
	}
	assert.Len(t, seen, 12)
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %d", id)
	}
	require.Len(t, results[1].Failed, 1)
	assert.EqualValues(t, 7, results[1].Failed[0].EntityID)
	assert.Contains(t, results[1].Failed[0].Reason, "bad input")
	assert.EqualValues(t, 12, emb.calls)
}

func TestRun_BoundsInFlightBatches(t *testing.T) {
	emb := &fakeEmbedder{delay: 10 * time.Millisecond}
	o := NewOrchestrator(emb)

	results, err := o.Run(context.Background(), products(8), 1, 2)
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&emb.maxInFlight), int32(2))
}

func TestRun_InvalidArguments(t *testing.T) {
	o := NewOrchestrator(&fakeEmbedder{})
	_, err := o.Run(context.Background(), products(1), 0, 1)
	assert.Error(t, err)
	_, err = o.Run(context.Background(), products(1), 1, 0)
	assert.Error(t, err)

	results, err := o.Run(context.Background(), nil, 5, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRun_AuthFailureAbortsRun(t *testing.T) {
	emb := &fakeEmbedder{failOn: map[string]error{
		"Device": &embedding.Error{Kind: embedding.Permanent, StatusCode: http.StatusUnauthorized, Err: errors.New("invalid api key")},
	}}
	o := NewOrchestrator(emb)

	_, err := o.Run(context.Background(), products(10), 5, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnauthorized)
	assert.LessOrEqual(t, atomic.LoadInt32(&emb.calls), int32(5), "later batches are not started")
}

func TestRun_Cancellation(t *testing.T) {
	emb := &fakeEmbedder{delay: 20 * time.Millisecond}
	o := NewOrchestrator(emb, WithBatchDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	results, err := o.Run(ctx, products(10), 5, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "batch delay is interrupted by cancellation")
	assert.LessOrEqual(t, len(results), 1)
}

func TestRun_AppliesBatchDelay(t *testing.T) {
	const delay = 50 * time.Millisecond
	emb := &fakeEmbedder{}
	o := NewOrchestrator(emb, WithBatchDelay(delay))

	start := time.Now()
	results, err := o.Run(context.Background(), products(3), 1, 1)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.GreaterOrEqual(t, elapsed, 3*delay, "each batch waits for the delay before the worker takes the next one")

	fast := NewOrchestrator(&fakeEmbedder{})
	start = time.Now()
	_, err = fast.Run(context.Background(), products(3), 1, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), elapsed)
}

func TestRun_MissingProductMappingFailsOnlyThatReview(t *testing.T) {
	reviews := []model.SourceRecord{
		{EntityID: 1, Kind: model.KindReview, ProductModelName: "Echo Dot", Category: "Speakers", Price: 49.99, Rating: 5, ReviewText: "great"},
		{EntityID: 2, Kind: model.KindReview, ProductModelName: "Unknown Gadget", Category: "Misc", Price: 5, Rating: 2, ReviewText: "meh"},
		{EntityID: 3, Kind: model.KindReview, ProductModelName: "Nest Hub", Category: "Displays", Price: 99, Rating: 4, ReviewText: "nice"},
	}
	emb := &fakeEmbedder{}
	o := NewOrchestrator(emb, WithResolver(extractor.ProductMap{"Echo Dot": 10, "Nest Hub": 11}))

	results, err := o.Run(context.Background(), reviews, 5, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Succeeded, 2)
	require.Len(t, results[0].Failed, 1)

	assert.EqualValues(t, 10, results[0].Succeeded[0].ProductID)
	assert.EqualValues(t, 11, results[0].Succeeded[1].ProductID)
	assert.Equal(t, model.RecordFailure{EntityID: 2, Reason: "missing product mapping"}, results[0].Failed[0])
	assert.EqualValues(t, 2, emb.calls, "unmapped reviews are never embedded")
}

func TestRun_UsesComposedText(t *testing.T) {
	emb := &fakeEmbedder{}
	rec := model.SourceRecord{EntityID: 1, Kind: model.KindProduct, ProductModelName: "Nest Thermostat", Price: 150, Category: "Thermostats", Description: "Saves energy"}

	_, err := NewOrchestrator(emb).Run(context.Background(), []model.SourceRecord{rec}, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nest Thermostat 150.00 Thermostats Saves energy"}, emb.texts)
}
