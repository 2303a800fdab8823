package vectorstore

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"smarthomes-semantic/internal/model"
	"sort"
	"sync"
)

type memoryIndex struct {
	schema model.IndexSchema
	docs   []memoryDoc
	pos    map[string]int
}

type memoryDoc struct {
	id  string
	doc model.EsDocument
}

// MemoryStore 是进程内的 Store 实现，用于测试和不依赖 Elasticsearch 的本地运行。
// 评分方式与 ES 的 script_score 查询一致：cosineSimilarity + 1.0。
type MemoryStore struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
}

// NewMemoryStore 创建一个空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indices: make(map[string]*memoryIndex)}
}

func (s *MemoryStore) IndexExists(_ context.Context, index string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[index]
	return ok, nil
}

func (s *MemoryStore) DeleteIndex(_ context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[index]; !ok {
		return fmt.Errorf("delete %s: %w", index, ErrIndexNotFound)
	}
	delete(s.indices, index)
	return nil
}

func (s *MemoryStore) CreateIndex(_ context.Context, schema model.IndexSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[schema.Name]; ok {
		return fmt.Errorf("index %s already exists", schema.Name)
	}
	if schema.Dimension <= 0 {
		return fmt.Errorf("index %s: invalid vector dimension %d", schema.Name, schema.Dimension)
	}
	s.indices[schema.Name] = &memoryIndex{schema: schema, pos: make(map[string]int)}
	return nil
}

// Bulk 写入文档。ID 已存在时原位覆盖，保留最初的写入顺序。
func (s *MemoryStore) Bulk(_ context.Context, index string, docs []model.IndexDocument) ([]BulkItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indices[index]
	if !ok {
		return nil, fmt.Errorf("bulk %s: %w", index, ErrIndexNotFound)
	}

	results := make([]BulkItemResult, 0, len(docs))
	for _, d := range docs {
		id := d.ID()
		if len(d.Embedding.Values) != idx.schema.Dimension {
			results = append(results, BulkItemResult{
				DocumentID: id,
				Status:     http.StatusBadRequest,
				Error: fmt.Sprintf("document_parsing_exception: the [dims] of embedding is %d, but the vector has %d dimensions",
					idx.schema.Dimension, len(d.Embedding.Values)),
			})
			continue
		}
		entry := memoryDoc{id: id, doc: d.ToEsDocument()}
		if i, exists := idx.pos[id]; exists {
			idx.docs[i] = entry
			results = append(results, BulkItemResult{DocumentID: id, Status: http.StatusOK})
			continue
		}
		idx.pos[id] = len(idx.docs)
		idx.docs = append(idx.docs, entry)
		results = append(results, BulkItemResult{DocumentID: id, Status: http.StatusCreated})
	}
	return results, nil
}

func (s *MemoryStore) Count(_ context.Context, index string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[index]
	if !ok {
		return 0, fmt.Errorf("count %s: %w", index, ErrIndexNotFound)
	}
	return int64(len(idx.docs)), nil
}

func (s *MemoryStore) SimilaritySearch(_ context.Context, index string, vector []float32, topK int) ([]model.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[index]
	if !ok {
		return nil, fmt.Errorf("search %s: %w", index, ErrIndexNotFound)
	}
	if len(vector) != idx.schema.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d values, index %s expects %d",
			model.ErrDimensionMismatch, len(vector), index, idx.schema.Dimension)
	}

	hits := make([]model.SearchHit, 0, len(idx.docs))
	for _, d := range idx.docs {
		hits = append(hits, model.SearchHit{
			DocumentID: d.id,
			Document:   d.doc,
			Score:      CosineSimilarity(vector, d.doc.Embedding) + 1.0,
		})
	}
	return RankHits(hits, topK), nil
}

// RankHits 按得分稳定降序排序并截取前 topK 条。topK <= 0 时返回全部。
func RankHits(hits []model.SearchHit, topK int) []model.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// CosineSimilarity 计算两个向量的余弦相似度，任一向量为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
