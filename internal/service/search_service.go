// Package service 提供了语义检索与评论生成的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/embedding"
	"smarthomes-semantic/pkg/log"
	"strings"
)

// ErrEmptyQuery 表示查询文本为空。
var ErrEmptyQuery = errors.New("query text is empty")

// MaxTopK 与索引的 max_result_window 一致，超过时 ES 会拒绝整个查询。
const MaxTopK = 10000

// ErrTopKTooLarge 表示 topK 超过 MaxTopK。
var ErrTopKTooLarge = fmt.Errorf("topK must not exceed %d", MaxTopK)

// SearchService 接口定义了语义检索操作。
type SearchService interface {
	// Search 返回与 query 最相似的至多 topK 条文档，topK <= 0 时使用默认值。
	Search(ctx context.Context, kind model.Kind, query string, topK int) ([]model.SearchHit, error)
}

type searchService struct {
	embeddingClient embedding.Client
	store           vectorstore.Store
	indices         map[model.Kind]string
	defaultTopK     int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, store vectorstore.Store, productIndex, reviewIndex string, defaultTopK int) SearchService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &searchService{
		embeddingClient: embeddingClient,
		store:           store,
		indices: map[model.Kind]string{
			model.KindProduct: productIndex,
			model.KindReview:  reviewIndex,
		},
		defaultTopK: defaultTopK,
	}
}

// Search 执行向量检索：先向量化查询，再按 cosine+1 得分排序。
func (s *searchService) Search(ctx context.Context, kind model.Kind, query string, topK int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	index, ok := s.indices[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > MaxTopK {
		return nil, fmt.Errorf("%w: got %d", ErrTopKTooLarge, topK)
	}
	log.Infof("[SearchService] 开始检索, index: '%s', query: '%s', topK: %d", index, query, topK)

	// 1. 向量化查询，与入库使用同一重试策略
	vec, err := s.embeddingClient.Embed(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	// 2. 相似度检索
	hits, err := s.store.SimilaritySearch(ctx, index, vec.Values, topK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotFound) {
			log.Warnf("[SearchService] 索引 '%s' 不存在, 返回空结果", index)
			return []model.SearchHit{}, nil
		}
		log.Errorf("[SearchService] 检索失败: %v", err)
		return nil, fmt.Errorf("similarity search on %s failed: %w", index, err)
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}

	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(hits))
	return hits, nil
}
