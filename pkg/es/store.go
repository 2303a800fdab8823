package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// cosineScript 与 ES dense_vector 的 cosine 相似度一致，+1.0 保证得分非负。
const cosineScript = "cosineSimilarity(params.query_vector, 'embedding') + 1.0"

// Store 是基于 Elasticsearch 的 vectorstore.Store 实现。
type Store struct {
	client *elasticsearch.Client
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore 使用已创建的客户端构造 Store。
func NewStore(client *elasticsearch.Client) *Store {
	return &Store{client: client}
}

// IndexExists 检查索引是否存在。200 为存在，404 为不存在，其他状态码视为错误。
func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ESStore] 检查索引是否存在时出错: %v", err)
		return false, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError("check index "+index, res)
}

// DeleteIndex 删除索引。
func (s *Store) DeleteIndex(ctx context.Context, index string) error {
	res, err := s.client.Indices.Delete([]string{index}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		log.Errorf("[ESStore] 删除索引 '%s' 失败: %v", index, err)
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete %s: %w", index, vectorstore.ErrIndexNotFound)
	}
	if res.IsError() {
		return responseError("delete index "+index, res)
	}
	log.Infof("[ESStore] 索引 '%s' 已删除", index)
	return nil
}

// CreateIndex 按 schema 创建索引，包含 settings 和 dense_vector 映射。
func (s *Store) CreateIndex(ctx context.Context, schema model.IndexSchema) error {
	body, err := json.Marshal(schema.Body())
	if err != nil {
		return fmt.Errorf("failed to marshal index body: %w", err)
	}

	res, err := s.client.Indices.Create(
		schema.Name,
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ESStore] 创建索引 '%s' 失败: %v", schema.Name, err)
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("create index "+schema.Name, res)
	}
	log.Infof("[ESStore] 索引 '%s' 创建成功, 维度: %d", schema.Name, schema.Dimension)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk 以 NDJSON 格式一次提交全部文档，并按位置解析每个文档的结果。
func (s *Store) Bulk(ctx context.Context, index string, docs []model.IndexDocument) ([]vectorstore.BulkItemResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": index, "_id": d.ID()},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("failed to encode bulk meta: %w", err)
		}
		if err := enc.Encode(d.ToEsDocument()); err != nil {
			return nil, fmt.Errorf("failed to encode document %s: %w", d.ID(), err)
		}
	}

	req := esapi.BulkRequest{
		Index:   index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		log.Errorf("[ESStore] bulk 请求失败: %v", err)
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("bulk "+index, res)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if len(parsed.Items) != len(docs) {
		return nil, fmt.Errorf("bulk response has %d items for %d documents", len(parsed.Items), len(docs))
	}

	results := make([]vectorstore.BulkItemResult, len(docs))
	for i, item := range parsed.Items {
		r := vectorstore.BulkItemResult{DocumentID: docs[i].ID()}
		for _, op := range item {
			r.Status = op.Status
			if op.ID != "" {
				r.DocumentID = op.ID
			}
			if op.Error != nil {
				r.Error = op.Error.Type + ": " + op.Error.Reason
			}
		}
		results[i] = r
	}
	return results, nil
}

// Count 返回索引中的文档数量。
func (s *Store) Count(ctx context.Context, index string) (int64, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(index),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("count %s: %w", index, vectorstore.ErrIndexNotFound)
	}
	if res.IsError() {
		return 0, responseError("count "+index, res)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// SimilaritySearch 使用 script_score 对全部文档计算 cosine+1 得分。
func (s *Store) SimilaritySearch(ctx context.Context, index string, vector []float32, topK int) ([]model.SearchHit, error) {
	query := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{"match_all": map[string]interface{}{}},
				"script": map[string]interface{}{
					"source": cosineScript,
					"params": map[string]interface{}{"query_vector": vector},
				},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[ESStore] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("search %s: %w", index, vectorstore.ErrIndexNotFound)
	}
	if res.IsError() {
		return nil, responseError("search "+index, res)
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string           `json:"_id"`
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{DocumentID: h.ID, Document: h.Source, Score: h.Score})
	}
	// ES 已按得分排序；这里再做一次稳定排序，保证同分时按返回顺序
	return vectorstore.RankHits(hits, topK), nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	log.Errorf("[ESStore] %s 时 Elasticsearch 返回错误, status: %s, body: %s", op, res.Status(), string(body))
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w (status %d)", op, vectorstore.ErrUnauthorized, res.StatusCode)
	}
	return fmt.Errorf("%s: elasticsearch returned %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}
