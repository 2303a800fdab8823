// Package vectorstore 定义了向量索引存储的抽象，以及一个进程内实现。
package vectorstore

import (
	"context"
	"errors"
	"smarthomes-semantic/internal/model"
)

var (
	// ErrIndexNotFound 表示目标索引不存在。
	ErrIndexNotFound = errors.New("index not found")
	// ErrUnauthorized 表示存储拒绝了凭证（401/403），影响整个运行。
	ErrUnauthorized = errors.New("vector store rejected credentials")
)

// BulkItemResult 是 bulk 请求中单个文档的结果，顺序与提交顺序一致。
type BulkItemResult struct {
	DocumentID string
	Status     int
	// Error 为空表示写入成功。
	Error string
}

// Failed 判断该文档是否被拒绝。
func (r BulkItemResult) Failed() bool {
	return r.Error != ""
}

// Store 是向量索引的存储后端。Elasticsearch 和内存实现都满足该接口。
type Store interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	DeleteIndex(ctx context.Context, index string) error
	CreateIndex(ctx context.Context, schema model.IndexSchema) error
	// Bulk 以一次请求提交全部文档，返回逐文档结果。
	// 返回 error 表示整个请求失败（网络、鉴权等），此时没有逐文档结果。
	Bulk(ctx context.Context, index string, docs []model.IndexDocument) ([]BulkItemResult, error)
	Count(ctx context.Context, index string) (int64, error)
	// SimilaritySearch 按 cosine+1 得分降序返回至多 topK 条结果，同分按写入顺序。
	SimilaritySearch(ctx context.Context, index string, vector []float32, topK int) ([]model.SearchHit, error)
}
