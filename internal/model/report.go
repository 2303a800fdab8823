package model

import "time"

// RecordFailure 记录一条源记录在向量化阶段的永久失败。
type RecordFailure struct {
	EntityID int64  `json:"entityId"`
	Reason   string `json:"reason"`
}

// BatchResult 是单个批次的处理结果。每条输入记录恰好出现在 Succeeded 或 Failed 之一中。
type BatchResult struct {
	Index     int             `json:"index"`
	Succeeded []IndexDocument `json:"-"`
	Failed    []RecordFailure `json:"failed"`
}

// DocumentError 是 bulk 写入时被 ES 拒绝的单个文档。
type DocumentError struct {
	EntityID   int64  `json:"entityId"`
	DocumentID string `json:"documentId"`
	Status     int    `json:"status"`
	Reason     string `json:"reason"`
}

// WriteReport 是一次 flush 的权威结果：哪些文档真正落入了索引。
type WriteReport struct {
	DocumentsWritten int             `json:"documentsWritten"`
	DocumentErrors   []DocumentError `json:"documentErrors"`
	RecordErrors     []RecordFailure `json:"recordErrors"`
	// IndexCount 是写入后索引中的文档总数，-1 表示未能获取。
	IndexCount int64 `json:"indexCount"`
}

// RunReport 汇总一次完整入库运行的计数，供 CLI 和日志输出。
type RunReport struct {
	RunID               string        `json:"runId"`
	Kind                Kind          `json:"kind"`
	Index               string        `json:"index"`
	RecordsRead         int           `json:"recordsRead"`
	EmbeddingsSucceeded int           `json:"embeddingsSucceeded"`
	EmbeddingsFailed    int           `json:"embeddingsFailed"`
	Write               WriteReport   `json:"write"`
	SnapshotPath        string        `json:"snapshotPath,omitempty"`
	Duration            time.Duration `json:"duration"`
}

// SearchHit 是一条语义检索结果。
type SearchHit struct {
	DocumentID string
	Document   EsDocument
	Score      float64
}

// Flatten 按检索接口的输出格式展开：元数据字段 + similarity_score。
func (h SearchHit) Flatten() map[string]interface{} {
	m := h.Document.Metadata()
	m["similarity_score"] = h.Score
	return m
}
