package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"smarthomes-semantic/internal/model"
	"strings"
	"time"
)

// 毫秒只能跟在 '.' 后面，格式化后再把 '.' 换成 '-'，得到 2024-08-01T12-30-45-123Z。
const snapshotTimeFormat = "2006-01-02T15-04-05.000Z"

// SnapshotFileName 返回快照文件名，例如 product_embeddings_2024-08-01T12-30-45-123Z.json。
func SnapshotFileName(kind model.Kind, now time.Time) string {
	stamp := strings.Replace(now.UTC().Format(snapshotTimeFormat), ".", "-", 1)
	return fmt.Sprintf("%s_embeddings_%s.json", kind, stamp)
}

// WriteSnapshot 将生成的向量和元数据写入 dir 下的快照文件，返回文件路径。
func WriteSnapshot(dir string, kind model.Kind, results []model.BatchResult, now time.Time) (string, error) {
	entries := make([]model.EsDocument, 0)
	for _, r := range results {
		for _, d := range r.Succeeded {
			entries = append(entries, d.ToEsDocument())
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, SnapshotFileName(kind, now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot 读取快照文件并还原为索引文档。
// 向量维度不符或缺少元数据的条目不会被还原，作为记录级失败返回；只有文件本身无法读取或解析时返回 error。
func LoadSnapshot(path string, kind model.Kind, dimension int) ([]model.IndexDocument, []model.RecordFailure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var entries []model.EsDocument
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	docs := make([]model.IndexDocument, 0, len(entries))
	var failures []model.RecordFailure
	for i, e := range entries {
		doc, err := e.ToIndexDocument(kind, dimension)
		if err != nil {
			entityID := e.ProductID
			if kind == model.KindReview {
				entityID = e.EntityID
			}
			failures = append(failures, model.RecordFailure{
				EntityID: entityID,
				Reason:   fmt.Sprintf("snapshot entry %d: %v", i, err),
			})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, failures, nil
}
