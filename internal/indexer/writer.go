package indexer

import (
	"context"
	"fmt"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/metrics"
)

// Writer 把批次结果以一次 bulk 请求写入索引，并给出逐文档的写入报告。
type Writer struct {
	store vectorstore.Store
	index string
}

// NewWriter 创建写入 index 的 Writer。
func NewWriter(store vectorstore.Store, index string) *Writer {
	return &Writer{store: store, index: index}
}

// Index 返回目标索引名。
func (w *Writer) Index() string {
	return w.index
}

// Flush 提交 results 中全部成功的文档。
// 被拒绝的文档记入 DocumentErrors，向量化阶段的失败原样记入 RecordErrors。
// 整个请求失败（网络、鉴权）时返回 error，此时 DocumentsWritten 为 0。
func (w *Writer) Flush(ctx context.Context, results []model.BatchResult) (model.WriteReport, error) {
	report := model.WriteReport{IndexCount: -1}
	var docs []model.IndexDocument
	for _, r := range results {
		docs = append(docs, r.Succeeded...)
		report.RecordErrors = append(report.RecordErrors, r.Failed...)
	}

	if len(docs) > 0 {
		log.Infof("[BulkWriter] 开始向索引 '%s' 批量写入 %d 个文档", w.index, len(docs))
		items, err := w.store.Bulk(ctx, w.index, docs)
		if err != nil {
			log.Errorf("[BulkWriter] 批量写入失败: %v", err)
			return report, fmt.Errorf("bulk write to %s: %w", w.index, err)
		}
		for i, item := range items {
			if !item.Failed() {
				report.DocumentsWritten++
				continue
			}
			var entityID int64
			if i < len(docs) {
				entityID = docs[i].SourceEntityID
			}
			report.DocumentErrors = append(report.DocumentErrors, model.DocumentError{
				EntityID:   entityID,
				DocumentID: item.DocumentID,
				Status:     item.Status,
				Reason:     item.Error,
			})
			log.Warnf("[BulkWriter] 文档 %s 被拒绝, status: %d, reason: %s", item.DocumentID, item.Status, item.Error)
		}
		metrics.DocumentsWritten.WithLabelValues(w.index).Add(float64(report.DocumentsWritten))
		metrics.DocumentsRejected.WithLabelValues(w.index).Add(float64(len(report.DocumentErrors)))
	} else {
		log.Warnf("[BulkWriter] 没有可写入的文档, 跳过 bulk 请求")
	}

	count, err := w.store.Count(ctx, w.index)
	if err != nil {
		log.Warnf("[BulkWriter] 获取索引 '%s' 文档数失败: %v", w.index, err)
	} else {
		report.IndexCount = count
		log.Infof("[BulkWriter] 索引 '%s' 当前文档总数: %d", w.index, count)
	}

	log.Infof("[BulkWriter] 写入完成: 成功 %d, 拒绝 %d, 记录失败 %d",
		report.DocumentsWritten, len(report.DocumentErrors), len(report.RecordErrors))
	return report, nil
}
