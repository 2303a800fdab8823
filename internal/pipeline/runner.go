package pipeline

import (
	"context"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/internal/extractor"
	"smarthomes-semantic/internal/indexer"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/embedding"
	"smarthomes-semantic/pkg/log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Source 是入库运行的数据来源，由 extractor.Extractor 实现。
type Source interface {
	FetchAll(ctx context.Context, kind model.Kind) ([]model.SourceRecord, []model.RecordFailure, error)
	ProductMap(ctx context.Context) (extractor.ProductMap, error)
}

// SnapshotUploader 将快照文件归档到对象存储，返回对象名。
type SnapshotUploader interface {
	UploadSnapshot(ctx context.Context, path string) (string, error)
}

// RunConfig 是一次入库运行的参数。
type RunConfig struct {
	ProductIndex   string
	ReviewIndex    string
	Dimension      int
	BatchSize      int
	Concurrency    int
	BatchDelay     time.Duration
	FlushAttempts  int
	FlushBaseDelay time.Duration
	SnapshotDir    string
}

// RunConfigFrom 从全局配置提取运行参数。
func RunConfigFrom(cfg *config.Config) RunConfig {
	return RunConfig{
		ProductIndex:   cfg.Elasticsearch.ProductIndex,
		ReviewIndex:    cfg.Elasticsearch.ReviewIndex,
		Dimension:      cfg.Embedding.Dimensions,
		BatchSize:      cfg.Pipeline.BatchSize,
		Concurrency:    cfg.Pipeline.Concurrency,
		BatchDelay:     cfg.Pipeline.BatchDelay,
		FlushAttempts:  cfg.Pipeline.FlushAttempts,
		FlushBaseDelay: cfg.Embedding.BaseDelay,
		SnapshotDir:    cfg.Pipeline.SnapshotDir,
	}
}

// IngestOptions 是单次运行可覆盖的参数，零值表示使用 RunConfig。
type IngestOptions struct {
	Recreate    bool
	BatchSize   int
	Concurrency int
}

// Runner 串联一次完整的入库运行：抽取、建索引、向量化、快照、写入。
type Runner struct {
	source   Source
	embedder embedding.Client
	store    vectorstore.Store
	manager  *indexer.Manager
	uploader SnapshotUploader
	cfg      RunConfig
	now      func() time.Time
}

// RunnerOption 配置 Runner。
type RunnerOption func(*Runner)

// WithSnapshotUploader 启用快照归档。
func WithSnapshotUploader(u SnapshotUploader) RunnerOption {
	return func(r *Runner) { r.uploader = u }
}

// NewRunner 创建一个新的 Runner。所有客户端由调用方创建后注入。
func NewRunner(source Source, embedder embedding.Client, store vectorstore.Store, cfg RunConfig, opts ...RunnerOption) *Runner {
	if cfg.Dimension <= 0 {
		cfg.Dimension = model.DefaultDimension
	}
	if cfg.FlushAttempts <= 0 {
		cfg.FlushAttempts = 1
	}
	r := &Runner{
		source:   source,
		embedder: embedder,
		store:    store,
		manager:  indexer.NewManager(store),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IndexFor 返回 kind 对应的索引名。
func (r *Runner) IndexFor(kind model.Kind) string {
	if kind == model.KindReview {
		return r.cfg.ReviewIndex
	}
	return r.cfg.ProductIndex
}

// Ingest 对 kind 执行一次完整的入库运行。
// 返回的报告总是非 nil；运行级失败以 *PhaseError 返回，此时不会写入任何文档。
func (r *Runner) Ingest(ctx context.Context, kind model.Kind, opts IngestOptions) (*model.RunReport, error) {
	start := r.now()
	report := &model.RunReport{RunID: uuid.NewString(), Kind: kind, Index: r.IndexFor(kind)}
	report.Write.IndexCount = -1
	defer func() { report.Duration = time.Since(start) }()

	batchSize, concurrency := r.cfg.BatchSize, r.cfg.Concurrency
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	log.Infof("[Runner] 运行 %s 开始: kind=%s, index=%s, recreate=%t", report.RunID, kind, report.Index, opts.Recreate)

	// 1. 抽取
	records, rejected, err := r.source.FetchAll(ctx, kind)
	if err != nil {
		return report, phaseError(PhaseExtraction, err)
	}
	report.RecordsRead = len(records) + len(rejected)

	var resolver Resolver = productResolver{}
	if kind == model.KindReview {
		productMap, err := r.source.ProductMap(ctx)
		if err != nil {
			return report, phaseError(PhaseExtraction, err)
		}
		resolver = productMap
	}

	// 2. 准备索引
	schema := model.SchemaFor(kind, report.Index, r.cfg.Dimension)
	if err := r.manager.EnsureIndex(ctx, schema, opts.Recreate); err != nil {
		return report, phaseError(PhaseIndexSetup, err)
	}

	// 3. 向量化
	orch := NewOrchestrator(r.embedder, WithResolver(resolver), WithBatchDelay(r.cfg.BatchDelay))
	results, err := orch.Run(ctx, records, batchSize, concurrency)
	if err != nil {
		return report, phaseError(PhaseEmbedding, err)
	}
	for _, res := range results {
		report.EmbeddingsSucceeded += len(res.Succeeded)
		report.EmbeddingsFailed += len(res.Failed)
	}

	// 4. 快照
	if r.cfg.SnapshotDir != "" {
		path, err := WriteSnapshot(r.cfg.SnapshotDir, kind, results, r.now())
		if err != nil {
			return report, phaseError(PhaseSnapshot, err)
		}
		report.SnapshotPath = path
		log.Infof("[Runner] 向量快照已保存到 %s", path)
		r.archive(ctx, path)
	}

	// 5. 写入
	writeReport, err := r.flush(ctx, report.Index, results)
	writeReport.RecordErrors = append(append([]model.RecordFailure(nil), rejected...), writeReport.RecordErrors...)
	report.Write = writeReport
	if err != nil {
		return report, phaseError(PhaseBulkWrite, err)
	}

	log.Infof("[Runner] 运行 %s 完成: 读取 %d, 向量化成功 %d, 失败 %d, 写入 %d, 拒绝 %d",
		report.RunID, report.RecordsRead, report.EmbeddingsSucceeded, report.EmbeddingsFailed,
		writeReport.DocumentsWritten, len(writeReport.DocumentErrors))
	return report, nil
}

// LoadSnapshot 把快照文件中的向量直接写入索引，不调用 embedding 服务。
func (r *Runner) LoadSnapshot(ctx context.Context, kind model.Kind, path string, recreate bool) (*model.RunReport, error) {
	start := r.now()
	report := &model.RunReport{RunID: uuid.NewString(), Kind: kind, Index: r.IndexFor(kind), SnapshotPath: path}
	report.Write.IndexCount = -1
	defer func() { report.Duration = time.Since(start) }()

	docs, failures, err := LoadSnapshot(path, kind, r.cfg.Dimension)
	if err != nil {
		return report, phaseError(PhaseSnapshot, err)
	}
	report.RecordsRead = len(docs) + len(failures)
	report.EmbeddingsSucceeded = len(docs)
	report.EmbeddingsFailed = len(failures)
	log.Infof("[Runner] 从快照 %s 读取 %d 个文档, 无效条目 %d 个", path, len(docs), len(failures))
	for _, f := range failures {
		log.Warnf("[Runner] 快照条目被拒绝, id: %d, reason: %s", f.EntityID, f.Reason)
	}

	if err := r.manager.EnsureIndex(ctx, model.SchemaFor(kind, report.Index, r.cfg.Dimension), recreate); err != nil {
		return report, phaseError(PhaseIndexSetup, err)
	}

	writeReport, err := r.flush(ctx, report.Index, []model.BatchResult{{Succeeded: docs, Failed: failures}})
	report.Write = writeReport
	if err != nil {
		return report, phaseError(PhaseBulkWrite, err)
	}
	return report, nil
}

// flush 调用 Writer.Flush，整体失败时按 FlushAttempts 以指数退避重试。凭证错误不重试。
func (r *Runner) flush(ctx context.Context, index string, results []model.BatchResult) (model.WriteReport, error) {
	writer := indexer.NewWriter(r.store, index)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.FlushBaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() (model.WriteReport, error) {
		attempt++
		wr, err := writer.Flush(ctx, results)
		if err != nil && errors.Is(err, vectorstore.ErrUnauthorized) {
			return wr, backoff.Permanent(err)
		}
		return wr, err
	}
	notify := func(err error, next time.Duration) {
		log.Warnf("[Runner] 第 %d 次写入失败, %s 后重试: %v", attempt, next, err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.FlushAttempts-1)), ctx)
	wr, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return wr, fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}
	return wr, nil
}

func (r *Runner) archive(ctx context.Context, path string) {
	if r.uploader == nil {
		return
	}
	object, err := r.uploader.UploadSnapshot(ctx, path)
	if err != nil {
		log.Warnf("[Runner] 快照上传失败, 本地文件仍保留在 %s: %v", path, err)
		return
	}
	log.Infof("[Runner] 快照已上传: %s", object)
}
