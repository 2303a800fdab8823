// Package pipeline 定义了商品与评论向量化入库的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/extractor"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/pkg/embedding"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/metrics"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

// ErrProviderUnauthorized 表示 embedding 服务拒绝了凭证，继续运行没有意义。
var ErrProviderUnauthorized = errors.New("embedding provider rejected credentials")

// Resolver 返回记录所属的 ProductID。extractor.ProductMap 满足该接口。
type Resolver interface {
	Resolve(rec model.SourceRecord) (int64, error)
}

// productResolver 用于商品：ProductID 即自身 ID，评论一律视为找不到映射。
type productResolver struct{}

func (productResolver) Resolve(rec model.SourceRecord) (int64, error) {
	if rec.Kind == model.KindProduct {
		return rec.EntityID, nil
	}
	return 0, extractor.ErrMissingProductMapping
}

// Orchestrator 将记录切分为连续的批次，用固定大小的 worker pool 并发处理，
// 批内每条记录独立向量化，结果由单一的收集协程汇总。
type Orchestrator struct {
	embedder   embedding.Client
	resolver   Resolver
	compose    func(model.SourceRecord) string
	batchDelay time.Duration
}

// OrchestratorOption 配置 Orchestrator。
type OrchestratorOption func(*Orchestrator)

// WithResolver 指定评论的商品映射。
func WithResolver(r Resolver) OrchestratorOption {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithBatchDelay 指定每个批次完成后的固定等待时间。
func WithBatchDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.batchDelay = d }
}

// WithComposer 替换文本拼接函数。
func WithComposer(f func(model.SourceRecord) string) OrchestratorOption {
	return func(o *Orchestrator) { o.compose = f }
}

// NewOrchestrator 创建一个新的 Orchestrator。
func NewOrchestrator(embedder embedding.Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		embedder: embedder,
		resolver: productResolver{},
		compose:  extractor.Compose,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type batch struct {
	index   int
	records []model.SourceRecord
}

// partition 按 batchSize 切分为连续的批次，最后一批可能不满。
func partition(records []model.SourceRecord, batchSize int) []batch {
	batches := make([]batch, 0, (len(records)+batchSize-1)/batchSize)
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, batch{index: len(batches), records: records[start:end]})
	}
	return batches
}

// Run 处理全部记录，返回按批次顺序排列的结果。
// 同一时刻最多 concurrency 个批次在处理中；单条记录失败只记入该批次的 Failed。
// 鉴权失败或 ctx 取消时中止运行，返回已完成批次的结果和错误，调用方不应写入这些结果。
func (o *Orchestrator) Run(ctx context.Context, records []model.SourceRecord, batchSize, concurrency int) ([]model.BatchResult, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("invalid concurrency %d", concurrency)
	}
	batches := partition(records, batchSize)
	if len(batches) == 0 {
		return []model.BatchResult{}, nil
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	// 单一收集协程，结果按批次序号落位
	resultsCh := make(chan model.BatchResult, concurrency)
	collected := make([]model.BatchResult, len(batches))
	done := make([]bool, len(batches))
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for r := range resultsCh {
			collected[r.Index] = r
			done[r.Index] = true
		}
	}()

	log.Infof("[Orchestrator] 开始处理 %d 条记录, 共 %d 个批次, batchSize=%d, concurrency=%d",
		len(records), len(batches), batchSize, concurrency)

	var wg sync.WaitGroup
	for _, b := range batches {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if runCtx.Err() != nil {
				return
			}
			log.Infof("[Orchestrator] 处理批次 %d/%d (%d 条)", b.index+1, len(batches), len(b.records))
			result, err := o.processBatch(runCtx, b)
			if err != nil {
				abort(err)
				return
			}
			resultsCh <- result
			o.pause(runCtx)
		})
		if submitErr != nil {
			wg.Done()
			abort(fmt.Errorf("failed to submit batch %d: %w", b.index, submitErr))
			break
		}
	}
	wg.Wait()
	close(resultsCh)
	<-collectorDone

	results := make([]model.BatchResult, 0, len(batches))
	for i, r := range collected {
		if done[i] {
			results = append(results, r)
		}
	}

	if fatalErr != nil {
		log.Errorf("[Orchestrator] 运行中止: %v", fatalErr)
		return results, fatalErr
	}
	if err := ctx.Err(); err != nil {
		log.Warnf("[Orchestrator] 运行被取消, 已完成 %d/%d 个批次", len(results), len(batches))
		return results, err
	}
	return results, nil
}

// processBatch 对批内记录并发向量化。返回 error 仅表示需要中止整个运行。
func (o *Orchestrator) processBatch(ctx context.Context, b batch) (model.BatchResult, error) {
	type outcome struct {
		doc     model.IndexDocument
		failure *model.RecordFailure
	}
	outcomes := make([]outcome, len(b.records))

	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range b.records {
		g.Go(func() error {
			fail := func(reason string) {
				outcomes[i].failure = &model.RecordFailure{EntityID: rec.EntityID, Reason: reason}
				metrics.RecordFailures.WithLabelValues(string(rec.Kind)).Inc()
			}

			productID, err := o.resolver.Resolve(rec)
			if err != nil {
				fail(err.Error())
				return nil
			}

			vec, err := o.embedder.Embed(gctx, o.compose(rec))
			if err != nil {
				if embedding.IsAuthFailure(err) {
					return fmt.Errorf("%w: %v", ErrProviderUnauthorized, err)
				}
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warnf("[Orchestrator] %s %d 向量化失败: %v", rec.Kind, rec.EntityID, err)
				fail(err.Error())
				return nil
			}
			outcomes[i].doc = model.NewIndexDocument(rec, productID, vec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.BatchResult{}, err
	}

	result := model.BatchResult{Index: b.index}
	for _, oc := range outcomes {
		if oc.failure != nil {
			result.Failed = append(result.Failed, *oc.failure)
			continue
		}
		result.Succeeded = append(result.Succeeded, oc.doc)
	}
	log.Infof("[Orchestrator] 批次 %d 完成: 成功 %d, 失败 %d", b.index+1, len(result.Succeeded), len(result.Failed))
	return result, nil
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.batchDelay <= 0 {
		return
	}
	t := time.NewTimer(o.batchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
