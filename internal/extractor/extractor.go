// Package extractor 从关系库或评论文件中读取商品和评论，转换为带类型的源记录。
package extractor

import (
	"context"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/repository"
	"smarthomes-semantic/pkg/log"
	"strconv"
	"strings"
)

// ErrMissingProductMapping 表示评论引用的商品名在商品表中不存在。
var ErrMissingProductMapping = errors.New("missing product mapping")

// ReviewSource 评论数据来源。
const (
	ReviewSourceMySQL = "mysql"
	ReviewSourceFile  = "file"
)

// Options 配置评论的读取方式。
type Options struct {
	ReviewSource string
	ReviewsFile  string
}

// Extractor 负责 FetchAll 和商品名映射。只读，不修改源数据。
type Extractor struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
	opts     Options
}

// New 创建一个新的 Extractor。reviews 在 ReviewSource 为 file 时可以为 nil。
func New(products repository.ProductRepository, reviews repository.ReviewRepository, opts Options) *Extractor {
	if opts.ReviewSource == "" {
		opts.ReviewSource = ReviewSourceMySQL
	}
	return &Extractor{products: products, reviews: reviews, opts: opts}
}

// FetchAll 读取 kind 对应的全部记录，按主键（或文件位置）顺序返回。
// 未通过校验的记录不会进入 pipeline，以 RecordFailure 的形式单独返回。
func (e *Extractor) FetchAll(ctx context.Context, kind model.Kind) ([]model.SourceRecord, []model.RecordFailure, error) {
	var raw []model.SourceRecord
	switch kind {
	case model.KindProduct:
		products, err := e.products.FindAll(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("读取商品失败: %w", err)
		}
		for _, p := range products {
			raw = append(raw, p.ToSourceRecord())
		}
	case model.KindReview:
		records, err := e.fetchReviews(ctx)
		if err != nil {
			return nil, nil, err
		}
		raw = records
	default:
		return nil, nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}

	records := make([]model.SourceRecord, 0, len(raw))
	var rejected []model.RecordFailure
	seen := make(map[int64]struct{}, len(raw))
	for _, rec := range raw {
		if err := rec.Validate(); err != nil {
			log.Warnf("[Extractor] 跳过无效记录 %s %d: %v", rec.Kind, rec.EntityID, err)
			rejected = append(rejected, model.RecordFailure{EntityID: rec.EntityID, Reason: "invalid record: " + err.Error()})
			continue
		}
		if _, dup := seen[rec.EntityID]; dup {
			return nil, nil, fmt.Errorf("duplicate %s id %d", kind, rec.EntityID)
		}
		seen[rec.EntityID] = struct{}{}
		records = append(records, rec)
	}
	log.Infof("[Extractor] 读取 %s 记录 %d 条, 无效 %d 条", kind, len(records), len(rejected))
	return records, rejected, nil
}

func (e *Extractor) fetchReviews(ctx context.Context) ([]model.SourceRecord, error) {
	var records []model.SourceRecord
	switch e.opts.ReviewSource {
	case ReviewSourceFile:
		entries, err := repository.ReadReviewsFile(e.opts.ReviewsFile)
		if err != nil {
			return nil, err
		}
		for i, entry := range entries {
			records = append(records, entry.ToSourceRecord(i+1))
		}
	case ReviewSourceMySQL:
		if e.reviews == nil {
			return nil, errors.New("review repository is not configured")
		}
		reviews, err := e.reviews.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("读取评论失败: %w", err)
		}
		for _, r := range reviews {
			records = append(records, r.ToSourceRecord())
		}
	default:
		return nil, fmt.Errorf("unknown review source %q", e.opts.ReviewSource)
	}
	return records, nil
}

// ProductMap 是商品名到 ProductID 的映射，每次运行构建一次。
type ProductMap map[string]int64

// ProductMap 从商品表构建映射。重名商品以 ID 较大者为准。
func (e *Extractor) ProductMap(ctx context.Context) (ProductMap, error) {
	products, err := e.products.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取商品映射失败: %w", err)
	}
	m := make(ProductMap, len(products))
	for _, p := range products {
		if prev, ok := m[p.ProductModelName]; ok {
			log.Warnf("[Extractor] 商品名重复: '%s' (%d, %d)", p.ProductModelName, prev, p.ProductID)
		}
		m[p.ProductModelName] = p.ProductID
	}
	return m, nil
}

// Resolve 返回记录对应的 ProductID。商品即自身 ID；评论按商品名查找。
func (m ProductMap) Resolve(rec model.SourceRecord) (int64, error) {
	if rec.Kind == model.KindProduct {
		return rec.EntityID, nil
	}
	id, ok := m[rec.ProductModelName]
	if !ok {
		log.Warnf("[Extractor] 评论 %d 找不到商品: '%s'", rec.EntityID, rec.ProductModelName)
		return 0, ErrMissingProductMapping
	}
	return id, nil
}

// Compose 按固定字段顺序用空格拼接出用于向量化的文本，纯函数。
// 商品: name price category description
// 评论: productModelName category price rating reviewText
func Compose(rec model.SourceRecord) string {
	var parts []string
	switch rec.Kind {
	case model.KindProduct:
		parts = []string{rec.ProductModelName, model.FormatPrice(rec.Price), rec.Category, rec.Description}
	case model.KindReview:
		parts = []string{rec.ProductModelName, rec.Category, model.FormatPrice(rec.Price), strconv.Itoa(rec.Rating), rec.ReviewText}
	}
	return strings.Join(parts, " ")
}
