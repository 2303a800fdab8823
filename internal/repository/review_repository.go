package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"smarthomes-semantic/internal/model"

	"gorm.io/gorm"
)

// ReviewRepository 定义了对 ProductReviews 表的数据操作接口。
type ReviewRepository interface {
	FindAll(ctx context.Context) ([]model.ProductReview, error)
	BatchCreate(ctx context.Context, reviews []*model.ProductReview) error
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository 创建一个新的 ReviewRepository 实例。
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// FindAll 按主键顺序读取全部评论。
func (r *reviewRepository) FindAll(ctx context.Context) ([]model.ProductReview, error) {
	var reviews []model.ProductReview
	err := r.db.WithContext(ctx).Order("ReviewID").Find(&reviews).Error
	return reviews, err
}

// BatchCreate 批量写入评论。
func (r *reviewRepository) BatchCreate(ctx context.Context, reviews []*model.ProductReview) error {
	if len(reviews) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(reviews, 100).Error // 每100条记录一批
}

// ReadReviewsFile 读取 product_reviews.json（评论生成器的输出）。
func ReadReviewsFile(path string) ([]model.ReviewFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取评论文件失败: %w", err)
	}
	var entries []model.ReviewFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("解析评论文件 %s 失败: %w", path, err)
	}
	return entries, nil
}

// WriteReviewsFile 将评论以缩进 JSON 数组写入文件，先写临时文件再重命名。
func WriteReviewsFile(path string, entries []model.ReviewFileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
