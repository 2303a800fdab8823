// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"smarthomes-semantic/internal/model"

	"gorm.io/gorm"
)

// ProductRepository 定义了对 Products 表的只读操作。
type ProductRepository interface {
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建一个新的 ProductRepository 实例。
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// FindAll 按主键顺序读取全部商品，保证每次运行的批次划分一致。
func (r *productRepository) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("ProductID").Find(&products).Error
	return products, err
}

// FindByIDs 根据商品 ID 批量查询。
func (r *productRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []model.Product
	err := r.db.WithContext(ctx).Where("ProductID IN ?", ids).Order("ProductID").Find(&products).Error
	return products, err
}
