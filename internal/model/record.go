// Package model 包含了向量化流程中流转的数据模型定义。
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind 标识源记录的类型。
type Kind string

const (
	KindProduct Kind = "product"
	KindReview  Kind = "review"
)

// ErrUnknownKind 表示传入了不支持的记录类型。
var ErrUnknownKind = errors.New("unknown record kind")

// ParseKind 将命令行或 HTTP 参数解析为 Kind，接受单复数形式。
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "product", "products":
		return KindProduct, nil
	case "review", "reviews":
		return KindReview, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// SourceRecord 是从关系库（或评论文件）中读出的一条商品或评论。
// 读出后即不可变，pipeline 不会修改它。
type SourceRecord struct {
	EntityID int64
	Kind     Kind

	// ProductModelName 对商品是商品名，对评论是被评论商品的名称（用于反查 ProductID）。
	ProductModelName string
	Price            float64
	Category         string

	// 仅商品
	Description string

	// 仅评论
	Rating     int
	ReviewDate string
	ReviewText string
}

// Validate 在抽取边界校验记录，保证下游拿到的都是合法记录。
func (r SourceRecord) Validate() error {
	if r.EntityID <= 0 {
		return fmt.Errorf("invalid entity id %d", r.EntityID)
	}
	if r.Kind != KindProduct && r.Kind != KindReview {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if strings.TrimSpace(r.ProductModelName) == "" {
		return fmt.Errorf("%s %d: empty product model name", r.Kind, r.EntityID)
	}
	if r.Kind == KindReview && strings.TrimSpace(r.ReviewText) == "" {
		return fmt.Errorf("review %d: empty review text", r.EntityID)
	}
	return nil
}

// FormatPrice 以两位小数输出价格，与 DECIMAL(10,2) 列的文本形式一致，例如 149.99、150.00。
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
