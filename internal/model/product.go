package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Product 对应于 smarthomes 库中的 'Products' 表。只读。
type Product struct {
	ProductID          int64   `gorm:"primaryKey;column:ProductID"`
	ProductModelName   string  `gorm:"type:varchar(255);not null;column:ProductModelName"`
	ProductPrice       float64 `gorm:"type:decimal(10,2);column:ProductPrice"`
	ProductCategory    string  `gorm:"type:varchar(100);column:ProductCategory"`
	ProductDescription string  `gorm:"type:text;column:ProductDescription"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Product) TableName() string {
	return "Products"
}

// ToSourceRecord 转换为 pipeline 的源记录。
func (p Product) ToSourceRecord() SourceRecord {
	return SourceRecord{
		EntityID:         p.ProductID,
		Kind:             KindProduct,
		ProductModelName: p.ProductModelName,
		Price:            p.ProductPrice,
		Category:         p.ProductCategory,
		Description:      p.ProductDescription,
	}
}

// ProductReview 对应于 'ProductReviews' 表。
// ProductModelName 是冗余字段，入库时通过商品名反查 ProductID。
type ProductReview struct {
	ReviewID         int64      `gorm:"primaryKey;column:ReviewID"`
	ProductModelName string     `gorm:"type:varchar(255);not null;column:ProductModelName"`
	ProductCategory  string     `gorm:"type:varchar(100);column:ProductCategory"`
	ProductPrice     float64    `gorm:"type:decimal(10,2);column:ProductPrice"`
	ReviewRating     int        `gorm:"column:ReviewRating"`
	ReviewDate       *time.Time `gorm:"type:date;column:ReviewDate"`
	ReviewText       string     `gorm:"type:text;column:ReviewText"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProductReview) TableName() string {
	return "ProductReviews"
}

// ToSourceRecord 转换为 pipeline 的源记录。
func (r ProductReview) ToSourceRecord() SourceRecord {
	rec := SourceRecord{
		EntityID:         r.ReviewID,
		Kind:             KindReview,
		ProductModelName: r.ProductModelName,
		Price:            r.ProductPrice,
		Category:         r.ProductCategory,
		Rating:           r.ReviewRating,
		ReviewText:       r.ReviewText,
	}
	if r.ReviewDate != nil {
		rec.ReviewDate = r.ReviewDate.Format("2006-01-02")
	}
	return rec
}

// ReviewFileEntry 是 product_reviews.json 中的一条评论（评论生成器的输出格式）。
type ReviewFileEntry struct {
	ProductModelName string `json:"productModelName"`
	ProductCategory  string `json:"productCategory"`
	ProductPrice     Price  `json:"productPrice"`
	ReviewRating     int    `json:"reviewRating"`
	ReviewDate       string `json:"reviewDate"`
	ReviewText       string `json:"reviewText"`
}

// Price 兼容 JSON 数字和字符串两种写法（MySQL DECIMAL 导出时是字符串）。
type Price float64

// UnmarshalJSON 实现 json.Unmarshaler。
func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*p = Price(f)
	return nil
}

// MarshalJSON 以数字输出。
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(p))
}

// ToSourceRecord 转换为源记录，文件中的评论没有主键，用 1 起始的位置作为 EntityID。
func (e ReviewFileEntry) ToSourceRecord(position int) SourceRecord {
	return SourceRecord{
		EntityID:         int64(position),
		Kind:             KindReview,
		ProductModelName: e.ProductModelName,
		Price:            float64(e.ProductPrice),
		Category:         e.ProductCategory,
		Rating:           e.ReviewRating,
		ReviewDate:       e.ReviewDate,
		ReviewText:       e.ReviewText,
	}
}
