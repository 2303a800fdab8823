package model

import (
	"fmt"
	"strconv"
)

// ProductInfo 是商品文档的元数据，字段名与线上索引保持一致。
type ProductInfo struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// ReviewInfo 是评论文档的元数据。
type ReviewInfo struct {
	ProductModelName string  `json:"productModelName"`
	ProductCategory  string  `json:"productCategory"`
	ProductPrice     float64 `json:"productPrice"`
	ReviewRating     int     `json:"reviewRating"`
	ReviewDate       string  `json:"reviewDate,omitempty"`
	ReviewText       string  `json:"reviewText"`
}

// EsDocument 定义了存储在 Elasticsearch 中的 _source 结构，同时也是快照文件中每一项的结构。
type EsDocument struct {
	ProductID   int64        `json:"productId"`
	EntityID    int64        `json:"entityId,omitempty"` // 仅评论
	ProductInfo *ProductInfo `json:"productInfo,omitempty"`
	ReviewInfo  *ReviewInfo  `json:"reviewInfo,omitempty"`
	Embedding   []float32    `json:"embedding"`
}

// IndexDocument 是向量索引中的存储单元：一条记录的一次文本组合对应的一个向量。
type IndexDocument struct {
	Kind           Kind
	SourceEntityID int64
	// ProductID 对商品等于 SourceEntityID，对评论是解析出的外键。
	ProductID int64
	Product   *ProductInfo
	Review    *ReviewInfo
	Embedding EmbeddingVector
}

// NewIndexDocument 由源记录和向量构造索引文档。productID 仅对评论有意义。
func NewIndexDocument(rec SourceRecord, productID int64, vec EmbeddingVector) IndexDocument {
	doc := IndexDocument{
		Kind:           rec.Kind,
		SourceEntityID: rec.EntityID,
		Embedding:      vec,
	}
	switch rec.Kind {
	case KindProduct:
		doc.ProductID = rec.EntityID
		doc.Product = &ProductInfo{
			Name:        rec.ProductModelName,
			Price:       rec.Price,
			Category:    rec.Category,
			Description: rec.Description,
		}
	case KindReview:
		doc.ProductID = productID
		doc.Review = &ReviewInfo{
			ProductModelName: rec.ProductModelName,
			ProductCategory:  rec.Category,
			ProductPrice:     rec.Price,
			ReviewRating:     rec.Rating,
			ReviewDate:       rec.ReviewDate,
			ReviewText:       rec.ReviewText,
		}
	}
	return doc
}

// ID 返回确定性的文档 ID，重复写入同一记录时覆盖而不是追加。
func (d IndexDocument) ID() string {
	return string(d.Kind) + "-" + strconv.FormatInt(d.SourceEntityID, 10)
}

// ToEsDocument 转换为 ES 的 _source。
func (d IndexDocument) ToEsDocument() EsDocument {
	es := EsDocument{
		ProductID:   d.ProductID,
		ProductInfo: d.Product,
		ReviewInfo:  d.Review,
		Embedding:   d.Embedding.Values,
	}
	if d.Kind == KindReview {
		es.EntityID = d.SourceEntityID
	}
	return es
}

// Metadata 将元数据展开为扁平的 map，用于检索结果输出。
func (d IndexDocument) Metadata() map[string]interface{} {
	return d.ToEsDocument().Metadata()
}

// Metadata 将 productInfo / reviewInfo 展开为扁平的 map，并带上 productId。
func (e EsDocument) Metadata() map[string]interface{} {
	m := map[string]interface{}{"productId": e.ProductID}
	if e.ProductInfo != nil {
		m["name"] = e.ProductInfo.Name
		m["price"] = e.ProductInfo.Price
		m["category"] = e.ProductInfo.Category
		m["description"] = e.ProductInfo.Description
	}
	if e.ReviewInfo != nil {
		m["entityId"] = e.EntityID
		m["productModelName"] = e.ReviewInfo.ProductModelName
		m["productCategory"] = e.ReviewInfo.ProductCategory
		m["productPrice"] = e.ReviewInfo.ProductPrice
		m["reviewRating"] = e.ReviewInfo.ReviewRating
		m["reviewDate"] = e.ReviewInfo.ReviewDate
		m["reviewText"] = e.ReviewInfo.ReviewText
	}
	return m
}

// ToIndexDocument 从快照条目恢复索引文档，并校验向量维度。
func (e EsDocument) ToIndexDocument(kind Kind, dimension int) (IndexDocument, error) {
	vec, err := NewEmbeddingVector(e.Embedding, dimension)
	if err != nil {
		return IndexDocument{}, err
	}
	doc := IndexDocument{Kind: kind, ProductID: e.ProductID, Embedding: vec}
	switch kind {
	case KindProduct:
		if e.ProductInfo == nil {
			return IndexDocument{}, fmt.Errorf("product %d: missing productInfo", e.ProductID)
		}
		doc.SourceEntityID = e.ProductID
		doc.Product = e.ProductInfo
	case KindReview:
		if e.ReviewInfo == nil {
			return IndexDocument{}, fmt.Errorf("review %d: missing reviewInfo", e.EntityID)
		}
		doc.SourceEntityID = e.EntityID
		doc.Review = e.ReviewInfo
	default:
		return IndexDocument{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return doc, nil
}
