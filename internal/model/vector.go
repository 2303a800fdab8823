package model

import (
	"errors"
	"fmt"
)

// DefaultDimension 是 text-embedding-3-small 的向量维度。
const DefaultDimension = 1536

// ErrDimensionMismatch 表示向量长度与配置的维度不一致。
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingVector 是 embedding 服务为一段文本返回的定长向量。
type EmbeddingVector struct {
	Dimension int
	Values    []float32
}

// NewEmbeddingVector 构造向量，长度与 dimension 不一致时返回 ErrDimensionMismatch。
// 不做截断或补零。
func NewEmbeddingVector(values []float32, dimension int) (EmbeddingVector, error) {
	if dimension <= 0 {
		return EmbeddingVector{}, fmt.Errorf("invalid dimension %d", dimension)
	}
	if len(values) != dimension {
		return EmbeddingVector{}, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimension, len(values))
	}
	return EmbeddingVector{Dimension: dimension, Values: values}, nil
}

// Valid 报告向量是否满足 len(Values) == Dimension。
func (v EmbeddingVector) Valid() bool {
	return v.Dimension > 0 && len(v.Values) == v.Dimension
}
