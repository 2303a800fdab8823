package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache 保存已生成的向量，避免对相同文本重复调用 embedding 服务。
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, values []float32, ttl time.Duration) error
}

// CacheKey 由模型、维度和文本内容生成缓存键。
func CacheKey(modelName string, dimension int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%d:%s", modelName, dimension, hex.EncodeToString(sum[:]))
}

// RedisCache 是基于 Redis 的 Cache 实现，向量以小端 float32 序列存储。
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache 创建一个新的 RedisCache 实例。
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get 读取缓存，未命中时返回 ok=false。
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	values, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Set 写入缓存，ttl 为 0 表示不过期。
func (c *RedisCache) Set(ctx context.Context, key string, values []float32, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, encodeVector(values), ttl).Err()
}

func encodeVector(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(raw))
	}
	values := make([]float32, len(raw)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return values, nil
}
