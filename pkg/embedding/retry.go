package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/metrics"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Client 是 pipeline 使用的 embedding 客户端：带重试、维度校验，可并发调用。
type Client interface {
	Embed(ctx context.Context, text string) (model.EmbeddingVector, error)
}

// Option 配置 retryingClient。
type Option func(*retryingClient)

// WithCache 启用向量缓存，命中时不再调用服务。
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *retryingClient) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithHTTPClient 替换默认的 http.Client。
func WithHTTPClient(h *http.Client) Option {
	return func(c *retryingClient) {
		c.httpClient = h
	}
}

// WithProvider 直接指定底层 Provider，主要用于测试。
func WithProvider(p Provider) Option {
	return func(c *retryingClient) {
		c.provider = p
	}
}

type retryingClient struct {
	provider    Provider
	httpClient  *http.Client
	model       string
	dimension   int
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	cache       Cache
	cacheTTL    time.Duration
}

// NewClient 根据配置创建 embedding 客户端。
// 可重试错误按 baseDelay × 2^attemptIndex 退避，最多尝试 MaxAttempts 次。
func NewClient(cfg config.EmbeddingConfig, opts ...Option) Client {
	c := &retryingClient{
		model:       cfg.Model,
		dimension:   cfg.Dimensions,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.dimension <= 0 {
		c.dimension = model.DefaultDimension
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == nil {
		c.provider = NewProvider(cfg, c.httpClient)
	}
	return c
}

func (c *retryingClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.baseDelay << uint(c.maxAttempts)
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.maxAttempts-1))
}

// Embed 获取 text 的向量。
// 返回的错误总是 *Error：可重试错误耗尽次数后转为 Permanent 并包装 ErrRetriesExhausted。
func (c *retryingClient) Embed(ctx context.Context, text string) (model.EmbeddingVector, error) {
	if strings.TrimSpace(text) == "" {
		return model.EmbeddingVector{}, permanentError(0, ErrEmptyText)
	}

	if c.cache != nil {
		if values, ok := c.cachedVector(ctx, text); ok {
			return model.NewEmbeddingVector(values, c.dimension)
		}
	}

	attempts := 0
	operation := func() ([]float32, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(permanentError(0, err))
			}
		}
		attempts++
		start := time.Now()
		values, err := c.provider.CreateEmbedding(ctx, text)
		metrics.EmbeddingLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.EmbeddingAttempts.WithLabelValues("success").Inc()
			return values, nil
		}
		if IsTransient(err) {
			metrics.EmbeddingAttempts.WithLabelValues("transient").Inc()
			return nil, err
		}
		metrics.EmbeddingAttempts.WithLabelValues("permanent").Inc()
		return nil, backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		log.Warnf("[EmbeddingClient] 第 %d 次调用失败, %s 后重试: %v", attempts, next, err)
	}

	values, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		return model.EmbeddingVector{}, c.finalError(err, attempts)
	}

	vec, err := model.NewEmbeddingVector(values, c.dimension)
	if err != nil {
		return model.EmbeddingVector{}, &Error{Kind: Permanent, Attempts: attempts, Err: err}
	}
	if attempts > 1 {
		log.Infof("[EmbeddingClient] 第 %d 次调用成功", attempts)
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, c.cacheKey(text), values, c.cacheTTL); err != nil {
			log.Warnf("[EmbeddingClient] 写入向量缓存失败: %v", err)
		}
	}
	return vec, nil
}

// finalError 统一最终返回的错误：耗尽重试的 transient 错误转为 permanent。
func (c *retryingClient) finalError(err error, attempts int) error {
	var e *Error
	if !errors.As(err, &e) {
		// 上下文取消或限流器等待失败
		e = permanentError(0, err)
	}
	out := *e
	out.Attempts = attempts
	if out.Kind == Transient {
		out.Kind = Permanent
		out.Err = fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, e.Err)
	}
	return &out
}

func (c *retryingClient) cachedVector(ctx context.Context, text string) ([]float32, bool) {
	values, ok, err := c.cache.Get(ctx, c.cacheKey(text))
	if err != nil {
		log.Warnf("[EmbeddingClient] 读取向量缓存失败: %v", err)
		return nil, false
	}
	if !ok || len(values) != c.dimension {
		return nil, false
	}
	metrics.EmbeddingCacheHits.Inc()
	return values, true
}

func (c *retryingClient) cacheKey(text string) string {
	return CacheKey(c.model, c.dimension, text)
}
