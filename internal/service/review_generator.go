package service

import (
	"context"
	"fmt"
	"math/rand"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/repository"
	"smarthomes-semantic/pkg/llm"
	"smarthomes-semantic/pkg/log"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultReviewsPerProduct 是每个商品默认生成的评论数。
	DefaultReviewsPerProduct = 5
	positiveShare            = 0.7
	reviewWindow             = 90 * 24 * time.Hour
)

type reviewCriteria struct {
	positive string
	negative string
}

// categoryCriteria 为每个品类提供正负面评论的关键词。
var categoryCriteria = map[string]reviewCriteria{
	"Smart Doorbells": {
		positive: "convenient, secure, real-time, reliable, clear video",
		negative: "glitchy, slow alerts, poor connection, privacy concerns",
	},
	"Smart Doorlocks": {
		positive: "secure, convenient, remote access, easy install",
		negative: "battery drain, app issues, unreliable, lock jams",
	},
	"Smart Speakers": {
		positive: "responsive, good sound, versatile, user-friendly",
		negative: "poor privacy, limited commands, connectivity issues",
	},
	"Smart Lighting": {
		positive: "customizable, energy-efficient, remote control, mood-enhancing",
		negative: "app problems, delay, connectivity issues, limited brightness",
	},
	"Smart Thermostats": {
		positive: "energy-saving, easy to use, efficient, remote control",
		negative: "difficult setup, temperature inaccuracy, app bugs, connectivity issues",
	},
}

// ReviewGenerator 调用大模型为每个商品生成模拟评论，输出 product_reviews.json 的格式。
type ReviewGenerator struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
	llm      llm.Client
	limiter  *rate.Limiter
	rnd      *rand.Rand
	now      func() time.Time
	gen      *llm.GenerationParams
}

// ReviewGeneratorOption 配置 ReviewGenerator。
type ReviewGeneratorOption func(*ReviewGenerator)

// WithCallInterval 指定两次模型调用之间的最小间隔，<= 0 表示不限速。
func WithCallInterval(d time.Duration) ReviewGeneratorOption {
	return func(g *ReviewGenerator) {
		if d <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRandSource 固定随机源，便于复现。
func WithRandSource(src rand.Source) ReviewGeneratorOption {
	return func(g *ReviewGenerator) { g.rnd = rand.New(src) }
}

// WithClock 替换当前时间函数。
func WithClock(now func() time.Time) ReviewGeneratorOption {
	return func(g *ReviewGenerator) { g.now = now }
}

// WithReviewRepository 启用将生成结果写入 ProductReviews 表。
func WithReviewRepository(repo repository.ReviewRepository) ReviewGeneratorOption {
	return func(g *ReviewGenerator) { g.reviews = repo }
}

// NewReviewGenerator 创建一个新的 ReviewGenerator。默认每秒最多调用一次模型。
func NewReviewGenerator(products repository.ProductRepository, client llm.Client, opts ...ReviewGeneratorOption) *ReviewGenerator {
	g := &ReviewGenerator{
		products: products,
		llm:      client,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		gen:      &llm.GenerationParams{Temperature: llm.Float64(0.8), MaxTokens: llm.Int(200)},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 为每个商品生成 perProduct 条评论。单条生成失败只记录日志并跳过。
func (g *ReviewGenerator) Generate(ctx context.Context, perProduct int) ([]model.ReviewFileEntry, error) {
	if perProduct <= 0 {
		perProduct = DefaultReviewsPerProduct
	}
	products, err := g.products.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取商品失败: %w", err)
	}
	log.Infof("[ReviewGenerator] 共 %d 个商品, 每个商品生成 %d 条评论", len(products), perProduct)

	entries := make([]model.ReviewFileEntry, 0, len(products)*perProduct)
	for _, p := range products {
		generated := 0
		for i := 0; i < perProduct; i++ {
			if err := g.limiter.Wait(ctx); err != nil {
				return entries, err
			}
			entry, err := g.generateOne(ctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return entries, ctx.Err()
				}
				log.Errorf("[ReviewGenerator] 为 '%s' 生成评论失败: %v", p.ProductModelName, err)
				continue
			}
			entries = append(entries, entry)
			generated++
		}
		log.Infof("[ReviewGenerator] '%s' 生成 %d 条评论", p.ProductModelName, generated)
	}
	return entries, nil
}

func (g *ReviewGenerator) generateOne(ctx context.Context, p model.Product) (model.ReviewFileEntry, error) {
	rating := g.rating()
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt(p.ProductCategory)},
		{Role: "user", Content: fmt.Sprintf("Write a %d-star review for this %s product: %s (Price: $%s). The review should reflect the rating given.",
			rating, p.ProductCategory, p.ProductModelName, model.FormatPrice(p.ProductPrice))},
	}
	text, err := g.llm.Chat(ctx, messages, g.gen)
	if err != nil {
		return model.ReviewFileEntry{}, err
	}
	return model.ReviewFileEntry{
		ProductModelName: p.ProductModelName,
		ProductCategory:  p.ProductCategory,
		ProductPrice:     model.Price(p.ProductPrice),
		ReviewRating:     rating,
		ReviewDate:       g.reviewDate(),
		ReviewText:       text,
	}, nil
}

// rating 以 0.7 的概率返回 4-5 星，否则返回 1-3 星。
func (g *ReviewGenerator) rating() int {
	if g.rnd.Float64() < positiveShare {
		return 4 + g.rnd.Intn(2)
	}
	return 1 + g.rnd.Intn(3)
}

// reviewDate 返回最近 90 天内的随机日期。
func (g *ReviewGenerator) reviewDate() string {
	end := g.now().UTC()
	offset := time.Duration(g.rnd.Int63n(int64(reviewWindow)))
	return end.Add(-offset).Format("2006-01-02")
}

func systemPrompt(category string) string {
	c := categoryCriteria[category]
	return fmt.Sprintf(`You are an expert at writing realistic product reviews for %s.
Create a detailed, natural-sounding product review that incorporates some of these aspects:
For positive reviews (4-5 stars): %s
For negative reviews (1-3 stars): %s

The review should:
1. Be specific to the product and its features
2. Include personal experiences and use cases
3. Mention both pros and cons
4. Sound authentic and conversational
5. Be between 50-150 words`, category, c.positive, c.negative)
}

// Save 将评论写入 path；启用了评论仓库时同时写入 ProductReviews 表。
func (g *ReviewGenerator) Save(ctx context.Context, path string, entries []model.ReviewFileEntry) error {
	if err := repository.WriteReviewsFile(path, entries); err != nil {
		return fmt.Errorf("写入评论文件失败: %w", err)
	}
	log.Infof("[ReviewGenerator] %d 条评论已保存到 %s", len(entries), path)

	if g.reviews == nil {
		return nil
	}
	rows := make([]*model.ProductReview, 0, len(entries))
	for _, e := range entries {
		row := &model.ProductReview{
			ProductModelName: e.ProductModelName,
			ProductCategory:  e.ProductCategory,
			ProductPrice:     float64(e.ProductPrice),
			ReviewRating:     e.ReviewRating,
			ReviewText:       e.ReviewText,
		}
		if d, err := time.Parse("2006-01-02", e.ReviewDate); err == nil {
			row.ReviewDate = &d
		}
		rows = append(rows, row)
	}
	if err := g.reviews.BatchCreate(ctx, rows); err != nil {
		return fmt.Errorf("写入评论表失败: %w", err)
	}
	log.Infof("[ReviewGenerator] %d 条评论已写入数据库", len(rows))
	return nil
}
