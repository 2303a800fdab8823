// Package bootstrap 根据配置创建各个客户端，并把它们组装成 pipeline 和 service。
// seeder 和 server 两个入口共用这里的装配逻辑。
package bootstrap

import (
	"context"
	"fmt"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/internal/extractor"
	"smarthomes-semantic/internal/pipeline"
	"smarthomes-semantic/internal/repository"
	"smarthomes-semantic/internal/service"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/database"
	"smarthomes-semantic/pkg/embedding"
	"smarthomes-semantic/pkg/es"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有一次进程生命周期内共享的客户端。
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Store    vectorstore.Store
	Embedder embedding.Client
}

// New 加载配置、初始化日志，并创建 ES、Redis 和 embedding 客户端。
// MySQL 按需通过 OpenDB 打开，检索等不需要关系库的命令可以不连接数据库。
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return nil, err
	}

	esClient, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		return nil, fmt.Errorf("es 初始化失败: %w", err)
	}

	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		// Redis 只用于缓存和任务计数，不可用时降级
		log.Warnf("[Bootstrap] Redis 不可用, 已禁用 embedding 缓存: %v", err)
		rdb = nil
	}

	app := &App{
		Config: cfg,
		Redis:  rdb,
		Store:  es.NewStore(esClient),
	}
	app.Embedder = NewEmbedder(cfg.Embedding, rdb)
	return app, nil
}

// NewEmbedder 创建 embedding 客户端，rdb 非空且配置了 cache_ttl 时启用缓存。
func NewEmbedder(cfg config.EmbeddingConfig, rdb *redis.Client) embedding.Client {
	var opts []embedding.Option
	if rdb != nil && cfg.CacheTTL > 0 {
		opts = append(opts, embedding.WithCache(embedding.NewRedisCache(rdb), cfg.CacheTTL))
		log.Infof("[Bootstrap] 已启用 embedding 缓存, ttl: %s", cfg.CacheTTL)
	}
	return embedding.NewClient(cfg, opts...)
}

// OpenDB 连接 MySQL，重复调用返回同一个连接。
func (a *App) OpenDB() (*gorm.DB, error) {
	if a.DB != nil {
		return a.DB, nil
	}
	db, err := database.NewMySQL(a.Config.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	a.DB = db
	return db, nil
}

// Extractor 创建从 MySQL（或评论文件）读取记录的 Source。
func (a *App) Extractor() (*extractor.Extractor, error) {
	db, err := a.OpenDB()
	if err != nil {
		return nil, err
	}
	return extractor.New(
		repository.NewProductRepository(db),
		repository.NewReviewRepository(db),
		extractor.Options{
			ReviewSource: a.Config.Pipeline.ReviewSource,
			ReviewsFile:  a.Config.Pipeline.ReviewsFile,
		},
	), nil
}

// Runner 组装入库流程。配置了 upload_snapshot 时快照会上传到 MinIO。
func (a *App) Runner(ctx context.Context) (*pipeline.Runner, error) {
	source, err := a.Extractor()
	if err != nil {
		return nil, err
	}
	var opts []pipeline.RunnerOption
	if a.Config.Pipeline.UploadSnapshot {
		client, err := storage.NewMinIOClient(ctx, a.Config.MinIO)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithSnapshotUploader(storage.NewSnapshotUploader(client, a.Config.MinIO.BucketName)))
	}
	return pipeline.NewRunner(source, a.Embedder, a.Store, pipeline.RunConfigFrom(a.Config), opts...), nil
}

// SearchService 创建检索服务。
func (a *App) SearchService() service.SearchService {
	return service.NewSearchService(a.Embedder, a.Store,
		a.Config.Elasticsearch.ProductIndex, a.Config.Elasticsearch.ReviewIndex, a.Config.Search.TopK)
}

// Close 释放数据库和 Redis 连接。
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	log.Sync()
}
