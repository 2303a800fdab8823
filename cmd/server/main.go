// Package main 是检索服务的入口点：提供语义检索 API，并在后台消费重建索引任务。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"smarthomes-semantic/internal/bootstrap"
	"smarthomes-semantic/internal/handler"
	"smarthomes-semantic/internal/middleware"
	"smarthomes-semantic/internal/pipeline"
	"smarthomes-semantic/pkg/kafka"
	"smarthomes-semantic/pkg/log"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 加载配置并初始化各个客户端
	app, err := bootstrap.New(context.Background(), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config
	log.Info("日志记录器初始化成功")

	// 2. 初始化入库流程
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	runner, err := app.Runner(consumerCtx)
	if err != nil {
		log.Fatal("入库流程初始化失败", err)
	}

	// 3. 启动后台 Kafka 消费者
	var attempts kafka.AttemptCounter
	if app.Redis != nil {
		attempts = kafka.NewRedisAttemptCounter(app.Redis)
	} else {
		log.Warnf("[Server] 未配置 Redis, 任务失败次数仅在进程内记录")
		attempts = kafka.NewLocalAttemptCounter()
	}
	consumer := kafka.NewConsumer(cfg.Kafka, pipeline.NewProcessor(runner), attempts)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(consumerCtx); err != nil {
			log.Errorf("[Server] Kafka 消费者退出: %v", err)
		}
	}()
	producer := kafka.NewProducer(cfg.Kafka)

	// 4. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger("/metrics", "/healthz"), gin.Recovery())

	// 5. 注册路由
	searchHandler := handler.NewSearchHandler(app.SearchService())
	ai := r.Group("/api/ai")
	{
		ai.POST("/products", searchHandler.SearchProducts)
		ai.POST("/reviews", searchHandler.SearchReviews)
		ai.POST("/reindex", handler.NewIngestHandler(producer).Reindex)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者，正在执行的入库任务会随 ctx 取消而中止，offset 不提交
	cancelConsumer()
	wg.Wait()
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
