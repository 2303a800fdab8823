// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/pkg/log"
	"smarthomes-semantic/pkg/tasks"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// MaxAttempts 是同一任务失败后放弃重试前的最大处理次数。
const MaxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// TaskProducer 投递入库任务，HTTP 层依赖该接口。
type TaskProducer interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// Producer 是基于 kafka.Writer 的 TaskProducer 实现。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestTask 发送一个入库任务到 Kafka，以任务 ID 作为 key。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, taskID string) (int64, error)
	Reset(ctx context.Context, taskID string) error
}

// RedisAttemptCounter 使用 Redis 计数失败次数，计数 24 小时后过期。
type RedisAttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAttemptCounter 创建一个新的 RedisAttemptCounter。
func NewRedisAttemptCounter(rdb *redis.Client) *RedisAttemptCounter {
	return &RedisAttemptCounter{rdb: rdb, ttl: 24 * time.Hour}
}

func attemptsKey(taskID string) string {
	return fmt.Sprintf("kafka:attempts:%s", taskID)
}

// Incr 增加失败次数并返回当前值。
func (c *RedisAttemptCounter) Incr(ctx context.Context, taskID string) (int64, error) {
	key := attemptsKey(taskID)
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
		log.Warnf("[KafkaConsumer] 设置失败计数过期时间失败, key: %s, error: %v", key, err)
	}
	return attempts, nil
}

// Reset 清理失败计数。
func (c *RedisAttemptCounter) Reset(ctx context.Context, taskID string) error {
	return c.rdb.Del(ctx, attemptsKey(taskID)).Err()
}

// LocalAttemptCounter 在进程内计数，Redis 未配置时使用。重启后计数清零。
type LocalAttemptCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewLocalAttemptCounter 创建一个进程内计数器。
func NewLocalAttemptCounter() *LocalAttemptCounter {
	return &LocalAttemptCounter{counts: make(map[string]int64)}
}

// Incr 增加失败次数并返回当前值。
func (c *LocalAttemptCounter) Incr(_ context.Context, taskID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[taskID]++
	return c.counts[taskID], nil
}

// Reset 清理失败计数。
func (c *LocalAttemptCounter) Reset(_ context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, taskID)
	return nil
}

// messageReader 是 kafka.Reader 中消费者用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 从 Kafka 读取入库任务并同步处理，成功或放弃重试后才提交 offset。
type Consumer struct {
	reader     messageReader
	processor  TaskProcessor
	attempts   AttemptCounter
	retryDelay time.Duration
}

// NewConsumer 创建一个消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, attempts: attempts, retryDelay: cfg.RetryDelay}
}

// retryBackOff 返回单条任务的重试等待策略：从 retryDelay 开始每次翻倍，无随机抖动。
func (c *Consumer) retryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = 5 * time.Second
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = b.InitialInterval << MaxAttempts
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// wait 阻塞 d 或直到 ctx 取消，取消时返回 false。
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run 循环消费直到 ctx 取消或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[KafkaConsumer] 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[KafkaConsumer] 关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("[KafkaConsumer] 消费者已停止")
				return nil
			}
			log.Errorf("[KafkaConsumer] 从 Kafka 读取消息失败: %v", err)
			return err
		}
		c.handle(ctx, m)
	}
}

// handle 处理单条消息。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("[KafkaConsumer] 收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.ID == "" {
		log.Errorf("[KafkaConsumer] 无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	log.Infof("[KafkaConsumer] 开始处理入库任务: ID=%s, Kind=%s, Recreate=%t", task.ID, task.Kind, task.Recreate)
	b := c.retryBackOff()
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[KafkaConsumer] 入库任务处理成功: ID=%s", task.ID)
			if resetErr := c.attempts.Reset(ctx, task.ID); resetErr != nil {
				// 计数残留只影响该任务 ID 的下一次重试次数，不影响提交
				log.Warnf("[KafkaConsumer] 清理失败计数出错: ID=%s, error: %v", task.ID, resetErr)
			}
			c.commit(ctx, m)
			return
		}
		log.Errorf("[KafkaConsumer] 处理入库任务失败: ID=%s, Error: %v", task.ID, err)
		if ctx.Err() != nil {
			return
		}
		attempts, incErr := c.attempts.Incr(ctx, task.ID)
		if incErr != nil {
			// 计数异常时保守处理：不提交 offset，重启后由 Kafka 重新投递
			log.Warnf("[KafkaConsumer] 记录失败次数出错: %v", incErr)
			return
		}
		if attempts >= MaxAttempts {
			log.Errorf("[KafkaConsumer] 入库任务多次失败(>=%d)，提交 offset 终止重试: ID=%s", MaxAttempts, task.ID)
			c.commit(ctx, m)
			return
		}
		next := b.NextBackOff()
		log.Warnf("[KafkaConsumer] 入库任务第 %d 次失败, %s 后重试: ID=%s", attempts, next, task.ID)
		if !wait(ctx, next) {
			log.Warnf("[KafkaConsumer] 等待重试时消费者停止, 不提交 offset: ID=%s", task.ID)
			return
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[KafkaConsumer] 提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
