package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"arcana/app/models/reading"
	"arcana/pkg/config"
	"arcana/pkg/redis"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// DraftTask 草稿生成任务
// 解读创建后入队，工作器消费并调用生成服务产出各牌位草稿
type DraftTask struct {
	ID         string        `json:"id"`
	ReadingID  string        `json:"reading_id"`
	Question   string        `json:"question"`
	SpreadName string        `json:"spread_name"`
	Cards      reading.Cards `json:"cards"`
	Status     TaskStatus    `json:"status"`
	Retries    int           `json:"retries"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// QueueService Redis 队列服务
// 支持高并发操作和可靠的任务处理
type QueueService struct {
	client      *redis.RedisClient
	prefix      string
	timeout     time.Duration
	rateLimiter *rate.Limiter
	metrics     *QueueMetrics
}

// NewQueueService 创建新的队列服务实例
func NewQueueService() *QueueService {
	rateLimit := config.GetInt("queue.rate_limit", 1000)
	burst := config.GetInt("queue.rate_burst", rateLimit)

	return &QueueService{
		client:      redis.GetRedis(redis.QueueDB),
		prefix:      config.GetString("redis.queue_prefix", "arcana"),
		timeout:     time.Duration(config.GetInt("redis.queue_timeout", 3600)) * time.Second,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
		metrics:     NewQueueMetrics(),
	}
}

// PushTask 将任务推送到队列
// 支持限流和监控指标收集
func (q *QueueService) PushTask(ctx context.Context, task *DraftTask) error {
	// 应用限流
	if err := q.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 开始计时
	start := time.Now()
	defer func() {
		q.metrics.RecordPushLatency(time.Since(start))
	}()

	// 序列化任务
	taskJSON, err := json.Marshal(task)
	if err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// 入队与状态写入保持原子
	key := fmt.Sprintf("%s:tasks", q.prefix)
	statusKey := fmt.Sprintf("%s:status:%s", q.prefix, task.ID)

	pipe := q.client.Client.Pipeline()
	pipe.LPush(ctx, key, taskJSON)
	pipe.Set(ctx, statusKey, string(TaskPending), q.timeout)

	if _, err = pipe.Exec(ctx); err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to push task: %w", err)
	}

	q.metrics.StartWaitTime(TaskID(task.ID))
	q.metrics.RecordSuccess(OpPush)
	return nil
}

// PopTask 从队列中阻塞获取任务，超时返回 (nil, nil)
func (q *QueueService) PopTask(ctx context.Context, timeout time.Duration) (*DraftTask, error) {
	key := fmt.Sprintf("%s:tasks", q.prefix)

	result, err := q.client.Client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if err == goredis.Nil || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop task from queue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("invalid result from queue")
	}

	var task DraftTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// UpdateTaskStatus 更新任务状态
func (q *QueueService) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, detail string) error {
	statusKey := fmt.Sprintf("%s:status:%s", q.prefix, taskID)
	if err := q.client.Client.Set(ctx, statusKey, string(status), q.timeout).Err(); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if detail != "" {
		detailKey := fmt.Sprintf("%s:detail:%s", q.prefix, taskID)
		if err := q.client.Client.Set(ctx, detailKey, detail, q.timeout).Err(); err != nil {
			return fmt.Errorf("failed to save task detail: %w", err)
		}
	}

	return nil
}

// GetTaskStatus 获取任务状态，任务不存在时返回空串
func (q *QueueService) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	statusKey := fmt.Sprintf("%s:status:%s", q.prefix, taskID)
	status, err := q.client.Client.Get(ctx, statusKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to get task status: %w", err)
	}

	return TaskStatus(status), nil
}

// Ping 检查队列服务健康状态
func (q *QueueService) Ping(ctx context.Context) error {
	return q.client.Ping()
}

// Metrics 暴露队列指标，健康检查端点用
func (q *QueueService) Metrics() *QueueMetrics {
	return q.metrics
}
