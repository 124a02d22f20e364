package bootstrap

import (
	"time"

	"arcana/app/services"
	"arcana/pkg/config"
	"arcana/pkg/generation"
	"arcana/pkg/logger"
	"arcana/pkg/queue"
	"arcana/pkg/redis"
)

// SetupQueue 启动起草任务的工作器组
// 返回 Worker 以便主程序优雅关闭时回收
func SetupQueue() *queue.Worker {
	if redis.Manager == nil {
		logger.ErrorString("Queue", "Setup", "Redis 尚未初始化")
		return nil
	}

	genService := generation.NewServiceFromConfig()
	if genService == nil {
		logger.ErrorString("Queue", "Setup", "生成服务未配置，起草工作器不启动")
		return nil
	}

	worker := queue.NewWorker(
		queue.NewQueueService(),
		genService,
		services.NewReadingService(),
		queue.WorkerConfig{
			WorkerCount:     config.GetInt("queue.worker_count", 10),
			MaxRetries:      config.GetInt("queue.retry_times", 3),
			RetryInterval:   time.Duration(config.GetInt("queue.retry_delay", 1)) * time.Second,
			GenTimeout:      time.Duration(config.GetInt("generation.timeout", 90)) * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	)

	go worker.Start()

	logger.InfoString("Queue", "Setup", "队列服务启动成功")
	return worker
}
