package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arcana/app/models/interpretation"
	"arcana/app/services"
	"arcana/pkg/generation"
	"arcana/pkg/logger"
)

// Worker 草稿生成工作器组
// 消费队列里的 DraftTask：领取后把解读推进到 drafting，
// 调用生成服务，在限定时间内拿到结果则写入草稿并推进到 draft_ready，
// 超时或重试耗尽则通过生命周期路径取消解读
type Worker struct {
	queueService *QueueService
	genService   *generation.Service
	readings     *services.ReadingService
	stopChan     chan struct{}
	metrics      *QueueMetrics
	wg           sync.WaitGroup
	config       WorkerConfig
}

// WorkerConfig 工作器配置
type WorkerConfig struct {
	WorkerCount     int           // 并发工作器数量
	MaxRetries      int           // 单任务最大重试次数
	RetryInterval   time.Duration // 重试间隔
	GenTimeout      time.Duration // 生成调用的超时上限
	ShutdownTimeout time.Duration // 关闭超时时间
}

// NewWorker 创建新的工作器组
func NewWorker(qs *QueueService, gs *generation.Service, rs *services.ReadingService, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	if config.GenTimeout <= 0 {
		config.GenTimeout = 90 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Worker{
		queueService: qs,
		genService:   gs,
		readings:     rs,
		stopChan:     make(chan struct{}),
		metrics:      NewQueueMetrics(),
		config:       config,
	}
}

// Start 启动工作器组
func (w *Worker) Start() {
	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.startWorker(i)
	}
}

// startWorker 单个工作器的消费循环
func (w *Worker) startWorker(id int) {
	defer w.wg.Done()

	logger.InfoString("Worker", "Start", fmt.Sprintf("Worker %d started", id))

	for {
		select {
		case <-w.stopChan:
			logger.InfoString("Worker", "Stop", fmt.Sprintf("Worker %d stopping", id))
			return
		default:
			if err := w.processNextTask(); err != nil {
				logger.ErrorString("Worker", "Process", fmt.Sprintf("Worker %d error: %v", id, err))
				time.Sleep(time.Second) // 错误恢复延迟
			}
		}
	}
}

// processNextTask 取出并处理下一个任务
func (w *Worker) processNextTask() error {
	start := time.Now()
	defer func() {
		w.metrics.RecordProcessLatency(time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.GenTimeout+30*time.Second)
	defer cancel()

	task, err := w.queueService.PopTask(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("pop task error: %w", err)
	}
	if task == nil {
		return nil // 队列为空
	}

	return w.handleTask(ctx, task)
}

// handleTask 处理单个草稿生成任务
func (w *Worker) handleTask(ctx context.Context, task *DraftTask) error {
	w.metrics.EndWaitTime(TaskID(task.ID))

	if err := w.queueService.UpdateTaskStatus(ctx, task.ID, TaskRunning, ""); err != nil {
		return fmt.Errorf("update task status error: %w", err)
	}

	// 领取任务：initiated -> drafting
	if err := w.readings.StartDrafting(ctx, task.ReadingID); err != nil {
		// 竞争失败说明另一工作器已领取或解读已被取消，本任务作废
		logger.WarnString("Worker", "Claim", fmt.Sprintf(
			"任务 %s 领取失败: %v", task.ID, err))
		return w.queueService.UpdateTaskStatus(ctx, task.ID, TaskFailed, err.Error())
	}

	// 生成调用带硬超时，超过上限整个解读取消
	genCtx, cancel := context.WithTimeout(ctx, w.config.GenTimeout)
	defer cancel()

	drafts, err := w.generate(genCtx, task)
	if err != nil {
		w.metrics.RecordError(OpProcess)
		reason := fmt.Sprintf("草稿生成失败: %v", err)
		if failErr := w.readings.FailDraft(ctx, task.ReadingID, reason); failErr != nil {
			logger.ErrorString("Worker", "FailDraft", failErr.Error())
		}
		if updateErr := w.queueService.UpdateTaskStatus(ctx, task.ID, TaskFailed, reason); updateErr != nil {
			logger.ErrorString("Worker", "UpdateStatus", updateErr.Error())
		}
		return fmt.Errorf("generation error: %w", err)
	}

	// 写入草稿并推进到 draft_ready
	// 草稿行的审核/可见标志在仓库层强制置 false
	if err := w.readings.CompleteDraft(ctx, task.ReadingID, drafts); err != nil {
		w.metrics.RecordError(OpProcess)
		if updateErr := w.queueService.UpdateTaskStatus(ctx, task.ID, TaskFailed, err.Error()); updateErr != nil {
			logger.ErrorString("Worker", "UpdateStatus", updateErr.Error())
		}
		return fmt.Errorf("complete draft error: %w", err)
	}

	if err := w.queueService.UpdateTaskStatus(ctx, task.ID, TaskCompleted, ""); err != nil {
		return fmt.Errorf("update task result error: %w", err)
	}

	w.metrics.RecordSuccess(OpProcess)
	return nil
}

// generate 调用生成服务并把产出转换为草稿行，内部按配置重试
func (w *Worker) generate(ctx context.Context, task *DraftTask) ([]interpretation.CardInterpretation, error) {
	var lastErr error

	for attempt := 0; attempt < w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(w.config.RetryInterval):
			}
		}

		positions, err := w.genService.GenerateDrafts(ctx, task.Question, task.SpreadName, task.Cards)
		if err != nil {
			lastErr = err
			continue
		}

		drafts := make([]interpretation.CardInterpretation, 0, len(positions))
		for i, pos := range positions {
			drafts = append(drafts, interpretation.CardInterpretation{
				ReadingID:     task.ReadingID,
				Position:      i + 1,
				CardID:        task.Cards[i].CardID,
				Orientation:   task.Cards[i].Orientation,
				DraftText:     pos.Text,
				DraftKeywords: interpretation.Keywords(pos.Keywords),
			})
		}
		return drafts, nil
	}

	return nil, lastErr
}

// Stop 优雅关闭工作器组
func (w *Worker) Stop() {
	close(w.stopChan)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("Worker", "Stop", "All workers stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		logger.WarnString("Worker", "Stop", "Worker shutdown timed out")
	}
}
