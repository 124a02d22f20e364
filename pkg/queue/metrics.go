package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskID 任务ID的类型别名
type TaskID string

// MetricOperation 指标操作类型
type MetricOperation string

const (
	OpPush    MetricOperation = "push"
	OpPop     MetricOperation = "pop"
	OpProcess MetricOperation = "process"
)

// LatencyStats 延迟统计
type LatencyStats struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// record 记录一次延迟
func (s *LatencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.total += d

	if s.min == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}

// QueueMetrics 队列性能指标收集器
type QueueMetrics struct {
	totalTasks      atomic.Int64
	successfulTasks atomic.Int64
	failedTasks     atomic.Int64

	// 延迟统计
	pushLatency    *LatencyStats
	processLatency *LatencyStats

	// 平均等待时间(毫秒)
	avgWaitTime atomic.Int64

	// 等待时间计算 map[TaskID]time.Time
	waitTimeStart *sync.Map
}

// NewQueueMetrics 创建新的指标收集器
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		pushLatency:    &LatencyStats{},
		processLatency: &LatencyStats{},
		waitTimeStart:  &sync.Map{},
	}
}

// RecordSuccess 记录成功操作
func (m *QueueMetrics) RecordSuccess(op MetricOperation) {
	m.successfulTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordError 记录失败操作
func (m *QueueMetrics) RecordError(op MetricOperation) {
	m.failedTasks.Add(1)
	m.totalTasks.Add(1)
}

// StartWaitTime 记录任务开始等待的时间
func (m *QueueMetrics) StartWaitTime(taskID TaskID) {
	m.waitTimeStart.Store(taskID, time.Now())
}

// EndWaitTime 计算并更新平均等待时间
func (m *QueueMetrics) EndWaitTime(taskID TaskID) {
	if startTime, ok := m.waitTimeStart.LoadAndDelete(taskID); ok {
		waitDuration := time.Since(startTime.(time.Time))

		currentAvg := m.avgWaitTime.Load()
		totalTasks := m.totalTasks.Load()

		newAvg := (currentAvg*totalTasks + waitDuration.Milliseconds()) / (totalTasks + 1)
		m.avgWaitTime.Store(newAvg)
	}
}

// RecordPushLatency 记录推送延迟
func (m *QueueMetrics) RecordPushLatency(d time.Duration) {
	m.pushLatency.record(d)
}

// RecordProcessLatency 记录处理延迟
func (m *QueueMetrics) RecordProcessLatency(d time.Duration) {
	m.processLatency.record(d)
}

// Snapshot 指标快照，健康检查端点用
type Snapshot struct {
	TotalTasks      int64 `json:"total_tasks"`
	SuccessfulTasks int64 `json:"successful_tasks"`
	FailedTasks     int64 `json:"failed_tasks"`
	AvgWaitTimeMs   int64 `json:"avg_wait_time_ms"`
}

// Stats 返回当前指标快照
func (m *QueueMetrics) Stats() Snapshot {
	return Snapshot{
		TotalTasks:      m.totalTasks.Load(),
		SuccessfulTasks: m.successfulTasks.Load(),
		FailedTasks:     m.failedTasks.Load(),
		AvgWaitTimeMs:   m.avgWaitTime.Load(),
	}
}
