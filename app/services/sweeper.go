package services

import (
	"context"
	"fmt"
	"time"

	"arcana/app/models"
	"arcana/app/repositories"
	"arcana/pkg/logger"
	"arcana/pkg/redis"
)

// ExpirySweeper 过期清扫器
// 周期性扫描 expires_at 已过的非终态解读，通过正常的生命周期路径
// 把它们推进到 expired，审计与不变量照常生效，不做批量直改
//
// 多实例部署时通过 Redis 互斥锁保证同一时刻只有一个清扫器在跑；
// 单条解读层面的竞争由状态条件更新兜底
type ExpirySweeper struct {
	service   *ReadingService
	interval  time.Duration
	batchSize int
	lockKey   string
	lockTTL   time.Duration
	stopChan  chan struct{}
	done      chan struct{}
}

// SweeperConfig 清扫器配置
type SweeperConfig struct {
	Interval  time.Duration // 扫描间隔，默认 5 分钟
	BatchSize int           // 单轮最多处理多少条
	LockKey   string        // 互斥锁键名
	LockTTL   time.Duration // 锁的 TTL，应大于单轮扫描耗时
}

// NewExpirySweeper 创建清扫器，不会自动启动，调用 Start 开始循环
func NewExpirySweeper(service *ReadingService, config SweeperConfig) *ExpirySweeper {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.LockKey == "" {
		config.LockKey = "arcana:sweeper:lock"
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 2 * time.Minute
	}

	return &ExpirySweeper{
		service:   service,
		interval:  config.Interval,
		batchSize: config.BatchSize,
		lockKey:   config.LockKey,
		lockTTL:   config.LockTTL,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start 启动清扫循环，应在独立的 goroutine 中调用
func (s *ExpirySweeper) Start() {
	defer close(s.done)

	logger.InfoString("Sweeper", "Start", fmt.Sprintf("过期清扫器启动，间隔 %v", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			logger.InfoString("Sweeper", "Stop", "过期清扫器已停止")
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// Stop 停止清扫循环并等待当前轮次结束
func (s *ExpirySweeper) Stop() {
	close(s.stopChan)

	select {
	case <-s.done:
	case <-time.After(30 * time.Second):
		logger.WarnString("Sweeper", "Stop", "等待清扫器退出超时")
	}
}

// SweepOnce 执行一轮清扫，返回处理掉的解读数量
// 拿不到互斥锁说明另一实例在跑，本轮直接跳过；
// 未初始化 Redis 的场景（单实例、测试）直接清扫
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	if redis.Redis != nil {
		token, ok := redis.Redis.Lock(s.lockKey, s.lockTTL)
		if !ok {
			logger.DebugString("Sweeper", "Lock", "互斥锁被其他实例持有，跳过本轮")
			return 0
		}
		defer redis.Redis.Unlock(s.lockKey, token)
	}

	return s.sweep(ctx)
}

// sweep 清扫逻辑本体
func (s *ExpirySweeper) sweep(ctx context.Context) int {
	expired, err := repositories.NewReadingRepository().ListExpired(ctx, time.Now(), s.batchSize)
	if err != nil {
		logger.ErrorString("Sweeper", "List", err.Error())
		return 0
	}

	count := 0
	for _, rd := range expired {
		if err := s.service.Expire(ctx, rd.ID); err != nil {
			// 竞争失败说明另一条路径先完成了流转，跳过即可
			if models.IsDomainCode(err, models.CodeStateConflict) {
				continue
			}
			logger.ErrorString("Sweeper", "Expire", fmt.Sprintf("解读 %s 过期处理失败: %v", rd.ID, err))
			continue
		}
		count++
	}

	if count > 0 {
		logger.InfoString("Sweeper", "Sweep", fmt.Sprintf("本轮处理 %d 条过期解读", count))
	}
	return count
}
