package bootstrap

import (
	"time"

	"arcana/app/services"
	"arcana/pkg/config"
	"arcana/pkg/logger"
)

// SetupSweeper 启动过期解读清扫器
// 返回清扫器以便主程序优雅关闭时回收
func SetupSweeper() *services.ExpirySweeper {
	sweeper := services.NewExpirySweeper(
		services.NewReadingService(),
		services.SweeperConfig{
			Interval:  time.Duration(config.GetInt("sweeper.interval", 300)) * time.Second,
			BatchSize: config.GetInt("sweeper.batch_size", 100),
			LockKey:   config.GetString("sweeper.lock_key", "arcana:sweeper:lock"),
			LockTTL:   time.Duration(config.GetInt("sweeper.lock_ttl", 120)) * time.Second,
		},
	)

	go sweeper.Start()

	logger.InfoString("Sweeper", "Setup", "过期清扫器启动成功")
	return sweeper
}
