package config

import "arcana/pkg/config"

func init() {
	config.Add("sweeper", func() map[string]interface{} {
		return map[string]interface{}{
			// 扫描间隔（秒）
			"interval": config.Env("SWEEPER_INTERVAL", 300),

			// 单轮最多处理多少条过期解读
			"batch_size": config.Env("SWEEPER_BATCH_SIZE", 100),

			// 多实例部署时的互斥锁
			"lock_key": config.Env("SWEEPER_LOCK_KEY", "arcana:sweeper:lock"),
			"lock_ttl": config.Env("SWEEPER_LOCK_TTL", 120),
		}
	})
}
