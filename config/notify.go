package config

import "arcana/pkg/config"

func init() {
	config.Add("notify", func() map[string]interface{} {
		return map[string]interface{}{
			// 状态事件回调地址，为空则不通知
			"webhook_url": config.Env("NOTIFY_WEBHOOK_URL", ""),

			"timeout":     config.Env("NOTIFY_TIMEOUT", 5),
			"max_retries": config.Env("NOTIFY_MAX_RETRIES", 2),
		}
	})
}
