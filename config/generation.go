package config

import (
	"arcana/pkg/config"
)

func init() {
	config.Add("generation", func() map[string]interface{} {
		return map[string]interface{}{
			// 上游实例地址和密钥，逗号分隔，一一对应
			"urls":     config.Env("GENERATION_API_URLS", ""),
			"api_keys": config.Env("GENERATION_API_KEYS", ""),

			// 单次请求超时（秒）与跨实例重试次数
			"timeout":     config.Env("GENERATION_TIMEOUT", 90),
			"max_retries": config.Env("GENERATION_MAX_RETRIES", 3),
		}
	})
}
