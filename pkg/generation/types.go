package generation

import "time"

// Config 生成服务配置
// 支持多个上游实例做负载均衡与故障转移
type Config struct {
	URLs       []string      // 上游实例地址列表
	APIKeys    []string      // 与 URLs 一一对应的密钥
	Timeout    time.Duration // 单次请求超时
	MaxRetries int           // 跨实例重试次数
}

// GenerationRequest 上游 API 请求结构
type GenerationRequest struct {
	Inputs       map[string]interface{} `json:"inputs"`
	ResponseMode string                 `json:"response_mode"`
	User         string                 `json:"user"`
}

// PositionDraft 单个牌位的草稿产出
type PositionDraft struct {
	Position int      `json:"position"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// GenerationResponse 上游 API 响应结构
type GenerationResponse struct {
	Data struct {
		Positions []PositionDraft `json:"positions"`
	} `json:"data"`
}
