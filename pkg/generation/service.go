// Package generation 对接解读草稿生成服务
// 支持多实例负载均衡、故障转移和自动恢复；
// 对本引擎而言生成方是不透明的上游，这里只管调用与容错
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"arcana/app/models/reading"
	"arcana/pkg/config"
	"arcana/pkg/logger"
)

// Service 生成服务客户端
type Service struct {
	instances  []*Instance   // 上游实例列表
	numRetries int           // 重试次数
	timeout    time.Duration // 请求超时时间
	mu         sync.RWMutex  // 保护实例状态
}

// Instance 单个上游实例
type Instance struct {
	URL        string
	APIKey     string
	Health     bool
	Client     *resty.Client
	LastErr    error
	LastUsed   time.Time // 最后一次成功使用时间
	ErrorCount int       // 连续错误计数
	requests   int64     // 累计请求数，用于最少负载选择
}

// NewService 创建生成服务客户端
// 配置不完整时返回 nil，由调用方决定降级策略
func NewService(config *Config) *Service {
	if config == nil || len(config.URLs) == 0 || len(config.APIKeys) == 0 {
		return nil
	}

	service := &Service{
		instances:  make([]*Instance, 0, len(config.URLs)),
		numRetries: config.MaxRetries,
		timeout:    config.Timeout,
	}
	if service.numRetries <= 0 {
		service.numRetries = 3
	}

	for i := 0; i < len(config.URLs) && i < len(config.APIKeys); i++ {
		if instance := newInstance(config.URLs[i], config.APIKeys[i], config.Timeout); instance != nil {
			service.instances = append(service.instances, instance)
		}
	}

	if len(service.instances) == 0 {
		return nil
	}
	return service
}

// NewServiceFromConfig 从配置装配生成服务
// 地址和密钥以逗号分隔，一一对应
func NewServiceFromConfig() *Service {
	urls := splitAndTrim(config.GetString("generation.urls"))
	keys := splitAndTrim(config.GetString("generation.api_keys"))

	return NewService(&Config{
		URLs:       urls,
		APIKeys:    keys,
		Timeout:    time.Duration(config.GetInt("generation.timeout")) * time.Second,
		MaxRetries: config.GetInt("generation.max_retries"),
	})
}

// splitAndTrim 按逗号拆分并去除空白项
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// newInstance 创建上游实例
func newInstance(url, apiKey string, timeout time.Duration) *Instance {
	if url == "" || apiKey == "" {
		return nil
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Instance{
		URL:      strings.TrimRight(url, "/"),
		APIKey:   apiKey,
		Health:   true,
		Client:   client,
		LastUsed: time.Now(),
	}
}

// GenerateDrafts 为一次解读生成各牌位的草稿
// 跨实例重试，全部失败时返回最后一个错误
func (s *Service) GenerateDrafts(ctx context.Context, question, spreadName string, cards reading.Cards) ([]PositionDraft, error) {
	var lastErr error

	for i := 0; i < s.numRetries; i++ {
		instance, err := s.pickInstance()
		if err != nil {
			return nil, fmt.Errorf("no available generation instance: %w", err)
		}

		drafts, err := s.call(ctx, instance, question, spreadName, cards)
		if err != nil {
			s.markFailure(instance, err)
			lastErr = err
			logger.WarnString("Generation", "Request", fmt.Sprintf(
				"实例 %s 请求失败: %v", shortenURL(instance.URL), err))
			continue
		}

		s.markSuccess(instance)
		return drafts, nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// call 调用单个实例
func (s *Service) call(ctx context.Context, instance *Instance, question, spreadName string, cards reading.Cards) ([]PositionDraft, error) {
	reqBody := GenerationRequest{
		Inputs: map[string]interface{}{
			"question": question,
			"spread":   spreadName,
			"cards":    formatCards(cards),
		},
		ResponseMode: "blocking",
		User:         "arcana-engine",
	}

	resp, err := instance.Client.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", instance.APIKey)).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(fmt.Sprintf("%s/v1/workflows/run", instance.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to call generation api: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("generation api returned non-200 status: %d, body: %s",
			resp.StatusCode(), resp.String())
	}

	var genResp GenerationResponse
	if err := json.Unmarshal(resp.Body(), &genResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generation response: %w", err)
	}

	if len(genResp.Data.Positions) != len(cards) {
		return nil, fmt.Errorf("generation returned %d positions, expected %d",
			len(genResp.Data.Positions), len(cards))
	}
	return genResp.Data.Positions, nil
}

// pickInstance 选择健康且负载最小的实例
// 全部不健康时重置状态再给一次机会，避免偶发网络抖动后永久熄火
func (s *Service) pickInstance() (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selected *Instance
	for _, instance := range s.instances {
		if !instance.Health {
			continue
		}
		if selected == nil || instance.requests < selected.requests {
			selected = instance
		}
	}

	if selected == nil {
		if len(s.instances) == 0 {
			return nil, errors.New("no generation instances configured")
		}
		for _, instance := range s.instances {
			instance.Health = true
			instance.ErrorCount = 0
		}
		logger.InfoString("Generation", "Reset", "所有实例均不健康，已重置状态")
		selected = s.instances[0]
	}

	selected.requests++
	return selected, nil
}

// markSuccess 记录一次成功调用
func (s *Service) markSuccess(instance *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance.Health = true
	instance.ErrorCount = 0
	instance.LastUsed = time.Now()
	instance.LastErr = nil
}

// markFailure 记录一次失败，连续错误超过阈值才标记为不健康
func (s *Service) markFailure(instance *Instance, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance.ErrorCount++
	instance.LastErr = err

	if instance.ErrorCount >= 3 {
		instance.Health = false
		logger.WarnString("Generation", "Instance", fmt.Sprintf(
			"实例 %s 被标记为不健康: 连续 %d 次错误, 最后错误: %v",
			shortenURL(instance.URL), instance.ErrorCount, err))
	}
}

// HealthCheck 检查是否还有健康实例
func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastErr error
	for _, instance := range s.instances {
		if instance.Health {
			return nil
		}
		if instance.LastErr != nil {
			lastErr = instance.LastErr
		}
	}

	if lastErr != nil {
		return fmt.Errorf("no healthy generation instance available: %w", lastErr)
	}
	return errors.New("no healthy generation instance available")
}

// formatCards 把抽牌结果格式化为上游约定的字符串，如 "3:upright,17:reversed"
func formatCards(cards reading.Cards) string {
	parts := make([]string, len(cards))
	for i, card := range cards {
		parts[i] = fmt.Sprintf("%d:%s", card.CardID, card.Orientation)
	}
	return strings.Join(parts, ",")
}

// shortenURL 缩短 URL 用于日志显示
func shortenURL(url string) string {
	if len(url) > 30 {
		return url[:15] + "..." + url[len(url)-12:]
	}
	return url
}
