// Package notify 通知外部协作方（站内信/推送网关）
// 纯 fire-and-forget：通知失败只记日志，绝不回滚触发它的状态流转
package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"arcana/pkg/config"
	"arcana/pkg/logger"
)

// Event 通知事件类型
type Event string

const (
	EventDraftReady     Event = "draft_ready"      // 通知解读师：草稿待审核
	EventReadyForReveal Event = "ready_for_reveal" // 通知客户：可以翻牌了
	EventCompleted      Event = "completed"        // 通知双方：解读完成
)

// Notifier 通知客户端
type Notifier struct {
	client     *resty.Client
	webhookURL string
}

// NewNotifier 创建通知客户端
// 未配置 webhook 地址时返回禁用状态的实例，调用方无需判空
func NewNotifier() *Notifier {
	url := config.GetString("notify.webhook_url")

	client := resty.New().
		SetTimeout(time.Duration(config.GetInt("notify.timeout", 5)) * time.Second).
		SetRetryCount(config.GetInt("notify.max_retries", 2)).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Notifier{
		client:     client,
		webhookURL: url,
	}
}

// Notify 异步发送一条事件通知
func (n *Notifier) Notify(event Event, readingID string) {
	if n == nil || n.webhookURL == "" {
		return
	}

	go func() {
		resp, err := n.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]interface{}{
				"event":      string(event),
				"reading_id": readingID,
				"sent_at":    time.Now().Unix(),
			}).
			Post(n.webhookURL)
		if err != nil {
			logger.WarnString("Notify", "Send", fmt.Sprintf(
				"通知发送失败 事件:%s 解读:%s 错误:%v", event, readingID, err))
			return
		}
		if resp.StatusCode() >= 300 {
			logger.WarnString("Notify", "Send", fmt.Sprintf(
				"通知返回异常状态 事件:%s 解读:%s 状态:%d", event, readingID, resp.StatusCode()))
		}
	}()
}
