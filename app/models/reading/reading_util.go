package reading

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ReadingType 解读类型
type ReadingType string

const (
	TypeAutomatedDraft ReadingType = "automated_draft" // 自动起草，解读师审核后逐张揭示
	TypeReaderGuided   ReadingType = "reader_guided"   // 解读师主导
	TypeClientReveal   ReadingType = "client_reveal"   // 客户逐张翻牌
)

// Status 解读状态机状态
type Status string

const (
	StatusInitiated      Status = "initiated"        // 已创建，等待起草
	StatusDrafting       Status = "drafting"         // 生成服务起草中
	StatusDraftReady     Status = "draft_ready"      // 草稿就绪，等待解读师审核
	StatusReviewing      Status = "reviewing"        // 解读师审核中
	StatusEditing        Status = "editing"          // 解读师编辑中
	StatusApproved       Status = "approved"         // 所有牌位审核通过
	StatusReadyForReveal Status = "ready_for_reveal" // 可供客户翻牌
	StatusRevealed       Status = "revealed"         // 部分牌位已揭示
	StatusCompleted      Status = "completed"        // 全部揭示，终态
	StatusCancelled      Status = "cancelled"        // 已取消，终态
	StatusExpired        Status = "expired"          // 已过期，终态
)

// transitions 状态机允许的流转表
// 取消可从任何非终态进入；过期由清扫器通过同一条路径触发
var transitions = map[Status][]Status{
	StatusInitiated:      {StatusDrafting, StatusCancelled, StatusExpired},
	StatusDrafting:       {StatusDraftReady, StatusCancelled, StatusExpired},
	StatusDraftReady:     {StatusReviewing, StatusCancelled, StatusExpired},
	StatusReviewing:      {StatusEditing, StatusApproved, StatusCancelled, StatusExpired},
	StatusEditing:        {StatusApproved, StatusCancelled, StatusExpired},
	StatusApproved:       {StatusReadyForReveal, StatusCancelled, StatusExpired},
	StatusReadyForReveal: {StatusRevealed, StatusCancelled, StatusExpired},
	StatusRevealed:       {StatusCompleted, StatusCancelled, StatusExpired},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusExpired:        {},
}

// CanTransition 判断状态机是否允许 from -> to 的流转
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Orientation 卡牌正逆位
type Orientation string

const (
	OrientationUpright  Orientation = "upright"  // 正位
	OrientationReversed Orientation = "reversed" // 逆位
)

// CardDraw 一次抽牌结果（第几张牌、正逆位）
type CardDraw struct {
	CardID      int         `json:"card_id"`
	Orientation Orientation `json:"orientation"`
}

// Cards 自定义类型，处理抽牌数组的 JSON 序列化
type Cards []CardDraw

// Value 实现 driver.Valuer 接口
func (c Cards) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner 接口
func (c *Cards) Scan(value interface{}) error {
	if value == nil {
		*c = Cards{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid type for cards")
	}

	return json.Unmarshal(bytes, c)
}

// Validate 验证记录
func (r *Reading) Validate() error {
	if r.ClientID == "" {
		return errors.New("client_id is required")
	}
	if r.Type != TypeAutomatedDraft && r.Type != TypeReaderGuided && r.Type != TypeClientReveal {
		return errors.New("invalid reading type")
	}
	if len(r.Cards) == 0 {
		return errors.New("cards cannot be empty")
	}
	if len(r.Cards) > 10 {
		return errors.New("maximum 10 cards allowed")
	}
	return nil
}

// IsTerminal 当前解读是否处于终态
func (r *Reading) IsTerminal() bool {
	return IsTerminal(r.Status)
}

// IsRevealable 当前解读是否可以翻牌
func (r *Reading) IsRevealable() bool {
	return r.Status == StatusReadyForReveal || r.Status == StatusRevealed
}

// IsCompleted 检查是否已完成
func (r *Reading) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// IsCancelled 检查是否已取消
func (r *Reading) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// IsExpired 检查是否已过期
func (r *Reading) IsExpired() bool {
	return r.Status == StatusExpired
}
