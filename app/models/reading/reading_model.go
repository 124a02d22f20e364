// 塔罗牌解读会话记录
package reading

import (
	"time"

	"gorm.io/gorm"

	"arcana/app/models"
)

// Reading 一次由客户发起的解读会话
// 草稿与终稿内容存放在 card_interpretations 表中，这里只负责会话本身的状态机
type Reading struct {
	ID               string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientID         string      `gorm:"type:varchar(36);index" json:"client_id"`                         // 客户ID
	AssignedReaderID string      `gorm:"type:varchar(36);index;default:null" json:"assigned_reader_id"`   // 指派的解读师ID，可为空
	SessionID        string      `gorm:"type:varchar(36);index;default:null" json:"session_id,omitempty"` // 会话分组ID，可为空
	Type             ReadingType `gorm:"type:varchar(20);index" json:"type"`                              // 解读类型
	Question         string      `gorm:"type:text" json:"question"`                                       // 问题
	SpreadName       string      `gorm:"type:varchar(50)" json:"spread_name"`                             // 牌阵名称
	Cards            Cards       `gorm:"type:json" json:"cards"`                                          // 抽出的卡牌及正逆位
	Status           Status      `gorm:"type:varchar(20);index" json:"status"`                            // 状态机状态

	// AIDraftVisibleToClient 必须永远为 false
	// 这是硬性不变量而不是功能开关，所有写入路径都会强制覆盖为 false
	AIDraftVisibleToClient bool `gorm:"column:ai_draft_visible_to_client;default:false" json:"-"`

	// PaymentStatus 外部计费系统透传的支付状态，本引擎只读不写
	PaymentStatus string `gorm:"type:varchar(20)" json:"payment_status,omitempty"`

	// ExpiresAt 过期时间，默认为创建时间 + 24 小时
	// 解读不做物理删除，取消/过期的记录保留用于审计
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	models.CommonTimestampsField // 包含 created_at 和 updated_at
}

// TableName 指定表名
func (Reading) TableName() string {
	return "readings"
}

// BeforeSave GORM 钩子，任何写入路径都强制草稿对客户不可见
func (r *Reading) BeforeSave(tx *gorm.DB) error {
	r.AIDraftVisibleToClient = false
	return nil
}

// BeforeCreate GORM 钩子，创建时做完整校验
// 状态更新走仓库层的条件更新，不经过完整校验
func (r *Reading) BeforeCreate(tx *gorm.DB) error {
	return r.Validate()
}

// DefaultTTL 解读的默认存活时长
const DefaultTTL = 24 * time.Hour
