// 访问审计事件，只追加、不更新、不删除
package audit

import (
	"time"

	"gorm.io/gorm"
)

// Action 审计动作类型
type Action string

const (
	ActionViewDraft          Action = "view_draft"                    // 查看草稿
	ActionEditDraft          Action = "edit_draft"                    // 编辑草稿/撰写终稿
	ActionApproveDraft       Action = "approve_draft"                 // 审核通过
	ActionReveal             Action = "reveal"                        // 向客户揭示牌位
	ActionStateTransition    Action = "state_transition"              // 生命周期状态流转
	ActionUnauthorizedAccess Action = "attempted_unauthorized_access" // 越权访问尝试
)

// ContentType 被触碰的内容类型
type ContentType string

const (
	ContentDraft ContentType = "draft" // 草稿内容
	ContentFinal ContentType = "final" // 终稿内容
	ContentNone  ContentType = "none"  // 不涉及内容本体（纯状态流转）
)

// AuditEvent 一条访问尝试记录
// 写入后不可变更；事件在同一数据库事务内随触发操作落库，
// 事务失败则操作整体回滚，保证审计轨迹完整
type AuditEvent struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ReadingID string `gorm:"type:varchar(36);index" json:"reading_id"`
	ActorID   string `gorm:"type:varchar(36);index" json:"actor_id"`
	ActorRole string `gorm:"type:varchar(20);index" json:"actor_role"`

	Action       Action      `gorm:"type:varchar(40);index" json:"action"`
	Granted      bool        `gorm:"index" json:"granted"`
	DenialReason string      `gorm:"type:text" json:"denial_reason,omitempty"`
	ContentType  ContentType `gorm:"type:varchar(10)" json:"content_type"`

	// Position 涉及具体牌位的事件（揭示、编辑）填写，其余为 0
	Position int `gorm:"default:0" json:"position,omitempty"`

	// FromStatus/ToStatus 仅状态流转事件填写，便于审计回放
	FromStatus string `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   string `gorm:"type:varchar(20)" json:"to_status,omitempty"`

	// SecurityViolation 为派生字段：客户角色尝试访问草稿被拒时为 true
	SecurityViolation bool `gorm:"index" json:"security_violation"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (AuditEvent) TableName() string {
	return "audit_events"
}

// BeforeCreate GORM 钩子，落库前派生 security_violation
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	e.SecurityViolation = DeriveViolation(e.Action, e.Granted)
	return nil
}

// DeriveViolation 判定一次尝试是否构成安全违规
// 规则：view_draft 或 attempted_unauthorized_access 且被拒绝
func DeriveViolation(action Action, granted bool) bool {
	if granted {
		return false
	}
	return action == ActionViewDraft || action == ActionUnauthorizedAccess
}
