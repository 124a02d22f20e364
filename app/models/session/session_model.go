// 咨询会话，把同一次付费/咨询下的多次解读分组
package session

import (
	"arcana/app/models"
)

// ReadingSession 会话分组模型
// 一次会话下可挂多条 Reading，payment 相关字段为外部计费系统透传值
type ReadingSession struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientID      string `gorm:"type:varchar(36);index" json:"client_id"`
	ReaderID      string `gorm:"type:varchar(36);index;default:null" json:"reader_id,omitempty"`
	PaymentStatus string `gorm:"type:varchar(20)" json:"payment_status,omitempty"` // 外部透传，只读
	Notes         string `gorm:"type:text" json:"notes,omitempty"`

	models.CommonTimestampsField
	models.SoftDeletes
}

// TableName 表名
func (ReadingSession) TableName() string {
	return "reading_sessions"
}
