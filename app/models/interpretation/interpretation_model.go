// 单张卡牌的解读内容
package interpretation

import (
	"arcana/app/models"
	"arcana/app/models/reading"
)

// CardInterpretation 一次解读中单个牌位的内容
// (reading_id, position) 为复合唯一键，position 从 1 开始连续编号
type CardInterpretation struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ReadingID string `gorm:"type:varchar(36);index;uniqueIndex:uk_reading_position" json:"reading_id"`
	Position  int    `gorm:"uniqueIndex:uk_reading_position" json:"position"`

	CardID      int                 `gorm:"" json:"card_id"`                           // 卡牌编号
	Orientation reading.Orientation `gorm:"type:varchar(10)" json:"orientation"`       // 正位/逆位

	// 草稿内容由生成服务产出，任何客户侧读路径都不返回，
	// 除非 reader_approved 与 visible_to_client 同时为 true
	DraftText     string   `gorm:"type:text" json:"draft_text,omitempty"`
	DraftKeywords Keywords `gorm:"type:json" json:"draft_keywords,omitempty"`

	// 终稿内容由解读师撰写或改写，揭示后客户可见的就是这部分
	FinalText     string   `gorm:"type:text" json:"final_text,omitempty"`
	FinalKeywords Keywords `gorm:"type:json" json:"final_keywords,omitempty"`

	// ReaderApproved 由指派的解读师（或代行的管理员）设置且只设置一次
	ReaderApproved bool `gorm:"default:false;index" json:"reader_approved"`

	// VisibleToClient 只能由揭示操作置真，且必须在 ReaderApproved 之后
	// 不变量：visible_to_client ⇒ reader_approved
	VisibleToClient bool `gorm:"default:false;index" json:"visible_to_client"`

	// 以下为可选遥测字段，目前没有消费方，不构成行为契约
	ReaderConfidence    float64 `gorm:"default:0" json:"reader_confidence,omitempty"`
	QualityScore        float64 `gorm:"default:0" json:"quality_score,omitempty"`
	RequiresHumanReview bool    `gorm:"default:false" json:"requires_human_review,omitempty"`

	models.CommonTimestampsField
}

// TableName 指定表名
func (CardInterpretation) TableName() string {
	return "card_interpretations"
}
