package interpretation

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

// Keywords 自定义类型，处理关键词数组的 JSON 序列化
type Keywords []string

// Value 实现 driver.Valuer 接口
func (k Keywords) Value() (driver.Value, error) {
	if len(k) == 0 {
		return "[]", nil
	}
	return json.Marshal(k)
}

// Scan 实现 sql.Scanner 接口
func (k *Keywords) Scan(value interface{}) error {
	if value == nil {
		*k = Keywords{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid type for keywords")
	}

	return json.Unmarshal(bytes, k)
}

// Validate 验证记录
// visible_to_client ⇒ reader_approved 在此兜底校验一次，
// 领域层的门禁与条件更新才是第一道防线
func (ci *CardInterpretation) Validate() error {
	if ci.ReadingID == "" {
		return errors.New("reading_id is required")
	}
	if ci.Position < 1 {
		return errors.New("position must start from 1")
	}
	if ci.VisibleToClient && !ci.ReaderApproved {
		return errors.New("visible_to_client requires reader_approved")
	}
	return nil
}

// BeforeCreate GORM 钩子，只在创建时做完整校验
// 更新路径走仓库层的条件更新，校验条件就编码在 WHERE 里
func (ci *CardInterpretation) BeforeCreate(tx *gorm.DB) error {
	return ci.Validate()
}

// IsRevealed 该牌位是否已对客户揭示
func (ci *CardInterpretation) IsRevealed() bool {
	return ci.VisibleToClient
}
