package migrations

import (
	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/models/session"
)

// RegisterTables 返回需要迁移的表的模型列表
func RegisterTables() []interface{} {
	return []interface{}{
		&session.ReadingSession{},
		&reading.Reading{},
		&interpretation.CardInterpretation{},
		&audit.AuditEvent{},
	}
}
