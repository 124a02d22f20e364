package repositories

import (
	"context"

	"gorm.io/gorm"

	"arcana/app/models/session"
	"arcana/pkg/database"
)

// SessionRepository 咨询会话仓库
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建仓库实例
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		db: database.DB,
	}
}

// WithTx 返回一个绑定到指定事务的仓库副本
func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

// GetOrCreate 按需创建会话
// 会话 ID 由调用方（外部计费系统）给定：首次出现时落一行，
// 已存在时把库里的行读回 sess，不覆盖任何字段
func (r *SessionRepository) GetOrCreate(ctx context.Context, sess *session.ReadingSession) error {
	return r.db.WithContext(ctx).
		Where("id = ?", sess.ID).
		FirstOrCreate(sess).Error
}

// GetByID 按 ID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*session.ReadingSession, error) {
	var sess session.ReadingSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListReadings 列出会话下的全部解读，按创建时间排序
func (r *SessionRepository) ListReadings(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("readings").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}
