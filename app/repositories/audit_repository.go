package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"arcana/app/models/audit"
	"arcana/pkg/database"
)

// AuditRepository 审计事件仓库，只提供追加与查询，没有更新和删除
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建仓库实例
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{
		db: database.DB,
	}
}

// WithTx 返回一个绑定到指定事务的仓库副本
// 审计必须与触发它的操作同事务落库，审计写失败则整个操作回滚
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Record 追加一条审计事件
// security_violation 在这里派生，不信任调用方传入的值
func (r *AuditRepository) Record(ctx context.Context, event *audit.AuditEvent) error {
	event.SecurityViolation = audit.DeriveViolation(event.Action, event.Granted)
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByReading 按提交顺序列出一次解读的完整审计轨迹
// 自增主键保证同一解读内事件的可观察顺序与提交顺序一致
func (r *AuditRepository) ListByReading(ctx context.Context, readingID string) ([]audit.AuditEvent, error) {
	var events []audit.AuditEvent
	err := r.db.WithContext(ctx).
		Where("reading_id = ?", readingID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// ViolationFilters 违规查询条件
type ViolationFilters struct {
	ReadingID string
	ActorID   string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// QueryViolations 查询安全违规事件，仅供内部监控使用，
// 永远不要挂到面向客户的路由上
func (r *AuditRepository) QueryViolations(ctx context.Context, filters ViolationFilters) ([]audit.AuditEvent, error) {
	query := r.db.WithContext(ctx).
		Model(&audit.AuditEvent{}).
		Where("security_violation = ?", true)

	if filters.ReadingID != "" {
		query = query.Where("reading_id = ?", filters.ReadingID)
	}
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if !filters.Since.IsZero() {
		query = query.Where("created_at >= ?", filters.Since)
	}
	if !filters.Until.IsZero() {
		query = query.Where("created_at <= ?", filters.Until)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var events []audit.AuditEvent
	err := query.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// CountByReading 一次解读的审计事件总数
func (r *AuditRepository) CountByReading(ctx context.Context, readingID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&audit.AuditEvent{}).
		Where("reading_id = ?", readingID).
		Count(&total).Error
	return total, err
}
