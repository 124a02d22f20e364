package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"arcana/app/models"
	"arcana/app/models/reading"
	"arcana/pkg/database"
)

// ReadingRepository 解读会话仓库
type ReadingRepository struct {
	db *gorm.DB
}

// NewReadingRepository 创建仓库实例
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{
		db: database.DB,
	}
}

// WithTx 返回一个绑定到指定事务的仓库副本
// 状态流转与审计必须落在同一事务里，见 services 包
func (r *ReadingRepository) WithTx(tx *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: tx}
}

// Create 创建解读记录
func (r *ReadingRepository) Create(ctx context.Context, rd *reading.Reading) error {
	return r.db.WithContext(ctx).Create(rd).Error
}

// GetByID 按 ID 获取解读
func (r *ReadingRepository) GetByID(ctx context.Context, id string) (*reading.Reading, error) {
	var rd reading.Reading
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rd).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("解读")
		}
		return nil, err
	}
	return &rd, nil
}

// UpdateStatus 条件更新状态："从 X 改到 Y，且当前必须是 X"
// 没有命中任何行说明另一并发操作先完成了流转，返回 StateConflict，
// 调用方必须重试或上报冲突，绝不允许静默忽略
func (r *ReadingRepository) UpdateStatus(ctx context.Context, id string, from, to reading.Status) error {
	result := r.db.WithContext(ctx).
		Model(&reading.Reading{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewStateConflict(string(from), string(to))
	}
	return nil
}

// AssignReader 指派解读师，仅允许在尚未指派时设置
func (r *ReadingRepository) AssignReader(ctx context.Context, id, readerID string) error {
	result := r.db.WithContext(ctx).
		Model(&reading.Reading{}).
		Where("id = ? AND (assigned_reader_id IS NULL OR assigned_reader_id = '')", id).
		Update("assigned_reader_id", readerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewStateConflict("unassigned", "assigned")
	}
	return nil
}

// ListExpired 查找已过期但仍处于非终态的解读
// 清扫器按批处理，limit 防止单轮扫描占用过长
func (r *ReadingRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]reading.Reading, error) {
	var readings []reading.Reading
	err := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Where("status NOT IN ?", []reading.Status{
			reading.StatusCompleted,
			reading.StatusCancelled,
			reading.StatusExpired,
		}).
		Order("expires_at ASC").
		Limit(limit).
		Find(&readings).Error
	return readings, err
}

// GetByClientID 获取客户的历史解读（分页）
func (r *ReadingRepository) GetByClientID(ctx context.Context, clientID string, page, pageSize int) ([]reading.Reading, int64, error) {
	var readings []reading.Reading
	var total int64

	query := r.db.WithContext(ctx).Model(&reading.Reading{}).Where("client_id = ?", clientID)

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&readings).Error

	return readings, total, err
}

// GetByReaderID 获取解读师名下待处理的解读（分页）
func (r *ReadingRepository) GetByReaderID(ctx context.Context, readerID string, page, pageSize int) ([]reading.Reading, int64, error) {
	var readings []reading.Reading
	var total int64

	query := r.db.WithContext(ctx).Model(&reading.Reading{}).Where("assigned_reader_id = ?", readerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&readings).Error

	return readings, total, err
}
