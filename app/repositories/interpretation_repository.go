package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"arcana/app/models"
	"arcana/app/models/interpretation"
	"arcana/pkg/database"
)

// InterpretationRepository 牌位解读内容仓库
type InterpretationRepository struct {
	db *gorm.DB
}

// NewInterpretationRepository 创建仓库实例
func NewInterpretationRepository() *InterpretationRepository {
	return &InterpretationRepository{
		db: database.DB,
	}
}

// WithTx 返回一个绑定到指定事务的仓库副本
func (r *InterpretationRepository) WithTx(tx *gorm.DB) *InterpretationRepository {
	return &InterpretationRepository{db: tx}
}

// CreateDrafts 写入生成服务产出的草稿内容
// 这是草稿内容唯一的创建入口：不论调用方传入什么，
// reader_approved 与 visible_to_client 一律强制置为 false
func (r *InterpretationRepository) CreateDrafts(ctx context.Context, drafts []interpretation.CardInterpretation) error {
	if len(drafts) == 0 {
		return errors.New("no drafts to create")
	}
	for i := range drafts {
		drafts[i].ReaderApproved = false
		drafts[i].VisibleToClient = false
	}
	return r.db.WithContext(ctx).Create(&drafts).Error
}

// ListByReading 按牌位顺序列出一次解读的全部内容
func (r *InterpretationRepository) ListByReading(ctx context.Context, readingID string) ([]interpretation.CardInterpretation, error) {
	var items []interpretation.CardInterpretation
	err := r.db.WithContext(ctx).
		Where("reading_id = ?", readingID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

// GetByPosition 获取指定牌位
func (r *InterpretationRepository) GetByPosition(ctx context.Context, readingID string, position int) (*interpretation.CardInterpretation, error) {
	var item interpretation.CardInterpretation
	err := r.db.WithContext(ctx).
		Where("reading_id = ? AND position = ?", readingID, position).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("牌位")
		}
		return nil, err
	}
	return &item, nil
}

// UpdateFinal 写入解读师的终稿内容并把该牌位标记为审核通过
// reader_approved 只会从 false 变为 true，从不回退
func (r *InterpretationRepository) UpdateFinal(ctx context.Context, readingID string, position int, finalText string, finalKeywords interpretation.Keywords, confidence float64) error {
	result := r.db.WithContext(ctx).
		Model(&interpretation.CardInterpretation{}).
		Where("reading_id = ? AND position = ?", readingID, position).
		Updates(map[string]interface{}{
			"final_text":        finalText,
			"final_keywords":    finalKeywords,
			"reader_approved":   true,
			"reader_confidence": confidence,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewNotFound("牌位")
	}
	return nil
}

// Count 一次解读的牌位总数
func (r *InterpretationRepository) Count(ctx context.Context, readingID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&interpretation.CardInterpretation{}).
		Where("reading_id = ?", readingID).
		Count(&total).Error
	return total, err
}

// CountUnapproved 尚未审核通过的牌位数
func (r *InterpretationRepository) CountUnapproved(ctx context.Context, readingID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&interpretation.CardInterpretation{}).
		Where("reading_id = ? AND reader_approved = ?", readingID, false).
		Count(&total).Error
	return total, err
}

// CountRevealed 已对客户揭示的牌位数
func (r *InterpretationRepository) CountRevealed(ctx context.Context, readingID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&interpretation.CardInterpretation{}).
		Where("reading_id = ? AND visible_to_client = ?", readingID, true).
		Count(&total).Error
	return total, err
}

// Reveal 条件更新揭示一个牌位
// 只有"已审核通过且尚未揭示"的行会被命中，命中 0 行说明竞争失败
// 或该牌位已被揭示，由调用方结合当前行状态区分
func (r *InterpretationRepository) Reveal(ctx context.Context, readingID string, position int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&interpretation.CardInterpretation{}).
		Where("reading_id = ? AND position = ? AND reader_approved = ? AND visible_to_client = ?",
			readingID, position, true, false).
		Updates(map[string]interface{}{
			"visible_to_client": true,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
