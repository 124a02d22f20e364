package services

import (
	"context"

	"gorm.io/gorm"

	"arcana/app/models"
	"arcana/app/models/audit"
	"arcana/app/models/reading"
	"arcana/app/policies"
	"arcana/app/repositories"
	"arcana/pkg/notify"
)

// RevealResult 一次翻牌请求的结果
type RevealResult struct {
	Position        int            `json:"position"`
	AlreadyRevealed bool           `json:"already_revealed"` // 幂等命中：该牌位此前已揭示
	ReadingStatus   reading.Status `json:"reading_status"`   // 翻牌后的解读状态
	Card            *CardView      `json:"card,omitempty"`   // 揭示出的终稿内容
}

// RequestReveal 客户请求揭示一个牌位
//
// 顺序规则：nextExpected = 已揭示数 + 1，仅当 position == nextExpected 时成功；
// 重复请求已揭示的牌位为幂等成功，不产生新的审计事件；
// 越序请求返回 SequenceViolation 并附带 nextExpected，该拒绝总是落审计。
// 同一牌位的并发请求由牌位行上的条件更新裁决，胜者唯一
func (s *ReadingService) RequestReveal(ctx context.Context, actor policies.Actor, readingID string, position int) (*RevealResult, error) {
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	switch rd.Status {
	case reading.StatusExpired:
		return nil, models.NewReadingExpired()
	case reading.StatusCancelled:
		return nil, models.NewReadingCancelled()
	}

	if decision := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentNone, nil); !decision.Granted {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentFinal, position, decision.Reason); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied(decision.Reason)
	}
	if actor.Role != policies.RoleClient && actor.Role != policies.RoleAdmin {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentFinal, position, "翻牌只能由客户发起"); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied("翻牌只能由客户发起")
	}

	// 已完成的解读允许幂等地重放已揭示的牌位
	if !rd.IsRevealable() && rd.Status != reading.StatusCompleted {
		return nil, models.NewInvalidTransition(string(rd.Status), string(reading.StatusRevealed))
	}

	if position < 1 {
		return nil, models.NewSequenceViolation(1)
	}

	result := &RevealResult{Position: position, ReadingStatus: rd.Status}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		readings := repositories.NewReadingRepository().WithTx(tx)
		interps := repositories.NewInterpretationRepository().WithTx(tx)
		audits := repositories.NewAuditRepository().WithTx(tx)

		revealed, err := interps.CountRevealed(ctx, readingID)
		if err != nil {
			return err
		}
		total, err := interps.Count(ctx, readingID)
		if err != nil {
			return err
		}
		nextExpected := int(revealed) + 1

		// 幂等路径：重复请求已揭示的牌位，成功返回且不追加审计
		if position <= int(revealed) {
			ci, err := interps.GetByPosition(ctx, readingID, position)
			if err != nil {
				return err
			}
			if ci.VisibleToClient {
				result.AlreadyRevealed = true
				result.Card = newCardView(ci, true)
				return nil
			}
			// 计数大于牌位却不可见，说明数据被越过了序列化路径修改
			return models.NewStateConflict("revealed", "revealed")
		}

		// 越序：返回 SequenceViolation 使事务回滚，
		// 对应的拒绝审计在事务外补记，见下方错误处理
		if position != nextExpected {
			return models.NewSequenceViolation(nextExpected)
		}

		// 前置条件：该牌位必须已审核通过
		ci, err := interps.GetByPosition(ctx, readingID, position)
		if err != nil {
			return err
		}
		if !ci.ReaderApproved {
			return models.NewAccessDenied("该牌位尚未审核通过，不能揭示")
		}

		// 条件更新裁决并发：同一牌位只有一个胜者
		won, err := interps.Reveal(ctx, readingID, position)
		if err != nil {
			return err
		}
		if !won {
			// 输掉竞争：该牌位已被并发请求揭示，按幂等成功处理
			current, err := interps.GetByPosition(ctx, readingID, position)
			if err != nil {
				return err
			}
			if current.VisibleToClient {
				result.AlreadyRevealed = true
				result.Card = newCardView(current, true)
				return nil
			}
			return models.NewStateConflict("pending", "revealed")
		}

		// 第一张牌揭示时推进 ready_for_reveal -> revealed
		if rd.Status == reading.StatusReadyForReveal {
			if err := readings.UpdateStatus(ctx, readingID, reading.StatusReadyForReveal, reading.StatusRevealed); err != nil {
				return err
			}
			if err := audits.Record(ctx, &audit.AuditEvent{
				ReadingID:   readingID,
				ActorID:     actor.ID,
				ActorRole:   string(actor.Role),
				Action:      audit.ActionStateTransition,
				Granted:     true,
				ContentType: audit.ContentNone,
				FromStatus:  string(reading.StatusReadyForReveal),
				ToStatus:    string(reading.StatusRevealed),
			}); err != nil {
				return err
			}
			result.ReadingStatus = reading.StatusRevealed
		}

		if err := audits.Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      audit.ActionReveal,
			Granted:     true,
			ContentType: audit.ContentFinal,
			Position:    position,
		}); err != nil {
			return err
		}

		ci.VisibleToClient = true
		result.Card = newCardView(ci, true)

		// 最后一张牌消耗完毕后解读进入 completed
		if int64(position) == total {
			if err := readings.UpdateStatus(ctx, readingID, reading.StatusRevealed, reading.StatusCompleted); err != nil {
				return err
			}
			if err := audits.Record(ctx, &audit.AuditEvent{
				ReadingID:   readingID,
				ActorID:     actor.ID,
				ActorRole:   string(actor.Role),
				Action:      audit.ActionStateTransition,
				Granted:     true,
				ContentType: audit.ContentNone,
				FromStatus:  string(reading.StatusRevealed),
				ToStatus:    string(reading.StatusCompleted),
			}); err != nil {
				return err
			}
			result.ReadingStatus = reading.StatusCompleted
		}

		return nil
	})
	if err != nil {
		// 事务内的拒绝（越序、未审核）随回滚丢失写入，
		// 在这里补记拒绝审计，保证每次被拒的揭示尝试都有痕迹
		if de := models.AsDomainError(err); de != nil &&
			(de.Code == models.CodeSequenceViolation || de.Code == models.CodeAccessDenied) {
			if aerr := repositories.NewAuditRepository().Record(ctx, &audit.AuditEvent{
				ReadingID:    readingID,
				ActorID:      actor.ID,
				ActorRole:    string(actor.Role),
				Action:       audit.ActionReveal,
				Granted:      false,
				DenialReason: de.Reason,
				ContentType:  audit.ContentFinal,
				Position:     position,
			}); aerr != nil {
				return nil, aerr
			}
		}
		return nil, err
	}

	if result.ReadingStatus == reading.StatusCompleted && !result.AlreadyRevealed {
		s.notifier.Notify(notify.EventCompleted, readingID)
	}
	return result, nil
}
