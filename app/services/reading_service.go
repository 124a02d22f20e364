// Package services 解读生命周期的领域逻辑
// 所有状态流转都走这里：条件更新保证并发安全，
// 审计事件与流转同事务落库，审计写失败则流转整体回滚
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"arcana/app/models"
	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/models/session"
	"arcana/app/policies"
	"arcana/app/repositories"
	"arcana/pkg/database"
	"arcana/pkg/logger"
	"arcana/pkg/notify"
)

// SystemActor 内部工作器（起草、清扫）使用的身份
var SystemActor = policies.Actor{ID: "system", Role: "system"}

// ReadingService 解读生命周期服务
type ReadingService struct {
	db       *gorm.DB
	notifier *notify.Notifier
}

// NewReadingService 创建服务实例
func NewReadingService() *ReadingService {
	return &ReadingService{
		db:       database.DB,
		notifier: notify.NewNotifier(),
	}
}

// CreateParams 创建解读的入参
type CreateParams struct {
	ClientID      string
	Question      string
	SpreadName    string
	Cards         reading.Cards
	Type          reading.ReadingType
	SessionID     string
	PaymentStatus string // 外部计费系统透传的支付状态，本引擎只读
}

// Create 创建一次解读，初始状态为 initiated
// 付费类型的解读要求外部支付状态为 paid，本引擎不参与扣款
func (s *ReadingService) Create(ctx context.Context, actor policies.Actor, params CreateParams) (*reading.Reading, error) {
	// 此处还没有解读行可挂，拒绝审计以空 reading_id 落库
	if actor.Role != policies.RoleClient && actor.Role != policies.RoleAdmin {
		if err := s.recordDenial(ctx, actor, "", audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "只有客户可以发起解读"); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied("只有客户可以发起解读")
	}

	if params.Type != reading.TypeAutomatedDraft && params.PaymentStatus != "paid" {
		if err := s.recordDenial(ctx, actor, "", audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "该解读类型需要先完成支付"); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied("该解读类型需要先完成支付")
	}

	// 会话按需创建：首次出现的 session_id 落一行，
	// 已存在的会话必须属于当前客户
	if params.SessionID != "" {
		sess := &session.ReadingSession{
			ID:            params.SessionID,
			ClientID:      params.ClientID,
			PaymentStatus: params.PaymentStatus,
		}
		if err := repositories.NewSessionRepository().GetOrCreate(ctx, sess); err != nil {
			return nil, err
		}
		if sess.ClientID != params.ClientID {
			if err := s.recordDenial(ctx, actor, "", audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "只能在自己的会话下创建解读"); err != nil {
				return nil, err
			}
			return nil, models.NewAccessDenied("只能在自己的会话下创建解读")
		}
	}

	rd := &reading.Reading{
		ID:            uuid.New().String(),
		ClientID:      params.ClientID,
		SessionID:     params.SessionID,
		Type:          params.Type,
		Question:      params.Question,
		SpreadName:    params.SpreadName,
		Cards:         params.Cards,
		Status:        reading.StatusInitiated,
		PaymentStatus: params.PaymentStatus,
		ExpiresAt:     time.Now().Add(reading.DefaultTTL),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewReadingRepository().WithTx(tx).Create(ctx, rd); err != nil {
			return err
		}
		return repositories.NewAuditRepository().WithTx(tx).Record(ctx, &audit.AuditEvent{
			ReadingID:   rd.ID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      audit.ActionStateTransition,
			Granted:     true,
			ContentType: audit.ContentNone,
			ToStatus:    string(reading.StatusInitiated),
		})
	})
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// StartDrafting 工作器领取任务后把解读推进到 drafting
func (s *ReadingService) StartDrafting(ctx context.Context, readingID string) error {
	return s.transition(ctx, SystemActor, readingID,
		reading.StatusInitiated, reading.StatusDrafting,
		audit.ActionStateTransition, nil)
}

// CompleteDraft 生成完成回调：写入草稿内容并推进到 draft_ready
// 草稿行的 reader_approved/visible_to_client 在仓库层被强制置 false，
// 与调用方意图无关
func (s *ReadingService) CompleteDraft(ctx context.Context, readingID string, drafts []interpretation.CardInterpretation) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewReadingRepository().WithTx(tx).
			UpdateStatus(ctx, readingID, reading.StatusDrafting, reading.StatusDraftReady); err != nil {
			return err
		}
		if err := repositories.NewInterpretationRepository().WithTx(tx).
			CreateDrafts(ctx, drafts); err != nil {
			return err
		}
		return repositories.NewAuditRepository().WithTx(tx).Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     SystemActor.ID,
			ActorRole:   string(SystemActor.Role),
			Action:      audit.ActionStateTransition,
			Granted:     true,
			ContentType: audit.ContentDraft,
			FromStatus:  string(reading.StatusDrafting),
			ToStatus:    string(reading.StatusDraftReady),
		})
	})
	if err != nil {
		return err
	}

	// 通知解读师有草稿待审核，失败不回滚
	s.notifier.Notify(notify.EventDraftReady, readingID)
	return nil
}

// FailDraft 生成超时或重试耗尽后取消解读
func (s *ReadingService) FailDraft(ctx context.Context, readingID string, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewReadingRepository().WithTx(tx).
			UpdateStatus(ctx, readingID, reading.StatusDrafting, reading.StatusCancelled); err != nil {
			return err
		}
		return repositories.NewAuditRepository().WithTx(tx).Record(ctx, &audit.AuditEvent{
			ReadingID:    readingID,
			ActorID:      SystemActor.ID,
			ActorRole:    string(SystemActor.Role),
			Action:       audit.ActionStateTransition,
			Granted:      true,
			DenialReason: reason,
			ContentType:  audit.ContentNone,
			FromStatus:   string(reading.StatusDrafting),
			ToStatus:     string(reading.StatusCancelled),
		})
	})
}

// UpdateInterpretation 解读师撰写/修改某个牌位的终稿并将其标记为审核通过
// 解读处于 draft_ready 时，第一次操作会依次推进 reviewing、editing，
// 每一跳单独写一条审计
func (s *ReadingService) UpdateInterpretation(ctx context.Context, actor policies.Actor, readingID string, position int, finalText string, finalKeywords interpretation.Keywords, confidence float64) error {
	rd, err := s.loadActionable(ctx, readingID)
	if err != nil {
		return err
	}

	// 解读师第一次接手时认领该解读
	if actor.Role == policies.RoleReader && rd.AssignedReaderID == "" {
		if err := repositories.NewReadingRepository().AssignReader(ctx, readingID, actor.ID); err != nil {
			return err
		}
		rd.AssignedReaderID = actor.ID
	}

	if decision := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentDraft, nil); !decision.Granted {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentDraft, position, decision.Reason); err != nil {
			return err
		}
		return models.NewAccessDenied(decision.Reason)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		readings := repositories.NewReadingRepository().WithTx(tx)
		audits := repositories.NewAuditRepository().WithTx(tx)

		// draft_ready -> reviewing -> editing，按需逐跳推进
		status := rd.Status
		for _, hop := range []struct{ from, to reading.Status }{
			{reading.StatusDraftReady, reading.StatusReviewing},
			{reading.StatusReviewing, reading.StatusEditing},
		} {
			if status != hop.from {
				continue
			}
			if err := readings.UpdateStatus(ctx, readingID, hop.from, hop.to); err != nil {
				return err
			}
			if err := audits.Record(ctx, &audit.AuditEvent{
				ReadingID:   readingID,
				ActorID:     actor.ID,
				ActorRole:   string(actor.Role),
				Action:      audit.ActionStateTransition,
				Granted:     true,
				ContentType: audit.ContentNone,
				FromStatus:  string(hop.from),
				ToStatus:    string(hop.to),
			}); err != nil {
				return err
			}
			status = hop.to
		}

		if status != reading.StatusEditing {
			return models.NewInvalidTransition(string(rd.Status), string(reading.StatusEditing))
		}

		if err := repositories.NewInterpretationRepository().WithTx(tx).
			UpdateFinal(ctx, readingID, position, finalText, finalKeywords, confidence); err != nil {
			return err
		}

		return audits.Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      audit.ActionEditDraft,
			Granted:     true,
			ContentType: audit.ContentDraft,
			Position:    position,
		})
	})
}

// Approve 解读师确认全部牌位审核完成
// 任一牌位缺少 reader_approved 时返回 ApprovalIncomplete；
// 成功后自动推进 approved -> ready_for_reveal 并通知客户
func (s *ReadingService) Approve(ctx context.Context, actor policies.Actor, readingID string) error {
	rd, err := s.loadActionable(ctx, readingID)
	if err != nil {
		return err
	}

	if decision := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentDraft, nil); !decision.Granted {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentDraft, 0, decision.Reason); err != nil {
			return err
		}
		return models.NewAccessDenied(decision.Reason)
	}

	if rd.Status != reading.StatusReviewing && rd.Status != reading.StatusEditing {
		return models.NewInvalidTransition(string(rd.Status), string(reading.StatusApproved))
	}

	// 聚合校验：所有牌位都必须已审核通过
	pending, err := repositories.NewInterpretationRepository().CountUnapproved(ctx, readingID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return models.NewApprovalIncomplete(int(pending))
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		readings := repositories.NewReadingRepository().WithTx(tx)
		audits := repositories.NewAuditRepository().WithTx(tx)

		if err := readings.UpdateStatus(ctx, readingID, rd.Status, reading.StatusApproved); err != nil {
			return err
		}
		if err := audits.Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      audit.ActionApproveDraft,
			Granted:     true,
			ContentType: audit.ContentDraft,
			FromStatus:  string(rd.Status),
			ToStatus:    string(reading.StatusApproved),
		}); err != nil {
			return err
		}

		// 审核完成后自动进入可翻牌状态
		if err := readings.UpdateStatus(ctx, readingID, reading.StatusApproved, reading.StatusReadyForReveal); err != nil {
			return err
		}
		return audits.Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      audit.ActionStateTransition,
			Granted:     true,
			ContentType: audit.ContentNone,
			FromStatus:  string(reading.StatusApproved),
			ToStatus:    string(reading.StatusReadyForReveal),
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(notify.EventReadyForReveal, readingID)
	return nil
}

// Cancel 取消解读，客户、运营与管理员可用
func (s *ReadingService) Cancel(ctx context.Context, actor policies.Actor, readingID string) error {
	rd, err := s.loadActionable(ctx, readingID)
	if err != nil {
		return err
	}

	if !policies.CanTransition(actor.Role, rd.Status, reading.StatusCancelled) {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "无权取消该解读"); err != nil {
			return err
		}
		return models.NewAccessDenied("无权取消该解读")
	}
	if actor.Role == policies.RoleClient && actor.ID != rd.ClientID {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "只能取消自己的解读"); err != nil {
			return err
		}
		return models.NewAccessDenied("只能取消自己的解读")
	}

	return s.transition(ctx, actor, readingID, rd.Status, reading.StatusCancelled,
		audit.ActionStateTransition, nil)
}

// Expire 清扫器专用：把超时的解读推进到 expired
// 走与其他流转完全相同的路径，审计与不变量照常生效
func (s *ReadingService) Expire(ctx context.Context, readingID string) error {
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		return err
	}
	if rd.IsTerminal() {
		return nil
	}
	if time.Now().Before(rd.ExpiresAt) {
		return models.NewInvalidTransition(string(rd.Status), string(reading.StatusExpired))
	}

	return s.transition(ctx, SystemActor, readingID, rd.Status, reading.StatusExpired,
		audit.ActionStateTransition, nil)
}

// transition 单步状态流转 + 审计，同一事务
func (s *ReadingService) transition(ctx context.Context, actor policies.Actor, readingID string, from, to reading.Status, action audit.Action, extra func(tx *gorm.DB) error) error {
	if !reading.CanTransition(from, to) {
		return models.NewInvalidTransition(string(from), string(to))
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := repositories.NewReadingRepository().WithTx(tx).
			UpdateStatus(ctx, readingID, from, to); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		return repositories.NewAuditRepository().WithTx(tx).Record(ctx, &audit.AuditEvent{
			ReadingID:   readingID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Action:      action,
			Granted:     true,
			ContentType: audit.ContentNone,
			FromStatus:  string(from),
			ToStatus:    string(to),
		})
	})
}

// loadActionable 加载解读并把终态映射为对应的领域错误
func (s *ReadingService) loadActionable(ctx context.Context, readingID string) (*reading.Reading, error) {
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	switch rd.Status {
	case reading.StatusExpired:
		return nil, models.NewReadingExpired()
	case reading.StatusCancelled:
		return nil, models.NewReadingCancelled()
	case reading.StatusCompleted:
		return nil, models.NewInvalidTransition(string(rd.Status), "")
	}
	return rd, nil
}

// recordDenial 记录一次被拒绝的访问尝试
// 按约定 AccessDenied 必须先落审计再返回给调用方
func (s *ReadingService) recordDenial(ctx context.Context, actor policies.Actor, readingID string, action audit.Action, contentType audit.ContentType, position int, reason string) error {
	err := repositories.NewAuditRepository().Record(ctx, &audit.AuditEvent{
		ReadingID:    readingID,
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		Action:       action,
		Granted:      false,
		DenialReason: reason,
		ContentType:  contentType,
		Position:     position,
	})
	if err != nil {
		logger.ErrorString("Audit", "Record", err.Error())
	}
	return err
}
