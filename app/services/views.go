package services

import (
	"context"
	"time"

	"arcana/app/models"
	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/policies"
	"arcana/app/repositories"
)

// CardView 客户可见的牌位视图
// 结构体里根本没有草稿字段，客户侧响应无从泄露草稿内容
type CardView struct {
	Position      int                     `json:"position"`
	CardID        int                     `json:"card_id"`
	Orientation   reading.Orientation     `json:"orientation"`
	Revealed      bool                    `json:"revealed"`
	FinalText     string                  `json:"final_text,omitempty"`
	FinalKeywords interpretation.Keywords `json:"final_keywords,omitempty"`
}

// ReadingView 客户可见的解读视图
type ReadingView struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Question   string         `json:"question"`
	SpreadName string         `json:"spread_name"`
	Status     reading.Status `json:"status"`
	ExpiresAt  time.Time      `json:"expires_at"`
	CreatedAt  time.Time      `json:"created_at"`
	Cards      []CardView     `json:"cards"`

	// NextExpected 下一个可揭示的牌位，全部揭示后为 0
	NextExpected int `json:"next_expected,omitempty"`
}

// DraftCardView 解读师/管理员可见的牌位视图，含草稿
type DraftCardView struct {
	CardView
	DraftText           string                  `json:"draft_text"`
	DraftKeywords       interpretation.Keywords `json:"draft_keywords"`
	ReaderApproved      bool                    `json:"reader_approved"`
	ReaderConfidence    float64                 `json:"reader_confidence,omitempty"`
	QualityScore        float64                 `json:"quality_score,omitempty"`
	RequiresHumanReview bool                    `json:"requires_human_review,omitempty"`
}

// DraftView 解读师/管理员可见的完整视图
type DraftView struct {
	ReadingView
	ClientID         string          `json:"client_id"`
	AssignedReaderID string          `json:"assigned_reader_id,omitempty"`
	Drafts           []DraftCardView `json:"drafts"`
}

// newCardView 构建牌位视图，未揭示的牌位不携带终稿内容
func newCardView(ci *interpretation.CardInterpretation, revealed bool) *CardView {
	view := &CardView{
		Position:    ci.Position,
		CardID:      ci.CardID,
		Orientation: ci.Orientation,
		Revealed:    revealed,
	}
	if revealed {
		view.FinalText = ci.FinalText
		view.FinalKeywords = ci.FinalKeywords
	}
	return view
}

// GetForActor 按角色返回解读视图
// 客户只拿到终稿可见部分；正常读取不产生审计，
// 拒绝访问（他人的解读、未知角色）则总是落审计
func (s *ReadingService) GetForActor(ctx context.Context, actor policies.Actor, readingID string) (*ReadingView, error) {
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}

	if decision := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentNone, nil); !decision.Granted {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionUnauthorizedAccess, audit.ContentNone, 0, decision.Reason); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied(decision.Reason)
	}

	items, err := repositories.NewInterpretationRepository().ListByReading(ctx, readingID)
	if err != nil {
		return nil, err
	}

	view := &ReadingView{
		ID:         rd.ID,
		Type:       string(rd.Type),
		Question:   rd.Question,
		SpreadName: rd.SpreadName,
		Status:     rd.Status,
		ExpiresAt:  rd.ExpiresAt,
		CreatedAt:  rd.CreatedAt,
		Cards:      make([]CardView, 0, len(items)),
	}

	revealed := 0
	for i := range items {
		ci := &items[i]
		// 每个牌位都单独过一次门禁，可见性判断不在查询里散落重写
		d := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentFinal, ci)
		view.Cards = append(view.Cards, *newCardView(ci, d.Granted))
		if ci.VisibleToClient {
			revealed++
		}
	}
	if revealed < len(items) && rd.IsRevealable() {
		view.NextExpected = revealed + 1
	}
	return view, nil
}

// GetDraft 解读师/管理员查看草稿
// 客户打到这里是一次显式的草稿访问尝试：拒绝 + 违规审计；
// 放行的草稿查看同样记录 view_draft 审计
func (s *ReadingService) GetDraft(ctx context.Context, actor policies.Actor, readingID string) (*DraftView, error) {
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}

	if decision := policies.Authorize(actor.Role, actor.ID, rd, audit.ContentDraft, nil); !decision.Granted {
		if err := s.recordDenial(ctx, actor, rd.ID, audit.ActionViewDraft, audit.ContentDraft, 0, decision.Reason); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied(decision.Reason)
	}

	// 审计先行：审计写入失败则本次查看不返回内容
	if err := repositories.NewAuditRepository().Record(ctx, &audit.AuditEvent{
		ReadingID:   readingID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		Action:      audit.ActionViewDraft,
		Granted:     true,
		ContentType: audit.ContentDraft,
	}); err != nil {
		return nil, err
	}

	items, err := repositories.NewInterpretationRepository().ListByReading(ctx, readingID)
	if err != nil {
		return nil, err
	}

	view := &DraftView{
		ReadingView: ReadingView{
			ID:         rd.ID,
			Type:       string(rd.Type),
			Question:   rd.Question,
			SpreadName: rd.SpreadName,
			Status:     rd.Status,
			ExpiresAt:  rd.ExpiresAt,
			CreatedAt:  rd.CreatedAt,
		},
		ClientID:         rd.ClientID,
		AssignedReaderID: rd.AssignedReaderID,
		Drafts:           make([]DraftCardView, 0, len(items)),
	}
	for i := range items {
		ci := &items[i]
		card := newCardView(ci, ci.VisibleToClient)
		// 解读师视图里终稿始终可见
		card.FinalText = ci.FinalText
		card.FinalKeywords = ci.FinalKeywords
		view.Drafts = append(view.Drafts, DraftCardView{
			CardView:            *card,
			DraftText:           ci.DraftText,
			DraftKeywords:       ci.DraftKeywords,
			ReaderApproved:      ci.ReaderApproved,
			ReaderConfidence:    ci.ReaderConfidence,
			QualityScore:        ci.QualityScore,
			RequiresHumanReview: ci.RequiresHumanReview,
		})
	}
	return view, nil
}

// GetAuditTrail 审计轨迹查询，仅 admin/operator
func (s *ReadingService) GetAuditTrail(ctx context.Context, actor policies.Actor, readingID string) ([]audit.AuditEvent, error) {
	if !policies.IsPrivileged(actor.Role) {
		if err := s.recordDenial(ctx, actor, readingID, audit.ActionUnauthorizedAccess, audit.ContentNone, 0, "审计轨迹仅限内部角色查询"); err != nil {
			return nil, err
		}
		return nil, models.NewAccessDenied("审计轨迹仅限内部角色查询")
	}
	return repositories.NewAuditRepository().ListByReading(ctx, readingID)
}

// QueryViolations 违规事件查询，仅 admin/operator，永不挂客户路由
func (s *ReadingService) QueryViolations(ctx context.Context, actor policies.Actor, filters repositories.ViolationFilters) ([]audit.AuditEvent, error) {
	if !policies.IsPrivileged(actor.Role) {
		return nil, models.NewAccessDenied("违规查询仅限内部角色")
	}
	return repositories.NewAuditRepository().QueryViolations(ctx, filters)
}

// History 客户历史解读列表（门禁过滤后的视图不含任何草稿字段）
func (s *ReadingService) History(ctx context.Context, actor policies.Actor, clientID string, page, pageSize int) ([]reading.Reading, int64, error) {
	if actor.Role == policies.RoleClient && actor.ID != clientID {
		return nil, 0, models.NewAccessDenied("只能查看自己的历史记录")
	}
	if actor.Role != policies.RoleClient && !policies.IsPrivileged(actor.Role) {
		return nil, 0, models.NewAccessDenied("无权查看该客户的历史记录")
	}
	return repositories.NewReadingRepository().GetByClientID(ctx, clientID, page, pageSize)
}
