package services_test

import (
	"testing"

	"arcana/app/models"
	"arcana/app/models/audit"
	"arcana/app/models/reading"
	"arcana/app/services"
)

// revealReady 准备一个可翻牌的三张牌解读
func revealReady(t *testing.T, svc *services.ReadingService) *reading.Reading {
	t.Helper()
	rd := createReading(t, svc)
	draftReady(t, svc, rd)
	approveAll(t, svc, rd)
	return rd
}

func TestRevealInOrderToCompletion(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	// 第一张：ready_for_reveal -> revealed
	r1, err := svc.RequestReveal(ctx, client, rd.ID, 1)
	if err != nil {
		t.Fatalf("揭示第 1 张失败: %v", err)
	}
	if r1.AlreadyRevealed || r1.ReadingStatus != reading.StatusRevealed {
		t.Errorf("第 1 张结果不符: %+v", r1)
	}
	if r1.Card == nil || r1.Card.FinalText == "" {
		t.Error("揭示应返回终稿内容")
	}

	// 第二张：状态保持 revealed
	r2, err := svc.RequestReveal(ctx, client, rd.ID, 2)
	if err != nil {
		t.Fatalf("揭示第 2 张失败: %v", err)
	}
	if r2.ReadingStatus != reading.StatusRevealed {
		t.Errorf("第 2 张后状态 = %s, want revealed", r2.ReadingStatus)
	}

	// 最后一张：revealed -> completed
	r3, err := svc.RequestReveal(ctx, client, rd.ID, 3)
	if err != nil {
		t.Fatalf("揭示第 3 张失败: %v", err)
	}
	if r3.ReadingStatus != reading.StatusCompleted {
		t.Errorf("最后一张后状态 = %s, want completed", r3.ReadingStatus)
	}
	mustStatus(t, rd.ID, reading.StatusCompleted)
}

func TestRevealOutOfOrder(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	before := auditCount(t, rd.ID)

	_, err := svc.RequestReveal(ctx, client, rd.ID, 2)
	de := models.AsDomainError(err)
	if de == nil || de.Code != models.CodeSequenceViolation {
		t.Fatalf("越序应返回 SEQUENCE_VIOLATION, got %v", err)
	}
	if de.NextExpected != 1 {
		t.Errorf("NextExpected = %d, want 1", de.NextExpected)
	}

	// 越序拒绝总是落审计
	if after := auditCount(t, rd.ID); after != before+1 {
		t.Errorf("越序应追加 1 条审计: %d -> %d", before, after)
	}

	// 数据不应有任何变化
	mustStatus(t, rd.ID, reading.StatusReadyForReveal)

	// 揭示 1 之后 3 仍然越序，nextExpected 指向 2
	if _, err := svc.RequestReveal(ctx, client, rd.ID, 1); err != nil {
		t.Fatalf("揭示第 1 张失败: %v", err)
	}
	_, err = svc.RequestReveal(ctx, client, rd.ID, 3)
	de = models.AsDomainError(err)
	if de == nil || de.Code != models.CodeSequenceViolation || de.NextExpected != 2 {
		t.Fatalf("应返回 SEQUENCE_VIOLATION(next=2), got %v", err)
	}
}

func TestRevealIdempotent(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	if _, err := svc.RequestReveal(ctx, client, rd.ID, 1); err != nil {
		t.Fatalf("揭示第 1 张失败: %v", err)
	}

	before := auditCount(t, rd.ID)

	// 重复请求同一牌位：幂等成功，不追加审计
	again, err := svc.RequestReveal(ctx, client, rd.ID, 1)
	if err != nil {
		t.Fatalf("重复揭示应幂等成功: %v", err)
	}
	if !again.AlreadyRevealed {
		t.Error("应标记 AlreadyRevealed")
	}
	if again.Card == nil || again.Card.FinalText == "" {
		t.Error("幂等返回也应携带终稿内容")
	}
	if after := auditCount(t, rd.ID); after != before {
		t.Errorf("幂等揭示不应追加审计: %d -> %d", before, after)
	}
}

// 已完成的解读仍可幂等重放任何已揭示的牌位
func TestRevealReplayAfterCompletion(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	for pos := 1; pos <= 3; pos++ {
		if _, err := svc.RequestReveal(ctx, client, rd.ID, pos); err != nil {
			t.Fatalf("揭示第 %d 张失败: %v", pos, err)
		}
	}

	r, err := svc.RequestReveal(ctx, client, rd.ID, 2)
	if err != nil {
		t.Fatalf("完成后重放失败: %v", err)
	}
	if !r.AlreadyRevealed {
		t.Error("完成后的重放应为幂等命中")
	}
}

func TestRevealByReaderDenied(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	_, err := svc.RequestReveal(ctx, reader, rd.ID, 1)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("解读师不应能翻牌, got %v", err)
	}
	if v := violations(t, rd.ID); len(v) != 1 {
		t.Errorf("解读师翻牌被拒应留下违规事件, got %d", len(v))
	}

	// 管理员可代行
	if _, err := svc.RequestReveal(ctx, admin, rd.ID, 1); err != nil {
		t.Errorf("管理员代行翻牌失败: %v", err)
	}
}

func TestRevealByStrangerDenied(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	_, err := svc.RequestReveal(ctx, stranger, rd.ID, 1)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("他人不应能翻牌, got %v", err)
	}
}

func TestRevealBeforeApprovalRejected(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)
	draftReady(t, svc, rd)

	// draft_ready 还不可翻牌
	_, err := svc.RequestReveal(ctx, client, rd.ID, 1)
	if !models.IsDomainCode(err, models.CodeInvalidTransition) {
		t.Fatalf("未就绪的解读不应可翻牌, got %v", err)
	}
}

func TestRevealOnTerminalReading(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)

	if err := svc.Cancel(ctx, client, rd.ID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}
	if _, err := svc.RequestReveal(ctx, client, rd.ID, 1); !models.IsDomainCode(err, models.CodeReadingCancelled) {
		t.Errorf("已取消的解读应返回 READING_CANCELLED, got %v", err)
	}
}

// 客户视图：揭示进度与可见内容一致，未揭示的牌位不带终稿
func TestClientViewTracksRevealProgress(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	if _, err := svc.RequestReveal(ctx, client, rd.ID, 1); err != nil {
		t.Fatalf("揭示第 1 张失败: %v", err)
	}

	view, err := svc.GetForActor(ctx, client, rd.ID)
	if err != nil {
		t.Fatalf("查询视图失败: %v", err)
	}
	if len(view.Cards) != 3 {
		t.Fatalf("牌位数 = %d, want 3", len(view.Cards))
	}
	if !view.Cards[0].Revealed || view.Cards[0].FinalText == "" {
		t.Errorf("第 1 张应已揭示并携带终稿: %+v", view.Cards[0])
	}
	for _, card := range view.Cards[1:] {
		if card.Revealed || card.FinalText != "" || len(card.FinalKeywords) != 0 {
			t.Errorf("未揭示的牌位不应携带终稿: %+v", card)
		}
	}
	if view.NextExpected != 2 {
		t.Errorf("NextExpected = %d, want 2", view.NextExpected)
	}

	// 正常读取不追加审计
	before := auditCount(t, rd.ID)
	if _, err := svc.GetForActor(ctx, client, rd.ID); err != nil {
		t.Fatal(err)
	}
	if after := auditCount(t, rd.ID); after != before {
		t.Errorf("正常读取不应追加审计: %d -> %d", before, after)
	}
}

func TestAuditEventFields(t *testing.T) {
	svc := setupDB(t)
	rd := revealReady(t, svc)

	if _, err := svc.RequestReveal(ctx, client, rd.ID, 1); err != nil {
		t.Fatalf("揭示失败: %v", err)
	}

	events, err := svc.GetAuditTrail(ctx, admin, rd.ID)
	if err != nil {
		t.Fatalf("查询轨迹失败: %v", err)
	}

	var reveals, transitions int
	for _, e := range events {
		switch e.Action {
		case audit.ActionReveal:
			reveals++
			if e.Position != 1 || !e.Granted || e.ContentType != audit.ContentFinal {
				t.Errorf("揭示事件字段不符: %+v", e)
			}
		case audit.ActionStateTransition:
			transitions++
		}
	}
	if reveals != 1 {
		t.Errorf("揭示事件数 = %d, want 1", reveals)
	}
	// initiated、drafting、draft_ready、reviewing、editing、
	// ready_for_reveal、revealed 共 7 次流转
	if transitions != 7 {
		t.Errorf("流转事件数 = %d, want 7", transitions)
	}
}
