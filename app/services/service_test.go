package services_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"arcana/app/models"
	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/policies"
	"arcana/app/repositories"
	"arcana/app/services"
	"arcana/pkg/database"
	"arcana/pkg/database/migrations"
	"arcana/pkg/logger"
)

var ctx = context.Background()

var (
	client   = policies.Actor{ID: "client-1", Role: policies.RoleClient}
	stranger = policies.Actor{ID: "client-2", Role: policies.RoleClient}
	reader   = policies.Actor{ID: "reader-1", Role: policies.RoleReader}
	intruder = policies.Actor{ID: "reader-2", Role: policies.RoleReader}
	admin    = policies.Actor{ID: "admin-1", Role: policies.RoleAdmin}
	operator = policies.Actor{ID: "op-1", Role: policies.RoleOperator}
)

// setupDB 每个测试使用独立的内存库
func setupDB(t *testing.T) *services.ReadingService {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database.Connect(sqlite.Open(dsn), logger.NewGormLogger())
	database.SQLDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(migrations.RegisterTables()); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return services.NewReadingService()
}

func threeCards() reading.Cards {
	return reading.Cards{
		{CardID: 1, Orientation: reading.OrientationUpright},
		{CardID: 22, Orientation: reading.OrientationReversed},
		{CardID: 45, Orientation: reading.OrientationUpright},
	}
}

func createReading(t *testing.T, svc *services.ReadingService) *reading.Reading {
	t.Helper()
	rd, err := svc.Create(ctx, client, services.CreateParams{
		ClientID:   client.ID,
		Question:   "今年的事业运如何",
		SpreadName: "three_card",
		Cards:      threeCards(),
		Type:       reading.TypeAutomatedDraft,
	})
	if err != nil {
		t.Fatalf("创建解读失败: %v", err)
	}
	return rd
}

// draftReady 模拟工作器完成起草
func draftReady(t *testing.T, svc *services.ReadingService, rd *reading.Reading) {
	t.Helper()
	if err := svc.StartDrafting(ctx, rd.ID); err != nil {
		t.Fatalf("进入起草失败: %v", err)
	}
	drafts := make([]interpretation.CardInterpretation, 0, len(rd.Cards))
	for i, c := range rd.Cards {
		drafts = append(drafts, interpretation.CardInterpretation{
			ReadingID:     rd.ID,
			Position:      i + 1,
			CardID:        c.CardID,
			Orientation:   c.Orientation,
			DraftText:     fmt.Sprintf("第 %d 张牌的草稿内容", i+1),
			DraftKeywords: interpretation.Keywords{"变化", "启程"},
		})
	}
	if err := svc.CompleteDraft(ctx, rd.ID, drafts); err != nil {
		t.Fatalf("完成起草失败: %v", err)
	}
}

// approveAll 解读师逐张定稿并确认
func approveAll(t *testing.T, svc *services.ReadingService, rd *reading.Reading) {
	t.Helper()
	for i := range rd.Cards {
		err := svc.UpdateInterpretation(ctx, reader, rd.ID, i+1,
			fmt.Sprintf("第 %d 张牌的终稿", i+1), interpretation.Keywords{"守护"}, 0.9)
		if err != nil {
			t.Fatalf("提交牌位 %d 终稿失败: %v", i+1, err)
		}
	}
	if err := svc.Approve(ctx, reader, rd.ID); err != nil {
		t.Fatalf("审核确认失败: %v", err)
	}
}

func mustStatus(t *testing.T, readingID string, want reading.Status) {
	t.Helper()
	rd, err := repositories.NewReadingRepository().GetByID(ctx, readingID)
	if err != nil {
		t.Fatalf("查询解读失败: %v", err)
	}
	if rd.Status != want {
		t.Fatalf("状态 = %s, want %s", rd.Status, want)
	}
}

func auditCount(t *testing.T, readingID string) int64 {
	t.Helper()
	n, err := repositories.NewAuditRepository().CountByReading(ctx, readingID)
	if err != nil {
		t.Fatalf("统计审计失败: %v", err)
	}
	return n
}

func violations(t *testing.T, readingID string) []audit.AuditEvent {
	t.Helper()
	events, err := repositories.NewAuditRepository().QueryViolations(ctx, repositories.ViolationFilters{ReadingID: readingID})
	if err != nil {
		t.Fatalf("查询违规失败: %v", err)
	}
	return events
}

func actorViolations(t *testing.T, actorID string) []audit.AuditEvent {
	t.Helper()
	events, err := repositories.NewAuditRepository().QueryViolations(ctx, repositories.ViolationFilters{ActorID: actorID})
	if err != nil {
		t.Fatalf("查询违规失败: %v", err)
	}
	return events
}

func TestLifecycleHappyPath(t *testing.T) {
	svc := setupDB(t)

	rd := createReading(t, svc)
	mustStatus(t, rd.ID, reading.StatusInitiated)

	draftReady(t, svc, rd)
	mustStatus(t, rd.ID, reading.StatusDraftReady)

	approveAll(t, svc, rd)
	mustStatus(t, rd.ID, reading.StatusReadyForReveal)

	// 正常流程不应产生任何安全违规
	if v := violations(t, rd.ID); len(v) != 0 {
		t.Errorf("正常流程不应有违规事件, got %d", len(v))
	}

	// 每一步流转都有审计：initiated、drafting、draft_ready、
	// reviewing、editing、3 次 edit_draft、approve、ready_for_reveal
	events, err := svc.GetAuditTrail(ctx, admin, rd.ID)
	if err != nil {
		t.Fatalf("查询审计轨迹失败: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("审计事件数 = %d, want 10", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Fatal("审计事件必须按写入顺序排列")
		}
	}
}

func TestCreatePaidTypeRequiresPayment(t *testing.T) {
	svc := setupDB(t)

	_, err := svc.Create(ctx, client, services.CreateParams{
		ClientID:   client.ID,
		Question:   "感情走向",
		SpreadName: "celtic_cross",
		Cards:      threeCards(),
		Type:       reading.TypeReaderGuided,
	})
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("未支付应拒绝, got %v", err)
	}
	// 创建前的拒绝没有解读行可挂，审计以空 reading_id 落库
	if v := actorViolations(t, client.ID); len(v) != 1 || v[0].ReadingID != "" {
		t.Errorf("创建被拒应留下空 reading_id 的违规事件: %+v", v)
	}

	_, err = svc.Create(ctx, client, services.CreateParams{
		ClientID:      client.ID,
		Question:      "感情走向",
		SpreadName:    "celtic_cross",
		Cards:         threeCards(),
		Type:          reading.TypeReaderGuided,
		PaymentStatus: "paid",
	})
	if err != nil {
		t.Fatalf("已支付应放行: %v", err)
	}
}

func TestCreateByReaderDenied(t *testing.T) {
	svc := setupDB(t)

	_, err := svc.Create(ctx, reader, services.CreateParams{
		ClientID:   "client-1",
		Question:   "x",
		SpreadName: "one_card",
		Cards:      threeCards(),
		Type:       reading.TypeAutomatedDraft,
	})
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("解读师不应能发起解读, got %v", err)
	}
	if v := actorViolations(t, reader.ID); len(v) != 1 {
		t.Errorf("创建被拒应留下违规事件, got %d", len(v))
	}
}

func TestCreateGroupsReadingsBySession(t *testing.T) {
	svc := setupDB(t)

	params := services.CreateParams{
		ClientID:   client.ID,
		Question:   "事业与感情",
		SpreadName: "three_card",
		Cards:      threeCards(),
		Type:       reading.TypeAutomatedDraft,
		SessionID:  "session-1",
	}
	first, err := svc.Create(ctx, client, params)
	if err != nil {
		t.Fatalf("创建解读失败: %v", err)
	}
	second, err := svc.Create(ctx, client, params)
	if err != nil {
		t.Fatalf("同会话再次创建失败: %v", err)
	}

	sess, err := repositories.NewSessionRepository().GetByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("会话应已按需创建: %v", err)
	}
	if sess.ClientID != client.ID {
		t.Errorf("会话归属 = %s, want %s", sess.ClientID, client.ID)
	}

	ids, err := repositories.NewSessionRepository().ListReadings(ctx, "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Errorf("会话下的解读 = %v, want [%s %s]", ids, first.ID, second.ID)
	}
}

func TestCreateInForeignSessionDenied(t *testing.T) {
	svc := setupDB(t)

	params := services.CreateParams{
		ClientID:   client.ID,
		Question:   "x",
		SpreadName: "one_card",
		Cards:      threeCards(),
		Type:       reading.TypeAutomatedDraft,
		SessionID:  "session-1",
	}
	if _, err := svc.Create(ctx, client, params); err != nil {
		t.Fatalf("创建解读失败: %v", err)
	}

	// 会话归属第一位客户，他人不能往里挂解读
	params.ClientID = stranger.ID
	_, err := svc.Create(ctx, stranger, params)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("他人会话应拒绝, got %v", err)
	}
	if v := actorViolations(t, stranger.ID); len(v) != 1 {
		t.Errorf("会话越权应留下违规事件, got %d", len(v))
	}
}

func TestApproveIncomplete(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)
	draftReady(t, svc, rd)

	// 只定稿第一张
	if err := svc.UpdateInterpretation(ctx, reader, rd.ID, 1, "终稿", nil, 0.8); err != nil {
		t.Fatalf("提交终稿失败: %v", err)
	}

	before := auditCount(t, rd.ID)

	err := svc.Approve(ctx, reader, rd.ID)
	de := models.AsDomainError(err)
	if de == nil || de.Code != models.CodeApprovalIncomplete {
		t.Fatalf("应返回 APPROVAL_INCOMPLETE, got %v", err)
	}

	// 聚合校验失败不是访问违规，不产生审计
	if after := auditCount(t, rd.ID); after != before {
		t.Errorf("ApprovalIncomplete 不应追加审计: %d -> %d", before, after)
	}
	mustStatus(t, rd.ID, reading.StatusEditing)
}

func TestClientCannotViewDraft(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)
	draftReady(t, svc, rd)

	_, err := svc.GetDraft(ctx, client, rd.ID)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("客户不应看到草稿, got %v", err)
	}

	// 客户触碰草稿被拒必须留下违规事件
	v := violations(t, rd.ID)
	if len(v) != 1 {
		t.Fatalf("应有 1 条违规事件, got %d", len(v))
	}
	if v[0].Action != audit.ActionViewDraft || v[0].Granted {
		t.Errorf("违规事件内容不符: %+v", v[0])
	}

	// 管理员查看草稿放行，且留下 view_draft 审计（非违规）
	view, err := svc.GetDraft(ctx, admin, rd.ID)
	if err != nil {
		t.Fatalf("管理员查看草稿失败: %v", err)
	}
	if len(view.Drafts) != 3 || view.Drafts[0].DraftText == "" {
		t.Errorf("草稿视图应包含全部草稿内容: %+v", view.Drafts)
	}
	if v := violations(t, rd.ID); len(v) != 1 {
		t.Errorf("放行的草稿查看不应计为违规, got %d", len(v))
	}
}

func TestUnassignedReaderDenied(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)
	draftReady(t, svc, rd)

	// reader-1 第一次提交时自动认领
	if err := svc.UpdateInterpretation(ctx, reader, rd.ID, 1, "终稿", nil, 0.8); err != nil {
		t.Fatalf("指派解读师提交失败: %v", err)
	}

	// 已被认领后其他解读师被拒并留痕
	err := svc.UpdateInterpretation(ctx, intruder, rd.ID, 2, "篡改", nil, 0.1)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("非指派解读师应被拒, got %v", err)
	}
	if v := violations(t, rd.ID); len(v) != 1 {
		t.Errorf("越权编辑应留下违规事件, got %d", len(v))
	}
}

func TestCancel(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)

	// 他人不能取消
	err := svc.Cancel(ctx, stranger, rd.ID)
	if !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Fatalf("他人不应能取消, got %v", err)
	}

	// 本人可以取消
	if err := svc.Cancel(ctx, client, rd.ID); err != nil {
		t.Fatalf("本人取消失败: %v", err)
	}
	mustStatus(t, rd.ID, reading.StatusCancelled)

	// 终态之后的操作返回 READING_CANCELLED
	err = svc.Cancel(ctx, client, rd.ID)
	if !models.IsDomainCode(err, models.CodeReadingCancelled) {
		t.Fatalf("已取消的解读应返回 READING_CANCELLED, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)

	// 未到期不允许过期
	err := svc.Expire(ctx, rd.ID)
	if !models.IsDomainCode(err, models.CodeInvalidTransition) {
		t.Fatalf("未到期不应过期, got %v", err)
	}

	// 回拨过期时间后由清扫路径推进
	backdate(t, rd.ID)
	if err := svc.Expire(ctx, rd.ID); err != nil {
		t.Fatalf("过期处理失败: %v", err)
	}
	mustStatus(t, rd.ID, reading.StatusExpired)

	// 过期后一切操作返回 READING_EXPIRED
	err = svc.UpdateInterpretation(ctx, reader, rd.ID, 1, "x", nil, 0)
	if !models.IsDomainCode(err, models.CodeReadingExpired) {
		t.Fatalf("过期解读应返回 READING_EXPIRED, got %v", err)
	}
}

// backdate 把解读的过期时间拨到过去
func backdate(t *testing.T, readingID string) {
	t.Helper()
	err := database.DB.Model(&reading.Reading{}).
		Where("id = ?", readingID).
		Update("expires_at", time.Now().Add(-48*time.Hour)).Error
	if err != nil {
		t.Fatalf("回拨过期时间失败: %v", err)
	}
}

func TestHistoryAccessControl(t *testing.T) {
	svc := setupDB(t)
	createReading(t, svc)

	if _, _, err := svc.History(ctx, stranger, client.ID, 1, 10); !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Errorf("他人不应能查看历史, got %v", err)
	}
	if _, total, err := svc.History(ctx, client, client.ID, 1, 10); err != nil || total != 1 {
		t.Errorf("本人查看历史: total=%d err=%v", total, err)
	}
	if _, total, err := svc.History(ctx, operator, client.ID, 1, 10); err != nil || total != 1 {
		t.Errorf("运营查看历史: total=%d err=%v", total, err)
	}
}

func TestAuditTrailPrivilegedOnly(t *testing.T) {
	svc := setupDB(t)
	rd := createReading(t, svc)

	if _, err := svc.GetAuditTrail(ctx, client, rd.ID); !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Errorf("客户不应能查审计轨迹, got %v", err)
	}
	if _, err := svc.QueryViolations(ctx, reader, repositories.ViolationFilters{}); !models.IsDomainCode(err, models.CodeAccessDenied) {
		t.Errorf("解读师不应能查违规事件, got %v", err)
	}
	if _, err := svc.GetAuditTrail(ctx, operator, rd.ID); err != nil {
		t.Errorf("运营查审计轨迹失败: %v", err)
	}
}
