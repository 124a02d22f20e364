package repositories_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"

	"arcana/app/models"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/repositories"
	"arcana/pkg/database"
	"arcana/pkg/database/migrations"
	"arcana/pkg/logger"
)

var ctx = context.Background()

func setupDB(t *testing.T) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database.Connect(sqlite.Open(dsn), logger.NewGormLogger())
	database.SQLDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(migrations.RegisterTables()); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
}

func seedReading(t *testing.T, status reading.Status) *reading.Reading {
	t.Helper()
	rd := &reading.Reading{
		ID:       uuid.New().String(),
		ClientID: "client-1",
		Type:     reading.TypeAutomatedDraft,
		Question: "状态流转测试",
		Cards: reading.Cards{
			{CardID: 7, Orientation: reading.OrientationUpright},
		},
		Status:    status,
		ExpiresAt: time.Now().Add(reading.DefaultTTL),
	}
	if err := repositories.NewReadingRepository().Create(ctx, rd); err != nil {
		t.Fatalf("创建解读失败: %v", err)
	}
	return rd
}

func TestUpdateStatusConditional(t *testing.T) {
	setupDB(t)
	repo := repositories.NewReadingRepository()
	rd := seedReading(t, reading.StatusInitiated)

	if err := repo.UpdateStatus(ctx, rd.ID, reading.StatusInitiated, reading.StatusDrafting); err != nil {
		t.Fatalf("条件更新失败: %v", err)
	}

	// 前置状态不匹配时必须冲突，不允许静默覆盖
	err := repo.UpdateStatus(ctx, rd.ID, reading.StatusInitiated, reading.StatusDrafting)
	if !models.IsDomainCode(err, models.CodeStateConflict) {
		t.Fatalf("过期前置状态应返回 STATE_CONFLICT, got %v", err)
	}

	got, err := repo.GetByID(ctx, rd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != reading.StatusDrafting {
		t.Errorf("status = %s, want drafting", got.Status)
	}
}

func TestAssignReaderOnlyOnce(t *testing.T) {
	setupDB(t)
	repo := repositories.NewReadingRepository()
	rd := seedReading(t, reading.StatusDraftReady)

	if err := repo.AssignReader(ctx, rd.ID, "reader-1"); err != nil {
		t.Fatalf("指派失败: %v", err)
	}
	if err := repo.AssignReader(ctx, rd.ID, "reader-2"); !models.IsDomainCode(err, models.CodeStateConflict) {
		t.Fatalf("重复指派应返回 STATE_CONFLICT, got %v", err)
	}

	got, err := repo.GetByID(ctx, rd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedReaderID != "reader-1" {
		t.Errorf("assigned_reader_id = %s, want reader-1", got.AssignedReaderID)
	}
}

func TestRevealWinnerIsUnique(t *testing.T) {
	setupDB(t)
	rd := seedReading(t, reading.StatusReadyForReveal)

	interps := repositories.NewInterpretationRepository()
	draft := []interpretation.CardInterpretation{{
		ReadingID:   rd.ID,
		Position:    1,
		CardID:      7,
		Orientation: reading.OrientationUpright,
		DraftText:   "草稿",
	}}
	if err := interps.CreateDrafts(ctx, draft); err != nil {
		t.Fatalf("写入草稿失败: %v", err)
	}
	if err := interps.UpdateFinal(ctx, rd.ID, 1, "终稿", nil, 0.9); err != nil {
		t.Fatalf("写入终稿失败: %v", err)
	}

	won, err := interps.Reveal(ctx, rd.ID, 1)
	if err != nil || !won {
		t.Fatalf("首次揭示应胜出: won=%v err=%v", won, err)
	}

	// 同一牌位的第二次条件更新不再命中
	won, err = interps.Reveal(ctx, rd.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if won {
		t.Error("重复揭示不应再次胜出")
	}
}

func TestCreateDraftsForcesHiddenFlags(t *testing.T) {
	setupDB(t)
	rd := seedReading(t, reading.StatusDrafting)

	interps := repositories.NewInterpretationRepository()
	drafts := []interpretation.CardInterpretation{{
		ReadingID:   rd.ID,
		Position:    1,
		CardID:      7,
		Orientation: reading.OrientationUpright,
		DraftText:   "草稿",
		// 调用方恶意或出错置位，仓库层必须清掉
		ReaderApproved:  true,
		VisibleToClient: true,
	}}
	if err := interps.CreateDrafts(ctx, drafts); err != nil {
		t.Fatalf("写入草稿失败: %v", err)
	}

	ci, err := interps.GetByPosition(ctx, rd.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ci.ReaderApproved || ci.VisibleToClient {
		t.Errorf("新建草稿必须不可见且未审核: %+v", ci)
	}
}
