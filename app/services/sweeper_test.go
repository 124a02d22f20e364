package services_test

import (
	"testing"

	"arcana/app/models/audit"
	"arcana/app/models/reading"
	"arcana/app/services"
)

func TestSweepOnceExpiresOverdueReadings(t *testing.T) {
	svc := setupDB(t)
	sweeper := services.NewExpirySweeper(svc, services.SweeperConfig{})

	overdue := createReading(t, svc)
	backdate(t, overdue.ID)
	fresh := createReading(t, svc)

	if got := sweeper.SweepOnce(ctx); got != 1 {
		t.Fatalf("SweepOnce = %d, want 1", got)
	}

	mustStatus(t, overdue.ID, reading.StatusExpired)
	mustStatus(t, fresh.ID, reading.StatusInitiated)

	// 过期走正常流转路径，照常落审计
	events, err := svc.GetAuditTrail(ctx, admin, overdue.ID)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range events {
		if e.Action == audit.ActionStateTransition && e.ToStatus == string(reading.StatusExpired) {
			found = true
		}
	}
	if !found {
		t.Error("过期流转应有审计事件")
	}
}

func TestSweepSkipsTerminalReadings(t *testing.T) {
	svc := setupDB(t)
	sweeper := services.NewExpirySweeper(svc, services.SweeperConfig{})

	cancelled := createReading(t, svc)
	if err := svc.Cancel(ctx, client, cancelled.ID); err != nil {
		t.Fatal(err)
	}
	backdate(t, cancelled.ID)

	if got := sweeper.SweepOnce(ctx); got != 0 {
		t.Errorf("终态解读不应被清扫, got %d", got)
	}
	mustStatus(t, cancelled.ID, reading.StatusCancelled)
}

func TestSweepIdempotentAcrossRounds(t *testing.T) {
	svc := setupDB(t)
	sweeper := services.NewExpirySweeper(svc, services.SweeperConfig{})

	rd := createReading(t, svc)
	backdate(t, rd.ID)

	if got := sweeper.SweepOnce(ctx); got != 1 {
		t.Fatalf("第一轮 SweepOnce = %d, want 1", got)
	}
	if got := sweeper.SweepOnce(ctx); got != 0 {
		t.Errorf("第二轮不应重复处理, got %d", got)
	}
}
