package policies_test

import (
	"testing"

	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/policies"
)

func sampleReading() *reading.Reading {
	return &reading.Reading{
		ID:               "r-1",
		ClientID:         "client-1",
		AssignedReaderID: "reader-1",
		Status:           reading.StatusDraftReady,
	}
}

func TestAuthorize_DraftAccess(t *testing.T) {
	rd := sampleReading()

	tests := []struct {
		name    string
		role    policies.Role
		actorID string
		want    bool
	}{
		{"管理员可见草稿", policies.RoleAdmin, "admin-1", true},
		{"运营可见草稿", policies.RoleOperator, "op-1", true},
		{"指派解读师可见草稿", policies.RoleReader, "reader-1", true},
		{"其他解读师不可见", policies.RoleReader, "reader-2", false},
		{"客户本人不可见草稿", policies.RoleClient, "client-1", false},
		{"其他客户不可见", policies.RoleClient, "client-2", false},
		{"未知角色拒绝", policies.Role("ghost"), "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policies.Authorize(tt.role, tt.actorID, rd, audit.ContentDraft, nil)
			if d.Granted != tt.want {
				t.Errorf("Authorize(%s) granted = %v, want %v (reason: %s)", tt.role, d.Granted, tt.want, d.Reason)
			}
			if !d.Granted && d.Reason == "" {
				t.Error("拒绝决策必须带原因")
			}
		})
	}
}

// 客户对草稿的拒绝不依赖解读状态，任何状态下都一样
func TestAuthorize_ClientDraftDeniedInEveryStatus(t *testing.T) {
	statuses := []reading.Status{
		reading.StatusInitiated, reading.StatusDrafting, reading.StatusDraftReady,
		reading.StatusReviewing, reading.StatusEditing, reading.StatusApproved,
		reading.StatusReadyForReveal, reading.StatusRevealed, reading.StatusCompleted,
	}
	for _, st := range statuses {
		rd := sampleReading()
		rd.Status = st
		if d := policies.Authorize(policies.RoleClient, "client-1", rd, audit.ContentDraft, nil); d.Granted {
			t.Errorf("status %s: 客户不应看到草稿", st)
		}
	}
}

func TestAuthorize_FinalContent(t *testing.T) {
	rd := sampleReading()

	hidden := &interpretation.CardInterpretation{Position: 1, VisibleToClient: false}
	visible := &interpretation.CardInterpretation{Position: 1, ReaderApproved: true, VisibleToClient: true}

	if d := policies.Authorize(policies.RoleClient, "client-1", rd, audit.ContentFinal, hidden); d.Granted {
		t.Error("未揭示的牌位不应对客户可见")
	}
	if d := policies.Authorize(policies.RoleClient, "client-1", rd, audit.ContentFinal, visible); !d.Granted {
		t.Errorf("已揭示的牌位应对客户可见: %s", d.Reason)
	}
	if d := policies.Authorize(policies.RoleClient, "client-2", rd, audit.ContentFinal, visible); d.Granted {
		t.Error("他人的解读不应可见，即便牌位已揭示")
	}
	if d := policies.Authorize(policies.RoleClient, "client-1", rd, audit.ContentFinal, nil); d.Granted {
		t.Error("缺失牌位应拒绝")
	}
}

func TestAuthorize_ReaderRequiresAssignment(t *testing.T) {
	rd := sampleReading()
	rd.AssignedReaderID = ""

	if d := policies.Authorize(policies.RoleReader, "reader-1", rd, audit.ContentDraft, nil); d.Granted {
		t.Error("未指派时解读师不应通过门禁")
	}
}

func TestAuthorize_NilReading(t *testing.T) {
	if d := policies.Authorize(policies.RoleAdmin, "admin-1", nil, audit.ContentNone, nil); d.Granted {
		t.Error("解读不存在时必须拒绝")
	}
}

func TestCanTransition_RoleGating(t *testing.T) {
	tests := []struct {
		role policies.Role
		to   reading.Status
		want bool
	}{
		{policies.RoleReader, reading.StatusApproved, true},
		{policies.RoleClient, reading.StatusApproved, false},
		{policies.RoleClient, reading.StatusRevealed, true},
		{policies.RoleReader, reading.StatusRevealed, false},
		{policies.RoleOperator, reading.StatusCancelled, true},
		{policies.RoleClient, reading.StatusCancelled, true},
		{policies.RoleAdmin, reading.StatusExpired, false}, // 过期只归清扫器
	}
	for _, tt := range tests {
		if got := policies.CanTransition(tt.role, reading.StatusReviewing, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.role, tt.to, got, tt.want)
		}
	}
}

func TestIsPrivileged(t *testing.T) {
	if !policies.IsPrivileged(policies.RoleAdmin) || !policies.IsPrivileged(policies.RoleOperator) {
		t.Error("admin/operator 应为内部角色")
	}
	if policies.IsPrivileged(policies.RoleReader) || policies.IsPrivileged(policies.RoleClient) {
		t.Error("reader/client 不应为内部角色")
	}
}
