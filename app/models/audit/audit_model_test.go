package audit_test

import (
	"testing"

	"arcana/app/models/audit"
)

func TestDeriveViolation(t *testing.T) {
	tests := []struct {
		action  audit.Action
		granted bool
		want    bool
	}{
		{audit.ActionViewDraft, false, true},
		{audit.ActionUnauthorizedAccess, false, true},
		{audit.ActionViewDraft, true, false},
		{audit.ActionUnauthorizedAccess, true, false},
		{audit.ActionReveal, false, false},
		{audit.ActionEditDraft, false, false},
		{audit.ActionStateTransition, true, false},
	}
	for _, tt := range tests {
		if got := audit.DeriveViolation(tt.action, tt.granted); got != tt.want {
			t.Errorf("DeriveViolation(%s, %v) = %v, want %v", tt.action, tt.granted, got, tt.want)
		}
	}
}
