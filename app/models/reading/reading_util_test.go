package reading_test

import (
	"testing"

	"arcana/app/models/reading"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to reading.Status }{
		{reading.StatusInitiated, reading.StatusDrafting},
		{reading.StatusDrafting, reading.StatusDraftReady},
		{reading.StatusDraftReady, reading.StatusReviewing},
		{reading.StatusReviewing, reading.StatusEditing},
		{reading.StatusReviewing, reading.StatusApproved},
		{reading.StatusEditing, reading.StatusApproved},
		{reading.StatusApproved, reading.StatusReadyForReveal},
		{reading.StatusReadyForReveal, reading.StatusRevealed},
		{reading.StatusRevealed, reading.StatusCompleted},
		{reading.StatusInitiated, reading.StatusCancelled},
		{reading.StatusRevealed, reading.StatusExpired},
	}
	for _, tr := range allowed {
		if !reading.CanTransition(tr.from, tr.to) {
			t.Errorf("应允许 %s -> %s", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to reading.Status }{
		{reading.StatusInitiated, reading.StatusDraftReady}, // 不能跳过 drafting
		{reading.StatusDraftReady, reading.StatusApproved},  // 不能跳过审核
		{reading.StatusApproved, reading.StatusRevealed},    // 不能跳过 ready_for_reveal
		{reading.StatusCompleted, reading.StatusCancelled},  // 终态不可流出
		{reading.StatusCancelled, reading.StatusInitiated},
		{reading.StatusExpired, reading.StatusDrafting},
		{reading.StatusRevealed, reading.StatusReadyForReveal}, // 不可回退
	}
	for _, tr := range denied {
		if reading.CanTransition(tr.from, tr.to) {
			t.Errorf("不应允许 %s -> %s", tr.from, tr.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminals := []reading.Status{reading.StatusCompleted, reading.StatusCancelled, reading.StatusExpired}
	for _, s := range terminals {
		if !reading.IsTerminal(s) {
			t.Errorf("%s 应为终态", s)
		}
		if next := reading.CanTransition(s, reading.StatusCancelled); next {
			t.Errorf("终态 %s 不应有出边", s)
		}
	}
	if reading.IsTerminal(reading.StatusRevealed) {
		t.Error("revealed 不是终态")
	}
}

func TestCardsValueScan(t *testing.T) {
	cards := reading.Cards{
		{CardID: 3, Orientation: reading.OrientationUpright},
		{CardID: 17, Orientation: reading.OrientationReversed},
	}

	value, err := cards.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out reading.Cards
	if err := out.Scan(value); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 2 || out[0].CardID != 3 || out[1].Orientation != reading.OrientationReversed {
		t.Errorf("往返结果不一致: %+v", out)
	}

	var empty reading.Cards
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("nil 应得到空数组, got %+v", empty)
	}
}

func TestReadingValidate(t *testing.T) {
	rd := &reading.Reading{
		ClientID: "client-1",
		Type:     reading.TypeClientReveal,
		Cards:    reading.Cards{{CardID: 1, Orientation: reading.OrientationUpright}},
	}
	if err := rd.Validate(); err != nil {
		t.Errorf("合法记录不应报错: %v", err)
	}

	rd.Type = "mystery"
	if err := rd.Validate(); err == nil {
		t.Error("未知类型应报错")
	}
	rd.Type = reading.TypeClientReveal

	rd.Cards = reading.Cards{}
	if err := rd.Validate(); err == nil {
		t.Error("空抽牌应报错")
	}

	rd.Cards = make(reading.Cards, 11)
	if err := rd.Validate(); err == nil {
		t.Error("超过 10 张应报错")
	}
}
