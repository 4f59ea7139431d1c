package memory

import (
	"context"
	"testing"
	"time"

	"ledgerbot/internal/core"
)

func TestAppendAndItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := core.Expense{UserID: "u1", Item: "拉麵", Category: "餐費", Amount: 150, CreatedAt: time.Now()}
	ref, err := s.Append(ctx, e)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("ref = %q, want mem:1", ref)
	}

	items := s.Items()
	if len(items) != 1 || items[0].Item != "拉麵" {
		t.Fatalf("items = %+v", items)
	}
}

func TestAppendRejectsInvalidExpense(t *testing.T) {
	s := New()

	if _, err := s.Append(context.Background(), core.Expense{UserID: "u1"}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(s.Items()) != 0 {
		t.Fatal("invalid expense stored")
	}
}
