package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ledgerbot/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateExpenseIncreasesMonthTotal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	year, month := core.YearMonth(time.Now().UTC())

	before, err := repo.MonthTotal(ctx, "u1", year, month)
	if err != nil {
		t.Fatalf("MonthTotal: %v", err)
	}

	e, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 150)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if e.ID == 0 {
		t.Fatal("expected assigned id")
	}

	after, err := repo.MonthTotal(ctx, "u1", year, month)
	if err != nil {
		t.Fatalf("MonthTotal: %v", err)
	}
	if after-before != 150 {
		t.Fatalf("month total delta = %d, want 150", after-before)
	}
}

func TestCreatedAtIsSQLiteDateCompatible(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.CreateExpense(ctx, "u1", "早餐", "餐費", 80)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	var ym, day string
	err = repo.db.QueryRowContext(ctx, `
		SELECT strftime('%Y-%m', created_at), date(created_at)
		FROM expenses WHERE id = ?`, e.ID).Scan(&ym, &day)
	if err != nil {
		t.Fatalf("query stored created_at: %v", err)
	}
	if want := e.CreatedAt.Format("2006-01"); ym != want {
		t.Fatalf("strftime('%%Y-%%m') = %q, want %q", ym, want)
	}
	if want := e.CreatedAt.Format("2006-01-02"); day != want {
		t.Fatalf("date() = %q, want %q", day, want)
	}

	got, err := repo.GetExpense(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("CreatedAt round-trip = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestCreateExpenseRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateExpense(ctx, "u1", "咖啡", "飲料", 0); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := repo.CreateExpense(ctx, "u1", "", "飲料", 50); err == nil {
		t.Error("expected error for empty item")
	}
}

func TestDeleteExpenseIsIdempotentlyNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.CreateExpense(ctx, "u1", "電影", "娛樂", 300)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if err := repo.DeleteExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := repo.DeleteExpense(ctx, "u1", e.ID); !core.IsNotFound(err) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.CreateExpense(ctx, "alice", "便當", "餐費", 90)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if _, err := repo.GetExpense(ctx, "bob", e.ID); !core.IsNotFound(err) {
		t.Errorf("cross-user get = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteExpense(ctx, "bob", e.ID); !core.IsNotFound(err) {
		t.Errorf("cross-user delete = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateExpenseAmount(ctx, "bob", e.ID, 10); !core.IsNotFound(err) {
		t.Errorf("cross-user amount update = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateExpenseCategory(ctx, "bob", e.ID, "其他"); !core.IsNotFound(err) {
		t.Errorf("cross-user category update = %v, want ErrNotFound", err)
	}

	// Alice's record is untouched.
	got, err := repo.GetExpense(ctx, "alice", e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Amount != 90 || got.Category != "餐費" {
		t.Fatalf("record mutated across users: %+v", got)
	}
}

func TestUpdateExpense(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.CreateExpense(ctx, "u1", "書", "購物", 500)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	other, err := repo.CreateExpense(ctx, "u1", "筆", "購物", 30)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if err := repo.UpdateExpenseAmount(ctx, "u1", e.ID, 450); err != nil {
		t.Fatalf("UpdateExpenseAmount: %v", err)
	}
	if err := repo.UpdateExpenseCategory(ctx, "u1", e.ID, "娛樂"); err != nil {
		t.Fatalf("UpdateExpenseCategory: %v", err)
	}

	got, _ := repo.GetExpense(ctx, "u1", e.ID)
	if got.Amount != 450 || got.Category != "娛樂" {
		t.Fatalf("unexpected record after update: %+v", got)
	}

	// Only the targeted record changed.
	untouched, _ := repo.GetExpense(ctx, "u1", other.ID)
	if untouched.Amount != 30 || untouched.Category != "購物" {
		t.Fatalf("untargeted record mutated: %+v", untouched)
	}

	if err := repo.UpdateExpenseAmount(ctx, "u1", e.ID, -5); err == nil {
		t.Error("expected error for non-positive amount")
	}
}

func TestCategorySummaryMatchesMonthTotal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	year, month := core.YearMonth(time.Now().UTC())

	for _, rec := range []struct {
		item, cat string
		amount    int64
	}{
		{"拉麵", "餐費", 150},
		{"便當", "餐費", 90},
		{"珍奶", "飲料", 60},
		{"捷運", "交通", 25},
	} {
		if _, err := repo.CreateExpense(ctx, "u1", rec.item, rec.cat, rec.amount); err != nil {
			t.Fatalf("CreateExpense(%s): %v", rec.item, err)
		}
	}
	// Another user's spend must not leak into the summary.
	if _, err := repo.CreateExpense(ctx, "u2", "晚餐", "餐費", 999); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	sums, err := repo.CategorySummary(ctx, "u1", year, month)
	if err != nil {
		t.Fatalf("CategorySummary: %v", err)
	}

	var sum int64
	for _, ct := range sums {
		sum += ct.Total
	}
	total, err := repo.MonthTotal(ctx, "u1", year, month)
	if err != nil {
		t.Fatalf("MonthTotal: %v", err)
	}
	if sum != total {
		t.Fatalf("summary sum %d != month total %d", sum, total)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d categories, want 3", len(sums))
	}
	if sums[0].Category != "餐費" || sums[0].Total != 240 {
		t.Fatalf("unexpected leading summary row: %+v", sums[0])
	}
}

func TestMonthExpensesNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	year, month := core.YearMonth(time.Now().UTC())

	first, _ := repo.CreateExpense(ctx, "u1", "早餐", "餐費", 50)
	second, _ := repo.CreateExpense(ctx, "u1", "午餐", "餐費", 120)

	list, err := repo.MonthExpenses(ctx, "u1", year, month)
	if err != nil {
		t.Fatalf("MonthExpenses: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d expenses, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got ids %d, %d", list[0].ID, list[1].ID)
	}
}

func TestDayTotal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 150); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	total, err := repo.DayTotal(ctx, "u1", today)
	if err != nil {
		t.Fatalf("DayTotal: %v", err)
	}
	if total != 150 {
		t.Fatalf("today total = %d, want 150", total)
	}

	empty, err := repo.DayTotal(ctx, "u1", "2001-01-01")
	if err != nil {
		t.Fatalf("DayTotal: %v", err)
	}
	if empty != 0 {
		t.Fatalf("empty day total = %d, want 0", empty)
	}
}

func TestLastExpenseID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.LastExpenseID(ctx, "u1"); !core.IsNotFound(err) {
		t.Fatalf("empty ledger LastExpenseID = %v, want ErrNotFound", err)
	}

	repo.CreateExpense(ctx, "u1", "a", "其他", 1)
	e2, _ := repo.CreateExpense(ctx, "u1", "b", "其他", 2)
	repo.CreateExpense(ctx, "u2", "c", "其他", 3)

	id, err := repo.LastExpenseID(ctx, "u1")
	if err != nil {
		t.Fatalf("LastExpenseID: %v", err)
	}
	if id != e2.ID {
		t.Fatalf("last id = %d, want %d", id, e2.ID)
	}
}

func TestClearExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	year, month := core.YearMonth(time.Now().UTC())

	repo.CreateExpense(ctx, "u1", "a", "其他", 10)
	repo.CreateExpense(ctx, "u1", "b", "其他", 20)
	keep, _ := repo.CreateExpense(ctx, "u2", "c", "其他", 30)

	n, err := repo.ClearExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("ClearExpenses: %v", err)
	}
	if n != 2 {
		t.Fatalf("cleared %d, want 2", n)
	}

	total, _ := repo.MonthTotal(ctx, "u1", year, month)
	if total != 0 {
		t.Fatalf("u1 total after clear = %d, want 0", total)
	}
	if _, err := repo.GetExpense(ctx, "u2", keep.ID); err != nil {
		t.Fatalf("other user's record lost: %v", err)
	}
}

func TestAlertUpsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetAlert(ctx, "u1", "餐費"); !core.IsNotFound(err) {
		t.Fatalf("missing alert = %v, want ErrNotFound", err)
	}

	if err := repo.UpsertAlert(ctx, core.Alert{UserID: "u1", Category: "餐費", Limit: 100}); err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	a, err := repo.GetAlert(ctx, "u1", "餐費")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if a.Limit != 100 {
		t.Fatalf("limit = %d, want 100", a.Limit)
	}

	// Upsert replaces, never duplicates.
	if err := repo.UpsertAlert(ctx, core.Alert{UserID: "u1", Category: "餐費", Limit: 250}); err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	a, _ = repo.GetAlert(ctx, "u1", "餐費")
	if a.Limit != 250 {
		t.Fatalf("limit after upsert = %d, want 250", a.Limit)
	}

	if err := repo.UpsertAlert(ctx, core.Alert{UserID: "u1", Category: "餐費", Limit: 0}); err == nil {
		t.Error("expected error for non-positive limit")
	}
}

func TestAddCategoryIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.AddCategory(ctx, "u1", "寵物"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if err := repo.AddCategory(ctx, "u1", "寵物"); err != nil {
		t.Fatalf("duplicate AddCategory: %v", err)
	}

	names, err := repo.ListCategories(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(names) != 1 || names[0] != "寵物" {
		t.Fatalf("categories = %v, want exactly [寵物]", names)
	}
}

func TestExportLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e1, _ := repo.CreateExpense(ctx, "u1", "a", "其他", 10)
	e2, _ := repo.CreateExpense(ctx, "u1", "b", "其他", 20)

	ids, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if len(ids) != 2 || ids[0] != e1.ID || ids[1] != e2.ID {
		t.Fatalf("pending ids = %v, want [%d %d]", ids, e1.ID, e2.ID)
	}

	if err := repo.MarkExported(ctx, e1.ID); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	if err := repo.MarkExportError(ctx, e2.ID); err != nil {
		t.Fatalf("MarkExportError: %v", err)
	}

	ids, _ = repo.PendingExports(ctx, 10)
	if len(ids) != 0 {
		t.Fatalf("pending after marks = %v, want none", ids)
	}

	got, err := repo.ExpenseByID(ctx, e1.ID)
	if err != nil {
		t.Fatalf("ExpenseByID: %v", err)
	}
	if got.Item != "a" {
		t.Fatalf("unexpected expense: %+v", got)
	}
	if _, err := repo.ExpenseByID(ctx, 99999); !core.IsNotFound(err) {
		t.Fatalf("missing ExpenseByID = %v, want ErrNotFound", err)
	}
}
