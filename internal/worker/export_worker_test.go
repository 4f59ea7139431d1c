package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/core"
	"ledgerbot/internal/sheets/memory"
	"ledgerbot/internal/storage"
)

func newTestStore(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// failingAppender always rejects.
type failingAppender struct{}

func (failingAppender) Append(ctx context.Context, e core.Expense) (string, error) {
	return "", errors.New("sheet unavailable")
}

func TestHandleExportMessage(t *testing.T) {
	repo := newTestStore(t)
	sheet := memory.New()
	w := NewExportWorker(repo, sheet, 10)
	ctx := context.Background()

	exp, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 150)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	msg := amqp.NewExpenseExportMessage(exp.ID, "u1")
	if err := w.HandleExportMessage(ctx, msg); err != nil {
		t.Fatalf("HandleExportMessage: %v", err)
	}

	items := sheet.Items()
	if len(items) != 1 || items[0].Item != "拉麵" {
		t.Fatalf("exported = %+v", items)
	}

	pending, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("still pending after export: %v", pending)
	}
}

func TestHandleExportMessageMissingRecordIsSkipped(t *testing.T) {
	repo := newTestStore(t)
	w := NewExportWorker(repo, memory.New(), 10)

	msg := amqp.NewExpenseExportMessage(999, "u1")
	if err := w.HandleExportMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleExportMessage for deleted record should not requeue: %v", err)
	}
}

func TestHandleExportMessageAppendFailureRequeues(t *testing.T) {
	repo := newTestStore(t)
	w := NewExportWorker(repo, failingAppender{}, 10)
	ctx := context.Background()

	exp, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 150)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	msg := amqp.NewExpenseExportMessage(exp.ID, "u1")
	if err := w.HandleExportMessage(ctx, msg); err == nil {
		t.Fatal("expected error so the message gets requeued")
	}
}

func TestProcessPendingExpenses(t *testing.T) {
	repo := newTestStore(t)
	sheet := memory.New()
	w := NewExportWorker(repo, sheet, 10)
	ctx := context.Background()

	for _, item := range []string{"早餐", "午餐", "晚餐"} {
		if _, err := repo.CreateExpense(ctx, "u1", item, "餐費", 100); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	if err := w.ProcessPendingExpenses(ctx); err != nil {
		t.Fatalf("ProcessPendingExpenses: %v", err)
	}

	if got := len(sheet.Items()); got != 3 {
		t.Fatalf("exported %d items, want 3", got)
	}
	pending, _ := repo.PendingExports(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("still pending: %v", pending)
	}
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	repo := newTestStore(t)
	w := NewExportWorker(repo, failingAppender{}, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 100); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	// The sweep itself succeeds; per-record failures are logged and marked.
	if err := w.ProcessPendingExpenses(ctx); err != nil {
		t.Fatalf("ProcessPendingExpenses: %v", err)
	}
}

func TestStartupCheckExportsBacklog(t *testing.T) {
	repo := newTestStore(t)
	sheet := memory.New()
	w := NewExportWorker(repo, sheet, 2)
	ctx := context.Background()

	// More records than one regular batch; the startup check uses a larger one.
	for i := 0; i < 5; i++ {
		if _, err := repo.CreateExpense(ctx, "u1", "拉麵", "餐費", 100); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	if err := w.StartupCheck(ctx); err != nil {
		t.Fatalf("StartupCheck: %v", err)
	}
	if got := len(sheet.Items()); got != 5 {
		t.Fatalf("exported %d items, want 5", got)
	}
}
