// Package worker moves recorded expenses from the ledger to the external
// spreadsheet. Delivery is at least once; re-exporting an already exported
// record only rewrites the same data.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/core"
	"ledgerbot/internal/sheets"
)

// ExportStore is the slice of the ledger the worker needs.
type ExportStore interface {
	ExpenseByID(ctx context.Context, id int64) (core.Expense, error)
	PendingExports(ctx context.Context, limit int) ([]int64, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// ExportWorker copies expenses to the configured sheet and tracks export
// state in the ledger.
type ExportWorker struct {
	storage   ExportStore
	sheets    sheets.ExpenseAppender
	batchSize int
}

func NewExportWorker(storage ExportStore, appender sheets.ExpenseAppender, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		storage:   storage,
		sheets:    appender,
		batchSize: batchSize,
	}
}

// HandleExportMessage processes a single expense export message from AMQP.
// Returning an error requeues the message.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExpenseExportMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		"expense_id", msg.ID,
		"user_id", msg.UserID)

	if err := w.exportExpense(ctx, msg.ID); err != nil {
		return fmt.Errorf("export expense %d: %w", msg.ID, err)
	}
	return nil
}

func (w *ExportWorker) exportExpense(ctx context.Context, id int64) error {
	expense, err := w.storage.ExpenseByID(ctx, id)
	if core.IsNotFound(err) {
		// The record was deleted before the worker got to it. Nothing to
		// export; do not requeue.
		slog.WarnContext(ctx, "Expense gone before export, skipping", "expense_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	rowRef, err := w.sheets.Append(ctx, expense)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"expense_id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkExported(ctx, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Expense exported",
		"expense_id", id,
		"row_ref", rowRef)
	return nil
}

// ProcessPendingExpenses exports any expenses still marked pending. This is a
// backup sweep in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExpenses(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, id := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.exportExpense(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending expense",
				"expense_id", id, "error", err)
		}
	}
	return nil
}

// StartupCheck sweeps a larger pending batch once at worker startup to
// recover from missed messages or downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, id := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.exportExpense(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export during startup",
				"expense_id", id, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)
	return nil
}
