package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledgerbot/internal/core"
)

// Export bookkeeping for the Sheets worker. Rows start as 'pending'; the
// worker moves them to 'exported' or 'export_error'.

// PendingExports returns ids of expenses not yet exported, oldest first.
func (r *Repository) PendingExports(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM expenses
		WHERE export_status = 'pending'
		ORDER BY id ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ids: %w", err)
	}
	return ids, nil
}

// ExpenseByID fetches a record without an ownership filter. Worker-side only;
// user-facing reads go through GetExpense.
func (r *Repository) ExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	var e core.Expense
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, item, category, amount, created_at
		FROM expenses WHERE id = ?`,
		id).Scan(&e.ID, &e.UserID, &e.Item, &e.Category, &e.Amount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense by id %d: %w", id, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	return e, nil
}

// MarkExported marks an expense as successfully exported.
func (r *Repository) MarkExported(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET export_status = 'exported', exported_at = ?
		WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Expense marked as exported", "expense_id", id)
	return nil
}

// MarkExportError marks an expense as having failed export.
func (r *Repository) MarkExportError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET export_status = 'export_error' WHERE id = ?`,
		id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}

	slog.WarnContext(ctx, "Expense marked with export error", "expense_id", id)
	return nil
}
