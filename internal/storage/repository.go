package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ledgerbot/internal/core"

	_ "modernc.org/sqlite"
)

// Repository is the SQLite-backed ledger store. Every by-id read and mutation
// filters on (id, user_id); a cross-user id behaves exactly like a missing one.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// monthKey formats the strftime('%Y-%m', ...) comparison value.
func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// timeLayout is the storage form of created_at and exported_at. SQLite's
// date() and strftime() only understand a fixed set of formats, so the column
// is written as text in this layout (always UTC) rather than letting the
// driver pick a representation. CURRENT_TIMESTAMP produces the same shape.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// CreateExpense inserts a record and returns it with the assigned id.
func (r *Repository) CreateExpense(ctx context.Context, userID, item, category string, amount int64) (core.Expense, error) {
	e := core.Expense{
		UserID:    userID,
		Item:      item,
		Category:  category,
		Amount:    amount,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, item, category, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Item, e.Category, e.Amount, formatTime(e.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"user_id", e.UserID,
		"item", e.Item,
		"category", e.Category,
		"amount", e.Amount)

	return e, nil
}

// GetExpense returns the record only if it belongs to userID.
func (r *Repository) GetExpense(ctx context.Context, userID string, id int64) (core.Expense, error) {
	var e core.Expense
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, item, category, amount, created_at
		FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&e.ID, &e.UserID, &e.Item, &e.Category, &e.Amount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	return e, nil
}

// DeleteExpense removes the record if owned by userID; core.ErrNotFound
// otherwise, which also makes a second delete of the same id a not-found.
func (r *Repository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Expense deleted", "expense_id", id, "user_id", userID)
	return nil
}

// UpdateExpenseAmount mutates exactly one owned record.
func (r *Repository) UpdateExpenseAmount(ctx context.Context, userID string, id, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("update amount: %w", core.ErrInvalidAmount)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount = ? WHERE id = ? AND user_id = ?`,
		amount, id, userID)
	if err != nil {
		return fmt.Errorf("update expense amount %d: %w", id, err)
	}
	return oneRowOrNotFound(res)
}

// UpdateExpenseCategory mutates exactly one owned record.
func (r *Repository) UpdateExpenseCategory(ctx context.Context, userID string, id int64, category string) error {
	if category == "" {
		return fmt.Errorf("update category: %w", core.ErrEmptyCategory)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET category = ? WHERE id = ? AND user_id = ?`,
		category, id, userID)
	if err != nil {
		return fmt.Errorf("update expense category %d: %w", id, err)
	}
	return oneRowOrNotFound(res)
}

// ClearExpenses deletes every record for the user and returns the count.
func (r *Repository) ClearExpenses(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	slog.InfoContext(ctx, "Expenses cleared", "user_id", userID, "count", n)
	return n, nil
}

// LastExpenseID returns the most recently inserted record id for the user.
// Insertion order (the assigned id) is authoritative, not the timestamp column.
func (r *Repository) LastExpenseID(ctx context.Context, userID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM expenses WHERE user_id = ? ORDER BY id DESC LIMIT 1`,
		userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("last expense id: %w", err)
	}
	return id, nil
}

// MonthExpenses lists the user's records for the given calendar month,
// newest first.
func (r *Repository) MonthExpenses(ctx context.Context, userID string, year int, month time.Month) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, item, category, amount, created_at
		FROM expenses
		WHERE user_id = ? AND strftime('%Y-%m', created_at) = ?
		ORDER BY id DESC`,
		userID, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("month expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Item, &e.Category, &e.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// MonthTotal sums the user's amounts for the given calendar month.
func (r *Repository) MonthTotal(ctx context.Context, userID string, year int, month time.Month) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE user_id = ? AND strftime('%Y-%m', created_at) = ?`,
		userID, monthKey(year, month)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("month total: %w", err)
	}
	return total, nil
}

// DayTotal sums the user's amounts on one calendar day (YYYY-MM-DD).
func (r *Repository) DayTotal(ctx context.Context, userID, date string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE user_id = ? AND date(created_at) = ?`,
		userID, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("day total: %w", err)
	}
	return total, nil
}

// CategorySummary returns per-category sums for the given calendar month,
// largest first.
func (r *Repository) CategorySummary(ctx context.Context, userID string, year int, month time.Month) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, SUM(amount) FROM expenses
		WHERE user_id = ? AND strftime('%Y-%m', created_at) = ?
		GROUP BY category
		ORDER BY SUM(amount) DESC, category`,
		userID, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	defer rows.Close()

	var sums []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		sums = append(sums, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return sums, nil
}

// CategoryMonthTotal sums one category for the given calendar month.
func (r *Repository) CategoryMonthTotal(ctx context.Context, userID, category string, year int, month time.Month) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE user_id = ? AND category = ? AND strftime('%Y-%m', created_at) = ?`,
		userID, category, monthKey(year, month)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("category month total: %w", err)
	}
	return total, nil
}

// UpsertAlert sets or replaces the spending limit for (user, category).
func (r *Repository) UpsertAlert(ctx context.Context, alert core.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("validate alert: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO spending_alerts (user_id, category, limit_amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, category) DO UPDATE SET limit_amount = excluded.limit_amount`,
		alert.UserID, alert.Category, alert.Limit)
	if err != nil {
		return fmt.Errorf("upsert alert: %w", err)
	}

	slog.InfoContext(ctx, "Alert limit set",
		"user_id", alert.UserID, "category", alert.Category, "limit", alert.Limit)
	return nil
}

// GetAlert returns the configured limit, or core.ErrNotFound when none is set.
func (r *Repository) GetAlert(ctx context.Context, userID, category string) (core.Alert, error) {
	a := core.Alert{UserID: userID, Category: category}
	err := r.db.QueryRowContext(ctx, `
		SELECT limit_amount FROM spending_alerts
		WHERE user_id = ? AND category = ?`,
		userID, category).Scan(&a.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Alert{}, core.ErrNotFound
	}
	if err != nil {
		return core.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// AddCategory records a user-defined category label. Duplicate adds are a
// no-op, not an error.
func (r *Repository) AddCategory(ctx context.Context, userID, name string) error {
	if name == "" {
		return fmt.Errorf("add category: %w", core.ErrEmptyCategory)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO custom_categories (user_id, category_name)
		VALUES (?, ?)
		ON CONFLICT(user_id, category_name) DO NOTHING`,
		userID, name)
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	return nil
}

// ListCategories returns the user's custom category labels.
func (r *Repository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_name FROM custom_categories
		WHERE user_id = ? ORDER BY category_name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return names, nil
}

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
