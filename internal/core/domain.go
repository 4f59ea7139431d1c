package core

import (
	"errors"
	"strings"
	"time"
)

// FallbackCategory is assigned when the classifier cannot produce a label.
// A classification failure must never lose the expense itself.
const FallbackCategory = "未分類"

// BaseCategories is the fixed menu offered to the classifier. Users extend it
// through add-category; custom labels live in custom_categories.
var BaseCategories = []string{"餐費", "飲料", "娛樂", "交通", "購物", "醫療", "其他"}

type (
	// Expense is one ledger record. IDs are store-assigned and monotone by
	// insertion; amounts are whole currency units (元), never fractional.
	Expense struct {
		ID        int64
		UserID    string
		Item      string
		Category  string
		Amount    int64
		CreatedAt time.Time
	}

	// Alert is a per-user, per-category monthly spending limit.
	Alert struct {
		UserID   string
		Category string
		Limit    int64
	}

	// CategoryTotal is one row of a monthly category summary.
	CategoryTotal struct {
		Category string
		Total    int64
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyItem     = errors.New("empty item")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyUser     = errors.New("empty user id")
)

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUser
	}
	if len(strings.TrimSpace(e.Item)) == 0 {
		return ErrEmptyItem
	}
	if len(e.Item) > 200 {
		return errors.New("item too long (max 200 characters)")
	}
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (a Alert) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(a.Category) == "" {
		return ErrEmptyCategory
	}
	if a.Limit <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// YearMonth returns the calendar year-month of t, the aggregation key for all
// "current month" queries. Stored timestamps are UTC (CURRENT_TIMESTAMP), so
// callers pass time.Now().UTC().
func YearMonth(t time.Time) (int, time.Month) {
	return t.Year(), t.Month()
}
