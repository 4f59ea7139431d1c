package service

import (
	"context"
	"fmt"
	"time"

	"ledgerbot/internal/core"
	"ledgerbot/internal/log"
)

// AlertStore is the slice of persistence the evaluator needs.
type AlertStore interface {
	GetAlert(ctx context.Context, userID, category string) (core.Alert, error)
	CategoryMonthTotal(ctx context.Context, userID, category string, year int, month time.Month) (int64, error)
}

// AlertEvaluator checks a single category against the user's configured
// monthly limit. Only the category that was just touched is evaluated; there
// is no periodic sweep.
type AlertEvaluator struct {
	store  AlertStore
	logger *log.Logger
}

func NewAlertEvaluator(store AlertStore, logger *log.Logger) *AlertEvaluator {
	return &AlertEvaluator{
		store:  store,
		logger: logger.WithComponent(log.ComponentDispatcher),
	}
}

// Check returns warning text when the month-to-date total of category exceeds
// the user's limit, or "" otherwise. Evaluation problems degrade to "": an
// alert is best effort and must never block recording the expense.
func (a *AlertEvaluator) Check(ctx context.Context, userID, category string, now time.Time) string {
	alert, err := a.store.GetAlert(ctx, userID, category)
	if core.IsNotFound(err) {
		return ""
	}
	if err != nil {
		a.logger.WarnContext(ctx, "Alert lookup failed",
			log.FieldUserID, userID, log.FieldCategory, category, log.FieldError, err.Error())
		return ""
	}

	year, month := core.YearMonth(now.UTC())
	total, err := a.store.CategoryMonthTotal(ctx, userID, category, year, month)
	if err != nil {
		a.logger.WarnContext(ctx, "Alert total query failed",
			log.FieldUserID, userID, log.FieldCategory, category, log.FieldError, err.Error())
		return ""
	}

	if total <= alert.Limit {
		return ""
	}
	return fmt.Sprintf("⚠️ 注意!你本月「%s」已花 %d 元,超過上限 %d 元", category, total, alert.Limit)
}
