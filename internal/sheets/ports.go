package sheets

import (
	"context"

	"ledgerbot/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseAppender writes one ledger record to the external sheet and
	// returns a reference to the written row.
	ExpenseAppender interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}
)
