// Package service executes resolved commands against the ledger and builds
// the user-facing replies.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledgerbot/internal/core"
	"ledgerbot/internal/log"
	"ledgerbot/internal/nlp"
	"ledgerbot/internal/session"
)

// Ledger is the persistence surface the dispatcher needs.
type Ledger interface {
	CreateExpense(ctx context.Context, userID, item, category string, amount int64) (core.Expense, error)
	GetExpense(ctx context.Context, userID string, id int64) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID string, id int64) error
	UpdateExpenseAmount(ctx context.Context, userID string, id, amount int64) error
	UpdateExpenseCategory(ctx context.Context, userID string, id int64, category string) error
	ClearExpenses(ctx context.Context, userID string) (int64, error)
	LastExpenseID(ctx context.Context, userID string) (int64, error)
	MonthExpenses(ctx context.Context, userID string, year int, month time.Month) ([]core.Expense, error)
	MonthTotal(ctx context.Context, userID string, year int, month time.Month) (int64, error)
	DayTotal(ctx context.Context, userID, date string) (int64, error)
	CategorySummary(ctx context.Context, userID string, year int, month time.Month) ([]core.CategoryTotal, error)
	UpsertAlert(ctx context.Context, alert core.Alert) error
	AddCategory(ctx context.Context, userID, name string) error
}

// Classifier labels an item with a spending category. Implementations never
// fail; they fall back to a default label instead.
type Classifier interface {
	Classify(ctx context.Context, userID, item string) string
}

// ExportPublisher hands a stored expense to the asynchronous export pipeline.
type ExportPublisher interface {
	PublishExpenseExport(ctx context.Context, expenseID int64, userID string) error
}

// ChartRenderer draws a category breakdown as a PNG image.
type ChartRenderer interface {
	CategoryBar(totals []core.CategoryTotal) ([]byte, error)
}

// Reply is what goes back to the user. ChartPNG is optional.
type Reply struct {
	Text     string
	ChartPNG []byte
}

// Dispatcher turns one resolved command into ledger mutations or queries and
// a reply. Publisher and charts are optional; the bot works without them.
type Dispatcher struct {
	ledger     Ledger
	classifier Classifier
	sessions   *session.Store
	alerts     *AlertEvaluator
	publisher  ExportPublisher
	charts     ChartRenderer
	logger     *log.Logger
	now        func() time.Time
}

func NewDispatcher(ledger Ledger, classifier Classifier, sessions *session.Store, alerts *AlertEvaluator, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		ledger:     ledger,
		classifier: classifier,
		sessions:   sessions,
		alerts:     alerts,
		logger:     logger.WithComponent(log.ComponentDispatcher),
		now:        time.Now,
	}
}

// WithPublisher enables asynchronous export of newly created expenses.
func (d *Dispatcher) WithPublisher(p ExportPublisher) *Dispatcher {
	d.publisher = p
	return d
}

// WithCharts enables chart rendering for category summaries.
func (d *Dispatcher) WithCharts(c ChartRenderer) *Dispatcher {
	d.charts = c
	return d
}

const unknownReply = `🤔 我看不懂這句話。你可以:
- 記帳:「拉麵 150」
- 查詢:「這個月花了多少」「本月各分類花費」
- 修改:「刪除記錄 12」「把剛剛那筆改成交通」
- 提醒:「餐費超過 3000 提醒我」`

// Dispatch executes cmd for userID. A non-nil error means an internal
// failure; user mistakes come back as corrective reply text instead.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, cmd nlp.Command) (Reply, error) {
	switch cmd.Intent {
	case nlp.IntentCreateExpense:
		return d.createExpense(ctx, userID, cmd.Params)
	case nlp.IntentQueryMonth:
		return d.queryMonth(ctx, userID)
	case nlp.IntentQueryMonthTotal:
		return d.queryMonthTotal(ctx, userID)
	case nlp.IntentQueryDay:
		return d.queryDay(ctx, userID, cmd.Params.Date)
	case nlp.IntentCategorySummary:
		return d.categorySummary(ctx, userID)
	case nlp.IntentDelete:
		return d.deleteExpense(ctx, userID, cmd.Params.ExpenseID)
	case nlp.IntentUpdateCategory:
		return d.updateCategory(ctx, userID, cmd.Params)
	case nlp.IntentUpdateAmount:
		return d.updateAmount(ctx, userID, cmd.Params)
	case nlp.IntentClearAll:
		return d.clearAll(ctx, userID)
	case nlp.IntentSetAlert:
		return d.setAlert(ctx, userID, cmd.Params)
	case nlp.IntentAddCategory:
		return d.addCategory(ctx, userID, cmd.Params.CategoryName)
	case nlp.IntentUnknown:
		return Reply{Text: unknownReply}, nil
	default:
		return Reply{Text: unknownReply}, nil
	}
}

// corrective turns a parameter problem into reply text. The hint is already
// user-facing Chinese; the field name only goes to the log.
func (d *Dispatcher) corrective(ctx context.Context, userID string, verr *core.ValidationError) Reply {
	d.logger.DebugContext(ctx, "Command rejected",
		log.FieldUserID, userID, log.FieldError, verr.Error())
	return Reply{Text: "❌ " + verr.Hint}
}

func (d *Dispatcher) createExpense(ctx context.Context, userID string, p nlp.Params) (Reply, error) {
	if p.Item == "" || p.Amount <= 0 {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "item", Hint: "請告訴我品項和金額,例如:「拉麵 150」"}), nil
	}

	category := d.classifier.Classify(ctx, userID, p.Item)

	exp, err := d.ledger.CreateExpense(ctx, userID, p.Item, category, p.Amount)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrEmptyItem) {
			return Reply{Text: "❌ 請告訴我品項和金額,例如:「拉麵 150」"}, nil
		}
		return Reply{}, fmt.Errorf("create expense: %w", err)
	}
	d.sessions.Set(userID, exp.ID)

	d.logger.InfoContext(ctx, "Expense recorded",
		log.FieldUserID, userID,
		log.FieldExpenseID, exp.ID,
		log.FieldCategory, exp.Category,
		log.FieldAmount, exp.Amount)

	text := fmt.Sprintf("✅ 已記錄:%s %d 元(分類:%s,編號 %d)", exp.Item, exp.Amount, exp.Category, exp.ID)
	if warning := d.alerts.Check(ctx, userID, exp.Category, d.now()); warning != "" {
		text += "\n" + warning
	}

	d.publishExport(ctx, exp)

	return Reply{Text: text}, nil
}

// publishExport hands the expense to the export pipeline. Failures are
// logged, never surfaced: the record is already safe in the ledger and the
// worker sweeps unexported rows on its own.
func (d *Dispatcher) publishExport(ctx context.Context, exp core.Expense) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishExpenseExport(ctx, exp.ID, exp.UserID); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish expense for export",
			log.FieldExpenseID, exp.ID, log.FieldError, err.Error())
	}
}

// currentMonth resolves "this month" in UTC. Records are stored with UTC
// timestamps, so a local clock in another zone must not shift the boundary.
func (d *Dispatcher) currentMonth() (int, time.Month) {
	return core.YearMonth(d.now().UTC())
}

func (d *Dispatcher) queryMonth(ctx context.Context, userID string) (Reply, error) {
	year, month := d.currentMonth()
	expenses, err := d.ledger.MonthExpenses(ctx, userID, year, month)
	if err != nil {
		return Reply{}, fmt.Errorf("month expenses: %w", err)
	}
	if len(expenses) == 0 {
		return Reply{Text: "📭 這個月還沒有任何記錄"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📒 %d 年 %d 月的記錄:\n", year, int(month))
	var total int64
	for _, e := range expenses {
		fmt.Fprintf(&b, "#%d %s %d 元(%s)\n", e.ID, e.Item, e.Amount, e.Category)
		total += e.Amount
	}
	fmt.Fprintf(&b, "共 %d 筆,合計 %d 元", len(expenses), total)
	return Reply{Text: b.String()}, nil
}

func (d *Dispatcher) queryMonthTotal(ctx context.Context, userID string) (Reply, error) {
	year, month := d.currentMonth()
	total, err := d.ledger.MonthTotal(ctx, userID, year, month)
	if err != nil {
		return Reply{}, fmt.Errorf("month total: %w", err)
	}
	return Reply{Text: fmt.Sprintf("📊 本月總支出:%d 元", total)}, nil
}

func (d *Dispatcher) queryDay(ctx context.Context, userID, date string) (Reply, error) {
	if date == "" {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "date", Hint: "請告訴我日期,例如:「3月5日花了多少」"}), nil
	}
	total, err := d.ledger.DayTotal(ctx, userID, date)
	if err != nil {
		return Reply{}, fmt.Errorf("day total: %w", err)
	}
	return Reply{Text: fmt.Sprintf("📅 %s 總支出:%d 元", date, total)}, nil
}

func (d *Dispatcher) categorySummary(ctx context.Context, userID string) (Reply, error) {
	year, month := d.currentMonth()
	totals, err := d.ledger.CategorySummary(ctx, userID, year, month)
	if err != nil {
		return Reply{}, fmt.Errorf("category summary: %w", err)
	}
	if len(totals) == 0 {
		return Reply{Text: "📭 這個月還沒有任何記錄"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 %d 年 %d 月各分類花費:\n", year, int(month))
	var total int64
	// Numbered so chart bars, which carry the same #N labels, can be read
	// back against this list.
	for i, ct := range totals {
		fmt.Fprintf(&b, "#%d %s:%d 元\n", i+1, ct.Category, ct.Total)
		total += ct.Total
	}
	fmt.Fprintf(&b, "合計 %d 元", total)

	reply := Reply{Text: b.String()}
	if d.charts != nil {
		png, err := d.charts.CategoryBar(totals)
		if err != nil {
			d.logger.WarnContext(ctx, "Chart rendering failed",
				log.FieldUserID, userID, log.FieldError, err.Error())
		} else {
			reply.ChartPNG = png
		}
	}
	return reply, nil
}

func (d *Dispatcher) deleteExpense(ctx context.Context, userID string, explicitID int64) (Reply, error) {
	id, reply, err := d.resolveTargetID(ctx, userID, explicitID)
	if err != nil || reply != nil {
		return orEmpty(reply), err
	}

	exp, err := d.ledger.GetExpense(ctx, userID, id)
	if core.IsNotFound(err) {
		return Reply{Text: fmt.Sprintf("❌ 找不到編號 %d 的記錄", id)}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("get expense: %w", err)
	}

	if err := d.ledger.DeleteExpense(ctx, userID, id); err != nil {
		if core.IsNotFound(err) {
			return Reply{Text: fmt.Sprintf("❌ 找不到編號 %d 的記錄", id)}, nil
		}
		return Reply{}, fmt.Errorf("delete expense: %w", err)
	}
	d.sessions.Invalidate(userID)

	d.logger.InfoContext(ctx, "Expense deleted",
		log.FieldUserID, userID, log.FieldExpenseID, id)
	return Reply{Text: fmt.Sprintf("🗑️ 已刪除:%s %d 元(編號 %d)", exp.Item, exp.Amount, id)}, nil
}

func (d *Dispatcher) updateCategory(ctx context.Context, userID string, p nlp.Params) (Reply, error) {
	if p.NewCategory == "" {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "new_category", Hint: "請告訴我要改成哪個分類,例如:「把記錄 12 改成交通」"}), nil
	}

	id, reply, err := d.resolveTargetID(ctx, userID, p.ExpenseID)
	if err != nil || reply != nil {
		return orEmpty(reply), err
	}

	if err := d.ledger.UpdateExpenseCategory(ctx, userID, id, p.NewCategory); err != nil {
		if core.IsNotFound(err) {
			return Reply{Text: fmt.Sprintf("❌ 找不到編號 %d 的記錄", id)}, nil
		}
		return Reply{}, fmt.Errorf("update category: %w", err)
	}
	d.sessions.Set(userID, id)

	return Reply{Text: fmt.Sprintf("✏️ 已把編號 %d 的分類改成「%s」", id, p.NewCategory)}, nil
}

func (d *Dispatcher) updateAmount(ctx context.Context, userID string, p nlp.Params) (Reply, error) {
	if p.NewAmount <= 0 {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "new_amount", Hint: "請告訴我新的金額,例如:「把記錄 12 改成 200 元」"}), nil
	}

	id, reply, err := d.resolveTargetID(ctx, userID, p.ExpenseID)
	if err != nil || reply != nil {
		return orEmpty(reply), err
	}

	if err := d.ledger.UpdateExpenseAmount(ctx, userID, id, p.NewAmount); err != nil {
		if core.IsNotFound(err) {
			return Reply{Text: fmt.Sprintf("❌ 找不到編號 %d 的記錄", id)}, nil
		}
		return Reply{}, fmt.Errorf("update amount: %w", err)
	}
	d.sessions.Set(userID, id)

	return Reply{Text: fmt.Sprintf("✏️ 已把編號 %d 的金額改成 %d 元", id, p.NewAmount)}, nil
}

func (d *Dispatcher) clearAll(ctx context.Context, userID string) (Reply, error) {
	count, err := d.ledger.ClearExpenses(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("clear expenses: %w", err)
	}
	d.sessions.Invalidate(userID)

	d.logger.InfoContext(ctx, "Expenses cleared",
		log.FieldUserID, userID, "count", count)
	if count == 0 {
		return Reply{Text: "📭 本來就沒有任何記錄"}, nil
	}
	return Reply{Text: fmt.Sprintf("🧹 已清除 %d 筆記錄", count)}, nil
}

func (d *Dispatcher) setAlert(ctx context.Context, userID string, p nlp.Params) (Reply, error) {
	if p.Category == "" || p.Limit <= 0 {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "category", Hint: "請告訴我分類和上限金額,例如:「餐費超過 3000 提醒我」"}), nil
	}

	alert := core.Alert{UserID: userID, Category: p.Category, Limit: p.Limit}
	if err := d.ledger.UpsertAlert(ctx, alert); err != nil {
		return Reply{}, fmt.Errorf("upsert alert: %w", err)
	}

	d.logger.InfoContext(ctx, "Alert set",
		log.FieldUserID, userID, log.FieldCategory, p.Category, log.FieldLimit, p.Limit)
	return Reply{Text: fmt.Sprintf("🔔 已設定「%s」每月超過 %d 元時提醒你", p.Category, p.Limit)}, nil
}

func (d *Dispatcher) addCategory(ctx context.Context, userID, name string) (Reply, error) {
	if name == "" {
		return d.corrective(ctx, userID, &core.ValidationError{
			Field: "category_name", Hint: "請告訴我分類名稱,例如:「新增分類 寵物」"}), nil
	}

	if err := d.ledger.AddCategory(ctx, userID, name); err != nil {
		return Reply{}, fmt.Errorf("add category: %w", err)
	}
	return Reply{Text: fmt.Sprintf("✅ 已新增分類「%s」,之後記帳會自動考慮它", name)}, nil
}

// resolveTargetID picks the record a delete or update refers to. Explicit ids
// win; otherwise the session hint is tried after verifying the record still
// exists; finally the newest record is used. A nil id with a non-nil reply
// means the user has nothing to operate on.
func (d *Dispatcher) resolveTargetID(ctx context.Context, userID string, explicitID int64) (int64, *Reply, error) {
	if explicitID > 0 {
		return explicitID, nil, nil
	}

	if id, ok := d.sessions.Get(userID); ok {
		_, err := d.ledger.GetExpense(ctx, userID, id)
		if err == nil {
			return id, nil, nil
		}
		if !core.IsNotFound(err) {
			return 0, nil, fmt.Errorf("verify session record: %w", err)
		}
		// The hinted record is gone. Drop the hint and fall back.
		d.sessions.Invalidate(userID)
	}

	id, err := d.ledger.LastExpenseID(ctx, userID)
	if core.IsNotFound(err) {
		return 0, &Reply{Text: "📭 目前沒有任何記錄可以操作"}, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("last expense id: %w", err)
	}
	return id, nil, nil
}

func orEmpty(r *Reply) Reply {
	if r == nil {
		return Reply{}
	}
	return *r
}
