package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ledgerbot/internal/log"
)

// Intent is the closed set of commands the bot understands. The resolver
// translates the external model's free-text answer into this set at one
// boundary; everything downstream switches exhaustively over it.
type Intent string

const (
	IntentCreateExpense   Intent = "create_expense"
	IntentQueryMonth      Intent = "query_month"
	IntentQueryMonthTotal Intent = "query_month_total"
	IntentQueryDay        Intent = "query_day"
	IntentCategorySummary Intent = "query_category_summary"
	IntentDelete          Intent = "delete"
	IntentUpdateCategory  Intent = "update_category"
	IntentUpdateAmount    Intent = "update_amount"
	IntentClearAll        Intent = "clear_all"
	IntentSetAlert        Intent = "set_alert"
	IntentAddCategory     Intent = "add_category"

	// IntentUnknown means the model understood nothing. Not an error: the
	// reply is corrective guidance, not a transient-failure notice.
	IntentUnknown Intent = "unknown"
)

var knownIntents = map[Intent]bool{
	IntentCreateExpense:   true,
	IntentQueryMonth:      true,
	IntentQueryMonthTotal: true,
	IntentQueryDay:        true,
	IntentCategorySummary: true,
	IntentDelete:          true,
	IntentUpdateCategory:  true,
	IntentUpdateAmount:    true,
	IntentClearAll:        true,
	IntentSetAlert:        true,
	IntentAddCategory:     true,
}

// Params is the extracted parameter bag. Zero values mean "absent": ids start
// at 1 and every amount/limit must be positive, so 0 is never a real value.
type Params struct {
	Item         string
	Amount       int64
	Date         string // normalized YYYY-MM-DD
	ExpenseID    int64
	NewCategory  string
	NewAmount    int64
	Category     string
	Limit        int64
	CategoryName string
}

// Command is a resolved utterance.
type Command struct {
	Intent Intent
	Params Params
}

const resolverSystemPrompt = "你是一個智能記帳機器人的指令解析器,只輸出 JSON,不輸出任何其他文字。"

const resolverInstruction = `請解析用戶輸入的記帳指令,回傳 JSON 格式:
{"intent": "<意圖>", "params": {<參數>}}

支援的意圖(intent 欄位只能是其中之一):
- "create_expense": 記一筆消費。params: "item"(品項), "amount"(金額,正整數)
- "query_month": 查詢本月所有消費記錄。params: 無
- "query_month_total": 查詢本月總花費。params: 無
- "query_day": 查詢某天總支出。params: "date"(日期,格式 YYYY-MM-DD,若用戶只講月日則省略年份,例如 "03-05")
- "query_category_summary": 查詢本月各分類花費。params: 無
- "delete": 刪除某筆記錄。params: "expense_id"(記錄編號,用戶沒講就省略)
- "update_category": 修改某筆記錄的分類。params: "expense_id"(可省略), "new_category"
- "update_amount": 修改某筆記錄的金額。params: "expense_id"(可省略), "new_amount"
- "clear_all": 清除所有記錄。params: 無
- "set_alert": 設定分類超支提醒。params: "category", "limit"(上限金額)
- "add_category": 新增自訂分類。params: "category_name"

範例:
- "拉麵 150" → {"intent": "create_expense", "params": {"item": "拉麵", "amount": 150}}
- "這個月花了多少" → {"intent": "query_month_total", "params": {}}
- "刪除剛剛那筆" → {"intent": "delete", "params": {}}
- "把記錄 12 改成交通" → {"intent": "update_category", "params": {"expense_id": 12, "new_category": "交通"}}

沒講到的參數請直接省略,不要填 null。若無法解析,回傳:
{"intent": "unknown", "params": {}}

現在請解析這句話:
%q`

// Resolver maps raw utterances to typed commands via an external
// language-understanding service.
type Resolver struct {
	llm    Completer
	logger *log.Logger
	now    func() time.Time
}

func NewResolver(llm Completer, logger *log.Logger) *Resolver {
	return &Resolver{
		llm:    llm,
		logger: logger.WithComponent(log.ComponentResolver),
		now:    time.Now,
	}
}

// Resolve translates one utterance. Failure modes are kept apart on purpose:
// a *ServiceError means the call itself failed, a *ParseError means the model
// answered nonsense, and Intent "unknown" means it answered "I don't know".
func (r *Resolver) Resolve(ctx context.Context, utterance string) (Command, error) {
	raw, err := r.llm.Complete(ctx, resolverSystemPrompt, fmt.Sprintf(resolverInstruction, utterance))
	if err != nil {
		return Command{}, &ServiceError{Err: err}
	}

	cmd, err := parseCommand(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "Unparseable resolver response",
			log.FieldError, err.Error(), "raw_len", len(raw))
		return Command{}, err
	}

	r.normalize(&cmd, utterance)

	r.logger.DebugContext(ctx, "Utterance resolved",
		log.FieldIntent, string(cmd.Intent))
	return cmd, nil
}

// parseCommand decodes the model output into a Command. Anything that does
// not conform becomes a *ParseError.
func parseCommand(raw string) (Command, error) {
	text := stripCodeFences(raw)

	var wire struct {
		Intent string         `json:"intent"`
		Params map[string]any `json:"params"`
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return Command{}, &ParseError{Raw: raw, Err: err}
	}
	if wire.Intent == "" {
		return Command{}, &ParseError{Raw: raw, Err: fmt.Errorf("missing intent field")}
	}

	intent := Intent(wire.Intent)
	if !knownIntents[intent] {
		// Covers both the instructed "unknown" and any vocabulary the model
		// invents: untrusted output never reaches the dispatch switch.
		return Command{Intent: IntentUnknown}, nil
	}

	p := Params{
		Item:         stringParam(wire.Params, "item"),
		Date:         stringParam(wire.Params, "date"),
		NewCategory:  stringParam(wire.Params, "new_category"),
		Category:     stringParam(wire.Params, "category"),
		CategoryName: stringParam(wire.Params, "category_name"),
		Amount:       intParam(wire.Params, "amount"),
		ExpenseID:    intParam(wire.Params, "expense_id"),
		NewAmount:    intParam(wire.Params, "new_amount"),
		Limit:        intParam(wire.Params, "limit"),
	}

	return Command{Intent: intent, Params: p}, nil
}

// normalize applies the deterministic post-processing the model cannot be
// trusted with: year completion for partial dates and embedded record-id
// extraction for implicit references.
func (r *Resolver) normalize(cmd *Command, utterance string) {
	if cmd.Params.Date != "" {
		cmd.Params.Date = normalizeDate(cmd.Params.Date, r.now())
	}

	switch cmd.Intent {
	case IntentDelete, IntentUpdateCategory, IntentUpdateAmount:
		if cmd.Params.ExpenseID == 0 {
			cmd.Params.ExpenseID = extractExpenseID(utterance)
		}
	}
}

var codeFenceRE = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// intParam tolerates numbers arriving as JSON numbers or strings.
func intParam(params map[string]any, key string) int64 {
	v, ok := params[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

var (
	fullDateRE    = regexp.MustCompile(`^(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})日?$`)
	partialDateRE = regexp.MustCompile(`^(\d{1,2})[-/月](\d{1,2})[日號]?$`)
)

// normalizeDate turns full or month/day-only dates into YYYY-MM-DD, assuming
// the current year for partial ones. Unusable input yields "" so the
// dispatcher can ask for a correction instead of querying garbage.
func normalizeDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)

	if m := fullDateRE.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := partialDateRE.FindStringSubmatch(s); m != nil {
		return formatDate(now.Year(), atoi(m[1]), atoi(m[2]))
	}
	return ""
}

func formatDate(year, month, day int) string {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var expenseIDREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:id|編號|紀錄|記錄|record)\s*[::#]?\s*(\d+)`),
	regexp.MustCompile(`第\s*(\d+)\s*筆`),
}

// extractExpenseID pulls an embedded record number out of phrases like
// "刪除記錄 12" or "record 12" when the model did not surface it.
func extractExpenseID(utterance string) int64 {
	for _, re := range expenseIDREs {
		if m := re.FindStringSubmatch(utterance); m != nil {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
