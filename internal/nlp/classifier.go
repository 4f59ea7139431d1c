package nlp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ledgerbot/internal/core"
	"ledgerbot/internal/log"
)

// CategorySource provides the user's custom category labels for the prompt.
type CategorySource interface {
	ListCategories(ctx context.Context, userID string) ([]string, error)
}

// Classifier maps a free-text item description to a category label via the
// language service. It never fails the caller: any problem degrades to
// core.FallbackCategory.
type Classifier struct {
	llm        Completer
	categories CategorySource
	logger     *log.Logger
}

func NewClassifier(llm Completer, categories CategorySource, logger *log.Logger) *Classifier {
	return &Classifier{
		llm:        llm,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentClassifier),
	}
}

const classifierSystemPrompt = "你是一個消費分類助手,只會輸出分類名稱,不會說明。"

const classifierInstruction = `使用者記了一筆消費:「%s」

請幫這筆消費自動分類。如果它屬於以下類別,請選其中一個:
「%s」

如果不屬於這些,也可以依照品項的意思,自動創建一個簡短合理的新分類(例如「寵物」、「保險」、「繳稅」)。

請你只回傳分類名稱,不要加任何其他說明或語氣詞。`

// Classify returns a non-empty category label for the item. Custom categories
// the user added are offered alongside the base menu.
func (c *Classifier) Classify(ctx context.Context, userID, item string) string {
	menu := append([]string{}, core.BaseCategories...)
	if c.categories != nil {
		custom, err := c.categories.ListCategories(ctx, userID)
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to load custom categories",
				log.FieldUserID, userID, log.FieldError, err.Error())
		} else {
			menu = append(menu, custom...)
		}
	}

	raw, err := c.llm.Complete(ctx, classifierSystemPrompt,
		fmt.Sprintf(classifierInstruction, item, strings.Join(menu, "、")))
	if err != nil {
		c.logger.WarnContext(ctx, "Classification failed, using fallback",
			log.FieldUserID, userID, log.FieldItem, item, log.FieldError, err.Error())
		return core.FallbackCategory
	}

	label := sanitizeLabel(raw)
	if label == "" {
		c.logger.WarnContext(ctx, "Classifier returned unusable label, using fallback",
			log.FieldUserID, userID, log.FieldItem, item, "raw_len", len(raw))
		return core.FallbackCategory
	}
	return label
}

// sanitizeLabel reduces the model output to one plausible label: first line,
// surrounding quotes and punctuation stripped, bounded length.
func sanitizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if i := strings.IndexAny(label, "\r\n"); i >= 0 {
		label = label[:i]
	}
	label = strings.Trim(label, "「」『』\"'`.。,, :")
	if label == "" || utf8.RuneCountInString(label) > 20 {
		return ""
	}
	return label
}
