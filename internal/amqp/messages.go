package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseExportMessage asks the worker to export one expense to the external
// sheet. It carries only identifiers; the worker reads the full record from
// the ledger so it always exports the latest state.
type ExpenseExportMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseExportMessage(id int64, userID string) *ExpenseExportMessage {
	return &ExpenseExportMessage{
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseExportMessageFromJSON(data []byte) (*ExpenseExportMessage, error) {
	var msg ExpenseExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
