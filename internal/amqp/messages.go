package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op names the change an ExpenseEvent reports.
type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpBudgets Op = "budgets"
)

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpBudgets:
		return true
	}
	return false
}

// ExpenseEvent tells consumers that a user's records changed. It carries no
// record data; consumers reload the user's ledger.
type ExpenseEvent struct {
	UserID    string    `json:"userId"`
	ExpenseID string    `json:"expenseId,omitempty"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(userID, expenseID string, op Op) *ExpenseEvent {
	return &ExpenseEvent{
		UserID:    userID,
		ExpenseID: expenseID,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and checks a message body.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("event without userId")
	}
	if !msg.Op.Valid() {
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	return &msg, nil
}
