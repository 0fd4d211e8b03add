// Package kv is the byte-valued key-value persistence behind the record and
// session stores. Keys follow the layout the browser build kept in local
// storage, so data exported from there can be loaded unchanged.
package kv

import (
	"context"
	"strings"
)

// SessionKey holds the JSON-encoded current session.
const SessionKey = "expense_user"

// Store is implemented by every backend. Get reports ok=false for a missing key
// and an error only when the backend itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// SetIfAbsent writes value only when key is missing and reports whether
	// it did. The check and the write are one atomic step.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

func ExpensesKey(userID string) string { return "expenses_" + userID }

func BudgetsKey(userID string) string { return "budgets_" + userID }

// CredentialsKey is keyed by normalised email, not user id.
func CredentialsKey(email string) string {
	return "credentials_" + strings.ToLower(strings.TrimSpace(email))
}
