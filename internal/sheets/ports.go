package sheets

import "context"

// Mirror keeps an external copy of each user's export rows.
type Mirror interface {
	// ReplaceRows overwrites the user's copy with header followed by rows.
	ReplaceRows(ctx context.Context, userID string, header []string, rows [][]string) error
}
