package memory

import (
	"context"
	"slices"
	"sync"

	"tally/internal/sheets"
)

// Mirror keeps mirrored rows in process. It stands in for a spreadsheet when
// none is configured.
type Mirror struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	writes int
}

var _ sheets.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{tabs: map[string][][]string{}}
}

func (m *Mirror) ReplaceRows(_ context.Context, userID string, header []string, rows [][]string) error {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, slices.Clone(header))
	for _, r := range rows {
		out = append(out, slices.Clone(r))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[userID] = out
	m.writes++
	return nil
}

// Rows returns the header and rows last written for userID.
func (m *Mirror) Rows(userID string) ([][]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[userID]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out, true
}

// Writes counts ReplaceRows calls.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
