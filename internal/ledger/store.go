// Package ledger holds one user's expense records and budget mapping and keeps
// them in sync with the key-value store. Every mutation is written through
// before it returns; on a failed write the in-memory state is left as it was.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// NewExpense is the input for Add. A zero Date means today.
type NewExpense struct {
	Description string
	Amount      decimal.Decimal
	Category    string
	Date        core.Date
}

// Patch lists the fields Update should change; nil fields are kept.
type Patch struct {
	Description *string
	Amount      *decimal.Decimal
	Category    *string
	Date        *core.Date
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Description == nil && p.Amount == nil && p.Category == nil && p.Date == nil
}

type Store struct {
	mu sync.RWMutex

	kv     kv.Store
	userID string
	closed bool

	expenses []core.Expense
	budgets  core.Budgets

	categories []string
	now        func() time.Time
	newID      func() string
	logger     *log.Logger
}

type Option func(*Store)

// WithClock sets the clock used for default expense dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCategories replaces the default category set used for validation.
func WithCategories(categories []string) Option {
	return func(s *Store) { s.categories = slices.Clone(categories) }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDFunc overrides expense id generation. Tests use it for stable ids.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// Open loads userID's records and budgets. Missing keys yield empty state and
// unreadable data is logged and dropped; only a failing store is an error.
func Open(ctx context.Context, store kv.Store, userID string, opts ...Option) (*Store, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &core.ValidationError{Field: "userId", Reason: "must not be empty"}
	}

	s := &Store{
		kv:         store,
		userID:     userID,
		categories: core.DefaultCategories(),
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     log.Wrap(nil, log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.FieldUserID, userID)

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, kv.ExpensesKey(s.userID))
	if err != nil {
		return fmt.Errorf("%w: read expenses: %w", core.ErrPersistence, err)
	}
	s.expenses = []core.Expense{}
	if ok {
		s.expenses = s.decodeExpenses(raw)
	}

	raw, ok, err = s.kv.Get(ctx, kv.BudgetsKey(s.userID))
	if err != nil {
		return fmt.Errorf("%w: read budgets: %w", core.ErrPersistence, err)
	}
	s.budgets = core.Budgets{}
	if ok {
		s.budgets = s.decodeBudgets(raw)
	}

	s.logger.Debug("ledger loaded", log.FieldOperation, log.OpLoad, log.FieldCount, len(s.expenses))
	return nil
}

// decodeExpenses decodes records one at a time so a single bad entry does not
// cost the user the whole list.
func (s *Store) decodeExpenses(raw []byte) []core.Expense {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("stored expenses unreadable, starting empty",
			log.FieldKey, kv.ExpensesKey(s.userID), log.FieldError, err)
		return []core.Expense{}
	}

	out := make([]core.Expense, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		var e core.Expense
		if err := json.Unmarshal(item, &e); err != nil {
			s.logger.Warn("skipping unreadable expense", "index", i, log.FieldError, err)
			continue
		}
		if e.UserID == "" {
			e.UserID = s.userID
		}
		if err := e.CheckStored(); err != nil {
			s.logger.Warn("skipping invalid expense", "index", i, log.FieldExpenseID, e.ID, log.FieldError, err)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			s.logger.Warn("skipping duplicate expense id", log.FieldExpenseID, e.ID)
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (s *Store) decodeBudgets(raw []byte) core.Budgets {
	b, bad, err := core.DecodeBudgets(raw)
	if err != nil {
		s.logger.Warn("stored budgets unreadable, starting empty",
			log.FieldKey, kv.BudgetsKey(s.userID), log.FieldError, err)
		return core.Budgets{}
	}
	for name, berr := range bad {
		s.logger.Warn("skipping unreadable budget", log.FieldCategory, name, log.FieldError, berr)
	}
	for name, amount := range b {
		if amount.IsNegative() {
			s.logger.Warn("dropping negative budget", log.FieldCategory, name)
			delete(b, name)
		}
	}
	return b
}

// Expenses returns a copy of the records in insertion order.
func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.expenses)
}

// Budgets returns a copy of the category ceilings.
func (s *Store) Budgets() core.Budgets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets.Clone()
}

func (s *Store) Categories() []string {
	return slices.Clone(s.categories)
}

func (s *Store) Get(id string) (core.Expense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, false
	}
	return s.expenses[i], true
}

// Add validates in, assigns a fresh id and persists the new record.
func (s *Store) Add(ctx context.Context, in NewExpense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Expense{}, core.ErrClosed
	}

	date := in.Date
	if date.IsZero() {
		date = core.DateOf(s.now())
	}
	e := core.Expense{
		ID:          s.uniqueID(),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Category:    in.Category,
		Date:        date,
		UserID:      s.userID,
	}
	if err := e.Validate(s.categories); err != nil {
		return core.Expense{}, err
	}

	next := append(slices.Clone(s.expenses), e)
	if err := s.persistExpenses(ctx, next); err != nil {
		return core.Expense{}, err
	}
	s.expenses = next
	return e, nil
}

// Update merges p into the record with the given id.
func (s *Store) Update(ctx context.Context, id string, p Patch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Expense{}, core.ErrClosed
	}

	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	e := s.expenses[i]
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if err := e.Validate(s.categories); err != nil {
		return core.Expense{}, err
	}

	next := slices.Clone(s.expenses)
	next[i] = e
	if err := s.persistExpenses(ctx, next); err != nil {
		return core.Expense{}, err
	}
	s.expenses = next
	return e, nil
}

// Delete removes the record with the given id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(s.expenses), i, i+1)
	if err := s.persistExpenses(ctx, next); err != nil {
		return err
	}
	s.expenses = next
	return nil
}

// SetBudgets replaces the whole mapping.
func (s *Store) SetBudgets(ctx context.Context, b core.Budgets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if err := b.Validate(s.categories); err != nil {
		return err
	}

	next := b.Clone()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode budgets: %w", err)
	}
	if err := s.write(ctx, kv.BudgetsKey(s.userID), data); err != nil {
		return err
	}
	s.budgets = next
	return nil
}

// Close drops the in-memory state. Mutations after Close return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.expenses = nil
	s.budgets = nil
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
}

func (s *Store) uniqueID() string {
	for {
		id := s.newID()
		if id != "" && s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *Store) persistExpenses(ctx context.Context, list []core.Expense) error {
	if list == nil {
		list = []core.Expense{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}
	return s.write(ctx, kv.ExpensesKey(s.userID), data)
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	if err := s.kv.Set(ctx, key, data); err != nil {
		s.logger.ErrorContext(ctx, "write failed", log.FieldOperation, log.OpPersist, log.FieldKey, key, log.FieldError, err)
		return fmt.Errorf("%w: write %s: %w", core.ErrPersistence, key, err)
	}
	return nil
}
