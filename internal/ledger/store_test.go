package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

var fixedNow = time.Date(2024, time.March, 10, 14, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("e%d", n)
	}
}

func openStore(t *testing.T, store kv.Store, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDFunc(sequentialIDs()),
		WithLogger(log.Discard()),
	}
	s, err := Open(context.Background(), store, "u1", append(base, opts...)...)
	require.NoError(t, err)
	return s
}

type flakyStore struct {
	kv.Store
	failSet bool
	failGet bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("connection reset")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func TestOpenEmpty(t *testing.T) {
	s := openStore(t, kv.NewMemory())
	assert.Empty(t, s.Expenses())
	assert.Empty(t, s.Budgets())
	assert.Equal(t, core.DefaultCategories(), s.Categories())
}

func TestOpenRequiresUser(t *testing.T) {
	_, err := Open(context.Background(), kv.NewMemory(), "  ")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestOpenFailingStore(t *testing.T) {
	_, err := Open(context.Background(), &flakyStore{Store: kv.NewMemory(), failGet: true}, "u1")
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestAddAssignsIDAndDefaultDate(t *testing.T) {
	s := openStore(t, kv.NewMemory())
	e, err := s.Add(context.Background(), NewExpense{
		Description: "  Lunch ",
		Amount:      decimal.RequireFromString("12.30"),
		Category:    "Food & Dining",
	})
	require.NoError(t, err)

	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "Lunch", e.Description)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "2024-03-10", e.Date.String())
	assert.Len(t, s.Expenses(), 1)
}

func TestAddRejectsInvalid(t *testing.T) {
	s := openStore(t, kv.NewMemory())
	cases := map[string]NewExpense{
		"negative amount":  {Description: "x", Amount: decimal.NewFromInt(-1), Category: "Other"},
		"unknown category": {Description: "x", Amount: decimal.NewFromInt(1), Category: "Pets"},
		"no description":   {Description: "   ", Amount: decimal.NewFromInt(1), Category: "Other"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Add(context.Background(), in)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
	assert.Empty(t, s.Expenses())
}

func TestAddSkipsCollidingIDs(t *testing.T) {
	ids := []string{"a", "a", "b"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s := openStore(t, kv.NewMemory(), WithIDFunc(next))
	ctx := context.Background()

	first, err := s.Add(ctx, NewExpense{Description: "one", Amount: decimal.NewFromInt(1), Category: "Other"})
	require.NoError(t, err)
	second, err := s.Add(ctx, NewExpense{Description: "two", Amount: decimal.NewFromInt(2), Category: "Other"})
	require.NoError(t, err)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestMutationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := openStore(t, mem)

	reload := func() *Store {
		return openStore(t, mem)
	}

	a, err := s.Add(ctx, NewExpense{Description: "Coffee", Amount: decimal.RequireFromString("4.5"), Category: "Food & Dining", Date: core.NewDate(2024, 1, 15)})
	require.NoError(t, err)
	b, err := s.Add(ctx, NewExpense{Description: "Bus", Amount: decimal.NewFromInt(2), Category: "Transportation", Date: core.NewDate(2024, 1, 16)})
	require.NoError(t, err)
	assert.Equal(t, s.Expenses(), reload().Expenses())

	desc := "Flat white"
	_, err = s.Update(ctx, a.ID, Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, s.Expenses(), reload().Expenses())

	require.NoError(t, s.Delete(ctx, b.ID))
	assert.Equal(t, s.Expenses(), reload().Expenses())
	require.Len(t, s.Expenses(), 1)
	assert.Equal(t, "Flat white", s.Expenses()[0].Description)

	require.NoError(t, s.SetBudgets(ctx, core.Budgets{"Shopping": decimal.NewFromInt(100)}))
	assert.Equal(t, s.Budgets(), reload().Budgets())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, kv.NewMemory())
	e, err := s.Add(ctx, NewExpense{Description: "Book", Amount: decimal.NewFromInt(20), Category: "Shopping"})
	require.NoError(t, err)

	t.Run("merges given fields", func(t *testing.T) {
		amount := decimal.NewFromInt(25)
		date := core.NewDate(2024, 2, 1)
		got, err := s.Update(ctx, e.ID, Patch{Amount: &amount, Date: &date})
		require.NoError(t, err)
		assert.Equal(t, "Book", got.Description)
		assert.True(t, amount.Equal(got.Amount))
		assert.Equal(t, "2024-02-01", got.Date.String())
	})

	t.Run("unknown id", func(t *testing.T) {
		desc := "x"
		_, err := s.Update(ctx, "nope", Patch{Description: &desc})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("invalid merge leaves record alone", func(t *testing.T) {
		cat := "Pets"
		_, err := s.Update(ctx, e.ID, Patch{Category: &cat})
		assert.ErrorIs(t, err, core.ErrValidation)
		got, ok := s.Get(e.ID)
		require.True(t, ok)
		assert.Equal(t, "Shopping", got.Category)
	})
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, kv.NewMemory())
	_, err := s.Add(ctx, NewExpense{Description: "x", Amount: decimal.NewFromInt(1), Category: "Other"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "missing"))
	assert.Len(t, s.Expenses(), 1)
}

func TestAddDeleteCounts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, kv.NewMemory())
	ids := map[string]bool{}
	for i := 0; i < 5; i++ {
		e, err := s.Add(ctx, NewExpense{Description: "x", Amount: decimal.NewFromInt(int64(i)), Category: "Other"})
		require.NoError(t, err)
		ids[e.ID] = true
		assert.Len(t, s.Expenses(), i+1)
	}
	assert.Len(t, ids, 5, "ids must be distinct")

	list := s.Expenses()
	require.NoError(t, s.Delete(ctx, list[2].ID))
	assert.Len(t, s.Expenses(), 4)
	_, ok := s.Get(list[2].ID)
	assert.False(t, ok)
}

func TestFailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemory()}
	s := openStore(t, store)
	e, err := s.Add(ctx, NewExpense{Description: "x", Amount: decimal.NewFromInt(1), Category: "Other"})
	require.NoError(t, err)

	store.failSet = true

	_, err = s.Add(ctx, NewExpense{Description: "y", Amount: decimal.NewFromInt(2), Category: "Other"})
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, s.Delete(ctx, e.ID), core.ErrPersistence)
	assert.ErrorIs(t, s.SetBudgets(ctx, core.Budgets{"Other": decimal.NewFromInt(5)}), core.ErrPersistence)

	assert.Len(t, s.Expenses(), 1)
	assert.Empty(t, s.Budgets())
}

func TestCorruptDataLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, kv.ExpensesKey("u1"), []byte(`{not json`)))
	require.NoError(t, mem.Set(ctx, kv.BudgetsKey("u1"), []byte(`[1,2]`)))

	s := openStore(t, mem)
	assert.Empty(t, s.Expenses())
	assert.Empty(t, s.Budgets())
}

func TestLegacyDataIsNormalised(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	stored := `[
		{"id":"1","description":"Coffee","amount":4.5,"category":"Food & Dining","date":"2024-01-15T08:30:00.000Z","userId":"u1"},
		{"id":"2","description":"Bad","amount":"-3","category":"Other","date":"2024-01-15"},
		{"id":"3","description":"No user","amount":"7","category":"Other","date":"2024-01-16"},
		{"id":"3","description":"Dup","amount":"1","category":"Other","date":"2024-01-16"},
		"garbage"
	]`
	require.NoError(t, mem.Set(ctx, kv.ExpensesKey("u1"), []byte(stored)))
	require.NoError(t, mem.Set(ctx, kv.BudgetsKey("u1"), []byte(`{"Food & Dining":"4","Shopping":"","Other":null,"Healthcare":12.5}`)))

	s := openStore(t, mem)
	list := s.Expenses()
	require.Len(t, list, 2)
	assert.Equal(t, "2024-01-15", list[0].Date.String())
	assert.Equal(t, "u1", list[1].UserID)

	b := s.Budgets()
	assert.Len(t, b, 2)
	assert.True(t, decimal.NewFromInt(4).Equal(b["Food & Dining"]))
}

func TestStoredRecordsSurviveNextWrite(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	long := strings.Repeat("é", 120)
	seed, err := json.Marshal([]map[string]any{
		{"id": "legacy-1", "description": long, "amount": "12.00", "category": "Food & Dining", "date": "2024-01-15", "userId": "u1"},
		{"id": "legacy-2", "description": "Old category", "amount": "3", "category": "Groceries", "date": "2024-01-16", "userId": "u1"},
	})
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, kv.ExpensesKey("u1"), seed))

	s := openStore(t, mem)
	require.Len(t, s.Expenses(), 2)

	_, err = s.Add(ctx, NewExpense{Description: "Coffee", Amount: decimal.RequireFromString("4.5"), Category: "Food & Dining"})
	require.NoError(t, err)

	raw, ok, err := mem.Get(ctx, kv.ExpensesKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	var persisted []core.Expense
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Len(t, persisted, 3)
	assert.Equal(t, "legacy-1", persisted[0].ID)
	assert.Equal(t, long, persisted[0].Description)
	assert.Equal(t, "Groceries", persisted[1].Category)

	reopened := openStore(t, mem)
	assert.Equal(t, persisted, reopened.Expenses())

	// a description of the same length is accepted on write too
	_, err = s.Add(ctx, NewExpense{Description: long, Amount: decimal.NewFromInt(1), Category: "Other"})
	assert.NoError(t, err)
}

func TestBadBudgetEntryKeepsTheRest(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, kv.BudgetsKey("u1"), []byte(`{"Shopping":"lots","Healthcare":"50","Other":-5}`)))

	s := openStore(t, mem)
	b := s.Budgets()
	require.Len(t, b, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(b["Healthcare"]))
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, kv.NewMemory())
	require.NoError(t, s.Close())

	_, err := s.Add(ctx, NewExpense{Description: "x", Amount: decimal.NewFromInt(1), Category: "Other"})
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, "x"), core.ErrClosed)
	assert.Empty(t, s.Expenses())
}
