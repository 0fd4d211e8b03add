package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/ledger"
	"tally/internal/log"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
	err    error
	closed bool
}

func (f *fakePublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func (f *fakePublisher) ops() []amqp.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]amqp.Op, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Op)
	}
	return out
}

var now = time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, pub EventPublisher) (*ExpenseService, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	svc := NewExpenseService(mem, pub,
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return now }),
	)
	return svc, mem
}

func coffee() ledger.NewExpense {
	return ledger.NewExpense{
		Description: "Coffee",
		Amount:      decimal.RequireFromString("4.50"),
		Category:    "Food & Dining",
		Date:        core.NewDate(2024, 1, 15),
	}
}

func TestServiceLifecyclePublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	e, err := svc.Add(ctx, "u1", coffee())
	require.NoError(t, err)

	desc := "Espresso"
	_, err = svc.Update(ctx, "u1", e.ID, ledger.Patch{Description: &desc})
	require.NoError(t, err)

	require.NoError(t, svc.SetBudgets(ctx, "u1", core.Budgets{"Food & Dining": decimal.NewFromInt(4)}))
	require.NoError(t, svc.Delete(ctx, "u1", e.ID))
	require.NoError(t, svc.Delete(ctx, "u1", e.ID), "second delete is a no-op")

	assert.Equal(t, []amqp.Op{amqp.OpCreate, amqp.OpUpdate, amqp.OpBudgets, amqp.OpDelete}, pub.ops())
	assert.Equal(t, "u1", pub.events[0].UserID)
	assert.Equal(t, e.ID, pub.events[0].ExpenseID)
}

func TestServiceFailedMutationDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	bad := coffee()
	bad.Category = "Pets"
	_, err := svc.Add(ctx, "u1", bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	desc := "x"
	_, err = svc.Update(ctx, "u1", "missing", ledger.Patch{Description: &desc})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Empty(t, pub.ops())
}

func TestServicePublishErrorIsNotReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, _ := newService(t, pub)

	_, err := svc.Add(context.Background(), "u1", coffee())
	require.NoError(t, err)
	list, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServiceNilPublisher(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Add(context.Background(), "u1", coffee())
	assert.NoError(t, err)
}

func TestServiceUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil)

	_, err := svc.Add(ctx, "u1", coffee())
	require.NoError(t, err)

	list, err := svc.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{"expenses_u1"}, mem.Keys("expenses_"))
}

func TestServiceGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	e, err := svc.Add(ctx, "u1", coffee())
	require.NoError(t, err)

	got, err := svc.Get(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Description)

	_, err = svc.Get(ctx, "u1", "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestServiceExport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	_, err := svc.Add(ctx, "u1", coffee())
	require.NoError(t, err)

	exp, err := svc.Export(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "expenses_2024-01-20.csv", exp.Filename)
	assert.Equal(t, `"Date","Description","Amount","Category"`+"\n"+`"1/15/2024","Coffee","4.5","Food & Dining"`, string(exp.Body))

	exp, err = svc.Export(ctx, "u1", "yaml")
	require.NoError(t, err)
	assert.Equal(t, "expenses_2024-01-20.yaml", exp.Filename)
	assert.Contains(t, string(exp.Body), "description: Coffee")

	_, err = svc.Export(ctx, "u1", "pdf")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestServiceSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	_, err := svc.Add(ctx, "u1", coffee())
	require.NoError(t, err)
	require.NoError(t, svc.SetBudgets(ctx, "u1", core.Budgets{"Food & Dining": decimal.NewFromInt(4)}))

	sum, err := svc.Summary(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Len(t, sum.Trend, 3)
	assert.True(t, decimal.RequireFromString("4.5").Equal(sum.ThisMonth))
	require.Len(t, sum.Budgets, 1)
	assert.True(t, sum.Budgets[0].Over)
}

func TestServiceConcurrentAddsForOneUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := coffee()
			in.Description = fmt.Sprintf("coffee %d", i)
			_, err := svc.Add(ctx, "u1", in)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 20, "no add may be lost to a concurrent write")
	for _, e := range list {
		assert.True(t, strings.HasPrefix(e.Description, "coffee "))
	}
}

func TestServiceClose(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}
