package kv

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, ExpensesKey("u1")); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want ok=false, nil", ok, err)
	}

	if err := s.Set(ctx, ExpensesKey("u1"), []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, ExpensesKey("u1"), []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}

	v, ok, err := s.Get(ctx, ExpensesKey("u1"))
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if string(v) != `[{"id":"1"}]` {
		t.Errorf("Get = %s, want the last written value", v)
	}

	if err := s.Delete(ctx, ExpensesKey("u1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, ExpensesKey("u1")); err != nil {
		t.Fatalf("Delete must be idempotent: %v", err)
	}
	if _, ok, err := s.Get(ctx, ExpensesKey("u1")); err != nil || ok {
		t.Fatalf("Get after Delete = ok %v, err %v", ok, err)
	}

	key := CredentialsKey("ann@example.com")
	written, err := s.SetIfAbsent(ctx, key, []byte("h1"))
	if err != nil || !written {
		t.Fatalf("SetIfAbsent(new) = %v, %v; want true, nil", written, err)
	}
	written, err = s.SetIfAbsent(ctx, key, []byte("h2"))
	if err != nil || written {
		t.Fatalf("SetIfAbsent(existing) = %v, %v; want false, nil", written, err)
	}
	if v, _, err := s.Get(ctx, key); err != nil || string(v) != "h1" {
		t.Errorf("Get = %q, %v; existing key must not be replaced", v, err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)

	ctx := context.Background()
	buf := []byte("abc")
	if err := m.Set(ctx, BudgetsKey("u1"), buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	if v, _, _ := m.Get(ctx, BudgetsKey("u1")); string(v) != "abc" {
		t.Errorf("stored value aliases the caller buffer: %q", v)
	}
	if got := m.Keys("budgets_"); !slices.Equal(got, []string{"budgets_u1"}) {
		t.Errorf("Keys = %v", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tally.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	exerciseStore(t, s)

	ctx := context.Background()
	if err := s.Set(ctx, SessionKey, []byte(`{"id":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening runs migrations again (no change) and sees the data
	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(ctx, SessionKey)
	if err != nil || !ok {
		t.Fatalf("Get after reopen = ok %v, err %v", ok, err)
	}
	if string(v) != `{"id":"x"}` {
		t.Errorf("Get after reopen = %s", v)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ExpensesKey("42"), "expenses_42"},
		{BudgetsKey("42"), "budgets_42"},
		{CredentialsKey(" Ann@Example.com "), "credentials_ann@example.com"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

type countingStore struct {
	Store
	gets    atomic.Int32
	failSet bool
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.failSet {
		return errors.New("disk full")
	}
	return c.Store.Set(ctx, key, value)
}

func TestCachedStore(t *testing.T) {
	exerciseStore(t, NewCached(NewMemory(), 16, time.Minute))

	ctx := context.Background()
	inner := &countingStore{Store: NewMemory()}
	c := NewCached(inner, 16, time.Minute)

	if err := inner.Store.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		v, ok, err := c.Get(ctx, "k")
		if err != nil || !ok || string(v) != "v1" {
			t.Fatalf("Get #%d = %q, %v, %v", i, v, ok, err)
		}
	}
	if n := inner.gets.Load(); n != 1 {
		t.Errorf("inner reads = %d, want 1; reads after the first are served from cache", n)
	}

	// misses are cached as well
	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}
	_, _, _ = c.Get(ctx, "missing")
	if n := inner.gets.Load(); n != 2 {
		t.Errorf("inner reads = %d, want 2", n)
	}

	if err := c.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := c.Get(ctx, "k"); string(v) != "v2" {
		t.Errorf("Get = %q, want v2", v)
	}
	if n := inner.gets.Load(); n != 2 {
		t.Errorf("inner reads = %d, want 2; write-through keeps the cache warm", n)
	}

	inner.failSet = true
	if err := c.Set(ctx, "k", []byte("v3")); err == nil {
		t.Fatal("expected Set to fail")
	}
	if v, _, _ := c.Get(ctx, "k"); string(v) != "v2" {
		t.Errorf("Get = %q; a failed write must not be visible", v)
	}
	if n := inner.gets.Load(); n != 3 {
		t.Errorf("inner reads = %d, want 3; a failed write evicts the cached entry", n)
	}
}

func TestCachedSetIfAbsentDropsStaleMiss(t *testing.T) {
	ctx := context.Background()
	c := NewCached(NewMemory(), 16, time.Minute)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss")
	}
	if written, err := c.SetIfAbsent(ctx, "k", []byte("v")); err != nil || !written {
		t.Fatalf("SetIfAbsent = %v, %v", written, err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Errorf("Get = %q, %v; cached miss must be dropped", v, ok)
	}
}
