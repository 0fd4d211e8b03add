package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/stats"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// ExpenseService serves many users from one key-value store. Each call opens
// the user's ledger under a per-user lock, so a load-mutate-persist cycle is
// never interleaved with another request for the same user.
type ExpenseService struct {
	kv         kv.Store
	publisher  EventPublisher
	logger     *log.Logger
	now        func() time.Time
	ledgerOpts []ledger.Option

	locks sync.Map // user id -> *sync.Mutex
}

type Option func(*ExpenseService)

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

// WithLedgerOptions passes extra options to every ledger.Open.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(s *ExpenseService) { s.ledgerOpts = append(s.ledgerOpts, opts...) }
}

// NewExpenseService wires the service. A nil publisher disables events.
func NewExpenseService(store kv.Store, publisher EventPublisher, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		kv:        store,
		publisher: publisher,
		logger:    log.Wrap(nil, log.ComponentLedger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export is a rendered download.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

func (s *ExpenseService) lockFor(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *ExpenseService) withLedger(ctx context.Context, userID string, fn func(*ledger.Store) error) error {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	opts := append([]ledger.Option{
		ledger.WithClock(s.now),
		ledger.WithLogger(s.logger),
	}, s.ledgerOpts...)
	store, err := ledger.Open(ctx, s.kv, userID, opts...)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (s *ExpenseService) List(ctx context.Context, userID string) ([]core.Expense, error) {
	var out []core.Expense
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		out = l.Expenses()
		return nil
	})
	return out, err
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	var out core.Expense
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		e, ok := l.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		out = e
		return nil
	})
	return out, err
}

// Add saves the expense locally and publishes a create event.
func (s *ExpenseService) Add(ctx context.Context, userID string, in ledger.NewExpense) (core.Expense, error) {
	var out core.Expense
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		e, err := l.Add(ctx, in)
		out = e
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}
	s.logChange(ctx, log.OpCreate, out)
	s.publish(ctx, amqp.NewExpenseEvent(userID, out.ID, amqp.OpCreate))
	return out, nil
}

func (s *ExpenseService) Update(ctx context.Context, userID, id string, p ledger.Patch) (core.Expense, error) {
	var out core.Expense
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		e, err := l.Update(ctx, id, p)
		out = e
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}
	s.logChange(ctx, log.OpUpdate, out)
	s.publish(ctx, amqp.NewExpenseEvent(userID, out.ID, amqp.OpUpdate))
	return out, nil
}

// Delete removes the expense. Nothing is published when id was unknown.
func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	existed := false
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		_, existed = l.Get(id)
		return l.Delete(ctx, id)
	})
	if err != nil || !existed {
		return err
	}
	s.logger.InfoContext(ctx, "expense deleted",
		log.FieldOperation, log.OpDelete, log.FieldUserID, userID, log.FieldExpenseID, id)
	s.publish(ctx, amqp.NewExpenseEvent(userID, id, amqp.OpDelete))
	return nil
}

func (s *ExpenseService) Budgets(ctx context.Context, userID string) (core.Budgets, error) {
	var out core.Budgets
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		out = l.Budgets()
		return nil
	})
	return out, err
}

func (s *ExpenseService) SetBudgets(ctx context.Context, userID string, b core.Budgets) error {
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		return l.SetBudgets(ctx, b)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "budgets replaced",
		log.FieldOperation, log.OpBudgets, log.FieldUserID, userID, log.FieldCount, len(b))
	s.publish(ctx, amqp.NewExpenseEvent(userID, "", amqp.OpBudgets))
	return nil
}

// Export renders the user's records in format ("csv", "json" or "yaml").
func (s *ExpenseService) Export(ctx context.Context, userID, format string) (Export, error) {
	enc, err := ledger.EncoderFor(format)
	if err != nil {
		return Export{}, err
	}
	var rows []ledger.Row
	if err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		rows = l.Rows()
		return nil
	}); err != nil {
		return Export{}, err
	}

	body, err := enc.EncodeRows(rows)
	if err != nil {
		return Export{}, fmt.Errorf("encode export: %w", err)
	}
	return Export{
		Filename:    ledger.ExportFilename(s.now(), enc.Extension()),
		ContentType: enc.ContentType(),
		Body:        body,
	}, nil
}

// Summary computes the dashboard as of now over the given number of months.
func (s *ExpenseService) Summary(ctx context.Context, userID string, months int) (core.Summary, error) {
	var out core.Summary
	err := s.withLedger(ctx, userID, func(l *ledger.Store) error {
		out = stats.Summarize(l.Expenses(), l.Budgets(), l.Categories(), s.now(), months)
		return nil
	})
	return out, err
}

func (s *ExpenseService) Categories() []string {
	return core.DefaultCategories()
}

// Ping checks the backing store.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *ExpenseService) publish(ctx context.Context, ev *amqp.ExpenseEvent) {
	if s.publisher == nil {
		return
	}
	// the local write already succeeded; a lost event only delays the mirror
	if err := s.publisher.PublishExpenseEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldUserID, ev.UserID,
			log.FieldExpenseID, ev.ExpenseID,
			log.FieldOperation, string(ev.Op),
			log.FieldError, err)
	}
}

func (s *ExpenseService) logChange(ctx context.Context, op string, e core.Expense) {
	log.NewStructuredLogger(s.logger).LogExpenseChange(ctx, op, e.UserID, e.ID,
		log.NewFields().WithExpense(e.ID, e.Amount, e.Category))
}

// Close closes the publisher (when it can be closed) and the store.
func (s *ExpenseService) Close() error {
	var errs []error

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if s.kv != nil {
		if err := s.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
