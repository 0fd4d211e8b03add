package worker

import (
	"context"
	"fmt"

	"tally/internal/amqp"
	"tally/internal/kv"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/sheets"
)

// MirrorWorker rewrites a user's mirrored rows whenever their records change.
type MirrorWorker struct {
	kv     kv.Store
	mirror sheets.Mirror
	logger *log.Logger
}

func NewMirrorWorker(store kv.Store, mirror sheets.Mirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Wrap(nil, log.ComponentWorker)
	}
	return &MirrorWorker{kv: store, mirror: mirror, logger: logger}
}

// HandleEvent reloads the user's records and replaces their mirror. Budget
// changes do not touch the exported rows and are acknowledged as is.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	if ev.Op == amqp.OpBudgets {
		w.logger.DebugContext(ctx, "Skipping budgets event", log.FieldUserID, ev.UserID)
		return nil
	}

	store, err := ledger.Open(ctx, w.kv, ev.UserID, ledger.WithLogger(w.logger))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	rows := store.Rows()
	values := make([][]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values())
	}

	if err := w.mirror.ReplaceRows(ctx, ev.UserID, ledger.Header, values); err != nil {
		return fmt.Errorf("mirror rows: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored user records",
		log.FieldOperation, log.OpMirror,
		log.FieldUserID, ev.UserID,
		log.FieldExpenseID, ev.ExpenseID,
		log.FieldCount, len(values))
	return nil
}
