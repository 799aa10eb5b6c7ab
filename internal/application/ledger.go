// Package application contains the use-case services: the login state
// machine, the daily points ledger, the account circuit breaker, the
// per-account run orchestrator and the worker fan-out dispatcher.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// dayFormat is the calendar-day key for ledger records. The account-local
// wall clock is used on purpose: comparing raw timestamps (or UTC days)
// around midnight re-captures the baseline and double-counts gains.
const dayFormat = "2006-01-02"

// Ledger records the first point balance observed per account per calendar
// day, making gain accounting idempotent across repeated runs and crash
// recovery. It is the sole writer of the ledger namespace.
type Ledger struct {
	store  driven.StateStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a Ledger persisting through store.
func NewLedger(store driven.StateStore, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// LoadToday returns the stored record for the account's current calendar day,
// or nil when none exists (no record at all, or a record from an earlier day).
func (l *Ledger) LoadToday(ctx context.Context, email string) (*model.DailyPointsRecord, error) {
	var rec model.DailyPointsRecord
	ok, err := l.store.ReadJSON(ctx, driven.NamespaceLedger, email, &rec)
	if err != nil {
		return nil, fmt.Errorf("load daily points for %s: %w", email, err)
	}
	if !ok || rec.Date != l.today() {
		return nil, nil
	}
	return &rec, nil
}

// EnsureBaseline returns the authoritative baseline for today. The first call
// of the day persists currentBalance and wins; every later call that day
// returns the stored value unchanged, whatever balance it is handed.
func (l *Ledger) EnsureBaseline(ctx context.Context, email string, currentBalance int) (int, error) {
	rec, err := l.LoadToday(ctx, email)
	if err != nil {
		return 0, err
	}
	if rec != nil {
		return rec.InitialPoints, nil
	}

	rec = &model.DailyPointsRecord{Date: l.today(), InitialPoints: currentBalance}
	if err := l.store.WriteJSON(ctx, driven.NamespaceLedger, email, rec); err != nil {
		return 0, fmt.Errorf("persist daily baseline for %s: %w", email, err)
	}
	l.logger.Info("daily baseline captured",
		"account", email,
		"date", rec.Date,
		"initial_points", rec.InitialPoints,
	)
	return currentBalance, nil
}

func (l *Ledger) today() string {
	return l.now().Format(dayFormat)
}
