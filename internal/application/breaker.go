package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

const (
	// DefaultFreezeThreshold is the consecutive-failure count that trips the
	// breaker for an account.
	DefaultFreezeThreshold = 3
	// DefaultFreezeCooldown is how long a tripped account stays frozen.
	DefaultFreezeCooldown = 24 * time.Hour
)

// CircuitBreaker tracks consecutive run failures per account and freezes an
// account for a cooldown once the threshold is reached. Status is persisted
// after every mutation; unfreezing is lazy, performed the moment IsFrozen
// observes an expired deadline. The breaker is the sole writer of the status
// namespace.
type CircuitBreaker struct {
	store     driven.StateStore
	logger    *slog.Logger
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewCircuitBreaker creates a breaker with the default threshold and cooldown.
func NewCircuitBreaker(store driven.StateStore, logger *slog.Logger) *CircuitBreaker {
	return NewCircuitBreakerWithPolicy(store, logger, DefaultFreezeThreshold, DefaultFreezeCooldown)
}

// NewCircuitBreakerWithPolicy creates a breaker with an explicit threshold
// and cooldown.
func NewCircuitBreakerWithPolicy(store driven.StateStore, logger *slog.Logger, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		store:     store,
		logger:    logger,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// IsFrozen reports whether the account is currently frozen. Observing an
// expired freeze deletes the record, so the next failure restarts the counter
// at one.
func (b *CircuitBreaker) IsFrozen(ctx context.Context, email string) (bool, error) {
	var st model.AccountStatus
	ok, err := b.store.ReadJSON(ctx, driven.NamespaceStatus, email, &st)
	if err != nil {
		return false, fmt.Errorf("load status for %s: %w", email, err)
	}
	if !ok || st.FrozenUntil == nil {
		return false, nil
	}
	if b.now().After(*st.FrozenUntil) {
		if err := b.store.Delete(ctx, driven.NamespaceStatus, email); err != nil {
			return false, fmt.Errorf("clear expired freeze for %s: %w", email, err)
		}
		b.logger.Info("freeze expired, account unfrozen", "account", email)
		return false, nil
	}
	b.logger.Warn("account frozen, skipping",
		"account", email,
		"frozen_until", st.FrozenUntil.Format(time.RFC3339),
	)
	return true, nil
}

// RecordSuccess clears any stored status for the account.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, email string) error {
	var st model.AccountStatus
	ok, err := b.store.ReadJSON(ctx, driven.NamespaceStatus, email, &st)
	if err != nil {
		return fmt.Errorf("load status for %s: %w", email, err)
	}
	if !ok {
		return nil
	}
	if err := b.store.Delete(ctx, driven.NamespaceStatus, email); err != nil {
		return fmt.Errorf("clear status for %s: %w", email, err)
	}
	b.logger.Info("run succeeded, failure counter reset", "account", email)
	return nil
}

// RecordFailure increments the consecutive-failure counter and freezes the
// account once the threshold is reached.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, email string) error {
	var st model.AccountStatus
	if _, err := b.store.ReadJSON(ctx, driven.NamespaceStatus, email, &st); err != nil {
		return fmt.Errorf("load status for %s: %w", email, err)
	}
	st.ConsecutiveFailures++

	b.logger.Warn("run failed",
		"account", email,
		"consecutive_failures", st.ConsecutiveFailures,
		"threshold", b.threshold,
	)

	if st.ConsecutiveFailures >= b.threshold && st.FrozenUntil == nil {
		until := b.now().Add(b.cooldown)
		st.FrozenUntil = &until
		b.logger.Error("failure threshold reached, account frozen",
			"account", email,
			"frozen_until", until.Format(time.RFC3339),
		)
	}
	if err := b.store.WriteJSON(ctx, driven.NamespaceStatus, email, &st); err != nil {
		return fmt.Errorf("persist status for %s: %w", email, err)
	}
	return nil
}
