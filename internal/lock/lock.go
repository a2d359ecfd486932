// Package lock provides cooperative, lease-based mutual exclusion over the
// shared document store.
//
// The lock is advisory, not a strongly consistent distributed lock: Acquire
// is a read-then-write against the store with no compare-and-swap, so two
// concurrent acquirers can both observe "no lock", both write, and the
// store's last-write-wins semantics silently pick the winner while the loser
// proceeds believing it holds the lock. This is an accepted limitation of
// the store contract; the lease is kept short to bound the damage. There is
// no wait queue and no renewal — Acquire returns immediately with a boolean,
// and a long-running holder must re-acquire after expiry or risk preemption.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/store"
)

// Lock is the stored lock document (key ".lock").
type Lock struct {
	Holder  string    `json:"holder" validate:"required"`
	Task    string    `json:"task,omitempty"`
	Started time.Time `json:"started"`
	Timeout time.Time `json:"timeout"` // lease expiry
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.Timeout)
}

// Manager serializes mutations against the store via a single lock document.
type Manager struct {
	store  store.Store
	key    string
	lease  time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a lock manager with the given lease duration.
func NewManager(s store.Store, lease time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  s,
		key:    ".lock",
		lease:  lease,
		logger: logger.With().Str("component", "lock").Logger(),
		now:    time.Now,
	}
}

// Acquire attempts to take the lock for holder. It returns true after
// writing a fresh lease when no lock exists or the existing lease has
// expired. It returns false without writing when an unexpired lock exists —
// including one held by the same holder, since renewal is unsupported.
// Contention is a retryable condition for the caller, never an error.
func (m *Manager) Acquire(ctx context.Context, holder, task string) (bool, error) {
	current, err := m.Read(ctx)
	if err != nil {
		return false, err
	}

	now := m.now()
	if current != nil && !current.Expired(now) {
		m.logger.Debug().
			Str("holder", current.Holder).
			Time("timeout", current.Timeout).
			Msg("lock held, acquire refused")
		return false, nil
	}

	if current != nil {
		m.logger.Info().
			Str("expired_holder", current.Holder).
			Str("new_holder", holder).
			Msg("taking over expired lock")
	}

	l := Lock{
		Holder:  holder,
		Task:    task,
		Started: now,
		Timeout: now.Add(m.lease),
	}
	if err := m.store.WriteStructured(ctx, m.key, l); err != nil {
		return false, err
	}
	return true, nil
}

// Release deletes the lock document. Releasing an absent lock succeeds
// silently.
func (m *Manager) Release(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}

// Read returns the current lock verbatim, expired ones included — callers
// decide staleness. Returns nil when no lock exists. Read never clears a
// stale lock; only Acquire supersedes it.
func (m *Manager) Read(ctx context.Context) (*Lock, error) {
	var l Lock
	err := m.store.ReadStructured(ctx, m.key, &l)
	if err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}
