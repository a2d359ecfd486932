package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/store"
)

// StuckInput holds the caller-supplied fields for a new stuck report.
type StuckInput struct {
	Situation string
	Attempts  []string
	Options   []string
}

// StuckManager manages the stuck-item queue: situations an automated agent
// could not resolve, parked for a human decision.
type StuckManager struct {
	inner *Manager
}

// NewStuckManager creates a stuck queue manager acting as the given holder.
func NewStuckManager(s store.Store, lm *lock.Manager, holder string, logger zerolog.Logger) *StuckManager {
	return &StuckManager{inner: &Manager{
		store:  s,
		lock:   lm,
		holder: holder,
		logger: logger.With().Str("component", "feedback.stuck").Logger(),
		now:    time.Now,
	}}
}

// Add appends a stuck report and returns it with its assigned ID.
func (m *StuckManager) Add(ctx context.Context, input StuckInput) (*plan.StuckItem, error) {
	if input.Situation == "" {
		return nil, fmt.Errorf("stuck situation required: %w", perrors.ErrInvalidInput)
	}

	item := plan.StuckItem{
		ID:        uuid.NewString(),
		Situation: input.Situation,
		Attempts:  input.Attempts,
		Options:   input.Options,
		CreatedAt: m.inner.now().UTC(),
	}
	err := m.inner.withLock(ctx, "add_stuck", func(ctx context.Context) error {
		queue, err := m.readQueue(ctx, plan.KeyStuck)
		if err != nil {
			return err
		}
		queue.Items = append(queue.Items, item)
		return m.inner.store.WriteStructured(ctx, plan.KeyStuck, queue)
	})
	if err != nil {
		return nil, err
	}
	m.inner.logger.Info().Str("stuck", item.ID).Msg("stuck report added")
	return &item, nil
}

// List returns the open stuck queue.
func (m *StuckManager) List(ctx context.Context) ([]plan.StuckItem, error) {
	queue, err := m.readQueue(ctx, plan.KeyStuck)
	if err != nil {
		return nil, err
	}
	return queue.Items, nil
}

// Archived returns the resolved stuck archive.
func (m *StuckManager) Archived(ctx context.Context) ([]plan.StuckItem, error) {
	queue, err := m.readQueue(ctx, plan.KeyStuckArchive)
	if err != nil {
		return nil, err
	}
	return queue.Items, nil
}

// Resolve records who decided and what was decided, then moves the item to
// the archive.
func (m *StuckManager) Resolve(ctx context.Context, id, resolvedBy, resolution string) error {
	if resolvedBy == "" || resolution == "" {
		return fmt.Errorf("resolved_by and resolution required: %w", perrors.ErrInvalidInput)
	}

	return m.inner.withLock(ctx, "resolve_stuck", func(ctx context.Context) error {
		queue, err := m.readQueue(ctx, plan.KeyStuck)
		if err != nil {
			return err
		}

		idx := -1
		for i := range queue.Items {
			if queue.Items[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return perrors.NotFound("stuck item", id)
		}

		item := queue.Items[idx]
		item.ResolvedBy = resolvedBy
		item.Resolution = resolution

		archive, err := m.readQueue(ctx, plan.KeyStuckArchive)
		if err != nil {
			return err
		}
		archive.Items = append(archive.Items, item)
		if err := m.inner.store.WriteStructured(ctx, plan.KeyStuckArchive, archive); err != nil {
			return err
		}

		queue.Items = append(queue.Items[:idx], queue.Items[idx+1:]...)
		return m.inner.store.WriteStructured(ctx, plan.KeyStuck, queue)
	})
}

func (m *StuckManager) readQueue(ctx context.Context, key string) (*plan.StuckQueue, error) {
	var queue plan.StuckQueue
	err := m.inner.store.ReadStructured(ctx, key, &queue)
	if err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return nil, err
	}
	return &queue, nil
}
