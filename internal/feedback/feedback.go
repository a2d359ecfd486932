// Package feedback manages the planning feedback and stuck queues. Pending
// items accumulate in an active queue; resolving an item moves it to an
// append-only archive, while dismissing only flips its status — dismissed
// items stay in the queue as a record of what was considered and set aside.
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

// Manager runs queue mutations under the plan lock, same as the document
// mutations in the plan package.
type Manager struct {
	store  store.Store
	lock   *lock.Manager
	holder string
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a feedback queue manager acting as the given holder.
func NewManager(s store.Store, lm *lock.Manager, holder string, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  s,
		lock:   lm,
		holder: holder,
		logger: logger.With().Str("component", "feedback").Logger(),
		now:    time.Now,
	}
}

func (m *Manager) withLock(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ok, err := m.lock.Acquire(ctx, m.holder, op)
	if err != nil {
		return err
	}
	if !ok {
		return perrors.ErrLockHeld
	}
	defer func() {
		if err := m.lock.Release(ctx); err != nil {
			m.logger.Warn().Err(err).Str("operation", op).Msg("failed to release plan lock")
		}
	}()
	return fn(ctx)
}

// Add appends a pending feedback item and returns it with its assigned ID.
func (m *Manager) Add(ctx context.Context, kind plan.FeedbackKind, note string, affected []string) (*plan.FeedbackItem, error) {
	if note == "" {
		return nil, fmt.Errorf("feedback note required: %w", perrors.ErrInvalidInput)
	}
	switch kind {
	case plan.FeedbackBlocker, plan.FeedbackGap, plan.FeedbackScope, plan.FeedbackConflict, plan.FeedbackQuestion:
	default:
		return nil, fmt.Errorf("feedback kind %q: %w", kind, perrors.ErrInvalidInput)
	}

	item := plan.FeedbackItem{
		ID:        uuid.NewString(),
		Kind:      kind,
		Affected:  affected,
		Note:      note,
		Status:    plan.FeedbackPending,
		CreatedAt: m.now().UTC(),
	}
	err := m.withLock(ctx, "add_feedback", func(ctx context.Context) error {
		queue, err := m.readQueue(ctx, plan.KeyFeedback)
		if err != nil {
			return err
		}
		queue.Items = append(queue.Items, item)
		return m.store.WriteStructured(ctx, plan.KeyFeedback, queue)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("feedback", item.ID).Str("kind", string(kind)).Msg("feedback added")
	return &item, nil
}

// List returns the pending feedback queue.
func (m *Manager) List(ctx context.Context) ([]plan.FeedbackItem, error) {
	queue, err := m.readQueue(ctx, plan.KeyFeedback)
	if err != nil {
		return nil, err
	}
	return queue.Items, nil
}

// Archived returns the resolved and dismissed feedback archive.
func (m *Manager) Archived(ctx context.Context) ([]plan.FeedbackItem, error) {
	queue, err := m.readQueue(ctx, plan.KeyFeedbackArchive)
	if err != nil {
		return nil, err
	}
	return queue.Items, nil
}

// Resolve marks a pending item incorporated with the given resolution and
// moves it to the archive.
func (m *Manager) Resolve(ctx context.Context, id, resolution string) error {
	if resolution == "" {
		return fmt.Errorf("resolution required: %w", perrors.ErrInvalidInput)
	}
	return m.withLock(ctx, "resolve_feedback", func(ctx context.Context) error {
		queue, err := m.readQueue(ctx, plan.KeyFeedback)
		if err != nil {
			return err
		}
		idx := indexOf(queue.Items, id)
		if idx < 0 {
			return perrors.NotFound("feedback", id)
		}

		item := queue.Items[idx]
		item.Status = plan.FeedbackIncorporated
		item.Resolution = resolution
		item.ResolvedAt = m.now().UTC()

		archive, err := m.readQueue(ctx, plan.KeyFeedbackArchive)
		if err != nil {
			return err
		}
		archive.Items = append(archive.Items, item)
		if err := m.store.WriteStructured(ctx, plan.KeyFeedbackArchive, archive); err != nil {
			return err
		}

		queue.Items = append(queue.Items[:idx], queue.Items[idx+1:]...)
		return m.store.WriteStructured(ctx, plan.KeyFeedback, queue)
	})
}

// Dismiss flips a pending item to dismissed in place. Unlike Resolve it does
// not archive: the item stays in the active queue, status flipped, so later
// passes still see what was set aside. The resolution is optional and records
// why.
func (m *Manager) Dismiss(ctx context.Context, id, resolution string) error {
	return m.withLock(ctx, "dismiss_feedback", func(ctx context.Context) error {
		queue, err := m.readQueue(ctx, plan.KeyFeedback)
		if err != nil {
			return err
		}
		idx := indexOf(queue.Items, id)
		if idx < 0 {
			return perrors.NotFound("feedback", id)
		}

		queue.Items[idx].Status = plan.FeedbackDismissed
		queue.Items[idx].Resolution = resolution
		queue.Items[idx].ResolvedAt = m.now().UTC()
		return m.store.WriteStructured(ctx, plan.KeyFeedback, queue)
	})
}

func indexOf(items []plan.FeedbackItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) readQueue(ctx context.Context, key string) (*plan.FeedbackQueue, error) {
	var queue plan.FeedbackQueue
	err := m.store.ReadStructured(ctx, key, &queue)
	if err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return nil, err
	}
	return &queue, nil
}
