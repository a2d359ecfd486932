package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/store"
)

// Manager runs the mutating plan operations. Every mutation acquires the
// plan lock first and releases it on exit; a held lock surfaces as
// perrors.ErrLockHeld, a retryable condition the caller decides about.
type Manager struct {
	store   store.Store
	lock    *lock.Manager
	holder  string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewManager creates an operations manager acting as the given holder.
func NewManager(s store.Store, lm *lock.Manager, holder string, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   s,
		lock:    lm,
		holder:  holder,
		metrics: m,
		logger:  logger.With().Str("component", "plan.manager").Logger(),
	}
}

// withLock acquires the plan lock, runs fn, and releases. The release error
// is logged, not returned: the lease expires on its own.
func (m *Manager) withLock(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		m.metrics.ObserveMutation(op, time.Since(start).Seconds())
	}()

	ok, err := m.lock.Acquire(ctx, m.holder, op)
	if err != nil {
		m.metrics.RecordMutation(op, "error")
		return err
	}
	if !ok {
		m.metrics.RecordLock("contended")
		m.metrics.RecordMutation(op, "contended")
		current, _ := m.lock.Read(ctx)
		if current != nil {
			return fmt.Errorf("held by %s until %s: %w",
				current.Holder, current.Timeout.Format(time.RFC3339), perrors.ErrLockHeld)
		}
		return perrors.ErrLockHeld
	}
	m.metrics.RecordLock("acquired")

	defer func() {
		if err := m.lock.Release(ctx); err != nil {
			m.logger.Warn().Err(err).Str("operation", op).Msg("failed to release plan lock")
		}
	}()

	if err := fn(ctx); err != nil {
		m.metrics.RecordMutation(op, "error")
		return err
	}
	m.metrics.RecordMutation(op, "ok")
	return nil
}

// InitProject creates (or re-initializes) the project root document. The
// project is never deleted; re-running init resets the root and the
// milestone index but leaves epic directories alone.
func (m *Manager) InitProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name required: %w", perrors.ErrInvalidInput)
	}

	var p *Project
	err := m.withLock(ctx, "init_project", func(ctx context.Context) error {
		now := time.Now().UTC()
		p = &Project{
			Name:      name,
			Status:    ProjectActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.store.WriteStructured(ctx, KeyProject, p); err != nil {
			return err
		}
		return m.store.WriteStructured(ctx, KeyMilestones, MilestoneIndex{Milestones: []Milestone{}})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("project", name).Msg("project initialized")
	return p, nil
}

// SetProjectStatus flips the project between active and paused.
func (m *Manager) SetProjectStatus(ctx context.Context, status ProjectStatus) error {
	if status != ProjectActive && status != ProjectPaused {
		return fmt.Errorf("project status %q: %w", status, perrors.ErrInvalidInput)
	}
	return m.withLock(ctx, "set_project_status", func(ctx context.Context) error {
		return m.updateProject(ctx, func(p *Project) {
			p.Status = status
		})
	})
}

// AddMilestone appends a milestone with the next sequential ID.
func (m *Manager) AddMilestone(ctx context.Context, name, description string) (*Milestone, error) {
	if name == "" {
		return nil, fmt.Errorf("milestone name required: %w", perrors.ErrInvalidInput)
	}

	var created *Milestone
	err := m.withLock(ctx, "add_milestone", func(ctx context.Context) error {
		index, err := m.readMilestones(ctx)
		if err != nil {
			return err
		}

		ms := Milestone{
			ID:          NextMilestoneID(index.Milestones),
			Name:        name,
			Description: description,
			Position:    len(index.Milestones) + 1,
			Epics:       []string{},
		}
		index.Milestones = append(index.Milestones, ms)
		if err := m.store.WriteStructured(ctx, KeyMilestones, index); err != nil {
			return err
		}
		created = &ms

		return m.updateProject(ctx, func(p *Project) {
			p.Stats.Milestones = len(index.Milestones)
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("milestone", created.ID).Str("name", name).Msg("milestone added")
	return created, nil
}

// AddEpic creates an epic under an existing milestone, with all three
// artifacts pending, and attaches it to the milestone's epic list.
func (m *Manager) AddEpic(ctx context.Context, milestoneID, name, description string) (*Epic, error) {
	if name == "" {
		return nil, fmt.Errorf("epic name required: %w", perrors.ErrInvalidInput)
	}

	var created *Epic
	err := m.withLock(ctx, "add_epic", func(ctx context.Context) error {
		index, err := m.readMilestones(ctx)
		if err != nil {
			return err
		}
		mi := -1
		for i := range index.Milestones {
			if index.Milestones[i].ID == milestoneID {
				mi = i
				break
			}
		}
		if mi < 0 {
			return perrors.NotFound("milestone", milestoneID)
		}

		id, err := m.nextEpicID(ctx)
		if err != nil {
			return err
		}
		pending := ArtifactState{Status: ArtifactPending}
		epic := Epic{
			ID:          id,
			Name:        name,
			Description: description,
			Milestone:   milestoneID,
			Artifacts:   ArtifactRecord{PRD: pending, Architecture: pending, Stories: pending},
		}
		if err := m.store.WriteStructured(ctx, EpicKey(EpicDir(id, name), DocEpic), epic); err != nil {
			return err
		}

		index.Milestones[mi].Epics = append(index.Milestones[mi].Epics, id)
		if err := m.store.WriteStructured(ctx, KeyMilestones, index); err != nil {
			return err
		}
		created = &epic

		return m.updateProject(ctx, func(p *Project) {
			p.Stats.Epics++
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("epic", created.ID).Str("milestone", milestoneID).Msg("epic added")
	return created, nil
}

// StoryInput holds the caller-supplied fields for a new story. Dependency
// references are recorded as given; the integrity validator, not the write
// path, judges them.
type StoryInput struct {
	Title              string
	Description        string
	Requirements       []string
	AcceptanceCriteria []string
	DependsOn          []string
}

// AddStory appends a story to an epic's collection with the next sequential
// ID and status todo.
func (m *Manager) AddStory(ctx context.Context, epicID string, input StoryInput) (*Story, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("story title required: %w", perrors.ErrInvalidInput)
	}

	var created *Story
	err := m.withLock(ctx, "add_story", func(ctx context.Context) error {
		dir, err := m.epicDir(ctx, epicID)
		if err != nil {
			return err
		}

		var file StoryFile
		err = m.store.ReadStructured(ctx, EpicKey(dir, DocStories), &file)
		if errors.Is(err, perrors.ErrNotFound) {
			file = StoryFile{Epic: epicID, Stories: []Story{}}
		} else if err != nil {
			return err
		}

		story := Story{
			ID:                 NextStoryID(epicID, file.Stories),
			Title:              input.Title,
			Description:        input.Description,
			Requirements:       input.Requirements,
			AcceptanceCriteria: input.AcceptanceCriteria,
			DependsOn:          input.DependsOn,
			Status:             StoryTodo,
		}
		file.Stories = append(file.Stories, story)
		if err := m.store.WriteStructured(ctx, EpicKey(dir, DocStories), file); err != nil {
			return err
		}
		created = &story

		return m.updateProject(ctx, func(p *Project) {
			p.Stats.Stories++
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("story", created.ID).Msg("story added")
	return created, nil
}

// SetArtifactStatus updates one artifact's authoring status on an epic. The
// artifact version increments on every transition to complete.
func (m *Manager) SetArtifactStatus(ctx context.Context, epicID, artifact string, status ArtifactStatus) error {
	return m.withLock(ctx, "set_artifact_status", func(ctx context.Context) error {
		dir, err := m.epicDir(ctx, epicID)
		if err != nil {
			return err
		}

		var epic Epic
		if err := m.store.ReadStructured(ctx, EpicKey(dir, DocEpic), &epic); err != nil {
			return err
		}

		var state *ArtifactState
		switch artifact {
		case "prd":
			state = &epic.Artifacts.PRD
		case "architecture":
			state = &epic.Artifacts.Architecture
		case "stories":
			state = &epic.Artifacts.Stories
		default:
			return fmt.Errorf("artifact %q: %w", artifact, perrors.ErrInvalidInput)
		}
		if status != ArtifactPending && status != ArtifactDrafting && status != ArtifactComplete &&
			status != ArtifactNeedsReview && status != ArtifactNeedsUpdate {
			return fmt.Errorf("artifact status %q: %w", status, perrors.ErrInvalidInput)
		}

		if status == ArtifactComplete && state.Status != ArtifactComplete {
			state.Version++
		}
		state.Status = status
		return m.store.WriteStructured(ctx, EpicKey(dir, DocEpic), epic)
	})
}

// SetEpicDeferred flips an epic's deferred flag.
func (m *Manager) SetEpicDeferred(ctx context.Context, epicID string, deferred bool) error {
	return m.withLock(ctx, "set_epic_deferred", func(ctx context.Context) error {
		dir, err := m.epicDir(ctx, epicID)
		if err != nil {
			return err
		}
		var epic Epic
		if err := m.store.ReadStructured(ctx, EpicKey(dir, DocEpic), &epic); err != nil {
			return err
		}
		epic.Deferred = deferred
		return m.store.WriteStructured(ctx, EpicKey(dir, DocEpic), epic)
	})
}

// WritePRD replaces an epic's PRD text and marks the artifact drafting if it
// was still pending.
func (m *Manager) WritePRD(ctx context.Context, epicID, text string) error {
	return m.withLock(ctx, "write_prd", func(ctx context.Context) error {
		dir, err := m.epicDir(ctx, epicID)
		if err != nil {
			return err
		}
		if err := m.store.WriteText(ctx, EpicKey(dir, DocPRD), text); err != nil {
			return err
		}

		var epic Epic
		if err := m.store.ReadStructured(ctx, EpicKey(dir, DocEpic), &epic); err != nil {
			return err
		}
		if epic.Artifacts.PRD.Status == ArtifactPending {
			epic.Artifacts.PRD.Status = ArtifactDrafting
			return m.store.WriteStructured(ctx, EpicKey(dir, DocEpic), epic)
		}
		return nil
	})
}

// SetStoryStatus updates a story's lifecycle status. A blocked status
// requires a reason; any other status clears it. Completed-story counts on
// the project root are kept in step.
func (m *Manager) SetStoryStatus(ctx context.Context, storyID string, status StoryStatus, blockedReason string) error {
	epicID, ok := EpicOfStory(storyID)
	if !ok {
		return fmt.Errorf("story ID %q: %w", storyID, perrors.ErrInvalidInput)
	}
	if status == StoryBlocked && blockedReason == "" {
		return fmt.Errorf("blocked status requires a reason: %w", perrors.ErrInvalidInput)
	}

	return m.withLock(ctx, "set_story_status", func(ctx context.Context) error {
		dir, err := m.epicDir(ctx, epicID)
		if err != nil {
			return err
		}

		var file StoryFile
		if err := m.store.ReadStructured(ctx, EpicKey(dir, DocStories), &file); err != nil {
			if errors.Is(err, perrors.ErrNotFound) {
				return perrors.NotFound("story", storyID)
			}
			return err
		}

		si := -1
		for i := range file.Stories {
			if file.Stories[i].ID == storyID {
				si = i
				break
			}
		}
		if si < 0 {
			return perrors.NotFound("story", storyID)
		}

		wasDone := file.Stories[si].Status == StoryDone
		file.Stories[si].Status = status
		if status == StoryBlocked {
			file.Stories[si].BlockedReason = blockedReason
		} else {
			file.Stories[si].BlockedReason = ""
		}
		if err := m.store.WriteStructured(ctx, EpicKey(dir, DocStories), file); err != nil {
			return err
		}

		isDone := status == StoryDone
		if wasDone == isDone {
			return nil
		}
		return m.updateProject(ctx, func(p *Project) {
			if isDone {
				p.Stats.CompletedStories++
			} else {
				p.Stats.CompletedStories--
			}
		})
	})
}

// readMilestones loads the milestone index, treating an absent document as
// an empty index.
func (m *Manager) readMilestones(ctx context.Context) (*MilestoneIndex, error) {
	var index MilestoneIndex
	err := m.store.ReadStructured(ctx, KeyMilestones, &index)
	if err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return nil, err
	}
	return &index, nil
}

// updateProject applies fn to the project root and persists it.
func (m *Manager) updateProject(ctx context.Context, fn func(*Project)) error {
	var p Project
	if err := m.store.ReadStructured(ctx, KeyProject, &p); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return fmt.Errorf("project not initialized: %w", err)
		}
		return err
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	return m.store.WriteStructured(ctx, KeyProject, &p)
}

// epicDir resolves an epic ID to its store directory name.
func (m *Manager) epicDir(ctx context.Context, epicID string) (string, error) {
	dirs, err := m.store.ListDirectories(ctx, epicsPrefix)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		if EpicIDFromDir(dir) == epicID {
			return dir, nil
		}
	}
	return "", perrors.NotFound("epic", epicID)
}

// nextEpicID allocates the next epic ID from the directory namespace so IDs
// are never reused even if an epic document is missing.
func (m *Manager) nextEpicID(ctx context.Context) (string, error) {
	dirs, err := m.store.ListDirectories(ctx, epicsPrefix)
	if err != nil {
		return "", err
	}
	epics := make([]Epic, 0, len(dirs))
	for _, dir := range dirs {
		epics = append(epics, Epic{ID: EpicIDFromDir(dir)})
	}
	return NextEpicID(epics), nil
}
