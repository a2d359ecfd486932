package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/prd"
	"github.com/p-blackswan/plan-agent/internal/store"
)

// Snapshot is the full in-memory set of loaded documents at the start of a
// validation, coverage, or status pass. Validators treat it as read-only.
type Snapshot struct {
	Project      *Project
	Milestones   []Milestone
	Epics        []Epic
	Stories      map[string][]Story           // keyed by owning epic ID
	Requirements map[string][]prd.Requirement // keyed by epic ID, from PRD text
	EpicDirs     map[string]string            // epic ID -> store directory name
}

// Epic returns the epic with the given ID, if present in the snapshot.
func (s *Snapshot) Epic(id string) (*Epic, bool) {
	for i := range s.Epics {
		if s.Epics[i].ID == id {
			return &s.Epics[i], true
		}
	}
	return nil, false
}

// AllStories returns every story in the snapshot, epic by epic.
func (s *Snapshot) AllStories() []Story {
	var out []Story
	for _, stories := range s.Stories {
		out = append(out, stories...)
	}
	return out
}

// Loader reads full snapshots from the store. PRD extraction results are
// memoized across loads, keyed by content, so unchanged PRDs are not
// re-scanned.
type Loader struct {
	store     store.Store
	extractor *prd.Extractor
	logger    zerolog.Logger
}

// NewLoader creates a snapshot loader with the given extraction cache size.
func NewLoader(s store.Store, cacheSize int, logger zerolog.Logger) *Loader {
	return &Loader{
		store:     s,
		extractor: prd.NewExtractor(cacheSize),
		logger:    logger.With().Str("component", "plan.loader").Logger(),
	}
}

// Load reads the project, milestone index, and every epic directory into a
// snapshot. Store I/O and schema errors propagate unchanged; referential
// breakage does not fail the load — that is the validator's job.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Stories:      make(map[string][]Story),
		Requirements: make(map[string][]prd.Requirement),
		EpicDirs:     make(map[string]string),
	}

	var project Project
	if err := l.store.ReadStructured(ctx, KeyProject, &project); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, fmt.Errorf("project not initialized: %w", err)
		}
		return nil, err
	}
	snap.Project = &project

	var index MilestoneIndex
	if err := l.store.ReadStructured(ctx, KeyMilestones, &index); err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return nil, err
	}
	snap.Milestones = index.Milestones

	dirs, err := l.store.ListDirectories(ctx, epicsPrefix)
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := l.loadEpicDir(ctx, dir, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (l *Loader) loadEpicDir(ctx context.Context, dir string, snap *Snapshot) error {
	epicID := EpicIDFromDir(dir)

	var epic Epic
	err := l.store.ReadStructured(ctx, EpicKey(dir, DocEpic), &epic)
	switch {
	case err == nil:
		epicID = epic.ID
		snap.Epics = append(snap.Epics, epic)
		snap.EpicDirs[epic.ID] = dir
	case errors.Is(err, perrors.ErrNotFound):
		// Keep loading the directory so the validator can report the
		// stories as dangling instead of hiding them.
		l.logger.Warn().Str("dir", dir).Msg("epic directory without epic.json")
	default:
		return err
	}

	text, err := l.store.ReadText(ctx, EpicKey(dir, DocPRD))
	if err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return err
	}
	snap.Requirements[epicID] = l.extractor.Extract(epicID, text)

	var stories StoryFile
	err = l.store.ReadStructured(ctx, EpicKey(dir, DocStories), &stories)
	switch {
	case err == nil:
		owner := stories.Epic
		if owner == "" {
			owner = epicID
		}
		snap.Stories[owner] = append(snap.Stories[owner], stories.Stories...)
	case errors.Is(err, perrors.ErrNotFound):
		// No stories generated yet.
	default:
		return err
	}
	return nil
}
