package plan

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/store"
)

func seedProject(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.WriteStructured(ctx, KeyProject, &Project{
		Name: "demo", Status: ProjectActive, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.WriteStructured(ctx, KeyMilestones, MilestoneIndex{
		Milestones: []Milestone{{ID: "M1", Name: "MVP", Position: 1, Epics: []string{"E1"}}},
	}))
}

func seedEpic(t *testing.T, s store.Store, id, name, prdText string, stories []Story) {
	t.Helper()
	ctx := context.Background()
	dir := EpicDir(id, name)
	pending := ArtifactState{Status: ArtifactPending}
	require.NoError(t, s.WriteStructured(ctx, EpicKey(dir, DocEpic), Epic{
		ID: id, Name: name, Milestone: "M1",
		Artifacts: ArtifactRecord{PRD: pending, Architecture: pending, Stories: pending},
	}))
	if prdText != "" {
		require.NoError(t, s.WriteText(ctx, EpicKey(dir, DocPRD), prdText))
	}
	if stories != nil {
		require.NoError(t, s.WriteStructured(ctx, EpicKey(dir, DocStories), StoryFile{Epic: id, Stories: stories}))
	}
}

func TestLoader_Load(t *testing.T) {
	s := store.NewMemStore()
	seedProject(t, s)
	seedEpic(t, s, "E1", "Auth", "# R1: Login\n\n## R2: Logout\n",
		[]Story{{ID: "E1.S1", Title: "login form", Status: StoryTodo, Requirements: []string{"E1.R1"}}})

	loader := NewLoader(s, 16, zerolog.Nop())
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "demo", snap.Project.Name)
	require.Len(t, snap.Milestones, 1)
	require.Len(t, snap.Epics, 1)
	assert.Equal(t, "E1-auth", snap.EpicDirs["E1"])

	reqs := snap.Requirements["E1"]
	require.Len(t, reqs, 2)
	assert.Equal(t, "E1.R1", reqs[0].ID)
	assert.Equal(t, "E1.R2", reqs[1].ID)

	require.Len(t, snap.Stories["E1"], 1)
	assert.Equal(t, "E1.S1", snap.Stories["E1"][0].ID)
}

func TestLoader_Load_NotInitialized(t *testing.T) {
	loader := NewLoader(store.NewMemStore(), 16, zerolog.Nop())
	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestLoader_Load_MissingDocumentsAreEmpty(t *testing.T) {
	s := store.NewMemStore()
	seedProject(t, s)
	// Epic with neither PRD nor stories.
	seedEpic(t, s, "E1", "Auth", "", nil)

	loader := NewLoader(s, 16, zerolog.Nop())
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snap.Requirements["E1"])
	assert.Empty(t, snap.Stories["E1"])
}

func TestLoader_Load_EpicDirWithoutEpicDoc(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	seedProject(t, s)
	// stories.json exists but epic.json does not: the load must not hide the
	// stories, so the validator can flag them as dangling.
	require.NoError(t, s.WriteStructured(ctx, EpicKey("E2-ghost", DocStories), StoryFile{
		Epic: "E2", Stories: []Story{{ID: "E2.S1", Title: "orphan", Status: StoryTodo}},
	}))

	loader := NewLoader(s, 16, zerolog.Nop())
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snap.Epics)
	require.Len(t, snap.Stories["E2"], 1)
}

func TestSnapshot_Helpers(t *testing.T) {
	snap := &Snapshot{
		Epics: []Epic{{ID: "E1"}, {ID: "E2"}},
		Stories: map[string][]Story{
			"E1": {{ID: "E1.S1"}},
			"E2": {{ID: "E2.S1"}, {ID: "E2.S2"}},
		},
	}

	e, ok := snap.Epic("E2")
	require.True(t, ok)
	assert.Equal(t, "E2", e.ID)
	_, ok = snap.Epic("E9")
	assert.False(t, ok)

	assert.Len(t, snap.AllStories(), 3)
}
