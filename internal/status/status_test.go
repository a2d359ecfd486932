package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/prd"
)

func epicWith(prdS, archS, storiesS plan.ArtifactStatus, deferred bool) plan.Epic {
	return plan.Epic{
		ID:        "E1",
		Name:      "Auth",
		Milestone: "M1",
		Deferred:  deferred,
		Artifacts: plan.ArtifactRecord{
			PRD:          plan.ArtifactState{Status: prdS},
			Architecture: plan.ArtifactState{Status: archS},
			Stories:      plan.ArtifactState{Status: storiesS},
		},
	}
}

func storiesWith(statuses ...plan.StoryStatus) []plan.Story {
	out := make([]plan.Story, len(statuses))
	for i, s := range statuses {
		out[i] = plan.Story{ID: "E1.S1", Title: "s", Status: s}
	}
	return out
}

func TestForEpic_TransitionTable(t *testing.T) {
	complete := plan.ArtifactComplete
	tests := []struct {
		name    string
		epic    plan.Epic
		stories []plan.Story
		want    EpicStatus
	}{
		{"deferred flag wins", epicWith(complete, complete, complete, true), storiesWith(plan.StoryDone), EpicDeferred},
		{"prd pending is planned", epicWith(plan.ArtifactPending, plan.ArtifactPending, plan.ArtifactPending, false), nil, EpicPlanned},
		{"prd drafting", epicWith(plan.ArtifactDrafting, plan.ArtifactPending, plan.ArtifactPending, false), nil, EpicDrafting},
		{"architecture pending", epicWith(complete, plan.ArtifactPending, plan.ArtifactPending, false), nil, EpicDrafting},
		{"stories needs_update", epicWith(complete, complete, plan.ArtifactNeedsUpdate, false), nil, EpicDrafting},
		{"all complete, zero stories is ready never done", epicWith(complete, complete, complete, false), nil, EpicReady},
		{"all complete, all todo", epicWith(complete, complete, complete, false), storiesWith(plan.StoryTodo, plan.StoryTodo), EpicReady},
		{"one of two done is in_progress", epicWith(complete, complete, complete, false), storiesWith(plan.StoryDone, plan.StoryTodo), EpicInProgress},
		{"story assigned counts as started", epicWith(complete, complete, complete, false), storiesWith(plan.StoryAssigned, plan.StoryTodo), EpicInProgress},
		{"all done", epicWith(complete, complete, complete, false), storiesWith(plan.StoryDone, plan.StoryDone), EpicDone},
		{"needs_review with untouched stories", epicWith(complete, plan.ArtifactNeedsReview, complete, false), storiesWith(plan.StoryTodo), EpicDrafting},
		{"needs_review with story progress", epicWith(complete, plan.ArtifactNeedsReview, complete, false), storiesWith(plan.StoryInProgress), EpicInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForEpic(tt.epic, tt.stories))
		})
	}
}

func projectSnapshot(epics []plan.Epic, stories map[string][]plan.Story) *plan.Snapshot {
	return &plan.Snapshot{
		Project:      &plan.Project{Name: "demo", Status: plan.ProjectActive},
		Epics:        epics,
		Stories:      stories,
		Requirements: map[string][]prd.Requirement{},
	}
}

func TestForProject_NextStepMajority(t *testing.T) {
	complete := plan.ArtifactComplete
	e1 := epicWith(plan.ArtifactPending, plan.ArtifactPending, plan.ArtifactPending, false)
	e1.ID = "E1"
	e2 := epicWith(complete, plan.ArtifactDrafting, plan.ArtifactPending, false)
	e2.ID = "E2"
	e3 := epicWith(complete, plan.ArtifactPending, plan.ArtifactPending, false)
	e3.ID = "E3"

	report := ForProject(projectSnapshot([]plan.Epic{e1, e2, e3}, nil))
	assert.Equal(t, StageArchitecture, report.NextStep)
	assert.Len(t, report.Epics, 3)
	assert.Equal(t, plan.ProjectActive, report.Project)
}

func TestForProject_TieGoesToEarlierStage(t *testing.T) {
	complete := plan.ArtifactComplete
	e1 := epicWith(plan.ArtifactDrafting, plan.ArtifactPending, plan.ArtifactPending, false)
	e1.ID = "E1"
	e2 := epicWith(complete, plan.ArtifactDrafting, plan.ArtifactPending, false)
	e2.ID = "E2"

	report := ForProject(projectSnapshot([]plan.Epic{e1, e2}, nil))
	assert.Equal(t, StagePRD, report.NextStep)
}

func TestForProject_DoneAndDeferredDontVote(t *testing.T) {
	complete := plan.ArtifactComplete
	done := epicWith(complete, complete, complete, false)
	done.ID = "E1"
	deferred := epicWith(plan.ArtifactPending, plan.ArtifactPending, plan.ArtifactPending, true)
	deferred.ID = "E2"
	inFlight := epicWith(complete, plan.ArtifactPending, plan.ArtifactPending, false)
	inFlight.ID = "E3"

	stories := map[string][]plan.Story{"E1": storiesWith(plan.StoryDone)}
	report := ForProject(projectSnapshot([]plan.Epic{done, deferred, inFlight}, stories))
	assert.Equal(t, StageArchitecture, report.NextStep)
}

func TestForProject_Empty(t *testing.T) {
	report := ForProject(projectSnapshot(nil, nil))
	assert.Equal(t, StageNone, report.NextStep)
	assert.Empty(t, report.Epics)
}
