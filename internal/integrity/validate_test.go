package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/prd"
)

// buildSnapshot assembles a snapshot from literal pieces, extracting
// requirements from the given PRD texts.
func buildSnapshot(milestones []plan.Milestone, epics []plan.Epic, stories map[string][]plan.Story, prds map[string]string) *plan.Snapshot {
	snap := &plan.Snapshot{
		Project:      &plan.Project{Name: "demo", Status: plan.ProjectActive},
		Milestones:   milestones,
		Epics:        epics,
		Stories:      stories,
		Requirements: make(map[string][]prd.Requirement),
		EpicDirs:     make(map[string]string),
	}
	for _, e := range epics {
		snap.Requirements[e.ID] = prd.Extract(e.ID, prds[e.ID])
	}
	return snap
}

func cleanSnapshot() *plan.Snapshot {
	return buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP", Epics: []string{"E1"}}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {
				{ID: "E1.S1", Title: "Login form", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo},
				{ID: "E1.S2", Title: "Logout", Requirements: []string{"E1.R2"}, DependsOn: []string{"E1.S1"}, Status: plan.StoryTodo},
			},
		},
		map[string]string{"E1": "## R1: User Login\n## R2: User Logout\n"},
	)
}

func findingsOf(r *Report, k Kind) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Type == k {
			out = append(out, f)
		}
	}
	return out
}

func TestValidate_CleanSnapshotHasNoErrors(t *testing.T) {
	report := Validate(cleanSnapshot())
	assert.Zero(t, report.Errors(), "findings: %+v", report.Findings)
	assert.Zero(t, report.Warnings())
}

func TestValidate_DanglingMilestone(t *testing.T) {
	snap := cleanSnapshot()
	snap.Epics[0].Milestone = "M9"

	report := Validate(snap)
	found := findingsOf(report, KindDanglingMilestone)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityError, found[0].Severity)
	assert.Equal(t, "E1", found[0].Entity)
	assert.Equal(t, "M9", found[0].Ref)
	assert.Contains(t, found[0].Message, "M9")
}

func TestValidate_DanglingEpicPrefix(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E7"] = []plan.Story{
		{ID: "E7.S1", Title: "Ghost", Status: plan.StoryTodo},
	}

	report := Validate(snap)
	found := findingsOf(report, KindDanglingEpic)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityError, found[0].Severity)
	assert.Equal(t, "E7.S1", found[0].Entity)
}

func TestValidate_StoryFiledUnderWrongEpic(t *testing.T) {
	snap := cleanSnapshot()
	// E1.S9 exists as an ID but is filed in a collection claimed by E2.
	snap.Epics = append(snap.Epics, plan.Epic{ID: "E2", Name: "Billing", Milestone: "M1"})
	snap.Stories["E2"] = []plan.Story{
		{ID: "E1.S9", Title: "Misfiled", Status: plan.StoryTodo},
	}

	report := Validate(snap)
	found := findingsOf(report, KindDanglingEpic)
	require.Len(t, found, 1)
	assert.Equal(t, "E1.S9", found[0].Entity)
	assert.Contains(t, found[0].Message, "filed under epic E2")
}

func TestValidate_BrokenRequirementLink(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"] = append(snap.Stories["E1"], plan.Story{
		ID: "E1.S9", Title: "Bad ref", Requirements: []string{"E1.R5"}, Status: plan.StoryTodo,
	})

	report := Validate(snap)
	found := findingsOf(report, KindBrokenRequirement)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityError, found[0].Severity)
	assert.Equal(t, "E1.S9", found[0].Entity)
	assert.Equal(t, "E1.R5", found[0].Ref)
	assert.Contains(t, found[0].Message, "E1.S9")
	assert.Contains(t, found[0].Message, "E1.R5")
}

func TestValidate_BrokenDependencyLink(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"][0].DependsOn = []string{"E1.S42"}

	report := Validate(snap)
	found := findingsOf(report, KindBrokenDependency)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityError, found[0].Severity)
	assert.Equal(t, "E1.S42", found[0].Ref)
}

func TestValidate_DependencyCycle(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"][0].DependsOn = []string{"E1.S2"} // S2 already depends on S1

	report := Validate(snap)
	found := findingsOf(report, KindDependencyCycle)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityWarning, found[0].Severity)
	assert.Zero(t, report.Errors())
}

func TestValidate_SelfDependencyCycle(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"][0].DependsOn = []string{"E1.S1"}

	report := Validate(snap)
	assert.Len(t, findingsOf(report, KindDependencyCycle), 1)
}

func TestValidate_OrphanedRequirementIsWarning(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"][1].Requirements = nil // nothing covers E1.R2 now

	report := Validate(snap)
	found := findingsOf(report, KindOrphanedRequirement)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityWarning, found[0].Severity)
	assert.Equal(t, "E1.R2", found[0].Ref)
	assert.Zero(t, report.Errors())
}

func TestValidate_Idempotent(t *testing.T) {
	snap := cleanSnapshot()
	snap.Stories["E1"][0].Requirements = append(snap.Stories["E1"][0].Requirements, "E1.R9")
	snap.Epics[0].Milestone = "M2"

	first := Validate(snap)
	second := Validate(snap)
	assert.Equal(t, first, second)
}

func crossEpicSnapshot() *plan.Snapshot {
	return buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP", Epics: []string{"E1", "E2"}}},
		[]plan.Epic{
			{ID: "E1", Name: "Auth", Milestone: "M1"},
			{ID: "E2", Name: "Billing", Milestone: "M1"},
		},
		map[string][]plan.Story{
			"E1": {{ID: "E1.S1", Title: "a", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo}},
			"E2": {{ID: "E2.S1", Title: "b", Requirements: []string{"E2.R1"}, DependsOn: []string{"E1.S1"}, Status: plan.StoryTodo}},
		},
		map[string]string{"E1": "## R1: A\n", "E2": "## R1: B\n"},
	)
}

func TestValidate_CrossEpicDependencyOnInFlightEpic(t *testing.T) {
	// A dependency reaching into another epic resolves, so it is never an
	// error, but it only passes clean when that epic is already done.
	report := Validate(crossEpicSnapshot())
	assert.Zero(t, report.Errors(), "findings: %+v", report.Findings)

	found := findingsOf(report, KindForeignEpicNotDone)
	require.Len(t, found, 1)
	assert.Equal(t, SeverityWarning, found[0].Severity)
	assert.Equal(t, "E2.S1", found[0].Entity)
	assert.Equal(t, "E1.S1", found[0].Ref)
	assert.Contains(t, found[0].Message, "E1")
}

func TestValidate_CrossEpicDependencyOnDoneEpic(t *testing.T) {
	snap := crossEpicSnapshot()
	complete := plan.ArtifactState{Status: plan.ArtifactComplete, Version: 1}
	snap.Epics[0].Artifacts = plan.ArtifactRecord{PRD: complete, Architecture: complete, Stories: complete}
	snap.Stories["E1"][0].Status = plan.StoryDone

	report := Validate(snap)
	assert.Zero(t, report.Errors(), "findings: %+v", report.Findings)
	assert.Empty(t, findingsOf(report, KindForeignEpicNotDone))
}
