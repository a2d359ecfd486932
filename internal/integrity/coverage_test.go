package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/plan-agent/internal/plan"
)

func coverageFor(t *testing.T, covs []EpicCoverage, epicID string) EpicCoverage {
	t.Helper()
	for _, c := range covs {
		if c.EpicID == epicID {
			return c
		}
	}
	t.Fatalf("no coverage row for %s", epicID)
	return EpicCoverage{}
}

func TestCoverage_FullyCovered(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP", Epics: []string{"E1"}}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {
				{ID: "E1.S1", Title: "Login", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo},
				{ID: "E1.S3", Title: "Logout", Requirements: []string{"E1.R2"}, Status: plan.StoryTodo},
			},
		},
		map[string]string{"E1": "## R1: User Login\n## R2: User Logout\n"},
	)

	cov := coverageFor(t, Coverage(snap), "E1")
	assert.Equal(t, 100, cov.Percent)
	assert.Equal(t, 2, cov.Total)
	assert.Equal(t, 2, cov.Covered)
	assert.Empty(t, cov.Uncovered)
	assert.False(t, cov.NoRequirements)
	assert.Equal(t, []string{"E1.S1"}, cov.CoveredBy["E1.R1"])
	assert.Equal(t, []string{"E1.S3"}, cov.CoveredBy["E1.R2"])
}

func TestCoverage_ZeroRequirements(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP"}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{"E1": {{ID: "E1.S1", Title: "x", Status: plan.StoryTodo}}},
		map[string]string{"E1": "no headings here"},
	)

	cov := coverageFor(t, Coverage(snap), "E1")
	assert.Equal(t, 100, cov.Percent)
	assert.True(t, cov.NoRequirements)
	assert.Zero(t, cov.Total)
	assert.Empty(t, cov.Uncovered)
}

func TestCoverage_PartialWithRounding(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP"}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {
				{ID: "E1.S1", Title: "a", Requirements: []string{"E1.R1", "E1.R2"}, Status: plan.StoryTodo},
			},
		},
		map[string]string{"E1": "## R1: A\n## R2: B\n## R3: C\n"},
	)

	cov := coverageFor(t, Coverage(snap), "E1")
	// 2 of 3 covered: 66.66 rounds to 67.
	assert.Equal(t, 67, cov.Percent)
	assert.Equal(t, []string{"E1.R3"}, cov.Uncovered)
}

func TestCoverage_MultipleCoveringStories(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP"}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {
				{ID: "E1.S1", Title: "a", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo},
				{ID: "E1.S2", Title: "b", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo},
			},
		},
		map[string]string{"E1": "## R1: A\n"},
	)

	cov := coverageFor(t, Coverage(snap), "E1")
	assert.Equal(t, 100, cov.Percent)
	require.Len(t, cov.CoveredBy["E1.R1"], 2)
}

func TestCoverage_UndeclaredReferenceNotCounted(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP"}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {{ID: "E1.S1", Title: "a", Requirements: []string{"E1.R9"}, Status: plan.StoryTodo}},
		},
		map[string]string{"E1": "## R1: A\n"},
	)

	cov := coverageFor(t, Coverage(snap), "E1")
	// E1.R9 is a broken link (validator territory), not coverage.
	assert.Equal(t, 0, cov.Percent)
	assert.Equal(t, []string{"E1.R1"}, cov.Uncovered)
	assert.NotContains(t, cov.CoveredBy, "E1.R9")
}

func TestCoverage_Idempotent(t *testing.T) {
	snap := buildSnapshot(
		[]plan.Milestone{{ID: "M1", Name: "MVP"}},
		[]plan.Epic{{ID: "E1", Name: "Auth", Milestone: "M1"}},
		map[string][]plan.Story{
			"E1": {{ID: "E1.S1", Title: "a", Requirements: []string{"E1.R1"}, Status: plan.StoryTodo}},
		},
		map[string]string{"E1": "## R1: A\n## R2: B\n"},
	)

	assert.Equal(t, Coverage(snap), Coverage(snap))
}
