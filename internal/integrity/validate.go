package integrity

import (
	"sort"

	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/prd"
	"github.com/p-blackswan/plan-agent/internal/status"
)

// Validate walks the milestone -> epic -> story -> requirement graph in a
// snapshot and reports every broken or orphaned reference. It builds its
// lookup tables in a single pass before cross-referencing; the graph has at
// most four levels, so no fixed-point iteration is needed. Story dependency
// cycles are detected by depth-first traversal and reported as warnings.
func Validate(snap *plan.Snapshot) *Report {
	report := &Report{}

	milestones := make(map[string]bool, len(snap.Milestones))
	for _, m := range snap.Milestones {
		milestones[m.ID] = true
	}
	epics := make(map[string]bool, len(snap.Epics))
	epicDone := make(map[string]bool, len(snap.Epics))
	for _, e := range snap.Epics {
		epics[e.ID] = true
		epicDone[e.ID] = status.ForEpic(e, snap.Stories[e.ID]) == status.EpicDone
	}
	stories := make(map[string]bool)
	for _, list := range snap.Stories {
		for _, s := range list {
			stories[s.ID] = true
		}
	}

	for _, e := range snap.Epics {
		if !milestones[e.Milestone] {
			report.add(KindDanglingMilestone, SeverityError, e.ID, e.Milestone,
				"epic %s references milestone %s, which does not exist", e.ID, e.Milestone)
		}
	}

	// Deterministic epic order: snapshot maps are unordered.
	epicIDs := make([]string, 0, len(snap.Stories))
	for epicID := range snap.Stories {
		epicIDs = append(epicIDs, epicID)
	}
	sort.Strings(epicIDs)

	for _, epicID := range epicIDs {
		reqSet := prd.IDSet(snap.Requirements[epicID])
		epicExists := epics[epicID]

		for _, s := range snap.Stories[epicID] {
			validateStory(report, s, epicID, epicExists, epics, epicDone, stories, reqSet)
		}
		detectCycles(report, snap.Stories[epicID])
	}

	reportOrphans(report, snap)
	return report
}

func validateStory(report *Report, s plan.Story, ownerID string, ownerExists bool, epics, epicDone, stories map[string]bool, reqSet map[string]bool) {
	prefix, ok := plan.EpicOfStory(s.ID)
	switch {
	case !ok:
		report.add(KindDanglingEpic, SeverityError, s.ID, "",
			"story %s has no recognizable epic prefix", s.ID)
	case !epics[prefix]:
		report.add(KindDanglingEpic, SeverityError, s.ID, prefix,
			"story %s belongs to epic %s, which does not exist", s.ID, prefix)
	case !ownerExists || prefix != ownerID:
		// The story collection is filed under an epic the ID namespace
		// does not know, or under a different epic than its prefix.
		report.add(KindDanglingEpic, SeverityError, s.ID, ownerID,
			"story %s is filed under epic %s but its ID resolves to %s", s.ID, ownerID, prefix)
	}

	for _, ref := range s.Requirements {
		if !reqSet[ref] {
			report.add(KindBrokenRequirement, SeverityError, s.ID, ref,
				"story %s references requirement %s, which is not declared in the epic PRD", s.ID, ref)
		}
	}

	for _, dep := range s.DependsOn {
		if !stories[dep] {
			report.add(KindBrokenDependency, SeverityError, s.ID, dep,
				"story %s depends on story %s, which does not exist", s.ID, dep)
			continue
		}
		// Dependencies must stay within the story's own epic or reach into
		// epics that are already done. A dep into an in-flight foreign epic
		// resolves, so it is a warning, not an error.
		depEpic, ok := plan.EpicOfStory(dep)
		if !ok || depEpic == ownerID || !epics[depEpic] {
			continue // unparseable or missing epics are reported elsewhere
		}
		if !epicDone[depEpic] {
			report.add(KindForeignEpicNotDone, SeverityWarning, s.ID, dep,
				"story %s depends on story %s in epic %s, which is not done", s.ID, dep, depEpic)
		}
	}
}

// detectCycles runs a white/grey/black DFS over the dependency edges of one
// epic's stories. Each cycle is reported once, at the story where the back
// edge is found.
func detectCycles(report *Report, stories []plan.Story) {
	deps := make(map[string][]string, len(stories))
	for _, s := range stories {
		deps[s.ID] = s.DependsOn
	}

	const (
		white = 0 // unvisited
		grey  = 1 // visiting
		black = 2 // done
	)
	state := make(map[string]int, len(stories))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = grey
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue // broken link, reported separately
			}
			switch state[dep] {
			case grey:
				report.add(KindDependencyCycle, SeverityWarning, id, dep,
					"story %s participates in a dependency cycle through %s", id, dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		state[id] = black
		return false
	}

	for _, s := range stories {
		if state[s.ID] == white {
			visit(s.ID)
		}
	}
}

// reportOrphans flags extracted requirements with zero covering stories.
// Orphans are remediation guidance, not data corruption, hence warnings.
func reportOrphans(report *Report, snap *plan.Snapshot) {
	for _, cov := range Coverage(snap) {
		for _, req := range cov.Uncovered {
			report.add(KindOrphanedRequirement, SeverityWarning, cov.EpicID, req,
				"requirement %s has no covering story", req)
		}
	}
}
