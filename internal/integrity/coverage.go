package integrity

import (
	"math"
	"sort"

	"github.com/p-blackswan/plan-agent/internal/plan"
)

// EpicCoverage is the coverage result for a single epic.
type EpicCoverage struct {
	EpicID         string              `json:"epic_id"`
	Total          int                 `json:"total_requirements"`
	Covered        int                 `json:"covered_requirements"`
	Percent        int                 `json:"percent"`
	NoRequirements bool                `json:"no_requirements,omitempty"`
	Uncovered      []string            `json:"uncovered,omitempty"`
	CoveredBy      map[string][]string `json:"covered_by,omitempty"` // requirement ID -> covering story IDs
}

// Coverage maps every epic's extracted requirements to the stories covering
// them. An epic with zero requirements is vacuously 100% covered and flagged
// NoRequirements rather than treated as a data error. Pure function of the
// snapshot.
func Coverage(snap *plan.Snapshot) []EpicCoverage {
	// Union of epics known by ID and epics that only appear as story or
	// requirement owners, so broken data still gets a coverage row.
	ids := make(map[string]bool, len(snap.Epics))
	for _, e := range snap.Epics {
		ids[e.ID] = true
	}
	for id := range snap.Stories {
		ids[id] = true
	}
	for id := range snap.Requirements {
		ids[id] = true
	}

	epicIDs := make([]string, 0, len(ids))
	for id := range ids {
		epicIDs = append(epicIDs, id)
	}
	sort.Strings(epicIDs)

	out := make([]EpicCoverage, 0, len(epicIDs))
	for _, id := range epicIDs {
		out = append(out, coverEpic(id, snap))
	}
	return out
}

func coverEpic(epicID string, snap *plan.Snapshot) EpicCoverage {
	reqs := snap.Requirements[epicID]
	cov := EpicCoverage{EpicID: epicID, Total: len(reqs)}

	if len(reqs) == 0 {
		cov.Percent = 100
		cov.NoRequirements = true
		return cov
	}

	cov.CoveredBy = make(map[string][]string, len(reqs))
	for _, s := range snap.Stories[epicID] {
		for _, ref := range s.Requirements {
			cov.CoveredBy[ref] = append(cov.CoveredBy[ref], s.ID)
		}
	}

	for _, r := range reqs {
		if len(cov.CoveredBy[r.ID]) > 0 {
			cov.Covered++
		} else {
			cov.Uncovered = append(cov.Uncovered, r.ID)
		}
	}

	// References to requirements the PRD does not declare are broken
	// links, not coverage; drop them from the map.
	declared := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		declared[r.ID] = true
	}
	for ref := range cov.CoveredBy {
		if !declared[ref] {
			delete(cov.CoveredBy, ref)
		}
	}

	cov.Percent = int(math.Round(float64(cov.Covered) / float64(cov.Total) * 100))
	return cov
}
