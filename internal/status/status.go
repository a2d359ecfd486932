// Package status computes derived, non-persisted lifecycle status for epics
// and the project from artifact state and story progress. Nothing here
// mutates stored fields; the output exists for guidance and presentation.
package status

import (
	"github.com/p-blackswan/plan-agent/internal/plan"
)

// EpicStatus is the derived lifecycle status of an epic.
type EpicStatus string

const (
	EpicPlanned    EpicStatus = "planned"
	EpicDrafting   EpicStatus = "drafting"
	EpicReady      EpicStatus = "ready"
	EpicInProgress EpicStatus = "in_progress"
	EpicDone       EpicStatus = "done"
	EpicDeferred   EpicStatus = "deferred"
)

// Stage names the artifact stage an epic is blocked on, for the project
// next-step hint.
type Stage string

const (
	StageNone           Stage = ""
	StagePRD            Stage = "prd"
	StageArchitecture   Stage = "architecture"
	StageStories        Stage = "stories"
	StageImplementation Stage = "implementation"
)

func inAuthoring(s plan.ArtifactStatus) bool {
	switch s {
	case plan.ArtifactPending, plan.ArtifactDrafting, plan.ArtifactNeedsUpdate:
		return true
	}
	return false
}

func storyProgress(stories []plan.Story) (started, done int) {
	for _, s := range stories {
		if s.Status != plan.StoryTodo {
			started++
		}
		if s.Status == plan.StoryDone {
			done++
		}
	}
	return started, done
}

// ForEpic derives an epic's status from its deferred flag, its three
// artifact statuses, and its stories' status multiset:
//
//	deferred     the flag is set
//	planned      the PRD has not been started
//	drafting     some artifact is pending, drafting, or needs_update
//	ready        all artifacts complete, no story has left todo
//	in_progress  at least one but not all stories done
//	done         every story done (and at least one story exists)
//
// An epic with zero stories and complete artifacts is ready, never done: a
// story-generation step must occur first. An artifact sitting in
// needs_review keeps the epic out of ready; it counts as drafting unless
// story progress already says otherwise.
func ForEpic(e plan.Epic, stories []plan.Story) EpicStatus {
	if e.Deferred {
		return EpicDeferred
	}

	a := e.Artifacts
	if a.PRD.Status == plan.ArtifactPending {
		return EpicPlanned
	}
	if inAuthoring(a.PRD.Status) || inAuthoring(a.Architecture.Status) || inAuthoring(a.Stories.Status) {
		return EpicDrafting
	}

	started, done := storyProgress(stories)
	allComplete := a.PRD.Status == plan.ArtifactComplete &&
		a.Architecture.Status == plan.ArtifactComplete &&
		a.Stories.Status == plan.ArtifactComplete

	if allComplete {
		switch {
		case len(stories) == 0 || started == 0:
			return EpicReady
		case done == len(stories):
			return EpicDone
		default:
			return EpicInProgress
		}
	}

	// Some artifact is in needs_review: story progress dominates if work
	// has begun, otherwise the epic is still being authored.
	if started > 0 {
		if done == len(stories) && len(stories) > 0 {
			return EpicDone
		}
		return EpicInProgress
	}
	return EpicDrafting
}

// blockingStage returns the artifact stage an in-flight epic is blocked on.
func blockingStage(e plan.Epic) Stage {
	a := e.Artifacts
	switch {
	case a.PRD.Status != plan.ArtifactComplete:
		return StagePRD
	case a.Architecture.Status != plan.ArtifactComplete:
		return StageArchitecture
	case a.Stories.Status != plan.ArtifactComplete:
		return StageStories
	default:
		return StageImplementation
	}
}

// EpicReport pairs an epic with its derived status for presentation.
type EpicReport struct {
	EpicID string     `json:"epic_id"`
	Status EpicStatus `json:"status"`
	Stage  Stage      `json:"stage"`
}

// ProjectReport is the derived status of the whole snapshot.
type ProjectReport struct {
	Project  plan.ProjectStatus `json:"project"`
	Epics    []EpicReport       `json:"epics"`
	NextStep Stage              `json:"next_step"`
}

// ForProject derives per-epic status plus the project-level next-step hint:
// the artifact stage blocking the majority of in-flight epics (done and
// deferred epics don't vote; ties go to the earlier stage).
func ForProject(snap *plan.Snapshot) ProjectReport {
	report := ProjectReport{NextStep: StageNone}
	if snap.Project != nil {
		report.Project = snap.Project.Status
	}

	votes := make(map[Stage]int)
	for _, e := range snap.Epics {
		st := ForEpic(e, snap.Stories[e.ID])
		stage := blockingStage(e)
		report.Epics = append(report.Epics, EpicReport{EpicID: e.ID, Status: st, Stage: stage})
		if st == EpicDone || st == EpicDeferred {
			continue
		}
		votes[stage]++
	}

	best := StageNone
	for _, stage := range []Stage{StagePRD, StageArchitecture, StageStories, StageImplementation} {
		if votes[stage] > votes[best] {
			best = stage
		}
	}
	report.NextStep = best
	return report
}
