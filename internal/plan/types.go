// Package plan defines the planning document model — projects, milestones,
// epics, stories, feedback — the snapshot loader, and the mutating
// operations that run under the plan lock.
package plan

import "time"

// ProjectStatus is the lifecycle status of the project root.
type ProjectStatus string

const (
	ProjectActive ProjectStatus = "active"
	ProjectPaused ProjectStatus = "paused"
)

// ArtifactStatus is the authoring status of a single epic artifact.
type ArtifactStatus string

const (
	ArtifactPending     ArtifactStatus = "pending"
	ArtifactDrafting    ArtifactStatus = "drafting"
	ArtifactComplete    ArtifactStatus = "complete"
	ArtifactNeedsReview ArtifactStatus = "needs_review"
	ArtifactNeedsUpdate ArtifactStatus = "needs_update"
)

// StoryStatus is the lifecycle status of a story.
type StoryStatus string

const (
	StoryTodo       StoryStatus = "todo"
	StoryAssigned   StoryStatus = "assigned"
	StoryInProgress StoryStatus = "in_progress"
	StoryReview     StoryStatus = "review"
	StoryDone       StoryStatus = "done"
	StoryBlocked    StoryStatus = "blocked"
	StoryDeferred   StoryStatus = "deferred"
)

// FeedbackStatus is the lifecycle status of a feedback item.
type FeedbackStatus string

const (
	FeedbackPending      FeedbackStatus = "pending"
	FeedbackIncorporated FeedbackStatus = "incorporated"
	FeedbackDismissed    FeedbackStatus = "dismissed"
)

// FeedbackKind classifies what a feedback item reports.
type FeedbackKind string

const (
	FeedbackBlocker  FeedbackKind = "blocker"
	FeedbackGap      FeedbackKind = "gap"
	FeedbackScope    FeedbackKind = "scope"
	FeedbackConflict FeedbackKind = "conflict"
	FeedbackQuestion FeedbackKind = "question"
)

// ProjectStats holds aggregate counts maintained on every child mutation.
type ProjectStats struct {
	Milestones       int `json:"milestones"`
	Epics            int `json:"epics"`
	Stories          int `json:"stories"`
	CompletedStories int `json:"completed_stories"`
}

// Project is the singleton root document (key "project.json"). It is never
// deleted, only re-initialized.
type Project struct {
	Name      string        `json:"name" validate:"required"`
	Status    ProjectStatus `json:"status" validate:"required,oneof=active paused"`
	Stats     ProjectStats  `json:"stats"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Milestone is an ordered phase owning an ordered set of epics. Identity is
// immutable once assigned.
type Milestone struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Position    int      `json:"position"`
	Epics       []string `json:"epics"`
}

// MilestoneIndex is the stored milestone collection (key "milestones.json").
type MilestoneIndex struct {
	Milestones []Milestone `json:"milestones"`
}

// ArtifactState tracks one epic artifact's authoring status and version.
type ArtifactState struct {
	Status  ArtifactStatus `json:"status" validate:"required,oneof=pending drafting complete needs_review needs_update"`
	Version int            `json:"version"`
}

// ArtifactRecord holds the independent status of the three epic artifacts.
type ArtifactRecord struct {
	PRD          ArtifactState `json:"prd"`
	Architecture ArtifactState `json:"architecture"`
	Stories      ArtifactState `json:"stories"`
}

// Epic is a unit of work under exactly one milestone
// (key "epics/<dir>/epic.json").
type Epic struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Milestone   string         `json:"milestone" validate:"required"`
	Deferred    bool           `json:"deferred"`
	Artifacts   ArtifactRecord `json:"artifacts"`
}

// Story is an implementation unit under exactly one epic. Requirement
// references point at IDs extracted from the epic's PRD text; dependency
// references point at other story IDs.
type Story struct {
	ID                 string      `json:"id" validate:"required"`
	Title              string      `json:"title" validate:"required"`
	Description        string      `json:"description,omitempty"`
	Requirements       []string    `json:"requirements,omitempty"`
	AcceptanceCriteria []string    `json:"acceptance_criteria,omitempty"`
	DependsOn          []string    `json:"depends_on,omitempty"`
	Status             StoryStatus `json:"status" validate:"required,oneof=todo assigned in_progress review done blocked deferred"`
	BlockedReason      string      `json:"blocked_reason,omitempty"`
	Assignee           string      `json:"assignee,omitempty"`
}

// StoryFile is the per-epic story collection (key "epics/<dir>/stories.json").
type StoryFile struct {
	Epic    string  `json:"epic" validate:"required"`
	Stories []Story `json:"stories"`
}

// FeedbackItem records a blocker, gap, scope change, conflict, or question
// against one or more affected entities.
type FeedbackItem struct {
	ID         string         `json:"id" validate:"required"`
	Kind       FeedbackKind   `json:"kind" validate:"required,oneof=blocker gap scope conflict question"`
	Affected   []string       `json:"affected,omitempty"`
	Note       string         `json:"note" validate:"required"`
	Status     FeedbackStatus `json:"status" validate:"required,oneof=pending incorporated dismissed"`
	Resolution string         `json:"resolution,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt time.Time      `json:"resolved_at,omitempty"`
}

// FeedbackQueue is a stored feedback collection (keys "feedback.json" and
// "feedback_archive.json").
type FeedbackQueue struct {
	Items []FeedbackItem `json:"items"`
}

// StuckItem records an ambiguous situation an automated agent could not
// resolve on its own.
type StuckItem struct {
	ID         string    `json:"id" validate:"required"`
	Situation  string    `json:"situation" validate:"required"`
	Attempts   []string  `json:"attempts,omitempty"`
	Options    []string  `json:"options,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
}

// StuckQueue is a stored stuck-item collection (keys "stuck.json" and
// "stuck_archive.json").
type StuckQueue struct {
	Items []StuckItem `json:"items"`
}
