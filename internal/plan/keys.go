package plan

import "strings"

// Store key layout. All keys are relative paths within the project-scoped
// namespace.
const (
	KeyProject         = "project.json"
	KeyMilestones      = "milestones.json"
	KeyFeedback        = "feedback.json"
	KeyFeedbackArchive = "feedback_archive.json"
	KeyStuck           = "stuck.json"
	KeyStuckArchive    = "stuck_archive.json"
	KeyLock            = ".lock"

	epicsPrefix = "epics"
)

// EpicDir returns the directory name for an epic, e.g. "E1-auth".
func EpicDir(id, name string) string {
	slug := Slug(name)
	if slug == "" {
		return id
	}
	return id + "-" + slug
}

// EpicIDFromDir recovers the epic ID from a directory name.
func EpicIDFromDir(dir string) string {
	if i := strings.Index(dir, "-"); i > 0 {
		return dir[:i]
	}
	return dir
}

// EpicKey returns the key for a document inside an epic directory.
func EpicKey(dir, doc string) string {
	return epicsPrefix + "/" + dir + "/" + doc
}

// Per-epic document names.
const (
	DocEpic         = "epic.json"
	DocPRD          = "prd.md"
	DocArchitecture = "architecture.md"
	DocStories      = "stories.json"
)
