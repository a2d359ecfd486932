package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	milestoneIDRe   = regexp.MustCompile(`^M(\d+)$`)
	epicIDRe        = regexp.MustCompile(`^E(\d+)$`)
	storyIDRe       = regexp.MustCompile(`^(E\d+)\.S(\d+)$`)
	requirementIDRe = regexp.MustCompile(`^(E\d+)\.R(\d+)$`)
	slugRe          = regexp.MustCompile(`[^a-z0-9-]+`)
)

// IsMilestoneID reports whether id has the form M<n>.
func IsMilestoneID(id string) bool { return milestoneIDRe.MatchString(id) }

// IsEpicID reports whether id has the form E<n>.
func IsEpicID(id string) bool { return epicIDRe.MatchString(id) }

// IsStoryID reports whether id has the form E<n>.S<m>.
func IsStoryID(id string) bool { return storyIDRe.MatchString(id) }

// IsRequirementID reports whether id has the form E<n>.R<m>.
func IsRequirementID(id string) bool { return requirementIDRe.MatchString(id) }

// EpicOfStory returns the epic prefix of a story ID.
func EpicOfStory(id string) (string, bool) {
	m := storyIDRe.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// EpicOfRequirement returns the epic prefix of a requirement ID.
func EpicOfRequirement(id string) (string, bool) {
	m := requirementIDRe.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ordinal extracts the numeric suffix from an ID matched by re, or 0.
func ordinal(re *regexp.Regexp, id string) int {
	m := re.FindStringSubmatch(id)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[len(m)-1])
	return n
}

// NextMilestoneID returns the next sequential milestone ID. IDs are never
// reused: the successor of the highest existing ordinal, not the first gap.
func NextMilestoneID(existing []Milestone) string {
	max := 0
	for _, m := range existing {
		if n := ordinal(milestoneIDRe, m.ID); n > max {
			max = n
		}
	}
	return fmt.Sprintf("M%d", max+1)
}

// NextEpicID returns the next sequential epic ID across the whole project.
func NextEpicID(existing []Epic) string {
	max := 0
	for _, e := range existing {
		if n := ordinal(epicIDRe, e.ID); n > max {
			max = n
		}
	}
	return fmt.Sprintf("E%d", max+1)
}

// NextStoryID returns the next sequential story ID within an epic.
func NextStoryID(epicID string, existing []Story) string {
	max := 0
	for _, s := range existing {
		if n := ordinal(storyIDRe, s.ID); n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s.S%d", epicID, max+1)
}

// Slug converts a name into a directory-safe slug.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugRe.ReplaceAllString(s, "")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}
