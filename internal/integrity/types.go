// Package integrity checks referential integrity of the planning graph and
// computes requirement coverage.
//
// Both entry points are pure functions over a loaded snapshot: they perform
// no writes, hold no state, and report broken data as structured findings
// rather than errors. Running them twice on the same snapshot yields
// identical output.
package integrity

import "fmt"

// Severity grades a finding. Dangling and broken references are errors;
// orphaned requirements, dependency cycles, and dependencies into epics
// that are not yet done are warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies what class of integrity problem a finding reports.
type Kind string

const (
	KindDanglingMilestone   Kind = "dangling_milestone_link"
	KindDanglingEpic        Kind = "dangling_epic_link"
	KindBrokenRequirement   Kind = "broken_requirement_link"
	KindBrokenDependency    Kind = "broken_dependency_link"
	KindForeignEpicNotDone  Kind = "dependency_on_incomplete_epic"
	KindDependencyCycle     Kind = "dependency_cycle"
	KindOrphanedRequirement Kind = "orphaned_requirement"
)

// Finding is one integrity problem: the entity carrying the bad reference,
// the reference itself, and a human-readable description naming both.
type Finding struct {
	Type     Kind     `json:"type"`
	Severity Severity `json:"severity"`
	Entity   string   `json:"entity"`        // ID of the entity holding the reference
	Ref      string   `json:"ref,omitempty"` // the unresolved or orphaned ID
	Message  string   `json:"message"`
}

// Report is the validator's full output.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Errors returns the number of error-severity findings.
func (r *Report) Errors() int { return r.count(SeverityError) }

// Warnings returns the number of warning-severity findings.
func (r *Report) Warnings() int { return r.count(SeverityWarning) }

func (r *Report) count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

func (r *Report) add(t Kind, sev Severity, entity, ref, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Type:     t,
		Severity: sev,
		Entity:   entity,
		Ref:      ref,
		Message:  fmt.Sprintf(format, args...),
	})
}
