package mgmt

import (
	"time"

	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/plan"
)

// ProblemDetail is an RFC 7807 Problem Detail error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// LockResponse reports the current plan lock, if any.
type LockResponse struct {
	Held    bool       `json:"held"`
	Expired bool       `json:"expired,omitempty"`
	Lock    *lock.Lock `json:"lock,omitempty"`
}

// ProjectResponse is the project root plus the milestone index.
type ProjectResponse struct {
	Project    *plan.Project    `json:"project"`
	Milestones []plan.Milestone `json:"milestones"`
	AsOf       time.Time        `json:"as_of"`
}
