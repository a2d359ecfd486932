package mgmt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/plan-agent/internal/feedback"
	"github.com/p-blackswan/plan-agent/internal/health"
	"github.com/p-blackswan/plan-agent/internal/integrity"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/status"
	"github.com/p-blackswan/plan-agent/internal/store"
)

type fixture struct {
	server *Server
	store  store.Store
	lock   *lock.Manager
}

func setupServer(t *testing.T, auth AuthConfig) *fixture {
	t.Helper()
	s := store.NewMemStore()
	lm := lock.NewManager(s, time.Minute, zerolog.Nop())
	loader := plan.NewLoader(s, 16, zerolog.Nop())
	fb := feedback.NewManager(s, lm, "tester@host", zerolog.Nop())
	stuck := feedback.NewStuckManager(s, lm, "tester@host", zerolog.Nop())
	collector := metrics.New()

	checker := health.NewChecker(zerolog.Nop())
	checker.Register("store", health.StoreCheck(s.Exists, plan.KeyProject))

	h := NewHandlers(loader, lm, fb, stuck, checker, collector, zerolog.Nop())
	srv := NewServer(ServerConfig{Auth: auth}, h, collector, zerolog.Nop())
	return &fixture{server: srv, store: s, lock: lm}
}

func seedPlan(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.WriteStructured(ctx, plan.KeyProject, &plan.Project{
		Name: "demo", Status: plan.ProjectActive, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.WriteStructured(ctx, plan.KeyMilestones, plan.MilestoneIndex{
		Milestones: []plan.Milestone{{ID: "M1", Name: "MVP", Position: 1, Epics: []string{"E1"}}},
	}))

	complete := plan.ArtifactState{Status: plan.ArtifactComplete}
	require.NoError(t, s.WriteStructured(ctx, plan.EpicKey("E1-auth", plan.DocEpic), plan.Epic{
		ID: "E1", Name: "Auth", Milestone: "M1",
		Artifacts: plan.ArtifactRecord{PRD: complete, Architecture: complete, Stories: complete},
	}))
	require.NoError(t, s.WriteText(ctx, plan.EpicKey("E1-auth", plan.DocPRD), "# R1: Login\n\n# R2: Logout\n"))
	require.NoError(t, s.WriteStructured(ctx, plan.EpicKey("E1-auth", plan.DocStories), plan.StoryFile{
		Epic: "E1",
		Stories: []plan.Story{
			{ID: "E1.S1", Title: "login form", Status: plan.StoryTodo, Requirements: []string{"E1.R1"}},
			{ID: "E1.S2", Title: "bad ref", Status: plan.StoryTodo, Requirements: []string{"E1.R5"}},
		},
	}))
}

func doGet(t *testing.T, f *fixture, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestServer_Healthz(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	var out HealthResponse
	code := doGet(t, f, "/healthz", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out.Status)
}

func TestServer_Readyz(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	code := doGet(t, f, "/readyz", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Lock(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	var out LockResponse
	code := doGet(t, f, "/api/v1/lock", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, out.Held)

	ok, err := f.lock.Acquire(context.Background(), "worker@host", "draft_prd")
	require.NoError(t, err)
	require.True(t, ok)

	code = doGet(t, f, "/api/v1/lock", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, out.Held)
	require.NotNil(t, out.Lock)
	assert.Equal(t, "worker@host", out.Lock.Holder)
}

func TestServer_Integrity(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	seedPlan(t, f.store)

	var report integrity.Report
	code := doGet(t, f, "/api/v1/integrity", &report)
	assert.Equal(t, http.StatusOK, code)

	// E1.S2 references E1.R5, which the PRD never declares.
	require.NotEmpty(t, report.Findings)
	found := false
	for _, finding := range report.Findings {
		if finding.Type == integrity.KindBrokenRequirement && finding.Entity == "E1.S2" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestServer_Coverage(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	seedPlan(t, f.store)

	var coverage []integrity.EpicCoverage
	code := doGet(t, f, "/api/v1/coverage", &coverage)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, coverage, 1)
	assert.Equal(t, "E1", coverage[0].EpicID)
	// R1 is covered, R2 is not.
	assert.Equal(t, 50, coverage[0].Percent)
}

func TestServer_Status(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	seedPlan(t, f.store)

	var report status.ProjectReport
	code := doGet(t, f, "/api/v1/status", &report)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, report.Epics, 1)
	assert.Equal(t, status.EpicReady, report.Epics[0].Status)
}

func TestServer_Project_NotInitialized(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	code := doGet(t, f, "/api/v1/project", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_FeedbackAndStuck_EmptyLists(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	var items []plan.FeedbackItem
	code := doGet(t, f, "/api/v1/feedback", &items)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, items)

	var stuck []plan.StuckItem
	code = doGet(t, f, "/api/v1/stuck", &stuck)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, stuck)
}

func TestServer_AuthRequired(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "api-key", APIKey: "secret"})

	// Probes stay open.
	code := doGet(t, f, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)

	code = doGet(t, f, "/api/v1/lock", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lock", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	code := doGet(t, f, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
}
