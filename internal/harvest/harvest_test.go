package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/browser/browsertest"
	"go-portal-harvester/internal/config"
	"go-portal-harvester/internal/dedup"
	"go-portal-harvester/internal/discovery"
	apperrors "go-portal-harvester/internal/errors"
	"go-portal-harvester/internal/extractor"
	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/scheduler"
	"go-portal-harvester/internal/session"
	"go-portal-harvester/internal/state"
	"go-portal-harvester/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	loginPage     = `<html><body><h2>Sign in</h2><form action="/login"><input type="email" name="email"><input type="password" name="password"><button type="submit">Log in</button></form></body></html>`
	dashboardPage = `<html><body><nav><a href="/dashboard/internships">Internships</a><a href="/logout">Log out</a></nav></body></html>`

	publicListing = `<html><body><h1>Internships</h1>
	<div class="job-card"><h3><a href="/internships/acme/backend-intern">Backend Intern</a></h3></div>
	<div class="job-card"><h3><a href="/internships/globex/data-intern">Data Intern</a></h3></div>
	<div class="job-card"><h3><a href="/internships/portal/welcome-page">Welcome</a></h3></div>
	<div class="job-card"><h3><a href="/internships/initech/broken-link">QA Intern</a></h3></div>
	</body></html>`

	feedListing = `<html><head></head><body><pre>{"count":2,"results":[
		{"job_title":"ML Intern","company_name":"Hooli","job_description":"Train ranking models on anonymised search logs with the search team."},
		{"job_title":"Mobile Developer Intern","company_name":"Pied Piper","job_description":"Ship features in our Android app and review pull requests every week."}]}</pre></body></html>`
)

var now = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

func postingPage(title, company, description string) string {
	return postingPageDue(title, company, description, "30/09/2025")
}

func postingPageDue(title, company, description, deadline string) string {
	return fmt.Sprintf(`<html><body><main>
	<h1 class="job-title">%s</h1>
	<div class="company-name">%s</div>
	<div class="job-description"><p>%s</p></div>
	<p>Deadline: %s</p>
	</main></body></html>`, title, company, description, deadline)
}

func publicPortal() *browsertest.Renderer {
	r := browsertest.New().
		Page("/internships", publicListing).
		Page("/internships/acme/backend-intern", postingPage("Backend Engineering Intern", "Acme Corp",
			"Join our platform team to build APIs in Go and Postgres for millions of users.")).
		Page("/internships/globex/data-intern", postingPage("Data Analyst Intern", "Globex",
			"Analyse sales data and build weekly dashboards for the regional managers.")).
		Page("/internships/portal/welcome-page", postingPage("National Internship Portal — connect, collaborate, grow your career",
			"National Internship Portal", "Find your next internship opportunity with thousands of employers nationwide."))
	r.FailURLs["https://portal.example.org/internships/initech/broken-link"] = apperrors.RenderFailure("navigate", errors.New("timeout"))
	return r
}

func testConfig(paths ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Portal.BaseURL = "https://portal.example.org"
	cfg.Portal.Paths = paths
	cfg.Portal.ProtectedPrefixes = []string{"/dashboard"}
	cfg.Login.Credentials = []config.Credential{{Email: "student@example.org", Password: "secret"}}
	cfg.SetDefaults()
	return cfg
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

type harness struct {
	h        *Harvester
	clock    *testClock
	r        *browsertest.Renderer
	launcher *browsertest.Launcher
	jobs     *store.MemoryStore
	state    *state.MemoryStore
	sched    *scheduler.Scheduler
	sessions *session.Manager
}

func newHarness(cfg *config.Config, r *browsertest.Renderer, st *state.MemoryStore) *harness {
	log := logger.NewNop()
	if st == nil {
		st = state.NewMemoryStore()
	}
	clk := &testClock{t: now}
	clock := clk.now

	jobs := store.NewMemoryStore()
	sessions := session.NewManager(session.OptionsFromConfig(cfg), st, log, nil)
	sessions.SetClock(clock)
	sched := scheduler.New(scheduler.OptionsFromConfig(cfg), st, log)
	sched.SetClock(clock)
	engine := dedup.NewEngine(jobs, cfg.Portal.SourceTag, cfg.Validation.SimilarityThreshold, log)
	engine.SetClock(clock)

	launcher := &browsertest.Launcher{Renderer: r}
	h := New(OptionsFromConfig(cfg), Deps{
		Launcher:   launcher,
		Sessions:   sessions,
		Scheduler:  sched,
		Discoverer: discovery.New(log),
		Extractor:  extractor.New(extractor.DefaultOptions(), log),
		Validator:  filter.NewValidator(cfg.Validation, log),
		Dedup:      engine,
		Store:      jobs,
		Log:        log,
	})
	h.SetClock(clock)
	return &harness{h: h, clock: clk, r: r, launcher: launcher, jobs: jobs, state: st, sched: sched, sessions: sessions}
}

func TestRunHarvestCycle_PublicPath(t *testing.T) {
	hs := newHarness(testConfig("/internships"), publicPortal(), nil)
	ctx := context.Background()

	summary, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.JobsFound)
	assert.Equal(t, 2, summary.EmployerSignalsFound)
	assert.Equal(t, 4, summary.Discovered)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Rejected[models.RejectGenericContent])
	assert.Equal(t, []string{"/internships"}, summary.PathsVisited)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "RENDER_FAILURE")
	assert.False(t, summary.Authenticated)
	assert.True(t, hs.r.Closed())

	stored := hs.jobs.All()
	require.Len(t, stored, 2)
	for _, rec := range stored {
		assert.Equal(t, models.StatusActive, rec.Status)
		assert.Equal(t, "portal", rec.ExternalSource)
		assert.NotEmpty(t, rec.ContentHash)
		assert.NotEmpty(t, rec.ExternalID)
	}

	cs, err := hs.sched.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.ItemsHarvestedThisCycle)
}

func TestRunHarvestCycle_Idempotent(t *testing.T) {
	hs := newHarness(testConfig("/internships"), publicPortal(), nil)
	ctx := context.Background()

	first, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	second, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.JobsFound)
	assert.Len(t, hs.jobs.All(), 2)
}

func TestRunHarvestCycle_StopsAtQuota(t *testing.T) {
	cfg := testConfig("/internships")
	cfg.Limits.JobsPerCycle = 1
	hs := newHarness(cfg, publicPortal(), nil)
	ctx := context.Background()

	summary, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Len(t, hs.jobs.All(), 1)

	cs, err := hs.sched.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.ItemsHarvestedThisCycle)
}

func TestRunHarvestCycle_RefreshOnlyUpdatesDoNotCount(t *testing.T) {
	hs := newHarness(testConfig("/internships"), publicPortal(), nil)
	ctx := context.Background()

	first, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	//both stored deadlines (30/09) are now well past
	hs.clock.t = time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC)
	for run := 0; run < 2; run++ {
		summary, err := hs.h.RunHarvestCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Inserted)
		assert.Equal(t, 0, summary.Updated)
		assert.Equal(t, 2, summary.Refreshed)
		assert.Equal(t, 0, summary.JobsFound)

		cs, err := hs.sched.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, cs.ItemsHarvestedThisCycle)
		hs.clock.t = hs.clock.t.Add(5 * time.Minute)
	}
	for _, rec := range hs.jobs.All() {
		assert.Equal(t, time.Date(2025, 10, 10, 9, 5, 0, 0, time.UTC), rec.LastSeenAt)
	}

	//an extended deadline is a real change
	hs.r.Page("/internships/acme/backend-intern", postingPageDue("Backend Engineering Intern", "Acme Corp",
		"Join our platform team to build APIs in Go and Postgres for millions of users.", "31/10/2025"))
	summary, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.JobsFound)

	cs, err := hs.sched.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.ItemsHarvestedThisCycle)
}

func TestRunHarvestCycle_SharedLinksAcrossPaths(t *testing.T) {
	featured := `<html><body><h1>Featured internships this week</h1>
	<div class="job-card"><h3><a href="/internships/acme/backend-intern">Backend Intern</a></h3>
	<div class="company-name">Acme Corp</div>
	<p>Hand-picked roles from our partners. Apply before the deadline to join the team.</p></div>
	</body></html>`
	r := publicPortal().Page("/featured", featured)
	hs := newHarness(testConfig("/internships", "/featured"), r, nil)

	summary, err := hs.h.RunHarvestCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/internships", "/featured"}, summary.PathsVisited)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 0, summary.Incomplete)
	require.Len(t, hs.jobs.All(), 2)
	for _, rec := range hs.jobs.All() {
		assert.NotEqual(t, "https://portal.example.org/featured", rec.SourceURL)
		assert.NotEqual(t, "Featured internships this week", rec.Title)
	}
}

func TestRunHarvestCycle_NearDuplicateUnderNewURL(t *testing.T) {
	const description = "Join our platform team to build internal APIs in Go and Postgres that serve millions of requests a day. " +
		"You will write integration tests, review pull requests with senior engineers, take part in on-call shadowing, " +
		"and help migrate legacy batch jobs to event-driven services running on Kubernetes in our Hanoi office."
	listing := func(href string) string {
		return `<html><body><div class="job-card"><h3><a href="` + href + `">Backend Intern</a></h3></div></body></html>`
	}

	r := browsertest.New().
		Page("/internships", listing("/internships/acme/backend-intern")).
		Page("/internships/acme/backend-intern", postingPage("Backend Engineering Intern", "Acme Corp", description))
	hs := newHarness(testConfig("/internships"), r, nil)
	ctx := context.Background()

	first, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)

	//reposted under a new slug and title, description cut short
	r.Page("/internships", listing("/internships/acme/go-backend-intern-2025")).
		Page("/internships/acme/go-backend-intern-2025", postingPage("Go Backend Intern (2025 intake)", "Acme Corp",
			description[:len(description)-40]))

	second, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.JobsFound)
	assert.Len(t, hs.jobs.All(), 1)
}

func TestRunHarvestCycle_FeedListing(t *testing.T) {
	r := browsertest.New().Page("/api/internships", feedListing)
	hs := newHarness(testConfig("/api/internships"), r, nil)
	ctx := context.Background()

	summary, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	for _, rec := range hs.jobs.All() {
		assert.Empty(t, rec.ExternalID)
		assert.Equal(t, "https://portal.example.org/api/internships", rec.SourceURL)
	}

	//no ids: the repeat is caught by title and company
	again, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 2, again.Skipped)
}

func TestRunHarvestCycle_FollowsNavigation(t *testing.T) {
	home := `<html><body><nav><a href="/internships">Internships</a><a href="/profile">Profile</a><a href="/logout">Log out</a></nav>
	<p>Welcome back.</p></body></html>`
	r := publicPortal().Page("/home", home)
	hs := newHarness(testConfig("/home"), r, nil)

	summary, err := hs.h.RunHarvestCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Discovered)
	assert.Equal(t, 2, summary.Inserted)
	assert.Contains(t, r.Visits(), "https://portal.example.org/internships")
}

func TestRunHarvestCycle_LaunchFailureIsHard(t *testing.T) {
	hs := newHarness(testConfig("/internships"), publicPortal(), nil)
	hs.launcher.Err = errors.New("chromium not installed")

	summary, err := hs.h.RunHarvestCycle(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeHard))
	assert.Empty(t, hs.r.Visits())
}

func TestRunHarvestCycle_AuthFailureDegrades(t *testing.T) {
	cfg := testConfig("/dashboard/internships", "/internships")
	r := publicPortal().Page("/login", loginPage)
	r.Handle("/dashboard/internships", func([]models.Cookie) (string, string) { return "", "/login" })
	r.OnClick = func(r *browsertest.Renderer, _ string) error {
		r.Show("https://portal.example.org/login?error=1", loginPage)
		return nil
	}
	hs := newHarness(cfg, r, nil)

	summary, err := hs.h.RunHarvestCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, summary.Authenticated)
	assert.Equal(t, 2, summary.Inserted, "public path still harvested")
	assert.Equal(t, []string{"/internships"}, summary.PathsVisited)
	assert.Len(t, r.Clicks(), 1, "login is not retried within the cycle")

	auth := 0
	for _, e := range summary.Errors {
		if strings.Contains(e, "AUTH_FAILURE") {
			auth++
		}
	}
	assert.GreaterOrEqual(t, auth, 1)
}

func TestRunHarvestCycle_LoginRedirectRetriesOnce(t *testing.T) {
	cfg := testConfig("/dashboard/internships")
	st := state.NewMemoryStore()
	require.NoError(t, st.SaveSession(context.Background(), &models.SessionState{
		Authenticated: true,
		Cookies:       []models.Cookie{{Name: "sid", Value: "revoked", Domain: "portal.example.org", Path: "/"}},
		LastLoginAt:   now.Add(-10 * time.Minute),
	}))

	r := browsertest.New().
		Page("/login", loginPage).
		Page("/dashboard/internships/initech/qa-intern", postingPage("QA Automation Intern", "Initech",
			"Write automated tests for the billing platform and triage nightly failures."))
	r.Handle("/dashboard/internships", func(cookies []models.Cookie) (string, string) {
		for _, c := range cookies {
			if c.Name == "sid" && c.Value == "fresh" {
				return `<html><body><h3><a href="/dashboard/internships/initech/qa-intern">QA Intern</a></h3></body></html>`, ""
			}
		}
		return "", "/login"
	})
	r.OnClick = func(r *browsertest.Renderer, _ string) error {
		r.AddCookie(models.Cookie{Name: "sid", Value: "fresh", Domain: "portal.example.org", Path: "/"})
		r.Show("https://portal.example.org/dashboard", dashboardPage)
		return nil
	}
	hs := newHarness(cfg, r, st)
	ctx := context.Background()

	summary, err := hs.h.RunHarvestCycle(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Authenticated)
	assert.Equal(t, 1, summary.Inserted)
	assert.Empty(t, summary.Errors)
	assert.Len(t, r.Clicks(), 1)
	assert.Contains(t, r.Visits(), "https://portal.example.org/login")

	s := hs.sessions.State(ctx)
	assert.True(t, s.Authenticated)
	assert.Equal(t, now, s.LastLoginAt)
}

type blockingLauncher struct {
	started chan struct{}
	release chan struct{}
	r       browser.Renderer
}

func (b *blockingLauncher) Launch(ctx context.Context) (browser.Renderer, error) {
	close(b.started)
	<-b.release
	return b.r, nil
}

func TestRunHarvestCycle_RejectsOverlap(t *testing.T) {
	hs := newHarness(testConfig("/internships"), publicPortal(), nil)
	bl := &blockingLauncher{started: make(chan struct{}), release: make(chan struct{}), r: hs.r}
	hs.h.deps.Launcher = bl

	done := make(chan error, 1)
	go func() {
		_, err := hs.h.RunHarvestCycle(context.Background())
		done <- err
	}()
	<-bl.started

	_, err := hs.h.RunHarvestCycle(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(bl.release)
	require.NoError(t, <-done)
}
