package discovery

import (
	"testing"

	"go-portal-harvester/internal/logger"

	"github.com/stretchr/testify/assert"
)

func TestIsPostingLink(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"internship slug", "https://portal.example.org/internships/acme-corp/backend-intern", true},
		{"numeric id then slug", "https://portal.example.org/jobs/48213/data-analyst", true},
		{"nested under locale", "https://portal.example.org/en/careers/acme/frontend-developer", true},
		{"too few segments", "https://portal.example.org/jobs/data-analyst", false},
		{"listing page", "https://portal.example.org/jobs/search/page", false},
		{"no job section", "https://portal.example.org/blog/acme/how-to-apply", false},
		{"auth path", "https://portal.example.org/auth/jobs/acme/intern", false},
		{"static asset", "https://portal.example.org/jobs/acme/logo.png", false},
		{"policy page", "https://portal.example.org/jobs/privacy/acme-policy", false},
		{"section is last", "https://portal.example.org/acme/team/jobs", false},
		{"single char segments", "https://portal.example.org/jobs/a/b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPostingLink(tt.url))
		})
	}
}

func TestDiscover_Heuristics(t *testing.T) {
	html := `<html><body>
	<h3><a href="/internships/acme/backend-intern">Backend Intern</a></h3>
	<div class="job-card"><a href="/internships/globex/data-intern">Data Intern</a></div>
	<div class="job-card"><a href="/internships/acme/backend-intern#apply">Apply</a></div>
	<table><tr data-href="/internships/initech/qa-intern"><td>QA Intern</td></tr></table>
	<div onclick="window.location.href='/internships/umbrella/lab-assistant'">Lab Assistant</div>
	<p>Also open: https://portal.example.org/internships/hooli/ml-intern</p>
	<a href="https://other.example.com/internships/acme/remote-intern">External</a>
	<a href="/login">Sign in</a>
	<a href="/internships?page=2">Next</a>
	</body></html>`

	links := New(logger.NewNop()).Discover(html, "https://portal.example.org/internships")

	assert.Equal(t, []string{
		"https://portal.example.org/internships/acme/backend-intern",
		"https://portal.example.org/internships/globex/data-intern",
		"https://portal.example.org/internships/initech/qa-intern",
		"https://portal.example.org/internships/umbrella/lab-assistant",
		"https://portal.example.org/internships/hooli/ml-intern",
	}, links.Postings)
	assert.Empty(t, links.Navigation)
}

func TestDiscover_NavigationFallback(t *testing.T) {
	html := `<html><body>
	<nav>
		<a href="/dashboard">Dashboard</a>
		<a href="/dashboard/opportunities">Browse Opportunities</a>
		<a href="/dashboard/internships">Internships</a>
		<a href="/help">Help</a>
		<a href="/logout">Log out</a>
	</nav>
	<p>Welcome back!</p>
	</body></html>`

	links := New(logger.NewNop()).Discover(html, "https://portal.example.org/dashboard")

	assert.Empty(t, links.Postings)
	assert.Equal(t, []string{
		"https://portal.example.org/dashboard/opportunities",
		"https://portal.example.org/dashboard/internships",
	}, links.Navigation)
}

func TestDiscover_NoNavigationWhenAnonymous(t *testing.T) {
	html := `<nav><a href="/internships">Internships</a><a href="/login">Log in</a></nav>`

	links := New(logger.NewNop()).Discover(html, "https://portal.example.org/")
	assert.Empty(t, links.Postings)
	assert.Empty(t, links.Navigation)
}

func TestDiscover_Idempotent(t *testing.T) {
	html := `<li><a href="/jobs/acme/intern-1">A</a></li><li><a href="/jobs/acme/intern-2">B</a></li>`
	d := New(logger.NewNop())

	first := d.Discover(html, "https://portal.example.org/jobs")
	second := d.Discover(html, "https://portal.example.org/jobs")
	assert.Equal(t, first, second)
	assert.Len(t, first.Postings, 2)
}
