package extractor

import (
	"testing"
	"time"

	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor() *Extractor {
	return New(DefaultOptions(), logger.NewNop())
}

func day(t *testing.T, got *time.Time, y int, m time.Month, d int) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, y, got.Year())
	assert.Equal(t, m, got.Month())
	assert.Equal(t, d, got.Day())
}

func TestExtract_DOM(t *testing.T) {
	html := `<html><head><title>Backend Intern | Portal</title></head><body>
	<nav><a href="/">Home</a></nav>
	<main>
		<h1 class="job-title">Backend Engineering Intern</h1>
		<div class="company-name">Acme Corp</div>
		<span class="location">Hanoi</span>
		<div class="job-description"><p>Join our platform team to build APIs in Go and Postgres for millions of users.</p></div>
		<h3>Requirements</h3>
		<ul><li>Go basics</li><li>SQL</li></ul>
		<h3>Benefits</h3>
		<ul><li>Monthly stipend</li></ul>
		<p>Deadline: 30/06/2025</p>
		<a href="mailto:HR@Acme.example?subject=Intern">Email us</a>
	</main></body></html>`

	p := newExtractor().Extract(html, "https://portal.example.org/internships/acme/backend-intern")
	require.NotNil(t, p)

	assert.Equal(t, "Backend Engineering Intern", p.Title)
	assert.Equal(t, "Acme Corp", p.Company)
	assert.Equal(t, "Hanoi", p.Location)
	assert.Equal(t, "Join our platform team to build APIs in Go and Postgres for millions of users.", p.Description)
	assert.Equal(t, []string{"Go basics", "SQL"}, p.Requirements)
	assert.Equal(t, []string{"Monthly stipend"}, p.Benefits)
	assert.Equal(t, "hr@acme.example", p.ContactEmail)
	day(t, p.ApplicationDeadline, 2025, time.June, 30)
	assert.Equal(t, "backend-intern", p.ExternalID)
	assert.Equal(t, "https://portal.example.org/internships/acme/backend-intern", p.SourceURL)
	assert.Equal(t, models.OriginDOM, p.Origin)
}

func TestExtract_JSONLD(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@context":"https://schema.org","@graph":[
		{"@type":"Organization","name":"Portal"},
		{"@type":"JobPosting","title":"Data Analyst Intern",
		 "hiringOrganization":{"@type":"Organization","name":"Globex"},
		 "jobLocation":{"@type":"Place","address":{"addressLocality":"Da Nang","addressCountry":"VN"}},
		 "description":"<p>Analyse <b>sales</b> data and build weekly dashboards for the team.</p>",
		 "datePosted":"2025-05-01","validThrough":"2025-06-15T23:59:00+07:00",
		 "identifier":{"value":"GX-42"}}
	]}
	</script></head><body><p>Loading</p></body></html>`

	p := newExtractor().Extract(html, "https://portal.example.org/jobs/globex/data-analyst-intern")
	require.NotNil(t, p)

	assert.Equal(t, "Data Analyst Intern", p.Title)
	assert.Equal(t, "Globex", p.Company)
	assert.Equal(t, "Da Nang, VN", p.Location)
	assert.Contains(t, p.Description, "weekly dashboards")
	assert.Equal(t, "GX-42", p.ExternalID)
	day(t, p.PostedDate, 2025, time.May, 1)
	day(t, p.ApplicationDeadline, 2025, time.June, 15)
	assert.Equal(t, models.OriginJSONLD, p.Origin)
}

func TestExtractAll_APIPayload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTitle []string
		wantID    []string
		wantURL   []string
	}{
		{
			name: "root array drops incomplete items",
			body: `[{"id":101,"title":"QA Intern","company":{"name":"Initech"},
				"description":"Write automated tests for the billing platform.",
				"url":"/internships/initech/qa-intern","deadline":"2025-07-01"},
				{"id":102,"title":"Nameless"}]`,
			wantTitle: []string{"QA Intern"},
			wantID:    []string{"101"},
			wantURL:   []string{"https://portal.example.org/internships/initech/qa-intern"},
		},
		{
			name: "results wrapper rendered in pre",
			body: `<html><head></head><body><pre>{"count":1,"results":[{"job_title":"ML Intern","company_name":"Hooli",
				"job_description":"Train ranking models on anonymised search logs."}]}</pre></body></html>`,
			wantTitle: []string{"ML Intern"},
			wantID:    []string{""},
			wantURL:   []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newExtractor().ExtractAll(tt.body, "https://portal.example.org/api/internships")
			require.Len(t, got, len(tt.wantTitle))
			for i, p := range got {
				assert.Equal(t, tt.wantTitle[i], p.Title)
				assert.Equal(t, tt.wantID[i], p.ExternalID)
				assert.Equal(t, tt.wantURL[i], p.SourceURL)
				assert.Equal(t, models.OriginAPI, p.Origin)
			}
		})
	}
}

func TestExtract_TextFallback(t *testing.T) {
	html := `<html><body><div>
		<p>Globex Labs is hiring!</p>
		<p>Position: Research Assistant Intern</p>
		<p>Support the research team with literature reviews and data cleaning for ongoing studies.</p>
		<p>Application deadline: 15 July 2025</p>
		<p>Send your CV to jobs@globex.example</p>
	</div></body></html>`

	p := newExtractor().Extract(html, "https://portal.example.org/opportunities/globex/research-assistant")
	require.NotNil(t, p)

	assert.Equal(t, "Research Assistant Intern", p.Title)
	assert.Equal(t, "Globex Labs", p.Company)
	assert.Contains(t, p.Description, "literature reviews")
	assert.Equal(t, "jobs@globex.example", p.ContactEmail)
	day(t, p.ApplicationDeadline, 2025, time.July, 15)
	assert.Equal(t, models.OriginText, p.Origin)
}

func TestExtract_IncompleteReturnsNil(t *testing.T) {
	html := `<html><body><h1>Welcome</h1><p>Sign up today.</p></body></html>`
	assert.Nil(t, newExtractor().Extract(html, "https://portal.example.org/jobs/acme/welcome"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"30/06/2025", "2025-06-30"},
		{"05.07.2025", "2025-07-05"},
		{"2025-06-30", "2025-06-30"},
		{"June 30, 2025", "2025-06-30"},
		{"1st July 2025", "2025-07-01"},
		{"not a date", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDate(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestExternalIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://portal.example.org/jobs/acme/intern?id=77", "77"},
		{"https://portal.example.org/jobs/view?jobId=abc-1", "abc-1"},
		{"https://portal.example.org/jobs/acme/backend-intern/", "backend-intern"},
		{"https://portal.example.org/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ExternalIDFromURL(tt.url))
		})
	}
}
