package extractor

import (
	"strings"

	"go-portal-harvester/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Field aliases seen across listing APIs. gjson paths, first match wins.
var (
	titleKeys       = []string{"title", "job_title", "jobTitle", "position", "name"}
	companyKeys     = []string{"company.name", "employer.name", "company_name", "companyName", "employer", "organization", "company"}
	descriptionKeys = []string{"description", "job_description", "jobDescription", "details", "summary", "body"}
	locationKeys    = []string{"location.name", "location", "city"}
	idKeys          = []string{"id", "job_id", "jobId", "uuid", "slug"}
	urlKeys         = []string{"url", "link", "apply_url", "permalink"}
	deadlineKeys    = []string{"deadline", "application_deadline", "closing_date", "expires_at", "validThrough"}
	postedKeys      = []string{"posted_at", "created_at", "published_at", "datePosted", "posted_date"}

	listKeys = []string{"results", "jobs", "data", "items", "data.results", "data.jobs", "data.items"}
)

// apiPayload recognises a JSON response body, either raw or wrapped in the
// <pre> a browser renders for application/json. It returns the posting items
// it carries.
func apiPayload(html string) ([]gjson.Result, bool) {
	body := strings.TrimSpace(html)
	if !gjson.Valid(body) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, false
		}
		pre := doc.Find("body > pre")
		if pre.Length() != 1 {
			return nil, false
		}
		body = strings.TrimSpace(pre.Text())
		if !gjson.Valid(body) {
			return nil, false
		}
	}

	root := gjson.Parse(body)
	if root.IsArray() {
		return objects(root), true
	}
	if !root.IsObject() {
		return nil, false
	}
	for _, key := range listKeys {
		if v := root.Get(key); v.IsArray() {
			return objects(v), true
		}
	}
	if firstString(root, titleKeys) != "" {
		return []gjson.Result{root}, true
	}
	return nil, false
}

func objects(arr gjson.Result) []gjson.Result {
	var out []gjson.Result
	for _, item := range arr.Array() {
		if item.IsObject() {
			out = append(out, item)
		}
	}
	return out
}

func fromAPIItem(item gjson.Result, sourceURL string) *models.RawPosting {
	p := &models.RawPosting{
		Title:            firstString(item, titleKeys),
		Company:          firstString(item, companyKeys),
		Description:      firstString(item, descriptionKeys),
		Location:         firstString(item, locationKeys),
		ExternalID:       firstString(item, idKeys),
		SourceURL:        firstString(item, urlKeys),
		Requirements:     strList(item.Get("requirements")),
		Responsibilities: strList(item.Get("responsibilities")),
		Benefits:         strList(item.Get("benefits")),
		Skills:           strList(item.Get("skills")),
		ContactEmail:     firstString(item, []string{"email", "contact_email", "contact.email"}),
		ContactPhone:     firstString(item, []string{"phone", "contact_phone", "contact.phone"}),
		Origin:           models.OriginAPI,
	}
	if v := firstString(item, deadlineKeys); v != "" {
		p.ApplicationDeadline = ParseDate(v)
	}
	if v := firstString(item, postedKeys); v != "" {
		p.PostedDate = ParseDate(v)
	}
	if p.SourceURL != "" {
		p.SourceURL = resolveURL(sourceURL, p.SourceURL)
	}
	return p
}

// firstString returns the first alias holding a scalar value.
func firstString(item gjson.Result, keys []string) string {
	for _, key := range keys {
		v := item.Get(key)
		switch v.Type {
		case gjson.String, gjson.Number:
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// strList accepts either a JSON array of strings or one delimited string.
func strList(v gjson.Result) []string {
	if !v.Exists() {
		return nil
	}
	var out []string
	if v.IsArray() {
		for _, it := range v.Array() {
			if it.IsObject() {
				it = it.Get("name")
			}
			if s := strings.TrimSpace(it.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	s := v.String()
	if strings.Contains(s, "<li") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("li").Each(func(_ int, li *goquery.Selection) {
				out = append(out, li.Text())
			})
			return out
		}
	}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ';' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// fromJSONLD reads the first schema.org JobPosting block on the page.
func fromJSONLD(doc *goquery.Document) *models.RawPosting {
	var posting gjson.Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := strings.TrimSpace(s.Text())
		if !gjson.Valid(body) {
			return true
		}
		posting = findJobPosting(gjson.Parse(body))
		return !posting.Exists()
	})
	if !posting.Exists() {
		return nil
	}

	p := &models.RawPosting{
		Title:            posting.Get("title").String(),
		Company:          firstString(posting, []string{"hiringOrganization.name", "hiringOrganization"}),
		Location:         jsonLDLocation(posting.Get("jobLocation")),
		Description:      posting.Get("description").String(),
		ExternalID:       firstString(posting, []string{"identifier.value", "identifier"}),
		SourceURL:        posting.Get("url").String(),
		Skills:           strList(posting.Get("skills")),
		Requirements:     strList(posting.Get("qualifications")),
		Responsibilities: strList(posting.Get("responsibilities")),
		Benefits:         strList(posting.Get("jobBenefits")),
		Origin:           models.OriginJSONLD,
	}
	if v := posting.Get("datePosted").String(); v != "" {
		p.PostedDate = ParseDate(v)
	}
	if v := posting.Get("validThrough").String(); v != "" {
		p.ApplicationDeadline = ParseDate(v)
	}
	return p
}

func findJobPosting(v gjson.Result) gjson.Result {
	switch {
	case v.IsArray():
		for _, it := range v.Array() {
			if found := findJobPosting(it); found.Exists() {
				return found
			}
		}
	case v.IsObject():
		if isJobPostingType(member(v, "@type")) {
			return v
		}
		if graph := member(v, "@graph"); graph.Exists() {
			return findJobPosting(graph)
		}
	}
	return gjson.Result{}
}

// member reads a key literally; gjson treats a leading '@' in a path as a
// modifier.
func member(obj gjson.Result, key string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	return out
}

func isJobPostingType(t gjson.Result) bool {
	if t.IsArray() {
		for _, it := range t.Array() {
			if it.String() == "JobPosting" {
				return true
			}
		}
		return false
	}
	return t.String() == "JobPosting"
}

func jsonLDLocation(loc gjson.Result) string {
	if loc.IsArray() {
		loc = loc.Get("0")
	}
	if loc.Type == gjson.String {
		return loc.String()
	}
	addr := loc.Get("address")
	if addr.Type == gjson.String {
		return addr.String()
	}
	var parts []string
	for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
		v := addr.Get(key)
		if v.IsObject() {
			v = v.Get("name")
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
