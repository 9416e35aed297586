package extractor

import (
	"regexp"
	"strings"

	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

// FieldExtractor returns a field value from the page, or "" when its
// selector or pattern does not apply.
type FieldExtractor func(doc *goquery.Document) string

// Ordered candidates per field; the first non-empty result wins.
var (
	titleExtractors = []FieldExtractor{
		bySelector(`[itemprop="title"]`),
		bySelector(`.job-title, .jobTitle, .posting-title, .vacancy-title, [class*="job-title"], [class*="jobtitle"], [class*="position-title"], [data-testid*="title"]`),
		bySelector("main h1, article h1"),
		bySelector("h1"),
		byAttr(`meta[property="og:title"]`, "content"),
		byLabel(`(?i)^(?:job\s+title|position|role|vacancy)\s*[:\-–]\s*(.{3,120})$`),
		bySelector("title"),
	}

	companyExtractors = []FieldExtractor{
		bySelector(`[itemprop="hiringOrganization"] [itemprop="name"]`),
		bySelector(`[itemprop="hiringOrganization"]`),
		bySelector(`.company-name, .companyName, .employer-name, .organization-name, [class*="company-name"], [class*="companyName"], [class*="employer"], [class*="organisation"], [class*="organization"]`),
		bySelector(`.company, [class*="company"] a, [data-testid*="company"]`),
		byLabel(`(?i)^(?:company|employer|organi[sz]ation|host\s+organi[sz]ation|firm)\s*[:\-–]\s*(.{2,120})$`),
	}

	locationExtractors = []FieldExtractor{
		bySelector(`[itemprop="jobLocation"] [itemprop="addressLocality"]`),
		bySelector(`[itemprop="jobLocation"]`),
		bySelector(`.location, .job-location, [class*="location"], [data-testid*="location"]`),
		byLabel(`(?i)^(?:location|city|based\s+in|work\s+location)\s*[:\-–]\s*(.{2,120})$`),
	}

	descriptionExtractors = []FieldExtractor{
		bySelector(`[itemprop="description"]`),
		bySelector(`.job-description, .jobDescription, .posting-description, [class*="job-description"], [class*="jobDescription"], [class*="description"]`),
		bySelector(`.job-details, .job-detail, [class*="job-detail"], [class*="details"], [class*="content"]`),
		bySelector("article"),
		bySelector("main"),
		byAttr(`meta[name="description"]`, "content"),
	}
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{2,4}[\s.-]\d{3,4}[\s.-]\d{3,4}`)

	requirementHeading    = regexp.MustCompile(`(?i)\b(requirements?|qualifications?|who\s+you\s+are|what\s+we('re|\s+are)\s+looking\s+for|eligibility)\b`)
	responsibilityHeading = regexp.MustCompile(`(?i)\b(responsibilit(y|ies)|duties|what\s+you('ll|\s+will)\s+do|role\s+overview|tasks)\b`)
	benefitHeading        = regexp.MustCompile(`(?i)\b(benefits?|perks|what\s+we\s+offer|stipend|compensation)\b`)
	skillHeading          = regexp.MustCompile(`(?i)\b(skills?|tech(nology)?\s+stack|tools)\b`)

	deadlineLabel = regexp.MustCompile(`(?i)\b(deadline|closing\s+date|apply\s+(by|before)|applications?\s+close|valid\s+(until|through)|last\s+date)\b`)
	postedLabel   = regexp.MustCompile(`(?i)\b(posted|published|date\s+posted|listed)\b`)
)

func bySelector(sel string) FieldExtractor {
	return func(doc *goquery.Document) string {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(nodeText(s))
			return out == ""
		})
		return out
	}
}

func byAttr(sel, attr string) FieldExtractor {
	return func(doc *goquery.Document) string {
		v, _ := doc.Find(sel).First().Attr(attr)
		return strings.TrimSpace(v)
	}
}

// byLabel matches "Label: value" lines in the page text.
func byLabel(pattern string) FieldExtractor {
	re := regexp.MustCompile(pattern)
	return func(doc *goquery.Document) string {
		for _, line := range textLines(doc) {
			if m := re.FindStringSubmatch(line); m != nil {
				return strings.TrimSpace(m[1])
			}
		}
		return ""
	}
}

func firstOf(doc *goquery.Document, extractors []FieldExtractor) string {
	for _, extract := range extractors {
		if v := extract(doc); v != "" {
			return v
		}
	}
	return ""
}

// nodeText is the selection's text with script and style bodies skipped.
func nodeText(s *goquery.Selection) string {
	return textnorm.BlockText(s)
}

func fromDOM(doc *goquery.Document) *models.RawPosting {
	p := &models.RawPosting{
		Title:       firstOf(doc, titleExtractors),
		Company:     firstOf(doc, companyExtractors),
		Location:    firstOf(doc, locationExtractors),
		Description: firstOf(doc, descriptionExtractors),
	}

	p.Requirements = sectionItems(doc, requirementHeading)
	p.Responsibilities = sectionItems(doc, responsibilityHeading)
	p.Benefits = sectionItems(doc, benefitHeading)
	p.Skills = sectionItems(doc, skillHeading)
	if len(p.Skills) == 0 {
		doc.Find(`[class*="skill"] li, [class*="skill"] .tag, [class*="tags"] .tag, [class*="tag-list"] li`).Each(func(_ int, s *goquery.Selection) {
			p.Skills = append(p.Skills, s.Text())
		})
	}

	if href, ok := doc.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		p.ContactEmail = strings.SplitN(strings.TrimPrefix(href, "mailto:"), "?", 2)[0]
	}
	if href, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		p.ContactPhone = strings.TrimPrefix(href, "tel:")
	}

	lines := textLines(doc)
	body := strings.Join(lines, "\n")
	if p.ContactEmail == "" {
		p.ContactEmail = emailPattern.FindString(body)
	}
	if p.ContactPhone == "" {
		p.ContactPhone = phonePattern.FindString(body)
	}

	if v, ok := doc.Find(`[itemprop="validThrough"]`).First().Attr("content"); ok {
		p.ApplicationDeadline = ParseDate(v)
	}
	if v, ok := doc.Find(`[itemprop="datePosted"]`).First().Attr("content"); ok {
		p.PostedDate = ParseDate(v)
	}
	if p.ApplicationDeadline == nil {
		p.ApplicationDeadline = labeledDate(lines, deadlineLabel)
	}
	if p.PostedDate == nil {
		if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			p.PostedDate = ParseDate(v)
		}
	}
	if p.PostedDate == nil {
		p.PostedDate = labeledDate(lines, postedLabel)
	}
	return p
}

// sectionItems collects list items under the first heading matching re.
func sectionItems(doc *goquery.Document, re *regexp.Regexp) []string {
	var items []string
	doc.Find("h2, h3, h4, h5, strong, b, dt, p > strong, .section-title").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		text := strings.TrimSpace(h.Text())
		if len(text) > 80 || !re.MatchString(text) {
			return true
		}
		list := h.NextAllFiltered("ul, ol").First()
		if list.Length() == 0 {
			list = h.Parent().NextAllFiltered("ul, ol").First()
		}
		if list.Length() == 0 && h.Is("dt") {
			list = h.NextFiltered("dd")
			list.Each(func(_ int, dd *goquery.Selection) {
				items = append(items, dd.Text())
			})
			return len(items) == 0
		}
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			items = append(items, li.Text())
		})
		return len(items) == 0
	})
	return items
}

// textLines flattens the page body to non-empty lines.
func textLines(doc *goquery.Document) []string {
	return textnorm.Lines(doc.Find("body"))
}
