package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"go-portal-harvester/internal/models"

	"github.com/PuerkitoBio/goquery"
)

var (
	roleTerm    = regexp.MustCompile(`(?i)\b(role|position|vacancy|vacancies|internship|intern|job\s+opening|opening|we\s+are\s+hiring|hiring)\b`)
	contextTerm = regexp.MustCompile(`(?i)\b(deadline|closing\s+date|apply|application|send\s+(your\s+)?(cv|resume)|contact|e-?mail)\b`)

	titleLine   = regexp.MustCompile(`(?i)^(?:role|position|vacancy|job|opening|internship)\s*[:\-–]\s*(.{3,120})$`)
	roleWord    = regexp.MustCompile(`(?i)\b(intern|internship|engineer|developer|analyst|assistant|officer|manager|designer|specialist|coordinator|associate|trainee)\b`)
	companyLine = regexp.MustCompile(`(?i)^(?:company|employer|organi[sz]ation|host)\s*[:\-–]\s*(.{2,120})$`)
	hiringBy    = regexp.MustCompile(`^([\p{Lu}][\p{L}\p{N}&.,' -]{1,80}?)\s+(?:is|are)\s+(?:hiring|seeking|looking\s+for|recruiting)\b`)
)

// fromText synthesizes a posting from unstructured page text. It only fires
// when role terms appear next to deadline, contact or application terms.
func fromText(doc *goquery.Document) *models.RawPosting {
	lines := textLines(doc)
	body := strings.Join(lines, "\n")
	if !roleTerm.MatchString(body) || !contextTerm.MatchString(body) {
		return nil
	}

	p := &models.RawPosting{Origin: models.OriginText}
	for _, line := range lines {
		if len(line) > 160 {
			continue
		}
		if p.Title == "" {
			if m := titleLine.FindStringSubmatch(line); m != nil {
				p.Title = m[1]
			}
		}
		if p.Company == "" {
			if m := companyLine.FindStringSubmatch(line); m != nil {
				p.Company = m[1]
			} else if m := hiringBy.FindStringSubmatch(line); m != nil {
				p.Company = strings.TrimSpace(m[1])
			}
		}
	}
	if p.Title == "" {
		for _, line := range lines {
			if len(line) <= 100 && roleWord.MatchString(line) && !contextTerm.MatchString(line) {
				p.Title = line
				break
			}
		}
	}

	p.Description = body
	p.ApplicationDeadline = labeledDate(lines, deadlineLabel)
	p.ContactEmail = emailPattern.FindString(body)
	p.ContactPhone = phonePattern.FindString(body)
	return p
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
