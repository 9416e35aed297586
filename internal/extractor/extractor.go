// Package extractor pulls posting fields out of pages with unknown markup.
// Each page goes through, in order: API-shaped JSON, JSON-LD JobPosting,
// DOM selector lists, and finally a plain-text fallback. Later stages only
// fill fields the earlier ones left empty.
package extractor

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/textnorm"

	"github.com/PuerkitoBio/goquery"
)

const maxDescriptionRunes = 8000

type Options struct {
	MinTitle       int
	MinCompany     int
	MinDescription int
}

func DefaultOptions() Options {
	return Options{MinTitle: 3, MinCompany: 2, MinDescription: 20}
}

type Extractor struct {
	opts Options
	log  logger.Logger
}

func New(opts Options, log logger.Logger) *Extractor {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	return &Extractor{opts: opts, log: log.With(logger.String("component", "extractor"))}
}

// Extract returns the posting on a detail page, or nil when title, company
// or description could not be found.
func (e *Extractor) Extract(html, sourceURL string) *models.RawPosting {
	all := e.ExtractAll(html, sourceURL)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// ExtractAll is Extract for pages that may carry several postings, such as
// JSON API responses. Incomplete postings are dropped.
func (e *Extractor) ExtractAll(html, sourceURL string) []*models.RawPosting {
	if items, ok := apiPayload(html); ok {
		var out []*models.RawPosting
		for _, item := range items {
			p := fromAPIItem(item, sourceURL)
			e.finish(p, "")
			if e.Complete(p) {
				out = append(out, p)
			}
		}
		e.log.Debug("API payload", logger.String("url", sourceURL), logger.Int("items", len(items)), logger.Int("complete", len(out)))
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Warn("Could not parse posting page", logger.String("url", sourceURL), logger.Error(err))
		return nil
	}

	p := fromJSONLD(doc)
	origin := models.OriginJSONLD
	if p == nil {
		p = &models.RawPosting{}
		origin = models.OriginDOM
	}
	merge(p, fromDOM(doc))
	if !e.Complete(p) && merge(p, fromText(doc)) && origin == models.OriginDOM {
		origin = models.OriginText
	}
	p.Origin = origin
	e.finish(p, sourceURL)

	if !e.Complete(p) {
		e.log.Debug("Extraction incomplete",
			logger.String("url", sourceURL),
			logger.Bool("title", p.Title != ""),
			logger.Bool("company", p.Company != ""),
			logger.Bool("description", p.Description != ""))
		return nil
	}
	return []*models.RawPosting{p}
}

// Complete reports whether the three required fields meet their minimum lengths.
func (e *Extractor) Complete(p *models.RawPosting) bool {
	if p == nil {
		return false
	}
	return utf8.RuneCountInString(p.Title) >= e.opts.MinTitle &&
		utf8.RuneCountInString(p.Company) >= e.opts.MinCompany &&
		utf8.RuneCountInString(p.Description) >= e.opts.MinDescription
}

// finish collapses whitespace and derives source URL and external id.
// Markup and unsafe fragments are left in place for the validator to see.
// An empty pageURL means the page is a listing and ids come only from the
// posting itself.
func (e *Extractor) finish(p *models.RawPosting, pageURL string) {
	p.Title = textnorm.CollapseWhitespace(p.Title)
	p.Company = textnorm.CollapseWhitespace(p.Company)
	p.Location = textnorm.CollapseWhitespace(p.Location)
	p.Description = textnorm.Truncate(textnorm.CollapseWhitespace(p.Description), maxDescriptionRunes)
	p.Requirements = tidyList(p.Requirements)
	p.Responsibilities = tidyList(p.Responsibilities)
	p.Benefits = tidyList(p.Benefits)
	p.Skills = tidyList(p.Skills)
	p.ContactEmail = strings.ToLower(strings.TrimSpace(p.ContactEmail))
	p.ContactPhone = strings.TrimSpace(p.ContactPhone)

	if p.SourceURL == "" {
		p.SourceURL = pageURL
	}
	if p.ExternalID == "" && p.SourceURL != "" {
		p.ExternalID = ExternalIDFromURL(p.SourceURL)
	}
}

func tidyList(items []string) []string {
	var out []string
	for _, it := range items {
		if c := textnorm.CollapseWhitespace(it); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// merge fills empty fields of dst from src and reports whether anything changed.
func merge(dst, src *models.RawPosting) bool {
	if src == nil {
		return false
	}
	changed := false
	str := func(d *string, s string) {
		if strings.TrimSpace(*d) == "" && strings.TrimSpace(s) != "" {
			*d = s
			changed = true
		}
	}
	list := func(d *[]string, s []string) {
		if len(*d) == 0 && len(s) > 0 {
			*d = s
			changed = true
		}
	}
	str(&dst.Title, src.Title)
	str(&dst.Company, src.Company)
	str(&dst.Location, src.Location)
	str(&dst.Description, src.Description)
	str(&dst.ContactEmail, src.ContactEmail)
	str(&dst.ContactPhone, src.ContactPhone)
	str(&dst.ExternalID, src.ExternalID)
	str(&dst.SourceURL, src.SourceURL)
	list(&dst.Requirements, src.Requirements)
	list(&dst.Responsibilities, src.Responsibilities)
	list(&dst.Benefits, src.Benefits)
	list(&dst.Skills, src.Skills)
	if dst.ApplicationDeadline == nil && src.ApplicationDeadline != nil {
		dst.ApplicationDeadline = src.ApplicationDeadline
		changed = true
	}
	if dst.PostedDate == nil && src.PostedDate != nil {
		dst.PostedDate = src.PostedDate
		changed = true
	}
	return changed
}

var idParam = []string{"id", "jobId", "job_id", "jobid", "postingId", "posting_id", "vacancyId"}

// ExternalIDFromURL uses an id query parameter when present, else the last
// path segment.
func ExternalIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range idParam {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" {
		return ""
	}
	return last
}
