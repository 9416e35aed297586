// Package discovery finds posting links on listing pages whose markup is
// not known in advance.
package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"go-portal-harvester/internal/authsignal"
	"go-portal-harvester/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

// Links are the URLs found on one listing page, in discovery order.
type Links struct {
	Postings []string
	//Navigation is only filled when no postings were found on an
	//authenticated page; it points at listing sections worth a visit
	Navigation []string
}

type heuristic struct {
	name string
	find func(doc *goquery.Document) []string
}

type Discoverer struct {
	log        logger.Logger
	heuristics []heuristic
}

func New(log logger.Logger) *Discoverer {
	return &Discoverer{
		log: log.With(logger.String("component", "discovery")),
		heuristics: []heuristic{
			{name: "heading", find: headingLinks},
			{name: "card", find: cardLinks},
			{name: "table_row", find: rowLinks},
			{name: "onclick", find: onclickLinks},
			{name: "text_url", find: textURLs},
		},
	}
}

// Discover runs every heuristic over the page. Order only decides which
// heuristic gets credit for a link in the logs; any match is accepted.
func (d *Discoverer) Discover(html, baseURL string) Links {
	var out Links
	base, err := url.Parse(baseURL)
	if err != nil {
		d.log.Warn("Invalid base URL", logger.String("url", baseURL), logger.Error(err))
		return out
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.log.Warn("Could not parse listing page", logger.String("url", baseURL), logger.Error(err))
		return out
	}

	seen := make(map[string]struct{})
	for _, h := range d.heuristics {
		found := 0
		for _, raw := range h.find(doc) {
			abs, ok := resolve(base, raw)
			if !ok {
				continue
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			if !sameHost(base, abs) || !IsPostingLink(abs) {
				continue
			}
			seen[abs] = struct{}{}
			out.Postings = append(out.Postings, abs)
			found++
		}
		if found > 0 {
			d.log.Debug("Heuristic matched", logger.String("heuristic", h.name), logger.Int("links", found))
		}
	}

	if len(out.Postings) == 0 && authsignal.HasAuthenticatedMarkers(doc) {
		out.Navigation = navigationLinks(doc, base)
		if len(out.Navigation) > 0 {
			d.log.Debug("No postings, following navigation", logger.Strings("links", out.Navigation))
		}
	}
	return out
}

var (
	headingAnchors = "h1 a[href], h2 a[href], h3 a[href], h4 a[href], h5 a[href], a[href] h2, a[href] h3, a[href] h4"
	cardAnchors    = `[class*="card"] a[href], [class*="job"] a[href], [class*="listing"] a[href], [class*="item"] a[href], li a[href], article a[href]`

	onclickURL = regexp.MustCompile(`(?:location(?:\.href)?\s*=|window\.open\(|navigate\(|href\s*=)\s*['"]([^'"]+)['"]`)
	rawURL     = regexp.MustCompile(`(?:https?://[^\s"'<>]+|/[A-Za-z0-9._~%-]+(?:/[A-Za-z0-9._~%-]+){2,})`)
)

func headingLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find(headingAnchors).Each(func(_ int, s *goquery.Selection) {
		if !s.Is("a") {
			s = s.Closest("a")
		}
		if href, ok := s.Attr("href"); ok {
			out = append(out, href)
		}
	})
	return out
}

func cardLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find(cardAnchors).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, href)
		}
	})
	return out
}

func rowLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("tr a[href], [data-href], [data-url], [data-link]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"href", "data-href", "data-url", "data-link"} {
			if v, ok := s.Attr(attr); ok && v != "" {
				out = append(out, v)
				return
			}
		}
	})
	return out
}

func onclickLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		js, _ := s.Attr("onclick")
		for _, m := range onclickURL.FindAllStringSubmatch(js, -1) {
			out = append(out, m[1])
		}
	})
	return out
}

func textURLs(doc *goquery.Document) []string {
	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	return rawURL.FindAllString(body.Text(), -1)
}

// navigationLinks collects same-host menu entries that look like job sections.
func navigationLinks(doc *goquery.Document, base *url.URL) []string {
	var out []string
	seen := make(map[string]struct{})
	doc.Find("nav a[href], header a[href], aside a[href], [role=navigation] a[href], [class*=menu] a[href], [class*=sidebar] a[href], [class*=breadcrumb] a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolve(base, href)
		if !ok || !sameHost(base, abs) {
			return
		}
		if !sectionKeyword.MatchString(s.Text()) && !sectionKeyword.MatchString(href) {
			return
		}
		if excludedPath.MatchString(abs) {
			return
		}
		if _, dup := seen[abs]; dup || abs == base.String() {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func sameHost(base *url.URL, abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www."))
}
