package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	postingSection = regexp.MustCompile(`(?i)^(jobs?|internships?|vacanc(y|ies)|careers?|opportunit(y|ies)|positions?|openings?|postings?)$`)
	excludedPath   = regexp.MustCompile(`(?i)/(login|logout|signin|sign-in|signup|sign-up|register|auth|oauth|password|static|assets|images?|img|css|js|fonts?|media|policy|privacy|terms|cookies?|help|faq|about|contact|support)(/|$|\?)|\.(css|js|png|jpe?g|gif|svg|ico|pdf|zip|woff2?)$`)
	slugSegment    = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}_-]*$`)
	sectionKeyword = regexp.MustCompile(`(?i)\b(jobs?|internships?|vacanc(y|ies)|careers?|opportunit(y|ies)|positions?|openings?)\b`)
)

// genericSegments are listing, filter and paging words that never identify
// a single posting.
var genericSegments = map[string]struct{}{
	"index": {}, "list": {}, "listing": {}, "listings": {}, "search": {}, "all": {},
	"page": {}, "category": {}, "categories": {}, "filter": {}, "browse": {},
	"latest": {}, "home": {}, "new": {}, "recent": {}, "featured": {}, "popular": {},
}

// IsPostingLink reports whether raw looks like a single posting: a job
// section segment, no auth/static/policy segment, at least three path
// segments, and two adjacent slug-like segments.
func IsPostingLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if excludedPath.MatchString(u.Path) {
		return false
	}

	segments := pathSegments(u.Path)
	if len(segments) < 3 {
		return false
	}

	section := -1
	for i, seg := range segments {
		if postingSection.MatchString(seg) {
			section = i
			break
		}
	}
	if section < 0 || section == len(segments)-1 {
		return false
	}

	for i := 0; i+1 < len(segments); i++ {
		if isSlugLike(segments[i]) && isSlugLike(segments[i+1]) {
			return true
		}
	}
	return false
}

func pathSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// isSlugLike: letters/digits with - or _, at least 2 characters, not a
// generic listing word and not the job section word itself.
func isSlugLike(seg string) bool {
	if len([]rune(seg)) < 2 || !slugSegment.MatchString(seg) {
		return false
	}
	lower := strings.ToLower(seg)
	if _, generic := genericSegments[lower]; generic {
		return false
	}
	return !postingSection.MatchString(lower)
}
