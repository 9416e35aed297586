// Package authsignal guesses from rendered HTML whether the visitor is logged in.
package authsignal

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Signal int

const (
	Unknown Signal = iota
	Authenticated
	NotAuthenticated
)

func (s Signal) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case NotAuthenticated:
		return "not_authenticated"
	default:
		return "unknown"
	}
}

var (
	authedText    = regexp.MustCompile(`(?i)\b(log\s?out|sign\s?out|my\s+(profile|account|dashboard|applications)|dashboard|welcome\s+back)\b`)
	authedHref    = regexp.MustCompile(`(?i)/(logout|signout|sign-out|log-out|profile|account|dashboard|my-applications)\b`)
	loginText     = regexp.MustCompile(`(?i)\b(log\s?in|sign\s?in|forgot\s+password)\b`)
	registerText  = regexp.MustCompile(`(?i)\b(register|sign\s?up|create\s+(an\s+)?account|join\s+now)\b`)
	loginURLMatch = regexp.MustCompile(`(?i)/(login|signin|sign-in|auth/login|account/login)\b`)
)

const nameInputs = `input[name="name"], input[name*="fullname"], input[name*="full_name"], input[name*="fullName"], input[name*="first_name"], input[name*="firstName"]`

// Classify inspects a page. A visible password field wins over account
// links since login pages often carry both in their header.
func Classify(html string) Signal {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Unknown
	}
	return ClassifyDocument(doc)
}

func ClassifyDocument(doc *goquery.Document) Signal {
	if doc.Find(`input[type="password"]`).Length() > 0 {
		return NotAuthenticated
	}

	if HasAuthenticatedMarkers(doc) {
		return Authenticated
	}

	loginForm := false
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		if loginURLMatch.MatchString(action) || loginText.MatchString(s.Text()) {
			loginForm = true
			return false
		}
		return true
	})
	if loginForm {
		return NotAuthenticated
	}
	return Unknown
}

// HasAuthenticatedMarkers reports whether the page shows account or logout
// controls, regardless of other content.
func HasAuthenticatedMarkers(doc *goquery.Document) bool {
	found := false
	doc.Find("a, button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		accountLink := authedHref.MatchString(href) && !loginURLMatch.MatchString(href) && !registerText.MatchString(href)
		if accountLink || authedText.MatchString(s.Text()) {
			found = true
			return false
		}
		return true
	})
	return found
}

// LooksLikeRegistration reports a sign-up form: register-labelled controls
// plus more than one password field or a name input.
func LooksLikeRegistration(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	labelled := false
	doc.Find(`button, input[type="submit"], h1, h2, legend`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if v, ok := s.Attr("value"); ok {
			text += " " + v
		}
		if registerText.MatchString(text) {
			labelled = true
			return false
		}
		return true
	})
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		action, _ := s.Attr("action")
		if registerText.MatchString(id + " " + action) {
			labelled = true
			return false
		}
		return true
	})
	if !labelled {
		return false
	}

	passwords := doc.Find(`input[type="password"]`).Length()
	names := doc.Find(nameInputs).Length()
	return passwords > 1 || names > 0
}

// IsLoginURL reports whether raw points at a login page. loginPath is the
// configured login path and is checked in addition to common patterns.
func IsLoginURL(raw, loginPath string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if loginPath != "" && strings.TrimRight(u.Path, "/") == strings.TrimRight(loginPath, "/") {
		return true
	}
	return loginURLMatch.MatchString(u.Path)
}
