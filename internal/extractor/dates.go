package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	dmyDate = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	//date-looking substrings inside a labelled line
	dateFragment = regexp.MustCompile(`(?i)\d{4}-\d{2}-\d{2}(?:[T ][\d:.]+(?:Z|[+-]\d{2}:?\d{2})?)?|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{1,2}(?:st|nd|rd|th)?\s+[A-Za-z]{3,9},?\s+\d{4}|[A-Za-z]{3,9}\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`)
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
)

// ParseDate reads the date formats seen on listing portals. Slash and dot
// dates are taken as day/month/year. Returns nil when nothing parses.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	//dd/mm/yyyy before dateparse, which assumes month first
	if m := dmyDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 && year >= 2000 && year <= 2100 {
			t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	s = ordinalSuffix.ReplaceAllString(s, "$1")
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	if t.Year() < 2000 || t.Year() > 2100 {
		return nil
	}
	return &t
}

// labeledDate finds the first line matching label and parses the date in
// it, or on the next line when the label stands alone.
func labeledDate(lines []string, label *regexp.Regexp) *time.Time {
	for i, line := range lines {
		loc := label.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if frag := dateFragment.FindString(line[loc[1]:]); frag != "" {
			if t := ParseDate(frag); t != nil {
				return t
			}
		}
		if i+1 < len(lines) {
			if frag := dateFragment.FindString(lines[i+1]); frag != "" {
				if t := ParseDate(frag); t != nil {
					return t
				}
			}
		}
	}
	return nil
}
