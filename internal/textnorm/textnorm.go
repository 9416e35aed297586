// Package textnorm turns scraped fragments into plain, comparable text.
package textnorm

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagHint = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)

	//fragments that survive tag stripping but are never content
	unsafeFragments = regexp.MustCompile(`(?i)(javascript:\S*|\bon[a-z]+\s*=\s*("[^"]*"|'[^']*')|\[object Object\]|\bundefined\b|\bNaN\b)`)

	//"Đ/đ" has no combining form, so folding maps it explicitly
	foldReplacer = strings.NewReplacer("đ", "d", "Đ", "d", "ß", "ss", "æ", "ae", "ø", "o", "ł", "l")
)

var (
	skipElements  = map[string]bool{"script": true, "style": true, "noscript": true, "template": true, "iframe": true, "svg": true, "head": true}
	blockElements = map[string]bool{
		"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true, "tr": true, "td": true, "th": true, "table": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"section": true, "article": true, "header": true, "footer": true, "dt": true, "dd": true, "blockquote": true,
	}
)

// StripHTML removes markup, script/style bodies and entities, keeping text.
// Strings with no tags are only unescaped.
func StripHTML(s string) string {
	if !tagHint.MatchString(s) {
		return html.UnescapeString(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return html.UnescapeString(tagHint.ReplaceAllString(s, " "))
	}
	return BlockText(doc.Selection)
}

// BlockText renders a selection as text with a line break around every
// block element. Script, style and head contents are skipped.
func BlockText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		walk(s, &b)
	})
	return b.String()
}

func walk(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "#comment" || skipElements[name]:
		default:
			block := blockElements[name]
			if block {
				b.WriteByte('\n')
			}
			walk(c, b)
			if block {
				b.WriteByte('\n')
			}
		}
	})
}

// Lines is BlockText split into whitespace-collapsed, non-empty lines.
func Lines(sel *goquery.Selection) []string {
	var out []string
	for _, line := range strings.Split(BlockText(sel), "\n") {
		if line = CollapseWhitespace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// CollapseWhitespace replaces runs of whitespace with one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clean strips markup, drops control and zero-width characters, removes
// unsafe fragments and collapses whitespace.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = StripHTML(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff':
			return -1
		case unicode.IsControl(r) && !unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
	s = unsafeFragments.ReplaceAllString(s, " ")
	return CollapseWhitespace(s)
}

// Truncate cuts s to at most max runes without splitting a character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

// Fold lowercases and strips diacritics so "Công ty" and "cong ty" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	result = foldReplacer.Replace(result)
	return strings.ToLower(CollapseWhitespace(result))
}

// Tokens splits folded text into alphanumeric words.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// CleanList cleans every item and drops empties and repeats, keeping order.
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		c := Clean(it)
		if c == "" {
			continue
		}
		key := Fold(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
