package filter

import (
	"regexp"
)

var (
	//code and markup injection signatures, matched on raw extracted text
	unsafeMarkup = regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed)\b|javascript\s*:|\bon(click|load|error|mouseover|focus|blur|submit|change)\s*=|\beval\s*\(|\bnew\s+Function\s*\(|\bfunction\s*\([^)]*\)\s*\{|=>\s*\{|document\.(cookie|write|getElementById)|window\.location`)

	//stringified JS values leaking into rendered text
	stringifiedValue = regexp.MustCompile(`\[object Object\]|\bNaN\b|\bundefined\b|\bnull\b`)
	wholeNullValue   = regexp.MustCompile(`^\s*(null|undefined|NaN|None|nil)\s*$`)

	//portal chrome and mission-statement language
	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bconnect,?\s+collaborate\b`),
		regexp.MustCompile(`(?i)\bgrow\s+your\s+career\b`),
		regexp.MustCompile(`(?i)\b(national\s+)?(internship|job|career)s?\s+portal\b`),
		regexp.MustCompile(`(?i)\b(our|the)\s+mission\s+is\b`),
		regexp.MustCompile(`(?i)\bempower(ing)?\s+(the\s+)?(youth|students|young\s+people|talent)\b`),
		regexp.MustCompile(`(?i)\bbridg(e|ing)\s+the\s+gap\b`),
		regexp.MustCompile(`(?i)\bthousands\s+of\s+(opportunities|internships|jobs)\b`),
		regexp.MustCompile(`(?i)\b(browse|explore|discover)\s+(all\s+)?(opportunities|internships|jobs|vacancies)\b`),
		regexp.MustCompile(`(?i)\b(sign\s*up|register)\s+(now|today|for\s+free)\b`),
		regexp.MustCompile(`(?i)\bcreate\s+(an?\s+|your\s+)?(free\s+)?(account|profile)\b`),
		regexp.MustCompile(`(?i)\bapply\s+now\s+(and|to)\s+(start|kick\s*start|launch|begin)\b`),
		regexp.MustCompile(`(?i)\b(all\s+rights\s+reserved|privacy\s+policy|terms\s+(of\s+use|and\s+conditions)|cookie\s+policy)\b`),
		regexp.MustCompile(`(?i)\b(home|about\s+us|contact\s+us|faq)\s*[|›»>/]\s*(home|about\s+us|contact\s+us|faq|login|sign\s+in)\b`),
		regexp.MustCompile(`(?i)\bwelcome\s+to\s+(the\s+)?\w+(\s+\w+)?\s+(portal|platform)\b`),
		regexp.MustCompile(`(?i)\bpage\s+not\s+found\b|\b404\b.*\bnot\s+found\b`),
		regexp.MustCompile(`(?i)\b(loading|please\s+wait)\.{0,3}\s*$`),
	}

	//phrases that correlate with a real posting
	postingSignal = regexp.MustCompile(`(?i)\b(role|position|vacanc(y|ies)|intern(ship)?s?|job|opening|hiring|recruit(ing|ment)?|trainee|apprentice(ship)?|graduate\s+program(me)?|deadline|closing\s+date|apply|application|send\s+(your\s+)?(cv|resume)|cv|resume|candidates?|applicants?|responsibilit(y|ies)|requirements?|qualifications?|stipend|salary|remuneration|(is|are)\s+(seeking|looking\s+for)|we\s+are\s+looking|join\s+(our|the)\s+team|you\s+will|reporting\s+to|contact\s+(us\s+)?at|engineer|developer|analyst|assistant|officer|coordinator|specialist|associate|designer)\b`)
)

// defaultGenericEmployers are names a portal uses for itself or for missing data.
var defaultGenericEmployers = []string{
	"portal", "the portal", "internship portal", "national internship portal", "job portal", "career portal",
	"admin", "administrator", "site admin", "webmaster", "system",
	"company", "employer", "organization", "organisation", "unknown", "n/a", "na", "none", "tbd", "various",
}
