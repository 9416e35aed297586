// Package filter decides whether an extracted posting is real content.
// Every check is independent and any one of them rejects the posting.
package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go-portal-harvester/internal/config"
	apperrors "go-portal-harvester/internal/errors"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/textnorm"
)

const (
	minTitle       = 5
	minCompany     = 2
	minDescription = 20

	maxTitleRunes       = 300
	maxCompanyRunes     = 200
	maxDescriptionRunes = 8000

	//description hits needed before it counts as boilerplate
	descriptionBoilerplateHits = 2
)

// Rejection explains why a posting was refused.
type Rejection struct {
	Reason models.RejectReason
	Field  string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Field == "" {
		return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", r.Reason, r.Field, r.Detail)
}

// Err wraps the rejection in the validation error type.
func (r *Rejection) Err() error {
	return apperrors.ValidationRejection(string(r.Reason), r)
}

type Validator struct {
	titleRatio       float64
	descriptionRatio float64
	minTokens        int
	boilerplate      []*regexp.Regexp
	genericEmployers map[string]struct{}
	log              logger.Logger
}

func NewValidator(cfg config.ValidationConfig, log logger.Logger) *Validator {
	v := &Validator{
		titleRatio:       cfg.TitleRepetitionRatio,
		descriptionRatio: cfg.DescriptionRepetitionRate,
		minTokens:        cfg.MinTokensForRepetition,
		boilerplate:      append([]*regexp.Regexp(nil), boilerplatePatterns...),
		genericEmployers: make(map[string]struct{}),
		log:              log.With(logger.String("component", "validator")),
	}
	if v.titleRatio == 0 {
		v.titleRatio = 0.6
	}
	if v.descriptionRatio == 0 {
		v.descriptionRatio = 0.4
	}
	if v.minTokens == 0 {
		v.minTokens = 10
	}

	for _, phrase := range cfg.BoilerplatePhrases {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			v.boilerplate = append(v.boilerplate, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(phrase)))
		}
	}
	for _, name := range append(append([]string(nil), defaultGenericEmployers...), cfg.GenericEmployers...) {
		if key := employerKey(name); key != "" {
			v.genericEmployers[key] = struct{}{}
		}
	}
	return v
}

// Validate normalizes raw and returns it with its content hash, or the
// first reason it was rejected.
func (v *Validator) Validate(raw *models.RawPosting) (*models.ValidatedPosting, *Rejection) {
	if raw == nil {
		return nil, &Rejection{Reason: models.RejectTooShort, Detail: "no posting"}
	}

	//unsafe content is checked before normalization strips it
	if rej := checkUnsafe(raw); rej != nil {
		return nil, v.reject(raw, rej)
	}

	p := normalize(raw)

	if rej := checkLength(p); rej != nil {
		return nil, v.reject(raw, rej)
	}
	if rej := v.checkRepetition(p); rej != nil {
		return nil, v.reject(raw, rej)
	}
	if rej := v.checkBoilerplate(p); rej != nil {
		return nil, v.reject(raw, rej)
	}
	if !hasPostingSignal(p) {
		return nil, v.reject(raw, &Rejection{Reason: models.RejectNoPostingSignal, Detail: "no role, application or contact language"})
	}
	if _, generic := v.genericEmployers[employerKey(p.Company)]; generic {
		return nil, v.reject(raw, &Rejection{Reason: models.RejectGenericEmployer, Field: "company", Detail: p.Company})
	}

	return &models.ValidatedPosting{RawPosting: p, ContentHash: ContentHash(p.Description)}, nil
}

func (v *Validator) reject(raw *models.RawPosting, rej *Rejection) *Rejection {
	v.log.Debug("Posting rejected",
		logger.String("field", rej.Field),
		logger.String("url", raw.SourceURL),
		logger.Error(rej.Err()))
	return rej
}

// ContentHash is the hex SHA-256 of the folded description.
func ContentHash(description string) string {
	sum := sha256.Sum256([]byte(textnorm.Fold(description)))
	return hex.EncodeToString(sum[:])
}

func checkUnsafe(raw *models.RawPosting) *Rejection {
	fields := []struct {
		name, value string
		strict      bool
	}{
		{"title", raw.Title, true},
		{"company", raw.Company, true},
		{"description", raw.Description, false},
	}
	for _, f := range fields {
		if m := unsafeMarkup.FindString(f.value); m != "" {
			return &Rejection{Reason: models.RejectUnsafeContent, Field: f.name, Detail: m}
		}
		if wholeNullValue.MatchString(f.value) {
			return &Rejection{Reason: models.RejectUnsafeContent, Field: f.name, Detail: strings.TrimSpace(f.value)}
		}
		//prose may say "undefined", short fields may not
		if f.strict {
			if m := stringifiedValue.FindString(f.value); m != "" {
				return &Rejection{Reason: models.RejectUnsafeContent, Field: f.name, Detail: m}
			}
		} else if strings.Contains(f.value, "[object Object]") {
			return &Rejection{Reason: models.RejectUnsafeContent, Field: f.name, Detail: "[object Object]"}
		}
	}
	return nil
}

func normalize(raw *models.RawPosting) models.RawPosting {
	p := *raw
	p.Title = textnorm.Truncate(textnorm.Clean(raw.Title), maxTitleRunes)
	p.Company = textnorm.Truncate(textnorm.Clean(raw.Company), maxCompanyRunes)
	p.Location = textnorm.Clean(raw.Location)
	p.Description = textnorm.Truncate(textnorm.Clean(raw.Description), maxDescriptionRunes)
	p.Requirements = textnorm.CleanList(raw.Requirements)
	p.Responsibilities = textnorm.CleanList(raw.Responsibilities)
	p.Benefits = textnorm.CleanList(raw.Benefits)
	p.Skills = textnorm.CleanList(raw.Skills)
	p.ContactEmail = strings.ToLower(textnorm.Clean(raw.ContactEmail))
	p.ContactPhone = textnorm.Clean(raw.ContactPhone)
	if raw.ApplicationDeadline != nil {
		d := *raw.ApplicationDeadline
		p.ApplicationDeadline = &d
	}
	if raw.PostedDate != nil {
		d := *raw.PostedDate
		p.PostedDate = &d
	}
	return p
}

func checkLength(p models.RawPosting) *Rejection {
	switch {
	case utf8.RuneCountInString(p.Title) < minTitle:
		return &Rejection{Reason: models.RejectTooShort, Field: "title", Detail: p.Title}
	case utf8.RuneCountInString(p.Company) < minCompany:
		return &Rejection{Reason: models.RejectTooShort, Field: "company", Detail: p.Company}
	case utf8.RuneCountInString(p.Description) < minDescription:
		return &Rejection{Reason: models.RejectTooShort, Field: "description", Detail: fmt.Sprintf("%d characters", utf8.RuneCountInString(p.Description))}
	}
	return nil
}

func (v *Validator) checkRepetition(p models.RawPosting) *Rejection {
	if ratio, ok := UniqueRatio(p.Title, v.minTokens); ok && ratio < v.titleRatio {
		return &Rejection{Reason: models.RejectRepetitive, Field: "title", Detail: fmt.Sprintf("unique ratio %.2f", ratio)}
	}
	if ratio, ok := UniqueRatio(p.Description, v.minTokens); ok && ratio < v.descriptionRatio {
		return &Rejection{Reason: models.RejectRepetitive, Field: "description", Detail: fmt.Sprintf("unique ratio %.2f", ratio)}
	}
	return nil
}

// UniqueRatio is unique/total tokens of s. ok is false when s has no more
// than minTokens tokens, too few to judge.
func UniqueRatio(s string, minTokens int) (ratio float64, ok bool) {
	tokens := textnorm.Tokens(s)
	if len(tokens) <= minTokens {
		return 0, false
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	return float64(len(unique)) / float64(len(tokens)), true
}

func (v *Validator) checkBoilerplate(p models.RawPosting) *Rejection {
	for _, re := range v.boilerplate {
		if m := re.FindString(p.Title); m != "" {
			return &Rejection{Reason: models.RejectGenericContent, Field: "title", Detail: m}
		}
	}

	var hits []string
	for _, re := range v.boilerplate {
		if m := re.FindString(p.Description); m != "" {
			hits = append(hits, m)
		}
	}
	if len(hits) >= descriptionBoilerplateHits {
		return &Rejection{Reason: models.RejectGenericContent, Field: "description", Detail: strings.Join(hits, "; ")}
	}
	return nil
}

func hasPostingSignal(p models.RawPosting) bool {
	if len(p.Requirements) > 0 || len(p.Responsibilities) > 0 || p.ApplicationDeadline != nil {
		return true
	}
	return postingSignal.MatchString(p.Title) || postingSignal.MatchString(p.Description)
}

// employerKey folds a company name down to lowercase words.
func employerKey(name string) string {
	return strings.Join(textnorm.Tokens(name), " ")
}
