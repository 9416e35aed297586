// Package dedup decides whether a validated posting is new, a refresh of a
// stored record, or a repeat.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/store"
	"go-portal-harvester/internal/textnorm"
)

const (
	DefaultThreshold = 0.85
	candidateLimit   = 50
	maxHintTokens    = 3

	//candidates below this trigram overlap skip the edit distance
	prefilterMin = 0.4
)

var hintStopwords = map[string]struct{}{
	"intern": {}, "internship": {}, "with": {}, "from": {}, "for": {}, "and": {}, "the": {},
	"junior": {}, "senior": {}, "position": {}, "role": {}, "job": {},
}

type Engine struct {
	store     store.Store
	source    string
	threshold float64
	log       logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewEngine(st store.Store, source string, threshold float64, log logger.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{
		store:     st,
		source:    source,
		threshold: threshold,
		log:       log.With(logger.String("component", "dedup")),
		now:       time.Now,
	}
}

func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Resolve looks the posting up by external id, then by folded title and
// company, then by description similarity among candidates. A match on an
// expired record or one whose deadline has passed is an Update, flagged
// Changed when it reactivates the record or brings a new deadline or
// description; any other match is a Skip.
func (e *Engine) Resolve(ctx context.Context, v models.ValidatedPosting) (models.Decision, error) {
	if v.ExternalID != "" {
		rec, err := e.store.FindByExternalID(ctx, e.source, v.ExternalID)
		if err != nil {
			return models.Decision{}, fmt.Errorf("lookup by external id: %w", err)
		}
		if rec != nil {
			return e.decide(rec, v, models.MatchExternalID, 1), nil
		}
	}

	rec, err := e.store.FindByTitleCompany(ctx, e.source, v.Title, v.Company)
	if err != nil {
		return models.Decision{}, fmt.Errorf("lookup by title and company: %w", err)
	}
	if rec != nil {
		return e.decide(rec, v, models.MatchTitleCompany, 1), nil
	}

	candidates, err := e.store.FindCandidates(ctx, e.source, Hints(v), candidateLimit)
	if err != nil {
		return models.Decision{}, fmt.Errorf("lookup candidates: %w", err)
	}

	//near-duplicates merge into the earliest-seen record
	var best *models.StoredJobRecord
	bestScore := 0.0
	for i := range candidates {
		c := &candidates[i]
		score := 1.0
		if c.ContentHash != v.ContentHash {
			if trigramOverlap(c.Description, v.Description) < prefilterMin {
				continue
			}
			score = Similarity(c.Description, v.Description)
		}
		if score < e.threshold {
			continue
		}
		if best == nil || earlier(c, best) || (c.FirstSeenAt.Equal(best.FirstSeenAt) && score > bestScore) {
			best, bestScore = c, score
		}
	}
	if best != nil {
		return e.decide(best, v, models.MatchSimilarity, bestScore), nil
	}

	e.log.Debug("No match", logger.String("title", v.Title), logger.Int("candidates", len(candidates)))
	return models.Decision{Action: models.ActionInsert}, nil
}

func (e *Engine) decide(rec *models.StoredJobRecord, v models.ValidatedPosting, kind models.MatchKind, score float64) models.Decision {
	e.mu.Lock()
	now := e.now()
	e.mu.Unlock()

	d := models.Decision{Action: models.ActionSkip, RecordID: rec.ID, MatchedBy: kind, Similarity: score}
	if rec.Status != models.StatusActive || filter.IsDeadlineStale(rec.ApplicationDeadline, now) {
		d.Action = models.ActionUpdate
		d.Changed = rec.Status != models.StatusActive ||
			rec.ContentHash != v.ContentHash ||
			!sameDay(rec.ApplicationDeadline, v.ApplicationDeadline)
	}
	e.log.Debug("Matched stored record",
		logger.String("record_id", rec.ID),
		logger.String("matched_by", string(kind)),
		logger.Float64("similarity", score),
		logger.String("action", string(d.Action)),
		logger.Bool("changed", d.Changed))
	return d
}

func earlier(a, b *models.StoredJobRecord) bool {
	return a.FirstSeenAt.Before(b.FirstSeenAt)
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UTC().Truncate(24 * time.Hour).Equal(b.UTC().Truncate(24 * time.Hour))
}

// Hints picks candidate filters for a posting: its longest distinctive title
// words, folded company, content hash and description prefix.
func Hints(v models.ValidatedPosting) store.CandidateHints {
	var tokens []string
	seen := make(map[string]struct{})
	for _, tok := range textnorm.Tokens(v.Title) {
		if utf8.RuneCountInString(tok) < 4 {
			continue
		}
		if _, stop := hintStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		return utf8.RuneCountInString(tokens[i]) > utf8.RuneCountInString(tokens[j])
	})
	if len(tokens) > maxHintTokens {
		tokens = tokens[:maxHintTokens]
	}

	return store.CandidateHints{
		TitleTokens:       tokens,
		CompanyKey:        textnorm.Fold(v.Company),
		ContentHash:       v.ContentHash,
		DescriptionPrefix: textnorm.Truncate(textnorm.Fold(v.Description), store.DescriptionPrefixRunes),
	}
}
