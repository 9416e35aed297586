package dedup

import (
	"context"
	"strings"
	"testing"
	"time"

	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendDescription = "We are looking for a backend intern to help build REST APIs in Go, write integration tests, " +
	"and maintain our Postgres schemas. You will pair with senior engineers every day."

var clock = time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)

func validated(externalID, title, company, description string) models.ValidatedPosting {
	return models.ValidatedPosting{
		RawPosting: models.RawPosting{
			Title:       title,
			Company:     company,
			Description: description,
			ExternalID:  externalID,
		},
		ContentHash: filter.ContentHash(description),
	}
}

func newEngine(st store.Store) *Engine {
	e := NewEngine(st, "portal", 0, logger.NewNop())
	e.SetClock(func() time.Time { return clock })
	return e
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, EditDistance(tt.a, tt.b))
			assert.Equal(t, tt.want, EditDistance(tt.b, tt.a))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("Công ty ABC", "cong ty abc"))
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)

	//only the first maxCompareRunes are compared
	long := strings.Repeat("a", maxCompareRunes)
	assert.Equal(t, 1.0, Similarity(long+"tail one", long+"another tail"))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	stale := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		seed      func(st *store.MemoryStore) string
		incoming  models.ValidatedPosting
		action    models.DedupAction
		matchedBy models.MatchKind
	}{
		{
			name:     "empty store inserts",
			seed:     func(*store.MemoryStore) string { return "" },
			incoming: validated("backend-intern", "Go Backend Intern", "Acme", backendDescription),
			action:   models.ActionInsert,
		},
		{
			name: "same external id skips",
			seed: func(st *store.MemoryStore) string {
				rec, _ := st.Insert(ctx, "portal", validated("backend-intern", "Go Backend Intern", "Acme", backendDescription), clock)
				return rec.ID
			},
			incoming:  validated("backend-intern", "Backend Intern (renamed)", "Acme", "Completely rewritten description text for the role."),
			action:    models.ActionSkip,
			matchedBy: models.MatchExternalID,
		},
		{
			name: "expired record updates",
			seed: func(st *store.MemoryStore) string {
				rec, _ := st.Insert(ctx, "portal", validated("backend-intern", "Go Backend Intern", "Acme", backendDescription), clock)
				_ = st.Expire(rec.ID)
				return rec.ID
			},
			incoming:  validated("backend-intern", "Go Backend Intern", "Acme", backendDescription),
			action:    models.ActionUpdate,
			matchedBy: models.MatchExternalID,
		},
		{
			name: "passed deadline updates",
			seed: func(st *store.MemoryStore) string {
				v := validated("backend-intern", "Go Backend Intern", "Acme", backendDescription)
				v.ApplicationDeadline = &stale
				rec, _ := st.Insert(ctx, "portal", v, clock)
				return rec.ID
			},
			incoming:  validated("backend-intern", "Go Backend Intern", "Acme", backendDescription),
			action:    models.ActionUpdate,
			matchedBy: models.MatchExternalID,
		},
		{
			name: "folded title and company skip",
			seed: func(st *store.MemoryStore) string {
				rec, _ := st.Insert(ctx, "portal", validated("123", "Thực tập sinh Backend", "Công ty Acme", backendDescription), clock)
				return rec.ID
			},
			incoming:  validated("456", "thuc tap sinh backend", "CONG TY ACME", "Different text entirely, nothing like the stored one."),
			action:    models.ActionSkip,
			matchedBy: models.MatchTitleCompany,
		},
		{
			name: "near-identical description skips",
			seed: func(st *store.MemoryStore) string {
				rec, _ := st.Insert(ctx, "portal", validated("a-1", "Go Backend Intern", "Acme", backendDescription), clock)
				return rec.ID
			},
			incoming: validated("b-2", "Backend Intern (Go)", "Acme Labs",
				strings.NewReplacer("REST APIs", "HTTP APIs", "every day", "each week").Replace(backendDescription)),
			action:    models.ActionSkip,
			matchedBy: models.MatchSimilarity,
		},
		{
			name: "same content hash under new title skips",
			seed: func(st *store.MemoryStore) string {
				rec, _ := st.Insert(ctx, "portal", validated("a-1", "Go Backend Intern", "Acme", backendDescription), clock)
				return rec.ID
			},
			incoming:  validated("", "Platform Trainee", "Globex", backendDescription),
			action:    models.ActionSkip,
			matchedBy: models.MatchSimilarity,
		},
		{
			name: "different description inserts",
			seed: func(st *store.MemoryStore) string {
				_, _ = st.Insert(ctx, "portal", validated("a-1", "Go Backend Intern", "Acme", backendDescription), clock)
				return ""
			},
			incoming: validated("b-2", "Marketing Intern", "Acme",
				"Plan social media campaigns, write newsletters, and report on engagement metrics monthly."),
			action: models.ActionInsert,
		},
		{
			name: "other source is ignored",
			seed: func(st *store.MemoryStore) string {
				_, _ = st.Insert(ctx, "other", validated("backend-intern", "Go Backend Intern", "Acme", backendDescription), clock)
				return ""
			},
			incoming: validated("backend-intern", "Go Backend Intern", "Acme", backendDescription),
			action:   models.ActionInsert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			wantID := tt.seed(st)

			d, err := newEngine(st).Resolve(ctx, tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.matchedBy, d.MatchedBy)
			assert.Equal(t, wantID, d.RecordID)
			if tt.matchedBy == models.MatchSimilarity {
				assert.GreaterOrEqual(t, d.Similarity, DefaultThreshold)
			}
		})
	}
}

func TestHints(t *testing.T) {
	v := validated("x", "Senior Backend Engineering Intern - Payments", "Công ty Acme", backendDescription)
	h := Hints(v)

	assert.Equal(t, []string{"engineering", "payments", "backend"}, h.TitleTokens)
	assert.Equal(t, "cong ty acme", h.CompanyKey)
	assert.Equal(t, v.ContentHash, h.ContentHash)
	assert.Equal(t, "we are looking for a backend intern to h", h.DescriptionPrefix)
}

func TestResolveChanged(t *testing.T) {
	ctx := context.Background()
	stale := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)

	withDeadline := func(v models.ValidatedPosting, d *time.Time) models.ValidatedPosting {
		v.ApplicationDeadline = d
		return v
	}
	base := validated("backend-intern", "Go Backend Intern", "Acme", backendDescription)

	tests := []struct {
		name     string
		stored   models.ValidatedPosting
		expire   bool
		incoming models.ValidatedPosting
		action   models.DedupAction
		changed  bool
	}{
		{"stale deadline seen again unchanged", withDeadline(base, &stale), false, withDeadline(base, &stale), models.ActionUpdate, false},
		{"stale deadline extended", withDeadline(base, &stale), false, withDeadline(base, &later), models.ActionUpdate, true},
		{"stale deadline with new description", withDeadline(base, &stale), false,
			withDeadline(validated("backend-intern", "Go Backend Intern", "Acme", backendDescription+" Remote friendly."), &stale),
			models.ActionUpdate, true},
		{"expired record reactivates", base, true, base, models.ActionUpdate, true},
		{"active record is a plain skip", withDeadline(base, &later), false, withDeadline(base, &later), models.ActionSkip, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			rec, err := st.Insert(ctx, "portal", tt.stored, clock)
			require.NoError(t, err)
			if tt.expire {
				require.NoError(t, st.Expire(rec.ID))
			}

			d, err := newEngine(st).Resolve(ctx, tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.changed, d.Changed)
		})
	}
}

func TestResolvePrefersEarliestSeen(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	edited := strings.NewReplacer("REST APIs", "HTTP APIs").Replace(backendDescription)
	first, err := st.Insert(ctx, "portal", validated("a-1", "Go Backend Intern", "Acme", edited), clock.Add(-72*time.Hour))
	require.NoError(t, err)
	_, err = st.Insert(ctx, "portal", validated("a-2", "Backend Intern, Go", "Acme", backendDescription), clock)
	require.NoError(t, err)

	d, err := newEngine(st).Resolve(ctx, validated("", "Backend Intern (Go team)", "Acme", backendDescription))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSkip, d.Action)
	assert.Equal(t, models.MatchSimilarity, d.MatchedBy)
	assert.Equal(t, first.ID, d.RecordID)
	assert.GreaterOrEqual(t, d.Similarity, DefaultThreshold)
	assert.Less(t, d.Similarity, 1.0)
}
