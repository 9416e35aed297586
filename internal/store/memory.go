package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/textnorm"

	"github.com/google/uuid"
)

// MemoryStore keeps records in a map. Used by dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.StoredJobRecord
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.StoredJobRecord)}
}

func (m *MemoryStore) FindByExternalID(_ context.Context, source, externalID string) (*models.StoredJobRecord, error) {
	if externalID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.StoredJobRecord
	for _, id := range m.order {
		r := m.records[id]
		if r.ExternalSource != source || r.ExternalID != externalID {
			continue
		}
		//prefer the active record
		if found == nil || r.Status == models.StatusActive {
			found = r
		}
	}
	return cloneRecord(found), nil
}

func (m *MemoryStore) FindByTitleCompany(_ context.Context, source, title, company string) (*models.StoredJobRecord, error) {
	titleKey, companyKey := textnorm.Fold(title), textnorm.Fold(company)
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		r := m.records[id]
		if r.ExternalSource == source && textnorm.Fold(r.Title) == titleKey && textnorm.Fold(r.Company) == companyKey {
			return cloneRecord(r), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FindCandidates(_ context.Context, source string, hints CandidateHints, limit int) ([]models.StoredJobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.StoredJobRecord
	for _, id := range m.order {
		r := m.records[id]
		if r.ExternalSource == source && matchesHints(r, hints) {
			out = append(out, *cloneRecord(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesHints(r *models.StoredJobRecord, h CandidateHints) bool {
	if h.ContentHash != "" && r.ContentHash == h.ContentHash {
		return true
	}
	if h.CompanyKey != "" && textnorm.Fold(r.Company) == h.CompanyKey {
		return true
	}
	if h.DescriptionPrefix != "" && strings.HasPrefix(textnorm.Fold(r.Description), h.DescriptionPrefix) {
		return true
	}
	title := textnorm.Fold(r.Title)
	for _, tok := range h.TitleTokens {
		if strings.Contains(title, tok) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Insert(_ context.Context, source string, v models.ValidatedPosting, seenAt time.Time) (*models.StoredJobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ExternalID != "" {
		for _, r := range m.records {
			if r.ExternalSource == source && r.ExternalID == v.ExternalID && r.Status == models.StatusActive {
				return nil, ErrDuplicateActive
			}
		}
	}

	rec := &models.StoredJobRecord{
		ValidatedPosting: v.Clone(),
		ID:               uuid.NewString(),
		Status:           models.StatusActive,
		ExternalSource:   source,
		FirstSeenAt:      seenAt,
		LastSeenAt:       seenAt,
	}
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return cloneRecord(rec), nil
}

func (m *MemoryStore) UpdateExisting(_ context.Context, id string, v models.ValidatedPosting, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if v.ExternalID != "" && v.ExternalID != r.ExternalID {
		for otherID, other := range m.records {
			if otherID != id && other.ExternalSource == r.ExternalSource && other.ExternalID == v.ExternalID && other.Status == models.StatusActive {
				return ErrDuplicateActive
			}
		}
	}
	r.ValidatedPosting = v.Clone()
	r.Status = models.StatusActive
	r.LastSeenAt = seenAt
	return nil
}

func (m *MemoryStore) MarkSeen(_ context.Context, id string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.LastSeenAt = seenAt
	return nil
}

// Expire marks a record inactive. The pipeline never expires records itself;
// this is for operators and tests.
func (m *MemoryStore) Expire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = models.StatusExpired
	return nil
}

// All returns every record in insertion order.
func (m *MemoryStore) All() []models.StoredJobRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.StoredJobRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *cloneRecord(m.records[id]))
	}
	return out
}

func cloneRecord(r *models.StoredJobRecord) *models.StoredJobRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ValidatedPosting = r.ValidatedPosting.Clone()
	return &out
}
