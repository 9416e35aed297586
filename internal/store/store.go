// Package store is the durable home of harvested postings. The pipeline only
// reads candidates and writes through this interface; records are never
// hard-deleted.
package store

import (
	"context"
	"errors"
	"time"

	"go-portal-harvester/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateActive: an active record already holds this source and external id.
	ErrDuplicateActive = errors.New("active record with this external id already exists")
)

const (
	// DescriptionKeyRunes is how much of the folded description stores index.
	DescriptionKeyRunes = 200
	// DescriptionPrefixRunes is the prefix length used as a candidate hint.
	DescriptionPrefixRunes = 40
)

// CandidateHints narrow a fuzzy lookup. A record is a candidate when it
// matches any hint.
type CandidateHints struct {
	TitleTokens       []string
	CompanyKey        string
	ContentHash       string
	DescriptionPrefix string
}

type Store interface {
	// FindByExternalID returns nil, nil when nothing matches.
	FindByExternalID(ctx context.Context, source, externalID string) (*models.StoredJobRecord, error)
	// FindByTitleCompany compares accent-folded title and company.
	FindByTitleCompany(ctx context.Context, source, title, company string) (*models.StoredJobRecord, error)
	FindCandidates(ctx context.Context, source string, hints CandidateHints, limit int) ([]models.StoredJobRecord, error)
	Insert(ctx context.Context, source string, v models.ValidatedPosting, seenAt time.Time) (*models.StoredJobRecord, error)
	// UpdateExisting replaces the content of a record and marks it active.
	UpdateExisting(ctx context.Context, id string, v models.ValidatedPosting, seenAt time.Time) error
	MarkSeen(ctx context.Context, id string, seenAt time.Time) error
}
