package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-portal-harvester/internal/models"
	"go-portal-harvester/internal/store"
	"go-portal-harvester/internal/textnorm"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements store.Store on Postgres.
type Repository struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

func ConnectDB(ctx context.Context, connString string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	// Transaction-mode poolers (PgBouncer, Supabase) cannot keep prepared
	// statements, so the statement cache stays off.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Ping to ensure connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

const recordColumns = `id, source, external_id, status, title, company, location, description,
	requirements, responsibilities, benefits, skills, contact_email, contact_phone,
	application_deadline, posted_date, source_url, content_hash, first_seen_at, last_seen_at`

func scanRecord(row pgx.Row) (*models.StoredJobRecord, error) {
	var rec models.StoredJobRecord
	err := row.Scan(&rec.ID, &rec.ExternalSource, &rec.ExternalID, &rec.Status,
		&rec.Title, &rec.Company, &rec.Location, &rec.Description,
		&rec.Requirements, &rec.Responsibilities, &rec.Benefits, &rec.Skills,
		&rec.ContactEmail, &rec.ContactPhone,
		&rec.ApplicationDeadline, &rec.PostedDate, &rec.SourceURL, &rec.ContentHash,
		&rec.FirstSeenAt, &rec.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*models.StoredJobRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ---------------- LOOKUPS ----------------

func (r *Repository) FindByExternalID(ctx context.Context, source, externalID string) (*models.StoredJobRecord, error) {
	if externalID == "" {
		return nil, nil
	}
	rec, err := r.queryOne(ctx, `SELECT `+recordColumns+` FROM harvested_jobs
		WHERE source = $1 AND external_id = $2
		ORDER BY (status = 'active') DESC, last_seen_at DESC LIMIT 1`, source, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find job by external id: %w", err)
	}
	return rec, nil
}

func (r *Repository) FindByTitleCompany(ctx context.Context, source, title, company string) (*models.StoredJobRecord, error) {
	rec, err := r.queryOne(ctx, `SELECT `+recordColumns+` FROM harvested_jobs
		WHERE source = $1 AND title_key = $2 AND company_key = $3
		ORDER BY (status = 'active') DESC, last_seen_at DESC LIMIT 1`,
		source, textnorm.Fold(title), textnorm.Fold(company))
	if err != nil {
		return nil, fmt.Errorf("failed to find job by title and company: %w", err)
	}
	return rec, nil
}

func (r *Repository) FindCandidates(ctx context.Context, source string, hints store.CandidateHints, limit int) ([]models.StoredJobRecord, error) {
	patterns := make([]string, 0, len(hints.TitleTokens))
	for _, tok := range hints.TitleTokens {
		patterns = append(patterns, "%"+tok+"%")
	}
	prefix := ""
	if hints.DescriptionPrefix != "" {
		prefix = escapeLike(hints.DescriptionPrefix) + "%"
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM harvested_jobs
		WHERE source = $1 AND (
			($2 <> '' AND content_hash = $2) OR
			($3 <> '' AND company_key = $3) OR
			($4 <> '' AND description_key LIKE $4) OR
			title_key LIKE ANY($5)
		)
		ORDER BY last_seen_at DESC LIMIT $6`,
		source, hints.ContentHash, hints.CompanyKey, prefix, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []models.StoredJobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ---------------- WRITES ----------------

func (r *Repository) Insert(ctx context.Context, source string, v models.ValidatedPosting, seenAt time.Time) (*models.StoredJobRecord, error) {
	query := `
		INSERT INTO harvested_jobs (id, source, external_id, status, title, company, location, description,
			requirements, responsibilities, benefits, skills, contact_email, contact_phone,
			application_deadline, posted_date, source_url, content_hash, title_key, company_key, description_key,
			first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, 'active', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRow(ctx, query,
		uuid.NewString(), source, v.ExternalID, v.Title, v.Company, v.Location, v.Description,
		nonNil(v.Requirements), nonNil(v.Responsibilities), nonNil(v.Benefits), nonNil(v.Skills),
		v.ContactEmail, v.ContactPhone, v.ApplicationDeadline, v.PostedDate, v.SourceURL, v.ContentHash,
		textnorm.Fold(v.Title), textnorm.Fold(v.Company), descriptionKey(v.Description), seenAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateActive
		}
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return rec, nil
}

func (r *Repository) UpdateExisting(ctx context.Context, id string, v models.ValidatedPosting, seenAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE harvested_jobs SET status = 'active', external_id = COALESCE(NULLIF($2, ''), external_id),
			title = $3, company = $4, location = $5, description = $6,
			requirements = $7, responsibilities = $8, benefits = $9, skills = $10,
			contact_email = $11, contact_phone = $12, application_deadline = $13, posted_date = $14,
			source_url = $15, content_hash = $16, title_key = $17, company_key = $18, description_key = $19,
			last_seen_at = $20
		WHERE id = $1`,
		id, v.ExternalID, v.Title, v.Company, v.Location, v.Description,
		nonNil(v.Requirements), nonNil(v.Responsibilities), nonNil(v.Benefits), nonNil(v.Skills),
		v.ContactEmail, v.ContactPhone, v.ApplicationDeadline, v.PostedDate,
		v.SourceURL, v.ContentHash, textnorm.Fold(v.Title), textnorm.Fold(v.Company), descriptionKey(v.Description),
		seenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateActive
		}
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkSeen(ctx context.Context, id string, seenAt time.Time) error {
	tag, err := r.db.Exec(ctx, "UPDATE harvested_jobs SET last_seen_at = $1 WHERE id = $2", seenAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark job seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func descriptionKey(description string) string {
	return textnorm.Truncate(textnorm.Fold(description), store.DescriptionKeyRunes)
}

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
