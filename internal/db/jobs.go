package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-discovery/internal/types"
)

// JobSeenSince reports whether a job with this canonical ID was scraped at or
// after cutoff. First stage of the dedup check.
func (db *DB) JobSeenSince(ctx context.Context, canonicalID string, cutoff time.Time) (bool, error) {
	var seen bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM jobs WHERE canonical_id = $1 AND scraped_at >= $2
		 )`,
		canonicalID, cutoff,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check canonical id %s: %w", canonicalID, err)
	}
	return seen, nil
}

// HashSeenSince reports whether a job with this content hash was scraped at
// or after cutoff. Second stage of the dedup check, catching the same posting
// republished under a different ID.
func (db *DB) HashSeenSince(ctx context.Context, contentHash string, cutoff time.Time) (bool, error) {
	var seen bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM jobs WHERE content_hash = $1 AND scraped_at >= $2
		 )`,
		contentHash, cutoff,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return seen, nil
}

// InsertJobWithSource writes a job and its raw source payload in one
// transaction, so a job row never exists without its provenance record.
// The insert re-checks both dedup keys against cutoff under per-key advisory
// locks, so two writers sighting the same posting concurrently cannot both
// insert: the loser gets false back. Missing IDs are assigned here.
func (db *DB) InsertJobWithSource(ctx context.Context, job *types.Job, source *types.JobSource, cutoff time.Time) (bool, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}

	requirementsJSON, err := json.Marshal(job.Requirements)
	if err != nil {
		return false, fmt.Errorf("failed to marshal requirements: %w", err)
	}
	payloadJSON, err := json.Marshal(source.RawPayload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize writers per dedup key; released at commit or rollback
	_, err = tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0)),
		        pg_advisory_xact_lock(hashtextextended($2, 0))`,
		job.CanonicalID, job.ContentHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to lock dedup keys for %s: %w", job.CanonicalID, err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO jobs (id, title, company_name, location, url, source_type, domain_root,
		                   submission_mode, jd_text, requirements, canonical_id, scraped_at, content_hash)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		 WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE canonical_id = $11 AND scraped_at >= $14)
		   AND NOT EXISTS (SELECT 1 FROM jobs WHERE content_hash = $13 AND scraped_at >= $14)`,
		job.ID, job.Title, job.CompanyName, job.Location, job.URL, job.SourceType, job.DomainRoot,
		job.SubmissionMode, job.JDText, requirementsJSON, job.CanonicalID, job.ScrapedAt, job.ContentHash,
		cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert job %s: %w", job.CanonicalID, err)
	}
	if tag.RowsAffected() == 0 {
		// Another writer landed the same posting inside the window
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO job_sources (id, job_id, source_type, source_url, company_name, domain_root,
		                          raw_payload, discovered_at, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		source.ID, job.ID, source.SourceType, source.SourceURL, source.CompanyName, source.DomainRoot,
		payloadJSON, source.DiscoveredAt, source.ContentHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert job source for %s: %w", job.CanonicalID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit job insert: %w", err)
	}
	return true, nil
}

// GetJobByCanonicalID retrieves the most recent job row for a canonical ID,
// or nil when none exists.
func (db *DB) GetJobByCanonicalID(ctx context.Context, canonicalID string) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, title, company_name, location, url, source_type, domain_root,
		        submission_mode, jd_text, requirements, canonical_id, scraped_at, content_hash
		 FROM jobs WHERE canonical_id = $1
		 ORDER BY scraped_at DESC LIMIT 1`,
		canonicalID,
	)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", canonicalID, err)
	}
	return job, nil
}

// ListJobsByDomainSince retrieves jobs for a domain scraped at or after since,
// newest first.
func (db *DB) ListJobsByDomainSince(ctx context.Context, domainRoot string, since time.Time) ([]types.Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, company_name, location, url, source_type, domain_root,
		        submission_mode, jd_text, requirements, canonical_id, scraped_at, content_hash
		 FROM jobs WHERE domain_root = $1 AND scraped_at >= $2
		 ORDER BY scraped_at DESC`,
		domainRoot, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for %s: %w", domainRoot, err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var job types.Job
	var requirementsJSON []byte
	err := row.Scan(&job.ID, &job.Title, &job.CompanyName, &job.Location, &job.URL,
		&job.SourceType, &job.DomainRoot, &job.SubmissionMode, &job.JDText,
		&requirementsJSON, &job.CanonicalID, &job.ScrapedAt, &job.ContentHash)
	if err != nil {
		return nil, err
	}
	if len(requirementsJSON) > 0 {
		if err := json.Unmarshal(requirementsJSON, &job.Requirements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal requirements: %w", err)
		}
	}
	return &job, nil
}
