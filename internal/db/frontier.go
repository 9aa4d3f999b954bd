package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-discovery/internal/types"
)

// DefaultFrontierPriority is assigned to newly seeded crawl targets.
const DefaultFrontierPriority = 100

// SeedFrontier inserts crawl targets for a source, skipping slugs that are
// already present. Returns the number of rows actually inserted.
func (db *DB) SeedFrontier(ctx context.Context, source string, slugs []string) (int, error) {
	inserted := 0
	for _, slug := range slugs {
		tag, err := db.pool.Exec(ctx,
			`INSERT INTO frontier_orgs (id, source, org_slug, priority)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (source, org_slug) DO NOTHING`,
			uuid.New(), source, slug, DefaultFrontierPriority,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed frontier org %s/%s: %w", source, slug, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// SelectFrontierBatch pops up to limit crawl targets for a source and stamps
// last_crawled_at in the same statement, so concurrent runs never pick the
// same org twice. Never-crawled orgs come first, then stalest, then highest
// priority. Muted orgs are excluded.
func (db *DB) SelectFrontierBatch(ctx context.Context, source string, limit int) ([]types.FrontierOrg, error) {
	rows, err := db.pool.Query(ctx,
		`WITH batch AS (
		     SELECT id FROM frontier_orgs
		     WHERE source = $1
		       AND (muted_until IS NULL OR muted_until <= NOW())
		     ORDER BY last_crawled_at ASC NULLS FIRST, priority DESC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE frontier_orgs f
		 SET last_crawled_at = NOW()
		 FROM batch
		 WHERE f.id = batch.id
		 RETURNING f.id, f.source, f.org_slug, f.priority, f.discovered_at, f.last_crawled_at, f.muted_until`,
		source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select frontier batch for %s: %w", source, err)
	}
	defer rows.Close()

	var orgs []types.FrontierOrg
	for rows.Next() {
		var org types.FrontierOrg
		if err := rows.Scan(&org.ID, &org.Source, &org.OrgSlug, &org.Priority,
			&org.DiscoveredAt, &org.LastCrawledAt, &org.MutedUntil); err != nil {
			return nil, fmt.Errorf("failed to scan frontier org: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// MuteFrontierOrg suppresses a crawl target until the given time. Used when a
// board disappears or repeatedly fails.
func (db *DB) MuteFrontierOrg(ctx context.Context, source, slug string, until time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE frontier_orgs SET muted_until = $1 WHERE source = $2 AND org_slug = $3`,
		until, source, slug,
	)
	if err != nil {
		return fmt.Errorf("failed to mute frontier org %s/%s: %w", source, slug, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("frontier org not found: %s/%s", source, slug)
	}
	return nil
}

// CountFrontierOrgs returns the number of crawl targets for a source.
func (db *DB) CountFrontierOrgs(ctx context.Context, source string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM frontier_orgs WHERE source = $1`, source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count frontier orgs for %s: %w", source, err)
	}
	return count, nil
}
