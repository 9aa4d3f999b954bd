package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-discovery/internal/types"
)

// InsertTrustEvent records one trust evaluation.
func (db *DB) InsertTrustEvent(ctx context.Context, event *types.TrustEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	signalsJSON, err := json.Marshal(event.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO trust_events (id, domain_root, url, score, signals, verdict, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.DomainRoot, event.URL, event.Score, signalsJSON, event.Verdict, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trust event for %s: %w", event.DomainRoot, err)
	}
	return nil
}

// LatestTrustEvent retrieves the most recent trust event for a domain, or nil
// when the domain has never been evaluated.
func (db *DB) LatestTrustEvent(ctx context.Context, domainRoot string) (*types.TrustEvent, error) {
	var event types.TrustEvent
	var signalsJSON []byte
	var verdict string
	err := db.pool.QueryRow(ctx,
		`SELECT id, domain_root, url, score, signals, verdict, created_at
		 FROM trust_events WHERE domain_root = $1
		 ORDER BY created_at DESC LIMIT 1`,
		domainRoot,
	).Scan(&event.ID, &event.DomainRoot, &event.URL, &event.Score, &signalsJSON, &verdict, &event.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trust event for %s: %w", domainRoot, err)
	}

	event.Verdict, err = types.ParseTrustVerdict(verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trust event for %s: %w", domainRoot, err)
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &event.Signals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signals for %s: %w", domainRoot, err)
		}
	}
	return &event, nil
}

// GetWhitelistEntry retrieves a human-approved domain, or nil when the domain
// is not whitelisted.
func (db *DB) GetWhitelistEntry(ctx context.Context, domainRoot string) (*types.WhitelistEntry, error) {
	var entry types.WhitelistEntry
	err := db.pool.QueryRow(ctx,
		`SELECT domain_root, company_name, ats_type, approved_by, approved_at
		 FROM whitelist WHERE domain_root = $1`,
		domainRoot,
	).Scan(&entry.DomainRoot, &entry.CompanyName, &entry.ATSType, &entry.ApprovedBy, &entry.ApprovedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get whitelist entry for %s: %w", domainRoot, err)
	}
	return &entry, nil
}

// UpsertWhitelistEntry records or refreshes a human approval for a domain.
func (db *DB) UpsertWhitelistEntry(ctx context.Context, entry *types.WhitelistEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO whitelist (domain_root, company_name, ats_type, approved_by, approved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (domain_root) DO UPDATE
		 SET company_name = $2, ats_type = $3, approved_by = $4, approved_at = $5`,
		entry.DomainRoot, entry.CompanyName, entry.ATSType, entry.ApprovedBy, entry.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert whitelist entry for %s: %w", entry.DomainRoot, err)
	}
	return nil
}
