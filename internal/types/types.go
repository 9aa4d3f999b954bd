// Package types provides type definitions for the canonical records produced
// by the discovery pipeline and shared across adapters, storage and trust.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the kind of external source a posting came from.
type SourceType string

const (
	// SourceGreenhouse is a Greenhouse-hosted ATS board
	SourceGreenhouse SourceType = "greenhouse"
	// SourceLever is a Lever-hosted ATS board
	SourceLever SourceType = "lever"
	// SourceCompany is a company-published feed or page
	SourceCompany SourceType = "company"
)

// SubmissionMode describes how an application is expected to be submitted.
type SubmissionMode string

const (
	// SubmissionATS means the posting is applied to through the hosting ATS
	SubmissionATS SubmissionMode = "ats"
	// SubmissionDeeplink means the posting links out to an external apply page
	SubmissionDeeplink SubmissionMode = "deeplink"
)

// TrustVerdict is the decision assigned to a domain by the trust evaluator.
type TrustVerdict string

const (
	// VerdictAutoSafe allows postings from the domain without review
	VerdictAutoSafe TrustVerdict = "auto-safe"
	// VerdictNeedsApproval routes the domain to a human reviewer
	VerdictNeedsApproval TrustVerdict = "needs-human-approval"
	// VerdictReject blocks the domain
	VerdictReject TrustVerdict = "reject"
)

// ParseTrustVerdict converts a stored string into a TrustVerdict.
func ParseTrustVerdict(s string) (TrustVerdict, error) {
	switch TrustVerdict(s) {
	case VerdictAutoSafe, VerdictNeedsApproval, VerdictReject:
		return TrustVerdict(s), nil
	}
	return "", fmt.Errorf("unknown trust verdict %q", s)
}

// JobRef is the minimal representation of a listing discovered from a source.
// It lives only for the duration of one adapter pass and is never persisted.
type JobRef struct {
	Source    string         `json:"source"`
	OrgSlug   string         `json:"org_slug"`
	JobID     string         `json:"job_id"`
	Title     string         `json:"title"`
	Location  string         `json:"location"`
	DetailURL string         `json:"detail_url"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// PostedAt is the publication time when the source reports one.
	// Nil means the source gave no parseable date (unknown age).
	PostedAt *time.Time `json:"posted_at,omitempty"`

	// Skip marks a ref that was parsed for observability but must not be
	// normalized or inserted (e.g. older than the configured max age).
	Skip       bool   `json:"-"`
	SkipReason string `json:"-"`
}

// Requirement is one extracted requirement line from a job description.
type Requirement struct {
	Type  string `json:"type"` // "bullet" or "text"
	Value string `json:"value"`
}

// Job is the canonical, persisted posting record. Rows are insert-only: a
// later sighting of the same posting is a dedup skip, never an update.
type Job struct {
	ID             uuid.UUID      `json:"id"`
	Title          string         `json:"title"`
	CompanyName    string         `json:"company_name"`
	Location       string         `json:"location"`
	URL            string         `json:"url"`
	SourceType     SourceType     `json:"source_type"`
	DomainRoot     string         `json:"domain_root"`
	SubmissionMode SubmissionMode `json:"submission_mode"`
	JDText         string         `json:"jd_text"`
	Requirements   []Requirement  `json:"requirements"`
	CanonicalID    string         `json:"canonical_id"`
	ScrapedAt      time.Time      `json:"scraped_at"`
	ContentHash    string         `json:"content_hash"`
}

// JobSource preserves the unprocessed payload behind an accepted Job for
// audit and replay. Written in the same transaction as its Job.
type JobSource struct {
	ID           uuid.UUID      `json:"id"`
	SourceType   SourceType     `json:"source_type"`
	SourceURL    string         `json:"source_url"`
	CompanyName  string         `json:"company_name,omitempty"`
	DomainRoot   string         `json:"domain_root"`
	RawPayload   map[string]any `json:"raw_payload"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	ContentHash  string         `json:"content_hash"`
}

// Signal is one named contribution to a trust score.
type Signal struct {
	Name  string `json:"signal"`
	Value string `json:"value"`
}

// TrustEvent records one trust evaluation of a domain.
type TrustEvent struct {
	ID         uuid.UUID    `json:"id"`
	DomainRoot string       `json:"domain_root"`
	URL        string       `json:"url"`
	Score      int          `json:"score"`
	Signals    []Signal     `json:"signals"`
	Verdict    TrustVerdict `json:"verdict"`
	CreatedAt  time.Time    `json:"created_at"`
}

// FrontierOrg is one persisted crawl target for frontier-based adapters.
// Rows are never deleted, only muted.
type FrontierOrg struct {
	ID            uuid.UUID  `json:"id"`
	Source        string     `json:"source"`
	OrgSlug       string     `json:"org_slug"`
	Priority      int        `json:"priority"`
	DiscoveredAt  time.Time  `json:"discovered_at"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	MutedUntil    *time.Time `json:"muted_until,omitempty"`
}

// WhitelistEntry is a human-approved domain recorded by the external review
// workflow through the trust override interface.
type WhitelistEntry struct {
	DomainRoot  string     `json:"domain_root"`
	CompanyName string     `json:"company_name,omitempty"`
	ATSType     string     `json:"ats_type,omitempty"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

// RunSummary aggregates the counters for one discovery run. Counters only,
// so the result is independent of adapter completion order.
type RunSummary struct {
	TargetsCrawled   int `json:"targets_crawled"`
	PostingsSeen     int `json:"postings_seen"`
	PostingsInserted int `json:"postings_inserted"`
	DomainsScored    int `json:"domains_scored"`
}

// Add accumulates another summary into s.
func (s *RunSummary) Add(other RunSummary) {
	s.TargetsCrawled += other.TargetsCrawled
	s.PostingsSeen += other.PostingsSeen
	s.PostingsInserted += other.PostingsInserted
	s.DomainsScored += other.DomainsScored
}
