// Package discovery contains the source adapters and the orchestrator that
// drives one discovery run: list postings from each source, normalize them,
// dedup against the recent window, score their domains and persist the
// survivors.
package discovery

import (
	"context"
	"fmt"

	"github.com/jonathan/job-discovery/internal/types"
)

// JobDetail is the full detail payload fetched for one JobRef.
type JobDetail struct {
	Ref         types.JobRef
	HTML        string
	CompanyName string
	Metadata    map[string]any
}

// SourceAdapter is implemented once per external source family. Frontier
// adapters crawl persisted org targets; feed adapters read a static document
// and report a single synthetic target.
type SourceAdapter interface {
	// Discover returns new org slugs (frontier adapters) or the synthetic
	// target list (feed adapters).
	Discover(ctx context.Context) ([]string, error)

	// ListJobs returns the current refs for one target.
	ListJobs(ctx context.Context, orgSlug string) ([]types.JobRef, error)

	// FetchJobDetail resolves a ref into its full detail payload.
	FetchJobDetail(ctx context.Context, ref types.JobRef) (*JobDetail, error)

	// CanonicalID derives the stable cross-run identifier for a ref.
	CanonicalID(ref types.JobRef) string

	SourceName() string
	SourceType() types.SourceType
	SubmissionMode() types.SubmissionMode
	UsesFrontier() bool
}

// Error is an adapter-scoped failure: one source or one target misbehaved.
// The orchestrator logs these and moves on; they never abort a run.
type Error struct {
	Adapter string
	Target  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("discovery error [%s/%s]: %s: %v", e.Adapter, e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("discovery error [%s/%s]: %s", e.Adapter, e.Target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
