package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/normalize"
	"github.com/jonathan/job-discovery/internal/trust"
	"github.com/jonathan/job-discovery/internal/types"
)

// Store is the persistence surface a discovery run needs. *db.DB satisfies
// it; orchestrator tests use an in-memory fake.
type Store interface {
	SeedFrontier(ctx context.Context, source string, slugs []string) (int, error)
	SelectFrontierBatch(ctx context.Context, source string, limit int) ([]types.FrontierOrg, error)
	JobSeenSince(ctx context.Context, canonicalID string, cutoff time.Time) (bool, error)
	HashSeenSince(ctx context.Context, contentHash string, cutoff time.Time) (bool, error)
	// InsertJobWithSource must re-check both dedup keys against cutoff
	// atomically with the insert and report false when it loses to a
	// concurrent writer. The Seen checks above are only a cheap pre-filter.
	InsertJobWithSource(ctx context.Context, job *types.Job, source *types.JobSource, cutoff time.Time) (bool, error)
}

// Options shapes one discovery run.
type Options struct {
	DedupWindow   time.Duration // sliding window for both dedup stages
	MaxOrgsPerRun int           // frontier batch size per adapter
}

// Orchestrator drives one discovery run across a set of adapters.
type Orchestrator struct {
	store     Store
	evaluator *trust.Evaluator
	adapters  []SourceAdapter
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	summary types.RunSummary
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store Store, evaluator *trust.Evaluator, adapters []SourceAdapter, opts Options) *Orchestrator {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 30 * 24 * time.Hour
	}
	if opts.MaxOrgsPerRun <= 0 {
		opts.MaxOrgsPerRun = 25
	}
	return &Orchestrator{
		store:     store,
		evaluator: evaluator,
		adapters:  adapters,
		opts:      opts,
		now:       time.Now,
	}
}

// RunDiscovery executes one full discovery pass and returns the aggregated
// summary. Adapter and per-target failures are logged and skipped; a store
// failure aborts the run.
func RunDiscovery(ctx context.Context, store Store, evaluator *trust.Evaluator, adapters []SourceAdapter, opts Options) (types.RunSummary, error) {
	return NewOrchestrator(store, evaluator, adapters, opts).Run(ctx)
}

// Run executes the adapters concurrently, one goroutine each, and merges
// their counters. The counters are order-independent, so the result does not
// depend on which adapter finishes first.
func (o *Orchestrator) Run(ctx context.Context) (types.RunSummary, error) {
	o.mu.Lock()
	o.summary = types.RunSummary{}
	o.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, adapter := range o.adapters {
		adapter := adapter
		group.Go(func() error {
			summary, err := o.runAdapter(groupCtx, adapter)
			if err != nil {
				return err
			}
			o.mu.Lock()
			o.summary.Add(summary)
			o.mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return types.RunSummary{}, fmt.Errorf("discovery run aborted: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary, nil
}

// runAdapter executes one adapter's full pass. Returned errors are store
// failures only; everything adapter-scoped is logged here and absorbed.
func (o *Orchestrator) runAdapter(ctx context.Context, adapter SourceAdapter) (types.RunSummary, error) {
	var summary types.RunSummary
	name := adapter.SourceName()

	targets, err := o.selectTargets(ctx, adapter, &summary)
	if err != nil {
		return summary, err
	}

	for _, target := range targets {
		refs, err := adapter.ListJobs(ctx, target)
		if err != nil {
			log.Printf("[orchestrator] %s/%s: listing failed: %v", name, target, err)
			continue
		}

		for _, ref := range refs {
			summary.PostingsSeen++
			if ref.Skip {
				log.Printf("[orchestrator] %s/%s: skipping %q: %s", name, target, ref.Title, ref.SkipReason)
				continue
			}
			inserted, scored, err := o.ingestRef(ctx, adapter, ref)
			if err != nil {
				return summary, err
			}
			if inserted {
				summary.PostingsInserted++
			}
			if scored {
				summary.DomainsScored++
			}
		}
	}
	return summary, nil
}

// selectTargets resolves the targets for one adapter. Frontier adapters seed
// newly discovered orgs and pop a batch; TargetsCrawled counts only these
// persisted targets, not the synthetic ones feed adapters report.
func (o *Orchestrator) selectTargets(ctx context.Context, adapter SourceAdapter, summary *types.RunSummary) ([]string, error) {
	name := adapter.SourceName()

	slugs, err := adapter.Discover(ctx)
	if err != nil {
		// The frontier may still hold orgs from earlier runs.
		log.Printf("[orchestrator] %s: discovery failed: %v", name, err)
		slugs = nil
	}

	if !adapter.UsesFrontier() {
		return slugs, nil
	}

	if len(slugs) > 0 {
		seeded, err := o.store.SeedFrontier(ctx, name, slugs)
		if err != nil {
			return nil, err
		}
		if seeded > 0 {
			log.Printf("[orchestrator] %s: seeded %d new frontier orgs", name, seeded)
		}
	}

	orgs, err := o.store.SelectFrontierBatch(ctx, name, o.opts.MaxOrgsPerRun)
	if err != nil {
		return nil, err
	}

	targets := make([]string, len(orgs))
	for i, org := range orgs {
		targets[i] = org.OrgSlug
	}
	summary.TargetsCrawled += len(targets)
	return targets, nil
}

// ingestRef runs one ref through the pipeline: canonical-id dedup, detail
// fetch, normalization, content-hash dedup, trust gating, atomic insert.
// Returns whether a job row was inserted and whether a fresh domain was
// scored.
func (o *Orchestrator) ingestRef(ctx context.Context, adapter SourceAdapter, ref types.JobRef) (bool, bool, error) {
	name := adapter.SourceName()
	canonicalID := adapter.CanonicalID(ref)

	seen, err := o.store.JobSeenSince(ctx, canonicalID, o.cutoff())
	if err != nil {
		return false, false, err
	}
	if seen {
		return false, false, nil
	}

	detail, err := adapter.FetchJobDetail(ctx, ref)
	if err != nil {
		var disallowed *fetch.DisallowedError
		if errors.As(err, &disallowed) {
			log.Printf("[orchestrator] %s: %v", name, disallowed)
			return false, false, nil
		}
		var adapterErr *Error
		if errors.As(err, &adapterErr) {
			log.Printf("[orchestrator] %s: %v", name, adapterErr)
			return false, false, nil
		}
		return false, false, err
	}

	jdText := normalize.HTMLToText(detail.HTML)
	requirements := normalize.ExtractRequirements(detail.HTML)
	contentHash := normalize.ComputeHash(ref.Title, detail.CompanyName, jdText)

	seen, err = o.store.HashSeenSince(ctx, contentHash, o.cutoff())
	if err != nil {
		return false, false, err
	}
	if seen {
		return false, false, nil
	}

	domainRoot := domainRootOf(ref.DetailURL)
	event, fresh, err := o.evaluator.EvaluateDomain(ctx, domainRoot, ref.DetailURL)
	if err != nil {
		return false, false, err
	}
	if event.Verdict == types.VerdictReject {
		log.Printf("[orchestrator] %s: rejecting %q: domain %s is untrusted", name, ref.Title, domainRoot)
		return false, fresh, nil
	}

	now := o.now().UTC()
	job := &types.Job{
		ID:             uuid.New(),
		Title:          ref.Title,
		CompanyName:    detail.CompanyName,
		Location:       ref.Location,
		URL:            ref.DetailURL,
		SourceType:     adapter.SourceType(),
		DomainRoot:     domainRoot,
		SubmissionMode: adapter.SubmissionMode(),
		JDText:         jdText,
		Requirements:   requirements,
		CanonicalID:    canonicalID,
		ScrapedAt:      now,
		ContentHash:    contentHash,
	}
	source := &types.JobSource{
		ID:           uuid.New(),
		SourceType:   adapter.SourceType(),
		SourceURL:    ref.DetailURL,
		CompanyName:  detail.CompanyName,
		DomainRoot:   domainRoot,
		RawPayload:   detail.Metadata,
		DiscoveredAt: now,
		ContentHash:  contentHash,
	}

	inserted, err := o.store.InsertJobWithSource(ctx, job, source, o.cutoff())
	if err != nil {
		return false, fresh, err
	}
	return inserted, fresh, nil
}

// cutoff is recomputed per check so the dedup window slides during long runs.
func (o *Orchestrator) cutoff() time.Time {
	return o.now().UTC().Add(-o.opts.DedupWindow)
}

func domainRootOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
