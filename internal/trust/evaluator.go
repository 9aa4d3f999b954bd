// Package trust assigns deterministic trust verdicts to posting domains.
// A domain is scored at most once while unknown; later sightings reuse the
// stored verdict until the external review workflow overrides it.
package trust

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/types"
)

// Verdict thresholds. Boundaries are inclusive: a score of exactly 70 is
// auto-safe and exactly 40 needs human approval.
const (
	autoSafeThreshold = 70
	approvalThreshold = 40
)

// Signal point deltas. The sum is clamped to [0,100] before the verdict is
// derived.
const (
	deltaKnownATS       = 45
	deltaWorkday        = 35
	deltaHTTPS          = 20
	deltaCommonTLD      = 25
	deltaBrandLabel     = 10
	deltaSuspiciousTLD  = -25
	deltaDeepSubdomains = -10
	deltaPunycode       = -30
	deltaIPHost         = -40
)

var (
	commonTLDs     = map[string]bool{"com": true, "io": true, "org": true, "net": true, "co": true, "dev": true, "ai": true}
	suspiciousTLDs = map[string]bool{"tk": true, "top": true, "xyz": true, "zip": true, "click": true, "loan": true, "work": true, "rest": true}
)

// Store is the persistence surface the evaluator needs: prior events,
// recorded evaluations and human overrides.
type Store interface {
	LatestTrustEvent(ctx context.Context, domainRoot string) (*types.TrustEvent, error)
	InsertTrustEvent(ctx context.Context, event *types.TrustEvent) error
	GetWhitelistEntry(ctx context.Context, domainRoot string) (*types.WhitelistEntry, error)
	UpsertWhitelistEntry(ctx context.Context, entry *types.WhitelistEntry) error
}

// Evaluator scores domains and records TrustEvents.
type Evaluator struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	domains map[string]*sync.Mutex
}

// NewEvaluator constructs an Evaluator backed by store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{
		store:   store,
		now:     time.Now,
		domains: make(map[string]*sync.Mutex),
	}
}

// domainLock returns the mutex serializing evaluations of one domain, so
// concurrent first sightings cannot both score it.
func (e *Evaluator) domainLock(domainRoot string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.domains[domainRoot]
	if !ok {
		lock = &sync.Mutex{}
		e.domains[domainRoot] = lock
	}
	return lock
}

// EvaluateDomain returns the governing TrustEvent for domainRoot. A stored
// whitelist override or prior event wins; only a never-seen domain is scored
// and recorded. Callers racing on the same domain are serialized, so exactly
// one of them evaluates. The boolean reports whether a fresh evaluation
// happened.
func (e *Evaluator) EvaluateDomain(ctx context.Context, domainRoot, rawURL string) (*types.TrustEvent, bool, error) {
	domainRoot = strings.ToLower(domainRoot)

	lock := e.domainLock(domainRoot)
	lock.Lock()
	defer lock.Unlock()

	entry, err := e.store.GetWhitelistEntry(ctx, domainRoot)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check whitelist for %s: %w", domainRoot, err)
	}
	if entry != nil {
		return &types.TrustEvent{
			ID:         uuid.New(),
			DomainRoot: domainRoot,
			URL:        rawURL,
			Score:      100,
			Signals:    []types.Signal{{Name: "whitelist", Value: entry.ApprovedBy}},
			Verdict:    types.VerdictAutoSafe,
			CreatedAt:  e.now().UTC(),
		}, false, nil
	}

	existing, err := e.store.LatestTrustEvent(ctx, domainRoot)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load trust event for %s: %w", domainRoot, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	score, signals, verdict := Score(domainRoot, rawURL)
	event := &types.TrustEvent{
		ID:         uuid.New(),
		DomainRoot: domainRoot,
		URL:        rawURL,
		Score:      score,
		Signals:    signals,
		Verdict:    verdict,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.InsertTrustEvent(ctx, event); err != nil {
		return nil, false, fmt.Errorf("failed to record trust event for %s: %w", domainRoot, err)
	}
	return event, true, nil
}

// Verdict returns the stored verdict for a domain, or nil when the domain
// has never been evaluated. This is the read half of the collaborator
// interface consumed by the external approval workflow.
func (e *Evaluator) Verdict(ctx context.Context, domainRoot string) (*types.TrustVerdict, error) {
	domainRoot = strings.ToLower(domainRoot)

	entry, err := e.store.GetWhitelistEntry(ctx, domainRoot)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		verdict := types.VerdictAutoSafe
		return &verdict, nil
	}

	event, err := e.store.LatestTrustEvent(ctx, domainRoot)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, nil
	}
	verdict := event.Verdict
	return &verdict, nil
}

// SetOverride records a human decision for a domain, replacing whatever the
// rule-based score produced. Approving writes a whitelist entry; any verdict
// is also recorded as a fresh TrustEvent so the audit trail stays complete.
func (e *Evaluator) SetOverride(ctx context.Context, domainRoot string, verdict types.TrustVerdict, approvedBy string) error {
	domainRoot = strings.ToLower(domainRoot)
	now := e.now().UTC()

	if verdict == types.VerdictAutoSafe {
		entry := &types.WhitelistEntry{
			DomainRoot: domainRoot,
			ATSType:    string(fetch.DetectPlatformHost(domainRoot)),
			ApprovedBy: approvedBy,
			ApprovedAt: &now,
		}
		if err := e.store.UpsertWhitelistEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to whitelist %s: %w", domainRoot, err)
		}
	}

	event := &types.TrustEvent{
		ID:         uuid.New(),
		DomainRoot: domainRoot,
		URL:        "",
		Score:      overrideScore(verdict),
		Signals:    []types.Signal{{Name: "override", Value: approvedBy}},
		Verdict:    verdict,
		CreatedAt:  now,
	}
	if err := e.store.InsertTrustEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record override for %s: %w", domainRoot, err)
	}
	return nil
}

func overrideScore(verdict types.TrustVerdict) int {
	switch verdict {
	case types.VerdictAutoSafe:
		return 100
	case types.VerdictNeedsApproval:
		return approvalThreshold
	default:
		return 0
	}
}

// Score computes the deterministic rule-based trust score for a domain.
// Pure: same inputs always produce the same score, signals and verdict.
func Score(domainRoot, rawURL string) (int, []types.Signal, types.TrustVerdict) {
	domainRoot = strings.ToLower(strings.TrimSpace(domainRoot))
	score := 0
	signals := make([]types.Signal, 0, 6)

	add := func(name, value string, delta int) {
		score += delta
		signals = append(signals, types.Signal{Name: name, Value: value})
	}

	switch platform := fetch.DetectPlatformHost(domainRoot); platform {
	case fetch.PlatformGreenhouse, fetch.PlatformLever:
		add("known_ats", string(platform), deltaKnownATS)
	case fetch.PlatformWorkday:
		add("known_ats", string(platform), deltaWorkday)
	}

	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		add("https", "present", deltaHTTPS)
	}

	host := domainRoot
	if h, _, err := net.SplitHostPort(domainRoot); err == nil {
		host = h
	}

	if net.ParseIP(host) != nil {
		add("ip_host", host, deltaIPHost)
	} else {
		labels := strings.Split(host, ".")
		tld := labels[len(labels)-1]

		if commonTLDs[tld] {
			add("common_tld", tld, deltaCommonTLD)
		}
		if suspiciousTLDs[tld] {
			add("suspicious_tld", tld, deltaSuspiciousTLD)
		}
		if len(labels) > 4 {
			add("deep_subdomains", host, deltaDeepSubdomains)
		}
		if strings.Contains(host, "xn--") {
			add("punycode", host, deltaPunycode)
		}
		if len(labels) >= 2 && coherentBrandLabel(labels[len(labels)-2]) {
			add("brand_label", labels[len(labels)-2], deltaBrandLabel)
		}
	}

	score = clamp(score)
	return score, signals, VerdictFor(score)
}

// coherentBrandLabel reports whether the registrable label looks like a real
// brand name rather than machine-generated noise.
func coherentBrandLabel(label string) bool {
	if len(label) < 3 {
		return false
	}
	if strings.Count(label, "-") > 2 {
		return false
	}
	digits := 0
	for _, r := range label {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits*2 < len(label)
}

// VerdictFor maps a clamped score to its verdict.
func VerdictFor(score int) types.TrustVerdict {
	switch {
	case score >= autoSafeThreshold:
		return types.VerdictAutoSafe
	case score >= approvalThreshold:
		return types.VerdictNeedsApproval
	default:
		return types.VerdictReject
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
