package discovery

import (
	"context"
	"crypto/sha1"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/job-discovery/internal/config"
	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/types"
)

// Alias keys accepted for each logical field. Community feeds rename fields
// across schema revisions; the first present, non-empty key wins.
var (
	companyKeys     = []string{"company", "company_name", "employer", "organization"}
	titleKeys       = []string{"title", "role", "position", "job_title", "name"}
	urlKeys         = []string{"url", "application_link", "apply_link", "link", "job_url"}
	locationKeys    = []string{"location", "locations"}
	idKeys          = []string{"id", "uuid", "slug"}
	dateKeys        = []string{"date_posted", "date_updated", "posted_at", "created_at", "date_added"}
	descriptionKeys = []string{"description", "notes", "about"}
	requirementKeys = []string{"qualifications", "requirements"}
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// FeedAdapter reads a community-maintained JSON feed of postings. It has no
// crawl frontier: each run reads the whole document behind a single synthetic
// target named after the feed.
type FeedAdapter struct {
	client *fetch.Client
	cfg    config.FeedSource
	now    func() time.Time
}

// NewFeedAdapter constructs a FeedAdapter for one configured feed.
func NewFeedAdapter(client *fetch.Client, cfg config.FeedSource) *FeedAdapter {
	return &FeedAdapter{client: client, cfg: cfg, now: time.Now}
}

func (a *FeedAdapter) SourceName() string { return a.cfg.Name }

func (a *FeedAdapter) SourceType() types.SourceType { return types.SourceCompany }

func (a *FeedAdapter) SubmissionMode() types.SubmissionMode { return types.SubmissionDeeplink }

func (a *FeedAdapter) UsesFrontier() bool { return false }

// Discover returns the single synthetic target for this feed.
func (a *FeedAdapter) Discover(ctx context.Context) ([]string, error) {
	return []string{a.cfg.Slug}, nil
}

// ListJobs downloads the feed and flattens it into refs. The configured URLs
// are tried in order; the first one that parses wins. Entries older than the
// configured max age, or marked inactive, are returned with Skip set so the
// run still counts them as seen.
func (a *FeedAdapter) ListJobs(ctx context.Context, orgSlug string) ([]types.JobRef, error) {
	payload, sourceURL, err := a.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	entries := flattenFeed(payload)
	refs := make([]types.JobRef, 0, len(entries))
	cutoff := a.now().UTC().AddDate(0, 0, -a.cfg.MaxAgeDays)

	for _, entry := range entries {
		ref, ok := a.refFromEntry(entry, sourceURL)
		if !ok {
			continue
		}
		if active, present := entry["active"].(bool); present && !active {
			ref.Skip = true
			ref.SkipReason = "marked inactive"
		} else if a.cfg.MaxAgeDays > 0 && ref.PostedAt != nil && ref.PostedAt.Before(cutoff) {
			// Postings with no parseable date are unknown age and stay in.
			ref.Skip = true
			ref.SkipReason = fmt.Sprintf("older than %d days", a.cfg.MaxAgeDays)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// fetchFeed tries each configured URL in order and returns the first payload
// that downloads and parses.
func (a *FeedAdapter) fetchFeed(ctx context.Context) (any, string, error) {
	var lastErr error
	for _, feedURL := range a.cfg.DataURLs {
		var payload any
		if err := a.client.GetJSON(ctx, feedURL, &payload); err != nil {
			lastErr = err
			continue
		}
		return payload, feedURL, nil
	}
	return nil, "", &Error{Adapter: a.cfg.Name, Target: a.cfg.Slug, Message: "all feed URLs failed", Cause: lastErr}
}

// flattenFeed extracts posting entries from any of the known payload shapes:
// a top-level list, {"positions": [...]}, {"listings": [...]}, or
// {"companies": [{company, roles|positions: [...]}]}. Unknown object shapes
// fall back to sweeping every list-valued key.
func flattenFeed(payload any) []map[string]any {
	switch typed := payload.(type) {
	case []any:
		return entryMaps(typed)
	case map[string]any:
		if list, ok := typed["positions"].([]any); ok {
			return entryMaps(list)
		}
		if list, ok := typed["listings"].([]any); ok {
			return entryMaps(list)
		}
		if companies, ok := typed["companies"].([]any); ok {
			return flattenCompanies(companies)
		}
		var entries []map[string]any
		for _, value := range typed {
			if list, ok := value.([]any); ok {
				entries = append(entries, entryMaps(list)...)
			}
		}
		return entries
	}
	return nil
}

// flattenCompanies expands company-grouped feeds, pushing the company name
// down into each role entry that lacks one.
func flattenCompanies(companies []any) []map[string]any {
	var entries []map[string]any
	for _, raw := range companies {
		group, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		companyName := stringField(group, companyKeys)

		roles, ok := group["roles"].([]any)
		if !ok {
			roles, _ = group["positions"].([]any)
		}
		for _, entry := range entryMaps(roles) {
			if stringField(entry, companyKeys) == "" && companyName != "" {
				entry["company"] = companyName
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func entryMaps(list []any) []map[string]any {
	entries := make([]map[string]any, 0, len(list))
	for _, raw := range list {
		if entry, ok := raw.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (a *FeedAdapter) refFromEntry(entry map[string]any, sourceURL string) (types.JobRef, bool) {
	title := stringField(entry, titleKeys)
	detailURL := stringField(entry, urlKeys)
	if title == "" || detailURL == "" {
		return types.JobRef{}, false
	}

	ref := types.JobRef{
		Source:    a.cfg.Name,
		OrgSlug:   a.cfg.Slug,
		JobID:     stringField(entry, idKeys),
		Title:     title,
		Location:  locationField(entry),
		DetailURL: detailURL,
		Metadata: map[string]any{
			"company":  stringField(entry, companyKeys),
			"feed_url": sourceURL,
			"entry":    entry,
		},
	}

	for _, key := range dateKeys {
		if value, ok := entry[key]; ok {
			if parsed := parseFeedDate(value); parsed != nil {
				ref.PostedAt = parsed
				break
			}
		}
	}
	return ref, true
}

func stringField(entry map[string]any, keys []string) string {
	for _, key := range keys {
		switch value := entry[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatInt(int64(value), 10)
		}
	}
	return ""
}

// listValues returns the first present key's values as strings, accepting
// either a list or a single string.
func listValues(entry map[string]any, keys []string) []string {
	for _, key := range keys {
		switch value := entry[key].(type) {
		case []any:
			var items []string
			for _, item := range value {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					items = append(items, strings.TrimSpace(s))
				}
			}
			if len(items) > 0 {
				return items
			}
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return []string{trimmed}
			}
		}
	}
	return nil
}

// locationField joins list-valued locations with commas.
func locationField(entry map[string]any) string {
	for _, key := range locationKeys {
		switch value := entry[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case []any:
			var parts []string
			for _, item := range value {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// parseFeedDate accepts numeric epochs (milliseconds when the magnitude says
// so), numeric strings, and the common date layouts. Nil means unparseable.
func parseFeedDate(value any) *time.Time {
	switch typed := value.(type) {
	case float64:
		return epochTime(int64(typed))
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return nil
		}
		if epoch, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return epochTime(epoch)
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		}
	}
	return nil
}

func epochTime(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	var t time.Time
	if epoch > 1_000_000_000_000 {
		t = time.UnixMilli(epoch).UTC()
	} else {
		t = time.Unix(epoch, 0).UTC()
	}
	return &t
}

// FetchJobDetail synthesizes a detail document from the feed entry. Feeds
// carry everything they know in the listing, so no second network call is
// made. Qualifications become a Requirements section so the normalizer picks
// them up like any crawled posting.
func (a *FeedAdapter) FetchJobDetail(ctx context.Context, ref types.JobRef) (*JobDetail, error) {
	company, _ := ref.Metadata["company"].(string)
	if company == "" {
		company = SlugToCompany(a.cfg.Slug)
	}
	entry, _ := ref.Metadata["entry"].(map[string]any)

	var builder strings.Builder
	builder.WriteString("<html><body>")
	builder.WriteString("<h1>" + html.EscapeString(ref.Title) + "</h1>")
	builder.WriteString("<p>" + html.EscapeString(company) + "</p>")
	if ref.Location != "" {
		builder.WriteString("<p>" + html.EscapeString(ref.Location) + "</p>")
	}
	if entry != nil {
		if desc := stringField(entry, descriptionKeys); desc != "" {
			builder.WriteString("<p>" + html.EscapeString(desc) + "</p>")
		}
		if quals := listValues(entry, requirementKeys); len(quals) > 0 {
			builder.WriteString("<h2>Requirements</h2><ul>")
			for _, qual := range quals {
				builder.WriteString("<li>" + html.EscapeString(qual) + "</li>")
			}
			builder.WriteString("</ul>")
		}
	}
	builder.WriteString("</body></html>")

	return &JobDetail{
		Ref:         ref,
		HTML:        builder.String(),
		CompanyName: company,
		Metadata:    ref.Metadata,
	}, nil
}

// CanonicalID is "<SOURCE>:<native id>", falling back to a URL digest when
// the feed entry carried no id.
func (a *FeedAdapter) CanonicalID(ref types.JobRef) string {
	id := ref.JobID
	if id == "" {
		id = fmt.Sprintf("%x", sha1.Sum([]byte(ref.DetailURL)))
	}
	return strings.ToUpper(a.cfg.Name) + ":" + id
}
