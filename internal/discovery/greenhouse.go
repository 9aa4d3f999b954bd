package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/types"
)

const greenhouseSource = "greenhouse"

var jobIDPattern = regexp.MustCompile(`/jobs/(\d+)`)

// GreenhouseAdapter crawls Greenhouse-hosted boards. Org slugs come from the
// public sitemap; per-org listings use the embed JSON API with an HTML board
// scrape as fallback.
type GreenhouseAdapter struct {
	client     *fetch.Client
	baseURL    string
	sitemapURL string
}

// NewGreenhouseAdapter constructs a GreenhouseAdapter.
func NewGreenhouseAdapter(client *fetch.Client, baseURL, sitemapURL string) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sitemapURL: sitemapURL,
	}
}

func (a *GreenhouseAdapter) SourceName() string { return greenhouseSource }

func (a *GreenhouseAdapter) SourceType() types.SourceType { return types.SourceGreenhouse }

func (a *GreenhouseAdapter) SubmissionMode() types.SubmissionMode { return types.SubmissionATS }

func (a *GreenhouseAdapter) UsesFrontier() bool { return true }

type sitemapIndex struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Discover parses the board sitemap and returns the org slugs it mentions,
// deduplicated in order of first appearance.
func (a *GreenhouseAdapter) Discover(ctx context.Context) ([]string, error) {
	result, err := a.client.Get(ctx, a.sitemapURL)
	if err != nil {
		return nil, &Error{Adapter: greenhouseSource, Target: "sitemap", Message: "failed to fetch sitemap", Cause: err}
	}

	var sitemap sitemapIndex
	if err := xml.Unmarshal(result.Body, &sitemap); err != nil {
		return nil, &Error{Adapter: greenhouseSource, Target: "sitemap", Message: "failed to parse sitemap XML", Cause: err}
	}

	seen := make(map[string]bool)
	var slugs []string
	for _, entry := range sitemap.URLs {
		slug := orgSlugFromURL(entry.Loc)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		slugs = append(slugs, slug)
	}
	return slugs, nil
}

// orgSlugFromURL extracts the org slug from a board URL: the first path
// segment of links like https://boards.greenhouse.io/<slug>[/jobs/<id>].
func orgSlugFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	slug := strings.ToLower(segments[0])
	switch slug {
	case "embed", "sitemap.xml", "robots.txt":
		return ""
	}
	return slug
}

// embedBoard is the embed job_board JSON payload: jobs grouped under
// departments, sometimes with a flat top-level jobs list as well.
type embedBoard struct {
	Departments []struct {
		Name string     `json:"name"`
		Jobs []embedJob `json:"jobs"`
	} `json:"departments"`
	Jobs []embedJob `json:"jobs"`
}

type embedJob struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	AbsoluteURL string      `json:"absolute_url"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

// ListJobs lists the open roles for one org. The embed JSON endpoint is
// authoritative; boards that refuse it (403/404/500 or an HTML error page)
// fall back to scraping the public board page.
func (a *GreenhouseAdapter) ListJobs(ctx context.Context, orgSlug string) ([]types.JobRef, error) {
	feedURL := fmt.Sprintf("%s/%s/embed/job_board/json", a.baseURL, orgSlug)

	var board embedBoard
	err := a.client.GetJSON(ctx, feedURL, &board)
	if err == nil {
		return a.refsFromBoard(orgSlug, &board), nil
	}

	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) && isBoardFallbackStatus(fetchErr) {
		return a.listJobsHTML(ctx, orgSlug)
	}
	return nil, &Error{Adapter: greenhouseSource, Target: orgSlug, Message: "failed to list jobs", Cause: err}
}

// isBoardFallbackStatus reports whether an embed feed failure should trigger
// the HTML board fallback rather than a hard error.
func isBoardFallbackStatus(err *fetch.Error) bool {
	switch err.StatusCode {
	case 403, 404, 500:
		return true
	}
	return err.Message == "invalid JSON"
}

func (a *GreenhouseAdapter) refsFromBoard(orgSlug string, board *embedBoard) []types.JobRef {
	jobs := board.Jobs
	for _, dept := range board.Departments {
		jobs = append(jobs, dept.Jobs...)
	}

	seen := make(map[string]bool)
	refs := make([]types.JobRef, 0, len(jobs))
	for _, job := range jobs {
		if job.Title == "" || job.AbsoluteURL == "" {
			continue
		}
		id := job.ID.String()
		if id == "" || id == "0" {
			id = jobIDFromURL(job.AbsoluteURL)
		}
		if seen[id+job.AbsoluteURL] {
			continue
		}
		seen[id+job.AbsoluteURL] = true

		refs = append(refs, types.JobRef{
			Source:    greenhouseSource,
			OrgSlug:   orgSlug,
			JobID:     id,
			Title:     strings.TrimSpace(job.Title),
			Location:  strings.TrimSpace(job.Location.Name),
			DetailURL: job.AbsoluteURL,
		})
	}
	return refs
}

// listJobsHTML scrapes the public board page: each opening is a div.opening
// with an anchor (title + link) and a span.location.
func (a *GreenhouseAdapter) listJobsHTML(ctx context.Context, orgSlug string) ([]types.JobRef, error) {
	boardURL := fmt.Sprintf("%s/%s", a.baseURL, orgSlug)
	result, err := a.client.Get(ctx, boardURL)
	if err != nil {
		return nil, &Error{Adapter: greenhouseSource, Target: orgSlug, Message: "failed to fetch board page", Cause: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML()))
	if err != nil {
		return nil, &Error{Adapter: greenhouseSource, Target: orgSlug, Message: "failed to parse board page", Cause: err}
	}

	base, _ := url.Parse(boardURL)
	var refs []types.JobRef
	doc.Find("div.opening").Each(func(_ int, sel *goquery.Selection) {
		anchor := sel.Find("a").First()
		href, ok := anchor.Attr("href")
		title := strings.TrimSpace(anchor.Text())
		if !ok || title == "" {
			return
		}
		detailURL := resolveURL(base, href)
		refs = append(refs, types.JobRef{
			Source:    greenhouseSource,
			OrgSlug:   orgSlug,
			JobID:     jobIDFromURL(detailURL),
			Title:     title,
			Location:  strings.TrimSpace(sel.Find("span.location").First().Text()),
			DetailURL: detailURL,
		})
	})
	return refs, nil
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func jobIDFromURL(rawURL string) string {
	match := jobIDPattern.FindStringSubmatch(rawURL)
	if len(match) == 2 {
		return match[1]
	}
	return ""
}

// FetchJobDetail pulls the posting page and recovers the company name from
// the embedded JobPosting structured data, falling back to the page title and
// finally to title-casing the org slug.
func (a *GreenhouseAdapter) FetchJobDetail(ctx context.Context, ref types.JobRef) (*JobDetail, error) {
	result, err := a.client.Get(ctx, ref.DetailURL)
	if err != nil {
		return nil, &Error{Adapter: greenhouseSource, Target: ref.OrgSlug, Message: "failed to fetch job detail", Cause: err}
	}

	html := result.HTML()
	company := companyFromLDJSON(html)
	if company == "" {
		company = companyFromTitle(html)
	}
	if company == "" {
		company = SlugToCompany(ref.OrgSlug)
	}

	return &JobDetail{
		Ref:         ref,
		HTML:        html,
		CompanyName: company,
		Metadata:    map[string]any{"org_slug": ref.OrgSlug},
	}, nil
}

// CanonicalID is "GH:<native job id>"; refs whose listing carried no id fall
// back to the id embedded in the detail URL, then to a URL digest.
func (a *GreenhouseAdapter) CanonicalID(ref types.JobRef) string {
	id := ref.JobID
	if id == "" {
		id = jobIDFromURL(ref.DetailURL)
	}
	if id == "" {
		id = fmt.Sprintf("%x", sha1.Sum([]byte(ref.DetailURL)))
	}
	return "GH:" + id
}

// companyFromLDJSON scans application/ld+json blocks for a JobPosting and
// returns its hiring organization name.
func companyFromLDJSON(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var company string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var posting struct {
			Type               string `json:"@type"`
			HiringOrganization struct {
				Name string `json:"name"`
			} `json:"hiringOrganization"`
		}
		if err := json.Unmarshal([]byte(sel.Text()), &posting); err != nil {
			return true
		}
		if posting.Type == "JobPosting" && posting.HiringOrganization.Name != "" {
			company = strings.TrimSpace(posting.HiringOrganization.Name)
			return false
		}
		return true
	})
	return company
}

// companyFromTitle parses "Job Application for <role> at <company>" page
// titles used by hosted boards.
func companyFromTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if idx := strings.LastIndex(title, " at "); idx >= 0 {
		return strings.TrimSpace(title[idx+len(" at "):])
	}
	return ""
}

// SlugToCompany turns an org slug into a display name: separators become
// spaces and each word is title-cased.
func SlugToCompany(slug string) string {
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	words := strings.Fields(slug)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
