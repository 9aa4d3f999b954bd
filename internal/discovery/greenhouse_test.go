package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/ratelimit"
	"github.com/jonathan/job-discovery/internal/types"
)

func newTestFetchClient() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		Timeout:   5 * time.Second,
		UserAgent: "JobDiscoveryBot/1.0",
		Limiter:   ratelimit.NewPerHost(6000),
	})
}

func TestGreenhouseDiscover(t *testing.T) {
	sitemap := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://boards.greenhouse.io/acme</loc></url>
  <url><loc>https://boards.greenhouse.io/acme/jobs/123</loc></url>
  <url><loc>https://boards.greenhouse.io/globex</loc></url>
  <url><loc>https://boards.greenhouse.io/embed/job_board?for=acme</loc></url>
</urlset>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sitemap))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	slugs, err := adapter.Discover(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, slugs)
}

func TestGreenhouseDiscover_BadXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a sitemap"))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	_, err := adapter.Discover(context.Background())

	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "greenhouse", adapterErr.Adapter)
}

func TestGreenhouseListJobs_EmbedJSON(t *testing.T) {
	board := `{
		"departments": [
			{"name": "Engineering", "jobs": [
				{"id": 101, "title": "Backend Engineer", "absolute_url": "https://boards.greenhouse.io/acme/jobs/101", "location": {"name": "Remote"}},
				{"id": 102, "title": "SRE", "absolute_url": "https://boards.greenhouse.io/acme/jobs/102", "location": {"name": "NYC"}}
			]},
			{"name": "Empty", "jobs": []}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/acme/embed/job_board/json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(board))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	refs, err := adapter.ListJobs(context.Background(), "acme")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "101", refs[0].JobID)
	assert.Equal(t, "Backend Engineer", refs[0].Title)
	assert.Equal(t, "Remote", refs[0].Location)
	assert.Equal(t, "acme", refs[0].OrgSlug)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/101", refs[0].DetailURL)
}

func TestGreenhouseListJobs_HTMLFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/embed/job_board/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/acme", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<div class="opening">
				<a href="/acme/jobs/201">Platform Engineer</a>
				<span class="location">Berlin</span>
			</div>
			<div class="opening">
				<a href="/acme/jobs/202">Data Engineer</a>
				<span class="location">Remote</span>
			</div>
		</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	refs, err := adapter.ListJobs(context.Background(), "acme")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "201", refs[0].JobID)
	assert.Equal(t, "Platform Engineer", refs[0].Title)
	assert.Equal(t, "Berlin", refs[0].Location)
	assert.True(t, strings.HasPrefix(refs[0].DetailURL, server.URL), "relative href resolved against board URL")
}

func TestGreenhouseListJobs_FallbackOnInvalidJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/embed/job_board/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>interstitial page</html>"))
	})
	mux.HandleFunc("/acme", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="opening"><a href="/acme/jobs/7">Engineer</a></div>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	refs, err := adapter.ListJobs(context.Background(), "acme")

	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Engineer", refs[0].Title)
}

func TestGreenhouseFetchJobDetail_CompanyFromStructuredData(t *testing.T) {
	page := `<html><head>
		<script type="application/ld+json">{"@type": "JobPosting", "hiringOrganization": {"name": "Acme Corp"}}</script>
	</head><body><h1>Backend Engineer</h1></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	detail, err := adapter.FetchJobDetail(context.Background(), types.JobRef{
		OrgSlug:   "acme",
		JobID:     "101",
		Title:     "Backend Engineer",
		DetailURL: server.URL + "/acme/jobs/101",
	})

	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", detail.CompanyName)
	assert.Contains(t, detail.HTML, "Backend Engineer")
}

func TestGreenhouseFetchJobDetail_CompanyFromTitle(t *testing.T) {
	page := `<html><head><title>Job Application for Backend Engineer at Globex</title></head><body></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	detail, err := adapter.FetchJobDetail(context.Background(), types.JobRef{
		OrgSlug:   "globex",
		DetailURL: server.URL + "/globex/jobs/5",
	})

	require.NoError(t, err)
	assert.Equal(t, "Globex", detail.CompanyName)
}

func TestGreenhouseFetchJobDetail_CompanyFromSlug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>plain page</body></html>"))
	}))
	defer server.Close()

	adapter := NewGreenhouseAdapter(newTestFetchClient(), server.URL, server.URL+"/sitemap.xml")
	detail, err := adapter.FetchJobDetail(context.Background(), types.JobRef{
		OrgSlug:   "initech-systems",
		DetailURL: server.URL + "/initech-systems/jobs/9",
	})

	require.NoError(t, err)
	assert.Equal(t, "Initech Systems", detail.CompanyName)
}

func TestGreenhouseCanonicalID(t *testing.T) {
	adapter := NewGreenhouseAdapter(newTestFetchClient(), "https://boards.greenhouse.io", "")

	tests := []struct {
		name     string
		ref      types.JobRef
		expected string
	}{
		{"from job id", types.JobRef{JobID: "101"}, "GH:101"},
		{"from detail url", types.JobRef{DetailURL: "https://boards.greenhouse.io/acme/jobs/4567"}, "GH:4567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.CanonicalID(tt.ref))
		})
	}

	// No id anywhere: a stable digest of the URL
	ref := types.JobRef{DetailURL: "https://boards.greenhouse.io/acme/openings/abc"}
	first := adapter.CanonicalID(ref)
	assert.True(t, strings.HasPrefix(first, "GH:"))
	assert.Equal(t, first, adapter.CanonicalID(ref))
}

func TestSlugToCompany(t *testing.T) {
	tests := []struct {
		slug     string
		expected string
	}{
		{"acme", "Acme"},
		{"acme-corp", "Acme Corp"},
		{"initech_systems", "Initech Systems"},
		{"éclair-labs", "Éclair Labs"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SlugToCompany(tt.slug); got != tt.expected {
			t.Errorf("SlugToCompany(%q) = %q, want %q", tt.slug, got, tt.expected)
		}
	}
}
