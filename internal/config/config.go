// Package config provides configuration loading and validation for the
// discovery pipeline. Settings are read once at startup from environment
// variables (plus an optional .env loaded in main) and passed explicitly
// into each component's constructor; there is no global singleton.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default fallback URL lists for the bundled feed sources. Each list is
// ordered; the first URL that responds wins.
var (
	defaultSimplifyURLs = []string{
		"https://raw.githubusercontent.com/SimplifyJobs/New-Grad-Positions/main/.github/scripts/listings.json",
		"https://raw.githubusercontent.com/SimplifyJobs/New-Grad-Positions/main/data/positions.json",
	}
	defaultNewGradURLs = []string{
		"https://raw.githubusercontent.com/vanshb03/New-Grad-2026/main/.github/scripts/listings.json",
		"https://raw.githubusercontent.com/vanshb03/New-Grad-2026/main/data/positions.json",
	}
)

// FeedSource configures one JSON-feed adapter instance.
type FeedSource struct {
	Name       string   `validate:"required"`
	Slug       string   `validate:"required"`
	DataURLs   []string `validate:"min=1,dive,url"`
	MaxAgeDays int      `validate:"gte=0"`
	Enabled    bool
}

// Settings holds all runtime configuration for the discovery pipeline.
// The struct is immutable after Load returns.
type Settings struct {
	DatabaseURL string `validate:"required"`

	// Greenhouse frontier adapter
	EnableGreenhouse    bool
	DiscoveryBaseURL    string   `validate:"url"`
	DiscoverySitemapURL string   `validate:"url"`
	AllowedDomains      []string `validate:"min=1"`

	// Feed adapters
	FeedSources []FeedSource `validate:"dive"`

	// Fetch behavior
	RequestsPerMinute     int    `validate:"gte=1"`
	RequestTimeoutSeconds int    `validate:"gte=1"`
	UserAgent             string `validate:"required"`

	// Run shape
	MaxOrgsPerRun   int `validate:"gte=1"`
	DedupWindowDays int `validate:"gte=1"`
}

// Load reads environment variables and returns a validated Settings.
// Missing optional variables fall back to defaults; a missing DATABASE_URL
// is a startup error.
func Load() (*Settings, error) {
	s := &Settings{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		EnableGreenhouse:      envBool("ENABLE_GREENHOUSE", true),
		DiscoveryBaseURL:      envString("DISCOVERY_BASE_URL", "https://boards.greenhouse.io"),
		DiscoverySitemapURL:   envString("DISCOVERY_SITEMAP_URL", "https://boards.greenhouse.io/sitemap.xml"),
		AllowedDomains:        envList("ALLOWED_DOMAINS", []string{"boards.greenhouse.io"}),
		RequestsPerMinute:     0,
		RequestTimeoutSeconds: 0,
		UserAgent:             envString("DISCOVERY_USER_AGENT", "JobDiscoveryBot/1.0"),
	}

	var err error
	if s.RequestsPerMinute, err = envInt("REQUESTS_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if s.RequestTimeoutSeconds, err = envInt("REQUEST_TIMEOUT_SECONDS", 15); err != nil {
		return nil, err
	}
	if s.MaxOrgsPerRun, err = envInt("MAX_ORGS_PER_RUN", 25); err != nil {
		return nil, err
	}
	if s.DedupWindowDays, err = envInt("DEDUP_WINDOW_DAYS", 30); err != nil {
		return nil, err
	}

	maxAge, err := envInt("FEED_MAX_AGE_DAYS", 7)
	if err != nil {
		return nil, err
	}

	s.FeedSources = []FeedSource{
		{
			Name:       "simplify",
			Slug:       "simplify",
			DataURLs:   envList("SIMPLIFY_POSITIONS_URLS", defaultSimplifyURLs),
			MaxAgeDays: maxAge,
			Enabled:    envBool("ENABLE_SIMPLIFY", true),
		},
		{
			Name:       "newgrad2026",
			Slug:       "newgrad2026",
			DataURLs:   envList("NEWGRAD_POSITIONS_URLS", defaultNewGradURLs),
			MaxAgeDays: maxAge,
			Enabled:    envBool("ENABLE_NEWGRAD2026", true),
		},
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings against their struct constraints.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return parsed, nil
}

// envList splits a comma-separated environment variable into trimmed,
// non-empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
