package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-discovery/internal/ratelimit"
)

func newTestClient(opts Options) *Client {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewPerHost(6000)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	return NewClient(opts)
}

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JobDiscoveryBot/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<h1>ok</h1>"))
	}))
	defer server.Close()

	client := newTestClient(Options{UserAgent: "JobDiscoveryBot/1.0"})
	result, err := client.Get(context.Background(), server.URL+"/page")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "<h1>ok</h1>", result.HTML())
}

func TestGet_RetriesOnceOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := newTestClient(Options{})
	result, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "recovered", result.HTML())
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(Options{})
	_, err := client.Get(context.Background(), server.URL)

	require.Error(t, err)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_AllowlistBlocksOtherHosts(t *testing.T) {
	client := newTestClient(Options{AllowedDomains: []string{"boards.greenhouse.io"}})

	_, err := client.Get(context.Background(), "https://evil.example.com/jobs")

	var disallowed *DisallowedError
	require.True(t, errors.As(err, &disallowed))
	assert.Contains(t, disallowed.Reason, "allowlist")
}

func TestGet_AllowlistRequiresHTTPS(t *testing.T) {
	client := newTestClient(Options{AllowedDomains: []string{"boards.greenhouse.io"}})

	_, err := client.Get(context.Background(), "http://boards.greenhouse.io/acme")

	var disallowed *DisallowedError
	require.True(t, errors.As(err, &disallowed))
	assert.Contains(t, disallowed.Reason, "https")
}

func TestGet_RobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("public"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(Options{CheckRobots: true})

	result, err := client.Get(context.Background(), server.URL+"/jobs")
	require.NoError(t, err)
	assert.Equal(t, "public", result.HTML())

	_, err = client.Get(context.Background(), server.URL+"/private/page")
	var disallowed *DisallowedError
	require.True(t, errors.As(err, &disallowed))
	assert.Contains(t, disallowed.Reason, "robots.txt")
}

func TestGet_RobotsFetchFailureAllowsAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(Options{CheckRobots: true})
	result, err := client.Get(context.Background(), server.URL+"/anything")

	require.NoError(t, err)
	assert.Equal(t, "ok", result.HTML())
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobs": [{"id": 1}]}`))
	}))
	defer server.Close()

	client := newTestClient(Options{})

	var payload map[string]any
	err := client.GetJSON(context.Background(), server.URL, &payload)
	require.NoError(t, err)
	assert.Contains(t, payload, "jobs")

	var broken map[string]any
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer badServer.Close()

	err = client.GetJSON(context.Background(), badServer.URL, &broken)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Contains(t, fetchErr.Message, "invalid JSON")
}

func TestGet_InvalidURL(t *testing.T) {
	client := newTestClient(Options{})

	_, err := client.Get(context.Background(), "://missing-scheme")
	assert.Error(t, err)
}
