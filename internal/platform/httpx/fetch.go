package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
)

// StatusError is a non-2xx response from a fetched URL.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Fetcher downloads provider-hosted objects (transcripts, thumbnails,
// generated images) with a shared rate limit and a bounded retry loop.
type Fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	maxBytes   int64
}

func NewFetcher() *Fetcher {
	rps := envutil.Float("FETCH_RPS", 10)
	if rps <= 0 {
		rps = 10
	}
	return &Fetcher{
		client:     &http.Client{Timeout: envutil.Seconds("FETCH_TIMEOUT_SECONDS", 30)},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: envutil.Int("FETCH_MAX_RETRIES", 3),
		maxBytes:   int64(envutil.Int("FETCH_MAX_BYTES", 50<<20)),
	}
}

// NewFetcherWithClient is used by tests to point at an httptest server.
func NewFetcherWithClient(c *http.Client) *Fetcher {
	f := NewFetcher()
	if c != nil {
		f.client = c
	}
	return f
}

// Fetch returns the body and content type of url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, "", fmt.Errorf("fetch: empty url")
	}
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
		body, ct, resp, err := f.do(ctx, url)
		if err == nil {
			return body, ct, nil
		}
		lastErr = err
		if !IsRetryableError(err) || attempt == f.maxRetries {
			break
		}
		sleep := RetryAfterDuration(resp, JitterSleep(Backoff(attempt+1, 500*time.Millisecond, 8*time.Second)), 30*time.Second)
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, "", lastErr
}

// FetchText is Fetch with the body returned as a trimmed string.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	b, _, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", resp, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, "", resp, err
	}
	return body, resp.Header.Get("Content-Type"), resp, nil
}
