package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  hello transcript \n"))
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	got, err := f.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if got != "hello transcript" {
		t.Fatalf("got=%q want=%q", got, "hello transcript")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls got=%d want=2", n)
	}
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	_, _, err := f.Fetch(context.Background(), srv.URL)
	se, ok := err.(*StatusError)
	if !ok || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got=%v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls got=%d want=1", n)
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(tc.attempt, time.Second, 30*time.Second); got != tc.want {
			t.Fatalf("Backoff(%d) got=%s want=%s", tc.attempt, got, tc.want)
		}
	}
}
