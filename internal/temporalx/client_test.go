package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

func TestLoadConfigClampsRetention(t *testing.T) {
	cases := []struct {
		env  string
		want int
	}{
		{"0", 7},
		{"30", 30},
		{"9999", 365},
	}
	for _, tc := range cases {
		t.Setenv("TEMPORAL_NAMESPACE_RETENTION_DAYS", tc.env)
		if got := LoadConfig().RetentionDays; got != tc.want {
			t.Fatalf("retention %s: got=%d want=%d", tc.env, got, tc.want)
		}
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	c, err := NewClient(nil)
	if err != nil || c != nil {
		t.Fatalf("got client=%v err=%v want nil, nil", c, err)
	}
}

func TestRetryUntil(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "connection refused")

	calls := 0
	err := retryUntil(context.Background(), time.Minute, logger.Nop(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return unavailable
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("transient: calls=%d err=%v", calls, err)
	}

	calls = 0
	denied := status.Error(codes.PermissionDenied, "nope")
	err = retryUntil(context.Background(), time.Minute, logger.Nop(), "test", func(context.Context) error {
		calls++
		return denied
	})
	if !errors.Is(err, denied) || calls != 1 {
		t.Fatalf("permanent: calls=%d err=%v", calls, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = retryUntil(ctx, time.Minute, logger.Nop(), "test", func(context.Context) error { return unavailable })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: got=%v", err)
	}
}
