package temporalx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/vidstream-backend/internal/platform/httpx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

const (
	retryBase = 250 * time.Millisecond
	retryMax  = 5 * time.Second
)

// NewClient dials the cluster for job_run workflows. It returns a nil
// client when Temporal is not configured.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg := LoadConfig()
	if !cfg.Enabled() {
		log.Warn("TEMPORAL_ADDRESS not set; jobs run on the polling worker")
		return nil, nil
	}

	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    log,
	}
	var c temporalsdkclient.Client
	err := retryUntil(context.Background(), cfg.ConnectWait, log, "dial", func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var err error
		c, err = temporalsdkclient.DialContext(dctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s/%s: %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(context.Background(), c, cfg.Namespace, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers namespace on a self-hosted cluster when it is
// missing. The namespace client carries no namespace header, so it works
// before the namespace exists.
func EnsureNamespace(ctx context.Context, c temporalsdkclient.Client, namespace string, log *logger.Logger) error {
	namespace = strings.TrimSpace(namespace)
	cfg := LoadConfig()
	if c == nil || namespace == "" || !cfg.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = logger.Nop()
	}

	nsClient, err := temporalsdkclient.NewNamespaceClient(temporalsdkclient.Options{HostPort: cfg.Address, Logger: log})
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nsClient.Close()

	return retryUntil(ctx, cfg.ConnectWait, log, "namespace "+namespace, func(ctx context.Context) error {
		_, err := nsClient.Describe(ctx, namespace)
		var missing *serviceerror.NamespaceNotFound
		if !errors.As(err, &missing) {
			return err
		}
		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "vidstream job runs",
			WorkflowExecutionRetentionPeriod: durationpb.New(cfg.retention()),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("Registered Temporal namespace", "namespace", namespace, "retention_days", cfg.RetentionDays)
			return nil
		}
		return err
	})
}

// retryUntil repeats fn with backoff while it fails with a transient RPC
// error and wait has not elapsed.
func retryUntil(ctx context.Context, wait time.Duration, log *logger.Logger, what string, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(wait)
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryableRPC(err) || time.Now().After(deadline) {
			return err
		}
		log.Warn("Temporal not ready; retrying", "op", what, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(httpx.Backoff(attempt, retryBase, retryMax)):
		}
	}
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
