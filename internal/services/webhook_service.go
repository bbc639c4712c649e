package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/vidstream-backend/internal/data/repos"
	types "github.com/yungbote/vidstream-backend/internal/domain"
	"github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/apierr"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
	"github.com/yungbote/vidstream-backend/internal/platform/redis"
)

const (
	OutcomeApplied   = "applied"
	OutcomeDeleted   = "deleted"
	OutcomeIgnored   = "ignored"
	OutcomeNoMatch   = "no_match"
	OutcomeDuplicate = "duplicate"
)

type IngestResult struct {
	EventType  string
	Outcome    string
	VideoID    uuid.UUID
	MirrorJobs []uuid.UUID
}

type WebhookService interface {
	// Ingest verifies, parses and applies one provider delivery. A bad
	// signature is a 401 apierr, a malformed or uncorrelatable event a 400.
	Ingest(ctx context.Context, signature string, body []byte) (IngestResult, error)
}

type webhookService struct {
	log       *logger.Logger
	videos    repos.VideoRepo
	mirror    AssetMirror
	dedupe    redis.Deduper
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookService takes an optional deduper; without one every delivery
// is applied, which is safe because transitions are idempotent.
func NewWebhookService(log *logger.Logger, videoRepo repos.VideoRepo, mirror AssetMirror, dedupe redis.Deduper, secret string, tolerance time.Duration) WebhookService {
	return &webhookService{
		log:       log.With("service", "WebhookService"),
		videos:    videoRepo,
		mirror:    mirror,
		dedupe:    dedupe,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

func (s *webhookService) Ingest(ctx context.Context, signature string, body []byte) (IngestResult, error) {
	if err := mux.VerifySignature(signature, body, s.secret, s.tolerance, s.now()); err != nil {
		return IngestResult{}, apierr.Unauthorized("invalid_signature", err)
	}

	var evt mux.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return IngestResult{}, apierr.BadRequest("invalid_event", fmt.Errorf("%w: %v", videos.ErrInvalidEvent, err))
	}
	res := IngestResult{EventType: evt.Type}

	deliveryID := strings.TrimSpace(evt.ID)
	if deliveryID != "" && s.dedupe != nil {
		seen, err := s.dedupe.Seen(ctx, deliveryID)
		if err != nil {
			s.log.Warn("Webhook dedupe lookup failed", "event_id", deliveryID, "error", err)
		} else if seen {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
	}

	tr, err := videos.Plan(evt)
	if err != nil {
		return res, apierr.BadRequest("invalid_event", err)
	}
	if tr.Ignored() {
		res.Outcome = OutcomeIgnored
		s.log.Debug("Webhook event ignored", "type", evt.Type)
		return res, nil
	}

	if err := s.apply(ctx, tr, &res); err != nil {
		return res, err
	}

	if deliveryID != "" && s.dedupe != nil {
		if _, err := s.dedupe.Remember(ctx, deliveryID); err != nil {
			s.log.Warn("Webhook dedupe record failed", "event_id", deliveryID, "error", err)
		}
	}
	s.log.Info("Webhook applied", "type", evt.Type, "ref", tr.Ref.String(), "outcome", res.Outcome)
	return res, nil
}

func (s *webhookService) apply(ctx context.Context, tr videos.Transition, res *IngestResult) error {
	dbc := dbctx.Context{Ctx: ctx}
	if tr.Delete {
		n, err := s.videos.DeleteByRef(dbc, tr.Ref)
		if err != nil {
			return fmt.Errorf("delete video %s: %w", tr.Ref, err)
		}
		res.Outcome = OutcomeDeleted
		if n == 0 {
			res.Outcome = OutcomeNoMatch
		}
		return nil
	}

	v, err := s.videos.Mutate(dbc, tr.Ref, func(v *types.Video) error {
		tr.Patch.Apply(v)
		return nil
	})
	if errors.Is(err, videos.ErrNotFound) {
		res.Outcome = OutcomeNoMatch
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s to %s: %w", tr.EventType, tr.Ref, err)
	}
	res.Outcome = OutcomeApplied
	res.VideoID = v.ID

	if len(tr.Mirrors) > 0 {
		res.MirrorJobs = s.scheduleMirrors(ctx, v, tr.Mirrors)
	}
	return nil
}

// scheduleMirrors enqueues one durable job per task. Failures are logged;
// the delivery itself has already been applied.
func (s *webhookService) scheduleMirrors(ctx context.Context, v *types.Video, tasks []videos.MirrorTask) []uuid.UUID {
	if s.mirror == nil {
		return nil
	}
	var (
		mu  sync.Mutex
		ids []uuid.UUID
		g   errgroup.Group
	)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			job, err := s.mirror.Schedule(dbctx.Context{Ctx: ctx}, v, task)
			if err != nil {
				s.log.Warn("Schedule asset mirror failed", "video_id", v.ID, "role", task.Role, "error", err)
				return nil
			}
			if job != nil {
				mu.Lock()
				ids = append(ids, job.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return ids
}
