package app

import (
	"fmt"

	"gorm.io/gorm"

	jobstatus "github.com/yungbote/vidstream-backend/internal/domain/jobs"
	"github.com/yungbote/vidstream-backend/internal/jobs/pipeline/asset_mirror"
	"github.com/yungbote/vidstream-backend/internal/jobs/pipeline/video_text"
	"github.com/yungbote/vidstream-backend/internal/jobs/pipeline/video_thumbnail"
	jobruntime "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
	"github.com/yungbote/vidstream-backend/internal/jobs/worker"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/services"
	"github.com/yungbote/vidstream-backend/internal/temporalx"
	"github.com/yungbote/vidstream-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth services.AuthService

	JobNotifier services.JobNotifier
	JobService  services.JobService
	AssetMirror services.AssetMirror
	Video       services.VideoService
	Webhook     services.WebhookService
	Workflow    services.WorkflowService

	// Job infra
	JobRegistry    *jobruntime.Registry
	JobExecutor    *worker.Executor
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	out.Auth = services.NewAuthService(log, cfg.JWTSecretKey)
	out.JobNotifier = services.NewJobNotifier(log, clients.EventBus)
	out.JobService = services.NewJobService(
		db, log,
		reposet.JobRun, reposet.JobRunEvent,
		out.JobNotifier,
		clients.Temporal,
		temporalx.LoadConfig().TaskQueue,
	)
	out.AssetMirror = services.NewAssetMirror(log, reposet.Video, clients.Bucket, clients.Fetcher, out.JobService, cfg.AssetMirrorRetries)
	out.Video = services.NewVideoService(log, reposet.Video, clients.Mux, clients.Bucket, out.AssetMirror)
	out.Webhook = services.NewWebhookService(log, reposet.Video, out.AssetMirror, clients.Dedupe, cfg.MuxWebhookSecret, cfg.WebhookTolerance)
	out.Workflow = services.NewWorkflowService(log, out.JobService)

	registry, err := wireJobRegistry(log, clients, reposet, out.AssetMirror)
	if err != nil {
		return Services{}, err
	}
	out.JobRegistry = registry
	out.JobExecutor = &worker.Executor{
		DB:       db,
		Log:      log.With("component", "JobExecutor"),
		Repo:     reposet.JobRun,
		Events:   reposet.JobRunEvent,
		Registry: registry,
		Notify:   out.JobNotifier,
	}

	// Temporal drives runs when configured; otherwise the DB poller does.
	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.Temporal, out.JobExecutor)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	} else {
		out.JobWorker = worker.NewWorker(log, out.JobExecutor)
	}
	return out, nil
}

func wireJobRegistry(log *logger.Logger, clients Clients, reposet Repos, mirror services.AssetMirror) (*jobruntime.Registry, error) {
	deps := steps.Deps{
		Log:     log,
		Videos:  reposet.Video,
		Fetcher: clients.Fetcher,
		AI:      clients.OpenAI,
		Mirror:  mirror,
	}
	registry := jobruntime.NewRegistry()
	handlers := []jobruntime.Handler{
		asset_mirror.New(log, mirror),
		video_text.New(log, deps, steps.TextTitle),
		video_text.New(log, deps, steps.TextDescription),
		video_thumbnail.New(log, deps),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register job handler: %w", err)
		}
	}
	for _, jt := range []string{
		jobstatus.JobTypeAssetMirror,
		jobstatus.JobTypeVideoTitle,
		jobstatus.JobTypeVideoDescription,
		jobstatus.JobTypeVideoThumbnail,
	} {
		if _, ok := registry.Get(jt); !ok {
			return nil, fmt.Errorf("no handler for job_type=%s", jt)
		}
	}
	return registry, nil
}
