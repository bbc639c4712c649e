package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/vidstream-backend/internal/http"
	httpH "github.com/yungbote/vidstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/vidstream-backend/internal/http/middleware"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Video    *httpH.VideoHandler
	Webhook  *httpH.WebhookHandler
	Workflow *httpH.WorkflowHandler
	Job      *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		pinger = sqlDB
	} else {
		log.Warn("Readiness check has no database handle", "error", err)
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(pinger),
		Video:    httpH.NewVideoHandler(services.Video),
		Webhook:  httpH.NewWebhookHandler(log, services.Webhook),
		Workflow: httpH.NewWorkflowHandler(services.Workflow),
		Job:      httpH.NewJobHandler(services.JobService),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg *Config, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.AllowedOrigins(),
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlers.Health,
		VideoHandler:    handlers.Video,
		WebhookHandler:  handlers.Webhook,
		WorkflowHandler: handlers.Workflow,
		JobHandler:      handlers.Job,
	})
}
