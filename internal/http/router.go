package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/vidstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/vidstream-backend/internal/http/middleware"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	VideoHandler    *httpH.VideoHandler
	WebhookHandler  *httpH.WebhookHandler
	WorkflowHandler *httpH.WorkflowHandler
	JobHandler      *httpH.JobHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Provider webhooks (signature-authenticated)
		if cfg.WebhookHandler != nil {
			api.POST("/videos/webhook", cfg.WebhookHandler.Receive)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Videos
		if cfg.VideoHandler != nil {
			protected.POST("/videos", cfg.VideoHandler.CreateUpload)
			protected.GET("/videos/:id", cfg.VideoHandler.GetVideo)
			protected.DELETE("/videos/:id", cfg.VideoHandler.DeleteVideo)
			protected.POST("/videos/:id/thumbnail/restore", cfg.VideoHandler.RestoreThumbnail)
		}

		// Workflows
		if cfg.WorkflowHandler != nil {
			protected.POST("/videos/workflows/:name", cfg.WorkflowHandler.Trigger)
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			protected.GET("/jobs/:id/events", cfg.JobHandler.ListJobEvents)
			protected.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
		}
	}

	return r
}
