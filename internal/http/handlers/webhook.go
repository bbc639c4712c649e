package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidstream-backend/internal/http/response"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/mux"
	"github.com/yungbote/vidstream-backend/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log      *logger.Logger
	webhooks services.WebhookService
}

func NewWebhookHandler(log *logger.Logger, webhooks services.WebhookService) *WebhookHandler {
	return &WebhookHandler{log: log.With("handler", "WebhookHandler"), webhooks: webhooks}
}

// POST /api/videos/webhook
//
// The raw body is read before any decoding since the signature covers the
// exact bytes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}
	res, err := h.webhooks.Ingest(c.Request.Context(), c.GetHeader(mux.SignatureHeader), body)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.log.Info("webhook handled",
		"event_type", res.EventType,
		"outcome", res.Outcome,
		"video_id", res.VideoID,
		"mirror_jobs", len(res.MirrorJobs),
	)
	c.String(http.StatusOK, "Webhook received")
}
