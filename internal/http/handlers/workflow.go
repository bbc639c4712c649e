package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vidstream-backend/internal/http/response"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/services"
)

type WorkflowHandler struct {
	workflows services.WorkflowService
}

func NewWorkflowHandler(workflows services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

// POST /api/videos/workflows/:name
func (h *WorkflowHandler) Trigger(c *gin.Context) {
	var req services.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}
	job, err := h.workflows.Trigger(dbctx.Context{Ctx: c.Request.Context()}, c.Param("name"), req)
	if err != nil && job == nil {
		response.RespondErr(c, err)
		return
	}
	// A persisted run that failed to dispatch is still picked up later.
	c.JSON(http.StatusAccepted, gin.H{"run_id": job.ID})
}
