package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vidstream-backend/internal/http/response"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/services"
)

type VideoHandler struct {
	videos services.VideoService
}

func NewVideoHandler(videos services.VideoService) *VideoHandler {
	return &VideoHandler{videos: videos}
}

// POST /api/videos
func (h *VideoHandler) CreateUpload(c *gin.Context) {
	out, err := h.videos.CreateUpload(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"video": out.Video, "upload_url": out.UploadURL})
}

// GET /api/videos/:id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	id, ok := videoIDParam(c)
	if !ok {
		return
	}
	v, err := h.videos.GetForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"video": v})
}

// DELETE /api/videos/:id
func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	id, ok := videoIDParam(c)
	if !ok {
		return
	}
	if err := h.videos.DeleteForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, id); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/videos/:id/thumbnail/restore
func (h *VideoHandler) RestoreThumbnail(c *gin.Context) {
	id, ok := videoIDParam(c)
	if !ok {
		return
	}
	v, err := h.videos.RestoreThumbnailForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"video": v})
}

func videoIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_video_id", errInvalidVideoID)
		return uuid.Nil, false
	}
	return id, true
}
