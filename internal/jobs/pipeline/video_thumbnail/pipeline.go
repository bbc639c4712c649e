package video_thumbnail

import (
	"time"

	"github.com/yungbote/vidstream-backend/internal/jobs/orchestrator"
	jobrt "github.com/yungbote/vidstream-backend/internal/jobs/runtime"
	"github.com/yungbote/vidstream-backend/internal/jobs/video/steps"
)

const (
	StageGetVideo           = "get-video"
	StageDeleteOldThumbnail = "delete-old-thumbnail"
	StageGenerateImage      = "generate-image"
	StageUploadThumbnail    = "upload-thumbnail"
	StageUpdateVideo        = "update-video"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	ref, err := steps.ParseVideoRef(jc.PayloadString("video_id"), jc.PayloadString("user_id"), jc.Job.OwnerUserID)
	if err != nil {
		jc.Fail("validate", err)
		return nil
	}
	p.log.Debug("Enrichment run", "job_id", jc.Job.ID, "video_id", ref.VideoID)
	prompt := jc.PayloadString("prompt")
	return p.engine.Run(jc, p.stages(ref, prompt), map[string]any{
		"video_id": ref.VideoID.String(),
	})
}

func (p *Pipeline) stages(ref steps.VideoRef, prompt string) []orchestrator.Stage {
	return []orchestrator.Stage{
		{
			Name:     StageGetVideo,
			StartPct: 0,
			EndPct:   5,
			StartMsg: "Loading video",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				snap, err := steps.GetVideo(jc.Ctx, p.deps, ref)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"video_id":      snap.VideoID.String(),
					"thumbnail_key": snap.ThumbnailKey,
				}, nil
			},
		},
		{
			Name:     StageDeleteOldThumbnail,
			StartPct: 5,
			EndPct:   15,
			StartMsg: "Removing old thumbnail",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				if err := steps.DeleteOldThumbnail(jc.Ctx, p.deps, ref); err != nil {
					return nil, err
				}
				return map[string]any{"deleted_key": st.String(StageGetVideo, "thumbnail_key")}, nil
			},
		},
		{
			Name:     StageGenerateImage,
			Timeout:  3 * time.Minute,
			StartPct: 15,
			EndPct:   70,
			StartMsg: "Generating thumbnail",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				img, err := steps.GenerateImage(jc.Ctx, p.deps, prompt)
				if err != nil {
					return nil, err
				}
				return map[string]any{"url": img.URL, "revised_prompt": img.RevisedPrompt}, nil
			},
		},
		{
			Name:     StageUploadThumbnail,
			Timeout:  2 * time.Minute,
			StartPct: 70,
			EndPct:   90,
			StartMsg: "Storing thumbnail",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				obj, err := steps.UploadThumbnail(jc.Ctx, p.deps, ref.VideoID, st.String(StageGenerateImage, "url"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"key": obj.Key, "url": obj.URL}, nil
			},
		},
		{
			Name:     StageUpdateVideo,
			StartPct: 90,
			EndPct:   100,
			StartMsg: "Saving thumbnail",
			Run: func(jc *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				v, err := steps.UpdateVideoThumbnail(jc.Ctx, p.deps, ref, steps.StoredObject{
					Key: st.String(StageUploadThumbnail, "key"),
					URL: st.String(StageUploadThumbnail, "url"),
				})
				if err != nil {
					return nil, err
				}
				return map[string]any{"version": v.Version}, nil
			},
		},
	}
}
