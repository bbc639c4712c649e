package jobs

const (
	JobTypeAssetMirror      = "asset_mirror"
	JobTypeVideoTitle       = "video_title"
	JobTypeVideoDescription = "video_description"
	JobTypeVideoThumbnail   = "video_thumbnail"

	EntityTypeVideo = "video"
)
