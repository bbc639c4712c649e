package mux

import "encoding/json"

// Webhook event types delivered by the provider.
const (
	EventAssetCreated    = "video.asset.created"
	EventAssetReady      = "video.asset.ready"
	EventAssetErrored    = "video.asset.errored"
	EventAssetDeleted    = "video.asset.deleted"
	EventAssetTrackReady = "video.asset.track.ready"
)

// Event is the webhook envelope. Data is decoded per type.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// AssetData covers the fields used from asset and track payloads. For
// track events ID is the track id and AssetID the owning asset.
type AssetData struct {
	ID          string       `json:"id"`
	UploadID    string       `json:"upload_id"`
	AssetID     string       `json:"asset_id"`
	Status      string       `json:"status"`
	Duration    *float64     `json:"duration"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
	Passthrough string       `json:"passthrough"`
}

func (e Event) Asset() (AssetData, error) {
	var d AssetData
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return d, nil
	}
	err := json.Unmarshal(e.Data, &d)
	return d, err
}
