package videos

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/yungbote/vidstream-backend/internal/platform/mux"
)

func event(t *testing.T, typ string, data map[string]interface{}) mux.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return mux.Event{Type: typ, Data: raw}
}

func TestDurationMillis(t *testing.T) {
	v := 12.345
	if got := DurationMillis(&v); got != 12345 {
		t.Fatalf("got=%d want=12345", got)
	}
	if got := DurationMillis(nil); got != 0 {
		t.Fatalf("missing duration got=%d want=0", got)
	}
	v = 65.0
	if got := DurationMillis(&v); got != 65000 {
		t.Fatalf("got=%d want=65000", got)
	}
}

func TestPlanReady(t *testing.T) {
	tr, err := Plan(readyEvent("up_1", "as_1", "pb_1", 65.0))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if tr.Ref != ByUpload("up_1") {
		t.Fatalf("ref got=%s", tr.Ref)
	}
	row := &Video{MuxStatus: StatusWaiting}
	tr.Patch.Apply(row)
	if row.MuxStatus != "ready" || row.PlaybackID() != "pb_1" || row.DurationMs != 65000 {
		t.Fatalf("unexpected row: status=%q playback=%q duration=%d", row.MuxStatus, row.PlaybackID(), row.DurationMs)
	}
	if _, url := row.Mirrored(RoleThumbnail); url != "https://image.mux.com/pb_1/thumbnail.jpg" {
		t.Fatalf("thumbnail url got=%q", url)
	}
	if len(tr.Mirrors) != 2 || tr.Mirrors[0].Role != RoleThumbnail || tr.Mirrors[1].Role != RolePreview {
		t.Fatalf("mirrors got=%+v", tr.Mirrors)
	}
	for _, m := range tr.Mirrors {
		if m.PlaybackID != "pb_1" {
			t.Fatalf("mirror not pinned to playback id: %+v", m)
		}
	}
}

func TestPlanMissingCorrelation(t *testing.T) {
	cases := []struct {
		name string
		evt  mux.Event
	}{
		{"created without upload", event(t, mux.EventAssetCreated, map[string]interface{}{"id": "as_1"})},
		{"ready without playback", event(t, mux.EventAssetReady, map[string]interface{}{"upload_id": "up_1"})},
		{"errored without upload", event(t, mux.EventAssetErrored, map[string]interface{}{"status": "errored"})},
		{"deleted without upload", event(t, mux.EventAssetDeleted, map[string]interface{}{})},
		{"track ready keyed by upload only", event(t, mux.EventAssetTrackReady, map[string]interface{}{"id": "tr_1", "upload_id": "up_1"})},
		{"null data", mux.Event{Type: mux.EventAssetCreated, Data: json.RawMessage("null")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Plan(tc.evt); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got=%v", err)
			}
		})
	}
}

func TestPlanTrackReadyUsesAssetID(t *testing.T) {
	tr, err := Plan(event(t, mux.EventAssetTrackReady, map[string]interface{}{
		"id": "tr_1", "asset_id": "as_1", "upload_id": "up_1", "status": "ready",
	}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if tr.Ref != ByAsset("as_1") {
		t.Fatalf("ref got=%s want=asset:as_1", tr.Ref)
	}
	row := &Video{MuxStatus: "created"}
	tr.Patch.Apply(row)
	if row.TrackID() != "tr_1" || row.MuxTrackStatus != "ready" || row.MuxStatus != "ready" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestPlanCreatedSkipsAbsentFields(t *testing.T) {
	tr, err := Plan(event(t, mux.EventAssetCreated, map[string]interface{}{"upload_id": "up_1"}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	asset := "as_1"
	row := &Video{MuxStatus: StatusWaiting, MuxAssetID: &asset}
	tr.Patch.Apply(row)
	if row.MuxStatus != StatusWaiting || row.MuxAssetID == nil || *row.MuxAssetID != "as_1" {
		t.Fatalf("absent fields overwrote row: status=%q asset=%v", row.MuxStatus, row.MuxAssetID)
	}

	tr, err = Plan(event(t, mux.EventAssetCreated, map[string]interface{}{"upload_id": "up_1", "id": "as_2"}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	tr.Patch.Apply(row)
	if row.MuxStatus != StatusWaiting || *row.MuxAssetID != "as_2" {
		t.Fatalf("partial created: status=%q asset=%v", row.MuxStatus, *row.MuxAssetID)
	}
}

func TestPlanUnknownTypeIsIgnored(t *testing.T) {
	tr, err := Plan(event(t, "video.upload.cancelled", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !tr.Ignored() {
		t.Fatalf("expected ignored transition, got=%+v", tr)
	}
}

func TestPlanDeleted(t *testing.T) {
	tr, err := Plan(event(t, mux.EventAssetDeleted, map[string]interface{}{"upload_id": "up_1"}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !tr.Delete || tr.Ref != ByUpload("up_1") {
		t.Fatalf("got=%+v", tr)
	}
}

func TestRefValidate(t *testing.T) {
	if err := (Ref{}).Validate(); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("empty ref: got=%v", err)
	}
	if err := (Ref{UploadID: "a", AssetID: "b"}).Validate(); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("two keys: got=%v", err)
	}
	if err := ByUpload("up_1").Validate(); err != nil {
		t.Fatalf("upload ref: %v", err)
	}
}
