package videos

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Ref identifies a single video row by exactly one correlation key:
// provider upload id, provider asset id, or row id (optionally owner scoped).
type Ref struct {
	UploadID string    `json:"upload_id,omitempty"`
	AssetID  string    `json:"asset_id,omitempty"`
	ID       uuid.UUID `json:"id,omitempty"`
	OwnerID  uuid.UUID `json:"owner_id,omitempty"`
}

func ByUpload(uploadID string) Ref { return Ref{UploadID: strings.TrimSpace(uploadID)} }

func ByAsset(assetID string) Ref { return Ref{AssetID: strings.TrimSpace(assetID)} }

func ByID(id uuid.UUID) Ref { return Ref{ID: id} }

// Owned scopes the row id to its owner; a foreign owner resolves to nothing.
func Owned(id, ownerID uuid.UUID) Ref { return Ref{ID: id, OwnerID: ownerID} }

func (r Ref) Validate() error {
	n := 0
	if r.UploadID != "" {
		n++
	}
	if r.AssetID != "" {
		n++
	}
	if r.ID != uuid.Nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: ref needs exactly one key, got %s", ErrInvalidRef, r)
	}
	return nil
}

func (r Ref) String() string {
	switch {
	case r.UploadID != "":
		return "upload:" + r.UploadID
	case r.AssetID != "":
		return "asset:" + r.AssetID
	case r.ID != uuid.Nil && r.OwnerID != uuid.Nil:
		return "video:" + r.ID.String() + "@" + r.OwnerID.String()
	case r.ID != uuid.Nil:
		return "video:" + r.ID.String()
	}
	return "<empty>"
}
