package videos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domain "github.com/yungbote/vidstream-backend/internal/domain/videos"
	"github.com/yungbote/vidstream-backend/internal/platform/dbctx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

const defaultMaxConflictRetries = 5

// MutateFunc edits a freshly read row in memory. Returning ErrSkip leaves
// the row untouched.
type MutateFunc func(v *domain.Video) error

// ErrSkip aborts a Mutate without writing and without error.
var ErrSkip = errors.New("skip write")

// ErrDuplicate wraps a unique-constraint violation.
var ErrDuplicate = errors.New("duplicate video")

type VideoRepo interface {
	Create(dbc dbctx.Context, v *domain.Video) (*domain.Video, error)
	// Resolve returns the row for ref, or domain.ErrNotFound.
	Resolve(dbc dbctx.Context, ref domain.Ref) (*domain.Video, error)
	// Mutate applies fn under an optimistic version check, re-reading and
	// re-applying on conflict. A missing row is domain.ErrNotFound.
	Mutate(dbc dbctx.Context, ref domain.Ref, fn MutateFunc) (*domain.Video, error)
	// DeleteByRef removes the row; zero matching rows is not an error.
	DeleteByRef(dbc dbctx.Context, ref domain.Ref) (int64, error)
}

type videoRepo struct {
	db           *gorm.DB
	log          *logger.Logger
	maxConflicts int
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{
		db:           db,
		log:          baseLog.With("repo", "VideoRepo"),
		maxConflicts: defaultMaxConflictRetries,
	}
}

func scope(q *gorm.DB, ref domain.Ref) *gorm.DB {
	switch {
	case ref.UploadID != "":
		q = q.Where("mux_upload_id = ?", ref.UploadID)
	case ref.AssetID != "":
		q = q.Where("mux_asset_id = ?", ref.AssetID)
	default:
		q = q.Where("id = ?", ref.ID)
	}
	if ref.OwnerID != uuid.Nil {
		q = q.Where("owner_user_id = ?", ref.OwnerID)
	}
	return q
}

func (r *videoRepo) Create(dbc dbctx.Context, v *domain.Video) (*domain.Video, error) {
	if v == nil {
		return nil, fmt.Errorf("nil video")
	}
	if err := dbc.Or(r.db).Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}
	return v, nil
}

func (r *videoRepo) Resolve(dbc dbctx.Context, ref domain.Ref) (*domain.Video, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var v domain.Video
	err := scope(dbc.Or(r.db).Model(&domain.Video{}), ref).Limit(1).Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (r *videoRepo) Mutate(dbc dbctx.Context, ref domain.Ref, fn MutateFunc) (*domain.Video, error) {
	if fn == nil {
		return nil, fmt.Errorf("nil mutate func")
	}
	for attempt := 0; ; attempt++ {
		cur, err := r.Resolve(dbc, ref)
		if err != nil {
			return nil, err
		}
		next := *cur
		if err := fn(&next); err != nil {
			if errors.Is(err, ErrSkip) {
				return cur, nil
			}
			return nil, err
		}

		updates := next.MutableColumns()
		now := time.Now().UTC()
		updates["version"] = cur.Version + 1
		updates["updated_at"] = now

		res := dbc.Or(r.db).Model(&domain.Video{}).
			Where("id = ? AND version = ?", cur.ID, cur.Version).
			Updates(updates)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return nil, fmt.Errorf("%w: %v", ErrDuplicate, res.Error)
			}
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			next.Version = cur.Version + 1
			next.UpdatedAt = now
			return &next, nil
		}
		if attempt+1 >= r.maxConflicts {
			return nil, fmt.Errorf("%w: %s after %d attempts", domain.ErrVersionConflict, ref, attempt+1)
		}
		r.log.Debug("Video version conflict, retrying", "ref", ref.String(), "attempt", attempt+1)
	}
}

func (r *videoRepo) DeleteByRef(dbc dbctx.Context, ref domain.Ref) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	res := scope(dbc.Or(r.db), ref).Delete(&domain.Video{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
