package catalog

import (
	"context"
	"time"
)

// Store persists channels and videos.
//
// Absence is reported as (zero, false, nil). Uniqueness violations are
// identity.ConflictError with Field "name" or "owner"; a dangling reference is
// identity.NotFoundError. Backend failures are identity.StoreError.
type Store interface {
	InsertChannel(ctx context.Context, in NewChannel) (Channel, error)
	FindChannelByName(ctx context.Context, name string) (Channel, bool, error)
	FindChannelByOwner(ctx context.Context, ownerID int64) (Channel, bool, error)

	// DeleteChannelCascade marks the channel's non-deleted videos DELETED, detaches
	// them from the channel and removes the channel row, atomically. It returns the
	// videos it marked, as stored after the update.
	DeleteChannelCascade(ctx context.Context, channelID int64, now time.Time) ([]Video, error)

	InsertVideo(ctx context.Context, in NewVideo) (Video, error)
	FindVideo(ctx context.Context, id int64) (Video, bool, error)

	// UpdateVideoStatus moves a video to `to` only while its current status is one
	// of `from`. A video in any other status yields a conflict OpError.
	UpdateVideoStatus(ctx context.Context, id int64, from []VideoStatus, to VideoStatus, res EncodingResult, now time.Time) (Video, error)

	ListByUploader(ctx context.Context, uploaderID int64, page Page) ([]Video, error)
	ListByStatus(ctx context.Context, status VideoStatus, page Page) ([]Video, error)
	Search(ctx context.Context, keyword string, page Page) ([]Video, error)
	MostViewed(ctx context.Context, limit int) ([]Video, error)
	CountByUploader(ctx context.Context, uploaderID int64) (int64, error)
}
