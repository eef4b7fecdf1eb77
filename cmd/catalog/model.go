package catalog

import (
	"strings"
	"time"
)

// VideoStatus is the lifecycle state of a video.
type VideoStatus string

const (
	StatusProcessing VideoStatus = "PROCESSING"
	StatusReady      VideoStatus = "READY"
	StatusFailed     VideoStatus = "FAILED"
	StatusDeleted    VideoStatus = "DELETED"
)

// ParseStatus accepts any casing of a known status.
func ParseStatus(s string) (VideoStatus, bool) {
	switch v := VideoStatus(strings.ToUpper(strings.TrimSpace(s))); v {
	case StatusProcessing, StatusReady, StatusFailed, StatusDeleted:
		return v, true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether s -> next is a legal move.
// Ready and Failed are set only by the encoding pipeline; Deleted is terminal.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	switch next {
	case StatusReady, StatusFailed:
		return s == StatusProcessing
	case StatusDeleted:
		return s == StatusProcessing || s == StatusReady || s == StatusFailed
	default:
		return false
	}
}

// sourcesFor lists every status that may move to next.
func sourcesFor(next VideoStatus) []VideoStatus {
	var out []VideoStatus
	for _, s := range []VideoStatus{StatusProcessing, StatusReady, StatusFailed, StatusDeleted} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Channel is a user's publishing identity. Each user owns at most one.
type Channel struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	BannerImageURL  *string   `json:"bannerImageUrl"`
	SubscriberCount int64     `json:"subscriberCount"`
	TotalViews      int64     `json:"totalViews"`
	OwnerID         int64     `json:"ownerId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewChannel is the channel insert payload.
type NewChannel struct {
	Name           string
	Description    *string
	BannerImageURL *string
	OwnerID        int64
	Now            time.Time
}

// Video is an uploaded video. FilePath points into object storage and is not rendered.
type Video struct {
	ID              int64       `json:"id"`
	Title           string      `json:"title"`
	Description     *string     `json:"description"`
	FilePath        string      `json:"-"`
	ThumbnailURL    *string     `json:"thumbnailUrl"`
	DurationSeconds *int32      `json:"durationSeconds"`
	FileSize        *int64      `json:"fileSize"`
	ViewCount       int64       `json:"viewCount"`
	LikeCount       int64       `json:"likeCount"`
	DislikeCount    int64       `json:"dislikeCount"`
	Status          VideoStatus `json:"status"`
	UploaderID      int64       `json:"uploaderId"`
	ChannelID       *int64      `json:"channelId"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// NewVideo is the video insert payload. Status is always PROCESSING on insert.
type NewVideo struct {
	Title       string
	Description *string
	FilePath    string
	FileSize    *int64
	UploaderID  int64
	ChannelID   *int64
	Now         time.Time
}

// EncodingResult carries the fields the encoding pipeline fills in on success.
type EncodingResult struct {
	DurationSeconds *int32
	ThumbnailURL    *string
}

// Page is an offset window over a newest-first listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into the supported window.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
