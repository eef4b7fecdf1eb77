package realtime

import (
	"time"

	"vidshare/cmd/catalog"
)

// Event types sent to clients.
const (
	TypeHello       = "hello"
	TypeVideoStatus = "video.status"
)

// Event is one server-to-client message. Fields not relevant to Type are omitted.
type Event struct {
	Type            string              `json:"type"`
	SessionID       string              `json:"sessionId,omitempty"`
	VideoID         int64               `json:"videoId,omitempty"`
	Status          catalog.VideoStatus `json:"status,omitempty"`
	DurationSeconds *int32              `json:"durationSeconds,omitempty"`
	ThumbnailURL    *string             `json:"thumbnailUrl,omitempty"`
	At              time.Time           `json:"at"`
}

// VideoStatusEvent renders v for its uploader.
func VideoStatusEvent(v catalog.Video, at time.Time) Event {
	return Event{
		Type:            TypeVideoStatus,
		VideoID:         v.ID,
		Status:          v.Status,
		DurationSeconds: v.DurationSeconds,
		ThumbnailURL:    v.ThumbnailURL,
		At:              at.UTC(),
	}
}
