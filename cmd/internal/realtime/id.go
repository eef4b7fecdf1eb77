package realtime

import (
	"time"

	"vidshare/cmd/identity/ids"
)

// NewSessionID returns a ULID naming one websocket session in logs and hello events.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
