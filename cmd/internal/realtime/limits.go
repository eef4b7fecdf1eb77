package realtime

import "time"

const (
	// Clients only send keepalive chatter; anything bigger is a protocol abuse.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames per connection per window.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
