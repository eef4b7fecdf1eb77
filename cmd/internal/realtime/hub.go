package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidshare/cmd/catalog"
)

// Hub tracks the live sessions of each user and fans events out to them.
//
//   - Subscribe/Unsubscribe are safe under concurrent Publish.
//   - Publish never blocks; a full client queue drops the event.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu   sync.RWMutex
	subs map[int64]map[string]*Client
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		now:  time.Now,
		subs: make(map[int64]map[string]*Client),
	}
}

// Subscribe registers client for events addressed to client.UserID.
func (h *Hub) Subscribe(client *Client) {
	if client == nil || client.SessionID == "" {
		return
	}

	h.mu.Lock()
	set, ok := h.subs[client.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.subs[client.UserID] = set
	}
	set[client.SessionID] = client
	h.mu.Unlock()

	h.log.Info("hub.subscribe", "user_id", client.UserID, "session_id", client.SessionID)
}

// Unsubscribe removes client. Unknown clients are ignored.
func (h *Hub) Unsubscribe(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	set := h.subs[client.UserID]
	if _, ok := set[client.SessionID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, client.SessionID)
	if len(set) == 0 {
		delete(h.subs, client.UserID)
	}
	h.mu.Unlock()

	h.log.Info("hub.unsubscribe", "user_id", client.UserID, "session_id", client.SessionID)
}

// Sessions returns the number of live sessions of userID.
func (h *Hub) Sessions(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Publish queues ev for every session of userID and returns how many accepted it.
func (h *Hub) Publish(userID int64, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.subs[userID] {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- ev:
			delivered++
		default:
			h.log.Warn("hub.drop", "user_id", userID, "session_id", c.SessionID, "type", ev.Type)
		}
	}
	return delivered
}

// VideoStatusChanged forwards a catalog status change to the uploader's sessions.
func (h *Hub) VideoStatusChanged(_ context.Context, v catalog.Video) {
	h.Publish(v.UploaderID, VideoStatusEvent(v, h.now()))
}
