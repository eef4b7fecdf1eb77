package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"vidshare/cmd/internal/auth/access"
)

const (
	Subprotocol = "vidshare.status.v1"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsTokenQueryParam = "access_token"
)

// Options tunes a WSGateway. Zero values fall back to defaults.
type Options struct {
	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	// AllowedOrigins lists full origins or bare hosts; "*" allows any.
	AllowedOrigins []string

	WriteTimeout     time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// WSGateway upgrades authenticated requests to a websocket that streams the
// caller's video status events.
//
// It enforces origin policy, subprotocol selection, inbound rate limits and heartbeats.
type WSGateway struct {
	log    *slog.Logger
	hub    *Hub
	tokens access.Manager
	now    func() time.Time

	originRequired bool
	allowedOrigins []string
	// Derived for websocket.Accept, which rejects cross-origin hosts not listed here.
	originPatterns []string

	writeTimeout  time.Duration
	sendQueueSize int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway publishing hub events to token holders.
func NewWSGateway(log *slog.Logger, hub *Hub, tokens access.Manager, opts Options) (*WSGateway, error) {
	if hub == nil {
		return nil, errors.New("realtime: nil hub")
	}
	if tokens == nil {
		return nil, errors.New("realtime: nil token manager")
	}
	if log == nil {
		log = slog.Default()
	}

	g := &WSGateway{
		log:              log,
		hub:              hub,
		tokens:           tokens,
		now:              time.Now,
		originRequired:   opts.OriginRequired,
		allowedOrigins:   opts.AllowedOrigins,
		originPatterns:   deriveOriginPatterns(opts.AllowedOrigins),
		writeTimeout:     orDuration(opts.WriteTimeout, wsDefaultWriteTimeout),
		sendQueueSize:    opts.SendQueueSize,
		heartbeatEvery:   orDuration(opts.HeartbeatEvery, heartbeatInterval),
		heartbeatTimeout: orDuration(opts.HeartbeatTimeout, heartbeatTimeout),
		rateEvents:       opts.RateEvents,
		rateWindow:       opts.RateWindow,
	}
	if g.sendQueueSize <= 0 {
		g.sendQueueSize = wsDefaultSendQueueSize
	}
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}
	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates the request, upgrades it and runs the session until
// either side goes away.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	raw := requestToken(r)
	if raw == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.Verify(raw, g.now().UTC())
	if err != nil {
		g.log.Info("ws.reject.token", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	// Server read/write timeouts must not cut a long-lived session.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(g.now())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}
	client := NewClient(claims.UserID, sessionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	// Unsubscribe happens before Close, so Publish never sees a finished client.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// hello is queued ahead of any event, and receiving it means the session is subscribed.
	client.Send <- Event{Type: TypeHello, SessionID: sessionID, At: g.now().UTC()}
	g.hub.Subscribe(client)
	g.log.Info("ws.open", "session_id", sessionID, "user_id", claims.UserID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.Send:
				if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// The read loop answers pings and detects close. Payloads are ignored but counted.
	rl := NewRateLimiter(g.rateEvents, g.rateWindow)
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break
		}
		if !rl.Allow(g.now()) {
			g.log.Info("ws.rate_limited", "session_id", sessionID)
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("ws.close", "session_id", sessionID, "user_id", claims.UserID)
}

// requestToken reads a bearer token, falling back to the access_token query
// parameter for browser clients that cannot set headers on an upgrade.
func requestToken(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		scheme, tok, ok := strings.Cut(raw, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(tok)
	}
	return strings.TrimSpace(r.URL.Query().Get(wsTokenQueryParam))
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHost(origin)
	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", a == origin:
			return nil
		case host != "" && host == originHost(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost lowercases the host of a URL or host[:port], dropping the port.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into websocket.Accept host patterns,
// each with and without a port wildcard.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	out := make([]string, 0, 2*len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHost(a)
		if h == "" {
			continue
		}
		for _, p := range []string{h, h + ":*"} {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
