package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"

	"vidshare/cmd/catalog"
	"vidshare/cmd/internal/auth/access"
)

type wsEnv struct {
	hub    *Hub
	tokens access.Manager
	srv    *httptest.Server
}

func newWSEnv(t *testing.T, opts Options) *wsEnv {
	t.Helper()

	acfg := access.DefaultConfig()
	acfg.Ephemeral = true
	tokens, err := access.NewManager(acfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	hub := NewHub(discardLogger())
	gw, err := NewWSGateway(discardLogger(), hub, tokens, opts)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &wsEnv{hub: hub, tokens: tokens, srv: srv}
}

func (e *wsEnv) token(t *testing.T, userID int64) string {
	t.Helper()

	tok, _, err := e.tokens.Issue(userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *wsEnv) dial(t *testing.T, header http.Header, query string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(e.srv.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   header,
	})
}

func bearer(tok string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func waitSessions(t *testing.T, h *Hub, userID int64, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for h.Sessions(userID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("sessions(%d)=%d, want %d", userID, h.Sessions(userID), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSGateway_StreamsOwnStatusEvents(t *testing.T) {
	e := newWSEnv(t, Options{})

	conn, resp, err := e.dial(t, bearer(e.token(t, 42)), "", Subprotocol)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	hello := readEvent(t, conn)
	if hello.Type != TypeHello || len(hello.SessionID) != 26 {
		t.Fatalf("unexpected hello: %+v", hello)
	}

	// Another user's change is not delivered.
	e.hub.VideoStatusChanged(context.Background(), catalog.Video{ID: 1, UploaderID: 7, Status: catalog.StatusReady})
	e.hub.VideoStatusChanged(context.Background(), catalog.Video{ID: 2, UploaderID: 42, Status: catalog.StatusFailed})

	ev := readEvent(t, conn)
	if ev.Type != TypeVideoStatus || ev.VideoID != 2 || ev.Status != catalog.StatusFailed {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitSessions(t, e.hub, 42, 0)
}

func TestWSGateway_QueryToken(t *testing.T) {
	e := newWSEnv(t, Options{})

	conn, _, err := e.dial(t, nil, "access_token="+url.QueryEscape(e.token(t, 5)), Subprotocol)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if ev := readEvent(t, conn); ev.Type != TypeHello {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	if got := e.hub.Sessions(5); got != 1 {
		t.Fatalf("sessions=%d, want 1", got)
	}
}

func TestWSGateway_RejectsHandshake(t *testing.T) {
	e := newWSEnv(t, Options{OriginRequired: true, AllowedOrigins: []string{"http://localhost"}})
	good := e.token(t, 1)

	withOrigin := func(h http.Header, origin string) http.Header {
		if h == nil {
			h = http.Header{}
		}
		h.Set("Origin", origin)
		return h
	}

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{name: "missing origin", header: bearer(good), want: http.StatusForbidden},
		{name: "foreign origin", header: withOrigin(bearer(good), "https://evil.example"), want: http.StatusForbidden},
		{name: "missing token", header: withOrigin(nil, "http://localhost"), want: http.StatusUnauthorized},
		{name: "bad token", header: withOrigin(bearer("not-a-token"), "http://localhost"), want: http.StatusUnauthorized},
		{name: "wrong scheme", header: withOrigin(http.Header{"Authorization": {"Basic " + good}}, "http://localhost"), want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := e.dial(t, tt.header, "", Subprotocol)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err == nil {
				_ = conn.CloseNow()
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tt.want {
				status := 0
				if resp != nil {
					status = resp.StatusCode
				}
				t.Fatalf("status=%d, want %d (err=%v)", status, tt.want, err)
			}
		})
	}

	conn, _, err := e.dial(t, withOrigin(bearer(good), "http://localhost:5173"), "", Subprotocol)
	if err != nil {
		t.Fatalf("allowed origin with port: %v", err)
	}
	_ = conn.CloseNow()
}

func TestWSGateway_RequiresSubprotocol(t *testing.T) {
	e := newWSEnv(t, Options{})

	conn, _, err := e.dial(t, bearer(e.token(t, 3)), "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusProtocolError {
		t.Fatalf("close status=%v, want %v (err=%v)", got, websocket.StatusProtocolError, err)
	}
	if n := e.hub.Sessions(3); n != 0 {
		t.Fatalf("unsubscribed session registered")
	}
}

func TestWSGateway_RateLimited(t *testing.T) {
	e := newWSEnv(t, Options{RateEvents: 2, RateWindow: time.Minute})

	conn, _, err := e.dial(t, bearer(e.token(t, 9)), "", Subprotocol)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()
	_ = readEvent(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
			break
		}
	}

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("close status=%v, want %v (err=%v)", got, websocket.StatusPolicyViolation, err)
	}
	waitSessions(t, e.hub, 9, 0)
}

func TestOriginHelpers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://LocalHost:3000", "localhost"},
		{"https://app.example.com", "app.example.com"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"example.org", "example.org"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := originHost(tt.in); got != tt.want {
			t.Fatalf("originHost(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}

	got := deriveOriginPatterns([]string{"http://localhost", "http://localhost:5173", "", "https://a.example"})
	want := []string{"localhost", "localhost:*", "a.example", "a.example:*"}
	if len(got) != len(want) {
		t.Fatalf("patterns=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns=%v, want %v", got, want)
		}
	}
	if p := deriveOriginPatterns([]string{"http://x", "*"}); len(p) != 1 || p[0] != "*" {
		t.Fatalf("wildcard patterns=%v", p)
	}
}
