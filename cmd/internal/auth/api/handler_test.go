package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
	"vidshare/cmd/internal/auth/access"
	"vidshare/cmd/security/password"
)

type testEnv struct {
	srv     *httptest.Server
	catalog *catalog.Service
	events  *countingRecorder
}

type countingRecorder struct {
	got map[string]int
}

func (c *countingRecorder) RecordEvent(e string) { c.got[e]++ }

func newTestEnv(t *testing.T, cfg Config, extra func(chi.Router)) *testEnv {
	t.Helper()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := identity.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	userStore, err := identity.NewSQLiteStore(ctx, db, 5*time.Second)
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	catStore, err := catalog.NewSQLiteStore(ctx, db, 5*time.Second)
	if err != nil {
		t.Fatalf("catalog store: %v", err)
	}

	hasher := password.DefaultConfig()
	hasher.Params.MemoryKiB = 8 * 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1

	users, err := identity.NewService(userStore, hasher, identity.WithLogger(log))
	if err != nil {
		t.Fatalf("identity service: %v", err)
	}
	cat, err := catalog.NewService(catStore, catalog.WithLogger(log))
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}

	acfg := access.DefaultConfig()
	acfg.Ephemeral = true
	tokens, err := access.NewManager(acfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	rec := &countingRecorder{got: map[string]int{}}
	h, err := NewHandler(log, cfg, users, cat, tokens, WithEventRecorder(rec))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	srv := httptest.NewServer(h.Router(extra))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, catalog: cat, events: rec}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return res.StatusCode, out
}

// signup registers and logs in, returning the bearer token.
func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "email": username + "@x.com", "password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("register %s: status=%d body=%v", username, status, body)
	}
	status, body = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username, "password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%v", username, status, body)
	}
	tok, _ := body["token"].(string)
	if tok == "" {
		t.Fatalf("login %s: missing token", username)
	}
	return tok
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)

	status, body := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("register: status=%d body=%v", status, body)
	}
	if body["message"] != "User registered successfully" || body["username"] != "alice" {
		t.Fatalf("register body: %v", body)
	}
	if _, ok := body["userId"].(float64); !ok {
		t.Fatalf("register userId missing: %v", body)
	}

	status, body = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status=%d body=%v", status, body)
	}
	if body["message"] != "Login successful" || body["email"] != "alice@x.com" {
		t.Fatalf("login body: %v", body)
	}
	if _, ok := body["passwordHash"]; ok {
		t.Fatalf("login leaked password hash: %v", body)
	}

	if env.events.got["register.ok"] != 1 || env.events.got["login.ok"] != 1 {
		t.Fatalf("events: %v", env.events.got)
	}
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	env.signup(t, "alice")

	cases := []struct {
		name string
		body any
		want string
	}{
		{"missing username", map[string]string{"email": "b@x.com", "password": "secret1"}, identity.MsgUsernameRequired},
		{"short password", map[string]string{"username": "bob", "email": "b@x.com", "password": "abc"}, "Password must be at least 6 characters"},
		{"duplicate username", map[string]string{"username": "alice", "email": "other@x.com", "password": "secret1"}, MsgUsernameTaken},
		{"duplicate email", map[string]string{"username": "bob", "email": "alice@x.com", "password": "secret1"}, MsgEmailTaken},
		{"malformed", "{not json", MsgInvalidBody},
		{"trailing data", `{"username":"bob"} {}`, MsgInvalidBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/auth/register", "", tc.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status=%d body=%v", status, body)
			}
			if body["error"] != tc.want {
				t.Fatalf("error=%v want %q", body["error"], tc.want)
			}
		})
	}

	if env.events.got["register.conflict"] != 2 {
		t.Fatalf("conflict events: %v", env.events.got)
	}
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	env.signup(t, "alice")

	_, unknown := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "secret1"})
	status, wrong := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong-pw"})
	if status != http.StatusBadRequest {
		t.Fatalf("status=%d", status)
	}
	if unknown["error"] != wrong["error"] || wrong["error"] != identity.MsgInvalidCredentials {
		t.Fatalf("unknown=%v wrong=%v", unknown, wrong)
	}
}

func TestCheckUsername(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	env.signup(t, "alice")

	status, body := env.do(t, http.MethodGet, "/auth/check?username=alice", "", nil)
	if status != http.StatusOK || body["exists"] != true || body["available"] != false {
		t.Fatalf("taken: status=%d body=%v", status, body)
	}
	_, body = env.do(t, http.MethodGet, "/auth/check?username=bob", "", nil)
	if body["exists"] != false || body["available"] != true {
		t.Fatalf("free: %v", body)
	}
	status, body = env.do(t, http.MethodGet, "/auth/check", "", nil)
	if status != http.StatusBadRequest || body["error"] != identity.MsgUsernameParamRequired {
		t.Fatalf("missing: status=%d body=%v", status, body)
	}
}

func TestProfile_RequiresToken(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)

	status, body := env.do(t, http.MethodGet, "/users/profile", "", nil)
	if status != http.StatusUnauthorized || body["error"] != MsgAuthHeaderRequired {
		t.Fatalf("no header: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/users/profile", "not-a-token", nil)
	if status != http.StatusUnauthorized || body["error"] != MsgInvalidToken {
		t.Fatalf("bad token: status=%d body=%v", status, body)
	}
}

func TestProfile_GetAndUpdate(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	tok := env.signup(t, "alice")

	status, body := env.do(t, http.MethodGet, "/users/profile", tok, nil)
	if status != http.StatusOK || body["username"] != "alice" || body["displayName"] != "alice" {
		t.Fatalf("get: status=%d body=%v", status, body)
	}

	status, body = env.do(t, http.MethodPut, "/users/profile", tok, map[string]any{
		"displayName":     "Alice A.",
		"profileImageUrl": "https://img/a.png",
		"email":           "evil@x.com",
		"username":        "mallory",
	})
	if status != http.StatusOK || body["message"] != "Profile updated successfully" {
		t.Fatalf("update: status=%d body=%v", status, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["displayName"] != "Alice A." || user["email"] != "alice@x.com" || user["username"] != "alice" {
		t.Fatalf("updated user: %v", user)
	}
	if _, ok := user["updatedAt"]; !ok {
		t.Fatalf("updatedAt missing: %v", user)
	}

	status, body = env.do(t, http.MethodPut, "/users/profile", tok, map[string]any{"displayName": nil})
	if status != http.StatusOK {
		t.Fatalf("clear: status=%d body=%v", status, body)
	}
	if user, _ := body["user"].(map[string]any); user["displayName"] != "alice" {
		t.Fatalf("cleared display name: %v", user)
	}

	status, body = env.do(t, http.MethodPut, "/users/profile", tok, map[string]any{"displayName": 42})
	if status != http.StatusBadRequest {
		t.Fatalf("wrong type: status=%d body=%v", status, body)
	}
}

func TestProfile_IgnoresClientSuppliedUserID(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	_, bob := env.do(t, http.MethodGet, "/users/bob", "", nil)
	_, own := env.do(t, http.MethodGet, "/users/profile", alice, nil)
	bobID, aliceID := bob["id"], own["id"]
	if bobID == nil || aliceID == nil || bobID == aliceID {
		t.Fatalf("ids: alice=%v bob=%v", aliceID, bobID)
	}

	path := fmt.Sprintf("/users/profile?userId=%v", bobID)
	status, body := env.do(t, http.MethodPut, path, alice, map[string]any{
		"displayName": "Renamed",
		"userId":      bobID,
		"id":          bobID,
	})
	if status != http.StatusOK {
		t.Fatalf("update: status=%d body=%v", status, body)
	}
	if user, _ := body["user"].(map[string]any); user["id"] != aliceID || user["username"] != "alice" {
		t.Fatalf("updated the wrong row: %v", user)
	}

	if _, body = env.do(t, http.MethodGet, "/users/bob", "", nil); body["displayName"] != "bob" {
		t.Fatalf("bob changed: %v", body)
	}
	if _, body = env.do(t, http.MethodGet, "/users/alice", "", nil); body["displayName"] != "Renamed" {
		t.Fatalf("alice unchanged: %v", body)
	}

	if _, body = env.do(t, http.MethodGet, path, alice, nil); body["username"] != "alice" {
		t.Fatalf("get with userId: %v", body)
	}
}

func TestPublicProfile(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	env.signup(t, "alice")

	status, body := env.do(t, http.MethodGet, "/users/alice", "", nil)
	if status != http.StatusOK || body["username"] != "alice" {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if _, ok := body["email"]; ok {
		t.Fatalf("public profile leaked email: %v", body)
	}

	status, body = env.do(t, http.MethodGet, "/users/nobody", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgUserNotFound {
		t.Fatalf("missing: status=%d body=%v", status, body)
	}
}

func TestNotFoundAndCORS(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)

	status, body := env.do(t, http.MethodGet, "/nope", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgEndpointNotFound {
		t.Fatalf("unknown route: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodDelete, "/auth/login", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgEndpointNotFound {
		t.Fatalf("wrong method: status=%d body=%v", status, body)
	}

	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/auth/register", nil)
	res, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("options status=%d", res.StatusCode)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q", got)
	}
	if got := res.Header.Get("Access-Control-Allow-Headers"); got != "Content-Type,Authorization" {
		t.Fatalf("allow-headers=%q", got)
	}
}

func TestBasePathAndExtraRoutes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BasePath = "/api/"
	env := newTestEnv(t, cfg, func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	status, _ := env.do(t, http.MethodGet, "/api/auth/check?username=x", "", nil)
	if status != http.StatusOK {
		t.Fatalf("prefixed route: status=%d", status)
	}
	status, body := env.do(t, http.MethodGet, "/api/healthz", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("extra route: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/auth/check?username=x", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgEndpointNotFound {
		t.Fatalf("unprefixed route: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/api/nope", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgEndpointNotFound {
		t.Fatalf("unknown prefixed route: status=%d body=%v", status, body)
	}
}

func TestChannelsAndVideos(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	status, body := env.do(t, http.MethodPost, "/channels", "", map[string]string{"name": "Cooking"})
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous channel: status=%d", status)
	}
	status, body = env.do(t, http.MethodPost, "/channels", alice, map[string]string{"name": "Cooking"})
	if status != http.StatusCreated || body["name"] != "Cooking" {
		t.Fatalf("create channel: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodPost, "/channels", bob, map[string]string{"name": "Cooking"})
	if status != http.StatusBadRequest || body["error"] != catalog.MsgChannelNameTaken {
		t.Fatalf("duplicate name: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodPost, "/channels", alice, map[string]string{"name": "Second"})
	if status != http.StatusBadRequest || body["error"] != catalog.MsgChannelAlreadyOwned {
		t.Fatalf("second channel: status=%d body=%v", status, body)
	}
	status, _ = env.do(t, http.MethodGet, "/channels/Cooking", "", nil)
	if status != http.StatusOK {
		t.Fatalf("get channel: status=%d", status)
	}
	status, body = env.do(t, http.MethodGet, "/channels/Missing", "", nil)
	if status != http.StatusNotFound || body["error"] != MsgChannelNotFound {
		t.Fatalf("missing channel: status=%d body=%v", status, body)
	}

	status, body = env.do(t, http.MethodPost, "/videos", alice, map[string]any{"title": "Pasta 100%", "filePath": "videos/pasta.mp4"})
	if status != http.StatusCreated || body["status"] != string(catalog.StatusProcessing) {
		t.Fatalf("upload: status=%d body=%v", status, body)
	}
	if _, ok := body["filePath"]; ok {
		t.Fatalf("file path rendered: %v", body)
	}
	id := int64(body["id"].(float64))

	// Processing videos stay out of the default listing.
	_, body = env.do(t, http.MethodGet, "/videos", "", nil)
	if vids, _ := body["videos"].([]any); len(vids) != 0 {
		t.Fatalf("ready listing before encode: %v", body)
	}
	if _, err := env.catalog.MarkReady(context.Background(), id, catalog.EncodingResult{}); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	_, body = env.do(t, http.MethodGet, "/videos", "", nil)
	if vids, _ := body["videos"].([]any); len(vids) != 1 {
		t.Fatalf("ready listing: %v", body)
	}

	_, body = env.do(t, http.MethodGet, "/videos/search?q=100%25", "", nil)
	if vids, _ := body["videos"].([]any); len(vids) != 1 {
		t.Fatalf("search: %v", body)
	}
	status, body = env.do(t, http.MethodGet, "/videos/search", "", nil)
	if status != http.StatusBadRequest || body["error"] != catalog.MsgSearchKeyword {
		t.Fatalf("blank search: status=%d body=%v", status, body)
	}
	status, _ = env.do(t, http.MethodGet, "/videos/popular?limit=5", "", nil)
	if status != http.StatusOK {
		t.Fatalf("popular: status=%d", status)
	}
	status, body = env.do(t, http.MethodGet, "/videos?status=deleted", "", nil)
	if status != http.StatusBadRequest || body["error"] != MsgDeletedListing {
		t.Fatalf("deleted listing: status=%d body=%v", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/videos?limit=abc", "", nil)
	if status != http.StatusBadRequest || body["error"] != MsgInvalidPaging {
		t.Fatalf("bad paging: status=%d body=%v", status, body)
	}

	_, body = env.do(t, http.MethodGet, "/users/alice/videos", "", nil)
	if body["total"] != float64(1) {
		t.Fatalf("user videos: %v", body)
	}

	path := "/videos/" + jsonNumber(id)
	status, body = env.do(t, http.MethodDelete, path, bob, nil)
	if status != http.StatusNotFound || body["error"] != MsgVideoNotFound {
		t.Fatalf("foreign delete: status=%d body=%v", status, body)
	}
	status, _ = env.do(t, http.MethodDelete, path, alice, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: status=%d", status)
	}
	status, _ = env.do(t, http.MethodGet, path, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("deleted video visible: status=%d", status)
	}
	status, body = env.do(t, http.MethodGet, "/videos/zero", "", nil)
	if status != http.StatusBadRequest || body["error"] != MsgInvalidVideoID {
		t.Fatalf("bad id: status=%d body=%v", status, body)
	}

	env.do(t, http.MethodPost, "/videos", alice, map[string]any{"title": "Soup", "filePath": "videos/soup.mp4"})
	status, body = env.do(t, http.MethodDelete, "/channels/me", alice, nil)
	if status != http.StatusOK || body["videosDeleted"] != float64(1) {
		t.Fatalf("delete channel: status=%d body=%v", status, body)
	}
	status, _ = env.do(t, http.MethodDelete, "/channels/me", alice, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second channel delete: status=%d", status)
	}
}

func jsonNumber(n int64) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
