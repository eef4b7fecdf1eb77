package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
	"vidshare/cmd/internal/auth/access"
)

// MsgEndpointNotFound is the body of every unmatched route.
const MsgEndpointNotFound = "Endpoint not found"

// EventRecorder counts identity outcomes ("register.ok", "login.fail", ...).
type EventRecorder interface {
	RecordEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) RecordEvent(string) {}

// Handler wires HTTP endpoints to the identity and catalog services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users   *identity.Service
	catalog *catalog.Service
	tokens  access.Manager

	events EventRecorder
	now    func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithEventRecorder sets the identity outcome recorder.
func WithEventRecorder(rec EventRecorder) HandlerOption {
	return func(h *Handler) {
		if rec != nil {
			h.events = rec
		}
	}
}

// WithClock overrides time.Now for token issue and verification (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, users *identity.Service, cat *catalog.Service, tokens access.Manager, opts ...HandlerOption) (*Handler, error) {
	if users == nil || cat == nil {
		return nil, errors.New("authapi: nil service")
	}
	if tokens == nil {
		return nil, errors.New("authapi: nil token manager")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	cfg.BasePath = normalizeBasePath(cfg.BasePath)

	h := &Handler{
		log:     log,
		cfg:     cfg,
		users:   users,
		catalog: cat,
		tokens:  tokens,
		events:  noopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Router returns the route table. extra, when non-nil, is mounted next to the API
// routes under the same base path (operational endpoints of the server entry point).
func (h *Handler) Router(extra func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(h.cors)
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.notFound)

	routes := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)
			r.Get("/check", h.handleCheck)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(h.requireAuth).Get("/profile", h.handleGetOwnProfile)
			r.With(h.requireAuth).Put("/profile", h.handleUpdateProfile)
			r.Get("/{username}", h.handleGetUser)
			r.Get("/{username}/videos", h.handleUserVideos)
		})

		r.Route("/channels", func(r chi.Router) {
			r.With(h.requireAuth).Post("/", h.handleCreateChannel)
			r.With(h.requireAuth).Delete("/me", h.handleDeleteChannel)
			r.Get("/{name}", h.handleGetChannel)
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", h.handleListVideos)
			r.With(h.requireAuth).Post("/", h.handleRegisterUpload)
			r.Get("/search", h.handleSearchVideos)
			r.Get("/popular", h.handlePopularVideos)
			r.Get("/{id}", h.handleGetVideo)
			r.With(h.requireAuth).Delete("/{id}", h.handleDeleteVideo)
		})

		if extra != nil {
			extra(r)
		}
	}

	if h.cfg.BasePath == "" {
		routes(r)
	} else {
		r.Route(h.cfg.BasePath, func(r chi.Router) {
			r.NotFound(h.notFound)
			r.MethodNotAllowed(h.notFound)
			routes(r)
		})
	}
	return r
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, MsgEndpointNotFound)
}

// cors stamps the permissive CORS headers on every response and answers preflights.
// CORS values sent on every response.
const (
	CORSAllowHeaders = "Content-Type,Authorization"
	CORSAllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
)

func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", h.cfg.AllowOrigin)
		hdr.Set("Access-Control-Allow-Headers", CORSAllowHeaders)
		hdr.Set("Access-Control-Allow-Methods", CORSAllowMethods)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
