// Package gateway serves API Gateway proxy events through a plain http.Handler,
// so the serverless entry point shares the router of the long-running server.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	authapi "vidshare/cmd/internal/auth/api"
)

// Adapter converts proxy events to requests and recorded responses back to events.
type Adapter struct {
	h           http.Handler
	log         *slog.Logger
	allowOrigin string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithAllowOrigin sets the Access-Control-Allow-Origin of responses the adapter
// writes itself. It should match the router's value.
func WithAllowOrigin(origin string) Option {
	return func(a *Adapter) {
		if origin = strings.TrimSpace(origin); origin != "" {
			a.allowOrigin = origin
		}
	}
}

// New returns an Adapter around h.
func New(h http.Handler, log *slog.Logger, opts ...Option) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{h: h, log: log, allowOrigin: authapi.DefaultConfig().AllowOrigin}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle is the lambda handler function.
func (a *Adapter) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := Request(ctx, ev)
	if err != nil {
		a.log.WarnContext(ctx, "gateway.request.invalid", "err", err, "aws_request_id", ev.RequestContext.RequestID)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers: map[string]string{
				"Content-Type":                 "application/json; charset=utf-8",
				"Access-Control-Allow-Origin":  a.allowOrigin,
				"Access-Control-Allow-Headers": authapi.CORSAllowHeaders,
				"Access-Control-Allow-Methods": authapi.CORSAllowMethods,
			},
			Body: `{"error":"Invalid request body"}`,
		}, nil
	}

	rec := newRecorder()
	a.h.ServeHTTP(rec, req)
	return rec.response(), nil
}

// Request builds the *http.Request described by ev. A leading "/{stage}" segment
// is removed from the path when the event names a stage.
func Request(ctx context.Context, ev events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: decode base64 body: %w", err)
		}
		body = decoded
	}

	u := url.URL{Path: stripStage(ev.Path, ev.RequestContext.Stage), RawQuery: query(ev).Encode()}
	method := ev.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}

	for k, v := range ev.Headers {
		req.Header.Set(k, v)
	}
	for k, vs := range ev.MultiValueHeaders {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	if ip := ev.RequestContext.Identity.SourceIP; ip != "" {
		req.RemoteAddr = ip
	}
	if id := ev.RequestContext.RequestID; id != "" && req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", id)
	}
	req.ContentLength = int64(len(body))
	return req, nil
}

func query(ev events.APIGatewayProxyRequest) url.Values {
	q := url.Values{}
	if len(ev.MultiValueQueryStringParameters) > 0 {
		for k, vs := range ev.MultiValueQueryStringParameters {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		return q
	}
	for k, v := range ev.QueryStringParameters {
		q.Set(k, v)
	}
	return q
}

func stripStage(path, stage string) string {
	if path == "" {
		path = "/"
	}
	if stage == "" || stage == "$default" {
		return path
	}
	prefix := "/" + stage
	switch {
	case path == prefix:
		return "/"
	case strings.HasPrefix(path, prefix+"/"):
		return strings.TrimPrefix(path, prefix)
	default:
		return path
	}
}

// recorder is a minimal http.ResponseWriter that buffers one response.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder { return &recorder{header: http.Header{}} }

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) response() events.APIGatewayProxyResponse {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	single := make(map[string]string, len(r.header))
	multi := make(map[string][]string, len(r.header))
	for k, vs := range r.header {
		if len(vs) == 0 {
			continue
		}
		single[k] = vs[len(vs)-1]
		multi[k] = append([]string(nil), vs...)
	}

	res := events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           single,
		MultiValueHeaders: multi,
	}
	if isText(r.header.Get("Content-Type")) || r.body.Len() == 0 {
		res.Body = r.body.String()
	} else {
		res.Body = base64.StdEncoding.EncodeToString(r.body.Bytes())
		res.IsBase64Encoded = true
	}
	return res
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") ||
		mt == "application/json" ||
		strings.HasSuffix(mt, "+json") ||
		mt == "application/xml"
}
