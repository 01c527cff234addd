package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/remycare-client/session"
	"github.com/jrsteele09/remycare-client/token"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultRefreshPath = "/auth/refresh"
	requestIDHeader    = "X-Request-ID"
)

// Gateway is the single path for every REST call the dashboard makes. It
// attaches the current access token, maps failures to APIError and recovers
// from an expired access token with one refresh and one retry.
type Gateway struct {
	baseURL          string
	client           *http.Client
	store            session.Store
	timeout          time.Duration
	refreshPath      string
	logger           zerolog.Logger
	onSessionExpired func()
	onTokenRefreshed func(access string)
	refresher        *refresher
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// WithTimeout sets the per-request deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithSessionExpiredHandler registers fn to run once each time a failed
// refresh ends the session.
func WithSessionExpiredHandler(fn func()) Option {
	return func(g *Gateway) {
		g.onSessionExpired = fn
	}
}

// WithTokenRefreshedHandler registers fn to run with every new access token.
func WithTokenRefreshedHandler(fn func(access string)) Option {
	return func(g *Gateway) {
		g.onTokenRefreshed = fn
	}
}

func WithRefreshPath(path string) Option {
	return func(g *Gateway) {
		g.refreshPath = path
	}
}

// New creates a Gateway for the API rooted at baseURL, e.g.
// http://localhost:5001/api/v1.
func New(baseURL string, store session.Store, options ...Option) *Gateway {
	g := &Gateway{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      &http.Client{},
		store:       store,
		timeout:     defaultTimeout,
		refreshPath: defaultRefreshPath,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "gateway").Logger()
	g.refresher = &refresher{gw: g}
	return g
}

// BaseURL returns the API root the gateway was created with.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

func (g *Gateway) Get(ctx context.Context, path string, out any, opts ...CallOption) error {
	return g.call(ctx, http.MethodGet, path, nil, out, opts)
}

func (g *Gateway) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return g.call(ctx, http.MethodPost, path, body, out, opts)
}

func (g *Gateway) Put(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return g.call(ctx, http.MethodPut, path, body, out, opts)
}

func (g *Gateway) Patch(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return g.call(ctx, http.MethodPatch, path, body, out, opts)
}

func (g *Gateway) Delete(ctx context.Context, path string, out any, opts ...CallOption) error {
	return g.call(ctx, http.MethodDelete, path, nil, out, opts)
}

func (g *Gateway) call(ctx context.Context, method, path string, body, out any, opts []CallOption) error {
	req, err := newPendingRequest(method, path, body, opts)
	if err != nil {
		return err
	}
	return g.do(ctx, req, out)
}

func (g *Gateway) do(ctx context.Context, req *pendingRequest, out any) error {
	access := ""
	if req.authRequired {
		access, _ = g.store.AccessToken()
	}

	resp, err := g.send(ctx, req, access)
	if err != nil {
		return err
	}

	// A 401 on a request that carried no token is an answer, not an expiry.
	if resp.status == http.StatusUnauthorized && access != "" && req.markRetried() {
		fresh, err := g.refresher.refresh(ctx, access)
		if err != nil {
			return err
		}
		if resp, err = g.send(ctx, req, fresh); err != nil {
			return err
		}
	}
	return decode(resp, out)
}

type response struct {
	status int
	body   []byte
}

func (g *Gateway) send(ctx context.Context, req *pendingRequest, access string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, g.baseURL+req.path, body)
	if err != nil {
		return nil, &APIError{Kind: KindUnknown, Message: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, req.id)
	if access != "" {
		token.Bearer(access).SetAuthHeader(httpReq)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		apiErr := transportError(err)
		g.logger.Warn().Err(err).
			Str("request_id", req.id).
			Str("method", req.method).
			Str("path", req.path).
			Str("kind", string(apiErr.Kind)).
			Msg("Request failed without a response")
		return nil, apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	g.logger.Debug().
		Str("request_id", req.id).
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Bool("retried", req.retried).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")
	return &response{status: resp.StatusCode, body: data}, nil
}

func decode(resp *response, out any) error {
	if resp.status < 200 || resp.status > 299 {
		return statusError(resp)
	}
	if resp.status == http.StatusNoContent || out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &APIError{Kind: KindUnknown, Message: "malformed response body", StatusCode: resp.status, Err: err}
	}
	return nil
}
