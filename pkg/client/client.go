// Package client provides a typed Go client for the appopsd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/accesslog"
	"github.com/Mindburn-Labs/appops/pkg/api"
	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("appops api %d: %s: %s", e.Status, e.Title, e.Detail)
}

// Client is a typed client for appopsd.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a new Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var problem api.ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil {
			return &APIError{Status: resp.StatusCode, Title: problem.Title, Detail: problem.Detail}
		}
		return &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health", nil, nil)
}

// Catalog calls GET /v1/catalog.
func (c *Client) Catalog(ctx context.Context) ([]registry.Op, error) {
	var out struct {
		Ops []registry.Op `json:"ops"`
	}
	err := c.do(ctx, "GET", "/v1/catalog", nil, &out)
	return out.Ops, err
}

// Check calls POST /v1/ops/check.
func (c *Client) Check(ctx context.Context, req api.CheckRequest) (registry.Mode, error) {
	return c.mode(ctx, "/v1/ops/check", req)
}

// Note calls POST /v1/ops/note.
func (c *Client) Note(ctx context.Context, req api.NoteRequest) (registry.Mode, error) {
	return c.mode(ctx, "/v1/ops/note", req)
}

// Start calls POST /v1/ops/start.
func (c *Client) Start(ctx context.Context, req api.NoteRequest) (registry.Mode, error) {
	return c.mode(ctx, "/v1/ops/start", req)
}

// Finish calls POST /v1/ops/finish.
func (c *Client) Finish(ctx context.Context, req appops.Request) error {
	return c.do(ctx, "POST", "/v1/ops/finish", api.NoteRequest{Request: req}, nil)
}

func (c *Client) mode(ctx context.Context, path string, body any) (registry.Mode, error) {
	var out api.ModeResponse
	if err := c.do(ctx, "POST", path, body, &out); err != nil {
		return registry.ModeErrored, err
	}
	return out.Mode, nil
}

// SetMode calls POST /v1/modes.
func (c *Client) SetMode(ctx context.Context, op string, uid int, pkg string, mode registry.Mode) error {
	return c.do(ctx, "POST", "/v1/modes", api.SetModeRequest{Op: op, UID: uid, Package: pkg, Mode: mode}, nil)
}

// SetUIDMode calls POST /v1/modes/uid.
func (c *Client) SetUIDMode(ctx context.Context, op string, uid int, mode registry.Mode) error {
	return c.do(ctx, "POST", "/v1/modes/uid", api.SetModeRequest{Op: op, UID: uid, Mode: mode}, nil)
}

// ResetAllModes calls POST /v1/modes/reset.
func (c *Client) ResetAllModes(ctx context.Context, uid int, pkg string) error {
	return c.do(ctx, "POST", "/v1/modes/reset", api.ResetRequest{UID: uid, Package: pkg}, nil)
}

// Reload calls POST /v1/state/reload.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, "POST", "/v1/state/reload", nil, nil)
}

// RemovePackage calls DELETE /v1/packages.
func (c *Client) RemovePackage(ctx context.Context, uid int, pkg string) error {
	q := url.Values{}
	q.Set("uid", strconv.Itoa(uid))
	q.Set("package", pkg)
	return c.do(ctx, "DELETE", "/v1/packages?"+q.Encode(), nil, nil)
}

// ActiveSpans calls GET /v1/ops/active. A negative uid lists every uid.
func (c *Client) ActiveSpans(ctx context.Context, uid int) ([]api.SpanView, error) {
	var out struct {
		Spans []api.SpanView `json:"spans"`
	}
	err := c.do(ctx, "GET", "/v1/ops/active?uid="+strconv.Itoa(uid), nil, &out)
	return out.Spans, err
}

// OpsForPackage calls GET /v1/ops/access.
func (c *Client) OpsForPackage(ctx context.Context, uid int, pkg string) ([]appops.OpEntry, error) {
	q := url.Values{}
	q.Set("uid", strconv.Itoa(uid))
	q.Set("package", pkg)
	var out struct {
		Ops []appops.OpEntry `json:"ops"`
	}
	err := c.do(ctx, "GET", "/v1/ops/access?"+q.Encode(), nil, &out)
	return out.Ops, err
}

// LastAccess calls GET /v1/ops/access for one op. filter is allowed,
// rejected or any.
func (c *Client) LastAccess(ctx context.Context, req appops.Request, filter string) (accesslog.Record, error) {
	q := url.Values{}
	q.Set("uid", strconv.Itoa(req.UID))
	q.Set("package", req.Package)
	q.Set("op", req.Op)
	q.Set("attribution_tag", req.AttributionTag)
	q.Set("filter", filter)
	var out accesslog.Record
	err := c.do(ctx, "GET", "/v1/ops/access?"+q.Encode(), nil, &out)
	return out, err
}
