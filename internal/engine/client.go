/*
PURPOSE:
  Authenticated HTTP client for the ToDo API.
  Shapes verb, path, query and JSON body, attaches the bearer session,
  and hands back the status code with the decoded body bytes.

REQUIREMENTS:
  User-specified:
  - Accept: application/json on every call.
  - Authorization: Bearer <accessToken> on every authenticated call.
  - Returns (status, body); body parsing is on demand.

  Implementation-discovered:
  - The base URL carries a path prefix on the hosted deployment.
  - Responses may be gzip/br/zstd encoded once Accept-Encoding is sent by hand.

ARCHITECTURE INTEGRATION:
  - Called by: SessionManager, Scenario, Prober, internal/cli (list-entries)
  - Uses: internal/config, internal/model, internal/output

ERROR HANDLING:
  - Transport failures are returned as errors; callers abort on them.
  - Non-2xx statuses are NOT errors here; callers decide what they mean.

IMPLEMENTATION RULES:
  - No retries, no backoff. Pacing belongs to the Prober.
  - Per-request timeout comes from config.RequestTimeout.

USAGE:
  c, err := engine.NewClient(cfg)
  c.SetSession(session)
  resp, err := c.Get(ctx, engine.EntriesPath, nil)

SELF-HEALING INSTRUCTIONS:
  - If the API moves, update EntriesPath / RegisterPath / LoginPath.

RELATED FILES:
  - internal/engine/session.go
  - internal/engine/decode.go

MAINTENANCE:
  - Update when the auth scheme changes.
*/

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/daryltucker/todo-prober/internal/output"
)

// API paths relative to the base URL.
const (
	RegisterPath = "/register"
	LoginPath    = "/login"
	EntriesPath  = "/ToDoEntries"
)

// EntryPath addresses a single entry.
func EntryPath(id string) string {
	return EntriesPath + "/" + url.PathEscape(id)
}

// Response is the observed result of one call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode parses the JSON body into v. An empty body is an error so that
// callers never dereference a response that carried nothing.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("%w: empty body (status %d)", ErrMalformedResponse, r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v (body: %s)", ErrMalformedResponse, err, truncate(string(r.Body), 200))
	}
	return nil
}

// Client handles ToDo API interactions.
type Client struct {
	BaseURL        *url.URL
	HTTP           *http.Client
	AcceptEncoding string

	session *model.Session
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg *config.Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.RequestTimeout

	return &Client{
		BaseURL:        base,
		AcceptEncoding: cfg.AcceptEncoding,
		HTTP: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}, nil
}

// SetSession attaches the bearer session to every following call.
func (c *Client) SetSession(s model.Session) {
	c.session = &s
}

// Session returns the attached session, if any.
func (c *Client) Session() (model.Session, bool) {
	if c.session == nil {
		return model.Session{}, false
	}
	return *c.session, true
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, query, body)
}

func (c *Client) Put(ctx context.Context, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, query, body)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, query, nil)
}

// Do issues one request. A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	target := c.BaseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		payload = bytes.NewReader(data)
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			output.Logger.Debug("Network: Connected", "remote", info.Conn.RemoteAddr(), "reused", info.Reused)
		},
		GotFirstResponseByte: func() {
			output.Logger.Debug("Network: First Byte Received", "method", method, "path", path)
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", c.AcceptEncoding)
	}
	if c.session != nil {
		req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	decoded, err := decodeBody(raw, resp.Header.Get("Content-Encoding"), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       decoded,
		Duration:   time.Since(start),
	}, nil
}

// ErrMalformedResponse marks a body that lacks the JSON the contract promises.
var ErrMalformedResponse = errors.New("malformed response")

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
