// Package httpapi is the credentialed JSON transport to the marketplace API.
//
// One Client serves one portal visitor: it owns that visitor's cookie jar, so
// the upstream session cookie travels with every request. Requests are never
// retried. A 401 fires the registered unauthorized hooks before Do returns,
// unless the request context opted out with ports.WithoutUnauthorizedHook.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// ObserveFunc receives the outcome of every upstream request. status is 0
// when no response arrived.
type ObserveFunc func(method, path string, status int, elapsed time.Duration)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UploadPath string
	Jar        http.CookieJar
	Observe    ObserveFunc
	// HTTPClient overrides the underlying client; its Jar and Timeout are
	// replaced by the values above.
	HTTPClient *http.Client
}

// Client implements ports.Transport and ports.Uploader.
type Client struct {
	base       *url.URL
	http       *http.Client
	uploadPath string
	observe    ObserveFunc
	log        zerolog.Logger

	mu     sync.Mutex
	hooks  map[int]func()
	nextID int
}

var (
	_ ports.Transport = (*Client)(nil)
	_ ports.Uploader  = (*Client)(nil)
)

// New builds a Client for the API rooted at opts.BaseURL.
func New(opts Options, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", opts.BaseURL)
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		hc = &cp
	}
	hc.Timeout = opts.Timeout
	if hc.Timeout <= 0 {
		hc.Timeout = defaultTimeout
	}
	hc.Jar = opts.Jar

	uploadPath := opts.UploadPath
	if uploadPath == "" {
		uploadPath = "/upload"
	}

	return &Client{
		base:       base,
		http:       hc,
		uploadPath: uploadPath,
		observe:    opts.Observe,
		log:        log,
		hooks:      make(map[int]func()),
	}, nil
}

// OnUnauthorized registers fn to run whenever the API answers 401.
func (c *Client) OnUnauthorized(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.hooks[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.hooks, id)
		c.mu.Unlock()
	}
}

// Do sends in as JSON and decodes a 2xx body into out.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, path string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(req.Method, path, 0, start)
		return &domain.APIError{Kind: domain.KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	c.record(req.Method, path, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &domain.APIError{
			Kind:    domain.StatusKind(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized && !ports.UnauthorizedHookSuppressed(req.Context()) {
			c.fireUnauthorized()
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &domain.APIError{Kind: domain.KindServer, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) record(method, path string, status int, start time.Time) {
	elapsed := time.Since(start)
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("upstream request")
	if c.observe != nil {
		c.observe(method, path, status, elapsed)
	}
}

func (c *Client) fireUnauthorized() {
	c.mu.Lock()
	hooks := make([]func(), 0, len(c.hooks))
	for _, fn := range c.hooks {
		hooks = append(hooks, fn)
	}
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// errorMessage extracts the server's human-readable message from an error
// body of the form {"message": "..."} or {"error": "..."}.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return ""
}
