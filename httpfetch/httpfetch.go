// Package httpfetch is the QueryFn transport adapter components reach for
// when their data comes from an HTTP API (spec.md DOMAIN STACK). It mirrors
// the shape of gux's fetch.Get/Post/Put/Delete
// (_examples/dougbarrett-gux/fetch/fetch.go), which drove the browser fetch
// API through syscall/js; this rebuild drives github.com/hashicorp/go-
// retryablehttp instead, since a server-side QueryClient has a real network
// stack and the browser's own retry/backoff no longer applies — query.Query
// already owns retry/backoff timing (query/retry.go), so the client here
// retries only transport-level failures the query layer wouldn't otherwise
// see within a single attempt (connection resets, 5xx mid-body).
package httpfetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// Response mirrors gux's fetch.Response shape: status, ok-ness, and the raw
// body, decoupled from http.Response so callers don't need to manage Body
// closing themselves.
type Response struct {
	Status     int
	StatusText string
	OK         bool
	Body       []byte
	Headers    map[string][]string
}

// Options configures a request the way gux's fetch.Options did: method,
// headers and body. Query parameters belong in the url passed to Do.
type Options struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// Client wraps a retryablehttp.Client so every httpfetch call in a process
// shares one connection pool and one transport-level retry policy.
type Client struct {
	inner *retryablehttp.Client
}

// New constructs a Client with at most maxRetries transport-level retries
// and go-retryablehttp's default exponential backoff between them. Its
// logger is silenced; callers log at the query/observer layer instead
// (spec.md "ambient" logging lives in internal/clog, not here).
func New(maxRetries int) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.Logger = nil
	return &Client{inner: c}
}

// Do performs an HTTP request against url with the given Options.
func (c *Client) Do(ctx context.Context, url string, opts *Options) (*Response, error) {
	method := http.MethodGet
	var body io.Reader
	var headers map[string]string

	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		if opts.Body != nil {
			body = bytes.NewReader(opts.Body)
		}
		headers = opts.Headers
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:       data,
		Headers:    resp.Header,
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, url, &Options{Method: http.MethodGet, Headers: headers})
}

// Post performs a POST request with a JSON body, defaulting Content-Type
// the way gux's fetch.Post did.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	return c.withJSON(ctx, http.MethodPost, url, body, headers)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	return c.withJSON(ctx, http.MethodPut, url, body, headers)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, url, &Options{Method: http.MethodDelete, Headers: headers})
}

func (c *Client) withJSON(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	if _, ok := h["Content-Type"]; !ok {
		h["Content-Type"] = "application/json"
	}
	return c.Do(ctx, url, &Options{Method: method, Headers: h, Body: body})
}

// JSONQuery adapts a Client GET into a func(context.Context) ([]byte, error)
// closure that a query.QueryFn can call with its Signal; decode is left to
// the caller (e.g. encoding/json.Unmarshal) so httpfetch stays agnostic of
// the payload type.
func JSONQuery(c *Client, urlFor func() string, headers map[string]string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		resp, err := c.Get(ctx, urlFor(), headers)
		if err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, &StatusError{Status: resp.Status, Body: strings.TrimSpace(string(resp.Body))}
		}
		return resp.Body, nil
	}
}

// StatusError is returned when a server answers with a non-2xx status; its
// Status lets a component's retry Resolver distinguish retryable 5xx from
// terminal 4xx the way spec.md's default retry predicate does.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Body
}

// Retryable reports whether Status is a 5xx or 429, the conventional
// transient-failure set a query's retry Resolver checks.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
