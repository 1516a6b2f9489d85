// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package searxng

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL is where a local SearXNG listens by default.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultSearchTimeout bounds a /search request.
	DefaultSearchTimeout = 10 * time.Second

	// DefaultConfigTimeout bounds a /config request.
	DefaultConfigTimeout = 5 * time.Second

	// DefaultUserAgent is sent on every request; SearXNG's bot detection
	// rejects obvious non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0"

	// maxBodySize limits how much of a response is read (5MB).
	maxBodySize = 5 * 1024 * 1024
)

// ClientConfig holds configuration options for the search client.
type ClientConfig struct {
	// BaseURL is the aggregator base URL (default: http://localhost:8080)
	BaseURL string

	// SearchTimeout for /search (default: 10s)
	SearchTimeout time.Duration

	// ConfigTimeout for /config (default: 5s)
	ConfigTimeout time.Duration

	// DefaultEngines used when a search names none (default: google)
	DefaultEngines []string

	// UserAgent header value
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        DefaultBaseURL,
		SearchTimeout:  DefaultSearchTimeout,
		ConfigTimeout:  DefaultConfigTimeout,
		DefaultEngines: []string{"google"},
		UserAgent:      DefaultUserAgent,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the search façade. It is safe for concurrent use; the
// configuration is fixed once the client is built.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	notifier   Notifier
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithNotifier replaces the default log notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client with default configuration.
func NewClient(opts ...Option) *Client {
	return NewClientWithConfig(DefaultConfig(), opts...)
}

// NewClientWithConfig creates a client with custom configuration. Zero
// values fall back to defaults.
func NewClientWithConfig(config *ClientConfig, opts ...Option) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.ConfigTimeout <= 0 {
		cfg.ConfigTimeout = DefaultConfigTimeout
	}
	if len(cfg.DefaultEngines) == 0 {
		cfg.DefaultEngines = []string{"google"}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		config:     &cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = &LogNotifier{Logger: c.logger}
	}
	return c
}

// Config returns a copy of the client configuration.
func (c *Client) Config() ClientConfig {
	cfg := *c.config
	cfg.DefaultEngines = append([]string(nil), c.config.DefaultEngines...)
	return cfg
}

// =============================================================================
// SEARCH
// =============================================================================

// Search queries the aggregator. With no engines the configured defaults
// are used.
func (c *Client) Search(ctx context.Context, query string, engines ...string) envelope.Result[SearchResponse] {
	resp, err := c.search(ctx, query, engines)
	if err != nil {
		c.logger.Error("search failed", "query", query, "kind", KindOf(err).String(), "error", err)
		return envelope.FromError[SearchResponse](err)
	}
	return envelope.OK(*resp)
}

func (c *Client) search(ctx context.Context, query string, engines []string) (*SearchResponse, error) {
	query = strings.TrimSpace(norm.NFC.String(query))
	if query == "" {
		return nil, otherError(errors.New("search query is empty"))
	}
	engines = c.engineList(engines)

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("engines", strings.Join(engines, ","))
	endpoint := c.config.BaseURL + "/search?" + params.Encode()

	c.logger.Info("sending search request", "query", query, "engines", engines, "url", c.config.BaseURL+"/search")

	body, status, err := c.get(ctx, endpoint, c.config.SearchTimeout)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("search response", "status", status, "bytes", len(body))

	up, err := decodeUpstream(body)
	if err != nil {
		return nil, otherError(err)
	}

	resp := up.response(func(u upstreamResult) SearchResult {
		return SearchResult{Title: u.Title, URL: u.URL}
	})
	c.logger.Debug("simplified results", "count", len(resp.Results))

	c.notify(ctx, query, resp.Results)

	return &resp, nil
}

// engineList trims names and drops empties, falling back to defaults.
func (c *Client) engineList(engines []string) []string {
	out := make([]string, 0, len(engines))
	for _, e := range engines {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		out = append(out, c.config.DefaultEngines...)
	}
	return out
}

// notify forwards results to the notifier. Its failures never reach the
// caller.
func (c *Client) notify(ctx context.Context, query string, results []SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("search notifier panicked", "query", query, "panic", r)
		}
	}()
	if err := c.notifier.Notify(ctx, query, results); err != nil {
		c.logger.Error("search notifier failed", "query", query, "error", err)
	}
}

// =============================================================================
// ENGINES
// =============================================================================

// Engines lists the engine names known to the aggregator, in the order the
// aggregator reports them.
func (c *Client) Engines(ctx context.Context) envelope.Result[EngineList] {
	names, err := c.engines(ctx)
	if err != nil {
		c.logger.Error("failed to get engines", "kind", KindOf(err).String(), "error", err)
		return envelope.FromError[EngineList](err)
	}
	return envelope.OK(EngineList{Engines: names})
}

func (c *Client) engines(ctx context.Context) ([]string, error) {
	body, _, err := c.get(ctx, c.config.BaseURL+"/config", c.config.ConfigTimeout)
	if err != nil {
		return nil, err
	}
	names, err := engineNames(body)
	if err != nil {
		return nil, otherError(err)
	}
	return names, nil
}

// engineNames extracts engine identifiers from a /config payload. The
// engines value is normally an object keyed by engine name; its key order
// is preserved by walking the token stream. Newer SearXNG releases send a
// list of {name: ...} objects instead, which is also accepted.
func engineNames(body []byte) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode config response: %w", err)
	}
	raw, ok := top["engines"]
	if !ok {
		return nil, errors.New("config response has no engines")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode engines: %w", err)
	}

	names := []string{}
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("decode engines: %w", err)
			}
			key, _ := keyTok.(string)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("decode engine %q: %w", key, err)
			}
			names = append(names, key)
		}
	case json.Delim('['):
		for dec.More() {
			var entry struct {
				Name string `json:"name"`
			}
			if err := dec.Decode(&entry); err != nil {
				return nil, fmt.Errorf("decode engines: %w", err)
			}
			if entry.Name != "" {
				names = append(names, entry.Name)
			}
		}
	default:
		return nil, errors.New("engines is neither an object nor a list")
	}
	return names, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// get performs a GET with the fixed headers and timeout, returning the body
// of a 2xx response or a classified error.
func (c *Client) get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, otherError(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("search service error response", "status", resp.StatusCode, "body", string(body))
		return nil, resp.StatusCode, statusError(resp)
	}
	if readErr != nil {
		if isTimeout(readErr) {
			return nil, resp.StatusCode, &Error{Kind: KindNoResponse, Cause: readErr}
		}
		return nil, resp.StatusCode, otherError(readErr)
	}
	return body, resp.StatusCode, nil
}
