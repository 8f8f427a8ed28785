// Package iss talks to the Moscow Exchange Informational & Statistical Server.
package iss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://iss.moex.com"

// Options parameterise the ISS client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client issues GET requests against ISS and decodes columnar blocks.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an ISS client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "iss_client").Logger(),
		client:  client,
		baseURL: baseURL,
	}
}

// HTTPClient exposes the underlying client so tests can attach a mock transport.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) (map[string]Table, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "bondscreener/1.0")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str("op", op).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("iss request")

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(op, resp.StatusCode, payload)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var blocks map[string]Table
	if err := dec.Decode(&blocks); err != nil {
		return nil, malformed(op, "", err)
	}
	return blocks, nil
}

func block(blocks map[string]Table, op, name string) (Table, error) {
	t, ok := blocks[name]
	if !ok {
		return Table{}, malformed(op, name, errMissing)
	}
	return t, nil
}
