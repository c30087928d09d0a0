// Package upstream fetches content from the remote registry behind a
// pull-through distribution, retrying transient failures.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the client configuration.
type Config struct {
	// Timeout bounds how long a single attempt waits for the response
	// headers. Reading the body is not bounded; the body is streamed to
	// clients and may legitimately take much longer.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	Retry RetryConfig
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "registry-cache",
		Retry:     DefaultRetryConfig(),
	}
}

// Client talks to upstream registries.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &Client{
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
		logger:     logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Fetch performs a GET against url. Only the headers listed in forward are
// copied from header. A 2xx or 3xx answer is returned with its body open;
// the caller closes it. Any other answer is returned as *Error, wrapped in
// ErrRetryExhausted when it was retriable.
func (c *Client) Fetch(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for _, name := range forward {
		for _, v := range header.Values(name) {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	var resp *http.Response
	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			requestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, &Error{URL: url, Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}

		requestsTotal.WithLabelValues(strconv.Itoa(r.StatusCode)).Inc()
		class := classify(r.StatusCode, nil)
		if class == "" {
			resp = r
			return "", nil
		}

		msg := errorMessage(r)
		c.logger.Debug().
			Str("url", url).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
		return class, &Error{URL: url, StatusCode: r.StatusCode, Class: class, Message: msg}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// forward lists the request headers passed on to the upstream registry.
var forward = []string{"Accept", "Range", "Authorization"}

// errorMessage drains and closes the body of a failed answer.
func errorMessage(r *http.Response) string {
	defer r.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return r.Status
}
