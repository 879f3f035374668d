// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/metrics"
)

const (
	// DefaultTimeout is the default per-request timeout value for the HTTP Client
	DefaultTimeout = time.Second * 30
	// DefaultMaxRetries is the number of retries after the first failed attempt
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the delay before the first retry. It doubles with every retry.
	DefaultBaseDelay = time.Millisecond * 500
	// DefaultMaxDelay caps the exponential backoff
	DefaultMaxDelay = time.Second * 30
)

var (
	// version is the version of the application (will be set at build time)
	version = "dev"
	// UserAgent is the User-Agent that the HTTP client sends with API requests
	UserAgent = fmt.Sprintf("Mozilla/5.0 (%s; %s) feature-proximity/%s (+https://github.com/wneessen/feature-proximity/)",
		runtime.GOOS,
		runtime.GOARCH,
		version,
	)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
)

// RetryPolicy controls how often and how patiently transient failures are retried.
// Only gateway timeouts (HTTP 504) and network-level errors count as transient.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the RetryPolicy used when no other policy is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Client is a type wrapper for the Go stdlib http.Client with retry support
type Client struct {
	*http.Client
	logger  *logger.Logger
	retry   RetryPolicy
	timeout time.Duration

	// sleep waits for the given duration and reports false if the context ended first
	sleep func(context.Context, time.Duration) bool
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout of the Client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetryPolicy sets the RetryPolicy of the Client
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		if policy.MaxRetries < 0 {
			policy.MaxRetries = 0
		}
		if policy.BaseDelay <= 0 {
			policy.BaseDelay = DefaultBaseDelay
		}
		if policy.MaxDelay < policy.BaseDelay {
			policy.MaxDelay = policy.BaseDelay
		}
		c.retry = policy
	}
}

// New returns a new HTTP client
func New(logger *logger.Logger, opts ...Option) *Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	httpTransport := &http.Transport{TLSClientConfig: tlsConfig}
	httpClient := &http.Client{
		Transport: httpTransport,
	}
	client := &Client{
		Client:  httpClient,
		logger:  logger,
		retry:   DefaultRetryPolicy(),
		timeout: DefaultTimeout,
		sleep:   sleepOrDone,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Get performs a HTTP GET request for the given URL and json-unmarshals the response
// into target
func (h *Client) Get(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string) (int, error) {
	return h.GetWithTimeout(ctx, endpoint, target, query, headers, h.timeout)
}

// GetWithTimeout performs a HTTP GET request for the given URL and timeout and JSON-unmarshals
// the response into target. The timeout applies to each attempt individually.
func (h *Client) GetWithTimeout(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string, timeout time.Duration) (int, error) {
	if err := checkTarget(target); err != nil {
		return 0, err
	}

	// Prepare URL and query parameters
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	newRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	}
	return h.doWithRetry(ctx, newRequest, target, headers, timeout)
}

// Post performs a HTTP POST request for the given URL and json-unmarshals the response
// into target
func (h *Client) Post(ctx context.Context, endpoint string, target any, body []byte, headers map[string]string) (int, error) {
	return h.PostWithTimeout(ctx, endpoint, target, body, headers, h.timeout)
}

// PostWithTimeout performs a HTTP POST request for the given URL and timeout and JSON-unmarshals
// the response into target. The body is resent unchanged on every attempt.
func (h *Client) PostWithTimeout(ctx context.Context, endpoint string, target any, body []byte, headers map[string]string, timeout time.Duration) (int, error) {
	if err := checkTarget(target); err != nil {
		return 0, err
	}
	if _, err := url.Parse(endpoint); err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}

	newRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	}
	return h.doWithRetry(ctx, newRequest, target, headers, timeout)
}

// PostForm performs a form-encoded HTTP POST request and json-unmarshals the response into target
func (h *Client) PostForm(ctx context.Context, endpoint string, target any, form url.Values, headers map[string]string) (int, error) {
	merged := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		merged[k] = v
	}
	return h.Post(ctx, endpoint, target, []byte(form.Encode()), merged)
}

// doWithRetry executes the request built by newRequest and retries gateway timeouts and
// network errors with exponential backoff according to the retry policy of the Client.
func (h *Client) doWithRetry(ctx context.Context, newRequest func(context.Context) (*http.Request, error),
	target any, headers map[string]string, timeout time.Duration,
) (int, error) {
	delay := h.retry.BaseDelay
	attempts := 0
	for {
		attempts++
		code, retryable, err := h.do(ctx, newRequest, target, headers, timeout)
		if err == nil {
			return code, nil
		}
		if !retryable {
			return code, err
		}
		if attempts > h.retry.MaxRetries {
			metrics.TransportFailures.Inc()
			return code, &TransportError{Attempts: attempts, Err: err}
		}

		h.logger.Debug("transient HTTP failure, retrying request", slog.Int("attempt", attempts),
			slog.Duration("delay", delay), logger.Err(err))
		metrics.TransportRetries.Inc()
		if !h.sleep(ctx, delay) {
			return code, ctx.Err()
		}
		delay = nextBackoff(delay, h.retry.MaxDelay)
	}
}

// do performs a single HTTP round-trip. It reports whether a failure is worth retrying.
func (h *Client) do(ctx context.Context, newRequest func(context.Context) (*http.Request, error),
	target any, headers map[string]string, timeout time.Duration,
) (int, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Prepare HTTP request
	request, err := newRequest(reqCtx)
	if err != nil {
		return 0, false, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	request.Header.Set("Accept", "application/json")
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	// Execute HTTP request
	response, err := h.Do(request)
	if err != nil {
		// The caller gave up, so there is nothing left to retry
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, false, ctxErr
		}
		return 0, true, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, true, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			h.logger.Error("failed to close HTTP request body", logger.Err(err))
		}
	}(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<16))
		statusErr := &StatusError{Code: response.StatusCode, Status: strings.TrimSpace(response.Status)}
		return response.StatusCode, response.StatusCode == http.StatusGatewayTimeout, statusErr
	}

	// Unmarshal the JSON API response into target
	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, false, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return response.StatusCode, false, nil
}

func checkTarget(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNonPointerTarget
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d, limit time.Duration) time.Duration {
	if d *= 2; d > limit {
		return limit
	}
	return d
}
