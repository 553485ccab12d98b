// Package client provides the GraphQL HTTP transport with rate limiting,
// retries, and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/intervu-client/pkg/cache"
	"github.com/Sternrassler/intervu-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 16 << 20

// Client sends GraphQL operations to a single endpoint.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
	retryFor    func(ErrorClass) RetryConfig
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the absolute GraphQL URL, see ResolveEndpoint.
	Endpoint string

	// UserAgent is sent with every request.
	UserAgent string

	// Headers are added to every request.
	Headers http.Header

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for queries.
	// Mutations are never retried.
	MaxRetries int

	// RateLimiter gates requests on the upstream's advertised budget. Optional.
	RateLimiter *ratelimit.Tracker

	// Logger defaults to the global logger with component "graphql-client".
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(endpoint, userAgent string) Config {
	return Config{
		Endpoint:   endpoint,
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// New creates a new GraphQL client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL (got %q)", cfg.Endpoint)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "graphql-client").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "graphql-client").Logger()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      logger,
		retryFor:    RetryConfigForErrorClass,
	}, nil
}

// Endpoint returns the GraphQL URL this client talks to.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

type requestBody struct {
	Query     string          `json:"query"`
	Variables cache.Variables `json:"variables"`
}

type responseBody struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorItem     `json:"errors"`
}

// Fetch executes a GraphQL operation and returns its "data" member.
// It satisfies cache.Fetcher.
func (c *Client) Fetch(ctx context.Context, query string, variables cache.Variables) (json.RawMessage, error) {
	op := ParseOperation(query)

	if variables == nil {
		variables = cache.Variables{}
	}
	body, err := json.Marshal(requestBody{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(op.Label()).Observe(time.Since(startTime).Seconds())
	}()

	var data json.RawMessage
	attempt := func() error {
		var err error
		data, err = c.do(ctx, op, body)
		return err
	}

	if op.Type != OperationQuery || c.config.MaxRetries == 0 {
		if err := attempt(); err != nil {
			return nil, err
		}
		return data, nil
	}

	if err := retryWithBackoff(ctx, c.logger, c.retryConfig, attempt); err != nil {
		return nil, err
	}
	return data, nil
}

// Query executes a GraphQL operation and decodes its data into out.
func (c *Client) Query(ctx context.Context, query string, variables cache.Variables, out any) error {
	data, err := c.Fetch(ctx, query, variables)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (c *Client) retryConfig(class ErrorClass) RetryConfig {
	cfg := c.retryFor(class)
	cfg.MaxAttempts = c.config.MaxRetries + 1
	return cfg
}

// do performs a single HTTP exchange.
func (c *Client) do(ctx context.Context, op Operation, body []byte) (json.RawMessage, error) {
	label := op.Label()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("operation", label).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(label, "rate_limited").Inc()
			return nil, ErrRequestBlocked
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range c.config.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("operation", label).
		Str("type", string(op.Type)).
		Msg("Executing GraphQL request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		c.logger.Error().Err(err).Str("operation", label).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		return nil, &TransportError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	return c.decode(label, resp, raw)
}

// decode classifies a response and extracts its data.
func (c *Client) decode(label string, resp *http.Response, raw []byte) (json.RawMessage, error) {
	status := resp.StatusCode

	switch {
	case status == http.StatusTooManyRequests:
		retryAfter, _ := ratelimit.ParseRetryAfter(resp.Header.Get(ratelimit.HeaderRetryAfter))
		return nil, c.transportError(label, &TransportError{
			StatusCode: status,
			ErrorClass: ErrorClassRateLimit,
			Message:    resp.Status,
			RetryAfter: retryAfter,
		})
	case status >= 500:
		return nil, c.transportError(label, &TransportError{
			StatusCode: status,
			ErrorClass: ErrorClassServer,
			Message:    resp.Status,
		})
	}

	var envelope responseBody
	if err := json.Unmarshal(raw, &envelope); err != nil {
		class := ErrorClassProtocol
		if status >= 400 {
			class = ErrorClassClient
		}
		return nil, c.transportError(label, &TransportError{
			StatusCode: status,
			ErrorClass: class,
			Message:    "invalid GraphQL response",
			Err:        err,
		})
	}

	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{
			StatusCode: status,
			Errors:     envelope.Errors,
			Data:       envelope.Data,
		}
		errorsTotal.WithLabelValues("graphql").Inc()
		c.logger.Warn().
			Str("operation", label).
			Int("status", status).
			Str("code", gqlErr.Code()).
			Int("errors", len(gqlErr.Errors)).
			Msg("GraphQL errors in response")
		return nil, gqlErr
	}

	if status >= 400 {
		return nil, c.transportError(label, &TransportError{
			StatusCode: status,
			ErrorClass: ErrorClassClient,
			Message:    resp.Status,
		})
	}

	if len(envelope.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return envelope.Data, nil
}

func (c *Client) transportError(label string, err *TransportError) error {
	errorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	c.logger.Warn().
		Str("operation", label).
		Int("status", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Msg("GraphQL request error")
	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// IsRetryable reports whether err would be retried for a query.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRetryExhausted) {
		return false
	}
	return shouldRetry(classOf(err))
}
