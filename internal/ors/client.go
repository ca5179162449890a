// Package ors talks to the OpenRouteService directions API: a retrying HTTP
// client plus the normalizer that turns provider responses into the
// canonical route shape.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusmap/routegate/internal/apperr"
	"github.com/campusmap/routegate/internal/config"
	"github.com/campusmap/routegate/internal/routing"
)

// FailureCounter observes classified upstream failures by reason. Optional;
// a nil counter changes nothing.
type FailureCounter func(reason string)

// Client issues directions requests against OpenRouteService.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	policy       RetryPolicy
	log          zerolog.Logger
	countFailure FailureCounter
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.ORSConfig, log zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.CodeConfig, http.StatusInternalServerError, "ORS_API_KEY is not set")
	}
	if cfg.BaseURL == "" {
		return nil, apperr.New(apperr.CodeConfig, http.StatusInternalServerError, "ORS_BASE_URL is not set")
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy: RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			BackoffFactor: cfg.BackoffFactor,
		},
		log: log,
	}, nil
}

// WithFailureCounter attaches an observer for classified failures.
func (c *Client) WithFailureCounter(fn FailureCounter) *Client {
	c.countFailure = fn
	return c
}

func (c *Client) observe(reason string) {
	if c.countFailure != nil {
		c.countFailure(reason)
	}
}

// profileURL derives the per-profile endpoint from the configured base URL.
// A base that already names a profile under /directions/ has that segment
// swapped out.
func (c *Client) profileURL(profile string) string {
	base := strings.TrimRight(c.baseURL, "/")
	if strings.Contains(base, "/directions/") {
		if idx := strings.LastIndex(base, "/"); idx >= 0 && base[idx+1:] != "" {
			return base[:idx+1] + profile
		}
	}
	if strings.HasSuffix(base, profile) {
		return base
	}
	return base + "/" + profile
}

// FetchRoute requests directions for the sanitized coordinates and returns
// the canonical route.
func (c *Client) FetchRoute(ctx context.Context, coords [][]float64, profile string) (*routing.RouteResult, error) {
	resp, err := c.request(ctx, coords, profile)
	if err != nil {
		return nil, err
	}
	return c.normalize(resp)
}

type directionsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
}

// request runs the retry loop: network faults, 429 and 5xx are retried with
// exponential backoff; every other failure is final on first sight.
func (c *Client) request(ctx context.Context, coords [][]float64, profile string) (*directionsResponse, error) {
	body, err := json.Marshal(directionsRequest{Coordinates: coords})
	if err != nil {
		return nil, apperr.From(err)
	}

	url := c.profileURL(profile)
	attempts := c.policy.Attempts()
	c.log.Info().Str("profile", profile).Int("points", len(coords)).Msg("requesting upstream route")

	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		resp, err := c.do(ctx, url, body)
		elapsed := time.Since(start)

		if err != nil {
			reason, appErr := c.classifyTransportError(err, attempt)
			c.log.Warn().Err(err).
				Int("attempt", attempt).
				Int("attempts", attempts).
				Dur("elapsed", elapsed).
				Str("profile", profile).
				Msg("upstream request failed")
			c.observe(reason)
			if attempt < attempts {
				c.sleep(ctx, c.policy.Backoff(attempt))
				continue
			}
			return nil, appErr
		}

		status := resp.StatusCode
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.observe("connection_error")
			if attempt < attempts {
				c.sleep(ctx, c.policy.Backoff(attempt))
				continue
			}
			return nil, apperr.New(apperr.CodeUpstreamConnection, http.StatusBadGateway,
				"connection error talking to upstream routing provider").
				WithDetail("attempts", attempt).Wrap(readErr)
		}

		c.log.Info().
			Int("attempt", attempt).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("upstream response received")

		if status == http.StatusOK {
			var parsed directionsResponse
			if err := json.Unmarshal(respBody, &parsed); err != nil {
				c.observe("invalid_json")
				c.log.Error().Err(err).Str("body", preview(respBody)).Msg("unparsable upstream response")
				return nil, apperr.New(apperr.CodeInvalidUpstreamJSON, http.StatusBadGateway,
					"invalid response from upstream routing provider").Wrap(err)
			}
			return &parsed, nil
		}

		d := decide(status)
		c.observe(d.reason)
		appErr := c.upstreamError(d, status, respBody, attempt)

		if d.retryable && attempt < attempts {
			backoff := c.policy.Backoff(attempt)
			if backoff <= 0 {
				backoff = time.Second
			}
			c.log.Warn().Int("status", status).Int("attempt", attempt).Msg("retryable upstream status")
			c.sleep(ctx, backoff)
			continue
		}
		if d.status >= http.StatusInternalServerError {
			c.log.Warn().Int("status", status).Str("code", d.code).Msg("upstream request failed")
		} else {
			c.log.Error().Int("status", status).Str("code", d.code).Msg("upstream rejected request")
		}
		return nil, appErr
	}

	// Unreachable: the loop always returns on its final attempt.
	return nil, apperr.New(apperr.CodeUpstreamUnexpected, http.StatusBadGateway, "upstream retry loop exhausted")
}

func (c *Client) do(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// classifyTransportError splits network failures into timeouts and
// connection errors, yielding the terminal error for each.
func (c *Client) classifyTransportError(err error, attempt int) (string, *apperr.Error) {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timeout {
		return "timeout", apperr.New(apperr.CodeUpstreamTimeout, http.StatusGatewayTimeout,
			"timeout connecting to upstream routing provider").
			WithDetail("attempts", attempt).Wrap(err)
	}
	return "connection_error", apperr.New(apperr.CodeUpstreamConnection, http.StatusBadGateway,
		"connection error talking to upstream routing provider").
		WithDetail("attempts", attempt).Wrap(err)
}

// upstreamError builds the classified error for a non-200 status, preferring
// the provider's own message when it sent one.
func (c *Client) upstreamError(d decision, status int, body []byte, attempt int) *apperr.Error {
	message, extra := extractErrorDetail(body)
	if message == "" {
		message = d.message
	}
	appErr := apperr.New(d.code, d.status, "%s", message).
		WithDetail("ors_status", status).
		WithDetail("attempts", attempt)
	for k, v := range extra {
		appErr.WithDetail(k, v)
	}
	return appErr
}

// extractErrorDetail pulls the provider's error message and code out of a
// failure body. Bodies come in several shapes: {"error": {"message": ...}},
// {"error": "..."} and {"message": "..."}.
func extractErrorDetail(body []byte) (string, map[string]any) {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if p := preview(body); p != "" {
			return "", map[string]any{"raw": p}
		}
		return "", nil
	}

	extra := map[string]any{}
	message := strings.TrimSpace(payload.Message)

	if len(payload.Error) > 0 {
		var errObj struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
		}
		if err := json.Unmarshal(payload.Error, &errObj); err == nil {
			if m := strings.TrimSpace(errObj.Message); m != "" {
				message = m
			}
			if len(errObj.Code) > 0 {
				extra["ors_code"] = errObj.Code
			}
		} else {
			var errStr string
			if json.Unmarshal(payload.Error, &errStr) == nil {
				if m := strings.TrimSpace(errStr); m != "" {
					message = m
				}
			}
		}
	}
	return message, extra
}

func preview(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
