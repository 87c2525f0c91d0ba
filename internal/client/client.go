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
	"strings"
	"time"

	"go.uber.org/zap"
)

// TimeFormat is the lease and expiry timestamp layout used by the
// credential manager and orchestrator APIs.
const TimeFormat = "2006-01-02 15:04:05 -0700"

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	defaultBackoff = 300 * time.Millisecond

	bodyPreviewSize = 2000
)

// ErrEmptyResponse is returned when a 2xx reply carries no usable
// payload.
var ErrEmptyResponse = errors.New("empty response")

// APIError describes a non-2xx reply from an upstream service.
type APIError struct {
	StatusCode  int
	Message     string
	BodyPreview string
}

func (e *APIError) Error() string {
	if e.BodyPreview == "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%d: %s: %s", e.StatusCode, e.Message, e.BodyPreview)
}

// Option tunes a client's HTTP behavior.
type Option func(*requester)

func WithHTTPClient(hc *http.Client) Option {
	return func(r *requester) { r.hc = hc }
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *requester) { r.hc.Timeout = timeout }
}

// WithRetries sets how many times a request is resent on transport
// errors and retryable statuses (429 and 5xx).
func WithRetries(retries int) Option {
	return func(r *requester) { r.retries = retries }
}

// baseURL normalizes a host to an absolute service URL: bare hosts get
// https, the path always ends with a slash and the service suffix is
// appended when missing.
func baseURL(host, suffix string) string {
	base := host
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if suffix != "" && !strings.HasSuffix(base, suffix) {
		base += suffix
	}
	return base
}

type requester struct {
	name    string
	base    string
	hc      *http.Client
	retries int
	backoff time.Duration
}

func newRequester(name, base string, opts ...Option) *requester {
	r := &requester{
		name:    name,
		base:    base,
		hc:      &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type request struct {
	method string
	path   string
	token  string
	params url.Values
	body   any
}

// do sends the request and returns the response body. Non-2xx replies
// come back as *APIError carrying a truncated body preview.
func (r *requester) do(ctx context.Context, req request) ([]byte, error) {
	endpoint := r.base + strings.TrimPrefix(req.path, "/")
	if len(req.params) > 0 {
		endpoint += "?" + req.params.Encode()
	}

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	start := time.Now()
	resp, err := r.send(ctx, req, endpoint, payload)
	if err != nil {
		zap.S().Named(r.name).Errorw("http request failed",
			"http_method", req.method,
			"url_path", req.path,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	zap.S().Named(r.name).Debugw("http call",
		"http_method", req.method,
		"url_path", req.path,
		"status_code", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"has_token", req.token != "",
		"resp_len", len(body),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			Message:     "HTTP request failed",
			BodyPreview: preview(body),
		}
	}
	return body, nil
}

// send retries until it gets a non-retryable HTTP response, the
// attempts run out, or the context ends. Backoff doubles per attempt.
func (r *requester) send(ctx context.Context, req request, endpoint string, payload []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if req.body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+req.token)
		}

		resp, err := r.hc.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}
		if retryable(resp.StatusCode) {
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: "retryable status"}
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", endpoint, r.retries+1, lastErr)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func preview(body []byte) string {
	if len(body) > bodyPreviewSize {
		return string(body[:bodyPreviewSize])
	}
	return string(body)
}

// unmarshalData decodes the {"data": [...]} envelope both services wrap
// replies in. A missing data key leaves out untouched.
func unmarshalData(raw []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
