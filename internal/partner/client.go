// Package partner wraps the partner exchange REST API: managed profile
// registration, pending task listing, and task completion.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrTransient tags partner failures that were retried to exhaustion;
// callers may treat them as retryable at a higher level.
var ErrTransient = errors.New("transient partner error")

// APIError is a classified partner API failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("partner API error %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is(err, ErrTransient) work for retryable statuses.
func (e *APIError) Unwrap() error {
	if retryableStatus(e.Status) {
		return ErrTransient
	}
	return nil
}

// Profile is a managed profile registered with the exchange.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is one pending reciprocal-comment task.
type Task struct {
	ID      string `json:"id"`
	Target  string `json:"target"`
	Comment string `json:"comment"`
}

// API is the partner surface the pipeline depends on.
type API interface {
	AddProfile(ctx context.Context, key, profileID string) error
	RemoveProfile(ctx context.Context, key, profileID string) error
	ListProfiles(ctx context.Context, key string) ([]Profile, error)
	PendingTasks(ctx context.Context, key, profileID string) ([]Task, error)
	CompleteTask(ctx context.Context, key, taskID string) error
}

// Client is the HTTP implementation of API. A fixed small set of 5xx
// statuses is retried with linear backoff; 409 on add and 404 on remove
// are idempotent no-ops.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	retries int
	backoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy overrides the retry count and linear backoff base.
func WithRetryPolicy(retries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

// NewClient creates a partner API client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "partner_client"),
		retries: 3,
		backoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ API = (*Client)(nil)

// AddProfile registers a managed profile under the client's key. A 409
// means the profile is already registered and is treated as success.
func (c *Client) AddProfile(ctx context.Context, key, profileID string) error {
	body := map[string]string{"profile_id": profileID}
	err := c.do(ctx, http.MethodPost, "/v1/profiles", key, body, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// RemoveProfile deregisters a managed profile. A 404 means it is
// already gone and is treated as success.
func (c *Client) RemoveProfile(ctx context.Context, key, profileID string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/profiles/"+profileID, key, nil, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// ListProfiles lists the profiles registered under the client's key.
func (c *Client) ListProfiles(ctx context.Context, key string) ([]Profile, error) {
	var profiles []Profile
	if err := c.do(ctx, http.MethodGet, "/v1/profiles", key, nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// PendingTasks lists the pending reciprocal-comment tasks for a profile.
func (c *Client) PendingTasks(ctx context.Context, key, profileID string) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/v1/profiles/"+profileID+"/tasks", key, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CompleteTask confirms a task as done with the exchange.
func (c *Client) CompleteTask(ctx context.Context, key, taskID string) error {
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/complete", key, nil, nil)
}

// retryableStatus reports whether a status is in the fixed retry set.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do performs one API call with the retry policy applied. Transient
// failures cover both the retryable statuses and transport-level errors
// such as a refused connection.
func (c *Client) do(ctx context.Context, method, path, key string, body, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err := c.doOnce(ctx, method, path, key, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.Is(err, ErrTransient) {
			return err
		}
		if attempt == c.retries {
			break
		}

		wait := time.Duration(attempt) * c.backoff
		c.logger.Warn("partner API call failed, retrying",
			"method", method,
			"path", path,
			"error", err,
			"attempt", attempt,
			"wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path, key string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		message := readErrorMessage(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return string(bytes.TrimSpace(raw))
}
