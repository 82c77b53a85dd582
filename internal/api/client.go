package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sloppy/internal/content"
)

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned HTTP %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from an Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

// Client talks to the daemon's HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for the daemon at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: client}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var failure ErrorResponse
	req := c.http.R().SetContext(ctx).SetError(&failure)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &Error{StatusCode: resp.StatusCode(), Message: failure.Error}
	}
	return nil
}

// ListItems fetches items, optionally narrowed by state.
func (c *Client) ListItems(ctx context.Context, filter content.Filter) ([]ContentItem, error) {
	query := url.Values{}
	for _, state := range filter.States {
		query.Add("state", string(state))
	}
	for _, state := range filter.Exclude {
		query.Add("exclude", string(state))
	}
	path := "/api/items"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out ItemListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetItem fetches one item.
func (c *Client) GetItem(ctx context.Context, id string) (*ContentItem, error) {
	var out ItemResponse
	if err := c.do(ctx, http.MethodGet, "/api/items/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

// CreateItem submits a new prompt.
func (c *Client) CreateItem(ctx context.Context, prompt string) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, http.MethodPost, "/api/items", CreateItemRequest{Prompt: prompt}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Action runs one of render, publish or retry against an item.
func (c *Client) Action(ctx context.Context, id, action string) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, http.MethodPost, "/api/items/"+url.PathEscape(id)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rollback fails the item's in-flight job.
func (c *Client) Rollback(ctx context.Context, id, reason string) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, http.MethodPost, "/api/items/"+url.PathEscape(id)+"/rollback", RollbackRequest{Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, id string) (bool, error) {
	var out DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, &out); err != nil {
		return false, err
	}
	return out.Removed, nil
}

// ItemJobs fetches an item's job history.
func (c *Client) ItemJobs(ctx context.Context, id string) ([]JobRecord, error) {
	var out JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/items/"+url.PathEscape(id)+"/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Job fetches a single job record.
func (c *Client) Job(ctx context.Context, jobID string) (*JobRecord, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// ReportOutcome posts a job outcome the way an executor does.
func (c *Client) ReportOutcome(ctx context.Context, jobID string, req OutcomeRequest) (string, error) {
	var out OutcomeResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/outcome", req, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
