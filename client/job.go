package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jobline/jobline/engine"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// jobEnvelope is the wire shape wrapping a single job.
type jobEnvelope struct {
	Job *job.Job `json:"job"`
}

// Create submits a new job and returns the created record.
func (c *Client) Create(ctx context.Context, spec job.Spec) (*job.Job, error) {
	var out jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/jobs", spec, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// Get retrieves a job by ID.
func (c *Client) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var out jobEnvelope
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// List retrieves a page of jobs matching the filter.
func (c *Client) List(ctx context.Context, f job.Filter, p job.PageOpts) (*job.Page, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Size > 0 {
		q.Set("limit", strconv.Itoa(p.Size))
	}

	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page job.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Retry requeues a failed job.
func (c *Client) Retry(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var out jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/jobs/"+jobID.String()+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// Cancel cancels a pending or running job.
func (c *Client) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var out jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/jobs/"+jobID.String()+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// BulkAction applies retry or cancel to many jobs in one call. Per-item
// outcomes are reported in the result; the call errors only when the
// action itself is rejected.
func (c *Client) BulkAction(ctx context.Context, action engine.BulkAction, jobIDs []string) (*engine.BulkResult, error) {
	body := map[string]any{
		"action":  action,
		"job_ids": jobIDs,
	}
	var out struct {
		Results *engine.BulkResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs/bulk-action", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Notifications retrieves the retained derived notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]reconcile.Notification, error) {
	var out struct {
		Notifications []reconcile.Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// Health reports the server's store reachability and feed liveness.
type Health struct {
	Healthy bool `json:"healthy"`
	Live    bool `json:"live"`
}

// Healthz queries the health endpoint. An unhealthy server answers 503
// with the same body, so the status is read from the payload rather than
// treated as a transport failure.
func (c *Client) Healthz(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: healthz: %w", err)
	}
	defer resp.Body.Close()

	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("client: decode healthz: %w", err)
	}
	return &out, nil
}
