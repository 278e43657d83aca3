// Package client consumes the Trailview audit-log API: paged queries with
// debounced search, a live SSE ingestion stream with reconnect, and the
// merged in-memory view state the two feed.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TenantHeader is the header carrying the tenant scope claim on every
// request.
const TenantHeader = "x-jwt-claim-tenant-id"

// Client is a REST client for the audit-log API, scoped to one tenant.
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a Client for the given API base URL and tenant.
func New(baseURL, tenantID string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("client: tenant id is required")
	}
	c := &Client{
		baseURL:    baseURL,
		tenantID:   tenantID,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TenantID returns the tenant this client is scoped to.
func (c *Client) TenantID() string {
	return c.tenantID
}

// ListLogs fetches one page of audit records.
func (c *Client) ListLogs(ctx context.Context, spec QuerySpec) (ListResult, error) {
	var result ListResult
	if err := c.getJSON(ctx, "/api/audit-logs", spec.Values(), &result); err != nil {
		return ListResult{}, err
	}
	return result, nil
}

// FetchSummary fetches aggregate counts for the tenant.
func (c *Client) FetchSummary(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := c.getJSON(ctx, "/api/audit-logs/summary", nil, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Retention fetches the tenant's retention settings.
func (c *Client) Retention(ctx context.Context) (RetentionSettings, error) {
	var settings RetentionSettings
	if err := c.getJSON(ctx, "/api/audit-logs/retention", nil, &settings); err != nil {
		return RetentionSettings{}, err
	}
	return settings, nil
}

// UpdateRetention stores a new retention window. On error the server-side
// value is unchanged and the caller should keep its cached copy.
func (c *Client) UpdateRetention(ctx context.Context, retentionDays int) (RetentionSettings, error) {
	body, err := json.Marshal(map[string]int{"retention_days": retentionDays})
	if err != nil {
		return RetentionSettings{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/api/audit-logs/retention", nil, strings.NewReader(string(body)))
	if err != nil {
		return RetentionSettings{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var settings RetentionSettings
	if err := c.do(req, &settings); err != nil {
		return RetentionSettings{}, err
	}
	return settings, nil
}

// Export downloads the filtered records in the given format ("csv" or
// "json"). The payload is returned whole; nothing is produced on error.
func (c *Client) Export(ctx context.Context, format string, filters Filters) ([]byte, error) {
	values := encodeFilters(filters)
	values.Set("format", format)
	req, err := c.newRequest(ctx, http.MethodGet, "/api/audit-logs/export", values, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(TenantHeader, c.tenantID)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return newStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("client: unexpected status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("client: unexpected status %d", e.StatusCode)
}

func newStatusError(resp *http.Response) error {
	detail := ""
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&problem); err == nil {
		detail = problem.Detail
		if detail == "" {
			detail = problem.Title
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
}
