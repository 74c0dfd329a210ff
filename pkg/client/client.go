package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// requestTimeout bounds every call. The API answers from its local
// index; anything slower than this is a daemon in trouble.
const requestTimeout = 10 * time.Second

// responseLimit caps how much of a reply the client will read.
const responseLimit = 32 * 1024 * 1024

// Client is the Go SDK for a burrow daemon's HTTP API. The CLI is its
// main consumer; it works against local and remote daemons alike.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the daemon at baseURL, e.g.
// "http://localhost:9000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// NewWithToken creates a client that authenticates every request with
// a bearer token.
func NewWithToken(baseURL, token string) *Client {
	c := New(baseURL)
	c.token = token
	return c
}

// User identifies the authenticated caller as the daemon reports it.
type User struct {
	PublicKey  string `json:"publicKey"`
	DIDAddress string `json:"didAddress"`
	UserID     string `json:"userId,omitempty"`
}

// AuthInfo is the auth block of a query response.
type AuthInfo struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// TagCount is one entry of a tag summary.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// QueryResponse is the GET /records envelope.
type QueryResponse struct {
	Message                string           `json:"message"`
	LatestArweaveBlockInDB int64            `json:"latestArweaveBlockInDB"`
	IndexingProgress       string           `json:"indexingProgress"`
	TotalRecords           int              `json:"totalRecords"`
	SearchResults          int              `json:"searchResults"`
	PageSize               int              `json:"pageSize"`
	CurrentPage            int              `json:"currentPage"`
	TotalPages             int              `json:"totalPages"`
	Auth                   AuthInfo         `json:"auth"`
	Records                []map[string]any `json:"records"`
	TagSummary             []TagCount       `json:"tagSummary,omitempty"`
	TagTotal               int              `json:"tagTotal,omitempty"`
}

// Query runs a records query. params uses the API's parameter names
// verbatim (recordType, search, tags, limit, page, ...).
func (c *Client) Query(params url.Values) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.do(http.MethodGet, "/records", params, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublishRequest is one record to publish. Data is required; the rest
// tunes routing.
type PublishRequest struct {
	Data          types.RecordData
	AccessControl *types.AccessControl

	// RecordType overrides derivation from the data sections.
	RecordType string
	// Storage picks the primary destination: "arweave" (default) or "gun".
	Storage string
	// LocalID makes the peer-graph soul stable across updates.
	LocalID string
	// ReaderPublicKey seals a private record for one reader.
	ReaderPublicKey string
	// Destinations fans out to several targets at once.
	Destinations []string
}

func (r PublishRequest) query() url.Values {
	q := url.Values{}
	if r.RecordType != "" {
		q.Set("recordType", r.RecordType)
	}
	if r.Storage != "" {
		q.Set("storage", r.Storage)
	}
	if r.LocalID != "" {
		q.Set("localId", r.LocalID)
	}
	if r.ReaderPublicKey != "" {
		q.Set("readerPublicKey", r.ReaderPublicKey)
	}
	if len(r.Destinations) > 0 {
		q.Set("destinations", strings.Join(r.Destinations, ","))
	}
	return q
}

func (r PublishRequest) body() map[string]any {
	body := map[string]any{"data": r.Data}
	if r.AccessControl != nil {
		body["accessControl"] = r.AccessControl
	}
	return body
}

// Publish submits a record and waits for the result.
func (c *Client) Publish(req PublishRequest) (*types.PublishResult, error) {
	var result types.PublishResult
	if err := c.do(http.MethodPost, "/records/newRecord", req.query(), req.body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PublishAccepted is the handle for an async publish.
type PublishAccepted struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
}

// PublishAsync submits a record and returns the job handle to poll.
func (c *Client) PublishAsync(req PublishRequest) (*PublishAccepted, error) {
	var accepted PublishAccepted
	if err := c.do(http.MethodPost, "/records/newRecord/async", req.query(), req.body(), &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Job fetches one job by id.
func (c *Client) Job(jobID string) (*types.Job, error) {
	var job types.Job
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Jobs lists recent jobs, newest first. limit 0 uses the server
// default.
func (c *Client) Jobs(limit int) ([]*types.Job, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list struct {
		Jobs []*types.Job `json:"jobs"`
	}
	if err := c.do(http.MethodGet, "/jobs", q, nil, &list); err != nil {
		return nil, err
	}
	return list.Jobs, nil
}

// CancelJob cancels a queued or running job.
func (c *Client) CancelJob(jobID string) error {
	return c.do(http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, nil, nil)
}

// WaitForJob polls until the job reaches a terminal state or the
// context expires.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*types.Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Job(jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// HealthCheck is one dependency's status.
type HealthCheck struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

// Health is the daemon's health report.
type Health struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]HealthCheck `json:"checks,omitempty"`
}

// Health fetches the daemon's health report. An unhealthy daemon is
// still a valid answer, not an error; only an unreachable one fails.
func (c *Client) Health() (*Health, error) {
	status, raw, err := c.call(http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return nil, apiError(status, raw)
	}
	var health Health
	if err := json.Unmarshal(raw, &health); err != nil {
		return nil, fmt.Errorf("%w: malformed health report: %v", types.ErrUpstreamUnavailable, err)
	}
	return &health, nil
}

// do issues a request and decodes a 2xx body into out.
func (c *Client) do(method, path string, query url.Values, body, out any) error {
	status, raw, err := c.call(method, path, query, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return apiError(status, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", types.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (c *Client) call(method, path string, query url.Values, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: encode request: %v", types.ErrValidation, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("daemon at %s: %w: %v", c.baseURL, types.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", types.ErrUpstreamUnavailable, err)
	}
	return resp.StatusCode, raw, nil
}

// apiError converts an error reply back into the shared error kinds,
// inverting the server's status mapping.
func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = types.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = types.ErrOwnershipDenied
	case http.StatusNotFound:
		kind = types.ErrNotFound
	case http.StatusConflict:
		kind = types.ErrConflict
	case http.StatusServiceUnavailable:
		kind = types.ErrCapacityExceeded
	case http.StatusBadGateway:
		kind = types.ErrUpstreamUnavailable
	default:
		kind = types.ErrStore
	}
	return fmt.Errorf("%w: %s", kind, msg)
}
