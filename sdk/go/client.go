package reportlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reportline HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// SubmissionRecord is one history entry on a link.
type SubmissionRecord struct {
	DueDate       string `json:"due_date"`
	SubmittedDate string `json:"submitted_date"`
	WasOnTime     bool   `json:"was_on_time"`
}

// Compliance describes how a link stands against its deadline.
type Compliance struct {
	Status    string `json:"status"`
	DaysUntil *int   `json:"days_until,omitempty"`
	Message   string `json:"message"`
}

// Link represents the API reporting link model.
type Link struct {
	OrgID      string             `json:"org_id"`
	ProjectID  string             `json:"project_id"`
	Interval   string             `json:"reporting_interval"`
	DayOfWeek  *int               `json:"reporting_day_of_week,omitempty"`
	DayOfMonth *int               `json:"reporting_day_of_month,omitempty"`
	NextDue    *string            `json:"next_due_date,omitempty"`
	Streak     int                `json:"streak"`
	History    []SubmissionRecord `json:"history"`
	Compliance *Compliance        `json:"compliance,omitempty"`
}

// Submission is the result of recording a report.
type Submission struct {
	Recorded bool `json:"recorded"`
	Link     Link `json:"link"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges an org email for a bearer token (dev auth) and
// stores it on the client.
func (c *Client) Login(ctx context.Context, email string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]string{"email": email}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// Link fetches one link with its compliance status.
func (c *Client) Link(ctx context.Context, projectID string) (Link, error) {
	var resp Link
	err := c.do(ctx, http.MethodGet, c.linkPath(projectID, ""), nil, &resp)
	return resp, err
}

// Links lists all of the org's links with compliance status.
func (c *Client) Links(ctx context.Context) ([]Link, error) {
	var resp []Link
	endpoint := fmt.Sprintf("v0/orgs/%s/links", url.PathEscape(c.OrgID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Submit records a report submission for a project.
func (c *Client) Submit(ctx context.Context, projectID string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, c.linkPath(projectID, "submissions"), nil, &resp)
	return resp, err
}

// RecordData submits a validated data row against an expectation.
func (c *Client) RecordData(ctx context.Context, projectID, expectationID string, values map[string]string) error {
	endpoint := fmt.Sprintf("v0/projects/%s/expectations/%s/data",
		url.PathEscape(projectID), url.PathEscape(expectationID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"values": values}, nil)
}

// Events returns recent events for the org.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/orgs/%s/events", url.PathEscape(c.OrgID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) linkPath(projectID, suffix string) string {
	p := fmt.Sprintf("v0/orgs/%s/projects/%s/link", url.PathEscape(c.OrgID), url.PathEscape(projectID))
	if suffix != "" {
		p += "/" + strings.TrimLeft(suffix, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
