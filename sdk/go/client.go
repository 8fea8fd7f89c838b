package practiceflowsdk

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

// Client is a minimal Practiceflow HTTP API client.
type Client struct {
	BaseURL     string
	WorkspaceID string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, workspaceID string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		Timeout:     10 * time.Second,
	}
}

// Referral represents the API referral model (partial).
type Referral struct {
	ID               string  `json:"id"`
	WorkspaceID      string  `json:"workspace_id"`
	ClientName       string  `json:"client_name"`
	Status           string  `json:"status"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	AcknowledgeBy    string  `json:"acknowledge_by,omitempty"`
	ContactBy        string  `json:"contact_by,omitempty"`
	FirstSessionDate *string `json:"first_session_date,omitempty"`
}

// RadarItem is one scored entry on the radar.
type RadarItem struct {
	ItemID           string `json:"item_id"`
	ClientName       string `json:"client_name,omitempty"`
	Title            string `json:"title,omitempty"`
	ConsequenceClass string `json:"consequence_class"`
	DisplayWeight    int    `json:"display_weight"`
	CanAct           bool   `json:"can_act"`
	WaitingOnStaff   bool   `json:"waiting_on_staff"`
}

// Radar is a bucketed radar snapshot.
type Radar struct {
	WorkspaceID string      `json:"workspace_id"`
	ViewerID    string      `json:"viewer_id"`
	Role        string      `json:"role"`
	GeneratedAt string      `json:"generated_at"`
	DoNow       []RadarItem `json:"do_now"`
	Waiting     []RadarItem `json:"waiting"`
	ComingUp    []RadarItem `json:"coming_up"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	EntityID    string         `json:"entity_id"`
	EntityKind  string         `json:"entity_kind"`
	Payload     map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedReferrals wraps list responses with cursors.
type PaginatedReferrals struct {
	Items      []Referral `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateReferral intakes a new referral.
func (c *Client) CreateReferral(ctx context.Context, clientName, phone string) (Referral, error) {
	body := map[string]any{
		"client_name":  clientName,
		"client_phone": phone,
	}
	var resp Referral
	err := c.do(ctx, http.MethodPost, c.workspacePath("referrals"), body, &resp)
	return resp, err
}

// AcknowledgeReferral moves a referral out of NEW.
func (c *Client) AcknowledgeReferral(ctx context.Context, id string) (Referral, error) {
	var resp Referral
	endpoint := c.workspacePath(fmt.Sprintf("referrals/%s/acknowledge", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RecordContact records a contact attempt outcome.
func (c *Client) RecordContact(ctx context.Context, id, outcome, firstSessionDate string) (Referral, error) {
	body := map[string]any{
		"outcome":            outcome,
		"first_session_date": firstSessionDate,
	}
	var resp Referral
	endpoint := c.workspacePath(fmt.Sprintf("referrals/%s/contact", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ReferralsPage returns a paginated referral listing.
func (c *Client) ReferralsPage(ctx context.Context, limit int, cursor string) (PaginatedReferrals, error) {
	endpoint := c.workspacePath("referrals")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedReferrals
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Radar fetches the scored radar for the authenticated viewer.
func (c *Client) Radar(ctx context.Context) (Radar, error) {
	var resp Radar
	err := c.do(ctx, http.MethodGet, c.workspacePath("radar"), nil, &resp)
	return resp, err
}

// MarkSeen records that the viewer looked at a radar item.
func (c *Client) MarkSeen(ctx context.Context, itemID string) error {
	endpoint := c.workspacePath(fmt.Sprintf("radar/%s/view", url.PathEscape(itemID)))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// Defer bumps the drift counter for an item (owner only). It returns the
// new drift value.
func (c *Client) Defer(ctx context.Context, itemID string) (int, error) {
	var resp struct {
		Drift int `json:"drift"`
	}
	endpoint := c.workspacePath(fmt.Sprintf("radar/%s/defer", url.PathEscape(itemID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Drift, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.workspacePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
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

func (c *Client) workspacePath(p string) string {
	workspace := url.PathEscape(c.WorkspaceID)
	return fmt.Sprintf("v0/workspaces/%s/%s", workspace, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
