// Package google implements the calendar gateway against the Google Calendar
// v3 REST API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	schedulingDomain "github.com/diaguru/diaguru/internal/scheduling/domain"
	"github.com/google/uuid"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenProvider supplies access tokens and owns the reconnect lifecycle.
type TokenProvider interface {
	AccessToken(ctx context.Context, userID uuid.UUID) (string, error)
	ForceRefresh(ctx context.Context, userID uuid.UUID) (string, error)
	MarkReconnect(ctx context.Context, userID uuid.UUID) error
}

// Client is the Google Calendar gateway.
type Client struct {
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string
	calendarID string
	logger     *slog.Logger
}

// NewClient creates a gateway against the production Google API.
func NewClient(tokens TokenProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		calendarID: "primary",
		logger:     logger,
	}
}

// WithBaseURL points the client at a custom API root, for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

// WithCalendarID selects a calendar other than primary.
func (c *Client) WithCalendarID(id string) *Client {
	if id != "" {
		c.calendarID = id
	}
	return c
}

type googleEvent struct {
	ID                 string `json:"id,omitempty"`
	ETag               string `json:"etag,omitempty"`
	Summary            string `json:"summary"`
	ExtendedProperties struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
	Start struct {
		DateTime string `json:"dateTime"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
	} `json:"end"`
}

// ListEvents returns all events in [timeMin, timeMax), expanded to single
// instances and ordered by start time.
func (c *Client) ListEvents(ctx context.Context, userID uuid.UUID, timeMin, timeMax time.Time) ([]calendarDomain.Event, error) {
	query := url.Values{}
	query.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	query.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	listURL := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(c.calendarID), query.Encode())

	resp, err := c.do(ctx, userID, http.MethodGet, listURL, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providerError(resp)
	}

	var payload struct {
		Items []googleEvent `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	events := make([]calendarDomain.Event, 0, len(payload.Items))
	for _, item := range payload.Items {
		event, ok := toDomainEvent(item)
		if !ok {
			continue // all-day and malformed events carry no usable instants
		}
		events = append(events, event)
	}
	return events, nil
}

// CreateEvent places a managed event carrying the system's extended
// properties.
func (c *Client) CreateEvent(ctx context.Context, userID uuid.UUID, in calendarDomain.CreateEventInput) (*calendarDomain.CreatedEvent, error) {
	event := googleEvent{Summary: in.Summary}
	event.Start.DateTime = in.Start.UTC().Format(time.RFC3339)
	event.End.DateTime = in.End.UTC().Format(time.RFC3339)
	event.ExtendedProperties.Private = map[string]string{
		calendarDomain.PropManaged:          "true",
		calendarDomain.PropCaptureID:        in.CaptureID.String(),
		calendarDomain.PropActionID:         in.ActionID.String(),
		calendarDomain.PropPrioritySnapshot: strconv.FormatFloat(in.PriorityScore, 'f', 3, 64),
	}
	if in.PlanID != nil {
		event.ExtendedProperties.Private[calendarDomain.PropPlanID] = in.PlanID.String()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	createURL := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	resp, err := c.do(ctx, userID, http.MethodPost, createURL, body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providerError(resp)
	}

	var created googleEvent
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, err
	}
	return &calendarDomain.CreatedEvent{ID: created.ID, ETag: created.ETag}, nil
}

// GetEvent fetches one event, used to repair a stale entity tag.
func (c *Client) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*calendarDomain.Event, error) {
	getURL := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))
	resp, err := c.do(ctx, userID, http.MethodGet, getURL, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, calendarDomain.ErrEventNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providerError(resp)
	}

	var item googleEvent
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, err
	}
	event, ok := toDomainEvent(item)
	if !ok {
		return nil, calendarDomain.ErrEventNotFound
	}
	return &event, nil
}

// DeleteEvent removes an event, sending If-Match when an etag is supplied.
// 404/410 count as success; 412 surfaces as ErrPreconditionFailed.
func (c *Client) DeleteEvent(ctx context.Context, userID uuid.UUID, eventID, etag string) error {
	deleteURL := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))
	resp, err := c.do(ctx, userID, http.MethodDelete, deleteURL, nil, etag)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed:
		return calendarDomain.ErrPreconditionFailed
	default:
		return providerError(resp)
	}
}

// do performs one authorized request with a single retry after a synchronous
// token refresh on 401. A 401/403 that survives the retry flips the account
// into needs_reconnect.
func (c *Client) do(ctx context.Context, userID uuid.UUID, method, rawURL string, body []byte, etag string) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, rawURL, body, etag, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_ = resp.Body.Close()

	token, err = c.tokens.ForceRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(ctx, method, rawURL, body, etag, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		if err := c.tokens.MarkReconnect(ctx, userID); err != nil {
			c.logger.Error("failed to flag reconnect", "user_id", userID, "error", err)
		}
		return nil, fmt.Errorf("%w: provider rejected credentials", schedulingDomain.ErrNotLinked)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, body []byte, etag, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	return c.httpClient.Do(req)
}

func providerError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: status=%d body=%s", schedulingDomain.ErrProviderError, resp.StatusCode, string(body))
}

func toDomainEvent(item googleEvent) (calendarDomain.Event, bool) {
	if item.Start.DateTime == "" || item.End.DateTime == "" {
		return calendarDomain.Event{}, false
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return calendarDomain.Event{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return calendarDomain.Event{}, false
	}
	return calendarDomain.Event{
		ID:      item.ID,
		Summary: item.Summary,
		Start:   start.UTC(),
		End:     end.UTC(),
		ETag:    item.ETag,
		Private: item.ExtendedProperties.Private,
	}, true
}
