package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// pageSize is the $top value requested per calendarView page.
const pageSize = 100

// Client reads calendars from Microsoft Graph. Authentication is the job
// of the http.Client passed to NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another Graph deployment or a test
// server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient creates a Graph API client on top of httpClient.
func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	c := &Client{httpClient: httpClient, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DateTimeTimeZone is Graph's wall-clock time with a zone name.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Location is the subset of a Graph location that btt reads.
type Location struct {
	DisplayName string `json:"displayName"`
}

// CalendarEvent represents a Microsoft Graph calendar event.
type CalendarEvent struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	BodyPreview string           `json:"bodyPreview"`
	IsAllDay    bool             `json:"isAllDay"`
	IsCancelled bool             `json:"isCancelled"`
	Sensitivity string           `json:"sensitivity"` // normal, personal, private, confidential
	ShowAs      string           `json:"showAs"`      // free, tentative, busy, oof, workingElsewhere, unknown
	Start       DateTimeTimeZone `json:"start"`
	End         DateTimeTimeZone `json:"end"`
	Location    Location         `json:"location"`
}

// APIError is a non-200 answer from Graph.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error %d: %s", e.StatusCode, e.Body)
}

type eventPage struct {
	Value    []CalendarEvent `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

// GetCalendarView returns the events overlapping [from, to), following
// @odata.nextLink until the last page. With a non-empty IANA timezone Graph
// reports event times as wall-clock times in that zone.
func (c *Client) GetCalendarView(ctx context.Context, from, to time.Time, timezone string) ([]CalendarEvent, error) {
	q := url.Values{}
	q.Set("startDateTime", from.UTC().Format(time.RFC3339))
	q.Set("endDateTime", to.UTC().Format(time.RFC3339))
	q.Set("$top", fmt.Sprint(pageSize))
	next := c.baseURL + "/me/calendarView?" + q.Encode()

	var events []CalendarEvent
	for next != "" {
		page, err := c.fetchPage(ctx, next, timezone)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}
	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint, timezone string) (*eventPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if timezone != "" {
		req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", timezone))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page eventPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding graph response: %w", err)
	}
	return &page, nil
}
