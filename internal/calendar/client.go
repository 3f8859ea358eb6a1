package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type Event struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees"`
	Location    string    `json:"location"`
}

// Client is the calendar-sync port. Absence of credentials is a valid, silent
// no-op: implementations return an empty event ID rather than an error.
type Client interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
}

// WebhookClient posts events to a calendar bridge endpoint that returns the
// external event ID.
type WebhookClient struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookClient(url, token string) *WebhookClient {
	return &WebhookClient{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *WebhookClient) CreateEvent(ctx context.Context, ev Event) (string, error) {
	if c.url == "" {
		// Not configured: silent no-op, not an error.
		return "", nil
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("calendar bridge returned non-2xx")
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

// Noop satisfies Client when no calendar bridge exists.
type Noop struct{}

func (Noop) CreateEvent(context.Context, Event) (string, error) { return "", nil }
