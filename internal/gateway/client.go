package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API defines the gateway operations the sync layer depends on. It is
// implemented by *Client and can be faked in tests.
type API interface {
	CreateRide(ctx context.Context, origin, destination string) (Ride, error)
	FetchRides(ctx context.Context) ([]Ride, error)
	FetchRide(ctx context.Context, rideID string) (Ride, error)
	AcceptRide(ctx context.Context, rideID string) (Ride, error)
	RejectRide(ctx context.Context, rideID string) (Ride, error)
	CompleteRide(ctx context.Context, rideID string) (Ride, error)
	CancelRide(ctx context.Context, rideID, reason string) (Ride, error)
	FetchNotifications(ctx context.Context) (NotificationList, error)
	FetchUnreadNotifications(ctx context.Context) (NotificationList, error)
	PollNotifications(ctx context.Context, since string) (NotificationPoll, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// TokenSource supplies a valid bearer token on demand. Acquisition and
// refresh are the credential collaborator's problem; the client only asks.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client talks to the ride gateway HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    TokenSource
	userAgent string
}

const (
	defaultUserAgent = "cabsync/0.1"
	requestTimeout   = 10 * time.Second
)

// NewClient builds a Client for the given gateway base URL. A scheme-less
// host:port value is treated as plain http.
func NewClient(baseURL string, tokens TokenSource) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		tokens:    tokens,
		userAgent: defaultUserAgent,
	}, nil
}

// CreateRide requests a new ride from origin to destination.
func (c *Client) CreateRide(ctx context.Context, origin, destination string) (Ride, error) {
	var ride Ride
	body := map[string]string{"origin": origin, "destination": destination}
	if err := c.do(ctx, http.MethodPost, "/api/rides/", body, &ride); err != nil {
		return Ride{}, err
	}
	return ride, nil
}

// FetchRides retrieves every ride visible to the caller's role.
func (c *Client) FetchRides(ctx context.Context) ([]Ride, error) {
	var rides []Ride
	if err := c.do(ctx, http.MethodGet, "/api/rides/", nil, &rides); err != nil {
		return nil, err
	}
	return rides, nil
}

// FetchRide retrieves a single ride by id.
func (c *Client) FetchRide(ctx context.Context, rideID string) (Ride, error) {
	var ride Ride
	if err := c.do(ctx, http.MethodGet, ridePath(rideID, ""), nil, &ride); err != nil {
		return Ride{}, err
	}
	return ride, nil
}

// AcceptRide accepts a ride on behalf of the fulfiller.
func (c *Client) AcceptRide(ctx context.Context, rideID string) (Ride, error) {
	return c.rideAction(ctx, rideID, "accept", nil)
}

// RejectRide declines an offered ride, returning it to the open pool.
func (c *Client) RejectRide(ctx context.Context, rideID string) (Ride, error) {
	return c.rideAction(ctx, rideID, "reject", nil)
}

// CompleteRide marks an accepted ride as finished.
func (c *Client) CompleteRide(ctx context.Context, rideID string) (Ride, error) {
	return c.rideAction(ctx, rideID, "complete", nil)
}

// CancelRide cancels a ride with an optional reason.
func (c *Client) CancelRide(ctx context.Context, rideID, reason string) (Ride, error) {
	return c.rideAction(ctx, rideID, "cancel", map[string]string{"reason": reason})
}

func (c *Client) rideAction(ctx context.Context, rideID, action string, body any) (Ride, error) {
	var ride Ride
	if err := c.do(ctx, http.MethodPost, ridePath(rideID, action), body, &ride); err != nil {
		return Ride{}, err
	}
	return ride, nil
}

// FetchNotifications retrieves the full notification list with counts.
func (c *Client) FetchNotifications(ctx context.Context) (NotificationList, error) {
	var list NotificationList
	if err := c.do(ctx, http.MethodGet, "/api/notifications/", nil, &list); err != nil {
		return NotificationList{}, err
	}
	return list, nil
}

// FetchUnreadNotifications retrieves unread notifications only.
func (c *Client) FetchUnreadNotifications(ctx context.Context) (NotificationList, error) {
	var list NotificationList
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread/", nil, &list); err != nil {
		return NotificationList{}, err
	}
	return list, nil
}

// PollNotifications retrieves notifications created after the since cursor.
// An empty since lets the server pick its default lookback window. The
// returned Timestamp is the cursor for the next call.
func (c *Client) PollNotifications(ctx context.Context, since string) (NotificationPoll, error) {
	values := url.Values{}
	if strings.TrimSpace(since) != "" {
		values.Set("since", since)
	}
	rel := &url.URL{Path: "/api/notifications/poll/", RawQuery: values.Encode()}
	var poll NotificationPoll
	if err := c.doURL(ctx, http.MethodGet, rel, nil, &poll); err != nil {
		return NotificationPoll{}, err
	}
	return poll, nil
}

// MarkNotificationRead flags a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	path := fmt.Sprintf("/api/notifications/%s/mark_as_read/", url.PathEscape(notificationID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// MarkAllNotificationsRead flags every unread notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/mark_all_as_read/", nil, nil)
}

func ridePath(rideID, action string) string {
	path := "/api/rides/" + url.PathEscape(rideID) + "/"
	if action != "" {
		path += action + "/"
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	rel := &url.URL{Path: path}
	return c.doURL(ctx, method, rel, body, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Detail = payload.Detail
	}
	return apiErr
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("gateway url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url %q: %w", baseURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
