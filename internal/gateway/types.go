package gateway

import (
	"time"

	"github.com/cabsync/cabsync/internal/lifecycle"
)

// Ride mirrors a ride record as the gateway serializes it. Identifiers are
// opaque server-assigned strings; timestamps stay in wire form with parse
// helpers for callers that need time.Time values.
type Ride struct {
	ID          string           `json:"id"`
	Requester   string           `json:"passenger"`
	Fulfiller   string           `json:"driver,omitempty"`
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Status      lifecycle.Status `json:"status"`
	Price       *float64         `json:"price,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (r Ride) ParsedCreatedAt() time.Time {
	return parseTime(r.CreatedAt)
}

// ParsedUpdatedAt returns the parsed UpdatedAt timestamp.
func (r Ride) ParsedUpdatedAt() time.Time {
	return parseTime(r.UpdatedAt)
}

// Notification mirrors a notification record from the gateway. Read state is
// the only locally mutable field.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	RideID    string `json:"ride"`
	Type      string `json:"notification_type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// Notification types emitted by the gateway for ride lifecycle events. Push
// frames reuse the same strings as their type tag.
const (
	NotifyRideRequested = "ride_requested"
	NotifyRideOffered   = "ride_offered"
	NotifyRideAccepted  = "ride_accepted"
	NotifyRideRejected  = "ride_rejected"
	NotifyRideCompleted = "ride_completed"
	NotifyRideCancelled = "ride_cancelled"
)

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (n Notification) ParsedCreatedAt() time.Time {
	return parseTime(n.CreatedAt)
}

// NotificationList mirrors GET /notifications/.
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	Count         int            `json:"count"`
	UnreadCount   int            `json:"unread_count"`
}

// NotificationPoll mirrors GET /notifications/poll/. Timestamp is the
// server-clock cursor to pass as since on the next poll.
type NotificationPoll struct {
	Notifications []Notification `json:"notifications"`
	Count         int            `json:"count"`
	Timestamp     string         `json:"timestamp"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
