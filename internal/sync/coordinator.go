package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cabsync/cabsync/internal/events"
	"github.com/cabsync/cabsync/internal/gateway"
	"github.com/cabsync/cabsync/internal/lifecycle"
	"github.com/cabsync/cabsync/internal/observability"
	"github.com/cabsync/cabsync/internal/push"
)

// Bus topics published by the Coordinator.
const (
	// TopicRidesUpdated carries RidesUpdated whenever rides appear or change.
	TopicRidesUpdated events.Topic = "sync.rides_updated"
	// TopicNotificationsAdded carries NotificationsAdded for new log entries.
	TopicNotificationsAdded events.Topic = "sync.notifications_added"
	// TopicNotificationsRead carries NotificationsRead for local read flips.
	TopicNotificationsRead events.Topic = "sync.notifications_read"
	// TopicSyncError carries every error the sync loops swallow, so
	// subscribers and tests can observe failures that never reach a caller.
	TopicSyncError events.Topic = "sync.error"
)

// RidesUpdated is the TopicRidesUpdated payload.
type RidesUpdated struct {
	RideIDs []string
}

// NotificationsAdded is the TopicNotificationsAdded payload.
type NotificationsAdded struct {
	NotificationIDs []string
}

// NotificationsRead is the TopicNotificationsRead payload.
type NotificationsRead struct {
	NotificationIDs []string
}

// Coordinator is the top of the sync layer: it issues commands to the
// gateway, ingests raw server payloads from polling and push, keeps the
// Store consistent through the lifecycle and dedup rules, and publishes
// exactly what changed.
type Coordinator struct {
	api   gateway.API
	role  lifecycle.Role
	store *Store
	bus   *events.Bus
	log   *slog.Logger

	ridesInFlight  atomic.Bool
	notifsInFlight atomic.Bool
}

// NewCoordinator wires a coordinator for one session. The role is resolved
// once here; commands the role can never perform fail locally without a
// round trip.
func NewCoordinator(api gateway.API, role lifecycle.Role, store *Store, bus *events.Bus, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		api:   api,
		role:  role,
		store: store,
		bus:   bus,
		log:   log.With("component", "sync"),
	}
}

// Store exposes the snapshot store for presentation collaborators.
func (c *Coordinator) Store() *Store { return c.store }

// Role returns the session role.
func (c *Coordinator) Role() lifecycle.Role { return c.role }

// RequestRide creates a new ride and triggers an immediate rides refresh.
// The snapshot is not touched optimistically; it changes only when the next
// confirmed read reflects the new ride.
func (c *Coordinator) RequestRide(ctx context.Context, origin, destination string) (gateway.Ride, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" {
		return gateway.Ride{}, &ValidationError{Field: "origin", Reason: "must not be empty"}
	}
	if destination == "" {
		return gateway.Ride{}, &ValidationError{Field: "destination", Reason: "must not be empty"}
	}
	if _, err := lifecycle.ValidateTransition("", lifecycle.ActionRequest, c.role); err != nil {
		return gateway.Ride{}, err
	}

	ride, err := c.api.CreateRide(ctx, origin, destination)
	if err != nil {
		return gateway.Ride{}, fmt.Errorf("create ride: %w", err)
	}
	c.refreshRides(ctx)
	return ride, nil
}

// AcceptRide accepts a ride on behalf of the fulfiller.
func (c *Coordinator) AcceptRide(ctx context.Context, rideID string) error {
	return c.command(ctx, rideID, lifecycle.ActionAccept, func(ctx context.Context) (gateway.Ride, error) {
		return c.api.AcceptRide(ctx, rideID)
	})
}

// RejectRide declines an offered ride, returning it to the open pool.
func (c *Coordinator) RejectRide(ctx context.Context, rideID string) error {
	return c.command(ctx, rideID, lifecycle.ActionReject, func(ctx context.Context) (gateway.Ride, error) {
		return c.api.RejectRide(ctx, rideID)
	})
}

// CompleteRide marks an accepted ride as finished.
func (c *Coordinator) CompleteRide(ctx context.Context, rideID string) error {
	return c.command(ctx, rideID, lifecycle.ActionComplete, func(ctx context.Context) (gateway.Ride, error) {
		return c.api.CompleteRide(ctx, rideID)
	})
}

// CancelRide cancels a ride with an optional reason.
func (c *Coordinator) CancelRide(ctx context.Context, rideID, reason string) error {
	return c.command(ctx, rideID, lifecycle.ActionCancel, func(ctx context.Context) (gateway.Ride, error) {
		return c.api.CancelRide(ctx, rideID, reason)
	})
}

// command validates a transition against the local copy when the ride is
// known, issues the gateway call, and refreshes the rides stream. A locally
// invalid transition never reaches the transport. When the ride is not in
// the snapshot yet the server alone decides; its policy is authoritative
// either way.
func (c *Coordinator) command(ctx context.Context, rideID string, action lifecycle.Action, call func(context.Context) (gateway.Ride, error)) error {
	if strings.TrimSpace(rideID) == "" {
		return &ValidationError{Field: "ride", Reason: "must not be empty"}
	}
	if local, known := c.store.Ride(rideID); known {
		if _, err := lifecycle.ValidateTransition(local.Status, action, c.role); err != nil {
			return err
		}
	}
	if _, err := call(ctx); err != nil {
		return fmt.Errorf("%s ride %s: %w", action, rideID, err)
	}
	c.refreshRides(ctx)
	return nil
}

// MarkNotificationRead optimistically flips the local read flag and tells
// the gateway in the background. A server failure is logged and published on
// TopicSyncError but the flag stays flipped; read state is a low-stakes,
// eventually-consistent annotation.
func (c *Coordinator) MarkNotificationRead(ctx context.Context, notificationID string) {
	if c.store.MarkRead(notificationID) {
		c.bus.Publish(TopicNotificationsRead, NotificationsRead{NotificationIDs: []string{notificationID}})
	}
	go func() {
		if err := c.api.MarkNotificationRead(context.WithoutCancel(ctx), notificationID); err != nil {
			c.reportError(fmt.Errorf("mark notification %s read: %w", notificationID, err))
		}
	}()
}

// MarkAllNotificationsRead is the bulk variant of MarkNotificationRead with
// the same optimistic, non-rolling-back semantics.
func (c *Coordinator) MarkAllNotificationsRead(ctx context.Context) {
	if flipped := c.store.MarkAllRead(); len(flipped) > 0 {
		c.bus.Publish(TopicNotificationsRead, NotificationsRead{NotificationIDs: flipped})
	}
	go func() {
		if err := c.api.MarkAllNotificationsRead(context.WithoutCancel(ctx)); err != nil {
			c.reportError(fmt.Errorf("mark all notifications read: %w", err))
		}
	}()
}

// PollRides runs one rides fetch-and-apply cycle. When a cycle for the
// stream is already in flight the call is skipped, never queued, so at most
// one rides request is ever outstanding. Failures are recorded, published,
// and returned; the caller keeps ticking regardless.
func (c *Coordinator) PollRides(ctx context.Context) error {
	if !c.ridesInFlight.CompareAndSwap(false, true) {
		observability.PollsSkippedTotal.WithLabelValues("rides").Inc()
		c.log.Debug("rides poll skipped, previous cycle in flight")
		return nil
	}
	defer c.ridesInFlight.Store(false)

	issuedAt := time.Now()
	rides, err := c.api.FetchRides(ctx)
	if err != nil {
		observability.PollFailuresTotal.WithLabelValues("rides").Inc()
		c.store.RecordRideFailure()
		err = fmt.Errorf("poll rides: %w", err)
		c.reportError(err)
		return err
	}
	observability.PollsTotal.WithLabelValues("rides").Inc()

	changed, applied := c.store.ApplyRides(rides, issuedAt)
	if !applied {
		return nil
	}
	if len(changed) > 0 {
		c.bus.Publish(TopicRidesUpdated, RidesUpdated{RideIDs: changed})
	}
	return nil
}

// PollNotifications runs one notifications fetch-and-apply cycle with the
// incremental since cursor. The cursor only ever advances to the
// server-supplied timestamp, never to the local clock, so clock skew cannot
// open a gap between polls.
func (c *Coordinator) PollNotifications(ctx context.Context) error {
	if !c.notifsInFlight.CompareAndSwap(false, true) {
		observability.PollsSkippedTotal.WithLabelValues("notifications").Inc()
		c.log.Debug("notifications poll skipped, previous cycle in flight")
		return nil
	}
	defer c.notifsInFlight.Store(false)

	issuedAt := time.Now()
	poll, err := c.api.PollNotifications(ctx, c.store.Cursor())
	if err != nil {
		observability.PollFailuresTotal.WithLabelValues("notifications").Inc()
		c.store.RecordNotificationFailure()
		err = fmt.Errorf("poll notifications: %w", err)
		c.reportError(err)
		return err
	}
	observability.PollsTotal.WithLabelValues("notifications").Inc()

	added, applied := c.store.ApplyNotifications(poll.Notifications, poll.Timestamp, issuedAt)
	if !applied {
		return nil
	}
	if len(added) > 0 {
		c.bus.Publish(TopicNotificationsAdded, NotificationsAdded{NotificationIDs: added})
	}
	return nil
}

// refreshRides kicks an out-of-band rides poll so the snapshot reflects a
// just-issued command without waiting for the next scheduled tick. The
// in-flight gate in PollRides keeps the one-outstanding-request rule intact.
func (c *Coordinator) refreshRides(ctx context.Context) {
	go func() {
		_ = c.PollRides(context.WithoutCancel(ctx))
	}()
}

// subscribePush routes push channel events into the coordinator. Returns the
// cancel functions for the subscriptions.
func (c *Coordinator) subscribePush(ctx context.Context) []func() {
	return []func(){
		c.bus.Subscribe(push.TopicMessage, func(payload any) {
			frame, ok := payload.(push.Frame)
			if !ok {
				return
			}
			c.onPushFrame(ctx, frame)
		}),
		c.bus.Subscribe(push.TopicGiveUp, func(payload any) {
			c.log.Warn("push channel gave up, continuing in polling-only mode")
		}),
	}
}

// onPushFrame ingests one push frame. Frames may embed full ride or
// notification records, which are applied directly through the same merge
// rules as polled data; a bare lifecycle event is treated as a hint to
// refresh both streams early.
func (c *Coordinator) onPushFrame(ctx context.Context, frame push.Frame) {
	var body struct {
		Ride         *gateway.Ride         `json:"ride"`
		Notification *gateway.Notification `json:"notification"`
	}
	if err := json.Unmarshal(frame.Raw, &body); err != nil {
		c.reportError(fmt.Errorf("decode push frame %q: %w", frame.Type, err))
		return
	}

	handled := false
	if body.Ride != nil && body.Ride.ID != "" {
		handled = true
		if c.store.ApplyRide(*body.Ride) {
			c.bus.Publish(TopicRidesUpdated, RidesUpdated{RideIDs: []string{body.Ride.ID}})
		}
	}
	if body.Notification != nil && body.Notification.ID != "" {
		handled = true
		if added := c.store.AddNotifications([]gateway.Notification{*body.Notification}); len(added) > 0 {
			c.bus.Publish(TopicNotificationsAdded, NotificationsAdded{NotificationIDs: added})
		}
	}
	if !handled && frame.Type != "" {
		c.refreshRides(ctx)
		go func() {
			_ = c.PollNotifications(context.WithoutCancel(ctx))
		}()
	}
}

func (c *Coordinator) reportError(err error) {
	c.log.Warn("sync error", "error", err)
	c.bus.Publish(TopicSyncError, err)
}
