package sync

import (
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/cabsync/cabsync/internal/gateway"
	"github.com/cabsync/cabsync/internal/lifecycle"
	"github.com/cabsync/cabsync/internal/notify"
	"github.com/cabsync/cabsync/internal/observability"
)

// Snapshot is the authoritative local view handed to presentation
// collaborators: every ride keyed by id, the deduplicated notification log
// newest first, and per-stream sync bookkeeping.
type Snapshot struct {
	Rides         map[string]gateway.Ride
	Notifications []gateway.Notification

	LastRidesSync         time.Time
	LastNotificationsSync time.Time
	NotificationCursor    string

	RideFailures         int
	NotificationFailures int
}

// Ride returns the ride with the given id.
func (s Snapshot) Ride(id string) (gateway.Ride, bool) {
	ride, ok := s.Rides[id]
	return ride, ok
}

// UnreadCount reports the number of unread notifications.
func (s Snapshot) UnreadCount() int {
	return notify.UnreadCount(s.Notifications)
}

// NotificationsByRide buckets the log by ride id.
func (s Snapshot) NotificationsByRide() map[string][]gateway.Notification {
	return notify.GroupByRide(s.Notifications)
}

// LatestNotificationPerRide returns the newest notification for each ride.
func (s Snapshot) LatestNotificationPerRide() []gateway.Notification {
	return notify.LatestPerRide(s.Notifications)
}

// RidesWithStatus filters the snapshot's rides by status.
func (s Snapshot) RidesWithStatus(status lifecycle.Status) []gateway.Ride {
	var rides []gateway.Ride
	for _, ride := range s.Rides {
		if ride.Status == status {
			rides = append(rides, ride)
		}
	}
	return rides
}

// IsOffline reports whether the rides stream has been failing for multiple
// consecutive polls.
func (s Snapshot) IsOffline() bool {
	return s.RideFailures >= 2
}

// Store coordinates concurrent mutation of the snapshot. Every write goes
// through one of its methods under the lock, so readers always observe a
// consistent view; Snapshot returns an independent copy.
type Store struct {
	mu       stdsync.RWMutex
	snapshot Snapshot
	log      *slog.Logger
}

// NewStore returns an empty store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log.With("component", "store")}
}

// ApplyRides replaces the ride set with a full server listing fetched at
// fetchedAt. A response older than the last applied one is discarded (last
// applied wins per stream). Individual rides go through the lifecycle
// regression guard: a payload that would move a terminal ride backwards is
// logged and ignored. The returned ids are the rides that appeared or
// changed; applied is false when the whole response was stale.
func (s *Store) ApplyRides(rides []gateway.Ride, fetchedAt time.Time) (changed []string, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fetchedAt.Before(s.snapshot.LastRidesSync) {
		s.log.Debug("discarding stale rides response", "fetched_at", fetchedAt, "last_sync", s.snapshot.LastRidesSync)
		return nil, false
	}

	if s.snapshot.Rides == nil {
		s.snapshot.Rides = make(map[string]gateway.Ride, len(rides))
	}
	for _, server := range rides {
		if id := s.applyRideLocked(server); id != "" {
			changed = append(changed, id)
		}
	}
	s.snapshot.LastRidesSync = fetchedAt
	s.snapshot.RideFailures = 0
	return changed, true
}

// ApplyRide merges a single server-observed ride, typically from a push
// frame or a command confirmation. It does not advance the stream cursor,
// only the ride itself, and reports whether anything changed.
func (s *Store) ApplyRide(server gateway.Ride) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.Rides == nil {
		s.snapshot.Rides = make(map[string]gateway.Ride, 1)
	}
	return s.applyRideLocked(server) != ""
}

func (s *Store) applyRideLocked(server gateway.Ride) string {
	local, known := s.snapshot.Rides[server.ID]
	if known {
		if _, ok := lifecycle.ApplyServerStatus(local.Status, server.Status); !ok {
			observability.StaleRidePayloadsTotal.Inc()
			s.log.Warn("ignoring stale ride payload", "ride", server.ID, "local_status", local.Status, "server_status", server.Status)
			return ""
		}
		if !rideChanged(local, server) {
			s.snapshot.Rides[server.ID] = server
			return ""
		}
	}
	s.snapshot.Rides[server.ID] = server
	return server.ID
}

// ApplyNotifications merges a poll batch fetched at fetchedAt and advances
// the since cursor to the server-supplied value. Stale responses are
// discarded whole. The returned ids are the notifications that were new to
// the log.
func (s *Store) ApplyNotifications(batch []gateway.Notification, cursor string, fetchedAt time.Time) (added []string, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fetchedAt.Before(s.snapshot.LastNotificationsSync) {
		s.log.Debug("discarding stale notifications response", "fetched_at", fetchedAt, "last_sync", s.snapshot.LastNotificationsSync)
		return nil, false
	}

	added = s.mergeNotificationsLocked(batch)
	if cursor != "" {
		s.snapshot.NotificationCursor = cursor
	}
	s.snapshot.LastNotificationsSync = fetchedAt
	s.snapshot.NotificationFailures = 0
	return added, true
}

// AddNotifications merges notifications that arrived outside the polling
// stream, such as push frames. The cursor and stream timestamps are left
// alone; the poll stream remains responsible for gap-free delivery.
func (s *Store) AddNotifications(batch []gateway.Notification) (added []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeNotificationsLocked(batch)
}

func (s *Store) mergeNotificationsLocked(batch []gateway.Notification) (added []string) {
	existing := make(map[string]struct{}, len(s.snapshot.Notifications))
	for _, n := range s.snapshot.Notifications {
		existing[n.ID] = struct{}{}
	}
	s.snapshot.Notifications = notify.Merge(s.snapshot.Notifications, batch)
	for _, n := range batch {
		if _, known := existing[n.ID]; !known {
			existing[n.ID] = struct{}{}
			added = append(added, n.ID)
		}
	}
	if len(added) > 0 {
		observability.NotificationsMergedTotal.Add(float64(len(added)))
	}
	return added
}

// MarkRead flips the read flag on a notification and reports whether the id
// was present in the log.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.snapshot.Notifications {
		if n.ID == id {
			s.snapshot.Notifications[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flips the read flag on every notification and returns how many
// were unread.
func (s *Store) MarkAllRead() (flipped []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.snapshot.Notifications {
		if !n.Read {
			s.snapshot.Notifications[i].Read = true
			flipped = append(flipped, n.ID)
		}
	}
	return flipped
}

// RecordRideFailure notes a failed rides poll without touching the data.
func (s *Store) RecordRideFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.RideFailures++
}

// RecordNotificationFailure notes a failed notifications poll.
func (s *Store) RecordNotificationFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.NotificationFailures++
}

// Cursor returns the current since cursor for the notification poll.
func (s *Store) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.NotificationCursor
}

// Ride returns a single ride by id.
func (s *Store) Ride(id string) (gateway.Ride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ride, ok := s.snapshot.Rides[id]
	return ride, ok
}

// Snapshot returns an independent copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.Rides != nil {
		snap.Rides = make(map[string]gateway.Ride, len(s.snapshot.Rides))
		for id, ride := range s.snapshot.Rides {
			snap.Rides[id] = ride
		}
	}
	if len(s.snapshot.Notifications) > 0 {
		snap.Notifications = make([]gateway.Notification, len(s.snapshot.Notifications))
		copy(snap.Notifications, s.snapshot.Notifications)
	}
	return snap
}

// rideChanged reports whether the fields presentation cares about differ.
func rideChanged(a, b gateway.Ride) bool {
	if a.Status != b.Status || a.Fulfiller != b.Fulfiller || a.UpdatedAt != b.UpdatedAt {
		return true
	}
	if (a.Price == nil) != (b.Price == nil) {
		return true
	}
	if a.Price != nil && b.Price != nil && *a.Price != *b.Price {
		return true
	}
	return false
}
