package sync

import (
	"io"
	"testing"
	"time"

	"github.com/cabsync/cabsync/internal/gateway"
	"github.com/cabsync/cabsync/internal/lifecycle"
	"github.com/cabsync/cabsync/internal/logging"
)

func testStore() *Store {
	return NewStore(logging.NewLoggerTo(io.Discard, "error"))
}

func TestStore_ApplyRidesReportsChanges(t *testing.T) {
	store := testStore()
	now := time.Now()

	changed, applied := store.ApplyRides([]gateway.Ride{
		{ID: "r1", Status: lifecycle.StatusRequested},
		{ID: "r2", Status: lifecycle.StatusOffered},
	}, now)
	if !applied {
		t.Fatal("first ApplyRides not applied")
	}
	if len(changed) != 2 {
		t.Fatalf("changed = %v, want both rides", changed)
	}

	// Re-applying the same listing changes nothing.
	changed, applied = store.ApplyRides([]gateway.Ride{
		{ID: "r1", Status: lifecycle.StatusRequested},
		{ID: "r2", Status: lifecycle.StatusOffered},
	}, now.Add(time.Second))
	if !applied {
		t.Fatal("second ApplyRides not applied")
	}
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want none for identical listing", changed)
	}

	changed, _ = store.ApplyRides([]gateway.Ride{
		{ID: "r1", Status: lifecycle.StatusAccepted, Fulfiller: "d1"},
		{ID: "r2", Status: lifecycle.StatusOffered},
	}, now.Add(2*time.Second))
	if len(changed) != 1 || changed[0] != "r1" {
		t.Fatalf("changed = %v, want only r1", changed)
	}
}

func TestStore_StaleResponseDiscarded(t *testing.T) {
	store := testStore()
	now := time.Now()

	if _, applied := store.ApplyRides([]gateway.Ride{{ID: "r1", Status: lifecycle.StatusAccepted}}, now); !applied {
		t.Fatal("fresh response not applied")
	}

	// A response issued before the last applied one loses, even if it
	// arrives later.
	changed, applied := store.ApplyRides([]gateway.Ride{{ID: "r1", Status: lifecycle.StatusRequested}}, now.Add(-time.Second))
	if applied {
		t.Fatal("stale response was applied")
	}
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want none", changed)
	}
	ride, _ := store.Ride("r1")
	if ride.Status != lifecycle.StatusAccepted {
		t.Fatalf("status = %q, want accepted preserved", ride.Status)
	}
}

func TestStore_TerminalStatusNeverRegresses(t *testing.T) {
	store := testStore()
	now := time.Now()

	store.ApplyRides([]gateway.Ride{{ID: "r1", Status: lifecycle.StatusCompleted}}, now)

	// A newer stream response carrying an out-of-date status for this ride
	// advances the cursor but leaves the terminal ride alone.
	changed, applied := store.ApplyRides([]gateway.Ride{{ID: "r1", Status: lifecycle.StatusAccepted}}, now.Add(time.Second))
	if !applied {
		t.Fatal("response should apply at the stream level")
	}
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want none", changed)
	}
	ride, _ := store.Ride("r1")
	if ride.Status != lifecycle.StatusCompleted {
		t.Fatalf("status = %q, want completed preserved", ride.Status)
	}

	if store.ApplyRide(gateway.Ride{ID: "r1", Status: lifecycle.StatusOffered}) {
		t.Fatal("non-terminal push payload moved a terminal ride")
	}
}

func TestStore_ApplyNotificationsAdvancesCursor(t *testing.T) {
	store := testStore()
	now := time.Now()

	added, applied := store.ApplyNotifications([]gateway.Notification{
		{ID: "n1", RideID: "r1", CreatedAt: "2026-03-01T10:00:00Z"},
	}, "2026-03-01T10:00:01Z", now)
	if !applied || len(added) != 1 {
		t.Fatalf("added = %v applied = %v", added, applied)
	}
	if store.Cursor() != "2026-03-01T10:00:01Z" {
		t.Fatalf("cursor = %q, want server timestamp", store.Cursor())
	}

	// Duplicate delivery adds nothing and keeps a later cursor.
	added, applied = store.ApplyNotifications([]gateway.Notification{
		{ID: "n1", RideID: "r1", CreatedAt: "2026-03-01T10:00:00Z"},
	}, "2026-03-01T10:00:06Z", now.Add(5*time.Second))
	if !applied || len(added) != 0 {
		t.Fatalf("duplicate delivery: added = %v applied = %v", added, applied)
	}
	if store.Cursor() != "2026-03-01T10:00:06Z" {
		t.Fatalf("cursor = %q, want advanced", store.Cursor())
	}

	// An empty cursor from an out-of-band source leaves the cursor alone.
	store.AddNotifications([]gateway.Notification{{ID: "n2", RideID: "r1", CreatedAt: "2026-03-01T10:00:05Z"}})
	if store.Cursor() != "2026-03-01T10:00:06Z" {
		t.Fatalf("cursor moved by out-of-band add: %q", store.Cursor())
	}
	if got := len(store.Snapshot().Notifications); got != 2 {
		t.Fatalf("log size = %d, want 2", got)
	}
}

func TestStore_MarkRead(t *testing.T) {
	store := testStore()
	store.AddNotifications([]gateway.Notification{
		{ID: "n1", CreatedAt: "2026-03-01T10:00:00Z"},
		{ID: "n2", CreatedAt: "2026-03-01T10:00:01Z"},
	})

	if !store.MarkRead("n1") {
		t.Fatal("MarkRead(n1) = false, want true")
	}
	if store.MarkRead("missing") {
		t.Fatal("MarkRead(missing) = true, want false")
	}
	if got := store.Snapshot().UnreadCount(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	flipped := store.MarkAllRead()
	if len(flipped) != 1 || flipped[0] != "n2" {
		t.Fatalf("MarkAllRead = %v, want [n2]", flipped)
	}
	if got := store.Snapshot().UnreadCount(); got != 0 {
		t.Fatalf("unread = %d, want 0", got)
	}
}

func TestStore_FailureCountersAndOffline(t *testing.T) {
	store := testStore()

	store.RecordRideFailure()
	if store.Snapshot().IsOffline() {
		t.Fatal("offline after a single failure")
	}
	store.RecordRideFailure()
	if !store.Snapshot().IsOffline() {
		t.Fatal("not offline after consecutive failures")
	}

	// A successful apply clears the streak.
	store.ApplyRides(nil, time.Now())
	if store.Snapshot().IsOffline() {
		t.Fatal("still offline after successful sync")
	}

	store.RecordNotificationFailure()
	if got := store.Snapshot().NotificationFailures; got != 1 {
		t.Fatalf("NotificationFailures = %d, want 1", got)
	}
	store.ApplyNotifications(nil, "", time.Now())
	if got := store.Snapshot().NotificationFailures; got != 0 {
		t.Fatalf("NotificationFailures = %d, want reset", got)
	}
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	store := testStore()
	now := time.Now()
	store.ApplyRides([]gateway.Ride{{ID: "r1", Status: lifecycle.StatusRequested}}, now)
	store.AddNotifications([]gateway.Notification{{ID: "n1", CreatedAt: "2026-03-01T10:00:00Z"}})

	snap := store.Snapshot()
	snap.Rides["r1"] = gateway.Ride{ID: "r1", Status: lifecycle.StatusCancelled}
	snap.Notifications[0].Read = true

	ride, _ := store.Ride("r1")
	if ride.Status != lifecycle.StatusRequested {
		t.Fatal("mutating a snapshot leaked into the store")
	}
	if store.Snapshot().Notifications[0].Read {
		t.Fatal("mutating snapshot notifications leaked into the store")
	}
}
