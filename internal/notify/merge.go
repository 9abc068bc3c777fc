package notify

import (
	"sort"

	"github.com/cabsync/cabsync/internal/gateway"
)

// Merge folds an incoming batch of notifications into an existing log and
// returns the new log ordered by creation time descending, ties broken by id
// so the result is deterministic regardless of arrival order.
//
// Entries whose id already exists in the log are dropped, keeping the
// existing entry's read flag: a re-delivered notification must never come
// back as unread after the user has read it. Merge never removes entries and
// is idempotent; merging the same batch twice yields the same log as merging
// it once. Inputs are not mutated.
func Merge(existing []gateway.Notification, incoming []gateway.Notification) []gateway.Notification {
	if len(incoming) == 0 {
		return cloneLog(existing)
	}

	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]gateway.Notification, 0, len(existing)+len(incoming))
	for _, n := range existing {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}
	for _, n := range incoming {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := merged[i].ParsedCreatedAt(), merged[j].ParsedCreatedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// UnreadCount reports how many entries in the log are unread.
func UnreadCount(log []gateway.Notification) int {
	count := 0
	for _, n := range log {
		if !n.Read {
			count++
		}
	}
	return count
}

// GroupByRide buckets the log by associated ride id, preserving log order
// within each bucket.
func GroupByRide(log []gateway.Notification) map[string][]gateway.Notification {
	grouped := make(map[string][]gateway.Notification)
	for _, n := range log {
		grouped[n.RideID] = append(grouped[n.RideID], n)
	}
	return grouped
}

// LatestPerRide returns the most recent notification for each ride id,
// ordered like the log itself.
func LatestPerRide(log []gateway.Notification) []gateway.Notification {
	seen := make(map[string]struct{}, len(log))
	latest := make([]gateway.Notification, 0, len(log))
	for _, n := range log {
		if _, dup := seen[n.RideID]; dup {
			continue
		}
		seen[n.RideID] = struct{}{}
		latest = append(latest, n)
	}
	return latest
}

func cloneLog(log []gateway.Notification) []gateway.Notification {
	if len(log) == 0 {
		return nil
	}
	dup := make([]gateway.Notification, len(log))
	copy(dup, log)
	return dup
}
