// Package notify merges observed notifications into a deduplicated local log.
//
// Notifications reach the client twice over: once through the incremental
// poll endpoint and again over the push channel when it is connected, and a
// poll window can overlap the previous one. Merge makes that harmless by
// keying on the notification id, so applying the same batch any number of
// times, from either transport, in any interleaving, produces the same log.
//
// The log is ordered newest first for presentation, with the id as a
// tiebreak so equal timestamps still sort deterministically. Read flags are
// local annotations: a duplicate delivery never resets one.
package notify
