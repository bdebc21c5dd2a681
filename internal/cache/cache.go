// Package cache provides the TTL-bound byte store behind the reply
// memoization and derived-view keyspaces, plus the key scheme and the
// invalidation helpers that tie cache entries to the entities they depend on.
package cache

import "time"

// Store is the backing byte store. Entries are created on miss, read on hit,
// and deleted when an invalidation fires; they are never mutated in place.
// A Get must never return an entry past its TTL.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// TTLs per keyspace. Less a tuning knob than a backstop: invalidation is
// best-effort, so stale entries must eventually expire on their own.
const (
	ReplyTTL              = 1 * time.Hour
	ConversationListTTL   = 10 * time.Minute
	ConversationDetailTTL = 1 * time.Hour
	MessageWindowTTL      = 1 * time.Hour
	DashboardTTL          = 15 * time.Minute
	RecentAssessmentsTTL  = 1 * time.Hour
)
