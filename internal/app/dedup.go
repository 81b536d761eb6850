package app

import (
	"sync"
	"time"

	"warranty_reminder/internal/domain/preference"
)

// manualDate is the LocalDate marker of manual-trigger cool-down keys.
const manualDate = "manual"

// scheduledRetention is how long a scheduled dedup entry is kept; it outlives any local day.
const scheduledRetention = 48 * time.Hour

// DedupKey identifies one notification per channel, user and local calendar date.
type DedupKey struct {
	Channel   preference.Channel
	UserID    int64
	LocalDate string // YYYY-MM-DD in the channel's timezone, or "manual"
}

// Reservation is a dedup entry that becomes effective once committed.
type Reservation struct {
	Key       DedupKey
	ExpiresAt time.Time
}

// Ledger is the process-local record of sent notifications. It is not persisted,
// so a restart forgets what was sent today.
type Ledger struct {
	mu      sync.Mutex
	entries map[DedupKey]time.Time // key -> expiry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[DedupKey]time.Time)}
}

// Seen reports whether key has an unexpired entry at now.
func (l *Ledger) Seen(key DedupKey, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.entries[key]
	return ok && now.Before(exp)
}

// Commit records all reservations at once.
func (l *Ledger) Commit(reservations []Reservation) {
	if len(reservations) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range reservations {
		if cur, ok := l.entries[r.Key]; !ok || r.ExpiresAt.After(cur) {
			l.entries[r.Key] = r.ExpiresAt
		}
	}
}

// Prune drops expired entries and returns how many were removed.
func (l *Ledger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, exp := range l.entries {
		if !now.Before(exp) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
