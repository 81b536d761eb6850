// internal/app/eligibility.go
package app

import (
	"time"

	"warranty_reminder/internal/domain/preference"
)

const minutesPerDay = 24 * 60

// Evaluator decides whether a tick is the moment to notify a user on a channel.
type Evaluator struct {
	ledger         *Ledger
	windowMinutes  int           // must equal the coordinator tick interval
	manualCooldown time.Duration // dedup cool-down applied to manual sends
}

func NewEvaluator(ledger *Ledger, windowMinutes int, manualCooldown time.Duration) *Evaluator {
	if windowMinutes < 1 {
		windowMinutes = 1
	}
	return &Evaluator{ledger: ledger, windowMinutes: windowMinutes, manualCooldown: manualCooldown}
}

// Due applies the timing predicates: the tolerance window [configured, configured+window)
// minutes normalized across midnight, then the cadence on the local date of the
// configured occurrence. A tick just after midnight that serves the previous
// evening's slot belongs to the previous date. That date is returned for dedup.
func Due(now time.Time, s ChannelSchedule, windowMinutes int) (string, bool) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	localMinute := local.Hour()*60 + local.Minute()

	diff := MinuteDiff(localMinute, s.MinuteOfDay)
	if diff < 0 || diff >= windowMinutes {
		return "", false
	}

	y, m, d := local.Date()
	if localMinute < s.MinuteOfDay {
		d-- // normalized by time.Date
	}
	occurrence := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	switch s.Cadence {
	case preference.CadenceWeekly:
		if occurrence.Weekday() != time.Monday {
			return "", false
		}
	case preference.CadenceMonthly:
		if occurrence.Day() != 1 {
			return "", false
		}
	}
	return occurrence.Format("2006-01-02"), true
}

// MinuteDiff returns localMinute-targetMinute folded into (-720, 720].
func MinuteDiff(localMinute, targetMinute int) int {
	diff := localMinute - targetMinute
	if diff > minutesPerDay/2 {
		diff -= minutesPerDay
	} else if diff < -minutesPerDay/2 {
		diff += minutesPerDay
	}
	return diff
}

// Check evaluates a scheduled tick. On success the returned reservation must be
// committed to the ledger once the pass has read everything it needs.
func (e *Evaluator) Check(now time.Time, userID int64, s ChannelSchedule) (Reservation, bool) {
	if !s.Enabled {
		return Reservation{}, false
	}
	date, ok := Due(now, s, e.windowMinutes)
	if !ok {
		return Reservation{}, false
	}
	key := DedupKey{Channel: s.Channel, UserID: userID, LocalDate: date}
	if e.ledger.Seen(key, now) {
		return Reservation{}, false
	}
	return Reservation{Key: key, ExpiresAt: now.Add(scheduledRetention)}, true
}

// CheckManual skips the timing predicates but still honours channel opt-outs and
// the manual cool-down.
func (e *Evaluator) CheckManual(now time.Time, userID int64, s ChannelSchedule) (Reservation, bool) {
	if !s.Enabled {
		return Reservation{}, false
	}
	key := DedupKey{Channel: s.Channel, UserID: userID, LocalDate: manualDate}
	if e.ledger.Seen(key, now) {
		return Reservation{}, false
	}
	return Reservation{Key: key, ExpiresAt: now.Add(e.manualCooldown)}, true
}

// Commit makes reservations effective.
func (e *Evaluator) Commit(reservations []Reservation) {
	e.ledger.Commit(reservations)
}

// Prune drops expired ledger entries.
func (e *Evaluator) Prune(now time.Time) int {
	return e.ledger.Prune(now)
}
