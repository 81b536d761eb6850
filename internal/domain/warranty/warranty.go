// internal/domain/warranty/warranty.go
package warranty

import "time"

// ExpiringRecord is one row of the "expiring within N days" query, joined with the owner.
type ExpiringRecord struct {
	UserID         int64
	Email          string
	DisplayName    string
	ProductName    string
	ExpirationDate time.Time
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole calendar days from today to expiration.
func DaysUntil(today, expiration time.Time) int {
	return int(DateOnly(expiration).Sub(DateOnly(today)).Hours() / 24)
}

// WithinHorizon reports whether expiration falls in (today, today+horizonDays].
func WithinHorizon(today, expiration time.Time, horizonDays int) bool {
	d := DaysUntil(today, expiration)
	return d > 0 && d <= horizonDays
}
