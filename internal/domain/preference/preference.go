// internal/domain/preference/preference.go
package preference

import "warranty_reminder/internal/domain/user"

// Channel is a delivery channel a reminder can go out on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Selector is the stored "which channels" choice of a user.
type Selector string

const (
	SelectNone  Selector = "none"
	SelectEmail Selector = "email"
	SelectPush  Selector = "push"
	SelectBoth  Selector = "both"
)

// Enables reports whether the selector opts the user into channel c.
func (s Selector) Enables(c Channel) bool {
	switch s {
	case SelectBoth:
		return true
	case SelectEmail:
		return c == ChannelEmail
	case SelectPush:
		return c == ChannelPush
	default:
		return false
	}
}

// Valid reports whether s is one of the known selectors.
func (s Selector) Valid() bool {
	switch s {
	case SelectNone, SelectEmail, SelectPush, SelectBoth:
		return true
	}
	return false
}

// Cadence is how often a channel's reminder repeats.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"  // Mondays
	CadenceMonthly Cadence = "monthly" // 1st of the month
)

func (c Cadence) Valid() bool {
	return c == CadenceDaily || c == CadenceWeekly || c == CadenceMonthly
}

const (
	DefaultHorizonDays = 30
	MinHorizonDays     = 1
	MaxHorizonDays     = 365
	DefaultTime        = "09:00"
	DefaultTimezone    = "UTC"
)

// Preference is the stored notification configuration of one user.
// It is read-only for the notification engine.
type Preference struct {
	UserID        int64
	Channels      Selector
	EmailCadence  Cadence
	EmailTime     string // "HH:MM" local time
	EmailTimezone string // IANA name
	PushCadence   Cadence
	PushTime      string
	PushTimezone  string
	HorizonDays   int
}

// Default returns the preference synthesized for users that never saved one.
func Default(userID int64) Preference {
	return Preference{
		UserID:        userID,
		Channels:      SelectEmail,
		EmailCadence:  CadenceDaily,
		EmailTime:     DefaultTime,
		EmailTimezone: DefaultTimezone,
		PushCadence:   CadenceDaily,
		PushTime:      DefaultTime,
		PushTimezone:  DefaultTimezone,
		HorizonDays:   DefaultHorizonDays,
	}
}

// UserPreference pairs an active user with the stored preference, if any.
type UserPreference struct {
	User       user.User
	Preference *Preference // nil when the user never saved preferences
}
