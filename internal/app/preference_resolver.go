// internal/app/preference_resolver.go
package app

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // IANA names must resolve in minimal containers

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/user"

	"github.com/sirupsen/logrus"
)

// ChannelSchedule is the canonical, validated schedule of one channel.
type ChannelSchedule struct {
	Channel     preference.Channel
	Enabled     bool
	Cadence     preference.Cadence
	MinuteOfDay int // configured local time as minutes since midnight
	Location    *time.Location
}

// ResolvedPreference is a user's stored configuration turned into per-channel schedules.
type ResolvedPreference struct {
	User        user.User
	HorizonDays int
	Email       ChannelSchedule
	Push        ChannelSchedule
	Defaulted   bool // no stored preference existed
}

// PreferenceResolver resolves stored preferences into canonical schedules.
// Invalid values never fail a user: each falls back to its default with a warning.
type PreferenceResolver struct {
	logger *logrus.Entry

	mu        sync.Mutex
	locations map[string]*time.Location
}

func NewPreferenceResolver(logger *logrus.Entry) *PreferenceResolver {
	return &PreferenceResolver{
		logger:    logger,
		locations: make(map[string]*time.Location),
	}
}

// Resolve turns a stored preference (nil when absent) into per-channel schedules.
func (r *PreferenceResolver) Resolve(u user.User, stored *preference.Preference) ResolvedPreference {
	p := preference.Default(u.ID)
	defaulted := stored == nil
	if stored != nil {
		p = *stored
	}
	logCtx := r.logger.WithField("user_id", u.ID)

	if !p.Channels.Valid() {
		logCtx.WithError(ErrConfiguration).Warnf("Unknown channel selector %q, using %q", p.Channels, preference.SelectEmail)
		p.Channels = preference.SelectEmail
	}
	horizon := p.HorizonDays
	if horizon < preference.MinHorizonDays || horizon > preference.MaxHorizonDays {
		logCtx.WithError(ErrConfiguration).Warnf("Horizon %d out of range, using %d days", horizon, preference.DefaultHorizonDays)
		horizon = preference.DefaultHorizonDays
	}

	return ResolvedPreference{
		User:        u,
		HorizonDays: horizon,
		Email:       r.channel(logCtx, preference.ChannelEmail, p.Channels, p.EmailCadence, p.EmailTime, p.EmailTimezone),
		Push:        r.channel(logCtx, preference.ChannelPush, p.Channels, p.PushCadence, p.PushTime, p.PushTimezone),
		Defaulted:   defaulted,
	}
}

func (r *PreferenceResolver) channel(logCtx *logrus.Entry, c preference.Channel, sel preference.Selector, cadence preference.Cadence, hhmm, tz string) ChannelSchedule {
	logCtx = logCtx.WithField("channel", c)

	if cadence == "" {
		cadence = preference.CadenceDaily
	} else if !cadence.Valid() {
		logCtx.WithError(ErrConfiguration).Warnf("Unknown cadence %q, using daily", cadence)
		cadence = preference.CadenceDaily
	}

	if hhmm == "" {
		hhmm = preference.DefaultTime
	}
	minute, err := ParseMinuteOfDay(hhmm)
	if err != nil {
		logCtx.WithError(err).Warnf("Invalid notification time %q, using %s", hhmm, preference.DefaultTime)
		minute, _ = ParseMinuteOfDay(preference.DefaultTime)
	}

	return ChannelSchedule{
		Channel:     c,
		Enabled:     sel.Enables(c),
		Cadence:     cadence,
		MinuteOfDay: minute,
		Location:    r.location(logCtx, tz),
	}
}

// location loads and caches an IANA zone; unknown names fall back to UTC.
func (r *PreferenceResolver) location(logCtx *logrus.Entry, name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.locations[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logCtx.WithError(fmt.Errorf("%w: timezone %q: %v", ErrValidation, name, err)).Warn("Invalid timezone, falling back to UTC")
		loc = time.UTC
	}
	r.locations[name] = loc
	return loc
}

// ParseMinuteOfDay parses "HH:MM" (24h, optional ":SS") into minutes since midnight.
func ParseMinuteOfDay(hhmm string) (int, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrValidation, hhmm)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrValidation, hhmm)
	}
	return h*60 + m, nil
}
