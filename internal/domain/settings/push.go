// internal/domain/settings/push.go
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mode selects how push reminders are grouped.
type Mode string

const (
	ModeGlobal     Mode = "global"     // one consolidated message for all eligible users
	ModeIndividual Mode = "individual" // one message per user
)

// Scope restricts whose warranties are pushed.
type Scope string

const (
	ScopeAll   Scope = "all"
	ScopeAdmin Scope = "admin"
)

// Keys of the site_settings table.
const (
	KeyPushEnabled     = "push_enabled"
	KeyPushURLs        = "push_urls"
	KeyPushHorizons    = "push_horizons"
	KeyPushTitlePrefix = "push_title_prefix"
	KeyPushMode        = "push_notification_mode"
	KeyPushScope       = "push_warranty_scope"
)

const DefaultTitlePrefix = "Warracker"

// PushSettings is the site-wide push configuration. It is read fresh for every dispatch pass.
type PushSettings struct {
	Enabled     bool
	URLs        []string
	Horizons    []int
	TitlePrefix string
	Mode        Mode
	Scope       Scope
}

// DefaultPush returns the settings used when nothing is stored.
func DefaultPush() PushSettings {
	return PushSettings{
		Horizons:    []int{30},
		TitlePrefix: DefaultTitlePrefix,
		Mode:        ModeIndividual,
		Scope:       ScopeAll,
	}
}

// MaxHorizon is the largest configured push horizon, 0 when none.
func (p PushSettings) MaxHorizon() int {
	max := 0
	for _, h := range p.Horizons {
		if h > max {
			max = h
		}
	}
	return max
}

// PushFromValues builds PushSettings from raw site_settings values.
// Malformed values keep their defaults and are reported in the returned problems.
func PushFromValues(values map[string]string) (PushSettings, []error) {
	ps := DefaultPush()
	var problems []error

	if raw, ok := values[KeyPushEnabled]; ok && strings.TrimSpace(raw) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			problems = append(problems, fmt.Errorf("%s=%q: %w", KeyPushEnabled, raw, err))
		} else {
			ps.Enabled = enabled
		}
	}

	ps.URLs = splitList(values[KeyPushURLs])

	if raw := strings.TrimSpace(values[KeyPushHorizons]); raw != "" {
		var horizons []int
		for _, part := range splitList(raw) {
			h, err := strconv.Atoi(part)
			if err != nil || h < 1 || h > 365 {
				problems = append(problems, fmt.Errorf("%s: ignoring invalid horizon %q", KeyPushHorizons, part))
				continue
			}
			horizons = append(horizons, h)
		}
		if len(horizons) > 0 {
			sort.Sort(sort.Reverse(sort.IntSlice(horizons)))
			ps.Horizons = horizons
		}
	}

	if raw := strings.TrimSpace(values[KeyPushTitlePrefix]); raw != "" {
		ps.TitlePrefix = raw
	}

	if raw := strings.ToLower(strings.TrimSpace(values[KeyPushMode])); raw != "" {
		switch Mode(raw) {
		case ModeGlobal, ModeIndividual:
			ps.Mode = Mode(raw)
		default:
			problems = append(problems, fmt.Errorf("%s: unknown mode %q", KeyPushMode, raw))
		}
	}

	if raw := strings.ToLower(strings.TrimSpace(values[KeyPushScope])); raw != "" {
		switch Scope(raw) {
		case ScopeAll, ScopeAdmin:
			ps.Scope = Scope(raw)
		default:
			problems = append(problems, fmt.Errorf("%s: unknown scope %q", KeyPushScope, raw))
		}
	}

	return ps, problems
}

// splitList splits a comma or newline separated list and drops blanks.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Repository reads site configuration.
type Repository interface {
	GetPushSettings(ctx context.Context) (*PushSettings, error)
}
