package database

import (
	"database/sql"
	"fmt"
	"time"

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/user"
	"warranty_reminder/internal/domain/warranty"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// userPreferenceSelect is the users LEFT JOIN user_preferences projection shared by
// both dialects; displayName is the dialect's display-name expression over u.
func userPreferenceSelect(displayName string) string {
	return `SELECT u.id, u.email, ` + displayName + `, u.is_active, u.is_admin,
		p.user_id, p.notification_channel, p.email_frequency, p.email_time, p.email_timezone,
		p.push_frequency, p.push_time, p.push_timezone, p.expiring_soon_days
	FROM users u
	LEFT JOIN user_preferences p ON p.user_id = u.id`
}

// scanUserPreference scans one users LEFT JOIN user_preferences row.
func scanUserPreference(s rowScanner) (preference.UserPreference, error) {
	var (
		u       user.User
		prefUID sql.NullInt64
		channel, emailFreq, emailTime, emailTZ,
		pushFreq, pushTime, pushTZ sql.NullString
		horizon sql.NullInt64
	)
	if err := s.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.IsActive, &u.IsAdmin,
		&prefUID, &channel, &emailFreq, &emailTime, &emailTZ,
		&pushFreq, &pushTime, &pushTZ, &horizon,
	); err != nil {
		return preference.UserPreference{}, fmt.Errorf("error scanning user preference row: %w", err)
	}

	up := preference.UserPreference{User: u}
	if prefUID.Valid {
		up.Preference = &preference.Preference{
			UserID:        prefUID.Int64,
			Channels:      preference.Selector(channel.String),
			EmailCadence:  preference.Cadence(emailFreq.String),
			EmailTime:     emailTime.String,
			EmailTimezone: emailTZ.String,
			PushCadence:   preference.Cadence(pushFreq.String),
			PushTime:      pushTime.String,
			PushTimezone:  pushTZ.String,
			HorizonDays:   int(horizon.Int64),
		}
	}
	return up, nil
}

func scanUserPreferences(rows *sql.Rows) ([]preference.UserPreference, error) {
	out := make([]preference.UserPreference, 0)
	for rows.Next() {
		up, err := scanUserPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user preference rows: %w", err)
	}
	return out, nil
}

// scanExpiring scans expiring-warranty rows. parseDate converts the driver's
// representation of the expiration column.
func scanExpiring(rows *sql.Rows, parseDate func(any) (time.Time, error)) ([]warranty.ExpiringRecord, error) {
	out := make([]warranty.ExpiringRecord, 0)
	for rows.Next() {
		var (
			r   warranty.ExpiringRecord
			exp any
		)
		if err := rows.Scan(&r.UserID, &r.Email, &r.DisplayName, &r.ProductName, &exp); err != nil {
			return nil, fmt.Errorf("error scanning expiring warranty row: %w", err)
		}
		t, err := parseDate(exp)
		if err != nil {
			return nil, fmt.Errorf("error parsing expiration date for user %d: %w", r.UserID, err)
		}
		r.ExpirationDate = t
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiring warranty rows: %w", err)
	}
	return out, nil
}

// parseDateValue accepts time.Time, or text/bytes in YYYY-MM-DD form.
func parseDateValue(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return warranty.DateOnly(d), nil
	case string:
		return parseDateText(d)
	case []byte:
		return parseDateText(string(d))
	default:
		return time.Time{}, fmt.Errorf("unexpected date type %T", v)
	}
}

func parseDateText(s string) (time.Time, error) {
	if len(s) >= 10 {
		s = s[:10]
	}
	return time.Parse("2006-01-02", s)
}
