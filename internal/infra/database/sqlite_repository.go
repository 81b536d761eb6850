package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/settings"
	"warranty_reminder/internal/domain/warranty"

	"github.com/sirupsen/logrus"
)

const sqliteDisplayName = `COALESCE(NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), ''), NULLIF(u.username, ''), u.email)`

// SQLiteWarrantyRepository serves the same contract as the Postgres one on an embedded database.
type SQLiteWarrantyRepository struct {
	retrier *Retrier
}

func NewSQLiteWarrantyRepository(retrier *Retrier) *SQLiteWarrantyRepository {
	return &SQLiteWarrantyRepository{retrier: retrier}
}

func (r *SQLiteWarrantyRepository) ListExpiring(ctx context.Context, today time.Time, horizonDays int) ([]warranty.ExpiringRecord, error) {
	// Dates are stored as YYYY-MM-DD text, so string comparison is date comparison.
	query := `SELECT u.id, u.email, ` + sqliteDisplayName + `, w.product_name, w.expiration_date
               FROM warranties w
               JOIN users u ON u.id = w.user_id
               WHERE u.is_active = 1
                 AND w.is_lifetime = 0
                 AND w.expiration_date IS NOT NULL
                 AND substr(w.expiration_date, 1, 10) > ?
                 AND substr(w.expiration_date, 1, 10) <= ?
               ORDER BY u.id, w.expiration_date, w.product_name`

	from, to := horizonBounds(today, horizonDays)
	var out []warranty.ExpiringRecord
	err := r.retrier.Do(ctx, "list expiring warranties", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, from, to)
		if err != nil {
			return fmt.Errorf("error querying expiring warranties: %w", err)
		}
		defer rows.Close()
		out, err = scanExpiring(rows, parseDateValue)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SQLitePreferenceRepository struct {
	retrier *Retrier
}

func NewSQLitePreferenceRepository(retrier *Retrier) *SQLitePreferenceRepository {
	return &SQLitePreferenceRepository{retrier: retrier}
}

func (r *SQLitePreferenceRepository) ListActiveUsersWithPreferences(ctx context.Context) ([]preference.UserPreference, error) {
	query := userPreferenceSelect(sqliteDisplayName) + `
		WHERE u.is_active = 1
		ORDER BY u.id`

	var out []preference.UserPreference
	err := r.retrier.Do(ctx, "list active users with preferences", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("error listing active users with preferences: %w", err)
		}
		defer rows.Close()
		out, err = scanUserPreferences(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SQLiteSettingsRepository struct {
	retrier *Retrier
	logger  *logrus.Entry
}

func NewSQLiteSettingsRepository(retrier *Retrier, logger *logrus.Entry) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{retrier: retrier, logger: logger}
}

func (r *SQLiteSettingsRepository) GetPushSettings(ctx context.Context) (*settings.PushSettings, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pushSettingKeys)), ",")
	query := `SELECT key, value FROM site_settings WHERE key IN (` + placeholders + `)`
	args := make([]any, len(pushSettingKeys))
	for i, k := range pushSettingKeys {
		args[i] = k
	}

	var values map[string]string
	err := r.retrier.Do(ctx, "load push settings", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("error querying site settings: %w", err)
		}
		defer rows.Close()
		values, err = scanKeyValues(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildPushSettings(values, r.logger), nil
}
