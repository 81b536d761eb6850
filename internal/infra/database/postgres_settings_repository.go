package database

import (
	"context"
	"database/sql"
	"fmt"

	"warranty_reminder/internal/domain/settings"

	"github.com/lib/pq" // For pq.Array
	"github.com/sirupsen/logrus"
)

var pushSettingKeys = []string{
	settings.KeyPushEnabled,
	settings.KeyPushURLs,
	settings.KeyPushHorizons,
	settings.KeyPushTitlePrefix,
	settings.KeyPushMode,
	settings.KeyPushScope,
}

type PostgresSettingsRepository struct {
	retrier *Retrier
	logger  *logrus.Entry
}

func NewPostgresSettingsRepository(retrier *Retrier, logger *logrus.Entry) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{retrier: retrier, logger: logger}
}

// GetPushSettings reads the push keys of site_settings. No row is cached.
func (r *PostgresSettingsRepository) GetPushSettings(ctx context.Context) (*settings.PushSettings, error) {
	query := `SELECT key, value FROM site_settings WHERE key = ANY($1::varchar[])`

	var values map[string]string
	err := r.retrier.Do(ctx, "load push settings", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, pq.Array(pushSettingKeys))
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

func scanKeyValues(rows *sql.Rows) (map[string]string, error) {
	values := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("error scanning site setting: %w", err)
		}
		values[k] = v.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site settings: %w", err)
	}
	return values, nil
}

func buildPushSettings(values map[string]string, logger *logrus.Entry) *settings.PushSettings {
	ps, problems := settings.PushFromValues(values)
	for _, p := range problems {
		logger.WithError(p).Warn("Invalid push setting, using default")
	}
	return &ps
}
