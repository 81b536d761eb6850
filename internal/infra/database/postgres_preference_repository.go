package database

import (
	"context"
	"database/sql"
	"fmt"

	"warranty_reminder/internal/domain/preference"
)

const pgDisplayName = `COALESCE(NULLIF(TRIM(CONCAT_WS(' ', u.first_name, u.last_name)), ''), NULLIF(u.username, ''), u.email)`

type PostgresPreferenceRepository struct {
	retrier *Retrier
}

func NewPostgresPreferenceRepository(retrier *Retrier) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{retrier: retrier}
}

func (r *PostgresPreferenceRepository) ListActiveUsersWithPreferences(ctx context.Context) ([]preference.UserPreference, error) {
	query := userPreferenceSelect(pgDisplayName) + `
		WHERE u.is_active = TRUE
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
