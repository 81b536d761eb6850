package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"warranty_reminder/internal/domain/warranty"
)

type PostgresWarrantyRepository struct {
	retrier *Retrier
}

func NewPostgresWarrantyRepository(retrier *Retrier) *PostgresWarrantyRepository {
	return &PostgresWarrantyRepository{retrier: retrier}
}

// ListExpiring returns non-lifetime warranties of active owners expiring in (today, today+horizonDays].
func (r *PostgresWarrantyRepository) ListExpiring(ctx context.Context, today time.Time, horizonDays int) ([]warranty.ExpiringRecord, error) {
	query := `SELECT u.id, u.email, ` + pgDisplayName + `, w.product_name, w.expiration_date
               FROM warranties w
               JOIN users u ON u.id = w.user_id
               WHERE u.is_active = TRUE
                 AND w.is_lifetime = FALSE
                 AND w.expiration_date IS NOT NULL
                 AND w.expiration_date > $1::date
                 AND w.expiration_date <= $2::date
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

// horizonBounds returns the exclusive lower and inclusive upper date as YYYY-MM-DD.
func horizonBounds(today time.Time, horizonDays int) (string, string) {
	d := warranty.DateOnly(today)
	return d.Format("2006-01-02"), d.AddDate(0, 0, horizonDays).Format("2006-01-02")
}
