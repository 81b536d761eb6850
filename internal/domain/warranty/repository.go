package warranty

import (
	"context"
	"time"
)

// Repository is the read side the notification engine needs from warranty storage.
type Repository interface {
	// ListExpiring returns non-lifetime warranties of active owners with
	// today < expiration <= today+horizonDays, ordered by owner then expiration.
	ListExpiring(ctx context.Context, today time.Time, horizonDays int) ([]ExpiringRecord, error)
}
