package preference

import "context"

// Repository defines the preference reads the notification engine performs.
type Repository interface {
	// ListActiveUsersWithPreferences returns every active user with their stored preference (or nil).
	ListActiveUsersWithPreferences(ctx context.Context) ([]UserPreference, error)
}
