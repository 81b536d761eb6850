// internal/domain/user/user.go
package user

// User is the owner of warranties and of exactly one notification preference.
type User struct {
	ID          int64
	Email       string
	DisplayName string
	IsActive    bool
	IsAdmin     bool // Admin users form the "admin" push scope
}
