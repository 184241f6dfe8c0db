package models

import "time"

// AccessToken records a one-time share link. Only the jti is stored; the
// signed token itself is handed to the caller once.
type AccessToken struct {
	JTI         string
	JobID       string
	WorkspaceID string
	IssuedBy    string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// Active reports whether the token can still be used at now.
func (t *AccessToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
