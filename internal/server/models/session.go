package models

import "time"

// Session is revocation bookkeeping for a login. It is independent of the
// bearer token: revoking a session does not invalidate tokens already issued.
type Session struct {
	ID        int64
	AccountID int64
	Token     string
	IP        string
	UserAgent string
	ExpiresAt time.Time
	Active    bool
	CreatedAt time.Time
}
