package services

import (
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// IP and UserAgent on every request identify the caller's client and are
// copied into the audit trail.

type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	Profile   models.Profile
	IP        string
	UserAgent string
}

type AuthenticateRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// AuthResult is returned by a successful login. SessionToken identifies the
// revocable session; BearerToken is the stateless token the caller presents
// on later requests.
type AuthResult struct {
	Account      models.AccountView
	SessionToken string
	BearerToken  string
	ExpiresAt    time.Time
}

type ChangePasswordRequest struct {
	AccountID       int64
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

// ResetPasswordRequest sets a new password without the current one. The
// caller is responsible for having verified the reset code.
type ResetPasswordRequest struct {
	Email       string
	NewPassword string
	IP          string
	UserAgent   string
}

type UpdateRoleRequest struct {
	TargetID  int64
	NewRole   string
	ActorID   int64
	IP        string
	UserAgent string
}

type DeleteAccountRequest struct {
	TargetID  int64
	ActorID   int64
	IP        string
	UserAgent string
}

type DeleteOwnAccountRequest struct {
	AccountID int64
	IP        string
	UserAgent string
}

type AnonymizeRequest struct {
	TargetID  int64
	ActorID   int64
	IP        string
	UserAgent string
}

type AnonymizeResult struct {
	AccountID int64
	Username  string
	Email     string
}
