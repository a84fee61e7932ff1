// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role is the RBAC role of an account.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// ParseRole normalizes case and surrounding whitespace and rejects anything
// that is not one of the two roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Profile holds the optional personal fields of an account.
type Profile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Account struct {
	ID                int64
	Username          string
	Email             string
	PasswordHash      string
	Role              Role
	Active            bool
	EmailVerified     bool
	Profile           Profile
	ConsentGivenAt    time.Time
	PrivacyAcceptedAt time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AccountView is what leaves the core: the account without its digest.
type AccountView struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	Active        bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	Profile       Profile    `json:"profile"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (a *Account) View() AccountView {
	return AccountView{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		Profile:       a.Profile,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Anonymized is the replacement for an account's personal data. Company and
// Phone are cleared.
type Anonymized struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// AnonymizedDomain is the mail domain of every anonymized email address.
const AnonymizedDomain = "deleted.local"

var anonymizedUsername = regexp.MustCompile(`(?i)^(user|admin)_anonymized_\d+$`)

// IsReservedIdentity reports whether username or email has the shape of an
// anonymization placeholder. Such values cannot be chosen by a registrant.
func IsReservedIdentity(username, email string) bool {
	if anonymizedUsername.MatchString(username) {
		return true
	}
	at := strings.LastIndex(email, "@")
	return at >= 0 && strings.EqualFold(email[at+1:], AnonymizedDomain)
}

// AnonymizedFor derives the placeholder values from the account id. Admins
// get a distinct prefix so anonymized admins stay recognizable in reviews.
func AnonymizedFor(id int64, role Role) Anonymized {
	if role == RoleAdmin {
		return Anonymized{
			Username:  fmt.Sprintf("admin_anonymized_%d", id),
			Email:     fmt.Sprintf("admin_anonymized_%d@%s", id, AnonymizedDomain),
			FirstName: "Administrator",
			LastName:  "Anonymized",
		}
	}
	return Anonymized{
		Username:  fmt.Sprintf("user_anonymized_%d", id),
		Email:     fmt.Sprintf("anonymized_%d@%s", id, AnonymizedDomain),
		FirstName: "User",
		LastName:  "Anonymized",
	}
}
