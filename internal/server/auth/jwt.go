// Package auth issues and verifies the stateless HS256 bearer tokens handed
// out at login.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the account identity inside a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID int64       `json:"account_id"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
}

// TokenService signs tokens with a secret fixed at construction. Verification
// checks only the signature and the expiry; nothing is looked up in storage.
type TokenService struct {
	secret   []byte
	validity time.Duration
	leeway   time.Duration
	now      func() time.Time
}

func NewTokenService(secret []byte, validity, leeway time.Duration) *TokenService {
	return &TokenService{
		secret:   secret,
		validity: validity,
		leeway:   leeway,
		now:      time.Now,
	}
}

// Validity is the lifetime given to every issued token.
func (s *TokenService) Validity() time.Duration {
	return s.validity
}

func (s *TokenService) Issue(accountID int64, username string, role models.Role) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
		AccountID: accountID,
		Username:  username,
		Role:      role,
	})

	return token.SignedString(s.secret)
}

// Verify returns common.ErrTokenExpired for a well-signed token past its
// expiry (plus leeway) and common.ErrInvalidToken for anything else.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.AccountID == 0 || !claims.Role.Valid() {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
