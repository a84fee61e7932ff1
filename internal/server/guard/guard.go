// Package guard turns a raw authorization header into verified claims and
// gates handlers on them. Handlers receive the claims as an argument instead
// of reading them from ambient state.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// TokenVerifier is satisfied by *services.AccountService.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// ErrMissingToken is returned when no bearer token was presented.
var ErrMissingToken = fmt.Errorf("%w: missing bearer token", common.ErrInvalidToken)

// BearerFromHeader extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func BearerFromHeader(value string) (string, error) {
	value = strings.TrimSpace(value)
	prefix := common.BearerPrefix
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(value[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Authorize verifies the header and, when adminOnly is set, requires the
// admin role.
func Authorize(v TokenVerifier, header string, adminOnly bool) (*auth.Claims, error) {
	token, err := BearerFromHeader(header)
	if err != nil {
		return nil, err
	}
	claims, err := v.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	if adminOnly && claims.Role != models.RoleAdmin {
		return nil, common.ErrForbidden
	}
	return claims, nil
}

// Handler is an operation that runs on behalf of a verified caller.
type Handler[Req, Resp any] func(ctx context.Context, claims *auth.Claims, req Req) (Resp, error)

// Endpoint is a Handler before authentication: it takes the raw
// authorization header.
type Endpoint[Req, Resp any] func(ctx context.Context, header string, req Req) (Resp, error)

func Authenticated[Req, Resp any](v TokenVerifier, h Handler[Req, Resp]) Endpoint[Req, Resp] {
	return wrap(v, h, false)
}

func AdminOnly[Req, Resp any](v TokenVerifier, h Handler[Req, Resp]) Endpoint[Req, Resp] {
	return wrap(v, h, true)
}

func wrap[Req, Resp any](v TokenVerifier, h Handler[Req, Resp], adminOnly bool) Endpoint[Req, Resp] {
	return func(ctx context.Context, header string, req Req) (Resp, error) {
		claims, err := Authorize(v, header, adminOnly)
		if err != nil {
			var zero Resp
			return zero, err
		}
		return h(ctx, claims, req)
	}
}

type ctxKey struct{}

// WithClaims stores claims for transports that can only pass a context, such
// as gRPC interceptors.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*auth.Claims)
	return claims, ok
}
