package common

// AuthorizationHeaderName is the gRPC/HTTP metadata key carrying the bearer
// token on inbound requests.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the token in the authorization header value.
const BearerPrefix = "Bearer "
