package grpc

import (
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[common.Kind]codes.Code{
	common.KindValidation:         codes.InvalidArgument,
	common.KindDuplicate:          codes.AlreadyExists,
	common.KindAuth:               codes.Unauthenticated,
	common.KindAuthorization:      codes.PermissionDenied,
	common.KindInvariantViolation: codes.FailedPrecondition,
	common.KindNotFound:           codes.NotFound,
	common.KindTokenExpired:       codes.Unauthenticated,
	common.KindTokenInvalid:       codes.Unauthenticated,
}

// StatusFromError converts a service error into a gRPC status. Store and
// unknown errors become Internal with a generic message.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	code, ok := kindCodes[common.KindOf(err)]
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
