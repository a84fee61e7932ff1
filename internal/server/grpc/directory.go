package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DirectoryServiceName is the read-only account directory. Messages are
// google.protobuf.Struct so no generated code is needed.
const DirectoryServiceName = "gatekeeper.v1.Directory"

const (
	MethodWhoAmI    = "/" + DirectoryServiceName + "/WhoAmI"
	MethodListUsers = "/" + DirectoryServiceName + "/ListUsers"
	MethodAuditLogs = "/" + DirectoryServiceName + "/AuditLogs"
)

// DirectoryPolicy requires a bearer token for every directory method and the
// admin role for the listings.
var DirectoryPolicy = Policy{
	AdminOnly: []string{MethodListUsers, MethodAuditLogs},
}

type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (*models.AccountView, error)
}

type UserLister interface {
	ListUsers(ctx context.Context, actorID int64) ([]models.AccountView, error)
}

type AuditReader interface {
	Query(ctx context.Context, actorID int64, limit int) ([]models.AuditRecord, error)
}

type DirectoryServer interface {
	WhoAmI(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListUsers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AuditLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// DirectoryService serves the caller's own account, the user list and the
// audit trail. The interceptor has already verified the caller.
type DirectoryService struct {
	accounts AccountReader
	users    UserLister
	audit    AuditReader
}

func NewDirectoryService(a AccountReader, u UserLister, l AuditReader) *DirectoryService {
	return &DirectoryService{accounts: a, users: u, audit: l}
}

func (d *DirectoryService) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	claims, ok := guard.ClaimsFromContext(ctx)
	if !ok {
		return nil, StatusFromError(guard.ErrMissingToken)
	}
	view, err := d.accounts.GetAccount(ctx, claims.AccountID)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return toStruct(view)
}

func (d *DirectoryService) ListUsers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	claims, ok := guard.ClaimsFromContext(ctx)
	if !ok {
		return nil, StatusFromError(guard.ErrMissingToken)
	}
	users, err := d.users.ListUsers(ctx, claims.AccountID)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return toStruct(map[string]any{"users": users})
}

// AuditLogs reads an optional numeric "limit" field from the request.
func (d *DirectoryService) AuditLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims, ok := guard.ClaimsFromContext(ctx)
	if !ok {
		return nil, StatusFromError(guard.ErrMissingToken)
	}
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit < 0 {
		return nil, StatusFromError(fmt.Errorf("%w: limit must not be negative", common.ErrValidation))
	}
	records, err := d.audit.Query(ctx, claims.AccountID, limit)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return toStruct(map[string]any{"records": records})
}

// toStruct goes through JSON so struct tags decide the field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, StatusFromError(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, StatusFromError(err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return s, nil
}

func directoryHandler(method string, call func(DirectoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DirectoryServer), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
	}
}

var directoryServiceDesc = grpc.ServiceDesc{
	ServiceName: DirectoryServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: directoryHandler(MethodWhoAmI, DirectoryServer.WhoAmI)},
		{MethodName: "ListUsers", Handler: directoryHandler(MethodListUsers, DirectoryServer.ListUsers)},
		{MethodName: "AuditLogs", Handler: directoryHandler(MethodAuditLogs, DirectoryServer.AuditLogs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gatekeeper/v1/directory.proto",
}

// RegisterDirectory returns a registration callback for NewGRPCServer.
func RegisterDirectory(d DirectoryServer) func(grpc.ServiceRegistrar) {
	return func(r grpc.ServiceRegistrar) {
		r.RegisterService(&directoryServiceDesc, d)
	}
}
