package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type directoryEnv struct {
	conn        *grpc.ClientConn
	adminToken  string
	memberToken string
}

func startDirectory(t *testing.T) *directoryEnv {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()

	store := memory.NewStore()
	audit := services.NewAuditLog(store, store, 100, logger)
	sessions := services.NewSessionRegistry(store, store, time.Hour, logger)
	tokens := auth.NewTokenService([]byte("directory-secret"), time.Hour, 0)
	accounts := services.NewAccountService(store, store, credentials.NewHasher(bcrypt.MinCost), tokens, sessions, audit, logger)
	roles := services.NewRoleGuard(store, store, audit, logger)

	_, err := accounts.BootstrapAdmin(ctx, services.RegisterRequest{Username: "root", Email: "root@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	_, err = accounts.Register(ctx, services.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	login := func(email string) string {
		res, err := accounts.Authenticate(ctx, services.AuthenticateRequest{Email: email, Password: "s3cret-pass"})
		require.NoError(t, err)
		return res.BearerToken
	}
	env := &directoryEnv{adminToken: login("root@example.com"), memberToken: login("alice@example.com")}

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("", nopLogger{}, accounts, DirectoryPolicy,
		RegisterDirectory(NewDirectoryService(accounts, roles, audit)))

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(srvCtx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	env.conn = conn

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return env
}

func (e *directoryEnv) call(t *testing.T, method, token string, req *structpb.Struct) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
	}
	if req == nil {
		req = &structpb.Struct{}
	}
	out := &structpb.Struct{}
	err := e.conn.Invoke(ctx, method, req, out)
	return out, err
}

func TestDirectory_WhoAmI(t *testing.T) {
	env := startDirectory(t)

	out, err := env.call(t, MethodWhoAmI, env.memberToken, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.GetFields()["username"].GetStringValue())
	assert.Equal(t, "member", out.GetFields()["role"].GetStringValue())
	assert.NotContains(t, out.GetFields(), "password_hash")

	_, err = env.call(t, MethodWhoAmI, "", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.call(t, MethodWhoAmI, "not-a-token", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestDirectory_ListUsersIsAdminOnly(t *testing.T) {
	env := startDirectory(t)

	_, err := env.call(t, MethodListUsers, env.memberToken, nil)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out, err := env.call(t, MethodListUsers, env.adminToken, nil)
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["users"].GetListValue().GetValues(), 2)
}

func TestDirectory_AuditLogs(t *testing.T) {
	env := startDirectory(t)

	_, err := env.call(t, MethodAuditLogs, env.memberToken, nil)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	req, err := structpb.NewStruct(map[string]any{"limit": 1})
	require.NoError(t, err)
	out, err := env.call(t, MethodAuditLogs, env.adminToken, req)
	require.NoError(t, err)
	records := out.GetFields()["records"].GetListValue().GetValues()
	require.Len(t, records, 1)
	assert.Equal(t, "LOGIN_SUCCESS", records[0].GetStructValue().GetFields()["action"].GetStringValue())

	bad, err := structpb.NewStruct(map[string]any{"limit": -1})
	require.NoError(t, err)
	_, err = env.call(t, MethodAuditLogs, env.adminToken, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
