package client

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*health.Server, *HealthProbe) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	p := newHealthProbeFromConn(conn)
	t.Cleanup(func() { _ = p.Close() })
	return hs, p
}

func TestHealthProbe_Serving(t *testing.T) {
	_, p := startHealth(t)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestHealthProbe_NotServing(t *testing.T) {
	hs, p := startHealth(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	err := p.Ping(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.Equal(t, ErrUnavailable, mapError(status.Error(codes.Unavailable, "down")))
	assert.Equal(t, ErrUnavailable, mapError(status.Error(codes.DeadlineExceeded, "slow")))
	assert.Equal(t, ErrUnauthorized, mapError(status.Error(codes.Unauthenticated, "no")))
	assert.Contains(t, mapError(status.Error(codes.Internal, "boom")).Error(), "rpc error")
}
