//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestCheckHealth talks to a real health server.
func TestCheckHealth(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("mpm-linux-amd64.tar.gz", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		_ = srv.Serve(lis)
	}()

	t.Cleanup(srv.Stop)

	c, err := Dial(context.Background(), lis.Addr().String(), WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	require.NoError(t, c.CheckHealth(context.Background(), ""))
	require.ErrorIs(t, c.CheckHealth(context.Background(), "mpm-linux-amd64.tar.gz"), ErrNotServing)
	require.Error(t, c.CheckHealth(context.Background(), "unknown"))
}
