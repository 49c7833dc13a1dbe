package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubChecker struct {
	mu  sync.Mutex
	err error
}

func (s *stubChecker) Health(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubChecker) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()

	srv, err := NewServer("0", zap.NewNop())
	require.NoError(t, err)

	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)

	conn, err := grpc.NewClient("localhost:"+port, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func TestHealthServing(t *testing.T) {
	srv, client := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	postgres := &stubChecker{}
	mongo := &stubChecker{}
	watcher := NewWatcher(srv.Health(), map[string]Checker{"postgres": postgres, "mongodb": mongo}, zap.NewNop())

	assert.True(t, watcher.CheckOnce(ctx))

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "mongodb"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestHealthNotServingWhenStoreDown(t *testing.T) {
	srv, client := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	postgres := &stubChecker{}
	mongo := &stubChecker{err: errors.New("no reachable servers")}
	watcher := NewWatcher(srv.Health(), map[string]Checker{"postgres": postgres, "mongodb": mongo}, zap.NewNop())

	assert.False(t, watcher.CheckOnce(ctx))

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	mongo.set(nil)
	assert.True(t, watcher.CheckOnce(ctx))

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestWatcherStartPolls(t *testing.T) {
	srv, client := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongo := &stubChecker{err: errors.New("down")}
	NewWatcher(srv.Health(), map[string]Checker{"mongodb": mongo}, zap.NewNop()).Start(ctx, 20*time.Millisecond)

	mongo.set(nil)

	assert.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}
