package server_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const shutdownBudget = domain.ShutdownHTTPTimeout + domain.ShutdownOTELTimeout

func TestRunGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ln := newTestListener(t)
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, server.Params{Name: "testhost"}, ln)
	}()

	waitForStatus(t, addr, "/healthz", http.StatusOK)

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), shutdownBudget)
	case <-time.After(shutdownBudget + 5*time.Second):
		t.Fatal("shutdown did not complete within budget")
	}
}

func TestRunMainCompletes(t *testing.T) {
	ran := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(context.Background(), server.Params{
			Name: "testhost",
			Main: func(_ context.Context, deps server.Deps) error {
				assert.NotNil(t, deps.Config)
				assert.NotNil(t, deps.Logger)
				close(ran)
				return nil
			},
		}, newTestListener(t))
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(shutdownBudget + 5*time.Second):
		t.Fatal("host did not exit after main returned")
	}
	select {
	case <-ran:
	default:
		t.Fatal("main never ran")
	}
}

func TestRunMainError(t *testing.T) {
	mainErr := errors.New("scripted login failed")

	err := server.Run(context.Background(), server.Params{
		Name: "testhost",
		Main: func(context.Context, server.Deps) error { return mainErr },
	}, newTestListener(t))

	assert.ErrorIs(t, err, mainErr)
}

func TestReadiness(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ln := newTestListener(t)
	addr := ln.Addr().String()
	markReady := make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, server.Params{
			Name: "testhost",
			Main: func(ctx context.Context, deps server.Deps) error {
				<-markReady
				deps.Ready()
				<-ctx.Done()
				return nil
			},
		}, ln)
	}()

	waitForStatus(t, addr, "/healthz", http.StatusOK)
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, addr, "/readyz"))

	close(markReady)
	waitForStatus(t, addr, "/readyz", http.StatusOK)

	cancel()
	require.NoError(t, <-errCh)
}

func TestRunConfigError(t *testing.T) {
	t.Setenv("AUTHKIT_SMS__PROVIDER", "carrier-pigeon")

	err := server.Run(context.Background(), server.Params{Name: "testhost"}, newTestListener(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// newTestListener creates a TCP listener on an OS-assigned port.
func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func statusOf(t *testing.T, addr, path string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, fmt.Sprintf("http://%s%s", addr, path), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

// waitForStatus polls path until it returns want.
func waitForStatus(t *testing.T, addr, path string, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return statusOf(t, addr, path) == want },
		5*time.Second, 20*time.Millisecond, "%s never returned %d", path, want)
}
