package mirror

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/myprojectmanager/mpm-release/internal/domain/release"
	"github.com/myprojectmanager/mpm-release/internal/repository/manifest"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

// releaseDir writes files into a fresh release directory.
func releaseDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	return dir
}

func publishManifest(t *testing.T, dir string, files ...string) {
	t.Helper()

	m := release.NewManifest("1.0.0", "abc1234", "2026-01-01T00:00:00Z")
	for _, name := range files {
		m.Add("linux/amd64", name, []byte(name))
	}

	require.NoError(t, manifest.NewFileRepository(dir).Save(context.Background(), m))
}

func status(t *testing.T, m *mirror, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := m.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)

	return resp.GetStatus()
}

// TestRefresh follows the manifest and the files on disk.
func TestRefresh(t *testing.T) {
	t.Parallel()

	dir := releaseDir(t, map[string]string{
		"mpm-go-linux-amd64":  "linux",
		common.MarkerFilename: "123",
	})

	m := newMirror(dir)
	m.refresh(context.Background())

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, m, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, m, "mpm-go-linux-amd64"))

	_, err := m.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: common.MarkerFilename})
	require.Error(t, err)

	publishManifest(t, dir, "mpm-go-linux-amd64", "mpm-go-windows-amd64.exe")
	m.refresh(context.Background())

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, m, ""))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, m, "mpm-go-windows-amd64.exe"))

	require.NoError(t, os.Remove(filepath.Join(dir, "mpm-go-linux-amd64")))
	m.refresh(context.Background())

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, m, "mpm-go-linux-amd64"))
}

// TestServeFile serves published files only and counts downloads.
func TestServeFile(t *testing.T) {
	t.Parallel()

	dir := releaseDir(t, map[string]string{
		"mpm-go-darwin-arm64": "darwin binary",
		common.MarkerFilename: "123",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "file"), nil, 0o600))

	m := newMirror(dir)
	server := httptest.NewServer(m.handler())
	t.Cleanup(server.Close)

	get := func(path string) (int, string) {
		resp, err := http.Get(server.URL + path) //nolint:noctx // Test helper.
		require.NoError(t, err)

		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, string(body)
	}

	code, body := get("/mpm-go-darwin-arm64")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "darwin binary", body)

	for _, path := range []string{"/", "/nested", "/nested/file", "/" + common.MarkerFilename, "/missing", "/../etc/passwd"} {
		code, _ = get(path)
		require.Equal(t, http.StatusNotFound, code, path)
	}

	resp, err := http.Post(server.URL+"/mpm-go-darwin-arm64", "text/plain", nil) //nolint:noctx // Test helper.
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	require.InDelta(t, 1, testutil.ToFloat64(m.metrics.downloadsTotal.WithLabelValues("mpm-go-darwin-arm64")), 0)
	require.InDelta(t, float64(len("darwin binary")), testutil.ToFloat64(m.metrics.bytesTotal), 0)

	code, body = get(MetricsPath)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `mpm_mirror_downloads_total{file="mpm-go-darwin-arm64"} 1`)
	require.Contains(t, body, "mpm_mirror_download_bytes_total 13")
}

// TestServe runs both listeners and stops on cancellation.
func TestServe(t *testing.T) {
	t.Parallel()

	dir := releaseDir(t, map[string]string{"mpm-go-linux-arm64": "arm"})
	publishManifest(t, dir, "mpm-go-linux-arm64")

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- newMirror(dir).serve(ctx, httpListener, grpcListener, time.Hour)
	}()

	client, err := common.Dial(ctx, grpcListener.Addr().String(), common.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		return client.CheckHealth(ctx, "") == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, client.CheckHealth(ctx, "mpm-go-linux-arm64"))

	resp, err := http.Get("http://" + httpListener.Addr().String() + "/mpm-go-linux-arm64") //nolint:noctx // Test helper.
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("mirror did not stop")
	}
}

// TestResolveListenAddress prefers overrides and keeps only the port.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	got, err := resolveListenAddress("mirror.local:8080", "")
	require.NoError(t, err)
	require.Equal(t, ":8080", got)

	got, err = resolveListenAddress(":8080", "127.0.0.1:9090")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", got)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoListenAddress)

	_, err = resolveListenAddress("no-port", "")
	require.Error(t, err)
}
