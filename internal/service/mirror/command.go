package mirror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
)

const (
	// RefreshInterval is how often health statuses follow the release directory.
	RefreshInterval = 15 * time.Second
	// shutdownTimeout bounds the HTTP graceful shutdown.
	shutdownTimeout = 10 * time.Second
	// readHeaderTimeout bounds slow clients.
	readHeaderTimeout = 10 * time.Second
)

// Options controls the mpm-mirror process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ReleaseDir overrides the served directory.
	ReleaseDir string
	// HTTPAddress overrides the HTTP listen address.
	HTTPAddress string
	// GRPCAddress overrides the gRPC listen address.
	GRPCAddress string
}

// ErrNoListenAddress indicates missing listener configuration.
var ErrNoListenAddress = errors.New("no listen address configured")

// Run starts both listeners and blocks until ctx is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "mpm-mirror")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	dir := settings.ReleaseDir
	if opts.ReleaseDir != "" {
		dir = opts.ReleaseDir
	}

	httpAddress, err := resolveListenAddress(settings.Mirror.HTTPAddress, opts.HTTPAddress)
	if err != nil {
		return fmt.Errorf("resolve HTTP address: %w", err)
	}

	grpcAddress, err := resolveListenAddress(settings.Mirror.GRPCAddress, opts.GRPCAddress)
	if err != nil {
		return fmt.Errorf("resolve gRPC address: %w", err)
	}

	lc := net.ListenConfig{}

	httpListener, err := lc.Listen(ctx, "tcp", httpAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpAddress, err)
	}

	grpcListener, err := lc.Listen(ctx, "tcp", grpcAddress)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on %s: %w", grpcAddress, err)
	}

	logger.InfoKV(ctx, "Release mirror listening",
		"http_address", httpListener.Addr().String(),
		"grpc_address", grpcListener.Addr().String(),
		"release_dir", dir)

	return newMirror(dir).serve(ctx, httpListener, grpcListener, RefreshInterval)
}

// serve runs both servers on the given listeners and stops them gracefully
// when ctx is canceled.
func (m *mirror) serve(ctx context.Context, httpListener, grpcListener net.Listener, refreshEvery time.Duration) error {
	m.refresh(ctx)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, m.health)

	httpServer := &http.Server{
		Handler:           m.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errs := make(chan error, 2)

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("serve gRPC: %w", err)
			return
		}

		errs <- nil
	}()

	go func() {
		if err := httpServer.Serve(httpListener); !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("serve HTTP: %w", err)
			return
		}

		errs <- nil
	}()

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	var serveErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			m.refresh(ctx)
		case serveErr = <-errs:
			break loop
		}
	}

	logger.Info(ctx, "Shutting down release mirror")

	m.health.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown HTTP: %w", err))
	}

	logger.Info(ctx, "Release mirror stopped")

	return serveErr
}

// resolveListenAddress prefers override, otherwise binds on all interfaces
// at the port of configAddr (e.g. "mirror.local:8080" -> ":8080").
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoListenAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
