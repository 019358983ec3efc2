package mirror

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/repository/manifest"
)

// mirror publishes one release directory.
// It is unexported to keep the transports decoupled from the implementation.
type mirror struct {
	// dir is the served release directory.
	dir string
	// manifests reads the release manifest from dir.
	manifests manifest.Repository
	// health backs the gRPC health service.
	health *health.Server
	// metrics counts downloads.
	metrics *metrics

	// mu guards known.
	mu sync.Mutex
	// known are the service names registered so far.
	known map[string]struct{}
}

func newMirror(dir string) *mirror {
	m := &mirror{
		dir:       dir,
		manifests: manifest.NewFileRepository(dir),
		health:    health.NewServer(),
		metrics:   newMetrics(),
		known:     make(map[string]struct{}),
	}

	m.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return m
}

// published reports whether name may be served: a plain file name that is
// not hidden, so run markers stay private.
func published(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

// files lists the published regular files of the release directory.
func (m *mirror) files() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Type().IsRegular() && published(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// refresh recomputes every health status from the release directory.
func (m *mirror) refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make(map[string]healthpb.HealthCheckResponse_ServingStatus, len(m.known))
	for name := range m.known {
		statuses[name] = healthpb.HealthCheckResponse_NOT_SERVING
	}

	overall := healthpb.HealthCheckResponse_NOT_SERVING

	current, err := m.manifests.Load(ctx)

	switch {
	case err == nil:
		overall = healthpb.HealthCheckResponse_SERVING

		for _, name := range current.FileNames() {
			statuses[name] = healthpb.HealthCheckResponse_NOT_SERVING
		}
	case errors.Is(err, manifest.ErrNotFound):
		logger.DebugKV(ctx, "Release manifest not published yet", "dir", m.dir)
	default:
		logger.WarnKV(ctx, "Unable to read release manifest", "dir", m.dir, "error", err)
	}

	files, err := m.files()
	if err != nil {
		logger.WarnKV(ctx, "Unable to list release directory", "dir", m.dir, "error", err)
	}

	for _, name := range files {
		statuses[name] = healthpb.HealthCheckResponse_SERVING
	}

	m.health.SetServingStatus("", overall)

	for name, status := range statuses {
		m.health.SetServingStatus(name, status)
		m.known[name] = struct{}{}
	}

	logger.DebugKV(ctx, "Health refreshed", "overall", overall.String(), "files", len(files))
}
