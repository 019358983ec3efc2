package mirror

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the mirror's collectors on a private registry.
type metrics struct {
	registry *prometheus.Registry

	downloadsTotal *prometheus.CounterVec
	bytesTotal     prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpm_mirror_downloads_total",
				Help: "Total number of completed file downloads",
			},
			[]string{"file"},
		),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mpm_mirror_download_bytes_total",
			Help: "Total number of bytes sent for file downloads",
		}),
	}

	m.registry.MustRegister(m.downloadsTotal, m.bytesTotal)

	return m
}

// observe records one download.
func (m *metrics) observe(file string, written int64) {
	m.downloadsTotal.WithLabelValues(file).Inc()
	m.bytesTotal.Add(float64(written))
}

// handler serves the registry in the exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
