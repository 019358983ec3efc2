package mirror

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/myprojectmanager/mpm-release/internal/logger"
)

// MetricsPath serves Prometheus metrics.
const MetricsPath = "/metrics"

// handler routes metrics and file downloads.
func (m *mirror) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, m.metrics.handler())
	mux.HandleFunc("/", m.serveFile)

	return mux
}

// serveFile serves one file of the release directory. Directories,
// hidden files and nested paths are not found.
func (m *mirror) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)

		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if !published(name) {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(m.dir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, name, info.ModTime(), f)

	if r.Method == http.MethodGet && cw.succeeded() {
		m.metrics.observe(name, cw.written)
		logger.DebugKV(r.Context(), "File downloaded", "file", name, "bytes", cw.written, "remote", r.RemoteAddr)
	}
}

// countingWriter records the status and body size of a response.
type countingWriter struct {
	http.ResponseWriter

	status  int
	written int64
}

func (w *countingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)

	return n, err
}

// succeeded reports a 2xx response.
func (w *countingWriter) succeeded() bool {
	return w.status >= http.StatusOK && w.status < http.StatusMultipleChoices
}
