package observability

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for a museumfetch process.
type Metrics struct {
	// Fetch metrics
	PagesFetched       atomic.Int64
	PagesFailed        atomic.Int64
	BytesDownloaded    atomic.Int64
	AuthRefreshes      atomic.Int64
	TokenInvalidations atomic.Int64
	GovernorWaits      atomic.Int64

	// Collection metrics
	MuseumsExtracted atomic.Int64
	DetailFailures   atomic.Int64

	// Persistence metrics
	EntitiesInserted atomic.Int64
	EntitiesUpdated  atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type counter struct {
	key   string
	help  string
	value *atomic.Int64
}

func (m *Metrics) counters() []counter {
	return []counter{
		{"pages_fetched", "Pages fetched from the content API", &m.PagesFetched},
		{"pages_failed", "Page fetches that failed", &m.PagesFailed},
		{"bytes_downloaded", "Bytes downloaded", &m.BytesDownloaded},
		{"auth_refreshes", "Access tokens obtained", &m.AuthRefreshes},
		{"token_invalidations", "Access tokens discarded after 401/403", &m.TokenInvalidations},
		{"governor_waits", "Fetches delayed by the rate governor", &m.GovernorWaits},
		{"museums_extracted", "Museum records extracted from the list page", &m.MuseumsExtracted},
		{"detail_failures", "Museum or city detail tasks that failed", &m.DetailFailures},
		{"entities_inserted", "Entities inserted", &m.EntitiesInserted},
		{"entities_updated", "Entities updated", &m.EntitiesUpdated},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, c := range m.counters() {
		name := "museumfetch_" + c.key + "_total"
		fmt.Fprintf(w, "# HELP %s %s\n", name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, c.value.Load())
	}
}

// StartServer binds the metrics endpoint and serves it in the background.
// Only bind errors are returned.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Snapshot returns all counters keyed by name.
func (m *Metrics) Snapshot() map[string]int64 {
	snap := make(map[string]int64)
	for _, c := range m.counters() {
		snap[c.key] = c.value.Load()
	}
	return snap
}
