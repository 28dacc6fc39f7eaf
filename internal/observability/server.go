package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsServer builds an HTTP server exposing this package's Prometheus
// registry at /metrics, adapted from the teacher's internal/metrics's
// NewHTTPServer (there generalized to cmd/cachetowerd instead of the
// subtitle-download metrics it originally served).
func NewMetricsServer(address string, port int) *http.Server {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", address, port),
		Handler: mux,
	}
}
