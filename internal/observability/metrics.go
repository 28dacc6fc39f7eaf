package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// LayerHitsTotal/LayerMissesTotal/LayerEvictionsTotal mirror the
	// teacher's internal/cache/metrics.go CounterVecs, generalized from a
	// single "cache" label to a "layer" label since this module composes
	// many layers per stack instead of one cache per provider.
	LayerHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachetower_layer_hits_total",
		Help: "Total number of reads served directly by a layer.",
	}, []string{"layer"})

	LayerMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachetower_layer_misses_total",
		Help: "Total number of reads a layer could not serve.",
	}, []string{"layer"})

	LayerEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachetower_layer_evictions_total",
		Help: "Total number of evictions applied to a layer.",
	}, []string{"layer"})

	// RemoteEchoSuppressedTotal/RemoteAppliedTotal instrument the
	// remote-eviction extension's echo-suppression protocol.
	RemoteEchoSuppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachetower_remote_echo_suppressed_total",
		Help: "Total number of self-published pub/sub messages suppressed on receipt.",
	}, []string{"channel"})

	RemoteAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cachetower_remote_applied_total",
		Help: "Total number of peer-originated pub/sub messages applied locally.",
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(LayerHitsTotal, LayerMissesTotal, LayerEvictionsTotal, RemoteEchoSuppressedTotal, RemoteAppliedTotal)
}

// LayerMetrics is a small per-layer-instance handle so each layer records
// its own label value without repeating the literal at every call site. A
// nil *LayerMetrics is a valid no-op, so wiring it is optional at every
// layer constructor.
type LayerMetrics struct {
	name string
}

// NewLayerMetrics returns a handle labeled name.
func NewLayerMetrics(name string) *LayerMetrics { return &LayerMetrics{name: name} }

func (m *LayerMetrics) Hit() {
	if m != nil {
		LayerHitsTotal.WithLabelValues(m.name).Inc()
	}
}

func (m *LayerMetrics) Miss() {
	if m != nil {
		LayerMissesTotal.WithLabelValues(m.name).Inc()
	}
}

func (m *LayerMetrics) Eviction() {
	if m != nil {
		LayerEvictionsTotal.WithLabelValues(m.name).Inc()
	}
}
