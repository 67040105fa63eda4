package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the evaluator's Prometheus collectors.
type Metrics struct {
	graphs   *prometheus.CounterVec
	nodes    *prometheus.CounterVec
	elements prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates the evaluator collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		graphs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arenagraph_graphs_computed_total",
			Help: "Graph evaluations by result",
		}, []string{"result"}),
		nodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arenagraph_nodes_computed_total",
			Help: "Operator nodes computed, by operator",
		}, []string{"op"}),
		elements: f.NewCounter(prometheus.CounterOpts{
			Name: "arenagraph_elements_processed_total",
			Help: "Output elements written by operator kernels",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arenagraph_graph_compute_duration_seconds",
			Help:    "Wall time of graph evaluations",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
}

func (m *Metrics) observeNode(op string, elements int) {
	if m == nil {
		return
	}
	m.nodes.WithLabelValues(op).Inc()
	m.elements.Add(float64(elements))
}

func (m *Metrics) observeGraph(seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.graphs.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
}
