// Package metrics exposes classification outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/yardmove/internal/classify"
)

// Recorder counts session outcomes and tracks list sizes. It implements
// classify.Notifier.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	zones      *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yardmove",
			Name:      "operations_total",
			Help:      "Classification operations by operation and outcome kind.",
		}, []string{"op", "kind"}),
		zones: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yardmove",
			Name:      "zones",
			Help:      "Zones currently held in each authoritative list.",
		}, []string{"list"}),
	}
	reg.MustRegister(
		r.operations,
		r.zones,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Notify implements classify.Notifier.
func (r *Recorder) Notify(o classify.Outcome) {
	r.operations.WithLabelValues(o.Op, o.Kind).Inc()
	r.zones.WithLabelValues("plain").Set(float64(o.Plain))
	r.zones.WithLabelValues("tagged").Set(float64(o.Tagged))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
