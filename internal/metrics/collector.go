// Package metrics exposes download engine counters through Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine metrics. A nil *Collector is valid and records
// nothing, so the engine never has to check.
type Collector struct {
	bytesTotal      prometheus.Counter
	chunkRetries    prometheus.Counter
	mirrorFailovers prometheus.Counter
	tasksTotal      *prometheus.CounterVec
	activeWorkers   prometheus.Gauge
}

// New builds the collector and registers it with reg. Passing nil uses the
// default registry.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes received from mirrors across all tasks.",
		}),
		chunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_retries_total",
			Help:      "Chunk attempts that failed mid-stream and were retried.",
		}),
		mirrorFailovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_failovers_total",
			Help:      "Times a worker moved a chunk to another mirror.",
		}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Chunk workers currently running.",
		}),
	}
	for _, collector := range []prometheus.Collector{c.bytesTotal, c.chunkRetries, c.mirrorFailovers, c.tasksTotal, c.activeWorkers} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) AddBytes(n int64) {
	if c == nil {
		return
	}
	c.bytesTotal.Add(float64(n))
}

func (c *Collector) ChunkRetry() {
	if c == nil {
		return
	}
	c.chunkRetries.Inc()
}

func (c *Collector) MirrorFailover() {
	if c == nil {
		return
	}
	c.mirrorFailovers.Inc()
}

func (c *Collector) TaskFinished(status string) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(status).Inc()
}

func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	c.activeWorkers.Inc()
}

func (c *Collector) WorkerDone() {
	if c == nil {
		return
	}
	c.activeWorkers.Dec()
}
