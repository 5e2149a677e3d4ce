package mempool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// meterSource is the subset of Allocator the registry needs to export
// metrics, so it can hold pools of any T in one slice.
type meterSource interface {
	Meter() *Meter
}

type registry struct {
	mu    sync.Mutex
	pools map[string]meterSource

	alloc *prometheus.GaugeVec
	idle  *prometheus.GaugeVec
	inuse *prometheus.GaugeVec
	peak  *prometheus.GaugeVec
}

var defaultRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{
		pools: make(map[string]meterSource),
		alloc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squidcore", Subsystem: "mempool", Name: "allocated_total",
			Help: "Total objects ever allocated from this pool.",
		}, []string{"pool"}),
		idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squidcore", Subsystem: "mempool", Name: "idle",
			Help: "Currently idle (freed, unreclaimed) objects in this pool.",
		}, []string{"pool"}),
		inuse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squidcore", Subsystem: "mempool", Name: "inuse",
			Help: "Objects currently checked out of this pool.",
		}, []string{"pool"}),
		peak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squidcore", Subsystem: "mempool", Name: "peak_inuse",
			Help: "Highest inuse value observed for this pool.",
		}, []string{"pool"}),
	}
	return r
}

func (r *registry) register(label string, src meterSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[label] = src
}

// Collect refreshes the Prometheus gauges from every registered pool's
// Meter and returns the estimated total idle object count across all pools,
// which callers use to drive a shared Budget.
func Collect() int64 {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	var totalIdle int64
	for label, src := range defaultRegistry.pools {
		m := src.Meter()
		defaultRegistry.alloc.WithLabelValues(label).Set(float64(m.Alloc()))
		defaultRegistry.idle.WithLabelValues(label).Set(float64(m.Idle()))
		defaultRegistry.inuse.WithLabelValues(label).Set(float64(m.Inuse()))
		peak, _ := m.Peak()
		defaultRegistry.peak.WithLabelValues(label).Set(float64(peak))
		totalIdle += m.Idle()
	}
	return totalIdle
}

// RegisterCollectors registers the package's Prometheus gauge vectors onto
// reg so a caller's /metrics endpoint exposes pool-level allocation stats.
func RegisterCollectors(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		defaultRegistry.alloc, defaultRegistry.idle, defaultRegistry.inuse, defaultRegistry.peak,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
