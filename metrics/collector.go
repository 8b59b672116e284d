// Package metrics exports scheduler activity as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mklimuk/busq"
)

var _ busq.Observer = &Collector{}
var _ busq.Observer = &BusObserver{}

// Config holds the naming of the exported metrics.
type Config struct {
	// Namespace is the Prometheus namespace for all metrics.
	Namespace string
	// Subsystem is the Prometheus subsystem for all metrics.
	Subsystem string
	// Bus is the bus label used when the collector itself observes a
	// scheduler. Other schedulers get their own label through ForBus.
	Bus string
}

func DefaultConfig() Config {
	return Config{
		Namespace: "busq",
		Subsystem: "scheduler",
		Bus:       "default",
	}
}

// Collector implements busq.Observer for the scheduler labelled cfg.Bus.
// Further schedulers are observed through ForBus, each with its own label
// and queue depth.
type Collector struct {
	lock    sync.Mutex
	started map[*busq.Transaction]time.Time
	depth   map[string]int
	bus     string
	now     func() time.Time

	submitted *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	completed *prometheus.CounterVec
	queue     *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

// New registers the scheduler metrics on reg.
func New(reg prometheus.Registerer, cfg Config) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		started: map[*busq.Transaction]time.Time{},
		depth:   map[string]int{},
		bus:     cfg.Bus,
		now:     time.Now,
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submitted_total",
			Help:      "Transactions accepted into the queue.",
		}, []string{"bus", "direction"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rejected_total",
			Help:      "Submissions rejected because the record was already queued.",
		}, []string{"bus"}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "completed_total",
			Help:      "Finished transactions by result code.",
		}, []string{"bus", "direction", "code"}),
		queue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_depth",
			Help:      "Transactions currently queued, including the one in flight.",
		}, []string{"bus"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "latency_seconds",
			Help:      "Time from submission to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"bus", "direction"}),
	}
}

// BusObserver reports one scheduler's events under its own bus label.
type BusObserver struct {
	c   *Collector
	bus string
}

// ForBus returns an observer sharing the collector's metrics under the
// given bus label.
func (c *Collector) ForBus(bus string) *BusObserver {
	return &BusObserver{c: c, bus: bus}
}

func (o *BusObserver) Submitted(t *busq.Transaction) {
	o.c.submittedOn(o.bus, t)
}

func (o *BusObserver) Rejected(*busq.Transaction) {
	o.c.rejected.WithLabelValues(o.bus).Inc()
}

func (o *BusObserver) Completed(t *busq.Transaction) {
	o.c.completedOn(o.bus, t)
}

func (c *Collector) Submitted(t *busq.Transaction) {
	c.submittedOn(c.bus, t)
}

func (c *Collector) Rejected(*busq.Transaction) {
	c.rejected.WithLabelValues(c.bus).Inc()
}

func (c *Collector) Completed(t *busq.Transaction) {
	c.completedOn(c.bus, t)
}

func (c *Collector) submittedOn(bus string, t *busq.Transaction) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.started[t] = c.now()
	c.depth[bus]++
	c.submitted.WithLabelValues(bus, t.Direction.String()).Inc()
	c.queue.WithLabelValues(bus).Set(float64(c.depth[bus]))
}

func (c *Collector) completedOn(bus string, t *busq.Transaction) {
	c.lock.Lock()
	defer c.lock.Unlock()
	dir := t.Direction.String()
	if start, ok := c.started[t]; ok {
		c.latency.WithLabelValues(bus, dir).Observe(c.now().Sub(start).Seconds())
		delete(c.started, t)
	}
	c.depth[bus]--
	c.completed.WithLabelValues(bus, dir, t.ErrCode.String()).Inc()
	c.queue.WithLabelValues(bus).Set(float64(c.depth[bus]))
}
