package metric

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/mdstore/diskbuffer"
)

var _ diskbuffer.MetricsObserver = (*PrometheusObserver)(nil)

// PrometheusObserver implements diskbuffer.MetricsObserver.
type PrometheusObserver struct {
	opLatency   *prometheus.HistogramVec
	events      *prometheus.CounterVec
	evictions   prometheus.Counter
	evicted     prometheus.Counter
	flushes     *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	queueEvents prometheus.Gauge
}

// NewPrometheusObserver creates the collectors under namespace and registers
// them with reg. A nil reg uses the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of block and flush operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events moved between memory and the event file",
		}, []string{"direction"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Handles whose events were dropped from memory",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_events_total",
			Help:      "Events dropped from memory by eviction",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Total flushes completed",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_queue_depth",
			Help:      "Handles queued in the write buffer",
		}),
		queueEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_queue_events",
			Help:      "Events resident in memory for queued handles",
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		o.opLatency, o.events, o.evictions, o.evicted, o.flushes, o.queueDepth, o.queueEvents,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return o, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// OnSave records a block write.
func (o *PrometheusObserver) OnSave(events uint64, d time.Duration, err error) {
	o.opLatency.WithLabelValues("save", status(err)).Observe(d.Seconds())
	if err == nil {
		o.events.WithLabelValues("save").Add(float64(events))
	}
}

// OnLoad records a block read.
func (o *PrometheusObserver) OnLoad(events uint64, d time.Duration, err error) {
	o.opLatency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	if err == nil {
		o.events.WithLabelValues("load").Add(float64(events))
	}
}

// OnEviction records a handle dropped from memory.
func (o *PrometheusObserver) OnEviction(events uint64) {
	o.evictions.Inc()
	o.evicted.Add(float64(events))
}

// OnFlush records a buffer flush.
func (o *PrometheusObserver) OnFlush(_ int, d time.Duration, err error) {
	o.opLatency.WithLabelValues("flush", status(err)).Observe(d.Seconds())
	o.flushes.WithLabelValues(status(err)).Inc()
}

// OnQueueDepth records the write queue size.
func (o *PrometheusObserver) OnQueueDepth(depth int, memoryEvents uint64) {
	o.queueDepth.Set(float64(depth))
	o.queueEvents.Set(float64(memoryEvents))
}
