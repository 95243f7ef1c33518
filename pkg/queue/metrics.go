package queue

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pendingDesc = prometheus.NewDesc(
		"ctxengine_queue_pending", "Requests waiting in the generation queue.", nil, nil)
	processingDesc = prometheus.NewDesc(
		"ctxengine_queue_processing", "Requests currently held by a worker.", nil, nil)
	succeededDesc = prometheus.NewDesc(
		"ctxengine_queue_succeeded_total", "Requests that settled successfully.", nil, nil)
	failedDesc = prometheus.NewDesc(
		"ctxengine_queue_failed_total", "Requests that settled with a terminal failure.", nil, nil)
	retriedDesc = prometheus.NewDesc(
		"ctxengine_queue_retried_total", "Requests re-enqueued after a retryable failure.", nil, nil)
)

// counters backs Queue.Stats with lock-free atomics; Queue also
// exposes them as a prometheus.Collector.
type counters struct {
	pending    atomic.Int64
	processing atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	retried    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Pending:    c.pending.Load(),
		Processing: c.processing.Load(),
		Succeeded:  c.succeeded.Load(),
		Failed:     c.failed.Load(),
		Retried:    c.retried.Load(),
	}
}

// Describe implements prometheus.Collector.
func (q *Queue) Describe(ch chan<- *prometheus.Desc) {
	ch <- pendingDesc
	ch <- processingDesc
	ch <- succeededDesc
	ch <- failedDesc
	ch <- retriedDesc
}

// Collect implements prometheus.Collector.
func (q *Queue) Collect(ch chan<- prometheus.Metric) {
	s := q.Stats()
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(processingDesc, prometheus.GaugeValue, float64(s.Processing))
	ch <- prometheus.MustNewConstMetric(succeededDesc, prometheus.CounterValue, float64(s.Succeeded))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(retriedDesc, prometheus.CounterValue, float64(s.Retried))
}

var _ prometheus.Collector = (*Queue)(nil)
