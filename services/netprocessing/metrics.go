package netprocessing

import (
	"sync"

	"github.com/bsv-blockchain/peerlogic/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusNetProcessingMessages              *prometheus.CounterVec
	prometheusNetProcessingRejectBatchSize       prometheus.Histogram
	prometheusNetProcessingProcessMessages       prometheus.Histogram
	prometheusNetProcessingSendMessages          prometheus.Histogram
	prometheusNetProcessingMisbehavior           *prometheus.CounterVec
	prometheusNetProcessingBans                  prometheus.Counter
	prometheusNetProcessingDisconnects           prometheus.Counter
	prometheusNetProcessingOrphans               prometheus.Gauge
	prometheusNetProcessingOrphanEvictions       prometheus.Counter
	prometheusNetProcessingOrphanExpiries        prometheus.Counter
	prometheusNetProcessingInvFlushed            prometheus.Counter
	prometheusNetProcessingInvBatchSize          prometheus.Histogram
	prometheusNetProcessingInvQueueOverflows     prometheus.Counter
	prometheusNetProcessingStalls                prometheus.Counter
	prometheusNetProcessingInFlightHeights       prometheus.Gauge
	prometheusNetProcessingValidationEvents      *prometheus.CounterVec
	prometheusNetProcessingHandleValidationEvent prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusNetProcessingMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "messages",
			Help:      "Number of inbound messages processed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)
	prometheusNetProcessingProcessMessages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netprocessing",
			Name:      "process_messages",
			Help:      "Histogram of calls to ProcessMessages",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)
	prometheusNetProcessingSendMessages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netprocessing",
			Name:      "send_messages",
			Help:      "Histogram of calls to SendMessages",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)
	prometheusNetProcessingMisbehavior = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "misbehavior_points",
			Help:      "Misbehavior points handed out, by reason",
		},
		[]string{"reason"},
	)
	prometheusNetProcessingBans = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "bans",
			Help:      "Number of peers banned",
		},
	)
	prometheusNetProcessingDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "disconnects",
			Help:      "Number of peers disconnected without a ban",
		},
	)
	prometheusNetProcessingOrphans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "netprocessing",
			Name:      "orphans",
			Help:      "Number of transactions in the orphan pool",
		},
	)
	prometheusNetProcessingOrphanEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "orphan_evictions",
			Help:      "Number of orphans evicted because the pool was full",
		},
	)
	prometheusNetProcessingOrphanExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "orphan_expiries",
			Help:      "Number of orphans removed because they expired",
		},
	)
	prometheusNetProcessingInvFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "inv_flushed",
			Help:      "Number of inventory items announced to peers",
		},
	)
	prometheusNetProcessingInvBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netprocessing",
			Name:      "inv_batch_size",
			Help:      "Histogram of the number of items announced per flush",
			Buckets:   util.MetricsBucketsCount,
		},
	)
	prometheusNetProcessingInvQueueOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "inv_queue_overflows",
			Help:      "Number of inventory items not queued because the peer queue was full",
		},
	)
	prometheusNetProcessingStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "stalls",
			Help:      "Number of block download stalls",
		},
	)
	prometheusNetProcessingInFlightHeights = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "netprocessing",
			Name:      "in_flight_heights",
			Help:      "Number of block heights currently requested from peers",
		},
	)
	prometheusNetProcessingValidationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netprocessing",
			Name:      "validation_events",
			Help:      "Number of validation events handled, by type",
		},
		[]string{"type"},
	)
	prometheusNetProcessingRejectBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netprocessing",
			Name:      "reject_batch_size",
			Help:      "Histogram of the number of rejected transactions published per kafka batch",
			Buckets:   util.MetricsBucketsCount,
		},
	)
	prometheusNetProcessingHandleValidationEvent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netprocessing",
			Name:      "handle_validation_event",
			Help:      "Histogram of validation event handling",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)
}
