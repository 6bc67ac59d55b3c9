package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	producerPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "producer_messages_published_total",
		Help:      "Messages published, by topic.",
	}, []string{"topic"})

	producerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "producer_publish_errors_total",
		Help:      "Publish failures, by topic.",
	}, []string{"topic"})

	consumerProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "consumer_messages_processed_total",
		Help:      "Messages handled successfully.",
	}, []string{"topic", "consumer_group"})

	consumerFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "consumer_messages_failed_total",
		Help:      "Messages that exhausted retries or could not be decoded.",
	}, []string{"topic", "consumer_group"})

	consumerDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "consumer_dlq_published_total",
		Help:      "Messages forwarded to a dead-letter topic.",
	}, []string{"topic", "consumer_group"})

	consumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "kafka",
		Name:      "consumer_processing_duration_seconds",
		Help:      "Handler latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic", "consumer_group"})
)
