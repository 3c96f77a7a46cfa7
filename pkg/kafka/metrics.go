package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revboard_kafka_published_total",
		Help: "Events published by topic.",
	}, []string{"topic"})

	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revboard_kafka_publish_errors_total",
		Help: "Failed publish attempts by topic.",
	}, []string{"topic"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revboard_kafka_publish_duration_seconds",
		Help:    "Publish latency by topic.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revboard_kafka_consumed_total",
		Help: "Consumed messages by topic and outcome.",
	}, []string{"topic", "outcome"})

	handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revboard_kafka_handle_duration_seconds",
		Help:    "Handler latency by topic.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
