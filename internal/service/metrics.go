package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revboard_stats_compute_duration_seconds",
		Help:    "Time spent computing dashboard statistics by cache outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cache"})

	statsCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revboard_stats_cache_results_total",
		Help: "Stats cache lookups by result.",
	}, []string{"result"})

	keywordDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revboard_stats_keywords_degraded_total",
		Help: "Stats responses served without keywords because extraction failed.",
	})

	replyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revboard_reply_outcomes_total",
		Help: "Reply submissions by outcome.",
	}, []string{"outcome"})
)

// Reply outcome labels.
const (
	outcomeCreated  = "created"
	outcomeUpdated  = "updated"
	outcomeConflict = "conflict"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)
