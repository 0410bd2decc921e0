package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_processed_total",
		Help: "The total number of events applied to the read-model",
	})
	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_duplicate_total",
		Help: "The total number of redeliveries terminated because the event was already processed or parked",
	})
	eventsParked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_parked_total",
		Help: "The total number of events parked after exhausting the retry budget",
	})
	eventsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_retried_total",
		Help: "The total number of failed attempts nacked for redelivery",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_dropped_total",
		Help: "The total number of messages terminated before inbox bookkeeping (allowlist, decode, envelope)",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to process one event",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})
)
