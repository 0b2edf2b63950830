package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversation engine metrics
var (
	// Message metrics
	MessagesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_created_total",
		Help: "Total number of messages persisted",
	}, []string{"message_type"})

	MessagesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_read_marks_total",
		Help: "Total number of read cursor updates",
	})

	// Call metrics
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calls_total",
		Help: "Total number of call state transitions",
	}, []string{"call_type", "status"})

	CallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of ended calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"call_type"})

	// Poll metrics
	PollsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polls_created_total",
		Help: "Total number of polls created",
	}, []string{"poll_type"})

	PollsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polls_closed_total",
		Help: "Total number of polls closed",
	})

	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_votes_total",
		Help: "Total number of vote toggles",
	}, []string{"poll_type", "action"})

	// Reaction metrics
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactions_total",
		Help: "Total number of reaction toggles",
	}, []string{"target_type", "action"})

	// Watch-together metrics
	WatchSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watch_sessions_total",
		Help: "Total number of watch-together transitions",
	}, []string{"status"})

	WatchUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watch_playback_updates_total",
		Help: "Total number of playback updates",
	})

	// Fan-out metrics
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of events published to the broker",
	}, []string{"event", "status"})

	NotificationsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_written_total",
		Help: "Total number of notification rows written",
	}, []string{"status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "event_dispatch_duration_seconds",
		Help:    "Time taken to fan out one outcome",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)
