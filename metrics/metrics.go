// Package metrics exposes Prometheus instruments for the game server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "match3"

// Move outcome labels
const (
	OutcomeAccepted     = "accepted"
	OutcomeNoMatch      = "no_match"
	OutcomeInvalidMove  = "invalid_move"
	OutcomeIllegalState = "illegal_state"
	OutcomeNotFound     = "not_found"
)

var (
	MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moves_total",
		Help:      "Moves evaluated, by outcome.",
	}, []string{"outcome"})

	CascadePasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cascade_passes",
		Help:      "Cascade passes per accepted move.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
	})

	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Sessions created.",
	})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Sessions removed by idle cleanup.",
	})

	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_finished_total",
		Help:      "Games that reached game over, by owner kind.",
	}, []string{"owner"})

	ScoreRecordingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "score_recording_failures_total",
		Help:      "Finished games whose score could not be stored.",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Open websocket connections.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Push events dropped because a buffer was full.",
	})
)

var sessionGaugeOnce sync.Once

// RegisterSessionGauge exposes the live session count. Only the first call registers.
func RegisterSessionGauge(count func() int) {
	sessionGaugeOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}, func() float64 { return float64(count()) })
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
