// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level metrics so any layer can record without plumbing a
// handle around.
var (
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizparty",
		Name:      "active_rooms",
		Help:      "Number of live rooms",
	})
	ConnectedPlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizparty",
		Name:      "connected_players",
		Help:      "Number of connections currently bound to a player",
	})
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quizparty",
		Name:      "messages_received_total",
		Help:      "Total number of inbound events",
	})
	AnswersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quizparty",
		Name:      "answers_submitted_total",
		Help:      "Total number of accepted answers",
	})
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quizparty",
		Name:      "message_latency_seconds",
		Help:      "Inbound event handling latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		ActiveRooms,
		ConnectedPlayers,
		MessagesReceived,
		AnswersSubmitted,
		MessageLatency,
	)
}

type Monitor struct {
	startTime time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// StartServer serves /metrics plus expvar on its own listener.
func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	go http.ListenAndServe(addr, mux)
}
