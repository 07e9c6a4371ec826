package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the console's private registry. It is also the orchestrator's
// action observer.
type Metrics struct {
	registry     *prometheus.Registry
	actionsTotal *prometheus.CounterVec
	wsClients    prometheus.Gauge
	wsMessages   prometheus.Counter
}

func NewMetrics() *Metrics {
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parimutuel_actions_total",
		Help: "Finished user actions by outcome",
	}, []string{"action", "result"})

	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parimutuel_ws_clients",
		Help: "Connected state-push websocket clients",
	})

	messages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parimutuel_ws_messages_sent_total",
		Help: "State snapshots written to websocket clients",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(actions, clients, messages)

	return &Metrics{
		registry:     r,
		actionsTotal: actions,
		wsClients:    clients,
		wsMessages:   messages,
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAction counts one finished action.
func (m *Metrics) ObserveAction(action, result string) {
	m.actionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) setClients(n int) {
	m.wsClients.Set(float64(n))
}

func (m *Metrics) incMessages() {
	m.wsMessages.Inc()
}
