package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	relayedEnvelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_total",
			Help: "Envelopes sequenced and fanned out by the relay",
		},
		[]string{"kind"},
	)
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_clients",
		Help: "Websocket clients currently registered in a room",
	})
	slowClients = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_slow_clients_dropped_total",
		Help: "Clients disconnected because their send buffer was full",
	})
)

func init() {
	prometheus.MustRegister(relayedEnvelopes)
	prometheus.MustRegister(connectedClients)
	prometheus.MustRegister(slowClients)
}
