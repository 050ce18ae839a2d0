package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "code_relay_connections",
			Help: "Current number of registered relay connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "code_relay_rooms",
			Help: "Current number of non-empty rooms.",
		},
	)
	wsFramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_relay_frames_received_total",
			Help: "Total client frames dispatched, by event name.",
		},
		[]string{"event"},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_relay_messages_delivered_total",
			Help: "Total frames handed to recipients' send queues.",
		},
	)
	wsDeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_relay_delivery_failures_total",
			Help: "Total deliveries skipped because the recipient could not accept them.",
		},
	)
	wsEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_relay_slow_client_evictions_total",
			Help: "Total clients disconnected because their send queue was full.",
		},
	)
	wsThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_relay_throttled_frames_total",
			Help: "Total client frames held back or dropped by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsFramesReceived, wsMessagesDelivered, wsDeliveryFailures, wsEvictions, wsThrottled)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func incFrames(event EventName) {
	wsFramesReceived.WithLabelValues(string(event)).Inc()
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func incDeliveryFailures() {
	wsDeliveryFailures.Inc()
}

func incEvictions() {
	wsEvictions.Inc()
}

func incThrottled() {
	wsThrottled.Inc()
}
