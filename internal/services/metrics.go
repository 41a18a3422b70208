package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. They complement the HTTP metrics in the middleware
// package and are served from the same /metrics endpoint.
var (
	// deviceRegistrations counts register calls by result (created|updated).
	deviceRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_registrations_total",
			Help: "Device heartbeats by result.",
		},
		[]string{"result"},
	)

	devicesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devices_deleted_total",
			Help: "Devices removed together with their dependent rows.",
		},
	)

	// commandTransitions counts commands entering each lifecycle state.
	commandTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_transitions_total",
			Help: "Commands entering a lifecycle state (pending|sent|executed).",
		},
		[]string{"status"},
	)

	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "command_enqueue_replays_total",
			Help: "Enqueue requests answered from a stored Idempotency-Key.",
		},
	)
)

func init() {
	prometheus.MustRegister(deviceRegistrations, devicesDeleted, commandTransitions, idempotentReplays)
}
