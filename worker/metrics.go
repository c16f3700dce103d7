package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "worker",
		Name:      "challenges_discovered_total",
		Help:      "Number of challenges first recorded by this process",
	})

	solutionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "worker",
		Name:      "solutions_accepted_total",
		Help:      "Number of solutions the service accepted with a receipt",
	})

	solutionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "worker",
		Name:      "solutions_rejected_total",
		Help:      "Number of solutions the service definitively rejected",
	})

	outboxAppends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "worker",
		Name:      "outbox_appends_total",
		Help:      "Number of solutions stranded to the dead-letter outbox",
	})

	donationsReported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "worker",
		Name:      "donations_reported_total",
		Help:      "Number of accepted solutions credited to the donation pool",
	})
)
