package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "supervisor",
		Name:      "workers_started_total",
		Help:      "Number of worker processes started",
	})

	workerRespawns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "supervisor",
		Name:      "worker_respawns_total",
		Help:      "Number of worker processes that died and freed their slot",
	})

	walletsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scavminer",
		Subsystem: "supervisor",
		Name:      "wallets_created_total",
		Help:      "Number of wallets created because all existing ones were exhausted",
	})
)
