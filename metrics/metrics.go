package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReactionEvents - Reaction events seen by the reaction role engine by kind and outcome
	ReactionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reixi_reaction_events_total",
			Help: "Total number of reaction events handled by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// SweepPruned - Reaction role messages dropped by the dead message sweep
	SweepPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reixi_reaction_sweep_pruned_total",
		Help: "Total number of dead reaction role messages pruned.",
	})

	// Commands - Command invocations by command name and outcome
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reixi_commands_total",
			Help: "Total number of command invocations by command and result.",
		},
		[]string{"command", "result"},
	)

	// StoreWrites - Durable writes by outcome
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reixi_store_writes_total",
			Help: "Total number of settings store writes by result.",
		},
		[]string{"result"},
	)
)

// Result - Label value for an error
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
