package filetree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filetree_operations_total",
		Help: "Tree operations by name and outcome.",
	}, []string{"operation", "outcome"})

	lockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetree_lock_conflicts_total",
		Help: "Writes or lock acquisitions rejected because another session holds the lock.",
	})

	recycleBinRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filetree_recycle_bin_races_total",
		Help: "Recycle Bin creations that lost a race and reused the existing bin.",
	})
)

func observe(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case isClientError(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
