package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearthbooks_import_batches_completed_total",
		Help: "Import batches committed successfully.",
	})

	batchesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearthbooks_import_batches_abandoned_total",
		Help: "Import batches abandoned, explicitly or by the stale sweeper.",
	})

	transactionsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearthbooks_import_transactions_created_total",
		Help: "Transactions created by batch commits.",
	})
)
