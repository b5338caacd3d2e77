package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores de negócio expostos em /metrics.
var (
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Lances processados, por desfecho (success|failed).",
	}, []string{"outcome"})

	FinalizationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_finalizations_total",
		Help: "Leilões liquidados (pedido criado e partes notificadas).",
	})

	LockBusyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_lock_busy_total",
		Help: "Aquisições de lock de leilão que expiraram no timeout.",
	})
)
