package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	coinsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edutrack_coins_awarded_total",
		Help: "Coins credited to students by awards.",
	})

	redemptionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edutrack_redemptions_resolved_total",
		Help: "Redemption requests resolved, by outcome.",
	}, []string{"outcome"})
)
