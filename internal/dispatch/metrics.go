package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_sends_total",
		Help: "Channel send attempts by outcome.",
	}, []string{"channel", "outcome"})

	suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_suppressed_total",
		Help: "Recipients skipped by the preference gate.",
	}, []string{"channel"})
)
