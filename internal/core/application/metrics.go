package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsRunCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peertrade",
		Name:      "pipeline_steps_total",
		Help:      "Number of pipeline steps executed, by step name and outcome.",
	}, []string{"step", "outcome"})

	tradesCompletedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peertrade",
		Name:      "trades_completed_total",
		Help:      "Number of trades that reached the terminal status.",
	})

	tradesFailedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peertrade",
		Name:      "trades_failed_total",
		Help:      "Number of trades aborted by a pipeline failure.",
	})

	disputesOpenedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peertrade",
		Name:      "disputes_opened_total",
		Help:      "Number of disputes opened or received.",
	})
)
