// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActivePatrols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patrolcore_active_patrols",
		Help: "Number of PatrolSessions currently running or paused",
	})

	LinkReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patrolcore_link_reconnects_total",
		Help: "Total number of successful link reconnects by link kind",
	}, []string{"link"})

	DebounceVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patrolcore_debounce_verdicts_total",
		Help: "Total number of debouncer verdicts by outcome",
	}, []string{"verdict"})

	ViolationsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patrolcore_violations_recorded_total",
		Help: "Total number of violations recorded by severity",
	}, []string{"severity"})
)
