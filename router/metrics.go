package router

import "github.com/prometheus/client_golang/prometheus"

var (
	navigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_navigations_total",
			Help: "Committed navigations by view kind",
		},
		[]string{"kind"},
	)

	navigationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_navigation_errors_total",
			Help: "Navigations whose fetch failed, by view kind",
		},
		[]string{"kind"},
	)

	staleNavigations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_navigations_stale_total",
			Help: "Fetch results discarded because a newer navigation started",
		},
	)
)

func init() {
	prometheus.MustRegister(navigationsTotal)
	prometheus.MustRegister(navigationErrors)
	prometheus.MustRegister(staleNavigations)
}
