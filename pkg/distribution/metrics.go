package distribution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolutions tracks base path resolutions by outcome
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_base_path_resolutions_total",
			Help: "Total number of base path resolutions by outcome",
		},
		[]string{"outcome"}, // "cached", "exact", "pull_through", "not_found"
	)

	// Provisioned tracks concrete distributions created below pull-through distributions
	Provisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_pull_through_provisioned_total",
			Help: "Total number of distributions provisioned by pull-through",
		},
	)
)
