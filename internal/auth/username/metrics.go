package username

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeResolved             = "resolved"
	outcomeExhausted            = "exhausted"
	outcomeDirectoryUnavailable = "directory_unavailable"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "username_resolutions_total",
		Help: "Username resolutions by outcome.",
	}, []string{"outcome"})

	probeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "username_probe_attempts",
		Help:    "Directory probes needed to find a free username.",
		Buckets: []float64{1, 2, 3, 5, 10, 25, 100, 1000},
	})
)
