package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// cacheLookups counts GetOrCache lookups by result (hit|miss|error).
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache store lookups by result.",
		},
		[]string{"result"},
	)

	// cachePopulates counts populate attempts by outcome.
	cachePopulates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_populate_total",
			Help: "Populate attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// cachePopulateShared counts callers that joined an in-flight populate
	// instead of starting their own.
	cachePopulateShared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_populate_shared_total",
			Help: "Callers served by another caller's in-flight populate.",
		},
	)

	// cacheDownloads counts download assemblies by outcome.
	cacheDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_downloads_total",
			Help: "Download attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// cacheEvictions counts entries deleted because their pointer was stale.
	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_stale_evictions_total",
			Help: "Cache entries deleted after a failed blob fetch.",
		},
	)

	// backfillRuns counts reconcile runs by outcome (ok|list_failed|canceled).
	backfillRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_backfill_runs_total",
			Help: "Catalog backfill runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(cacheLookups, cachePopulates, cachePopulateShared, cacheDownloads, cacheEvictions, backfillRuns)
}
