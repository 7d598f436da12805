package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks pages pulled from the accounting API, by financial year
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersync_pages_fetched_total",
		Help: "Total number of transaction pages fetched from the accounting API",
	}, []string{"financial_year"})

	// TransactionsUpserted tracks cache writes by outcome (inserted/skipped/overwritten)
	TransactionsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersync_transactions_upserted_total",
		Help: "Total number of transactions routed through the cache upsert layer",
	}, []string{"outcome"})

	// RateLimitHits counts 429 responses from the accounting API
	// A sustained climb means the client-side limiter is tuned too aggressively
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgersync_rate_limit_hits_total",
		Help: "Total number of rate-limited responses from the accounting API",
	})

	// TokenRefreshes counts OAuth refresh attempts by outcome (success/failure/conflict)
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersync_token_refreshes_total",
		Help: "Total number of OAuth token refresh attempts",
	}, []string{"outcome"})

	// SyncDuration measures how long a full sync run takes, terminal status as label
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgersync_sync_duration_seconds",
		Help:    "Duration of a tenant sync run in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	}, []string{"status"})

	// SyncsActive is the number of sync runs currently claimed by this worker
	SyncsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgersync_syncs_active",
		Help: "Number of sync runs currently executing in this process",
	})
)
