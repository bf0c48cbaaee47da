package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "ledger_entries_total",
		Help:      "Ledger entries appended, by kind and source.",
	}, []string{"kind", "source"})

	LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "ledger_rejections_total",
		Help:      "Ledger appends rejected, by reason.",
	}, []string{"reason"})

	RewardGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "reward_grants_total",
		Help:      "Engagement reward grant outcomes, by action and status.",
	}, []string{"action", "status"})

	MerchantCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "merchant_credits_total",
		Help:      "Merchant order credit attempts, by outcome.",
	}, []string{"outcome"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs, by job and result (ok, error, skipped).",
	}, []string{"job", "result"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rewardledger",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job duration.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"job"})

	Discrepancies = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rewardledger",
		Name:      "reconciliation_discrepancies",
		Help:      "Discrepancies found by the latest reconciliation run, by type and severity.",
	}, []string{"type", "severity"})

	CoinsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "coins_expired_total",
		Help:      "Coins retired by the expiry job.",
	})

	OutboxMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardledger",
		Name:      "outbox_messages_total",
		Help:      "Outbox deliveries, by topic and result.",
	}, []string{"topic", "result"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rewardledger",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
