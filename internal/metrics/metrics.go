package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Download outcomes.
const (
	OutcomeDelivered     = "delivered"
	OutcomePolicyDenied  = "policy_denied"
	OutcomeContextLost   = "context_lost"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomeSizeExceeded  = "size_exceeded"
	OutcomeDeliveryError = "delivery_failed"
	OutcomeInternalError = "internal_error"
)

// Grant sources.
const (
	SourcePurchase = "purchase"
	SourceAdmin    = "admin"
)

// BotMetrics holds the bot's Prometheus collectors.
type BotMetrics struct {
	downloads     *prometheus.CounterVec
	quotaRollback prometheus.Counter
	premiumGrants *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	updates       *prometheus.CounterVec
}

var (
	instance *BotMetrics
	once     sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *BotMetrics {
	once.Do(func() {
		instance = newBotMetrics(prometheus.DefaultRegisterer)
	})
	return instance
}

func newBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediabot",
				Name:      "downloads_total",
				Help:      "Download requests by final outcome",
			},
			[]string{"outcome"},
		),
		quotaRollback: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mediabot",
				Name:      "quota_rollbacks_total",
				Help:      "Quota reservations returned after a failed attempt",
			},
		),
		premiumGrants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediabot",
				Name:      "premium_grants_total",
				Help:      "Premium grants by source",
			},
			[]string{"source"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mediabot",
				Name:      "fetch_duration_seconds",
				Help:      "Time spent in the media fetcher",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
			},
			[]string{"format", "ok"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mediabot",
				Name:      "updates_total",
				Help:      "Telegram updates dispatched by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.downloads,
		m.quotaRollback,
		m.premiumGrants,
		m.fetchDuration,
		m.updates,
	)
	return m
}

func (m *BotMetrics) RecordDownload(outcome string) {
	m.downloads.WithLabelValues(outcome).Inc()
}

func (m *BotMetrics) RecordQuotaRollback() {
	m.quotaRollback.Inc()
}

func (m *BotMetrics) RecordPremiumGrant(source string) {
	m.premiumGrants.WithLabelValues(source).Inc()
}

func (m *BotMetrics) ObserveFetch(format string, ok bool, d time.Duration) {
	label := "false"
	if ok {
		label = "true"
	}
	m.fetchDuration.WithLabelValues(format, label).Observe(d.Seconds())
}

func (m *BotMetrics) RecordUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}
