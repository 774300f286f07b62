package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBotMetrics(t *testing.T) {
	m := newBotMetrics(prometheus.NewRegistry())

	m.RecordDownload(OutcomeDelivered)
	m.RecordDownload(OutcomeDelivered)
	m.RecordDownload(OutcomeFetchFailed)
	m.RecordQuotaRollback()
	m.RecordPremiumGrant(SourceAdmin)
	m.ObserveFetch("video", true, 3*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.downloads.WithLabelValues(OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloads.WithLabelValues(OutcomeFetchFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaRollback))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.premiumGrants.WithLabelValues(SourceAdmin)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.fetchDuration))
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
