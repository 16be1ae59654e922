package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("fintrack_test", reg)

	m.AccountsCreated.WithLabelValues("CURRENT").Inc()
	m.DefaultReassigned.Inc()
	m.ViewCacheResults.WithLabelValues("/dashboard", "hit").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AccountsCreated.WithLabelValues("CURRENT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DefaultReassigned))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fintrack_test_accounts_created_total"])
	assert.True(t, names["fintrack_test_default_account_reassignments_total"])
	assert.True(t, names["fintrack_test_view_cache_requests_total"])
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("dup", reg)

	assert.Panics(t, func() { NewMetrics("dup", reg) })
}
