package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("contract_admin", reg)

	m.NotificationsCreated.WithLabelValues("payment_overdue").Inc()
	m.LivePushes.WithLabelValues("delivered").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsCreated.WithLabelValues("payment_overdue")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LivePushes.WithLabelValues("delivered")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "contract_admin_notifications_created_total")
	assert.Contains(t, names, "contract_admin_live_pushes_total")
}

func TestNopIsIndependent(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop()
		Nop()
	})
}
