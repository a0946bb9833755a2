package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Event("committed-write")
	m.Event("committed-write")
	m.Reconcile("saved")
	m.IndexRequest("save", nil)
	m.IndexRequest("delete", errors.New("status 500"))
	m.SetPending(3)
	m.ReindexPage("failed")

	assert.InDelta(t, 2, testutil.ToFloat64(m.Events.WithLabelValues("committed-write")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reconciles.WithLabelValues("saved")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IndexRequests.WithLabelValues("save", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IndexRequests.WithLabelValues("delete", "error")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.PendingDeletion), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReindexPages.WithLabelValues("failed")), 0)
}

func TestMetrics_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetPending(1)

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP searchsync_pending_deletions Fragment deletions waiting for their post-delete notification
# TYPE searchsync_pending_deletions gauge
searchsync_pending_deletions 1
`), "searchsync_pending_deletions")
	require.NoError(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("x")
		m.Reconcile("failed")
		m.IndexRequest("save", nil)
		m.SetPending(1)
		m.ReindexPage("indexed")
	})
}
