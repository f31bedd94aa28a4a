package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsMerge(t *testing.T) {
	c := NewCollector(10)
	c.BatchReceived()
	c.Diagnostics(2, 1, 3)
	c.BatchMerged(5, 12, 4, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.BatchesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BatchesMerged))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RowsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsExcluded))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.LineConflicts))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.RowsAdded))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.StoreRows))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.StoreVersion))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.NodeThreshold))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.BatchReceived()
		c.BatchEmpty()
		c.BatchFailed()
		c.BatchMerged(1, 1, 1, time.Second)
		c.Diagnostics(1, 1, 1)
		c.SetQueueDepth(3)
		c.QueryObserve("/api/network", time.Millisecond)
		c.NATSPublishedInc()
		c.NATSPublishErrInc()
		c.PublishObserve(time.Millisecond)
		c.NATSSetConnected(true)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(10)
	c.NATSSetConnected(true)
	c.BatchEmpty()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "canon_nats_connected 1")
	assert.Contains(t, string(body), "canon_batches_empty_total 1")
}
