package health

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(prometheus.NewRegistry())
}

func TestNewCollectorAcceptsNilRegisterer(t *testing.T) {
	c := NewCollector(nil)
	require.NotNil(t, c)
	snap := c.Snapshot()
	assert.Equal(t, 0.0, snap.CacheHitRate)
}

func TestRecordQueryTracksCacheHitRate(t *testing.T) {
	c := newTestCollector(t)

	c.RecordQuery("retrieve_memories", 10, true, nil)
	c.RecordQuery("retrieve_memories", 10, true, nil)
	c.RecordQuery("retrieve_memories", 10, false, nil)

	snap := c.Snapshot()
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRate, 0.0001)
}

func TestRecordQueryTracksErrorRate(t *testing.T) {
	c := newTestCollector(t)

	c.RecordQuery("retrieve_memories", 10, true, nil)
	c.RecordQuery("retrieve_memories", 10, true, errors.New("boom"))

	snap := c.Snapshot()
	assert.InDelta(t, 0.5, snap.ErrorRate, 0.0001)
}

func TestRecordOperationCountsByKind(t *testing.T) {
	c := newTestCollector(t)

	c.RecordOperation("store_memory", nil)
	c.RecordOperation("store_memory", nil)
	c.RecordOperation("delete_memory", nil)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.OperationCounts["store_memory"])
	assert.Equal(t, int64(1), snap.OperationCounts["delete_memory"])
}

func TestSnapshotComputesPercentilesFromLatencySamples(t *testing.T) {
	c := newTestCollector(t)

	for i := 1; i <= 100; i++ {
		c.RecordQuery("retrieve_memories", int64(i), true, nil)
	}

	snap := c.Snapshot()
	assert.InDelta(t, 50, snap.SearchLatencyP50, 2)
	assert.InDelta(t, 95, snap.SearchLatencyP95, 2)
	assert.InDelta(t, 99, snap.SearchLatencyP99, 2)
}

func TestSnapshotQueriesPerDayGroupsByUTCDate(t *testing.T) {
	c := newTestCollector(t)

	c.RecordQuery("retrieve_memories", 10, true, nil)
	c.RecordQuery("search_all_projects", 15, true, nil)

	snap := c.Snapshot()
	var total int64
	for _, n := range snap.QueriesPerDay {
		total += n
	}
	assert.Equal(t, int64(2), total)
}

func TestPercentilesOfEmptyWindowReturnsZero(t *testing.T) {
	p50, p95, p99 := percentiles(nil)
	assert.Equal(t, 0.0, p50)
	assert.Equal(t, 0.0, p95)
	assert.Equal(t, 0.0, p99)
}
