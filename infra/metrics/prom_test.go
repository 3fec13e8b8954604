package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromSinkRecordsPoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	require.NoError(t, err)

	leave := time.Date(2025, 3, 14, 8, 40, 0, 0, time.UTC)
	require.NoError(t, sink.RecordSweepPoint(PointRecord{RunID: "r1", LeaveTime: leave, Probability: 0.25, Samples: 1000}))
	require.NoError(t, sink.RecordSweepPoint(PointRecord{RunID: "r1", LeaveTime: leave.Add(time.Minute), Probability: 0.5, Samples: 1000}))
	require.NoError(t, sink.RecordSweepPoint(PointRecord{RunID: "r1", LeaveTime: leave.Add(2 * time.Minute), Gap: true}))

	expected := `
		# HELP sweep_points_total Total number of computed sweep points
		# TYPE sweep_points_total counter
		sweep_points_total{gap="false"} 2
		sweep_points_total{gap="true"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(sink.points, strings.NewReader(expected), "sweep_points_total"))

	assert.Equal(t, 0.5, testutil.ToFloat64(sink.latest))
}

func TestPromSinkReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSink(reg)
	require.NoError(t, err)
	second, err := NewPromSink(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordSweepPoint(PointRecord{Probability: 0.1, Samples: 10}))
	require.NoError(t, second.RecordSweepPoint(PointRecord{Probability: 0.2, Samples: 10}))

	// Both sinks feed the same underlying counter.
	assert.Equal(t, float64(2), testutil.ToFloat64(first.points.WithLabelValues("false")))
}
