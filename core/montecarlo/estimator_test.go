package montecarlo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/randstream"
	"github.com/latecast/latecast/core/schedule"
	"github.com/latecast/latecast/core/sim"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 14, h, m, 0, 0, time.UTC)
}

func noJitter() model.JitterSpec { return model.JitterSpec{Family: model.JitterNone} }

// testSimulator reproduces the reference journey: 5 minute walk out, one
// 08:50 departure arriving 08:58, 3 minute walk in.
func testSimulator(t *testing.T, deadline time.Time, legJitter model.JitterSpec) *sim.Simulator {
	t.Helper()
	tt, err := schedule.Reconcile([]model.ScheduleObservation{
		{VehicleID: "8", OriginDeparture: at(8, 50)},
		{VehicleID: "8", DestArrival: at(8, 58)},
	}, schedule.Config{})
	require.NoError(t, err)
	s, err := sim.New(model.JourneyPlan{
		WalkOut:   model.WalkLeg{Base: 5 * time.Minute, Jitter: noJitter()},
		WalkIn:    model.WalkLeg{Base: 3 * time.Minute, Jitter: noJitter()},
		LegJitter: legJitter,
		Deadline:  deadline,
	}, tt)
	require.NoError(t, err)
	return s
}

func TestEstimateDeterministicJourneyIsCertain(t *testing.T) {
	// The deterministic arrival is 09:01, so against an 09:00 deadline
	// every sample is late and against 09:05 none are.
	late, err := New(testSimulator(t, at(9, 0), noJitter()), Config{Iterations: 1000}, nil)
	require.NoError(t, err)
	est, err := late.Estimate(context.Background(), at(8, 40), randstream.New(42))
	require.NoError(t, err)
	assert.Equal(t, 1.0, est.Probability)
	assert.Equal(t, 1000, est.LateCount)

	onTime, err := New(testSimulator(t, at(9, 5), noJitter()), Config{Iterations: 1000}, nil)
	require.NoError(t, err)
	est, err = onTime.Estimate(context.Background(), at(8, 40), randstream.New(42))
	require.NoError(t, err)
	assert.Equal(t, 0.0, est.Probability)
	assert.Equal(t, 0, est.LateCount)
}

func TestEstimateProbabilityBounded(t *testing.T) {
	jitter := model.JitterSpec{Family: model.JitterNormal, Spread: 2 * time.Minute}
	e, err := New(testSimulator(t, at(9, 1), jitter), Config{Iterations: 5000}, nil)
	require.NoError(t, err)
	est, err := e.Estimate(context.Background(), at(8, 40), randstream.New(7))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, est.Probability, 0.0)
	assert.LessOrEqual(t, est.Probability, 1.0)
	assert.Equal(t, 5000, est.Samples)
}

func TestEstimateRejectsZeroIterations(t *testing.T) {
	_, err := New(testSimulator(t, at(9, 0), noJitter()), Config{}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestEstimateReproducibleAcrossWorkerCounts(t *testing.T) {
	jitter := model.JitterSpec{Family: model.JitterTriangle, Spread: 90 * time.Second}
	run := func(workers int) model.LatenessEstimate {
		e, err := New(testSimulator(t, at(9, 1), jitter), Config{Iterations: 10000, Workers: workers}, nil)
		require.NoError(t, err)
		est, err := e.Estimate(context.Background(), at(8, 40), randstream.New(99))
		require.NoError(t, err)
		return est
	}
	serial := run(1)
	parallel := run(4)
	assert.Equal(t, serial, parallel)

	// Same stream again must reproduce exactly.
	assert.Equal(t, serial, run(1))
}

func TestEstimateDeadlineMonotonicity(t *testing.T) {
	// A later deadline can only reduce lateness probability when every
	// other input, including the random stream, is held fixed.
	jitter := model.JitterSpec{Family: model.JitterNormal, Spread: 3 * time.Minute}
	prob := func(deadline time.Time) float64 {
		e, err := New(testSimulator(t, deadline, jitter), Config{Iterations: 10000}, nil)
		require.NoError(t, err)
		est, err := e.Estimate(context.Background(), at(8, 40), randstream.New(5))
		require.NoError(t, err)
		return est.Probability
	}
	tight := prob(at(8, 59))
	loose := prob(at(9, 4))
	assert.GreaterOrEqual(t, tight, loose)
}

func TestEstimateWilsonInterval(t *testing.T) {
	jitter := model.JitterSpec{Family: model.JitterNormal, Spread: 2 * time.Minute}
	e, err := New(testSimulator(t, at(9, 1), jitter), Config{Iterations: 5000, Confidence: 0.95}, nil)
	require.NoError(t, err)
	est, err := e.Estimate(context.Background(), at(8, 40), randstream.New(11))
	require.NoError(t, err)
	require.NotNil(t, est.Interval)
	assert.Equal(t, 0.95, est.Interval.Level)
	assert.GreaterOrEqual(t, est.Interval.Low, 0.0)
	assert.LessOrEqual(t, est.Interval.High, 1.0)
	assert.LessOrEqual(t, est.Interval.Low, est.Probability)
	assert.GreaterOrEqual(t, est.Interval.High, est.Probability)
}

func TestEstimateScheduleGapAborts(t *testing.T) {
	e, err := New(testSimulator(t, at(9, 5), noJitter()), Config{Iterations: 100}, nil)
	require.NoError(t, err)
	// Leaving after the only departure leaves nothing to catch.
	_, err = e.Estimate(context.Background(), at(8, 46), randstream.New(1))
	assert.ErrorIs(t, err, model.ErrScheduleGap)
}

func TestEstimateCancelledContext(t *testing.T) {
	e, err := New(testSimulator(t, at(9, 5), noJitter()), Config{Iterations: 100}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Estimate(ctx, at(8, 40), randstream.New(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWilsonDegenerateProportions(t *testing.T) {
	ci := wilson(0, 1000, 0.95)
	assert.Equal(t, 0.0, ci.Low)
	assert.Greater(t, ci.High, 0.0)

	ci = wilson(1, 1000, 0.95)
	assert.Equal(t, 1.0, ci.High)
	assert.Less(t, ci.Low, 1.0)
}
