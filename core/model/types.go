package model

import (
	"fmt"
	"time"
)

// ScheduleObservation is one raw record from the transit feed: a vehicle's
// departure at the origin stop and/or its arrival at the destination stop.
// A zero time means the field was not observed. Observations are immutable
// once ingested.
type ScheduleObservation struct {
	VehicleID       string
	OriginDeparture time.Time
	DestArrival     time.Time
}

// HasDeparture reports whether the origin departure was observed.
func (o ScheduleObservation) HasDeparture() bool { return !o.OriginDeparture.IsZero() }

// HasArrival reports whether the destination arrival was observed.
func (o ScheduleObservation) HasArrival() bool { return !o.DestArrival.IsZero() }

// LegTravelTime is the reconciled transit leg duration for one time-of-day
// bucket. Samples == 0 marks a bucket with no valid departure/arrival pairs.
type LegTravelTime struct {
	Mean    time.Duration
	StdDev  time.Duration
	Samples int
}

// Known reports whether the bucket holds at least one valid pair.
func (l LegTravelTime) Known() bool { return l.Samples > 0 }

// Jitter distribution families. Normal draws are truncated at zero so a
// sampled duration can never be negative.
const (
	JitterNone     = "none"
	JitterNormal   = "normal"
	JitterTriangle = "triangle"
	JitterUniform  = "uniform"
)

// JitterSpec describes the random variation applied to a nominal duration.
// Spread is the standard deviation for the normal family and the half-width
// for the triangle and uniform families.
type JitterSpec struct {
	Family string
	Spread time.Duration
}

// Validate checks the family name and spread sign.
func (j JitterSpec) Validate() error {
	switch j.Family {
	case JitterNone, JitterNormal, JitterTriangle, JitterUniform:
	default:
		return fmt.Errorf("unknown jitter family %q: %w", j.Family, ErrInvalidConfig)
	}
	if j.Spread < 0 {
		return fmt.Errorf("jitter spread must not be negative: %w", ErrInvalidConfig)
	}
	return nil
}

// WalkLeg is a fixed walking segment with a nominal duration and jitter.
type WalkLeg struct {
	Base   time.Duration
	Jitter JitterSpec
}

// JourneyPlan is the static configuration of the commute: both walking
// segments, the jitter applied to point-estimate transit legs, and the
// arrival deadline. Immutable for the lifetime of a run.
type JourneyPlan struct {
	WalkOut   WalkLeg
	WalkIn    WalkLeg
	LegJitter JitterSpec
	Deadline  time.Time
}

// Validate checks that the plan is sound.
func (p JourneyPlan) Validate() error {
	if p.WalkOut.Base < 0 || p.WalkIn.Base < 0 {
		return fmt.Errorf("walk durations must not be negative: %w", ErrInvalidConfig)
	}
	if p.Deadline.IsZero() {
		return fmt.Errorf("deadline is required: %w", ErrInvalidConfig)
	}
	for _, j := range []JitterSpec{p.WalkOut.Jitter, p.WalkIn.Jitter, p.LegJitter} {
		if err := j.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// JourneySample is one simulated realization of the journey. Created fresh
// per simulation call and never mutated afterwards.
type JourneySample struct {
	LeaveTime        time.Time
	WalkOut          time.Duration
	TransitDeparture time.Time
	Wait             time.Duration
	Leg              time.Duration
	WalkIn           time.Duration
	Arrival          time.Time
	Late             bool
}

// ConfidenceInterval is a binomial interval around a lateness probability.
type ConfidenceInterval struct {
	Level float64
	Low   float64
	High  float64
}

// LatenessEstimate aggregates N journey samples for one leave time.
type LatenessEstimate struct {
	Probability float64
	Samples     int
	LateCount   int
	// Interval is set only when a confidence level was requested.
	Interval *ConfidenceInterval
}

// CurvePoint is one sweep result. Gap marks a leave time for which no
// transit timing could be resolved; Estimate is meaningless in that case.
type CurvePoint struct {
	LeaveTime time.Time
	Estimate  LatenessEstimate
	Gap       bool
}

// LatenessCurve is the sweep output, ordered by leave time ascending.
type LatenessCurve struct {
	Points []CurvePoint
}
