// Package sim draws single stochastic realizations of the commute: jittered
// walk to the stop, wait for the next departure, jittered transit leg,
// jittered walk to the destination.
package sim

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/schedule"
)

// Simulator produces journey samples against an immutable plan and
// timetable. Safe for concurrent use: all mutable state lives in the rng
// passed to each call.
type Simulator struct {
	plan model.JourneyPlan
	tt   *schedule.Timetable
}

// New validates the plan and returns a simulator.
func New(plan model.JourneyPlan, tt *schedule.Timetable) (*Simulator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if tt == nil {
		return nil, fmt.Errorf("timetable is required: %w", model.ErrInvalidConfig)
	}
	return &Simulator{plan: plan, tt: tt}, nil
}

// Plan returns the immutable journey plan.
func (s *Simulator) Plan() model.JourneyPlan { return s.plan }

// Simulate draws one realization of the journey for the given leave time.
// An unresolvable transit lookup propagates as a schedule gap; the sample is
// aborted rather than filled with fabricated data.
func (s *Simulator) Simulate(leave time.Time, rng *rand.Rand) (model.JourneySample, error) {
	walkOut := sampleDuration(s.plan.WalkOut.Base, s.plan.WalkOut.Jitter, rng)
	atStop := leave.Add(walkOut)

	trip, err := s.tt.NextTrip(atStop)
	if err != nil {
		return model.JourneySample{}, err
	}
	leg, err := s.tt.LegTime(trip.Departure)
	if err != nil {
		return model.JourneySample{}, err
	}

	legDur := sampleLeg(leg, s.plan.LegJitter, rng)
	walkIn := sampleDuration(s.plan.WalkIn.Base, s.plan.WalkIn.Jitter, rng)
	arrival := trip.Departure.Add(legDur + walkIn)

	return model.JourneySample{
		LeaveTime:        leave,
		WalkOut:          walkOut,
		TransitDeparture: trip.Departure,
		Wait:             trip.Departure.Sub(atStop),
		Leg:              legDur,
		WalkIn:           walkIn,
		Arrival:          arrival,
		// Equality is on time: only a strictly later arrival counts as late.
		Late: arrival.After(s.plan.Deadline),
	}, nil
}
