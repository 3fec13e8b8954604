package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/latecast/latecast/core/model"
)

func pairedObs(vehicle string, dep, arr time.Time) []model.ScheduleObservation {
	return []model.ScheduleObservation{
		{VehicleID: vehicle, OriginDeparture: dep},
		{VehicleID: vehicle, DestArrival: arr},
	}
}

func TestNextTrip(t *testing.T) {
	obs := append(pairedObs("a", at(8, 50), at(8, 58)), pairedObs("b", at(9, 20), at(9, 29))...)
	tt, err := Reconcile(obs, Config{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	trip, err := tt.NextTrip(at(8, 45))
	if err != nil {
		t.Fatalf("next trip: %v", err)
	}
	if !trip.Departure.Equal(at(8, 50)) {
		t.Fatalf("expected 08:50, got %s", trip.Departure)
	}

	// Exactly at departure counts as catchable.
	trip, err = tt.NextTrip(at(8, 50))
	if err != nil {
		t.Fatalf("next trip at boundary: %v", err)
	}
	if !trip.Departure.Equal(at(8, 50)) {
		t.Fatalf("expected 08:50 at boundary, got %s", trip.Departure)
	}

	trip, err = tt.NextTrip(at(8, 51))
	if err != nil {
		t.Fatalf("next trip after first: %v", err)
	}
	if !trip.Departure.Equal(at(9, 20)) {
		t.Fatalf("expected 09:20, got %s", trip.Departure)
	}
}

func TestNextTripGap(t *testing.T) {
	tt, err := Reconcile(pairedObs("a", at(8, 50), at(8, 58)), Config{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	_, err = tt.NextTrip(at(8, 51))
	if !errors.Is(err, model.ErrScheduleGap) {
		t.Fatalf("expected ErrScheduleGap, got %v", err)
	}
}

func TestLegTimeFallbackNearestBucket(t *testing.T) {
	// Known data only around 08:50; a departure at 09:40 must borrow it.
	cfg := Config{BucketWidth: 15 * time.Minute, FallbackWindow: 2 * time.Hour}
	tt, err := Reconcile(pairedObs("a", at(8, 50), at(8, 58)), cfg)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	lt, err := tt.LegTime(at(9, 40))
	if err != nil {
		t.Fatalf("fallback lookup: %v", err)
	}
	if lt.Mean != 8*time.Minute {
		t.Fatalf("expected borrowed 8m mean, got %s", lt.Mean)
	}
}

func TestLegTimeFallbackTieEarlierWins(t *testing.T) {
	cfg := Config{BucketWidth: 15 * time.Minute, FallbackWindow: 2 * time.Hour}
	obs := append(pairedObs("a", at(8, 0), at(8, 8)), pairedObs("b", at(8, 30), at(8, 42))...)
	tt, err := Reconcile(obs, cfg)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// 08:15 sits exactly one bucket from both known buckets.
	lt, err := tt.LegTime(at(8, 15))
	if err != nil {
		t.Fatalf("tie lookup: %v", err)
	}
	if lt.Mean != 8*time.Minute {
		t.Fatalf("expected the earlier bucket (8m), got %s", lt.Mean)
	}
}

func TestLegTimeGapBeyondWindow(t *testing.T) {
	cfg := Config{BucketWidth: 15 * time.Minute, FallbackWindow: 30 * time.Minute}
	tt, err := Reconcile(pairedObs("a", at(8, 0), at(8, 8)), cfg)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	_, err = tt.LegTime(at(12, 0))
	if !errors.Is(err, model.ErrScheduleGap) {
		t.Fatalf("expected ErrScheduleGap, got %v", err)
	}
}

func TestEmptyObservations(t *testing.T) {
	tt, err := Reconcile(nil, Config{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(tt.Trips()) != 0 {
		t.Fatalf("expected no trips, got %d", len(tt.Trips()))
	}
	if _, err := tt.NextTrip(at(8, 0)); !errors.Is(err, model.ErrScheduleGap) {
		t.Fatalf("expected ErrScheduleGap, got %v", err)
	}
}

func TestNewTimetableSortsTrips(t *testing.T) {
	trips := []Trip{
		{VehicleID: "b", Departure: at(9, 0)},
		{VehicleID: "a", Departure: at(8, 0)},
		{VehicleID: "a", Departure: at(9, 0)},
	}
	tt, err := NewTimetable(trips, nil, Config{})
	if err != nil {
		t.Fatalf("new timetable: %v", err)
	}
	got := tt.Trips()
	if !got[0].Departure.Equal(at(8, 0)) || got[1].VehicleID != "a" || got[2].VehicleID != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
}
