package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/latecast/latecast/core/model"
)

// Trip is one scheduled transit departure at the origin stop.
type Trip struct {
	VehicleID string
	Departure time.Time
}

// Timetable is the reconciled schedule: departures sorted ascending plus leg
// travel time statistics per time-of-day bucket. Read-only after Reconcile.
type Timetable struct {
	cfg     Config
	trips   []Trip
	buckets map[int]model.LegTravelTime
}

// NewTimetable builds a timetable directly from trips and bucket stats.
// Reconcile is the normal constructor; this one serves synthetic schedules.
func NewTimetable(trips []Trip, buckets map[int]model.LegTravelTime, cfg Config) (*Timetable, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sorted := make([]Trip, len(trips))
	copy(sorted, trips)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Departure.Equal(sorted[j].Departure) {
			return sorted[i].Departure.Before(sorted[j].Departure)
		}
		return sorted[i].VehicleID < sorted[j].VehicleID
	})
	copied := make(map[int]model.LegTravelTime, len(buckets))
	for k, v := range buckets {
		copied[k] = v
	}
	return &Timetable{cfg: cfg, trips: sorted, buckets: copied}, nil
}

// Trips returns the sorted departures.
func (t *Timetable) Trips() []Trip {
	out := make([]Trip, len(t.trips))
	copy(out, t.trips)
	return out
}

// Buckets returns the per-bucket leg travel times keyed by bucket index.
func (t *Timetable) Buckets() map[int]model.LegTravelTime {
	out := make(map[int]model.LegTravelTime, len(t.buckets))
	for k, v := range t.buckets {
		out[k] = v
	}
	return out
}

// BucketStart returns the wall-clock start of the given bucket index on the
// supplied day.
func (t *Timetable) BucketStart(day time.Time, idx int) time.Time {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return midnight.Add(time.Duration(idx) * t.cfg.BucketWidth)
}

// NextTrip returns the earliest departure at or after the given instant.
func (t *Timetable) NextTrip(at time.Time) (Trip, error) {
	i := sort.Search(len(t.trips), func(i int) bool {
		return !t.trips[i].Departure.Before(at)
	})
	if i == len(t.trips) {
		return Trip{}, fmt.Errorf("no departure at or after %s: %w", at.Format(time.TimeOnly), model.ErrScheduleGap)
	}
	return t.trips[i], nil
}

// LegTime resolves the leg travel time for a trip departing at the given
// instant. An unknown bucket falls back to the nearest known bucket within
// the configured window, closer buckets first and earlier buckets winning
// ties. With no known bucket in range the lookup fails with a schedule gap.
func (t *Timetable) LegTime(departure time.Time) (model.LegTravelTime, error) {
	idx := t.cfg.bucketIndex(departure)
	if lt, ok := t.buckets[idx]; ok {
		return lt, nil
	}
	maxOffset := int(t.cfg.FallbackWindow / t.cfg.BucketWidth)
	for off := 1; off <= maxOffset; off++ {
		if lt, ok := t.buckets[idx-off]; ok {
			return lt, nil
		}
		if lt, ok := t.buckets[idx+off]; ok {
			return lt, nil
		}
	}
	return model.LegTravelTime{}, fmt.Errorf("no leg travel time within %s of %s: %w",
		t.cfg.FallbackWindow, departure.Format(time.TimeOnly), model.ErrScheduleGap)
}
