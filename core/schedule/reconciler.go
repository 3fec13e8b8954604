// Package schedule reconciles raw feed observations into a usable timetable:
// a sorted list of transit departures plus per-bucket leg travel time
// statistics. Reconciliation is a pure function of its input set; output
// never depends on the order observations arrive in.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/latecast/latecast/core/model"
)

// Config holds the reconciliation parameters.
type Config struct {
	// BucketWidth is the time-of-day interval used to group observations.
	BucketWidth time.Duration
	// MaxLegDuration is the sanity ceiling: a departure/arrival pair whose
	// implied duration exceeds it is rejected, never clamped.
	MaxLegDuration time.Duration
	// FallbackWindow bounds how far (both directions) a leg-time lookup may
	// borrow from a neighbouring bucket when its own bucket is unknown.
	FallbackWindow time.Duration
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BucketWidth == 0 {
		c.BucketWidth = 15 * time.Minute
	}
	if c.MaxLegDuration == 0 {
		c.MaxLegDuration = time.Hour
	}
	if c.FallbackWindow == 0 {
		c.FallbackWindow = 2 * time.Hour
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.BucketWidth <= 0 {
		return fmt.Errorf("bucket width must be positive: %w", model.ErrInvalidConfig)
	}
	if c.MaxLegDuration <= 0 {
		return fmt.Errorf("max leg duration must be positive: %w", model.ErrInvalidConfig)
	}
	if c.FallbackWindow < 0 {
		return fmt.Errorf("fallback window must not be negative: %w", model.ErrInvalidConfig)
	}
	return nil
}

func (c Config) bucketIndex(t time.Time) int {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return int(t.Sub(midnight) / c.BucketWidth)
}

type pairing struct {
	departure time.Time
	duration  time.Duration
}

// Reconcile pairs departures with arrivals and folds the implied durations
// into time-of-day buckets. Pairing runs in two passes: same-vehicle matches
// first, then nearest-by-time over the leftovers. Only pairs with a positive
// implied duration at or below the sanity ceiling are accepted.
func Reconcile(observations []model.ScheduleObservation, cfg Config) (*Timetable, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var departures, arrivals []model.ScheduleObservation
	var pairs []pairing
	for _, o := range observations {
		switch {
		case o.HasDeparture() && o.HasArrival():
			// A fully observed trip pairs with itself when plausible;
			// otherwise the arrival side is discarded as bogus.
			if d := o.DestArrival.Sub(o.OriginDeparture); d > 0 && d <= cfg.MaxLegDuration {
				pairs = append(pairs, pairing{departure: o.OriginDeparture, duration: d})
			}
			departures = append(departures, o)
		case o.HasDeparture():
			departures = append(departures, o)
		case o.HasArrival():
			arrivals = append(arrivals, o)
		}
	}

	// Deterministic processing order: earliest timestamp first, vehicle id
	// lexically on ties.
	sort.Slice(departures, func(i, j int) bool {
		if !departures[i].OriginDeparture.Equal(departures[j].OriginDeparture) {
			return departures[i].OriginDeparture.Before(departures[j].OriginDeparture)
		}
		return departures[i].VehicleID < departures[j].VehicleID
	})
	sort.Slice(arrivals, func(i, j int) bool {
		if !arrivals[i].DestArrival.Equal(arrivals[j].DestArrival) {
			return arrivals[i].DestArrival.Before(arrivals[j].DestArrival)
		}
		return arrivals[i].VehicleID < arrivals[j].VehicleID
	})

	matched := make([]bool, len(departures))
	used := make([]bool, len(arrivals))
	plausible := func(dep, arr time.Time) bool {
		d := arr.Sub(dep)
		return d > 0 && d <= cfg.MaxLegDuration
	}

	// Pass 1: same vehicle, earliest plausible arrival.
	for i, dep := range departures {
		if dep.HasArrival() {
			matched[i] = true // already self-paired above
			continue
		}
		if dep.VehicleID == "" {
			continue
		}
		for j, arr := range arrivals {
			if used[j] || arr.VehicleID != dep.VehicleID {
				continue
			}
			if plausible(dep.OriginDeparture, arr.DestArrival) {
				pairs = append(pairs, pairing{departure: dep.OriginDeparture, duration: arr.DestArrival.Sub(dep.OriginDeparture)})
				used[j] = true
				matched[i] = true
				break
			}
		}
	}

	// Pass 2: nearest-by-time over the remainder. Both sides are sorted, so
	// a single forward walk suffices: an arrival too early for the current
	// departure is too early for every later one as well.
	j := 0
	for i, dep := range departures {
		if matched[i] {
			continue
		}
		for j < len(arrivals) && (used[j] || !arrivals[j].DestArrival.After(dep.OriginDeparture)) {
			j++
		}
		if j == len(arrivals) {
			break
		}
		if arrivals[j].DestArrival.Sub(dep.OriginDeparture) <= cfg.MaxLegDuration {
			pairs = append(pairs, pairing{departure: dep.OriginDeparture, duration: arrivals[j].DestArrival.Sub(dep.OriginDeparture)})
			used[j] = true
			matched[i] = true
			j++
		}
		// Above the ceiling: the departure stays unmatched and the arrival
		// remains available for a later departure.
	}

	trips := make([]Trip, len(departures))
	for i, dep := range departures {
		trips[i] = Trip{VehicleID: dep.VehicleID, Departure: dep.OriginDeparture}
	}

	return &Timetable{cfg: cfg, trips: trips, buckets: bucketStats(pairs, cfg)}, nil
}

func bucketStats(pairs []pairing, cfg Config) map[int]model.LegTravelTime {
	grouped := make(map[int][]time.Duration)
	for _, p := range pairs {
		idx := cfg.bucketIndex(p.departure)
		grouped[idx] = append(grouped[idx], p.duration)
	}
	buckets := make(map[int]model.LegTravelTime, len(grouped))
	for idx, durs := range grouped {
		if len(durs) == 1 {
			// Single pair: the reconciled duration is the implied duration,
			// exactly.
			buckets[idx] = model.LegTravelTime{Mean: durs[0], Samples: 1}
			continue
		}
		xs := make([]float64, len(durs))
		for i, d := range durs {
			xs[i] = d.Seconds()
		}
		buckets[idx] = model.LegTravelTime{
			Mean:    time.Duration(stat.Mean(xs, nil) * float64(time.Second)),
			StdDev:  time.Duration(stat.StdDev(xs, nil) * float64(time.Second)),
			Samples: len(durs),
		}
	}
	return buckets
}
