// Package sweep iterates candidate leave-home times and assembles the
// lateness probability curve.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/montecarlo"
	"github.com/latecast/latecast/core/randstream"
	"github.com/latecast/latecast/infra/logger"
	"github.com/latecast/latecast/internal/eventbus"
)

// GapPolicy decides what a schedule gap at one leave time does to the sweep.
type GapPolicy int

const (
	// GapSkip records the leave time as an explicit gap point and continues.
	GapSkip GapPolicy = iota
	// GapAbort fails the whole sweep on the first gap.
	GapAbort
)

// ParseGapPolicy converts the configuration string form.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch s {
	case "", "skip":
		return GapSkip, nil
	case "abort":
		return GapAbort, nil
	default:
		return GapSkip, fmt.Errorf("unknown gap policy %q: %w", s, model.ErrInvalidConfig)
	}
}

func (g GapPolicy) String() string {
	if g == GapAbort {
		return "abort"
	}
	return "skip"
}

// Config holds the sweep parameters.
type Config struct {
	Start       time.Time
	End         time.Time
	Step        time.Duration
	Seed        uint64
	GapPolicy   GapPolicy
	Parallelism int
}

// Validate checks the sweep bounds.
func (c Config) Validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("sweep step must be positive: %w", model.ErrInvalidConfig)
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("sweep end precedes start: %w", model.ErrInvalidConfig)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative: %w", model.ErrInvalidConfig)
	}
	return nil
}

// Driver runs the aggregator once per leave time.
type Driver struct {
	est *montecarlo.Estimator
	cfg Config
	log logger.Logger
	bus *eventbus.Bus
}

// New validates the configuration and returns a driver. The bus is optional.
func New(est *montecarlo.Estimator, cfg Config, log logger.Logger, bus *eventbus.Bus) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if est == nil {
		return nil, fmt.Errorf("estimator is required: %w", model.ErrInvalidConfig)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Driver{est: est, cfg: cfg, log: log, bus: bus}, nil
}

// LeaveTimes lists the candidate leave times: start, start+step, ... and end
// itself when it lands exactly on a step boundary.
func (d *Driver) LeaveTimes() []time.Time {
	var out []time.Time
	for t := d.cfg.Start; !t.After(d.cfg.End); t = t.Add(d.cfg.Step) {
		out = append(out, t)
	}
	return out
}

type slot struct {
	point model.CurvePoint
	err   error
	done  bool
}

// Run produces the lateness curve. Each leave time gets an independent seed
// stream derived from the root seed and its index, so the curve is
// reproducible for any parallelism degree. Under the skip policy a schedule
// gap becomes an explicitly marked gap point; under abort it fails the
// sweep. Cancellation returns the valid, ordered set of points computed so
// far along with the context error.
func (d *Driver) Run(ctx context.Context) (model.LatenessCurve, error) {
	leaves := d.LeaveTimes()
	root := randstream.New(d.cfg.Seed)
	slots := make([]slot, len(leaves))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runPoint := func(i int) {
		if ctx.Err() != nil {
			return
		}
		est, err := d.est.Estimate(ctx, leaves[i], root.Child(uint64(i)))
		switch {
		case err == nil:
			slots[i] = slot{point: model.CurvePoint{LeaveTime: leaves[i], Estimate: est}, done: true}
			d.publish(eventbus.PointEvent{LeaveTime: leaves[i], Estimate: est, Index: i, Total: len(leaves)})
		case errors.Is(err, model.ErrScheduleGap) && d.cfg.GapPolicy == GapSkip:
			d.log.Warnf("no resolvable schedule for leave time %s, recording gap", leaves[i].Format(time.TimeOnly))
			slots[i] = slot{point: model.CurvePoint{LeaveTime: leaves[i], Gap: true}, done: true}
			d.publish(eventbus.PointEvent{LeaveTime: leaves[i], Gap: true, Index: i, Total: len(leaves)})
		default:
			slots[i] = slot{err: err, done: true}
			cancel()
		}
	}

	if d.cfg.Parallelism > 1 {
		p := pool.New().WithMaxGoroutines(d.cfg.Parallelism)
		for i := range leaves {
			i := i
			p.Go(func() { runPoint(i) })
		}
		p.Wait()
	} else {
		for i := range leaves {
			runPoint(i)
		}
	}

	curve := model.LatenessCurve{}
	for _, s := range slots {
		if s.done && s.err == nil {
			curve.Points = append(curve.Points, s.point)
		}
	}
	// Failures surface in leave-time order so the reported error does not
	// depend on goroutine scheduling. In-flight points cancelled after the
	// first real failure rank behind it.
	for _, s := range slots {
		if s.err != nil && !errors.Is(s.err, context.Canceled) && !errors.Is(s.err, context.DeadlineExceeded) {
			return curve, s.err
		}
	}
	for _, s := range slots {
		if s.err != nil {
			return curve, s.err
		}
	}
	if err := ctx.Err(); err != nil {
		return curve, err
	}
	return curve, nil
}

func (d *Driver) publish(e eventbus.PointEvent) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}
