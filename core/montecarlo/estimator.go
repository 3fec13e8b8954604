// Package montecarlo reduces repeated journey simulations to a lateness
// probability with optional binomial confidence bounds.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/latecast/latecast/core/model"
	"github.com/latecast/latecast/core/randstream"
	"github.com/latecast/latecast/core/sim"
	"github.com/latecast/latecast/infra/logger"
)

// chunkSize is the number of samples drawn from one derived random stream.
// Chunk boundaries are fixed so the estimate is identical for any worker
// count: lateness counts are summed, and sums are order-independent.
const chunkSize = 4096

// Config holds the aggregation parameters.
type Config struct {
	// Iterations is the number of journey samples per leave time.
	Iterations int
	// Confidence requests a Wilson interval at this level (e.g. 0.95).
	// Zero disables the interval.
	Confidence float64
	// Workers bounds parallel chunk execution; values below 2 run serially.
	Workers int
	// WarnIterations flags estimates drawn from fewer samples than a
	// meaningful confidence width requires.
	WarnIterations int
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.WarnIterations == 0 {
		c.WarnIterations = 1000
	}
}

// Validate checks the aggregation parameters.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive: %w", model.ErrInvalidConfig)
	}
	if c.Confidence < 0 || c.Confidence >= 1 {
		return fmt.Errorf("confidence level must be in [0,1): %w", model.ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %w", model.ErrInvalidConfig)
	}
	return nil
}

// Estimator runs Monte Carlo aggregation over a simulator.
type Estimator struct {
	sim *sim.Simulator
	cfg Config
	log logger.Logger
}

// New validates the configuration and returns an estimator.
func New(s *sim.Simulator, cfg Config, log logger.Logger) (*Estimator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("simulator is required: %w", model.ErrInvalidConfig)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if cfg.Iterations < cfg.WarnIterations {
		log.Warnf("iterations=%d below recommended minimum %d, estimates will be noisy", cfg.Iterations, cfg.WarnIterations)
	}
	return &Estimator{sim: s, cfg: cfg, log: log}, nil
}

// Estimate draws the configured number of journey samples for one leave time
// and folds them into a lateness estimate. A schedule gap in any sample
// aborts the whole estimate; a partially sampled probability would be
// silently biased.
func (e *Estimator) Estimate(ctx context.Context, leave time.Time, stream randstream.Stream) (model.LatenessEstimate, error) {
	chunks := (e.cfg.Iterations + chunkSize - 1) / chunkSize
	counts := make([]int64, chunks)
	errs := make([]error, chunks)

	runChunk := func(c int) {
		if ctx.Err() != nil {
			errs[c] = ctx.Err()
			return
		}
		n := chunkSize
		if c == chunks-1 {
			n = e.cfg.Iterations - c*chunkSize
		}
		rng := stream.Child(uint64(c)).Rand()
		var late int64
		for i := 0; i < n; i++ {
			sample, err := e.sim.Simulate(leave, rng)
			if err != nil {
				errs[c] = err
				return
			}
			if sample.Late {
				late++
			}
		}
		counts[c] = late
	}

	if e.cfg.Workers > 1 && chunks > 1 {
		p := pool.New().WithMaxGoroutines(e.cfg.Workers)
		for c := 0; c < chunks; c++ {
			c := c
			p.Go(func() { runChunk(c) })
		}
		p.Wait()
	} else {
		for c := 0; c < chunks; c++ {
			runChunk(c)
		}
	}

	// Errors are reported in chunk order so failures are as deterministic
	// as the estimates themselves.
	for _, err := range errs {
		if err != nil {
			return model.LatenessEstimate{}, err
		}
	}

	var late int64
	for c := range counts {
		late += counts[c]
	}
	est := model.LatenessEstimate{
		Probability: float64(late) / float64(e.cfg.Iterations),
		Samples:     e.cfg.Iterations,
		LateCount:   int(late),
	}
	if e.cfg.Confidence > 0 {
		ci := wilson(est.Probability, est.Samples, e.cfg.Confidence)
		est.Interval = &ci
	}
	return est, nil
}

// wilson computes the Wilson score interval for a binomial proportion.
func wilson(p float64, n int, level float64) model.ConfidenceInterval {
	z := distuv.UnitNormal.Quantile(0.5 + level/2)
	nn := float64(n)
	denom := 1 + z*z/nn
	center := (p + z*z/(2*nn)) / denom
	half := z * math.Sqrt(p*(1-p)/nn+z*z/(4*nn*nn)) / denom
	return model.ConfidenceInterval{
		Level: level,
		Low:   math.Max(0, center-half),
		High:  math.Min(1, center+half),
	}
}
