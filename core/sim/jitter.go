package sim

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/latecast/latecast/core/model"
)

// maxRedraws bounds rejection sampling when truncating a normal draw at
// zero. After that many negative draws the sample is floored to zero.
const maxRedraws = 8

// sampleDuration draws one duration around base according to the jitter
// spec. Draws are truncated so the result is never negative.
func sampleDuration(base time.Duration, j model.JitterSpec, rng *rand.Rand) time.Duration {
	if j.Family == model.JitterNone || j.Spread <= 0 {
		if base < 0 {
			return 0
		}
		return base
	}
	b := base.Seconds()
	s := j.Spread.Seconds()
	var draw func() float64
	switch j.Family {
	case model.JitterNormal:
		dist := distuv.Normal{Mu: b, Sigma: s, Src: rng}
		draw = dist.Rand
	case model.JitterTriangle:
		dist := distuv.NewTriangle(b-s, b+s, b, rng)
		draw = dist.Rand
	case model.JitterUniform:
		dist := distuv.Uniform{Min: b - s, Max: b + s, Src: rng}
		draw = dist.Rand
	default:
		if base < 0 {
			return 0
		}
		return base
	}
	v := draw()
	for i := 0; v < 0 && i < maxRedraws; i++ {
		v = draw()
	}
	if v < 0 {
		v = 0
	}
	return time.Duration(v * float64(time.Second))
}

// sampleLeg draws the transit leg duration. A bucket with measured spread is
// sampled as a truncated normal around its own statistics; a point estimate
// gets the plan's independent leg jitter instead.
func sampleLeg(lt model.LegTravelTime, jitter model.JitterSpec, rng *rand.Rand) time.Duration {
	if lt.Samples > 1 && lt.StdDev > 0 {
		return sampleDuration(lt.Mean, model.JitterSpec{Family: model.JitterNormal, Spread: lt.StdDev}, rng)
	}
	return sampleDuration(lt.Mean, jitter, rng)
}
