package obfuscate

// Adapted from the two-sided geometric sampler in google-dp:
// https://github.com/google/differential-privacy/tree/main/go/v2/noise/laplace_noise.go
import (
	"fmt"
	"math"
)

// maxRejections bounds the redraws in twoSidedGeometric. Each draw is
// accepted with probability at least one half.
const maxRejections = 1 << 10

// maxGeomBound is the largest domain limit the geometric mechanism accepts;
// int64 magnitudes cannot represent a truncation point above it.
const maxGeomBound = 1 << 62

type geomDistribution struct {
	lambda  float64
	limited bool
	// bound is floor(limit), the largest magnitude allowed when limited.
	bound int64
	// truncation is expm1(-λ(bound+1)).
	truncation float64
}

func newGeomDistribution(sensitivity, epsilon float64, limit *float64) (*geomDistribution, error) {
	if !(sensitivity > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSensitivity, sensitivity)
	}
	if !(epsilon > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEpsilon, epsilon)
	}

	lambda := epsilon / sensitivity
	// Below 2⁻⁵⁹ the sample is truncated to max int64 too often to be useful.
	if !finite(lambda) || lambda < 0x1p-59 {
		return nil, fmt.Errorf("%w: geometric lambda %v (sensitivity %v, epsilon %v)", ErrDistribution, lambda, sensitivity, epsilon)
	}

	g := &geomDistribution{lambda: lambda}
	if limit != nil {
		if !(*limit > 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDomainLimit, *limit)
		}
		if !finite(*limit) {
			return nil, fmt.Errorf("%w: domain limit %v", ErrDistribution, *limit)
		}
		if *limit >= maxGeomBound {
			return nil, fmt.Errorf("%w: geometric domain limit %v at or above 2^62", ErrInvalidDomainLimit, *limit)
		}
		g.limited = true
		g.bound = int64(math.Floor(*limit))
		g.truncation = math.Expm1(-lambda * float64(g.bound+1))
	}
	return g, nil
}

// geometric draws a sample drawn from a geometric distribution with parameter
//
//	p = 1 - e^-λ.
//
// More precisely, it returns the number of Bernoulli trials until the first success
// where the success probability is p = 1 - e^-λ. The returned sample is truncated
// to the max int64 value.
func (geom *geomDistribution) geometric(src Source) int64 {
	if src.Float64() > -1.0*math.Expm1(-1.0*geom.lambda*math.MaxInt64) {
		return math.MaxInt64
	}

	// Binary search over (left, right]. Each step keeps the left or right half
	// with the probability of the sample falling inside it.
	var left int64 = 0              // exclusive bound
	var right int64 = math.MaxInt64 // inclusive bound

	for left+1 < right {
		// Split the probability mass roughly in half rather than the interval,
		// which cuts the number of iterations when p is large.
		mid := left - int64(math.Floor((math.Log(0.5)+math.Log1p(math.Exp(geom.lambda*float64(left-right))))/geom.lambda))
		// Keep mid strictly inside the interval despite rounding.
		if mid <= left {
			mid = left + 1
		} else if mid >= right {
			mid = right - 1
		}

		// q = Pr[X ≤ mid | left < X ≤ right], approximately one half.
		q := math.Expm1(geom.lambda*float64(left-mid)) / math.Expm1(geom.lambda*float64(left-right))
		if src.Float64() <= q {
			right = mid
		} else {
			left = mid
		}
	}
	return right
}

// truncatedGeometric draws from the geometric distribution above, shifted to
// start at 0 and conditioned on being at most bound. It takes the floor of a
// truncated exponential drawn by inverse transform.
func (geom *geomDistribution) truncatedGeometric(src Source) int64 {
	y := math.Floor(-math.Log1p(src.Float64()*geom.truncation) / geom.lambda)
	if y > float64(geom.bound) {
		return geom.bound
	}
	return int64(y)
}

// twoSidedGeometric draws a sample from a geometric distribution that is
// mirrored at 0. The non-negative part of the distribution's PDF matches
// the PDF of a geometric distribution of parameter p = 1 - e^-λ that is
// shifted to the left by 1 and scaled accordingly. When limited, the
// magnitude never exceeds bound.
func (geom *geomDistribution) twoSidedGeometric(src Source) (int64, error) {
	for i := 0; i < maxRejections; i++ {
		var sample int64
		if geom.limited {
			sample = geom.truncatedGeometric(src)
		} else {
			sample = geom.geometric(src) - 1
		}
		var sign int64 = 1
		if src.Float64() < 0.5 {
			sign = -1
		}
		// Keep a sample of 0 only if the sign is positive. Otherwise, the
		// probability of 0 would be twice as high as it should be.
		if sample != 0 || sign == 1 {
			return sample * sign, nil
		}
	}
	return 0, fmt.Errorf("%w: no two-sided geometric sample after %d draws", ErrDistribution, maxRejections)
}

func (geom *geomDistribution) sample(src Source) (float64, error) {
	s, err := geom.twoSidedGeometric(src)
	if err != nil {
		return 0, err
	}
	return float64(s), nil
}
