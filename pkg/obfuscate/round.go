package obfuscate

import (
	"fmt"
	"math"
	"math/bits"
)

// two64 is 2^64, the first float64 that does not fit in a uint64.
const two64 = 1 << 64

// Round snaps x to the nearest non-negative multiple of step. Ties round
// half up and negative results clamp to zero.
func Round(x float64, step uint64) (uint64, error) {
	return roundPerturbed(0, x, step)
}

// roundPerturbed returns Round(value+noise, step) without converting value to
// float64, so counts above 2^53 keep their precision. Writing value = q·step + r,
// floor((q·step + r + noise)/step + 1/2) = q + floor((r + noise)/step + 1/2).
func roundPerturbed(value uint64, noise float64, step uint64) (uint64, error) {
	if step == 0 {
		return 0, ErrInvalidRoundingStep
	}
	if !finite(noise) {
		return 0, fmt.Errorf("%w: non-finite noise %v", ErrDistribution, noise)
	}

	q, r := value/step, value%step
	shift := math.Floor((float64(r)+noise)/float64(step) + 0.5)

	if shift < 0 {
		if -shift >= two64 {
			return 0, nil
		}
		down := uint64(-shift)
		if down >= q {
			return 0, nil
		}
		return (q - down) * step, nil
	}

	if shift >= two64 {
		return 0, fmt.Errorf("%w: %v steps of %d above %d", ErrResultOverflow, shift, step, value)
	}
	steps, carry := bits.Add64(q, uint64(shift), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %v steps of %d above %d", ErrResultOverflow, shift, step, value)
	}
	hi, result := bits.Mul64(steps, step)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d steps of %d", ErrResultOverflow, steps, step)
	}
	return result, nil
}
