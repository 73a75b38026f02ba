package obfuscate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRound(t *testing.T) {
	tests := []struct {
		x    float64
		step uint64
		want uint64
	}{
		{3.2, 1, 3},
		{3.7, 1, 4},
		{12.8, 5, 15},
		{17.4, 5, 15},
		{38.2, 10, 40},
		{44.9, 10, 40},
		{0, 1, 0},
		{0, 5, 0},
		{0, 10, 0},
		{1_000_000, 1, 1_000_000},
		{1_000_000, 5, 1_000_000},
		{1_000_000, 10, 1_000_000},
		// ties round half up
		{2.5, 1, 3},
		{15, 10, 20},
		{5, 10, 10},
		// negatives clamp to zero
		{-0.4, 1, 0},
		{-3.7, 1, 0},
		{-1e300, 10, 0},
		{4.9, 10, 0},
	}

	for _, tt := range tests {
		got, err := Round(tt.x, tt.step)
		require.NoError(t, err, "Round(%v, %d)", tt.x, tt.step)
		assert.Equal(t, tt.want, got, "Round(%v, %d)", tt.x, tt.step)
	}
}

func TestRound_Errors(t *testing.T) {
	_, err := Round(10, 0)
	assert.ErrorIs(t, err, ErrInvalidRoundingStep)

	_, err = Round(1e30, 1)
	assert.ErrorIs(t, err, ErrResultOverflow)

	_, err = Round(math.NaN(), 1)
	assert.ErrorIs(t, err, ErrDistribution)

	_, err = Round(math.Inf(-1), 1)
	assert.ErrorIs(t, err, ErrDistribution)
}

func TestRoundPerturbed_KeepsPrecisionAbove2to53(t *testing.T) {
	value := uint64(1)<<60 + 3

	got, err := roundPerturbed(value, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	got, err = roundPerturbed(value, 2.2, 1)
	require.NoError(t, err)
	assert.Equal(t, value+2, got)

	got, err = roundPerturbed(value, -3.4, 1)
	require.NoError(t, err)
	assert.Equal(t, value-3, got)

	got, err = roundPerturbed(value, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<60, got)

	got, err = roundPerturbed(value, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<60+8, got)
}

func TestRoundPerturbed_Overflow(t *testing.T) {
	_, err := roundPerturbed(math.MaxUint64, 0.7, 1)
	assert.ErrorIs(t, err, ErrResultOverflow)

	// MaxUint64 rounds up to the next multiple of 10, which does not fit.
	_, err = roundPerturbed(math.MaxUint64, 0, 10)
	assert.ErrorIs(t, err, ErrResultOverflow)

	got, err := roundPerturbed(math.MaxUint64, -0.7, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), got)
}

func TestRoundPerturbed_LargeNegativeNoiseClampsToZero(t *testing.T) {
	got, err := roundPerturbed(1<<40, -1e30, 10)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestRound_NearestMultipleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(0, 1e9).Draw(t, "x")
		step := rapid.Uint64Range(1, 1000).Draw(t, "step")

		got, err := Round(x, step)
		if err != nil {
			t.Fatalf("Round(%v, %d) failed: %v", x, step, err)
		}
		if got%step != 0 {
			t.Fatalf("Round(%v, %d) = %d is not a multiple of the step", x, step, got)
		}
		if diff := math.Abs(float64(got) - x); diff > float64(step)/2+1e-6 {
			t.Fatalf("Round(%v, %d) = %d is %v away", x, step, got, diff)
		}
	})
}

func TestRound_InvalidStepNeverSucceeds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64().Draw(t, "x")
		if _, err := Round(x, 0); !errors.Is(err, ErrInvalidRoundingStep) {
			t.Fatalf("Round(%v, 0) returned %v", x, err)
		}
	})
}
