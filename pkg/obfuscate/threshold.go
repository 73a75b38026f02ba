package obfuscate

import "fmt"

// SmallCountBoundary is the count below which the threshold policy applies.
const SmallCountBoundary uint64 = 10

// ThresholdMode selects how counts below SmallCountBoundary are reported.
type ThresholdMode int

const (
	// ThresholdFull sends small counts through the full noise pipeline.
	ThresholdFull ThresholdMode = iota
	// ThresholdZero reports every small count as 0.
	ThresholdZero
	// ThresholdConstant reports every small count as SmallCountBoundary.
	ThresholdConstant
)

var thresholdModeNames = map[ThresholdMode]string{
	ThresholdFull:     "obfuscate",
	ThresholdZero:     "zero",
	ThresholdConstant: "constant",
}

// Decide applies the policy to a true value. When shortCircuit is true the
// result is final and no noise is drawn.
func (m ThresholdMode) Decide(value uint64) (result uint64, shortCircuit bool) {
	if value >= SmallCountBoundary {
		return 0, false
	}
	switch m {
	case ThresholdZero:
		return 0, true
	case ThresholdConstant:
		return SmallCountBoundary, true
	default:
		return 0, false
	}
}

func (m ThresholdMode) valid() bool {
	_, ok := thresholdModeNames[m]
	return ok
}

func (m ThresholdMode) String() string {
	if name, ok := thresholdModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ThresholdMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ThresholdMode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThresholdMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "ten" and "full" are
// accepted as aliases of "constant" and "obfuscate".
func (m *ThresholdMode) UnmarshalText(text []byte) error {
	mode, err := ParseThresholdMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseThresholdMode parses the text form of a ThresholdMode.
func ParseThresholdMode(s string) (ThresholdMode, error) {
	switch s {
	case "zero":
		return ThresholdZero, nil
	case "constant", "ten":
		return ThresholdConstant, nil
	case "obfuscate", "full":
		return ThresholdFull, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidThresholdMode, s)
	}
}
