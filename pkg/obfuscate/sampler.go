package obfuscate

import (
	"fmt"
	"math"
)

// Mechanism selects the noise distribution.
type Mechanism int

const (
	// MechanismLaplace draws continuous Laplace noise with scale sensitivity/epsilon.
	MechanismLaplace Mechanism = iota
	// MechanismGeometric draws two-sided geometric (discrete Laplace) noise
	// with parameter epsilon/sensitivity.
	MechanismGeometric
)

func (m Mechanism) String() string {
	switch m {
	case MechanismLaplace:
		return "laplace"
	case MechanismGeometric:
		return "geometric"
	default:
		return fmt.Sprintf("Mechanism(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mechanism) MarshalText() ([]byte, error) {
	if m != MechanismLaplace && m != MechanismGeometric {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMechanism, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mechanism) UnmarshalText(text []byte) error {
	mech, err := ParseMechanism(string(text))
	if err != nil {
		return err
	}
	*m = mech
	return nil
}

// ParseMechanism parses the text form of a Mechanism. The empty string
// selects MechanismLaplace.
func ParseMechanism(s string) (Mechanism, error) {
	switch s {
	case "", "laplace":
		return MechanismLaplace, nil
	case "geometric":
		return MechanismGeometric, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMechanism, s)
	}
}

// sampler draws one noise value centered at zero.
type sampler interface {
	sample(src Source) (float64, error)
}

// newSampler builds the distribution for a validated config.
func newSampler(cfg Config) (sampler, error) {
	switch cfg.Mechanism {
	case MechanismLaplace:
		return newLaplaceDistribution(cfg.Sensitivity, cfg.Epsilon, cfg.DomainLimit)
	case MechanismGeometric:
		return newGeomDistribution(cfg.Sensitivity, cfg.Epsilon, cfg.DomainLimit)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMechanism, int(cfg.Mechanism))
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// laplaceDistribution is a Laplace distribution with location 0, optionally
// truncated to [-limit, limit].
type laplaceDistribution struct {
	scale   float64
	limited bool
	limit   float64
	// truncation is expm1(-limit/scale), the negated probability mass of
	// the exponential magnitude inside [0, limit].
	truncation float64
}

func newLaplaceDistribution(sensitivity, epsilon float64, limit *float64) (*laplaceDistribution, error) {
	if !(sensitivity > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSensitivity, sensitivity)
	}
	if !(epsilon > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEpsilon, epsilon)
	}

	scale := sensitivity / epsilon
	if !finite(scale) || scale == 0 {
		return nil, fmt.Errorf("%w: laplace scale %v (sensitivity %v, epsilon %v)", ErrDistribution, scale, sensitivity, epsilon)
	}

	d := &laplaceDistribution{scale: scale}
	if limit != nil {
		if !(*limit > 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDomainLimit, *limit)
		}
		if !finite(*limit) {
			return nil, fmt.Errorf("%w: domain limit %v", ErrDistribution, *limit)
		}
		d.limited = true
		d.limit = *limit
		d.truncation = math.Expm1(-d.limit / d.scale)
	}
	return d, nil
}

// sample draws by inverse transform: the magnitude is exponential (truncated
// at limit when limited) and the sign is a fair coin.
func (d *laplaceDistribution) sample(src Source) (float64, error) {
	u := src.Float64()
	if !(u >= 0 && u < 1) {
		return 0, fmt.Errorf("%w: source returned %v outside [0, 1)", ErrDistribution, u)
	}

	var magnitude float64
	if d.limited {
		magnitude = -d.scale * math.Log1p(u*d.truncation)
		// Rounding in log1p can land a hair above the bound.
		magnitude = math.Min(magnitude, d.limit)
	} else {
		magnitude = -d.scale * math.Log1p(-u)
	}

	if src.Float64() < 0.5 {
		return -magnitude, nil
	}
	return magnitude, nil
}
