package obfuscate

import "fmt"

// Guarantee describes the privacy guarantee of a Config.
//
// Without a domain limit the mechanism is pure ε-differentially private.
// With a limit L the noise support is truncated to [-L, L] and the guarantee
// weakens to (ε, δ)-differential privacy, where
//
//	δ(ε, L) = sup_S (Pr[Z ∈ S] − e^ε · Pr[Z ∈ S − Δ])₊
//
// for the truncated noise Z. The engine does not compute δ; Guarantee carries
// the parameters needed to do so.
type Guarantee struct {
	Mechanism   Mechanism
	Sensitivity float64
	Epsilon     float64
	// Scale is Δ/ε, the Laplace scale b. For the geometric mechanism λ = 1/Scale.
	Scale       float64
	DomainLimit *float64
}

// Guarantee returns the privacy guarantee in effect for c.
func (c Config) Guarantee() Guarantee {
	g := Guarantee{
		Mechanism:   c.Mechanism,
		Sensitivity: c.Sensitivity,
		Epsilon:     c.Epsilon,
		Scale:       c.Sensitivity / c.Epsilon,
	}
	if c.DomainLimit != nil {
		limit := *c.DomainLimit
		g.DomainLimit = &limit
	}
	return g
}

// Pure reports whether the guarantee is pure ε-DP, i.e. δ = 0.
func (g Guarantee) Pure() bool {
	return g.DomainLimit == nil
}

func (g Guarantee) String() string {
	if g.Pure() {
		return fmt.Sprintf("(ε=%g)-DP, %s noise, scale %g", g.Epsilon, g.Mechanism, g.Scale)
	}
	return fmt.Sprintf("(ε=%g, δ>0)-DP, %s noise, scale %g, truncated to ±%g", g.Epsilon, g.Mechanism, g.Scale, *g.DomainLimit)
}
