package obfuscate

import "github.com/google/differential-privacy/go/v2/rand"

// Source supplies the randomness consumed by the noise samplers.
// Float64 must return a uniform draw from [0, 1). *math/rand.Rand and
// *math/rand/v2.Rand both satisfy it, which keeps seeded tests simple.
type Source interface {
	Float64() float64
}

type secureSource struct{}

// SecureSource returns a Source backed by the differential privacy library's
// cryptographically secure generator. It is the default when no Source is given.
func SecureSource() Source {
	return secureSource{}
}

func (secureSource) Float64() float64 {
	// rand.Uniform draws from (0, 1], flip it onto [0, 1).
	u := 1 - rand.Uniform()
	if u >= 1 {
		return 0
	}
	return u
}
