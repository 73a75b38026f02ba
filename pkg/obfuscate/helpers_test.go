package obfuscate

import "math/rand/v2"

// countingSource records how many uniforms were drawn.
type countingSource struct {
	src   Source
	draws int
}

func newCountingSource(seed uint64) *countingSource {
	return &countingSource{src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (c *countingSource) Float64() float64 {
	c.draws++
	return c.src.Float64()
}

// seqSource replays a fixed sequence of uniforms.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func limit(l float64) *float64 {
	return &l
}

func baseConfig() Config {
	return Config{
		Sensitivity:  1,
		Epsilon:      1,
		RoundingStep: 1,
		Mode:         ThresholdFull,
	}
}
