// Package obfuscate releases counts with Laplace-mechanism noise.
//
// A count is perturbed, rounded to a configured step and memoized in a
// caller-owned Cache keyed by (value, bin), so asking the same question twice
// returns the same answer and the noise cannot be averaged away. Counts below
// SmallCountBoundary are handled by a ThresholdMode, and a true zero can be
// passed through unperturbed.
//
// The engine holds no state of its own. The Cache and the Source are both
// supplied by the caller, who is responsible for serializing shared caches and
// for choosing a generator suited to the threat model.
package obfuscate

import "fmt"

// Config holds the parameters of the mechanism. It must stay fixed for the
// lifetime of any Cache it is used with.
type Config struct {
	// Sensitivity is Δ, the most a single record can change the count.
	Sensitivity float64 `json:"sensitivity"`
	// Epsilon is the privacy budget ε.
	Epsilon float64 `json:"epsilon"`
	// DomainLimit, when set, truncates the noise to [-L, L].
	DomainLimit *float64 `json:"domain_limit,omitempty"`
	// RoundingStep is the granularity of results; 1 disables rounding.
	RoundingStep uint64 `json:"rounding_step"`
	// Mode decides how counts below SmallCountBoundary are reported.
	Mode ThresholdMode `json:"threshold_mode"`
	// PreserveTrueZero reports a true 0 as 0 without noise.
	PreserveTrueZero bool `json:"preserve_true_zero"`
	// Mechanism selects Laplace (default) or two-sided geometric noise.
	Mechanism Mechanism `json:"mechanism"`
}

// Validate checks the parameters without building a distribution.
func (c Config) Validate() error {
	if !(c.Sensitivity > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSensitivity, c.Sensitivity)
	}
	if !(c.Epsilon > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidEpsilon, c.Epsilon)
	}
	if c.RoundingStep == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRoundingStep, c.RoundingStep)
	}
	if c.DomainLimit != nil && !(*c.DomainLimit > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDomainLimit, *c.DomainLimit)
	}
	if !c.Mode.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidThresholdMode, int(c.Mode))
	}
	if c.Mechanism != MechanismLaplace && c.Mechanism != MechanismGeometric {
		return fmt.Errorf("%w: %d", ErrInvalidMechanism, int(c.Mechanism))
	}
	return nil
}

// Obfuscate returns the obfuscated form of value in bin.
//
// A nil cache draws fresh noise on every call. A nil src uses SecureSource.
// Randomness is consumed only when the value is actually perturbed, and the
// cache is only written on success.
func Obfuscate(value uint64, bin Bin, cfg Config, cache Cache, src Source) (uint64, error) {
	s, err := prepare(cfg)
	if err != nil {
		return 0, err
	}
	return obfuscate(value, bin, cfg, s, cache, src)
}

func prepare(cfg Config) (sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newSampler(cfg)
}

func obfuscate(value uint64, bin Bin, cfg Config, s sampler, cache Cache, src Source) (uint64, error) {
	if cfg.PreserveTrueZero && value == 0 {
		return 0, nil
	}
	if result, ok := cfg.Mode.Decide(value); ok {
		return result, nil
	}

	key := Key{Value: value, Bin: bin}
	if cache != nil {
		if cached, ok := cache.Lookup(key); ok {
			return cached, nil
		}
	}

	if src == nil {
		src = SecureSource()
	}
	noise, err := s.sample(src)
	if err != nil {
		return 0, err
	}
	result, err := roundPerturbed(value, noise, cfg.RoundingStep)
	if err != nil {
		return 0, err
	}

	if cache == nil {
		return result, nil
	}
	stored, err := cache.Insert(key, result)
	if err != nil {
		return 0, fmt.Errorf("failed to cache value %d in bin %d: %w", value, bin, err)
	}
	return stored, nil
}

// Obfuscator binds a Config, Cache and Source for one cache lifetime.
type Obfuscator struct {
	cfg     Config
	sampler sampler
	cache   Cache
	src     Source
}

// New validates cfg and returns an Obfuscator. cache may be nil; a nil src
// uses SecureSource.
func New(cfg Config, cache Cache, src Source) (*Obfuscator, error) {
	s, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = SecureSource()
	}
	return &Obfuscator{
		cfg:     cfg,
		sampler: s,
		cache:   cache,
		src:     src,
	}, nil
}

// Obfuscate returns the obfuscated form of value in bin.
func (o *Obfuscator) Obfuscate(value uint64, bin Bin) (uint64, error) {
	return obfuscate(value, bin, o.cfg, o.sampler, o.cache, o.src)
}

// Config returns the bound configuration.
func (o *Obfuscator) Config() Config {
	return o.cfg
}

// Guarantee returns the privacy guarantee of the bound configuration.
func (o *Obfuscator) Guarantee() Guarantee {
	return o.cfg.Guarantee()
}
