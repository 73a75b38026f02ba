package obfuscate

import "errors"

// Errors returned by the engine. Failures of the engine itself wrap one of
// these, so callers can branch on errors.Is. An error from a caller-supplied
// Cache's Insert is passed through wrapped as is.
var (
	// ErrInvalidSensitivity is returned when the sensitivity is not strictly positive.
	ErrInvalidSensitivity = errors.New("invalid sensitivity")

	// ErrInvalidEpsilon is returned when the privacy budget is not strictly positive.
	ErrInvalidEpsilon = errors.New("invalid epsilon")

	// ErrInvalidRoundingStep is returned when the rounding step is zero.
	ErrInvalidRoundingStep = errors.New("invalid rounding step")

	// ErrInvalidDomainLimit is returned when a domain limit is supplied but is not strictly positive.
	ErrInvalidDomainLimit = errors.New("invalid domain limit")

	// ErrDistribution is returned when the noise distribution cannot be built
	// from the configured parameters, or a draw cannot be produced.
	ErrDistribution = errors.New("distribution construction failed")

	// ErrResultOverflow is returned when the obfuscated value does not fit in a uint64.
	ErrResultOverflow = errors.New("result overflow")
)

// Go enums are open, so out-of-range modes get their own kinds.
var (
	// ErrInvalidThresholdMode is returned for an unknown ThresholdMode.
	ErrInvalidThresholdMode = errors.New("invalid threshold mode")

	// ErrInvalidMechanism is returned for an unknown Mechanism.
	ErrInvalidMechanism = errors.New("invalid noise mechanism")
)
