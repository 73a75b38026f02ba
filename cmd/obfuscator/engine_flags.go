package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/mundrapranay/silhouette-obfuscator/internal/config"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// engineFlags override the obfuscation section of the config file.
type engineFlags struct {
	sensitivity  float64
	epsilon      float64
	domainLimit  float64
	roundingStep uint64
	mode         string
	mechanism    string
	preserveZero bool
}

func (f *engineFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&f.sensitivity, "sensitivity", 0, "sensitivity Δ of the counts")
	fs.Float64Var(&f.epsilon, "epsilon", 0, "privacy budget ε")
	fs.Float64Var(&f.domainLimit, "domain-limit", 0, "bound on the noise magnitude (approximate DP)")
	fs.Uint64Var(&f.roundingStep, "rounding-step", 0, "reporting granularity")
	fs.StringVar(&f.mode, "threshold-mode", "", "small count policy: zero, constant or obfuscate")
	fs.StringVar(&f.mechanism, "mechanism", "", "noise mechanism: laplace or geometric")
	fs.BoolVar(&f.preserveZero, "preserve-zero", false, "report true zeros as 0")
}

// apply copies every flag the user set onto oc.
func (f *engineFlags) apply(fs *pflag.FlagSet, oc *config.ObfuscationConfig) {
	if fs.Changed("sensitivity") {
		oc.Sensitivity = f.sensitivity
	}
	if fs.Changed("epsilon") {
		oc.Epsilon = f.epsilon
	}
	if fs.Changed("domain-limit") {
		limit := f.domainLimit
		oc.DomainLimit = &limit
	}
	if fs.Changed("rounding-step") {
		oc.RoundingStep = f.roundingStep
	}
	if fs.Changed("threshold-mode") {
		oc.ThresholdMode = f.mode
	}
	if fs.Changed("mechanism") {
		oc.Mechanism = f.mechanism
	}
	if fs.Changed("preserve-zero") {
		oc.PreserveTrueZero = f.preserveZero
	}
}

// engineConfig applies the flags to the obfuscation section, validates that
// section alone and converts it.
func (a *app) engineConfig(fs *pflag.FlagSet, f *engineFlags) (obfuscate.Config, error) {
	f.apply(fs, &a.cfg.Obfuscation)
	if err := a.cfg.Obfuscation.Validate(); err != nil {
		return obfuscate.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return a.cfg.Obfuscation.Engine()
}
