package extract

import (
	"fmt"
	"strings"
)

// Mode is the acceptance rule applied after all fields have been extracted.
type Mode string

const (
	// ModeStrict requires both a date and hours > 0.
	ModeStrict Mode = "strict"
	// ModeLenient requires a date or hours and fills the other with a default.
	ModeLenient Mode = "lenient"
)

// Pattern set names accepted by ParsePolicy.
const (
	PatternsBase   = "base"
	PatternsVendor = "vendor"
)

// Policy configures one extraction engine. The zero value is not useful;
// start from StrictPolicy or LenientPolicy.
type Policy struct {
	Mode Mode

	// Vendor enables vendor-specific labeled patterns (base+vendor).
	Vendor bool

	// DescriptionMinLen is the length a labeled description capture must exceed.
	DescriptionMinLen int

	// FallbackLineMinLen is the length a fallback description line must exceed.
	FallbackLineMinLen int

	// DateFallthrough continues to the next date pattern when a syntactic
	// match is not a real calendar date. When false the date is left empty.
	DateFallthrough bool
}

// StrictPolicy returns the server-side policy: base patterns only,
// date and hours both required.
func StrictPolicy() Policy {
	return Policy{
		Mode:               ModeStrict,
		DescriptionMinLen:  5,
		FallbackLineMinLen: 15,
	}
}

// LenientPolicy returns the upload-form policy: vendor patterns enabled,
// date or hours required, missing values defaulted.
func LenientPolicy() Policy {
	return Policy{
		Mode:               ModeLenient,
		Vendor:             true,
		DescriptionMinLen:  10,
		FallbackLineMinLen: 30,
		DateFallthrough:    true,
	}
}

// ParsePolicy builds a policy from configuration strings. An empty mode means
// strict; an empty pattern set keeps the mode's default.
func ParsePolicy(mode, patterns string) (Policy, error) {
	var p Policy
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", ModeStrict:
		p = StrictPolicy()
	case ModeLenient:
		p = LenientPolicy()
	default:
		return Policy{}, fmt.Errorf("unknown extraction policy %q (want strict or lenient)", mode)
	}

	switch strings.ToLower(strings.TrimSpace(patterns)) {
	case "":
	case PatternsBase:
		p.Vendor = false
	case PatternsVendor, "base+vendor":
		p.Vendor = true
	default:
		return Policy{}, fmt.Errorf("unknown pattern set %q (want base or vendor)", patterns)
	}
	return p, nil
}

// withDefaults fills unset thresholds from the mode's stock policy.
func (p Policy) withDefaults() Policy {
	if p.Mode != ModeLenient {
		p.Mode = ModeStrict
	}
	stock := StrictPolicy()
	if p.Mode == ModeLenient {
		stock = LenientPolicy()
	}
	if p.DescriptionMinLen <= 0 {
		p.DescriptionMinLen = stock.DescriptionMinLen
	}
	if p.FallbackLineMinLen <= 0 {
		p.FallbackLineMinLen = stock.FallbackLineMinLen
	}
	return p
}

// PatternSet names the enabled pattern sets.
func (p Policy) PatternSet() string {
	if p.Vendor {
		return "base+vendor"
	}
	return PatternsBase
}
