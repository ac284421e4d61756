package privacy

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// DefaultPatterns returns the built-in detectors. Higher priority wins
// when two candidates overlap.
func DefaultPatterns() []PatternSpec {
	return []PatternSpec{
		// CN resident ID: region, YYYYMMDD birth date, sequence, check digit
		{Type: IDCard, Priority: 100, Expr: `\b[1-9]\d{5}(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]\b`},
		{Type: APIKey, Priority: 90, Expr: `\b(?:sk|pk|api|key)-[A-Za-z0-9_-]{32,64}\b`},
		{Type: Email, Priority: 80, Expr: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
		{Type: BankCard, Priority: 70, Expr: `\b[3-6]\d{12,18}\b`, Validator: Luhn},
		// CN mobile
		{Type: Phone, Priority: 60, Expr: `\b1[3-9]\d{9}\b`},
		{Type: IP, Priority: 50, Expr: `\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`},
	}
}

// Registry is an immutable, priority-ordered set of compiled patterns.
// It is safe for concurrent use.
type Registry struct {
	patterns []Pattern
}

// NewRegistry compiles specs into a registry. Specs that fail to compile
// are dropped with a warning.
func NewRegistry(specs []PatternSpec, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	patterns := make([]Pattern, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Expr)
		if err != nil {
			logger.Warn("Dropping PII pattern that failed to compile",
				zap.String("pii_type", string(spec.Type)),
				zap.Error(err),
			)
			continue
		}
		patterns = append(patterns, Pattern{
			Type:      spec.Type,
			Regex:     re,
			Priority:  spec.Priority,
			Validator: spec.Validator,
		})
	}

	// Stable so equal priorities keep registration order
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Priority > patterns[j].Priority
	})

	return &Registry{patterns: patterns}
}

// DefaultRegistry compiles DefaultPatterns
func DefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(DefaultPatterns(), logger)
}

// Patterns returns a copy of the patterns in priority order
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Types returns the registered types in priority order
func (r *Registry) Types() []PIIType {
	types := make([]PIIType, 0, len(r.patterns))
	for _, p := range r.patterns {
		types = append(types, p.Type)
	}
	return types
}

// Len returns the number of compiled patterns
func (r *Registry) Len() int {
	return len(r.patterns)
}

// Restrict returns a registry containing only the named detectors.
// "all" selects every pattern. Names match the type name or its tag.
func (r *Registry) Restrict(detectors []string) (*Registry, error) {
	all := false
	enabled := make(map[PIIType]bool)
	for _, name := range detectors {
		if name == "all" {
			all = true
			continue
		}
		t, ok := ParseType(name)
		if !ok {
			return nil, fmt.Errorf("unknown detector: %s", name)
		}
		enabled[t] = true
	}
	if all {
		return r, nil
	}

	patterns := make([]Pattern, 0, len(enabled))
	for _, p := range r.patterns {
		if enabled[p.Type] {
			patterns = append(patterns, p)
		}
	}
	return &Registry{patterns: patterns}, nil
}

// Luhn reports whether the digits in number pass the mod-10 checksum.
// Numbers outside 13-19 digits are rejected.
func Luhn(number string) bool {
	digits := make([]int, 0, len(number))
	for _, c := range number {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}

	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	return sum%10 == 0
}
