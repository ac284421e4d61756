package rules

import (
	"go.uber.org/zap"
)

// BuiltinRules returns the rules shipped with the engine, in display order
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:          "remove_empty_lines",
			Name:        "Remove Empty Lines",
			Description: "Remove consecutive empty lines",
			Pattern:     `\n\s*\n+`,
			Replacement: "\n",
			IsBuiltin:   true,
		},
		{
			ID:          "trim_whitespace",
			Name:        "Trim Whitespace",
			Description: "Remove leading/trailing whitespace from each line",
			Pattern:     `(?m)^[ \t]+|[ \t]+$`,
			Replacement: "",
			IsBuiltin:   true,
		},
		{
			ID:          "cjk_spacing",
			Name:        "CJK Spacing",
			Description: "Add space between CJK and Western characters",
			Pattern:     `([\p{Han}\p{Hiragana}\p{Katakana}])([A-Za-z0-9])`,
			Replacement: "$1 $2",
			IsBuiltin:   true,
		},
		{
			ID:          "cjk_spacing_reverse",
			Name:        "CJK Spacing Reverse",
			Description: "Add space between Western and CJK characters",
			Pattern:     `([A-Za-z0-9])([\p{Han}\p{Hiragana}\p{Katakana}])`,
			Replacement: "$1 $2",
			IsBuiltin:   true,
		},
		{
			ID:          "to_plain_text",
			Name:        "To Plain Text",
			Description: "Remove markdown/HTML formatting",
			Pattern:     "(\\*\\*|__|~~|`|<[^>]+>|\\[([^\\]]+)\\]\\([^)]+\\))",
			Replacement: "$2",
			IsBuiltin:   true,
		},
		{
			ID:          "collapse_spaces",
			Name:        "Collapse Spaces",
			Description: "Replace multiple spaces with single space",
			Pattern:     `[ \t]+`,
			Replacement: " ",
			IsBuiltin:   true,
		},
	}
}

// Registry is an immutable, ordered set of compiled rules
type Registry struct {
	rules []*CompiledRule
	index map[string]int
}

// NewRegistry compiles rules once. A rule that fails to compile, or
// repeats an earlier id, is dropped with a warning.
func NewRegistry(rules []Rule, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		rules: make([]*CompiledRule, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}

	for _, rule := range rules {
		if _, dup := r.index[rule.ID]; dup {
			logger.Warn("Dropping rule with duplicate id", zap.String("rule_id", rule.ID))
			continue
		}

		compiled, err := Compile(rule)
		if err != nil {
			logger.Warn("Dropping rule that failed to compile",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			continue
		}

		r.index[rule.ID] = len(r.rules)
		r.rules = append(r.rules, compiled)
	}

	return r
}

// DefaultRegistry compiles BuiltinRules
func DefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(BuiltinRules(), logger)
}

// List returns the rules in registration order
func (r *Registry) List() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, c := range r.rules {
		out = append(out, c.Rule)
	}
	return out
}

// Get looks up a compiled rule by id
func (r *Registry) Get(id string) (*CompiledRule, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.rules[i], true
}

// Len returns the number of compiled rules
func (r *Registry) Len() int {
	return len(r.rules)
}
