package rules

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Rule is a regex substitution applied to user text
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	IsBuiltin   bool   `json:"isBuiltin"`
}

// CompiledRule pairs a rule with its compiled pattern
type CompiledRule struct {
	Rule  Rule
	Regex *regexp.Regexp

	// resume finds the next match after an offset. Its first rune is the
	// one before the offset, so ^, \b and friends see the real left
	// context; group 1 is the match itself.
	resume *regexp.Regexp
}

// Compile compiles the rule's pattern
func Compile(rule Rule) (*CompiledRule, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, &RuleError{RuleID: rule.ID, Err: ErrInvalidPattern, Detail: err.Error()}
	}
	resume, err := regexp.Compile(`\A(?s:.)(?s:.)*?(` + rule.Pattern + `)`)
	if err != nil {
		return nil, &RuleError{RuleID: rule.ID, Err: ErrInvalidPattern, Detail: err.Error()}
	}
	return &CompiledRule{Rule: rule, Regex: re, resume: resume}, nil
}

// matchAt returns the leftmost match starting at or after pos, with
// absolute offsets in the layout of FindStringSubmatchIndex
func (c *CompiledRule) matchAt(text string, pos int) []int {
	if pos == 0 {
		return c.Regex.FindStringSubmatchIndex(text)
	}

	_, width := utf8.DecodeLastRuneInString(text[:pos])
	base := pos - width
	m := c.resume.FindStringSubmatchIndex(text[base:])
	if m == nil {
		return nil
	}

	loc := m[2:]
	for i := range loc {
		if loc[i] >= 0 {
			loc[i] += base
		}
	}
	return loc
}

// Rule execution errors
var (
	ErrInvalidPattern = errors.New("invalid regex pattern")
	ErrRuleNotFound   = errors.New("rule not found")
	ErrTimeout        = errors.New("rule execution timeout")
	ErrOutputTooLarge = errors.New("output exceeds size limit")
)

// RuleError reports which rule failed. Err is one of the sentinel errors
// above.
type RuleError struct {
	RuleID string
	Err    error
	Detail string
}

func (e *RuleError) Error() string {
	msg := e.Err.Error()
	if e.RuleID != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.RuleID)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Outcome returns a short label for err, used in metrics and audit events
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidPattern):
		return "invalid_pattern"
	case errors.Is(err, ErrRuleNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrOutputTooLarge):
		return "output_too_large"
	default:
		return "error"
	}
}
