package rules

import (
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Default execution limits
const (
	DefaultTimeout        = 50 * time.Millisecond
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// Limits bounds a single rule execution
type Limits struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// DefaultLimits returns the 50ms / 10MiB limits
func DefaultLimits() Limits {
	return Limits{Timeout: DefaultTimeout, MaxOutputBytes: DefaultMaxOutputBytes}
}

// Observer receives the outcome of every rule execution
type Observer interface {
	ObserveRule(ruleID, outcome string, elapsed time.Duration)
}

// Executor applies rules to text under time and size limits. It holds
// no mutable state and is safe for concurrent use.
type Executor struct {
	builtin  *Registry
	user     *Registry
	limits   Limits
	logger   *zap.Logger
	now      func() time.Time
	observer Observer
}

// Option configures an Executor
type Option func(*Executor)

// WithUserRules adds rules looked up after the built-ins
func WithUserRules(r *Registry) Option {
	return func(e *Executor) { e.user = r }
}

// WithLimits overrides the default limits. Zero fields keep the default.
func WithLimits(l Limits) Option {
	return func(e *Executor) {
		if l.Timeout > 0 {
			e.limits.Timeout = l.Timeout
		}
		if l.MaxOutputBytes > 0 {
			e.limits.MaxOutputBytes = l.MaxOutputBytes
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithObserver registers an execution observer
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor creates an executor over the given built-in registry
func NewExecutor(builtin *Registry, opts ...Option) *Executor {
	e := &Executor{
		builtin: builtin,
		limits:  DefaultLimits(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.builtin == nil {
		e.builtin = NewRegistry(nil, e.logger)
	}
	return e
}

// Limits returns the limits in effect
func (e *Executor) Limits() Limits {
	return e.limits
}

// List returns built-in rules followed by user rules
func (e *Executor) List() []Rule {
	out := e.builtin.List()
	if e.user != nil {
		out = append(out, e.user.List()...)
	}
	return out
}

// Lookup finds a compiled rule by id
func (e *Executor) Lookup(id string) (*CompiledRule, bool) {
	if c, ok := e.builtin.Get(id); ok {
		return c, true
	}
	if e.user != nil {
		return e.user.Get(id)
	}
	return nil, false
}

// Apply runs the rule registered under id
func (e *Executor) Apply(text, id string) (string, error) {
	compiled, ok := e.Lookup(id)
	if !ok {
		err := &RuleError{RuleID: id, Err: ErrRuleNotFound}
		e.observe(id, err, 0)
		return "", err
	}
	return e.execute(text, compiled)
}

// ApplyCustom compiles rule.Pattern and runs it
func (e *Executor) ApplyCustom(text string, rule Rule) (string, error) {
	compiled, err := Compile(rule)
	if err != nil {
		e.observe(rule.ID, err, 0)
		return "", err
	}
	return e.execute(text, compiled)
}

func (e *Executor) execute(text string, c *CompiledRule) (string, error) {
	start := e.now()

	out, err := e.substitute(text, c, start)
	elapsed := e.now().Sub(start)
	e.observe(c.Rule.ID, err, elapsed)
	if err != nil {
		return "", err
	}
	return out, nil
}

// substitute replaces leftmost-first, non-overlapping matches with the
// same empty-match rules as regexp.ReplaceAllString. Matches are found
// one at a time; the time budget is checked before each search and the
// output size after each replacement. A search in progress is never
// interrupted.
func (e *Executor) substitute(text string, c *CompiledRule, start time.Time) (string, error) {
	var out []byte
	lastEnd := 0
	matched := false

	for pos := 0; pos <= len(text); {
		if e.now().Sub(start) > e.limits.Timeout {
			e.logger.Warn("Rule timed out",
				zap.String("rule_id", c.Rule.ID),
				zap.Duration("timeout", e.limits.Timeout),
			)
			return "", &RuleError{RuleID: c.Rule.ID, Err: ErrTimeout}
		}

		m := c.matchAt(text, pos)
		if m == nil {
			break
		}
		if !matched {
			out = make([]byte, 0, len(text))
			matched = true
		}

		out = append(out, text[lastEnd:m[0]]...)
		// No replacement for an empty match right after the previous one
		if m[1] > lastEnd || m[0] == 0 {
			out = c.Regex.ExpandString(out, c.Rule.Replacement, text, m)
		}
		lastEnd = m[1]

		if len(out) > e.limits.MaxOutputBytes {
			e.logger.Warn("Rule output exceeded size limit",
				zap.String("rule_id", c.Rule.ID),
				zap.Int("max_output_bytes", e.limits.MaxOutputBytes),
			)
			return "", &RuleError{RuleID: c.Rule.ID, Err: ErrOutputTooLarge}
		}

		// Always advance at least one rune
		_, width := utf8.DecodeRuneInString(text[pos:])
		switch {
		case pos+width > m[1]:
			pos += width
		case pos+1 > m[1]:
			pos++
		default:
			pos = m[1]
		}
	}

	if !matched {
		return text, nil
	}
	out = append(out, text[lastEnd:]...)
	return string(out), nil
}

func (e *Executor) observe(id string, err error, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveRule(id, Outcome(err), elapsed)
	}
}
