package rules

import (
	"errors"
	"fmt"
)

// ErrMalformedRule matches every MalformedRuleError through errors.Is.
var ErrMalformedRule = errors.New("malformed rule")

// MalformedRuleError reports a range-restriction violation, an inconsistent
// predicate arity, or a clause shape the engine does not support.
type MalformedRuleError struct {
	RuleSet string
	Clause  string
	Reason  string
}

func (e *MalformedRuleError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("malformed rule in rule set %q: %s", e.RuleSet, e.Reason)
	}
	return fmt.Sprintf("malformed rule in rule set %q, clause %q: %s", e.RuleSet, e.Clause, e.Reason)
}

func (e *MalformedRuleError) Unwrap() error { return ErrMalformedRule }

func malformed(ruleSet string, c *Clause, format string, args ...any) error {
	err := &MalformedRuleError{RuleSet: ruleSet, Reason: fmt.Sprintf(format, args...)}
	if c != nil {
		err.Clause = c.String()
	}
	return err
}
