package eval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNonTerminating matches every NonTerminatingError.
var ErrNonTerminating = errors.New("non-terminating rule")

// NonTerminatingError is returned when a component is still growing after
// the configured number of rounds.
type NonTerminatingError struct {
	Predicates []string
	Iterations int
}

func (e *NonTerminatingError) Error() string {
	return fmt.Sprintf("non-terminating rule: %s still growing after %d iterations",
		strings.Join(e.Predicates, ", "), e.Iterations)
}

func (e *NonTerminatingError) Unwrap() error { return ErrNonTerminating }
