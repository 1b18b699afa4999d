package eval

import (
	"fmt"

	"github.com/leapstack-labs/veritab/pkg/token"
)

// EvalError represents an evaluation failure: an unknown function, an
// argument-count mismatch, or the nesting cap being exceeded. It is
// fatal for the rule being evaluated.
type EvalError struct {
	Pos     token.Position
	Message string
}

func (e *EvalError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("eval error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
	}
	return "eval error: " + e.Message
}
