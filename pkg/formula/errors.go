package formula

import (
	"fmt"

	"github.com/leapstack-labs/veritab/pkg/token"
)

// LexError represents a lexical analysis error.
type LexError struct {
	Pos     token.Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// ParseError represents a parsing error with position information.
type ParseError struct {
	Pos     token.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}
