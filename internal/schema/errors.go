package schema

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// ErrSyntax matches every *SyntaxError via errors.Is.
var ErrSyntax = errors.New("schema syntax error")

// SyntaxError reports malformed markup.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
	Cause   error
}

func (e *SyntaxError) Error() string {
	msg := "syntax error"
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
		if e.Column > 0 {
			msg += fmt.Sprintf(", column %d", e.Column)
		}
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *SyntaxError) Unwrap() error { return e.Cause }

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

func wrapSyntax(err error, pos Pos) error {
	var xe *xml.SyntaxError
	if errors.As(err, &xe) {
		return &SyntaxError{Line: xe.Line, Message: xe.Msg, Cause: err}
	}
	return fmt.Errorf("schema: read input at line %d: %w", pos.Line, err)
}
