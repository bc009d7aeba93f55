package goemitter

import "errors"

// ErrEmission matches every *EmissionError via errors.Is.
var ErrEmission = errors.New("emission failed")

// EmissionError reports an Api that cannot be rendered as Go. Node is the
// dotted name of the offending class, method or parameter.
type EmissionError struct {
	Node    string
	Message string
	Cause   error
}

func (e *EmissionError) Error() string {
	if e.Node == "" {
		return "goemitter: " + e.Message
	}
	return "goemitter: " + e.Node + ": " + e.Message
}

func (e *EmissionError) Unwrap() error { return e.Cause }

func (e *EmissionError) Is(target error) bool { return target == ErrEmission }
