package spec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/restbuilder/internal/schema"
)

// Sentinels for errors.Is. Every *Error matches exactly one of them.
var (
	ErrUnknownElement   = errors.New("unknown element")
	ErrMissingAttribute = errors.New("missing attribute")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrInvalidVerb      = errors.New("invalid verb")
	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidVersion   = errors.New("invalid version")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidValue     = errors.New("invalid value")
)

// ErrorKind classifies build errors.
type ErrorKind uint8

const (
	UnknownElement ErrorKind = iota + 1
	MissingAttribute
	DuplicateName
	InvalidVerb
	InvalidPath
	InvalidVersion
	InvalidName
	InvalidValue
)

func (k ErrorKind) sentinel() error {
	switch k {
	case UnknownElement:
		return ErrUnknownElement
	case MissingAttribute:
		return ErrMissingAttribute
	case DuplicateName:
		return ErrDuplicateName
	case InvalidVerb:
		return ErrInvalidVerb
	case InvalidPath:
		return ErrInvalidPath
	case InvalidVersion:
		return ErrInvalidVersion
	case InvalidName:
		return ErrInvalidName
	case InvalidValue:
		return ErrInvalidValue
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown error"
}

// Location names the node an error refers to.
type Location struct {
	Api       string
	Classes   []string
	Method    string
	Element   string
	Attribute string
}

func (l Location) String() string {
	var parts []string
	if l.Api != "" {
		parts = append(parts, "Api "+l.Api)
	}
	for _, c := range l.Classes {
		parts = append(parts, "Class "+c)
	}
	if l.Method != "" {
		parts = append(parts, "Method "+l.Method)
	}
	s := strings.Join(parts, " > ")
	if l.Element != "" {
		if s != "" {
			s += " "
		}
		s += "<" + l.Element + ">"
	}
	if l.Attribute != "" {
		if s != "" {
			s += " "
		}
		s += "attribute " + l.Attribute
	}
	return s
}

// Error is a structural validation failure.
type Error struct {
	Kind     ErrorKind
	Message  string
	Location Location
	Pos      schema.Pos
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if loc := e.Location.String(); loc != "" {
		msg += " (at " + loc
		if e.Pos.Line > 0 {
			msg += fmt.Sprintf(", line %d", e.Pos.Line)
		}
		msg += ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// ErrorCode categorizes loader errors.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
)

// LoadError wraps a failure of Load with the input it happened on. The cause
// is a *schema.SyntaxError for ParseError and an *Error for ValidationError.
type LoadError struct {
	Code     ErrorCode
	Message  string
	Location string
	Cause    error
}

func (e *LoadError) Error() string { return e.Message }
func (e *LoadError) Unwrap() error { return e.Cause }
