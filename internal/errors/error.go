package errors

import (
	goerrors "errors"
	"fmt"
	"log"
	"runtime"
	"strings"
)

type (
	// Operation that was performed to produce this error, usually the method name.
	// e.g. Pool.Add
	Operation string

	// Error carries the operation, the kind and the cause of a failure.
	Error struct {
		Op   Operation
		Kind Kind
		// Err is the underlying error that has triggered this one, if any.
		Err error
	}
)

// Separator is used to separate nested errors.
var Separator = ":\n\t"

// E builds an error from an Operation, a Kind, a cause (error or string) in any order.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errors.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Operation:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case *Error:
			clone := *arg
			e.Err = &clone
		case error:
			e.Err = arg
		case string:
			e.Err = goerrors.New(arg)
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)

			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	return e
}

func (e *Error) Error() string {
	var b strings.Builder

	write := func(separator, text string) {
		if b.Len() > 0 {
			b.WriteString(separator)
		}
		b.WriteString(text)
	}

	if e.Op != "" {
		write(": ", string(e.Op))
	}

	if e.Kind != Other {
		write(": ", e.Kind.String())
	}

	switch cause := e.Err.(type) {
	case nil:
	case *Error:
		if !cause.isZero() {
			write(Separator, cause.Error())
		}
	default:
		write(": ", cause.Error())
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare kind sentinel, one without Op and Err, against the kind of e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil || t.Kind == Other {
		return false
	}

	return KindOf(e) == t.Kind
}

func (e *Error) isZero() bool {
	return e.Op == "" && e.Kind == Other && e.Err == nil
}

// Errorf creates an error from a given format string, %w is supported.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Is checks if the error of a given kind.
func Is(kind Kind, err error) bool {
	var e *Error
	if !goerrors.As(err, &e) {
		return false
	}

	if e.Kind != Other {
		return e.Kind == kind
	}

	return e.Err != nil && Is(kind, e.Err)
}

// KindOf returns the first non Other kind found in the error chain.
func KindOf(err error) Kind {
	var e *Error
	if !goerrors.As(err, &e) {
		return Other
	}

	if e.Kind != Other || e.Err == nil {
		return e.Kind
	}

	return KindOf(e.Err)
}
