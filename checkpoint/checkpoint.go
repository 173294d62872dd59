// Package checkpoint decorates errors with the source location they passed
// through, building something similar to a stacktrace out of plain error
// wrapping. Every error attached to a checkpoint stays visible to errors.Is
// and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
)

// From records the caller's location on err. It returns nil for nil and
// passes io.EOF and io.ErrUnexpectedEOF through untouched, as the io
// package requires them to be returned bare.
func From(err error) error {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return &trace{cause: err, at: caller()}
}

// Wrap records the caller's location on cause and additionally tags it with
// hint, typically one of the predefined sentinel errors. Both cause and hint
// remain reachable through errors.Is. It returns nil if cause is nil.
func Wrap(cause, hint error) error {
	if cause == nil || cause == io.EOF {
		return cause
	}
	return &trace{cause: cause, hint: hint, at: caller()}
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

type trace struct {
	cause error
	hint  error
	at    string
}

func (t *trace) Error() string {
	if t.hint != nil {
		return fmt.Sprintf("%s [%s]\n\t%v", t.hint.Error(), t.at, t.cause)
	}
	return fmt.Sprintf("[%s]\n\t%v", t.at, t.cause)
}

func (t *trace) Unwrap() error {
	return t.cause
}

func (t *trace) Is(target error) bool {
	return t.hint != nil && errors.Is(t.hint, target)
}

func (t *trace) As(target interface{}) bool {
	return t.hint != nil && errors.As(t.hint, target)
}
