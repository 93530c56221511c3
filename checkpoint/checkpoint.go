// Package checkpoint decorates errors with the source position of the code
// that passed them on, which results in a short trace through the loader.
// Every error attached to a checkpoint can still be checked by errors.Is and
// retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
)

// From wraps err in a checkpoint holding the caller position.
// It returns nil if err == nil.
func From(err error) error {
	if err == nil {
		return nil
	}

	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return &checkpoint{
		cause: err,
		at:    caller(),
	}
}

// Wrap adds a checkpoint to prev which is further described by err.
// Returns nil if prev == nil, so predefined errors can be attached freely:
//  var ErrCorruptTable = errors.New("corrupt table")
//
//  func load() error {
//  	err := decode()
//  	return checkpoint.Wrap(err, ErrCorruptTable)
//  }
// Both ErrCorruptTable and the error returned by decode() match errors.Is on
// the result.
func Wrap(prev, err error) error {
	if prev == nil {
		return nil
	}

	if prev == io.EOF {
		return io.EOF
	}

	return &checkpoint{
		err:   err,
		cause: prev,
		at:    caller(),
	}
}

// Wrapf is like Wrap but formats the describing error itself.
// The format may use %w to keep a sentinel reachable.
func Wrapf(prev error, format string, args ...interface{}) error {
	if prev == nil {
		return nil
	}

	return &checkpoint{
		err:   fmt.Errorf(format, args...),
		cause: prev,
		at:    caller(),
	}
}

type checkpoint struct {
	// err describes the checkpoint, it may be nil for plain From checkpoints.
	err   error
	cause error
	at    string
}

func caller() string {
	// 0 = caller(), 1 = From/Wrap, 2 = the code creating the checkpoint.
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (e *checkpoint) Error() string {
	if e.err == nil {
		return e.at + ": " + e.cause.Error()
	}
	return e.at + ": " + e.err.Error() + ": " + e.cause.Error()
}

func (e *checkpoint) Unwrap() error {
	return e.cause
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}
