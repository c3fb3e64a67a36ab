package medley

import (
	"errors"
	"fmt"
)

// OperationError exposes correlation metadata for a pipeline failure: which
// operation it belongs to and which provider raised it.
type OperationError interface {
	error
	Unwrap() error
	OperationID() (OperationID, bool)
	SourceID() (string, bool)
}

type operationTaggedError struct {
	err    error
	opID   OperationID
	source string
	hasOp  bool
}

func newOperationError(err error, opID OperationID, source string) error {
	if err == nil {
		return nil
	}
	return &operationTaggedError{err: err, opID: opID, source: source, hasOp: true}
}

func (e *operationTaggedError) Error() string { return e.err.Error() }
func (e *operationTaggedError) Unwrap() error { return e.err }

func (e *operationTaggedError) OperationID() (OperationID, bool) {
	return e.opID, e.hasOp
}

func (e *operationTaggedError) SourceID() (string, bool) {
	if e.source == "" {
		return "", false
	}
	return e.source, true
}

func (e *operationTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "operation(id=%d,source=%q): %+v", e.opID, e.source, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractOperationID returns the operation id carried by err, if any.
func ExtractOperationID(err error) (OperationID, bool) {
	var oe OperationError
	if errors.As(err, &oe) {
		return oe.OperationID()
	}
	return 0, false
}

// ExtractSourceID returns the provider id that raised err, if any.
func ExtractSourceID(err error) (string, bool) {
	var oe OperationError
	if errors.As(err, &oe) {
		return oe.SourceID()
	}
	return "", false
}
