package object

import "errors"

var (
	// ErrInvalidHandle is returned for unknown or already freed handles.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrTableFull is returned when the handle limit is reached.
	ErrTableFull = errors.New("object table full")
	// ErrNilObject is returned when inserting a nil object.
	ErrNilObject = errors.New("nil object")
)
