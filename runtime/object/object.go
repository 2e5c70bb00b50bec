package object

import "fmt"

// Handle identifies an object in the table.
type Handle uint64

// None is the zero handle; it never refers to an object.
const None Handle = 0

func (h Handle) String() string {
	return fmt.Sprintf("h%d", uint64(h))
}

// Kind names an object kind, e.g. "pipe.reader".
type Kind string

// Object is a kernel resource stored in the table.
type Object interface {
	Kind() Kind
}

// Finalizer is implemented by objects that need teardown when their last
// reference is released.
type Finalizer interface {
	Finalize()
}

// Info describes a live handle.
type Info struct {
	Handle  Handle `json:"handle" yaml:"handle"`
	Primary Handle `json:"primary" yaml:"primary"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Refs    int    `json:"refs" yaml:"refs"`
}
