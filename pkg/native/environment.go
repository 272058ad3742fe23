// Package native is the foreign-function boundary: it bridges methods
// declared native in a loaded class to a Go implementation, the same
// role JNI's JNIEnv function table plays for the HotSpot/OpenJDK native
// interface. A method is native when its AccessFlags carry AccNative and
// it carries no Code attribute (see pkg/interp's RunMethod); Bridge
// builds the func value an *interp.Env installs as its Native field.
//
// Object payloads that a native method owns (a java.util.HashMap's
// backing Go map, a java.lang.Integer's boxed int32, a PrintStream's
// io.Writer) live in this package's own side table, keyed by the heap
// handle of the ClassInstance that represents them to the rest of the
// core — the core's heap.Heap has no native-payload slot of its own
// (see DESIGN.md), so native-backed objects are ordinary ClassInstances
// plus an out-of-band Go value recovered through Environment.Native.
package native

import (
	"fmt"
	"io"

	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/interp"
	"github.com/corejvm/corejvm/pkg/value"
)

// Environment is the surface a registered native Func is given: the
// minimal slice of the running core a foreign-function body may touch,
// translated across the local-ref boundary the same way JNI's jobject
// locals are — heap.ToLocalRef/FromLocalRef, not a raw heap.Ref, cross
// this interface.
type Environment interface {
	// NewInstance allocates a bare instance of className (no <init>
	// run) and returns its local ref.
	NewInstance(className string) (uint64, error)
	// Native returns the side-table payload stashed against a local
	// ref by Bind, or (nil, false) if none was bound.
	Native(localRef uint64) (interface{}, bool)
	// Bind stashes a side-table payload against a local ref, installed
	// by a native constructor the first time an instance is created.
	Bind(localRef uint64, payload interface{})
	// ToLocal translates a runtime Value into its local-ref form; ok is
	// false if v is not a reference.
	ToLocal(v value.Value) (uint64, bool)
	// FromLocal builds a reference Value of the given static class name
	// from a local ref (0 maps to null).
	FromLocal(localRef uint64, className string) value.Value
	// ClassOf returns the runtime class name of a local ref's referent.
	ClassOf(localRef uint64) (string, error)
	// Throw raises className(message) as the native call's outcome.
	Throw(className, message string) (*interp.RunOutcome, error)
	// Stdout and Stderr are the process streams System.out/System.err
	// back onto.
	Stdout() io.Writer
	Stderr() io.Writer
	// LibraryDirs lists the directories a native-library loader searches,
	// sourced from config.Config.NativeLibraryDirs.
	LibraryDirs() []string
}

// environment is Environment's concrete implementation, bound to one
// running *interp.Env for the lifetime of a single native call.
type environment struct {
	env         *interp.Env
	side        *sideTable
	stdout      io.Writer
	stderr      io.Writer
	libraryDirs []string
}

func (e *environment) NewInstance(className string) (uint64, error) {
	classID := e.env.Names.Intern(className)
	if err := e.env.PrepareClass(classID); err != nil {
		return 0, fmt.Errorf("native: preparing %s: %w", className, err)
	}
	ref := e.env.Heap.NewClassInstance(&heap.ClassInstance{
		Class:  classID,
		Fields: make(map[heap.FieldID]value.Value),
	})
	return heap.ToLocalRef(ref), nil
}

func (e *environment) Native(localRef uint64) (interface{}, bool) {
	return e.side.get(heap.FromLocalRef(localRef))
}

func (e *environment) Bind(localRef uint64, payload interface{}) {
	e.side.put(heap.FromLocalRef(localRef), payload)
}

func (e *environment) ToLocal(v value.Value) (uint64, bool) {
	ref, ok := v.Ref.(heap.Ref)
	if !ok {
		return 0, false
	}
	return heap.ToLocalRef(ref), true
}

func (e *environment) FromLocal(localRef uint64, className string) value.Value {
	ref := heap.FromLocalRef(localRef)
	if ref == 0 {
		return value.Null()
	}
	return value.RefOf(ref, className)
}

func (e *environment) ClassOf(localRef uint64) (string, error) {
	ref := heap.FromLocalRef(localRef)
	kind, err := e.env.Heap.Kind(ref)
	if err != nil {
		return "", err
	}
	if kind != heap.KindClassInstance {
		return "", fmt.Errorf("native: local ref %d is not a class instance (kind=%d)", localRef, kind)
	}
	ci, err := e.env.Heap.ClassInstance(ref)
	if err != nil {
		return "", err
	}
	return e.env.Names.Name(ci.Class)
}

func (e *environment) Throw(className, message string) (*interp.RunOutcome, error) {
	exc, err := e.env.NewThrowable(className, message)
	if err != nil {
		return nil, err
	}
	return &interp.RunOutcome{Thrown: true, Exception: exc}, nil
}

func (e *environment) Stdout() io.Writer        { return e.stdout }
func (e *environment) Stderr() io.Writer        { return e.stderr }
func (e *environment) LibraryDirs() []string    { return e.libraryDirs }

// sideTable is the heap-handle-keyed store for native object payloads.
// It is intentionally not part of pkg/heap: the payload types (a Go map,
// a boxed int32, an io.Writer) are this package's concern alone, and
// giving heap.Heap an interface{} escape hatch would let any caller
// bypass the Kind-tagged entry types the rest of the core depends on.
type sideTable struct {
	byRef map[heap.Ref]interface{}
}

func newSideTable() *sideTable {
	return &sideTable{byRef: make(map[heap.Ref]interface{})}
}

func (s *sideTable) get(ref heap.Ref) (interface{}, bool) {
	v, ok := s.byRef[ref]
	return v, ok
}

func (s *sideTable) put(ref heap.Ref, v interface{}) {
	s.byRef[ref] = v
}
