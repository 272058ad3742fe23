package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/value"
)

// classInstanceOf resolves a reference value to its backing
// heap.ClassInstance, failing if it is not one (e.g. an array).
func (e *Env) classInstanceOf(v value.Value) (*heap.ClassInstance, error) {
	ref, ok := v.Ref.(heap.Ref)
	if !ok {
		return nil, fmt.Errorf("interp: value is not a heap reference")
	}
	return e.Heap.ClassInstance(ref)
}

// getStatic reads a static field, preparing its declaring class first:
// reading or writing a static field on a class triggers its
// initialization.
func (e *Env) getStatic(fr *resolvedField) (value.Value, error) {
	ref, err := e.staticClassRef(fr.Declaring)
	if err != nil {
		return value.Value{}, err
	}
	sc, err := e.Heap.StaticClass(ref)
	if err != nil {
		return value.Value{}, err
	}
	return sc.Fields[fr.ID], nil
}

func (e *Env) putStatic(fr *resolvedField, v value.Value) error {
	ref, err := e.staticClassRef(fr.Declaring)
	if err != nil {
		return err
	}
	sc, err := e.Heap.StaticClass(ref)
	if err != nil {
		return err
	}
	sc.Fields[fr.ID] = v
	return nil
}

// getField reads an instance field off a non-null receiver.
func (e *Env) getField(receiver value.Value, fr *resolvedField) (stepResult, value.Value, error) {
	if receiver.IsNull() {
		r, err := e.Throw(ExcNullPointer, "")
		return r, value.Value{}, err
	}
	ci, err := e.classInstanceOf(receiver)
	if err != nil {
		return stepResult{}, value.Value{}, err
	}
	return contResult(), ci.Fields[fr.ID], nil
}

func (e *Env) putField(receiver value.Value, fr *resolvedField, v value.Value) (stepResult, error) {
	if receiver.IsNull() {
		r, err := e.Throw(ExcNullPointer, "")
		return r, err
	}
	ci, err := e.classInstanceOf(receiver)
	if err != nil {
		return stepResult{}, err
	}
	ci.Fields[fr.ID] = v
	return contResult(), nil
}
