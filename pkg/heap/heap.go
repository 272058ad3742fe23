// Package heap implements the managed heap: a single process-wide handle
// table over heterogeneous instance kinds, using a typed, stable handle
// rather than a raw Go pointer so "is-same-object" and stale-handle
// detection both hold as first-class properties.
package heap

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// Ref is a stable, typed handle to a heap instance. The zero Ref is never
// valid (slot 0 is reserved), so it doubles as a "no handle" sentinel.
type Ref uint32

// Kind tags the concrete instance a Ref denotes.
type Kind uint8

const (
	KindStaticClass Kind = iota
	KindClassInstance
	KindPrimitiveArray
	KindReferenceArray
	KindClassMirror
	KindMethodHandle
)

// FieldID identifies one field slot by its declaring class and index
// within that class's own field table.
type FieldID struct {
	Class names.ClassId
	Index int
}

// StaticClass holds a class's static fields, one instance per
// initialized class.
type StaticClass struct {
	Class  names.ClassId
	Fields map[FieldID]value.Value
}

// ClassInstance is a class-instance object: its runtime class, the
// handle to its class's StaticClass (for fast class-object reflection),
// and its own field-id-keyed instance fields.
type ClassInstance struct {
	Class  names.ClassId
	Static Ref
	Fields map[FieldID]value.Value
}

// PrimitiveArray is an array of a single primitive kind.
type PrimitiveArray struct {
	Elem   names.Primitive
	Values []value.Value
}

// ReferenceArray is an array whose declared element type is a class or
// interface; nulls are permitted per element.
type ReferenceArray struct {
	ElemClass names.ClassId
	Values    []Ref // 0 means null
}

// ClassMirror is the Class<T> facade object for a type: either a
// primitive kind, void, or a regular/array ClassId.
type ClassMirror struct {
	Represents    names.ClassId
	IsPrimitive   bool
	Primitive     names.Primitive
	IsVoid        bool
	ClassInstance Ref // the backing java.lang.Class instance
}

// MethodHandleKind distinguishes the two method-handle flavors this core
// wires; other reference kinds are not converted to method-handle
// constants here.
type MethodHandleKind uint8

const (
	MethodHandleConstant MethodHandleKind = iota
	MethodHandleInvokeStatic
)

// MethodHandle is a tagged method-handle instance.
type MethodHandle struct {
	Kind         MethodHandleKind
	ConstantVal  value.Value   // valid when Kind == MethodHandleConstant
	TargetClass  names.ClassId // valid when Kind == MethodHandleInvokeStatic
	TargetMethod int           // method-index within TargetClass
}

// entry is the heap's internal record for one live handle.
type entry struct {
	kind Kind
	obj  interface{}
}

// Heap is the process-wide managed heap. Safe for concurrent use only in
// the sense required by reentrant class initialization; actual
// bytecode execution is single-threaded.
type Heap struct {
	mu      sync.RWMutex
	entries []entry // index 0 unused; handles start at 1
	// RunID is a process-unique identifier generated by New. Nothing else
	// in this module reads it, and it plays no role in object identity.
	RunID string
}

func New() *Heap {
	return &Heap{
		entries: make([]entry, 1),
		RunID:   uuid.NewString(),
	}
}

func (h *Heap) alloc(kind Kind, obj interface{}) Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref := Ref(len(h.entries))
	h.entries = append(h.entries, entry{kind: kind, obj: obj})
	return ref
}

// NewStaticClass allocates a StaticClass instance, its fields
// initialized to type-appropriate defaults by the caller (pkg/interp's
// class initialization builds the field layout) before calling this.
func (h *Heap) NewStaticClass(sc *StaticClass) Ref {
	return h.alloc(KindStaticClass, sc)
}

func (h *Heap) NewClassInstance(ci *ClassInstance) Ref {
	return h.alloc(KindClassInstance, ci)
}

func (h *Heap) NewPrimitiveArray(pa *PrimitiveArray) Ref {
	return h.alloc(KindPrimitiveArray, pa)
}

func (h *Heap) NewReferenceArray(ra *ReferenceArray) Ref {
	return h.alloc(KindReferenceArray, ra)
}

func (h *Heap) NewClassMirror(cm *ClassMirror) Ref {
	return h.alloc(KindClassMirror, cm)
}

func (h *Heap) NewMethodHandle(mh *MethodHandle) Ref {
	return h.alloc(KindMethodHandle, mh)
}

// get returns the entry for ref, or an error if the handle is stale.
func (h *Heap) get(ref Ref) (entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ref == 0 || int(ref) >= len(h.entries) {
		return entry{}, fmt.Errorf("heap: stale handle %d", ref)
	}
	return h.entries[ref], nil
}

// Kind reports the instance kind stored at ref.
func (h *Heap) Kind(ref Ref) (Kind, error) {
	e, err := h.get(ref)
	if err != nil {
		return 0, err
	}
	return e.kind, nil
}

func (h *Heap) StaticClass(ref Ref) (*StaticClass, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	sc, ok := e.obj.(*StaticClass)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a StaticClass (kind=%d)", ref, e.kind)
	}
	return sc, nil
}

func (h *Heap) ClassInstance(ref Ref) (*ClassInstance, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	ci, ok := e.obj.(*ClassInstance)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a ClassInstance (kind=%d)", ref, e.kind)
	}
	return ci, nil
}

func (h *Heap) PrimitiveArray(ref Ref) (*PrimitiveArray, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	pa, ok := e.obj.(*PrimitiveArray)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a PrimitiveArray (kind=%d)", ref, e.kind)
	}
	return pa, nil
}

func (h *Heap) ReferenceArray(ref Ref) (*ReferenceArray, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	ra, ok := e.obj.(*ReferenceArray)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a ReferenceArray (kind=%d)", ref, e.kind)
	}
	return ra, nil
}

func (h *Heap) ClassMirror(ref Ref) (*ClassMirror, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	cm, ok := e.obj.(*ClassMirror)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a ClassMirror (kind=%d)", ref, e.kind)
	}
	return cm, nil
}

func (h *Heap) MethodHandle(ref Ref) (*MethodHandle, error) {
	e, err := h.get(ref)
	if err != nil {
		return nil, err
	}
	mh, ok := e.obj.(*MethodHandle)
	if !ok {
		return nil, fmt.Errorf("heap: handle %d is not a MethodHandle (kind=%d)", ref, e.kind)
	}
	return mh, nil
}

// IsSameObject reports reference identity: two non-zero, non-stale
// handles denote the same object iff they are equal.
func IsSameObject(a, b Ref) bool { return a == b }

// ToLocalRef translates a heap handle into the native-boundary's opaque
// local reference form: a nonzero integer derived by incrementing the
// handle by one, so that a null Ref (0) maps to a null pointer.
func ToLocalRef(ref Ref) uint64 {
	if ref == 0 {
		return 0
	}
	return uint64(ref) + 1
}

// FromLocalRef is the inverse of ToLocalRef.
func FromLocalRef(local uint64) Ref {
	if local == 0 {
		return 0
	}
	return Ref(local - 1)
}
