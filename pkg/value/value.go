// Package value defines the runtime-value taxonomy the interpreter and
// verifier both operate over: a small sum type of null, heap reference,
// and tagged primitive, plus the category-1/category-2 sizing rule that
// governs operand-stack and local-variable slot counts.
package value

import "fmt"

// Kind tags a RuntimeValue's concrete shape.
type Kind uint8

const (
	KindNull Kind = iota
	KindRef
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindChar
	KindBool
	// KindReturnAddress is used only by the verifier for jsr/ret, which
	// this core does not execute (both opcodes were removed from the
	// class-file format this core targets) but which the verifier's
	// type lattice still needs to name defensively.
	KindReturnAddress
	// KindTop marks the invalidated second slot of a category-2 local:
	// storing a long/double at local index k overwrites k+1 with Top, so
	// a later load of k+1 alone (an illegal instruction sequence) is
	// caught instead of silently reading stale data.
	KindTop
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindRef:
		return "ref"
	case KindInt8:
		return "i8"
	case KindInt16:
		return "i16"
	case KindInt32:
		return "i32"
	case KindInt64:
		return "i64"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindChar:
		return "char"
	case KindBool:
		return "bool"
	case KindReturnAddress:
		return "returnAddress"
	case KindTop:
		return "top"
	default:
		return "unknown"
	}
}

// Category returns 1 for every kind except i64 and f64 (long/double),
// which are category 2: they occupy two stack slots and two local slots.
func (k Kind) Category() int {
	if k == KindInt64 || k == KindFloat64 {
		return 2
	}
	return 1
}

// Ref is anything a heap reference value can point to: the core treats
// it opaquely and type-asserts at use sites (the heap package supplies
// the concrete types).
type Ref interface{}

// Value is the runtime-value sum type: null reference, heap reference,
// or tagged primitive. Exactly one of the payload fields is meaningful,
// selected by Kind.
type Value struct {
	Kind  Kind
	I32   int32
	I64   int64
	F32   float32
	F64   float64
	Ref   Ref
	// ClassName is a free-form label on a reference value. Dispatch does
	// not consult it (it reads the runtime class through the heap);
	// pkg/interp's messageValue stores an exception's message text here.
	ClassName string
}

func Null() Value                     { return Value{Kind: KindNull} }
func Top() Value                      { return Value{Kind: KindTop} }
func RefOf(r Ref, className string) Value { return Value{Kind: KindRef, Ref: r, ClassName: className} }
func Int(v int32) Value               { return Value{Kind: KindInt32, I32: v} }
func Long(v int64) Value              { return Value{Kind: KindInt64, I64: v} }
func Float(v float32) Value           { return Value{Kind: KindFloat32, F32: v} }
func Double(v float64) Value          { return Value{Kind: KindFloat64, F64: v} }
func Char(v uint16) Value             { return Value{Kind: KindChar, I32: int32(v)} }
func Bool(v bool) Value {
	if v {
		return Value{Kind: KindBool, I32: 1}
	}
	return Value{Kind: KindBool, I32: 0}
}

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsReference reports whether v is a reference-kind value (null or ref).
func (v Value) IsReference() bool { return v.Kind == KindNull || v.Kind == KindRef }

// Category reports the operand-stack/local-variable slot width of v.
func (v Value) Category() int { return v.Kind.Category() }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindRef:
		return fmt.Sprintf("ref(%s)", v.ClassName)
	case KindInt64:
		return fmt.Sprintf("long(%d)", v.I64)
	case KindFloat32:
		return fmt.Sprintf("float(%v)", v.F32)
	case KindFloat64:
		return fmt.Sprintf("double(%v)", v.F64)
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.I32 != 0)
	case KindChar:
		return fmt.Sprintf("char(%d)", v.I32)
	default:
		return fmt.Sprintf("%s(%d)", v.Kind, v.I32)
	}
}

// DefaultFor returns the type-appropriate zero value for a field
// descriptor's leading type character: reads of unset fields yield
// this default.
func DefaultFor(descriptor string) Value {
	if len(descriptor) == 0 {
		return Null()
	}
	switch descriptor[0] {
	case 'L', '[':
		return Null()
	case 'F':
		return Float(0)
	case 'D':
		return Double(0)
	case 'J':
		return Long(0)
	case 'Z':
		return Bool(false)
	case 'C':
		return Char(0)
	default:
		return Int(0)
	}
}
