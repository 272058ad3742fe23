package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// throwableClassName is the root of the exception hierarchy everything
// raised by the core must extend.
const throwableClassName = "java/lang/Throwable"

// Kinds the core itself originates.
const (
	ExcClassNotFound           = "java/lang/ClassNotFoundException"
	ExcNullPointer             = "java/lang/NullPointerException"
	ExcArrayIndexOutOfBounds   = "java/lang/ArrayIndexOutOfBoundsException"
	ExcArrayStore              = "java/lang/ArrayStoreException"
	ExcNegativeArraySize       = "java/lang/NegativeArraySizeException"
	ExcClassCast               = "java/lang/ClassCastException"
	ExcIllegalMonitorState     = "java/lang/IllegalMonitorStateException"
	ExcAbstractMethod          = "java/lang/AbstractMethodError"
	ExcIncompatibleClassChange = "java/lang/IncompatibleClassChangeError"
	ExcIllegalAccess           = "java/lang/IllegalAccessError"
	ExcNoSuchField             = "java/lang/NoSuchFieldError"
	ExcNoSuchMethod            = "java/lang/NoSuchMethodError"
	ExcVerifyError             = "java/lang/VerifyError"
	ExcUnsatisfiedLink         = "java/lang/UnsatisfiedLinkError"
	ExcInstantiationError      = "java/lang/InstantiationError"
	ExcArithmetic              = "java/lang/ArithmeticException"
)

// messageFieldIndex is the reserved field-id index this core uses to
// stash an exception's message, distinct from any index a class's own
// field table assigns (those start at 0 and are each field's position
// in the class file's declared field list).
const messageFieldIndex = -1

// newException allocates a throwable instance of className carrying
// message, without invoking a (String) constructor — the core stores
// the message as an opaque instance field so exceptions it originates
// (null checks, bounds checks, verification failures) can be raised
// without requiring the target class to be fully initialized first.
// A user-level `new FooException("x")` still goes through the ordinary
// invocation core and <init>.
func (e *Env) newException(className, message string) (value.Value, error) {
	classID := e.Names.Intern(className)
	if err := e.Classes.Derive(classID); err != nil {
		return value.Value{}, fmt.Errorf("interp: deriving exception class %s: %w", className, err)
	}
	field := heap.FieldID{Class: classID, Index: messageFieldIndex}
	ref := e.Heap.NewClassInstance(&heap.ClassInstance{
		Class:  classID,
		Fields: map[heap.FieldID]value.Value{field: messageValue(message)},
	})
	return value.RefOf(ref, className), nil
}

// messageValue is a placeholder string-literal representation: this
// core does not model java.lang.String's own instance layout (a
// reflective standard-library class built atop the core, outside its
// scope), so exception messages are carried as a raw Go string tucked
// into a Value's ClassName field, which no other code path interprets
// as a real declared type.
func messageValue(s string) value.Value {
	return value.Value{Kind: value.KindNull, ClassName: "message:" + s}
}

const messagePrefix = "message:"

// ExceptionMessage recovers the message newException stored on ref, or
// "" if ref does not carry one.
func (e *Env) ExceptionMessage(ref heap.Ref) string {
	inst, err := e.Heap.ClassInstance(ref)
	if err != nil {
		return ""
	}
	field := heap.FieldID{Class: inst.Class, Index: messageFieldIndex}
	v, ok := inst.Fields[field]
	if !ok || len(v.ClassName) < len(messagePrefix) {
		return ""
	}
	return v.ClassName[len(messagePrefix):]
}

// isThrowable reports whether classID extends java/lang/Throwable. The
// athrow case in loop.go calls this after its null check: a popped
// reference must be non-null and extend Throwable before it can be
// raised.
func (e *Env) isThrowable(classID names.ClassId) bool {
	throwableID := e.Names.Intern(throwableClassName)
	if classID == throwableID {
		return true
	}
	return e.Classes.IsSuperClass(classID, throwableID)
}

// Throw constructs a throwable of className with message and returns it
// as a stepResult the interpreter loop can propagate.
func (e *Env) Throw(className, message string) (stepResult, error) {
	v, err := e.newException(className, message)
	if err != nil {
		return stepResult{}, err
	}
	return throwResult(v), nil
}

// NewThrowable allocates a throwable instance the same way a core-raised
// exception would, without invoking a (String) constructor. A native
// bridge method (see pkg/native) uses this to raise an exception across
// the foreign-function boundary.
func (e *Env) NewThrowable(className, message string) (value.Value, error) {
	return e.newException(className, message)
}
