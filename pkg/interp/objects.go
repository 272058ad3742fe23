package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// newInstance allocates an uninitialized class instance of id, its
// fields set to type-appropriate defaults, preparing id (derive/verify/
// initialize) first.
func (e *Env) newInstance(id names.ClassId) (value.Value, error) {
	if err := e.PrepareClass(id); err != nil {
		return value.Value{}, err
	}
	c, ok := e.Classes.Get(id)
	if !ok {
		return value.Value{}, fmt.Errorf("interp: new on underived class %v", id)
	}
	fields := make(map[heap.FieldID]value.Value)
	for cur := c; cur != nil; {
		if cur.View != nil {
			for i, f := range cur.View.Fields {
				if f.AccessFlags&0x0008 != 0 { // static, already lives on StaticClass
					continue
				}
				fields[heap.FieldID{Class: cur.ID, Index: i}] = value.DefaultFor(f.Descriptor)
			}
		}
		if cur.Super == 0 {
			break
		}
		super, ok := e.Classes.Get(cur.Super)
		if !ok {
			break
		}
		cur = super
	}
	ref := e.Heap.NewClassInstance(&heap.ClassInstance{Class: id, Fields: fields})
	name, _ := e.Names.Name(id)
	return value.RefOf(ref, name), nil
}

// newPrimitiveArray allocates a length-n array of primitive elements,
// all defaulted.
func (e *Env) newPrimitiveArray(p names.Primitive, n int32) (value.Value, error) {
	if n < 0 {
		return value.Value{}, fmt.Errorf("interp: negative array size %d", n)
	}
	values := make([]value.Value, n)
	def := defaultForPrimitive(p)
	for i := range values {
		values[i] = def
	}
	ref := e.Heap.NewPrimitiveArray(&heap.PrimitiveArray{Elem: p, Values: values})
	arrID, err := e.Names.ArrayOfPrimitive(p, 1)
	if err != nil {
		return value.Value{}, err
	}
	name, _ := e.Names.Name(arrID)
	return value.RefOf(ref, name), nil
}

// newReferenceArray allocates a length-n array of elemClass-typed
// elements, all null.
func (e *Env) newReferenceArray(elemClass names.ClassId, n int32) (value.Value, error) {
	if n < 0 {
		return value.Value{}, fmt.Errorf("interp: negative array size %d", n)
	}
	ref := e.Heap.NewReferenceArray(&heap.ReferenceArray{ElemClass: elemClass, Values: make([]heap.Ref, n)})
	arrID, err := e.Names.ArrayOfClass(elemClass, 1)
	if err != nil {
		return value.Value{}, err
	}
	name, _ := e.Names.Name(arrID)
	return value.RefOf(ref, name), nil
}

// defaultForPrimitive returns a length-1 array element's zero value for
// a primitive component kind.
func defaultForPrimitive(p names.Primitive) value.Value {
	switch p {
	case names.PrimLong:
		return value.Long(0)
	case names.PrimFloat:
		return value.Float(0)
	case names.PrimDouble:
		return value.Double(0)
	case names.PrimBool:
		return value.Bool(false)
	case names.PrimChar:
		return value.Char(0)
	default:
		return value.Int(0)
	}
}

// newMultiArray allocates the outer len(dims) dimensions of a
// multianewarray class name (which may itself declare more dimensions
// than dims covers; dimensions beyond dims are left null until
// allocated explicitly), recursing one dimension at a time.
func (e *Env) newMultiArray(className string, dims []int32) (value.Value, error) {
	if len(dims) == 0 {
		return value.Null(), nil
	}
	if len(className) == 0 || className[0] != '[' {
		return value.Value{}, fmt.Errorf("interp: multianewarray class %q is not an array type", className)
	}
	n := dims[0]
	elemName := className[1:]

	if len(dims) == 1 {
		return e.newArrayLevel(elemName, n)
	}

	ref := e.Heap.NewReferenceArray(&heap.ReferenceArray{
		ElemClass: e.Names.Intern(elemName),
		Values:    make([]heap.Ref, n),
	})
	ra, err := e.Heap.ReferenceArray(ref)
	if err != nil {
		return value.Value{}, err
	}
	for i := int32(0); i < n; i++ {
		sub, err := e.newMultiArray(elemName, dims[1:])
		if err != nil {
			return value.Value{}, err
		}
		if subRef, ok := sub.Ref.(heap.Ref); ok {
			ra.Values[i] = subRef
		}
	}
	return value.RefOf(ref, className), nil
}

// newArrayLevel allocates a single-dimension array of n elements typed
// by field-descriptor elemName, dispatching to a primitive or reference
// array depending on elemName's leading character.
func (e *Env) newArrayLevel(elemName string, n int32) (value.Value, error) {
	if len(elemName) == 0 {
		return value.Value{}, fmt.Errorf("interp: empty array element descriptor")
	}
	switch elemName[0] {
	case '[':
		return e.newReferenceArray(e.Names.Intern(elemName), n)
	case 'L':
		inner := elemName
		if len(inner) >= 2 && inner[len(inner)-1] == ';' {
			inner = inner[1 : len(inner)-1]
		}
		return e.newReferenceArray(e.Names.Intern(inner), n)
	default:
		p, err := primitiveForDescriptorChar(elemName[0])
		if err != nil {
			return value.Value{}, err
		}
		return e.newPrimitiveArray(p, n)
	}
}

// primitiveForDescriptorChar maps a field-descriptor's leading type
// character to the corresponding names.Primitive.
func primitiveForDescriptorChar(c byte) (names.Primitive, error) {
	switch c {
	case 'B':
		return names.PrimByte, nil
	case 'S':
		return names.PrimShort, nil
	case 'I':
		return names.PrimInt, nil
	case 'J':
		return names.PrimLong, nil
	case 'F':
		return names.PrimFloat, nil
	case 'D':
		return names.PrimDouble, nil
	case 'C':
		return names.PrimChar, nil
	case 'Z':
		return names.PrimBool, nil
	default:
		return names.PrimNone, fmt.Errorf("interp: unknown primitive descriptor %q", c)
	}
}

// checkCast validates v is null or an instance assignable to target,
// raising ClassCastException otherwise.
func (e *Env) checkCast(v value.Value, target names.ClassId) (stepResult, error) {
	if v.IsNull() {
		return contResult(), nil
	}
	ok, err := e.instanceOf(v, target)
	if err != nil {
		return stepResult{}, err
	}
	if !ok {
		targetName, _ := e.Names.Name(target)
		r, err := e.Throw(ExcClassCast, "cannot cast to "+targetName)
		return r, err
	}
	return contResult(), nil
}

// instanceOf implements instanceof's semantics: null is never an
// instance of anything; otherwise the runtime class must equal,
// subclass, implement, or array-cast to target.
func (e *Env) instanceOf(v value.Value, target names.ClassId) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	runtimeClass, err := e.dynamicClassOf(v)
	if err != nil {
		return false, err
	}
	if runtimeClass == target {
		return true, nil
	}
	if e.Names.IsArray(runtimeClass) && e.Names.IsArray(target) {
		return e.Classes.IsCastableArray(runtimeClass, target), nil
	}
	if e.Classes.IsSuperClass(runtimeClass, target) {
		return true, nil
	}
	return e.Classes.ImplementsInterface(runtimeClass, target), nil
}
