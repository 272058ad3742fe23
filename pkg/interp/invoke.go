package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// resolvedCallSite is the cached outcome of one invokedynamic
// instruction's bootstrap resolution: the static target its bootstrap
// method produced (recorded in DESIGN.md: this core's bootstrap
// protocol always yields a direct static-method target rather than
// modeling the full java.lang.invoke CallSite/MethodHandle chain,
// since nothing downstream of the core consumes a richer form).
type resolvedCallSite struct {
	TargetClass      names.ClassId
	TargetName       string
	TargetDescriptor string
}

// arrayCloneName is the synthetic method name array classes answer to
// a clone() invocation with: clone on arrays resolves to a sentinel
// array-clone method-id.
const arrayCloneName = "clone"

// objectClassName is the class arrays dispatch non-clone Object methods
// against.
const objectClassName = "java/lang/Object"

// InvokeStatic resolves and calls a static method.
func (e *Env) InvokeStatic(class names.ClassId, name, descriptor string, args []value.Value) (*RunOutcome, error) {
	if err := e.PrepareClass(class); err != nil {
		return nil, err
	}
	m, err := e.Methods.Lookup(class, name, descriptor)
	if err != nil {
		return nil, err
	}
	c, ok := e.Classes.Get(class)
	if !ok {
		return nil, fmt.Errorf("interp: invokestatic target class %v not derived", class)
	}
	return e.RunMethod(c, m.Info, args)
}

// InvokeSpecial resolves directly on the named class without override
// walking: used for <init>/super.m()/private-instance methods. args[0]
// is the receiver.
func (e *Env) InvokeSpecial(class names.ClassId, name, descriptor string, args []value.Value) (*RunOutcome, error) {
	if len(args) == 0 || args[0].IsNull() {
		return e.throwRun(ExcNullPointer, "")
	}
	if err := e.PrepareClass(class); err != nil {
		return nil, err
	}
	m, err := e.Methods.Lookup(class, name, descriptor)
	if err != nil {
		return nil, err
	}
	c, ok := e.Classes.Get(class)
	if !ok {
		return nil, fmt.Errorf("interp: invokespecial target class %v not derived", class)
	}
	return e.RunMethod(c, m.Info, args)
}

// InvokeVirtual dispatches from the receiver's runtime class.
// args[0] is the receiver; declaredClass, the static type named at the
// call site, is not consulted. An array receiver answers clone itself
// and resolves every other method against java.lang.Object.
func (e *Env) InvokeVirtual(declaredClass names.ClassId, name, descriptor string, args []value.Value) (*RunOutcome, error) {
	if len(args) == 0 || args[0].IsNull() {
		return e.throwRun(ExcNullPointer, "")
	}
	runtimeClass, err := e.dynamicClassOf(args[0])
	if err != nil {
		return nil, err
	}
	if e.Names.IsArray(runtimeClass) {
		if name == arrayCloneName {
			return e.arrayClone(args[0])
		}
		runtimeClass = e.Names.Intern(objectClassName)
	}
	m, err := e.Methods.ResolveVirtual(runtimeClass, name, descriptor)
	if err != nil {
		return nil, err
	}
	declaring, ok := e.Classes.Get(m.ID.Class)
	if !ok {
		return nil, fmt.Errorf("interp: resolved virtual target %v not derived", m.ID.Class)
	}
	return e.RunMethod(declaring, m.Info, args)
}

// InvokeInterface uses the same resolution table as invokevirtual:
// invokeinterface resolves exactly like virtual dispatch.
func (e *Env) InvokeInterface(declaredClass names.ClassId, name, descriptor string, args []value.Value) (*RunOutcome, error) {
	return e.InvokeVirtual(declaredClass, name, descriptor, args)
}

// InvokeDynamic resolves (caching per static instruction location) a
// bootstrap method and calls its static target: a single CallSite per
// static instruction location.
func (e *Env) InvokeDynamic(callSiteClass names.ClassId, callSiteMethod string, offset int, pool []classfile.ConstantPoolEntry, bsm *classfile.BootstrapMethod, natName, natDescriptor string, args []value.Value) (*RunOutcome, error) {
	key := callSiteKey{class: callSiteClass, method: callSiteMethod, offset: offset}
	var site *resolvedCallSite
	if cached, ok := e.callSites.Get(key); ok {
		site = cached.(*resolvedCallSite)
	} else {
		resolved, err := e.runBootstrap(pool, bsm, natName, natDescriptor)
		if err != nil {
			return nil, err
		}
		site = resolved
		e.callSites.Add(key, site)
	}
	return e.InvokeStatic(site.TargetClass, site.TargetName, site.TargetDescriptor, args)
}

// refInvokeStaticKind is the JVM reference_kind value for REF_invokeStatic.
const refInvokeStaticKind = 6

// runBootstrap resolves a bootstrap method's own method-handle operand
// and names the static method it designates; this core does not
// execute the bootstrap method itself (no dynamically-generated
// CallSite logic), so the bootstrap's referenced method becomes the
// invocation target directly (see resolvedCallSite's doc comment).
func (e *Env) runBootstrap(pool []classfile.ConstantPoolEntry, bsm *classfile.BootstrapMethod, natName, natDescriptor string) (*resolvedCallSite, error) {
	mh, err := classfile.ResolveMethodHandle(pool, bsm.MethodRef)
	if err != nil {
		return nil, fmt.Errorf("interp: resolving invokedynamic bootstrap handle: %w", err)
	}
	if mh.ReferenceKind != refInvokeStaticKind {
		return nil, fmt.Errorf("interp: invokedynamic bootstrap reference_kind %d unsupported (only REF_invokeStatic)", mh.ReferenceKind)
	}
	mref, err := classfile.ResolveMethodref(pool, mh.ReferenceIndex)
	if err != nil {
		return nil, fmt.Errorf("interp: resolving invokedynamic bootstrap method: %w", err)
	}
	targetClass := e.Names.Intern(mref.ClassName)
	_ = natName
	_ = natDescriptor
	return &resolvedCallSite{TargetClass: targetClass, TargetName: mref.MethodName, TargetDescriptor: mref.Descriptor}, nil
}

// dynamicClassOf reports the runtime ClassId of a non-null reference
// value, reading back through the heap rather than trusting the
// ClassName carried on value.Value, since dispatch must go by runtime
// class.
func (e *Env) dynamicClassOf(v value.Value) (names.ClassId, error) {
	ref, ok := v.Ref.(heap.Ref)
	if !ok {
		return 0, fmt.Errorf("interp: value is not a heap reference")
	}
	kind, err := e.Heap.Kind(ref)
	if err != nil {
		return 0, err
	}
	switch kind {
	case heap.KindClassInstance:
		ci, err := e.Heap.ClassInstance(ref)
		if err != nil {
			return 0, err
		}
		return ci.Class, nil
	case heap.KindPrimitiveArray:
		pa, err := e.Heap.PrimitiveArray(ref)
		if err != nil {
			return 0, err
		}
		return e.Names.ArrayOfPrimitive(pa.Elem, 1)
	case heap.KindReferenceArray:
		ra, err := e.Heap.ReferenceArray(ref)
		if err != nil {
			return 0, err
		}
		elemName, err := e.Names.Name(ra.ElemClass)
		if err != nil {
			return 0, err
		}
		if len(elemName) > 0 && elemName[0] == '[' {
			return e.Names.Intern("[" + elemName), nil
		}
		return e.Names.Intern("[L" + elemName + ";"), nil
	case heap.KindClassMirror:
		return e.Names.Intern("java/lang/Class"), nil
	case heap.KindMethodHandle:
		return e.Names.Intern("java/lang/invoke/MethodHandle"), nil
	default:
		return 0, fmt.Errorf("interp: handle %d has no runtime class (kind=%d)", ref, kind)
	}
}

// arrayClone shallow-copies an array's backing storage into a fresh
// heap entry of the same shape.
func (e *Env) arrayClone(v value.Value) (*RunOutcome, error) {
	ref, ok := v.Ref.(heap.Ref)
	if !ok {
		return nil, fmt.Errorf("interp: clone target is not a heap reference")
	}
	kind, err := e.Heap.Kind(ref)
	if err != nil {
		return nil, err
	}
	switch kind {
	case heap.KindPrimitiveArray:
		pa, err := e.Heap.PrimitiveArray(ref)
		if err != nil {
			return nil, err
		}
		values := make([]value.Value, len(pa.Values))
		copy(values, pa.Values)
		newRef := e.Heap.NewPrimitiveArray(&heap.PrimitiveArray{Elem: pa.Elem, Values: values})
		return &RunOutcome{Returned: true, Value: value.RefOf(newRef, v.ClassName)}, nil
	case heap.KindReferenceArray:
		ra, err := e.Heap.ReferenceArray(ref)
		if err != nil {
			return nil, err
		}
		values := make([]heap.Ref, len(ra.Values))
		copy(values, ra.Values)
		newRef := e.Heap.NewReferenceArray(&heap.ReferenceArray{ElemClass: ra.ElemClass, Values: values})
		return &RunOutcome{Returned: true, Value: value.RefOf(newRef, v.ClassName)}, nil
	default:
		return nil, fmt.Errorf("interp: clone target is not an array (kind=%d)", kind)
	}
}

// throwRun is a convenience for building a RunOutcome that propagates a
// core-originated exception without going through the handler-search
// path (used when the receiver itself is null, before any frame for
// the callee exists).
func (e *Env) throwRun(className, message string) (*RunOutcome, error) {
	exc, err := e.newException(className, message)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{Thrown: true, Exception: exc}, nil
}
