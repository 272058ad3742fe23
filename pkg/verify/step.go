package verify

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/instr"
)

// step applies one instruction's declared pop/push/locals effects to
// cur in place, returning a *Error (not a bare error) on any violation
// so callers can report method/offset context uniformly. isConstructor
// is whether the method under verification is <init>, needed to check
// that it cannot return with `this` still uninitialized.
func step(cr *classes.Registry, c *classes.Class, label string, off int, ins *instr.Instruction, cur *state, maxStack, maxLocals int, isConstructor bool) error {
	spec := ins.Spec
	fail := func(format string, args ...interface{}) error {
		return &Error{Method: label, Offset: off, Reason: fmt.Sprintf(format, args...)}
	}

	if handled, err := stepStackShuffle(spec.Mnemonic, cur, maxStack, fail); handled {
		return err
	}
	if spec.Mnemonic == "invokespecial" {
		if handled, err := stepInvokeSpecial(c, ins, cur, fail); handled {
			return err
		}
	}
	if spec.Mnemonic == "return" && isConstructor {
		if len(cur.locals) == 0 || cur.locals[0].kind == classfile.VerifyUninitializedThis {
			return fail("constructor returns without initializing this via this()/super()")
		}
	}

	popped := make([]absType, len(spec.Pop))
	for i, want := range spec.Pop {
		if len(cur.stack) == 0 {
			return fail("stack underflow (expected %v)", want.Kind)
		}
		got := cur.stack[len(cur.stack)-1]
		cur.stack = cur.stack[:len(cur.stack)-1]
		if err := checkPop(want, got, false); err != nil {
			return fail("%v", err)
		}
		popped[i] = got
	}

	pushed := make([]absType, 0, len(spec.Push))
	for _, want := range spec.Push {
		pushed = append(pushed, resolvePush(c, ins, want, popped))
	}
	for _, p := range pushed {
		if len(cur.stack) >= maxStack {
			return fail("operand stack overflow (max-stack=%d)", maxStack)
		}
		cur.stack = append(cur.stack, p)
	}

	var loaded absType
	for _, la := range spec.LocalsRead {
		idx := la.Index
		if idx == -1 {
			idx = ins.Index
		}
		if idx < 0 || idx >= len(cur.locals) {
			return fail("local index %d out of range (max-locals=%d)", idx, maxLocals)
		}
		got := cur.locals[idx]
		if err := checkPop(la.Type, got, true); err != nil {
			return fail("local %d: %v", idx, err)
		}
		loaded = got
	}
	// A load pushes the local's actual type, so an uninitialized
	// reference keeps its identity when it travels through aload.
	if len(spec.LocalsRead) == 1 && len(spec.Push) == 1 && len(spec.Pop) == 0 && len(cur.stack) > 0 {
		cur.stack[len(cur.stack)-1] = loaded
	}
	// A store's written value is taken from what was actually popped
	// (when Pop and LocalsWritten correspond one-to-one, as they do for
	// every *store opcode) rather than re-derived from the symbolic
	// declared type: a plain symbolic reference type carries no class
	// identity, which would silently erase an uninitialized reference's
	// creation-site identity the moment it passed through a local.
	for i, la := range spec.LocalsWritten {
		idx := la.Index
		if idx == -1 {
			idx = ins.Index
		}
		if idx < 0 || idx >= len(cur.locals) {
			return fail("local index %d out of range (max-locals=%d)", idx, maxLocals)
		}
		t := symbolicToConcrete(la.Type)
		if len(spec.Pop) == len(spec.LocalsWritten) && i < len(popped) {
			t = popped[i]
		}
		cur.locals[idx] = t
		if idx > 0 && cur.locals[idx-1].category() == 2 {
			cur.locals[idx-1] = top
		}
		if t.category() == 2 {
			if idx+1 >= len(cur.locals) {
				return fail("category-2 store at local %d has no top slot", idx)
			}
			cur.locals[idx+1] = top
		}
	}
	return nil
}

// stepInvokeSpecial special-cases invokespecial when its resolved
// target method is <init>: the only instruction allowed to consume an
// uninitialized reference. Afterward every other occurrence of that
// same creation-site identity still live in locals or on the stack is
// replaced with the now-initialized object type, implementing the
// aliasing the javac `new; dup; invokespecial <init>` idiom (and a
// constructor's own this()/super() call) relies on: dup leaves a second
// reference to the same not-yet-initialized object, and initializing
// one must initialize both.
func stepInvokeSpecial(c *classes.Class, ins *instr.Instruction, cur *state, fail func(string, ...interface{}) error) (bool, error) {
	if c.View == nil {
		return false, nil
	}
	mref, err := classfile.ResolveMethodref(c.View.ConstantPool, uint16(ins.Index))
	if err != nil || mref.MethodName != "<init>" {
		return false, nil
	}
	if len(cur.stack) == 0 {
		return true, fail("stack underflow (expected uninitialized reference for <init>)")
	}
	recv := cur.stack[len(cur.stack)-1]
	cur.stack = cur.stack[:len(cur.stack)-1]

	var initialized absType
	switch recv.kind {
	case classfile.VerifyUninitializedThis:
		initialized = object(c.Name)
	case classfile.VerifyUninitialized:
		initialized = object(recv.className)
	default:
		return true, fail("invokespecial <init> on an already-initialized or non-reference value (%v)", recv.kind)
	}
	initializeRefs(cur, recv, initialized)
	return true, nil
}

// initializeRefs replaces every occurrence of the uninitialized
// identity from still present in locals or on the stack with to.
func initializeRefs(cur *state, from, to absType) {
	for i, t := range cur.locals {
		if sameUninitIdentity(t, from) {
			cur.locals[i] = to
		}
	}
	for i, t := range cur.stack {
		if sameUninitIdentity(t, from) {
			cur.stack[i] = to
		}
	}
}

// stepStackShuffle special-cases the five opcodes whose legal pop shape
// branches on the popped values' own categories at runtime
// (pop2/dup2/dup_x2/dup2_x1/dup2_x2): pkg/instr's declarative Spec.Pop
// can only declare one fixed shape, but each of these opcodes has
// multiple JVM-spec-legal forms, so the static table only ever matches
// one of them. This mirrors pkg/interp/loop.go's runtime branching on
// Category() for the identical opcodes so verify-time and run-time
// agree on which programs are legal. dup, dup_x1, and swap have exactly
// one legal form each and go through the ordinary declarative path.
func stepStackShuffle(mnemonic string, cur *state, maxStack int, fail func(string, ...interface{}) error) (bool, error) {
	switch mnemonic {
	case "pop2", "dup2", "dup_x2", "dup2_x1", "dup2_x2":
	default:
		return false, nil
	}

	pop := func() (absType, error) {
		if len(cur.stack) == 0 {
			return absType{}, fail("stack underflow")
		}
		v := cur.stack[len(cur.stack)-1]
		cur.stack = cur.stack[:len(cur.stack)-1]
		return v, nil
	}
	pushAll := func(vs ...absType) error {
		for _, v := range vs {
			if len(cur.stack) >= maxStack {
				return fail("operand stack overflow (max-stack=%d)", maxStack)
			}
			cur.stack = append(cur.stack, v)
		}
		return nil
	}

	switch mnemonic {
	case "pop2":
		v1, err := pop()
		if err != nil {
			return true, err
		}
		if v1.category() == 2 {
			return true, nil
		}
		_, err = pop()
		return true, err

	case "dup2":
		v1, err := pop()
		if err != nil {
			return true, err
		}
		if v1.category() == 2 {
			return true, pushAll(v1, v1)
		}
		v2, err := pop()
		if err != nil {
			return true, err
		}
		return true, pushAll(v2, v1, v2, v1)

	case "dup_x2":
		v1, err := pop()
		if err != nil {
			return true, err
		}
		v2, err := pop()
		if err != nil {
			return true, err
		}
		if v2.category() == 2 {
			// form 2: cat1, cat2 -> v1, v2, v1
			return true, pushAll(v1, v2, v1)
		}
		v3, err := pop()
		if err != nil {
			return true, err
		}
		return true, pushAll(v1, v3, v2, v1)

	case "dup2_x1":
		v1, err := pop()
		if err != nil {
			return true, err
		}
		if v1.category() == 2 {
			// form 2: cat2, cat1 -> v1, v2, v1
			v2, err := pop()
			if err != nil {
				return true, err
			}
			return true, pushAll(v1, v2, v1)
		}
		v2, err := pop()
		if err != nil {
			return true, err
		}
		v3, err := pop()
		if err != nil {
			return true, err
		}
		return true, pushAll(v2, v1, v3, v2, v1)

	case "dup2_x2":
		v1, err := pop()
		if err != nil {
			return true, err
		}
		v2, err := pop()
		if err != nil {
			return true, err
		}
		if v1.category() == 2 {
			if v2.category() == 2 {
				// form 4: cat2, cat2 -> v1, v2, v1
				return true, pushAll(v1, v2, v1)
			}
			// form 3: cat2, cat1, cat1 -> v1, v3, v2, v1
			v3, err := pop()
			if err != nil {
				return true, err
			}
			return true, pushAll(v1, v3, v2, v1)
		}
		v3, err := pop()
		if err != nil {
			return true, err
		}
		if v3.category() == 2 {
			// form 2: cat1, cat1, cat2 -> v2, v1, v3, v2, v1
			return true, pushAll(v2, v1, v3, v2, v1)
		}
		// form 1: cat1, cat1, cat1, cat1 -> v2, v1, v4, v3, v2, v1
		v4, err := pop()
		if err != nil {
			return true, err
		}
		return true, pushAll(v2, v1, v4, v3, v2, v1)
	}
	return false, nil
}

// checkPop reports whether got satisfies the symbolic type want expects
// to pop or read. Object/array assignability against a declared class
// is not checked structurally here (decided in DESIGN.md: category and
// broad kind mismatches are rejected, exact reference-type
// assignability is left to runtime checkcast/invocation-resolution
// errors, which still surface a class-cast or no-such-method failure
// when the program is genuinely ill-typed).
//
// allowUninit distinguishes a local read (aload, reporting a local's
// current declared type without consuming it) from a genuine pop off
// the operand stack: an uninitialized reference may sit in a local and
// travel across aload/dup freely, but escaping through any instruction
// that actually consumes it as a reference (areturn, athrow, checkcast,
// a field or array store, an ordinary virtual/interface/static
// invocation) is what the JVM-spec constructor-completion rule forbids.
// invokespecial's own <init> receiver is popped before this check ever
// runs (see stepInvokeSpecial), so this function never needs to special-
// case it.
func checkPop(want instr.Type, got absType, allowUninit bool) error {
	switch want.Kind {
	case instr.TInt:
		if got.kind != classfile.VerifyInteger {
			return fmt.Errorf("expected int, got %v", got.kind)
		}
	case instr.TLong:
		if got.kind != classfile.VerifyLong {
			return fmt.Errorf("expected long, got %v", got.kind)
		}
	case instr.TFloat:
		if got.kind != classfile.VerifyFloat {
			return fmt.Errorf("expected float, got %v", got.kind)
		}
	case instr.TDouble:
		if got.kind != classfile.VerifyDouble {
			return fmt.Errorf("expected double, got %v", got.kind)
		}
	case instr.TReference:
		isUninit := got.kind == classfile.VerifyUninitializedThis || got.kind == classfile.VerifyUninitialized
		if isUninit && allowUninit {
			break
		}
		if got.kind != classfile.VerifyObject && got.kind != classfile.VerifyNull {
			if isUninit {
				return fmt.Errorf("uninitialized reference used before its constructor runs")
			}
			return fmt.Errorf("expected reference, got %v", got.kind)
		}
	case instr.TReturnAddress:
		// not produced by this core's decoder (jsr/ret unsupported); accept anything.
	case instr.TCategory1:
		if got.category() != 1 {
			return fmt.Errorf("expected category-1 value, got category-%d", got.category())
		}
	case instr.TCategory2:
		if got.category() != 2 {
			return fmt.Errorf("expected category-2 value, got category-%d", got.category())
		}
	case instr.TCPRefAt:
		// putfield/putstatic value type checking against the field's
		// declared descriptor is deferred to the interpreter, which
		// already has the resolved field in hand at no extra cost.
	case instr.TSameAsPopK, instr.TArrayElem:
		// never appear in Pop position in the current table.
	}
	return nil
}

func symbolicToConcrete(t instr.Type) absType {
	switch t.Kind {
	case instr.TInt:
		return integer
	case instr.TLong:
		return long_
	case instr.TFloat:
		return float_
	case instr.TDouble:
		return double_
	case instr.TReference:
		return object("")
	default:
		return top
	}
}

// resolvePush computes the concrete abstract type a Push entry
// produces, resolving TSameAsPopK/TCPRefAt/TArrayElem against the
// instruction's own constant-pool index or the values just popped.
func resolvePush(c *classes.Class, ins *instr.Instruction, want instr.Type, popped []absType) absType {
	switch want.Kind {
	case instr.TSameAsPopK:
		if want.Index < len(popped) {
			return popped[want.Index]
		}
		return top
	case instr.TArrayElem:
		if want.Index < len(popped) {
			return arrayElementType(popped[want.Index])
		}
		return object("")
	case instr.TCPRefAt:
		return resolveCPPushType(c, ins)
	default:
		return symbolicToConcrete(want)
	}
}

// arrayElementType derives the verifier's abstract element type from an
// array reference's recorded class name ("[I", "[Ljava/lang/String;",
// "[[J", ...); unresolvable shapes degrade to a generic reference,
// which only weakens checking on an already-malformed program.
func arrayElementType(arr absType) absType {
	name := arr.className
	if len(name) < 2 || name[0] != '[' {
		return object("")
	}
	rest := name[1:]
	switch rest[0] {
	case 'J':
		return long_
	case 'D':
		return double_
	case 'F':
		return float_
	case '[', 'L':
		return object(rest)
	default:
		return integer
	}
}

// resolveCPPushType resolves ldc/ldc_w/ldc2_w/getstatic/getfield/new's
// pushed type from the instruction's constant-pool operand.
func resolveCPPushType(c *classes.Class, ins *instr.Instruction) absType {
	if c.View == nil {
		return object("")
	}
	pool := c.View.ConstantPool
	switch ins.Spec.Mnemonic {
	case "new":
		name, err := classfile.GetClassName(pool, uint16(ins.Index))
		if err != nil {
			name = "<uninitialized>"
		}
		return absType{kind: classfile.VerifyUninitialized, className: name, newOff: ins.Offset}
	case "getstatic", "getfield":
		if fr, err := classfile.ResolveFieldref(pool, uint16(ins.Index)); err == nil {
			return absTypeForFieldDescriptor(fr.Descriptor)
		}
	case "ldc":
		if int(ins.Index) < len(pool) && pool[ins.Index] != nil {
			switch pool[ins.Index].(type) {
			case *classfile.ConstantInteger:
				return integer
			case *classfile.ConstantFloat:
				return float_
			case *classfile.ConstantString:
				return object("java/lang/String")
			case *classfile.ConstantClass:
				return object("java/lang/Class")
			}
		}
	}
	return object("")
}
