// Package verify is the stack-map-driven bytecode verifier: an abstract
// interpretation over pkg/instr's declarative pop/push model that
// replaces its working state at every declared StackMapTable offset
// (the merge-point contract) instead of computing merges itself, and
// rejects stack underflow, local-index/category errors, and type
// mismatches before a method is ever interpreted. This package is
// grounded directly in the JVM class-file format's own StackMapTable
// encoding (pkg/classfile's stackmap.go), which is the wire contract a
// verifier exists to check.
package verify

import (
	"fmt"
	"sort"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/instr"
	"github.com/corejvm/corejvm/pkg/methods"
)

// absType is the verifier's own abstract value, a resolved form of
// classfile.VerificationType: Object entries carry a class name instead
// of a raw constant-pool index, so synthesized entries (the implicit
// `this`, declared parameter types) need no constant-pool backing.
//
// An uninitialized reference (kind VerifyUninitializedThis or
// VerifyUninitialized) carries its creation-site identity rather than
// collapsing to an ordinary object: VerifyUninitializedThis is the
// single implicit `this` of the constructor under verification;
// VerifyUninitialized additionally carries newOff, the bytecode offset
// of the `new` instruction that produced it, since a method can have
// more than one live uninitialized reference at once and they must not
// be confused with each other (matches the offset JVM stack maps
// themselves encode for this same purpose).
type absType struct {
	kind      classfile.VerificationKind
	className string
	newOff    int
}

// sameUninitIdentity reports whether a and b name the same not-yet-
// initialized reference: the same implicit `this`, or the same `new`
// creation site.
func sameUninitIdentity(a, b absType) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case classfile.VerifyUninitializedThis:
		return true
	case classfile.VerifyUninitialized:
		return a.newOff == b.newOff
	default:
		return false
	}
}

func (t absType) category() int {
	if t.kind == classfile.VerifyLong || t.kind == classfile.VerifyDouble {
		return 2
	}
	return 1
}

var (
	top     = absType{kind: classfile.VerifyTop}
	integer = absType{kind: classfile.VerifyInteger}
	float_  = absType{kind: classfile.VerifyFloat}
	long_   = absType{kind: classfile.VerifyLong}
	double_ = absType{kind: classfile.VerifyDouble}
	null_   = absType{kind: classfile.VerifyNull}
)

func object(className string) absType {
	return absType{kind: classfile.VerifyObject, className: className}
}

// Error is a verification failure, the VerifyError-equivalent raised
// before a method is ever interpreted.
type Error struct {
	Method string
	Offset int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("verify: %s at offset %d: %s", e.Method, e.Offset, e.Reason)
}

// state is the abstract machine state the verifier threads through the
// instruction stream: a fixed-size locals array (indexed physically,
// the same as the interpreter's Frame.Locals) and a growing stack
// (entries are one-per-value regardless of category, matching
// StackMapTable's own convention).
type state struct {
	locals []absType
	stack  []absType
}

func newState(maxLocals int) *state {
	l := make([]absType, maxLocals)
	for i := range l {
		l[i] = top
	}
	return &state{locals: l}
}

func (s *state) clone() *state {
	locals := make([]absType, len(s.locals))
	copy(locals, s.locals)
	stack := make([]absType, len(s.stack))
	copy(stack, s.stack)
	return &state{locals: locals, stack: stack}
}

// Verify checks one method's Code against its declared StackMapTable,
// given the registry so reference assignability can be checked via
// pkg/classes' queries.
func Verify(cr *classes.Registry, c *classes.Class, m *classfile.MethodInfo) error {
	code := m.Code
	if code == nil {
		return nil
	}
	label := c.Name + "." + m.Name + m.Descriptor

	instrs, err := instr.Decode(code.Code)
	if err != nil {
		return &Error{Method: label, Offset: 0, Reason: err.Error()}
	}
	offsets := make([]int, 0, len(instrs))
	for off := range instrs {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	framesByOffset, err := resolveFrames(c, code)
	if err != nil {
		return &Error{Method: label, Offset: 0, Reason: err.Error()}
	}

	cur := initialState(c, m, int(code.MaxLocals))
	isConstructor := m.Name == "<init>"

	for _, off := range offsets {
		if declared, ok := framesByOffset[off]; ok {
			cur = declared
		}
		ins := instrs[off]
		if err := step(cr, c, label, off, ins, cur, int(code.MaxStack), int(code.MaxLocals), isConstructor); err != nil {
			return err
		}
	}
	return nil
}

// initialState seeds locals from the method's own descriptor: an
// implicit `this` first, unless the method is static, then each
// declared parameter type in order. A constructor's `this` starts
// uninitialized (VerifyUninitializedThis) until a this()/super() call
// initializes it; every other instance method's `this` is already a
// fully-formed object of the declaring class on entry.
func initialState(c *classes.Class, m *classfile.MethodInfo, maxLocals int) *state {
	s := newState(maxLocals)
	idx := 0
	if m.AccessFlags&classfile.AccStatic == 0 {
		if m.Name == "<init>" {
			s.locals[idx] = absType{kind: classfile.VerifyUninitializedThis}
		} else {
			s.locals[idx] = object(c.Name)
		}
		idx++
	}
	desc, err := methods.ParseDescriptor(m.Descriptor)
	if err != nil {
		return s
	}
	for _, p := range desc.Params {
		t := absTypeForFieldDescriptor(p)
		if idx >= len(s.locals) {
			break
		}
		s.locals[idx] = t
		idx++
		if t.category() == 2 && idx < len(s.locals) {
			s.locals[idx] = top
			idx++
		}
	}
	return s
}

func absTypeForFieldDescriptor(d string) absType {
	if len(d) == 0 {
		return top
	}
	switch d[0] {
	case 'J':
		return long_
	case 'D':
		return double_
	case 'F':
		return float_
	case 'L':
		name := d[1:]
		if len(name) > 0 && name[len(name)-1] == ';' {
			name = name[:len(name)-1]
		}
		return object(name)
	case '[':
		return object(d)
	default:
		return integer
	}
}

// resolveFrames expands every declared StackMapTable frame into a full
// state, applying the five frame kinds' same/chop/append/full semantics
// relative to the previous frame (JVM spec §4.7.4), and physically
// expanding each entry into the locals array the same way the
// interpreter lays locals out (category-2 entries occupy two physical
// slots, the second one implicitly Top).
func resolveFrames(c *classes.Class, code *classfile.CodeAttribute) (map[int]*state, error) {
	out := make(map[int]*state)
	prev := newState(int(code.MaxLocals))
	for _, f := range code.StackMapTable {
		next := prev.clone()
		switch f.Kind {
		case classfile.FrameSame:
			next.stack = nil
		case classfile.FrameSameLocals1StackItem:
			vt, err := resolveVT(c, f.Stack[0])
			if err != nil {
				return nil, err
			}
			next.stack = []absType{vt}
		case classfile.FrameChop:
			if err := chopLocals(next, f.ChopCount); err != nil {
				return nil, err
			}
			next.stack = nil
		case classfile.FrameAppend:
			if err := appendLocals(next, c, f.Locals); err != nil {
				return nil, err
			}
			next.stack = nil
		case classfile.FrameFull:
			fresh := newState(int(code.MaxLocals))
			if err := appendLocals(fresh, c, f.Locals); err != nil {
				return nil, err
			}
			stack := make([]absType, 0, len(f.Stack))
			for _, vt := range f.Stack {
				rt, err := resolveVT(c, vt)
				if err != nil {
					return nil, err
				}
				stack = append(stack, rt)
			}
			fresh.stack = stack
			next = fresh
		}
		out[f.Offset] = next
		prev = next
	}
	return out, nil
}

// chopLocals removes the last n declared (entry-level, not physical)
// locals from s, in place.
func chopLocals(s *state, n int) error {
	entries := collapseEntries(s.locals)
	if n > len(entries) {
		return fmt.Errorf("chop_frame removes %d locals but only %d are declared", n, len(entries))
	}
	entries = entries[:len(entries)-n]
	expandEntries(s, entries)
	return nil
}

// appendLocals appends newEntries (resolved from wire form) after the
// existing declared locals, physically expanding the whole list.
func appendLocals(s *state, c *classes.Class, newEntries []classfile.VerificationType) error {
	entries := collapseEntries(s.locals)
	for _, vt := range newEntries {
		rt, err := resolveVT(c, vt)
		if err != nil {
			return err
		}
		entries = append(entries, rt)
	}
	expandEntries(s, entries)
	return nil
}

// collapseEntries reads s.locals' physical layout back into one entry
// per declared local (skipping the synthetic Top half of category-2
// entries), the inverse of expandEntries.
func collapseEntries(locals []absType) []absType {
	var entries []absType
	for i := 0; i < len(locals); {
		t := locals[i]
		entries = append(entries, t)
		if t.category() == 2 {
			i += 2
		} else {
			i++
		}
	}
	return entries
}

// expandEntries writes entries back into s.locals' fixed-size physical
// layout, padding any remainder with Top.
func expandEntries(s *state, entries []absType) {
	for i := range s.locals {
		s.locals[i] = top
	}
	i := 0
	for _, t := range entries {
		if i >= len(s.locals) {
			break
		}
		s.locals[i] = t
		i++
		if t.category() == 2 {
			if i < len(s.locals) {
				s.locals[i] = top
			}
			i++
		}
	}
}

func resolveVT(c *classes.Class, vt classfile.VerificationType) (absType, error) {
	switch vt.Kind {
	case classfile.VerifyTop:
		return top, nil
	case classfile.VerifyInteger:
		return integer, nil
	case classfile.VerifyFloat:
		return float_, nil
	case classfile.VerifyLong:
		return long_, nil
	case classfile.VerifyDouble:
		return double_, nil
	case classfile.VerifyNull:
		return null_, nil
	case classfile.VerifyUninitializedThis:
		return absType{kind: classfile.VerifyUninitializedThis}, nil
	case classfile.VerifyUninitialized:
		return absType{kind: classfile.VerifyUninitialized, className: "<uninitialized>", newOff: int(vt.NewOffset)}, nil
	case classfile.VerifyObject:
		if c.View == nil {
			return absType{}, fmt.Errorf("resolving Object verification type on array class")
		}
		name, err := classfile.GetClassName(c.View.ConstantPool, vt.ClassIndex)
		if err != nil {
			return absType{}, err
		}
		return object(name), nil
	default:
		return absType{}, fmt.Errorf("unknown verification type kind %d", vt.Kind)
	}
}
