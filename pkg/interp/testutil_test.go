package interp

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/methods"
	"github.com/corejvm/corejvm/pkg/names"
)

// cpBuilder assembles a constant pool one entry at a time, de-duplicating
// Utf8 entries so callers can freely re-reference the same name/descriptor.
type cpBuilder struct {
	entries []classfile.ConstantPoolEntry
	utf8Idx map[string]uint16
}

func newCPBuilder() *cpBuilder {
	return &cpBuilder{entries: []classfile.ConstantPoolEntry{nil}, utf8Idx: make(map[string]uint16)}
}

func (b *cpBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	b.entries = append(b.entries, e)
	return uint16(len(b.entries) - 1)
}

func (b *cpBuilder) utf8(s string) uint16 {
	if idx, ok := b.utf8Idx[s]; ok {
		return idx
	}
	idx := b.add(&classfile.ConstantUtf8{Value: s})
	b.utf8Idx[s] = idx
	return idx
}

func (b *cpBuilder) class(name string) uint16 {
	return b.add(&classfile.ConstantClass{NameIndex: b.utf8(name)})
}

func (b *cpBuilder) nameAndType(name, desc string) uint16 {
	return b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(desc)})
}

func (b *cpBuilder) methodref(className, name, desc string) uint16 {
	return b.add(&classfile.ConstantMethodref{ClassIndex: b.class(className), NameAndTypeIndex: b.nameAndType(name, desc)})
}

func (b *cpBuilder) fieldref(className, name, desc string) uint16 {
	return b.add(&classfile.ConstantFieldref{ClassIndex: b.class(className), NameAndTypeIndex: b.nameAndType(name, desc)})
}

func (b *cpBuilder) integer(v int32) uint16 {
	return b.add(&classfile.ConstantInteger{Value: v})
}

// methodDef is one method a built class carries: a Code attribute with
// at most one StackMapTable entry (HandlerFrameOffset), enough to
// declare an exception handler's entry state without modeling full
// merge-point recomputation.
type methodDef struct {
	Name      string
	Desc      string
	Flags     uint16
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
	Handlers  []classfile.ExceptionHandler

	// HandlerFrameOffset/HandlerFrameClass, if HandlerFrameClass is
	// non-empty, declare a same_locals_1_stack_item_frame at that
	// offset carrying one Object(HandlerFrameClass) stack entry —
	// the shape an exception handler's entry point actually has
	// (one pushed exception reference, locals unchanged). Offset
	// must be <= 63 (single-byte encoding only, sufficient for these
	// small test methods).
	HandlerFrameOffset int
	HandlerFrameClass  string
}

// fieldDef is one field a built class carries.
type fieldDef struct {
	Name  string
	Desc  string
	Flags uint16
}

// buildClass serializes a one-class .class file with the given
// constant pool, this/super names, fields, and methods. The body
// (everything past the constant pool) is assembled first, since
// serializing fields/methods/attributes mints new constant-pool
// entries (names, "Code", "StackMapTable", ...) — the pool itself is
// only written, with its final count, once the body is complete.
func buildClass(t *testing.T, cp *cpBuilder, thisName, superName string, fields []fieldDef, methodsList []methodDef) []byte {
	t.Helper()
	thisIdx := cp.class(thisName)
	superIdx := cp.class(superName)

	var body bytes.Buffer
	w := func(v interface{}) { require.NoError(t, binary.Write(&body, binary.BigEndian, v)) }

	w(uint16(classfile.AccPublic | classfile.AccSuper))
	w(thisIdx)
	w(superIdx)
	w(uint16(0)) // interfaces

	w(uint16(len(fields)))
	for _, f := range fields {
		w(f.Flags)
		w(cp.utf8(f.Name))
		w(cp.utf8(f.Desc))
		w(uint16(0)) // attributes
	}

	w(uint16(len(methodsList)))
	for _, m := range methodsList {
		w(m.Flags)
		w(cp.utf8(m.Name))
		w(cp.utf8(m.Desc))

		if m.Code == nil {
			w(uint16(0)) // no Code attribute (native/abstract)
			continue
		}

		hasFrame := m.HandlerFrameClass != ""
		codeAttrCount := 1
		if hasFrame {
			codeAttrCount = 2
		}

		var codeAttr bytes.Buffer
		cw := func(v interface{}) { require.NoError(t, binary.Write(&codeAttr, binary.BigEndian, v)) }
		cw(m.MaxStack)
		cw(m.MaxLocals)
		cw(uint32(len(m.Code)))
		codeAttr.Write(m.Code)
		cw(uint16(len(m.Handlers)))
		for _, h := range m.Handlers {
			cw(h.StartPC)
			cw(h.EndPC)
			cw(h.HandlerPC)
			cw(h.CatchType)
		}

		var smtAttr bytes.Buffer
		var smtNameIdx uint16
		if hasFrame {
			require.LessOrEqual(t, m.HandlerFrameOffset, 63, "single-byte same_locals_1_stack_item_frame only")
			sw := func(v interface{}) { require.NoError(t, binary.Write(&smtAttr, binary.BigEndian, v)) }
			sw(uint16(1)) // number_of_entries
			smtAttr.WriteByte(byte(64 + m.HandlerFrameOffset))
			smtAttr.WriteByte(7) // verification_type_info tag: Object
			sw(cp.class(m.HandlerFrameClass))
			smtNameIdx = cp.utf8("StackMapTable")
		}

		codeNameIdx := cp.utf8("Code")

		cw(uint16(codeAttrCount))
		if hasFrame {
			cw(smtNameIdx)
			cw(uint32(smtAttr.Len()))
			codeAttr.Write(smtAttr.Bytes())
		}

		w(codeNameIdx)
		w(uint32(codeAttr.Len()))
		body.Write(codeAttr.Bytes())
	}

	w(uint16(0)) // class attributes

	var buf bytes.Buffer
	hw := func(v interface{}) { require.NoError(t, binary.Write(&buf, binary.BigEndian, v)) }
	hw(uint32(0xCAFEBABE))
	hw(uint16(0))
	hw(uint16(61))
	hw(uint16(len(cp.entries)))
	for i := 1; i < len(cp.entries); i++ {
		writeCPEntry(t, &buf, cp.entries[i])
	}
	buf.Write(body.Bytes())

	return buf.Bytes()
}

func writeCPEntry(t *testing.T, buf *bytes.Buffer, e classfile.ConstantPoolEntry) {
	t.Helper()
	w := func(v interface{}) { require.NoError(t, binary.Write(buf, binary.BigEndian, v)) }
	buf.WriteByte(e.Tag())
	switch c := e.(type) {
	case *classfile.ConstantUtf8:
		w(uint16(len(c.Value)))
		buf.WriteString(c.Value)
	case *classfile.ConstantInteger:
		w(c.Value)
	case *classfile.ConstantFloat:
		w(c.Value)
	case *classfile.ConstantLong:
		w(c.Value)
	case *classfile.ConstantDouble:
		w(c.Value)
	case *classfile.ConstantClass:
		w(c.NameIndex)
	case *classfile.ConstantString:
		w(c.StringIndex)
	case *classfile.ConstantFieldref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *classfile.ConstantMethodref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *classfile.ConstantInterfaceMethodref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *classfile.ConstantNameAndType:
		w(c.NameIndex)
		w(c.DescriptorIndex)
	default:
		t.Fatalf("writeCPEntry: unsupported entry type %T", e)
	}
}

// memLocator serves class bytes straight out of a map.
type memLocator struct {
	byName map[string][]byte
}

func (m *memLocator) Locate(name string) (io.ReadCloser, error) {
	data, ok := m.byName[name]
	if !ok {
		return nil, errNoSuchClass(name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type errNoSuchClass string

func (e errNoSuchClass) Error() string { return "no class named " + string(e) }

// newTestEnv wires a full Env against an in-memory set of pre-built
// class files, keyed by name.
func newTestEnv(classesData map[string][]byte) *Env {
	reg := names.New()
	loc := &memLocator{byName: classesData}
	cache := classfile.NewCache(reg, loc)
	cr := classes.New(reg, cache)
	mr := methods.New(cr)
	h := heap.New()
	return NewEnv(reg, cr, mr, h)
}
