package native

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/interp"
	"github.com/corejvm/corejvm/pkg/methods"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

func TestNativeHashMapPutAndGet(t *testing.T) {
	hm := NewHashMap()
	require.Nil(t, hm.Put("key1", "value1"))

	require.Equal(t, "value1", hm.Get("key1"))
	require.Nil(t, hm.Get("nonexistent"))

	require.Equal(t, "value1", hm.Put("key1", "value2"))
	require.Equal(t, "value2", hm.Get("key1"))
}

func TestNativeIntegerValueOfAndIntValue(t *testing.T) {
	require.Equal(t, int32(42), IntegerIntValue(IntegerValueOf(42)))
	require.Equal(t, int32(-100), IntegerIntValue(IntegerValueOf(-100)))
	require.NotEqual(t, IntegerIntValue(IntegerValueOf(10)), IntegerIntValue(IntegerValueOf(20)))
}

func TestPrintStreamPrintln(t *testing.T) {
	var buf bytes.Buffer
	ps := &PrintStream{Writer: &buf}

	ps.Println()
	require.Equal(t, "\n", buf.String())

	buf.Reset()
	ps.Println(7)
	require.Equal(t, "7\n", buf.String())
}

// --- bridge-level tests: a real *interp.Env dispatching into the
// native table exactly the way RunMethod does for an AccNative method
// with no Code attribute.

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

// nativeMethod is one AccNative method a test fixture class declares:
// no Code attribute, matching a real native-declared method on disk.
type nativeMethod struct {
	Name  string
	Desc  string
	Flags uint16
}

// nativeClassBytes builds a class carrying only native methods (plus an
// implicit no-args constructor's worth of nothing extra — callers that
// need <init> list it explicitly in methodsList).
func nativeClassBytes(t *testing.T, cp *cpBuilder, thisName, superName string, methodsList []nativeMethod) []byte {
	t.Helper()
	thisIdx := cp.class(thisName)
	superIdx := cp.class(superName)

	var body bytes.Buffer
	w := func(v interface{}) { require.NoError(t, binary.Write(&body, binary.BigEndian, v)) }
	w(uint16(classfile.AccPublic | classfile.AccSuper))
	w(thisIdx)
	w(superIdx)
	w(uint16(0)) // interfaces
	w(uint16(0)) // fields
	w(uint16(len(methodsList)))
	for _, m := range methodsList {
		w(m.Flags | classfile.AccNative)
		w(cp.utf8(m.Name))
		w(cp.utf8(m.Desc))
		w(uint16(0)) // no Code attribute
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

func objectClassBytes(t *testing.T, cp *cpBuilder, name string) []byte {
	t.Helper()
	return nativeClassBytes(t, cp, name, "java/lang/Object", nil)
}

func writeCPEntry(t *testing.T, buf *bytes.Buffer, e classfile.ConstantPoolEntry) {
	t.Helper()
	w := func(v interface{}) { require.NoError(t, binary.Write(buf, binary.BigEndian, v)) }
	buf.WriteByte(e.Tag())
	switch c := e.(type) {
	case *classfile.ConstantUtf8:
		w(uint16(len(c.Value)))
		buf.WriteString(c.Value)
	case *classfile.ConstantClass:
		w(c.NameIndex)
	default:
		t.Fatalf("writeCPEntry: unsupported entry type %T", e)
	}
}

func newTestEnv(t *testing.T, classesData map[string][]byte) (*interp.Env, *Bridge) {
	t.Helper()
	reg := names.New()
	loc := &memLocator{byName: classesData}
	cache := classfile.NewCache(reg, loc)
	cr := classes.New(reg, cache)
	mr := methods.New(cr)
	h := heap.New()
	e := interp.NewEnv(reg, cr, mr, h)

	b := NewBridge(e, new(bytes.Buffer), new(bytes.Buffer))
	e.Native = b.Dispatch
	return e, b
}

func TestBridgeDispatchesIntegerBoxUnbox(t *testing.T) {
	cp := newCPBuilder()
	intClass := nativeClassBytes(t, cp, "java/lang/Integer", "java/lang/Object", []nativeMethod{
		{Name: "valueOf", Desc: "(I)Ljava/lang/Integer;", Flags: classfile.AccPublic | classfile.AccStatic},
		{Name: "intValue", Desc: "()I", Flags: classfile.AccPublic},
	})

	e, _ := newTestEnv(t, map[string][]byte{"java/lang/Integer": intClass})

	id := e.Names.Intern("java/lang/Integer")
	out, err := e.InvokeStatic(id, "valueOf", "(I)Ljava/lang/Integer;", []value.Value{value.Int(42)})
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.False(t, out.Thrown)
	require.Equal(t, value.KindRef, out.Value.Kind)

	unboxed, err := e.InvokeVirtual(id, "intValue", "()I", []value.Value{out.Value})
	require.NoError(t, err)
	require.True(t, unboxed.Returned)
	require.Equal(t, value.Int(42), unboxed.Value)
}

func TestBridgeDispatchesHashMapPutGet(t *testing.T) {
	cp := newCPBuilder()
	hmClass := nativeClassBytes(t, cp, "java/util/HashMap", "java/lang/Object", []nativeMethod{
		{Name: "<init>", Desc: "()V", Flags: classfile.AccPublic},
		{Name: "put", Desc: "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", Flags: classfile.AccPublic},
		{Name: "get", Desc: "(Ljava/lang/Object;)Ljava/lang/Object;", Flags: classfile.AccPublic},
	})

	e, b := newTestEnv(t, map[string][]byte{"java/util/HashMap": hmClass})

	id := e.Names.Intern("java/util/HashMap")
	local, err := b.Environment().NewInstance("java/util/HashMap")
	require.NoError(t, err)
	receiver := b.Environment().FromLocal(local, "java/util/HashMap")

	_, err = e.InvokeSpecial(id, "<init>", "()V", []value.Value{receiver})
	require.NoError(t, err)

	key := value.Int(1)
	val := value.Int(99)

	putOut, err := e.InvokeVirtual(id, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", []value.Value{receiver, key, val})
	require.NoError(t, err)
	require.False(t, putOut.Thrown)
	require.True(t, putOut.Value.IsNull())

	getOut, err := e.InvokeVirtual(id, "get", "(Ljava/lang/Object;)Ljava/lang/Object;", []value.Value{receiver, key})
	require.NoError(t, err)
	require.Equal(t, val, getOut.Value)
}

func TestBridgeUnsatisfiedLinkForUnregisteredMethod(t *testing.T) {
	cp := newCPBuilder()
	target := nativeClassBytes(t, cp, "com/example/Widget", "java/lang/Object", []nativeMethod{
		{Name: "spin", Desc: "()V", Flags: classfile.AccPublic | classfile.AccStatic},
	})
	linkErr := objectClassBytes(t, newCPBuilder(), "java/lang/UnsatisfiedLinkError")

	e, b := newTestEnv(t, map[string][]byte{
		"com/example/Widget":             target,
		"java/lang/UnsatisfiedLinkError": linkErr,
	})

	id := e.Names.Intern("com/example/Widget")
	out, err := e.InvokeStatic(id, "spin", "()V", nil)
	require.NoError(t, err)
	require.True(t, out.Thrown)

	local, ok := b.Environment().ToLocal(out.Exception)
	require.True(t, ok)
	className, err := b.Environment().ClassOf(local)
	require.NoError(t, err)
	require.Equal(t, "java/lang/UnsatisfiedLinkError", className)
}

func TestBridgeBindsStdStreams(t *testing.T) {
	cp := newCPBuilder()
	psClass := objectClassBytes(t, cp, "java/io/PrintStream")

	e, b := newTestEnv(t, map[string][]byte{"java/io/PrintStream": psClass})
	_ = e

	env := b.Environment()
	out, errStream, err := BindStdStreams(env)
	require.NoError(t, err)
	require.NotZero(t, out)
	require.NotZero(t, errStream)
	require.NotEqual(t, out, errStream)
}
