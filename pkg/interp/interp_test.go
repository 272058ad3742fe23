package interp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/value"
)

// u16 big-endian encodes v, for splicing a constant-pool index into a
// hand-built bytecode sequence.
func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func objectClassBytes(t *testing.T, cp *cpBuilder, name string) []byte {
	return buildClass(t, cp, name, "java/lang/Object", nil, nil)
}

func TestInvokeStaticIntAddAndReturn(t *testing.T) {
	cp := newCPBuilder()
	code := []byte{0x1a, 0x1b, 0x60, 0xac} // iload_0, iload_1, iadd, ireturn
	class := buildClass(t, cp, "Calc", "java/lang/Object", nil, []methodDef{
		{Name: "add", Desc: "(II)I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 2, MaxLocals: 2, Code: code},
	})

	env := newTestEnv(map[string][]byte{"Calc": class})
	calcID := env.Names.Intern("Calc")

	out, err := env.InvokeStatic(calcID, "add", "(II)I", []value.Value{value.Int(3), value.Int(4)})
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.False(t, out.Thrown)
	require.Equal(t, value.Int(7), out.Value)
}

func TestGetFieldOnNullReceiverThrowsNullPointer(t *testing.T) {
	cp := newCPBuilder()
	fieldRef := cp.fieldref("Obj", "x", "I")
	code := append([]byte{0x2a, 0xb4}, u16(fieldRef)...) // aload_0, getfield
	code = append(code, 0xac)                            // ireturn

	objClass := buildClass(t, cp, "Obj", "java/lang/Object", []fieldDef{
		{Name: "x", Desc: "I", Flags: classfile.AccPublic},
	}, []methodDef{
		{Name: "getX", Desc: "(LObj;)I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 1, MaxLocals: 1, Code: code},
	})

	npeCP := newCPBuilder()
	npeClass := objectClassBytes(t, npeCP, "java/lang/NullPointerException")

	env := newTestEnv(map[string][]byte{
		"Obj":                             objClass,
		"java/lang/NullPointerException": npeClass,
	})
	objID := env.Names.Intern("Obj")

	out, err := env.InvokeStatic(objID, "getX", "(LObj;)I", []value.Value{value.Null()})
	require.NoError(t, err)
	require.False(t, out.Returned)
	require.True(t, out.Thrown)

	npeID := env.Names.Intern("java/lang/NullPointerException")
	dyn, err := env.dynamicClassOf(out.Exception)
	require.NoError(t, err)
	require.Equal(t, npeID, dyn)
}

func TestArrayStoreLoadRoundTripAndOutOfBounds(t *testing.T) {
	cp := newCPBuilder()
	// iconst_3, newarray(int), dup, iconst_1, bipush 9, iastore,
	// iconst_1, iaload, ireturn
	code := []byte{
		0x06,       // iconst_3 (length)
		0xbc, 0x0a, // newarray atype=10 (int)
		0x59,             // dup
		0x04,             // iconst_1 (index)
		0x10, 0x09,       // bipush 9
		0x4f,             // iastore
		0x04,             // iconst_1 (index)
		0x2e,             // iaload
		0xac,             // ireturn
	}
	class := buildClass(t, cp, "Arr", "java/lang/Object", nil, []methodDef{
		{Name: "roundTrip", Desc: "()I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 4, MaxLocals: 0, Code: code},
	})

	aiobCP := newCPBuilder()
	aiobClass := objectClassBytes(t, aiobCP, "java/lang/ArrayIndexOutOfBoundsException")

	env := newTestEnv(map[string][]byte{
		"Arr": class,
		"java/lang/ArrayIndexOutOfBoundsException": aiobClass,
	})
	arrID := env.Names.Intern("Arr")

	out, err := env.InvokeStatic(arrID, "roundTrip", "()I", nil)
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.Equal(t, value.Int(9), out.Value)

	outCP := newCPBuilder()
	oobCode := []byte{
		0x03,       // iconst_0 (length 0)
		0xbc, 0x0a, // newarray int
		0x05,       // iconst_2 (index, out of bounds for len 0)
		0x2e,       // iaload
		0xac,       // ireturn
	}
	outClass := buildClass(t, outCP, "Arr2", "java/lang/Object", nil, []methodDef{
		{Name: "oob", Desc: "()I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 2, MaxLocals: 0, Code: oobCode},
	})
	env2 := newTestEnv(map[string][]byte{
		"Arr2": outClass,
		"java/lang/ArrayIndexOutOfBoundsException": aiobClass,
	})
	arr2ID := env2.Names.Intern("Arr2")

	out2, err := env2.InvokeStatic(arr2ID, "oob", "()I", nil)
	require.NoError(t, err)
	require.True(t, out2.Thrown)
	aiobID := env2.Names.Intern("java/lang/ArrayIndexOutOfBoundsException")
	dyn, err := env2.dynamicClassOf(out2.Exception)
	require.NoError(t, err)
	require.Equal(t, aiobID, dyn)
}

func TestObjectAllocationFieldSetAndGet(t *testing.T) {
	cp := newCPBuilder()
	fieldRef := cp.fieldref("Obj", "x", "I")
	initCode := []byte{0xb1} // return

	var code []byte
	code = append(code, 0xbb)                                         // new Obj
	code = append(code, u16(cp.class("Obj"))...)
	code = append(code, 0x59) // dup
	code = append(code, 0xb7) // invokespecial <init>
	code = append(code, u16(cp.methodref("Obj", "<init>", "()V"))...)
	code = append(code, 0x59)       // dup
	code = append(code, 0x10, 0x2a) // bipush 42
	code = append(code, 0xb5)       // putfield x
	code = append(code, u16(fieldRef)...)
	code = append(code, 0xb4) // getfield x
	code = append(code, u16(fieldRef)...)
	code = append(code, 0xac) // ireturn

	class := buildClass(t, cp, "Obj", "java/lang/Object", []fieldDef{
		{Name: "x", Desc: "I", Flags: classfile.AccPublic},
	}, []methodDef{
		{Name: "<init>", Desc: "()V", Flags: classfile.AccPublic,
			MaxStack: 0, MaxLocals: 1, Code: initCode},
		{Name: "makeAndGet", Desc: "()I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 3, MaxLocals: 0, Code: code},
	})

	env := newTestEnv(map[string][]byte{"Obj": class})
	objID := env.Names.Intern("Obj")

	out, err := env.InvokeStatic(objID, "makeAndGet", "()I", nil)
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.Equal(t, value.Int(42), out.Value)
}

func TestInvokeVirtualDispatchesOnRuntimeClass(t *testing.T) {
	baseCP := newCPBuilder()
	baseGreet := []byte{0x04, 0xac} // iconst_1, ireturn
	baseClass := buildClass(t, baseCP, "Base", "java/lang/Object", nil, []methodDef{
		{Name: "<init>", Desc: "()V", Flags: classfile.AccPublic, MaxStack: 0, MaxLocals: 1, Code: []byte{0xb1}},
		{Name: "greet", Desc: "()I", Flags: classfile.AccPublic, MaxStack: 1, MaxLocals: 1, Code: baseGreet},
	})

	derivedCP := newCPBuilder()
	derivedGreet := []byte{0x05, 0xac} // iconst_2, ireturn
	derivedClass := buildClass(t, derivedCP, "Derived", "Base", nil, []methodDef{
		{Name: "<init>", Desc: "()V", Flags: classfile.AccPublic, MaxStack: 0, MaxLocals: 1, Code: []byte{0xb1}},
		{Name: "greet", Desc: "()I", Flags: classfile.AccPublic, MaxStack: 1, MaxLocals: 1, Code: derivedGreet},
	})

	env := newTestEnv(map[string][]byte{
		"Base":    baseClass,
		"Derived": derivedClass,
	})
	derivedID := env.Names.Intern("Derived")
	baseID := env.Names.Intern("Base")

	receiver, err := env.newInstance(derivedID)
	require.NoError(t, err)

	out, err := env.InvokeVirtual(baseID, "greet", "()I", []value.Value{receiver})
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.Equal(t, value.Int(2), out.Value)
}

func TestClinitSetsStaticField(t *testing.T) {
	cp := newCPBuilder()
	staticFieldRef := cp.fieldref("Holder", "count", "I")
	clinit := append([]byte{0x10, 0x07, 0xb3}, u16(staticFieldRef)...) // bipush 7, putstatic
	clinit = append(clinit, 0xb1)                                     // return
	getCode := append([]byte{0xb2}, u16(staticFieldRef)...)
	getCode = append(getCode, 0xac) // ireturn

	class := buildClass(t, cp, "Holder", "java/lang/Object", []fieldDef{
		{Name: "count", Desc: "I", Flags: classfile.AccPublic | classfile.AccStatic},
	}, []methodDef{
		{Name: "<clinit>", Desc: "()V", Flags: classfile.AccStatic, MaxStack: 2, MaxLocals: 0, Code: clinit},
		{Name: "get", Desc: "()I", Flags: classfile.AccPublic | classfile.AccStatic, MaxStack: 1, MaxLocals: 0, Code: getCode},
	})

	env := newTestEnv(map[string][]byte{"Holder": class})
	holderID := env.Names.Intern("Holder")

	out, err := env.InvokeStatic(holderID, "get", "()I", nil)
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.Equal(t, value.Int(7), out.Value)
}

func TestExceptionHandlerCatchesExactExceptionType(t *testing.T) {
	cp := newCPBuilder()
	npeCP := newCPBuilder()
	npeClass := objectClassBytes(t, npeCP, "java/lang/NullPointerException")

	fieldRef := cp.fieldref("Guarded", "x", "I")
	// try: aload_0, getfield x, ireturn (offset 0..4)
	// catch: pop, bipush -1, ireturn (handler at offset 5)
	tryCode := append([]byte{0x2a, 0xb4}, u16(fieldRef)...)
	tryCode = append(tryCode, 0xac) // ireturn, offset 5 total so far: 1+3+1=5
	handlerOffset := len(tryCode)
	handlerCode := []byte{0x57, 0x10, 0xff, 0xac} // pop, bipush -1, ireturn
	code := append(tryCode, handlerCode...)

	npeClassIdx := cp.class("java/lang/NullPointerException")
	class := buildClass(t, cp, "Guarded", "java/lang/Object", []fieldDef{
		{Name: "x", Desc: "I", Flags: classfile.AccPublic},
	}, []methodDef{
		{Name: "safeGet", Desc: "(LGuarded;)I", Flags: classfile.AccPublic | classfile.AccStatic,
			MaxStack: 1, MaxLocals: 1, Code: code,
			Handlers: []classfile.ExceptionHandler{
				{StartPC: uint16(0), EndPC: uint16(handlerOffset), HandlerPC: uint16(handlerOffset), CatchType: npeClassIdx},
			},
			HandlerFrameOffset: handlerOffset,
			HandlerFrameClass:  "java/lang/NullPointerException",
		},
	})

	env := newTestEnv(map[string][]byte{
		"Guarded": class,
		"java/lang/NullPointerException": npeClass,
	})
	guardedID := env.Names.Intern("Guarded")

	out, err := env.InvokeStatic(guardedID, "safeGet", "(LGuarded;)I", []value.Value{value.Null()})
	require.NoError(t, err)
	require.True(t, out.Returned)
	require.False(t, out.Thrown)
	require.Equal(t, value.Int(-1), out.Value)
}
