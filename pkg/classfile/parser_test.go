package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMinimalClass returns the bytes of a one-method class file:
//
//	class <name> extends java/lang/Object {
//	  public static <mname><mdesc> { <code> }
//	}
//
// with one exception handler over the whole method body catching
// java/lang/Throwable, and a single same_frame StackMapTable entry at
// offset 0 (always valid since offset 0 never needs a real merge).
func buildMinimalClass(t *testing.T, name, mname, mdesc string, code []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := func(v interface{}) { require.NoError(t, binary.Write(&b, binary.BigEndian, v)) }

	w(uint32(0xCAFEBABE))
	w(uint16(0)) // minor
	w(uint16(61)) // major (Java 17)

	// constant pool: indices 1..N
	// 1: Utf8 name
	// 2: Class -> 1
	// 3: Utf8 "java/lang/Object"
	// 4: Class -> 3
	// 5: Utf8 mname
	// 6: Utf8 mdesc
	// 7: Utf8 "Code"
	// 8: Utf8 "StackMapTable"
	// 9: Utf8 "java/lang/Throwable"
	// 10: Class -> 9
	var cpEntries [][]byte
	utf8 := func(s string) []byte {
		var e bytes.Buffer
		e.WriteByte(TagUtf8)
		binary.Write(&e, binary.BigEndian, uint16(len(s)))
		e.WriteString(s)
		return e.Bytes()
	}
	classRef := func(nameIdx uint16) []byte {
		var e bytes.Buffer
		e.WriteByte(TagClass)
		binary.Write(&e, binary.BigEndian, nameIdx)
		return e.Bytes()
	}
	cpEntries = append(cpEntries, utf8(name))          // 1
	cpEntries = append(cpEntries, classRef(1))          // 2
	cpEntries = append(cpEntries, utf8("java/lang/Object")) // 3
	cpEntries = append(cpEntries, classRef(3))          // 4
	cpEntries = append(cpEntries, utf8(mname))          // 5
	cpEntries = append(cpEntries, utf8(mdesc))          // 6
	cpEntries = append(cpEntries, utf8("Code"))         // 7
	cpEntries = append(cpEntries, utf8("StackMapTable")) // 8
	cpEntries = append(cpEntries, utf8("java/lang/Throwable")) // 9
	cpEntries = append(cpEntries, classRef(9))          // 10

	w(uint16(len(cpEntries) + 1))
	for _, e := range cpEntries {
		b.Write(e)
	}

	w(uint16(AccPublic | AccSuper)) // access_flags
	w(uint16(2))                    // this_class
	w(uint16(4))                    // super_class
	w(uint16(0))                    // interfaces_count

	w(uint16(0)) // fields_count

	w(uint16(1)) // methods_count
	w(uint16(AccPublic | AccStatic))
	w(uint16(5)) // name_index
	w(uint16(6)) // descriptor_index
	w(uint16(1)) // attributes_count (Code)

	// Code attribute body
	var codeAttr bytes.Buffer
	cw := func(v interface{}) { require.NoError(t, binary.Write(&codeAttr, binary.BigEndian, v)) }
	cw(uint16(4))         // max_stack
	cw(uint16(2))         // max_locals
	cw(uint32(len(code))) // code_length
	codeAttr.Write(code)
	cw(uint16(1))          // exception_table_length
	cw(uint16(0))          // start_pc
	cw(uint16(len(code))) // end_pc
	cw(uint16(0))          // handler_pc
	cw(uint16(10))         // catch_type -> Throwable
	cw(uint16(1))          // attributes_count (StackMapTable)
	cw(uint16(8))          // name_index -> "StackMapTable"
	var smt bytes.Buffer
	smw := func(v interface{}) { require.NoError(t, binary.Write(&smt, binary.BigEndian, v)) }
	smw(uint16(1))   // number_of_entries
	smt.WriteByte(0) // same_frame, offset_delta 0
	cw(uint32(smt.Len()))
	codeAttr.Write(smt.Bytes())

	w(uint16(7)) // attribute_name_index -> "Code"
	w(uint32(codeAttr.Len()))
	b.Write(codeAttr.Bytes())

	w(uint16(0)) // class attributes_count

	return b.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	code := []byte{0x2a, 0xb1} // aload_0; return
	raw := buildMinimalClass(t, "Hello", "run", "()V", code)

	cf, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	require.EqualValues(t, 61, cf.MajorVersion)

	className, err := cf.ClassName()
	require.NoError(t, err)
	require.Equal(t, "Hello", className)

	m := cf.FindMethod("run", "()V")
	require.NotNil(t, m)
	require.NotNil(t, m.Code)
	require.Equal(t, code, m.Code.Code)
	require.Len(t, m.Code.ExceptionHandlers, 1)
	require.EqualValues(t, 10, m.Code.ExceptionHandlers[0].CatchType)
	require.Len(t, m.Code.StackMapTable, 1)
	require.Equal(t, FrameSame, m.Code.StackMapTable[0].Kind)
	require.Equal(t, 0, m.Code.StackMapTable[0].Offset)
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.Error(t, err)
}

func TestParseTruncatedConstantPool(t *testing.T) {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&b, binary.BigEndian, uint16(0))
	binary.Write(&b, binary.BigEndian, uint16(61))
	binary.Write(&b, binary.BigEndian, uint16(5)) // claims 4 entries, provides none

	_, err := Parse(bytes.NewReader(b.Bytes()))
	require.Error(t, err)
}
