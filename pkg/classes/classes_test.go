package classes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/names"
)

// memLocator serves hand-built minimal class bytes straight out of a
// map, standing in for a real jmod/classpath lookup.
type memLocator struct {
	byName map[string][]byte
}

func (m *memLocator) Locate(name string) (io.ReadCloser, error) {
	data, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("memLocator: no class named %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// buildClass synthesizes a minimal class file with the given this/super
// names, zero fields and methods, and the given interface names.
func buildClass(thisName, superName string, ifaceNames []string, flags uint16) []byte {
	var buf bytes.Buffer

	var utf8 []string
	intern := func(s string) uint16 {
		for i, v := range utf8 {
			if v == s {
				return uint16(i + 1)
			}
		}
		utf8 = append(utf8, s)
		return uint16(len(utf8))
	}

	thisUtf8 := intern(thisName)
	superUtf8 := intern(superName)
	ifaceUtf8s := make([]uint16, len(ifaceNames))
	for i, n := range ifaceNames {
		ifaceUtf8s[i] = intern(n)
	}

	// Constant pool layout: each Utf8 entry, then a Class entry pointing
	// at it, interleaved as [utf8_1, class_1, utf8_2, class_2, ...].
	nEntries := len(utf8)
	cpCount := uint16(1 + nEntries*2)

	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0)) // minor
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, cpCount)

	classIndexOf := make(map[uint16]uint16) // utf8 index -> class index
	for i, s := range utf8 {
		utf8Index := uint16(i*2 + 1)
		classIndex := utf8Index + 1
		classIndexOf[uint16(i+1)] = classIndex

		buf.WriteByte(classfile.TagUtf8)
		binary.Write(&buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)

		buf.WriteByte(classfile.TagClass)
		binary.Write(&buf, binary.BigEndian, utf8Index)
	}

	binary.Write(&buf, binary.BigEndian, flags)
	binary.Write(&buf, binary.BigEndian, classIndexOf[thisUtf8])
	binary.Write(&buf, binary.BigEndian, classIndexOf[superUtf8])

	binary.Write(&buf, binary.BigEndian, uint16(len(ifaceUtf8s)))
	for _, u := range ifaceUtf8s {
		binary.Write(&buf, binary.BigEndian, classIndexOf[u])
	}

	binary.Write(&buf, binary.BigEndian, uint16(0)) // fields_count
	binary.Write(&buf, binary.BigEndian, uint16(0)) // methods_count
	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes_count

	return buf.Bytes()
}

func newTestRegistry(t *testing.T, classesByName map[string][]byte) (*Registry, *names.Registry) {
	t.Helper()
	reg := names.New()
	loc := &memLocator{byName: classesByName}
	cache := classfile.NewCache(reg, loc)
	return New(reg, cache), reg
}

func TestDeriveObjectHasNoSuper(t *testing.T) {
	r, reg := newTestRegistry(t, nil)
	objID := reg.Intern("java/lang/Object")
	require.NoError(t, r.Derive(objID))
	obj, ok := r.Get(objID)
	require.True(t, ok)
	require.Zero(t, obj.Super)
}

func TestDeriveSimpleHierarchy(t *testing.T) {
	classes := map[string][]byte{
		"app/Animal": buildClass("app/Animal", "java/lang/Object", nil, classfile.AccPublic|classfile.AccSuper),
		"app/Dog":     buildClass("app/Dog", "app/Animal", nil, classfile.AccPublic|classfile.AccSuper),
	}
	r, reg := newTestRegistry(t, classes)
	dogID := reg.Intern("app/Dog")
	require.NoError(t, r.Derive(dogID))

	animalID := reg.Intern("app/Animal")
	require.True(t, r.IsSuperClass(dogID, animalID))

	objID := reg.Intern("java/lang/Object")
	require.True(t, r.IsSuperClass(dogID, objID))

	require.False(t, r.IsSuperClass(dogID, dogID))
	require.False(t, r.IsSuperClass(animalID, dogID))
}

func TestDeriveRejectsFinalSuperclass(t *testing.T) {
	classes := map[string][]byte{
		"app/Sealed": buildClass("app/Sealed", "java/lang/Object", nil, classfile.AccPublic|classfile.AccFinal),
		"app/Bad":    buildClass("app/Bad", "app/Sealed", nil, classfile.AccPublic|classfile.AccSuper),
	}
	r, reg := newTestRegistry(t, classes)
	sealedID := reg.Intern("app/Sealed")
	require.NoError(t, r.Derive(sealedID))

	badID := reg.Intern("app/Bad")
	require.Error(t, r.Derive(badID))
}

func TestDeriveRejectsIndirectInheritanceCycle(t *testing.T) {
	classes := map[string][]byte{
		"app/A": buildClass("app/A", "app/B", nil, classfile.AccPublic|classfile.AccSuper),
		"app/B": buildClass("app/B", "app/A", nil, classfile.AccPublic|classfile.AccSuper),
	}
	r, reg := newTestRegistry(t, classes)
	aID := reg.Intern("app/A")
	require.Error(t, r.Derive(aID))
}

func TestImplementsInterfaceWalksSuperChain(t *testing.T) {
	classes := map[string][]byte{
		"app/Runnable": buildClass("app/Runnable", "java/lang/Object", nil, classfile.AccInterface|classfile.AccAbstract),
		"app/Base":     buildClass("app/Base", "java/lang/Object", []string{"app/Runnable"}, classfile.AccPublic|classfile.AccSuper),
		"app/Derived":  buildClass("app/Derived", "app/Base", nil, classfile.AccPublic|classfile.AccSuper),
	}
	r, reg := newTestRegistry(t, classes)
	derivedID := reg.Intern("app/Derived")
	require.NoError(t, r.Derive(derivedID))

	runnableID := reg.Intern("app/Runnable")
	require.True(t, r.ImplementsInterface(derivedID, runnableID))

	randomID := reg.Intern("app/NotImplemented")
	require.False(t, r.ImplementsInterface(derivedID, randomID))
}

func TestArrayClassSuperIsObjectAndImplementsCloneableSerializable(t *testing.T) {
	r, reg := newTestRegistry(t, map[string][]byte{
		"app/Widget": buildClass("app/Widget", "java/lang/Object", nil, classfile.AccPublic|classfile.AccSuper),
	})
	widgetID := reg.Intern("app/Widget")
	require.NoError(t, r.Derive(widgetID))

	arrID, err := r.LoadArrayOf(widgetID, 1)
	require.NoError(t, err)

	arr, ok := r.Get(arrID)
	require.True(t, ok)
	require.True(t, arr.IsArray())

	objID := reg.Intern("java/lang/Object")
	require.True(t, r.IsSuperClass(arrID, objID))

	cloneableID := reg.Intern("java/lang/Cloneable")
	serializableID := reg.Intern("java/io/Serializable")
	require.True(t, r.ImplementsInterface(arrID, cloneableID))
	require.True(t, r.ImplementsInterface(arrID, serializableID))

	unrelated := reg.Intern("app/Runnable")
	require.False(t, r.ImplementsInterface(arrID, unrelated))
}

func TestIsCastableArrayCovariance(t *testing.T) {
	classes := map[string][]byte{
		"app/Animal": buildClass("app/Animal", "java/lang/Object", nil, classfile.AccPublic|classfile.AccSuper),
		"app/Dog":    buildClass("app/Dog", "app/Animal", nil, classfile.AccPublic|classfile.AccSuper),
	}
	r, reg := newTestRegistry(t, classes)
	dogID := reg.Intern("app/Dog")
	animalID := reg.Intern("app/Animal")
	require.NoError(t, r.Derive(dogID))
	require.NoError(t, r.Derive(animalID))

	dogArr, err := r.LoadArrayOf(dogID, 1)
	require.NoError(t, err)
	animalArr, err := r.LoadArrayOf(animalID, 1)
	require.NoError(t, err)

	require.True(t, r.IsCastableArray(dogArr, animalArr))
	require.False(t, r.IsCastableArray(animalArr, dogArr))
}

func TestIsCastableArrayPrimitiveOnlySelf(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	intArr, err := r.LoadArrayOfPrimitive(names.PrimInt, 1)
	require.NoError(t, err)
	longArr, err := r.LoadArrayOfPrimitive(names.PrimLong, 1)
	require.NoError(t, err)

	require.True(t, r.IsCastableArray(intArr, intArr))
	require.False(t, r.IsCastableArray(intArr, longArr))
}

func TestLoadArrayOfMaterializesIntermediateLevels(t *testing.T) {
	r, reg := newTestRegistry(t, map[string][]byte{
		"app/Widget": buildClass("app/Widget", "java/lang/Object", nil, classfile.AccPublic|classfile.AccSuper),
	})
	widgetID := reg.Intern("app/Widget")
	require.NoError(t, r.Derive(widgetID))

	arr3, err := r.LoadArrayOf(widgetID, 3)
	require.NoError(t, err)
	_, ok := r.Get(arr3)
	require.True(t, ok)

	arr2, err := reg.ArrayOfClass(widgetID, 2)
	require.NoError(t, err)
	_, ok = r.Get(arr2)
	require.True(t, ok, "intermediate 2-dim array should have been derived")

	arr1, err := reg.ArrayOfClass(widgetID, 1)
	require.NoError(t, err)
	_, ok = r.Get(arr1)
	require.True(t, ok, "intermediate 1-dim array should have been derived")
}
