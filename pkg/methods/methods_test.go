package methods

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/names"
)

// buildClassWithMethods synthesizes a class file with the given this/super
// names and a flat list of (name, descriptor, accessFlags) methods, each
// with an empty, attribute-less body (no Code attribute needed for
// resolution/override tests, which only inspect access flags).
func buildClassWithMethods(thisName, superName string, methods [][3]interface{}) []byte {
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
	type methodRef struct {
		nameIdx, descIdx uint16
		flags            uint16
	}
	var methodRefs []methodRef
	for _, m := range methods {
		name := m[0].(string)
		desc := m[1].(string)
		flags := m[2].(uint16)
		methodRefs = append(methodRefs, methodRef{intern(name), 0, flags})
		methodRefs[len(methodRefs)-1].descIdx = intern(desc)
	}

	cpCount := uint16(1 + len(utf8)*2)
	binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint16(61))
	binary.Write(&buf, binary.BigEndian, cpCount)

	classIndexOf := make(map[uint16]uint16)
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

	binary.Write(&buf, binary.BigEndian, classfile.AccPublic|classfile.AccSuper)
	binary.Write(&buf, binary.BigEndian, classIndexOf[thisUtf8])
	binary.Write(&buf, binary.BigEndian, classIndexOf[superUtf8])
	binary.Write(&buf, binary.BigEndian, uint16(0)) // interfaces
	binary.Write(&buf, binary.BigEndian, uint16(0)) // fields

	binary.Write(&buf, binary.BigEndian, uint16(len(methodRefs)))
	for _, mr := range methodRefs {
		binary.Write(&buf, binary.BigEndian, mr.flags)
		binary.Write(&buf, binary.BigEndian, utf8IndexOf(mr.nameIdx))
		binary.Write(&buf, binary.BigEndian, utf8IndexOf(mr.descIdx))
		binary.Write(&buf, binary.BigEndian, uint16(0)) // attributes_count
	}
	binary.Write(&buf, binary.BigEndian, uint16(0)) // class attributes

	return buf.Bytes()
}

// utf8IndexOf converts a 1-based utf8-slice position into its constant
// pool index, i.e. (n-1)*2 + 1.
func utf8IndexOf(n uint16) uint16 { return (n-1)*2 + 1 }

func setup(t *testing.T, classesByName map[string][]byte) (*Registry, *classes.Registry, *names.Registry) {
	t.Helper()
	reg := names.New()
	loc := &realMemLocator{byName: classesByName}
	cache := classfile.NewCache(reg, loc)
	cr := classes.New(reg, cache)
	return New(cr), cr, reg
}

type realMemLocator struct{ byName map[string][]byte }

func (m *realMemLocator) Locate(name string) (io.ReadCloser, error) {
	data, ok := m.byName[name]
	if !ok {
		return nil, errNotFound(name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type errNotFound string

func (e errNotFound) Error() string { return "no class named " + string(e) }

func TestLookupExactClassOnly(t *testing.T) {
	classesData := map[string][]byte{
		"app/Base": buildClassWithMethods("app/Base", "java/lang/Object", [][3]interface{}{
			{"greet", "()V", uint16(classfile.AccPublic)},
		}),
		"app/Derived": buildClassWithMethods("app/Derived", "app/Base", nil),
	}
	mr, cr, reg := setup(t, classesData)
	baseID := reg.Intern("app/Base")
	derivedID := reg.Intern("app/Derived")
	require.NoError(t, cr.Derive(baseID))
	require.NoError(t, cr.Derive(derivedID))

	_, err := mr.Lookup(derivedID, "greet", "()V")
	require.Error(t, err, "Lookup must not walk the super chain")

	m, err := mr.Lookup(baseID, "greet", "()V")
	require.NoError(t, err)
	require.Equal(t, "greet", m.Info.Name)
}

func TestResolveVirtualWalksSuperChain(t *testing.T) {
	classesData := map[string][]byte{
		"app/Base": buildClassWithMethods("app/Base", "java/lang/Object", [][3]interface{}{
			{"greet", "()V", uint16(classfile.AccPublic)},
		}),
		"app/Derived": buildClassWithMethods("app/Derived", "app/Base", nil),
	}
	mr, cr, reg := setup(t, classesData)
	baseID := reg.Intern("app/Base")
	derivedID := reg.Intern("app/Derived")
	require.NoError(t, cr.Derive(baseID))
	require.NoError(t, cr.Derive(derivedID))

	m, err := mr.ResolveVirtual(derivedID, "greet", "()V")
	require.NoError(t, err)
	require.Equal(t, baseID, m.ID.Class)
}

func TestOverridesStopsAtFinal(t *testing.T) {
	classesData := map[string][]byte{
		"app/Root": buildClassWithMethods("app/Root", "java/lang/Object", [][3]interface{}{
			{"run", "()V", uint16(classfile.AccPublic | classfile.AccFinal)},
		}),
		"app/Mid": buildClassWithMethods("app/Mid", "app/Root", [][3]interface{}{
			{"run", "()V", uint16(classfile.AccPublic)},
		}),
		"app/Leaf": buildClassWithMethods("app/Leaf", "app/Mid", [][3]interface{}{
			{"run", "()V", uint16(classfile.AccPublic)},
		}),
	}
	mr, cr, reg := setup(t, classesData)
	rootID := reg.Intern("app/Root")
	midID := reg.Intern("app/Mid")
	leafID := reg.Intern("app/Leaf")
	require.NoError(t, cr.Derive(rootID))
	require.NoError(t, cr.Derive(midID))
	require.NoError(t, cr.Derive(leafID))

	leafMethod, err := mr.Lookup(leafID, "run", "()V")
	require.NoError(t, err)

	overrides, err := mr.Overrides(leafMethod)
	require.NoError(t, err)
	require.Len(t, overrides, 1, "final Root.run blocks further climbing and is not itself recorded")
	require.Equal(t, midID, overrides[0].Class)
}

func TestDescriptorStructuralEquality(t *testing.T) {
	a, err := ParseDescriptor("(ILjava/lang/String;)Z")
	require.NoError(t, err)
	b, err := ParseDescriptor("(ILjava/lang/String;)Z")
	require.NoError(t, err)
	require.True(t, a.Equal(b))

	c, err := ParseDescriptor("(I)Z")
	require.NoError(t, err)
	require.False(t, a.Equal(c))
}
