package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

func TestClassInstanceFields(t *testing.T) {
	h := New()
	reg := names.New()
	cls := reg.Intern("Point")
	fx := FieldID{Class: cls, Index: 0}
	fy := FieldID{Class: cls, Index: 1}

	ref := h.NewClassInstance(&ClassInstance{
		Class:  cls,
		Fields: map[FieldID]value.Value{fx: value.Int(10), fy: value.Int(20)},
	})

	ci, err := h.ClassInstance(ref)
	require.NoError(t, err)
	require.Equal(t, int32(10), ci.Fields[fx].I32)
	require.Equal(t, int32(20), ci.Fields[fy].I32)

	ci.Fields[fx] = value.Int(99)
	ci2, err := h.ClassInstance(ref)
	require.NoError(t, err)
	require.Equal(t, int32(99), ci2.Fields[fx].I32)
}

func TestPrimitiveArray(t *testing.T) {
	h := New()
	ref := h.NewPrimitiveArray(&PrimitiveArray{
		Elem:   names.PrimInt,
		Values: []value.Value{value.Int(1), value.Int(2), value.Int(3)},
	})
	pa, err := h.PrimitiveArray(ref)
	require.NoError(t, err)
	require.Len(t, pa.Values, 3)
	require.Equal(t, int32(2), pa.Values[1].I32)
}

func TestReferenceArrayAllowsNulls(t *testing.T) {
	h := New()
	reg := names.New()
	elem := reg.Intern("java/lang/Object")
	inner := h.NewClassInstance(&ClassInstance{Class: elem, Fields: map[FieldID]value.Value{}})

	ref := h.NewReferenceArray(&ReferenceArray{
		ElemClass: elem,
		Values:    []Ref{inner, 0},
	})
	ra, err := h.ReferenceArray(ref)
	require.NoError(t, err)
	require.Equal(t, inner, ra.Values[0])
	require.Equal(t, Ref(0), ra.Values[1])
}

func TestStaleHandleReported(t *testing.T) {
	h := New()
	_, err := h.ClassInstance(Ref(999))
	require.Error(t, err)

	_, err = h.ClassInstance(Ref(0))
	require.Error(t, err)
}

func TestWrongKindReported(t *testing.T) {
	h := New()
	ref := h.NewPrimitiveArray(&PrimitiveArray{Elem: names.PrimInt})
	_, err := h.ClassInstance(ref)
	require.Error(t, err)
}

func TestIsSameObjectIdentity(t *testing.T) {
	h := New()
	ref := h.NewClassInstance(&ClassInstance{Fields: map[FieldID]value.Value{}})
	require.True(t, IsSameObject(ref, ref))

	other := h.NewClassInstance(&ClassInstance{Fields: map[FieldID]value.Value{}})
	require.False(t, IsSameObject(ref, other))
}

func TestLocalRefRoundTrip(t *testing.T) {
	h := New()
	ref := h.NewClassInstance(&ClassInstance{Fields: map[FieldID]value.Value{}})

	local := ToLocalRef(ref)
	require.NotZero(t, local)
	require.Equal(t, ref, FromLocalRef(local))

	require.Zero(t, ToLocalRef(Ref(0)))
	require.Equal(t, Ref(0), FromLocalRef(0))
}

func TestRunIDIsStampedAndUnique(t *testing.T) {
	h1 := New()
	h2 := New()
	require.NotEmpty(t, h1.RunID)
	require.NotEqual(t, h1.RunID, h2.RunID)
}
