package interp

import (
	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// stringClassName is the class ldc'd string constants are represented
// as (core-raised exception messages use messageValue instead).
// java.lang.String's own layout is not modeled; see exception.go.
const stringClassName = "java/lang/String"

// newString allocates an opaque string-literal instance the same way
// newException allocates a throwable's message (messageValue/
// messageFieldIndex, defined in exception.go).
func (e *Env) newString(s string) (value.Value, error) {
	classID := e.Names.Intern(stringClassName)
	if err := e.Classes.Derive(classID); err != nil {
		return value.Value{}, err
	}
	field := heap.FieldID{Class: classID, Index: messageFieldIndex}
	ref := e.Heap.NewClassInstance(&heap.ClassInstance{
		Class:  classID,
		Fields: map[heap.FieldID]value.Value{field: messageValue(s)},
	})
	return value.RefOf(ref, stringClassName), nil
}

// classMirror returns (allocating and caching on first use) the
// Class<T> mirror object for id, tracked via the class's MirrorCached
// state.
func (e *Env) classMirror(id names.ClassId) (value.Value, error) {
	if err := e.Classes.Derive(id); err != nil {
		return value.Value{}, err
	}
	info := e.Classes.Info(id)
	if info.MirrorCached == classes.Done {
		return value.RefOf(heap.Ref(info.Mirror), "java/lang/Class"), nil
	}
	ref := e.Heap.NewClassMirror(&heap.ClassMirror{Represents: id})
	info.Mirror = uint32(ref)
	info.MirrorCached = classes.Done
	return value.RefOf(ref, "java/lang/Class"), nil
}
