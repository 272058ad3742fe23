package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
)

// resolvedField names the declaring class and field-id a fieldref
// resolved to, plus whether the field is static.
type resolvedField struct {
	Declaring  names.ClassId
	ID         heap.FieldID
	Descriptor string
	Static     bool
}

// resolveField finds name/descriptor starting at class and walking the
// super chain, the way the class-file format resolves field references
// (fields are not overridden, only shadowed, so the first declaring
// class found wins and its own declared-field order fixes the index).
func (e *Env) resolveField(class names.ClassId, name, descriptor string) (*resolvedField, error) {
	for cur := class; cur != 0; {
		c, ok := e.Classes.Get(cur)
		if !ok {
			if err := e.Classes.Derive(cur); err != nil {
				return nil, err
			}
			c, _ = e.Classes.Get(cur)
		}
		if c == nil || c.View == nil {
			break
		}
		for i, f := range c.View.Fields {
			if f.Name == name && f.Descriptor == descriptor {
				return &resolvedField{
					Declaring:  cur,
					ID:         heap.FieldID{Class: cur, Index: i},
					Descriptor: descriptor,
					Static:     f.AccessFlags&0x0008 != 0, // AccStatic
				}, nil
			}
		}
		cur = c.Super
	}
	name0, _ := e.Names.Name(class)
	return nil, fmt.Errorf("interp: no such field %s.%s %s", name0, name, descriptor)
}

// staticClassRef returns (allocating and running <clinit> if needed)
// the heap handle to class's StaticClass instance.
func (e *Env) staticClassRef(class names.ClassId) (heap.Ref, error) {
	if err := e.PrepareClass(class); err != nil {
		return 0, err
	}
	info := e.Classes.Info(class)
	if info.StaticRef != 0 {
		return info.StaticRef, nil
	}
	return 0, fmt.Errorf("interp: class %v has no static storage allocated", class)
}
