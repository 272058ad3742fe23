package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
	"github.com/corejvm/corejvm/pkg/verify"
)

// PrepareClass drives a class through derive, verify, and initialize in
// order: pkg/classes owns the Derived transition, this function drives
// Verified and Initialized since pkg/classes cannot depend on
// pkg/verify or pkg/interp without a cycle (see DESIGN.md).
// Idempotent and cycle-breaking the same way Derive is: a class whose
// Initialized status is Started (meaning its own <clinit> is on the
// current call stack, e.g. via a self-referential static factory) is
// treated as already initialized for the recursive call that found it.
func (e *Env) PrepareClass(id names.ClassId) error {
	if err := e.Classes.Derive(id); err != nil {
		return err
	}
	if err := e.verifyClass(id); err != nil {
		return err
	}
	return e.initializeClass(id)
}

func (e *Env) verifyClass(id names.ClassId) error {
	info := e.Classes.Info(id)
	if info.Verified == classes.Done || info.Verified == classes.Started {
		return nil
	}
	info.Verified = classes.Started
	c, ok := e.Classes.Get(id)
	if !ok {
		return fmt.Errorf("interp: verifying undervied class %v", id)
	}
	if c.View != nil {
		for i := range c.View.Methods {
			m := &c.View.Methods[i]
			if m.Code == nil {
				continue
			}
			if err := verify.Verify(e.Classes, c, m); err != nil {
				return fmt.Errorf("interp: verifying %s.%s%s: %w", c.Name, m.Name, m.Descriptor, err)
			}
		}
	}
	info.Verified = classes.Done
	return nil
}

func (e *Env) initializeClass(id names.ClassId) error {
	info := e.Classes.Info(id)
	if info.Initialized == classes.Done || info.Initialized == classes.Started {
		return nil
	}
	info.Initialized = classes.Started

	c, ok := e.Classes.Get(id)
	if !ok {
		return fmt.Errorf("interp: initializing underived class %v", id)
	}

	if c.Super != 0 {
		if err := e.PrepareClass(c.Super); err != nil {
			return err
		}
	}

	staticFields := make(map[heap.FieldID]value.Value)
	if c.View != nil {
		for i, f := range c.View.Fields {
			if f.AccessFlags&0x0008 == 0 { // not static
				continue
			}
			staticFields[heap.FieldID{Class: id, Index: i}] = value.DefaultFor(f.Descriptor)
		}
	}
	ref := e.Heap.NewStaticClass(&heap.StaticClass{Class: id, Fields: staticFields})
	info.StaticRef = ref

	if c.View != nil {
		for i := range c.View.Methods {
			m := &c.View.Methods[i]
			if m.Name == "<clinit>" && m.Descriptor == "()V" && m.Code != nil {
				if _, err := e.RunMethod(c, m, nil); err != nil {
					return fmt.Errorf("interp: running <clinit> of %s: %w", c.Name, err)
				}
				break
			}
		}
	}

	info.Initialized = classes.Done
	return nil
}
