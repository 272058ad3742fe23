// Package classes owns the map from ClassId to Class: it loads classes
// (including array classes) on demand, derives super and interface
// edges, and answers subtype/castability queries. It also tracks each
// class's per-class status state machine ("ClassInfo") for derivation;
// the verify and initialize transitions of that same state machine are
// driven from pkg/interp (see DESIGN.md) to avoid an import cycle
// between this package and pkg/verify.
package classes

import (
	"fmt"
	"sync"

	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/names"
)

// State is one of the three statuses a per-class status bit can be in.
type State uint8

const (
	NotDone State = iota
	Started
	Done
)

// Info tracks the four monotone state machines a class goes through:
// derived, verified, initialized, and mirror-cached.
type Info struct {
	Derived     State
	Verified    State
	Initialized State
	MirrorCached State
	Mirror      uint32 // heap.Ref of the class's Class<T> mirror, once cached; 0 until then

	// StaticRef is the heap.Ref of the class's StaticClass instance,
	// allocated by pkg/interp the first time the class is initialized.
	// Zero until then.
	StaticRef heap.Ref
}

// Class is a loaded class keyed by ClassId. View is set for regular
// classes loaded from a class file, Component for array classes, and
// neither for the synthesized java/lang/Object.
type Class struct {
	ID   names.ClassId
	Name string

	// View is nil for array classes.
	View *classfile.ClassFile

	// Component describes an array class's element type; zero value
	// (ComponentClass == 0, ComponentPrim == names.PrimNone) for regular
	// classes.
	ComponentClass names.ClassId
	ComponentPrim  names.Primitive

	Super      names.ClassId // 0 for java/lang/Object itself
	Interfaces []names.ClassId
	Package    string
}

func (c *Class) IsArray() bool { return c.ComponentClass != 0 || c.ComponentPrim != names.PrimNone }

// objectClassName is the bootstrap superclass of every class and array.
const objectClassName = "java/lang/Object"

// Registry owns loaded Class records and their Info status, keyed by
// ClassId via the shared name registry.
type Registry struct {
	names   *names.Registry
	files   *classfile.Cache
	mu      sync.Mutex
	classes map[names.ClassId]*Class
	info    map[names.ClassId]*Info
}

func New(reg *names.Registry, files *classfile.Cache) *Registry {
	return &Registry{
		names:   reg,
		files:   files,
		classes: make(map[names.ClassId]*Class),
		info:    make(map[names.ClassId]*Info),
	}
}

// Names exposes the shared name registry so callers (methods, verify,
// interp) can intern/resolve names without holding a second reference.
func (r *Registry) Names() *names.Registry { return r.names }

// Info returns (creating if absent) the status record for id.
func (r *Registry) Info(id names.ClassId) *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked(id)
}

func (r *Registry) infoLocked(id names.ClassId) *Info {
	if info, ok := r.info[id]; ok {
		return info
	}
	info := &Info{}
	r.info[id] = info
	return info
}

// Get returns the Class for id if it has already been derived.
func (r *Registry) Get(id names.ClassId) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	return c, ok
}

// Derive ensures a Class exists for id: idempotent once Done, and
// short-circuits while Started to break reentrant cycles. For array
// names it fabricates the array Class from its component; for regular
// names it fetches the ClassFileView, resolves the super and interface
// names, and derives each of those classes in turn before recording
// this one.
func (r *Registry) Derive(id names.ClassId) error {
	info := r.Info(id)

	r.mu.Lock()
	switch info.Derived {
	case Done, Started:
		r.mu.Unlock()
		return nil
	}
	info.Derived = Started
	r.mu.Unlock()

	if err := r.derive(id); err != nil {
		return err
	}

	info.Derived = Done
	return nil
}

func (r *Registry) derive(id names.ClassId) error {
	name, err := r.names.Name(id)
	if err != nil {
		return err
	}

	if r.names.IsArray(id) {
		return r.deriveArray(id, name)
	}
	return r.deriveRegular(id, name)
}

func (r *Registry) deriveArray(id names.ClassId, name string) error {
	component, prim, err := r.names.Component(id)
	if err != nil {
		return fmt.Errorf("classes: deriving array %s: %w", name, err)
	}
	c := &Class{
		ID:             id,
		Name:           name,
		ComponentClass: component,
		ComponentPrim:  prim,
		Super:          r.names.Intern(objectClassName),
		Package:        "",
	}
	r.mu.Lock()
	r.classes[id] = c
	r.mu.Unlock()
	return nil
}

func (r *Registry) deriveRegular(id names.ClassId, name string) error {
	if name == objectClassName {
		c := &Class{ID: id, Name: name, Package: packageOf(name)}
		r.mu.Lock()
		r.classes[id] = c
		r.mu.Unlock()
		return nil
	}

	view, ok, err := r.files.Get(id)
	if err != nil {
		return fmt.Errorf("classes: loading %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("classes: %s has no backing class file", name)
	}

	superName, err := classfile.GetClassName(view.ConstantPool, view.SuperClass)
	var superID names.ClassId
	if err == nil && superName != "" {
		superID = r.names.Intern(superName)
	} else {
		superID = r.names.Intern(objectClassName)
	}

	ifaces := make([]names.ClassId, 0, len(view.Interfaces))
	for _, idx := range view.Interfaces {
		ifName, err := classfile.GetClassName(view.ConstantPool, idx)
		if err != nil {
			return fmt.Errorf("classes: resolving interface of %s: %w", name, err)
		}
		ifaces = append(ifaces, r.names.Intern(ifName))
	}

	if err := r.Derive(superID); err != nil {
		return fmt.Errorf("classes: deriving superclass of %s: %w", name, err)
	}
	for _, ifID := range ifaces {
		if err := r.Derive(ifID); err != nil {
			return fmt.Errorf("classes: deriving interface of %s: %w", name, err)
		}
	}

	if err := r.rejectBadInheritance(id, superID, view); err != nil {
		return err
	}

	c := &Class{
		ID:         id,
		Name:       name,
		View:       view,
		Super:      superID,
		Interfaces: ifaces,
		Package:    packageOf(name),
	}
	r.mu.Lock()
	r.classes[id] = c
	r.mu.Unlock()
	return nil
}

// rejectBadInheritance rejects circular inheritance (self-reference
// anywhere in the super chain, not just a direct self-superclass) and a
// final or interface superclass.
func (r *Registry) rejectBadInheritance(id, superID names.ClassId, view *classfile.ClassFile) error {
	if err := r.checkSuperChainCycle(id, superID); err != nil {
		return err
	}
	if super, ok := r.Get(superID); ok && super.View != nil {
		if super.View.AccessFlags&classfile.AccFinal != 0 {
			return fmt.Errorf("classes: cannot extend final class")
		}
		if super.View.AccessFlags&classfile.AccInterface != 0 {
			return fmt.Errorf("classes: cannot extend an interface")
		}
	}
	return nil
}

// checkSuperChainCycle walks the ancestor chain starting at superID,
// resolving each ancestor's own declared superclass straight from its
// class file rather than through Derive (which is still in progress for
// id and would just short-circuit on re-entry), and rejects if id
// reappears anywhere in that chain. A cycle need not be direct: A
// extends B extends A is exactly as circular as A extends A.
func (r *Registry) checkSuperChainCycle(id, superID names.ClassId) error {
	objectID := r.names.Intern(objectClassName)
	seen := map[names.ClassId]bool{id: true}
	for cur := superID; cur != 0 && cur != objectID; {
		if seen[cur] {
			name, _ := r.names.Name(id)
			return fmt.Errorf("classes: %s: circular inheritance in superclass chain", name)
		}
		seen[cur] = true
		next, err := r.superOf(cur)
		if err != nil {
			return nil
		}
		cur = next
	}
	return nil
}

// superOf returns cur's declared superclass id, reading cur's own class
// file directly when cur has not been derived yet (an already-derived
// ancestor's Super field is used as-is, to avoid reloading it).
func (r *Registry) superOf(cur names.ClassId) (names.ClassId, error) {
	if c, ok := r.Get(cur); ok {
		return c.Super, nil
	}
	name, err := r.names.Name(cur)
	if err != nil {
		return 0, err
	}
	if r.names.IsArray(cur) || name == objectClassName {
		return 0, nil
	}
	view, ok, err := r.files.Get(cur)
	if err != nil || !ok {
		return 0, fmt.Errorf("classes: resolving ancestor %s", name)
	}
	superName, err := classfile.GetClassName(view.ConstantPool, view.SuperClass)
	if err != nil || superName == "" {
		return r.names.Intern(objectClassName), nil
	}
	return r.names.Intern(superName), nil
}

func packageOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return ""
}
