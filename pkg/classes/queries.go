package classes

import "github.com/corejvm/corejvm/pkg/names"

// IsSuperClass walks the super chain starting at child's super; it does
// not count child == candidate. An array's only super is
// java/lang/Object.
func (r *Registry) IsSuperClass(child, candidate names.ClassId) bool {
	c, ok := r.Get(child)
	if !ok {
		return false
	}
	current := c.Super
	visited := map[names.ClassId]bool{child: true}
	for current != 0 {
		if current == candidate {
			return true
		}
		if visited[current] {
			return false // cycle guard; derive already rejects true cycles
		}
		visited[current] = true
		next, ok := r.Get(current)
		if !ok {
			return false
		}
		current = next.Super
	}
	return false
}

// arrayInterfaceNames are the two standard interfaces every array
// class implements and no others.
var arrayInterfaceNames = []string{"java/lang/Cloneable", "java/io/Serializable"}

// ImplementsInterface walks the super chain; at each level it enumerates
// declared interfaces and recursively their superinterfaces.
func (r *Registry) ImplementsInterface(child, iface names.ClassId) bool {
	c, ok := r.Get(child)
	if !ok {
		return false
	}
	if c.IsArray() {
		ifaceName, err := r.names.Name(iface)
		if err != nil {
			return false
		}
		for _, n := range arrayInterfaceNames {
			if n == ifaceName {
				return true
			}
		}
		return false
	}

	current := child
	visited := map[names.ClassId]bool{}
	for current != 0 {
		if visited[current] {
			return false
		}
		visited[current] = true
		cc, ok := r.Get(current)
		if !ok {
			return false
		}
		for _, decl := range cc.Interfaces {
			if decl == iface || r.interfaceExtends(decl, iface, map[names.ClassId]bool{}) {
				return true
			}
		}
		current = cc.Super
	}
	return false
}

func (r *Registry) interfaceExtends(iface, target names.ClassId, visited map[names.ClassId]bool) bool {
	if visited[iface] {
		return false
	}
	visited[iface] = true
	c, ok := r.Get(iface)
	if !ok {
		return false
	}
	for _, super := range c.Interfaces {
		if super == target {
			return true
		}
		if r.interfaceExtends(super, target, visited) {
			return true
		}
	}
	return false
}

// IsCastableArray reports whether src can be cast to dst: both must be
// arrays; element classes must be super-compatible, interface-compatible,
// or recursively castable arrays. Primitive element arrays are castable
// only to themselves.
func (r *Registry) IsCastableArray(src, dst names.ClassId) bool {
	if src == dst {
		return true
	}
	sc, ok := r.Get(src)
	if !ok || !sc.IsArray() {
		return false
	}
	dc, ok := r.Get(dst)
	if !ok || !dc.IsArray() {
		return false
	}

	if sc.ComponentPrim != names.PrimNone || dc.ComponentPrim != names.PrimNone {
		return sc.ComponentPrim == dc.ComponentPrim && sc.ComponentClass == dc.ComponentClass
	}

	if sc.ComponentClass == dc.ComponentClass {
		return true
	}
	if r.IsSuperClass(sc.ComponentClass, dc.ComponentClass) {
		return true
	}
	if r.ImplementsInterface(sc.ComponentClass, dc.ComponentClass) {
		return true
	}
	srcComp, ok1 := r.Get(sc.ComponentClass)
	dstComp, ok2 := r.Get(dc.ComponentClass)
	if ok1 && ok2 && srcComp.IsArray() && dstComp.IsArray() {
		return r.IsCastableArray(sc.ComponentClass, dc.ComponentClass)
	}
	return false
}

// LoadArrayOf constructs (or returns the existing) array class of the
// given component and dimensionality, materializing each intermediate
// level for n > 1.
func (r *Registry) LoadArrayOf(component names.ClassId, n int) (names.ClassId, error) {
	id, err := r.names.ArrayOfClass(component, n)
	if err != nil {
		return 0, err
	}
	if err := r.Derive(id); err != nil {
		return 0, err
	}
	for level := n - 1; level >= 1; level-- {
		midID, err := r.names.ArrayOfClass(component, level)
		if err != nil {
			return 0, err
		}
		if err := r.Derive(midID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// LoadArrayOfPrimitive is LoadArrayOf for a primitive component.
func (r *Registry) LoadArrayOfPrimitive(p names.Primitive, n int) (names.ClassId, error) {
	id, err := r.names.ArrayOfPrimitive(p, n)
	if err != nil {
		return 0, err
	}
	if err := r.Derive(id); err != nil {
		return 0, err
	}
	return id, nil
}
