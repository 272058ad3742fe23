// Package methods loads and caches Method records by method-id (spec
// §4.4): exact-class lookup by (class, name, descriptor), virtual
// resolution by walking the super chain and then interface default
// methods, and the override chain for each loaded method.
package methods

import (
	"fmt"
	"strings"
	"sync"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/names"
)

// Descriptor is a method descriptor in parsed form, so that two
// descriptors built from different constant-pool encodings of the same
// signature compare equal structurally rather than byte-for-byte (spec
// §4.4: "descriptor comparison is on parsed form, not raw bytes").
type Descriptor struct {
	Params []string
	Return string
}

// ParseDescriptor parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseDescriptor(s string) (Descriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return Descriptor{}, fmt.Errorf("methods: malformed descriptor %q", s)
	}
	i := 1
	var params []string
	for i < len(s) && s[i] != ')' {
		t, n, err := parseFieldType(s[i:])
		if err != nil {
			return Descriptor{}, fmt.Errorf("methods: malformed descriptor %q: %w", s, err)
		}
		params = append(params, t)
		i += n
	}
	if i >= len(s) {
		return Descriptor{}, fmt.Errorf("methods: unterminated parameter list in %q", s)
	}
	i++ // skip ')'
	ret := s[i:]
	if ret != "V" {
		t, n, err := parseFieldType(ret)
		if err != nil || n != len(ret) {
			return Descriptor{}, fmt.Errorf("methods: malformed return type in %q", s)
		}
		ret = t
	}
	return Descriptor{Params: params, Return: ret}, nil
}

// parseFieldType parses one field-descriptor element from the front of
// s, returning its canonical form and the number of bytes consumed.
func parseFieldType(s string) (string, int, error) {
	if len(s) == 0 {
		return "", 0, fmt.Errorf("empty type")
	}
	switch s[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		return s[:1], 1, nil
	case '[':
		_, n, err := parseFieldType(s[1:])
		if err != nil {
			return "", 0, err
		}
		return s[:1+n], 1 + n, nil
	case 'L':
		idx := strings.IndexByte(s, ';')
		if idx < 0 {
			return "", 0, fmt.Errorf("unterminated reference type in %q", s)
		}
		return s[:idx+1], idx + 1, nil
	default:
		return "", 0, fmt.Errorf("unknown type tag %q", s[0])
	}
}

// Equal reports structural equality between two descriptors.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Return != o.Return || len(d.Params) != len(o.Params) {
		return false
	}
	for i := range d.Params {
		if d.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// MethodID identifies one method by its declaring class, name, and raw
// descriptor string (the raw string is a stable cache key; structural
// comparison happens during resolution via Descriptor.Equal).
type MethodID struct {
	Class      names.ClassId
	Name       string
	Descriptor string
}

// Method is a cached, resolved method record.
type Method struct {
	ID         MethodID
	Info       *classfile.MethodInfo
	parsedDesc Descriptor
	overrides  []MethodID // computed lazily, nil until Overrides is called
	overrideOK bool
}

// Registry caches Method records and override chains, keyed by MethodID.
type Registry struct {
	classes *classes.Registry

	mu   sync.Mutex
	byID map[MethodID]*Method
}

func New(cr *classes.Registry) *Registry {
	return &Registry{classes: cr, byID: make(map[MethodID]*Method)}
}

// Lookup finds the unique method declared directly in class with
// matching name and structurally-equal descriptor. It does
// not walk the super chain; see ResolveVirtual for that.
func (r *Registry) Lookup(class names.ClassId, name, descriptor string) (*Method, error) {
	id := MethodID{Class: class, Name: name, Descriptor: descriptor}

	r.mu.Lock()
	if m, ok := r.byID[id]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	c, ok := r.classes.Get(class)
	if !ok {
		return nil, fmt.Errorf("methods: class %d not derived", class)
	}
	if c.View == nil {
		return nil, fmt.Errorf("methods: %s.%s%s: no such method (array or internal class)", c.Name, name, descriptor)
	}

	wantDesc, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}

	for i := range c.View.Methods {
		mi := &c.View.Methods[i]
		if mi.Name != name {
			continue
		}
		haveDesc, err := ParseDescriptor(mi.Descriptor)
		if err != nil {
			continue
		}
		if !haveDesc.Equal(wantDesc) {
			continue
		}
		m := &Method{ID: id, Info: mi, parsedDesc: haveDesc}
		r.mu.Lock()
		r.byID[id] = m
		r.mu.Unlock()
		return m, nil
	}
	return nil, fmt.Errorf("methods: %s.%s%s: no such method", c.Name, name, descriptor)
}

// ResolveVirtual resolves a method starting at startClass: it walks the
// super chain looking for a declared match, then (if none found) walks
// the super chain again searching each level's interfaces for a default
// method.
func (r *Registry) ResolveVirtual(startClass names.ClassId, name, descriptor string) (*Method, error) {
	current := startClass
	for current != 0 {
		if m, err := r.Lookup(current, name, descriptor); err == nil {
			return m, nil
		}
		c, ok := r.classes.Get(current)
		if !ok {
			break
		}
		current = c.Super
	}

	current = startClass
	for current != 0 {
		c, ok := r.classes.Get(current)
		if !ok {
			break
		}
		for _, iface := range c.Interfaces {
			if m, err := r.ResolveVirtual(iface, name, descriptor); err == nil {
				return m, nil
			}
		}
		current = c.Super
	}
	return nil, fmt.Errorf("methods: %s%s not found from class %d", name, descriptor, startClass)
}

// Overrides returns the override chain for m: every accessible,
// non-final super-class method of the same name and descriptor, walking
// up from m's declaring class's super. Computed once, then
// cached on the Method record.
func (r *Registry) Overrides(m *Method) ([]MethodID, error) {
	if m.overrideOK {
		return m.overrides, nil
	}

	declaring, ok := r.classes.Get(m.ID.Class)
	if !ok {
		return nil, fmt.Errorf("methods: class %d not derived", m.ID.Class)
	}

	var chain []MethodID
	current := declaring.Super
	for current != 0 {
		superClass, ok := r.classes.Get(current)
		if !ok {
			break
		}
		candidate, err := r.Lookup(current, m.ID.Name, m.ID.Descriptor)
		if err == nil {
			if r.isFinal(candidate) {
				break // final blocks further climbing; not itself an override
			}
			if r.accessible(candidate, declaring.Package) {
				chain = append(chain, candidate.ID)
			}
		}
		current = superClass.Super
	}

	m.overrides = chain
	m.overrideOK = true
	return chain, nil
}

func (r *Registry) isFinal(m *Method) bool {
	return m.Info.AccessFlags&classfile.AccFinal != 0
}

// accessible reports whether m (declared in some super class) is
// visible to a subclass in fromPackage: public, protected, or
// package-private within the same runtime package.
func (r *Registry) accessible(m *Method, fromPackage string) bool {
	flags := m.Info.AccessFlags
	if flags&classfile.AccPublic != 0 || flags&classfile.AccProtected != 0 {
		return true
	}
	if flags&classfile.AccPrivate != 0 {
		return false
	}
	declaring, ok := r.classes.Get(m.ID.Class)
	if !ok {
		return false
	}
	return declaring.Package == fromPackage
}
