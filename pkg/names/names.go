// Package names interns class names (including array and internal
// names) into compact, stable ClassIds. A ClassId is alive for the
// lifetime of the process once minted; ids are never freed or reused.
package names

import (
	"fmt"
	"strings"
	"sync"
)

// Kind tags what sort of name a ClassId denotes.
type Kind uint8

const (
	// KindRegular is a class with a backing class file, e.g. java/lang/String.
	KindRegular Kind = iota
	// KindArray is an array class, e.g. [I or [[Ljava/lang/String;.
	KindArray
	// KindInternal denotes a class with no backing file, reserved for
	// future host-internal machinery.
	KindInternal
)

// Primitive identifies a JVM primitive type, used as an array's
// component when it isn't a reference type.
type Primitive uint8

const (
	PrimNone Primitive = iota
	PrimByte
	PrimShort
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
	PrimChar
	PrimBool
)

// descriptorChar is the JVM field-descriptor character for a primitive.
func (p Primitive) descriptorChar() byte {
	switch p {
	case PrimByte:
		return 'B'
	case PrimShort:
		return 'S'
	case PrimInt:
		return 'I'
	case PrimLong:
		return 'J'
	case PrimFloat:
		return 'F'
	case PrimDouble:
		return 'D'
	case PrimChar:
		return 'C'
	case PrimBool:
		return 'Z'
	default:
		return 0
	}
}

// ClassId is a compact interned identity for a class name. Equality and
// hashing are the id itself; a zero ClassId is never valid (the
// registry's first id is 1) so the zero value can be used as a sentinel
// "no id" inside other structures.
type ClassId uint32

// entry is the registry's record for one interned name.
type entry struct {
	name string
	kind Kind
	// component/prim describe array ids only.
	componentID   ClassId
	componentPrim Primitive
	dims          int
}

// Registry interns names to ids and recovers names from ids. It is safe
// for concurrent use: the class registry may trigger reentrant interning
// while resolving super/interface names mid-load.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]ClassId
	entries []entry // index 0 unused; ids start at 1
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]ClassId),
		entries: make([]entry, 1),
	}
}

// Intern interns a class name given in internal form (e.g.
// "java/lang/String", "[I") and returns its ClassId, minting one on
// first mention.
func (r *Registry) Intern(name string) ClassId {
	r.mu.RLock()
	if id, ok := r.byName[name]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id
	}

	kind := KindRegular
	if strings.HasPrefix(name, "[") {
		kind = KindArray
	}
	id := ClassId(len(r.entries))
	r.entries = append(r.entries, entry{name: name, kind: kind})
	r.byName[name] = id
	return id
}

// InternInternal interns a name with no backing class file.
func (r *Registry) InternInternal(name string) ClassId {
	id := r.Intern(name)
	r.mu.Lock()
	r.entries[id].kind = KindInternal
	r.mu.Unlock()
	return id
}

// Name recovers the interned name for id.
func (r *Registry) Name(id ClassId) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(r.entries) {
		return "", fmt.Errorf("names: unknown class id %d", id)
	}
	return r.entries[id].name, nil
}

// Kind reports the kind of id.
func (r *Registry) Kind(id ClassId) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(r.entries) {
		return 0, fmt.Errorf("names: unknown class id %d", id)
	}
	return r.entries[id].kind, nil
}

// IsArray reports whether id denotes an array class.
func (r *Registry) IsArray(id ClassId) bool {
	k, err := r.Kind(id)
	return err == nil && k == KindArray
}

// ArrayOfClass composes, and interns, the name of an n-dimensional array
// over a reference component class id, without allocating intermediate
// strings for each dimension. n must be >= 1.
func (r *Registry) ArrayOfClass(component ClassId, n int) (ClassId, error) {
	compName, err := r.Name(component)
	if err != nil {
		return 0, err
	}
	var b strings.Builder
	b.Grow(n + len(compName) + 2)
	for i := 0; i < n; i++ {
		b.WriteByte('[')
	}
	b.WriteByte('L')
	b.WriteString(compName)
	b.WriteByte(';')
	id := r.Intern(b.String())
	r.mu.Lock()
	r.entries[id].dims = n
	r.entries[id].componentID = component
	r.mu.Unlock()
	return id, nil
}

// ArrayOfPrimitive composes, and interns, the name of an n-dimensional
// array over a primitive component.
func (r *Registry) ArrayOfPrimitive(p Primitive, n int) (ClassId, error) {
	ch := p.descriptorChar()
	if ch == 0 {
		return 0, fmt.Errorf("names: not a primitive kind: %d", p)
	}
	var b strings.Builder
	b.Grow(n + 1)
	for i := 0; i < n; i++ {
		b.WriteByte('[')
	}
	b.WriteByte(ch)
	id := r.Intern(b.String())
	r.mu.Lock()
	r.entries[id].dims = n
	r.entries[id].componentPrim = p
	r.mu.Unlock()
	return id, nil
}

// Component returns the one-level-down component of an array id: either
// a ClassId (ok=true, prim=PrimNone) or a Primitive (ok=false is never
// returned — callers distinguish via the returned Primitive being
// PrimNone). name is re-derived from the interned array name so that
// ids built via Intern("[I") directly (not via ArrayOf*) still answer
// correctly.
func (r *Registry) Component(id ClassId) (ClassId, Primitive, error) {
	name, err := r.Name(id)
	if err != nil {
		return 0, PrimNone, err
	}
	if len(name) < 2 || name[0] != '[' {
		return 0, PrimNone, fmt.Errorf("names: %s is not an array name", name)
	}
	rest := name[1:]
	switch rest[0] {
	case '[':
		return r.Intern(rest), PrimNone, nil
	case 'L':
		inner := strings.TrimSuffix(rest[1:], ";")
		return r.Intern(inner), PrimNone, nil
	case 'B':
		return 0, PrimByte, nil
	case 'S':
		return 0, PrimShort, nil
	case 'I':
		return 0, PrimInt, nil
	case 'J':
		return 0, PrimLong, nil
	case 'F':
		return 0, PrimFloat, nil
	case 'D':
		return 0, PrimDouble, nil
	case 'C':
		return 0, PrimChar, nil
	case 'Z':
		return 0, PrimBool, nil
	default:
		return 0, PrimNone, fmt.Errorf("names: malformed array name %s", name)
	}
}

// Dimensions returns how many leading '[' the array name id has.
func (r *Registry) Dimensions(id ClassId) int {
	name, err := r.Name(id)
	if err != nil {
		return 0
	}
	n := 0
	for n < len(name) && name[n] == '[' {
		n++
	}
	return n
}
