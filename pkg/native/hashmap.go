package native

import "github.com/corejvm/corejvm/pkg/value"

// NativeHashMap is the boxed payload behind a java.util.HashMap
// instance. Keys and values cross the JVM boundary as value.Value and
// are translated to/from plain Go values by toMapKey/fromMapValue
// below; a java.lang.Integer key unwraps to its raw int32, and any
// other reference type falls back to its local-ref identity (reference
// equality, not a recursive equals()/hashCode() walk as in
// java.util.HashMap's real contract).
type NativeHashMap struct {
	Data map[interface{}]interface{}
}

// NewNativeHashMap creates an empty NativeHashMap.
func NewNativeHashMap() *NativeHashMap {
	return &NativeHashMap{Data: make(map[interface{}]interface{})}
}

// NewHashMap is an alias for NewNativeHashMap.
func NewHashMap() *NativeHashMap {
	return NewNativeHashMap()
}

// Get returns the value stored for key, or nil if absent.
func (m *NativeHashMap) Get(key interface{}) interface{} {
	return m.Data[key]
}

// Put stores key/value and returns the previous value, if any.
func (m *NativeHashMap) Put(key, value interface{}) interface{} {
	old := m.Data[key]
	m.Data[key] = value
	return old
}

const hashMapClass = "java/util/HashMap"

func registerHashMapMethods() {
	Register(hashMapClass, "<init>", "()V", hashMapInit)
	Register(hashMapClass, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", hashMapPut)
	Register(hashMapClass, "get", "(Ljava/lang/Object;)Ljava/lang/Object;", hashMapGet)
}

func hashMapInit(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	env.Bind(self, NewNativeHashMap())
	return value.Value{}, false, nil
}

func hashMapPut(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	payload, ok := env.Native(self)
	if !ok {
		return value.Value{}, false, errNotBound(hashMapClass, self)
	}
	hm := payload.(*NativeHashMap)
	key, err := toMapKey(env, args[0])
	if err != nil {
		return value.Value{}, false, err
	}
	old := hm.Put(key, args[1])
	return fromMapValue(env, old), true, nil
}

func hashMapGet(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	payload, ok := env.Native(self)
	if !ok {
		return value.Value{}, false, errNotBound(hashMapClass, self)
	}
	hm := payload.(*NativeHashMap)
	key, err := toMapKey(env, args[0])
	if err != nil {
		return value.Value{}, false, err
	}
	return fromMapValue(env, hm.Get(key)), true, nil
}

// toMapKey unwraps a boxed Integer key to its raw int32, falls back to
// the primitive's own tagged Go value for other primitives, and to
// local-ref identity for every other reference type.
func toMapKey(env Environment, v value.Value) (interface{}, error) {
	if !v.IsReference() {
		return v.String(), nil
	}
	if v.IsNull() {
		return nil, nil
	}
	local, _ := env.ToLocal(v)
	className, err := env.ClassOf(local)
	if err != nil {
		return nil, err
	}
	if className == integerClass {
		payload, ok := env.Native(local)
		if ok {
			return payload.(*NativeInteger).Value, nil
		}
	}
	return local, nil
}

// fromMapValue stores a value.Value directly (no unboxing) so Get can
// hand back exactly what Put stored, and converts a missing/nil entry
// to the JVM null a HashMap.get miss returns.
func fromMapValue(env Environment, v interface{}) value.Value {
	if v == nil {
		return value.Null()
	}
	return v.(value.Value)
}
