package native

import "github.com/corejvm/corejvm/pkg/value"

// NativeInteger is the boxed payload behind a java.lang.Integer
// instance: the JVM-side object is an ordinary ClassInstance of
// java/lang/Integer, with its int32 kept here in the side table rather
// than as a declared field (java.lang.Integer's real field layout is
// not modeled).
type NativeInteger struct {
	Value int32
}

// IntegerValueOf boxes v (unexported-package helper kept for direct Go
// callers/tests; the JVM-facing path goes through the registered
// java/lang/Integer.valueOf native method below).
func IntegerValueOf(v int32) *NativeInteger {
	return &NativeInteger{Value: v}
}

// IntegerIntValue unboxes ni.
func IntegerIntValue(ni *NativeInteger) int32 {
	return ni.Value
}

const integerClass = "java/lang/Integer"

func registerIntegerMethods() {
	Register(integerClass, "valueOf", "(I)Ljava/lang/Integer;", integerValueOf)
	Register(integerClass, "intValue", "()I", integerIntValue)
}

// integerValueOf backs the static Integer.valueOf(int): allocate a bare
// Integer instance and bind its boxed value into the side table.
func integerValueOf(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	local, err := env.NewInstance(integerClass)
	if err != nil {
		return value.Value{}, false, err
	}
	env.Bind(local, &NativeInteger{Value: args[0].I32})
	return env.FromLocal(local, integerClass), true, nil
}

// integerIntValue backs the instance method Integer.intValue().
func integerIntValue(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	payload, ok := env.Native(self)
	if !ok {
		return value.Value{}, false, errNotBound(integerClass, self)
	}
	ni := payload.(*NativeInteger)
	return value.Int(ni.Value), true, nil
}
