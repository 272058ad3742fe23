package native

import (
	"fmt"
	"io"

	"github.com/corejvm/corejvm/pkg/value"
)

// PrintStream is the boxed payload behind a java.io.PrintStream
// instance — System.out and System.err are each bound to one of these,
// wrapping the process's real stdout/stderr (see Bridge's stdout/stderr
// parameters).
type PrintStream struct {
	Writer io.Writer
}

// Println prints args[0] followed by a newline, or a bare newline for
// the no-arg overload; java.io.PrintStream.println has nine overloads
// (one per primitive plus Object/String), all converging on this single
// Go method once each overload's native binding has unwrapped its one
// value.Value argument into a plain Go value.
func (ps *PrintStream) Println(args ...interface{}) {
	if len(args) == 0 {
		fmt.Fprintln(ps.Writer)
		return
	}
	fmt.Fprintln(ps.Writer, args[0])
}

const printStreamClass = "java/io/PrintStream"

func registerPrintStreamMethods() {
	Register(printStreamClass, "println", "()V", printlnVoid)
	Register(printStreamClass, "println", "(I)V", printlnInt)
	Register(printStreamClass, "println", "(J)V", printlnLong)
	Register(printStreamClass, "println", "(Z)V", printlnBool)
	Register(printStreamClass, "println", "(Ljava/lang/String;)V", printlnString)
	Register(printStreamClass, "println", "(Ljava/lang/Object;)V", printlnObject)
	Register(systemClass, "loadLibrary", "(Ljava/lang/String;)V", systemLoadLibrary)
}

const systemClass = "java/lang/System"

// systemLoadLibrary resolves a named shared library against the search
// path Bridge.SetLibraryDirs configured at startup. A registered Func
// has no channel back to a catchable JVM exception (only Dispatch's
// receiver-null check does, ahead of the call) so a resolution failure
// here surfaces as a plain Go error, the same as errNotBound elsewhere
// in this package.
func systemLoadLibrary(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	name := args[0].String()
	if _, err := LoadLibrary(env.LibraryDirs(), name); err != nil {
		return value.Value{}, false, err
	}
	return value.Value{}, false, nil
}

func printlnStream(env Environment, self uint64) (*PrintStream, error) {
	payload, ok := env.Native(self)
	if !ok {
		return nil, errNotBound(printStreamClass, self)
	}
	return payload.(*PrintStream), nil
}

func printlnVoid(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println()
	return value.Value{}, false, nil
}

func printlnInt(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println(args[0].I32)
	return value.Value{}, false, nil
}

func printlnLong(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println(args[0].I64)
	return value.Value{}, false, nil
}

func printlnBool(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println(args[0].I32 != 0)
	return value.Value{}, false, nil
}

// printlnString and printlnObject both print the boundary's own string
// form of the argument: both overloads render whatever
// value.Value.String produces, which for a reference is its class tag
// (e.g. ref(java/lang/String)), not the string's text.
func printlnString(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println(args[0].String())
	return value.Value{}, false, nil
}

func printlnObject(env Environment, self uint64, args []value.Value) (value.Value, bool, error) {
	ps, err := printlnStream(env, self)
	if err != nil {
		return value.Value{}, false, err
	}
	ps.Println(args[0].String())
	return value.Value{}, false, nil
}

// BindStdStreams allocates System.out/System.err instances (bare
// ClassInstances of java/io/PrintStream) and binds their native
// payloads to env's own stdout/stderr writers — called once at startup
// before any class referencing System.out/System.err runs, since this
// core does not model java.lang.System's static-field initialization.
func BindStdStreams(env Environment) (out, errStream uint64, err error) {
	out, err = env.NewInstance(printStreamClass)
	if err != nil {
		return 0, 0, err
	}
	env.Bind(out, &PrintStream{Writer: env.Stdout()})

	errStream, err = env.NewInstance(printStreamClass)
	if err != nil {
		return 0, 0, err
	}
	env.Bind(errStream, &PrintStream{Writer: env.Stderr()})
	return out, errStream, nil
}
