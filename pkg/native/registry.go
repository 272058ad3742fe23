package native

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/interp"
	"github.com/corejvm/corejvm/pkg/value"
)

// Func is one registered native method body. self is the receiver's
// local ref (0/unused for a static method); args excludes the receiver.
type Func func(env Environment, self uint64, args []value.Value) (value.Value, bool, error)

// registry is the process-wide table from (class, name, descriptor) to
// its native implementation, mirroring the method-table lookup
// pkg/methods does for ordinary bytecode methods.
type registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

var global = &registry{funcs: make(map[string]Func)}

func key(class, name, descriptor string) string {
	return class + "." + name + descriptor
}

// Register installs fn as the native implementation of
// class.name+descriptor, overwriting any previous registration.
func Register(class, name, descriptor string, fn Func) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.funcs[key(class, name, descriptor)] = fn
}

func lookup(class, name, descriptor string) (Func, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	fn, ok := global.funcs[key(class, name, descriptor)]
	return fn, ok
}

func init() {
	registerIntegerMethods()
	registerHashMapMethods()
	registerPrintStreamMethods()
}

// Bridge is one running core's connection to this package's native
// method table: it owns the side table every bound native payload
// (boxed Integers, a HashMap's backing map, a PrintStream's writer)
// lives in, for the process's lifetime.
type Bridge struct {
	env        *interp.Env
	side       *sideTable
	stdout     io.Writer
	stderr     io.Writer
	libraryDirs []string
}

// NewBridge builds a Bridge for e, writing System.out/System.err-style
// output to stdout/stderr.
func NewBridge(e *interp.Env, stdout, stderr io.Writer) *Bridge {
	return &Bridge{env: e, side: newSideTable(), stdout: stdout, stderr: stderr}
}

// SetLibraryDirs records the directories System.loadLibrary-style native
// resolution searches, sourced from config.Config.NativeLibraryDirs.
func (b *Bridge) SetLibraryDirs(dirs []string) { b.libraryDirs = dirs }

// Environment returns b's Environment surface, for setup-time calls
// (binding System.out/System.err) that happen outside any single native
// method invocation.
func (b *Bridge) Environment() Environment {
	return &environment{env: b.env, side: b.side, stdout: b.stdout, stderr: b.stderr, libraryDirs: b.libraryDirs}
}

// Dispatch is the func an *interp.Env installs as its Native field: it
// looks up the method in the global registry, translates the call
// across the local-ref boundary, and reports an unresolved native
// method the same way a missing JNI symbol would
// (java.lang.UnsatisfiedLinkError).
func (b *Bridge) Dispatch(c *classes.Class, m *classfile.MethodInfo, args []value.Value) (*interp.RunOutcome, error) {
	fn, ok := lookup(c.Name, m.Name, m.Descriptor)
	if !ok {
		exc, err := b.env.NewThrowable(interp.ExcUnsatisfiedLink, fmt.Sprintf("%s.%s%s", c.Name, m.Name, m.Descriptor))
		if err != nil {
			return nil, err
		}
		return &interp.RunOutcome{Thrown: true, Exception: exc}, nil
	}

	env := b.Environment()

	var self uint64
	callArgs := args
	if m.AccessFlags&classfile.AccStatic == 0 {
		if len(args) == 0 || args[0].IsNull() {
			return env.Throw(interp.ExcNullPointer, "")
		}
		ref, ok := env.ToLocal(args[0])
		if !ok {
			return nil, fmt.Errorf("native: %s.%s%s receiver is not a reference", c.Name, m.Name, m.Descriptor)
		}
		self = ref
		callArgs = args[1:]
	}

	ret, returned, err := fn(env, self, callArgs)
	if err != nil {
		return nil, err
	}
	return &interp.RunOutcome{Returned: returned, Value: ret}, nil
}

// StdStreams returns the process's stdout/stderr writers, the default a
// CLI wires a Bridge with.
func StdStreams() (io.Writer, io.Writer) { return os.Stdout, os.Stderr }

// errNotBound reports a native method called against an instance whose
// side-table payload is missing — either the instance bypassed the
// registered constructor, or it belongs to a different native class
// entirely.
func errNotBound(className string, localRef uint64) error {
	return fmt.Errorf("native: %s instance (ref %d) has no bound native payload", className, localRef)
}
