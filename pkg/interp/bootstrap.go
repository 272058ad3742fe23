package interp

import "github.com/corejvm/corejvm/pkg/value"

// mainDescriptor is the descriptor every program entry point must
// match: public static void main(String[] args).
const mainDescriptor = "([Ljava/lang/String;)V"

// RunMain prepares mainClassName and runs its main(String[]) method,
// the core's top-level entry point (the call cmd/corejvm runs a program
// through). This core does not model java.lang.String's instance
// layout (see exception.go's messageValue note), so args is
// passed through as a null reference rather than a real String[].
func (e *Env) RunMain(mainClassName string) (*RunOutcome, error) {
	id := e.Names.Intern(mainClassName)
	return e.InvokeStatic(id, "main", mainDescriptor, []value.Value{value.Null()})
}
