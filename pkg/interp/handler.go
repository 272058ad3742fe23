package interp

import (
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/names"
)

// findHandler searches f's exception table for the innermost handler
// covering pc whose catch type (or catch-all) matches excClass: a
// handler matches if pc falls within [start, end) and catch-type is 0
// (catch all) or excClass is assignable to the resolved catch type.
// Handlers are tried in table order, which the class-file format
// already guarantees nests innermost-first.
func (e *Env) findHandler(f *Frame, pc int, excClass names.ClassId) (int, bool) {
	for _, h := range f.Code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		catchName, err := classfile.GetClassName(f.Class.View.ConstantPool, h.CatchType)
		if err != nil {
			continue
		}
		catchID := e.Names.Intern(catchName)
		if err := e.Classes.Derive(catchID); err != nil {
			continue
		}
		if excClass == catchID || e.Classes.IsSuperClass(excClass, catchID) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

