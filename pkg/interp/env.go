package interp

import (
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/corejvm/corejvm/internal/corelog"
	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/methods"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// callSiteCacheSize bounds the invokedynamic call-site cache. Static
// instruction locations are finite per loaded program, so this is a
// generous ceiling rather than a tuned working-set size.
const callSiteCacheSize = 4096

// Env is the interpreter's environment: every shared, mutate-in-place
// registry the interpreter thread owns — class-name registry,
// class-file cache, class registry, method registry, heap — all owned
// by the environment.
type Env struct {
	Names   *names.Registry
	Classes *classes.Registry
	Methods *methods.Registry
	Heap    *heap.Heap

	// callSites caches invokedynamic resolutions, one per static
	// instruction location, keyed by (class, method, instruction
	// offset), giving a single CallSite per static instruction location.
	callSites *lru.Cache

	// Native, when set, bridges methods declared native to the host
	// bridge (see pkg/native). RunMethod returns an error for a native
	// method if this is nil.
	Native func(c *classes.Class, m *classfile.MethodInfo, args []value.Value) (*RunOutcome, error)

	log *zap.Logger
}

type callSiteKey struct {
	class  names.ClassId
	method string
	offset int
}

func NewEnv(reg *names.Registry, cr *classes.Registry, mr *methods.Registry, h *heap.Heap) *Env {
	cache, err := lru.New(callSiteCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// callSiteCacheSize never is.
		panic(err)
	}
	return &Env{
		Names:     reg,
		Classes:   cr,
		Methods:   mr,
		Heap:      h,
		callSites: cache,
		log:       corelog.L(),
	}
}
