//go:build !windows

package native

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// handleCounter mints the synthetic handles connectLibrary returns on
// unix: this core has no cgo dependency, so it cannot actually dlopen a
// shared object the way the real JNI bridge would — connectLibrary here
// only validates the library file is present and readable (via
// unix.Access, the same check dlopen itself performs before mapping the
// file) and returns a distinct non-zero handle per successful call, a
// stub standing in for the real foreign-function link. A native method
// backed by an actual .so would need dlsym through cgo or a purego-style
// assembly trampoline, both out of this core's scope (see DESIGN.md).
var handleCounter uint64

func connectLibrary(libPath string) (uintptr, error) {
	if err := unix.Access(libPath, unix.R_OK); err != nil {
		return 0, fmt.Errorf("native: library %s not accessible: %w", libPath, err)
	}
	return uintptr(atomic.AddUint64(&handleCounter, 1)), nil
}

// librarySuffix is the platform's shared-library file extension,
// System.mapLibraryName's Unix case (both Linux and Darwin use .so here
// since this core does not special-case Darwin's .dylib convention).
func librarySuffix() string { return ".so" }
