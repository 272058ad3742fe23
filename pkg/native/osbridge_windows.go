//go:build windows

package native

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// connectLibrary loads a native library by path, the System.load/
// System.loadLibrary half of the native boundary: the Go side of this
// core's native methods never needs it (every registered Func in this
// package is a direct Go implementation, not a call into a real shared
// library), but a class that declares its own native methods backed by
// an actual .dll still needs a handle resolved through the platform
// loader.
func connectLibrary(libPath string) (uintptr, error) {
	handle, err := windows.LoadLibrary(libPath)
	if err != nil {
		return 0, fmt.Errorf("native: LoadLibrary(%s): %w", libPath, err)
	}
	return uintptr(handle), nil
}

// librarySuffix is the platform's shared-library file extension,
// System.mapLibraryName's Windows case.
func librarySuffix() string { return ".dll" }
