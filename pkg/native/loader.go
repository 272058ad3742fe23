package native

import (
	"fmt"
	"path/filepath"
)

// Handle is an opaque loaded-library reference, the ConnectLibrary
// return value a System.loadLibrary implementation would stash for a
// later dlsym-equivalent lookup.
type Handle uintptr

// LoadLibrary searches dirs, in order, for a platform-named shared
// library ("lib"+name+librarySuffix() on Unix, name+".dll" on Windows)
// and connects to the first one found, driven by
// config.Config.NativeLibraryDirs.
func LoadLibrary(dirs []string, name string) (Handle, error) {
	fileName := libraryFileName(name)
	for _, dir := range dirs {
		path := filepath.Join(dir, fileName)
		if h, err := connectLibrary(path); err == nil {
			return Handle(h), nil
		}
	}
	return 0, fmt.Errorf("native: library %s not found in %v", name, dirs)
}

func libraryFileName(name string) string {
	if librarySuffix() == ".dll" {
		return name + librarySuffix()
	}
	return "lib" + name + librarySuffix()
}
