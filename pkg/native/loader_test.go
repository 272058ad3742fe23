package native

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadLibraryFindsFileOnSearchPath(t *testing.T) {
	dir := t.TempDir()
	fileName := libraryFileName("demo")
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte{0}, 0o644))

	handle, err := LoadLibrary([]string{t.TempDir(), dir}, "demo")
	require.NoError(t, err)
	require.NotZero(t, handle)
}

func TestLoadLibraryMissingReturnsError(t *testing.T) {
	_, err := LoadLibrary([]string{t.TempDir()}, "does-not-exist")
	require.Error(t, err)
}
