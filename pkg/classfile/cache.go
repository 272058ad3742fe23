package classfile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/corejvm/corejvm/internal/corelog"
	"github.com/corejvm/corejvm/pkg/names"
)

// Locator fetches the raw bytes of a class file by internal name, e.g.
// "java/lang/Object". Classpath/jmod/jar search is left to the caller;
// Cache only needs something that can hand back bytes.
type Locator interface {
	Locate(name string) (io.ReadCloser, error)
}

// JmodLocator locates classes inside a JDK jmod archive (the "classes/"
// entry prefix, with a 4-byte "JM\x01\x00" header stripped before the
// zip directory).
type JmodLocator struct {
	Path string

	once    sync.Once
	zr      *zip.Reader
	openErr error
}

func NewJmodLocator(path string) *JmodLocator {
	return &JmodLocator{Path: path}
}

func (l *JmodLocator) ensure() error {
	l.once.Do(func() {
		f, err := os.Open(l.Path)
		if err != nil {
			l.openErr = fmt.Errorf("jmod: opening %s: %w", l.Path, err)
			return
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			l.openErr = fmt.Errorf("jmod: stat %s: %w", l.Path, err)
			return
		}
		data := make([]byte, stat.Size())
		if _, err := io.ReadFull(f, data); err != nil {
			l.openErr = fmt.Errorf("jmod: reading %s: %w", l.Path, err)
			return
		}
		zipData := data[4:]
		zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
		if err != nil {
			l.openErr = fmt.Errorf("jmod: opening zip: %w", err)
			return
		}
		l.zr = zr
	})
	return l.openErr
}

func (l *JmodLocator) Locate(name string) (io.ReadCloser, error) {
	if err := l.ensure(); err != nil {
		return nil, err
	}
	target := "classes/" + name + ".class"
	for _, file := range l.zr.File {
		if file.Name == target {
			return file.Open()
		}
	}
	return nil, fmt.Errorf("jmod: class %s not found in %s", name, l.Path)
}

// DirLocator locates classes under a classpath directory, one .class
// file per internal name.
type DirLocator struct {
	Root string
}

func NewDirLocator(root string) *DirLocator { return &DirLocator{Root: root} }

func (l *DirLocator) Locate(name string) (io.ReadCloser, error) {
	path := filepath.Join(l.Root, name+".class")
	return os.Open(path)
}

// ChainLocator tries each Locator in order, returning the first success.
type ChainLocator []Locator

func (c ChainLocator) Locate(name string) (io.ReadCloser, error) {
	var lastErr error
	for _, l := range c {
		rc, err := l.Locate(name)
		if err == nil {
			return rc, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("classfile: no locator configured")
	}
	return nil, lastErr
}

// Cache keeps pre-parsed ClassFileViews keyed by ClassId, never evicting
// them. Loading an id that denotes an array or internal name is a no-op
// that returns (nil, false, nil) — "no view".
type Cache struct {
	names    *names.Registry
	locator  Locator
	mu       sync.RWMutex
	byID     map[names.ClassId]*ClassFile
}

func NewCache(reg *names.Registry, locator Locator) *Cache {
	return &Cache{
		names:   reg,
		locator: locator,
		byID:    make(map[names.ClassId]*ClassFile),
	}
}

// Get returns the ClassFileView for id, loading it via the Locator on
// first reference. ok is false when id denotes an array or internal
// class (no backing file to parse).
func (c *Cache) Get(id names.ClassId) (cf *ClassFile, ok bool, err error) {
	kind, err := c.names.Kind(id)
	if err != nil {
		return nil, false, err
	}
	if kind != names.KindRegular {
		return nil, false, nil
	}

	c.mu.RLock()
	if cf, cached := c.byID[id]; cached {
		c.mu.RUnlock()
		return cf, true, nil
	}
	c.mu.RUnlock()

	name, err := c.names.Name(id)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cf, cached := c.byID[id]; cached {
		return cf, true, nil
	}

	rc, err := c.locator.Locate(name)
	if err != nil {
		corelog.L().Warn("class-file not found", zap.String("class", name))
		return nil, false, fmt.Errorf("classfile: class %s not found: %w", name, err)
	}
	defer rc.Close()

	parsed, err := Parse(rc)
	if err != nil {
		return nil, false, fmt.Errorf("classfile: parsing %s: %w", name, err)
	}
	c.byID[id] = parsed
	return parsed, true, nil
}
