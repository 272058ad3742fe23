// Package config holds the injected configuration the core is given at
// startup: verification logging level, a max-stack limit, -D properties,
// native-library search directories, and java.home.
package config

import (
	"os"
	"path/filepath"

	"github.com/corejvm/corejvm/internal/corelog"
)

// Config is built by cmd/corejvm, which fills in its flag values after
// New returns. Of its fields, only JavaHome (through JmodPath) and
// NativeLibraryDirs (handed to the native bridge) are read by the rest
// of the module.
type Config struct {
	// VerifyLogLevel holds a default log level; cmd/corejvm passes its
	// --verify-log-level flag to corelog.Init directly and does not read
	// or set this field.
	VerifyLogLevel corelog.Level
	// MaxStackLimit records the --max-stack flag (0 = no cap). No
	// component reads it: the verifier uses each method's declared
	// max-stack as-is.
	MaxStackLimit int
	// Properties are -Dkey=value system properties.
	Properties map[string]string
	// NativeLibraryDirs are searched, in order, for native libraries
	// requested by System.loadLibrary.
	NativeLibraryDirs []string
	// JavaHome is the resolved JDK install root, used to locate
	// java.base.jmod when no explicit jmod path is given.
	JavaHome string
}

// New builds a Config with defaults resolved from the environment: an
// env-var-then-glob fallback for java.home.
func New() *Config {
	return &Config{
		VerifyLogLevel:    corelog.LevelError,
		MaxStackLimit:     0,
		Properties:        make(map[string]string),
		NativeLibraryDirs: nil,
		JavaHome:          resolveJavaHome(),
	}
}

func resolveJavaHome() string {
	if env := os.Getenv("JAVA_HOME"); env != "" {
		return env
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// JmodPath returns the path to java.base.jmod under JavaHome, or the
// empty string if it cannot be resolved.
func (c *Config) JmodPath() string {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	if c.JavaHome == "" {
		return ""
	}
	p := filepath.Join(c.JavaHome, "jmods", "java.base.jmod")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// SetProperty records a -Dkey=value system property.
func (c *Config) SetProperty(key, value string) {
	c.Properties[key] = value
}

// Property returns a -D property, defaulting to "" if unset.
func (c *Config) Property(key string) string {
	return c.Properties[key]
}
