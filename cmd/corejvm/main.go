// Command corejvm loads and runs a single class's main(String[])
// method: the core's entry point, wiring internal/config's resolved
// java.home into the class-file locators and its native-library path
// into pkg/native; -D properties are recorded in the config only.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corejvm/corejvm/internal/config"
	"github.com/corejvm/corejvm/internal/corelog"
	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/interp"
	"github.com/corejvm/corejvm/pkg/methods"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/native"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		jmodPath     string
		classpathDir string
		properties   []string
		nativeDirs   []string
		maxStack     int
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "corejvm <class-or-.class-file> [args...]",
		Short: "Run a compiled class's main(String[]) method",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			cfg.MaxStackLimit = maxStack
			cfg.NativeLibraryDirs = nativeDirs
			for _, kv := range properties {
				k, v := splitProperty(kv)
				cfg.SetProperty(k, v)
			}

			corelog.Init(corelog.Level(parseLogLevel(logLevel)))

			return run(cfg, jmodPath, classpathDir, args[0])
		},
	}

	cmd.Flags().StringVar(&jmodPath, "jmod", "", "path to java.base.jmod (overrides JAVA_BASE_JMOD/JAVA_HOME discovery)")
	cmd.Flags().StringVar(&classpathDir, "classpath", ".", "directory to search for user classes")
	cmd.Flags().StringArrayVarP(&properties, "define", "D", nil, "system property as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&nativeDirs, "native-lib-path", nil, "directory to search for native libraries (repeatable)")
	cmd.Flags().IntVar(&maxStack, "max-stack", 0, "max-stack limit recorded in the config (not applied by the verifier)")
	cmd.Flags().StringVar(&logLevel, "verify-log-level", "error", "verifier/class-loading log level: off|error|warn|info|debug")

	return cmd
}

func run(cfg *config.Config, jmodOverride, classpathDir, className string) error {
	jmodPath := jmodOverride
	if jmodPath == "" {
		jmodPath = cfg.JmodPath()
	}
	if jmodPath == "" {
		return fmt.Errorf("corejvm: could not resolve java.base.jmod; pass --jmod or set JAVA_HOME/JAVA_BASE_JMOD")
	}

	locator := classfile.ChainLocator{
		classfile.NewDirLocator(classpathDir),
		classfile.NewJmodLocator(jmodPath),
	}

	reg := names.New()
	cache := classfile.NewCache(reg, locator)
	cr := classes.New(reg, cache)
	mr := methods.New(cr)
	h := heap.New()
	env := interp.NewEnv(reg, cr, mr, h)

	stdout, stderr := native.StdStreams()
	bridge := native.NewBridge(env, stdout, stderr)
	bridge.SetLibraryDirs(cfg.NativeLibraryDirs)
	env.Native = bridge.Dispatch
	if _, _, err := native.BindStdStreams(bridge.Environment()); err != nil {
		return fmt.Errorf("corejvm: binding System.out/System.err: %w", err)
	}

	out, err := env.RunMain(className)
	if err != nil {
		return fmt.Errorf("corejvm: running %s: %w", className, err)
	}
	if out.Thrown {
		ref, _ := out.Exception.Ref.(heap.Ref)
		msg := env.ExceptionMessage(ref)
		return fmt.Errorf("corejvm: uncaught exception in %s: %s", className, msg)
	}
	return nil
}

func splitProperty(kv string) (key, value string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}

func parseLogLevel(s string) int {
	switch s {
	case "off":
		return int(corelog.LevelOff)
	case "warn":
		return int(corelog.LevelWarn)
	case "info":
		return int(corelog.LevelInfo)
	case "debug":
		return int(corelog.LevelDebug)
	default:
		return int(corelog.LevelError)
	}
}
