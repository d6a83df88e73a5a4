// Command skua-bench runs a JavaScript benchmark suite in the style of the
// V8 benchmark harness: the entry script pulls in the suite with load()
// and reports results through print().
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/skua-js/skua/pkg/config"
	"github.com/skua-js/skua/pkg/driver"
	"github.com/skua-js/skua/pkg/vm"
)

// registerLoad installs load(file), which runs a script from baseDir in
// the engine's global scope.
func registerLoad(e *driver.Engine, baseDir string) {
	e.RegisterNative(nil, "load", func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		name, err := v.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		full := filepath.Join(baseDir, name)
		content, err := os.ReadFile(full)
		if err != nil {
			return vm.Undefined, v.NewTypeErrorf("load: failed to read '%s': %v", name, err)
		}
		c := e.ParseAndRun(string(content), full)
		if c.Kind == driver.Throw {
			return vm.Undefined, v.Throw(c.Value)
		}
		return vm.Undefined, nil
	}, 1)
}

// run executes the entry script iterations times in fresh engines and
// returns the per-iteration durations.
func run(cfg *config.Config, dir, entry string, iterations int, stdout, stderr io.Writer, logger *slog.Logger) ([]time.Duration, error) {
	var times []time.Duration
	for i := 0; i < iterations; i++ {
		e, err := driver.NewWithOptions(cfg, driver.Options{Stdout: stdout, Stderr: stderr, Logger: logger})
		if err != nil {
			return nil, err
		}
		registerLoad(e, dir)
		start := time.Now()
		_, errs := e.RunFile(filepath.Join(dir, entry))
		if len(errs) > 0 {
			return nil, errs[0]
		}
		times = append(times, time.Since(start))
		logger.Debug("bench.iteration", "n", i, "elapsed", times[i], "collections", e.HeapStats().Collections)
	}
	return times, nil
}

func main() {
	var (
		benchDir   = flag.String("dir", "benchmarks/v8-v7", "Directory containing benchmark files")
		runFile    = flag.String("run", "run.js", "Entry point script to run")
		iterations = flag.Int("n", 1, "Number of runs")
		configPath = flag.String("config", "", "YAML configuration file")
		verbose    = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	absDir, err := filepath.Abs(*benchDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving benchmark directory: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(filepath.Join(absDir, *runFile)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: entry point not found at %s\n", filepath.Join(absDir, *runFile))
		os.Exit(1)
	}
	cfg.Modules.Root = absDir

	level := cfg.LogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	times, err := run(cfg, absDir, *runFile, *iterations, os.Stdout, os.Stderr, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
	if *verbose || isatty.IsTerminal(os.Stdout.Fd()) {
		var total time.Duration
		for _, t := range times {
			total += t
		}
		fmt.Printf("\n%d run(s), mean %v\n", len(times), total/time.Duration(len(times)))
	}
}
