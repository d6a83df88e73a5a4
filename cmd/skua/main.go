package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/skua-js/skua/pkg/config"
	"github.com/skua-js/skua/pkg/driver"
	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
	"github.com/skua-js/skua/pkg/vm"
)

// Exit codes follow sysexits.h.
const (
	exitDataErr  = 65
	exitSoftware = 70
	exitConfig   = 78
)

type cli struct {
	engine   *driver.Engine
	cfg      *config.Config
	bytecode bool
	ast      bool
	gcStats  bool
}

func main() {
	exprFlag := flag.String("e", "", "Run the given source text and exit")
	bytecodeFlag := flag.Bool("bytecode", false, "Show compiled bytecode before execution")
	astDumpFlag := flag.Bool("ast", false, "Show the parsed AST before execution")
	configFlag := flag.String("config", "", "YAML configuration file (overrides $"+config.EnvVar+")")
	gcStatsFlag := flag.Bool("gc-stats", false, "Show collector statistics after execution")
	versionFlag := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("skua", driver.Version)
		return
	}
	cfg, err := config.Resolve(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skua: %v\n", err)
		os.Exit(exitConfig)
	}
	if *exprFlag == "" && flag.NArg() > 0 && cfg.Modules.Root == "." {
		cfg.Modules.Root = filepath.Dir(flag.Arg(0))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	engine, err := driver.NewWithOptions(cfg, driver.Options{
		Logger: logger,
		// Arguments after the script become process.argv.
		Argv: append([]string{"skua"}, flag.Args()...),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "skua: %v\n", err)
		os.Exit(exitSoftware)
	}
	c := &cli{engine: engine, cfg: cfg, bytecode: *bytecodeFlag, ast: *astDumpFlag, gcStats: *gcStatsFlag}

	switch {
	case *exprFlag != "":
		os.Exit(c.runSource(source.NewEvalSource(*exprFlag), true))
	case flag.NArg() > 0:
		os.Exit(c.runFile(flag.Arg(0)))
	case isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()):
		c.repl(os.Stdin, os.Stdout)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skua: reading stdin: %v\n", err)
			os.Exit(exitSoftware)
		}
		os.Exit(c.runSource(source.NewStdinSource(string(data)), false))
	}
}

// exitCode maps reported errors to a process exit code.
func exitCode(errs []errors.SkuaError) int {
	if len(errs) == 0 {
		return 0
	}
	if errs[0].Kind() == "Runtime" {
		return exitSoftware
	}
	return exitDataErr
}

// dump prints the AST and bytecode when requested. It reports false when
// the source does not compile.
func (c *cli) dump(sf *source.SourceFile) bool {
	if !c.ast && !c.bytecode {
		return true
	}
	tmpl, prog, errs := c.engine.Compile(sf)
	if c.ast && prog != nil {
		fmt.Println("--- AST ---")
		fmt.Println(prog.String())
	}
	if len(errs) > 0 {
		errors.DisplayErrors(os.Stderr, errs)
		return false
	}
	if c.bytecode {
		fmt.Println("--- Bytecode ---")
		fmt.Print(vm.Disassemble(tmpl))
	}
	return true
}

func (c *cli) runSource(sf *source.SourceFile, showResult bool) int {
	if !c.dump(sf) {
		return exitDataErr
	}
	value, errs := c.engine.RunSource(sf)
	return c.finish(value, errs, showResult)
}

func (c *cli) runFile(path string) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", path, err)
		return exitSoftware
	}
	if !c.dump(source.FromFile(path, string(content))) {
		return exitDataErr
	}
	value, errs := c.engine.RunFile(path)
	return c.finish(value, errs, false)
}

func (c *cli) finish(value vm.Value, errs []errors.SkuaError, showResult bool) int {
	if len(errs) > 0 || showResult {
		c.engine.DisplayResult(value, errs)
	}
	if c.gcStats {
		c.engine.Collect()
		printHeapStats(os.Stderr, c.engine.HeapStats())
	}
	return exitCode(errs)
}

func printHeapStats(w io.Writer, s vm.HeapStats) {
	fmt.Fprintf(w, "gc: %d collections, %d live, %d allocated, %d freed\n",
		s.Collections, s.Live, s.Allocated, s.Freed)
}

// needsMore reports whether input failed to parse only because it ended
// early, so the REPL should keep reading.
func needsMore(input string, strict bool) bool {
	_, errs := parser.ParseScript(source.NewReplSource(input), strict)
	for _, err := range errs {
		msg := err.Message()
		if strings.Contains(msg, "Unexpected end of input") || strings.HasPrefix(msg, "Unterminated") {
			return true
		}
	}
	return false
}

// repl runs the Read-Eval-Print Loop. Globals persist between inputs.
func (c *cli) repl(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "skua %s (Ctrl+D to exit)\n", driver.Version)

	var pending strings.Builder
	for {
		if pending.Len() == 0 {
			fmt.Fprint(out, "> ")
		} else {
			fmt.Fprint(out, "... ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out)
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			return
		}
		pending.WriteString(line)
		input := pending.String()
		if strings.TrimSpace(input) == "" {
			pending.Reset()
			continue
		}
		if needsMore(input, c.cfg.VM.Strict) {
			continue
		}
		pending.Reset()

		sf := source.NewReplSource(input)
		if !c.dump(sf) {
			continue
		}
		value, errs := c.engine.RunSource(sf)
		c.engine.DisplayResult(value, errs)
		if c.gcStats {
			printHeapStats(out, c.engine.HeapStats())
		}
	}
}
