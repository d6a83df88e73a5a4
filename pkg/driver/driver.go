package driver

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/skua-js/skua/pkg/builtins"
	"github.com/skua-js/skua/pkg/compiler"
	"github.com/skua-js/skua/pkg/config"
	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/modules"
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
	"github.com/skua-js/skua/pkg/vm"
)

// CompletionKind tags the outcome of running code.
type CompletionKind uint8

const (
	Normal CompletionKind = iota
	Throw
)

func (k CompletionKind) String() string {
	if k == Throw {
		return "throw"
	}
	return "normal"
}

// Completion is the result of a call across the host boundary. Value is
// the result for Normal completions and the thrown value for Throw.
type Completion struct {
	Kind  CompletionKind
	Value vm.Value
	// Errors holds the syntax errors of code that never ran.
	Errors []errors.SkuaError
	// Err is the Go error behind a Throw completion.
	Err error
}

// Options configure the parts of an Engine that are not in the YAML
// configuration.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Argv becomes process.argv.
	Argv []string
	// Exit handles process.exit. Nil exits the Go process.
	Exit func(code int)
	// Context bounds script execution; nil means never cancelled.
	Context context.Context
}

// Engine is a persistent interpreter session: one VM, one realm and one
// module graph. Globals defined by one evaluation are visible to the
// next. An Engine is not safe for concurrent use.
type Engine struct {
	ID      string
	cfg     *config.Config
	vm      *vm.VM
	loader  *modules.Loader
	natives *NativeModuleResolver
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
	ctx     context.Context
}

// New creates an engine whose realm holds every standard intrinsic plus
// print and process. A nil cfg selects config.Default().
func New(cfg *config.Config) *Engine {
	e, err := NewWithOptions(cfg, Options{})
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithOptions is New with host streams, logger and argv.
func NewWithOptions(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		ID:     uuid.NewString(),
		cfg:    cfg,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		ctx:    opts.Context,
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.ctx == nil {
		e.ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e.logger = logger.With("engine", e.ID)

	e.vm = vm.New(vm.Options{
		Logger:       e.logger,
		MaxCallDepth: cfg.VM.MaxCallDepth,
		GCThreshold:  cfg.GC.Threshold,
		GCStress:     cfg.GC.Stress,
	})
	e.vm.SetCompiler(compiler.Runtime{})
	e.vm.SetContext(e.ctx)

	e.natives = NewNativeModuleResolver()
	e.loader = modules.NewLoader(modules.Options{
		Workers: cfg.Modules.Workers,
		Root:    cfg.Modules.Root,
		Logger:  e.logger,
	}, e.natives, modules.NewOSFileSystemResolver(cfg.Modules.Root))
	e.vm.SetModuleLoader(e.loader)

	proc := NewProcessInitializer(opts.Argv, e.stdout)
	if opts.Exit != nil {
		proc.Exit = opts.Exit
	}
	err := builtins.Install(e.vm, builtins.Options{
		Stdout: e.stdout,
		Stderr: e.stderr,
		Extra:  []builtins.BuiltinInitializer{proc},
	})
	if err != nil {
		return nil, err
	}
	e.RegisterNative(nil, "print", func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		fmt.Fprintln(e.stdout, builtins.FormatConsoleArgs(v, args))
		return vm.Undefined, nil
	}, 0)
	registerStandardModules(e)
	return e, nil
}

// VM returns the engine's virtual machine.
func (e *Engine) VM() *vm.VM { return e.vm }

// Loader returns the engine's module loader.
func (e *Engine) Loader() *modules.Loader { return e.loader }

// Config returns the configuration the engine was created with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Compile parses and compiles a script without running it.
func (e *Engine) Compile(src *source.SourceFile) (*vm.FunctionTemplate, *parser.Program, []errors.SkuaError) {
	prog, errs := parser.ParseScript(src, e.cfg.VM.Strict)
	if len(errs) > 0 {
		return nil, nil, errs
	}
	tmpl, err := compiler.CompileScript(prog)
	if err != nil {
		return nil, prog, []errors.SkuaError{err}
	}
	return tmpl, prog, nil
}

// ParseAndRun parses, compiles and runs src as a script named name.
// Syntax errors are reported before anything runs, as a Throw completion
// whose value is a SyntaxError. The job queue is not drained.
func (e *Engine) ParseAndRun(src, name string) Completion {
	return e.runSource(source.NewSourceFile(name, "", src))
}

func (e *Engine) runSource(sf *source.SourceFile) Completion {
	tmpl, _, errs := e.Compile(sf)
	if len(errs) > 0 {
		err := errs[0]
		exc := e.vm.NewSyntaxError(err.Message() + " (" + err.Pos().String() + ")")
		return Completion{Kind: Throw, Value: e.vm.ThrownValue(exc), Errors: errs, Err: err}
	}
	val, err := e.vm.RunScript(tmpl)
	if err != nil {
		return Completion{Kind: Throw, Value: e.vm.ThrownValue(err), Err: err}
	}
	return Completion{Kind: Normal, Value: val}
}

// RunString runs src as a script and drains the job queue. A throw
// becomes a RuntimeError carrying the position of the throw.
func (e *Engine) RunString(src string) (vm.Value, []errors.SkuaError) {
	return e.run(source.NewEvalSource(src))
}

// RunFile runs a file as a script, or as a module when it is an .mjs
// file or uses import/export declarations.
func (e *Engine) RunFile(path string) (vm.Value, []errors.SkuaError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return vm.Undefined, []errors.SkuaError{&errors.CompileError{
			Msg:   fmt.Sprintf("Failed to read file '%s': %s", path, err),
			Cause: err,
		}}
	}
	sf := source.FromFile(path, string(content))
	if isModuleFile(sf) {
		return e.RunModule(path)
	}
	return e.run(sf)
}

// isModuleFile reports whether a file must be evaluated as a module.
func isModuleFile(sf *source.SourceFile) bool {
	if strings.EqualFold(filepath.Ext(sf.Path), ".mjs") {
		return true
	}
	if _, errs := parser.ParseScript(sf, false); len(errs) == 0 {
		return false
	}
	_, errs := parser.ParseModule(sf)
	return len(errs) == 0
}

// RunSource runs a prepared source file as a script and drains the job
// queue, like RunString.
func (e *Engine) RunSource(sf *source.SourceFile) (vm.Value, []errors.SkuaError) {
	return e.run(sf)
}

func (e *Engine) run(sf *source.SourceFile) (vm.Value, []errors.SkuaError) {
	c := e.runSource(sf)
	if len(c.Errors) > 0 {
		return vm.Undefined, c.Errors
	}
	var errs []errors.SkuaError
	if c.Kind == Throw {
		errs = append(errs, e.runtimeError(c.Err, sf))
	}
	errs = append(errs, e.drain(sf, nil)...)
	return c.Value, errs
}

// RunModule loads the module graph rooted at the OS path and evaluates
// it. Top-level await is allowed; the job queue is drained until the
// module settles.
func (e *Engine) RunModule(path string) (vm.Value, []errors.SkuaError) {
	spec := e.loader.EntrySpecifier(path)
	if err := e.loader.Prefetch(e.ctx, spec, ""); err != nil {
		e.logger.Debug("module.prefetch", "specifier", spec, "error", err)
	}
	m, promise, err := e.vm.ImportModule("", spec)
	if err != nil {
		return vm.Undefined, []errors.SkuaError{e.runtimeError(err, nil)}
	}
	errs := e.drain(nil, promise)
	if p := vm.PromiseOf(promise); p != nil && p.State == vm.PromiseRejected {
		errs = append([]errors.SkuaError{e.runtimeError(e.vm.Throw(p.Result), nil)}, errs...)
	} else if m.Status() != vm.ModuleEvaluated {
		errs = append(errs, &errors.RuntimeError{Msg: "module " + path + " did not finish evaluating (unsettled top-level await)"})
	}
	return vm.Undefined, errs
}

// drain runs the job queue to completion, converting job failures to
// RuntimeErrors and logging promises left rejected without a handler.
// The rejection of owned is reported by the caller instead.
func (e *Engine) drain(sf *source.SourceFile, owned *vm.Object) []errors.SkuaError {
	var errs []errors.SkuaError
	if err := e.vm.DrainJobQueue(); err != nil {
		for _, je := range unjoin(err) {
			errs = append(errs, e.runtimeError(je, sf))
		}
	}
	for _, p := range e.vm.UnhandledRejections() {
		if p == owned {
			continue
		}
		reason := vm.DescribeThrown(vm.PromiseOf(p).Result)
		e.logger.Warn("unhandled promise rejection", "reason", reason)
	}
	return errs
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// runtimeError converts a thrown error into a RuntimeError. When sf is
// the file the innermost frame belongs to, the error points into it.
func (e *Engine) runtimeError(err error, sf *source.SourceFile) *errors.RuntimeError {
	var ex *vm.Exception
	if !goerrors.As(err, &ex) {
		return &errors.RuntimeError{Msg: err.Error(), Cause: err}
	}
	rt := &errors.RuntimeError{
		Msg:   vm.DescribeThrown(ex.Value),
		Value: ex.Value,
		Cause: ex,
	}
	if f, ok := ex.Position(); ok {
		rt.Line, rt.Column = f.Line, f.Col
		if sf != nil && f.File == sf.DisplayPath() {
			rt.Source = sf
		}
	}
	if len(ex.Stack) > 0 {
		lines := make([]string, len(ex.Stack))
		for i, f := range ex.Stack {
			lines[i] = "    " + f.String()
		}
		rt.Stack = strings.Join(lines, "\n")
	}
	return rt
}

// RegisterNative installs fn as a non-enumerable method of obj, or of
// the global object when obj is nil.
func (e *Engine) RegisterNative(obj *vm.Object, name string, fn vm.NativeFn, arity int) *vm.Object {
	if obj == nil {
		obj = e.vm.Realm().GlobalObject
	}
	f := e.vm.NewNativeFunction(name, arity, fn)
	obj.DefineOwn(vm.StrKey(name), vm.ObjectValue(f), vm.MethodFlags)
	return f
}

// RegisterAccessor installs an accessor property on obj, or on the
// global object when obj is nil. Either function may be nil.
func (e *Engine) RegisterAccessor(obj *vm.Object, name string, getter, setter vm.NativeFn) {
	if obj == nil {
		obj = e.vm.Realm().GlobalObject
	}
	get, set := vm.Undefined, vm.Undefined
	if getter != nil {
		get = vm.ObjectValue(e.vm.NewNativeFunction("get "+name, 0, getter))
	}
	if setter != nil {
		set = vm.ObjectValue(e.vm.NewNativeFunction("set "+name, 1, setter))
	}
	obj.DefineAccessorOwn(vm.StrKey(name), get, set, vm.Configurable)
}

// SetGlobal defines a writable, configurable global property.
func (e *Engine) SetGlobal(name string, value vm.Value) {
	e.vm.Realm().GlobalObject.DefineOwn(vm.StrKey(name), value, vm.MethodFlags)
}

// Global reads a property of the global object.
func (e *Engine) Global(name string) (vm.Value, error) {
	g := e.vm.Realm().GlobalObject
	return g.Get(e.vm, vm.StrKey(name), vm.ObjectValue(g))
}

// Call invokes fn with this and args.
func (e *Engine) Call(fn vm.Value, this vm.Value, args ...vm.Value) Completion {
	val, err := e.vm.Call(fn, this, args...)
	if err != nil {
		return Completion{Kind: Throw, Value: e.vm.ThrownValue(err), Err: err}
	}
	return Completion{Kind: Normal, Value: val}
}

// EnqueueJob queues a call of fn with no arguments.
func (e *Engine) EnqueueJob(fn vm.Value) { e.vm.EnqueueCallJob(fn) }

// DrainJobQueue runs queued jobs until the queue is empty.
func (e *Engine) DrainJobQueue() error { return e.vm.DrainJobQueue() }

// Collect runs a garbage collection now.
func (e *Engine) Collect() { e.vm.Collect() }

// HeapStats returns the collector counters.
func (e *Engine) HeapStats() vm.HeapStats { return e.vm.HeapStats() }

// Display renders a value the way the REPL prints results.
func (e *Engine) Display(v vm.Value) string { return builtins.Display(e.vm, v) }

// DisplayResult prints errs, or value when it is not undefined. It
// returns true when there were no errors.
func (e *Engine) DisplayResult(value vm.Value, errs []errors.SkuaError) bool {
	if len(errs) > 0 {
		errors.DisplayErrors(e.stderr, errs)
		return false
	}
	if !value.IsUndefined() {
		fmt.Fprintln(e.stdout, e.Display(value))
	}
	return true
}
