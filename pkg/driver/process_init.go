package driver

import (
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/skua-js/skua/pkg/builtins"
	"github.com/skua-js/skua/pkg/vm"
)

// Version is reported as process.version.
const Version = "v0.1.0"

// ProcessInitializer sets up a small Node.js-style process global.
// This is not standard ECMAScript; scripts use it for argv, the
// environment and raw output.
type ProcessInitializer struct {
	argv   []string
	stdout io.Writer
	// Exit is called by process.exit. Defaults to os.Exit.
	Exit func(code int)
}

// NewProcessInitializer creates a ProcessInitializer exposing argv and
// writing process.stdout to stdout.
func NewProcessInitializer(argv []string, stdout io.Writer) *ProcessInitializer {
	return &ProcessInitializer{argv: argv, stdout: stdout, Exit: os.Exit}
}

func (p *ProcessInitializer) Name() string {
	return "process"
}

func (p *ProcessInitializer) Priority() int {
	return builtins.PriorityGlobals + 100 // After standard builtins
}

func (p *ProcessInitializer) InitRuntime(ctx *builtins.RuntimeContext) error {
	v := ctx.VM
	process := v.NewObject()

	argv := make([]vm.Value, len(p.argv))
	for i, a := range p.argv {
		argv[i] = vm.NewStringValue(a)
	}
	process.SetOwn("argv", vm.ObjectValue(v.NewArrayFromValues(argv)))

	env := v.NewObject()
	environ := os.Environ()
	sort.Strings(environ)
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env.SetOwn(key, vm.NewStringValue(value))
		}
	}
	process.SetOwn("env", vm.ObjectValue(env))
	process.SetOwn("platform", vm.NewStringValue(runtime.GOOS))
	process.SetOwn("version", vm.NewStringValue(Version))
	process.SetOwn("pid", vm.IntValue(os.Getpid()))
	process.SetOwn("exitCode", vm.Undefined)

	stdout := v.NewObject()
	stdout.DefineOwn(vm.StrKey("write"), vm.ObjectValue(v.NewNativeFunction("write", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := v.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := io.WriteString(p.stdout, s); err != nil {
			return vm.False, nil
		}
		return vm.True, nil
	})), vm.MethodFlags)
	process.SetOwn("stdout", vm.ObjectValue(stdout))

	process.DefineOwn(vm.StrKey("cwd"), vm.ObjectValue(v.NewNativeFunction("cwd", 0, func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		cwd, err := os.Getwd()
		if err != nil {
			return vm.NewStringValue(""), nil
		}
		return vm.NewStringValue(cwd), nil
	})), vm.MethodFlags)

	// process.exit(code) falls back to process.exitCode, then 0.
	process.DefineOwn(vm.StrKey("exit"), vm.ObjectValue(v.NewNativeFunction("exit", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		code := vm.Arg(args, 0)
		if code.IsUndefined() {
			c, err := process.Get(v, vm.StrKey("exitCode"), vm.ObjectValue(process))
			if err != nil {
				return vm.Undefined, err
			}
			code = c
		}
		n := 0
		if !code.IsUndefined() {
			f, err := v.ToIntegerOrInfinity(code)
			if err != nil {
				return vm.Undefined, err
			}
			n = int(f)
		}
		p.Exit(n)
		return vm.Undefined, nil
	})), vm.MethodFlags)

	process.DefineOwn(vm.StrKey("nextTick"), vm.ObjectValue(v.NewNativeFunction("nextTick", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		fn := vm.Arg(args, 0)
		if !fn.IsCallable() {
			return vm.Undefined, v.NewTypeError("Callback must be a function")
		}
		v.EnqueueCallJob(fn, append([]vm.Value(nil), args[1:]...)...)
		return vm.Undefined, nil
	})), vm.MethodFlags)

	return ctx.DefineGlobal("process", vm.ObjectValue(process))
}
