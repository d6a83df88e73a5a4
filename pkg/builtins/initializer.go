package builtins

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/skua-js/skua/pkg/vm"
)

// BuiltinInitializer is implemented by each builtin module
type BuiltinInitializer interface {
	// Name returns the module name (e.g., "Array", "String", "Math")
	Name() string

	// Priority returns initialization order (lower = earlier)
	Priority() int

	// InitRuntime installs the module's intrinsics into the realm
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything needed for runtime initialization
type RuntimeContext struct {
	// The VM instance
	VM *vm.VM
	// The realm being populated; its prototypes already exist
	Realm *vm.Realm

	// Stdout and Stderr receive console output
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Define a global value
	DefineGlobal func(name string, value vm.Value) error
}

// Options configure Install.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Extra initializers run after the standard ones with the same
	// priority rules.
	Extra []BuiltinInitializer
}

// Priority constants for initialization order
const (
	PriorityObject      = 0   // Object must be first (base prototype)
	PriorityFunction    = 1   // Function second (inherits from Object)
	PriorityIterator    = 2   // Iterator types (needed for iterables)
	PriorityArray       = 3   // Array third (inherits from Object, implements Iterable)
	PriorityGenerator   = 5   // Generator objects and their function constructors
	PriorityString      = 10  // String primitives
	PriorityNumber      = 11  // Number primitives
	PriorityBoolean     = 12  // Boolean primitives
	PriorityRegExp      = 13  // RegExp constructor
	PrioritySymbol      = 14  // Symbol and the well-known symbols
	PriorityBigInt      = 15  // BigInt primitives
	PriorityError       = 20  // Error family
	PriorityPromise     = 30  // Promise constructor
	PriorityCollections = 40  // Map, Set and the weak collections
	PriorityBuffers     = 50  // ArrayBuffer, typed arrays, DataView
	PriorityReflect     = 60  // Reflect and Proxy
	PriorityDisposable  = 70  // DisposableStack, AsyncDisposableStack
	PriorityMath        = 100 // Math object
	PriorityJSON        = 101 // JSON object
	PriorityConsole     = 102 // Console object
	PriorityDate        = 103 // Date constructor
	PriorityIntl        = 104 // Intl namespace
	PriorityGlobals     = 200 // Global functions and value properties
)

// GetStandardInitializers returns all built-in initializers sorted by priority
func GetStandardInitializers() []BuiltinInitializer {
	initializers := []BuiltinInitializer{
		&ObjectInitializer{},
		&FunctionInitializer{},
		&IteratorInitializer{},
		&ArrayInitializer{},
		&GeneratorInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&BooleanInitializer{},
		&RegExpInitializer{},
		&SymbolInitializer{},
		&BigIntInitializer{},
		&ErrorInitializer{},
		&PromiseInitializer{},
		&MapInitializer{},
		&SetInitializer{},
		&WeakInitializer{},
		&ArrayBufferInitializer{},
		&TypedArrayInitializer{},
		&DataViewInitializer{},
		&ReflectInitializer{},
		&ProxyInitializer{},
		&DisposableStackInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&ConsoleInitializer{},
		&DateInitializer{},
		&IntlInitializer{},
		&GlobalsInitializer{},
	}
	sortInitializers(initializers)
	return initializers
}

func sortInitializers(initializers []BuiltinInitializer) {
	sort.SliceStable(initializers, func(i, j int) bool {
		return initializers[i].Priority() < initializers[j].Priority()
	})
}

// Install populates the realm of v with every standard intrinsic.
func Install(v *vm.VM, opts Options) error {
	realm := v.Realm()
	ctx := &RuntimeContext{
		VM:     v,
		Realm:  realm,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Logger: v.Logger(),
		DefineGlobal: func(name string, value vm.Value) error {
			realm.GlobalObject.DefineOwn(vm.StrKey(name), value, vm.MethodFlags)
			return nil
		},
	}
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}
	if ctx.Stderr == nil {
		ctx.Stderr = os.Stderr
	}
	initializers := GetStandardInitializers()
	if len(opts.Extra) > 0 {
		initializers = append(initializers, opts.Extra...)
		sortInitializers(initializers)
	}
	for _, init := range initializers {
		if err := init.InitRuntime(ctx); err != nil {
			return fmt.Errorf("builtins: initializing %s: %w", init.Name(), err)
		}
		ctx.Logger.Debug("builtins.init", "name", init.Name())
	}
	return nil
}
