package vm

import (
	"github.com/skua-js/skua/pkg/source"
)

// FunctionKind selects calling convention and construction behaviour.
type FunctionKind uint8

const (
	KindNormal FunctionKind = iota
	KindArrow
	KindMethod
	KindGetter
	KindSetter
	KindClassConstructor
	KindDerivedConstructor
	KindGenerator
	KindAsync
	KindAsyncArrow
	KindAsyncGenerator
	// KindFieldInit runs class field initializers and static blocks with
	// the instance (or class) as this.
	KindFieldInit
	KindScript
	KindModule
	KindEval
)

func (k FunctionKind) IsArrow() bool { return k == KindArrow || k == KindAsyncArrow }
func (k FunctionKind) IsAsync() bool {
	return k == KindAsync || k == KindAsyncArrow || k == KindAsyncGenerator
}
func (k FunctionKind) IsGenerator() bool { return k == KindGenerator || k == KindAsyncGenerator }
func (k FunctionKind) IsClassConstructor() bool {
	return k == KindClassConstructor || k == KindDerivedConstructor
}

// ExceptionHandler covers the code range [Start, End). When a throw lands
// inside it, environments are popped back to EnvDepth, the thrown value is
// stored in Reg and execution continues at Handler.
type ExceptionHandler struct {
	Start, End int
	Handler    int
	Reg        int
	EnvDepth   int
}

// PosEntry maps the instruction starting at PC to a source position.
type PosEntry struct {
	PC        int
	Line, Col int
}

// FunctionTemplate is the compiled form of a function body. It is
// immutable and shared by every closure created from it.
type FunctionTemplate struct {
	Chunk
	Name       string
	Kind       FunctionKind
	Functions  []*FunctionTemplate
	Scopes     []*ScopeInfo
	NumRegs    int
	NumParams  int // registers 0..NumParams-1 receive the arguments
	Length     int // the function's length property
	Strict     bool
	Source     *source.SourceFile
	Start, End int // source range of the function text

	UsesArguments bool
	HasDirectEval bool
	// ArgSlots maps argument indices to slots of the function
	// environment for mapped arguments objects; -1 is unmapped.
	ArgSlots []int32
	// Async marks a module body containing top-level await.
	Async bool
	// TemplateSites lists the tagged template literals of the body; the
	// realm caches one strings array per site.
	TemplateSites []*TemplateSite
	// Decls lists the declarations instantiated by OpDeclareGlobals and
	// OpDeclareEvalVars for script and eval code.
	Decls *Declarations
	// EvalFlags describes the context direct eval code inside this
	// function is compiled for.
	EvalFlags EvalFlags
	// Module is set on the top-level template of a module.
	Module *ModuleRecord
}

// Declarations are the top-level bindings of script or eval code.
type Declarations struct {
	Vars      []string
	Functions []string
	Lexical   []string
	Consts    []bool // parallel to Lexical
}

// TemplateSite identifies one tagged template literal for caching of its
// strings array.
type TemplateSite struct {
	Cooked []Value
	Raw    []Value
}

// SourceText returns the text a function's toString reports.
func (t *FunctionTemplate) SourceText() string {
	if t.Source == nil || t.End <= t.Start {
		return ""
	}
	return t.Source.Slice(t.Start, t.End)
}

// PositionAt returns the source position of the instruction at pc.
func (c *Chunk) PositionAt(pc int) (line, col int) {
	lo, hi := 0, len(c.Positions)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if c.Positions[mid].PC <= pc {
			line, col = c.Positions[mid].Line, c.Positions[mid].Col
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return line, col
}

// Closure is the internal slot set of a script function object.
type Closure struct {
	Template *FunctionTemplate
	Env      *Env
	Home     *Object
	// Fields holds the instance field initializer of a class constructor.
	Fields *Object
	Realm *Realm
}

// NativeFn is the signature of host and built-in functions.
type NativeFn func(vm *VM, this Value, args []Value) (Value, error)

// NativeCtor implements [[Construct]] for a native function.
type NativeCtor func(vm *VM, args []Value, newTarget *Object) (Value, error)

// NativeFunction is the internal slot set of a built-in function object.
type NativeFunction struct {
	Name      string
	Call      NativeFn
	Construct NativeCtor
	Realm     *Realm
	// Data is free for the implementation, e.g. a promise resolving
	// function's shared state.
	Data any
}

// BoundFunction is the internal slot set of a bound function exotic
// object.
type BoundFunction struct {
	Target *Object
	This   Value
	Args   []Value
}

// Arg returns args[i] or undefined.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// NewNativeFunction creates a non-constructor built-in with the given name
// and length in the current realm.
func (vm *VM) NewNativeFunction(name string, length int, fn NativeFn) *Object {
	o := vm.NewObjectClass(ClassFunction, vm.realm.FunctionPrototype)
	o.Internal = &NativeFunction{Name: name, Call: fn, Realm: vm.realm}
	o.SetCallable(false)
	o.props.put(StrKey("length"), IntValue(length), Undefined, Configurable)
	o.props.put(StrKey("name"), NewStringValue(name), Undefined, Configurable)
	return o
}

// NewNativeConstructor creates a built-in constructor. call handles plain
// calls; it may be nil to make calls throw.
func (vm *VM) NewNativeConstructor(name string, length int, call NativeFn, construct NativeCtor) *Object {
	if call == nil {
		call = func(vm *VM, this Value, args []Value) (Value, error) {
			return Undefined, vm.NewTypeError("Constructor " + name + " requires 'new'")
		}
	}
	o := vm.NewNativeFunction(name, length, call)
	o.Internal.(*NativeFunction).Construct = construct
	o.SetCallable(true)
	return o
}

// functionNameForKey implements the name part of SetFunctionName.
func functionNameForKey(key PropertyKey) string {
	if sym := key.Symbol(); sym != nil {
		if sym.Private {
			return sym.Description.String()
		}
		if sym.Description == nil {
			return ""
		}
		return "[" + sym.Description.String() + "]"
	}
	return key.Name()
}

// SetFunctionName defines the name property of a freshly created function.
func (vm *VM) SetFunctionName(fn *Object, key PropertyKey, prefix string) {
	name := functionNameForKey(key)
	if prefix != "" {
		if name == "" {
			name = prefix
		} else {
			name = prefix + " " + name
		}
	}
	fn.props.put(StrKey("name"), NewStringValue(name), Undefined, Configurable)
	if nf, ok := fn.Internal.(*NativeFunction); ok {
		nf.Name = name
	}
}

// MakeClosure instantiates tmpl over env.
func (vm *VM) MakeClosure(tmpl *FunctionTemplate, env *Env, home *Object) *Object {
	r := vm.realm
	var proto *Object
	switch tmpl.Kind {
	case KindGenerator:
		proto = r.GeneratorFunctionPrototype
	case KindAsync, KindAsyncArrow:
		proto = r.AsyncFunctionPrototype
	case KindAsyncGenerator:
		proto = r.AsyncGeneratorFunctionPrototype
	default:
		proto = r.FunctionPrototype
	}
	o := vm.NewObjectClass(ClassFunction, proto)
	o.Internal = &Closure{Template: tmpl, Env: env, Home: home, Realm: r}
	switch tmpl.Kind {
	case KindNormal:
		o.SetCallable(true)
	case KindClassConstructor, KindDerivedConstructor:
		o.SetCallable(true)
		o.setFlag(objClassConstructor)
	default:
		o.SetCallable(false)
	}
	o.props.put(StrKey("length"), IntValue(tmpl.Length), Undefined, Configurable)
	o.props.put(StrKey("name"), NewStringValue(tmpl.Name), Undefined, Configurable)
	switch tmpl.Kind {
	case KindNormal:
		p := vm.NewObject()
		p.props.put(StrKey("constructor"), ObjectValue(o), Undefined, MethodFlags)
		o.props.put(StrKey("prototype"), ObjectValue(p), Undefined, Writable)
	case KindGenerator:
		p := vm.NewObjectClass(ClassObject, r.GeneratorPrototype)
		o.props.put(StrKey("prototype"), ObjectValue(p), Undefined, Writable)
	case KindAsyncGenerator:
		p := vm.NewObjectClass(ClassObject, r.AsyncGeneratorPrototype)
		o.props.put(StrKey("prototype"), ObjectValue(p), Undefined, Writable)
	}
	return o
}

// ClosureOf returns the script function slots of o, or nil.
func ClosureOf(o *Object) *Closure {
	if o == nil {
		return nil
	}
	c, _ := o.Internal.(*Closure)
	return c
}

// BindFunction implements BoundFunctionCreate.
func (vm *VM) BindFunction(target *Object, this Value, args []Value) (*Object, error) {
	proto, err := target.GetPrototypeOf(vm)
	if err != nil {
		return nil, err
	}
	o := vm.NewObjectClass(ClassBoundFunction, proto)
	o.Internal = &BoundFunction{Target: target, This: this, Args: append([]Value(nil), args...)}
	o.SetCallable(target.IsConstructor())
	return o, nil
}

// GetPrototypeFromConstructor reads newTarget.prototype, falling back to
// the intrinsic picked by fallback from newTarget's realm.
func (vm *VM) GetPrototypeFromConstructor(newTarget *Object, fallback func(*Realm) *Object) (*Object, error) {
	if newTarget == nil {
		return fallback(vm.realm), nil
	}
	p, err := newTarget.Get(vm, StrKey("prototype"), ObjectValue(newTarget))
	if err != nil {
		return nil, err
	}
	if p.IsObject() {
		return p.AsObject(), nil
	}
	realm := vm.functionRealm(newTarget)
	if realm == nil {
		realm = vm.realm
	}
	return fallback(realm), nil
}

// OrdinaryCreateFromConstructor creates an object of class c whose
// prototype comes from newTarget.
func (vm *VM) OrdinaryCreateFromConstructor(newTarget *Object, c Class, fallback func(*Realm) *Object) (*Object, error) {
	proto, err := vm.GetPrototypeFromConstructor(newTarget, fallback)
	if err != nil {
		return nil, err
	}
	return vm.NewObjectClass(c, proto), nil
}

// functionRealm implements GetFunctionRealm.
func (vm *VM) functionRealm(fn *Object) *Realm {
	for fn != nil {
		switch in := fn.Internal.(type) {
		case *Closure:
			return in.Realm
		case *NativeFunction:
			return in.Realm
		case *BoundFunction:
			fn = in.Target
			continue
		case *ProxyData:
			if in.Handler == nil {
				return vm.realm
			}
			fn = in.Target
			continue
		}
		break
	}
	return vm.realm
}

// FunctionName returns a callable's name for diagnostics.
func FunctionName(o *Object) string {
	switch in := o.Internal.(type) {
	case *Closure:
		return in.Template.Name
	case *NativeFunction:
		return in.Name
	case *BoundFunction:
		return "bound " + FunctionName(in.Target)
	}
	return ""
}
