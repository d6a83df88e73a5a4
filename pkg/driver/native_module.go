package driver

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/skua-js/skua/pkg/modules"
	"github.com/skua-js/skua/pkg/vm"
)

// ModuleBuilder provides the declarative API for building native modules.
// Like builtin initializers it creates runtime values directly.
type ModuleBuilder struct {
	vm     *vm.VM
	conv   *ValueConverter
	names  []string
	values []vm.Value
	err    error
}

// NamespaceBuilder provides API for building namespaces within modules
type NamespaceBuilder struct {
	vm   *vm.VM
	conv *ValueConverter
	obj  *vm.Object
	err  error
}

// NativeModule represents a module declared in Go code. Its exports are
// built once per engine, the first time the module is imported.
type NativeModule struct {
	name    string
	builder func(*ModuleBuilder)
}

// NativeModuleResolver resolves native modules declared in Go. It also
// provides their records to the loader, so they are never parsed.
type NativeModuleResolver struct {
	mutex    sync.RWMutex
	modules  map[string]*NativeModule
	priority int
}

var (
	_ modules.ModuleResolver = (*NativeModuleResolver)(nil)
	_ modules.RecordProvider = (*NativeModuleResolver)(nil)
)

// NewNativeModuleResolver creates an empty resolver.
func NewNativeModuleResolver() *NativeModuleResolver {
	return &NativeModuleResolver{
		modules:  make(map[string]*NativeModule),
		priority: 10, // Native modules shadow files
	}
}

func (r *NativeModuleResolver) Name() string { return "Native" }

// CanResolve accepts exactly the registered module names.
func (r *NativeModuleResolver) CanResolve(specifier string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.modules[specifier]
	return ok
}

func (r *NativeModuleResolver) Priority() int { return r.priority }

// RegisterModule makes module importable under name.
func (r *NativeModuleResolver) RegisterModule(name string, module *NativeModule) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.modules[name] = module
}

// Names returns the registered module names, sorted.
func (r *NativeModuleResolver) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve resolves a module specifier to a concrete module
func (r *NativeModuleResolver) Resolve(specifier string, fromPath string) (*modules.ResolvedModule, error) {
	if !r.CanResolve(specifier) {
		return nil, fmt.Errorf("native module not found: %s", specifier)
	}
	return &modules.ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: specifier,
		Resolver:     r.Name(),
		URL:          specifier,
	}, nil
}

// ModuleRecord builds the synthetic module for a native module.
func (r *NativeModuleResolver) ModuleRecord(v *vm.VM, resolvedPath string) (*vm.ModuleRecord, error) {
	r.mutex.RLock()
	nm := r.modules[resolvedPath]
	r.mutex.RUnlock()
	if nm == nil {
		return nil, fmt.Errorf("native module not found: %s", resolvedPath)
	}
	m := &ModuleBuilder{vm: v, conv: NewValueConverter(v)}
	nm.builder(m)
	if m.err != nil {
		return nil, fmt.Errorf("native module %s: %w", nm.name, m.err)
	}
	return v.NewSyntheticModule(resolvedPath, m.names, m.values, nil), nil
}

// DeclareModule registers a native module importable as name.
func (e *Engine) DeclareModule(name string, builder func(m *ModuleBuilder)) *NativeModule {
	nm := &NativeModule{name: name, builder: builder}
	e.natives.RegisterModule(name, nm)
	return nm
}

// Name returns the specifier the module is imported by.
func (nm *NativeModule) Name() string { return nm.name }

func (m *ModuleBuilder) export(name string, v vm.Value) *ModuleBuilder {
	for i, n := range m.names {
		if n == name {
			m.values[i] = v
			return m
		}
	}
	m.names = append(m.names, name)
	m.values = append(m.values, v)
	return m
}

// Const exports a Go value converted with the ValueConverter.
func (m *ModuleBuilder) Const(name string, value any) *ModuleBuilder {
	v, err := m.conv.ToVM(value)
	if err != nil && m.err == nil {
		m.err = fmt.Errorf("export %s: %w", name, err)
	}
	return m.export(name, v)
}

// Value exports a script value as is.
func (m *ModuleBuilder) Value(name string, value vm.Value) *ModuleBuilder {
	return m.export(name, value)
}

// Function exports a native function.
func (m *ModuleBuilder) Function(name string, arity int, fn vm.NativeFn) *ModuleBuilder {
	return m.export(name, vm.ObjectValue(m.vm.NewNativeFunction(name, arity, fn)))
}

// GoFunction exports an arbitrary Go function. Arguments and results
// are converted by reflection; a trailing error result throws.
func (m *ModuleBuilder) GoFunction(name string, fn any) *ModuleBuilder {
	v, err := m.conv.wrapGoFunction(name, fn)
	if err != nil && m.err == nil {
		m.err = fmt.Errorf("export %s: %w", name, err)
	}
	return m.export(name, v)
}

// Namespace exports a plain object populated by builder.
func (m *ModuleBuilder) Namespace(name string, builder func(ns *NamespaceBuilder)) *ModuleBuilder {
	ns := &NamespaceBuilder{vm: m.vm, conv: m.conv, obj: m.vm.NewObject()}
	builder(ns)
	if ns.err != nil && m.err == nil {
		m.err = fmt.Errorf("namespace %s: %w", name, ns.err)
	}
	return m.export(name, vm.ObjectValue(ns.obj))
}

// Default sets the default export.
func (m *ModuleBuilder) Default(value any) *ModuleBuilder {
	return m.Const("default", value)
}

// Const adds a converted Go value to the namespace.
func (ns *NamespaceBuilder) Const(name string, value any) *NamespaceBuilder {
	v, err := ns.conv.ToVM(value)
	if err != nil && ns.err == nil {
		ns.err = fmt.Errorf("%s: %w", name, err)
	}
	ns.obj.DefineOwn(vm.StrKey(name), v, vm.Enumerable)
	return ns
}

// Function adds a native function to the namespace.
func (ns *NamespaceBuilder) Function(name string, arity int, fn vm.NativeFn) *NamespaceBuilder {
	ns.obj.DefineOwn(vm.StrKey(name), vm.ObjectValue(ns.vm.NewNativeFunction(name, arity, fn)), vm.MethodFlags)
	return ns
}

// ValueConverter handles conversion between Go values and VM values
type ValueConverter struct {
	vm *vm.VM
}

func NewValueConverter(v *vm.VM) *ValueConverter {
	return &ValueConverter{vm: v}
}

var (
	valueType = reflect.TypeOf(vm.Value{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// ToVM converts a Go value. Structs export their fields under their json
// tag names; maps need string keys.
func (vc *ValueConverter) ToVM(goValue any) (vm.Value, error) {
	if goValue == nil {
		return vm.Null, nil
	}
	if v, ok := goValue.(vm.Value); ok {
		return v, nil
	}
	if fn, ok := goValue.(vm.NativeFn); ok {
		return vm.ObjectValue(vc.vm.NewNativeFunction("", 0, fn)), nil
	}
	return vc.reflectToVM(reflect.ValueOf(goValue))
}

func (vc *ValueConverter) reflectToVM(rv reflect.Value) (vm.Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return vm.Null, nil
	case reflect.Bool:
		return vm.BooleanValue(rv.Bool()), nil
	case reflect.String:
		return vm.NewStringValue(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.NumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.NumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.NumberValue(rv.Float()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return vm.Null, nil
		}
		if rv.Type() == valueType {
			return rv.Interface().(vm.Value), nil
		}
		return vc.reflectToVM(rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return vm.Null, nil
		}
		vals := make([]vm.Value, rv.Len())
		for i := range vals {
			v, err := vc.reflectToVM(rv.Index(i))
			if err != nil {
				return vm.Undefined, err
			}
			vals[i] = v
		}
		return vm.ObjectValue(vc.vm.NewArrayFromValues(vals)), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return vm.Undefined, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		obj := vc.vm.NewObject()
		for _, k := range keys {
			v, err := vc.reflectToVM(rv.MapIndex(k))
			if err != nil {
				return vm.Undefined, err
			}
			obj.SetOwn(k.String(), v)
		}
		return vm.ObjectValue(obj), nil
	case reflect.Struct:
		if rv.Type() == valueType {
			return rv.Interface().(vm.Value), nil
		}
		obj := vc.vm.NewObject()
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, omitEmpty, ok := jsonPropertyName(field)
			if !ok || omitEmpty && rv.Field(i).IsZero() {
				continue
			}
			v, err := vc.reflectToVM(rv.Field(i))
			if err != nil {
				return vm.Undefined, err
			}
			obj.SetOwn(name, v)
		}
		return vm.ObjectValue(obj), nil
	case reflect.Func:
		return vc.wrapGoFunction("", rv.Interface())
	}
	return vm.Undefined, fmt.Errorf("unsupported Go type %s", rv.Type())
}

// jsonPropertyName picks the property name of an exported struct field
// the way encoding/json does.
func jsonPropertyName(field reflect.StructField) (name string, omitEmpty, ok bool) {
	if !field.IsExported() {
		return "", false, false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, strings.Contains(opts, "omitempty"), true
}

// FromVM converts a script value to the Go type t.
func (vc *ValueConverter) FromVM(v vm.Value, t reflect.Type) (reflect.Value, error) {
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	// Omitted optional arguments become the zero value.
	if v.IsUndefined() && t.Kind() != reflect.Interface {
		return reflect.Zero(t), nil
	}
	switch t.Kind() {
	case reflect.String:
		s, err := vc.vm.ToGoString(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Bool:
		return reflect.ValueOf(v.ToBoolean()).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := vc.vm.ToIntegerOrInfinity(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(int64(f)).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := vc.vm.ToIntegerOrInfinity(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if f < 0 {
			return reflect.Value{}, vc.vm.NewRangeErrorf("%v is not a valid unsigned integer", f)
		}
		return reflect.ValueOf(uint64(f)).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		f, err := vc.vm.ToNumber(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return vc.exportAny(v, t), nil
		}
	}
	return reflect.Value{}, vc.vm.NewTypeErrorf("cannot convert %s to Go type %s", vm.DescribeThrown(v), t)
}

// exportAny maps primitives to their natural Go types and passes
// objects through as vm.Value.
func (vc *ValueConverter) exportAny(v vm.Value, t reflect.Type) reflect.Value {
	var x any
	switch {
	case v.IsNullish():
		return reflect.Zero(t)
	case v.IsBoolean():
		x = v.AsBoolean()
	case v.IsNumber():
		x = v.AsNumber()
	case v.IsString():
		x = v.AsString().String()
	default:
		x = v
	}
	return reflect.ValueOf(&x).Elem()
}

// wrapGoFunction adapts fn to a native function. Missing arguments are
// converted from undefined.
func (vc *ValueConverter) wrapGoFunction(name string, fn any) (vm.Value, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return vm.Undefined, fmt.Errorf("expected a function, got %s", ft)
	}
	nout := ft.NumOut()
	if nout > 2 || nout == 2 && !ft.Out(1).Implements(errorType) {
		return vm.Undefined, fmt.Errorf("unsupported function results in %s", ft)
	}
	arity := ft.NumIn()
	if ft.IsVariadic() {
		arity--
	}
	native := func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		in := make([]reflect.Value, 0, len(args))
		for i := 0; i < ft.NumIn(); i++ {
			pt := ft.In(i)
			if ft.IsVariadic() && i == ft.NumIn()-1 {
				for _, a := range args[min(i, len(args)):] {
					rv, err := vc.FromVM(a, pt.Elem())
					if err != nil {
						return vm.Undefined, err
					}
					in = append(in, rv)
				}
				break
			}
			rv, err := vc.FromVM(vm.Arg(args, i), pt)
			if err != nil {
				return vm.Undefined, err
			}
			in = append(in, rv)
		}
		out := fv.Call(in)
		if len(out) > 0 && ft.Out(len(out)-1).Implements(errorType) {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return vm.Undefined, v.Throw(vm.ObjectValue(v.NewError(vm.ErrError, err.Error())))
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return vm.Undefined, nil
		}
		return vc.reflectToVM(out[0])
	}
	return vm.ObjectValue(vc.vm.NewNativeFunction(name, arity, native)), nil
}
