package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

// method installs a non-enumerable built-in method on obj.
func method(v *vm.VM, obj *vm.Object, name string, length int, fn vm.NativeFn) *vm.Object {
	f := v.NewNativeFunction(name, length, fn)
	obj.DefineOwn(vm.StrKey(name), vm.ObjectValue(f), vm.MethodFlags)
	return f
}

// symbolName is the function name of a method keyed by a symbol.
func symbolName(sym *vm.Symbol) string {
	if sym.Description == nil {
		return ""
	}
	return "[" + sym.Description.String() + "]"
}

func symbolMethod(v *vm.VM, obj *vm.Object, sym *vm.Symbol, length int, fn vm.NativeFn) *vm.Object {
	f := v.NewNativeFunction(symbolName(sym), length, fn)
	obj.DefineOwn(vm.SymKey(sym), vm.ObjectValue(f), vm.MethodFlags)
	return f
}

// getter installs a configurable accessor without a setter.
func getter(v *vm.VM, obj *vm.Object, name string, fn vm.NativeFn) *vm.Object {
	f := v.NewNativeFunction("get "+name, 0, fn)
	obj.DefineAccessorOwn(vm.StrKey(name), vm.ObjectValue(f), vm.Undefined, vm.Configurable)
	return f
}

func symbolGetter(v *vm.VM, obj *vm.Object, sym *vm.Symbol, fn vm.NativeFn) *vm.Object {
	f := v.NewNativeFunction("get "+symbolName(sym), 0, fn)
	obj.DefineAccessorOwn(vm.SymKey(sym), vm.ObjectValue(f), vm.Undefined, vm.Configurable)
	return f
}

// accessor installs a configurable getter/setter pair.
func accessor(v *vm.VM, obj *vm.Object, name string, get, set vm.NativeFn) {
	g := v.NewNativeFunction("get "+name, 0, get)
	s := v.NewNativeFunction("set "+name, 1, set)
	obj.DefineAccessorOwn(vm.StrKey(name), vm.ObjectValue(g), vm.ObjectValue(s), vm.Configurable)
}

// constant installs a non-writable, non-enumerable, non-configurable
// data property.
func constant(obj *vm.Object, name string, val vm.Value) {
	obj.DefineOwn(vm.StrKey(name), val, 0)
}

func toStringTag(obj *vm.Object, tag string) {
	obj.DefineOwn(vm.SymKey(vm.SymToStringTag), vm.NewStringValue(tag), vm.Configurable)
}

// constructor creates a built-in constructor wired to proto.
func constructor(v *vm.VM, name string, length int, proto *vm.Object, call vm.NativeFn, construct vm.NativeCtor) *vm.Object {
	ctor := v.NewNativeConstructor(name, length, call, construct)
	if proto != nil {
		ctor.DefineOwn(vm.StrKey("prototype"), vm.ObjectValue(proto), 0)
		proto.DefineOwn(vm.StrKey("constructor"), vm.ObjectValue(ctor), vm.MethodFlags)
	}
	return ctor
}

// speciesGetter installs get [Symbol.species]() { return this }.
func speciesGetter(v *vm.VM, ctor *vm.Object) {
	symbolGetter(v, ctor, vm.SymSpecies, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})
}

func defineGlobal(ctx *RuntimeContext, name string, o *vm.Object) error {
	return ctx.DefineGlobal(name, vm.ObjectValue(o))
}

// indexKey returns the property key of an integer index, which may lie
// outside the array index range.
func indexKey(i float64) vm.PropertyKey {
	if i >= 0 && i < math.MaxUint32 {
		return vm.IndexKey(uint32(i))
	}
	return vm.StrKey(vm.NumberToString(i))
}

// relativeIndex resolves a relative start or end argument against length:
// negative values count from the end and the result is clamped to
// [0, length]. undefined selects def.
func relativeIndex(v *vm.VM, arg vm.Value, length, def float64) (float64, error) {
	if arg.IsUndefined() {
		return def, nil
	}
	rel, err := v.ToIntegerOrInfinity(arg)
	if err != nil {
		return 0, err
	}
	if rel < 0 {
		return math.Max(length+rel, 0), nil
	}
	return math.Min(rel, length), nil
}

// requireCallable returns a TypeError unless fn is callable.
func requireCallable(v *vm.VM, fn vm.Value) error {
	if !fn.IsCallable() {
		return v.NewTypeError(vm.Inspect(fn) + " is not a function")
	}
	return nil
}

// thisObject returns this as an object or throws the usual TypeError for
// methods that need an object receiver.
func thisObject(v *vm.VM, this vm.Value, method string) (*vm.Object, error) {
	if !this.IsObject() {
		return nil, v.NewTypeErrorf("%s called on non-object", method)
	}
	return this.AsObject(), nil
}

// getProp reads obj[name].
func getProp(v *vm.VM, obj *vm.Object, name string) (vm.Value, error) {
	return obj.Get(v, vm.StrKey(name), vm.ObjectValue(obj))
}

// getIndex reads obj[i].
func getIndex(v *vm.VM, obj *vm.Object, i float64) (vm.Value, error) {
	return obj.Get(v, indexKey(i), vm.ObjectValue(obj))
}

func lengthOf(v *vm.VM, obj *vm.Object) (float64, error) {
	return v.LengthOfArrayLike(obj)
}

func str(s string) vm.Value { return vm.NewStringValue(s) }

func num(f float64) vm.Value { return vm.NumberValue(f) }

// enumerableOwn implements EnumerableOwnProperties for keys, values or
// entries.
func enumerableOwn(v *vm.VM, o *vm.Object, kind string) ([]vm.Value, error) {
	keys, err := o.OwnPropertyKeys(v)
	if err != nil {
		return nil, err
	}
	var out []vm.Value
	for _, k := range keys {
		if k.IsSymbol() {
			continue
		}
		desc, ok, err := o.GetOwnProperty(v, k)
		if err != nil {
			return nil, err
		}
		if !ok || !desc.Enumerable {
			continue
		}
		if kind == "keys" {
			out = append(out, k.ToValue())
			continue
		}
		val, err := o.Get(v, k, vm.ObjectValue(o))
		if err != nil {
			return nil, err
		}
		if kind == "values" {
			out = append(out, val)
			continue
		}
		out = append(out, vm.ObjectValue(v.NewArrayFromValues([]vm.Value{k.ToValue(), val})))
	}
	return out, nil
}

// iterate walks an iterable, calling fn for every value. When fn fails the
// iterator is closed before the error is returned.
func iterate(v *vm.VM, iterable vm.Value, fn func(val vm.Value) error) error {
	rec, err := v.GetIterator(iterable, false)
	if err != nil {
		return err
	}
	for {
		val, done, err := v.IteratorStepValue(rec)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := fn(val); err != nil {
			closeQuietly(v, rec.Iterator)
			return err
		}
	}
}

// closeQuietly calls the iterator's return method on behalf of an abrupt
// completion, ignoring what it does.
func closeQuietly(v *vm.VM, it *vm.Object) {
	ret, err := v.GetMethod(vm.ObjectValue(it), vm.StrKey("return"))
	if err != nil || ret.IsUndefined() {
		return
	}
	_, _ = v.Call(ret, vm.ObjectValue(it))
}

// isIntegral reports whether f is a finite integer.
func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f
}
