package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string {
	return "Function"
}

func (f *FunctionInitializer) Priority() int {
	return PriorityFunction
}

func (f *FunctionInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.FunctionPrototype
	proto.DefineOwn(vm.StrKey("length"), vm.IntValue(0), vm.Configurable)
	proto.DefineOwn(vm.StrKey("name"), str(""), vm.Configurable)

	ctor := dynamicFunctionConstructor(v, "Function", vm.KindNormal, proto)
	realm.FunctionConstructor = ctor

	method(v, proto, "apply", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := requireCallable(v, this); err != nil {
			return vm.Undefined, err
		}
		argArray := vm.Arg(args, 1)
		if argArray.IsNullish() {
			return v.Call(this, vm.Arg(args, 0))
		}
		list, err := v.CreateListFromArrayLike(argArray)
		if err != nil {
			return vm.Undefined, err
		}
		return v.Call(this, vm.Arg(args, 0), list...)
	})

	method(v, proto, "bind", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := requireCallable(v, this); err != nil {
			return vm.Undefined, err
		}
		target := this.AsObject()
		var bound []vm.Value
		if len(args) > 1 {
			bound = args[1:]
		}
		fn, err := v.BindFunction(target, vm.Arg(args, 0), bound)
		if err != nil {
			return vm.Undefined, err
		}
		length := 0.0
		has, err := v.HasOwnProperty(target, vm.StrKey("length"))
		if err != nil {
			return vm.Undefined, err
		}
		if has {
			l, err := getProp(v, target, "length")
			if err != nil {
				return vm.Undefined, err
			}
			if l.IsNumber() {
				switch n := l.AsNumber(); {
				case math.IsInf(n, 1):
					length = n
				case !math.IsInf(n, -1) && !math.IsNaN(n):
					length = math.Max(0, vm.ToIntegerOrInfinityF(n)-float64(len(bound)))
				}
			}
		}
		fn.DefineOwn(vm.StrKey("length"), vm.NumberValue(length), vm.Configurable)
		name, err := getProp(v, target, "name")
		if err != nil {
			return vm.Undefined, err
		}
		n := ""
		if name.IsString() {
			n = name.AsString().String()
		}
		fn.DefineOwn(vm.StrKey("name"), str("bound "+n), vm.Configurable)
		return vm.ObjectValue(fn), nil
	})

	method(v, proto, "call", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := requireCallable(v, this); err != nil {
			return vm.Undefined, err
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return v.Call(this, vm.Arg(args, 0), rest...)
	})

	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o := this.AsObject()
		if o == nil || !o.IsCallable() {
			return vm.Undefined, v.NewTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		if c := vm.ClosureOf(o); c != nil {
			if text := c.Template.SourceText(); text != "" {
				return str(text), nil
			}
		}
		return str("function " + vm.FunctionName(o) + "() { [native code] }"), nil
	})

	hasInstance := v.NewNativeFunction("[Symbol.hasInstance]", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := v.OrdinaryHasInstance(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})
	proto.DefineOwn(vm.SymKey(vm.SymHasInstance), vm.ObjectValue(hasInstance), 0)

	thrower := vm.ObjectValue(realm.ThrowTypeError)
	proto.DefineAccessorOwn(vm.StrKey("caller"), thrower, thrower, vm.Configurable)
	proto.DefineAccessorOwn(vm.StrKey("arguments"), thrower, thrower, vm.Configurable)

	return defineGlobal(ctx, "Function", ctor)
}

// dynamicFunctionConstructor creates Function or one of its generator and
// async siblings.
func dynamicFunctionConstructor(v *vm.VM, name string, kind vm.FunctionKind, proto *vm.Object) *vm.Object {
	ctor := constructor(v, name, 1, nil,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return v.CreateDynamicFunction(kind, args, nil)
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return v.CreateDynamicFunction(kind, args, newTarget)
		})
	ctor.DefineOwn(vm.StrKey("prototype"), vm.ObjectValue(proto), 0)
	flags := vm.MethodFlags
	if kind != vm.KindNormal {
		flags = vm.Configurable
	}
	proto.DefineOwn(vm.StrKey("constructor"), vm.ObjectValue(ctor), flags)
	return ctor
}
