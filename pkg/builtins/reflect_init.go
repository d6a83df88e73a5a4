package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

type ReflectInitializer struct{}

func (r *ReflectInitializer) Name() string {
	return "Reflect"
}

func (r *ReflectInitializer) Priority() int {
	return PriorityReflect
}

func (r *ReflectInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	reflect := v.NewObject()

	target := func(v *vm.VM, args []vm.Value, name string) (*vm.Object, error) {
		o := vm.Arg(args, 0).AsObject()
		if o == nil {
			return nil, v.NewTypeErrorf("Reflect.%s called on non-object", name)
		}
		return o, nil
	}
	keyed := func(name string, length int, body func(v *vm.VM, o *vm.Object, key vm.PropertyKey, args []vm.Value) (vm.Value, error)) {
		method(v, reflect, name, length, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := target(v, args, name)
			if err != nil {
				return vm.Undefined, err
			}
			key, err := v.ToPropertyKey(vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			return body(v, o, key, args)
		})
	}

	method(v, reflect, "apply", 3, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return vm.Undefined, err
		}
		list, err := v.CreateListFromArrayLike(vm.Arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		return v.Call(fn, vm.Arg(args, 1), list...)
	})
	method(v, reflect, "construct", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		fn := vm.Arg(args, 0)
		if !fn.IsConstructor() {
			return vm.Undefined, v.NewTypeErrorf("%s is not a constructor", vm.Inspect(fn))
		}
		newTarget := fn
		if len(args) > 2 {
			newTarget = args[2]
			if !newTarget.IsConstructor() {
				return vm.Undefined, v.NewTypeErrorf("%s is not a constructor", vm.Inspect(newTarget))
			}
		}
		list, err := v.CreateListFromArrayLike(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return v.Construct(fn, list, newTarget)
	})
	keyed("defineProperty", 3, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, args []vm.Value) (vm.Value, error) {
		desc, err := v.ToPropertyDescriptor(vm.Arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := o.DefineOwnProperty(v, key, desc)
		return vm.BooleanValue(ok), err
	})
	keyed("deleteProperty", 2, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, _ []vm.Value) (vm.Value, error) {
		ok, err := o.Delete(v, key)
		return vm.BooleanValue(ok), err
	})
	keyed("get", 2, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, args []vm.Value) (vm.Value, error) {
		receiver := vm.ObjectValue(o)
		if len(args) > 2 {
			receiver = args[2]
		}
		return o.Get(v, key, receiver)
	})
	keyed("getOwnPropertyDescriptor", 2, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, _ []vm.Value) (vm.Value, error) {
		desc, ok, err := o.GetOwnProperty(v, key)
		if err != nil || !ok {
			return vm.Undefined, err
		}
		return vm.ObjectValue(v.FromPropertyDescriptor(desc)), nil
	})
	method(v, reflect, "getPrototypeOf", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := target(v, args, "getPrototypeOf")
		if err != nil {
			return vm.Undefined, err
		}
		p, err := o.GetPrototypeOf(v)
		if err != nil || p == nil {
			return vm.Null, err
		}
		return vm.ObjectValue(p), nil
	})
	keyed("has", 2, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, _ []vm.Value) (vm.Value, error) {
		ok, err := o.HasProperty(v, key)
		return vm.BooleanValue(ok), err
	})
	method(v, reflect, "isExtensible", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := target(v, args, "isExtensible")
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := o.IsExtensible(v)
		return vm.BooleanValue(ok), err
	})
	method(v, reflect, "ownKeys", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := target(v, args, "ownKeys")
		if err != nil {
			return vm.Undefined, err
		}
		keys, err := o.OwnPropertyKeys(v)
		if err != nil {
			return vm.Undefined, err
		}
		out := make([]vm.Value, len(keys))
		for i, k := range keys {
			out[i] = k.ToValue()
		}
		return vm.ObjectValue(v.NewArrayFromValues(out)), nil
	})
	method(v, reflect, "preventExtensions", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := target(v, args, "preventExtensions")
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := o.PreventExtensions(v)
		return vm.BooleanValue(ok), err
	})
	keyed("set", 3, func(v *vm.VM, o *vm.Object, key vm.PropertyKey, args []vm.Value) (vm.Value, error) {
		receiver := vm.ObjectValue(o)
		if len(args) > 3 {
			receiver = args[3]
		}
		ok, err := o.Set(v, key, vm.Arg(args, 2), receiver)
		return vm.BooleanValue(ok), err
	})
	method(v, reflect, "setPrototypeOf", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := target(v, args, "setPrototypeOf")
		if err != nil {
			return vm.Undefined, err
		}
		p := vm.Arg(args, 1)
		if !p.IsObject() && !p.IsNull() {
			return vm.Undefined, v.NewTypeError("Object prototype may only be an Object or null: " + vm.Inspect(p))
		}
		ok, err := o.SetPrototypeOf(v, p.AsObject())
		return vm.BooleanValue(ok), err
	})
	toStringTag(reflect, "Reflect")

	ctx.Realm.SetIntrinsic("Reflect", reflect)
	return defineGlobal(ctx, "Reflect", reflect)
}

type ProxyInitializer struct{}

func (p *ProxyInitializer) Name() string {
	return "Proxy"
}

func (p *ProxyInitializer) Priority() int {
	return PriorityReflect
}

func (p *ProxyInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM

	ctor := constructor(v, "Proxy", 2, nil,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor Proxy requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, _ *vm.Object) (vm.Value, error) {
			o, err := v.NewProxy(vm.Arg(args, 0), vm.Arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	method(v, ctor, "revocable", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		proxy, err := v.NewProxy(vm.Arg(args, 0), vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		revoke := v.NewNativeFunction("", 0, func(_ *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			vm.RevokeProxy(proxy)
			return vm.Undefined, nil
		})
		revoke.Internal.(*vm.NativeFunction).Data = proxy
		res := v.NewObject()
		res.SetOwn("proxy", vm.ObjectValue(proxy))
		res.SetOwn("revoke", vm.ObjectValue(revoke))
		return vm.ObjectValue(res), nil
	})

	return defineGlobal(ctx, "Proxy", ctor)
}
