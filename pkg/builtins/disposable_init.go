package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

// disposableStack is the internal state of DisposableStack and
// AsyncDisposableStack objects.
type disposableStack struct {
	cap      *vm.DisposeCapability
	async    bool
	disposed bool
}

func (s *disposableStack) Trace(visit func(vm.Value)) { s.cap.Trace(visit) }

// DisposableStackInitializer installs DisposableStack and
// AsyncDisposableStack.
type DisposableStackInitializer struct{}

func (d *DisposableStackInitializer) Name() string {
	return "DisposableStack"
}

func (d *DisposableStackInitializer) Priority() int {
	return PriorityDisposable
}

func (d *DisposableStackInitializer) InitRuntime(ctx *RuntimeContext) error {
	if err := initDisposableStack(ctx, false); err != nil {
		return err
	}
	return initDisposableStack(ctx, true)
}

func initDisposableStack(ctx *RuntimeContext, async bool) error {
	v := ctx.VM
	realm := ctx.Realm
	name, proto := "DisposableStack", realm.DisposableStackPrototype
	if async {
		name, proto = "AsyncDisposableStack", realm.AsyncDisposableStackPrototype
	}
	protoOf := func(r *vm.Realm) *vm.Object {
		if async {
			return r.AsyncDisposableStackPrototype
		}
		return r.DisposableStackPrototype
	}

	ctor := constructor(v, name, 0, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeErrorf("Constructor %s requires 'new'", name)
		},
		func(v *vm.VM, _ []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassDisposableStack, protoOf)
			if err != nil {
				return vm.Undefined, err
			}
			o.Internal = &disposableStack{cap: &vm.DisposeCapability{}, async: async}
			return vm.ObjectValue(o), nil
		})

	thisStack := func(v *vm.VM, this vm.Value, method string) (*disposableStack, error) {
		if o := this.AsObject(); o != nil {
			if s, ok := o.Internal.(*disposableStack); ok && s.async == async {
				return s, nil
			}
		}
		return nil, v.NewTypeErrorf("Method %s.prototype.%s called on incompatible receiver %s", name, method, vm.Inspect(this))
	}
	// pending fetches a stack that accepts new resources.
	pending := func(v *vm.VM, this vm.Value, method string) (*disposableStack, error) {
		s, err := thisStack(v, this, method)
		if err != nil {
			return nil, err
		}
		if s.disposed {
			return nil, v.NewReferenceError("Cannot call " + name + ".prototype." + method + " on an already-disposed " + name)
		}
		return s, nil
	}

	getter(v, proto, "disposed", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		s, err := thisStack(v, this, "disposed")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(s.disposed), nil
	})
	method(v, proto, "use", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := pending(v, this, "use")
		if err != nil {
			return vm.Undefined, err
		}
		val := vm.Arg(args, 0)
		if err := v.AddDisposableResource(s.cap, val, async); err != nil {
			return vm.Undefined, err
		}
		return val, nil
	})
	method(v, proto, "adopt", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := pending(v, this, "adopt")
		if err != nil {
			return vm.Undefined, err
		}
		fn := vm.Arg(args, 1)
		if err := requireCallable(v, fn); err != nil {
			return vm.Undefined, err
		}
		s.cap.AdoptResource(vm.Arg(args, 0), fn, async)
		return vm.Arg(args, 0), nil
	})
	method(v, proto, "defer", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := pending(v, this, "defer")
		if err != nil {
			return vm.Undefined, err
		}
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return vm.Undefined, err
		}
		s.cap.DeferCallback(fn, async)
		return vm.Undefined, nil
	})
	method(v, proto, "move", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		s, err := pending(v, this, "move")
		if err != nil {
			return vm.Undefined, err
		}
		o := v.NewObjectClass(vm.ClassDisposableStack, protoOf(realm))
		o.Internal = &disposableStack{cap: s.cap.Move(), async: async}
		s.disposed = true
		return vm.ObjectValue(o), nil
	})

	var dispose *vm.Object
	if async {
		dispose = method(v, proto, "disposeAsync", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			s, err := thisStack(v, this, "disposeAsync")
			if err != nil {
				cap, cerr := v.NewPromiseCapability(vm.ObjectValue(realm.PromiseConstructor))
				if cerr != nil {
					return vm.Undefined, cerr
				}
				if err := v.RejectCapability(cap, v.ThrownValue(err)); err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(cap.Promise), nil
			}
			if s.disposed {
				p, err := v.PromiseResolve(realm.PromiseConstructor, vm.Undefined)
				if err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(p), nil
			}
			s.disposed = true
			return vm.ObjectValue(v.DisposeResourcesAsync(s.cap, nil)), nil
		})
		proto.DefineOwn(vm.SymKey(vm.SymAsyncDispose), vm.ObjectValue(dispose), vm.MethodFlags)
	} else {
		dispose = method(v, proto, "dispose", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			s, err := thisStack(v, this, "dispose")
			if err != nil {
				return vm.Undefined, err
			}
			if s.disposed {
				return vm.Undefined, nil
			}
			s.disposed = true
			return vm.Undefined, v.DisposeResources(s.cap, nil)
		})
		proto.DefineOwn(vm.SymKey(vm.SymDispose), vm.ObjectValue(dispose), vm.MethodFlags)
	}
	toStringTag(proto, name)

	return defineGlobal(ctx, name, ctor)
}
