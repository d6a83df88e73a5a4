package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string {
	return "Promise"
}

func (p *PromiseInitializer) Priority() int {
	return PriorityPromise
}

func (p *PromiseInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.PromisePrototype

	ctor := constructor(v, "Promise", 1, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Promise constructor cannot be invoked without 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			executor := vm.Arg(args, 0)
			if !executor.IsCallable() {
				return vm.Undefined, v.NewTypeErrorf("Promise resolver %s is not a function", vm.Inspect(executor))
			}
			p, err := v.NewPromiseFromConstructor(newTarget)
			if err != nil {
				return vm.Undefined, err
			}
			resolve, reject := v.CreateResolvingFunctions(p)
			if _, err := v.Call(executor, vm.Undefined, vm.ObjectValue(resolve), vm.ObjectValue(reject)); err != nil {
				if _, err := v.Call(vm.ObjectValue(reject), vm.Undefined, v.ThrownValue(err)); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.ObjectValue(p), nil
		})
	realm.PromiseConstructor = ctor
	speciesGetter(v, ctor)

	thisPromise := func(v *vm.VM, this vm.Value, name string) (*vm.Object, error) {
		if !vm.IsPromise(this) {
			return nil, v.NewTypeErrorf("Method Promise.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
		}
		return this.AsObject(), nil
	}

	method(v, proto, "then", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := thisPromise(v, this, "then")
		if err != nil {
			return vm.Undefined, err
		}
		c, err := v.SpeciesConstructor(p, realm.PromiseConstructor)
		if err != nil {
			return vm.Undefined, err
		}
		cap, err := v.NewPromiseCapability(c)
		if err != nil {
			return vm.Undefined, err
		}
		v.PerformPromiseThen(p, vm.Arg(args, 0), vm.Arg(args, 1), cap)
		return vm.ObjectValue(cap.Promise), nil
	})
	method(v, proto, "catch", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return v.Invoke(this, vm.StrKey("then"), vm.Undefined, vm.Arg(args, 0))
	})
	method(v, proto, "finally", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := thisObject(v, this, "Promise.prototype.finally")
		if err != nil {
			return vm.Undefined, err
		}
		cv, err := v.SpeciesConstructor(p, realm.PromiseConstructor)
		if err != nil {
			return vm.Undefined, err
		}
		onFinally := vm.Arg(args, 0)
		if !onFinally.IsCallable() {
			return v.Invoke(this, vm.StrKey("then"), onFinally, onFinally)
		}
		c := cv.AsObject()
		// settle runs onFinally, waits for its result and then passes
		// through the original outcome.
		settle := func(name string, passthrough func(v *vm.VM, x vm.Value) (vm.Value, error)) vm.Value {
			f := v.NewNativeFunction(name, 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
				x := vm.Arg(args, 0)
				result, err := v.Call(onFinally, vm.Undefined)
				if err != nil {
					return vm.Undefined, err
				}
				p, err := v.PromiseResolve(c, result)
				if err != nil {
					return vm.Undefined, err
				}
				thunk := v.NewNativeFunction("", 0, func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
					return passthrough(v, x)
				})
				thunk.Internal.(*vm.NativeFunction).Data = x
				return v.Invoke(vm.ObjectValue(p), vm.StrKey("then"), vm.ObjectValue(thunk))
			})
			f.Internal.(*vm.NativeFunction).Data = []vm.Value{cv, onFinally}
			return vm.ObjectValue(f)
		}
		thenFinally := settle("", func(_ *vm.VM, x vm.Value) (vm.Value, error) { return x, nil })
		catchFinally := settle("", func(v *vm.VM, x vm.Value) (vm.Value, error) { return vm.Undefined, v.Throw(x) })
		return v.Invoke(this, vm.StrKey("then"), thenFinally, catchFinally)
	})
	toStringTag(proto, "Promise")

	method(v, ctor, "resolve", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		c, err := thisObject(v, this, "Promise.resolve")
		if err != nil {
			return vm.Undefined, err
		}
		p, err := v.PromiseResolve(c, vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(p), nil
	})
	method(v, ctor, "reject", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cap, err := v.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		if err := v.RejectCapability(cap, vm.Arg(args, 0)); err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(cap.Promise), nil
	})
	method(v, ctor, "withResolvers", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		cap, err := v.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		resolve, reject := v.CapabilityFunctions(cap)
		o := v.NewObject()
		o.SetOwn("promise", vm.ObjectValue(cap.Promise))
		o.SetOwn("resolve", resolve)
		o.SetOwn("reject", reject)
		return vm.ObjectValue(o), nil
	})
	method(v, ctor, "try", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := thisObject(v, this, "Promise.try"); err != nil {
			return vm.Undefined, err
		}
		cap, err := v.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		result, err := v.Call(vm.Arg(args, 0), vm.Undefined, rest...)
		if err != nil {
			err = v.RejectCapability(cap, v.ThrownValue(err))
		} else {
			err = v.ResolveCapability(cap, result)
		}
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(cap.Promise), nil
	})

	installPromiseCombinators(v, ctor)
	return defineGlobal(ctx, "Promise", ctor)
}

// combinatorState is shared by the element functions of one call to a
// promise combinator.
type combinatorState struct {
	cap       *vm.PromiseCapability
	values    []vm.Value
	remaining int
}

func (s *combinatorState) Trace(visit func(vm.Value)) {
	visit(vm.ObjectValue(s.cap.Promise))
	visit(s.cap.Resolve)
	visit(s.cap.Reject)
	for _, x := range s.values {
		visit(x)
	}
}

// elementFunction creates a resolve or reject element function. Element
// functions sharing called run at most once between them.
func elementFunction(v *vm.VM, st *combinatorState, called *bool, body func(v *vm.VM, x vm.Value) error) vm.Value {
	f := v.NewNativeFunction("", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		if *called {
			return vm.Undefined, nil
		}
		*called = true
		return vm.Undefined, body(v, vm.Arg(args, 0))
	})
	f.Internal.(*vm.NativeFunction).Data = st
	return vm.ObjectValue(f)
}

// settledRecord builds the result object of Promise.allSettled.
func settledRecord(v *vm.VM, status, key string, x vm.Value) vm.Value {
	o := v.NewObject()
	o.SetOwn("status", str(status))
	o.SetOwn(key, x)
	return vm.ObjectValue(o)
}

func installPromiseCombinators(v *vm.VM, ctor *vm.Object) {
	// combinator implements the shared part of all, allSettled, any and
	// race: the capability, the resolve lookup and the iteration. Abrupt
	// completions reject the returned promise.
	combinator := func(name string, attach func(v *vm.VM, st *combinatorState, index int, next vm.Value) error, finish func(v *vm.VM, st *combinatorState) error) {
		method(v, ctor, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			c, err := thisObject(v, this, "Promise."+name)
			if err != nil {
				return vm.Undefined, err
			}
			cap, err := v.NewPromiseCapability(this)
			if err != nil {
				return vm.Undefined, err
			}
			v.CapabilityFunctions(cap)
			fail := func(err error) (vm.Value, error) {
				if err := v.RejectCapability(cap, v.ThrownValue(err)); err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(cap.Promise), nil
			}
			resolveFn, err := getProp(v, c, "resolve")
			if err != nil {
				return fail(err)
			}
			if !resolveFn.IsCallable() {
				return fail(v.NewTypeError("Promise resolve or reject function is not callable"))
			}
			rec, err := v.GetIterator(vm.Arg(args, 0), false)
			if err != nil {
				return fail(err)
			}
			st := &combinatorState{cap: cap, remaining: 1}
			for index := 0; ; index++ {
				val, done, err := v.IteratorStepValue(rec)
				if err != nil {
					return fail(err)
				}
				if done {
					break
				}
				next, err := v.Call(resolveFn, this, val)
				if err == nil {
					err = attach(v, st, index, next)
				}
				if err != nil {
					closeQuietly(v, rec.Iterator)
					return fail(err)
				}
			}
			if finish != nil {
				st.remaining--
				if st.remaining == 0 {
					if err := finish(v, st); err != nil {
						return fail(err)
					}
				}
			}
			return vm.ObjectValue(cap.Promise), nil
		})
	}

	then := func(v *vm.VM, next, onFulfilled, onRejected vm.Value) error {
		_, err := v.Invoke(next, vm.StrKey("then"), onFulfilled, onRejected)
		return err
	}
	resolveValues := func(v *vm.VM, st *combinatorState) error {
		return v.ResolveCapability(st.cap, vm.ObjectValue(v.NewArrayFromValues(st.values)))
	}

	combinator("all", func(v *vm.VM, st *combinatorState, index int, next vm.Value) error {
		st.values = append(st.values, vm.Undefined)
		st.remaining++
		called := false
		onFulfilled := elementFunction(v, st, &called, func(v *vm.VM, x vm.Value) error {
			st.values[index] = x
			st.remaining--
			if st.remaining == 0 {
				return resolveValues(v, st)
			}
			return nil
		})
		return then(v, next, onFulfilled, st.cap.Reject)
	}, resolveValues)

	combinator("allSettled", func(v *vm.VM, st *combinatorState, index int, next vm.Value) error {
		st.values = append(st.values, vm.Undefined)
		st.remaining++
		called := false
		settle := func(status, key string) vm.Value {
			return elementFunction(v, st, &called, func(v *vm.VM, x vm.Value) error {
				st.values[index] = settledRecord(v, status, key, x)
				st.remaining--
				if st.remaining == 0 {
					return resolveValues(v, st)
				}
				return nil
			})
		}
		return then(v, next, settle("fulfilled", "value"), settle("rejected", "reason"))
	}, resolveValues)

	rejectAll := func(v *vm.VM, st *combinatorState) error {
		agg := v.NewError(vm.ErrAggregateError, "All promises were rejected")
		agg.DefineOwn(vm.StrKey("errors"), vm.ObjectValue(v.NewArrayFromValues(st.values)), vm.MethodFlags)
		return v.RejectCapability(st.cap, vm.ObjectValue(agg))
	}
	combinator("any", func(v *vm.VM, st *combinatorState, index int, next vm.Value) error {
		st.values = append(st.values, vm.Undefined)
		st.remaining++
		called := false
		onRejected := elementFunction(v, st, &called, func(v *vm.VM, x vm.Value) error {
			st.values[index] = x
			st.remaining--
			if st.remaining == 0 {
				return rejectAll(v, st)
			}
			return nil
		})
		return then(v, next, st.cap.Resolve, onRejected)
	}, rejectAll)

	combinator("race", func(v *vm.VM, st *combinatorState, _ int, next vm.Value) error {
		return then(v, next, st.cap.Resolve, st.cap.Reject)
	}, nil)
}
