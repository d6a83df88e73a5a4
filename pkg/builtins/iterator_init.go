package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

// nativeIterator is the state of a built-in iterator whose next method is
// written in Go: array, map, set, string and regexp iterators as well as
// iterator helpers.
type nativeIterator struct {
	kind string
	// next produces the next value, or done.
	next func(v *vm.VM) (vm.Value, bool, error)
	// ret runs when an iterator helper is closed early.
	ret     func(v *vm.VM) error
	// roots keeps the Go-held state of next alive: values or tracers.
	roots   []any
	done    bool
	running bool
}

func (it *nativeIterator) Trace(visit func(vm.Value)) {
	for _, r := range it.roots {
		switch r := r.(type) {
		case vm.Value:
			visit(r)
		case vm.Tracer:
			r.Trace(visit)
		}
	}
}

func newNativeIterator(v *vm.VM, proto *vm.Object, kind string, next func(v *vm.VM) (vm.Value, bool, error), roots ...any) *vm.Object {
	o := v.NewObjectClass(vm.ClassIterator, proto)
	o.Internal = &nativeIterator{kind: kind, next: next, roots: roots}
	return o
}

func nativeIteratorOf(v *vm.VM, this vm.Value, kind string) (*nativeIterator, error) {
	if o := this.AsObject(); o != nil {
		if it, ok := o.Internal.(*nativeIterator); ok && it.kind == kind {
			return it, nil
		}
	}
	return nil, v.NewTypeErrorf("%s.prototype.next called on incompatible receiver %s", kind, vm.Inspect(this))
}

// nativeIteratorNext is the next method shared by the prototypes of one
// kind of built-in iterator.
func nativeIteratorNext(kind string) vm.NativeFn {
	return func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		it, err := nativeIteratorOf(v, this, kind)
		if err != nil {
			return vm.Undefined, err
		}
		if it.running {
			return vm.Undefined, v.NewTypeError("Generator is already running")
		}
		if it.done {
			return vm.ObjectValue(v.CreateIterResultObject(vm.Undefined, true)), nil
		}
		it.running = true
		val, done, err := it.next(v)
		it.running = false
		if err != nil || done {
			it.done = true
			it.roots = nil
			return vm.ObjectValue(v.CreateIterResultObject(vm.Undefined, true)), err
		}
		return vm.ObjectValue(v.CreateIterResultObject(val, false)), nil
	}
}

// listIterator yields the values of a Go slice.
func listIterator(values []vm.Value) func(v *vm.VM) (vm.Value, bool, error) {
	i := 0
	return func(*vm.VM) (vm.Value, bool, error) {
		if i >= len(values) {
			return vm.Undefined, true, nil
		}
		i++
		return values[i-1], false, nil
	}
}

type IteratorInitializer struct{}

func (i *IteratorInitializer) Name() string {
	return "Iterator"
}

func (i *IteratorInitializer) Priority() int {
	return PriorityIterator
}

func (i *IteratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.IteratorPrototype

	symbolMethod(v, proto, vm.SymIterator, 0, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})
	symbolMethod(v, realm.AsyncIteratorPrototype, vm.SymAsyncIterator, 0, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})

	var ctor *vm.Object
	ctor = constructor(v, "Iterator", 0, nil, nil,
		func(v *vm.VM, _ []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			if newTarget == nil || newTarget == ctor {
				return vm.Undefined, v.NewTypeError("Abstract class Iterator not directly constructable")
			}
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassObject, func(r *vm.Realm) *vm.Object { return r.IteratorPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	ctor.DefineOwn(vm.StrKey("prototype"), vm.ObjectValue(proto), 0)
	realm.SetIntrinsic("Iterator", ctor)

	// constructor and @@toStringTag are accessors whose setters define an
	// own property on the receiver instead of touching the prototype.
	weirdAccessor := func(key vm.PropertyKey, name string, val vm.Value) {
		get := v.NewNativeFunction("get "+name, 0, func(*vm.VM, vm.Value, []vm.Value) (vm.Value, error) {
			return val, nil
		})
		set := v.NewNativeFunction("set "+name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := thisObject(v, this, "Iterator.prototype setter")
			if err != nil {
				return vm.Undefined, err
			}
			if o == proto {
				return vm.Undefined, v.NewTypeError("Cannot assign to read only property of Iterator.prototype")
			}
			_, has, err := o.GetOwnProperty(v, key)
			if err != nil {
				return vm.Undefined, err
			}
			if !has {
				return vm.Undefined, v.CreateDataPropertyOrThrow(o, key, vm.Arg(args, 0))
			}
			return vm.Undefined, v.SetOrThrow(o, key, vm.Arg(args, 0))
		})
		proto.DefineAccessorOwn(key, vm.ObjectValue(get), vm.ObjectValue(set), vm.Configurable)
	}
	weirdAccessor(vm.StrKey("constructor"), "constructor", vm.ObjectValue(ctor))
	weirdAccessor(vm.SymKey(vm.SymToStringTag), "[Symbol.toStringTag]", str("Iterator"))

	initIteratorHelpers(v, realm, proto)

	wrap := realm.WrapForValidIteratorPrototype
	method(v, wrap, "next", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		rec, err := wrappedIterator(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		return v.Call(rec.Next, vm.ObjectValue(rec.Iterator))
	})
	method(v, wrap, "return", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		rec, err := wrappedIterator(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		ret, err := v.GetMethod(vm.ObjectValue(rec.Iterator), vm.StrKey("return"))
		if err != nil {
			return vm.Undefined, err
		}
		if ret.IsUndefined() {
			return vm.ObjectValue(v.CreateIterResultObject(vm.Undefined, true)), nil
		}
		return v.Call(ret, vm.ObjectValue(rec.Iterator))
	})

	method(v, ctor, "from", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		rec, err := getIteratorFlattenable(v, vm.Arg(args, 0), true)
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := v.OrdinaryHasInstance(vm.ObjectValue(ctor), vm.ObjectValue(rec.Iterator))
		if err != nil {
			return vm.Undefined, err
		}
		if ok {
			return vm.ObjectValue(rec.Iterator), nil
		}
		w := v.NewObjectClass(vm.ClassIterator, wrap)
		w.Internal = &wrappedRecord{rec: rec}
		return vm.ObjectValue(w), nil
	})

	return defineGlobal(ctx, "Iterator", ctor)
}

// helperState is the Go side of an iterator helper: the underlying
// iterator, the inner iterator flatMap is draining and the arguments.
type helperState struct {
	rec   vm.IteratorRecord
	inner *vm.IteratorRecord
	args  []vm.Value
}

func (h *helperState) Trace(visit func(vm.Value)) {
	visit(vm.ObjectValue(h.rec.Iterator))
	visit(h.rec.Next)
	if h.inner != nil {
		visit(vm.ObjectValue(h.inner.Iterator))
		visit(h.inner.Next)
	}
	for _, a := range h.args {
		visit(a)
	}
}

// wrappedRecord is the [[Iterated]] slot of Iterator.from wrappers.
type wrappedRecord struct {
	rec vm.IteratorRecord
}

func (w *wrappedRecord) Trace(visit func(vm.Value)) {
	visit(vm.ObjectValue(w.rec.Iterator))
	visit(w.rec.Next)
}

func wrappedIterator(v *vm.VM, this vm.Value) (vm.IteratorRecord, error) {
	if o := this.AsObject(); o != nil {
		if w, ok := o.Internal.(*wrappedRecord); ok {
			return w.rec, nil
		}
	}
	return vm.IteratorRecord{}, v.NewTypeError("incompatible receiver " + vm.Inspect(this))
}

// getIteratorFlattenable implements GetIteratorFlattenable.
func getIteratorFlattenable(v *vm.VM, obj vm.Value, iterateStrings bool) (vm.IteratorRecord, error) {
	if !obj.IsObject() && !(iterateStrings && obj.IsString()) {
		return vm.IteratorRecord{}, v.NewTypeError(vm.Inspect(obj) + " is not an object")
	}
	m, err := v.GetMethod(obj, vm.SymKey(vm.SymIterator))
	if err != nil {
		return vm.IteratorRecord{}, err
	}
	it := obj
	if !m.IsUndefined() {
		if it, err = v.Call(m, obj); err != nil {
			return vm.IteratorRecord{}, err
		}
	}
	if !it.IsObject() {
		return vm.IteratorRecord{}, v.NewTypeError(vm.Inspect(it) + " is not an object")
	}
	return v.GetIteratorDirect(it.AsObject())
}

// thisIteratorRecord implements the common prologue of the iterator
// helper methods.
func thisIteratorRecord(v *vm.VM, this vm.Value, name string) (vm.IteratorRecord, error) {
	if !this.IsObject() {
		return vm.IteratorRecord{}, v.NewTypeErrorf("Iterator.prototype.%s called on non-object", name)
	}
	return vm.IteratorRecord{Iterator: this.AsObject()}, nil
}

func initIteratorHelpers(v *vm.VM, realm *vm.Realm, proto *vm.Object) {
	helperProto := realm.IteratorHelperPrototype
	toStringTag(helperProto, "Iterator Helper")
	method(v, helperProto, "next", 0, nativeIteratorNext("Iterator Helper"))
	method(v, helperProto, "return", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		it, err := nativeIteratorOf(v, this, "Iterator Helper")
		if err != nil {
			return vm.Undefined, err
		}
		if it.running {
			return vm.Undefined, v.NewTypeError("Generator is already running")
		}
		if !it.done {
			it.done = true
			if it.ret != nil {
				if err := it.ret(v); err != nil {
					return vm.Undefined, err
				}
			}
			it.roots = nil
		}
		return vm.ObjectValue(v.CreateIterResultObject(vm.Undefined, true)), nil
	})

	// lazy builds a helper method. start validates the arguments before
	// the receiver's next method is read and returns the step function.
	lazy := func(name string, length int, start func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error)) {
		method(v, proto, name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			rec, err := thisIteratorRecord(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			st := &helperState{rec: rec, args: args}
			step, err := start(v, st, args)
			if err != nil {
				closeQuietly(v, rec.Iterator)
				return vm.Undefined, err
			}
			next, err := getProp(v, rec.Iterator, "next")
			if err != nil {
				return vm.Undefined, err
			}
			st.rec.Next = next
			h := newNativeIterator(v, helperProto, "Iterator Helper", step, st)
			h.Internal.(*nativeIterator).ret = func(v *vm.VM) error {
				return v.IteratorClose(st.rec.Iterator)
			}
			return vm.ObjectValue(h), nil
		})
	}

	callbackStep := func(keep func(v *vm.VM, st *helperState, fn vm.Value, val vm.Value, counter int) (vm.Value, bool, error)) func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error) {
		return func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error) {
			fn := vm.Arg(args, 0)
			if err := requireCallable(v, fn); err != nil {
				return nil, err
			}
			counter := 0
			return func(v *vm.VM) (vm.Value, bool, error) {
				for {
					val, done, err := v.IteratorStepValue(st.rec)
					if err != nil || done {
						return vm.Undefined, true, err
					}
					out, ok, err := keep(v, st, fn, val, counter)
					counter++
					if err != nil {
						closeQuietly(v, st.rec.Iterator)
						return vm.Undefined, true, err
					}
					if ok {
						return out, false, nil
					}
				}
			}, nil
		}
	}

	lazy("map", 1, callbackStep(func(v *vm.VM, _ *helperState, fn, val vm.Value, counter int) (vm.Value, bool, error) {
		out, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
		return out, true, err
	}))
	lazy("filter", 1, callbackStep(func(v *vm.VM, _ *helperState, fn, val vm.Value, counter int) (vm.Value, bool, error) {
		ok, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
		return val, ok.ToBoolean(), err
	}))

	limitArg := func(v *vm.VM, args []vm.Value) (float64, error) {
		n, err := v.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return 0, err
		}
		if math.IsNaN(n) {
			return 0, v.NewRangeError(vm.Inspect(vm.Arg(args, 0)) + " must be positive")
		}
		n = vm.ToIntegerOrInfinityF(n)
		if n < 0 {
			return 0, v.NewRangeError(vm.Inspect(vm.Arg(args, 0)) + " must be positive")
		}
		return n, nil
	}

	lazy("take", 1, func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error) {
		remaining, err := limitArg(v, args)
		if err != nil {
			return nil, err
		}
		return func(v *vm.VM) (vm.Value, bool, error) {
			if remaining == 0 {
				return vm.Undefined, true, v.IteratorClose(st.rec.Iterator)
			}
			if !math.IsInf(remaining, 1) {
				remaining--
			}
			val, done, err := v.IteratorStepValue(st.rec)
			if err != nil || done {
				return vm.Undefined, true, err
			}
			return val, false, nil
		}, nil
	})

	lazy("drop", 1, func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error) {
		remaining, err := limitArg(v, args)
		if err != nil {
			return nil, err
		}
		return func(v *vm.VM) (vm.Value, bool, error) {
			for ; remaining > 0; remaining-- {
				_, done, err := v.IteratorStepValue(st.rec)
				if err != nil || done {
					return vm.Undefined, true, err
				}
			}
			val, done, err := v.IteratorStepValue(st.rec)
			if err != nil || done {
				return vm.Undefined, true, err
			}
			return val, false, nil
		}, nil
	})

	lazy("flatMap", 1, func(v *vm.VM, st *helperState, args []vm.Value) (func(v *vm.VM) (vm.Value, bool, error), error) {
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return nil, err
		}
		counter := 0
		return func(v *vm.VM) (vm.Value, bool, error) {
			for {
				if st.inner != nil {
					val, done, err := v.IteratorStepValue(*st.inner)
					if err != nil {
						closeQuietly(v, st.rec.Iterator)
						return vm.Undefined, true, err
					}
					if !done {
						return val, false, nil
					}
					st.inner = nil
				}
				val, done, err := v.IteratorStepValue(st.rec)
				if err != nil || done {
					return vm.Undefined, true, err
				}
				mapped, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
				counter++
				if err != nil {
					closeQuietly(v, st.rec.Iterator)
					return vm.Undefined, true, err
				}
				r, err := getIteratorFlattenable(v, mapped, false)
				if err != nil {
					closeQuietly(v, st.rec.Iterator)
					return vm.Undefined, true, err
				}
				st.inner = &r
			}
		}, nil
	})

	// eager helpers consume the iterator immediately.
	eager := func(name string, length int, body func(v *vm.VM, rec vm.IteratorRecord, args []vm.Value) (vm.Value, error)) {
		method(v, proto, name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			rec, err := thisIteratorRecord(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return body(v, rec, args)
		})
	}
	withNext := func(v *vm.VM, rec vm.IteratorRecord) (vm.IteratorRecord, error) {
		next, err := getProp(v, rec.Iterator, "next")
		rec.Next = next
		return rec, err
	}
	// visit calls fn(value, counter) until it asks to stop; errors from fn
	// close the iterator.
	visit := func(v *vm.VM, rec vm.IteratorRecord, fn func(val vm.Value, counter int) (bool, error)) error {
		counter := 0
		for {
			val, done, err := v.IteratorStepValue(rec)
			if err != nil || done {
				return err
			}
			stop, err := fn(val, counter)
			counter++
			if err != nil {
				closeQuietly(v, rec.Iterator)
				return err
			}
			if stop {
				return v.IteratorClose(rec.Iterator)
			}
		}
	}
	callbackEager := func(name string, body func(v *vm.VM, rec vm.IteratorRecord, fn vm.Value) (vm.Value, error)) {
		eager(name, 1, func(v *vm.VM, rec vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
			fn := vm.Arg(args, 0)
			if err := requireCallable(v, fn); err != nil {
				closeQuietly(v, rec.Iterator)
				return vm.Undefined, err
			}
			rec, err := withNext(v, rec)
			if err != nil {
				return vm.Undefined, err
			}
			return body(v, rec, fn)
		})
	}

	eager("toArray", 0, func(v *vm.VM, rec vm.IteratorRecord, _ []vm.Value) (vm.Value, error) {
		rec, err := withNext(v, rec)
		if err != nil {
			return vm.Undefined, err
		}
		arr := v.NewArray()
		err = visit(v, rec, func(val vm.Value, _ int) (bool, error) {
			arr.AppendElement(val)
			return false, nil
		})
		return vm.ObjectValue(arr), err
	})
	callbackEager("forEach", func(v *vm.VM, rec vm.IteratorRecord, fn vm.Value) (vm.Value, error) {
		return vm.Undefined, visit(v, rec, func(val vm.Value, counter int) (bool, error) {
			_, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
			return false, err
		})
	})
	callbackEager("some", func(v *vm.VM, rec vm.IteratorRecord, fn vm.Value) (vm.Value, error) {
		found := false
		err := visit(v, rec, func(val vm.Value, counter int) (bool, error) {
			r, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
			found = r.ToBoolean()
			return found, err
		})
		return vm.BooleanValue(found), err
	})
	callbackEager("every", func(v *vm.VM, rec vm.IteratorRecord, fn vm.Value) (vm.Value, error) {
		all := true
		err := visit(v, rec, func(val vm.Value, counter int) (bool, error) {
			r, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
			all = r.ToBoolean()
			return !all, err
		})
		return vm.BooleanValue(all), err
	})
	callbackEager("find", func(v *vm.VM, rec vm.IteratorRecord, fn vm.Value) (vm.Value, error) {
		result := vm.Undefined
		err := visit(v, rec, func(val vm.Value, counter int) (bool, error) {
			r, err := v.Call(fn, vm.Undefined, val, vm.IntValue(counter))
			if r.ToBoolean() {
				result = val
				return true, err
			}
			return false, err
		})
		return result, err
	})
	eager("reduce", 1, func(v *vm.VM, rec vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			closeQuietly(v, rec.Iterator)
			return vm.Undefined, err
		}
		rec, err := withNext(v, rec)
		if err != nil {
			return vm.Undefined, err
		}
		acc := vm.Arg(args, 1)
		counter := 0
		if len(args) < 2 {
			first, done, err := v.IteratorStepValue(rec)
			if err != nil {
				return vm.Undefined, err
			}
			if done {
				return vm.Undefined, v.NewTypeError("Reduce of empty iterator with no initial value")
			}
			acc = first
			counter = 1
		}
		for {
			val, done, err := v.IteratorStepValue(rec)
			if err != nil || done {
				return acc, err
			}
			acc, err = v.Call(fn, vm.Undefined, acc, val, vm.IntValue(counter))
			counter++
			if err != nil {
				closeQuietly(v, rec.Iterator)
				return vm.Undefined, err
			}
		}
	})
}
