package vm

// IteratorRecord is an Iterator Record: the iterator object and its
// cached next method.
type IteratorRecord struct {
	Iterator *Object
	Next     Value
	Done     bool
}

// GetIterator implements GetIterator with kind sync or async. An async
// request on a value with only Symbol.iterator gets an async-from-sync
// wrapper.
func (vm *VM) GetIterator(v Value, async bool) (IteratorRecord, error) {
	if async {
		method, err := vm.GetMethod(v, SymKey(SymAsyncIterator))
		if err != nil {
			return IteratorRecord{}, err
		}
		if method.IsUndefined() {
			sync, err := vm.GetMethod(v, SymKey(SymIterator))
			if err != nil {
				return IteratorRecord{}, err
			}
			if sync.IsUndefined() {
				return IteratorRecord{}, vm.NewTypeError(Inspect(v) + " is not async iterable")
			}
			rec, err := vm.GetIteratorFromMethod(v, sync)
			if err != nil {
				return IteratorRecord{}, err
			}
			return vm.createAsyncFromSyncIterator(rec)
		}
		return vm.GetIteratorFromMethod(v, method)
	}
	method, err := vm.GetMethod(v, SymKey(SymIterator))
	if err != nil {
		return IteratorRecord{}, err
	}
	if method.IsUndefined() {
		return IteratorRecord{}, vm.NewTypeError(Inspect(v) + " is not iterable")
	}
	return vm.GetIteratorFromMethod(v, method)
}

// GetIteratorFromMethod calls method on v and checks the result.
func (vm *VM) GetIteratorFromMethod(v, method Value) (IteratorRecord, error) {
	it, err := vm.Call(method, v)
	if err != nil {
		return IteratorRecord{}, err
	}
	if !it.IsObject() {
		return IteratorRecord{}, vm.NewTypeError("Result of the Symbol.iterator method is not an object")
	}
	return vm.GetIteratorDirect(it.AsObject())
}

// GetIteratorDirect builds a record from an iterator object.
func (vm *VM) GetIteratorDirect(it *Object) (IteratorRecord, error) {
	next, err := it.Get(vm, StrKey("next"), ObjectValue(it))
	if err != nil {
		return IteratorRecord{}, err
	}
	return IteratorRecord{Iterator: it, Next: next}, nil
}

// IteratorNext calls the next method, passing v when given, and returns
// the result object.
func (vm *VM) IteratorNext(rec IteratorRecord, v ...Value) (*Object, error) {
	r, err := vm.Call(rec.Next, ObjectValue(rec.Iterator), v...)
	if err != nil {
		return nil, err
	}
	if !r.IsObject() {
		return nil, vm.NewTypeError("Iterator result " + Inspect(r) + " is not an object")
	}
	return r.AsObject(), nil
}

// IteratorComplete reads the done property of an iterator result.
func (vm *VM) IteratorComplete(r *Object) (bool, error) {
	v, err := r.Get(vm, StrKey("done"), ObjectValue(r))
	return v.ToBoolean(), err
}

// IteratorValue reads the value property of an iterator result.
func (vm *VM) IteratorValue(r *Object) (Value, error) {
	return r.Get(vm, StrKey("value"), ObjectValue(r))
}

// IteratorStepValue advances rec and returns the next value, or done.
func (vm *VM) IteratorStepValue(rec IteratorRecord) (Value, bool, error) {
	r, err := vm.IteratorNext(rec)
	if err != nil {
		return Undefined, false, err
	}
	done, err := vm.IteratorComplete(r)
	if err != nil || done {
		return Undefined, done, err
	}
	v, err := vm.IteratorValue(r)
	return v, false, err
}

// IteratorClose calls the iterator's return method for a normal
// completion of the loop body.
func (vm *VM) IteratorClose(it *Object) error {
	ret, err := vm.GetMethod(ObjectValue(it), StrKey("return"))
	if err != nil || ret.IsUndefined() {
		return err
	}
	r, err := vm.Call(ret, ObjectValue(it))
	if err != nil {
		return err
	}
	if !r.IsObject() {
		return vm.NewTypeError("Iterator result " + Inspect(r) + " is not an object")
	}
	return nil
}

// iteratorCloseQuiet closes it on behalf of a throw completion: errors
// from the return method are dropped in favor of the original one.
func (vm *VM) iteratorCloseQuiet(it *Object) {
	ret, err := vm.GetMethod(ObjectValue(it), StrKey("return"))
	if err != nil || ret.IsUndefined() {
		return
	}
	_, _ = vm.Call(ret, ObjectValue(it))
}

// IterableToList drains the iterator of v into a slice.
func (vm *VM) IterableToList(v Value) ([]Value, error) {
	if o := v.AsObject(); o != nil && o.class == ClassArray && vm.arrayIterationIsPristine(o) {
		if elems, ok := o.DenseElements(); ok {
			return append([]Value(nil), elems...), nil
		}
	}
	rec, err := vm.GetIterator(v, false)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		x, done, err := vm.IteratorStepValue(rec)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out = append(out, x)
	}
}

// CreateIterResultObject returns {value, done}.
func (vm *VM) CreateIterResultObject(v Value, done bool) *Object {
	o := vm.NewObject()
	o.props.put(StrKey("value"), v, Undefined, DefaultFlags)
	o.props.put(StrKey("done"), BooleanValue(done), Undefined, DefaultFlags)
	return o
}

func (vm *VM) iterResult(v Value, done bool) Value {
	return ObjectValue(vm.CreateIterResultObject(v, done))
}

// forInState walks the enumerable string keys of an object and its
// prototypes. Keys are checked again when visited, so properties deleted
// during the loop are skipped; a key is reported at most once even when
// shadowed further down the chain.
type forInState struct {
	obj     *Object
	keys    []PropertyKey
	pos     int
	visited map[string]bool
}

func (s *forInState) trace(m *marker) { m.object(s.obj) }

func (vm *VM) newForInIterator(v Value) (Value, error) {
	st := &forInState{visited: make(map[string]bool)}
	if !v.IsNullish() {
		o, err := vm.ToObject(v)
		if err != nil {
			return Undefined, err
		}
		st.obj = o
	}
	it := vm.NewObjectClass(ClassIterator, vm.realm.ForInIteratorPrototype)
	it.Internal = st
	return ObjectValue(it), nil
}

func (vm *VM) forInNext(it *Object) (Value, bool, error) {
	st := it.Internal.(*forInState)
	for st.obj != nil {
		if st.keys == nil {
			keys, err := st.obj.OwnPropertyKeys(vm)
			if err != nil {
				return Undefined, false, err
			}
			st.keys = make([]PropertyKey, 0, len(keys))
			for _, k := range keys {
				if !k.IsSymbol() {
					st.keys = append(st.keys, k)
				}
			}
			st.pos = 0
		}
		for st.pos < len(st.keys) {
			k := st.keys[st.pos]
			st.pos++
			if st.visited[k.Name()] {
				continue
			}
			desc, ok, err := st.obj.GetOwnProperty(vm, k)
			if err != nil {
				return Undefined, false, err
			}
			if !ok {
				continue
			}
			st.visited[k.Name()] = true
			if desc.Enumerable {
				return NewStringValue(k.Name()), true, nil
			}
		}
		proto, err := st.obj.GetPrototypeOf(vm)
		if err != nil {
			return Undefined, false, err
		}
		st.obj = proto
		st.keys = nil
	}
	return Undefined, false, nil
}

// asyncFromSync is the internal slot of an async-from-sync iterator.
type asyncFromSync struct {
	sync IteratorRecord
}

func (a *asyncFromSync) trace(m *marker) {
	m.object(a.sync.Iterator)
	m.value(a.sync.Next)
}

func (vm *VM) createAsyncFromSyncIterator(rec IteratorRecord) (IteratorRecord, error) {
	it := vm.NewObjectClass(ClassIterator, vm.realm.AsyncFromSyncIteratorPrototype)
	it.Internal = &asyncFromSync{sync: rec}
	return vm.GetIteratorDirect(it)
}

// initAsyncFromSyncIterator installs next, return and throw on
// %AsyncFromSyncIteratorPrototype%. The prototype is not reachable from
// script, so the VM owns it rather than the builtins package.
func (vm *VM) initAsyncFromSyncIterator() {
	proto := vm.realm.AsyncFromSyncIteratorPrototype
	method := func(name string, fn func(vm *VM, a *asyncFromSync, cap *PromiseCapability, args []Value)) {
		f := vm.NewNativeFunction(name, 1, func(vm *VM, this Value, args []Value) (Value, error) {
			cap := vm.newCapability()
			a, _ := this.AsObject().Internal.(*asyncFromSync)
			fn(vm, a, cap, args)
			return ObjectValue(cap.Promise), nil
		})
		proto.DefineOwn(StrKey(name), ObjectValue(f), Writable|Configurable)
	}
	method("next", func(vm *VM, a *asyncFromSync, cap *PromiseCapability, args []Value) {
		r, err := vm.IteratorNext(a.sync, args...)
		if err != nil {
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		vm.asyncFromSyncContinue(r, cap, a.sync, true)
	})
	method("return", func(vm *VM, a *asyncFromSync, cap *PromiseCapability, args []Value) {
		it := ObjectValue(a.sync.Iterator)
		ret, err := vm.GetMethod(it, StrKey("return"))
		if err != nil {
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		if ret.IsUndefined() {
			vm.resolveWith(cap.state, vm.iterResult(Arg(args, 0), true))
			return
		}
		r, err := vm.Call(ret, it, args...)
		if err == nil && !r.IsObject() {
			err = vm.NewTypeError("Iterator result " + Inspect(r) + " is not an object")
		}
		if err != nil {
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		vm.asyncFromSyncContinue(r.AsObject(), cap, a.sync, false)
	})
	method("throw", func(vm *VM, a *asyncFromSync, cap *PromiseCapability, args []Value) {
		it := ObjectValue(a.sync.Iterator)
		th, err := vm.GetMethod(it, StrKey("throw"))
		if err != nil {
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		if th.IsUndefined() {
			err := vm.IteratorClose(a.sync.Iterator)
			if err == nil {
				err = vm.NewTypeError("The iterator does not provide a 'throw' method")
			}
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		r, err := vm.Call(th, it, args...)
		if err == nil && !r.IsObject() {
			err = vm.NewTypeError("Iterator result " + Inspect(r) + " is not an object")
		}
		if err != nil {
			vm.rejectWith(cap.state, vm.toException(err).Value)
			return
		}
		vm.asyncFromSyncContinue(r.AsObject(), cap, a.sync, true)
	})
}

// asyncFromSyncContinue is AsyncFromSyncIteratorContinuation.
func (vm *VM) asyncFromSyncContinue(r *Object, cap *PromiseCapability, sync IteratorRecord, closeOnRejection bool) {
	fail := func(err error) { vm.rejectWith(cap.state, vm.toException(err).Value) }
	done, err := vm.IteratorComplete(r)
	if err != nil {
		fail(err)
		return
	}
	v, err := vm.IteratorValue(r)
	if err != nil {
		fail(err)
		return
	}
	wrapper, err := vm.PromiseResolve(vm.realm.PromiseConstructor, v)
	if err != nil {
		if !done && closeOnRejection {
			vm.iteratorCloseQuiet(sync.Iterator)
		}
		fail(err)
		return
	}
	onRejected := func(vm *VM, reason Value) (Value, error) {
		if !done && closeOnRejection {
			vm.iteratorCloseQuiet(sync.Iterator)
		}
		return Undefined, vm.Throw(reason)
	}
	vm.addReactions(wrapper,
		&promiseReaction{capability: cap, kind: reactionFulfill, native: func(vm *VM, v Value) (Value, error) {
			return vm.iterResult(v, done), nil
		}},
		&promiseReaction{capability: cap, kind: reactionReject, native: onRejected, roots: []Value{ObjectValue(sync.Iterator)}})
}
