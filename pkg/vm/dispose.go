package vm

// DisposeCapability is a DisposeCapability record: the resources of a
// using block or a DisposableStack, disposed in reverse order.
type DisposeCapability struct {
	resources []disposableResource
	// errs collects throws of dispose methods in the order they happen.
	errs []Value
}

type disposableResource struct {
	value  Value
	method Value
	async  bool
	// adopt passes value as the argument instead of the this value.
	adopt bool
	// syncFallback marks an await using resource that only has
	// Symbol.dispose.
	syncFallback bool
}

func (d *DisposeCapability) Trace(visit func(Value)) {
	for _, r := range d.resources {
		visit(r.value)
		visit(r.method)
	}
	for _, e := range d.errs {
		visit(e)
	}
}

func (d *DisposeCapability) values() []Value {
	var vs []Value
	d.Trace(func(v Value) { vs = append(vs, v) })
	return vs
}

// Len returns the number of pending resources.
func (d *DisposeCapability) Len() int { return len(d.resources) }

// Move transfers every resource to a new capability, leaving d empty.
func (d *DisposeCapability) Move() *DisposeCapability {
	n := &DisposeCapability{resources: d.resources}
	d.resources = nil
	return n
}

// AddDisposableResource implements the operation of the same name for a
// using (async false) or await using (async true) declaration.
func (vm *VM) AddDisposableResource(d *DisposeCapability, v Value, async bool) error {
	if v.IsNullish() {
		if async {
			d.resources = append(d.resources, disposableResource{value: Undefined, method: Undefined, async: true})
		}
		return nil
	}
	if !v.IsObject() {
		return vm.NewTypeError(Inspect(v) + " is not an object; using declarations accept objects, null or undefined")
	}
	r := disposableResource{value: v, async: async}
	var err error
	if async {
		r.method, err = vm.GetMethod(v, SymKey(SymAsyncDispose))
		if err != nil {
			return err
		}
		if r.method.IsUndefined() {
			r.syncFallback = true
		}
	}
	if r.method.IsUndefined() {
		r.method, err = vm.GetMethod(v, SymKey(SymDispose))
		if err != nil {
			return err
		}
		if r.method.IsUndefined() {
			return vm.NewTypeError("Symbol.dispose is not a function")
		}
	}
	d.resources = append(d.resources, r)
	return nil
}

// AdoptResource registers fn to be called with v, as
// DisposableStack.prototype.adopt does.
func (d *DisposeCapability) AdoptResource(v, fn Value, async bool) {
	d.resources = append(d.resources, disposableResource{value: v, method: fn, async: async, adopt: true})
}

// DeferCallback registers fn to be called with no arguments.
func (d *DisposeCapability) DeferCallback(fn Value, async bool) {
	d.resources = append(d.resources, disposableResource{value: Undefined, method: fn, async: async})
}

// disposeOne calls the dispose method of the most recent resource. A throw is
// recorded and the result left undefined.
func (vm *VM) disposeOne(d *DisposeCapability) Value {
	r := d.resources[len(d.resources)-1]
	d.resources[len(d.resources)-1] = disposableResource{}
	d.resources = d.resources[:len(d.resources)-1]
	if r.method.IsUndefined() {
		return Undefined
	}
	var res Value
	var err error
	if r.adopt {
		res, err = vm.Call(r.method, Undefined, r.value)
	} else {
		res, err = vm.Call(r.method, r.value)
	}
	if err != nil {
		d.errs = append(d.errs, vm.toException(err).Value)
		return Undefined
	}
	if r.syncFallback || !r.async {
		return Undefined
	}
	return res
}

// foldDisposeErrors combines the recorded errors with the completion value of the
// block: each later error wraps the previous one in a SuppressedError.
func (vm *VM) foldDisposeErrors(d *DisposeCapability, thrown bool, completion Value) (Value, bool) {
	if len(d.errs) == 0 {
		return completion, thrown
	}
	cur, have := completion, thrown
	for _, e := range d.errs {
		if have {
			cur = ObjectValue(vm.NewSuppressedError(e, cur))
		} else {
			cur = e
		}
		have = true
	}
	d.errs = nil
	return cur, true
}

// NewSuppressedError creates a SuppressedError for err hiding suppressed.
func (vm *VM) NewSuppressedError(err, suppressed Value) *Object {
	o := vm.NewError(ErrSuppressedError, "An error was suppressed during disposal")
	o.props.put(StrKey("error"), err, Undefined, MethodFlags)
	o.props.put(StrKey("suppressed"), suppressed, Undefined, MethodFlags)
	return o
}

// DisposeResources disposes every resource synchronously. completion is
// the error the body threw, or nil.
func (vm *VM) DisposeResources(d *DisposeCapability, completion error) error {
	for len(d.resources) > 0 {
		vm.disposeOne(d)
	}
	if len(d.errs) == 0 {
		return completion
	}
	var thrown Value
	if completion != nil {
		thrown = vm.toException(completion).Value
	}
	v, _ := vm.foldDisposeErrors(d, completion != nil, thrown)
	return vm.Throw(v)
}

// DisposeResourcesAsync disposes every resource, awaiting the result of
// each async dispose method, and returns a promise that settles when all
// are done.
func (vm *VM) DisposeResourcesAsync(d *DisposeCapability, completion error) *Object {
	cap := vm.newCapability()
	isThrow := completion != nil
	var thrown Value
	if isThrow {
		thrown = vm.toException(completion).Value
	}
	var step func()
	step = func() {
		for len(d.resources) > 0 {
			async := d.resources[len(d.resources)-1].async
			res := vm.disposeOne(d)
			if !async {
				continue
			}
			p, err := vm.PromiseResolve(vm.realm.PromiseConstructor, res)
			if err != nil {
				d.errs = append(d.errs, vm.toException(err).Value)
				continue
			}
			vm.Then(p, func(vm *VM, _ Value) (Value, error) {
				step()
				return Undefined, nil
			}, func(vm *VM, reason Value) (Value, error) {
				d.errs = append(d.errs, reason)
				step()
				return Undefined, nil
			}, append(d.values(), thrown, ObjectValue(cap.Promise))...)
			return
		}
		if v, throw := vm.foldDisposeErrors(d, isThrow, thrown); throw {
			vm.rejectWith(cap.state, v)
		} else {
			vm.resolveWith(cap.state, Undefined)
		}
	}
	step()
	return cap.Promise
}

// The VM side of using blocks. The scope object is a register-held
// wrapper the collector can trace; the compiler emits the dispose loop
// itself so that await using can suspend between resources.

func (vm *VM) newDisposeScope() *Object {
	o := vm.NewObjectClass(ClassObject, nil)
	o.Internal = &DisposeCapability{}
	return o
}

func (vm *VM) addDisposable(scope *Object, v Value, hint int) error {
	return vm.AddDisposableResource(scope.Internal.(*DisposeCapability), v, hint != 0)
}

// disposeStep disposes the most recent resource and returns what the
// compiled code must await; more is false once nothing is left.
func (vm *VM) disposeStep(scope *Object) (Value, bool, error) {
	d := scope.Internal.(*DisposeCapability)
	if len(d.resources) == 0 {
		return Undefined, false, nil
	}
	return vm.disposeOne(d), true, nil
}

// disposeError records a rejection observed while awaiting a dispose
// result.
func (vm *VM) disposeError(scope *Object, v Value) {
	d := scope.Internal.(*DisposeCapability)
	d.errs = append(d.errs, v)
}

// disposeFinish folds the recorded errors into the block's completion.
// ok reports that the completion becomes a throw of the returned value.
func (vm *VM) disposeFinish(scope *Object, kind, val Value) (Value, bool) {
	d := scope.Internal.(*DisposeCapability)
	if len(d.errs) == 0 {
		return Undefined, false
	}
	thrown := kind.IsNumber() && int(kind.AsNumber()) == completionThrow
	return vm.foldDisposeErrors(d, thrown, val)
}
