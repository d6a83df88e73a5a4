package vm

// prepareCall builds the frame for calling a script function. The caller
// decides whether the frame is pushed inside the running interpreter loop
// or entered from Go as a boundary frame.
func (vm *VM) prepareCall(callee *Object, c *Closure, this Value, args []Value, newTarget Value) (*frame, error) {
	tmpl := c.Template
	if tmpl.Kind.IsClassConstructor() && newTarget.IsUndefined() {
		return nil, vm.NewTypeError("Class constructor " + tmpl.Name + " cannot be invoked without 'new'")
	}
	f := &frame{
		fn:        tmpl,
		callee:    callee,
		closure:   c,
		env:       c.Env,
		args:      args,
		newTarget: newTarget,
		dst:       -1,
	}
	f.regs = make([]Value, tmpl.NumRegs)
	copy(f.regs[:tmpl.NumParams], args)

	switch {
	case tmpl.Kind.IsArrow():
		// Arrows read this through their environment.
	case tmpl.Strict:
		f.this = this
	case this.IsNullish():
		f.this = ObjectValue(c.Realm.GlobalObject)
	case !this.IsObject():
		o, err := vm.ToObject(this)
		if err != nil {
			return nil, err
		}
		f.this = ObjectValue(o)
	default:
		f.this = this
	}
	if tmpl.Kind.IsAsync() && !tmpl.Kind.IsGenerator() {
		f.async = &asyncState{promise: vm.NewPromise()}
	}
	return f, nil
}

// prepareConstruct builds the frame for [[Construct]] of a script
// function. Base constructors allocate this up front; derived
// constructors start with this in its dead zone.
func (vm *VM) prepareConstruct(callee *Object, c *Closure, args []Value, newTarget *Object) (*frame, error) {
	var this Value
	derived := c.Template.Kind == KindDerivedConstructor
	if derived {
		this = Empty
	} else {
		obj, err := vm.OrdinaryCreateFromConstructor(newTarget, ClassObject, func(r *Realm) *Object { return r.ObjectPrototype })
		if err != nil {
			return nil, err
		}
		this = ObjectValue(obj)
	}
	f, err := vm.prepareCall(callee, c, this, args, ObjectValue(newTarget))
	if err != nil {
		return nil, err
	}
	f.this = this
	f.construct = !derived
	return f, nil
}

// callFromFrame calls fn for the running frame. Script functions get a new
// frame in the same interpreter loop (reload is true); everything else
// runs to completion and its result lands in register dst.
func (vm *VM) callFromFrame(fn, this Value, args []Value, dst int) (reload bool, err error) {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return false, vm.notCallable(fn, "")
	}
	for {
		b, ok := o.Internal.(*BoundFunction)
		if !ok {
			break
		}
		this = b.This
		args = append(append([]Value(nil), b.Args...), args...)
		o = b.Target
	}
	caller := vm.top()
	if c, ok := o.Internal.(*Closure); ok {
		f, err := vm.prepareCall(o, c, this, args, Undefined)
		if err != nil {
			return false, err
		}
		f.dst = dst
		if err := vm.pushFrame(f); err != nil {
			return false, err
		}
		return true, nil
	}
	v, err := vm.callObject(o, this, args)
	if err != nil {
		return false, err
	}
	caller.regs[dst] = v
	return false, nil
}

// constructFromFrame is the [[Construct]] counterpart of callFromFrame.
func (vm *VM) constructFromFrame(ctor Value, args []Value, newTarget Value, dst int) (reload bool, err error) {
	o := ctor.AsObject()
	if o == nil || !o.IsConstructor() {
		return false, vm.NewTypeError(Inspect(ctor) + " is not a constructor")
	}
	nt := newTarget.AsObject()
	if nt == nil {
		nt = o
	}
	caller := vm.top()
	if c, ok := o.Internal.(*Closure); ok {
		f, err := vm.prepareConstruct(o, c, args, nt)
		if err != nil {
			return false, err
		}
		f.dst = dst
		if err := vm.pushFrame(f); err != nil {
			return false, err
		}
		return true, nil
	}
	v, err := vm.constructObject(o, args, nt)
	if err != nil {
		return false, err
	}
	caller.regs[dst] = v
	return false, nil
}

// callObject implements [[Call]] from Go.
func (vm *VM) callObject(o *Object, this Value, args []Value) (Value, error) {
	switch in := o.Internal.(type) {
	case *Closure:
		f, err := vm.prepareCall(o, in, this, args, Undefined)
		if err != nil {
			return Undefined, err
		}
		f.boundary = true
		return vm.enter(f)
	case *NativeFunction:
		// Natives keep values in Go locals; no collection while they run.
		vm.runDepth++
		defer func() { vm.runDepth-- }()
		return in.Call(vm, this, args)
	case *BoundFunction:
		all := append(append([]Value(nil), in.Args...), args...)
		return vm.callObject(in.Target, in.This, all)
	case *ProxyData:
		return vm.proxyCall(o, this, args)
	}
	return Undefined, vm.notCallable(ObjectValue(o), "")
}

// constructObject implements [[Construct]] from Go.
func (vm *VM) constructObject(o *Object, args []Value, newTarget *Object) (Value, error) {
	switch in := o.Internal.(type) {
	case *Closure:
		f, err := vm.prepareConstruct(o, in, args, newTarget)
		if err != nil {
			return Undefined, err
		}
		f.boundary = true
		return vm.enter(f)
	case *NativeFunction:
		if in.Construct == nil {
			break
		}
		vm.runDepth++
		defer func() { vm.runDepth-- }()
		return in.Construct(vm, args, newTarget)
	case *BoundFunction:
		if newTarget == o {
			newTarget = in.Target
		}
		all := append(append([]Value(nil), in.Args...), args...)
		return vm.constructObject(in.Target, all, newTarget)
	case *ProxyData:
		return vm.proxyConstruct(o, args, ObjectValue(newTarget))
	}
	return Undefined, vm.NewTypeError(Inspect(ObjectValue(o)) + " is not a constructor")
}

// spreadArgs returns the elements of the argument array the compiler
// built for a spread call.
func (vm *VM) spreadArgs(v Value) ([]Value, error) {
	arr := v.AsObject()
	if elems, ok := arr.DenseElements(); ok {
		return append([]Value(nil), elems...), nil
	}
	return vm.CreateListFromArrayLike(v)
}

// spreadInto appends every value produced by iterating src to arr.
func (vm *VM) spreadInto(arr *Object, src Value) error {
	if o := src.AsObject(); o != nil && o.class == ClassArray && vm.arrayIterationIsPristine(o) {
		for i := uint32(0); i < o.length; i++ {
			v, err := o.Get(vm, IndexKey(i), src)
			if err != nil {
				return err
			}
			arr.AppendElement(v)
		}
		return nil
	}
	rec, err := vm.GetIterator(src, false)
	if err != nil {
		return err
	}
	for {
		v, done, err := vm.IteratorStepValue(rec)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		arr.AppendElement(v)
	}
}

// directEval runs eval code in the environment of the calling frame.
func (vm *VM) directEval(caller *frame, arg Value) (Value, error) {
	if !arg.IsString() {
		return arg, nil
	}
	if vm.compiler == nil {
		return Undefined, vm.newException(ErrEvalError, "eval is not supported")
	}
	tmpl, err := vm.compiler.CompileEval(vm, arg.AsString().String(), caller.env, caller.fn.Strict, caller.fn.EvalFlags)
	if err != nil {
		return Undefined, err
	}
	f := &frame{
		fn:        tmpl,
		callee:    caller.callee,
		closure:   caller.closure,
		regs:      make([]Value, tmpl.NumRegs),
		env:       caller.env,
		this:      caller.this,
		newTarget: caller.newTarget,
		args:      caller.args,
		dst:       -1,
		boundary:  true,
	}
	return vm.enter(f)
}

// IndirectEval evaluates src as global eval code.
func (vm *VM) IndirectEval(src string) (Value, error) {
	if vm.compiler == nil {
		return Undefined, vm.newException(ErrEvalError, "eval is not supported")
	}
	tmpl, err := vm.compiler.CompileEval(vm, src, nil, false, 0)
	if err != nil {
		return Undefined, err
	}
	f := &frame{
		fn:        tmpl,
		regs:      make([]Value, tmpl.NumRegs),
		this:      ObjectValue(vm.realm.GlobalObject),
		newTarget: Undefined,
		dst:       -1,
		boundary:  true,
	}
	return vm.enter(f)
}

// CreateDynamicFunction implements the Function, GeneratorFunction,
// AsyncFunction and AsyncGeneratorFunction constructors.
func (vm *VM) CreateDynamicFunction(kind FunctionKind, args []Value, newTarget *Object) (Value, error) {
	if vm.compiler == nil {
		return Undefined, vm.newException(ErrEvalError, "code generation is not supported")
	}
	var params []string
	body := ""
	for i, a := range args {
		s, err := vm.ToGoString(a)
		if err != nil {
			return Undefined, err
		}
		if i == len(args)-1 {
			body = s
		} else {
			params = append(params, s)
		}
	}
	tmpl, err := vm.compiler.CompileFunction(vm, kind, params, body)
	if err != nil {
		return Undefined, err
	}
	fn := vm.MakeClosure(tmpl, nil, nil)
	if newTarget != nil {
		fallback := func(r *Realm) *Object { return fn.proto }
		proto, err := vm.GetPrototypeFromConstructor(newTarget, fallback)
		if err != nil {
			return Undefined, err
		}
		fn.proto = proto
	}
	return ObjectValue(fn), nil
}
