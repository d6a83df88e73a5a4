package vm

// PromiseState is the [[PromiseState]] of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	}
	return "pending"
}

// PromiseData is the internal slot set of a promise object.
type PromiseData struct {
	State  PromiseState
	Result Value

	fulfillReactions []*promiseReaction
	rejectReactions  []*promiseReaction
	// Handled is [[PromiseIsHandled]].
	Handled bool
}

type reactionKind uint8

const (
	reactionFulfill reactionKind = iota
	reactionReject
)

// promiseReaction is a PromiseReaction record. Besides script handlers it
// carries the two internal forms the VM needs: a Go callback and the
// frame of a suspended await.
type promiseReaction struct {
	capability *PromiseCapability
	kind       reactionKind
	handler    Value
	native     func(vm *VM, v Value) (Value, error)
	// roots are values the native callback closes over.
	roots []Value
	await *frame
}

func (r *promiseReaction) trace(m *marker) {
	if r.capability != nil {
		r.capability.trace(m)
	}
	m.value(r.handler)
	m.values(r.roots)
	m.frame(r.await)
}

// PromiseCapability is a PromiseCapability record. Capabilities of
// built-in promises leave Resolve and Reject undefined and resolve the
// promise directly.
type PromiseCapability struct {
	Promise *Object
	Resolve Value
	Reject  Value
	state   *resolvingState
}

func (c *PromiseCapability) trace(m *marker) {
	m.object(c.Promise)
	m.value(c.Resolve)
	m.value(c.Reject)
}

// resolvingState is the shared [[AlreadyResolved]] record of one pair of
// resolving functions.
type resolvingState struct {
	promise *Object
	done    bool
}

func (s *resolvingState) trace(m *marker) { m.object(s.promise) }

// PromiseOf returns the promise slots of o, or nil.
func PromiseOf(o *Object) *PromiseData {
	if o == nil {
		return nil
	}
	p, _ := o.Internal.(*PromiseData)
	return p
}

// NewPromise creates a pending promise inheriting from
// %Promise.prototype%.
func (vm *VM) NewPromise() *Object {
	return vm.newPromiseWithProto(vm.realm.PromisePrototype)
}

func (vm *VM) newPromiseWithProto(proto *Object) *Object {
	o := vm.NewObjectClass(ClassPromise, proto)
	o.Internal = &PromiseData{}
	return o
}

// NewPromiseFromConstructor implements the allocation part of the Promise
// constructor.
func (vm *VM) NewPromiseFromConstructor(newTarget *Object) (*Object, error) {
	proto, err := vm.GetPrototypeFromConstructor(newTarget, func(r *Realm) *Object { return r.PromisePrototype })
	if err != nil {
		return nil, err
	}
	return vm.newPromiseWithProto(proto), nil
}

// CreateResolvingFunctions returns the resolve and reject functions for p.
func (vm *VM) CreateResolvingFunctions(p *Object) (resolve, reject *Object) {
	st := &resolvingState{promise: p}
	resolve = vm.NewNativeFunction("", 1, func(vm *VM, _ Value, args []Value) (Value, error) {
		vm.resolveWith(st, Arg(args, 0))
		return Undefined, nil
	})
	resolve.Internal.(*NativeFunction).Data = st
	reject = vm.NewNativeFunction("", 1, func(vm *VM, _ Value, args []Value) (Value, error) {
		vm.rejectWith(st, Arg(args, 0))
		return Undefined, nil
	})
	reject.Internal.(*NativeFunction).Data = st
	return resolve, reject
}

// resolveWith is the body of a promise resolve function.
func (vm *VM) resolveWith(st *resolvingState, v Value) {
	if st.done {
		return
	}
	st.done = true
	p := st.promise
	o := v.AsObject()
	if o == p {
		vm.rejectPromise(p, ObjectValue(vm.NewError(ErrTypeError, "Chaining cycle detected for promise #<Promise>")))
		return
	}
	if o == nil {
		vm.fulfillPromise(p, v)
		return
	}
	then, err := o.Get(vm, StrKey("then"), v)
	if err != nil {
		vm.rejectPromise(p, vm.toException(err).Value)
		return
	}
	if !then.IsCallable() {
		vm.fulfillPromise(p, v)
		return
	}
	vm.EnqueueJob(Job{
		Roots: []Value{ObjectValue(p), v, then},
		Run: func(vm *VM) error {
			resolve, reject := vm.CreateResolvingFunctions(p)
			if _, err := vm.Call(then, v, ObjectValue(resolve), ObjectValue(reject)); err != nil {
				_, err = vm.Call(ObjectValue(reject), Undefined, vm.toException(err).Value)
				return err
			}
			return nil
		},
	})
}

func (vm *VM) rejectWith(st *resolvingState, reason Value) {
	if st.done {
		return
	}
	st.done = true
	vm.rejectPromise(st.promise, reason)
}

// resolvePromise resolves p as a fresh pair of resolving functions would.
func (vm *VM) resolvePromise(p *Object, v Value) {
	vm.resolveWith(&resolvingState{promise: p}, v)
}

func (vm *VM) fulfillPromise(p *Object, v Value) {
	d := PromiseOf(p)
	if d.State != PromisePending {
		return
	}
	reactions := d.fulfillReactions
	d.State, d.Result = PromiseFulfilled, v
	d.fulfillReactions, d.rejectReactions = nil, nil
	for _, r := range reactions {
		vm.enqueueReaction(r, v)
	}
}

// rejectPromise implements RejectPromise.
func (vm *VM) rejectPromise(p *Object, reason Value) {
	d := PromiseOf(p)
	if d.State != PromisePending {
		return
	}
	reactions := d.rejectReactions
	d.State, d.Result = PromiseRejected, reason
	d.fulfillReactions, d.rejectReactions = nil, nil
	if !d.Handled {
		vm.trackRejection(p, false)
	}
	for _, r := range reactions {
		vm.enqueueReaction(r, reason)
	}
}

// trackRejection implements HostPromiseRejectionTracker.
func (vm *VM) trackRejection(p *Object, handled bool) {
	if handled {
		for i, q := range vm.pendingRejections {
			if q == p {
				vm.pendingRejections = append(vm.pendingRejections[:i], vm.pendingRejections[i+1:]...)
				break
			}
		}
	} else {
		vm.pendingRejections = append(vm.pendingRejections, p)
		vm.logger.Debug("promise rejected without handler", "reason", DescribeThrown(PromiseOf(p).Result))
	}
	if vm.RejectionTracker != nil {
		vm.RejectionTracker(p, handled)
	}
}

func (vm *VM) enqueueReaction(r *promiseReaction, arg Value) {
	roots := []Value{arg}
	vm.EnqueueJob(Job{
		Roots:    roots,
		reaction: r,
		Run: func(vm *VM) error {
			return vm.runReaction(r, arg)
		},
	})
}

// runReaction is NewPromiseReactionJob.
func (vm *VM) runReaction(r *promiseReaction, arg Value) error {
	if r.await != nil {
		return vm.resumeAwait(r.await, r.kind == reactionReject, arg)
	}
	var res Value
	var err error
	switch {
	case r.native != nil:
		res, err = r.native(vm, arg)
	case r.handler.IsUndefined():
		if r.kind == reactionFulfill {
			res = arg
		} else {
			err = vm.Throw(arg)
		}
	default:
		res, err = vm.Call(r.handler, Undefined, arg)
	}
	if r.capability == nil {
		return err
	}
	if err != nil {
		return vm.RejectCapability(r.capability, vm.toException(err).Value)
	}
	return vm.ResolveCapability(r.capability, res)
}

// NewPromiseCapability implements the abstract operation of the same
// name. The intrinsic %Promise% gets a capability without allocating
// resolving functions.
func (vm *VM) NewPromiseCapability(c Value) (*PromiseCapability, error) {
	ctor := c.AsObject()
	if ctor == nil || !ctor.IsConstructor() {
		return nil, vm.NewTypeErrorf("Promise resolve or reject function is not callable")
	}
	if ctor == vm.realm.PromiseConstructor {
		p := vm.NewPromise()
		return &PromiseCapability{Promise: p, Resolve: Undefined, Reject: Undefined, state: &resolvingState{promise: p}}, nil
	}
	cap := &PromiseCapability{Resolve: Undefined, Reject: Undefined}
	executor := vm.NewNativeFunction("", 2, func(vm *VM, _ Value, args []Value) (Value, error) {
		if !cap.Resolve.IsUndefined() || !cap.Reject.IsUndefined() {
			return Undefined, vm.NewTypeError("Promise executor has already been invoked with non-undefined arguments")
		}
		cap.Resolve, cap.Reject = Arg(args, 0), Arg(args, 1)
		return Undefined, nil
	})
	executor.Internal.(*NativeFunction).Data = cap
	pv, err := vm.Construct(c, []Value{ObjectValue(executor)}, Undefined)
	if err != nil {
		return nil, err
	}
	if !cap.Resolve.IsCallable() || !cap.Reject.IsCallable() {
		return nil, vm.NewTypeError("Promise resolve or reject function is not callable")
	}
	cap.Promise = pv.AsObject()
	return cap, nil
}

// CapabilityFunctions returns callable resolve and reject functions for
// c. Built-in capabilities get them allocated on first use.
func (vm *VM) CapabilityFunctions(c *PromiseCapability) (resolve, reject Value) {
	if c.state == nil || !c.Resolve.IsUndefined() {
		return c.Resolve, c.Reject
	}
	st := c.state
	res := vm.NewNativeFunction("", 1, func(vm *VM, _ Value, args []Value) (Value, error) {
		vm.resolveWith(st, Arg(args, 0))
		return Undefined, nil
	})
	res.Internal.(*NativeFunction).Data = st
	rej := vm.NewNativeFunction("", 1, func(vm *VM, _ Value, args []Value) (Value, error) {
		vm.rejectWith(st, Arg(args, 0))
		return Undefined, nil
	})
	rej.Internal.(*NativeFunction).Data = st
	c.Resolve, c.Reject = ObjectValue(res), ObjectValue(rej)
	return c.Resolve, c.Reject
}

// newCapability returns a capability for a fresh %Promise%.
func (vm *VM) newCapability() *PromiseCapability {
	p := vm.NewPromise()
	return &PromiseCapability{Promise: p, Resolve: Undefined, Reject: Undefined, state: &resolvingState{promise: p}}
}

// ResolveCapability calls the capability's resolve function.
func (vm *VM) ResolveCapability(c *PromiseCapability, v Value) error {
	if c.state != nil {
		vm.resolveWith(c.state, v)
		return nil
	}
	_, err := vm.Call(c.Resolve, Undefined, v)
	return err
}

// RejectCapability calls the capability's reject function.
func (vm *VM) RejectCapability(c *PromiseCapability, reason Value) error {
	if c.state != nil {
		vm.rejectWith(c.state, reason)
		return nil
	}
	_, err := vm.Call(c.Reject, Undefined, reason)
	return err
}

// IsPromise reports whether v is a promise object.
func IsPromise(v Value) bool { return PromiseOf(v.AsObject()) != nil }

// PromiseResolve implements the abstract operation of the same name.
func (vm *VM) PromiseResolve(c *Object, x Value) (*Object, error) {
	if c == nil {
		// No Promise constructor installed: plain intrinsic promises only.
		if IsPromise(x) {
			return x.AsObject(), nil
		}
		cap := vm.newCapability()
		vm.resolveWith(cap.state, x)
		return cap.Promise, nil
	}
	if IsPromise(x) {
		ctor, err := x.AsObject().Get(vm, StrKey("constructor"), x)
		if err != nil {
			return nil, err
		}
		if ctor.AsObject() == c {
			return x.AsObject(), nil
		}
	}
	cap, err := vm.NewPromiseCapability(ObjectValue(c))
	if err != nil {
		return nil, err
	}
	if err := vm.ResolveCapability(cap, x); err != nil {
		return nil, err
	}
	return cap.Promise, nil
}

// PerformPromiseThen registers script reactions on p. cap may be nil.
func (vm *VM) PerformPromiseThen(p *Object, onFulfilled, onRejected Value, cap *PromiseCapability) {
	if !onFulfilled.IsCallable() {
		onFulfilled = Undefined
	}
	if !onRejected.IsCallable() {
		onRejected = Undefined
	}
	vm.addReactions(p,
		&promiseReaction{capability: cap, kind: reactionFulfill, handler: onFulfilled},
		&promiseReaction{capability: cap, kind: reactionReject, handler: onRejected})
}

// Then registers Go callbacks on p. roots are kept alive until the
// promise settles.
func (vm *VM) Then(p *Object, onFulfilled, onRejected func(vm *VM, v Value) (Value, error), roots ...Value) {
	vm.addReactions(p,
		&promiseReaction{kind: reactionFulfill, native: onFulfilled, roots: roots},
		&promiseReaction{kind: reactionReject, native: onRejected, roots: roots})
}

func (vm *VM) addReactions(p *Object, fulfill, reject *promiseReaction) {
	d := PromiseOf(p)
	switch d.State {
	case PromisePending:
		d.fulfillReactions = append(d.fulfillReactions, fulfill)
		d.rejectReactions = append(d.rejectReactions, reject)
	case PromiseFulfilled:
		vm.enqueueReaction(fulfill, d.Result)
	case PromiseRejected:
		if !d.Handled {
			vm.trackRejection(p, true)
		}
		vm.enqueueReaction(reject, d.Result)
	}
	d.Handled = true
}

func (d *PromiseData) trace(m *marker) {
	m.value(d.Result)
	for _, r := range d.fulfillReactions {
		r.trace(m)
	}
	for _, r := range d.rejectReactions {
		r.trace(m)
	}
}

// asyncState belongs to the frame of a running async function.
type asyncState struct {
	promise *Object
}

// await suspends f until v settles. The caller pops the frame.
func (vm *VM) await(f *frame, v Value) error {
	p, err := vm.PromiseResolve(vm.realm.PromiseConstructor, v)
	if err != nil {
		return err
	}
	vm.addReactions(p,
		&promiseReaction{kind: reactionFulfill, await: f},
		&promiseReaction{kind: reactionReject, await: f})
	return nil
}

// resumeAwait continues a frame suspended in await with the settled
// value, throwing it at the await when the promise was rejected.
func (vm *VM) resumeAwait(f *frame, rejected bool, v Value) error {
	f.boundary = true
	if err := vm.pushFrame(f); err != nil {
		return err
	}
	var result Value
	var err error
	if rejected {
		result, err = vm.throwInto(vm.Throw(v))
	} else {
		f.regs[f.awaitDst] = v
		result, err = vm.run()
	}
	if g := f.gen; g != nil && g.async {
		return vm.asyncGenAfterRun(g, result, err)
	}
	return err
}
