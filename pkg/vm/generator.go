package vm

type generatorState uint8

const (
	genSuspendedStart generatorState = iota
	genSuspendedYield
	// genExecuting also covers an async generator suspended in await.
	genExecuting
	genAwaitingReturn
	genCompleted
)

// generatorData is the internal slot set of generator and async generator
// objects. The suspended frame keeps its registers and environment; the
// registers written on resumption are recorded by the yield that
// suspended it.
type generatorData struct {
	frame *frame
	state generatorState

	yieldDst int
	modeReg  int
	flags    int

	async bool
	// queue holds the pending requests of an async generator.
	queue []*asyncGenRequest
}

type asyncGenRequest struct {
	mode  int
	value Value
	cap   *PromiseCapability
}

func (g *generatorData) trace(m *marker) { m.generator(g) }

func (m *marker) generator(g *generatorData) {
	m.frame(g.frame)
	for _, r := range g.queue {
		m.value(r.value)
		r.cap.trace(m)
	}
}

// newGeneratorObject turns the frame of a generator function that just
// ran its parameter initialization into the generator object's suspended
// state.
func (vm *VM) newGeneratorObject(f *frame) (*Object, error) {
	async := f.fn.Kind == KindAsyncGenerator
	class, proto := ClassGenerator, vm.realm.GeneratorPrototype
	if async {
		class, proto = ClassAsyncGenerator, vm.realm.AsyncGeneratorPrototype
	}
	pv, err := f.callee.Get(vm, StrKey("prototype"), ObjectValue(f.callee))
	if err != nil {
		return nil, err
	}
	if pv.IsObject() {
		proto = pv.AsObject()
	}
	g := &generatorData{frame: f, state: genSuspendedStart, async: async}
	f.gen = g
	o := vm.NewObjectClass(class, proto)
	o.Internal = g
	return o, nil
}

func (vm *VM) generatorOf(v Value, async bool, method string) (*generatorData, error) {
	if o := v.AsObject(); o != nil {
		if g, ok := o.Internal.(*generatorData); ok && g.async == async {
			return g, nil
		}
	}
	return nil, vm.NewTypeErrorf("%s method called on incompatible receiver %s", method, Inspect(v))
}

// GeneratorResume implements %GeneratorPrototype%.next, return and throw
// for the given resume mode.
func (vm *VM) GeneratorResume(gen Value, mode int, v Value, method string) (Value, error) {
	g, err := vm.generatorOf(gen, false, method)
	if err != nil {
		return Undefined, err
	}
	switch g.state {
	case genExecuting:
		return Undefined, vm.NewTypeError("Generator is already running")
	case genSuspendedStart:
		if mode != ResumeNext {
			g.state = genCompleted
			g.frame = nil
		}
	}
	if g.state == genCompleted {
		switch mode {
		case ResumeThrow:
			return Undefined, vm.Throw(v)
		case ResumeReturn:
			return vm.iterResult(v, true), nil
		}
		return vm.iterResult(Undefined, true), nil
	}
	result, err := vm.resumeGenerator(g, mode, v)
	if err != nil {
		return Undefined, err
	}
	if g.state == genCompleted {
		return vm.iterResult(result, true), nil
	}
	if g.flags&YieldRaw != 0 {
		return result, nil
	}
	return vm.iterResult(result, false), nil
}

// resumeGenerator re-enters the suspended frame of g. A throw resumption
// is raised at the yield unless the yield delegates the mode to code.
func (vm *VM) resumeGenerator(g *generatorData, mode int, v Value) (Value, error) {
	f := g.frame
	start := g.state == genSuspendedStart
	g.state = genExecuting
	f.boundary = true
	if err := vm.pushFrame(f); err != nil {
		g.state = genCompleted
		g.frame = nil
		return Undefined, err
	}
	switch {
	case start:
		return vm.run()
	case mode == ResumeThrow && g.flags&YieldDelegate == 0:
		return vm.throwInto(vm.Throw(v))
	}
	f.regs[g.yieldDst] = v
	f.regs[g.modeReg] = IntValue(mode)
	return vm.run()
}

// AsyncGeneratorEnqueue implements %AsyncGeneratorPrototype%.next, return
// and throw: the request is queued and a promise for its result returned.
func (vm *VM) AsyncGeneratorEnqueue(gen Value, mode int, v Value, method string) Value {
	cap := vm.newCapability()
	g, err := vm.generatorOf(gen, true, method)
	if err != nil {
		vm.rejectWith(cap.state, vm.toException(err).Value)
		return ObjectValue(cap.Promise)
	}
	g.queue = append(g.queue, &asyncGenRequest{mode: mode, value: v, cap: cap})
	if g.state != genExecuting && g.state != genAwaitingReturn {
		if err := vm.asyncGenResumeNext(g); err != nil {
			vm.logger.Debug("async generator step failed", "error", err)
		}
	}
	return ObjectValue(cap.Promise)
}

// asyncGenCompleteStep settles the oldest request.
func (vm *VM) asyncGenCompleteStep(g *generatorData, throw bool, v Value, done bool) {
	req := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	if throw {
		vm.rejectWith(req.cap.state, v)
		return
	}
	vm.resolveWith(req.cap.state, vm.iterResult(v, done))
}

// asyncGenResumeNext serves queued requests until the generator suspends
// in await or the queue is empty.
func (vm *VM) asyncGenResumeNext(g *generatorData) error {
	for len(g.queue) > 0 {
		if g.state == genExecuting || g.state == genAwaitingReturn {
			return nil
		}
		req := g.queue[0]
		if req.mode != ResumeNext && g.state == genSuspendedStart {
			g.state = genCompleted
			g.frame = nil
		}
		if g.state == genCompleted {
			switch req.mode {
			case ResumeReturn:
				vm.asyncGenAwaitReturn(g, req.value)
				return nil
			case ResumeThrow:
				vm.asyncGenCompleteStep(g, true, req.value, true)
			default:
				vm.asyncGenCompleteStep(g, false, Undefined, true)
			}
			continue
		}
		result, err := vm.resumeGenerator(g, req.mode, req.value)
		return vm.asyncGenAfterRun(g, result, err)
	}
	return nil
}

// asyncGenAwaitReturn handles return() on a completed async generator:
// the value is awaited before the request settles.
func (vm *VM) asyncGenAwaitReturn(g *generatorData, v Value) {
	g.state = genAwaitingReturn
	p, err := vm.PromiseResolve(vm.realm.PromiseConstructor, v)
	if err != nil {
		g.state = genCompleted
		vm.asyncGenCompleteStep(g, true, vm.toException(err).Value, true)
		_ = vm.asyncGenResumeNext(g)
		return
	}
	settle := func(throw bool) func(vm *VM, v Value) (Value, error) {
		return func(vm *VM, v Value) (Value, error) {
			g.state = genCompleted
			vm.asyncGenCompleteStep(g, throw, v, true)
			return Undefined, vm.asyncGenResumeNext(g)
		}
	}
	vm.Then(p, settle(false), settle(true), g.roots()...)
}

// roots lists what a pending native reaction on g must keep alive.
func (g *generatorData) roots() []Value {
	var vs []Value
	for _, r := range g.queue {
		vs = append(vs, r.value, ObjectValue(r.cap.Promise))
	}
	return vs
}

// asyncGenAfterRun settles requests after the generator's frame stopped
// running, then continues with the queue.
func (vm *VM) asyncGenAfterRun(g *generatorData, result Value, err error) error {
	switch g.state {
	case genExecuting:
		return err
	case genSuspendedYield:
		vm.asyncGenCompleteStep(g, false, result, false)
	case genCompleted:
		if err != nil {
			vm.asyncGenCompleteStep(g, true, vm.toException(err).Value, true)
		} else {
			vm.asyncGenCompleteStep(g, false, result, true)
		}
	}
	return vm.asyncGenResumeNext(g)
}
