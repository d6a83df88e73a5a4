package vm

import (
	"time"
)

const defaultGCThreshold = 64 * 1024

// Heap tracks every object allocated by a VM and runs a mark phase over
// the object graph at safe points of the interpreter loop.
//
// Memory itself is reclaimed by the Go runtime once the registry forgets
// an unreachable object. The collector exists for the observable side of
// reachability: WeakRef targets are cleared, WeakMap and WeakSet entries
// whose keys died are dropped and FinalizationRegistry cells of dead
// targets are removed.
type Heap struct {
	vm        *VM
	objects   []*Object
	epoch     uint32
	allocs    int
	threshold int
	stress    bool
	// pending requests a collection at the next safe point.
	pending bool

	handles    map[uint64]Value
	nextHandle uint64
	roots      []func(visit func(Value))

	stats HeapStats
}

// HeapStats describes the collector's activity.
type HeapStats struct {
	Live         int
	Allocated    int
	Collections  int
	Freed        int
	Envs         int
	LastDuration time.Duration
}

// Tracer is implemented by internal slot types that hold script values
// the collector cannot otherwise see, typically the state of built-in
// iterators and host objects.
type Tracer interface {
	Trace(visit func(Value))
}

// tracer is the richer form used by VM internals that reference
// environments and frames.
type tracer interface {
	trace(m *marker)
}

func newHeap(vm *VM, threshold int, stress bool) *Heap {
	if threshold <= 0 {
		threshold = defaultGCThreshold
	}
	return &Heap{
		vm:        vm,
		threshold: threshold,
		stress:    stress,
		handles:   make(map[uint64]Value),
	}
}

func (h *Heap) register(o *Object) {
	h.objects = append(h.objects, o)
	h.allocs++
	h.stats.Allocated++
	if h.stress || h.allocs >= h.threshold {
		h.pending = true
	}
}

func (h *Heap) envAllocated() { h.stats.Envs++ }

// Stats returns a snapshot of the collector counters.
func (h *Heap) Stats() HeapStats {
	s := h.stats
	s.Live = len(h.objects)
	return s
}

// AddRoots registers a host callback that reports additional roots on
// every collection.
func (h *Heap) AddRoots(fn func(visit func(Value))) { h.roots = append(h.roots, fn) }

// Handle keeps a value alive across collections while Go code holds it.
type Handle struct {
	heap *Heap
	id   uint64
}

// NewHandle roots v until the handle is released.
func (vm *VM) NewHandle(v Value) Handle {
	h := vm.heap
	h.nextHandle++
	h.handles[h.nextHandle] = v
	return Handle{heap: h, id: h.nextHandle}
}

func (hd Handle) Value() Value { return hd.heap.handles[hd.id] }

func (hd Handle) Release() { delete(hd.heap.handles, hd.id) }

// NewObject creates an ordinary object inheriting from %Object.prototype%.
func (vm *VM) NewObject() *Object {
	return vm.NewObjectClass(ClassObject, vm.realm.ObjectPrototype)
}

// NewObjectClass allocates an object of class c and registers it with
// the collector.
func (vm *VM) NewObjectClass(c Class, proto *Object) *Object {
	o := newObject(c, proto)
	vm.heap.register(o)
	return o
}

// Collect runs a full collection immediately. It must not be called while
// script or native code is running.
func (vm *VM) Collect() { vm.heap.collect() }

// HeapStats returns the collector counters.
func (vm *VM) HeapStats() HeapStats { return vm.heap.Stats() }

type marker struct {
	epoch uint32
	stack []*Object
	// frames already traced; suspended frames can be reachable twice.
	frames map[*frame]bool

	weakMaps   []*WeakMapData
	weakRefs   []*WeakRefData
	registries []*FinalizationRegistryData
}

func (m *marker) value(v Value) {
	if v.typ == TypeObject {
		m.object(v.AsObject())
	}
}

func (m *marker) values(vs []Value) {
	for _, v := range vs {
		m.value(v)
	}
}

func (m *marker) object(o *Object) {
	if o == nil || o.mark == m.epoch {
		return
	}
	o.mark = m.epoch
	m.stack = append(m.stack, o)
}

func (m *marker) env(e *Env) {
	for ; e != nil; e = e.parent {
		if e.mark == m.epoch {
			return
		}
		e.mark = m.epoch
		m.values(e.slots)
		m.object(e.withObj)
		for _, b := range e.dyn {
			m.value(b.value)
		}
		for _, c := range e.imports {
			m.env(c.env)
			m.object(c.ns)
		}
	}
}

func (m *marker) frame(f *frame) {
	if f == nil || m.frames[f] {
		return
	}
	m.frames[f] = true
	m.values(f.regs)
	m.env(f.env)
	m.value(f.this)
	m.value(f.newTarget)
	m.values(f.args)
	m.object(f.callee)
	if f.closure != nil {
		m.closure(f.closure)
	}
	if f.async != nil {
		m.object(f.async.promise)
	}
	if f.gen != nil {
		m.generator(f.gen)
	}
}

func (m *marker) closure(c *Closure) {
	m.env(c.Env)
	m.object(c.Home)
	m.object(c.Fields)
}

// traceObject visits everything o references strongly.
func (m *marker) traceObject(o *Object) {
	m.object(o.proto)
	o.props.each(func(p *property) bool {
		m.value(p.value)
		m.value(p.set)
		return true
	})
	m.values(o.elems)
	switch in := o.Internal.(type) {
	case nil:
	case Value:
		m.value(in)
	case *Closure:
		m.closure(in)
	case *NativeFunction:
		m.any(in.Data)
	case *BoundFunction:
		m.object(in.Target)
		m.value(in.This)
		m.values(in.Args)
	case *ProxyData:
		m.object(in.Target)
		m.object(in.Handler)
	case *ArgumentsData:
		m.env(in.Env)
	case *TypedArray:
		m.object(in.Buffer)
	case *DataViewData:
		m.object(in.Buffer)
	case *WeakMapData:
		m.weakMaps = append(m.weakMaps, in)
	case *WeakRefData:
		m.weakRefs = append(m.weakRefs, in)
	case *PromiseData:
		in.trace(m)
	case *FinalizationRegistryData:
		m.registries = append(m.registries, in)
		m.value(in.Cleanup)
		for _, c := range in.cells {
			m.value(c.held)
		}
	default:
		m.any(in)
	}
}

// any traces internal state of unknown type.
func (m *marker) any(x any) {
	switch t := x.(type) {
	case nil:
	case tracer:
		t.trace(m)
	case Tracer:
		t.Trace(m.value)
	case Value:
		m.value(t)
	case *Object:
		m.object(t)
	case []Value:
		m.values(t)
	}
}

func (m *marker) drain() {
	for len(m.stack) > 0 {
		o := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		m.traceObject(o)
	}
}

func (h *Heap) markRoots(m *marker) {
	vm := h.vm
	for _, f := range vm.frames {
		m.frame(f)
	}
	r := vm.realm
	r.eachIntrinsic(m.object)
	for _, b := range r.globalLex {
		m.value(b.Value)
	}
	for _, o := range r.templates {
		m.object(o)
	}
	for i := range vm.jobs {
		vm.jobs[i].trace(m)
	}
	if vm.currentJob != nil {
		vm.currentJob.trace(m)
	}
	for _, o := range vm.keptAlive {
		m.object(o)
	}
	for _, v := range h.handles {
		m.value(v)
	}
	for _, mod := range vm.modules {
		mod.trace(m)
	}
	for _, p := range vm.pendingRejections {
		m.object(p)
	}
	for _, fn := range h.roots {
		fn(m.value)
	}
}

func (h *Heap) collect() {
	start := time.Now()
	h.pending = false
	h.allocs = 0
	h.epoch++
	if h.epoch == 0 {
		// Marks from a previous cycle of the counter must not look live.
		for _, o := range h.objects {
			o.mark = 0
		}
		h.epoch = 1
	}
	m := &marker{epoch: h.epoch, frames: make(map[*frame]bool)}
	h.markRoots(m)
	m.drain()

	// Ephemerons: a WeakMap value is live only while its key is.
	for {
		progress := false
		for _, wm := range m.weakMaps {
			for k, v := range wm.entries {
				if ko, ok := k.(*Object); ok && ko.mark != m.epoch {
					continue
				}
				if o := v.AsObject(); o != nil && o.mark != m.epoch {
					m.object(o)
					progress = true
				}
			}
		}
		if !progress {
			break
		}
		m.drain()
	}

	for _, wm := range m.weakMaps {
		for k := range wm.entries {
			if ko, ok := k.(*Object); ok && ko.mark != m.epoch {
				delete(wm.entries, k)
			}
		}
	}
	for _, wr := range m.weakRefs {
		if wr.Target != nil && wr.Target.mark != m.epoch {
			wr.Target = nil
		}
	}
	for _, fr := range m.registries {
		fr.sweep(m.epoch)
	}

	live := h.objects[:0]
	for _, o := range h.objects {
		if o.mark == m.epoch {
			live = append(live, o)
		}
	}
	freed := len(h.objects) - len(live)
	clear(h.objects[len(live):])
	h.objects = live

	h.stats.Collections++
	h.stats.Freed += freed
	h.stats.LastDuration = time.Since(start)
	h.vm.logger.Debug("gc.collect", "live", len(live), "freed", freed, "duration", h.stats.LastDuration)
}
