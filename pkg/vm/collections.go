package vm

// OrderedMap is the storage of Map and Set: a hash index over a doubly
// linked list in insertion order.
//
// Deleted entries are unlinked but keep their prev pointer, so an
// iterator parked on one walks back to the nearest live entry and
// continues from there. Entries added during iteration are visited.
type OrderedMap struct {
	head  mapEntry
	tail  *mapEntry
	index map[mapKey]*mapEntry
}

type mapEntry struct {
	Key     Value
	Value   Value
	prev    *mapEntry
	next    *mapEntry
	deleted bool
}

func NewOrderedMap() *OrderedMap {
	m := &OrderedMap{index: make(map[mapKey]*mapEntry)}
	m.tail = &m.head
	return m
}

// normalizeKey turns -0 into +0 as Map.prototype.set and Set.prototype.add
// do.
func normalizeKey(k Value) Value {
	if k.typ == TypeNumber && k.num == 0 {
		return NumberValue(0)
	}
	return k
}

func (m *OrderedMap) Len() int { return len(m.index) }

func (m *OrderedMap) Get(k Value) (Value, bool) {
	if e, ok := m.index[k.mapKey()]; ok {
		return e.Value, true
	}
	return Undefined, false
}

func (m *OrderedMap) Has(k Value) bool {
	_, ok := m.index[k.mapKey()]
	return ok
}

func (m *OrderedMap) Set(k, v Value) {
	k = normalizeKey(k)
	mk := k.mapKey()
	if e, ok := m.index[mk]; ok {
		e.Value = v
		return
	}
	e := &mapEntry{Key: k, Value: v, prev: m.tail}
	m.tail.next = e
	m.tail = e
	m.index[mk] = e
}

func (m *OrderedMap) Delete(k Value) bool {
	mk := k.mapKey()
	e, ok := m.index[mk]
	if !ok {
		return false
	}
	delete(m.index, mk)
	e.deleted = true
	e.prev.next = e.next
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
	e.Value = Undefined
	return true
}

func (m *OrderedMap) Clear() {
	for e := m.head.next; e != nil; {
		next := e.next
		e.deleted = true
		e.prev = &m.head
		e.next = nil
		e.Value = Undefined
		e = next
	}
	m.head.next = nil
	m.tail = &m.head
	clear(m.index)
}

// Each calls fn for every live entry in order; entries added by fn are
// visited too. It stops when fn returns false.
func (m *OrderedMap) Each(fn func(k, v Value) bool) {
	it := m.Iterator()
	for {
		k, v, ok := it.Next()
		if !ok || !fn(k, v) {
			return
		}
	}
}

func (m *OrderedMap) Trace(visit func(Value)) {
	for e := m.head.next; e != nil; e = e.next {
		visit(e.Key)
		visit(e.Value)
	}
}

// OrderedMapIterator is a live cursor over an OrderedMap.
type OrderedMapIterator struct {
	m    *OrderedMap
	cur  *mapEntry
	done bool
}

func (m *OrderedMap) Iterator() *OrderedMapIterator {
	return &OrderedMapIterator{m: m, cur: &m.head}
}

// Next returns the next live entry. Once exhausted the iterator stays
// exhausted even if entries are added later.
func (it *OrderedMapIterator) Next() (k, v Value, ok bool) {
	if it.done {
		return Undefined, Undefined, false
	}
	e := it.cur
	for e.deleted {
		e = e.prev
	}
	if e.next == nil {
		it.done = true
		it.cur = nil
		return Undefined, Undefined, false
	}
	it.cur = e.next
	return it.cur.Key, it.cur.Value, true
}

func (it *OrderedMapIterator) Trace(visit func(Value)) {
	if !it.done {
		it.m.Trace(visit)
	}
}

// CanBeHeldWeakly reports whether v may be a WeakMap key, WeakSet member
// or WeakRef target: objects and symbols not created by Symbol.for.
func CanBeHeldWeakly(v Value) bool {
	switch v.typ {
	case TypeObject:
		return true
	case TypeSymbol:
		return v.AsSymbol().Registered == nil
	}
	return false
}

func weakKey(v Value) any {
	if v.typ == TypeObject {
		return v.AsObject()
	}
	return v.AsSymbol()
}

// WeakMapData is the storage of WeakMap and WeakSet. Object keys do not
// keep their entries alive; symbol keys are never collected.
type WeakMapData struct {
	entries map[any]Value
}

func NewWeakMapData() *WeakMapData { return &WeakMapData{entries: make(map[any]Value)} }

func (w *WeakMapData) Get(k Value) (Value, bool) {
	if !CanBeHeldWeakly(k) {
		return Undefined, false
	}
	v, ok := w.entries[weakKey(k)]
	return v, ok
}

func (w *WeakMapData) Has(k Value) bool {
	_, ok := w.Get(k)
	return ok
}

// Set stores v under k, which must satisfy CanBeHeldWeakly.
func (w *WeakMapData) Set(k, v Value) { w.entries[weakKey(k)] = v }

func (w *WeakMapData) Delete(k Value) bool {
	if !CanBeHeldWeakly(k) {
		return false
	}
	key := weakKey(k)
	if _, ok := w.entries[key]; !ok {
		return false
	}
	delete(w.entries, key)
	return true
}

func (w *WeakMapData) Len() int { return len(w.entries) }

// WeakRefData is the internal slot of a WeakRef. Target is cleared by the
// collector once nothing else holds the object.
type WeakRefData struct {
	Target *Object
	Symbol *Symbol
}

func NewWeakRefData(v Value) *WeakRefData {
	if v.typ == TypeSymbol {
		return &WeakRefData{Symbol: v.AsSymbol()}
	}
	return &WeakRefData{Target: v.AsObject()}
}

// Deref returns the target, or undefined once it was collected. An
// object target is kept alive until the end of the current job.
func (vm *VM) Deref(w *WeakRefData) Value {
	if w.Symbol != nil {
		return SymbolValue(w.Symbol)
	}
	if w.Target == nil {
		return Undefined
	}
	vm.KeepDuringJob(w.Target)
	return ObjectValue(w.Target)
}

// FinalizationRegistryData is the internal slot set of a
// FinalizationRegistry. Cells whose target dies are dropped by the
// collector; cleanup callbacks are never run.
type FinalizationRegistryData struct {
	Cleanup Value
	cells   []finalizationCell
}

type finalizationCell struct {
	target *Object
	sym    *Symbol
	held   Value
	token  any
}

// Register adds a cell. token is undefined or a value that can be held
// weakly.
func (r *FinalizationRegistryData) Register(target, held, token Value) {
	c := finalizationCell{held: held}
	if target.typ == TypeSymbol {
		c.sym = target.AsSymbol()
	} else {
		c.target = target.AsObject()
	}
	if CanBeHeldWeakly(token) {
		c.token = weakKey(token)
	}
	r.cells = append(r.cells, c)
}

// Unregister removes every cell registered with token.
func (r *FinalizationRegistryData) Unregister(token Value) bool {
	key := weakKey(token)
	kept := r.cells[:0]
	for _, c := range r.cells {
		if c.token != key {
			kept = append(kept, c)
		}
	}
	removed := len(kept) != len(r.cells)
	clear(r.cells[len(kept):])
	r.cells = kept
	return removed
}

// Cells returns the number of live registrations.
func (r *FinalizationRegistryData) Cells() int { return len(r.cells) }

func (r *FinalizationRegistryData) sweep(epoch uint32) {
	kept := r.cells[:0]
	for _, c := range r.cells {
		if c.target != nil && c.target.mark != epoch {
			continue
		}
		if o, ok := c.token.(*Object); ok && o.mark != epoch {
			c.token = nil
		}
		kept = append(kept, c)
	}
	clear(r.cells[len(kept):])
	r.cells = kept
}
