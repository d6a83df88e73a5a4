package vm

// Flags are the attribute bits stored with each property.
type Flags uint8

const (
	Writable Flags = 1 << iota
	Enumerable
	Configurable
	Accessor
	deleted

	// DefaultFlags are the attributes of properties created by assignment.
	DefaultFlags = Writable | Enumerable | Configurable
	// MethodFlags are used for built-in methods: non-enumerable.
	MethodFlags = Writable | Configurable
)

func (f Flags) Writable() bool     { return f&Writable != 0 }
func (f Flags) Enumerable() bool   { return f&Enumerable != 0 }
func (f Flags) Configurable() bool { return f&Configurable != 0 }
func (f Flags) IsAccessor() bool   { return f&Accessor != 0 }

type descFields uint8

const (
	hasValue descFields = 1 << iota
	hasWritable
	hasGet
	hasSet
	hasEnumerable
	hasConfigurable
)

// PropertyDescriptor is a (possibly partial) property descriptor as used by
// [[DefineOwnProperty]] and returned (complete) by [[GetOwnProperty]].
type PropertyDescriptor struct {
	Value        Value
	Getter       Value
	Setter       Value
	Writable     bool
	Enumerable   bool
	Configurable bool
	fields       descFields
}

// DataDescriptor builds a complete data descriptor.
func DataDescriptor(v Value, flags Flags) PropertyDescriptor {
	return PropertyDescriptor{
		Value:        v,
		Getter:       Undefined,
		Setter:       Undefined,
		Writable:     flags.Writable(),
		Enumerable:   flags.Enumerable(),
		Configurable: flags.Configurable(),
		fields:       hasValue | hasWritable | hasEnumerable | hasConfigurable,
	}
}

// AccessorDescriptor builds a complete accessor descriptor. Missing
// functions are Undefined.
func AccessorDescriptor(get, set Value, flags Flags) PropertyDescriptor {
	return PropertyDescriptor{
		Value:        Undefined,
		Getter:       get,
		Setter:       set,
		Enumerable:   flags.Enumerable(),
		Configurable: flags.Configurable(),
		fields:       hasGet | hasSet | hasEnumerable | hasConfigurable,
	}
}

func (d *PropertyDescriptor) HasValue() bool        { return d.fields&hasValue != 0 }
func (d *PropertyDescriptor) HasWritable() bool     { return d.fields&hasWritable != 0 }
func (d *PropertyDescriptor) HasGet() bool          { return d.fields&hasGet != 0 }
func (d *PropertyDescriptor) HasSet() bool          { return d.fields&hasSet != 0 }
func (d *PropertyDescriptor) HasEnumerable() bool   { return d.fields&hasEnumerable != 0 }
func (d *PropertyDescriptor) HasConfigurable() bool { return d.fields&hasConfigurable != 0 }

func (d *PropertyDescriptor) SetValue(v Value) { d.Value = v; d.fields |= hasValue }
func (d *PropertyDescriptor) SetWritable(b bool) {
	d.Writable = b
	d.fields |= hasWritable
}
func (d *PropertyDescriptor) SetGet(v Value) { d.Getter = v; d.fields |= hasGet }
func (d *PropertyDescriptor) SetSet(v Value) { d.Setter = v; d.fields |= hasSet }
func (d *PropertyDescriptor) SetEnumerable(b bool) {
	d.Enumerable = b
	d.fields |= hasEnumerable
}
func (d *PropertyDescriptor) SetConfigurable(b bool) {
	d.Configurable = b
	d.fields |= hasConfigurable
}

func (d *PropertyDescriptor) IsAccessor() bool { return d.fields&(hasGet|hasSet) != 0 }
func (d *PropertyDescriptor) IsData() bool     { return d.fields&(hasValue|hasWritable) != 0 }
func (d *PropertyDescriptor) IsGeneric() bool  { return !d.IsAccessor() && !d.IsData() }

// Flags returns the attribute bits of a complete descriptor.
func (d *PropertyDescriptor) Flags() Flags {
	var f Flags
	if d.Enumerable {
		f |= Enumerable
	}
	if d.Configurable {
		f |= Configurable
	}
	if d.IsAccessor() {
		f |= Accessor
	} else if d.Writable {
		f |= Writable
	}
	return f
}

// complete fills in defaults for absent fields (CompletePropertyDescriptor).
func (d *PropertyDescriptor) complete() {
	if d.IsGeneric() || d.IsData() {
		if !d.HasValue() {
			d.SetValue(Undefined)
		}
		if !d.HasWritable() {
			d.SetWritable(false)
		}
	} else {
		if !d.HasGet() {
			d.SetGet(Undefined)
		}
		if !d.HasSet() {
			d.SetSet(Undefined)
		}
	}
	if !d.HasEnumerable() {
		d.SetEnumerable(false)
	}
	if !d.HasConfigurable() {
		d.SetConfigurable(false)
	}
}

type property struct {
	key   PropertyKey
	value Value // the getter for accessor properties
	set   Value
	flags Flags
}

func (p *property) descriptor() PropertyDescriptor {
	if p.flags.IsAccessor() {
		return AccessorDescriptor(p.value, p.set, p.flags)
	}
	return DataDescriptor(p.value, p.flags)
}

// propertyMap stores properties in insertion order. Small maps are scanned
// linearly; an index is built once they grow.
type propertyMap struct {
	entries []property
	index   map[PropertyKey]int32
	dead    int
}

const propertyIndexThreshold = 8

func (m *propertyMap) find(key PropertyKey) int {
	if m.index != nil {
		if i, ok := m.index[key]; ok {
			return int(i)
		}
		return -1
	}
	for i := range m.entries {
		e := &m.entries[i]
		if e.key == key && e.flags&deleted == 0 {
			return i
		}
	}
	return -1
}

func (m *propertyMap) get(key PropertyKey) *property {
	if i := m.find(key); i >= 0 {
		return &m.entries[i]
	}
	return nil
}

// put adds or replaces key.
func (m *propertyMap) put(key PropertyKey, value, set Value, flags Flags) {
	if i := m.find(key); i >= 0 {
		e := &m.entries[i]
		e.value, e.set, e.flags = value, set, flags
		return
	}
	m.entries = append(m.entries, property{key: key, value: value, set: set, flags: flags})
	if m.index != nil {
		m.index[key] = int32(len(m.entries) - 1)
	} else if len(m.entries)-m.dead > propertyIndexThreshold {
		m.rebuildIndex()
	}
}

func (m *propertyMap) remove(key PropertyKey) {
	i := m.find(key)
	if i < 0 {
		return
	}
	m.entries[i] = property{key: key, flags: deleted}
	m.dead++
	if m.index != nil {
		delete(m.index, key)
	}
	if m.dead > 8 && m.dead > len(m.entries)/2 {
		m.compact()
	}
}

func (m *propertyMap) compact() {
	live := make([]property, 0, len(m.entries)-m.dead)
	for _, e := range m.entries {
		if e.flags&deleted == 0 {
			live = append(live, e)
		}
	}
	m.entries = live
	m.dead = 0
	if m.index != nil || len(live) > propertyIndexThreshold {
		m.rebuildIndex()
	}
}

func (m *propertyMap) rebuildIndex() {
	m.index = make(map[PropertyKey]int32, len(m.entries))
	for i, e := range m.entries {
		if e.flags&deleted == 0 {
			m.index[e.key] = int32(i)
		}
	}
}

func (m *propertyMap) len() int { return len(m.entries) - m.dead }

// each visits live properties in insertion order. The callback must not
// add or remove properties.
func (m *propertyMap) each(fn func(p *property) bool) {
	for i := range m.entries {
		e := &m.entries[i]
		if e.flags&deleted != 0 {
			continue
		}
		if !fn(e) {
			return
		}
	}
}
