package vm

// String exotic objects expose the code units of their primitive value as
// read-only indexed properties plus a non-writable length.

func (o *Object) primitiveString() *String {
	return o.Internal.(Value).AsString()
}

func (o *Object) stringIndex(key PropertyKey) (int, bool) {
	idx, ok := key.ArrayIndex()
	if !ok || int64(idx) >= int64(o.primitiveString().Length()) {
		return 0, false
	}
	return int(idx), true
}

func (o *Object) stringHasIndex(key PropertyKey) bool {
	_, ok := o.stringIndex(key)
	return ok
}

func (o *Object) stringGetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	s := o.primitiveString()
	if i, ok := o.stringIndex(key); ok {
		return DataDescriptor(StringValue(s.Substring(i, i+1)), Enumerable), true
	}
	if key.Is("length") {
		return DataDescriptor(IntValue(s.Length()), 0), true
	}
	return o.ordinaryGetOwnProperty(key)
}

func (o *Object) stringDefineOwnProperty(key PropertyKey, desc PropertyDescriptor) bool {
	if o.stringHasIndex(key) || key.Is("length") {
		cur, _ := o.stringGetOwnProperty(key)
		return isCompatibleDescriptor(desc, cur)
	}
	return o.ordinaryDefineOwnProperty(key, desc)
}

// ArgumentsData backs a mapped arguments object: indices listed in Slots
// alias bindings of the function environment.
type ArgumentsData struct {
	Env   *Env
	Slots []int32 // -1 once unmapped
}

func (o *Object) argumentsSlot(key PropertyKey) (*ArgumentsData, int32) {
	ad, ok := o.Internal.(*ArgumentsData)
	if !ok {
		return nil, -1
	}
	idx, ok := key.ArrayIndex()
	if !ok || int64(idx) >= int64(len(ad.Slots)) {
		return nil, -1
	}
	return ad, ad.Slots[idx]
}

func (o *Object) argumentsUnmap(key PropertyKey) {
	if ad, slot := o.argumentsSlot(key); slot >= 0 {
		idx, _ := key.ArrayIndex()
		ad.Slots[idx] = -1
	}
}

func (o *Object) argumentsGetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	d, ok := o.ordinaryGetOwnProperty(key)
	if !ok {
		return d, false
	}
	if ad, slot := o.argumentsSlot(key); slot >= 0 {
		d.Value = ad.Env.slots[slot]
	}
	return d, true
}

func (o *Object) argumentsDefineOwnProperty(key PropertyKey, desc PropertyDescriptor) bool {
	ad, slot := o.argumentsSlot(key)
	newArgDesc := desc
	if slot >= 0 && desc.IsData() && !desc.HasValue() && desc.HasWritable() && !desc.Writable {
		newArgDesc.SetValue(ad.Env.slots[slot])
	}
	if !o.ordinaryDefineOwnProperty(key, newArgDesc) {
		return false
	}
	if slot >= 0 {
		if desc.IsAccessor() {
			o.argumentsUnmap(key)
		} else {
			if desc.HasValue() {
				ad.Env.slots[slot] = desc.Value
			}
			if desc.HasWritable() && !desc.Writable {
				o.argumentsUnmap(key)
			}
		}
	}
	return true
}

// NewArguments creates an arguments object. When env is non-nil the first
// len(slots) arguments are mapped to the given environment slots.
func (vm *VM) NewArguments(args []Value, callee *Object, env *Env, slots []int32) *Object {
	o := vm.NewObjectClass(ClassArguments, vm.realm.ObjectPrototype)
	for i, a := range args {
		o.props.put(IndexKey(uint32(i)), a, Undefined, DefaultFlags)
	}
	o.props.put(StrKey("length"), IntValue(len(args)), Undefined, MethodFlags)
	o.props.put(SymKey(SymIterator), vm.realm.ArrayValues, Undefined, MethodFlags)
	if env != nil && callee != nil {
		n := min(len(slots), len(args))
		ad := &ArgumentsData{Env: env, Slots: make([]int32, n)}
		copy(ad.Slots, slots[:n])
		// A later parameter with the same name wins the mapping.
		seen := make(map[int32]bool, n)
		for i := n - 1; i >= 0; i-- {
			if seen[ad.Slots[i]] {
				ad.Slots[i] = -1
			}
			seen[ad.Slots[i]] = true
		}
		o.Internal = ad
		o.props.put(StrKey("callee"), ObjectValue(callee), Undefined, MethodFlags)
	} else {
		thrower := ObjectValue(vm.realm.ThrowTypeError)
		o.props.put(StrKey("callee"), thrower, thrower, Accessor)
	}
	return o
}
