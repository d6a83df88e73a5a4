package vm

import (
	"math"
	"sort"
)

// maxDenseGap bounds how far past the end an assignment may land and still
// grow the dense element storage instead of going sparse.
const maxDenseGap = 1024

// putDense stores v at idx in the dense storage if that is possible.
func (o *Object) putDense(idx uint32, v Value) bool {
	n := len(o.elems)
	switch {
	case int64(idx) < int64(n):
		o.elems[idx] = v
	case int64(idx) <= int64(n)+maxDenseGap && idx < 1<<26:
		if int(idx) >= cap(o.elems) {
			grown := make([]Value, n, max(int(idx)+1, 2*n+4))
			copy(grown, o.elems)
			o.elems = grown
		}
		for i := n; i < int(idx); i++ {
			o.elems = append(o.elems, Empty)
		}
		o.elems = append(o.elems, v)
	default:
		return false
	}
	if idx >= o.length {
		o.length = idx + 1
	}
	return true
}

// ArrayLength returns the length of an array object.
func (o *Object) ArrayLength() uint32 { return o.length }

// DenseElements returns the element storage of an array when it has no
// holes, no sparse elements and default attributes. Callers may read but
// not resize the slice.
func (o *Object) DenseElements() ([]Value, bool) {
	if o.class != ClassArray || uint32(len(o.elems)) != o.length || o.elemAttr != DefaultFlags {
		return nil, false
	}
	for _, v := range o.elems {
		if v.IsEmpty() {
			return nil, false
		}
	}
	return o.elems, true
}

// AppendElement pushes v onto a fresh array during construction.
func (o *Object) AppendElement(v Value) {
	if !o.putDense(o.length, v) {
		o.defineDirect(IndexKey(o.length), v, DefaultFlags)
	}
}

// AppendHole extends a fresh array's length by one without an element.
func (o *Object) AppendHole() { o.length++ }

func (o *Object) arrayGetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if idx, ok := key.ArrayIndex(); ok {
		if int64(idx) < int64(len(o.elems)) {
			if v := o.elems[idx]; !v.IsEmpty() {
				return DataDescriptor(v, o.elemAttr), true
			}
		}
	} else if key.Is("length") {
		var f Flags
		if !o.hasFlag(objLengthReadOnly) {
			f = Writable
		}
		return DataDescriptor(NumberValue(float64(o.length)), f), true
	}
	return o.ordinaryGetOwnProperty(key)
}

func (vm *VM) arrayDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if key.Is("length") {
		return vm.arraySetLength(o, desc)
	}
	if idx, ok := key.ArrayIndex(); ok {
		if idx >= o.length && o.hasFlag(objLengthReadOnly) {
			return false, nil
		}
		cur, exists := o.arrayGetOwnProperty(key)
		return o.validateAndApply(key, o.extensible(), desc, cur, exists), nil
	}
	return o.ordinaryDefineOwnProperty(key, desc), nil
}

// arraySetLength implements ArraySetLength, including truncation that
// stops at the highest non-configurable element.
func (vm *VM) arraySetLength(o *Object, desc PropertyDescriptor) (bool, error) {
	cur, _ := o.arrayGetOwnProperty(StrKey("length"))
	if !desc.HasValue() {
		if !isCompatibleDescriptor(desc, cur) {
			return false, nil
		}
		if desc.HasWritable() && !desc.Writable {
			o.setFlag(objLengthReadOnly)
		}
		return true, nil
	}
	newLen, err := vm.ToUint32(desc.Value)
	if err != nil {
		return false, err
	}
	numberLen, err := vm.ToNumber(desc.Value)
	if err != nil {
		return false, err
	}
	if float64(newLen) != numberLen {
		return false, vm.NewRangeError("Invalid array length")
	}
	desc.Value = NumberValue(float64(newLen))
	if !isCompatibleDescriptor(desc, cur) {
		return false, nil
	}
	if newLen >= o.length {
		o.length = newLen
		if desc.HasWritable() && !desc.Writable {
			o.setFlag(objLengthReadOnly)
		}
		return true, nil
	}
	if o.hasFlag(objLengthReadOnly) {
		return false, nil
	}
	final := o.truncate(newLen)
	if desc.HasWritable() && !desc.Writable {
		o.setFlag(objLengthReadOnly)
	}
	return final == newLen, nil
}

// truncate deletes elements at or above newLen, highest first, stopping
// above the first element that cannot be deleted. It returns the length
// actually reached.
func (o *Object) truncate(newLen uint32) uint32 {
	final := newLen
	if !o.elemAttr.Configurable() {
		for i := len(o.elems) - 1; i >= int(newLen); i-- {
			if !o.elems[i].IsEmpty() {
				final = uint32(i) + 1
				break
			}
		}
	}
	var sparse []uint32
	o.props.each(func(p *property) bool {
		if idx, ok := p.key.ArrayIndex(); ok && idx >= newLen {
			sparse = append(sparse, idx)
			if !p.flags.Configurable() && idx+1 > final {
				final = idx + 1
			}
		}
		return true
	})
	sort.Slice(sparse, func(i, j int) bool { return sparse[i] > sparse[j] })
	for _, idx := range sparse {
		if idx >= final {
			o.props.remove(IndexKey(idx))
		}
	}
	if int64(final) < int64(len(o.elems)) {
		clear(o.elems[final:])
		o.elems = o.elems[:final]
	}
	o.length = final
	return final
}

// setElementAttributes applies freeze or seal to all dense elements.
func (o *Object) setElementAttributes(frozen bool) {
	if frozen {
		o.elemAttr &^= Writable | Configurable
	} else {
		o.elemAttr &^= Configurable
	}
}

// NewArray creates an empty array in the current realm.
func (vm *VM) NewArray() *Object {
	return vm.NewArrayWithProto(vm.realm.ArrayPrototype)
}

func (vm *VM) NewArrayWithProto(proto *Object) *Object {
	o := vm.NewObjectClass(ClassArray, proto)
	return o
}

// NewArrayFromValues implements CreateArrayFromList. The slice is copied.
func (vm *VM) NewArrayFromValues(values []Value) *Object {
	o := vm.NewArray()
	o.elems = append([]Value(nil), values...)
	o.length = uint32(len(values))
	return o
}

// ArrayCreate creates an array with the given length and prototype.
func (vm *VM) ArrayCreate(length float64, proto *Object) (*Object, error) {
	if length > math.MaxUint32 {
		return nil, vm.NewRangeError("Invalid array length")
	}
	if proto == nil {
		proto = vm.realm.ArrayPrototype
	}
	o := vm.NewArrayWithProto(proto)
	o.length = uint32(length)
	return o, nil
}

// IsArray implements the IsArray abstract operation, seeing through
// proxies.
func (vm *VM) IsArray(v Value) (bool, error) {
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	if o.class == ClassArray {
		return true, nil
	}
	if o.class == ClassProxy {
		p := o.Internal.(*ProxyData)
		if p.Handler == nil {
			return false, vm.NewTypeError("Cannot perform 'IsArray' on a proxy that has been revoked")
		}
		return vm.IsArray(ObjectValue(p.Target))
	}
	return false, nil
}

// ArraySpeciesCreate implements the abstract operation of the same name.
func (vm *VM) ArraySpeciesCreate(original *Object, length float64) (*Object, error) {
	isArray, err := vm.IsArray(ObjectValue(original))
	if err != nil {
		return nil, err
	}
	if !isArray {
		return vm.ArrayCreate(length, nil)
	}
	c, err := original.Get(vm, StrKey("constructor"), ObjectValue(original))
	if err != nil {
		return nil, err
	}
	if c.IsConstructor() {
		if ctor := c.AsObject(); ctor.class == ClassFunction {
			if realm := vm.functionRealm(ctor); realm != nil && realm != vm.realm && ctor == realm.ArrayConstructor {
				c = Undefined
			}
		}
	}
	if c.IsObject() {
		c, err = c.AsObject().Get(vm, SymKey(SymSpecies), c)
		if err != nil {
			return nil, err
		}
		if c.IsNull() {
			c = Undefined
		}
	}
	if c.IsUndefined() {
		return vm.ArrayCreate(length, nil)
	}
	if !c.IsConstructor() {
		return nil, vm.NewTypeError("object constructor is not a constructor")
	}
	res, err := vm.Construct(c, []Value{NumberValue(length)}, Undefined)
	if err != nil {
		return nil, err
	}
	return res.AsObject(), nil
}
