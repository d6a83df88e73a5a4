package vm

import (
	"sort"
)

// Class selects an object's internal slots and, for exotic objects, which
// implementation of the essential internal methods applies.
type Class uint8

const (
	ClassObject Class = iota
	ClassArray
	ClassFunction
	ClassBoundFunction
	ClassError
	ClassBoolean
	ClassNumber
	ClassString
	ClassSymbol
	ClassBigInt
	ClassDate
	ClassRegExp
	ClassMap
	ClassSet
	ClassWeakMap
	ClassWeakSet
	ClassWeakRef
	ClassFinalizationRegistry
	ClassPromise
	ClassProxy
	ClassArguments
	ClassArrayBuffer
	ClassTypedArray
	ClassDataView
	ClassGenerator
	ClassAsyncGenerator
	ClassNamespace
	ClassIterator
	ClassDisposableStack
)

var classNames = [...]string{
	ClassObject:               "Object",
	ClassArray:                "Array",
	ClassFunction:             "Function",
	ClassBoundFunction:        "Function",
	ClassError:                "Error",
	ClassBoolean:              "Boolean",
	ClassNumber:               "Number",
	ClassString:               "String",
	ClassSymbol:               "Symbol",
	ClassBigInt:               "BigInt",
	ClassDate:                 "Date",
	ClassRegExp:               "RegExp",
	ClassMap:                  "Map",
	ClassSet:                  "Set",
	ClassWeakMap:              "WeakMap",
	ClassWeakSet:              "WeakSet",
	ClassWeakRef:              "WeakRef",
	ClassFinalizationRegistry: "FinalizationRegistry",
	ClassPromise:              "Promise",
	ClassProxy:                "Proxy",
	ClassArguments:            "Arguments",
	ClassArrayBuffer:          "ArrayBuffer",
	ClassTypedArray:           "TypedArray",
	ClassDataView:             "DataView",
	ClassGenerator:            "Generator",
	ClassAsyncGenerator:       "AsyncGenerator",
	ClassNamespace:            "Module",
	ClassIterator:             "Iterator",
	ClassDisposableStack:      "DisposableStack",
}

func (c Class) String() string { return classNames[c] }

type objFlags uint8

const (
	objExtensible objFlags = 1 << iota
	objCallable
	objConstructor
	objLengthReadOnly // arrays: length is non-writable
	objClassConstructor
	objImmutableProto
)

// Object is every JavaScript object. Ordinary properties live in props;
// arrays additionally keep dense elements in elems, where Empty marks a
// hole. Internal holds the class-specific internal slots.
type Object struct {
	class    Class
	flags    objFlags
	mark     uint32
	proto    *Object
	props    propertyMap
	elems    []Value
	length   uint32
	elemAttr Flags
	Internal any
}

// newObject allocates without registering with a heap; callers go through
// VM.NewObjectClass so that the collector sees the object.
func newObject(class Class, proto *Object) *Object {
	return &Object{class: class, proto: proto, flags: objExtensible, elemAttr: DefaultFlags}
}

func (o *Object) Class() Class          { return o.class }
func (o *Object) Prototype() *Object    { return o.proto }
func (o *Object) IsCallable() bool      { return o.flags&objCallable != 0 }
func (o *Object) IsConstructor() bool   { return o.flags&objConstructor != 0 }
func (o *Object) IsArray() bool         { return o.class == ClassArray }
func (o *Object) IsProxy() bool         { return o.class == ClassProxy }
func (o *Object) extensible() bool      { return o.flags&objExtensible != 0 }
func (o *Object) setFlag(f objFlags)    { o.flags |= f }
func (o *Object) clearFlag(f objFlags)  { o.flags &^= f }
func (o *Object) hasFlag(f objFlags) bool { return o.flags&f != 0 }

// SetCallable marks the object as having [[Call]] and optionally
// [[Construct]].
func (o *Object) SetCallable(constructor bool) {
	o.flags |= objCallable
	if constructor {
		o.flags |= objConstructor
	} else {
		o.flags &^= objConstructor
	}
}

// SetPrototypeDirect replaces [[Prototype]] without any checks; it is for
// intrinsics being set up.
func (o *Object) SetPrototypeDirect(p *Object) { o.proto = p }

// isOrdinary reports whether all essential internal methods use the
// ordinary algorithms.
func (o *Object) isOrdinary() bool {
	switch o.class {
	case ClassArray, ClassString, ClassArguments, ClassTypedArray, ClassNamespace, ClassProxy:
		return false
	}
	return true
}

// SetOwn creates or overwrites a data property with default attributes
// without invoking setters. It is intended for freshly created objects.
func (o *Object) SetOwn(name string, v Value) {
	o.defineDirect(StrKey(name), v, DefaultFlags)
}

// DefineOwn creates or overwrites a data property with the given flags
// without any validation.
func (o *Object) DefineOwn(key PropertyKey, v Value, flags Flags) {
	o.defineDirect(key, v, flags)
}

// DefineAccessorOwn creates or overwrites an accessor property without
// validation.
func (o *Object) DefineAccessorOwn(key PropertyKey, get, set Value, flags Flags) {
	o.putAccessor(key, get, set, flags)
}

func (o *Object) putAccessor(key PropertyKey, get, set Value, flags Flags) {
	if o.class == ClassArray {
		if idx, ok := key.ArrayIndex(); ok {
			if int64(idx) < int64(len(o.elems)) {
				o.elems[idx] = Empty
			}
			if idx >= o.length {
				o.length = idx + 1
			}
		}
	}
	o.props.put(key, get, set, (flags&^Writable)|Accessor)
}

func (o *Object) defineDirect(key PropertyKey, v Value, flags Flags) {
	flags &^= Accessor
	if o.class == ClassArray {
		if idx, ok := key.ArrayIndex(); ok {
			if flags == o.elemAttr && o.props.get(key) == nil && o.putDense(idx, v) {
				return
			}
			if int64(idx) < int64(len(o.elems)) {
				o.elems[idx] = Empty
			}
			o.props.put(key, v, Undefined, flags)
			if idx >= o.length {
				o.length = idx + 1
			}
			return
		}
	}
	o.props.put(key, v, Undefined, flags)
}

// GetOwnDirect reads an own data property without invoking getters or
// exotic behaviour. It reports false for absent or accessor properties.
func (o *Object) GetOwnDirect(key PropertyKey) (Value, bool) {
	if o.class == ClassArray {
		if idx, ok := key.ArrayIndex(); ok && int64(idx) < int64(len(o.elems)) {
			if v := o.elems[idx]; !v.IsEmpty() {
				return v, true
			}
		}
	}
	p := o.props.get(key)
	if p == nil || p.flags.IsAccessor() {
		return Undefined, false
	}
	return p.value, true
}

// --- Essential internal methods ---

func (o *Object) GetPrototypeOf(vm *VM) (*Object, error) {
	if o.class == ClassProxy {
		return vm.proxyGetPrototypeOf(o)
	}
	return o.proto, nil
}

func (o *Object) SetPrototypeOf(vm *VM, proto *Object) (bool, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxySetPrototypeOf(o, proto)
	case ClassNamespace:
		return proto == nil, nil
	}
	return o.ordinarySetPrototypeOf(proto), nil
}

func (o *Object) ordinarySetPrototypeOf(proto *Object) bool {
	if proto == o.proto {
		return true
	}
	if !o.extensible() {
		return false
	}
	// Immutable prototype exotic: Object.prototype.
	if o.hasFlag(objImmutableProto) {
		return false
	}
	for p := proto; p != nil; p = p.proto {
		if p == o {
			return false
		}
		if p.class == ClassProxy {
			break
		}
	}
	o.proto = proto
	return true
}

// MarkImmutablePrototype makes [[SetPrototypeOf]] fail for any other value,
// as %Object.prototype% requires.
func (o *Object) MarkImmutablePrototype() { o.flags |= objImmutableProto }

func (o *Object) IsExtensible(vm *VM) (bool, error) {
	if o.class == ClassProxy {
		return vm.proxyIsExtensible(o)
	}
	return o.extensible(), nil
}

func (o *Object) PreventExtensions(vm *VM) (bool, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxyPreventExtensions(o)
	case ClassTypedArray:
		if ta := o.Internal.(*TypedArray); ta.isLengthTracking() || ta.buffer.isResizable() {
			if !ta.isOutOfBounds() {
				return false, nil
			}
		}
	}
	o.flags &^= objExtensible
	return true, nil
}

func (o *Object) GetOwnProperty(vm *VM, key PropertyKey) (PropertyDescriptor, bool, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxyGetOwnProperty(o, key)
	case ClassArray:
		d, ok := o.arrayGetOwnProperty(key)
		return d, ok, nil
	case ClassString:
		d, ok := o.stringGetOwnProperty(key)
		return d, ok, nil
	case ClassArguments:
		d, ok := o.argumentsGetOwnProperty(key)
		return d, ok, nil
	case ClassTypedArray:
		d, ok := o.typedArrayGetOwnProperty(key)
		return d, ok, nil
	case ClassNamespace:
		return vm.namespaceGetOwnProperty(o, key)
	}
	d, ok := o.ordinaryGetOwnProperty(key)
	return d, ok, nil
}

func (o *Object) ordinaryGetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	p := o.props.get(key)
	if p == nil {
		return PropertyDescriptor{}, false
	}
	return p.descriptor(), true
}

func (o *Object) DefineOwnProperty(vm *VM, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxyDefineOwnProperty(o, key, desc)
	case ClassArray:
		return vm.arrayDefineOwnProperty(o, key, desc)
	case ClassString:
		return o.stringDefineOwnProperty(key, desc), nil
	case ClassArguments:
		return o.argumentsDefineOwnProperty(key, desc), nil
	case ClassTypedArray:
		return vm.typedArrayDefineOwnProperty(o, key, desc)
	case ClassNamespace:
		return vm.namespaceDefineOwnProperty(o, key, desc)
	}
	return o.ordinaryDefineOwnProperty(key, desc), nil
}

func (o *Object) ordinaryDefineOwnProperty(key PropertyKey, desc PropertyDescriptor) bool {
	cur, exists := o.ordinaryGetOwnProperty(key)
	return o.validateAndApply(key, o.extensible(), desc, cur, exists)
}

// validateAndApply implements ValidateAndApplyPropertyDescriptor for the
// property storage of o.
func (o *Object) validateAndApply(key PropertyKey, extensible bool, desc PropertyDescriptor, cur PropertyDescriptor, exists bool) bool {
	if !exists {
		if !extensible {
			return false
		}
		desc.complete()
		if desc.IsAccessor() {
			o.putAccessor(key, desc.Getter, desc.Setter, desc.Flags())
		} else {
			o.defineDirect(key, desc.Value, desc.Flags())
		}
		return true
	}
	if !isCompatibleDescriptor(desc, cur) {
		return false
	}
	// Merge desc into cur.
	next := cur
	switch {
	case desc.IsAccessor() && !cur.IsAccessor():
		next = AccessorDescriptor(Undefined, Undefined, cur.Flags())
	case desc.IsData() && cur.IsAccessor():
		next = DataDescriptor(Undefined, cur.Flags()&^(Writable|Accessor))
	}
	if desc.HasValue() {
		next.Value = desc.Value
	}
	if desc.HasWritable() {
		next.Writable = desc.Writable
	}
	if desc.HasGet() {
		next.Getter = desc.Getter
	}
	if desc.HasSet() {
		next.Setter = desc.Setter
	}
	if desc.HasEnumerable() {
		next.Enumerable = desc.Enumerable
	}
	if desc.HasConfigurable() {
		next.Configurable = desc.Configurable
	}
	if next.IsAccessor() {
		o.putAccessor(key, next.Getter, next.Setter, next.Flags())
	} else {
		o.storeData(key, next.Value, next.Flags())
	}
	return true
}

// storeData writes a data property, keeping array elements dense when
// their attributes match the array's element attributes.
func (o *Object) storeData(key PropertyKey, v Value, flags Flags) {
	if o.class == ClassArray {
		if idx, ok := key.ArrayIndex(); ok {
			if flags == o.elemAttr && int64(idx) < int64(len(o.elems)) && o.props.get(key) == nil {
				o.elems[idx] = v
				return
			}
			if int64(idx) < int64(len(o.elems)) {
				o.elems[idx] = Empty
			}
		}
	}
	o.props.put(key, v, Undefined, flags)
}

// isCompatibleDescriptor reports whether desc may be applied over the
// existing descriptor cur.
func isCompatibleDescriptor(desc, cur PropertyDescriptor) bool {
	if cur.Configurable {
		return true
	}
	if desc.HasConfigurable() && desc.Configurable {
		return false
	}
	if desc.HasEnumerable() && desc.Enumerable != cur.Enumerable {
		return false
	}
	if desc.IsGeneric() {
		return true
	}
	if desc.IsAccessor() != cur.IsAccessor() {
		return false
	}
	if cur.IsAccessor() {
		if desc.HasGet() && !SameValue(desc.Getter, cur.Getter) {
			return false
		}
		if desc.HasSet() && !SameValue(desc.Setter, cur.Setter) {
			return false
		}
		return true
	}
	if !cur.Writable {
		if desc.HasWritable() && desc.Writable {
			return false
		}
		if desc.HasValue() && !SameValue(desc.Value, cur.Value) {
			return false
		}
	}
	return true
}

func (o *Object) HasProperty(vm *VM, key PropertyKey) (bool, error) {
	for obj := o; obj != nil; {
		switch obj.class {
		case ClassProxy:
			return vm.proxyHas(obj, key)
		case ClassNamespace:
			if !key.IsSymbol() {
				return namespaceHas(obj, key), nil
			}
		case ClassTypedArray:
			if idx, ok := key.CanonicalNumericIndex(); ok {
				return obj.Internal.(*TypedArray).isValidIndex(idx), nil
			}
		}
		if obj.isOrdinary() {
			if obj.props.get(key) != nil {
				return true, nil
			}
		} else {
			_, ok, err := obj.GetOwnProperty(vm, key)
			if err != nil || ok {
				return ok, err
			}
		}
		obj = obj.proto
	}
	return false, nil
}

// Get implements [[Get]] with an arbitrary receiver.
func (o *Object) Get(vm *VM, key PropertyKey, receiver Value) (Value, error) {
	for obj := o; obj != nil; {
		var p *property
		switch {
		case obj.class == ClassProxy:
			return vm.proxyGet(obj, key, receiver)
		case obj.class == ClassArray:
			if idx, ok := key.ArrayIndex(); ok && int64(idx) < int64(len(obj.elems)) {
				if v := obj.elems[idx]; !v.IsEmpty() {
					return v, nil
				}
			} else if key.Is("length") {
				return NumberValue(float64(obj.length)), nil
			}
			p = obj.props.get(key)
		case obj.class == ClassTypedArray:
			if idx, ok := key.CanonicalNumericIndex(); ok {
				return obj.Internal.(*TypedArray).get(idx), nil
			}
			p = obj.props.get(key)
		case obj.isOrdinary():
			p = obj.props.get(key)
		default:
			desc, ok, err := obj.GetOwnProperty(vm, key)
			if err != nil {
				return Undefined, err
			}
			if ok {
				if desc.IsAccessor() {
					if desc.Getter.IsUndefined() {
						return Undefined, nil
					}
					return vm.Call(desc.Getter, receiver)
				}
				return desc.Value, nil
			}
			obj = obj.proto
			continue
		}
		if p != nil {
			if p.flags.IsAccessor() {
				if p.value.IsUndefined() {
					return Undefined, nil
				}
				return vm.Call(p.value, receiver)
			}
			return p.value, nil
		}
		obj = obj.proto
	}
	return Undefined, nil
}

// Set implements [[Set]] (OrdinarySet with the exotic overrides).
func (o *Object) Set(vm *VM, key PropertyKey, v Value, receiver Value) (bool, error) {
	// Fast path: writable own data property on the receiver itself.
	if receiver.typ == TypeObject && receiver.AsObject() == o {
		switch o.class {
		case ClassArray:
			if idx, ok := key.ArrayIndex(); ok && int64(idx) < int64(len(o.elems)) && !o.elems[idx].IsEmpty() && o.elemAttr.Writable() {
				o.elems[idx] = v
				return true, nil
			}
		case ClassObject, ClassFunction, ClassError:
			if p := o.props.get(key); p != nil && p.flags&(Accessor|Writable) == Writable {
				p.value = v
				return true, nil
			}
		}
	}
	switch o.class {
	case ClassProxy:
		return vm.proxySet(o, key, v, receiver)
	case ClassNamespace:
		return false, nil
	}
	if o.class == ClassTypedArray {
		if idx, ok := key.CanonicalNumericIndex(); ok {
			if receiver.typ == TypeObject && receiver.AsObject() == o {
				return true, vm.typedArraySetElement(o, idx, v)
			}
			if !o.Internal.(*TypedArray).isValidIndex(idx) {
				return true, nil
			}
		}
	}
	ownDesc, ok, err := o.GetOwnProperty(vm, key)
	if err != nil {
		return false, err
	}
	if !ok {
		parent, err := o.GetPrototypeOf(vm)
		if err != nil {
			return false, err
		}
		if parent != nil {
			return parent.Set(vm, key, v, receiver)
		}
		ownDesc = DataDescriptor(Undefined, DefaultFlags)
	}
	if ownDesc.IsData() {
		if !ownDesc.Writable {
			return false, nil
		}
		recv := receiver.AsObject()
		if recv == nil {
			return false, nil
		}
		existing, exists, err := recv.GetOwnProperty(vm, key)
		if err != nil {
			return false, err
		}
		if exists {
			if existing.IsAccessor() || !existing.Writable {
				return false, nil
			}
			var vd PropertyDescriptor
			vd.SetValue(v)
			return recv.DefineOwnProperty(vm, key, vd)
		}
		return recv.DefineOwnProperty(vm, key, DataDescriptor(v, DefaultFlags))
	}
	if ownDesc.Setter.IsUndefined() {
		return false, nil
	}
	_, err = vm.Call(ownDesc.Setter, receiver, v)
	return err == nil, err
}

func (o *Object) Delete(vm *VM, key PropertyKey) (bool, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxyDelete(o, key)
	case ClassArray:
		if idx, ok := key.ArrayIndex(); ok && int64(idx) < int64(len(o.elems)) && !o.elems[idx].IsEmpty() {
			if !o.elemAttr.Configurable() {
				return false, nil
			}
			o.elems[idx] = Empty
			return true, nil
		}
		if key.Is("length") {
			return false, nil
		}
	case ClassString:
		if o.stringHasIndex(key) || key.Is("length") {
			return false, nil
		}
	case ClassArguments:
		if p := o.props.get(key); p != nil && p.flags.Configurable() {
			o.argumentsUnmap(key)
		}
	case ClassTypedArray:
		if idx, ok := key.CanonicalNumericIndex(); ok {
			return !o.Internal.(*TypedArray).isValidIndex(idx), nil
		}
	case ClassNamespace:
		return vm.namespaceDelete(o, key)
	}
	p := o.props.get(key)
	if p == nil {
		return true, nil
	}
	if !p.flags.Configurable() {
		return false, nil
	}
	o.props.remove(key)
	return true, nil
}

// OwnPropertyKeys returns keys in the standard order: array indices
// ascending, then strings in creation order, then symbols.
func (o *Object) OwnPropertyKeys(vm *VM) ([]PropertyKey, error) {
	switch o.class {
	case ClassProxy:
		return vm.proxyOwnKeys(o)
	case ClassNamespace:
		return vm.namespaceOwnKeys(o), nil
	}
	return o.ordinaryOwnKeys(), nil
}

func (o *Object) ordinaryOwnKeys() []PropertyKey {
	var indices []uint32
	switch o.class {
	case ClassArray:
		for i, v := range o.elems {
			if !v.IsEmpty() {
				indices = append(indices, uint32(i))
			}
		}
	case ClassString:
		n := o.Internal.(Value).AsString().Length()
		for i := 0; i < n; i++ {
			indices = append(indices, uint32(i))
		}
	case ClassTypedArray:
		n := o.Internal.(*TypedArray).Length()
		for i := 0; i < n; i++ {
			indices = append(indices, uint32(i))
		}
	}
	var strs, syms []PropertyKey
	dense := len(indices)
	o.props.each(func(p *property) bool {
		switch {
		case p.key.IsSymbol():
			if !p.key.IsPrivate() {
				syms = append(syms, p.key)
			}
		default:
			if idx, ok := p.key.ArrayIndex(); ok {
				indices = append(indices, idx)
			} else {
				strs = append(strs, p.key)
			}
		}
		return true
	})
	if len(indices) > dense || o.class == ClassObject || o.class == ClassArguments {
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	}
	keys := make([]PropertyKey, 0, len(indices)+len(strs)+len(syms)+1)
	for _, i := range indices {
		keys = append(keys, IndexKey(i))
	}
	if o.class == ClassArray || o.class == ClassString {
		keys = append(keys, StrKey("length"))
	}
	keys = append(keys, strs...)
	return append(keys, syms...)
}
