package builtins

import (
	"math"
	"slices"
	"strings"

	"github.com/skua-js/skua/pkg/vm"
)

// TypedArrayInitializer installs %TypedArray% and the eleven concrete
// typed array constructors.
type TypedArrayInitializer struct{}

func (t *TypedArrayInitializer) Name() string {
	return "TypedArray"
}

func (t *TypedArrayInitializer) Priority() int {
	return PriorityBuffers
}

func (t *TypedArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.TypedArrayPrototype

	abstract := constructor(v, "TypedArray", 0, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Abstract class TypedArray not directly constructable")
		},
		func(v *vm.VM, _ []vm.Value, _ *vm.Object) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Abstract class TypedArray not directly constructable")
		})
	realm.TypedArrayConstructor = abstract
	speciesGetter(v, abstract)

	method(v, abstract, "from", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsConstructor() {
			return vm.Undefined, v.NewTypeErrorf("%s is not a constructor", vm.Inspect(this))
		}
		mapFn, thisArg := vm.Arg(args, 1), vm.Arg(args, 2)
		if !mapFn.IsUndefined() {
			if err := requireCallable(v, mapFn); err != nil {
				return vm.Undefined, err
			}
		}
		source := vm.Arg(args, 0)
		var values []vm.Value
		usingIterator, err := v.GetMethod(source, vm.SymKey(vm.SymIterator))
		if err != nil {
			return vm.Undefined, err
		}
		var arrayLike *vm.Object
		length := 0
		if !usingIterator.IsUndefined() {
			rec, err := v.GetIteratorFromMethod(source, usingIterator)
			if err != nil {
				return vm.Undefined, err
			}
			for {
				val, done, err := v.IteratorStepValue(rec)
				if err != nil {
					return vm.Undefined, err
				}
				if done {
					break
				}
				values = append(values, val)
			}
			length = len(values)
		} else {
			if arrayLike, err = v.ToObject(source); err != nil {
				return vm.Undefined, err
			}
			l, err := lengthOf(v, arrayLike)
			if err != nil {
				return vm.Undefined, err
			}
			length = int(l)
		}
		target, _, err := typedArrayCreate(v, this, []vm.Value{vm.IntValue(length)}, length)
		if err != nil {
			return vm.Undefined, err
		}
		for k := 0; k < length; k++ {
			var val vm.Value
			if arrayLike != nil {
				if val, err = getIndex(v, arrayLike, float64(k)); err != nil {
					return vm.Undefined, err
				}
			} else {
				val = values[k]
			}
			if !mapFn.IsUndefined() {
				if val, err = v.Call(mapFn, thisArg, val, vm.IntValue(k)); err != nil {
					return vm.Undefined, err
				}
			}
			if err := typedArraySet(v, target, k, val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(target), nil
	})
	method(v, abstract, "of", 0, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsConstructor() {
			return vm.Undefined, v.NewTypeErrorf("%s is not a constructor", vm.Inspect(this))
		}
		target, _, err := typedArrayCreate(v, this, []vm.Value{vm.IntValue(len(args))}, len(args))
		if err != nil {
			return vm.Undefined, err
		}
		for k, val := range args {
			if err := typedArraySet(v, target, k, val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(target), nil
	})

	installTypedArrayAccessors(v, proto)
	installTypedArrayMethods(v, realm, proto)

	for k := vm.TypedArrayKind(0); k < vm.NumTypedArrayKinds; k++ {
		c := newTypedArrayConstructor(v, realm, k, abstract)
		if err := defineGlobal(ctx, k.String(), c); err != nil {
			return err
		}
	}
	return nil
}

func newTypedArrayConstructor(v *vm.VM, realm *vm.Realm, kind vm.TypedArrayKind, abstract *vm.Object) *vm.Object {
	proto := realm.TypedArrayPrototypes[kind]
	name := kind.String()
	ctor := constructor(v, name, 3, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeErrorf("Constructor %s requires 'new'", name)
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.TypedArrayPrototypes[kind] })
			if err != nil {
				return vm.Undefined, err
			}
			o, err := constructTypedArray(v, kind, p, args)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	ctor.SetPrototypeDirect(abstract)
	size := vm.IntValue(kind.ElementSize())
	constant(ctor, "BYTES_PER_ELEMENT", size)
	constant(proto, "BYTES_PER_ELEMENT", size)
	realm.TypedArrayConstructors[kind] = ctor
	return ctor
}

// constructTypedArray dispatches on the first constructor argument: a
// length, another typed array, an ArrayBuffer or an iterable or
// array-like object.
func constructTypedArray(v *vm.VM, kind vm.TypedArrayKind, proto *vm.Object, args []vm.Value) (*vm.Object, error) {
	size := kind.ElementSize()
	first := vm.Arg(args, 0)
	src := first.AsObject()
	if src == nil {
		n, err := v.ToIndex(first)
		if err != nil {
			return nil, err
		}
		return allocateTypedArray(v, kind, proto, n)
	}

	switch src.Class() {
	case vm.ClassTypedArray:
		sta := src.Internal.(*vm.TypedArray)
		if sta.IsOutOfBounds() {
			return nil, v.NewTypeError("Cannot construct a typed array from a detached or out-of-bounds typed array")
		}
		if sta.Kind.IsBigInt() != kind.IsBigInt() {
			return nil, v.NewTypeErrorf("Cannot mix BigInt and other types, use explicit conversions")
		}
		n := sta.Length()
		o, err := allocateTypedArray(v, kind, proto, n)
		if err != nil {
			return nil, err
		}
		ta := o.Internal.(*vm.TypedArray)
		for i := 0; i < n; i++ {
			ta.SetNumeric(i, sta.Get(i))
		}
		return o, nil

	case vm.ClassArrayBuffer:
		b := src.Internal.(*vm.ArrayBufferData)
		offset, err := v.ToIndex(vm.Arg(args, 1))
		if err != nil {
			return nil, err
		}
		if offset%size != 0 {
			return nil, v.NewRangeErrorf("start offset of %s should be a multiple of %d", kind, size)
		}
		length := -1
		if l := vm.Arg(args, 2); !l.IsUndefined() {
			if length, err = v.ToIndex(l); err != nil {
				return nil, err
			}
		}
		if b.Detached {
			return nil, v.NewTypeError("Cannot perform Construct on a detached ArrayBuffer")
		}
		bufLen := len(b.Data)
		switch {
		case length < 0 && b.IsResizable():
			if offset > bufLen {
				return nil, v.NewRangeErrorf("Start offset %d is outside the bounds of the buffer", offset)
			}
		case length < 0:
			if bufLen%size != 0 {
				return nil, v.NewRangeErrorf("byte length of %s should be a multiple of %d", kind, size)
			}
			if offset > bufLen {
				return nil, v.NewRangeErrorf("Start offset %d is outside the bounds of the buffer", offset)
			}
			length = (bufLen - offset) / size
		default:
			if offset+length*size > bufLen {
				return nil, v.NewRangeErrorf("Invalid typed array length: %d", length)
			}
		}
		return v.NewTypedArrayObject(vm.NewTypedArrayData(kind, src, offset, length), proto), nil
	}

	usingIterator, err := v.GetMethod(first, vm.SymKey(vm.SymIterator))
	if err != nil {
		return nil, err
	}
	var values []vm.Value
	if !usingIterator.IsUndefined() {
		rec, err := v.GetIteratorFromMethod(first, usingIterator)
		if err != nil {
			return nil, err
		}
		for {
			val, done, err := v.IteratorStepValue(rec)
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
			values = append(values, val)
		}
	} else {
		n, err := lengthOf(v, src)
		if err != nil {
			return nil, err
		}
		if n > maxBufferLength {
			return nil, v.NewRangeError("Invalid typed array length")
		}
		values = make([]vm.Value, int(n))
		for i := range values {
			if values[i], err = getIndex(v, src, float64(i)); err != nil {
				return nil, err
			}
		}
	}
	o, err := allocateTypedArray(v, kind, proto, len(values))
	if err != nil {
		return nil, err
	}
	for i, val := range values {
		if err := typedArraySet(v, o, i, val); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func allocateTypedArray(v *vm.VM, kind vm.TypedArrayKind, proto *vm.Object, length int) (*vm.Object, error) {
	if length > maxBufferLength/kind.ElementSize() {
		return nil, v.NewRangeErrorf("Invalid typed array length: %d", length)
	}
	buf := v.NewArrayBuffer(nil, length*kind.ElementSize(), -1)
	return v.NewTypedArrayObject(vm.NewTypedArrayData(kind, buf, 0, length), proto), nil
}

// validateTypedArray implements ValidateTypedArray and returns the
// current length.
func validateTypedArray(v *vm.VM, this vm.Value, name string) (*vm.Object, *vm.TypedArray, int, error) {
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassTypedArray {
		ta := o.Internal.(*vm.TypedArray)
		if ta.IsOutOfBounds() {
			return nil, nil, 0, v.NewTypeErrorf("Cannot perform %%TypedArray%%.prototype.%s on a detached or out-of-bounds ArrayBuffer", name)
		}
		return o, ta, ta.Length(), nil
	}
	return nil, nil, 0, v.NewTypeError("this is not a typed array.")
}

// typedArrayCreate implements TypedArrayCreateFromConstructor. When
// minLength >= 0 the result must have at least that many elements.
func typedArrayCreate(v *vm.VM, c vm.Value, args []vm.Value, minLength int) (*vm.Object, *vm.TypedArray, error) {
	res, err := v.Construct(c, args, vm.Undefined)
	if err != nil {
		return nil, nil, err
	}
	o, ta, length, err := validateTypedArray(v, res, "constructor")
	if err != nil {
		return nil, nil, err
	}
	if minLength >= 0 && length < minLength {
		return nil, nil, v.NewTypeError("Derived TypedArray constructor created an array which was too small")
	}
	return o, ta, nil
}

// typedArraySpeciesCreate implements TypedArraySpeciesCreate.
func typedArraySpeciesCreate(v *vm.VM, exemplar *vm.Object, args []vm.Value, minLength int) (*vm.Object, *vm.TypedArray, error) {
	kind := exemplar.Internal.(*vm.TypedArray).Kind
	c, err := v.SpeciesConstructor(exemplar, v.Realm().TypedArrayConstructors[kind])
	if err != nil {
		return nil, nil, err
	}
	o, ta, err := typedArrayCreate(v, c, args, minLength)
	if err != nil {
		return nil, nil, err
	}
	if ta.Kind.IsBigInt() != kind.IsBigInt() {
		return nil, nil, v.NewTypeError("Content type of the species constructor result does not match")
	}
	return o, ta, nil
}

// typedArrayCreateSameType allocates a fresh array of the exemplar's kind,
// ignoring species.
func typedArrayCreateSameType(v *vm.VM, ta *vm.TypedArray, length int) (*vm.Object, error) {
	return allocateTypedArray(v, ta.Kind, v.Realm().TypedArrayPrototypes[ta.Kind], length)
}

// typedArraySet stores val at index i with the conversions and silent
// out-of-range behavior of [[Set]].
func typedArraySet(v *vm.VM, o *vm.Object, i int, val vm.Value) error {
	_, err := o.Set(v, vm.IndexKey(uint32(i)), val, vm.ObjectValue(o))
	return err
}

// elementAt reads element i, or undefined when the array shrank below it.
func elementAt(ta *vm.TypedArray, i int) vm.Value {
	if i < 0 || i >= ta.Length() {
		return vm.Undefined
	}
	return ta.Get(i)
}

// compareTypedArrayElements is the default sort order: numeric, with -0
// before +0 and NaN last.
func compareTypedArrayElements(a, b vm.Value) int {
	if a.IsBigInt() {
		return a.AsBigInt().Cmp(b.AsBigInt())
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch {
	case math.IsNaN(x) && math.IsNaN(y):
		return 0
	case math.IsNaN(x):
		return 1
	case math.IsNaN(y):
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	case x == 0 && y == 0:
		sx, sy := math.Signbit(x), math.Signbit(y)
		switch {
		case sx && !sy:
			return -1
		case !sx && sy:
			return 1
		}
	}
	return 0
}

// sortTypedArrayValues sorts values with cmp, or numerically when cmp is
// undefined. The first comparator error stops the sort.
func sortTypedArrayValues(v *vm.VM, values []vm.Value, cmp vm.Value) error {
	if cmp.IsUndefined() {
		slices.SortStableFunc(values, compareTypedArrayElements)
		return nil
	}
	var firstErr error
	slices.SortStableFunc(values, func(a, b vm.Value) int {
		if firstErr != nil {
			return 0
		}
		r, err := v.Call(cmp, vm.Undefined, a, b)
		if err != nil {
			firstErr = err
			return 0
		}
		f, err := v.ToNumber(r)
		if err != nil {
			firstErr = err
			return 0
		}
		switch {
		case f < 0:
			return -1
		case f > 0:
			return 1
		}
		return 0
	})
	return firstErr
}

func installTypedArrayAccessors(v *vm.VM, proto *vm.Object) {
	taOf := func(this vm.Value) *vm.TypedArray {
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassTypedArray {
			return o.Internal.(*vm.TypedArray)
		}
		return nil
	}
	accessorOf := func(name string, get func(ta *vm.TypedArray) vm.Value) {
		getter(v, proto, name, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			ta := taOf(this)
			if ta == nil {
				return vm.Undefined, v.NewTypeErrorf("Method get %%TypedArray%%.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
			}
			return get(ta), nil
		})
	}
	accessorOf("buffer", func(ta *vm.TypedArray) vm.Value { return vm.ObjectValue(ta.Buffer) })
	accessorOf("byteLength", func(ta *vm.TypedArray) vm.Value { return vm.IntValue(ta.ByteLength()) })
	accessorOf("byteOffset", func(ta *vm.TypedArray) vm.Value {
		if ta.IsOutOfBounds() {
			return vm.IntValue(0)
		}
		return vm.IntValue(ta.ByteOffset)
	})
	accessorOf("length", func(ta *vm.TypedArray) vm.Value { return vm.IntValue(ta.Length()) })
	symbolGetter(v, proto, vm.SymToStringTag, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		if ta := taOf(this); ta != nil {
			return str(ta.Kind.String()), nil
		}
		return vm.Undefined, nil
	})
}

func installTypedArrayMethods(v *vm.VM, realm *vm.Realm, proto *vm.Object) {
	// callback walks the elements with fn(value, index, array) until
	// visit asks to stop.
	callback := func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, length int, args []vm.Value, reverse bool, visit func(k int, val, res vm.Value) bool) error {
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			k := i
			if reverse {
				k = length - 1 - i
			}
			val := elementAt(ta, k)
			res, err := v.Call(fn, vm.Arg(args, 1), val, vm.IntValue(k), vm.ObjectValue(o))
			if err != nil {
				return err
			}
			if visit(k, val, res) {
				return nil
			}
		}
		return nil
	}
	withArray := func(name string, length int, body func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error)) *vm.Object {
		return method(v, proto, name, length, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, ta, n, err := validateTypedArray(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return body(v, o, ta, n, args)
		})
	}

	withArray("at", 1, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		rel, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if rel < 0 {
			rel += float64(n)
		}
		if rel < 0 || rel >= float64(n) {
			return vm.Undefined, nil
		}
		return elementAt(ta, int(rel)), nil
	})

	withArray("copyWithin", 2, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		length := float64(n)
		to, err := relativeIndex(v, vm.Arg(args, 0), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		from, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 2), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		count := math.Min(final-from, length-to)
		if count > 0 {
			if ta.IsOutOfBounds() {
				return vm.Undefined, v.NewTypeError("Cannot perform %TypedArray%.prototype.copyWithin on a detached or out-of-bounds ArrayBuffer")
			}
			size := ta.Kind.ElementSize()
			limit := ta.ByteOffset + ta.ByteLength()
			toByte := ta.ByteOffset + int(to)*size
			fromByte := ta.ByteOffset + int(from)*size
			countBytes := int(count) * size
			countBytes = min(countBytes, limit-fromByte, limit-toByte)
			if countBytes > 0 {
				data := ta.BufferData().Data
				copy(data[toByte:toByte+countBytes], data[fromByte:fromByte+countBytes])
			}
		}
		return vm.ObjectValue(o), nil
	})

	withArray("entries", 0, func(v *vm.VM, o *vm.Object, _ *vm.TypedArray, _ int, _ []vm.Value) (vm.Value, error) {
		return vm.ObjectValue(newArrayIterator(v, o, "entries")), nil
	})
	withArray("keys", 0, func(v *vm.VM, o *vm.Object, _ *vm.TypedArray, _ int, _ []vm.Value) (vm.Value, error) {
		return vm.ObjectValue(newArrayIterator(v, o, "keys")), nil
	})
	values := withArray("values", 0, func(v *vm.VM, o *vm.Object, _ *vm.TypedArray, _ int, _ []vm.Value) (vm.Value, error) {
		return vm.ObjectValue(newArrayIterator(v, o, "values")), nil
	})
	proto.DefineOwn(vm.SymKey(vm.SymIterator), vm.ObjectValue(values), vm.MethodFlags)

	withArray("every", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		all := true
		err := callback(v, o, ta, n, args, false, func(_ int, _, res vm.Value) bool {
			all = res.ToBoolean()
			return !all
		})
		return vm.BooleanValue(all), err
	})
	withArray("some", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		found := false
		err := callback(v, o, ta, n, args, false, func(_ int, _, res vm.Value) bool {
			found = res.ToBoolean()
			return found
		})
		return vm.BooleanValue(found), err
	})
	withArray("forEach", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, callback(v, o, ta, n, args, false, func(int, vm.Value, vm.Value) bool { return false })
	})
	finder := func(name string, reverse, wantIndex bool) {
		withArray(name, 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
			index, found := -1, vm.Undefined
			err := callback(v, o, ta, n, args, reverse, func(k int, val, res vm.Value) bool {
				if res.ToBoolean() {
					index, found = k, val
					return true
				}
				return false
			})
			if wantIndex {
				return vm.IntValue(index), err
			}
			return found, err
		})
	}
	finder("find", false, false)
	finder("findIndex", false, true)
	finder("findLast", true, false)
	finder("findLastIndex", true, true)

	withArray("fill", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		val, err := v.ToElementValue(ta.Kind, vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		length := float64(n)
		k, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 2), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		if ta.IsOutOfBounds() {
			return vm.Undefined, v.NewTypeError("Cannot perform %TypedArray%.prototype.fill on a detached or out-of-bounds ArrayBuffer")
		}
		final = math.Min(final, float64(ta.Length()))
		for i := int(k); i < int(final); i++ {
			ta.SetNumeric(i, val)
		}
		return vm.ObjectValue(o), nil
	})

	withArray("filter", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		var kept []vm.Value
		err := callback(v, o, ta, n, args, false, func(_ int, val, res vm.Value) bool {
			if res.ToBoolean() {
				kept = append(kept, val)
			}
			return false
		})
		if err != nil {
			return vm.Undefined, err
		}
		a, _, err := typedArraySpeciesCreate(v, o, []vm.Value{vm.IntValue(len(kept))}, len(kept))
		if err != nil {
			return vm.Undefined, err
		}
		for i, val := range kept {
			if err := typedArraySet(v, a, i, val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), nil
	})
	withArray("map", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		if err := requireCallable(v, vm.Arg(args, 0)); err != nil {
			return vm.Undefined, err
		}
		a, _, err := typedArraySpeciesCreate(v, o, []vm.Value{vm.IntValue(n)}, n)
		if err != nil {
			return vm.Undefined, err
		}
		var setErr error
		err = callback(v, o, ta, n, args, false, func(k int, _, res vm.Value) bool {
			setErr = typedArraySet(v, a, k, res)
			return setErr != nil
		})
		if err == nil {
			err = setErr
		}
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(a), nil
	})

	search := func(name string, reverse bool, same func(a, b vm.Value) bool, result func(k int, found bool) vm.Value) {
		withArray(name, 1, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
			if n == 0 {
				return result(-1, false), nil
			}
			length := float64(n)
			var k float64
			if reverse {
				k = length - 1
				if len(args) > 1 {
					rel, err := v.ToIntegerOrInfinity(args[1])
					if err != nil {
						return vm.Undefined, err
					}
					if rel >= 0 {
						k = math.Min(rel, length-1)
					} else {
						k = length + rel
					}
				}
				for ; k >= 0; k-- {
					if same(elementAt(ta, int(k)), vm.Arg(args, 0)) {
						return result(int(k), true), nil
					}
				}
				return result(-1, false), nil
			}
			k, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
			if err != nil {
				return vm.Undefined, err
			}
			for ; k < length; k++ {
				if same(elementAt(ta, int(k)), vm.Arg(args, 0)) {
					return result(int(k), true), nil
				}
			}
			return result(-1, false), nil
		})
	}
	index := func(k int, _ bool) vm.Value { return vm.IntValue(k) }
	// Elements past a shrunken end read as undefined but are absent.
	strict := func(a, b vm.Value) bool { return !a.IsUndefined() && vm.StrictEquals(a, b) }
	search("includes", false, vm.SameValueZero, func(_ int, found bool) vm.Value { return vm.BooleanValue(found) })
	search("indexOf", false, strict, index)
	search("lastIndexOf", true, strict, index)

	join := func(v *vm.VM, ta *vm.TypedArray, n int, sep string, conv func(vm.Value) (string, error)) (vm.Value, error) {
		var b strings.Builder
		for k := 0; k < n; k++ {
			if k > 0 {
				b.WriteString(sep)
			}
			val := elementAt(ta, k)
			if val.IsUndefined() {
				continue
			}
			s, err := conv(val)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(s)
		}
		return str(b.String()), nil
	}
	withArray("join", 1, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		sep := ","
		if s := vm.Arg(args, 0); !s.IsUndefined() {
			var err error
			if sep, err = v.ToGoString(s); err != nil {
				return vm.Undefined, err
			}
		}
		return join(v, ta, n, sep, v.ToGoString)
	})
	withArray("toLocaleString", 0, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, _ []vm.Value) (vm.Value, error) {
		return join(v, ta, n, ",", func(val vm.Value) (string, error) {
			s, err := v.Invoke(val, vm.StrKey("toLocaleString"))
			if err != nil {
				return "", err
			}
			return v.ToGoString(s)
		})
	})
	if f, ok := realm.ArrayPrototype.GetOwnDirect(vm.StrKey("toString")); ok {
		proto.DefineOwn(vm.StrKey("toString"), f, vm.MethodFlags)
	}

	reducer := func(name string, reverse bool) {
		withArray(name, 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
			fn := vm.Arg(args, 0)
			if err := requireCallable(v, fn); err != nil {
				return vm.Undefined, err
			}
			order := func(i int) int {
				if reverse {
					return n - 1 - i
				}
				return i
			}
			i := 0
			acc := vm.Arg(args, 1)
			if len(args) < 2 {
				if n == 0 {
					return vm.Undefined, v.NewTypeError("Reduce of empty array with no initial value")
				}
				acc = elementAt(ta, order(0))
				i = 1
			}
			for ; i < n; i++ {
				k := order(i)
				var err error
				acc, err = v.Call(fn, vm.Undefined, acc, elementAt(ta, k), vm.IntValue(k), vm.ObjectValue(o))
				if err != nil {
					return vm.Undefined, err
				}
			}
			return acc, nil
		})
	}
	reducer("reduce", false)
	reducer("reduceRight", true)

	withArray("reverse", 0, func(_ *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, _ []vm.Value) (vm.Value, error) {
		for lo, hi := 0, n-1; lo < hi; lo, hi = lo+1, hi-1 {
			a, b := ta.Get(lo), ta.Get(hi)
			ta.SetNumeric(lo, b)
			ta.SetNumeric(hi, a)
		}
		return vm.ObjectValue(o), nil
	})
	withArray("toReversed", 0, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, _ []vm.Value) (vm.Value, error) {
		a, err := typedArrayCreateSameType(v, ta, n)
		if err != nil {
			return vm.Undefined, err
		}
		out := a.Internal.(*vm.TypedArray)
		for k := 0; k < n; k++ {
			out.SetNumeric(k, ta.Get(n-1-k))
		}
		return vm.ObjectValue(a), nil
	})

	withArray("set", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, _ int, args []vm.Value) (vm.Value, error) {
		offset, err := v.ToIntegerOrInfinity(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		if offset < 0 {
			return vm.Undefined, v.NewRangeError("offset is out of bounds")
		}
		return vm.Undefined, setTypedArrayFrom(v, o, ta, vm.Arg(args, 0), offset)
	})

	withArray("slice", 2, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		length := float64(n)
		k, err := relativeIndex(v, vm.Arg(args, 0), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 1), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		count := int(math.Max(final-k, 0))
		a, ata, err := typedArraySpeciesCreate(v, o, []vm.Value{vm.IntValue(count)}, count)
		if err != nil {
			return vm.Undefined, err
		}
		if count == 0 {
			return vm.ObjectValue(a), nil
		}
		if ta.IsOutOfBounds() {
			return vm.Undefined, v.NewTypeError("Cannot perform %TypedArray%.prototype.slice on a detached or out-of-bounds ArrayBuffer")
		}
		final = math.Min(final, float64(ta.Length()))
		if ata.Kind == ta.Kind {
			size := ta.Kind.ElementSize()
			src := ta.BufferData().Data
			dst := ata.BufferData().Data
			from := ta.ByteOffset + int(k)*size
			limit := ta.ByteOffset + int(final)*size
			to := ata.ByteOffset
			for from < limit {
				dst[to] = src[from]
				from++
				to++
			}
			return vm.ObjectValue(a), nil
		}
		for j := 0; k < final; k, j = k+1, j+1 {
			if err := typedArraySet(v, a, j, ta.Get(int(k))); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), nil
	})

	withArray("sort", 1, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		cmp := vm.Arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, v.NewTypeError("The comparison function must be either a function or undefined")
		}
		values := make([]vm.Value, n)
		for k := range values {
			values[k] = ta.Get(k)
		}
		if err := sortTypedArrayValues(v, values, cmp); err != nil {
			return vm.Undefined, err
		}
		for k, val := range values {
			ta.SetNumeric(k, val)
		}
		return vm.ObjectValue(o), nil
	})
	withArray("toSorted", 1, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		cmp := vm.Arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, v.NewTypeError("The comparison function must be either a function or undefined")
		}
		a, err := typedArrayCreateSameType(v, ta, n)
		if err != nil {
			return vm.Undefined, err
		}
		values := make([]vm.Value, n)
		for k := range values {
			values[k] = ta.Get(k)
		}
		if err := sortTypedArrayValues(v, values, cmp); err != nil {
			return vm.Undefined, err
		}
		out := a.Internal.(*vm.TypedArray)
		for k, val := range values {
			out.SetNumeric(k, val)
		}
		return vm.ObjectValue(a), nil
	})

	withArray("subarray", 2, func(v *vm.VM, o *vm.Object, ta *vm.TypedArray, _ int, args []vm.Value) (vm.Value, error) {
		// subarray works on out-of-bounds arrays too, so it reads the
		// length itself.
		length := float64(ta.Length())
		begin, err := relativeIndex(v, vm.Arg(args, 0), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end := vm.Arg(args, 1)
		size := ta.Kind.ElementSize()
		beginByte := vm.IntValue(ta.ByteOffset + int(begin)*size)
		ctorArgs := []vm.Value{vm.ObjectValue(ta.Buffer), beginByte}
		if !ta.IsLengthTracking() || !end.IsUndefined() {
			final, err := relativeIndex(v, end, length, length)
			if err != nil {
				return vm.Undefined, err
			}
			ctorArgs = append(ctorArgs, num(math.Max(final-begin, 0)))
		}
		a, _, err := typedArraySpeciesCreate(v, o, ctorArgs, -1)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(a), nil
	})

	withArray("with", 2, func(v *vm.VM, _ *vm.Object, ta *vm.TypedArray, n int, args []vm.Value) (vm.Value, error) {
		rel, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		actual := rel
		if rel < 0 {
			actual = float64(n) + rel
		}
		val, err := v.ToElementValue(ta.Kind, vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		if actual < 0 || actual >= float64(ta.Length()) {
			return vm.Undefined, v.NewRangeError("Invalid typed array index")
		}
		a, err := typedArrayCreateSameType(v, ta, n)
		if err != nil {
			return vm.Undefined, err
		}
		out := a.Internal.(*vm.TypedArray)
		for k := 0; k < n; k++ {
			if k == int(actual) {
				out.SetNumeric(k, val)
			} else {
				out.SetNumeric(k, elementAt(ta, k))
			}
		}
		return vm.ObjectValue(a), nil
	})
}

// setTypedArrayFrom implements the two forms of %TypedArray%.prototype.set.
func setTypedArrayFrom(v *vm.VM, target *vm.Object, ta *vm.TypedArray, source vm.Value, offset float64) error {
	targetLen := float64(ta.Length())
	if so := source.AsObject(); so != nil && so.Class() == vm.ClassTypedArray {
		src := so.Internal.(*vm.TypedArray)
		if src.IsOutOfBounds() {
			return v.NewTypeError("Cannot perform %TypedArray%.prototype.set on a detached or out-of-bounds ArrayBuffer")
		}
		if src.Kind.IsBigInt() != ta.Kind.IsBigInt() {
			return v.NewTypeError("Cannot mix BigInt and other types, use explicit conversions")
		}
		srcLen := src.Length()
		if float64(srcLen)+offset > targetLen {
			return v.NewRangeError("offset is out of bounds")
		}
		// Read everything first: source and target may share a buffer.
		values := make([]vm.Value, srcLen)
		for i := range values {
			values[i] = src.Get(i)
		}
		for i, val := range values {
			ta.SetNumeric(int(offset)+i, val)
		}
		return nil
	}
	src, err := v.ToObject(source)
	if err != nil {
		return err
	}
	srcLen, err := lengthOf(v, src)
	if err != nil {
		return err
	}
	if srcLen+offset > targetLen {
		return v.NewRangeError("offset is out of bounds")
	}
	for k := 0.0; k < srcLen; k++ {
		val, err := getIndex(v, src, k)
		if err != nil {
			return err
		}
		if err := typedArraySet(v, target, int(offset+k), val); err != nil {
			return err
		}
	}
	return nil
}
