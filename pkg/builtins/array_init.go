package builtins

import (
	"math"
	"slices"

	"github.com/skua-js/skua/pkg/vm"
)

const maxSafeInteger = 1<<53 - 1

type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string {
	return "Array"
}

func (a *ArrayInitializer) Priority() int {
	return PriorityArray
}

func (a *ArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.ArrayPrototype

	ctor := constructor(v, "Array", 1, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return arrayConstruct(v, args, nil)
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return arrayConstruct(v, args, newTarget)
		})
	realm.ArrayConstructor = ctor
	speciesGetter(v, ctor)

	method(v, ctor, "isArray", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := v.IsArray(vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})
	method(v, ctor, "of", 0, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := constructArrayLike(v, this, len(args))
		if err != nil {
			return vm.Undefined, err
		}
		for i, a := range args {
			if err := v.CreateDataPropertyOrThrow(o, vm.IndexKey(uint32(i)), a); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), setLength(v, o, float64(len(args)))
	})
	method(v, ctor, "from", 1, arrayFrom)

	initArrayIterator(v, realm)

	installArrayMethods(v, proto)

	unscopables := v.NewObjectClass(vm.ClassObject, nil)
	for _, name := range []string{
		"at", "copyWithin", "entries", "fill", "find", "findIndex", "findLast",
		"findLastIndex", "flat", "flatMap", "includes", "keys", "toReversed",
		"toSorted", "toSpliced", "values",
	} {
		unscopables.SetOwn(name, vm.True)
	}
	proto.DefineOwn(vm.SymKey(vm.SymUnscopables), vm.ObjectValue(unscopables), vm.Configurable)

	return defineGlobal(ctx, "Array", ctor)
}

func arrayConstruct(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
	proto := v.Realm().ArrayPrototype
	if newTarget != nil {
		p, err := v.GetPrototypeFromConstructor(newTarget, func(r *vm.Realm) *vm.Object { return r.ArrayPrototype })
		if err != nil {
			return vm.Undefined, err
		}
		proto = p
	}
	if len(args) == 1 {
		if n := args[0]; n.IsNumber() {
			l := n.AsNumber()
			if l < 0 || l > math.MaxUint32 || !isIntegral(l) {
				return vm.Undefined, v.NewRangeError("Invalid array length")
			}
			o, err := v.ArrayCreate(l, proto)
			return vm.ObjectValue(o), err
		}
	}
	o, err := v.ArrayCreate(0, proto)
	if err != nil {
		return vm.Undefined, err
	}
	for _, a := range args {
		o.AppendElement(a)
	}
	return vm.ObjectValue(o), nil
}

// constructArrayLike creates the result of Array.from and Array.of: a new
// this(...) when this is a constructor, else a plain array.
func constructArrayLike(v *vm.VM, this vm.Value, length int, withLength ...bool) (*vm.Object, error) {
	if this.IsConstructor() {
		var args []vm.Value
		if len(withLength) == 0 || withLength[0] {
			args = []vm.Value{vm.IntValue(length)}
		}
		r, err := v.Construct(this, args, vm.Undefined)
		if err != nil {
			return nil, err
		}
		return r.AsObject(), nil
	}
	return v.ArrayCreate(float64(length), nil)
}

func setLength(v *vm.VM, o *vm.Object, length float64) error {
	return v.SetOrThrow(o, vm.StrKey("length"), num(length))
}

func arrayFrom(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	items, mapFn, thisArg := vm.Arg(args, 0), vm.Arg(args, 1), vm.Arg(args, 2)
	mapping := !mapFn.IsUndefined()
	if mapping {
		if err := requireCallable(v, mapFn); err != nil {
			return vm.Undefined, err
		}
	}
	using, err := v.GetMethod(items, vm.SymKey(vm.SymIterator))
	if err != nil {
		return vm.Undefined, err
	}
	if !using.IsUndefined() {
		a, err := constructArrayLike(v, this, 0, false)
		if err != nil {
			return vm.Undefined, err
		}
		rec, err := v.GetIteratorFromMethod(items, using)
		if err != nil {
			return vm.Undefined, err
		}
		k := 0.0
		for {
			if k >= maxSafeInteger {
				err := v.NewTypeError("Array.from: too many elements")
				closeQuietly(v, rec.Iterator)
				return vm.Undefined, err
			}
			val, done, err := v.IteratorStepValue(rec)
			if err != nil {
				return vm.Undefined, err
			}
			if done {
				return vm.ObjectValue(a), setLength(v, a, k)
			}
			if mapping {
				if val, err = v.Call(mapFn, thisArg, val, num(k)); err != nil {
					closeQuietly(v, rec.Iterator)
					return vm.Undefined, err
				}
			}
			if err := v.CreateDataPropertyOrThrow(a, indexKey(k), val); err != nil {
				closeQuietly(v, rec.Iterator)
				return vm.Undefined, err
			}
			k++
		}
	}
	arrayLike, err := v.ToObject(items)
	if err != nil {
		return vm.Undefined, err
	}
	length, err := lengthOf(v, arrayLike)
	if err != nil {
		return vm.Undefined, err
	}
	a, err := constructArrayLike(v, this, int(length))
	if err != nil {
		return vm.Undefined, err
	}
	for k := 0.0; k < length; k++ {
		val, err := getIndex(v, arrayLike, k)
		if err != nil {
			return vm.Undefined, err
		}
		if mapping {
			if val, err = v.Call(mapFn, thisArg, val, num(k)); err != nil {
				return vm.Undefined, err
			}
		}
		if err := v.CreateDataPropertyOrThrow(a, indexKey(k), val); err != nil {
			return vm.Undefined, err
		}
	}
	return vm.ObjectValue(a), setLength(v, a, length)
}

// initArrayIterator installs %ArrayIteratorPrototype% and the keys,
// values and entries methods that create array iterators.
func initArrayIterator(v *vm.VM, realm *vm.Realm) {
	itProto := realm.ArrayIteratorPrototype
	toStringTag(itProto, "Array Iterator")
	realm.ArrayIteratorNext = method(v, itProto, "next", 0, nativeIteratorNext("Array Iterator"))

	proto := realm.ArrayPrototype
	iter := func(name, kind string) *vm.Object {
		return method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(newArrayIterator(v, o, kind)), nil
		})
	}
	iter("entries", "entries")
	iter("keys", "keys")
	values := iter("values", "values")
	realm.ArrayValues = vm.ObjectValue(values)
	proto.DefineOwn(vm.SymKey(vm.SymIterator), realm.ArrayValues, vm.MethodFlags)
}

// newArrayIterator implements CreateArrayIterator. Typed arrays report
// their live length and throw once they go out of bounds.
func newArrayIterator(v *vm.VM, o *vm.Object, kind string) *vm.Object {
	index := 0.0
	next := func(v *vm.VM) (vm.Value, bool, error) {
		var length float64
		if ta, ok := o.Internal.(*vm.TypedArray); ok && o.Class() == vm.ClassTypedArray {
			if ta.IsOutOfBounds() {
				return vm.Undefined, true, v.NewTypeError("Cannot perform %ArrayIteratorPrototype%.next on a detached or out-of-bounds TypedArray")
			}
			length = float64(ta.Length())
		} else {
			l, err := lengthOf(v, o)
			if err != nil {
				return vm.Undefined, true, err
			}
			length = l
		}
		if index >= length {
			return vm.Undefined, true, nil
		}
		i := index
		index++
		if kind == "keys" {
			return num(i), false, nil
		}
		val, err := getIndex(v, o, i)
		if err != nil {
			return vm.Undefined, true, err
		}
		if kind == "values" {
			return val, false, nil
		}
		return vm.ObjectValue(v.NewArrayFromValues([]vm.Value{num(i), val})), false, nil
	}
	return newNativeIterator(v, v.Realm().ArrayIteratorPrototype, "Array Iterator", next, vm.ObjectValue(o))
}

// arrayThis is the common prologue of the generic array methods.
func arrayThis(v *vm.VM, this vm.Value) (*vm.Object, float64, error) {
	o, err := v.ToObject(this)
	if err != nil {
		return nil, 0, err
	}
	length, err := lengthOf(v, o)
	return o, length, err
}

// findVia walks indices in the given direction calling pred until it
// returns true.
func findVia(v *vm.VM, o *vm.Object, length float64, reverse bool, fn, thisArg vm.Value) (float64, vm.Value, error) {
	for i := 0.0; i < length; i++ {
		k := i
		if reverse {
			k = length - 1 - i
		}
		val, err := getIndex(v, o, k)
		if err != nil {
			return -1, vm.Undefined, err
		}
		r, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
		if err != nil {
			return -1, vm.Undefined, err
		}
		if r.ToBoolean() {
			return k, val, nil
		}
	}
	return -1, vm.Undefined, nil
}

// eachPresent calls fn for every index below length that is present on o,
// stopping early when fn returns true.
func eachPresent(v *vm.VM, o *vm.Object, length float64, fn func(k float64, val vm.Value) (bool, error)) error {
	for k := 0.0; k < length; k++ {
		has, err := o.HasProperty(v, indexKey(k))
		if err != nil {
			return err
		}
		if !has {
			continue
		}
		val, err := getIndex(v, o, k)
		if err != nil {
			return err
		}
		stop, err := fn(k, val)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func installArrayMethods(v *vm.VM, proto *vm.Object) {
	method(v, proto, "at", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		rel, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if rel < 0 {
			rel += length
		}
		if rel < 0 || rel >= length {
			return vm.Undefined, nil
		}
		return getIndex(v, o, rel)
	})

	method(v, proto, "concat", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		a, err := v.ArraySpeciesCreate(o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		n := 0.0
		for _, item := range append([]vm.Value{vm.ObjectValue(o)}, args...) {
			spreadable, err := isConcatSpreadable(v, item)
			if err != nil {
				return vm.Undefined, err
			}
			if !spreadable {
				if n >= maxSafeInteger {
					return vm.Undefined, v.NewTypeError("Invalid array length")
				}
				if err := v.CreateDataPropertyOrThrow(a, indexKey(n), item); err != nil {
					return vm.Undefined, err
				}
				n++
				continue
			}
			e := item.AsObject()
			length, err := lengthOf(v, e)
			if err != nil {
				return vm.Undefined, err
			}
			if n+length > maxSafeInteger {
				return vm.Undefined, v.NewTypeError("Invalid array length")
			}
			err = eachPresent(v, e, length, func(k float64, val vm.Value) (bool, error) {
				return false, v.CreateDataPropertyOrThrow(a, indexKey(n+k), val)
			})
			if err != nil {
				return vm.Undefined, err
			}
			n += length
		}
		return vm.ObjectValue(a), setLength(v, a, n)
	})

	method(v, proto, "copyWithin", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
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
		dir := 1.0
		if from < to && to < from+count {
			dir = -1
			from += count - 1
			to += count - 1
		}
		for ; count > 0; count-- {
			has, err := o.HasProperty(v, indexKey(from))
			if err != nil {
				return vm.Undefined, err
			}
			if has {
				val, err := getIndex(v, o, from)
				if err != nil {
					return vm.Undefined, err
				}
				if err := v.SetOrThrow(o, indexKey(to), val); err != nil {
					return vm.Undefined, err
				}
			} else if err := v.DeleteOrThrow(o, indexKey(to)); err != nil {
				return vm.Undefined, err
			}
			from += dir
			to += dir
		}
		return vm.ObjectValue(o), nil
	})

	method(v, proto, "fill", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		k, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 2), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		for ; k < final; k++ {
			if err := v.SetOrThrow(o, indexKey(k), vm.Arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), nil
	})

	// Callback iteration methods.
	callbackMethod := func(name string, body func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error)) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, length, err := arrayThis(v, this)
			if err != nil {
				return vm.Undefined, err
			}
			fn := vm.Arg(args, 0)
			if err := requireCallable(v, fn); err != nil {
				return vm.Undefined, err
			}
			return body(v, o, length, fn, vm.Arg(args, 1))
		})
	}

	callbackMethod("every", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		result := true
		err := eachPresent(v, o, length, func(k float64, val vm.Value) (bool, error) {
			r, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
			result = r.ToBoolean()
			return !result, err
		})
		return vm.BooleanValue(result), err
	})
	callbackMethod("some", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		result := false
		err := eachPresent(v, o, length, func(k float64, val vm.Value) (bool, error) {
			r, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
			result = r.ToBoolean()
			return result, err
		})
		return vm.BooleanValue(result), err
	})
	callbackMethod("forEach", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		return vm.Undefined, eachPresent(v, o, length, func(k float64, val vm.Value) (bool, error) {
			_, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
			return false, err
		})
	})
	callbackMethod("filter", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		a, err := v.ArraySpeciesCreate(o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		to := 0.0
		err = eachPresent(v, o, length, func(k float64, val vm.Value) (bool, error) {
			r, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
			if err != nil || !r.ToBoolean() {
				return false, err
			}
			to++
			return false, v.CreateDataPropertyOrThrow(a, indexKey(to-1), val)
		})
		return vm.ObjectValue(a), err
	})
	callbackMethod("map", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		a, err := v.ArraySpeciesCreate(o, length)
		if err != nil {
			return vm.Undefined, err
		}
		err = eachPresent(v, o, length, func(k float64, val vm.Value) (bool, error) {
			r, err := v.Call(fn, thisArg, val, num(k), vm.ObjectValue(o))
			if err != nil {
				return false, err
			}
			return false, v.CreateDataPropertyOrThrow(a, indexKey(k), r)
		})
		return vm.ObjectValue(a), err
	})
	callbackMethod("find", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		_, val, err := findVia(v, o, length, false, fn, thisArg)
		return val, err
	})
	callbackMethod("findIndex", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		k, _, err := findVia(v, o, length, false, fn, thisArg)
		return num(k), err
	})
	callbackMethod("findLast", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		_, val, err := findVia(v, o, length, true, fn, thisArg)
		return val, err
	})
	callbackMethod("findLastIndex", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		k, _, err := findVia(v, o, length, true, fn, thisArg)
		return num(k), err
	})
	callbackMethod("flatMap", func(v *vm.VM, o *vm.Object, length float64, fn, thisArg vm.Value) (vm.Value, error) {
		a, err := v.ArraySpeciesCreate(o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		_, err = flattenIntoArray(v, a, o, length, 0, 1, fn, thisArg)
		return vm.ObjectValue(a), err
	})

	method(v, proto, "flat", 0, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		depth := 1.0
		if d := vm.Arg(args, 0); !d.IsUndefined() {
			if depth, err = v.ToIntegerOrInfinity(d); err != nil {
				return vm.Undefined, err
			}
			depth = math.Max(depth, 0)
		}
		a, err := v.ArraySpeciesCreate(o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		_, err = flattenIntoArray(v, a, o, length, 0, depth, vm.Undefined, vm.Undefined)
		return vm.ObjectValue(a), err
	})

	reduce := func(name string, right bool) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, length, err := arrayThis(v, this)
			if err != nil {
				return vm.Undefined, err
			}
			fn := vm.Arg(args, 0)
			if err := requireCallable(v, fn); err != nil {
				return vm.Undefined, err
			}
			index := func(i float64) float64 {
				if right {
					return length - 1 - i
				}
				return i
			}
			i := 0.0
			acc := vm.Arg(args, 1)
			if len(args) < 2 {
				found := false
				for ; i < length && !found; i++ {
					has, err := o.HasProperty(v, indexKey(index(i)))
					if err != nil {
						return vm.Undefined, err
					}
					if has {
						found = true
						if acc, err = getIndex(v, o, index(i)); err != nil {
							return vm.Undefined, err
						}
					}
				}
				if !found {
					return vm.Undefined, v.NewTypeError("Reduce of empty array with no initial value")
				}
			}
			for ; i < length; i++ {
				k := index(i)
				has, err := o.HasProperty(v, indexKey(k))
				if err != nil {
					return vm.Undefined, err
				}
				if !has {
					continue
				}
				val, err := getIndex(v, o, k)
				if err != nil {
					return vm.Undefined, err
				}
				if acc, err = v.Call(fn, vm.Undefined, acc, val, num(k), vm.ObjectValue(o)); err != nil {
					return vm.Undefined, err
				}
			}
			return acc, nil
		})
	}
	reduce("reduce", false)
	reduce("reduceRight", true)

	method(v, proto, "includes", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil || length == 0 {
			return vm.False, err
		}
		k, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		for ; k < length; k++ {
			val, err := getIndex(v, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.SameValueZero(val, vm.Arg(args, 0)) {
				return vm.True, nil
			}
		}
		return vm.False, nil
	})

	method(v, proto, "indexOf", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil || length == 0 {
			return num(-1), err
		}
		k, err := relativeIndex(v, vm.Arg(args, 1), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		found := -1.0
		err = eachPresent(v, o, length, func(i float64, val vm.Value) (bool, error) {
			if i >= k && vm.StrictEquals(val, vm.Arg(args, 0)) {
				found = i
				return true, nil
			}
			return false, nil
		})
		return num(found), err
	})

	method(v, proto, "lastIndexOf", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil || length == 0 {
			return num(-1), err
		}
		k := length - 1
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
			has, err := o.HasProperty(v, indexKey(k))
			if err != nil {
				return vm.Undefined, err
			}
			if !has {
				continue
			}
			val, err := getIndex(v, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.StrictEquals(val, vm.Arg(args, 0)) {
				return num(k), nil
			}
		}
		return num(-1), nil
	})

	method(v, proto, "join", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		return arrayJoin(v, o, length, vm.Arg(args, 0), nil)
	})

	method(v, proto, "toLocaleString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		return arrayJoin(v, o, length, vm.Undefined, func(val vm.Value) (vm.Value, error) {
			return v.Invoke(val, vm.StrKey("toLocaleString"))
		})
	})

	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		join, err := getProp(v, o, "join")
		if err != nil {
			return vm.Undefined, err
		}
		if !join.IsCallable() {
			s, err := objectToString(v, vm.ObjectValue(o))
			return str(s), err
		}
		return v.Call(join, vm.ObjectValue(o))
	})

	method(v, proto, "pop", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		if length == 0 {
			return vm.Undefined, setLength(v, o, 0)
		}
		val, err := getIndex(v, o, length-1)
		if err != nil {
			return vm.Undefined, err
		}
		if err := v.DeleteOrThrow(o, indexKey(length-1)); err != nil {
			return vm.Undefined, err
		}
		return val, setLength(v, o, length-1)
	})

	method(v, proto, "push", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		if length+float64(len(args)) > maxSafeInteger {
			return vm.Undefined, v.NewTypeError("Pushing " + vm.NumberToString(float64(len(args))) + " elements on an array-like of length " + vm.NumberToString(length) + " is disallowed")
		}
		for _, a := range args {
			if err := v.SetOrThrow(o, indexKey(length), a); err != nil {
				return vm.Undefined, err
			}
			length++
		}
		return num(length), setLength(v, o, length)
	})

	method(v, proto, "reverse", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		for lower := 0.0; lower < math.Floor(length/2); lower++ {
			upper := length - lower - 1
			lowerExists, err := o.HasProperty(v, indexKey(lower))
			if err != nil {
				return vm.Undefined, err
			}
			var lowerVal, upperVal vm.Value
			if lowerExists {
				if lowerVal, err = getIndex(v, o, lower); err != nil {
					return vm.Undefined, err
				}
			}
			upperExists, err := o.HasProperty(v, indexKey(upper))
			if err != nil {
				return vm.Undefined, err
			}
			if upperExists {
				if upperVal, err = getIndex(v, o, upper); err != nil {
					return vm.Undefined, err
				}
			}
			switch {
			case lowerExists && upperExists:
				err = v.SetOrThrow(o, indexKey(lower), upperVal)
				if err == nil {
					err = v.SetOrThrow(o, indexKey(upper), lowerVal)
				}
			case upperExists:
				err = v.SetOrThrow(o, indexKey(lower), upperVal)
				if err == nil {
					err = v.DeleteOrThrow(o, indexKey(upper))
				}
			case lowerExists:
				err = v.DeleteOrThrow(o, indexKey(lower))
				if err == nil {
					err = v.SetOrThrow(o, indexKey(upper), lowerVal)
				}
			}
			if err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), nil
	})

	method(v, proto, "shift", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		if length == 0 {
			return vm.Undefined, setLength(v, o, 0)
		}
		first, err := getIndex(v, o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if err := moveElements(v, o, 1, 0, length-1); err != nil {
			return vm.Undefined, err
		}
		if err := v.DeleteOrThrow(o, indexKey(length-1)); err != nil {
			return vm.Undefined, err
		}
		return first, setLength(v, o, length-1)
	})

	method(v, proto, "unshift", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		n := float64(len(args))
		if n > 0 {
			if length+n > maxSafeInteger {
				return vm.Undefined, v.NewTypeError("Invalid array length")
			}
			if err := moveElements(v, o, 0, n, length); err != nil {
				return vm.Undefined, err
			}
			for j, a := range args {
				if err := v.SetOrThrow(o, indexKey(float64(j)), a); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return num(length + n), setLength(v, o, length+n)
	})

	method(v, proto, "slice", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		k, err := relativeIndex(v, vm.Arg(args, 0), length, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeIndex(v, vm.Arg(args, 1), length, length)
		if err != nil {
			return vm.Undefined, err
		}
		count := math.Max(final-k, 0)
		a, err := v.ArraySpeciesCreate(o, count)
		if err != nil {
			return vm.Undefined, err
		}
		n := 0.0
		for ; k < final; k, n = k+1, n+1 {
			has, err := o.HasProperty(v, indexKey(k))
			if err != nil {
				return vm.Undefined, err
			}
			if !has {
				continue
			}
			val, err := getIndex(v, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := v.CreateDataPropertyOrThrow(a, indexKey(n), val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), setLength(v, a, n)
	})

	method(v, proto, "splice", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		start, deleteCount, items, err := spliceArgs(v, args, length)
		if err != nil {
			return vm.Undefined, err
		}
		if length+float64(len(items))-deleteCount > maxSafeInteger {
			return vm.Undefined, v.NewTypeError("Invalid array length")
		}
		removed, err := v.ArraySpeciesCreate(o, deleteCount)
		if err != nil {
			return vm.Undefined, err
		}
		for k := 0.0; k < deleteCount; k++ {
			has, err := o.HasProperty(v, indexKey(start+k))
			if err != nil {
				return vm.Undefined, err
			}
			if !has {
				continue
			}
			val, err := getIndex(v, o, start+k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := v.CreateDataPropertyOrThrow(removed, indexKey(k), val); err != nil {
				return vm.Undefined, err
			}
		}
		if err := setLength(v, removed, deleteCount); err != nil {
			return vm.Undefined, err
		}
		itemCount := float64(len(items))
		switch {
		case itemCount < deleteCount:
			if err := moveElements(v, o, start+deleteCount, start+itemCount, length-deleteCount-start); err != nil {
				return vm.Undefined, err
			}
			for k := length; k > length-deleteCount+itemCount; k-- {
				if err := v.DeleteOrThrow(o, indexKey(k-1)); err != nil {
					return vm.Undefined, err
				}
			}
		case itemCount > deleteCount:
			if err := moveElements(v, o, start+deleteCount, start+itemCount, length-deleteCount-start); err != nil {
				return vm.Undefined, err
			}
		}
		for i, item := range items {
			if err := v.SetOrThrow(o, indexKey(start+float64(i)), item); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(removed), setLength(v, o, length-deleteCount+itemCount)
	})

	method(v, proto, "sort", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cmp := vm.Arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, v.NewTypeError("The comparison function must be either a function or undefined")
		}
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		sorted, err := sortIndexedProperties(v, o, length, cmp, true)
		if err != nil {
			return vm.Undefined, err
		}
		i := 0.0
		for ; i < float64(len(sorted)); i++ {
			if err := v.SetOrThrow(o, indexKey(i), sorted[int(i)]); err != nil {
				return vm.Undefined, err
			}
		}
		for ; i < length; i++ {
			has, err := o.HasProperty(v, indexKey(i))
			if err != nil {
				return vm.Undefined, err
			}
			if has {
				if err := v.DeleteOrThrow(o, indexKey(i)); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(o), nil
	})

	// Change-array-by-copy methods.
	method(v, proto, "toReversed", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		a, err := v.ArrayCreate(length, nil)
		if err != nil {
			return vm.Undefined, err
		}
		for k := 0.0; k < length; k++ {
			val, err := getIndex(v, o, length-k-1)
			if err != nil {
				return vm.Undefined, err
			}
			if err := v.CreateDataPropertyOrThrow(a, indexKey(k), val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), nil
	})

	method(v, proto, "toSorted", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cmp := vm.Arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, v.NewTypeError("The comparison function must be either a function or undefined")
		}
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := v.ArrayCreate(length, nil); err != nil {
			return vm.Undefined, err
		}
		sorted, err := sortIndexedProperties(v, o, length, cmp, false)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(v.NewArrayFromValues(sorted)), nil
	})

	method(v, proto, "toSpliced", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		start, skip, items, err := spliceArgs(v, args, length)
		if err != nil {
			return vm.Undefined, err
		}
		newLen := length + float64(len(items)) - skip
		if newLen > maxSafeInteger {
			return vm.Undefined, v.NewTypeError("Invalid array length")
		}
		a, err := v.ArrayCreate(newLen, nil)
		if err != nil {
			return vm.Undefined, err
		}
		n := 0.0
		put := func(val vm.Value) error {
			n++
			return v.CreateDataPropertyOrThrow(a, indexKey(n-1), val)
		}
		for k := 0.0; k < start; k++ {
			val, err := getIndex(v, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := put(val); err != nil {
				return vm.Undefined, err
			}
		}
		for _, item := range items {
			if err := put(item); err != nil {
				return vm.Undefined, err
			}
		}
		for k := start + skip; k < length; k++ {
			val, err := getIndex(v, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := put(val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), nil
	})

	method(v, proto, "with", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, length, err := arrayThis(v, this)
		if err != nil {
			return vm.Undefined, err
		}
		rel, err := v.ToIntegerOrInfinity(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		actual := rel
		if rel < 0 {
			actual = length + rel
		}
		if actual >= length || actual < 0 {
			return vm.Undefined, v.NewRangeError("Invalid index : " + vm.NumberToString(rel))
		}
		a, err := v.ArrayCreate(length, nil)
		if err != nil {
			return vm.Undefined, err
		}
		for k := 0.0; k < length; k++ {
			val := vm.Arg(args, 1)
			if k != actual {
				if val, err = getIndex(v, o, k); err != nil {
					return vm.Undefined, err
				}
			}
			if err := v.CreateDataPropertyOrThrow(a, indexKey(k), val); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(a), nil
	})
}

func isConcatSpreadable(v *vm.VM, item vm.Value) (bool, error) {
	o := item.AsObject()
	if o == nil {
		return false, nil
	}
	s, err := o.Get(v, vm.SymKey(vm.SymIsConcatSpreadable), item)
	if err != nil {
		return false, err
	}
	if !s.IsUndefined() {
		return s.ToBoolean(), nil
	}
	return v.IsArray(item)
}

func flattenIntoArray(v *vm.VM, target, source *vm.Object, sourceLen, start, depth float64, mapper, thisArg vm.Value) (float64, error) {
	target2 := start
	err := eachPresent(v, source, sourceLen, func(k float64, el vm.Value) (bool, error) {
		var err error
		if !mapper.IsUndefined() {
			if el, err = v.Call(mapper, thisArg, el, num(k), vm.ObjectValue(source)); err != nil {
				return false, err
			}
		}
		if depth > 0 {
			flatten, err := v.IsArray(el)
			if err != nil {
				return false, err
			}
			if flatten {
				elLen, err := lengthOf(v, el.AsObject())
				if err != nil {
					return false, err
				}
				target2, err = flattenIntoArray(v, target, el.AsObject(), elLen, target2, depth-1, vm.Undefined, vm.Undefined)
				return false, err
			}
		}
		if target2 >= maxSafeInteger {
			return false, v.NewTypeError("Invalid array length")
		}
		target2++
		return false, v.CreateDataPropertyOrThrow(target, indexKey(target2-1), el)
	})
	return target2, err
}

// arrayJoin joins the elements of o, converting each with conv when set.
// Cyclic joins produce the empty string for the repeated array.
func arrayJoin(v *vm.VM, o *vm.Object, length float64, separator vm.Value, conv func(vm.Value) (vm.Value, error)) (vm.Value, error) {
	sep := ","
	if !separator.IsUndefined() {
		s, err := v.ToGoString(separator)
		if err != nil {
			return vm.Undefined, err
		}
		sep = s
	}
	if !v.EnterCycleGuard(o) {
		return str(""), nil
	}
	defer v.ExitCycleGuard()

	var b vm.StringBuilder
	for k := 0.0; k < length; k++ {
		if k > 0 {
			b.WriteGo(sep)
		}
		el, err := getIndex(v, o, k)
		if err != nil {
			return vm.Undefined, err
		}
		if el.IsNullish() {
			continue
		}
		if conv != nil {
			if el, err = conv(el); err != nil {
				return vm.Undefined, err
			}
		}
		s, err := v.ToString(el)
		if err != nil {
			return vm.Undefined, err
		}
		b.WriteString(s)
	}
	return vm.StringValue(b.String()), nil
}

// moveElements copies count elements from index from to index to,
// preserving holes, walking in the direction that never overwrites a
// pending source.
func moveElements(v *vm.VM, o *vm.Object, from, to, count float64) error {
	step := func(i float64) error {
		fromKey, toKey := indexKey(from+i), indexKey(to+i)
		has, err := o.HasProperty(v, fromKey)
		if err != nil {
			return err
		}
		if !has {
			return v.DeleteOrThrow(o, toKey)
		}
		val, err := o.Get(v, fromKey, vm.ObjectValue(o))
		if err != nil {
			return err
		}
		return v.SetOrThrow(o, toKey, val)
	}
	if from > to {
		for i := 0.0; i < count; i++ {
			if err := step(i); err != nil {
				return err
			}
		}
		return nil
	}
	for i := count - 1; i >= 0; i-- {
		if err := step(i); err != nil {
			return err
		}
	}
	return nil
}

func spliceArgs(v *vm.VM, args []vm.Value, length float64) (start, deleteCount float64, items []vm.Value, err error) {
	start, err = relativeIndex(v, vm.Arg(args, 0), length, 0)
	if err != nil {
		return
	}
	switch len(args) {
	case 0:
	case 1:
		deleteCount = length - start
	default:
		dc, err2 := v.ToIntegerOrInfinity(args[1])
		if err2 != nil {
			return 0, 0, nil, err2
		}
		deleteCount = math.Min(math.Max(dc, 0), length-start)
		items = args[2:]
	}
	return
}

// sortIndexedProperties reads the elements of o, sorts them stably with
// SortCompare and returns them. Holes are skipped when skipHoles is set;
// undefined values always sort last.
func sortIndexedProperties(v *vm.VM, o *vm.Object, length float64, cmp vm.Value, skipHoles bool) ([]vm.Value, error) {
	var values []vm.Value
	undefined := 0
	for k := 0.0; k < length; k++ {
		if skipHoles {
			has, err := o.HasProperty(v, indexKey(k))
			if err != nil {
				return nil, err
			}
			if !has {
				continue
			}
		}
		val, err := getIndex(v, o, k)
		if err != nil {
			return nil, err
		}
		if val.IsUndefined() {
			undefined++
			continue
		}
		values = append(values, val)
	}
	if err := sortValues(v, values, cmp); err != nil {
		return nil, err
	}
	for ; undefined > 0; undefined-- {
		values = append(values, vm.Undefined)
	}
	return values, nil
}

// sortValues stably sorts values with the comparator or by string order.
// The first abrupt completion from the comparator stops further calls and
// is returned.
func sortValues(v *vm.VM, values []vm.Value, cmp vm.Value) error {
	if cmp.IsUndefined() {
		// String conversion happens once per element.
		type keyed struct {
			val vm.Value
			key *vm.String
		}
		ks := make([]keyed, len(values))
		for i, val := range values {
			s, err := v.ToString(val)
			if err != nil {
				return err
			}
			ks[i] = keyed{val, s}
		}
		slices.SortStableFunc(ks, func(a, b keyed) int { return a.key.Compare(b.key) })
		for i := range ks {
			values[i] = ks[i].val
		}
		return nil
	}
	var sortErr error
	slices.SortStableFunc(values, func(a, b vm.Value) int {
		if sortErr != nil {
			return 0
		}
		r, err := v.Call(cmp, vm.Undefined, a, b)
		if err != nil {
			sortErr = err
			return 0
		}
		n, err := v.ToNumber(r)
		if err != nil {
			sortErr = err
			return 0
		}
		switch {
		case n < 0:
			return -1
		case n > 0:
			return 1
		}
		return 0
	})
	return sortErr
}
