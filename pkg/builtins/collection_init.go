package builtins

import (
	"math"

	"github.com/skua-js/skua/pkg/vm"
)

type MapInitializer struct{}

func (m *MapInitializer) Name() string {
	return "Map"
}

func (m *MapInitializer) Priority() int {
	return PriorityCollections
}

func (m *MapInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.MapPrototype

	ctor := constructor(v, "Map", 0, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor Map requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassMap, func(r *vm.Realm) *vm.Object { return r.MapPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o.Internal = vm.NewOrderedMap()
			if err := addEntriesFromIterable(v, o, vm.Arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	speciesGetter(v, ctor)

	method(v, ctor, "groupBy", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		if err := requireCallable(v, vm.Arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		groups, err := groupBy(v, vm.Arg(args, 0), vm.Arg(args, 1), false)
		if err != nil {
			return vm.Undefined, err
		}
		o := v.NewObjectClass(vm.ClassMap, realm.MapPrototype)
		o.Internal = groups
		return vm.ObjectValue(o), nil
	})

	thisMap := func(v *vm.VM, this vm.Value, name string) (*vm.OrderedMap, error) {
		if o := this.AsObject(); o != nil && o.Class() == vm.ClassMap {
			if m, ok := o.Internal.(*vm.OrderedMap); ok {
				return m, nil
			}
		}
		return nil, v.NewTypeErrorf("Method Map.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
	}

	method(v, proto, "get", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "get")
		if err != nil {
			return vm.Undefined, err
		}
		val, _ := m.Get(vm.Arg(args, 0))
		return val, nil
	})
	method(v, proto, "set", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "set")
		if err != nil {
			return vm.Undefined, err
		}
		m.Set(vm.Arg(args, 0), vm.Arg(args, 1))
		return this, nil
	})
	method(v, proto, "has", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(m.Has(vm.Arg(args, 0))), nil
	})
	method(v, proto, "delete", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(m.Delete(vm.Arg(args, 0))), nil
	})
	method(v, proto, "clear", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "clear")
		if err != nil {
			return vm.Undefined, err
		}
		m.Clear()
		return vm.Undefined, nil
	})
	method(v, proto, "forEach", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "forEach")
		if err != nil {
			return vm.Undefined, err
		}
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return vm.Undefined, err
		}
		m.Each(func(k, val vm.Value) bool {
			_, err = v.Call(fn, vm.Arg(args, 1), val, k, this)
			return err == nil
		})
		return vm.Undefined, err
	})
	getter(v, proto, "size", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		m, err := thisMap(v, this, "size")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(m.Len()), nil
	})

	itProto := realm.MapIteratorPrototype
	toStringTag(itProto, "Map Iterator")
	method(v, itProto, "next", 0, nativeIteratorNext("Map Iterator"))
	iter := func(name, kind string) *vm.Object {
		return method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			m, err := thisMap(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(newCollectionIterator(v, itProto, "Map Iterator", m, kind)), nil
		})
	}
	iter("keys", "keys")
	iter("values", "values")
	entries := iter("entries", "entries")
	proto.DefineOwn(vm.SymKey(vm.SymIterator), vm.ObjectValue(entries), vm.MethodFlags)
	toStringTag(proto, "Map")

	return defineGlobal(ctx, "Map", ctor)
}

// newCollectionIterator returns a live iterator over m yielding keys,
// values or [key, value] entries.
func newCollectionIterator(v *vm.VM, proto *vm.Object, tag string, m *vm.OrderedMap, kind string) *vm.Object {
	it := m.Iterator()
	next := func(v *vm.VM) (vm.Value, bool, error) {
		k, val, ok := it.Next()
		if !ok {
			return vm.Undefined, true, nil
		}
		switch kind {
		case "keys":
			return k, false, nil
		case "values":
			return val, false, nil
		}
		return vm.ObjectValue(v.NewArrayFromValues([]vm.Value{k, val})), false, nil
	}
	return newNativeIterator(v, proto, tag, next, it)
}

// addEntriesFromIterable feeds [key, value] entries of iterable to the
// target's set method, as the Map and WeakMap constructors do.
func addEntriesFromIterable(v *vm.VM, target *vm.Object, iterable vm.Value) error {
	if iterable.IsNullish() {
		return nil
	}
	adder, err := getProp(v, target, "set")
	if err != nil {
		return err
	}
	if err := requireCallable(v, adder); err != nil {
		return err
	}
	return iterate(v, iterable, func(item vm.Value) error {
		entry := item.AsObject()
		if entry == nil {
			return v.NewTypeErrorf("Iterator value %s is not an entry object", vm.Inspect(item))
		}
		k, err := getIndex(v, entry, 0)
		if err != nil {
			return err
		}
		val, err := getIndex(v, entry, 1)
		if err != nil {
			return err
		}
		_, err = v.Call(adder, vm.ObjectValue(target), k, val)
		return err
	})
}

// addValuesFromIterable feeds the values of iterable to the target's add
// method, as the Set and WeakSet constructors do.
func addValuesFromIterable(v *vm.VM, target *vm.Object, iterable vm.Value) error {
	if iterable.IsNullish() {
		return nil
	}
	adder, err := getProp(v, target, "add")
	if err != nil {
		return err
	}
	if err := requireCallable(v, adder); err != nil {
		return err
	}
	return iterate(v, iterable, func(item vm.Value) error {
		_, err := v.Call(adder, vm.ObjectValue(target), item)
		return err
	})
}

type SetInitializer struct{}

func (s *SetInitializer) Name() string {
	return "Set"
}

func (s *SetInitializer) Priority() int {
	return PriorityCollections
}

func (s *SetInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.SetPrototype

	ctor := constructor(v, "Set", 0, proto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor Set requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassSet, func(r *vm.Realm) *vm.Object { return r.SetPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o.Internal = vm.NewOrderedMap()
			if err := addValuesFromIterable(v, o, vm.Arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	speciesGetter(v, ctor)

	method(v, proto, "add", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "add")
		if err != nil {
			return vm.Undefined, err
		}
		val := vm.Arg(args, 0)
		m.Set(val, val)
		return this, nil
	})
	method(v, proto, "has", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(m.Has(vm.Arg(args, 0))), nil
	})
	method(v, proto, "delete", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(m.Delete(vm.Arg(args, 0))), nil
	})
	method(v, proto, "clear", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "clear")
		if err != nil {
			return vm.Undefined, err
		}
		m.Clear()
		return vm.Undefined, nil
	})
	method(v, proto, "forEach", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "forEach")
		if err != nil {
			return vm.Undefined, err
		}
		fn := vm.Arg(args, 0)
		if err := requireCallable(v, fn); err != nil {
			return vm.Undefined, err
		}
		m.Each(func(k, _ vm.Value) bool {
			_, err = v.Call(fn, vm.Arg(args, 1), k, k, this)
			return err == nil
		})
		return vm.Undefined, err
	})
	getter(v, proto, "size", func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		m, err := thisSet(v, this, "size")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(m.Len()), nil
	})

	itProto := realm.SetIteratorPrototype
	toStringTag(itProto, "Set Iterator")
	method(v, itProto, "next", 0, nativeIteratorNext("Set Iterator"))
	iter := func(name, kind string) *vm.Object {
		return method(v, proto, name, 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			m, err := thisSet(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(newCollectionIterator(v, itProto, "Set Iterator", m, kind)), nil
		})
	}
	iter("entries", "entries")
	values := iter("values", "values")
	proto.DefineOwn(vm.StrKey("keys"), vm.ObjectValue(values), vm.MethodFlags)
	proto.DefineOwn(vm.SymKey(vm.SymIterator), vm.ObjectValue(values), vm.MethodFlags)
	toStringTag(proto, "Set")

	installSetAlgebra(v, realm, proto)
	return defineGlobal(ctx, "Set", ctor)
}

func thisSet(v *vm.VM, this vm.Value, name string) (*vm.OrderedMap, error) {
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassSet {
		if m, ok := o.Internal.(*vm.OrderedMap); ok {
			return m, nil
		}
	}
	return nil, v.NewTypeErrorf("Method Set.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
}

// setRecord is a Set Record: the size, has and keys of a set-like
// argument.
type setRecord struct {
	set  *vm.Object
	size float64
	has  vm.Value
	keys vm.Value
}

func getSetRecord(v *vm.VM, arg vm.Value) (*setRecord, error) {
	o := arg.AsObject()
	if o == nil {
		return nil, v.NewTypeErrorf("%s is not an object", vm.Inspect(arg))
	}
	rawSize, err := getProp(v, o, "size")
	if err != nil {
		return nil, err
	}
	n, err := v.ToNumber(rawSize)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(n) {
		return nil, v.NewTypeError("The 'size' property must be a number")
	}
	size := vm.ToIntegerOrInfinityF(n)
	if size < 0 {
		return nil, v.NewRangeError("'size' must be non-negative")
	}
	has, err := getProp(v, o, "has")
	if err != nil {
		return nil, err
	}
	if !has.IsCallable() {
		return nil, v.NewTypeError("The 'has' property must be a function")
	}
	keys, err := getProp(v, o, "keys")
	if err != nil {
		return nil, err
	}
	if !keys.IsCallable() {
		return nil, v.NewTypeError("The 'keys' property must be a function")
	}
	return &setRecord{set: o, size: size, has: has, keys: keys}, nil
}

func (r *setRecord) contains(v *vm.VM, val vm.Value) (bool, error) {
	res, err := v.Call(r.has, vm.ObjectValue(r.set), val)
	return res.ToBoolean(), err
}

// eachKey walks other.keys(). fn returns true to stop early, in which
// case the iterator is closed.
func (r *setRecord) eachKey(v *vm.VM, fn func(k vm.Value) (bool, error)) error {
	it, err := v.Call(r.keys, vm.ObjectValue(r.set))
	if err != nil {
		return err
	}
	if !it.IsObject() {
		return v.NewTypeError("keys() result is not an object")
	}
	rec, err := v.GetIteratorDirect(it.AsObject())
	if err != nil {
		return err
	}
	for {
		k, done, err := v.IteratorStepValue(rec)
		if err != nil || done {
			return err
		}
		if k.IsNumber() && k.AsNumber() == 0 {
			k = vm.IntValue(0)
		}
		stop, err := fn(k)
		if err != nil {
			return err
		}
		if stop {
			return v.IteratorClose(rec.Iterator)
		}
	}
}

func installSetAlgebra(v *vm.VM, realm *vm.Realm, proto *vm.Object) {
	copySet := func(m *vm.OrderedMap) *vm.OrderedMap {
		out := vm.NewOrderedMap()
		m.Each(func(k, _ vm.Value) bool {
			out.Set(k, k)
			return true
		})
		return out
	}
	newSet := func(m *vm.OrderedMap) vm.Value {
		o := v.NewObjectClass(vm.ClassSet, realm.SetPrototype)
		o.Internal = m
		return vm.ObjectValue(o)
	}
	// each visits the live elements of m until fn stops it.
	each := func(m *vm.OrderedMap, fn func(k vm.Value) (bool, error)) error {
		var err error
		m.Each(func(k, _ vm.Value) bool {
			var stop bool
			stop, err = fn(k)
			return err == nil && !stop
		})
		return err
	}
	op := func(name string, body func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error)) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			m, err := thisSet(v, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			other, err := getSetRecord(v, vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return body(v, m, other)
		})
	}

	op("union", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		out := copySet(m)
		err := other.eachKey(v, func(k vm.Value) (bool, error) {
			out.Set(k, k)
			return false, nil
		})
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(out), nil
	})
	op("intersection", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		out := vm.NewOrderedMap()
		var err error
		if float64(m.Len()) <= other.size {
			err = each(m, func(k vm.Value) (bool, error) {
				in, err := other.contains(v, k)
				if in {
					out.Set(k, k)
				}
				return false, err
			})
		} else {
			err = other.eachKey(v, func(k vm.Value) (bool, error) {
				if m.Has(k) {
					out.Set(k, k)
				}
				return false, nil
			})
		}
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(out), nil
	})
	op("difference", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		out := copySet(m)
		var err error
		if float64(m.Len()) <= other.size {
			err = each(m, func(k vm.Value) (bool, error) {
				in, err := other.contains(v, k)
				if in {
					out.Delete(k)
				}
				return false, err
			})
		} else {
			err = other.eachKey(v, func(k vm.Value) (bool, error) {
				out.Delete(k)
				return false, nil
			})
		}
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(out), nil
	})
	op("symmetricDifference", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		out := copySet(m)
		err := other.eachKey(v, func(k vm.Value) (bool, error) {
			if m.Has(k) {
				out.Delete(k)
			} else {
				out.Set(k, k)
			}
			return false, nil
		})
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(out), nil
	})
	op("isSubsetOf", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		if float64(m.Len()) > other.size {
			return vm.False, nil
		}
		result := true
		err := each(m, func(k vm.Value) (bool, error) {
			in, err := other.contains(v, k)
			result = in
			return !in, err
		})
		return vm.BooleanValue(result), err
	})
	op("isSupersetOf", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		if float64(m.Len()) < other.size {
			return vm.False, nil
		}
		result := true
		err := other.eachKey(v, func(k vm.Value) (bool, error) {
			result = m.Has(k)
			return !result, nil
		})
		return vm.BooleanValue(result), err
	})
	op("isDisjointFrom", func(v *vm.VM, m *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		disjoint := true
		var err error
		if float64(m.Len()) <= other.size {
			err = each(m, func(k vm.Value) (bool, error) {
				in, err := other.contains(v, k)
				disjoint = !in
				return in, err
			})
		} else {
			err = other.eachKey(v, func(k vm.Value) (bool, error) {
				disjoint = !m.Has(k)
				return !disjoint, nil
			})
		}
		return vm.BooleanValue(disjoint), err
	})
}

// WeakInitializer installs WeakMap, WeakSet, WeakRef and
// FinalizationRegistry.
type WeakInitializer struct{}

func (w *WeakInitializer) Name() string {
	return "Weak"
}

func (w *WeakInitializer) Priority() int {
	return PriorityCollections
}

func (w *WeakInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm

	weakData := func(v *vm.VM, this vm.Value, c vm.Class, name string) (*vm.WeakMapData, error) {
		if o := this.AsObject(); o != nil && o.Class() == c {
			if d, ok := o.Internal.(*vm.WeakMapData); ok {
				return d, nil
			}
		}
		return nil, v.NewTypeErrorf("Method %s called on incompatible receiver %s", name, vm.Inspect(this))
	}
	weakCtor := func(name string, c vm.Class, proto *vm.Object, fill func(v *vm.VM, o *vm.Object, iterable vm.Value) error) *vm.Object {
		return constructor(v, name, 0, proto,
			func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
				return vm.Undefined, v.NewTypeErrorf("Constructor %s requires 'new'", name)
			},
			func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
				o, err := v.OrdinaryCreateFromConstructor(newTarget, c, func(*vm.Realm) *vm.Object { return proto })
				if err != nil {
					return vm.Undefined, err
				}
				o.Internal = vm.NewWeakMapData()
				if err := fill(v, o, vm.Arg(args, 0)); err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(o), nil
			})
	}

	// WeakMap
	wmProto := realm.WeakMapPrototype
	weakMap := weakCtor("WeakMap", vm.ClassWeakMap, wmProto, addEntriesFromIterable)
	method(v, wmProto, "get", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakMap, "WeakMap.prototype.get")
		if err != nil {
			return vm.Undefined, err
		}
		val, _ := d.Get(vm.Arg(args, 0))
		return val, nil
	})
	method(v, wmProto, "set", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakMap, "WeakMap.prototype.set")
		if err != nil {
			return vm.Undefined, err
		}
		k := vm.Arg(args, 0)
		if !vm.CanBeHeldWeakly(k) {
			return vm.Undefined, v.NewTypeErrorf("Invalid value used as weak map key")
		}
		d.Set(k, vm.Arg(args, 1))
		return this, nil
	})
	method(v, wmProto, "has", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakMap, "WeakMap.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(d.Has(vm.Arg(args, 0))), nil
	})
	method(v, wmProto, "delete", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakMap, "WeakMap.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(d.Delete(vm.Arg(args, 0))), nil
	})
	toStringTag(wmProto, "WeakMap")
	if err := defineGlobal(ctx, "WeakMap", weakMap); err != nil {
		return err
	}

	// WeakSet
	wsProto := realm.WeakSetPrototype
	weakSet := weakCtor("WeakSet", vm.ClassWeakSet, wsProto, addValuesFromIterable)
	method(v, wsProto, "add", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakSet, "WeakSet.prototype.add")
		if err != nil {
			return vm.Undefined, err
		}
		k := vm.Arg(args, 0)
		if !vm.CanBeHeldWeakly(k) {
			return vm.Undefined, v.NewTypeErrorf("Invalid value used in weak set")
		}
		d.Set(k, vm.True)
		return this, nil
	})
	method(v, wsProto, "has", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakSet, "WeakSet.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(d.Has(vm.Arg(args, 0))), nil
	})
	method(v, wsProto, "delete", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := weakData(v, this, vm.ClassWeakSet, "WeakSet.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(d.Delete(vm.Arg(args, 0))), nil
	})
	toStringTag(wsProto, "WeakSet")
	if err := defineGlobal(ctx, "WeakSet", weakSet); err != nil {
		return err
	}

	// WeakRef
	wrProto := realm.WeakRefPrototype
	weakRef := constructor(v, "WeakRef", 1, wrProto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor WeakRef requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			target := vm.Arg(args, 0)
			if !vm.CanBeHeldWeakly(target) {
				return vm.Undefined, v.NewTypeError("WeakRef: invalid target")
			}
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassWeakRef, func(r *vm.Realm) *vm.Object { return r.WeakRefPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			if t := target.AsObject(); t != nil {
				v.KeepDuringJob(t)
			}
			o.Internal = vm.NewWeakRefData(target)
			return vm.ObjectValue(o), nil
		})
	method(v, wrProto, "deref", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		if o := this.AsObject(); o != nil {
			if d, ok := o.Internal.(*vm.WeakRefData); ok {
				return v.Deref(d), nil
			}
		}
		return vm.Undefined, v.NewTypeErrorf("WeakRef.prototype.deref called on incompatible receiver %s", vm.Inspect(this))
	})
	toStringTag(wrProto, "WeakRef")
	if err := defineGlobal(ctx, "WeakRef", weakRef); err != nil {
		return err
	}

	// FinalizationRegistry keeps registrations but never calls the
	// cleanup callback.
	frProto := realm.FinalizationRegistryPrototype
	registry := constructor(v, "FinalizationRegistry", 1, frProto,
		func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Undefined, v.NewTypeError("Constructor FinalizationRegistry requires 'new'")
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			cleanup := vm.Arg(args, 0)
			if err := requireCallable(v, cleanup); err != nil {
				return vm.Undefined, err
			}
			o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassFinalizationRegistry, func(r *vm.Realm) *vm.Object { return r.FinalizationRegistryPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o.Internal = &vm.FinalizationRegistryData{Cleanup: cleanup}
			return vm.ObjectValue(o), nil
		})
	thisRegistry := func(v *vm.VM, this vm.Value, name string) (*vm.FinalizationRegistryData, error) {
		if o := this.AsObject(); o != nil {
			if d, ok := o.Internal.(*vm.FinalizationRegistryData); ok {
				return d, nil
			}
		}
		return nil, v.NewTypeErrorf("FinalizationRegistry.prototype.%s called on incompatible receiver %s", name, vm.Inspect(this))
	}
	method(v, frProto, "register", 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := thisRegistry(v, this, "register")
		if err != nil {
			return vm.Undefined, err
		}
		target, held, token := vm.Arg(args, 0), vm.Arg(args, 1), vm.Arg(args, 2)
		if !vm.CanBeHeldWeakly(target) {
			return vm.Undefined, v.NewTypeError("FinalizationRegistry.prototype.register: invalid target")
		}
		if vm.SameValue(target, held) {
			return vm.Undefined, v.NewTypeError("FinalizationRegistry.prototype.register: target and holdings must not be same")
		}
		if !token.IsUndefined() && !vm.CanBeHeldWeakly(token) {
			return vm.Undefined, v.NewTypeError("FinalizationRegistry.prototype.register: invalid unregister token")
		}
		d.Register(target, held, token)
		return vm.Undefined, nil
	})
	method(v, frProto, "unregister", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		d, err := thisRegistry(v, this, "unregister")
		if err != nil {
			return vm.Undefined, err
		}
		token := vm.Arg(args, 0)
		if !vm.CanBeHeldWeakly(token) {
			return vm.Undefined, v.NewTypeErrorf("Invalid unregisterToken ('%s')", vm.Inspect(token))
		}
		return vm.BooleanValue(d.Unregister(token)), nil
	})
	toStringTag(frProto, "FinalizationRegistry")
	return defineGlobal(ctx, "FinalizationRegistry", registry)
}
