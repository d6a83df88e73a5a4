package builtins

import (
	"github.com/skua-js/skua/pkg/vm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string {
	return "Object"
}

func (o *ObjectInitializer) Priority() int {
	return PriorityObject
}

func (o *ObjectInitializer) InitRuntime(ctx *RuntimeContext) error {
	v := ctx.VM
	realm := ctx.Realm
	proto := realm.ObjectPrototype

	var ctor *vm.Object
	ctor = constructor(v, "Object", 1, proto,
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return objectFromValue(v, vm.Arg(args, 0))
		},
		func(v *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			if newTarget != nil && newTarget != ctor {
				o, err := v.OrdinaryCreateFromConstructor(newTarget, vm.ClassObject, func(r *vm.Realm) *vm.Object { return r.ObjectPrototype })
				if err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(o), nil
			}
			return objectFromValue(v, vm.Arg(args, 0))
		})
	realm.ObjectConstructor = ctor

	initObjectStatics(v, ctor)
	initObjectPrototype(v, proto)
	return defineGlobal(ctx, "Object", ctor)
}

func objectFromValue(v *vm.VM, val vm.Value) (vm.Value, error) {
	if val.IsNullish() {
		return vm.ObjectValue(v.NewObject()), nil
	}
	o, err := v.ToObject(val)
	if err != nil {
		return vm.Undefined, err
	}
	return vm.ObjectValue(o), nil
}

func initObjectStatics(v *vm.VM, ctor *vm.Object) {
	method(v, ctor, "assign", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		to, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		for _, src := range args[min(1, len(args)):] {
			if src.IsNullish() {
				continue
			}
			from, err := v.ToObject(src)
			if err != nil {
				return vm.Undefined, err
			}
			keys, err := from.OwnPropertyKeys(v)
			if err != nil {
				return vm.Undefined, err
			}
			for _, k := range keys {
				desc, ok, err := from.GetOwnProperty(v, k)
				if err != nil {
					return vm.Undefined, err
				}
				if !ok || !desc.Enumerable {
					continue
				}
				val, err := from.Get(v, k, vm.ObjectValue(from))
				if err != nil {
					return vm.Undefined, err
				}
				if err := v.SetOrThrow(to, k, val); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(to), nil
	})

	method(v, ctor, "create", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		p := vm.Arg(args, 0)
		if !p.IsObject() && !p.IsNull() {
			return vm.Undefined, v.NewTypeError("Object prototype may only be an Object or null: " + vm.Inspect(p))
		}
		o := v.NewObjectClass(vm.ClassObject, p.AsObject())
		if props := vm.Arg(args, 1); !props.IsUndefined() {
			if err := defineProperties(v, o, props); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), nil
	})

	method(v, ctor, "defineProperties", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0)
		if !o.IsObject() {
			return vm.Undefined, v.NewTypeError("Object.defineProperties called on non-object")
		}
		return o, defineProperties(v, o.AsObject(), vm.Arg(args, 1))
	})

	method(v, ctor, "defineProperty", 3, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0)
		if !o.IsObject() {
			return vm.Undefined, v.NewTypeError("Object.defineProperty called on non-object")
		}
		key, err := v.ToPropertyKey(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, err := v.ToPropertyDescriptor(vm.Arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		return o, v.DefinePropertyOrThrow(o.AsObject(), key, desc)
	})

	entriesLike := func(kind string) vm.NativeFn {
		return func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			list, err := enumerableOwn(v, o, kind)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(v.NewArrayFromValues(list)), nil
		}
	}
	method(v, ctor, "entries", 1, entriesLike("entries"))
	method(v, ctor, "keys", 1, entriesLike("keys"))
	method(v, ctor, "values", 1, entriesLike("values"))

	integrity := func(name string, frozen, test bool) {
		method(v, ctor, name, 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			o := vm.Arg(args, 0)
			if !o.IsObject() {
				if test {
					return vm.True, nil
				}
				return o, nil
			}
			if test {
				ok, err := testIntegrityLevel(v, o.AsObject(), frozen)
				return vm.BooleanValue(ok), err
			}
			ok, err := setIntegrityLevel(v, o.AsObject(), frozen)
			if err != nil {
				return vm.Undefined, err
			}
			if !ok {
				return vm.Undefined, v.NewTypeError("Cannot " + name + " object")
			}
			return o, nil
		})
	}
	integrity("freeze", true, false)
	integrity("seal", false, false)
	integrity("isFrozen", true, true)
	integrity("isSealed", false, true)

	method(v, ctor, "fromEntries", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		iterable := vm.Arg(args, 0)
		if err := v.RequireObjectCoercible(iterable, "Object.fromEntries"); err != nil {
			return vm.Undefined, err
		}
		o := v.NewObject()
		err := iterate(v, iterable, func(entry vm.Value) error {
			if !entry.IsObject() {
				return v.NewTypeError("Iterator value " + vm.Inspect(entry) + " is not an entry object")
			}
			e := entry.AsObject()
			k, err := getIndex(v, e, 0)
			if err != nil {
				return err
			}
			val, err := getIndex(v, e, 1)
			if err != nil {
				return err
			}
			key, err := v.ToPropertyKey(k)
			if err != nil {
				return err
			}
			return v.CreateDataPropertyOrThrow(o, key, val)
		})
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(o), nil
	})

	method(v, ctor, "getOwnPropertyDescriptor", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		key, err := v.ToPropertyKey(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, ok, err := o.GetOwnProperty(v, key)
		if err != nil || !ok {
			return vm.Undefined, err
		}
		return vm.ObjectValue(v.FromPropertyDescriptor(desc)), nil
	})

	method(v, ctor, "getOwnPropertyDescriptors", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		keys, err := o.OwnPropertyKeys(v)
		if err != nil {
			return vm.Undefined, err
		}
		res := v.NewObject()
		for _, k := range keys {
			desc, ok, err := o.GetOwnProperty(v, k)
			if err != nil {
				return vm.Undefined, err
			}
			if ok {
				res.DefineOwn(k, vm.ObjectValue(v.FromPropertyDescriptor(desc)), vm.DefaultFlags)
			}
		}
		return vm.ObjectValue(res), nil
	})

	ownKeys := func(symbols bool) vm.NativeFn {
		return func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			keys, err := o.OwnPropertyKeys(v)
			if err != nil {
				return vm.Undefined, err
			}
			var out []vm.Value
			for _, k := range keys {
				if k.IsSymbol() == symbols {
					out = append(out, k.ToValue())
				}
			}
			return vm.ObjectValue(v.NewArrayFromValues(out)), nil
		}
	}
	method(v, ctor, "getOwnPropertyNames", 1, ownKeys(false))
	method(v, ctor, "getOwnPropertySymbols", 1, ownKeys(true))

	method(v, ctor, "getPrototypeOf", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		p, err := o.GetPrototypeOf(v)
		if err != nil || p == nil {
			return vm.Null, err
		}
		return vm.ObjectValue(p), nil
	})

	method(v, ctor, "groupBy", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		groups, err := groupBy(v, vm.Arg(args, 0), vm.Arg(args, 1), true)
		if err != nil {
			return vm.Undefined, err
		}
		res := v.NewObjectClass(vm.ClassObject, nil)
		var ferr error
		groups.Each(func(k, items vm.Value) bool {
			key, err := v.ToPropertyKey(k)
			if err != nil {
				ferr = err
				return false
			}
			res.DefineOwn(key, items, vm.DefaultFlags)
			return true
		})
		return vm.ObjectValue(res), ferr
	})

	method(v, ctor, "hasOwn", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		key, err := v.ToPropertyKey(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := v.HasOwnProperty(o, key)
		return vm.BooleanValue(ok), err
	})

	method(v, ctor, "is", 2, func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BooleanValue(vm.SameValue(vm.Arg(args, 0), vm.Arg(args, 1))), nil
	})

	method(v, ctor, "isExtensible", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0)
		if !o.IsObject() {
			return vm.False, nil
		}
		ok, err := o.AsObject().IsExtensible(v)
		return vm.BooleanValue(ok), err
	})

	method(v, ctor, "preventExtensions", 1, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o := vm.Arg(args, 0)
		if !o.IsObject() {
			return o, nil
		}
		ok, err := o.AsObject().PreventExtensions(v)
		if err != nil {
			return vm.Undefined, err
		}
		if !ok {
			return vm.Undefined, v.NewTypeError("Cannot prevent extensions")
		}
		return o, nil
	})

	method(v, ctor, "setPrototypeOf", 2, func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		o, p := vm.Arg(args, 0), vm.Arg(args, 1)
		if err := v.RequireObjectCoercible(o, "Object.setPrototypeOf"); err != nil {
			return vm.Undefined, err
		}
		if !p.IsObject() && !p.IsNull() {
			return vm.Undefined, v.NewTypeError("Object prototype may only be an Object or null: " + vm.Inspect(p))
		}
		if !o.IsObject() {
			return o, nil
		}
		ok, err := o.AsObject().SetPrototypeOf(v, p.AsObject())
		if err != nil {
			return vm.Undefined, err
		}
		if !ok {
			return vm.Undefined, v.NewTypeError("Cyclic __proto__ value or non-extensible object")
		}
		return o, nil
	})
}

// defineProperties implements ObjectDefineProperties.
func defineProperties(v *vm.VM, o *vm.Object, props vm.Value) error {
	p, err := v.ToObject(props)
	if err != nil {
		return err
	}
	keys, err := p.OwnPropertyKeys(v)
	if err != nil {
		return err
	}
	type pending struct {
		key  vm.PropertyKey
		desc vm.PropertyDescriptor
	}
	var list []pending
	for _, k := range keys {
		d, ok, err := p.GetOwnProperty(v, k)
		if err != nil {
			return err
		}
		if !ok || !d.Enumerable {
			continue
		}
		dv, err := p.Get(v, k, vm.ObjectValue(p))
		if err != nil {
			return err
		}
		desc, err := v.ToPropertyDescriptor(dv)
		if err != nil {
			return err
		}
		list = append(list, pending{k, desc})
	}
	for _, e := range list {
		if err := v.DefinePropertyOrThrow(o, e.key, e.desc); err != nil {
			return err
		}
	}
	return nil
}

// setIntegrityLevel implements SetIntegrityLevel for sealed or frozen.
func setIntegrityLevel(v *vm.VM, o *vm.Object, frozen bool) (bool, error) {
	ok, err := o.PreventExtensions(v)
	if err != nil || !ok {
		return ok, err
	}
	keys, err := o.OwnPropertyKeys(v)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		var desc vm.PropertyDescriptor
		desc.SetConfigurable(false)
		if frozen {
			cur, ok, err := o.GetOwnProperty(v, k)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			if !cur.IsAccessor() {
				desc.SetWritable(false)
			}
		}
		if err := v.DefinePropertyOrThrow(o, k, desc); err != nil {
			return false, err
		}
	}
	return true, nil
}

// testIntegrityLevel implements TestIntegrityLevel.
func testIntegrityLevel(v *vm.VM, o *vm.Object, frozen bool) (bool, error) {
	ext, err := o.IsExtensible(v)
	if err != nil || ext {
		return false, err
	}
	keys, err := o.OwnPropertyKeys(v)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		desc, ok, err := o.GetOwnProperty(v, k)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if desc.Configurable {
			return false, nil
		}
		if frozen && desc.IsData() && desc.Writable {
			return false, nil
		}
	}
	return true, nil
}

// groupBy implements GroupBy. Property keys are coerced by the caller;
// Map.groupBy keeps them as values, normalizing -0.
func groupBy(v *vm.VM, items, callback vm.Value, propertyKeys bool) (*vm.OrderedMap, error) {
	if err := v.RequireObjectCoercible(items, "groupBy"); err != nil {
		return nil, err
	}
	if err := requireCallable(v, callback); err != nil {
		return nil, err
	}
	groups := vm.NewOrderedMap()
	k := 0
	err := iterate(v, items, func(val vm.Value) error {
		key, err := v.Call(callback, vm.Undefined, val, vm.IntValue(k))
		if err != nil {
			return err
		}
		if propertyKeys {
			pk, err := v.ToPropertyKey(key)
			if err != nil {
				return err
			}
			key = pk.ToValue()
		}
		k++
		g, ok := groups.Get(key)
		if !ok {
			g = vm.ObjectValue(v.NewArray())
			groups.Set(key, g)
		}
		g.AsObject().AppendElement(val)
		return nil
	})
	return groups, err
}

func initObjectPrototype(v *vm.VM, proto *vm.Object) {
	method(v, proto, "hasOwnProperty", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := v.ToPropertyKey(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := v.HasOwnProperty(o, key)
		return vm.BooleanValue(ok), err
	})

	method(v, proto, "isPrototypeOf", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := vm.Arg(args, 0)
		if !target.IsObject() {
			return vm.False, nil
		}
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		p := target.AsObject()
		for {
			p, err = p.GetPrototypeOf(v)
			if err != nil {
				return vm.Undefined, err
			}
			if p == nil {
				return vm.False, nil
			}
			if p == o {
				return vm.True, nil
			}
		}
	})

	method(v, proto, "propertyIsEnumerable", 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := v.ToPropertyKey(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		desc, ok, err := o.GetOwnProperty(v, key)
		return vm.BooleanValue(ok && desc.Enumerable), err
	})

	method(v, proto, "toLocaleString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return v.Invoke(this, vm.StrKey("toString"))
	})

	method(v, proto, "toString", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		s, err := objectToString(v, this)
		return str(s), err
	})

	method(v, proto, "valueOf", 0, func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := v.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(o), nil
	})

	accessor(v, proto, "__proto__",
		func(v *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			p, err := o.GetPrototypeOf(v)
			if err != nil || p == nil {
				return vm.Null, err
			}
			return vm.ObjectValue(p), nil
		},
		func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if err := v.RequireObjectCoercible(this, "Object.prototype.__proto__"); err != nil {
				return vm.Undefined, err
			}
			p := vm.Arg(args, 0)
			if (!p.IsObject() && !p.IsNull()) || !this.IsObject() {
				return vm.Undefined, nil
			}
			ok, err := this.AsObject().SetPrototypeOf(v, p.AsObject())
			if err != nil {
				return vm.Undefined, err
			}
			if !ok {
				return vm.Undefined, v.NewTypeError("Cyclic __proto__ value")
			}
			return vm.Undefined, nil
		})

	legacyDefine := func(name string, setter bool) {
		method(v, proto, name, 2, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			fn := vm.Arg(args, 1)
			if err := requireCallable(v, fn); err != nil {
				return vm.Undefined, err
			}
			var desc vm.PropertyDescriptor
			if setter {
				desc.SetSet(fn)
			} else {
				desc.SetGet(fn)
			}
			desc.SetEnumerable(true)
			desc.SetConfigurable(true)
			key, err := v.ToPropertyKey(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.Undefined, v.DefinePropertyOrThrow(o, key, desc)
		})
	}
	legacyDefine("__defineGetter__", false)
	legacyDefine("__defineSetter__", true)

	legacyLookup := func(name string, setter bool) {
		method(v, proto, name, 1, func(v *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := v.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			key, err := v.ToPropertyKey(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			for o != nil {
				desc, ok, err := o.GetOwnProperty(v, key)
				if err != nil {
					return vm.Undefined, err
				}
				if ok {
					if !desc.IsAccessor() {
						return vm.Undefined, nil
					}
					if setter {
						return desc.Setter, nil
					}
					return desc.Getter, nil
				}
				if o, err = o.GetPrototypeOf(v); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.Undefined, nil
		})
	}
	legacyLookup("__lookupGetter__", false)
	legacyLookup("__lookupSetter__", true)
}

// objectToString implements Object.prototype.toString.
func objectToString(v *vm.VM, this vm.Value) (string, error) {
	switch {
	case this.IsUndefined():
		return "[object Undefined]", nil
	case this.IsNull():
		return "[object Null]", nil
	}
	o, err := v.ToObject(this)
	if err != nil {
		return "", err
	}
	tag := "Object"
	isArray, err := v.IsArray(vm.ObjectValue(o))
	if err != nil {
		return "", err
	}
	switch {
	case isArray:
		tag = "Array"
	case o.IsCallable():
		tag = "Function"
	default:
		switch o.Class() {
		case vm.ClassArguments, vm.ClassError, vm.ClassBoolean, vm.ClassNumber,
			vm.ClassString, vm.ClassDate, vm.ClassRegExp:
			tag = o.Class().String()
		}
	}
	t, err := o.Get(v, vm.SymKey(vm.SymToStringTag), vm.ObjectValue(o))
	if err != nil {
		return "", err
	}
	if t.IsString() {
		tag = t.AsString().String()
	}
	return "[object " + tag + "]", nil
}
