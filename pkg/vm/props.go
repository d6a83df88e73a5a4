package vm

// Property access on arbitrary values as performed by the interpreter.
// Primitive bases read through their prototype without allocating a
// wrapper object.

func (vm *VM) getProperty(base Value, key PropertyKey) (Value, error) {
	if base.typ == TypeObject {
		return base.AsObject().Get(vm, key, base)
	}
	return vm.GetV(base, key)
}

func (vm *VM) getElement(base, keyVal Value) (Value, error) {
	if base.typ == TypeObject && keyVal.typ == TypeNumber {
		o := base.AsObject()
		if o.class == ClassArray {
			if i := keyVal.num; i >= 0 && i < float64(len(o.elems)) && i == float64(int(i)) {
				if v := o.elems[int(i)]; !v.IsEmpty() {
					return v, nil
				}
			}
		}
	}
	if base.IsNullish() {
		k, err := vm.ToPropertyKey(keyVal)
		if err != nil {
			return Undefined, err
		}
		return Undefined, vm.NewTypeErrorf("Cannot read properties of %s (reading '%s')", base.TypeOfNull(), k.String())
	}
	key, err := vm.ToPropertyKey(keyVal)
	if err != nil {
		return Undefined, err
	}
	return vm.getProperty(base, key)
}

// primitiveProto returns the prototype property lookups on a primitive
// start from.
func (vm *VM) primitiveProto(v Value) *Object {
	r := vm.realm
	switch v.typ {
	case TypeString:
		return r.StringPrototype
	case TypeNumber:
		return r.NumberPrototype
	case TypeBoolean:
		return r.BooleanPrototype
	case TypeSymbol:
		return r.SymbolPrototype
	case TypeBigInt:
		return r.BigIntPrototype
	}
	return nil
}

func (vm *VM) setProperty(base Value, key PropertyKey, v Value, strict bool) error {
	if base.typ == TypeObject {
		o := base.AsObject()
		ok, err := o.Set(vm, key, v, base)
		if err != nil {
			return err
		}
		if !ok && strict {
			return vm.NewTypeErrorf("Cannot assign to read only property '%s' of object '%s'", key.String(), objectTag(o))
		}
		return nil
	}
	if base.IsNullish() {
		return vm.NewTypeErrorf("Cannot set properties of %s (setting '%s')", base.TypeOfNull(), key.String())
	}
	ok, err := vm.primitiveProto(base).Set(vm, key, v, base)
	if err != nil {
		return err
	}
	if !ok && strict {
		return vm.NewTypeErrorf("Cannot create property '%s' on %s '%s'", key.String(), base.TypeOf(), Inspect(base))
	}
	return nil
}

func (vm *VM) setElement(base, keyVal, v Value, strict bool) error {
	if base.typ == TypeObject && keyVal.typ == TypeNumber {
		o := base.AsObject()
		if o.class == ClassArray && o.elemAttr.Writable() {
			if i := keyVal.num; i >= 0 && i < float64(len(o.elems)) && i == float64(int(i)) && !o.elems[int(i)].IsEmpty() {
				o.elems[int(i)] = v
				return nil
			}
		}
	}
	if base.IsNullish() {
		k, err := vm.ToPropertyKey(keyVal)
		if err != nil {
			return err
		}
		return vm.NewTypeErrorf("Cannot set properties of %s (setting '%s')", base.TypeOfNull(), k.String())
	}
	key, err := vm.ToPropertyKey(keyVal)
	if err != nil {
		return err
	}
	return vm.setProperty(base, key, v, strict)
}

func (vm *VM) deleteProperty(base Value, key PropertyKey, strict bool) (bool, error) {
	o, err := vm.ToObject(base)
	if err != nil {
		return false, err
	}
	ok, err := o.Delete(vm, key)
	if err != nil {
		return false, err
	}
	if !ok && strict {
		return false, vm.NewTypeErrorf("Cannot delete property '%s' of %s", key.String(), objectTag(o))
	}
	return ok, nil
}

// getSuper reads super[key] with this as the receiver. proto is the
// [[Prototype]] of the home object.
func (vm *VM) getSuper(proto, keyVal, this Value) (Value, error) {
	key, err := vm.ToPropertyKey(keyVal)
	if err != nil {
		return Undefined, err
	}
	o := proto.AsObject()
	if o == nil {
		return Undefined, vm.NewTypeErrorf("Cannot read properties of %s (reading '%s')", proto.TypeOfNull(), key.String())
	}
	return o.Get(vm, key, this)
}

func (vm *VM) setSuper(proto, keyVal, v, this Value, strict bool) error {
	key, err := vm.ToPropertyKey(keyVal)
	if err != nil {
		return err
	}
	o := proto.AsObject()
	if o == nil {
		return vm.NewTypeErrorf("Cannot set properties of %s (setting '%s')", proto.TypeOfNull(), key.String())
	}
	ok, err := o.Set(vm, key, v, this)
	if err != nil {
		return err
	}
	if !ok && strict {
		return vm.NewTypeErrorf("Cannot assign to read only property '%s' of object '%s'", key.String(), Inspect(this))
	}
	return nil
}
