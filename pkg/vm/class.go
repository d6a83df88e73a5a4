package vm

// privateName renders a private name for messages, e.g. "#x".
func privateName(sym *Symbol) string { return sym.Description.String() }

func (vm *VM) privateGet(objV Value, sym *Symbol) (Value, error) {
	o := objV.AsObject()
	var p *property
	if o != nil {
		p = o.props.get(SymKey(sym))
	}
	if p == nil {
		return Undefined, vm.NewTypeErrorf("Cannot read private member %s from an object whose class did not declare it", privateName(sym))
	}
	if p.flags.IsAccessor() {
		if p.value.IsUndefined() {
			return Undefined, vm.NewTypeErrorf("'%s' was defined without a getter", privateName(sym))
		}
		return vm.Call(p.value, objV)
	}
	return p.value, nil
}

func (vm *VM) privateSet(objV Value, sym *Symbol, v Value) error {
	o := objV.AsObject()
	var p *property
	if o != nil {
		p = o.props.get(SymKey(sym))
	}
	if p == nil {
		return vm.NewTypeErrorf("Cannot write private member %s to an object whose class did not declare it", privateName(sym))
	}
	if p.flags.IsAccessor() {
		if p.set.IsUndefined() {
			return vm.NewTypeErrorf("'%s' was defined without a setter", privateName(sym))
		}
		_, err := vm.Call(p.set, objV, v)
		return err
	}
	if !p.flags.Writable() {
		return vm.NewTypeError("Private method is not writable")
	}
	p.value = v
	return nil
}

// privateDefine adds a private element to an object. The two halves of a
// private accessor pair arrive separately and are merged.
func (vm *VM) privateDefine(objV Value, sym *Symbol, v Value, kind int) error {
	o := objV.AsObject()
	if o == nil {
		return vm.NewTypeErrorf("Cannot initialize %s on a non-object", privateName(sym))
	}
	key := SymKey(sym)
	p := o.props.get(key)
	twice := func() error {
		return vm.NewTypeErrorf("Cannot initialize %s twice on the same object", privateName(sym))
	}
	switch kind {
	case PrivateField:
		if p != nil {
			return twice()
		}
		o.props.put(key, v, Undefined, Writable)
	case PrivateMethod:
		if p != nil {
			return twice()
		}
		o.props.put(key, v, Undefined, 0)
	case PrivateGetter, PrivateSetter:
		get, set := Undefined, Undefined
		if p != nil {
			if !p.flags.IsAccessor() {
				return twice()
			}
			get, set = p.value, p.set
		}
		if kind == PrivateGetter {
			if !get.IsUndefined() {
				return twice()
			}
			get = v
		} else {
			if !set.IsUndefined() {
				return twice()
			}
			set = v
		}
		o.props.put(key, get, set, Accessor)
	}
	return nil
}

// defineMethod installs a method, getter or setter of an object literal
// or class body and makes obj its home object.
func (vm *VM) defineMethod(obj *Object, keyVal Value, fn *Object, flags int) error {
	key, err := vm.ToPropertyKey(keyVal)
	if err != nil {
		return err
	}
	if c := ClosureOf(fn); c != nil {
		c.Home = obj
	}
	attrs := Configurable
	if flags&MethodEnumerable != 0 {
		attrs |= Enumerable
	}
	kind := flags & MethodKindMask
	vm.SetFunctionName(fn, key, namePrefixes[kind])
	var desc PropertyDescriptor
	switch kind {
	case 0:
		desc = DataDescriptor(ObjectValue(fn), attrs|Writable)
	case 1:
		desc.SetGet(ObjectValue(fn))
		desc.SetEnumerable(attrs.Enumerable())
		desc.SetConfigurable(true)
	default:
		desc.SetSet(ObjectValue(fn))
		desc.SetEnumerable(attrs.Enumerable())
		desc.SetConfigurable(true)
	}
	return vm.DefinePropertyOrThrow(obj, key, desc)
}

// defineClass creates the prototype object and constructor of a class
// whose constructor is function fnIdx of the running template.
func (vm *VM) defineClass(f *frame, super Value, fnIdx, flags int) (proto, ctor *Object, err error) {
	r := vm.realm
	protoParent, ctorParent := r.ObjectPrototype, r.FunctionPrototype
	if flags&ClassHasHeritage != 0 {
		switch {
		case super.IsNull():
			protoParent = nil
		case !super.IsConstructor():
			return nil, nil, vm.NewTypeErrorf("Class extends value %s is not a constructor or null", Inspect(super))
		default:
			sc := super.AsObject()
			pp, err := sc.Get(vm, StrKey("prototype"), super)
			if err != nil {
				return nil, nil, err
			}
			switch {
			case pp.IsNull():
				protoParent = nil
			case pp.IsObject():
				protoParent = pp.AsObject()
			default:
				return nil, nil, vm.NewTypeErrorf("Class extends value does not have valid prototype property %s", Inspect(pp))
			}
			ctorParent = sc
		}
	}
	proto = vm.NewObjectClass(ClassObject, protoParent)
	ctor = vm.MakeClosure(f.fn.Functions[fnIdx], f.env, proto)
	ctor.proto = ctorParent
	ctor.props.put(StrKey("prototype"), ObjectValue(proto), Undefined, 0)
	proto.props.put(StrKey("constructor"), ObjectValue(ctor), Undefined, Writable|Configurable)
	return proto, ctor, nil
}

// initializeFields runs the instance field initializer of ctor on this.
func (vm *VM) initializeFields(this Value, ctor *Object) error {
	c := ClosureOf(ctor)
	if c == nil || c.Fields == nil {
		return nil
	}
	_, err := vm.callObject(c.Fields, this, nil)
	return err
}
