package vm

// ProxyData is the internal slot set of a proxy. A nil Handler marks a
// revoked proxy.
type ProxyData struct {
	Target  *Object
	Handler *Object
}

// NewProxy implements ProxyCreate.
func (vm *VM) NewProxy(target, handler Value) (*Object, error) {
	t, h := target.AsObject(), handler.AsObject()
	if t == nil || h == nil {
		return nil, vm.NewTypeError("Cannot create proxy with a non-object as target or handler")
	}
	o := vm.NewObjectClass(ClassProxy, nil)
	o.Internal = &ProxyData{Target: t, Handler: h}
	if t.IsCallable() {
		o.SetCallable(t.IsConstructor())
	}
	return o, nil
}

// RevokeProxy clears the proxy's target and handler.
func RevokeProxy(o *Object) {
	if p, ok := o.Internal.(*ProxyData); ok {
		p.Handler = nil
		p.Target = nil
	}
}

// trap validates the proxy and fetches the named trap, which is undefined
// when the handler does not define it.
func (vm *VM) trap(o *Object, name string) (*ProxyData, Value, error) {
	p := o.Internal.(*ProxyData)
	if p.Handler == nil {
		return nil, Undefined, vm.NewTypeError("Cannot perform '" + name + "' on a proxy that has been revoked")
	}
	t, err := vm.GetMethod(ObjectValue(p.Handler), StrKey(name))
	if err != nil {
		return nil, Undefined, err
	}
	return p, t, nil
}

func (vm *VM) proxyGetPrototypeOf(o *Object) (*Object, error) {
	p, trap, err := vm.trap(o, "getPrototypeOf")
	if err != nil {
		return nil, err
	}
	if trap.IsUndefined() {
		return p.Target.GetPrototypeOf(vm)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target))
	if err != nil {
		return nil, err
	}
	if !r.IsObject() && !r.IsNull() {
		return nil, vm.NewTypeError("'getPrototypeOf' on proxy: trap returned neither object nor null")
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil || ext {
		return r.AsObject(), err
	}
	tp, err := p.Target.GetPrototypeOf(vm)
	if err != nil {
		return nil, err
	}
	if tp != r.AsObject() {
		return nil, vm.NewTypeError("'getPrototypeOf' on proxy: proxy target is non-extensible but the trap did not return its actual prototype")
	}
	return tp, nil
}

func (vm *VM) proxySetPrototypeOf(o *Object, proto *Object) (bool, error) {
	p, trap, err := vm.trap(o, "setPrototypeOf")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.SetPrototypeOf(vm, proto)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), ObjectValue(proto))
	if err != nil || !r.ToBoolean() {
		return false, err
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil || ext {
		return true, err
	}
	tp, err := p.Target.GetPrototypeOf(vm)
	if err != nil {
		return false, err
	}
	if tp != proto {
		return false, vm.NewTypeError("'setPrototypeOf' on proxy: trap returned truish for setting a new prototype on the non-extensible proxy target")
	}
	return true, nil
}

func (vm *VM) proxyIsExtensible(o *Object) (bool, error) {
	p, trap, err := vm.trap(o, "isExtensible")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.IsExtensible(vm)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target))
	if err != nil {
		return false, err
	}
	target, err := p.Target.IsExtensible(vm)
	if err != nil {
		return false, err
	}
	if r.ToBoolean() != target {
		return false, vm.NewTypeErrorf("'isExtensible' on proxy: trap result does not reflect extensibility of proxy target (which is '%t')", target)
	}
	return target, nil
}

func (vm *VM) proxyPreventExtensions(o *Object) (bool, error) {
	p, trap, err := vm.trap(o, "preventExtensions")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.PreventExtensions(vm)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target))
	if err != nil || !r.ToBoolean() {
		return false, err
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return false, err
	}
	if ext {
		return false, vm.NewTypeError("'preventExtensions' on proxy: trap returned truish but the proxy target is extensible")
	}
	return true, nil
}

func (vm *VM) proxyGetOwnProperty(o *Object, key PropertyKey) (PropertyDescriptor, bool, error) {
	p, trap, err := vm.trap(o, "getOwnPropertyDescriptor")
	if err != nil {
		return PropertyDescriptor{}, false, err
	}
	if trap.IsUndefined() {
		return p.Target.GetOwnProperty(vm, key)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue())
	if err != nil {
		return PropertyDescriptor{}, false, err
	}
	if !r.IsObject() && !r.IsUndefined() {
		return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap returned neither object nor undefined for property '%s'", key)
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil {
		return PropertyDescriptor{}, false, err
	}
	if r.IsUndefined() {
		if !targetHas {
			return PropertyDescriptor{}, false, nil
		}
		if !targetDesc.Configurable {
			return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap returned undefined for property '%s' which is non-configurable in the proxy target", key)
		}
		ext, err := p.Target.IsExtensible(vm)
		if err != nil {
			return PropertyDescriptor{}, false, err
		}
		if !ext {
			return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap returned undefined for property '%s' which exists in the non-extensible proxy target", key)
		}
		return PropertyDescriptor{}, false, nil
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return PropertyDescriptor{}, false, err
	}
	result, err := vm.ToPropertyDescriptor(r)
	if err != nil {
		return PropertyDescriptor{}, false, err
	}
	result.complete()
	if !isCompatibleWithTarget(ext, result, targetDesc, targetHas) {
		return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap returned descriptor for property '%s' that is incompatible with the existing property in the proxy target", key)
	}
	if !result.Configurable {
		if !targetHas || targetDesc.Configurable {
			return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap reported non-configurability for property '%s' which is either non-existent or configurable in the proxy target", key)
		}
		if result.HasWritable() && !result.Writable && targetDesc.Writable {
			return PropertyDescriptor{}, false, vm.NewTypeErrorf("'getOwnPropertyDescriptor' on proxy: trap reported non-configurable and writable for property '%s' which is non-configurable, non-writable in the proxy target", key)
		}
	}
	return result, true, nil
}

// isCompatibleWithTarget implements IsCompatiblePropertyDescriptor.
func isCompatibleWithTarget(extensible bool, desc, cur PropertyDescriptor, exists bool) bool {
	if !exists {
		return extensible
	}
	return isCompatibleDescriptor(desc, cur)
}

func (vm *VM) proxyDefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	p, trap, err := vm.trap(o, "defineProperty")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.DefineOwnProperty(vm, key, desc)
	}
	descObj := vm.FromPropertyDescriptor(desc)
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue(), ObjectValue(descObj))
	if err != nil || !r.ToBoolean() {
		return false, err
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil {
		return false, err
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return false, err
	}
	settingNonConfig := desc.HasConfigurable() && !desc.Configurable
	if !targetHas {
		if !ext {
			return false, vm.NewTypeErrorf("'defineProperty' on proxy: trap returned truish for adding property '%s'  to the non-extensible proxy target", key)
		}
		if settingNonConfig {
			return false, vm.NewTypeErrorf("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which is either non-existent or configurable in the proxy target", key)
		}
		return true, nil
	}
	if !isCompatibleDescriptor(desc, targetDesc) {
		return false, vm.NewTypeErrorf("'defineProperty' on proxy: trap returned truish for adding property '%s'  that is incompatible with the existing property in the proxy target", key)
	}
	if settingNonConfig && targetDesc.Configurable {
		return false, vm.NewTypeErrorf("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which is either non-existent or configurable in the proxy target", key)
	}
	if targetDesc.IsData() && !targetDesc.Configurable && targetDesc.Writable && desc.HasWritable() && !desc.Writable {
		return false, vm.NewTypeErrorf("'defineProperty' on proxy: trap returned truish for defining non-configurable property '%s' which cannot be non-writable, unless there exists a corresponding non-configurable, non-writable own property of the target object.", key)
	}
	return true, nil
}

func (vm *VM) proxyHas(o *Object, key PropertyKey) (bool, error) {
	p, trap, err := vm.trap(o, "has")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.HasProperty(vm, key)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue())
	if err != nil {
		return false, err
	}
	if r.ToBoolean() {
		return true, nil
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil || !targetHas {
		return false, err
	}
	if !targetDesc.Configurable {
		return false, vm.NewTypeErrorf("'has' on proxy: trap returned falsish for property '%s' which exists in the proxy target as non-configurable", key)
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return false, err
	}
	if !ext {
		return false, vm.NewTypeErrorf("'has' on proxy: trap returned falsish for property '%s' but the proxy target is not extensible", key)
	}
	return false, nil
}

func (vm *VM) proxyGet(o *Object, key PropertyKey, receiver Value) (Value, error) {
	p, trap, err := vm.trap(o, "get")
	if err != nil {
		return Undefined, err
	}
	if trap.IsUndefined() {
		return p.Target.Get(vm, key, receiver)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue(), receiver)
	if err != nil {
		return Undefined, err
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil {
		return Undefined, err
	}
	if targetHas && !targetDesc.Configurable {
		if targetDesc.IsData() && !targetDesc.Writable && !SameValue(r, targetDesc.Value) {
			return Undefined, vm.NewTypeErrorf("'get' on proxy: property '%s' is a read-only and non-configurable data property on the proxy target but the proxy did not return its actual value (expected '%s' but got '%s')", key, Inspect(targetDesc.Value), Inspect(r))
		}
		if targetDesc.IsAccessor() && targetDesc.Getter.IsUndefined() && !r.IsUndefined() {
			return Undefined, vm.NewTypeErrorf("'get' on proxy: property '%s' is a non-configurable accessor property on the proxy target and does not have a getter function, but the trap did not return 'undefined' (got '%s')", key, Inspect(r))
		}
	}
	return r, nil
}

func (vm *VM) proxySet(o *Object, key PropertyKey, v Value, receiver Value) (bool, error) {
	p, trap, err := vm.trap(o, "set")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.Set(vm, key, v, receiver)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue(), v, receiver)
	if err != nil || !r.ToBoolean() {
		return false, err
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil {
		return false, err
	}
	if targetHas && !targetDesc.Configurable {
		if targetDesc.IsData() && !targetDesc.Writable && !SameValue(v, targetDesc.Value) {
			return false, vm.NewTypeErrorf("'set' on proxy: trap returned truish for property '%s' which exists in the proxy target as a non-configurable and non-writable data property with a different value", key)
		}
		if targetDesc.IsAccessor() && targetDesc.Setter.IsUndefined() {
			return false, vm.NewTypeErrorf("'set' on proxy: trap returned truish for property '%s' which exists in the proxy target as a non-configurable and non-writable accessor property without a setter", key)
		}
	}
	return true, nil
}

func (vm *VM) proxyDelete(o *Object, key PropertyKey) (bool, error) {
	p, trap, err := vm.trap(o, "deleteProperty")
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return p.Target.Delete(vm, key)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), key.ToValue())
	if err != nil || !r.ToBoolean() {
		return false, err
	}
	targetDesc, targetHas, err := p.Target.GetOwnProperty(vm, key)
	if err != nil || !targetHas {
		return true, err
	}
	if !targetDesc.Configurable {
		return false, vm.NewTypeErrorf("'deleteProperty' on proxy: trap returned truish for property '%s' which is non-configurable in the proxy target", key)
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return false, err
	}
	if !ext {
		return false, vm.NewTypeErrorf("'deleteProperty' on proxy: trap returned truish for property '%s' but the proxy target is non-extensible", key)
	}
	return true, nil
}

func (vm *VM) proxyOwnKeys(o *Object) ([]PropertyKey, error) {
	p, trap, err := vm.trap(o, "ownKeys")
	if err != nil {
		return nil, err
	}
	if trap.IsUndefined() {
		return p.Target.OwnPropertyKeys(vm)
	}
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target))
	if err != nil {
		return nil, err
	}
	if !r.IsObject() {
		return nil, vm.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	list, err := vm.CreateListFromArrayLike(r)
	if err != nil {
		return nil, err
	}
	keys := make([]PropertyKey, 0, len(list))
	seen := make(map[PropertyKey]bool, len(list))
	for _, v := range list {
		if !v.IsString() && !v.IsSymbol() {
			return nil, vm.NewTypeErrorf("%s is not a valid property name", Inspect(v))
		}
		k, _ := vm.ToPropertyKey(v)
		if seen[k] {
			return nil, vm.NewTypeErrorf("'ownKeys' on proxy: trap returned duplicate entries")
		}
		seen[k] = true
		keys = append(keys, k)
	}
	ext, err := p.Target.IsExtensible(vm)
	if err != nil {
		return nil, err
	}
	targetKeys, err := p.Target.OwnPropertyKeys(vm)
	if err != nil {
		return nil, err
	}
	var configurable, nonconfigurable []PropertyKey
	for _, k := range targetKeys {
		d, ok, err := p.Target.GetOwnProperty(vm, k)
		if err != nil {
			return nil, err
		}
		if ok && !d.Configurable {
			nonconfigurable = append(nonconfigurable, k)
		} else {
			configurable = append(configurable, k)
		}
	}
	if ext && len(nonconfigurable) == 0 {
		return keys, nil
	}
	unchecked := make(map[PropertyKey]bool, len(keys))
	for _, k := range keys {
		unchecked[k] = true
	}
	for _, k := range nonconfigurable {
		if !unchecked[k] {
			return nil, vm.NewTypeErrorf("'ownKeys' on proxy: trap result did not include '%s'", k)
		}
		delete(unchecked, k)
	}
	if ext {
		return keys, nil
	}
	for _, k := range configurable {
		if !unchecked[k] {
			return nil, vm.NewTypeErrorf("'ownKeys' on proxy: trap result did not include '%s'", k)
		}
		delete(unchecked, k)
	}
	if len(unchecked) > 0 {
		return nil, vm.NewTypeError("'ownKeys' on proxy: trap returned extra keys but proxy target is non-extensible")
	}
	return keys, nil
}

func (vm *VM) proxyCall(o *Object, this Value, args []Value) (Value, error) {
	p, trap, err := vm.trap(o, "apply")
	if err != nil {
		return Undefined, err
	}
	if trap.IsUndefined() {
		return vm.Call(ObjectValue(p.Target), this, args...)
	}
	argArray := vm.NewArrayFromValues(args)
	return vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), this, ObjectValue(argArray))
}

func (vm *VM) proxyConstruct(o *Object, args []Value, newTarget Value) (Value, error) {
	p, trap, err := vm.trap(o, "construct")
	if err != nil {
		return Undefined, err
	}
	if trap.IsUndefined() {
		return vm.Construct(ObjectValue(p.Target), args, newTarget)
	}
	argArray := vm.NewArrayFromValues(args)
	r, err := vm.Call(trap, ObjectValue(p.Handler), ObjectValue(p.Target), ObjectValue(argArray), newTarget)
	if err != nil {
		return Undefined, err
	}
	if !r.IsObject() {
		return Undefined, vm.NewTypeError("proxy [[Construct]] must return an object")
	}
	return r, nil
}
