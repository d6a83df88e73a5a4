package vm

// Global and dynamically scoped name resolution. Statically resolved
// bindings never come through here; the compiler emits these operations
// for globals and for names looked up past a with statement or a scope
// that sloppy direct eval may extend.

func (vm *VM) getGlobal(name string, typeof bool) (Value, error) {
	r := vm.realm
	if b, ok := r.globalLex[name]; ok {
		if b.Value.IsEmpty() {
			return Undefined, vm.tdzError(name)
		}
		return b.Value, nil
	}
	g := r.GlobalObject
	key := StrKey(name)
	if p := g.props.get(key); p != nil && !p.flags.IsAccessor() && g.isOrdinary() {
		return p.value, nil
	}
	found, err := g.HasProperty(vm, key)
	if err != nil {
		return Undefined, err
	}
	if !found {
		if typeof {
			return Undefined, nil
		}
		return Undefined, vm.NewReferenceError(name + " is not defined")
	}
	return g.Get(vm, key, ObjectValue(g))
}

func (vm *VM) setGlobal(name string, v Value, strict bool) error {
	r := vm.realm
	if b, ok := r.globalLex[name]; ok {
		if b.Value.IsEmpty() {
			return vm.tdzError(name)
		}
		if !b.Mutable {
			return vm.NewTypeError("Assignment to constant variable.")
		}
		b.Value = v
		return nil
	}
	g := r.GlobalObject
	key := StrKey(name)
	if p := g.props.get(key); p != nil && p.flags&(Accessor|Writable) == Writable {
		p.value = v
		return nil
	}
	if strict {
		found, err := g.HasProperty(vm, key)
		if err != nil {
			return err
		}
		if !found {
			return vm.NewReferenceError(name + " is not defined")
		}
	}
	ok, err := g.Set(vm, key, v, ObjectValue(g))
	if err != nil {
		return err
	}
	if !ok && strict {
		return vm.NewTypeErrorf("Cannot assign to read only property '%s' of object '%s'", name, objectTag(g))
	}
	return nil
}

func (vm *VM) redeclared(name string) error {
	return vm.NewSyntaxError("Identifier '" + name + "' has already been declared")
}

// declareGlobals performs the checks and var/lexical instantiation of
// GlobalDeclarationInstantiation and of EvalDeclarationInstantiation for
// eval code whose variable environment is the global one. Function
// bindings are created afterwards by OpDeclareGlobalFn.
func (vm *VM) declareGlobals(d *Declarations, eval bool) error {
	if d == nil {
		return nil
	}
	r := vm.realm
	g := r.GlobalObject
	for _, name := range d.Lexical {
		if _, ok := r.globalLex[name]; ok {
			return vm.redeclared(name)
		}
		desc, ok, err := g.GetOwnProperty(vm, StrKey(name))
		if err != nil {
			return err
		}
		if ok && !desc.Configurable {
			return vm.NewSyntaxError("Identifier '" + name + "' has already been declared")
		}
	}
	for _, list := range [][]string{d.Vars, d.Functions} {
		for _, name := range list {
			if _, ok := r.globalLex[name]; ok {
				return vm.redeclared(name)
			}
		}
	}
	extensible, err := g.IsExtensible(vm)
	if err != nil {
		return err
	}
	for _, name := range d.Functions {
		desc, ok, err := g.GetOwnProperty(vm, StrKey(name))
		if err != nil {
			return err
		}
		if !ok && !extensible || ok && !desc.Configurable && !(desc.IsData() && desc.Writable && desc.Enumerable) {
			return vm.NewTypeErrorf("Cannot declare global function '%s'", name)
		}
	}
	for _, name := range d.Vars {
		_, ok, err := g.GetOwnProperty(vm, StrKey(name))
		if err != nil {
			return err
		}
		if !ok && !extensible {
			return vm.NewTypeErrorf("Cannot declare global variable '%s'", name)
		}
	}
	for _, name := range d.Vars {
		if err := vm.declareGlobalVar(name, false, eval); err != nil {
			return err
		}
	}
	for i, name := range d.Lexical {
		mutable := i >= len(d.Consts) || !d.Consts[i]
		r.globalLex[name] = &GlobalBinding{Value: Empty, Mutable: mutable}
	}
	return nil
}

// declareGlobalVar implements CreateGlobalVarBinding. Bindings created by
// eval code are configurable so that delete can remove them.
func (vm *VM) declareGlobalVar(name string, fn bool, eval bool) error {
	g := vm.realm.GlobalObject
	key := StrKey(name)
	_, ok, err := g.GetOwnProperty(vm, key)
	if err != nil || ok {
		return err
	}
	if fn {
		if _, ok := vm.realm.globalLex[name]; ok {
			return vm.redeclared(name)
		}
	}
	flags := Writable | Enumerable
	if eval {
		flags |= Configurable
	}
	return vm.DefinePropertyOrThrow(g, key, DataDescriptor(Undefined, flags))
}

// declareGlobalFunction implements CreateGlobalFunctionBinding.
func (vm *VM) declareGlobalFunction(name string, v Value, eval bool) error {
	g := vm.realm.GlobalObject
	key := StrKey(name)
	cur, ok, err := g.GetOwnProperty(vm, key)
	if err != nil {
		return err
	}
	var desc PropertyDescriptor
	if !ok || cur.Configurable {
		flags := Writable | Enumerable
		if eval {
			flags |= Configurable
		}
		desc = DataDescriptor(v, flags)
	} else {
		desc.SetValue(v)
	}
	if err := vm.DefinePropertyOrThrow(g, key, desc); err != nil {
		return err
	}
	return vm.SetOrThrow(g, key, v)
}

// initGlobalLex initializes a global let, const or class binding.
func (vm *VM) initGlobalLex(name string, v Value) {
	if b, ok := vm.realm.globalLex[name]; ok {
		b.Value = v
		return
	}
	vm.realm.globalLex[name] = &GlobalBinding{Value: v, Mutable: true}
}

func (vm *VM) getName(env *Env, name string, typeof, strict bool) (Value, error) {
	ref, found, err := vm.resolveName(env, name)
	if err != nil {
		return Undefined, err
	}
	if found {
		return vm.getReference(ref, name, strict)
	}
	return vm.getGlobal(name, typeof)
}

func (vm *VM) setName(env *Env, name string, v Value, strict bool) error {
	ref, found, err := vm.resolveName(env, name)
	if err != nil {
		return err
	}
	if found {
		return vm.putReference(ref, name, v, strict)
	}
	return vm.setGlobal(name, v, strict)
}

func (vm *VM) deleteName(env *Env, name string) (bool, error) {
	ref, found, err := vm.resolveName(env, name)
	if err != nil {
		return false, err
	}
	if found {
		switch {
		case ref.obj != nil:
			return ref.obj.Delete(vm, StrKey(name))
		case ref.dyn != nil:
			if !ref.dyn.deletable {
				return false, nil
			}
			delete(ref.env.dyn, name)
			return true, nil
		}
		return false, nil
	}
	if _, ok := vm.realm.globalLex[name]; ok {
		return false, nil
	}
	return vm.realm.GlobalObject.Delete(vm, StrKey(name))
}

// getNameThis resolves a callee by name and returns the this value a call
// through it receives: the binding object of a with statement, otherwise
// undefined.
func (vm *VM) getNameThis(env *Env, name string, strict bool) (Value, Value, error) {
	ref, found, err := vm.resolveName(env, name)
	if err != nil {
		return Undefined, Undefined, err
	}
	if !found {
		v, err := vm.getGlobal(name, false)
		return v, Undefined, err
	}
	v, err := vm.getReference(ref, name, strict)
	if ref.obj != nil {
		return v, ObjectValue(ref.obj), err
	}
	return v, Undefined, err
}

// declareEvalVars instantiates the var and function declarations of
// sloppy direct eval code in the caller's variable environment.
func (vm *VM) declareEvalVars(env *Env, d *Declarations) error {
	if d == nil {
		return nil
	}
	varEnv := env.varScope()
	names := make([]string, 0, len(d.Vars)+len(d.Functions))
	names = append(names, d.Functions...)
	names = append(names, d.Vars...)
	// The var scope itself holds the body's top-level lexical bindings
	// too, so it is checked along with the blocks in between.
	for e := env; e != nil; e = e.parent {
		if e.withObj == nil && e.scope != nil {
			for _, name := range names {
				if i, ok := e.scope.Lookup(name); ok && e.scope.Kind != ScopeCatch && isLexical(e.scope.Kinds[i]) {
					return vm.redeclared(name)
				}
			}
		}
		if e == varEnv {
			break
		}
	}
	if varEnv == nil {
		r := vm.realm
		for _, name := range names {
			if _, ok := r.globalLex[name]; ok {
				return vm.redeclared(name)
			}
		}
	}
	for _, name := range d.Functions {
		if err := vm.declareEvalVar(env, name, true); err != nil {
			return err
		}
	}
	for _, name := range d.Vars {
		if err := vm.declareEvalVar(env, name, false); err != nil {
			return err
		}
	}
	return nil
}

func isLexical(k BindingKind) bool {
	switch k {
	case BindLet, BindConst, BindClass:
		return true
	}
	return false
}
