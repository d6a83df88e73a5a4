package vm

// BindingKind describes how a binding in a scope may be used.
type BindingKind uint8

const (
	BindVar BindingKind = iota
	BindLet
	BindConst
	BindFunction
	BindParam
	BindClass
	BindCatch
	// BindSloppyFuncName is the read-only name binding of a named function
	// expression; assignments are silently ignored in sloppy code.
	BindSloppyFuncName
	// BindPseudo covers this, new.target and the other implicit bindings
	// that arrows and eval code read from their enclosing function.
	BindPseudo
	BindImport
)

// ScopeKind distinguishes environments that terminate var hoisting.
type ScopeKind uint8

const (
	ScopeBlock ScopeKind = iota
	ScopeFunction
	ScopeCatch
	ScopeModule
	ScopeEval
	ScopeClass
)

// ScopeInfo is the static description of an environment's slots. The
// compiler produces one per scope that needs a runtime environment; eval
// code and with lookups use the names.
type ScopeInfo struct {
	Kind  ScopeKind
	Names []string
	Kinds []BindingKind
	// Strict is set for function scopes of strict code.
	Strict bool
	// Dynamic marks a var scope in which sloppy direct eval may create
	// bindings at run time; names resolved past it are looked up by name.
	Dynamic bool
}

// Lookup returns the slot of name in the scope.
func (s *ScopeInfo) Lookup(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	for i := len(s.Names) - 1; i >= 0; i-- {
		if s.Names[i] == name {
			return i, true
		}
	}
	return 0, false
}

// Env is a runtime environment record. Declarative environments keep
// their bindings in slots; an object environment (with) sets withObj; a
// function environment touched by sloppy direct eval may grow dynamic
// var bindings in dyn.
type Env struct {
	parent  *Env
	slots   []Value
	scope   *ScopeInfo
	withObj *Object
	dyn     map[string]*dynBinding
	// module binds import slots to their exporting environment.
	imports []importCell
	mark    uint32
}

type dynBinding struct {
	value     Value
	deletable bool
}

type importCell struct {
	env  *Env
	slot int
	ns   *Object
}

// NewEnv creates a declarative environment whose slots start in their
// temporal dead zone for lexical bindings and undefined otherwise.
func (vm *VM) NewEnv(parent *Env, scope *ScopeInfo) *Env {
	e := &Env{parent: parent, scope: scope}
	if scope != nil && len(scope.Names) > 0 {
		e.slots = make([]Value, len(scope.Names))
		for i, k := range scope.Kinds {
			switch k {
			case BindLet, BindConst, BindClass, BindImport:
				e.slots[i] = Empty
			default:
				e.slots[i] = Undefined
			}
		}
	}
	vm.heap.envAllocated()
	return e
}

func (vm *VM) newWithEnv(parent *Env, obj *Object) *Env {
	vm.heap.envAllocated()
	return &Env{parent: parent, withObj: obj}
}

func (e *Env) Parent() *Env        { return e.parent }
func (e *Env) Scope() *ScopeInfo   { return e.scope }
func (e *Env) WithObject() *Object { return e.withObj }

// Slot reads binding i directly.
func (e *Env) Slot(i int) Value { return e.slots[i] }

// SetSlot writes binding i directly.
func (e *Env) SetSlot(i int, v Value) { e.slots[i] = v }

func (e *Env) at(depth int) *Env {
	for ; depth > 0; depth-- {
		e = e.parent
	}
	return e
}

// copyEnv clones a per-iteration loop environment.
func (vm *VM) copyEnv(e *Env) *Env {
	n := vm.NewEnv(e.parent, e.scope)
	copy(n.slots, e.slots)
	return n
}

// varScope returns the nearest environment that receives var bindings
// created by sloppy direct eval.
func (e *Env) varScope() *Env {
	for env := e; env != nil; env = env.parent {
		if env.scope != nil && (env.scope.Kind == ScopeFunction || env.scope.Kind == ScopeEval && env.scope.Strict) {
			return env
		}
	}
	return nil
}

// reference is the result of resolving a name dynamically through the
// environment chain.
type reference struct {
	env  *Env
	slot int
	obj  *Object // object environment that owns the binding
	dyn  *dynBinding
}

// resolveName walks the chain for name. It reports false when the name is
// only reachable through the global scope.
func (vm *VM) resolveName(env *Env, name string) (reference, bool, error) {
	key := StrKey(name)
	for e := env; e != nil; e = e.parent {
		if e.withObj != nil {
			found, err := e.withObj.HasProperty(vm, key)
			if err != nil {
				return reference{}, false, err
			}
			if found {
				blocked, err := vm.isUnscopable(e.withObj, key)
				if err != nil {
					return reference{}, false, err
				}
				if !blocked {
					return reference{obj: e.withObj}, true, nil
				}
			}
			continue
		}
		if i, ok := e.scope.Lookup(name); ok {
			return reference{env: e, slot: i}, true, nil
		}
		if b, ok := e.dyn[name]; ok {
			return reference{env: e, dyn: b}, true, nil
		}
	}
	return reference{}, false, nil
}

func (vm *VM) isUnscopable(obj *Object, key PropertyKey) (bool, error) {
	u, err := obj.Get(vm, SymKey(SymUnscopables), ObjectValue(obj))
	if err != nil || !u.IsObject() {
		return false, err
	}
	b, err := u.AsObject().Get(vm, key, u)
	return b.ToBoolean(), err
}

func (vm *VM) getReference(ref reference, name string, strict bool) (Value, error) {
	switch {
	case ref.obj != nil:
		key := StrKey(name)
		if strict {
			found, err := ref.obj.HasProperty(vm, key)
			if err != nil {
				return Undefined, err
			}
			if !found {
				return Undefined, vm.NewReferenceError(name + " is not defined")
			}
		}
		return ref.obj.Get(vm, key, ObjectValue(ref.obj))
	case ref.dyn != nil:
		return ref.dyn.value, nil
	}
	if ref.env.scope.Kinds[ref.slot] == BindImport {
		return vm.readImport(ref.env, ref.slot, name)
	}
	v := ref.env.slots[ref.slot]
	if v.IsEmpty() {
		return Undefined, vm.tdzError(name)
	}
	return v, nil
}

func (vm *VM) putReference(ref reference, name string, v Value, strict bool) error {
	switch {
	case ref.obj != nil:
		key := StrKey(name)
		stillExists, err := ref.obj.HasProperty(vm, key)
		if err != nil {
			return err
		}
		if !stillExists && strict {
			return vm.NewReferenceError(name + " is not defined")
		}
		ok, err := ref.obj.Set(vm, key, v, ObjectValue(ref.obj))
		if err != nil {
			return err
		}
		if !ok && strict {
			return vm.NewTypeError("Cannot assign to read only property '" + name + "' of object")
		}
		return nil
	case ref.dyn != nil:
		ref.dyn.value = v
		return nil
	}
	cur := ref.env.slots[ref.slot]
	switch ref.env.scope.Kinds[ref.slot] {
	case BindImport:
		return vm.NewTypeError("Assignment to constant variable.")
	case BindConst:
		if cur.IsEmpty() {
			return vm.tdzError(name)
		}
		return vm.NewTypeError("Assignment to constant variable.")
	case BindSloppyFuncName:
		if strict {
			return vm.NewTypeError("Assignment to constant variable.")
		}
		return nil
	}
	if cur.IsEmpty() {
		return vm.tdzError(name)
	}
	ref.env.slots[ref.slot] = v
	return nil
}

func (vm *VM) tdzError(name string) error {
	return vm.NewReferenceError("Cannot access '" + name + "' before initialization")
}

// declareEvalVar creates a var binding introduced by sloppy direct eval in
// the caller's variable environment.
func (vm *VM) declareEvalVar(env *Env, name string, fn bool) error {
	target := env.varScope()
	if target == nil {
		return vm.declareGlobalVar(name, fn, true)
	}
	if _, ok := target.scope.Lookup(name); ok {
		return nil
	}
	if target.dyn == nil {
		target.dyn = make(map[string]*dynBinding)
	}
	if _, ok := target.dyn[name]; !ok {
		target.dyn[name] = &dynBinding{value: Undefined, deletable: true}
	}
	return nil
}

// GlobalBinding is a global let, const or class declaration. These live in
// the realm's declarative record, not on the global object.
type GlobalBinding struct {
	Value   Value
	Mutable bool
}
