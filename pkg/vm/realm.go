package vm

// Realm holds the global object, the global lexical bindings and the
// intrinsic objects of one execution environment. newRealm allocates
// every intrinsic prototype with the right [[Prototype]] chain; the
// builtins package then installs their properties.
type Realm struct {
	GlobalObject *Object
	globalLex    map[string]*GlobalBinding
	// templates caches the strings array of each tagged template site.
	templates map[*TemplateSite]*Object

	ObjectPrototype   *Object
	FunctionPrototype *Object
	ArrayPrototype    *Object
	StringPrototype   *Object
	NumberPrototype   *Object
	BooleanPrototype  *Object
	SymbolPrototype   *Object
	BigIntPrototype   *Object
	ErrorPrototypes   [numErrorKinds]*Object

	IteratorPrototype              *Object
	AsyncIteratorPrototype         *Object
	ArrayIteratorPrototype         *Object
	MapIteratorPrototype           *Object
	SetIteratorPrototype           *Object
	StringIteratorPrototype        *Object
	RegExpStringIteratorPrototype  *Object
	IteratorHelperPrototype        *Object
	WrapForValidIteratorPrototype  *Object
	AsyncFromSyncIteratorPrototype *Object
	ForInIteratorPrototype         *Object

	GeneratorPrototype              *Object
	AsyncGeneratorPrototype         *Object
	GeneratorFunctionPrototype      *Object
	AsyncFunctionPrototype          *Object
	AsyncGeneratorFunctionPrototype *Object

	PromisePrototype              *Object
	RegExpPrototype               *Object
	DatePrototype                 *Object
	MapPrototype                  *Object
	SetPrototype                  *Object
	WeakMapPrototype              *Object
	WeakSetPrototype              *Object
	WeakRefPrototype              *Object
	FinalizationRegistryPrototype *Object
	ArrayBufferPrototype          *Object
	DataViewPrototype             *Object
	TypedArrayPrototype           *Object
	TypedArrayPrototypes          [NumTypedArrayKinds]*Object
	DisposableStackPrototype      *Object
	AsyncDisposableStackPrototype *Object

	ObjectConstructor      *Object
	FunctionConstructor    *Object
	ArrayConstructor       *Object
	PromiseConstructor     *Object
	RegExpConstructor      *Object
	TypedArrayConstructor  *Object
	TypedArrayConstructors [NumTypedArrayKinds]*Object

	// Eval is %eval%; OpCallEval compares against it to detect direct
	// eval.
	Eval           *Object
	ThrowTypeError *Object
	// ArrayValues is %Array.prototype.values%, shared with arguments
	// objects.
	ArrayValues Value
	// ArrayIteratorNext is the original %ArrayIteratorPrototype%.next;
	// spreading skips the iterator protocol while both are untouched.
	ArrayIteratorNext *Object
	// RegExpExecIntrinsic is the original RegExp.prototype.exec.
	RegExpExecIntrinsic *Object
	// RegExpStatics backs the legacy static properties of RegExp.
	RegExpStatics RegExpStatics

	// intrinsics holds the remaining named intrinsics such as
	// %Reflect% or %JSON%.
	intrinsics map[string]*Object
}

func (vm *VM) newRealm() *Realm {
	r := &Realm{
		globalLex:  make(map[string]*GlobalBinding),
		templates:  make(map[*TemplateSite]*Object),
		intrinsics: make(map[string]*Object),
	}
	vm.realm = r

	obj := func(proto *Object) *Object { return vm.NewObjectClass(ClassObject, proto) }

	r.ObjectPrototype = vm.NewObjectClass(ClassObject, nil)
	r.ObjectPrototype.MarkImmutablePrototype()
	r.FunctionPrototype = vm.NewObjectClass(ClassFunction, r.ObjectPrototype)
	r.FunctionPrototype.Internal = &NativeFunction{
		Call:  func(*VM, Value, []Value) (Value, error) { return Undefined, nil },
		Realm: r,
	}
	r.FunctionPrototype.SetCallable(false)

	r.ArrayPrototype = vm.NewObjectClass(ClassArray, r.ObjectPrototype)
	r.StringPrototype = vm.NewStringObject(NewString(""), r.ObjectPrototype)
	r.NumberPrototype = vm.NewPrimitiveWrapper(ClassNumber, r.ObjectPrototype, NumberValue(0))
	r.BooleanPrototype = vm.NewPrimitiveWrapper(ClassBoolean, r.ObjectPrototype, False)
	r.SymbolPrototype = obj(r.ObjectPrototype)
	r.BigIntPrototype = obj(r.ObjectPrototype)

	r.ErrorPrototypes[ErrError] = obj(r.ObjectPrototype)
	for k := ErrError + 1; k < numErrorKinds; k++ {
		r.ErrorPrototypes[k] = obj(r.ErrorPrototypes[ErrError])
	}

	r.IteratorPrototype = obj(r.ObjectPrototype)
	r.AsyncIteratorPrototype = obj(r.ObjectPrototype)
	r.ArrayIteratorPrototype = obj(r.IteratorPrototype)
	r.MapIteratorPrototype = obj(r.IteratorPrototype)
	r.SetIteratorPrototype = obj(r.IteratorPrototype)
	r.StringIteratorPrototype = obj(r.IteratorPrototype)
	r.RegExpStringIteratorPrototype = obj(r.IteratorPrototype)
	r.IteratorHelperPrototype = obj(r.IteratorPrototype)
	r.WrapForValidIteratorPrototype = obj(r.IteratorPrototype)
	r.AsyncFromSyncIteratorPrototype = obj(r.AsyncIteratorPrototype)
	r.ForInIteratorPrototype = obj(r.IteratorPrototype)

	r.GeneratorPrototype = obj(r.IteratorPrototype)
	r.AsyncGeneratorPrototype = obj(r.AsyncIteratorPrototype)
	r.GeneratorFunctionPrototype = obj(r.FunctionPrototype)
	r.AsyncFunctionPrototype = obj(r.FunctionPrototype)
	r.AsyncGeneratorFunctionPrototype = obj(r.FunctionPrototype)

	r.PromisePrototype = obj(r.ObjectPrototype)
	r.RegExpPrototype = obj(r.ObjectPrototype)
	r.DatePrototype = obj(r.ObjectPrototype)
	r.MapPrototype = obj(r.ObjectPrototype)
	r.SetPrototype = obj(r.ObjectPrototype)
	r.WeakMapPrototype = obj(r.ObjectPrototype)
	r.WeakSetPrototype = obj(r.ObjectPrototype)
	r.WeakRefPrototype = obj(r.ObjectPrototype)
	r.FinalizationRegistryPrototype = obj(r.ObjectPrototype)
	r.ArrayBufferPrototype = obj(r.ObjectPrototype)
	r.DataViewPrototype = obj(r.ObjectPrototype)
	r.TypedArrayPrototype = obj(r.ObjectPrototype)
	for k := range r.TypedArrayPrototypes {
		r.TypedArrayPrototypes[k] = obj(r.TypedArrayPrototype)
	}
	r.DisposableStackPrototype = obj(r.ObjectPrototype)
	r.AsyncDisposableStackPrototype = obj(r.ObjectPrototype)

	r.GlobalObject = obj(r.ObjectPrototype)

	r.ThrowTypeError = vm.NewNativeFunction("", 0, func(vm *VM, _ Value, _ []Value) (Value, error) {
		return Undefined, vm.NewTypeError("'caller', 'callee', and 'arguments' properties may not be accessed on strict mode functions or the arguments objects for calls to them")
	})
	r.ThrowTypeError.clearFlag(objExtensible)
	vm.initAsyncFromSyncIterator()
	return r
}

// Intrinsic returns a named intrinsic registered with SetIntrinsic.
func (r *Realm) Intrinsic(name string) *Object { return r.intrinsics[name] }

// SetIntrinsic registers a named intrinsic so that the collector keeps it
// alive and hosts can look it up.
func (r *Realm) SetIntrinsic(name string, o *Object) { r.intrinsics[name] = o }

// GlobalLexical returns the global let, const or class binding name.
func (r *Realm) GlobalLexical(name string) (*GlobalBinding, bool) {
	b, ok := r.globalLex[name]
	return b, ok
}

// eachIntrinsic calls fn for every object the realm holds on to.
func (r *Realm) eachIntrinsic(fn func(*Object)) {
	for _, o := range []*Object{
		r.GlobalObject, r.ObjectPrototype, r.FunctionPrototype, r.ArrayPrototype,
		r.StringPrototype, r.NumberPrototype, r.BooleanPrototype, r.SymbolPrototype,
		r.BigIntPrototype, r.IteratorPrototype, r.AsyncIteratorPrototype,
		r.ArrayIteratorPrototype, r.MapIteratorPrototype, r.SetIteratorPrototype,
		r.StringIteratorPrototype, r.RegExpStringIteratorPrototype,
		r.IteratorHelperPrototype, r.WrapForValidIteratorPrototype,
		r.AsyncFromSyncIteratorPrototype, r.ForInIteratorPrototype,
		r.GeneratorPrototype, r.AsyncGeneratorPrototype, r.GeneratorFunctionPrototype,
		r.AsyncFunctionPrototype, r.AsyncGeneratorFunctionPrototype,
		r.PromisePrototype, r.RegExpPrototype, r.DatePrototype, r.MapPrototype,
		r.SetPrototype, r.WeakMapPrototype, r.WeakSetPrototype, r.WeakRefPrototype,
		r.FinalizationRegistryPrototype, r.ArrayBufferPrototype, r.DataViewPrototype,
		r.TypedArrayPrototype, r.DisposableStackPrototype, r.AsyncDisposableStackPrototype,
		r.ObjectConstructor, r.FunctionConstructor, r.ArrayConstructor,
		r.PromiseConstructor, r.RegExpConstructor, r.TypedArrayConstructor,
		r.Eval, r.ThrowTypeError, r.ArrayValues.AsObject(), r.ArrayIteratorNext,
		r.RegExpExecIntrinsic,
	} {
		if o != nil {
			fn(o)
		}
	}
	for _, o := range r.ErrorPrototypes {
		fn(o)
	}
	for _, o := range r.TypedArrayPrototypes {
		fn(o)
	}
	for _, o := range r.TypedArrayConstructors {
		if o != nil {
			fn(o)
		}
	}
	for _, o := range r.intrinsics {
		fn(o)
	}
}

// arrayIterationIsPristine reports whether iterating arr would observe
// only the built-in array iterator.
func (vm *VM) arrayIterationIsPristine(arr *Object) bool {
	r := vm.realm
	if arr.proto != r.ArrayPrototype || r.ArrayIteratorNext == nil {
		return false
	}
	if _, own := arr.GetOwnDirect(SymKey(SymIterator)); own || arr.props.get(SymKey(SymIterator)) != nil {
		return false
	}
	it, ok := r.ArrayPrototype.GetOwnDirect(SymKey(SymIterator))
	if !ok || !SameValue(it, r.ArrayValues) {
		return false
	}
	next, ok := r.ArrayIteratorPrototype.GetOwnDirect(StrKey("next"))
	return ok && next.AsObject() == r.ArrayIteratorNext
}

// templateObject returns the cached strings array of a tagged template.
func (vm *VM) templateObject(site *TemplateSite) *Object {
	if o, ok := vm.realm.templates[site]; ok {
		return o
	}
	raw := vm.NewArrayFromValues(append([]Value(nil), site.Raw...))
	cooked := vm.NewArrayFromValues(append([]Value(nil), site.Cooked...))
	cooked.props.put(StrKey("raw"), ObjectValue(raw), Undefined, 0)
	for _, a := range []*Object{raw, cooked} {
		a.setElementAttributes(true)
		a.setFlag(objLengthReadOnly)
		a.clearFlag(objExtensible)
	}
	vm.realm.templates[site] = cooked
	return cooked
}
