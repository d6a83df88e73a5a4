package vm

import (
	"context"
	"log/slog"
	"math"
)

// DefaultMaxCallDepth bounds the script call stack when Options leaves it
// unset.
const DefaultMaxCallDepth = 2000

// frame is one activation of script code. Frames are heap allocated so
// that generators and async functions can detach and later resume them.
type frame struct {
	fn       *FunctionTemplate
	callee   *Object
	closure  *Closure
	regs     []Value
	ip       int
	env      *Env
	envDepth int

	this      Value
	newTarget Value
	args      []Value

	// dst is the caller register that receives the result.
	dst int
	// boundary frames were entered from Go; run returns when they finish
	// or suspend.
	boundary bool
	// construct is set for [[Construct]] of base constructors: a
	// non-object return yields this instead.
	construct bool

	gen   *generatorData
	async *asyncState
	// awaitDst receives the settled value when an await resumes.
	awaitDst int
}

// Options configure a VM.
type Options struct {
	Logger       *slog.Logger
	MaxCallDepth int
	// GCThreshold is the number of allocations between implicit
	// collections; zero selects the default.
	GCThreshold int
	// GCStress collects at every safe point.
	GCStress bool
}

// VM executes compiled code for one realm. It is not safe for concurrent
// use; all script execution happens on the goroutine that calls into it.
type VM struct {
	realm  *Realm
	frames []*frame
	heap   *Heap
	logger *slog.Logger

	maxDepth int
	// runDepth counts nested interpreter loops. Collection only runs in
	// the outermost one, so values held in Go locals of natives and
	// accessors that re-entered the interpreter stay alive.
	runDepth int

	jobs       []Job
	currentJob *Job
	// keptAlive holds WeakRef targets observed during the current job.
	keptAlive []*Object

	compiler CodeCompiler
	loader   ModuleLoader
	// modules lists every module record created in this VM.
	modules []*ModuleRecord
	// asyncEvalCounter orders modules whose evaluation became async.
	asyncEvalCounter int
	// pendingRejections are promises rejected without a handler during
	// the current drain of the job queue.
	pendingRejections []*Object
	// RejectionTracker is told about promises rejected without a handler
	// and about handlers added later.
	RejectionTracker func(promise *Object, handled bool)

	ctx context.Context

	// cycleGuard holds the objects currently being joined, so that cyclic
	// structures render once.
	cycleGuard []*Object
}

// CodeCompiler compiles source text at run time for eval, the Function
// constructor and friends. The compiler package provides it.
type CodeCompiler interface {
	// CompileEval compiles eval code. env is the caller's environment for
	// direct eval and nil for indirect eval; flags come from the calling
	// function's EvalFlags.
	CompileEval(vm *VM, src string, env *Env, strict bool, flags EvalFlags) (*FunctionTemplate, error)
	// CompileFunction compiles the text of a dynamic function.
	CompileFunction(vm *VM, kind FunctionKind, params []string, body string) (*FunctionTemplate, error)
}

// EvalFlags tell the eval compiler which context dependent constructs are
// allowed in direct eval code.
type EvalFlags uint8

const (
	EvalInFunction EvalFlags = 1 << iota
	EvalInMethod
	EvalInDerivedConstructor
	EvalInClassField
)

// New creates a VM with an empty realm. Intrinsics are installed by the
// builtins package.
func New(opts Options) *VM {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	depth := opts.MaxCallDepth
	if depth <= 0 {
		depth = DefaultMaxCallDepth
	}
	vm := &VM{
		logger:   logger,
		maxDepth: depth,
		ctx:      context.Background(),
	}
	vm.heap = newHeap(vm, opts.GCThreshold, opts.GCStress)
	vm.realm = vm.newRealm()
	return vm
}

func (vm *VM) Realm() *Realm        { return vm.realm }
func (vm *VM) Logger() *slog.Logger { return vm.logger }

// SetCompiler installs the run-time compiler used by eval and Function.
func (vm *VM) SetCompiler(c CodeCompiler) { vm.compiler = c }

// SetModuleLoader installs the host hook for import().
func (vm *VM) SetModuleLoader(l ModuleLoader) { vm.loader = l }

// SetContext sets the context checked between jobs. Cancelling it stops
// DrainJobQueue; running script is never interrupted.
func (vm *VM) SetContext(ctx context.Context) { vm.ctx = ctx }

var opSizes = func() (s [256]uint8) {
	for op := OpCode(0); op < numOpCodes; op++ {
		s[op] = uint8(op.Size())
	}
	return
}()

func u16(code []byte, p int) int { return int(code[p]) | int(code[p+1])<<8 }

func i32(code []byte, p int) int {
	return int(int32(uint32(code[p]) | uint32(code[p+1])<<8 | uint32(code[p+2])<<16 | uint32(code[p+3])<<24))
}

func (vm *VM) top() *frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) pushFrame(f *frame) error {
	if len(vm.frames) >= vm.maxDepth {
		return vm.errStackOverflow()
	}
	vm.frames = append(vm.frames, f)
	return nil
}

func (vm *VM) popFrame() *frame {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	return f
}

// RunScript executes the top-level template of a script.
func (vm *VM) RunScript(tmpl *FunctionTemplate) (Value, error) {
	f := &frame{
		fn:        tmpl,
		regs:      make([]Value, tmpl.NumRegs),
		this:      ObjectValue(vm.realm.GlobalObject),
		newTarget: Undefined,
		dst:       -1,
		boundary:  true,
	}
	return vm.enter(f)
}

// enter pushes a boundary frame and runs it to completion or suspension.
func (vm *VM) enter(f *frame) (Value, error) {
	if err := vm.pushFrame(f); err != nil {
		return Undefined, err
	}
	return vm.run()
}

// run executes frames until the innermost boundary frame returns,
// throws out or suspends.
func (vm *VM) run() (result Value, err error) {
	vm.runDepth++
	defer func() { vm.runDepth-- }()

	f := vm.top()
	code := f.fn.Code
	consts := f.fn.Constants
	regs := f.regs
	ip := f.ip

	for {
		if vm.heap.pending && vm.runDepth == 1 {
			f.ip = ip
			vm.heap.collect()
		}
		op := OpCode(code[ip])
		p := ip + 1
		ip += int(opSizes[op])
		f.ip = ip

		var err error
		reload := false

		switch op {
		case OpNop:

		case OpLoadConst:
			regs[u16(code, p)] = consts[u16(code, p+2)]
		case OpLoadUndefined:
			regs[u16(code, p)] = Undefined
		case OpLoadNull:
			regs[u16(code, p)] = Null
		case OpLoadTrue:
			regs[u16(code, p)] = True
		case OpLoadFalse:
			regs[u16(code, p)] = False
		case OpLoadEmpty:
			regs[u16(code, p)] = Empty
		case OpLoadInt:
			regs[u16(code, p)] = IntValue(u16(code, p+2))
		case OpMove:
			regs[u16(code, p)] = regs[u16(code, p+2)]
		case OpLoadGlobalThis:
			regs[u16(code, p)] = ObjectValue(vm.realm.GlobalObject)

		case OpAdd:
			a, b := regs[u16(code, p+2)], regs[u16(code, p+4)]
			if a.typ == TypeNumber && b.typ == TypeNumber {
				regs[u16(code, p)] = NumberValue(a.num + b.num)
				break
			}
			var r Value
			if r, err = vm.Add(a, b); err == nil {
				regs[u16(code, p)] = r
			}
		case OpSub, OpMul, OpDiv, OpMod, OpExp, OpShl, OpShr, OpUShr, OpBitAnd, OpBitOr, OpBitXor:
			a, b := regs[u16(code, p+2)], regs[u16(code, p+4)]
			kind := BinaryOp(op - OpSub)
			if a.typ == TypeNumber && b.typ == TypeNumber {
				regs[u16(code, p)] = NumberValue(numberOp(kind, a.num, b.num))
				break
			}
			var r Value
			if r, err = vm.Arith(kind, a, b); err == nil {
				regs[u16(code, p)] = r
			}

		case OpEq, OpNotEq:
			var eq bool
			if eq, err = vm.LooseEquals(regs[u16(code, p+2)], regs[u16(code, p+4)]); err == nil {
				regs[u16(code, p)] = BooleanValue(eq == (op == OpEq))
			}
		case OpStrictEq:
			regs[u16(code, p)] = BooleanValue(StrictEquals(regs[u16(code, p+2)], regs[u16(code, p+4)]))
		case OpStrictNotEq:
			regs[u16(code, p)] = BooleanValue(!StrictEquals(regs[u16(code, p+2)], regs[u16(code, p+4)]))
		case OpLt, OpLe, OpGt, OpGe:
			var r bool
			if r, err = vm.Compare(compareOps[op-OpLt], regs[u16(code, p+2)], regs[u16(code, p+4)]); err == nil {
				regs[u16(code, p)] = BooleanValue(r)
			}
		case OpIn:
			var r bool
			if r, err = vm.HasPropertyOp(regs[u16(code, p+2)], regs[u16(code, p+4)]); err == nil {
				regs[u16(code, p)] = BooleanValue(r)
			}
		case OpInstanceOf:
			var r bool
			if r, err = vm.InstanceOf(regs[u16(code, p+2)], regs[u16(code, p+4)]); err == nil {
				regs[u16(code, p)] = BooleanValue(r)
			}

		case OpNeg:
			v := regs[u16(code, p+2)]
			if v.typ == TypeNumber {
				regs[u16(code, p)] = NumberValue(-v.num)
				break
			}
			var r Value
			if r, err = vm.Negate(v); err == nil {
				regs[u16(code, p)] = r
			}
		case OpPlus:
			var n float64
			if n, err = vm.ToNumber(regs[u16(code, p+2)]); err == nil {
				regs[u16(code, p)] = NumberValue(n)
			}
		case OpBitNot:
			var r Value
			if r, err = vm.BitNot(regs[u16(code, p+2)]); err == nil {
				regs[u16(code, p)] = r
			}
		case OpNot:
			regs[u16(code, p)] = BooleanValue(!regs[u16(code, p+2)].ToBoolean())
		case OpTypeOf:
			regs[u16(code, p)] = StringValue(intern(regs[u16(code, p+2)].TypeOf()))
		case OpToNumeric:
			var r Value
			if r, err = vm.ToNumeric(regs[u16(code, p+2)]); err == nil {
				regs[u16(code, p)] = r
			}
		case OpInc, OpDec:
			delta := 1
			if op == OpDec {
				delta = -1
			}
			var r Value
			if r, err = vm.Increment(regs[u16(code, p+2)], delta); err == nil {
				regs[u16(code, p)] = r
			}
		case OpToPropertyKey:
			var k PropertyKey
			if k, err = vm.ToPropertyKey(regs[u16(code, p+2)]); err == nil {
				regs[u16(code, p)] = k.ToValue()
			}
		case OpToString:
			var s *String
			s, err = vm.ToString(regs[u16(code, p+2)])
			if err == nil {
				regs[u16(code, p)] = StringValue(s)
			}
		case OpRequireObjectCoercible:
			v := regs[u16(code, p)]
			if v.IsNullish() {
				err = vm.NewTypeError("Cannot destructure '" + v.typ.String() + "' as it is " + v.typ.String() + ".")
			}

		case OpJump:
			ip += i32(code, p)
		case OpJumpIfTrue:
			if regs[u16(code, p)].ToBoolean() {
				ip += i32(code, p+2)
			}
		case OpJumpIfFalse:
			if !regs[u16(code, p)].ToBoolean() {
				ip += i32(code, p+2)
			}
		case OpJumpIfNullish:
			if regs[u16(code, p)].IsNullish() {
				ip += i32(code, p+2)
			}
		case OpJumpIfNotNullish:
			if !regs[u16(code, p)].IsNullish() {
				ip += i32(code, p+2)
			}
		case OpJumpIfUndefined:
			if regs[u16(code, p)].IsUndefined() {
				ip += i32(code, p+2)
			}
		case OpJumpIfNotUndef:
			if !regs[u16(code, p)].IsUndefined() {
				ip += i32(code, p+2)
			}
		case OpJumpIfInt:
			v := regs[u16(code, p)]
			if v.typ == TypeNumber && v.num == float64(u16(code, p+2)) {
				ip += i32(code, p+4)
			}

		case OpPushEnv:
			f.env = vm.NewEnv(f.env, f.fn.Scopes[u16(code, p)])
			f.envDepth++
		case OpPopEnv:
			f.env = f.env.parent
			f.envDepth--
		case OpCopyEnv:
			f.env = vm.copyEnv(f.env)
		case OpPushWith:
			var obj *Object
			obj, err = vm.ToObject(regs[u16(code, p)])
			if err == nil {
				f.env = vm.newWithEnv(f.env, obj)
				f.envDepth++
			}
		case OpGetEnv:
			regs[u16(code, p)] = f.env.at(u16(code, p+2)).slots[u16(code, p+4)]
		case OpGetEnvCheck:
			v := f.env.at(u16(code, p+2)).slots[u16(code, p+4)]
			if v.IsEmpty() {
				err = vm.tdzError(consts[u16(code, p+6)].AsString().String())
				break
			}
			regs[u16(code, p)] = v
		case OpSetEnv:
			f.env.at(u16(code, p)).slots[u16(code, p+2)] = regs[u16(code, p+4)]
		case OpSetEnvCheck:
			e := f.env.at(u16(code, p))
			slot := u16(code, p+2)
			if e.slots[slot].IsEmpty() {
				err = vm.tdzError(consts[u16(code, p+6)].AsString().String())
				break
			}
			e.slots[slot] = regs[u16(code, p+4)]
		case OpGetImport:
			var v Value
			if v, err = vm.readImport(f.env.at(u16(code, p+2)), u16(code, p+4), consts[u16(code, p+6)].AsString().String()); err == nil {
				regs[u16(code, p)] = v
			}
		case OpCheckTDZ:
			if regs[u16(code, p)].IsEmpty() {
				err = vm.tdzError(consts[u16(code, p+2)].AsString().String())
			}
		case OpThrowConstAs:
			err = vm.NewTypeError("Assignment to constant variable.")

		case OpGetGlobal, OpTypeofGlobal:
			var v Value
			if v, err = vm.getGlobal(consts[u16(code, p+2)].AsString().String(), op == OpTypeofGlobal); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetGlobal:
			err = vm.setGlobal(consts[u16(code, p)].AsString().String(), regs[u16(code, p+2)], f.fn.Strict)
		case OpDeclareGlobals:
			err = vm.declareGlobals(f.fn.Decls, u16(code, p)&DeclareEval != 0)
		case OpDeclareGlobalFn:
			err = vm.declareGlobalFunction(consts[u16(code, p)].AsString().String(), regs[u16(code, p+2)], f.fn.Kind == KindEval)
		case OpInitGlobalLex:
			vm.initGlobalLex(consts[u16(code, p)].AsString().String(), regs[u16(code, p+2)])
		case OpGetName, OpTypeofName:
			var v Value
			if v, err = vm.getName(f.env, consts[u16(code, p+2)].AsString().String(), op == OpTypeofName, f.fn.Strict); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetName:
			err = vm.setName(f.env, consts[u16(code, p)].AsString().String(), regs[u16(code, p+2)], f.fn.Strict)
		case OpDeleteName:
			var ok bool
			if ok, err = vm.deleteName(f.env, consts[u16(code, p+2)].AsString().String()); err == nil {
				regs[u16(code, p)] = BooleanValue(ok)
			}
		case OpGetNameThis:
			var fn, this Value
			if fn, this, err = vm.getNameThis(f.env, consts[u16(code, p+4)].AsString().String(), f.fn.Strict); err == nil {
				regs[u16(code, p)] = fn
			}
			regs[u16(code, p+2)] = this
		case OpDeclareEvalVars:
			err = vm.declareEvalVars(f.env, f.fn.Decls)

		case OpGetProp:
			var v Value
			if v, err = vm.getProperty(regs[u16(code, p+2)], StringKey(consts[u16(code, p+4)].AsString())); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetProp:
			err = vm.setProperty(regs[u16(code, p)], StringKey(consts[u16(code, p+2)].AsString()), regs[u16(code, p+4)], f.fn.Strict)
		case OpGetElem:
			var v Value
			if v, err = vm.getElement(regs[u16(code, p+2)], regs[u16(code, p+4)]); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetElem:
			err = vm.setElement(regs[u16(code, p)], regs[u16(code, p+2)], regs[u16(code, p+4)], f.fn.Strict)
		case OpDeleteProp:
			var ok bool
			if ok, err = vm.deleteProperty(regs[u16(code, p+2)], StringKey(consts[u16(code, p+4)].AsString()), f.fn.Strict); err == nil {
				regs[u16(code, p)] = BooleanValue(ok)
			}
		case OpDeleteElem:
			var key PropertyKey
			obj := regs[u16(code, p+2)]
			if obj.IsNullish() {
				err = vm.NewTypeError("Cannot convert undefined or null to object")
				break
			}
			key, err = vm.ToPropertyKey(regs[u16(code, p+4)])
			if err != nil {
				break
			}
			var ok bool
			if ok, err = vm.deleteProperty(obj, key, f.fn.Strict); err == nil {
				regs[u16(code, p)] = BooleanValue(ok)
			}
		case OpGetMethod:
			var m Value
			if m, err = vm.GetMethod(regs[u16(code, p+2)], StringKey(consts[u16(code, p+4)].AsString())); err == nil {
				regs[u16(code, p)] = m
			}
		case OpLoadHomeProto:
			home := regs[u16(code, p+2)].AsObject()
			var proto *Object
			proto, err = home.GetPrototypeOf(vm)
			if err != nil {
				break
			}
			if proto == nil {
				regs[u16(code, p)] = Null
			} else {
				regs[u16(code, p)] = ObjectValue(proto)
			}
		case OpGetSuper:
			var v Value
			if v, err = vm.getSuper(regs[u16(code, p+2)], regs[u16(code, p+4)], regs[u16(code, p+6)]); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetSuper:
			err = vm.setSuper(regs[u16(code, p)], regs[u16(code, p+2)], regs[u16(code, p+4)], regs[u16(code, p+6)], f.fn.Strict)
		case OpNewPrivate:
			desc := consts[u16(code, p+2)].AsString().String()
			regs[u16(code, p)] = SymbolValue(NewPrivateName(desc))
		case OpGetPrivate:
			var v Value
			if v, err = vm.privateGet(regs[u16(code, p+2)], regs[u16(code, p+4)].AsSymbol()); err == nil {
				regs[u16(code, p)] = v
			}
		case OpSetPrivate:
			err = vm.privateSet(regs[u16(code, p)], regs[u16(code, p+2)].AsSymbol(), regs[u16(code, p+4)])
		case OpDefinePrivate:
			err = vm.privateDefine(regs[u16(code, p)], regs[u16(code, p+2)].AsSymbol(), regs[u16(code, p+4)], u16(code, p+6))
		case OpHasPrivate:
			obj := regs[u16(code, p+2)]
			if !obj.IsObject() {
				err = vm.NewTypeError("Cannot use 'in' operator to search for '" + regs[u16(code, p+4)].AsSymbol().Description.String() + "' in " + Inspect(obj))
				break
			}
			regs[u16(code, p)] = BooleanValue(obj.AsObject().props.get(SymKey(regs[u16(code, p+4)].AsSymbol())) != nil)

		case OpNewObject:
			regs[u16(code, p)] = ObjectValue(vm.NewObject())
		case OpNewArray:
			a := vm.NewArray()
			if n := u16(code, p+2); n > 0 {
				a.elems = make([]Value, 0, n)
			}
			regs[u16(code, p)] = ObjectValue(a)
		case OpArrayPush:
			regs[u16(code, p)].AsObject().AppendElement(regs[u16(code, p+2)])
		case OpArrayHole:
			regs[u16(code, p)].AsObject().AppendHole()
		case OpArraySpread:
			err = vm.spreadInto(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)])
		case OpDefineField:
			var key PropertyKey
			key, err = vm.ToPropertyKey(regs[u16(code, p+2)])
			if err == nil {
				err = vm.CreateDataPropertyOrThrow(regs[u16(code, p)].AsObject(), key, regs[u16(code, p+4)])
			}
		case OpDefineFieldK:
			err = vm.CreateDataPropertyOrThrow(regs[u16(code, p)].AsObject(), StringKey(consts[u16(code, p+2)].AsString()), regs[u16(code, p+4)])
		case OpDefineMethod:
			err = vm.defineMethod(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)], regs[u16(code, p+4)].AsObject(), u16(code, p+6))
		case OpSetHome:
			if c := ClosureOf(regs[u16(code, p)].AsObject()); c != nil {
				c.Home = regs[u16(code, p+2)].AsObject()
			}
		case OpSetFuncName:
			var key PropertyKey
			key, err = vm.ToPropertyKey(regs[u16(code, p+2)])
			if err == nil {
				vm.SetFunctionName(regs[u16(code, p)].AsObject(), key, namePrefixes[u16(code, p+4)])
			}
		case OpSetProtoLiteral:
			v := regs[u16(code, p+2)]
			if v.IsObject() {
				regs[u16(code, p)].AsObject().ordinarySetPrototypeOf(v.AsObject())
			} else if v.IsNull() {
				regs[u16(code, p)].AsObject().ordinarySetPrototypeOf(nil)
			}
		case OpCopyDataProps:
			err = vm.CopyDataProperties(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)], nil)
		case OpCopyDataPropsEx:
			start, n := u16(code, p+4), u16(code, p+6)
			excluded := make([]PropertyKey, n)
			for i := 0; i < n; i++ {
				excluded[i], err = vm.ToPropertyKey(regs[start+i])
				if err != nil {
					break
				}
			}
			if err == nil {
				err = vm.CopyDataProperties(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)], excluded)
			}

		case OpClosure:
			regs[u16(code, p)] = ObjectValue(vm.MakeClosure(f.fn.Functions[u16(code, p+2)], f.env, nil))

		case OpCall:
			start, argc := u16(code, p+6), u16(code, p+8)
			args := make([]Value, argc)
			copy(args, regs[start:start+argc])
			reload, err = vm.callFromFrame(regs[u16(code, p+2)], regs[u16(code, p+4)], args, u16(code, p))
		case OpCallSpread:
			var args []Value
			args, err = vm.spreadArgs(regs[u16(code, p+6)])
			if err == nil {
				reload, err = vm.callFromFrame(regs[u16(code, p+2)], regs[u16(code, p+4)], args, u16(code, p))
			}
		case OpNew:
			start, argc := u16(code, p+4), u16(code, p+6)
			args := make([]Value, argc)
			copy(args, regs[start:start+argc])
			ctor := regs[u16(code, p+2)]
			reload, err = vm.constructFromFrame(ctor, args, ctor, u16(code, p))
		case OpNewSpread:
			var args []Value
			args, err = vm.spreadArgs(regs[u16(code, p+4)])
			if err == nil {
				ctor := regs[u16(code, p+2)]
				reload, err = vm.constructFromFrame(ctor, args, ctor, u16(code, p))
			}
		case OpSuperCall, OpSuperCallSpread:
			var args []Value
			if op == OpSuperCall {
				start, argc := u16(code, p+6), u16(code, p+8)
				args = make([]Value, argc)
				copy(args, regs[start:start+argc])
			} else {
				args, err = vm.spreadArgs(regs[u16(code, p+6)])
				if err != nil {
					break
				}
			}
			callee := regs[u16(code, p+2)].AsObject()
			var super *Object
			super, err = callee.GetPrototypeOf(vm)
			if err != nil {
				break
			}
			if super == nil || !super.IsConstructor() {
				err = vm.NewTypeError("Super constructor " + Inspect(objectOrNull(super)) + " of anonymous class is not a constructor")
				break
			}
			reload, err = vm.constructFromFrame(ObjectValue(super), args, regs[u16(code, p+4)], u16(code, p))
		case OpCallEval:
			start, argc := u16(code, p+6), u16(code, p+8)
			args := make([]Value, argc)
			copy(args, regs[start:start+argc])
			fn := regs[u16(code, p+2)]
			if fn.IsObject() && fn.AsObject() == vm.realm.Eval {
				var v Value
				if v, err = vm.directEval(f, Arg(args, 0)); err == nil {
					regs[u16(code, p)] = v
				}
				break
			}
			reload, err = vm.callFromFrame(fn, regs[u16(code, p+4)], args, u16(code, p))

		case OpReturn:
			v := regs[u16(code, p)]
			if f.construct && !v.IsObject() {
				v = f.this
			}
			var done bool
			result, done = vm.returnFrom(f, v)
			if done {
				return result, nil
			}
			reload = true
		case OpReturnDerived:
			v := regs[u16(code, p)]
			if !v.IsObject() {
				if !v.IsUndefined() {
					err = vm.NewTypeError("Derived constructors may only return object or undefined")
					break
				}
				v = regs[u16(code, p+2)]
				if v.IsEmpty() {
					err = vm.NewReferenceError("Must call super constructor in derived class before accessing 'this' or returning from derived constructor")
					break
				}
			}
			var done bool
			result, done = vm.returnFrom(f, v)
			if done {
				return result, nil
			}
			reload = true

		case OpLoadThis:
			regs[u16(code, p)] = f.this
		case OpLoadNewTarget:
			regs[u16(code, p)] = f.newTarget
		case OpLoadCallee:
			regs[u16(code, p)] = objectOrUndefined(f.callee)
		case OpLoadHome:
			if f.closure != nil && f.closure.Home != nil {
				regs[u16(code, p)] = ObjectValue(f.closure.Home)
			} else {
				regs[u16(code, p)] = Undefined
			}
		case OpCheckThis:
			if regs[u16(code, p)].IsEmpty() {
				err = vm.NewReferenceError("Must call super constructor in derived class before accessing 'this' or returning from derived constructor")
			}
		case OpCheckSuperNot:
			if !regs[u16(code, p)].IsEmpty() {
				err = vm.NewReferenceError("Super constructor may only be called once")
			}
		case OpInitFields:
			err = vm.initializeFields(regs[u16(code, p)], regs[u16(code, p+2)].AsObject())
		case OpCreateArguments:
			if u16(code, p+2) != 0 {
				regs[u16(code, p)] = ObjectValue(vm.NewArguments(f.args, f.callee, f.env, f.fn.ArgSlots))
			} else {
				regs[u16(code, p)] = ObjectValue(vm.NewArguments(f.args, nil, nil, nil))
			}
		case OpCreateRest:
			start := u16(code, p+2)
			var rest []Value
			if start < len(f.args) {
				rest = append(rest, f.args[start:]...)
			}
			regs[u16(code, p)] = ObjectValue(vm.NewArrayFromValues(rest))
		case OpClass:
			var proto, ctor *Object
			proto, ctor, err = vm.defineClass(f, regs[u16(code, p+4)], u16(code, p+6), u16(code, p+8))
			if err == nil {
				regs[u16(code, p)] = ObjectValue(proto)
				regs[u16(code, p+2)] = ObjectValue(ctor)
			}
		case OpSetFields:
			if c := ClosureOf(regs[u16(code, p)].AsObject()); c != nil {
				c.Fields = regs[u16(code, p+2)].AsObject()
			}

		case OpGetIterator:
			var rec IteratorRecord
			rec, err = vm.GetIterator(regs[u16(code, p+2)], u16(code, p+4) != 0)
			if err == nil {
				r := u16(code, p)
				regs[r] = ObjectValue(rec.Iterator)
				regs[r+1] = rec.Next
			}
		case OpIterStep:
			it := u16(code, p+2)
			rec := IteratorRecord{Iterator: regs[it].AsObject(), Next: regs[it+1]}
			var v Value
			var done bool
			v, done, err = vm.IteratorStepValue(rec)
			if err != nil {
				break
			}
			if done {
				ip += i32(code, p+4)
				break
			}
			regs[u16(code, p)] = v
		case OpIterClose:
			it := regs[u16(code, p)].AsObject()
			if u16(code, p+2) != 0 {
				vm.iteratorCloseQuiet(it)
			} else {
				err = vm.IteratorClose(it)
			}
		case OpCheckIterResult:
			if v := regs[u16(code, p)]; !v.IsObject() {
				err = vm.NewTypeError("Iterator result " + Inspect(v) + " is not an object")
			}
		case OpForInPrepare:
			var it Value
			if it, err = vm.newForInIterator(regs[u16(code, p+2)]); err == nil {
				regs[u16(code, p)] = it
			}
		case OpForInNext:
			var key Value
			var ok bool
			key, ok, err = vm.forInNext(regs[u16(code, p+2)].AsObject())
			if err != nil {
				break
			}
			if !ok {
				ip += i32(code, p+4)
				break
			}
			regs[u16(code, p)] = key

		case OpGenInit:
			var gen *Object
			gen, err = vm.newGeneratorObject(f)
			if err != nil {
				break
			}
			vm.popFrame()
			if f.boundary {
				return ObjectValue(gen), nil
			}
			vm.top().regs[f.dst] = ObjectValue(gen)
			reload = true
		case OpYield:
			g := f.gen
			g.yieldDst = u16(code, p)
			g.modeReg = u16(code, p+2)
			g.flags = u16(code, p+6)
			g.state = genSuspendedYield
			v := regs[u16(code, p+4)]
			vm.popFrame()
			return v, nil
		case OpAwait:
			f.awaitDst = u16(code, p)
			err = vm.await(f, regs[u16(code, p+2)])
			if err != nil {
				break
			}
			vm.popFrame()
			var done bool
			result, done = vm.suspendResult(f)
			if done {
				return result, nil
			}
			reload = true

		case OpThrow:
			err = vm.Throw(regs[u16(code, p)])
		case OpThrowError:
			err = vm.newException(ErrorKind(u16(code, p)), consts[u16(code, p+2)].AsString().String())

		case OpGetTemplateObject:
			regs[u16(code, p)] = ObjectValue(vm.templateObject(f.fn.TemplateSites[u16(code, p+2)]))
		case OpDebugger:
			vm.logger.Debug("debugger statement", "function", f.fn.Name, "ip", ip)
		case OpNewRegExp:
			var re *Object
			if re, err = vm.NewRegExpObject(consts[u16(code, p+2)].AsString(), consts[u16(code, p+4)].AsString()); err == nil {
				regs[u16(code, p)] = objectOrUndefined(re)
			}
		case OpImportMeta:
			regs[u16(code, p)] = ObjectValue(vm.importMeta(f.fn.Module))
		case OpDynamicImport:
			regs[u16(code, p)] = ObjectValue(vm.dynamicImport(f.fn, regs[u16(code, p+2)], regs[u16(code, p+4)]))

		case OpNewDisposeScope:
			regs[u16(code, p)] = ObjectValue(vm.newDisposeScope())
		case OpAddDisposable:
			err = vm.addDisposable(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)], u16(code, p+4))
		case OpDisposeStep:
			var v Value
			var more bool
			v, more, err = vm.disposeStep(regs[u16(code, p+2)].AsObject())
			if err != nil {
				break
			}
			if !more {
				ip += i32(code, p+4)
				break
			}
			regs[u16(code, p)] = v
		case OpDisposeError:
			vm.disposeError(regs[u16(code, p)].AsObject(), regs[u16(code, p+2)])
		case OpDisposeFinish:
			kind, val := u16(code, p+2), u16(code, p+4)
			if exc, ok := vm.disposeFinish(regs[u16(code, p)].AsObject(), regs[kind], regs[val]); ok {
				regs[kind] = IntValue(completionThrow)
				regs[val] = exc
			}

		default:
			err = vm.newException(ErrInternalError, "invalid opcode "+op.String())
		}

		if err != nil {
			ex := vm.toException(err)
			var done bool
			result, err, done = vm.unwind(ex)
			if done {
				return result, err
			}
			reload = true
		}
		if reload {
			f = vm.top()
			code = f.fn.Code
			consts = f.fn.Constants
			regs = f.regs
			ip = f.ip
		}
	}
}

// Completion kinds held in the kind register of try/finally code.
const (
	completionNormal = iota
	completionReturn
	completionThrow
)

var compareOps = [...]string{"<", "<=", ">", ">="}

var namePrefixes = [...]string{"", "get", "set"}

func objectOrUndefined(o *Object) Value {
	if o == nil {
		return Undefined
	}
	return ObjectValue(o)
}

func objectOrNull(o *Object) Value {
	if o == nil {
		return Null
	}
	return ObjectValue(o)
}

// returnFrom pops f and delivers v to its caller. done reports that f was
// a boundary frame and run must return the (possibly replaced) result.
func (vm *VM) returnFrom(f *frame, v Value) (Value, bool) {
	vm.popFrame()
	switch {
	case f.gen != nil:
		f.gen.state = genCompleted
		f.gen.frame = nil
	case f.async != nil:
		vm.resolvePromise(f.async.promise, v)
		v = ObjectValue(f.async.promise)
	}
	if f.boundary {
		return v, true
	}
	vm.top().regs[f.dst] = v
	return v, false
}

// suspendResult delivers the promise of a suspended async frame to its
// caller.
func (vm *VM) suspendResult(f *frame) (Value, bool) {
	v := Undefined
	if f.async != nil && f.gen == nil {
		v = ObjectValue(f.async.promise)
	}
	if f.boundary {
		return v, true
	}
	vm.top().regs[f.dst] = v
	return v, false
}

// findHandler returns the innermost exception handler covering the
// instruction before f.ip.
func findHandler(f *frame) *ExceptionHandler {
	pc := f.ip - 1
	for i := range f.fn.Handlers {
		h := &f.fn.Handlers[i]
		if pc >= h.Start && pc < h.End {
			return h
		}
	}
	return nil
}

// unwind transfers control to the nearest handler for ex. When the
// exception leaves a boundary frame, done is set and run returns err; an
// async frame turns it into a rejection instead.
func (vm *VM) unwind(ex *Exception) (result Value, err error, done bool) {
	for {
		f := vm.top()
		if h := findHandler(f); h != nil {
			for f.envDepth > h.EnvDepth {
				f.env = f.env.parent
				f.envDepth--
			}
			f.regs[h.Reg] = ex.Value
			f.ip = h.Handler
			return Undefined, nil, false
		}
		vm.popFrame()
		switch {
		case f.gen != nil:
			f.gen.state = genCompleted
			f.gen.frame = nil
		case f.async != nil:
			vm.rejectPromise(f.async.promise, ex.Value)
			p := ObjectValue(f.async.promise)
			if f.boundary {
				return p, nil, true
			}
			vm.top().regs[f.dst] = p
			return Undefined, nil, false
		}
		if f.boundary {
			return Undefined, ex, true
		}
	}
}

// throwInto raises ex at the current instruction of the top frame and
// continues running when a handler takes it.
func (vm *VM) throwInto(ex *Exception) (Value, error) {
	result, err, done := vm.unwind(ex)
	if done {
		return result, err
	}
	return vm.run()
}

// Call invokes fn with the given this value and arguments.
func (vm *VM) Call(fn Value, this Value, args ...Value) (Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return Undefined, vm.notCallable(fn, "")
	}
	return vm.callObject(o, this, args)
}

// Construct invokes fn as a constructor. An undefined newTarget means fn.
func (vm *VM) Construct(fn Value, args []Value, newTarget Value) (Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsConstructor() {
		return Undefined, vm.NewTypeError(Inspect(fn) + " is not a constructor")
	}
	nt := newTarget.AsObject()
	if nt == nil {
		nt = o
	}
	return vm.constructObject(o, args, nt)
}

// IsStrict reports whether the innermost running script code is strict.
func (vm *VM) IsStrict() bool {
	if len(vm.frames) == 0 {
		return false
	}
	return vm.top().fn.Strict
}

// toInt clamps a float to the int range used for indices.
func toInt(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f > math.MaxInt32*1024:
		return math.MaxInt32 * 1024
	case f < -math.MaxInt32*1024:
		return -math.MaxInt32 * 1024
	}
	return int(f)
}

// EnterCycleGuard pushes o onto the join stack. It reports false, leaving
// the stack unchanged, when o is already being visited.
func (vm *VM) EnterCycleGuard(o *Object) bool {
	for _, g := range vm.cycleGuard {
		if g == o {
			return false
		}
	}
	vm.cycleGuard = append(vm.cycleGuard, o)
	return true
}

// ExitCycleGuard pops the object pushed by the matching EnterCycleGuard.
func (vm *VM) ExitCycleGuard() {
	vm.cycleGuard = vm.cycleGuard[:len(vm.cycleGuard)-1]
}
