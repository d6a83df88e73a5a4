package vm

import (
	"fmt"
	"math"
	"strings"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Register machine opcodes. Operand letters in the comments follow the
// format table below: R register, K constant index, N immediate, J jump
// offset relative to the end of the instruction.
const (
	OpNop OpCode = iota

	// Loads
	OpLoadConst      // R K
	OpLoadUndefined  // R
	OpLoadNull       // R
	OpLoadTrue       // R
	OpLoadFalse      // R
	OpLoadEmpty      // R: the TDZ marker
	OpLoadInt        // R N
	OpMove           // Rdst Rsrc
	OpLoadGlobalThis // R

	// Arithmetic and bitwise (Rdst Rleft Rright)
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpExp
	OpShl
	OpShr
	OpUShr
	OpBitAnd
	OpBitOr
	OpBitXor

	// Comparison (Rdst Rleft Rright)
	OpEq
	OpNotEq
	OpStrictEq
	OpStrictNotEq
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn         // Rdst Rkey Robj
	OpInstanceOf // Rdst Rval Rctor

	// Unary (Rdst Rsrc)
	OpNeg
	OpPlus
	OpBitNot
	OpNot
	OpTypeOf
	OpToNumeric
	OpInc
	OpDec
	OpToPropertyKey
	OpToString
	OpRequireObjectCoercible // R

	// Control flow
	OpJump             // J
	OpJumpIfTrue       // R J
	OpJumpIfFalse      // R J
	OpJumpIfNullish    // R J
	OpJumpIfNotNullish // R J
	OpJumpIfUndefined  // R J
	OpJumpIfNotUndef   // R J
	OpJumpIfInt        // R N J: jump when R holds the number N

	// Environments
	OpPushEnv      // N: scope index
	OpPopEnv       //
	OpCopyEnv      // replaces the innermost env with a fresh copy
	OpPushWith     // R
	OpGetEnv       // R Ndepth Nslot
	OpGetEnvCheck  // R Ndepth Nslot K(name): TDZ checked read
	OpSetEnv       // Ndepth Nslot R
	OpSetEnvCheck  // Ndepth Nslot R K(name): TDZ checked write
	OpGetImport    // R Ndepth Nslot K(name)
	OpCheckTDZ     // R K(name)
	OpThrowConstAs // K(name)

	// Globals and dynamic names
	OpGetGlobal        // R K
	OpTypeofGlobal     // R K
	OpSetGlobal        // K R
	OpDeclareGlobals   // N(flags)
	OpDeclareGlobalFn  // K R
	OpInitGlobalLex    // K R
	OpGetName          // R K
	OpTypeofName       // R K
	OpSetName          // K R
	OpDeleteName       // R K
	OpGetNameThis      // Rfunc Rthis K
	OpDeclareEvalVars  //

	// Properties
	OpGetProp       // Rdst Robj K
	OpSetProp       // Robj K Rval
	OpGetElem       // Rdst Robj Rkey
	OpSetElem       // Robj Rkey Rval
	OpDeleteProp    // Rdst Robj K
	OpDeleteElem    // Rdst Robj Rkey
	OpGetMethod     // Rdst Robj K
	OpLoadHomeProto // Rdst Rhome
	OpGetSuper      // Rdst Rproto Rkey Rthis
	OpSetSuper      // Rproto Rkey Rval Rthis
	OpNewPrivate    // Rdst K(description)
	OpGetPrivate    // Rdst Robj Rname
	OpSetPrivate    // Robj Rname Rval
	OpDefinePrivate // Robj Rname Rval N(kind)
	OpHasPrivate    // Rdst Robj Rname

	// Literals
	OpNewObject       // R
	OpNewArray        // R N(capacity)
	OpArrayPush       // Rarr Rval
	OpArrayHole       // Rarr
	OpArraySpread     // Rarr Riterable
	OpDefineField     // Robj Rkey Rval
	OpDefineFieldK    // Robj K Rval
	OpDefineMethod    // Robj Rkey Rfn N(flags)
	OpSetHome         // Rfn Rhome
	OpSetFuncName     // Rfn Rkey N(prefix)
	OpSetProtoLiteral // Robj Rproto
	OpCopyDataProps   // Rdst Rsrc
	OpCopyDataPropsEx // Rdst Rsrc Rkeys N(count)

	// Functions
	OpClosure         // R N(function index)
	OpCall            // Rdst Rfn Rthis Rargs N(argc)
	OpCallSpread      // Rdst Rfn Rthis Rarray
	OpNew             // Rdst Rctor Rargs N(argc)
	OpNewSpread       // Rdst Rctor Rarray
	OpSuperCall       // Rdst Rcallee RnewTarget Rargs N(argc)
	OpSuperCallSpread // Rdst Rcallee RnewTarget Rarray
	OpCallEval        // Rdst Rfn Rthis Rargs N(argc)
	OpReturn          // R
	OpReturnDerived   // Rval Rthis
	OpLoadThis        // R
	OpLoadNewTarget   // R
	OpLoadCallee      // R
	OpLoadHome        // R
	OpCheckThis       // R
	OpCheckSuperNot   // R: throws when this is already bound
	OpInitFields      // Rthis Rctor
	OpCreateArguments // R N(mapped)
	OpCreateRest      // R N(start)
	OpClass           // Rproto Rctor Rsuper N(function index) N(flags)
	OpSetFields       // Rctor Rinit

	// Iteration
	OpGetIterator     // Riter Robj N(async); the next method lands in Riter+1
	OpIterStep        // Rdst Riter J(done)
	OpIterClose       // Riter N(quiet)
	OpCheckIterResult // R
	OpForInPrepare    // Riter Robj
	OpForInNext       // Rdst Riter J(done)

	// Generators and async functions
	OpGenInit //
	OpYield   // Rdst Rmode Rval N(flags)
	OpAwait   // Rdst Rval

	// Exceptions
	OpThrow      // R
	OpThrowError // N(kind) K(message)

	// Misc
	OpGetTemplateObject // R N(site)
	OpDebugger          //
	OpNewRegExp         // R Kpattern Kflags
	OpImportMeta        // R
	OpDynamicImport     // Rdst Rspecifier Roptions

	// Explicit resource management
	OpNewDisposeScope // R
	OpAddDisposable   // Rscope Rval N(hint)
	OpDisposeStep     // Rdst Rscope J(done)
	OpDisposeError    // Rscope Rerr
	OpDisposeFinish   // Rscope Rkind Rval

	numOpCodes
)

// Flags of OpYield.
const (
	// YieldDelegate hands the resume mode to the code instead of throwing
	// or returning at the yield point.
	YieldDelegate = 1 << iota
	// YieldRaw passes the operand through as the iterator result object.
	YieldRaw
)

// Resume modes written to the mode register of OpYield.
const (
	ResumeNext = iota
	ResumeThrow
	ResumeReturn
)

// Flags of OpDefineMethod.
const (
	MethodKindMask   = 3 // 0 method, 1 getter, 2 setter
	MethodEnumerable = 4
)

// Kinds of OpDefinePrivate.
const (
	PrivateField = iota
	PrivateMethod
	PrivateGetter
	PrivateSetter
)

// Flags of OpDeclareGlobals.
const (
	// DeclareEval makes var bindings deletable, as for eval code.
	DeclareEval = 1 << iota
)

// Flags of OpClass.
const (
	ClassHasHeritage = 1 << iota
)

type opInfo struct {
	name   string
	format string
}

var opTable = [numOpCodes]opInfo{
	OpNop:                    {"Nop", ""},
	OpLoadConst:              {"LoadConst", "RK"},
	OpLoadUndefined:          {"LoadUndefined", "R"},
	OpLoadNull:               {"LoadNull", "R"},
	OpLoadTrue:               {"LoadTrue", "R"},
	OpLoadFalse:              {"LoadFalse", "R"},
	OpLoadEmpty:              {"LoadEmpty", "R"},
	OpLoadInt:                {"LoadInt", "RN"},
	OpMove:                   {"Move", "RR"},
	OpLoadGlobalThis:         {"LoadGlobalThis", "R"},
	OpAdd:                    {"Add", "RRR"},
	OpSub:                    {"Sub", "RRR"},
	OpMul:                    {"Mul", "RRR"},
	OpDiv:                    {"Div", "RRR"},
	OpMod:                    {"Mod", "RRR"},
	OpExp:                    {"Exp", "RRR"},
	OpShl:                    {"Shl", "RRR"},
	OpShr:                    {"Shr", "RRR"},
	OpUShr:                   {"UShr", "RRR"},
	OpBitAnd:                 {"BitAnd", "RRR"},
	OpBitOr:                  {"BitOr", "RRR"},
	OpBitXor:                 {"BitXor", "RRR"},
	OpEq:                     {"Eq", "RRR"},
	OpNotEq:                  {"NotEq", "RRR"},
	OpStrictEq:               {"StrictEq", "RRR"},
	OpStrictNotEq:            {"StrictNotEq", "RRR"},
	OpLt:                     {"Lt", "RRR"},
	OpLe:                     {"Le", "RRR"},
	OpGt:                     {"Gt", "RRR"},
	OpGe:                     {"Ge", "RRR"},
	OpIn:                     {"In", "RRR"},
	OpInstanceOf:             {"InstanceOf", "RRR"},
	OpNeg:                    {"Neg", "RR"},
	OpPlus:                   {"Plus", "RR"},
	OpBitNot:                 {"BitNot", "RR"},
	OpNot:                    {"Not", "RR"},
	OpTypeOf:                 {"TypeOf", "RR"},
	OpToNumeric:              {"ToNumeric", "RR"},
	OpInc:                    {"Inc", "RR"},
	OpDec:                    {"Dec", "RR"},
	OpToPropertyKey:          {"ToPropertyKey", "RR"},
	OpToString:               {"ToString", "RR"},
	OpRequireObjectCoercible: {"RequireObjectCoercible", "R"},
	OpJump:                   {"Jump", "J"},
	OpJumpIfTrue:             {"JumpIfTrue", "RJ"},
	OpJumpIfFalse:            {"JumpIfFalse", "RJ"},
	OpJumpIfNullish:          {"JumpIfNullish", "RJ"},
	OpJumpIfNotNullish:       {"JumpIfNotNullish", "RJ"},
	OpJumpIfUndefined:        {"JumpIfUndefined", "RJ"},
	OpJumpIfNotUndef:         {"JumpIfNotUndefined", "RJ"},
	OpJumpIfInt:              {"JumpIfInt", "RNJ"},
	OpPushEnv:                {"PushEnv", "N"},
	OpPopEnv:                 {"PopEnv", ""},
	OpCopyEnv:                {"CopyEnv", ""},
	OpPushWith:               {"PushWith", "R"},
	OpGetEnv:                 {"GetEnv", "RNN"},
	OpGetEnvCheck:            {"GetEnvCheck", "RNNK"},
	OpSetEnv:                 {"SetEnv", "NNR"},
	OpSetEnvCheck:            {"SetEnvCheck", "NNRK"},
	OpGetImport:              {"GetImport", "RNNK"},
	OpCheckTDZ:               {"CheckTDZ", "RK"},
	OpThrowConstAs:           {"ThrowConstAssign", "K"},
	OpGetGlobal:              {"GetGlobal", "RK"},
	OpTypeofGlobal:           {"TypeofGlobal", "RK"},
	OpSetGlobal:              {"SetGlobal", "KR"},
	OpDeclareGlobals:         {"DeclareGlobals", "N"},
	OpDeclareGlobalFn:        {"DeclareGlobalFunction", "KR"},
	OpInitGlobalLex:          {"InitGlobalLex", "KR"},
	OpGetName:                {"GetName", "RK"},
	OpTypeofName:             {"TypeofName", "RK"},
	OpSetName:                {"SetName", "KR"},
	OpDeleteName:             {"DeleteName", "RK"},
	OpGetNameThis:            {"GetNameThis", "RRK"},
	OpDeclareEvalVars:        {"DeclareEvalVars", ""},
	OpGetProp:                {"GetProp", "RRK"},
	OpSetProp:                {"SetProp", "RKR"},
	OpGetElem:                {"GetElem", "RRR"},
	OpSetElem:                {"SetElem", "RRR"},
	OpDeleteProp:             {"DeleteProp", "RRK"},
	OpDeleteElem:             {"DeleteElem", "RRR"},
	OpGetMethod:              {"GetMethod", "RRK"},
	OpLoadHomeProto:          {"LoadHomeProto", "RR"},
	OpGetSuper:               {"GetSuper", "RRRR"},
	OpSetSuper:               {"SetSuper", "RRRR"},
	OpNewPrivate:             {"NewPrivateName", "RK"},
	OpGetPrivate:             {"GetPrivate", "RRR"},
	OpSetPrivate:             {"SetPrivate", "RRR"},
	OpDefinePrivate:          {"DefinePrivate", "RRRN"},
	OpHasPrivate:             {"HasPrivate", "RRR"},
	OpNewObject:              {"NewObject", "R"},
	OpNewArray:               {"NewArray", "RN"},
	OpArrayPush:              {"ArrayPush", "RR"},
	OpArrayHole:              {"ArrayHole", "R"},
	OpArraySpread:            {"ArraySpread", "RR"},
	OpDefineField:            {"DefineField", "RRR"},
	OpDefineFieldK:           {"DefineFieldK", "RKR"},
	OpDefineMethod:           {"DefineMethod", "RRRN"},
	OpSetHome:                {"SetHome", "RR"},
	OpSetFuncName:            {"SetFunctionName", "RRN"},
	OpSetProtoLiteral:        {"SetProtoLiteral", "RR"},
	OpCopyDataProps:          {"CopyDataProperties", "RR"},
	OpCopyDataPropsEx:        {"CopyDataPropertiesExcluding", "RRRN"},
	OpClosure:                {"Closure", "RN"},
	OpCall:                   {"Call", "RRRRN"},
	OpCallSpread:             {"CallSpread", "RRRR"},
	OpNew:                    {"New", "RRRN"},
	OpNewSpread:              {"NewSpread", "RRR"},
	OpSuperCall:              {"SuperCall", "RRRRN"},
	OpSuperCallSpread:        {"SuperCallSpread", "RRRR"},
	OpCallEval:               {"CallEval", "RRRRN"},
	OpReturn:                 {"Return", "R"},
	OpReturnDerived:          {"ReturnDerived", "RR"},
	OpLoadThis:               {"LoadThis", "R"},
	OpLoadNewTarget:          {"LoadNewTarget", "R"},
	OpLoadCallee:             {"LoadCallee", "R"},
	OpLoadHome:               {"LoadHome", "R"},
	OpCheckThis:              {"CheckThis", "R"},
	OpCheckSuperNot:          {"CheckSuperNotCalled", "R"},
	OpInitFields:             {"InitFields", "RR"},
	OpCreateArguments:        {"CreateArguments", "RN"},
	OpCreateRest:             {"CreateRest", "RN"},
	OpClass:                  {"Class", "RRRNN"},
	OpSetFields:              {"SetFields", "RR"},
	OpGetIterator:            {"GetIterator", "RRN"},
	OpIterStep:               {"IterStep", "RRJ"},
	OpIterClose:              {"IterClose", "RN"},
	OpCheckIterResult:        {"CheckIterResult", "R"},
	OpForInPrepare:           {"ForInPrepare", "RR"},
	OpForInNext:              {"ForInNext", "RRJ"},
	OpGenInit:                {"GenInit", ""},
	OpYield:                  {"Yield", "RRRN"},
	OpAwait:                  {"Await", "RR"},
	OpThrow:                  {"Throw", "R"},
	OpThrowError:             {"ThrowError", "NK"},
	OpGetTemplateObject:      {"GetTemplateObject", "RN"},
	OpDebugger:               {"Debugger", ""},
	OpNewRegExp:              {"NewRegExp", "RKK"},
	OpImportMeta:             {"ImportMeta", "R"},
	OpDynamicImport:          {"DynamicImport", "RRR"},
	OpNewDisposeScope:        {"NewDisposeScope", "R"},
	OpAddDisposable:          {"AddDisposable", "RRN"},
	OpDisposeStep:            {"DisposeStep", "RRJ"},
	OpDisposeError:           {"DisposeError", "RR"},
	OpDisposeFinish:          {"DisposeFinish", "RRR"},
}

func (op OpCode) String() string {
	if op < numOpCodes && opTable[op].name != "" {
		return "Op" + opTable[op].name
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Format returns the operand letters of op.
func (op OpCode) Format() string { return opTable[op].format }

// Size returns the encoded length of an instruction, opcode included.
func (op OpCode) Size() int {
	n := 1
	for _, c := range opTable[op].format {
		if c == 'J' {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}

// Chunk is a sequence of bytecode instructions with its constant pool,
// source positions and exception table.
type Chunk struct {
	Code      []byte
	Constants []Value
	Positions []PosEntry
	Handlers  []ExceptionHandler
}

// Emit appends an instruction and returns its offset. Operands are given
// in the order of the op's format; jump operands are patched later with
// PatchJump unless already known.
func (c *Chunk) Emit(op OpCode, operands ...int) int {
	at := len(c.Code)
	format := opTable[op].format
	if len(operands) != len(format) {
		panic(fmt.Sprintf("%s: want %d operands, got %d", op, len(format), len(operands)))
	}
	c.Code = append(c.Code, byte(op))
	for i, kind := range format {
		v := operands[i]
		if kind == 'J' {
			c.Code = append(c.Code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			continue
		}
		if v < 0 || v > math.MaxUint16 {
			panic(fmt.Sprintf("%s: operand %d out of range: %d", op, i, v))
		}
		c.Code = append(c.Code, byte(v), byte(v>>8))
	}
	return at
}

// MarkPosition records that the next emitted instruction starts at the
// given source position.
func (c *Chunk) MarkPosition(line, col int) {
	pc := len(c.Code)
	if n := len(c.Positions); n > 0 {
		last := &c.Positions[n-1]
		if last.PC == pc {
			last.Line, last.Col = line, col
			return
		}
		if last.Line == line && last.Col == col {
			return
		}
	}
	c.Positions = append(c.Positions, PosEntry{PC: pc, Line: line, Col: col})
}

// PatchJump points the jump operand of the instruction at `at` to target.
func (c *Chunk) PatchJump(at, target int) {
	op := OpCode(c.Code[at])
	off := 1
	for _, kind := range opTable[op].format {
		if kind == 'J' {
			rel := target - (at + op.Size())
			c.Code[at+off] = byte(rel)
			c.Code[at+off+1] = byte(rel >> 8)
			c.Code[at+off+2] = byte(rel >> 16)
			c.Code[at+off+3] = byte(rel >> 24)
			return
		}
		off += 2
	}
	panic(fmt.Sprintf("%s at %d has no jump operand", op, at))
}

// AddConstant adds a value to the constant pool and returns its index.
// Primitive constants are deduplicated by SameValue.
func (c *Chunk) AddConstant(v Value) int {
	if !v.IsObject() {
		for i, existing := range c.Constants {
			if existing.typ == v.typ && SameValue(existing, v) {
				return i
			}
		}
	}
	c.Constants = append(c.Constants, v)
	idx := len(c.Constants) - 1
	if idx > math.MaxUint16 {
		panic("too many constants in one function")
	}
	return idx
}

// Instruction is a decoded instruction, used by the disassembler and
// tests.
type Instruction struct {
	Offset   int
	Op       OpCode
	Operands []int
}

// Target returns the absolute jump target of a jump instruction.
func (in Instruction) Target() (int, bool) {
	for i, kind := range in.Op.Format() {
		if kind == 'J' {
			return in.Offset + in.Op.Size() + in.Operands[i], true
		}
	}
	return 0, false
}

// Decode returns the instruction at offset.
func (c *Chunk) Decode(offset int) Instruction {
	op := OpCode(c.Code[offset])
	in := Instruction{Offset: offset, Op: op}
	p := offset + 1
	for _, kind := range opTable[op].format {
		if kind == 'J' {
			v := int32(uint32(c.Code[p]) | uint32(c.Code[p+1])<<8 | uint32(c.Code[p+2])<<16 | uint32(c.Code[p+3])<<24)
			in.Operands = append(in.Operands, int(v))
			p += 4
			continue
		}
		in.Operands = append(in.Operands, int(c.Code[p])|int(c.Code[p+1])<<8)
		p += 2
	}
	return in
}

// Instructions decodes the whole chunk.
func (c *Chunk) Instructions() []Instruction {
	var out []Instruction
	for off := 0; off < len(c.Code); {
		in := c.Decode(off)
		out = append(out, in)
		off += in.Op.Size()
	}
	return out
}

// --- Disassembly ---

// DisassembleChunk returns a human-readable listing of the chunk.
func (c *Chunk) DisassembleChunk(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for _, in := range c.Instructions() {
		c.disassembleInstruction(&b, in)
	}
	if len(c.Handlers) > 0 {
		b.WriteString("-- handlers --\n")
		for _, h := range c.Handlers {
			fmt.Fprintf(&b, "[%04d, %04d) -> %04d R%d envs=%d\n", h.Start, h.End, h.Handler, h.Reg, h.EnvDepth)
		}
	}
	return b.String()
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, in Instruction) {
	fmt.Fprintf(b, "%04d %-22s", in.Offset, opTable[in.Op].name)
	for i, kind := range in.Op.Format() {
		if i > 0 {
			b.WriteString(",")
		}
		v := in.Operands[i]
		switch kind {
		case 'R':
			fmt.Fprintf(b, " R%d", v)
		case 'K':
			fmt.Fprintf(b, " K%d", v)
			if v < len(c.Constants) {
				fmt.Fprintf(b, "(%s)", Inspect(c.Constants[v]))
			}
		case 'N':
			fmt.Fprintf(b, " %d", v)
		case 'J':
			target, _ := in.Target()
			fmt.Fprintf(b, " -> %04d", target)
		}
	}
	b.WriteByte('\n')
}

// Disassemble lists tmpl and, recursively, its nested functions.
func Disassemble(tmpl *FunctionTemplate) string {
	var b strings.Builder
	var walk func(t *FunctionTemplate)
	walk = func(t *FunctionTemplate) {
		name := t.Name
		if name == "" {
			name = "<anonymous>"
		}
		b.WriteString(t.DisassembleChunk(fmt.Sprintf("%s (regs=%d params=%d)", name, t.NumRegs, t.NumParams)))
		for _, f := range t.Functions {
			walk(f)
		}
	}
	walk(tmpl)
	return b.String()
}
