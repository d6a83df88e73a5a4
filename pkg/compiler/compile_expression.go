package compiler

import (
	"fmt"

	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

var binaryOps = map[string]vm.OpCode{
	"+": vm.OpAdd, "-": vm.OpSub, "*": vm.OpMul, "/": vm.OpDiv, "%": vm.OpMod, "**": vm.OpExp,
	"<<": vm.OpShl, ">>": vm.OpShr, ">>>": vm.OpUShr,
	"&": vm.OpBitAnd, "|": vm.OpBitOr, "^": vm.OpBitXor,
	"==": vm.OpEq, "!=": vm.OpNotEq, "===": vm.OpStrictEq, "!==": vm.OpStrictNotEq,
	"<": vm.OpLt, "<=": vm.OpLe, ">": vm.OpGt, ">=": vm.OpGe,
	"instanceof": vm.OpInstanceOf,
}

var unaryOps = map[string]vm.OpCode{
	"-": vm.OpNeg, "+": vm.OpPlus, "~": vm.OpBitNot, "!": vm.OpNot, "typeof": vm.OpTypeOf,
}

// exprNamed compiles e into dst, naming an anonymous function or class
// after the binding it is assigned to.
func (c *Compiler) exprNamed(e parser.Expression, dst Register, name string) {
	if name != "" {
		switch x := unparen(e).(type) {
		case *parser.FunctionLiteral:
			if x.Name == nil {
				c.closure(x, dst, name)
				return
			}
		case *parser.ClassLiteral:
			if x.Name == nil {
				c.class(x, dst, name)
				return
			}
		}
	}
	c.expr(e, dst)
}

// isAnonymousFunction reports whether e is a function or class definition
// without a name of its own.
func isAnonymousFunction(e parser.Expression) bool {
	switch x := unparen(e).(type) {
	case *parser.FunctionLiteral:
		return x.Name == nil
	case *parser.ClassLiteral:
		return x.Name == nil
	}
	return false
}

// expr compiles e, leaving its value in dst. Temporaries allocated on the
// way are released before returning.
func (c *Compiler) expr(e parser.Expression, dst Register) {
	mark := c.regs.Mark()
	defer c.regs.Release(mark)

	switch x := e.(type) {
	case *parser.Identifier:
		c.loadName(x.Value, dst)
	case *parser.NumberLiteral:
		c.loadNumber(dst, x.Value)
	case *parser.StringLiteral:
		c.loadString(dst, x.Value)
	case *parser.BooleanLiteral:
		if x.Value {
			c.emit(vm.OpLoadTrue, int(dst))
		} else {
			c.emit(vm.OpLoadFalse, int(dst))
		}
	case *parser.NullLiteral:
		c.emit(vm.OpLoadNull, int(dst))
	case *parser.BigIntLiteral:
		c.bigInt(x, dst)
	case *parser.RegExpLiteral:
		c.regExp(x, dst)
	case *parser.TemplateLiteral:
		c.template(x, dst)
	case *parser.TaggedTemplate:
		c.taggedTemplate(x, dst)
	case *parser.ThisExpression:
		c.loadThis(dst)
	case *parser.ArrayLiteral:
		c.arrayLiteral(x, dst)
	case *parser.ObjectLiteral:
		c.objectLiteral(x, dst)
	case *parser.FunctionLiteral:
		c.closure(x, dst, "")
	case *parser.ClassLiteral:
		c.class(x, dst, "")
	case *parser.UnaryExpression:
		c.unary(x, dst)
	case *parser.UpdateExpression:
		c.update(x, dst)
	case *parser.BinaryExpression:
		c.binary(x, dst)
	case *parser.LogicalExpression:
		c.logical(x, dst)
	case *parser.AssignmentExpression:
		c.assignment(x, dst)
	case *parser.ConditionalExpression:
		t := c.regs.Alloc()
		c.expr(x.Test, t)
		els := c.emitJump(vm.OpJumpIfFalse, t)
		c.expr(x.Consequent, dst)
		end := c.emit(vm.OpJump, 0)
		c.patchJump(els)
		c.expr(x.Alternate, dst)
		c.patchJump(end)
	case *parser.CallExpression:
		c.call(x, dst)
	case *parser.NewExpression:
		c.newExpr(x, dst)
	case *parser.MemberExpression:
		c.markPos(x.Token)
		ref := c.memberRef(x)
		c.loadMember(ref, dst)
	case *parser.OptionalChain:
		c.optionalChain(func() {
			c.expr(x.Expression, dst)
		}, func() { c.emit(vm.OpLoadUndefined, int(dst)) })
	case *parser.ParenthesizedExpression:
		saved := c.optional
		c.optional = nil
		c.expr(x.Expression, dst)
		c.optional = saved
	case *parser.SequenceExpression:
		for _, sub := range x.Expressions {
			c.expr(sub, dst)
		}
	case *parser.YieldExpression:
		c.markPos(x.Token)
		if x.Delegate {
			c.yieldStar(x, dst)
		} else {
			c.yield(x, dst)
		}
	case *parser.AwaitExpression:
		c.markPos(x.Token)
		c.expr(x.Argument, dst)
		c.emit(vm.OpAwait, int(dst), int(dst))
	case *parser.MetaProperty:
		if x.Meta == "new" {
			c.loadPseudo(pseudoNewTarget, dst)
		} else {
			c.emit(vm.OpImportMeta, int(dst))
		}
	case *parser.ImportCall:
		c.markPos(x.Token)
		spec := c.regs.Alloc()
		opts := c.regs.Alloc()
		c.expr(x.Source, spec)
		if x.Options != nil {
			c.expr(x.Options, opts)
		} else {
			c.emit(vm.OpLoadUndefined, int(opts))
		}
		c.emit(vm.OpDynamicImport, int(dst), int(spec), int(opts))
	case *parser.SuperExpression:
		c.fail(x.Token, "'super' keyword unexpected here")
	case *parser.SpreadElement:
		c.fail(x.Token, "Unexpected token '...'")
	default:
		panic(fmt.Sprintf("compiler: unexpected expression %T", e))
	}
}

// optionalChain compiles an optional chain: body runs with short-circuit
// jumps collected, and nullish runs when one of them is taken.
func (c *Compiler) optionalChain(body, nullish func()) {
	saved := c.optional
	var jumps []int
	c.optional = &jumps
	body()
	c.optional = saved
	if len(jumps) == 0 {
		return
	}
	end := c.emit(vm.OpJump, 0)
	c.patchJumps(jumps)
	nullish()
	c.patchJump(end)
}

func (c *Compiler) unary(x *parser.UnaryExpression, dst Register) {
	c.markPos(x.Token)
	switch x.Operator {
	case "typeof":
		if id, ok := unparen(x.Operand).(*parser.Identifier); ok {
			c.loadRef(c.resolve(id.Value), dst, true)
			c.emit(vm.OpTypeOf, int(dst), int(dst))
			return
		}
	case "void":
		c.expr(x.Operand, dst)
		c.emit(vm.OpLoadUndefined, int(dst))
		return
	case "delete":
		c.deleteExpr(x.Operand, dst)
		return
	}
	op, ok := unaryOps[x.Operator]
	if !ok {
		c.fail(x.Token, "Unknown unary operator %s", x.Operator)
	}
	c.expr(x.Operand, dst)
	c.emit(op, int(dst), int(dst))
}

func (c *Compiler) deleteExpr(operand parser.Expression, dst Register) {
	switch t := unparen(operand).(type) {
	case *parser.Identifier:
		ref := c.resolve(t.Value)
		if ref.kind == refGlobal || ref.kind == refDynamic {
			c.emit(vm.OpDeleteName, int(dst), c.constString(t.Value))
		} else {
			c.emit(vm.OpLoadFalse, int(dst))
		}
	case *parser.OptionalChain:
		c.optionalChain(func() {
			c.deleteExpr(t.Expression, dst)
		}, func() { c.emit(vm.OpLoadTrue, int(dst)) })
	case *parser.MemberExpression:
		if _, ok := t.Object.(*parser.SuperExpression); ok {
			r := c.regs.Alloc()
			c.loadThis(r)
			if t.Computed {
				c.expr(t.Property, r)
			}
			c.throwError(vm.ErrReferenceError, "Unsupported reference to 'super'")
			return
		}
		obj := c.regs.Alloc()
		c.expr(t.Object, obj)
		if c.optional != nil && t.Optional {
			*c.optional = append(*c.optional, c.emitJump(vm.OpJumpIfNullish, obj))
		}
		if !t.Computed {
			name, _ := propertyKeyName(t.Property)
			c.emit(vm.OpDeleteProp, int(dst), int(obj), c.constString(name))
			return
		}
		key := c.regs.Alloc()
		c.expr(t.Property, key)
		c.emit(vm.OpDeleteElem, int(dst), int(obj), int(key))
	default:
		c.expr(operand, dst)
		c.emit(vm.OpLoadTrue, int(dst))
	}
}

func (c *Compiler) binary(x *parser.BinaryExpression, dst Register) {
	if pid, ok := x.Left.(*parser.PrivateIdentifier); ok && x.Operator == "in" {
		obj := c.regs.Alloc()
		c.expr(x.Right, obj)
		name := c.regs.Alloc()
		c.loadName("#"+pid.Name, name)
		c.markPos(x.Token)
		c.emit(vm.OpHasPrivate, int(dst), int(obj), int(name))
		return
	}
	left := c.regs.Alloc()
	c.expr(x.Left, left)
	right := c.regs.Alloc()
	c.expr(x.Right, right)
	c.markPos(x.Token)
	if x.Operator == "in" {
		c.emit(vm.OpIn, int(dst), int(left), int(right))
		return
	}
	op, ok := binaryOps[x.Operator]
	if !ok {
		c.fail(x.Token, "Unknown binary operator %s", x.Operator)
	}
	c.emit(op, int(dst), int(left), int(right))
}

func (c *Compiler) logical(x *parser.LogicalExpression, dst Register) {
	c.expr(x.Left, dst)
	var end int
	switch x.Operator {
	case "&&":
		end = c.emitJump(vm.OpJumpIfFalse, dst)
	case "||":
		end = c.emitJump(vm.OpJumpIfTrue, dst)
	case "??":
		end = c.emitJump(vm.OpJumpIfNotNullish, dst)
	default:
		c.fail(x.Token, "Unknown logical operator %s", x.Operator)
	}
	c.expr(x.Right, dst)
	c.patchJump(end)
}

// --- Calls ---

func hasSpread(args []parser.Expression) bool {
	for _, a := range args {
		if _, ok := a.(*parser.SpreadElement); ok {
			return true
		}
	}
	return false
}

// spreadArray collects arguments with spread elements into a new array.
func (c *Compiler) spreadArray(args []parser.Expression, arr Register) {
	c.emit(vm.OpNewArray, int(arr), 0)
	mark := c.regs.Mark()
	t := c.regs.Alloc()
	for _, a := range args {
		if s, ok := a.(*parser.SpreadElement); ok {
			c.expr(s.Argument, t)
			c.emit(vm.OpArraySpread, int(arr), int(t))
			continue
		}
		c.expr(a, t)
		c.emit(vm.OpArrayPush, int(arr), int(t))
	}
	c.regs.Release(mark)
}

// args evaluates arguments into consecutive registers and returns the
// first one.
func (c *Compiler) args(args []parser.Expression) Register {
	first := c.regs.Mark()
	for _, a := range args {
		r := c.regs.Alloc()
		c.expr(a, r)
	}
	return first
}

// callee evaluates the function and this value of a call into fn and
// fn+1.
func (c *Compiler) callee(e parser.Expression, fn Register) {
	this := fn + 1
	switch x := e.(type) {
	case *parser.MemberExpression:
		if _, ok := x.Object.(*parser.SuperExpression); ok {
			ref := c.memberRef(x)
			c.loadMember(ref, fn)
			c.emit(vm.OpMove, int(this), int(ref.this))
			return
		}
		c.expr(x.Object, this)
		if c.optional != nil && x.Optional {
			*c.optional = append(*c.optional, c.emitJump(vm.OpJumpIfNullish, this))
		}
		c.markPos(x.Token)
		switch p := x.Property.(type) {
		case *parser.PrivateIdentifier:
			name := c.regs.Alloc()
			c.loadName("#"+p.Name, name)
			c.emit(vm.OpGetPrivate, int(fn), int(this), int(name))
			return
		}
		if !x.Computed {
			name, _ := propertyKeyName(x.Property)
			c.emit(vm.OpGetProp, int(fn), int(this), c.constString(name))
			return
		}
		key := c.regs.Alloc()
		c.expr(x.Property, key)
		c.emit(vm.OpGetElem, int(fn), int(this), int(key))
	case *parser.Identifier:
		ref := c.resolve(x.Value)
		if ref.kind == refDynamic {
			c.emit(vm.OpGetNameThis, int(fn), int(this), c.constString(x.Value))
			return
		}
		c.loadRef(ref, fn, false)
		c.emit(vm.OpLoadUndefined, int(this))
	case *parser.ParenthesizedExpression:
		if m, ok := unparen(x).(*parser.MemberExpression); ok {
			saved := c.optional
			c.optional = nil
			c.callee(m, fn)
			c.optional = saved
			return
		}
		c.expr(x, fn)
		c.emit(vm.OpLoadUndefined, int(this))
	default:
		c.expr(e, fn)
		c.emit(vm.OpLoadUndefined, int(this))
	}
}

func (c *Compiler) call(e *parser.CallExpression, dst Register) {
	if _, ok := e.Callee.(*parser.SuperExpression); ok {
		c.superCall(e, dst)
		return
	}
	fn := c.regs.AllocN(2)
	mark := c.regs.Mark()
	c.callee(e.Callee, fn)
	c.regs.Release(mark)
	if e.Optional && c.optional != nil {
		*c.optional = append(*c.optional, c.emitJump(vm.OpJumpIfNullish, fn))
	}
	op := vm.OpCall
	if isDirectEval(e) {
		op = vm.OpCallEval
	}
	if hasSpread(e.Arguments) {
		arr := c.regs.Alloc()
		c.spreadArray(e.Arguments, arr)
		c.markPos(e.Token)
		c.emit(vm.OpCallSpread, int(dst), int(fn), int(fn+1), int(arr))
		return
	}
	args := c.args(e.Arguments)
	c.markPos(e.Token)
	c.emit(op, int(dst), int(fn), int(fn+1), int(args), len(e.Arguments))
}

// superCall constructs the parent class and binds this.
func (c *Compiler) superCall(e *parser.CallExpression, dst Register) {
	callee := c.regs.AllocN(2)
	newTarget := callee + 1
	c.loadPseudo(pseudoCallee, callee)
	c.loadPseudo(pseudoNewTarget, newTarget)
	if hasSpread(e.Arguments) {
		arr := c.regs.Alloc()
		c.spreadArray(e.Arguments, arr)
		c.markPos(e.Token)
		c.emit(vm.OpSuperCallSpread, int(dst), int(callee), int(newTarget), int(arr))
	} else {
		args := c.args(e.Arguments)
		c.markPos(e.Token)
		c.emit(vm.OpSuperCall, int(dst), int(callee), int(newTarget), int(args), len(e.Arguments))
	}
	this := c.regs.Alloc()
	c.loadPseudo(pseudoThis, this)
	c.emit(vm.OpCheckSuperNot, int(this))
	if ref, ok := c.pseudoRef(pseudoThis); ok {
		c.storeRef(ref, dst, true)
	}
	c.emit(vm.OpInitFields, int(dst), int(callee))
}

func (c *Compiler) newExpr(e *parser.NewExpression, dst Register) {
	ctor := c.regs.Alloc()
	c.expr(e.Callee, ctor)
	if hasSpread(e.Arguments) {
		arr := c.regs.Alloc()
		c.spreadArray(e.Arguments, arr)
		c.markPos(e.Token)
		c.emit(vm.OpNewSpread, int(dst), int(ctor), int(arr))
		return
	}
	args := c.args(e.Arguments)
	c.markPos(e.Token)
	c.emit(vm.OpNew, int(dst), int(ctor), int(args), len(e.Arguments))
}

// --- Literals ---

func (c *Compiler) arrayLiteral(x *parser.ArrayLiteral, dst Register) {
	arr := c.regs.Alloc()
	c.emit(vm.OpNewArray, int(arr), min(len(x.Elements), 0xffff))
	t := c.regs.Alloc()
	for _, el := range x.Elements {
		switch v := el.(type) {
		case nil:
			c.emit(vm.OpArrayHole, int(arr))
		case *parser.SpreadElement:
			c.expr(v.Argument, t)
			c.emit(vm.OpArraySpread, int(arr), int(t))
		default:
			c.expr(v, t)
			c.emit(vm.OpArrayPush, int(arr), int(t))
		}
	}
	c.emit(vm.OpMove, int(dst), int(arr))
}

func (c *Compiler) objectLiteral(x *parser.ObjectLiteral, dst Register) {
	obj := c.regs.Alloc()
	c.emit(vm.OpNewObject, int(obj))
	for _, p := range x.Properties {
		mark := c.regs.Mark()
		switch p.Kind {
		case parser.PropertySpread:
			v := c.regs.Alloc()
			c.expr(p.Value, v)
			c.emit(vm.OpCopyDataProps, int(obj), int(v))
		case parser.PropertyProto:
			v := c.regs.Alloc()
			c.expr(p.Value, v)
			c.emit(vm.OpSetProtoLiteral, int(obj), int(v))
		case parser.PropertyMethod, parser.PropertyGet, parser.PropertySet:
			key := c.regs.Alloc()
			c.propertyKey(p.Key, p.Computed, key)
			fn := c.regs.Alloc()
			c.closure(p.Value.(*parser.FunctionLiteral), fn, "")
			flags := vm.MethodEnumerable
			switch p.Kind {
			case parser.PropertyGet:
				flags |= 1
			case parser.PropertySet:
				flags |= 2
			}
			c.emit(vm.OpDefineMethod, int(obj), int(key), int(fn), flags)
		default:
			if !p.Computed {
				name, _ := propertyKeyName(p.Key)
				v := c.regs.Alloc()
				c.exprNamed(p.Value, v, name)
				c.emit(vm.OpDefineFieldK, int(obj), c.constString(name), int(v))
				break
			}
			key := c.regs.Alloc()
			c.propertyKey(p.Key, true, key)
			v := c.regs.Alloc()
			c.expr(p.Value, v)
			if isAnonymousFunction(p.Value) {
				c.emit(vm.OpSetFuncName, int(v), int(key), 0)
			}
			c.emit(vm.OpDefineField, int(obj), int(key), int(v))
		}
		c.regs.Release(mark)
	}
	c.emit(vm.OpMove, int(dst), int(obj))
}

// propertyKey loads a property name, converting computed keys.
func (c *Compiler) propertyKey(key parser.Expression, computed bool, dst Register) {
	if !computed {
		name, _ := propertyKeyName(key)
		c.loadString(dst, name)
		return
	}
	c.expr(key, dst)
	c.emit(vm.OpToPropertyKey, int(dst), int(dst))
}
