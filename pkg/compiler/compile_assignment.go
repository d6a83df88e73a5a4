package compiler

import (
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

// bindPattern assigns src to a binding or assignment target.
func (c *Compiler) bindPattern(target parser.Expression, src Register, mode bindMode) {
	switch t := target.(type) {
	case *parser.Identifier:
		c.storeRef(c.resolve(t.Value), src, mode == bindInit)
	case *parser.ParenthesizedExpression:
		c.bindPattern(t.Expression, src, mode)
	case *parser.AssignmentPattern:
		mark := c.regs.Mark()
		v := c.regs.Alloc()
		c.emit(vm.OpMove, int(v), int(src))
		skip := c.emitJump(vm.OpJumpIfNotUndef, v)
		c.exprNamed(t.Default, v, targetName(t.Target))
		c.patchJump(skip)
		c.bindPattern(t.Target, v, mode)
		c.regs.Release(mark)
	case *parser.ArrayPattern:
		c.arrayPattern(t, src, mode)
	case *parser.ObjectPattern:
		c.objectPattern(t, src, mode)
	case *parser.MemberExpression:
		mark := c.regs.Mark()
		ref := c.memberRef(t)
		c.storeMember(ref, src)
		c.regs.Release(mark)
	default:
		c.fail(target.Pos(), "Invalid destructuring assignment target")
	}
}

// arrayPattern destructures an iterable. The done register tracks whether
// the iterator finished or failed, in which case it must not be closed.
func (c *Compiler) arrayPattern(p *parser.ArrayPattern, src Register, mode bindMode) {
	mark := c.regs.Mark()
	iter := c.regs.AllocN(2)
	c.markPos(p.Token)
	c.emit(vm.OpGetIterator, int(iter), int(src), 0)
	done := c.regs.Alloc()
	exc := c.regs.Alloc()
	v := c.regs.Alloc()
	c.emit(vm.OpLoadFalse, int(done))
	start := c.here()
	depth := c.envDepth()

	for _, el := range p.Elements {
		if rest, ok := el.(*parser.RestElement); ok {
			arr := c.regs.Alloc()
			c.emit(vm.OpNewArray, int(arr), 0)
			loop := c.here()
			end := c.emitJump(vm.OpJumpIfTrue, done)
			c.emit(vm.OpLoadTrue, int(done))
			exhausted := c.emitJump(vm.OpIterStep, v, iter)
			c.emit(vm.OpLoadFalse, int(done))
			c.emit(vm.OpArrayPush, int(arr), int(v))
			c.jumpBack(loop)
			c.patchJump(end)
			c.patchJump(exhausted)
			c.bindPattern(rest.Target, arr, mode)
			c.regs.Release(arr)
			continue
		}
		c.emit(vm.OpLoadUndefined, int(v))
		skip := c.emitJump(vm.OpJumpIfTrue, done)
		c.emit(vm.OpLoadTrue, int(done))
		exhausted := c.emitJump(vm.OpIterStep, v, iter)
		c.emit(vm.OpLoadFalse, int(done))
		c.patchJump(skip)
		c.patchJump(exhausted)
		if el != nil {
			c.bindPattern(el, v, mode)
		}
	}
	end := c.here()
	closed := c.emitJump(vm.OpJumpIfTrue, done)
	c.emit(vm.OpIterClose, int(iter), 0)
	over := c.emit(vm.OpJump, 0)

	handler := c.here()
	rethrow := c.emitJump(vm.OpJumpIfTrue, done)
	c.emit(vm.OpIterClose, int(iter), 1)
	c.patchJump(rethrow)
	c.emit(vm.OpThrow, int(exc))
	c.addHandler(start, end, handler, exc, depth)

	c.patchJump(closed)
	c.patchJump(over)
	c.regs.Release(mark)
}

// propertyKeyName returns the key of a non-computed property name.
func propertyKeyName(key parser.Expression) (string, bool) {
	switch k := key.(type) {
	case *parser.Identifier:
		return k.Value, true
	case *parser.StringLiteral:
		return k.Value, true
	case *parser.NumberLiteral:
		return vm.NumberToString(k.Value), true
	case *parser.BigIntLiteral:
		return bigIntKey(k.Digits), true
	case *parser.PrivateIdentifier:
		return "#" + k.Name, true
	}
	return "", false
}

func (c *Compiler) objectPattern(p *parser.ObjectPattern, src Register, mode bindMode) {
	mark := c.regs.Mark()
	c.markPos(p.Token)
	c.emit(vm.OpRequireObjectCoercible, int(src))
	var keys Register
	if p.Rest != nil && len(p.Properties) > 0 {
		keys = c.regs.AllocN(len(p.Properties))
	}
	v := c.regs.Alloc()
	for i, prop := range p.Properties {
		name, static := "", false
		if !prop.Computed {
			name, static = propertyKeyName(prop.Key)
		}
		var key Register
		if p.Rest != nil {
			key = keys + Register(i)
		} else if !static {
			key = c.regs.Alloc()
		}
		switch {
		case static && p.Rest != nil:
			c.loadString(key, name)
			c.emit(vm.OpGetProp, int(v), int(src), c.constString(name))
		case static:
			c.emit(vm.OpGetProp, int(v), int(src), c.constString(name))
		default:
			c.expr(prop.Key, key)
			c.emit(vm.OpToPropertyKey, int(key), int(key))
			c.emit(vm.OpGetElem, int(v), int(src), int(key))
		}
		c.bindPattern(prop.Value, v, mode)
		if p.Rest == nil && !static {
			c.regs.Release(key)
		}
	}
	if p.Rest != nil {
		rest := c.regs.Alloc()
		c.emit(vm.OpNewObject, int(rest))
		if len(p.Properties) > 0 {
			c.emit(vm.OpCopyDataPropsEx, int(rest), int(src), int(keys), len(p.Properties))
		} else {
			c.emit(vm.OpCopyDataProps, int(rest), int(src))
		}
		c.bindPattern(p.Rest, rest, mode)
	}
	c.regs.Release(mark)
}

// --- Member references ---

type memberKind uint8

const (
	memberProp memberKind = iota
	memberElem
	memberSuper
	memberPrivate
)

// member is an evaluated property reference: the object and key are in
// registers so the reference can be read and written.
type member struct {
	kind memberKind
	obj  Register
	key  Register
	name string
	// this is the receiver of super references.
	this Register
}

// memberRef evaluates the object and key of a member expression.
func (c *Compiler) memberRef(m *parser.MemberExpression) member {
	if _, ok := m.Object.(*parser.SuperExpression); ok {
		ref := member{kind: memberSuper}
		ref.this = c.regs.Alloc()
		c.loadThis(ref.this)
		ref.obj = c.regs.Alloc()
		c.loadHomeProto(ref.obj)
		ref.key = c.regs.Alloc()
		if m.Computed {
			c.expr(m.Property, ref.key)
			c.emit(vm.OpToPropertyKey, int(ref.key), int(ref.key))
		} else {
			name, _ := propertyKeyName(m.Property)
			c.loadString(ref.key, name)
		}
		return ref
	}
	ref := member{obj: c.regs.Alloc()}
	c.expr(m.Object, ref.obj)
	if c.optional != nil && m.Optional {
		*c.optional = append(*c.optional, c.emitJump(vm.OpJumpIfNullish, ref.obj))
	}
	switch p := m.Property.(type) {
	case *parser.PrivateIdentifier:
		ref.kind = memberPrivate
		ref.key = c.regs.Alloc()
		c.loadName("#"+p.Name, ref.key)
		return ref
	}
	if !m.Computed {
		ref.kind = memberProp
		ref.name, _ = propertyKeyName(m.Property)
		return ref
	}
	ref.kind = memberElem
	ref.key = c.regs.Alloc()
	c.expr(m.Property, ref.key)
	return ref
}

// loadHomeProto loads the prototype of the home object for super lookups.
func (c *Compiler) loadHomeProto(dst Register) {
	c.emit(vm.OpLoadHome, int(dst))
	c.emit(vm.OpLoadHomeProto, int(dst), int(dst))
}

func (c *Compiler) loadMember(ref member, dst Register) {
	switch ref.kind {
	case memberProp:
		c.emit(vm.OpGetProp, int(dst), int(ref.obj), c.constString(ref.name))
	case memberElem:
		c.emit(vm.OpGetElem, int(dst), int(ref.obj), int(ref.key))
	case memberSuper:
		c.emit(vm.OpGetSuper, int(dst), int(ref.obj), int(ref.key), int(ref.this))
	case memberPrivate:
		c.emit(vm.OpGetPrivate, int(dst), int(ref.obj), int(ref.key))
	}
}

func (c *Compiler) storeMember(ref member, src Register) {
	switch ref.kind {
	case memberProp:
		c.emit(vm.OpSetProp, int(ref.obj), c.constString(ref.name), int(src))
	case memberElem:
		c.emit(vm.OpSetElem, int(ref.obj), int(ref.key), int(src))
	case memberSuper:
		c.emit(vm.OpSetSuper, int(ref.obj), int(ref.key), int(src), int(ref.this))
	case memberPrivate:
		c.emit(vm.OpSetPrivate, int(ref.obj), int(ref.key), int(src))
	}
}

// --- Assignment expressions ---

var compoundOps = map[string]vm.OpCode{
	"+=": vm.OpAdd, "-=": vm.OpSub, "*=": vm.OpMul, "/=": vm.OpDiv, "%=": vm.OpMod,
	"**=": vm.OpExp, "<<=": vm.OpShl, ">>=": vm.OpShr, ">>>=": vm.OpUShr,
	"&=": vm.OpBitAnd, "|=": vm.OpBitOr, "^=": vm.OpBitXor,
}

// reference is an assignable target: a name or an evaluated member.
type reference struct {
	name  *nameRef
	mem   member
	ident string
}

func (c *Compiler) reference(target parser.Expression) reference {
	switch t := unparen(target).(type) {
	case *parser.Identifier:
		ref := c.resolve(t.Value)
		return reference{name: &ref, ident: t.Value}
	case *parser.MemberExpression:
		return reference{mem: c.memberRef(t)}
	}
	c.fail(target.Pos(), "Invalid left-hand side in assignment")
	return reference{}
}

func (c *Compiler) loadReference(ref reference, dst Register) {
	if ref.name != nil {
		c.loadRef(*ref.name, dst, false)
		return
	}
	c.loadMember(ref.mem, dst)
}

func (c *Compiler) storeReference(ref reference, src Register) {
	if ref.name != nil {
		c.storeRef(*ref.name, src, false)
		return
	}
	c.storeMember(ref.mem, src)
}

func (c *Compiler) assignment(e *parser.AssignmentExpression, dst Register) {
	c.markPos(e.Token)
	mark := c.regs.Mark()
	defer c.regs.Release(mark)

	if e.Operator == "=" {
		switch t := unparen(e.Target).(type) {
		case *parser.Identifier, *parser.MemberExpression:
			ref := c.reference(t)
			v := c.regs.Alloc()
			c.exprNamed(e.Value, v, targetName(t))
			c.storeReference(ref, v)
			c.emit(vm.OpMove, int(dst), int(v))
		default:
			v := c.regs.Alloc()
			c.expr(e.Value, v)
			c.bindPattern(t, v, bindAssign)
			c.emit(vm.OpMove, int(dst), int(v))
		}
		return
	}

	ref := c.reference(e.Target)
	v := c.regs.Alloc()
	c.loadReference(ref, v)
	switch e.Operator {
	case "&&=", "||=", "??=":
		var skip int
		switch e.Operator {
		case "&&=":
			skip = c.emitJump(vm.OpJumpIfFalse, v)
		case "||=":
			skip = c.emitJump(vm.OpJumpIfTrue, v)
		default:
			skip = c.emitJump(vm.OpJumpIfNotNullish, v)
		}
		c.exprNamed(e.Value, v, targetName(unparen(e.Target)))
		c.storeReference(ref, v)
		c.patchJump(skip)
	default:
		op, ok := compoundOps[e.Operator]
		if !ok {
			c.fail(e.Token, "Unknown assignment operator %s", e.Operator)
		}
		r := c.regs.Alloc()
		c.expr(e.Value, r)
		c.emit(op, int(v), int(v), int(r))
		c.storeReference(ref, v)
	}
	c.emit(vm.OpMove, int(dst), int(v))
}

func (c *Compiler) update(e *parser.UpdateExpression, dst Register) {
	c.markPos(e.Token)
	mark := c.regs.Mark()
	ref := c.reference(e.Argument)
	v := c.regs.Alloc()
	c.loadReference(ref, v)
	c.emit(vm.OpToNumeric, int(v), int(v))
	old := c.regs.Alloc()
	c.emit(vm.OpMove, int(old), int(v))
	if e.Operator == "++" {
		c.emit(vm.OpInc, int(v), int(v))
	} else {
		c.emit(vm.OpDec, int(v), int(v))
	}
	c.storeReference(ref, v)
	if e.Prefix {
		c.emit(vm.OpMove, int(dst), int(v))
	} else {
		c.emit(vm.OpMove, int(dst), int(old))
	}
	c.regs.Release(mark)
}
